package handlers

import (
	"github.com/gofiber/fiber/v2"

	"drtguard/models"
	"drtguard/system"
)

// GetConfiguration - Return the current runtime configuration
func (h *Handler) GetConfiguration(c *fiber.Ctx) error {
	cfg := h.Config.Snapshot()
	return c.JSON(cfg)
}

// UpdateConfiguration - Replace the runtime configuration
func (h *Handler) UpdateConfiguration(c *fiber.Ctx) error {
	cfg := h.Config.Snapshot()
	if err := c.BodyParser(&cfg); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	cfg.ID = models.ConfigurationID

	if err := h.Config.Update(cfg); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	// Webhook URL changes take effect immediately
	h.Webhook.SetWebhookURL(cfg.WebhookURL)

	system.Info("Configuration updated: threshold=%.2f sampling=%.2f enabled=%v", cfg.SimilarityThreshold, cfg.SamplingRate, cfg.Enabled)
	return c.JSON(h.Config.Snapshot())
}
