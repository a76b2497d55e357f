package handlers

import (
	"github.com/gofiber/fiber/v2"

	"drtguard/services"
)

// TestWebhook - Send a test alert through the configured webhook
func (h *Handler) TestWebhook(c *fiber.Ctx) error {
	if !h.Webhook.IsEnabled() {
		return c.Status(400).JSON(fiber.Map{"error": "No webhook URL configured"})
	}

	if err := h.Webhook.SendSystemAlert("Webhook Test", "Test alert from the DRT behavioral monitor.", services.ColorBlue); err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Webhook delivery failed: " + err.Error()})
	}
	return c.JSON(fiber.Map{"message": "Test alert sent"})
}
