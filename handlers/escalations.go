package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"drtguard/models"
	"drtguard/system"
)

// GetEscalations - List active escalated endpoints
func (h *Handler) GetEscalations(c *fiber.Ctx) error {
	active := h.Escalations.Active(time.Now())
	return c.JSON(fiber.Map{
		"count":       len(active),
		"escalations": active,
	})
}

// GetEscalation - Look up the escalation state for one path
// GET /api/escalations/lookup?path=/api/users/{ID}
func (h *Handler) GetEscalation(c *fiber.Ctx) error {
	path := c.Query("path")
	if path == "" {
		return c.Status(400).JSON(fiber.Map{"error": "path query parameter is required"})
	}

	record, ok := h.Escalations.Get(models.NormalizePath(path))
	if !ok {
		return c.Status(404).JSON(fiber.Map{"error": "Endpoint is not escalated"})
	}
	return c.JSON(record)
}

// CreateEscalation - Manually escalate an endpoint
func (h *Handler) CreateEscalation(c *fiber.Ctx) error {
	var req struct {
		Path     string `json:"path"`
		Severity string `json:"severity"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.Path == "" {
		return c.Status(400).JSON(fiber.Map{"error": "path is required"})
	}
	if req.Severity == "" {
		req.Severity = models.SeverityMedium
	}
	if !models.ValidSeverity(req.Severity) {
		return c.Status(400).JSON(fiber.Map{"error": "severity must be one of low, medium, high, critical"})
	}

	record, created := h.Escalations.Trigger(models.NormalizePath(req.Path), models.ReasonManual, 1.0, nil, req.Severity, time.Now())
	system.Info("Manual escalation of %s (severity %s)", record.Path, req.Severity)

	status := 200
	if created {
		status = 201
	}
	return c.Status(status).JSON(record)
}

// DeleteEscalation - Manually clear an escalation
// DELETE /api/escalations/lookup?path=/api/users/{ID}
func (h *Handler) DeleteEscalation(c *fiber.Ctx) error {
	path := c.Query("path")
	if path == "" {
		return c.Status(400).JSON(fiber.Map{"error": "path query parameter is required"})
	}

	if !h.Escalations.Clear(models.NormalizePath(path)) {
		return c.Status(404).JSON(fiber.Map{"error": "Endpoint is not escalated"})
	}
	system.Info("Escalation manually cleared: %s", path)
	return c.JSON(fiber.Map{"message": "Escalation cleared"})
}
