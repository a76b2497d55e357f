package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"

	"drtguard/models"
	"drtguard/services"
)

// MarkFalsePositive - Record analyst feedback against a violation
func (h *Handler) MarkFalsePositive(c *fiber.Ctx) error {
	var req struct {
		ViolationID string  `json:"violation_id"`
		Reason      string  `json:"reason"`
		Confidence  float64 `json:"confidence"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	if req.ViolationID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "violation_id is required"})
	}

	markedBy := "unknown"
	if token, ok := c.Locals("user").(*jwt.Token); ok {
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if user, ok := claims["user"].(string); ok {
				markedBy = user
			}
		}
	}

	pattern, err := h.Feedback.MarkFalsePositive(req.ViolationID, markedBy, req.Reason, req.Confidence)
	if err != nil {
		if errors.Is(err, services.ErrViolationNotFound) {
			return c.Status(404).JSON(fiber.Map{"error": "Violation not found"})
		}
		return c.Status(400).JSON(fiber.Map{"error": err.Error()})
	}

	return c.Status(201).JSON(fiber.Map{
		"pattern":    pattern,
		"suppressed": !pattern.Active,
	})
}

// GetFalsePositivePatterns - List aggregated false-positive patterns
func (h *Handler) GetFalsePositivePatterns(c *fiber.Ctx) error {
	var patterns []models.FalsePositivePattern
	if err := h.DB.Order("false_positive_rate DESC").Find(&patterns).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to list false-positive patterns"})
	}
	return c.JSON(patterns)
}
