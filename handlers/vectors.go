package handlers

import (
	"github.com/gofiber/fiber/v2"

	"drtguard/models"
	"drtguard/system"
)

// GetVectors - Get all attack vectors
func (h *Handler) GetVectors(c *fiber.Ctx) error {
	var vectors []models.AttackVector
	if err := h.DB.Order("severity DESC, path_pattern").Find(&vectors).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to list attack vectors"})
	}
	return c.JSON(vectors)
}

// CreateVector - Create a new attack vector
func (h *Handler) CreateVector(c *fiber.Ctx) error {
	var vector models.AttackVector
	if err := c.BodyParser(&vector); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	// An omitted active flag means active; an explicit false must stick.
	var flags struct {
		Active *bool `json:"active"`
	}
	if err := c.BodyParser(&flags); err == nil && flags.Active == nil {
		vector.Active = true
	}

	// Validate required fields
	if vector.PathPattern == "" || vector.Method == "" {
		return c.Status(400).JSON(fiber.Map{"error": "path_pattern and method are required"})
	}
	if vector.Severity == "" {
		vector.Severity = models.SeverityMedium
	}
	if !models.ValidSeverity(vector.Severity) {
		return c.Status(400).JSON(fiber.Map{"error": "severity must be one of low, medium, high, critical"})
	}

	// Reject duplicate structural shapes
	key := vector.StructuralKey()
	var existing []models.AttackVector
	h.DB.Where("path_pattern = ? AND method = ?", vector.PathPattern, vector.Method).Find(&existing)
	for i := range existing {
		if existing[i].StructuralKey() == key {
			return c.Status(409).JSON(fiber.Map{"error": "An attack vector with this shape already exists"})
		}
	}

	vector.IsBuiltin = false // User-created vectors are not builtin
	vector.HitCount = 0
	if err := h.DB.Create(&vector).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to create attack vector"})
	}

	if err := h.Registry.Refresh(); err != nil {
		system.Warn("Vector registry refresh failed after create: %v", err)
	}
	system.Info("Attack vector created: %s %s (severity %s)", vector.Method, vector.PathPattern, vector.Severity)

	return c.Status(201).JSON(vector)
}

// UpdateVector - Update an attack vector
func (h *Handler) UpdateVector(c *fiber.Ctx) error {
	id := c.Params("id")

	var existing models.AttackVector
	if err := h.DB.First(&existing, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "Attack vector not found"})
	}

	var update models.AttackVector
	if err := c.BodyParser(&update); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "Invalid request body"})
	}
	var flags struct {
		Active *bool `json:"active"`
	}
	if err := c.BodyParser(&flags); err == nil && flags.Active == nil {
		update.Active = existing.Active
	}

	if update.Severity != "" && !models.ValidSeverity(update.Severity) {
		return c.Status(400).JSON(fiber.Map{"error": "severity must be one of low, medium, high, critical"})
	}

	// Builtin vectors can only toggle active status
	if existing.IsBuiltin {
		existing.Active = update.Active
	} else {
		existing.PathPattern = update.PathPattern
		existing.Method = update.Method
		existing.Headers = update.Headers
		existing.BodyPattern = update.BodyPattern
		existing.QueryPattern = update.QueryPattern
		if update.Severity != "" {
			existing.Severity = update.Severity
		}
		existing.Description = update.Description
		existing.Active = update.Active
	}

	if err := h.DB.Save(&existing).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to update attack vector"})
	}

	if err := h.Registry.Refresh(); err != nil {
		system.Warn("Vector registry refresh failed after update: %v", err)
	}

	return c.JSON(existing)
}

// DeleteVector - Delete an attack vector
func (h *Handler) DeleteVector(c *fiber.Ctx) error {
	id := c.Params("id")

	var vector models.AttackVector
	if err := h.DB.First(&vector, id).Error; err != nil {
		return c.Status(404).JSON(fiber.Map{"error": "Attack vector not found"})
	}

	// Cannot delete builtin vectors
	if vector.IsBuiltin {
		return c.Status(403).JSON(fiber.Map{"error": "Builtin vectors cannot be deleted"})
	}

	if err := h.DB.Delete(&vector).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to delete attack vector"})
	}

	if err := h.Registry.Refresh(); err != nil {
		system.Warn("Vector registry refresh failed after delete: %v", err)
	}

	return c.JSON(fiber.Map{"message": "Attack vector deleted"})
}

// ResetVectorStats - Reset hit count for all vectors
func (h *Handler) ResetVectorStats(c *fiber.Ctx) error {
	if err := h.DB.Model(&models.AttackVector{}).Where("1 = 1").Updates(map[string]interface{}{
		"hit_count": 0,
		"last_hit":  nil,
	}).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "Failed to reset vector statistics"})
	}
	return c.JSON(fiber.Map{"message": "Vector statistics reset"})
}
