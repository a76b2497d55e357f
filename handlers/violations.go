package handlers

import (
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"

	"drtguard/models"
)

// GetViolations returns the violation audit trail
// GET /api/violations?page=1&limit=50&path=&client_ip=&action=
func (h *Handler) GetViolations(c *fiber.Ctx) error {
	page := c.QueryInt("page", 1)
	limit := c.QueryInt("limit", 50)
	path := c.Query("path", "")
	clientIP := c.Query("client_ip", "")
	action := c.Query("action", "")

	if page < 1 {
		page = 1
	}
	if limit > 100 {
		limit = 100
	}

	offset := (page - 1) * limit

	query := h.DB.Model(&models.Violation{})

	if path != "" {
		query = query.Where("request_path = ?", path)
	}
	if clientIP != "" {
		query = query.Where("client_ip = ?", clientIP)
	}
	if action != "" {
		query = query.Where("action_taken = ?", action)
	}

	var total int64
	query.Count(&total)

	var violations []models.Violation
	if err := query.Order("timestamp DESC").Offset(offset).Limit(limit).Find(&violations).Error; err != nil {
		return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}

	return c.JSON(fiber.Map{
		"page":       page,
		"limit":      limit,
		"total":      total,
		"violations": violations,
	})
}

// GetViolationStats returns aggregated violation statistics
// GET /api/violations/stats
func (h *Handler) GetViolationStats(c *fiber.Ctx) error {
	now := time.Now()
	todayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	weekStart := todayStart.AddDate(0, 0, -7)
	monthStart := todayStart.AddDate(0, -1, 0)

	var todayCount, weekCount, monthCount, blockedCount int64

	h.DB.Model(&models.Violation{}).Where("timestamp >= ?", todayStart).Count(&todayCount)
	h.DB.Model(&models.Violation{}).Where("timestamp >= ?", weekStart).Count(&weekCount)
	h.DB.Model(&models.Violation{}).Where("timestamp >= ?", monthStart).Count(&monthCount)
	h.DB.Model(&models.Violation{}).Where("timestamp >= ? AND was_blocked = ?", weekStart, true).Count(&blockedCount)

	// Most-hit endpoint over the last week
	var topPath struct {
		RequestPath string
		Count       int64
	}
	h.DB.Model(&models.Violation{}).
		Select("request_path, COUNT(*) as count").
		Where("timestamp >= ?", weekStart).
		Group("request_path").
		Order("count DESC").
		Limit(1).
		Scan(&topPath)

	// Top offending client over the last week
	var topClient struct {
		ClientIP    string
		CountryCode string
		Count       int64
	}
	h.DB.Model(&models.Violation{}).
		Select("client_ip, country_code, COUNT(*) as count").
		Where("timestamp >= ?", weekStart).
		Group("client_ip, country_code").
		Order("count DESC").
		Limit(1).
		Scan(&topClient)

	return c.JSON(fiber.Map{
		"today":         todayCount,
		"week":          weekCount,
		"month":         monthCount,
		"blocked_week":  blockedCount,
		"top_path":      topPath.RequestPath,
		"top_path_hits": topPath.Count,
		"top_client": fiber.Map{
			"ip":      topClient.ClientIP,
			"country": topClient.CountryCode,
			"count":   topClient.Count,
		},
	})
}
