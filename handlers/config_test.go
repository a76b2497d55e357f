package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drtguard/models"
)

func newConfigApp(h *Handler) *fiber.App {
	app := fiber.New()
	app.Get("/api/config", h.GetConfiguration)
	app.Put("/api/config", h.UpdateConfiguration)
	return app
}

func TestGetConfiguration(t *testing.T) {
	h, _ := newTestHandler(t)
	app := newConfigApp(h)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/config", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var cfg models.Configuration
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Equal(t, 0.8, cfg.SimilarityThreshold)
	assert.True(t, cfg.Enabled)
}

func TestUpdateConfiguration(t *testing.T) {
	h, _ := newTestHandler(t)
	app := newConfigApp(h)

	body, _ := json.Marshal(map[string]interface{}{"similarity_threshold": 0.7})
	req := httptest.NewRequest("PUT", "/api/config", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	// Partial update: untouched fields keep their values
	got := h.Config.Snapshot()
	assert.Equal(t, 0.7, got.SimilarityThreshold)
	assert.Equal(t, 24, got.RetentionHours)
}

func TestUpdateConfigurationRejectsInvalid(t *testing.T) {
	h, _ := newTestHandler(t)
	app := newConfigApp(h)

	body, _ := json.Marshal(map[string]interface{}{"sampling_rate": 3.0})
	req := httptest.NewRequest("PUT", "/api/config", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	assert.Equal(t, 1.0, h.Config.Snapshot().SamplingRate)
}
