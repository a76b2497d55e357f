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

func newEscalationApp(h *Handler) *fiber.App {
	app := fiber.New()
	app.Get("/api/escalations", h.GetEscalations)
	app.Get("/api/escalations/lookup", h.GetEscalation)
	app.Post("/api/escalations", h.CreateEscalation)
	app.Delete("/api/escalations/lookup", h.DeleteEscalation)
	return app
}

func TestManualEscalationLifecycle(t *testing.T) {
	h, _ := newTestHandler(t)
	app := newEscalationApp(h)

	// Raw paths are normalized before escalation
	body, _ := json.Marshal(map[string]string{"path": "/api/users/123", "severity": "high"})
	req := httptest.NewRequest("POST", "/api/escalations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 201, resp.StatusCode)

	var record models.EscalatedEndpoint
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&record))
	assert.Equal(t, "/api/users/{ID}", record.Path)
	assert.Equal(t, models.ReasonManual, record.EscalationReason)

	// Lookup through a different concrete ID resolves to the same state
	resp, err = app.Test(httptest.NewRequest("GET", "/api/escalations/lookup?path=/api/users/999", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/escalations", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	// Clear and verify it is gone
	resp, err = app.Test(httptest.NewRequest("DELETE", "/api/escalations/lookup?path=/api/users/123", nil))
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("DELETE", "/api/escalations/lookup?path=/api/users/123", nil))
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestManualEscalationValidation(t *testing.T) {
	h, _ := newTestHandler(t)
	app := newEscalationApp(h)

	body, _ := json.Marshal(map[string]string{"severity": "high"})
	req := httptest.NewRequest("POST", "/api/escalations", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/escalations/lookup", nil))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}
