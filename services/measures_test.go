package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"drtguard/models"
)

func TestDeriveMeasuresBySeverity(t *testing.T) {
	cfg := models.DefaultConfiguration()

	tests := []struct {
		severity  string
		isolation string
		breaker   bool
	}{
		{models.SeverityCritical, IsolationFull, true},
		{models.SeverityHigh, IsolationFull, true},
		{models.SeverityMedium, IsolationPartial, true},
		{models.SeverityLow, IsolationPartial, false},
	}
	for _, tt := range tests {
		t.Run(tt.severity, func(t *testing.T) {
			m := DeriveMeasures(tt.severity, &cfg)
			assert.Equal(t, tt.isolation, m.IsolationLevel)
			assert.Equal(t, tt.breaker, m.CircuitBreakerEnabled)
			assert.Equal(t, cfg.RateLimitMultiplier, m.RateLimitMultiplier)
			assert.Nil(t, m.WebsocketOverhead)
		})
	}
}

func TestDeriveMeasuresWebsocketOverhead(t *testing.T) {
	cfg := models.DefaultConfiguration()
	cfg.WebsocketOverhead = true

	critical := DeriveMeasures(models.SeverityCritical, &cfg)
	assert.NotNil(t, critical.WebsocketOverhead)
	assert.Equal(t, 5, critical.WebsocketOverhead.HeartbeatFrequencySeconds)
	assert.True(t, critical.WebsocketOverhead.MessageEncryption)

	low := DeriveMeasures(models.SeverityLow, &cfg)
	assert.Equal(t, 30, low.WebsocketOverhead.HeartbeatFrequencySeconds)
	assert.False(t, low.WebsocketOverhead.MessageEncryption)
}

func TestDeriveMeasuresDeterministic(t *testing.T) {
	cfg := models.DefaultConfiguration()
	a := DeriveMeasures(models.SeverityHigh, &cfg)
	b := DeriveMeasures(models.SeverityHigh, &cfg)
	assert.Equal(t, a, b)
}
