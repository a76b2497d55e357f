package services

import (
	"fmt"

	"drtguard/models"
)

// Isolation levels applied to escalated endpoints
const (
	IsolationPartial = "partial"
	IsolationFull    = "full"
)

// WebsocketOverhead is the hardened streaming configuration emitted for
// streaming-capable endpoints while escalated.
type WebsocketOverhead struct {
	OverheadID                string `json:"overhead_id"`
	HeartbeatFrequencySeconds int    `json:"heartbeat_frequency_seconds"`
	MessageEncryption         bool   `json:"message_encryption"`
}

// ProtectiveMeasures is the directive set handed to the surrounding pipeline
// for an escalated endpoint. The rate limit multiplier is a contract for an
// external rate limiter; this subsystem does not enforce throughput itself.
type ProtectiveMeasures struct {
	Severity              string             `json:"severity"`
	RateLimitMultiplier   float64            `json:"rate_limit_multiplier"`
	CircuitBreakerEnabled bool               `json:"circuit_breaker_enabled"`
	IsolationLevel        string             `json:"isolation_level"`
	WebsocketOverhead     *WebsocketOverhead `json:"websocket_overhead,omitempty"`
}

// DeriveMeasures maps a severity and the current configuration to concrete
// measures. Pure and deterministic: the same inputs always produce the same
// directives.
func DeriveMeasures(severity string, cfg *models.Configuration) ProtectiveMeasures {
	m := ProtectiveMeasures{
		Severity:            severity,
		RateLimitMultiplier: cfg.RateLimitMultiplier,
	}

	switch severity {
	case models.SeverityCritical, models.SeverityHigh:
		m.CircuitBreakerEnabled = true
		m.IsolationLevel = IsolationFull
	case models.SeverityMedium:
		m.CircuitBreakerEnabled = true
		m.IsolationLevel = IsolationPartial
	default:
		m.CircuitBreakerEnabled = false
		m.IsolationLevel = IsolationPartial
	}

	if cfg.WebsocketOverhead {
		m.WebsocketOverhead = deriveWebsocketOverhead(severity)
	}

	return m
}

// deriveWebsocketOverhead tightens heartbeat frequency with severity and
// forces encryption from medium up.
func deriveWebsocketOverhead(severity string) *WebsocketOverhead {
	heartbeat := 30
	encrypted := false
	switch severity {
	case models.SeverityCritical:
		heartbeat = 5
		encrypted = true
	case models.SeverityHigh:
		heartbeat = 10
		encrypted = true
	case models.SeverityMedium:
		heartbeat = 20
		encrypted = true
	}
	return &WebsocketOverhead{
		OverheadID:                fmt.Sprintf("ws-overhead-%s", severity),
		HeartbeatFrequencySeconds: heartbeat,
		MessageEncryption:         encrypted,
	}
}
