package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"drtguard/system"
)

// WebhookService handles Discord webhook notifications for escalations.
type WebhookService struct {
	mu         sync.RWMutex
	webhookURL string
	enabled    bool
	client     *http.Client
}

// DiscordEmbed represents a Discord embed object
type DiscordEmbed struct {
	Title       string              `json:"title,omitempty"`
	Description string              `json:"description,omitempty"`
	Color       int                 `json:"color,omitempty"`
	Fields      []DiscordEmbedField `json:"fields,omitempty"`
	Footer      *DiscordEmbedFooter `json:"footer,omitempty"`
	Timestamp   string              `json:"timestamp,omitempty"`
}

// DiscordEmbedField represents a field in a Discord embed
type DiscordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// DiscordEmbedFooter represents a footer in a Discord embed
type DiscordEmbedFooter struct {
	Text string `json:"text"`
}

// DiscordWebhookPayload represents a Discord webhook message
type DiscordWebhookPayload struct {
	Username string         `json:"username,omitempty"`
	Content  string         `json:"content,omitempty"`
	Embeds   []DiscordEmbed `json:"embeds,omitempty"`
}

// Discord color constants
const (
	ColorRed    = 0xFF0000 // Escalation/Error
	ColorOrange = 0xFFAA00 // Warning
	ColorGreen  = 0x00FF00 // Success
	ColorBlue   = 0x00AAFF // Info
)

// NewWebhookService creates a new WebhookService
func NewWebhookService() *WebhookService {
	return &WebhookService{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// SetWebhookURL sets the Discord webhook URL
func (w *WebhookService) SetWebhookURL(url string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.webhookURL = url
	w.enabled = url != ""
}

// IsEnabled returns whether the webhook is enabled
func (w *WebhookService) IsEnabled() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.enabled && w.webhookURL != ""
}

// SendEscalationAlert notifies the channel that an endpoint entered the
// hardened protective state.
func (w *WebhookService) SendEscalationAlert(path, reason, severity string, score float64, expiresAt time.Time) error {
	if !w.IsEnabled() {
		return nil
	}

	embed := DiscordEmbed{
		Title:       "🚨 Endpoint Escalated",
		Description: fmt.Sprintf("Protective measures are now active for **%s**", path),
		Color:       ColorRed,
		Fields: []DiscordEmbedField{
			{Name: "Endpoint", Value: fmt.Sprintf("`%s`", path), Inline: true},
			{Name: "Reason", Value: reason, Inline: true},
			{Name: "Severity", Value: severity, Inline: true},
			{Name: "Similarity", Value: fmt.Sprintf("%.2f", score), Inline: true},
			{Name: "Expires", Value: expiresAt.UTC().Format(time.RFC3339), Inline: true},
		},
		Footer: &DiscordEmbedFooter{
			Text: "drtguard",
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	return w.sendEmbed(embed)
}

// SendSystemAlert sends a generic system notification.
func (w *WebhookService) SendSystemAlert(title, message string, color int) error {
	if !w.IsEnabled() {
		return nil
	}

	embed := DiscordEmbed{
		Title:       title,
		Description: message,
		Color:       color,
		Footer: &DiscordEmbedFooter{
			Text: "drtguard",
		},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	return w.sendEmbed(embed)
}

func (w *WebhookService) sendEmbed(embed DiscordEmbed) error {
	w.mu.RLock()
	url := w.webhookURL
	w.mu.RUnlock()

	payload := DiscordWebhookPayload{
		Username: "drtguard",
		Embeds:   []DiscordEmbed{embed},
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	resp, err := w.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		system.Warn("Webhook returned status %d", resp.StatusCode)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
