package handlers

import (
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"

	"drtguard/models"
	"drtguard/system"
)

// MonitorStatus represents the current state of the detection subsystem
type MonitorStatus struct {
	Enabled             bool          `json:"enabled"`
	Uptime              string        `json:"uptime"`
	AnalyzedRequests    int64         `json:"analyzed_requests"`
	SampledOut          int64         `json:"sampled_out"`
	DetectionFailures   int64         `json:"detection_failures"`
	ActiveVectors       int           `json:"active_vectors"`
	ActiveEscalations   int           `json:"active_escalations"`
	EscalationRate      float64       `json:"escalation_rate"`
	SuppressedShapes    int           `json:"suppressed_shapes"`
	TrackedSignatures   int64         `json:"tracked_signatures"`
	HistoryObservations int           `json:"history_observations"`
	PersistenceHealthy  bool          `json:"persistence_healthy"`
	DroppedWrites       int64         `json:"dropped_writes"`
	RetriedWrites       int64         `json:"retried_writes"`
	Events              []SystemEvent `json:"events"`
}

type SystemEvent struct {
	Time    string `json:"time"`
	Type    string `json:"type"` // info, warning, error, success
	Message string `json:"message"`
}

// Event log storage with mutex for thread safety
var (
	eventLog   []SystemEvent
	eventMutex sync.RWMutex
	startedAt  = time.Now()
)

// AddEvent adds a new event to the log
func AddEvent(eventType, message string) {
	eventMutex.Lock()
	defer eventMutex.Unlock()

	event := SystemEvent{
		Time:    time.Now().Format("15:04:05"),
		Type:    eventType,
		Message: message,
	}
	eventLog = append([]SystemEvent{event}, eventLog...)
	if len(eventLog) > 100 {
		eventLog = eventLog[:100]
	}

	// Also log to file
	switch eventType {
	case "error":
		system.Error("%s", message)
	case "warning":
		system.Warn("%s", message)
	default:
		system.Info("%s", message)
	}
}

// GetEventLog returns a copy of the event log
func GetEventLog() []SystemEvent {
	eventMutex.RLock()
	defer eventMutex.RUnlock()

	result := make([]SystemEvent, len(eventLog))
	copy(result, eventLog)
	return result
}

// GetStatus returns the current detection subsystem status
func (h *Handler) GetStatus(c *fiber.Ctx) error {
	now := time.Now()
	cfg := h.Config.Snapshot()

	var signatureCount int64
	h.DB.Model(&models.BehavioralSignature{}).Count(&signatureCount)

	status := MonitorStatus{
		Enabled:             cfg.Enabled,
		Uptime:              time.Since(startedAt).Round(time.Second).String(),
		AnalyzedRequests:    h.Escalations.AnalyzedRequests(),
		SampledOut:          h.Engine.SampledOut(),
		DetectionFailures:   h.Engine.DetectionFailures(),
		ActiveVectors:       h.Registry.Count(),
		ActiveEscalations:   h.Escalations.ActiveCount(now),
		EscalationRate:      h.Escalations.EscalationRate(),
		SuppressedShapes:    h.Feedback.SuppressedCount(),
		TrackedSignatures:   signatureCount,
		HistoryObservations: h.History.TotalObservations(),
		PersistenceHealthy:  h.Persistence.Healthy(),
		DroppedWrites:       h.Persistence.DroppedWrites(),
		RetriedWrites:       h.Persistence.RetriedWrites(),
		Events:              GetEventLog(),
	}

	return c.JSON(status)
}

// GetEvents returns recent events
func (h *Handler) GetEvents(c *fiber.Ctx) error {
	return c.JSON(GetEventLog())
}
