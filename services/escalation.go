package services

import (
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"

	"drtguard/models"
	"drtguard/system"
)

// EscalationEngine is the per-endpoint protective state machine. The
// in-memory table is authoritative for request-time decisions; every mutation
// is mirrored asynchronously through the persistence adapter.
//
// Writers serialize per path so that N concurrent first-time triggers against
// a brand-new endpoint produce exactly one record with escalation count 1.
// Readers take a snapshot under a read lock and never contend with writers on
// other paths.
type EscalationEngine struct {
	config      *ConfigManager
	persistence *PersistenceAdapter
	webhook     *WebhookService

	mu    sync.RWMutex
	table map[string]*models.EscalatedEndpoint

	pathLocks sync.Map // path -> *sync.Mutex

	requests    atomic.Int64
	escalations atomic.Int64
}

func NewEscalationEngine(config *ConfigManager, persistence *PersistenceAdapter, webhook *WebhookService) *EscalationEngine {
	return &EscalationEngine{
		config:      config,
		persistence: persistence,
		webhook:     webhook,
		table:       make(map[string]*models.EscalatedEndpoint),
	}
}

// Restore loads still-active escalations from the database after a restart.
func (e *EscalationEngine) Restore(db *gorm.DB) error {
	var rows []models.EscalatedEndpoint
	if err := db.Where("is_active = ?", true).Find(&rows).Error; err != nil {
		return err
	}
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()
	restored := 0
	for i := range rows {
		if rows[i].ExpiresAt.After(now) {
			row := rows[i]
			e.table[row.Path] = &row
			restored++
		}
	}
	if restored > 0 {
		system.Info("Restored %d active escalations from database", restored)
	}
	return nil
}

func (e *EscalationEngine) pathLock(path string) *sync.Mutex {
	lock, _ := e.pathLocks.LoadOrStore(path, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// Trigger escalates the endpoint or renews an active escalation. Renewal
// bumps the count and pushes the expiry forward; it never creates a second
// row for the same path. Returns the resulting record and whether this call
// created it.
func (e *EscalationEngine) Trigger(path, reason string, score float64, vectorID *uint, severity string, now time.Time) (models.EscalatedEndpoint, bool) {
	cfg := e.config.Snapshot()
	timeout := time.Duration(cfg.EscalationTimeoutMinutes) * time.Minute

	lock := e.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	existing, ok := e.table[path]
	if ok && existing.IsActive && existing.ExpiresAt.After(now) {
		existing.EscalationCount++
		existing.ExpiresAt = now.Add(timeout)
		if score > existing.SimilarityScore {
			existing.SimilarityScore = score
		}
		if severityRank(severity) > severityRank(existing.Severity) {
			existing.Severity = severity
		}
		record := *existing
		e.mu.Unlock()

		e.persistence.SaveEscalation(record)
		return record, false
	}

	record := models.EscalatedEndpoint{
		Path:                  path,
		EscalationReason:      reason,
		SimilarityScore:       score,
		MatchedAttackVectorID: vectorID,
		Severity:              severity,
		EscalationCount:       1,
		FirstEscalatedAt:      now,
		ExpiresAt:             now.Add(timeout),
		IsActive:              true,
	}
	stored := record
	e.table[path] = &stored
	e.mu.Unlock()

	e.escalations.Add(1)
	system.Warn("Endpoint escalated: %s (reason=%s score=%.2f severity=%s)", path, reason, score, severity)

	if cfg.AlertOnEscalation && e.webhook != nil && e.webhook.IsEnabled() {
		go e.sendAlert(path, record)
	}

	e.persistence.SaveEscalation(record)
	return record, true
}

func (e *EscalationEngine) sendAlert(path string, record models.EscalatedEndpoint) {
	if err := e.webhook.SendEscalationAlert(path, record.EscalationReason, record.Severity, record.SimilarityScore, record.ExpiresAt); err != nil {
		system.Warn("Failed to send escalation alert for %s: %v", path, err)
		return
	}
	e.mu.Lock()
	if current, ok := e.table[path]; ok {
		current.AlertSent = true
		updated := *current
		e.mu.Unlock()
		e.persistence.SaveEscalation(updated)
		return
	}
	e.mu.Unlock()
}

// Get returns the escalation record for a path, active or not.
func (e *EscalationEngine) Get(path string) (models.EscalatedEndpoint, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	record, ok := e.table[path]
	if !ok {
		return models.EscalatedEndpoint{}, false
	}
	return *record, true
}

// MeasuresFor returns the derived protective measures while the escalation is
// active, or nil once it has lapsed.
func (e *EscalationEngine) MeasuresFor(path string, now time.Time) *ProtectiveMeasures {
	e.mu.RLock()
	record, ok := e.table[path]
	if !ok || !record.IsActive || !record.ExpiresAt.After(now) {
		e.mu.RUnlock()
		return nil
	}
	severity := record.Severity
	e.mu.RUnlock()

	cfg := e.config.Snapshot()
	m := DeriveMeasures(severity, &cfg)
	return &m
}

// Active returns snapshots of all currently active escalations.
func (e *EscalationEngine) Active(now time.Time) []models.EscalatedEndpoint {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []models.EscalatedEndpoint
	for _, record := range e.table {
		if record.IsActive && record.ExpiresAt.After(now) {
			out = append(out, *record)
		}
	}
	return out
}

// Clear manually deactivates an escalation, typically after an operator
// review. Returns false when no record exists for the path.
func (e *EscalationEngine) Clear(path string) bool {
	lock := e.pathLock(path)
	lock.Lock()
	defer lock.Unlock()

	e.mu.Lock()
	record, ok := e.table[path]
	if !ok || !record.IsActive {
		e.mu.Unlock()
		return false
	}
	record.IsActive = false
	updated := *record
	e.mu.Unlock()

	system.Info("Escalation manually cleared: %s", path)
	e.persistence.SaveEscalation(updated)
	return true
}

// ExpireDue flips escalations past their expiry to inactive. Called only by
// the cleanup scheduler; acquires the same per-path locks as the request path.
func (e *EscalationEngine) ExpireDue(now time.Time) int {
	e.mu.RLock()
	var due []string
	for path, record := range e.table {
		if record.IsActive && !record.ExpiresAt.After(now) {
			due = append(due, path)
		}
	}
	e.mu.RUnlock()

	expired := 0
	for _, path := range due {
		lock := e.pathLock(path)
		lock.Lock()
		e.mu.Lock()
		record, ok := e.table[path]
		if ok && record.IsActive && !record.ExpiresAt.After(now) {
			record.IsActive = false
			updated := *record
			e.mu.Unlock()
			lock.Unlock()
			e.persistence.SaveEscalation(updated)
			expired++
			continue
		}
		e.mu.Unlock()
		lock.Unlock()
	}
	return expired
}

// RecordRequest feeds the escalation-rate metric.
func (e *EscalationEngine) RecordRequest() {
	e.requests.Add(1)
}

// AnalyzedRequests counts requests that went through full analysis.
func (e *EscalationEngine) AnalyzedRequests() int64 {
	return e.requests.Load()
}

// EscalationRate is escalations per analyzed request since start.
func (e *EscalationEngine) EscalationRate() float64 {
	requests := e.requests.Load()
	if requests == 0 {
		return 0
	}
	return float64(e.escalations.Load()) / float64(requests)
}

// ActiveCount counts currently active escalations.
func (e *EscalationEngine) ActiveCount(now time.Time) int {
	return len(e.Active(now))
}

func severityRank(s string) int {
	switch s {
	case models.SeverityCritical:
		return 4
	case models.SeverityHigh:
		return 3
	case models.SeverityMedium:
		return 2
	case models.SeverityLow:
		return 1
	}
	return 0
}
