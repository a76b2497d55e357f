package services

import (
	"context"
	"sync"
	"time"

	"gorm.io/gorm"

	"drtguard/models"
	"drtguard/system"
)

// CleanupScheduler runs the retention pass on a fixed interval, independently
// of request handling: evicts history past its retention window, expires
// escalations past their TTL and re-evaluates false-positive patterns. It
// mutates shared state through the same locks as the request path.
type CleanupScheduler struct {
	db          *gorm.DB
	config      *ConfigManager
	history     *BehavioralHistory
	escalations *EscalationEngine
	feedback    *FeedbackStore

	interval time.Duration
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewCleanupScheduler(db *gorm.DB, config *ConfigManager, history *BehavioralHistory,
	escalations *EscalationEngine, feedback *FeedbackStore, interval time.Duration) *CleanupScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &CleanupScheduler{
		db:          db,
		config:      config,
		history:     history,
		escalations: escalations,
		feedback:    feedback,
		interval:    interval,
	}
}

// Start launches the scheduler loop.
func (s *CleanupScheduler) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.wg.Add(1)
	go s.loop(ctx)
	system.Info("Cleanup scheduler started (interval: %v)", s.interval)
}

func (s *CleanupScheduler) loop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(time.Now())
		}
	}
}

// Stop cancels the loop and waits up to timeout for an in-flight pass to
// finish, so escalation and history state is never left half mutated.
func (s *CleanupScheduler) Stop(timeout time.Duration) {
	if s.cancel == nil {
		return
	}
	s.cancel()
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		system.Warn("Cleanup pass did not finish within %v", timeout)
	}
}

// RunOnce executes a single retention pass.
func (s *CleanupScheduler) RunOnce(now time.Time) {
	cfg := s.config.Snapshot()
	retention := time.Duration(cfg.RetentionHours) * time.Hour

	evicted := s.history.Evict(retention, now)
	expired := s.escalations.ExpireDue(now)

	// Durable copies follow the same windows. Signature rows keep their own
	// retention, so each row is checked against the window it was stored with.
	cutoff := now.Add(-retention)
	var sigs []models.BehavioralSignature
	if err := s.db.Select("id", "last_seen", "retention_hours").Find(&sigs).Error; err != nil {
		system.Warn("Failed to load signatures for eviction: %v", err)
	} else {
		var stale []string
		for i := range sigs {
			rowRetention := time.Duration(sigs[i].RetentionHours) * time.Hour
			if rowRetention <= 0 {
				rowRetention = retention
			}
			if !sigs[i].LastSeen.After(now.Add(-rowRetention)) {
				stale = append(stale, sigs[i].ID)
			}
		}
		if len(stale) > 0 {
			if err := s.db.Where("id IN ?", stale).Delete(&models.BehavioralSignature{}).Error; err != nil {
				system.Warn("Failed to evict expired signatures: %v", err)
			}
		}
	}
	if err := s.db.Model(&models.EscalatedEndpoint{}).
		Where("is_active = ? AND expires_at <= ?", true, now).
		Update("is_active", false).Error; err != nil {
		system.Warn("Failed to expire escalation rows: %v", err)
	}
	if err := s.db.Where("timestamp <= ?", cutoff).Delete(&models.Violation{}).Error; err != nil {
		system.Warn("Failed to evict expired violations: %v", err)
	}

	if err := s.feedback.Reevaluate(); err != nil {
		system.Warn("Failed to re-evaluate false-positive patterns: %v", err)
	}

	if evicted > 0 || expired > 0 {
		system.Info("Cleanup pass: evicted %d observations, expired %d escalations", evicted, expired)
	}
}
