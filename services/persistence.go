package services

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"drtguard/models"
	"drtguard/system"
)

// PersistenceAdapter mirrors in-memory detection state into the database
// without ever blocking the request path. Writes are queued onto a bounded
// channel and drained by a single writer goroutine with bounded retries; a
// full queue or an unreachable store drops the write and bumps a counter.
type PersistenceAdapter struct {
	db           *gorm.DB
	ops          chan persistOp
	wg           sync.WaitGroup
	stopOnce     sync.Once
	writeTimeout time.Duration
	maxRetries   int

	dropped      atomic.Int64
	retried      atomic.Int64
	consecFails  atomic.Int64
	unhealthyBar int64
}

type persistOp struct {
	name string
	fn   func(db *gorm.DB) error
}

func NewPersistenceAdapter(db *gorm.DB, queueSize int) *PersistenceAdapter {
	if queueSize <= 0 {
		queueSize = 1024
	}
	p := &PersistenceAdapter{
		db:           db,
		ops:          make(chan persistOp, queueSize),
		writeTimeout: 5 * time.Second,
		maxRetries:   3,
		unhealthyBar: 10,
	}
	p.wg.Add(1)
	go p.writerLoop()
	return p
}

func (p *PersistenceAdapter) writerLoop() {
	defer p.wg.Done()
	for op := range p.ops {
		p.execute(op)
	}
}

func (p *PersistenceAdapter) execute(op persistOp) {
	var lastErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			p.retried.Add(1)
			time.Sleep(time.Duration(attempt) * 100 * time.Millisecond)
		}
		ctx, cancel := context.WithTimeout(context.Background(), p.writeTimeout)
		lastErr = op.fn(p.db.WithContext(ctx))
		cancel()
		if lastErr == nil {
			p.consecFails.Store(0)
			return
		}
	}
	p.dropped.Add(1)
	p.consecFails.Add(1)
	system.Warn("Persistence write %s dropped after %d retries: %v", op.name, p.maxRetries, lastErr)
}

// Enqueue queues a write, dropping it if the queue is full. Never blocks.
func (p *PersistenceAdapter) Enqueue(name string, fn func(db *gorm.DB) error) {
	select {
	case p.ops <- persistOp{name: name, fn: fn}:
	default:
		p.dropped.Add(1)
		system.Warn("Persistence queue full, dropped write %s", name)
	}
}

// Healthy reports whether the writer has seen too many consecutive failures.
// Consulted by the middleware when fail_closed is configured.
func (p *PersistenceAdapter) Healthy() bool {
	return p.consecFails.Load() < p.unhealthyBar
}

// DroppedWrites returns the number of writes dropped since start.
func (p *PersistenceAdapter) DroppedWrites() int64 { return p.dropped.Load() }

// RetriedWrites returns the number of retry attempts since start.
func (p *PersistenceAdapter) RetriedWrites() int64 { return p.retried.Load() }

// Stop closes the queue and waits up to timeout for the writer to drain.
func (p *PersistenceAdapter) Stop(timeout time.Duration) {
	p.stopOnce.Do(func() { close(p.ops) })
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(timeout):
		system.Warn("Persistence writer did not drain within %v", timeout)
	}
}

// UpsertSignature inserts a signature row or bumps its request count.
func (p *PersistenceAdapter) UpsertSignature(sig models.BehavioralSignature) {
	p.Enqueue("upsert_signature", func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "id"}},
			DoUpdates: clause.Assignments(map[string]interface{}{
				"request_count": gorm.Expr("request_count + 1"),
				"last_seen":     sig.LastSeen,
			}),
		}).Create(&sig).Error
	})
}

// SaveViolation appends one audit record.
func (p *PersistenceAdapter) SaveViolation(v models.Violation) {
	p.Enqueue("save_violation", func(db *gorm.DB) error {
		return db.Create(&v).Error
	})
}

// SaveEscalation mirrors the in-memory escalation row, replacing any previous
// row for the same path.
func (p *PersistenceAdapter) SaveEscalation(e models.EscalatedEndpoint) {
	p.Enqueue("save_escalation", func(db *gorm.DB) error {
		return db.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "path"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"escalation_reason", "similarity_score", "matched_attack_vector_id",
				"severity", "escalation_count", "first_escalated_at", "expires_at",
				"is_active", "alert_sent",
			}),
		}).Create(&e).Error
	})
}

// RecordVectorHit bumps a vector's hit statistics.
func (p *PersistenceAdapter) RecordVectorHit(vectorID uint, at time.Time) {
	p.Enqueue("record_vector_hit", func(db *gorm.DB) error {
		return db.Model(&models.AttackVector{}).Where("id = ?", vectorID).
			Updates(map[string]interface{}{
				"hit_count": gorm.Expr("hit_count + 1"),
				"last_hit":  at,
			}).Error
	})
}
