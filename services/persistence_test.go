package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"drtguard/models"
)

func TestPersistenceUpsertSignature(t *testing.T) {
	db := newTestDB(t)
	p := NewPersistenceAdapter(db, 0)

	sig := testSignature("/api/users/{ID}", "GET")
	p.UpsertSignature(sig)
	sig.LastSeen = sig.LastSeen.Add(time.Minute)
	p.UpsertSignature(sig)
	p.Stop(5 * time.Second)

	var stored models.BehavioralSignature
	require.NoError(t, db.First(&stored, "id = ?", sig.ID).Error)
	assert.Equal(t, int64(2), stored.RequestCount)

	var rows int64
	db.Model(&models.BehavioralSignature{}).Count(&rows)
	assert.Equal(t, int64(1), rows, "identical shapes collapse to one row")
}

func TestPersistenceSaveEscalationReplacesByPath(t *testing.T) {
	db := newTestDB(t)
	p := NewPersistenceAdapter(db, 0)

	now := time.Now()
	record := models.EscalatedEndpoint{
		Path:             "/api/export",
		EscalationReason: models.ReasonPatternMatch,
		Severity:         models.SeverityMedium,
		EscalationCount:  1,
		FirstEscalatedAt: now,
		ExpiresAt:        now.Add(time.Hour),
		IsActive:         true,
	}
	p.SaveEscalation(record)

	// A lapsed path re-escalating fresh carries a new first-escalation time
	record.EscalationCount = 2
	record.Severity = models.SeverityHigh
	record.FirstEscalatedAt = now.Add(2 * time.Hour)
	p.SaveEscalation(record)
	p.Stop(5 * time.Second)

	var rows []models.EscalatedEndpoint
	require.NoError(t, db.Find(&rows).Error)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].EscalationCount)
	assert.Equal(t, models.SeverityHigh, rows[0].Severity)
	assert.WithinDuration(t, now.Add(2*time.Hour), rows[0].FirstEscalatedAt, time.Second)
}

func TestPersistenceSaveEscalationPersistsInactive(t *testing.T) {
	db := newTestDB(t)
	p := NewPersistenceAdapter(db, 0)

	now := time.Now()
	record := models.EscalatedEndpoint{
		Path:             "/api/users/{ID}",
		EscalationReason: models.ReasonPatternMatch,
		Severity:         models.SeverityHigh,
		EscalationCount:  1,
		FirstEscalatedAt: now,
		ExpiresAt:        now.Add(time.Hour),
		IsActive:         true,
	}
	p.SaveEscalation(record)

	record.IsActive = false
	p.SaveEscalation(record)
	p.Stop(5 * time.Second)

	var stored models.EscalatedEndpoint
	require.NoError(t, db.First(&stored, "path = ?", record.Path).Error)
	assert.False(t, stored.IsActive)
}

func TestPersistenceDropsWhenQueueFull(t *testing.T) {
	db := newTestDB(t)
	p := NewPersistenceAdapter(db, 1)

	// Block the writer, fill the queue, then overflow it
	release := make(chan struct{})
	started := make(chan struct{})
	p.Enqueue("blocker", func(_ *gorm.DB) error {
		close(started)
		<-release
		return nil
	})
	<-started
	p.Enqueue("queued", func(_ *gorm.DB) error { return nil })
	p.Enqueue("overflow", func(_ *gorm.DB) error { return nil })

	assert.Equal(t, int64(1), p.DroppedWrites())

	close(release)
	p.Stop(5 * time.Second)
}

func TestPersistenceHealthyByDefault(t *testing.T) {
	db := newTestDB(t)
	p := NewPersistenceAdapter(db, 0)
	defer p.Stop(time.Second)

	assert.True(t, p.Healthy())
	assert.Equal(t, int64(0), p.DroppedWrites())
	assert.Equal(t, int64(0), p.RetriedWrites())
}
