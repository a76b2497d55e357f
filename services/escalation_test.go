package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drtguard/models"
)

func TestEscalationTriggerAndRenew(t *testing.T) {
	db := newTestDB(t)
	engine, _ := newTestEscalations(t, db)
	now := time.Now()

	record, created := engine.Trigger("/api/users/{ID}", models.ReasonPatternMatch, 0.85, nil, models.SeverityMedium, now)
	require.True(t, created)
	assert.Equal(t, 1, record.EscalationCount)
	assert.Equal(t, now.Add(60*time.Minute), record.ExpiresAt)

	// Renewal: count bumps, expiry moves forward, score and severity keep maxima
	later := now.Add(10 * time.Minute)
	renewed, created := engine.Trigger("/api/users/{ID}", models.ReasonBehavioralRepetition, 0.80, nil, models.SeverityHigh, later)
	assert.False(t, created)
	assert.Equal(t, 2, renewed.EscalationCount)
	assert.Equal(t, later.Add(60*time.Minute), renewed.ExpiresAt)
	assert.Equal(t, 0.85, renewed.SimilarityScore)
	assert.Equal(t, models.SeverityHigh, renewed.Severity)
	assert.Equal(t, models.ReasonPatternMatch, renewed.EscalationReason)
}

func TestEscalationConcurrentFirstTrigger(t *testing.T) {
	db := newTestDB(t)
	engine, _ := newTestEscalations(t, db)
	now := time.Now()

	const workers = 50
	var createdCount sync.Map
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			_, created := engine.Trigger("/api/export", models.ReasonPatternMatch, 0.9, nil, models.SeverityHigh, now)
			createdCount.Store(i, created)
		}(i)
	}
	wg.Wait()

	creates := 0
	createdCount.Range(func(_, v interface{}) bool {
		if v.(bool) {
			creates++
		}
		return true
	})
	assert.Equal(t, 1, creates, "exactly one caller must create the record")

	record, ok := engine.Get("/api/export")
	require.True(t, ok)
	assert.Equal(t, workers, record.EscalationCount)
}

func TestEscalationMeasuresLifecycle(t *testing.T) {
	db := newTestDB(t)
	engine, _ := newTestEscalations(t, db)
	now := time.Now()

	assert.Nil(t, engine.MeasuresFor("/api/users/{ID}", now))

	engine.Trigger("/api/users/{ID}", models.ReasonPatternMatch, 0.9, nil, models.SeverityHigh, now)

	m := engine.MeasuresFor("/api/users/{ID}", now.Add(time.Minute))
	require.NotNil(t, m)
	assert.Equal(t, IsolationFull, m.IsolationLevel)

	// After the TTL the state no longer applies, even before cleanup runs
	assert.Nil(t, engine.MeasuresFor("/api/users/{ID}", now.Add(61*time.Minute)))
}

func TestEscalationExpireDue(t *testing.T) {
	db := newTestDB(t)
	engine, _ := newTestEscalations(t, db)
	now := time.Now()

	engine.Trigger("/api/a", models.ReasonPatternMatch, 0.9, nil, models.SeverityLow, now)
	engine.Trigger("/api/b", models.ReasonPatternMatch, 0.9, nil, models.SeverityLow, now)

	expired := engine.ExpireDue(now.Add(2 * time.Hour))
	assert.Equal(t, 2, expired)
	assert.Equal(t, 0, engine.ActiveCount(now.Add(2*time.Hour)))

	// Expiry is idempotent
	assert.Equal(t, 0, engine.ExpireDue(now.Add(3*time.Hour)))
}

func TestEscalationClear(t *testing.T) {
	db := newTestDB(t)
	engine, _ := newTestEscalations(t, db)
	now := time.Now()

	engine.Trigger("/api/a", models.ReasonManual, 1.0, nil, models.SeverityMedium, now)
	assert.True(t, engine.Clear("/api/a"))
	assert.Nil(t, engine.MeasuresFor("/api/a", now))
	assert.False(t, engine.Clear("/api/a"))
}

func TestEscalationClearSurvivesRestart(t *testing.T) {
	db := newTestDB(t)
	engine, persistence := newTestEscalations(t, db)
	now := time.Now()

	engine.Trigger("/api/export", models.ReasonPatternMatch, 0.9, nil, models.SeverityHigh, now)
	require.True(t, engine.Clear("/api/export"))
	persistence.Stop(5 * time.Second)

	var stored models.EscalatedEndpoint
	require.NoError(t, db.First(&stored, "path = ?", "/api/export").Error)
	assert.False(t, stored.IsActive, "manual clear must reach the durable row")

	// A restarted engine must not resurrect the cleared escalation
	restarted, _ := newTestEscalations(t, db)
	require.NoError(t, restarted.Restore(db))
	_, ok := restarted.Get("/api/export")
	assert.False(t, ok)
}

func TestEscalationRestore(t *testing.T) {
	db := newTestDB(t)
	now := time.Now()

	require.NoError(t, db.Create(&models.EscalatedEndpoint{
		Path:             "/api/live",
		EscalationReason: models.ReasonPatternMatch,
		Severity:         models.SeverityHigh,
		EscalationCount:  3,
		FirstEscalatedAt: now.Add(-time.Hour),
		ExpiresAt:        now.Add(30 * time.Minute),
		IsActive:         true,
	}).Error)
	require.NoError(t, db.Create(&models.EscalatedEndpoint{
		Path:             "/api/stale",
		EscalationReason: models.ReasonPatternMatch,
		Severity:         models.SeverityLow,
		EscalationCount:  1,
		FirstEscalatedAt: now.Add(-3 * time.Hour),
		ExpiresAt:        now.Add(-2 * time.Hour),
		IsActive:         true,
	}).Error)

	engine, _ := newTestEscalations(t, db)
	require.NoError(t, engine.Restore(db))

	_, ok := engine.Get("/api/live")
	assert.True(t, ok)
	_, ok = engine.Get("/api/stale")
	assert.False(t, ok)
}
