package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"drtguard/models"
)

func TestConfigManagerCreatesDefaults(t *testing.T) {
	db := newTestDB(t)
	cm := newTestConfig(t, db)

	cfg := cm.Snapshot()
	assert.Equal(t, models.ConfigurationID, cfg.ID)
	assert.True(t, cfg.Enabled)
	assert.Equal(t, 0.8, cfg.SimilarityThreshold)
	assert.Equal(t, 24, cfg.RetentionHours)
	assert.Equal(t, 60, cfg.EscalationTimeoutMinutes)

	// The row was persisted, not just held in memory
	var stored models.Configuration
	require.NoError(t, db.First(&stored, "id = ?", models.ConfigurationID).Error)
	assert.Equal(t, cfg.SimilarityThreshold, stored.SimilarityThreshold)
}

func TestConfigManagerReloadsExisting(t *testing.T) {
	db := newTestDB(t)
	cm := newTestConfig(t, db)

	cfg := cm.Snapshot()
	cfg.SimilarityThreshold = 0.65
	require.NoError(t, cm.Update(cfg))

	// A second manager over the same database sees the stored value
	cm2 := newTestConfig(t, db)
	assert.Equal(t, 0.65, cm2.Snapshot().SimilarityThreshold)
}

func TestValidateConfiguration(t *testing.T) {
	base := models.DefaultConfiguration()
	assert.NoError(t, ValidateConfiguration(&base))

	tests := []struct {
		name   string
		mutate func(*models.Configuration)
	}{
		{"threshold above 1", func(c *models.Configuration) { c.SimilarityThreshold = 1.1 }},
		{"threshold below 0", func(c *models.Configuration) { c.SimilarityThreshold = -0.1 }},
		{"zero retention", func(c *models.Configuration) { c.RetentionHours = 0 }},
		{"zero timeout", func(c *models.Configuration) { c.EscalationTimeoutMinutes = 0 }},
		{"zero multiplier", func(c *models.Configuration) { c.RateLimitMultiplier = 0 }},
		{"multiplier above 1", func(c *models.Configuration) { c.RateLimitMultiplier = 1.5 }},
		{"negative sampling", func(c *models.Configuration) { c.SamplingRate = -0.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := models.DefaultConfiguration()
			tt.mutate(&cfg)
			assert.Error(t, ValidateConfiguration(&cfg))
		})
	}
}

func TestConfigManagerRejectsInvalidUpdate(t *testing.T) {
	db := newTestDB(t)
	cm := newTestConfig(t, db)

	cfg := cm.Snapshot()
	cfg.SamplingRate = 2.0
	assert.Error(t, cm.Update(cfg))

	// Current configuration is untouched after a rejected update
	assert.Equal(t, 1.0, cm.Snapshot().SamplingRate)
}
