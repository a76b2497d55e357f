package services

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gorm.io/gorm"

	"drtguard/models"
	"drtguard/system"
)

// ConfigManager owns the singleton runtime configuration. Reads are served
// from an in-memory snapshot; updates go through validation, are persisted,
// and swapped atomically so in-flight requests keep a consistent view.
type ConfigManager struct {
	db      *gorm.DB
	mu      sync.RWMutex
	current models.Configuration
	watcher *fsnotify.Watcher
}

// NewConfigManager loads the global row, creating it with defaults on first
// start. Invalid stored configuration is fatal to the caller: running with
// undefined thresholds is worse than not starting.
func NewConfigManager(db *gorm.DB) (*ConfigManager, error) {
	var cfg models.Configuration
	if err := db.First(&cfg, "id = ?", models.ConfigurationID).Error; err != nil {
		cfg = models.DefaultConfiguration()
		cfg.UpdatedAt = time.Now()
		if err := db.Create(&cfg).Error; err != nil {
			return nil, fmt.Errorf("failed to create default configuration: %w", err)
		}
	}
	if err := ValidateConfiguration(&cfg); err != nil {
		return nil, fmt.Errorf("stored configuration is invalid: %w", err)
	}
	return &ConfigManager{db: db, current: cfg}, nil
}

// ValidateConfiguration enforces the documented ranges for every tunable.
func ValidateConfiguration(cfg *models.Configuration) error {
	if cfg.SimilarityThreshold < 0 || cfg.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity_threshold must be in [0,1], got %f", cfg.SimilarityThreshold)
	}
	if cfg.RetentionHours <= 0 {
		return fmt.Errorf("retention_hours must be positive, got %d", cfg.RetentionHours)
	}
	if cfg.EscalationTimeoutMinutes <= 0 {
		return fmt.Errorf("escalation_timeout_minutes must be positive, got %d", cfg.EscalationTimeoutMinutes)
	}
	if cfg.RateLimitMultiplier <= 0 || cfg.RateLimitMultiplier > 1 {
		return fmt.Errorf("rate_limit_multiplier must be in (0,1], got %f", cfg.RateLimitMultiplier)
	}
	if cfg.SamplingRate < 0 || cfg.SamplingRate > 1 {
		return fmt.Errorf("sampling_rate must be in [0,1], got %f", cfg.SamplingRate)
	}
	return nil
}

// Snapshot returns a copy of the current configuration.
func (m *ConfigManager) Snapshot() models.Configuration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current
}

// Update validates, persists and applies a new configuration.
func (m *ConfigManager) Update(cfg models.Configuration) error {
	cfg.ID = models.ConfigurationID
	if err := ValidateConfiguration(&cfg); err != nil {
		return err
	}
	cfg.UpdatedAt = time.Now()
	if err := m.db.Save(&cfg).Error; err != nil {
		return fmt.Errorf("failed to persist configuration: %w", err)
	}
	m.mu.Lock()
	m.current = cfg
	m.mu.Unlock()
	system.Info("Configuration updated (enabled=%v threshold=%.2f sampling=%.2f)",
		cfg.Enabled, cfg.SimilarityThreshold, cfg.SamplingRate)
	return nil
}

// WatchOverrides hot-reloads configuration from a JSON file whenever it
// changes. The file holds a partial document: fields present override the
// current configuration, everything else is kept. Invalid overrides are
// logged and ignored, never applied.
func (m *ConfigManager) WatchOverrides(path string) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create config watcher: %w", err)
	}
	// Watch the directory: editors replace files on save, which drops
	// direct file watches.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch config directory: %w", err)
	}
	m.watcher = watcher

	if _, err := os.Stat(path); err == nil {
		m.applyOverrideFile(path)
	}

	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != path {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				m.applyOverrideFile(path)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				system.Warn("Config watcher error: %v", err)
			}
		}
	}()
	return nil
}

func (m *ConfigManager) applyOverrideFile(path string) {
	data, err := os.ReadFile(path)
	if err != nil {
		system.Warn("Failed to read config override %s: %v", path, err)
		return
	}

	cfg := m.Snapshot()
	if err := json.Unmarshal(data, &cfg); err != nil {
		system.Warn("Failed to parse config override %s: %v", path, err)
		return
	}
	if err := m.Update(cfg); err != nil {
		system.Warn("Rejected config override %s: %v", path, err)
		return
	}
	system.Info("Applied configuration override from %s", path)
}

// Close stops the override watcher if one is running.
func (m *ConfigManager) Close() {
	if m.watcher != nil {
		m.watcher.Close()
	}
}
