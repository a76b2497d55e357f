package services

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"drtguard/models"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.BehavioralSignature{},
		&models.AttackVector{},
		&models.Violation{},
		&models.EscalatedEndpoint{},
		&models.FalsePositive{},
		&models.FalsePositivePattern{},
		&models.Configuration{},
	))
	return db
}

func newTestConfig(t *testing.T, db *gorm.DB) *ConfigManager {
	t.Helper()
	cm, err := NewConfigManager(db)
	require.NoError(t, err)
	return cm
}

// newTestEscalations builds an escalation engine with a synchronous-enough
// persistence adapter backed by the test database.
func newTestEscalations(t *testing.T, db *gorm.DB) (*EscalationEngine, *PersistenceAdapter) {
	t.Helper()
	persistence := NewPersistenceAdapter(db, 0)
	t.Cleanup(func() { persistence.Stop(5 * time.Second) })
	engine := NewEscalationEngine(newTestConfig(t, db), persistence, nil)
	return engine, persistence
}

func testRequest(path, method string) *RequestInfo {
	return &RequestInfo{
		Path:        path,
		Method:      method,
		HeaderNames: []string{"Accept", "User-Agent"},
		ClientIP:    "203.0.113.10",
		UserAgent:   "test-agent",
	}
}

func testSignature(path, method string) models.BehavioralSignature {
	return Fingerprint(testRequest(path, method), 24, time.Now())
}
