package models

import (
	"time"
)

// Severity levels for attack vectors
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Escalation reasons
const (
	ReasonPatternMatch         = "pattern_match"
	ReasonBehavioralRepetition = "behavioral_repetition"
	ReasonManual               = "manual"
)

// Actions recorded on violations
const (
	ActionEscalate = "escalate"
	ActionBlock    = "block"
	ActionAlert    = "alert"
	ActionMonitor  = "monitor"
)

// ValidSeverity reports whether s is one of the four severity levels.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// BehavioralSignature is the canonical, value-agnostic shape of a request.
// ID is a content hash over the structural tuple, so identical shapes always
// collapse to one row.
type BehavioralSignature struct {
	ID             string    `gorm:"primaryKey" json:"id"`
	PathPattern    string    `gorm:"index:idx_drt_signatures_shape;not null" json:"path_pattern"`
	Method         string    `gorm:"index:idx_drt_signatures_shape;not null" json:"method"`
	Headers        string    `json:"headers"`       // Sorted, deduplicated header names (comma-separated)
	BodyPattern    string    `json:"body_pattern"`  // JSON key-set hash or size bucket
	QueryPattern   string    `json:"query_pattern"` // Sorted, deduplicated query-key names (comma-separated)
	RequestCount   int64     `gorm:"default:1" json:"request_count"`
	FirstSeen      time.Time `json:"first_seen"`
	LastSeen       time.Time `gorm:"index" json:"last_seen"`
	RetentionHours int       `gorm:"default:24" json:"retention_hours"`
}

func (BehavioralSignature) TableName() string { return "drt_behavioral_signatures" }

// AttackVector is a curated known-malicious request shape with a severity rating.
// Mutated only through the admin API, never at request rate.
type AttackVector struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	PathPattern  string     `gorm:"index:idx_drt_vectors_shape;not null" json:"path_pattern"`
	Method       string     `gorm:"index:idx_drt_vectors_shape;not null" json:"method"`
	Headers      string     `json:"headers"`
	BodyPattern  string     `json:"body_pattern"`
	QueryPattern string     `json:"query_pattern"`
	Severity     string     `gorm:"default:'medium'" json:"severity"` // low, medium, high, critical
	Description  string     `json:"description"`
	Active       bool       `json:"active"`
	IsBuiltin    bool       `gorm:"default:false" json:"is_builtin"` // True for seeded vectors
	HitCount     int64      `gorm:"default:0" json:"hit_count"`
	LastHit      *time.Time `json:"last_hit,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (AttackVector) TableName() string { return "drt_attack_vectors" }

// Violation is the audit record for a single detection, blocked or not.
// AttackVectorID is nullable: behavioral-repetition detections have no matched vector.
type Violation struct {
	ID              string    `gorm:"primaryKey" json:"id"`
	SignatureID     string    `gorm:"index" json:"signature_id"`
	AttackVectorID  *uint     `json:"attack_vector_id,omitempty"`
	SimilarityScore float64   `json:"similarity_score"`
	RequestPath     string    `gorm:"index:idx_drt_violations_shape" json:"request_path"`
	RequestMethod   string    `gorm:"index:idx_drt_violations_shape" json:"request_method"`
	ClientIP        string    `gorm:"index" json:"client_ip"`
	CountryCode     string    `json:"country_code"`
	UserAgent       string    `json:"user_agent"`
	WasBlocked      bool      `gorm:"default:false" json:"was_blocked"`
	ActionTaken     string    `json:"action_taken"` // escalate, block, alert, monitor
	ResponseStatus  int       `json:"response_status"`
	LatencyMS       int64     `json:"latency_ms"`
	Timestamp       time.Time `gorm:"index" json:"timestamp"`
}

func (Violation) TableName() string { return "drt_violations" }

// EscalatedEndpoint is the time-boxed protective state for one endpoint path.
// At most one row per path; renewals bump EscalationCount and push ExpiresAt
// forward. Only the cleanup scheduler flips IsActive false after expiry.
type EscalatedEndpoint struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	Path                  string    `gorm:"unique;not null" json:"path"`
	EscalationReason      string    `json:"escalation_reason"` // pattern_match, behavioral_repetition, manual
	SimilarityScore       float64   `json:"similarity_score"`
	MatchedAttackVectorID *uint     `json:"matched_attack_vector_id,omitempty"`
	Severity              string    `gorm:"default:'medium'" json:"severity"`
	EscalationCount       int       `gorm:"default:1" json:"escalation_count"`
	FirstEscalatedAt      time.Time `json:"first_escalated_at"`
	ExpiresAt             time.Time `gorm:"index" json:"expires_at"`
	IsActive              bool      `gorm:"index" json:"is_active"`
	AlertSent             bool      `gorm:"default:false" json:"alert_sent"`
}

func (EscalatedEndpoint) TableName() string { return "drt_escalated_endpoints" }

// FalsePositive is a single analyst correction against a violation.
type FalsePositive struct {
	ID          string    `gorm:"primaryKey" json:"id"`
	ViolationID string    `gorm:"index;not null" json:"violation_id"`
	MarkedBy    string    `json:"marked_by"`
	Reason      string    `json:"reason"`
	Confidence  float64   `json:"confidence"` // [0,1]
	CreatedAt   time.Time `json:"created_at"`
}

func (FalsePositive) TableName() string { return "drt_false_positives" }

// FalsePositivePattern aggregates corrections per structural shape. Once the
// rate exceeds the deactivation threshold with enough samples, Active flips
// false and auto-escalation is suppressed for this exact shape only.
type FalsePositivePattern struct {
	ID                 uint      `gorm:"primaryKey" json:"id"`
	PatternKey         string    `gorm:"unique;not null" json:"pattern_key"`
	PathPattern        string    `gorm:"index:idx_drt_fp_patterns_shape" json:"path_pattern"`
	Method             string    `gorm:"index:idx_drt_fp_patterns_shape" json:"method"`
	Headers            string    `json:"headers"`
	BodyPattern        string    `json:"body_pattern"`
	QueryPattern       string    `json:"query_pattern"`
	FalsePositiveCount int64     `gorm:"default:0" json:"false_positive_count"`
	TotalViolations    int64     `gorm:"default:0" json:"total_violations"`
	FalsePositiveRate  float64   `gorm:"default:0" json:"false_positive_rate"`
	Active             bool      `json:"active"`
	UpdatedAt          time.Time `json:"updated_at"`
}

func (FalsePositivePattern) TableName() string { return "drt_false_positive_patterns" }

// ConfigurationID is the primary key of the single configuration row.
const ConfigurationID = "global"

// Configuration is the singleton runtime configuration row (ID = "global").
// All fields are hot-reloadable through the admin API or the JSON override file.
type Configuration struct {
	ID                       string    `gorm:"primaryKey" json:"id"`
	Enabled                  bool      `json:"enabled"`
	SimilarityThreshold      float64   `gorm:"default:0.8" json:"similarity_threshold"`
	RetentionHours           int       `gorm:"default:24" json:"retention_hours"`
	WebsocketOverhead        bool      `gorm:"default:false" json:"websocket_overhead"`
	AutoEscalate             bool      `json:"auto_escalate"`
	EscalationTimeoutMinutes int       `gorm:"default:60" json:"escalation_timeout_minutes"`
	RateLimitMultiplier      float64   `gorm:"default:0.5" json:"rate_limit_multiplier"`
	SamplingRate             float64   `gorm:"default:1.0" json:"sampling_rate"`
	AlertOnEscalation        bool      `json:"alert_on_escalation"`
	FailClosed               bool      `gorm:"default:false" json:"fail_closed"`
	WebhookURL               string    `json:"webhook_url,omitempty"`
	UpdatedAt                time.Time `json:"updated_at"`
}

func (Configuration) TableName() string { return "drt_configuration" }

// DefaultConfiguration returns the configuration created on first start.
func DefaultConfiguration() Configuration {
	return Configuration{
		ID:                       ConfigurationID,
		Enabled:                  true,
		SimilarityThreshold:      0.8,
		RetentionHours:           24,
		WebsocketOverhead:        false,
		AutoEscalate:             true,
		EscalationTimeoutMinutes: 60,
		RateLimitMultiplier:      0.5,
		SamplingRate:             1.0,
		AlertOnEscalation:        true,
		FailClosed:               false,
	}
}
