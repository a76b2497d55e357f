package services

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"drtguard/models"
	"drtguard/system"
)

// Defaults for pattern deactivation: a shape is only suppressed once more
// than half of a meaningful sample has been marked benign.
const (
	DefaultDeactivationThreshold = 0.5
	DefaultMinimumSampleSize     = 5
)

var ErrViolationNotFound = errors.New("violation not found")

// FeedbackStore aggregates analyst corrections into per-shape suppression
// patterns. Suppression is scoped to the exact structural shape, never to the
// endpoint path as a whole: a different attack shape on the same path still
// escalates.
type FeedbackStore struct {
	db *gorm.DB

	deactivationThreshold float64
	minimumSampleSize     int64

	mu         sync.RWMutex
	suppressed map[string]struct{} // structural keys with active = false
}

func NewFeedbackStore(db *gorm.DB) *FeedbackStore {
	return &FeedbackStore{
		db:                    db,
		deactivationThreshold: DefaultDeactivationThreshold,
		minimumSampleSize:     DefaultMinimumSampleSize,
		suppressed:            make(map[string]struct{}),
	}
}

// Refresh reloads the suppressed-shape set from the database.
func (f *FeedbackStore) Refresh() error {
	var patterns []models.FalsePositivePattern
	if err := f.db.Where("active = ?", false).Find(&patterns).Error; err != nil {
		return err
	}
	suppressed := make(map[string]struct{}, len(patterns))
	for i := range patterns {
		suppressed[patterns[i].PatternKey] = struct{}{}
	}
	f.mu.Lock()
	f.suppressed = suppressed
	f.mu.Unlock()
	return nil
}

// IsSuppressed reports whether auto-escalation is suppressed for the shape.
// Served from memory; the request path never touches the database here.
func (f *FeedbackStore) IsSuppressed(structuralKey string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.suppressed[structuralKey]
	return ok
}

// SuppressedCount counts shapes currently under suppression.
func (f *FeedbackStore) SuppressedCount() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.suppressed)
}

// MarkFalsePositive records an analyst correction and updates the aggregated
// pattern for the violation's structural shape. Runs on the admin path, so
// synchronous database access is acceptable here.
func (f *FeedbackStore) MarkFalsePositive(violationID, markedBy, reason string, confidence float64) (*models.FalsePositivePattern, error) {
	if confidence < 0 || confidence > 1 {
		return nil, fmt.Errorf("confidence must be in [0,1], got %f", confidence)
	}

	var violation models.Violation
	if err := f.db.First(&violation, "id = ?", violationID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrViolationNotFound
		}
		return nil, fmt.Errorf("failed to load violation: %w", err)
	}

	var signature models.BehavioralSignature
	if err := f.db.First(&signature, "id = ?", violation.SignatureID).Error; err != nil {
		return nil, fmt.Errorf("failed to load signature for violation: %w", err)
	}

	fp := models.FalsePositive{
		ID:          uuid.NewString(),
		ViolationID: violationID,
		MarkedBy:    markedBy,
		Reason:      reason,
		Confidence:  confidence,
		CreatedAt:   time.Now(),
	}
	if err := f.db.Create(&fp).Error; err != nil {
		return nil, fmt.Errorf("failed to record false positive: %w", err)
	}

	pattern, err := f.upsertPattern(&signature)
	if err != nil {
		return nil, err
	}
	return pattern, nil
}

func (f *FeedbackStore) upsertPattern(sig *models.BehavioralSignature) (*models.FalsePositivePattern, error) {
	key := sig.StructuralKey()

	var pattern models.FalsePositivePattern
	err := f.db.First(&pattern, "pattern_key = ?", key).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		pattern = models.FalsePositivePattern{
			PatternKey:   key,
			PathPattern:  sig.PathPattern,
			Method:       sig.Method,
			Headers:      sig.Headers,
			BodyPattern:  sig.BodyPattern,
			QueryPattern: sig.QueryPattern,
			Active:       true,
		}
	} else if err != nil {
		return nil, fmt.Errorf("failed to load pattern: %w", err)
	}

	pattern.FalsePositiveCount++
	if err := f.recompute(&pattern, sig.ID); err != nil {
		return nil, err
	}
	return &pattern, nil
}

// recompute refreshes the violation total and rate for a pattern, flips its
// active flag against the deactivation threshold, saves it and updates the
// in-memory suppression set. The invariant rate = count/total holds after
// every update.
func (f *FeedbackStore) recompute(pattern *models.FalsePositivePattern, signatureID string) error {
	var total int64
	if err := f.db.Model(&models.Violation{}).Where("signature_id = ?", signatureID).Count(&total).Error; err != nil {
		return fmt.Errorf("failed to count violations: %w", err)
	}
	if total < pattern.FalsePositiveCount {
		total = pattern.FalsePositiveCount
	}
	pattern.TotalViolations = total
	if total > 0 {
		pattern.FalsePositiveRate = float64(pattern.FalsePositiveCount) / float64(total)
	} else {
		pattern.FalsePositiveRate = 0
	}

	wasActive := pattern.Active
	pattern.Active = !(pattern.FalsePositiveRate > f.deactivationThreshold &&
		pattern.TotalViolations >= f.minimumSampleSize)
	pattern.UpdatedAt = time.Now()

	if err := f.db.Save(pattern).Error; err != nil {
		return fmt.Errorf("failed to save pattern: %w", err)
	}

	f.mu.Lock()
	if pattern.Active {
		delete(f.suppressed, pattern.PatternKey)
	} else {
		f.suppressed[pattern.PatternKey] = struct{}{}
	}
	f.mu.Unlock()

	if wasActive && !pattern.Active {
		system.Info("Pattern suppressed after false-positive feedback: %s %s (rate=%.2f over %d)",
			pattern.Method, pattern.PathPattern, pattern.FalsePositiveRate, pattern.TotalViolations)
	}
	return nil
}

// Reevaluate recomputes rates for every pattern against the current violation
// counts. Called by the cleanup scheduler; shapes whose rate fell back under
// the threshold as violations accrued become active again.
func (f *FeedbackStore) Reevaluate() error {
	var patterns []models.FalsePositivePattern
	if err := f.db.Find(&patterns).Error; err != nil {
		return err
	}
	for i := range patterns {
		// The pattern key and the signature id are the same content hash.
		if err := f.recompute(&patterns[i], patterns[i].PatternKey); err != nil {
			system.Warn("Failed to re-evaluate pattern %d: %v", patterns[i].ID, err)
		}
	}
	return nil
}
