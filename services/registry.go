package services

import (
	"strings"
	"sync"
	"time"

	"gorm.io/gorm"

	"drtguard/models"
	"drtguard/system"
)

// VectorRegistry is the in-memory index over active attack vectors, keyed by
// method for fast pre-filtering. Refreshed from the database on an interval
// and whenever the admin API mutates the vector table.
type VectorRegistry struct {
	db       *gorm.DB
	mu       sync.RWMutex
	byMethod map[string][]models.AttackVector
	total    int
	weights  SimilarityWeights

	refreshEvery time.Duration
	stopChan     chan struct{}
	stopOnce     sync.Once
}

// VectorMatch is the best-scoring active vector for a signature.
type VectorMatch struct {
	Vector models.AttackVector
	Score  float64
}

func NewVectorRegistry(db *gorm.DB, weights SimilarityWeights, refreshEvery time.Duration) *VectorRegistry {
	if refreshEvery <= 0 {
		refreshEvery = 5 * time.Minute
	}
	r := &VectorRegistry{
		db:           db,
		byMethod:     make(map[string][]models.AttackVector),
		weights:      weights,
		refreshEvery: refreshEvery,
		stopChan:     make(chan struct{}),
	}
	return r
}

// Start loads the registry and begins the periodic refresh loop.
func (r *VectorRegistry) Start() error {
	if err := r.Refresh(); err != nil {
		return err
	}
	go func() {
		ticker := time.NewTicker(r.refreshEvery)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopChan:
				return
			case <-ticker.C:
				if err := r.Refresh(); err != nil {
					system.Warn("Vector registry refresh failed: %v", err)
				}
			}
		}
	}()
	return nil
}

// Stop halts the refresh loop.
func (r *VectorRegistry) Stop() {
	r.stopOnce.Do(func() { close(r.stopChan) })
}

// Refresh reloads all active vectors from the database.
func (r *VectorRegistry) Refresh() error {
	var vectors []models.AttackVector
	if err := r.db.Where("active = ?", true).Find(&vectors).Error; err != nil {
		return err
	}

	byMethod := make(map[string][]models.AttackVector)
	for _, v := range vectors {
		method := strings.ToUpper(v.Method)
		byMethod[method] = append(byMethod[method], v)
	}

	r.mu.Lock()
	r.byMethod = byMethod
	r.total = len(vectors)
	r.mu.Unlock()
	return nil
}

// Match scans same-method vectors and returns the highest-scoring one, or nil
// when no active vector shares the method.
func (r *VectorRegistry) Match(sig *models.BehavioralSignature) *VectorMatch {
	r.mu.RLock()
	candidates := r.byMethod[sig.Method]
	r.mu.RUnlock()

	var best *VectorMatch
	for i := range candidates {
		vecSig := VectorAsSignature(&candidates[i])
		score := Similarity(sig, &vecSig, r.weights)
		if best == nil || score > best.Score {
			best = &VectorMatch{Vector: candidates[i], Score: score}
		}
	}
	return best
}

// Count returns the number of indexed active vectors.
func (r *VectorRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}

// RecordHit bumps hit statistics for a matched vector. Called off the request
// path by the persistence writer.
func (r *VectorRegistry) RecordHit(vectorID uint, at time.Time) error {
	return r.db.Model(&models.AttackVector{}).Where("id = ?", vectorID).
		Updates(map[string]interface{}{
			"hit_count": gorm.Expr("hit_count + 1"),
			"last_hit":  at,
		}).Error
}
