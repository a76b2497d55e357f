package services

import (
	"sync"
	"time"

	"drtguard/models"
)

// Near-identical bar for repetition detection, stricter than the global
// similarity threshold on purpose.
const repetitionSimilarityBar = 0.95

// Observation is one recorded request shape for an endpoint.
type Observation struct {
	Signature models.BehavioralSignature
	ClientIP  string
	Seen      time.Time
}

// BehavioralHistory keeps a retention-windowed log of signatures per endpoint
// path. It feeds both vector matching context and the repetition-based
// anomaly check. In-memory state is authoritative at request time; the
// persistence adapter mirrors it asynchronously.
type BehavioralHistory struct {
	mu         sync.RWMutex
	byPath     map[string][]Observation
	maxPerPath int
	weights    SimilarityWeights
}

func NewBehavioralHistory(weights SimilarityWeights, maxPerPath int) *BehavioralHistory {
	if maxPerPath <= 0 {
		maxPerPath = 512
	}
	return &BehavioralHistory{
		byPath:     make(map[string][]Observation),
		maxPerPath: maxPerPath,
		weights:    weights,
	}
}

// Record appends one observation for the endpoint path.
func (h *BehavioralHistory) Record(path string, sig models.BehavioralSignature, clientIP string, now time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()

	obs := append(h.byPath[path], Observation{Signature: sig, ClientIP: clientIP, Seen: now})
	if len(obs) > h.maxPerPath {
		obs = obs[len(obs)-h.maxPerPath:]
	}
	h.byPath[path] = obs
}

// Recent returns observations for the path within the window, newest last.
func (h *BehavioralHistory) Recent(path string, window time.Duration, now time.Time) []Observation {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cutoff := now.Add(-window)
	var out []Observation
	for _, obs := range h.byPath[path] {
		if obs.Seen.After(cutoff) {
			out = append(out, obs)
		}
	}
	return out
}

// IsRepeating reports whether the signature has been observed near-identically
// from at least minRepeats distinct client IPs within the window. Distinct IPs
// separate scripted repetition from one legitimate heavy client.
func (h *BehavioralHistory) IsRepeating(path string, sig *models.BehavioralSignature, minRepeats int, window time.Duration, now time.Time) bool {
	if minRepeats <= 0 {
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	cutoff := now.Add(-window)
	ips := make(map[string]struct{})
	for i := range h.byPath[path] {
		obs := &h.byPath[path][i]
		if !obs.Seen.After(cutoff) {
			continue
		}
		if Similarity(sig, &obs.Signature, h.weights) < repetitionSimilarityBar {
			continue
		}
		ips[obs.ClientIP] = struct{}{}
		if len(ips) >= minRepeats {
			return true
		}
	}
	return false
}

// TotalObservations counts all retained observations across paths.
func (h *BehavioralHistory) TotalObservations() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, obs := range h.byPath {
		total += len(obs)
	}
	return total
}

// Evict drops observations older than the retention window. Called only by
// the cleanup scheduler, which serializes with writers through the same lock.
func (h *BehavioralHistory) Evict(retention time.Duration, now time.Time) int {
	h.mu.Lock()
	defer h.mu.Unlock()

	cutoff := now.Add(-retention)
	evicted := 0
	for path, obs := range h.byPath {
		idx := 0
		for idx < len(obs) && !obs[idx].Seen.After(cutoff) {
			idx++
		}
		if idx == 0 {
			continue
		}
		evicted += idx
		if idx == len(obs) {
			delete(h.byPath, path)
		} else {
			h.byPath[path] = obs[idx:]
		}
	}
	return evicted
}
