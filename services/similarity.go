package services

import (
	"fmt"
	"math"
	"strings"

	"drtguard/models"
)

// SimilarityWeights controls the contribution of each structural component.
// Weights must be non-negative and sum to 1.
type SimilarityWeights struct {
	Path    float64 `json:"path"`
	Method  float64 `json:"method"`
	Headers float64 `json:"headers"`
	Body    float64 `json:"body"`
	Query   float64 `json:"query"`
}

// DefaultSimilarityWeights returns the canonical weighting.
func DefaultSimilarityWeights() SimilarityWeights {
	return SimilarityWeights{
		Path:    0.30,
		Method:  0.25,
		Headers: 0.25,
		Body:    0.10,
		Query:   0.10,
	}
}

// Validate rejects weight sets that would make scores unbounded or undefined.
func (w SimilarityWeights) Validate() error {
	for name, v := range map[string]float64{
		"path": w.Path, "method": w.Method, "headers": w.Headers, "body": w.Body, "query": w.Query,
	} {
		if v < 0 {
			return fmt.Errorf("similarity weight %s is negative: %f", name, v)
		}
	}
	sum := w.Path + w.Method + w.Headers + w.Body + w.Query
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("similarity weights must sum to 1, got %f", sum)
	}
	return nil
}

// Similarity scores two signatures in [0,1]. Symmetric and reflexive:
// identical structural tuples always score 1.0.
func Similarity(a, b *models.BehavioralSignature, w SimilarityWeights) float64 {
	score := 0.0
	if a.Method == b.Method {
		score += w.Method
	}
	score += w.Path * pathSimilarity(a.PathPattern, b.PathPattern)
	score += w.Headers * jaccard(models.SplitNameSet(a.Headers), models.SplitNameSet(b.Headers))
	if a.BodyPattern == b.BodyPattern {
		score += w.Body
	}
	score += w.Query * jaccard(models.SplitNameSet(a.QueryPattern), models.SplitNameSet(b.QueryPattern))
	if score > 1 {
		score = 1
	}
	return score
}

// VectorAsSignature views an attack vector's structural fields as a signature
// so it can feed the same scoring function.
func VectorAsSignature(v *models.AttackVector) models.BehavioralSignature {
	return models.BehavioralSignature{
		PathPattern:  v.PathPattern,
		Method:       v.Method,
		Headers:      v.Headers,
		BodyPattern:  v.BodyPattern,
		QueryPattern: v.QueryPattern,
	}
}

// pathSimilarity is exact-match 1.0, else token overlap over /-split segments.
func pathSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	aTokens := splitPathTokens(a)
	bTokens := splitPathTokens(b)
	if len(aTokens) == 0 || len(bTokens) == 0 {
		return 0.0
	}
	set := make(map[string]struct{}, len(aTokens))
	for _, t := range aTokens {
		set[t] = struct{}{}
	}
	overlap := 0
	for _, t := range bTokens {
		if _, ok := set[t]; ok {
			overlap++
		}
	}
	longer := len(aTokens)
	if len(bTokens) > longer {
		longer = len(bTokens)
	}
	return float64(overlap) / float64(longer)
}

func splitPathTokens(path string) []string {
	var tokens []string
	for _, seg := range strings.Split(path, "/") {
		if seg != "" {
			tokens = append(tokens, seg)
		}
	}
	return tokens
}

// jaccard computes intersection over union for two name sets. Two empty sets
// are considered identical.
func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	if len(a) == 0 || len(b) == 0 {
		return 0.0
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	intersection := 0
	union := len(set)
	for _, s := range b {
		if _, ok := set[s]; ok {
			intersection++
		} else {
			union++
		}
	}
	return float64(intersection) / float64(union)
}
