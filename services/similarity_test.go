package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"drtguard/models"
)

func TestSimilarityReflexive(t *testing.T) {
	w := DefaultSimilarityWeights()
	sig := testSignature("/api/users/1", "GET")
	assert.InDelta(t, 1.0, Similarity(&sig, &sig, w), 1e-9)
}

func TestSimilaritySymmetric(t *testing.T) {
	w := DefaultSimilarityWeights()
	a := testSignature("/api/users/1", "GET")
	b := testSignature("/api/users/1/orders", "POST")
	assert.InDelta(t, Similarity(&a, &b, w), Similarity(&b, &a, w), 1e-9)
}

func TestSimilarityComponentWeights(t *testing.T) {
	w := DefaultSimilarityWeights()
	a := testSignature("/api/users/1", "GET")

	// Only the method differs: lose exactly the method weight
	b := a
	b.Method = "DELETE"
	assert.InDelta(t, 1.0-w.Method, Similarity(&a, &b, w), 1e-9)

	// Only the body pattern differs
	c := a
	c.BodyPattern = models.JSONKeysPattern([]string{"x"})
	assert.InDelta(t, 1.0-w.Body, Similarity(&a, &c, w), 1e-9)

	// Only the query pattern differs
	d := a
	d.QueryPattern = models.QueryKeysPattern([]string{"page"})
	assert.InDelta(t, 1.0-w.Query, Similarity(&a, &d, w), 1e-9)
}

func TestSimilarityPathTokenOverlap(t *testing.T) {
	w := SimilarityWeights{Path: 1.0}
	a := testSignature("/api/users/{ID}", "GET")
	b := a
	b.PathPattern = "/api/users/{ID}/orders"

	// 3 shared tokens over the longer path's 4
	assert.InDelta(t, 0.75, Similarity(&a, &b, w), 1e-9)

	c := a
	c.PathPattern = "/health"
	assert.InDelta(t, 0.0, Similarity(&a, &c, w), 1e-9)
}

func TestSimilarityHeaderJaccard(t *testing.T) {
	w := SimilarityWeights{Headers: 1.0}
	a := testSignature("/api/x", "GET")
	a.Headers = models.HeaderSet([]string{"accept", "content-type", "user-agent"})
	b := a
	b.Headers = models.HeaderSet([]string{"accept", "content-type"})

	// Intersection 2, union 3
	assert.InDelta(t, 2.0/3.0, Similarity(&a, &b, w), 1e-9)

	// Two empty sets count as identical
	a.Headers = ""
	b.Headers = ""
	assert.InDelta(t, 1.0, Similarity(&a, &b, w), 1e-9)
}

func TestSimilarityQueryJaccard(t *testing.T) {
	w := SimilarityWeights{Query: 1.0}
	a := testSignature("/api/export", "GET")
	a.QueryPattern = models.QueryKeysPattern([]string{"format", "limit", "offset"})

	// Intersection 2, union 3
	b := a
	b.QueryPattern = models.QueryKeysPattern([]string{"format", "limit"})
	assert.InDelta(t, 2.0/3.0, Similarity(&a, &b, w), 1e-9)

	// Disjoint sets score zero, strictly below a partial overlap
	c := a
	c.QueryPattern = models.QueryKeysPattern([]string{"page", "sort", "filter"})
	assert.InDelta(t, 0.0, Similarity(&a, &c, w), 1e-9)

	full := DefaultSimilarityWeights()
	assert.Greater(t, Similarity(&a, &b, full), Similarity(&a, &c, full))

	// Two empty sets count as identical
	a.QueryPattern = ""
	b.QueryPattern = ""
	assert.InDelta(t, 1.0, Similarity(&a, &b, w), 1e-9)
}

func TestSimilarityWeightsValidate(t *testing.T) {
	assert.NoError(t, DefaultSimilarityWeights().Validate())

	bad := SimilarityWeights{Path: 0.5, Method: 0.5, Headers: 0.5}
	assert.Error(t, bad.Validate())

	negative := SimilarityWeights{Path: -0.1, Method: 0.5, Headers: 0.3, Body: 0.2, Query: 0.1}
	assert.Error(t, negative.Validate())
}

func TestVectorAsSignature(t *testing.T) {
	v := models.AttackVector{
		PathPattern: "/api/auth/login", Method: "POST",
		Headers: "content-type", BodyPattern: "json:x", QueryPattern: "format,limit",
	}
	sig := VectorAsSignature(&v)
	assert.Equal(t, v.PathPattern, sig.PathPattern)
	assert.Equal(t, v.StructuralKey(), sig.StructuralKey())
}
