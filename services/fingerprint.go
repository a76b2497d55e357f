package services

import (
	"encoding/json"
	"strings"
	"time"

	"drtguard/models"
)

// RequestInfo is the raw request metadata handed to the detection path by the
// middleware adapter. Header and query values are never captured, only names.
type RequestInfo struct {
	Path        string
	Method      string
	HeaderNames []string
	ContentType string
	Body        []byte
	QueryKeys   []string
	ClientIP    string
	UserAgent   string
}

// Fingerprint reduces a request to its canonical behavioral signature. It is
// pure and never fails: anything that cannot be parsed degrades to the
// coarsest available bucket instead of returning an error.
func Fingerprint(req *RequestInfo, retentionHours int, now time.Time) models.BehavioralSignature {
	sig := models.BehavioralSignature{
		PathPattern:    models.NormalizePath(req.Path),
		Method:         strings.ToUpper(req.Method),
		Headers:        models.HeaderSet(req.HeaderNames),
		BodyPattern:    bodyPattern(req.ContentType, req.Body),
		QueryPattern:   models.QueryKeysPattern(req.QueryKeys),
		RequestCount:   1,
		FirstSeen:      now,
		LastSeen:       now,
		RetentionHours: retentionHours,
	}
	sig.ID = sig.StructuralKey()
	return sig
}

// bodyPattern buckets the request body by shape. JSON objects hash their
// sorted top-level key set; everything else falls back to a size bucket.
func bodyPattern(contentType string, body []byte) string {
	if len(body) == 0 {
		return models.SizeBucket(0)
	}
	if !strings.Contains(strings.ToLower(contentType), "json") {
		return models.SizeBucket(len(body))
	}

	var parsed map[string]json.RawMessage
	if err := json.Unmarshal(body, &parsed); err != nil {
		// Valid JSON that is not an object (array, scalar) still has a
		// stable coarse shape; broken JSON does not.
		if json.Valid(body) {
			return "json:nonobject"
		}
		return models.BodyPatternUnparseable
	}

	keys := make([]string, 0, len(parsed))
	for k := range parsed {
		keys = append(keys, k)
	}
	return models.JSONKeysPattern(keys)
}
