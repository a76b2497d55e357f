package models

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
	"sort"
	"strings"
)

// Path segments that carry identity rather than shape are collapsed to {ID}
// so /api/users/123 and /api/users/456 normalize to the same pattern.
var (
	numericSegment = regexp.MustCompile(`^\d+$`)
	uuidSegment    = regexp.MustCompile(`^[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}$`)
)

// Body pattern emitted when the request body cannot be parsed at all.
const BodyPatternUnparseable = "unparseable"

// NormalizePath replaces numeric and UUID path segments with {ID}. All other
// segments are kept literal and case-sensitive.
func NormalizePath(path string) string {
	if path == "" || path == "/" {
		return "/"
	}
	segments := strings.Split(path, "/")
	for i, seg := range segments {
		if seg == "" {
			continue
		}
		if numericSegment.MatchString(seg) || uuidSegment.MatchString(seg) {
			segments[i] = "{ID}"
		}
	}
	return strings.Join(segments, "/")
}

// HeaderSet reduces header names to a sorted, deduplicated, lowercased
// comma-separated set. Header values are never recorded.
func HeaderSet(names []string) string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

// SplitNameSet is the inverse of HeaderSet and QueryKeysPattern for
// similarity scoring.
func SplitNameSet(set string) []string {
	if set == "" {
		return nil
	}
	return strings.Split(set, ",")
}

// JSONKeysPattern hashes the sorted set of top-level JSON keys.
func JSONKeysPattern(keys []string) string {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)
	return "json:" + shortHash(strings.Join(sorted, ","))
}

// SizeBucket maps a non-JSON body to a coarse content-length bucket.
func SizeBucket(length int) string {
	switch {
	case length <= 0:
		return "size:0"
	case length < 1024:
		return "size:<1kb"
	case length < 10*1024:
		return "size:<10kb"
	default:
		return "size:>=10kb"
	}
}

// QueryKeysPattern reduces query parameter names to a sorted, deduplicated
// comma-separated set, mirroring HeaderSet. Parameter values are never
// recorded. Kept as names rather than a hash so similarity can overlap-score
// partial query matches; hashing happens once inside StructuralKey.
func QueryKeysPattern(keys []string) string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return strings.Join(out, ",")
}

// StructuralKey is the deterministic content hash over the structural tuple.
// It doubles as the BehavioralSignature primary key and the
// FalsePositivePattern key, so identical shapes always collapse together.
func StructuralKey(pathPattern, method, headers, bodyPattern, queryPattern string) string {
	sum := sha256.Sum256([]byte(pathPattern + "|" + method + "|" + headers + "|" + bodyPattern + "|" + queryPattern))
	return hex.EncodeToString(sum[:])
}

func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:8])
}

// StructuralKey returns the key for an attack vector's shape.
func (v *AttackVector) StructuralKey() string {
	return StructuralKey(v.PathPattern, v.Method, v.Headers, v.BodyPattern, v.QueryPattern)
}

// StructuralKey returns the key for a signature's shape. Identical to the
// signature ID by construction, kept as a method for symmetry with vectors.
func (s *BehavioralSignature) StructuralKey() string {
	return StructuralKey(s.PathPattern, s.Method, s.Headers, s.BodyPattern, s.QueryPattern)
}
