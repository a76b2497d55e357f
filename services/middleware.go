package services

import (
	"math/rand"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"drtguard/models"
	"drtguard/system"
)

// Behavioral repetition defaults: the same shape from this many distinct
// client IPs inside the window counts as scripted repetition.
const (
	defaultMinRepeats       = 5
	defaultRepetitionWindow = 10 * time.Minute
)

// Decision is the outcome of the pre-handler hook for a single request.
type Decision struct {
	Blocked     bool
	BlockStatus int
	Measures    *ProtectiveMeasures

	violation *models.Violation
}

// DRTEngine orchestrates the full detection path: fingerprint, history,
// vector matching, suppression, escalation and audit. It exposes a
// synchronous pre/post hook pair; the fiber adapter wraps both around the
// protected handler. All I/O behind the hooks is asynchronous.
type DRTEngine struct {
	config      *ConfigManager
	registry    *VectorRegistry
	history     *BehavioralHistory
	escalations *EscalationEngine
	feedback    *FeedbackStore
	persistence *PersistenceAdapter
	geoip       *GeoIPService

	minRepeats       int
	repetitionWindow time.Duration

	sampledOut     atomic.Int64
	detectionFails atomic.Int64
}

func NewDRTEngine(config *ConfigManager, registry *VectorRegistry, history *BehavioralHistory,
	escalations *EscalationEngine, feedback *FeedbackStore, persistence *PersistenceAdapter,
	geoip *GeoIPService) *DRTEngine {
	return &DRTEngine{
		config:           config,
		registry:         registry,
		history:          history,
		escalations:      escalations,
		feedback:         feedback,
		persistence:      persistence,
		geoip:            geoip,
		minRepeats:       defaultMinRepeats,
		repetitionWindow: defaultRepetitionWindow,
	}
}

// PreHandle runs detection for one request. A nil decision means proceed
// untouched: protection disabled, request sampled out, or nothing detected
// on an endpoint that is not escalated.
func (e *DRTEngine) PreHandle(req *RequestInfo, now time.Time) *Decision {
	cfg := e.config.Snapshot()
	if !cfg.Enabled {
		return nil
	}

	// Per-request probabilistic sampling bounds detection overhead under
	// load. Sampled-out requests only touch one counter.
	if cfg.SamplingRate < 1.0 && rand.Float64() >= cfg.SamplingRate {
		e.sampledOut.Add(1)
		return nil
	}

	e.escalations.RecordRequest()

	if cfg.FailClosed && !e.persistence.Healthy() {
		// Fail-closed deployments reject traffic while the audit trail
		// is unavailable.
		return &Decision{Blocked: true, BlockStatus: fiber.StatusServiceUnavailable}
	}

	decision := e.detect(req, &cfg, now)
	if decision == nil {
		decision = &Decision{}
	}

	if decision.Measures == nil {
		pathPattern := models.NormalizePath(req.Path)
		decision.Measures = e.escalations.MeasuresFor(pathPattern, now)
	}
	if decision.Measures != nil && decision.Measures.IsolationLevel == IsolationFull && decision.Measures.CircuitBreakerEnabled {
		decision.Blocked = true
		decision.BlockStatus = fiber.StatusServiceUnavailable
		if decision.violation != nil {
			decision.violation.WasBlocked = true
			decision.violation.ActionTaken = models.ActionBlock
		}
	}
	if decision.Blocked || decision.Measures != nil || decision.violation != nil {
		return decision
	}
	return nil
}

// detect runs the matching pipeline. It fails open: any internal panic is
// logged and treated as no match, never propagated into the request.
func (e *DRTEngine) detect(req *RequestInfo, cfg *models.Configuration, now time.Time) (decision *Decision) {
	defer func() {
		if r := recover(); r != nil {
			e.detectionFails.Add(1)
			system.Error("Detection pipeline failure, failing open: %v", r)
			decision = nil
		}
	}()

	sig := Fingerprint(req, cfg.RetentionHours, now)
	e.history.Record(sig.PathPattern, sig, req.ClientIP, now)
	e.persistence.UpsertSignature(sig)

	match := e.registry.Match(&sig)
	if match != nil && match.Score >= cfg.SimilarityThreshold {
		return e.onDetection(req, &sig, match, models.ReasonPatternMatch, match.Score, cfg, now)
	}

	if cfg.AutoEscalate && e.history.IsRepeating(sig.PathPattern, &sig, e.minRepeats, e.repetitionWindow, now) {
		return e.onDetection(req, &sig, nil, models.ReasonBehavioralRepetition, repetitionSimilarityBar, cfg, now)
	}

	return nil
}

// onDetection records the violation and escalates unless the exact structural
// shape has been suppressed by false-positive feedback.
func (e *DRTEngine) onDetection(req *RequestInfo, sig *models.BehavioralSignature, match *VectorMatch,
	reason string, score float64, cfg *models.Configuration, now time.Time) *Decision {

	var vectorID *uint
	severity := models.SeverityMedium
	if match != nil {
		id := match.Vector.ID
		vectorID = &id
		severity = match.Vector.Severity
		e.persistence.RecordVectorHit(id, now)
	}

	violation := &models.Violation{
		ID:              uuid.NewString(),
		SignatureID:     sig.ID,
		AttackVectorID:  vectorID,
		SimilarityScore: score,
		RequestPath:     req.Path,
		RequestMethod:   sig.Method,
		ClientIP:        req.ClientIP,
		CountryCode:     e.geoip.Country(req.ClientIP),
		UserAgent:       req.UserAgent,
		ActionTaken:     models.ActionEscalate,
		Timestamp:       now,
	}

	if e.feedback.IsSuppressed(sig.ID) {
		// Suppressed shapes are still audited, just never escalated.
		violation.ActionTaken = models.ActionMonitor
		return &Decision{violation: violation}
	}

	e.escalations.Trigger(sig.PathPattern, reason, score, vectorID, severity, now)

	measures := DeriveMeasures(severity, cfg)
	return &Decision{Measures: &measures, violation: violation}
}

// PostHandle completes the audit record with the response outcome and hands
// it to the persistence writer. Safe to call with a nil decision.
func (e *DRTEngine) PostHandle(d *Decision, status int, latency time.Duration) {
	if d == nil || d.violation == nil {
		return
	}
	d.violation.ResponseStatus = status
	d.violation.LatencyMS = latency.Milliseconds()
	e.persistence.SaveViolation(*d.violation)
}

// SampledOut returns how many requests skipped full analysis.
func (e *DRTEngine) SampledOut() int64 { return e.sampledOut.Load() }

// DetectionFailures returns how many detection passes failed open.
func (e *DRTEngine) DetectionFailures() int64 { return e.detectionFails.Load() }

// Middleware adapts the pre/post hooks onto the fiber pipeline.
func (e *DRTEngine) Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		req := requestInfoFromCtx(c)
		start := time.Now()

		decision := e.PreHandle(req, start)
		if decision == nil {
			return c.Next()
		}

		if decision.Blocked {
			status := decision.BlockStatus
			if status == 0 {
				status = fiber.StatusServiceUnavailable
			}
			e.PostHandle(decision, status, time.Since(start))
			return c.Status(status).JSON(fiber.Map{
				"error": "endpoint temporarily hardened",
				"type":  "drt_isolation",
			})
		}

		if m := decision.Measures; m != nil {
			// Directives for the downstream rate limiter and pipeline.
			c.Set("X-DRT-Rate-Limit-Multiplier", strconv.FormatFloat(m.RateLimitMultiplier, 'f', 2, 64))
			c.Set("X-DRT-Isolation-Level", m.IsolationLevel)
			if m.CircuitBreakerEnabled {
				c.Set("X-DRT-Circuit-Breaker", "on")
			}
			c.Locals("drt.measures", m)
		}

		err := c.Next()
		e.PostHandle(decision, c.Response().StatusCode(), time.Since(start))
		return err
	}
}

// requestInfoFromCtx copies the request metadata the engine needs. Header and
// query values stay on the request; only names are taken.
func requestInfoFromCtx(c *fiber.Ctx) *RequestInfo {
	var headerNames []string
	for name := range c.GetReqHeaders() {
		headerNames = append(headerNames, name)
	}

	var queryKeys []string
	c.Context().QueryArgs().VisitAll(func(key, _ []byte) {
		queryKeys = append(queryKeys, string(key))
	})

	return &RequestInfo{
		Path:        c.Path(),
		Method:      c.Method(),
		HeaderNames: headerNames,
		ContentType: c.Get(fiber.HeaderContentType),
		Body:        c.Body(),
		QueryKeys:   queryKeys,
		ClientIP:    clientIP(c),
		UserAgent:   c.Get(fiber.HeaderUserAgent),
	}
}

// clientIP resolves the originating client through common proxy headers.
func clientIP(c *fiber.Ctx) string {
	if ip := c.Get("X-Real-IP"); ip != "" {
		return ip
	}
	if ip := c.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	return c.IP()
}
