// Package orchestrator drives one request through the pipeline: understand,
// plan, validate, execute, and correct within a bounded retry budget. The
// state machine is Planning, Validating, Executing, then Succeeded, or
// Correcting back to Planning, or Failed. Every terminal outcome carries
// the full attempt trail.
package orchestrator

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/manideep395/QueryPilot-AI/pkg/access"
	"github.com/manideep395/QueryPilot-AI/pkg/audit"
	"github.com/manideep395/QueryPilot-AI/pkg/cache"
	"github.com/manideep395/QueryPilot-AI/pkg/catalog"
	pkgerrors "github.com/manideep395/QueryPilot-AI/pkg/errors"
	"github.com/manideep395/QueryPilot-AI/pkg/executor"
	"github.com/manideep395/QueryPilot-AI/pkg/intent"
	"github.com/manideep395/QueryPilot-AI/pkg/metrics"
	"github.com/manideep395/QueryPilot-AI/pkg/models"
	"github.com/manideep395/QueryPilot-AI/pkg/planner"
	"github.com/manideep395/QueryPilot-AI/pkg/validator"
)

// Correction strategy names, applied in this priority order and each at
// most once per request.
const (
	StrategyFuzzyNarrow   = "fuzzy-narrow"
	StrategyDropPredicate = "drop-unknown-predicates"
	StrategyAlternateJoin = "alternate-join-path"
)

// Config parameterizes the correction loop.
type Config struct {
	// MaxAttempts bounds plan-validate-execute cycles per request.
	MaxAttempts int
	// ConfidenceFloor short-circuits to clarification below this intent
	// confidence, before any planning.
	ConfidenceFloor float64
	// PredicateDropThreshold gates the predicate-dropping correction:
	// predicates are discarded only when intent confidence is below it.
	PredicateDropThreshold float64
	// CorrectionFuzzyDistance bounds entity narrowing during correction.
	// Wider than the planner's own resolution bound so correction can reach
	// names the first pass could not.
	CorrectionFuzzyDistance int
	// CacheTTL applies to results stored after successful execution.
	CacheTTL time.Duration
}

// Orchestrator wires the pipeline capabilities together. One instance
// serves many concurrent requests; each request runs on its caller's
// goroutine.
type Orchestrator struct {
	cfg       Config
	provider  intent.Provider
	catalog   *catalog.Catalog
	gate      *access.Gate
	planner   *planner.Planner
	validator *validator.Validator
	executor  *executor.Executor
	cache     *cache.Cache
	sink      audit.Sink
	collector metrics.Collector
	logger    zerolog.Logger
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Provider  intent.Provider
	Catalog   *catalog.Catalog
	Gate      *access.Gate
	Planner   *planner.Planner
	Validator *validator.Validator
	Executor  *executor.Executor
	Cache     *cache.Cache
	Sink      audit.Sink
	Collector metrics.Collector
	Logger    zerolog.Logger
}

// New creates an orchestrator. Nil sink and collector default to no-ops.
func New(cfg Config, deps Deps) *Orchestrator {
	if deps.Sink == nil {
		deps.Sink = audit.NewNoOpSink()
	}
	if deps.Collector == nil {
		deps.Collector = metrics.NewNoOpCollector()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	return &Orchestrator{
		cfg:       cfg,
		provider:  deps.Provider,
		catalog:   deps.Catalog,
		gate:      deps.Gate,
		planner:   deps.Planner,
		validator: deps.Validator,
		executor:  deps.Executor,
		cache:     deps.Cache,
		sink:      deps.Sink,
		collector: deps.Collector,
		logger:    deps.Logger,
	}
}

// Request is one natural-language question with its caller context.
type Request struct {
	Question  string
	Locale    string
	Role      string
	BackendID string
}

// Ask runs the pipeline for one request and always returns a terminal
// outcome; pipeline failures are encoded in it rather than returned as
// errors.
func (o *Orchestrator) Ask(ctx context.Context, req Request) *models.Outcome {
	requestID := uuid.NewString()
	start := time.Now()
	logger := o.logger.With().Str("request_id", requestID).Str("role", req.Role).Logger()

	outcome := o.run(ctx, requestID, req, logger)
	outcome.RequestID = requestID
	outcome.Elapsed = time.Since(start)

	o.collector.IncrementCounter(metrics.MetricRequestsTotal, "status", outcome.Status)
	o.collector.RecordHistogram(metrics.MetricRequestDuration, outcome.Elapsed.Seconds())
	logger.Info().
		Str("status", outcome.Status).
		Int("attempts", len(outcome.Trail)).
		Bool("from_cache", outcome.FromCache).
		Dur("elapsed", outcome.Elapsed).
		Msg("Request complete")
	return outcome
}

func (o *Orchestrator) run(ctx context.Context, requestID string, req Request, logger zerolog.Logger) *models.Outcome {
	schema, err := o.catalog.GetSchema(ctx)
	if err != nil {
		return failed(nil, err)
	}
	visible := o.gate.VisibleTables(req.Role, schema)

	fingerprint := cache.Fingerprint(req.Question, schema.Version, req.Role, visible)
	if entry, ok := o.cache.Get(fingerprint, schema.Version); ok {
		o.collector.IncrementCounter(metrics.MetricCacheHitsTotal)
		return &models.Outcome{
			Status:    models.StatusSucceeded,
			Result:    entry.Result,
			FromCache: true,
		}
	}
	o.collector.IncrementCounter(metrics.MetricCacheMissesTotal)

	parsed, err := o.provider.Understand(ctx, req.Question, req.Locale)
	if err != nil {
		logger.Warn().Err(err).Str("provider", o.provider.Name()).Msg("Intent extraction failed")
		return &models.Outcome{
			Status:    models.StatusClarificationNeeded,
			ErrCode:   pkgerrors.CodeClarificationNeeded,
			ErrDetail: "the question could not be understood",
		}
	}
	if parsed.Confidence < o.cfg.ConfidenceFloor {
		logger.Debug().Float64("confidence", parsed.Confidence).Msg("Confidence below floor")
		return &models.Outcome{
			Status:    models.StatusClarificationNeeded,
			ErrCode:   pkgerrors.CodeClarificationNeeded,
			ErrDetail: "intent confidence below floor",
		}
	}

	loop := &correctionLoop{
		o:       o,
		req:     req,
		schema:  schema,
		visible: visible,
		intent:  *parsed,
		logger:  logger,
	}
	outcome := loop.run(ctx, requestID)
	if outcome.Status == models.StatusSucceeded && outcome.Result != nil && !outcome.FromCache {
		o.cache.Put(fingerprint, outcome.Result, schema.Version, o.cfg.CacheTTL)
	}
	return outcome
}

// correctionLoop holds the mutable state of one request's state machine.
type correctionLoop struct {
	o       *Orchestrator
	req     Request
	schema  *models.SchemaMetadata
	visible []string
	intent  models.Intent
	opts    planner.Options
	applied map[string]bool
	trail   []models.AttemptRecord
	logger  zerolog.Logger
}

func (l *correctionLoop) run(ctx context.Context, requestID string) *models.Outcome {
	l.applied = map[string]bool{}

	for attempt := 0; attempt < l.o.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			msg := "request deadline exceeded"
			if errors.Is(err, context.Canceled) {
				msg = "request canceled by caller"
			}
			return failed(l.trail, pkgerrors.Wrap(err, pkgerrors.CodeDeadlineExceeded, msg))
		}
		l.o.collector.IncrementCounter(metrics.MetricAttemptsTotal, "stage", models.StagePlanning)

		candidates := l.o.planner.PlanWith(&l.intent, l.schema, l.visible, l.opts)
		if len(candidates) == 0 {
			if l.correct(nil, nil) {
				l.record(requestID, models.AttemptRecord{
					Stage:     models.StagePlanning,
					Err:       "planning produced no candidates",
					Timestamp: time.Now(),
				})
				continue
			}
			if len(l.trail) == 0 {
				// Nothing resolved and no correction applies: not a fault,
				// just a question the schema cannot answer.
				return &models.Outcome{
					Status:    models.StatusSemanticMiss,
					ErrCode:   pkgerrors.CodeSemanticMiss,
					ErrDetail: "no entity resolved against the schema",
					Trail:     l.trail,
				}
			}
			return failed(l.trail, pkgerrors.ErrRetryExhausted)
		}

		chosen, verdict := l.validateRanked(candidates)
		if chosen == nil {
			best := &candidates[0]
			l.record(requestID, models.AttemptRecord{
				Candidate: best,
				Verdict:   verdict,
				Stage:     models.StageValidating,
				Timestamp: time.Now(),
			})
			if !l.correct(best, verdict) {
				return failed(l.trail, pkgerrors.New(pkgerrors.CodeValidationRejected, firstViolation(verdict)))
			}
			continue
		}

		result, err := l.o.executor.Execute(ctx, chosen, l.req.BackendID)
		if err == nil {
			l.record(requestID, models.AttemptRecord{
				Candidate: chosen,
				Verdict:   verdict,
				Stage:     models.StageExecuting,
				Timestamp: time.Now(),
			})
			return &models.Outcome{
				Status: models.StatusSucceeded,
				Result: result,
				Trail:  l.trail,
			}
		}

		l.record(requestID, models.AttemptRecord{
			Candidate: chosen,
			Err:       err.Error(),
			Stage:     models.StageExecuting,
			Timestamp: time.Now(),
		})

		switch code := pkgerrors.GetCode(err); code {
		case pkgerrors.CodeResourceExhausted, pkgerrors.CodeDeadlineExceeded:
			return failed(l.trail, err)
		}
		if !pkgerrors.IsRetryable(err) && !missingRelation(err) {
			return failed(l.trail, err)
		}
		if missingRelation(err) && !l.correct(chosen, nil) {
			// Re-running the same plan would hit the same missing relation.
			return failed(l.trail, err)
		}
	}

	return failed(l.trail, pkgerrors.ErrRetryExhausted)
}

// validateRanked vets candidates in rank order and returns the first
// accepted one. When all are rejected it returns the verdict of the
// best-ranked candidate, which drives correction.
func (l *correctionLoop) validateRanked(candidates []models.SQLCandidate) (*models.SQLCandidate, *models.ValidationVerdict) {
	var firstVerdict *models.ValidationVerdict
	for i := range candidates {
		verdict := l.o.validator.Validate(&candidates[i], l.schema, l.visible)
		if verdict.Accepted {
			return &candidates[i], &verdict
		}
		if firstVerdict == nil {
			firstVerdict = &verdict
		}
	}
	return nil, firstVerdict
}

// correct applies the highest-priority applicable strategy not yet used.
// Returns false when nothing is left to try, which ends the request.
func (l *correctionLoop) correct(candidate *models.SQLCandidate, verdict *models.ValidationVerdict) bool {
	if !l.applied[StrategyFuzzyNarrow] && l.narrowEntities() {
		l.applied[StrategyFuzzyNarrow] = true
		l.o.collector.IncrementCounter(metrics.MetricCorrectionsTotal, "strategy", StrategyFuzzyNarrow)
		l.logger.Debug().Strs("entities", l.intent.TargetEntities).Msg("Correction: narrowed entities")
		return true
	}

	if !l.applied[StrategyDropPredicate] &&
		l.intent.Confidence < l.o.cfg.PredicateDropThreshold &&
		hasUnknownColumn(verdict) {
		l.applied[StrategyDropPredicate] = true
		l.opts.DropUnknownPredicates = true
		l.o.collector.IncrementCounter(metrics.MetricCorrectionsTotal, "strategy", StrategyDropPredicate)
		l.logger.Debug().Msg("Correction: dropping predicates on unknown columns")
		return true
	}

	if !l.applied[StrategyAlternateJoin] && candidate != nil {
		if joined := planner.JoinedTables(candidate.Text); len(joined) > 0 {
			l.applied[StrategyAlternateJoin] = true
			if l.opts.AvoidTables == nil {
				l.opts.AvoidTables = map[string]bool{}
			}
			for _, t := range joined {
				l.opts.AvoidTables[t] = true
			}
			l.o.collector.IncrementCounter(metrics.MetricCorrectionsTotal, "strategy", StrategyAlternateJoin)
			l.logger.Debug().Strs("avoid", joined).Msg("Correction: routing around join path")
			return true
		}
	}

	return false
}

// narrowEntities rewrites unresolved intent entities onto visible schema
// names with a wider fuzzy bound than baseline planning uses. Reports
// whether anything changed; an ineffective narrowing does not count as an
// applied strategy.
func (l *correctionLoop) narrowEntities() bool {
	var names []string
	for _, t := range l.visible {
		names = append(names, t)
		if tab, ok := l.schema.Tables[t]; ok {
			for _, c := range tab.Columns {
				names = append(names, c.Name)
			}
		}
	}

	changed := false
	narrowed := make([]string, 0, len(l.intent.TargetEntities))
	seen := map[string]bool{}
	for _, entity := range l.intent.TargetEntities {
		resolved, ok := planner.ResolveEntity(entity, names, l.o.cfg.CorrectionFuzzyDistance)
		if ok && resolved != entity {
			changed = true
		} else {
			resolved = entity
		}
		if !seen[resolved] {
			narrowed = append(narrowed, resolved)
			seen[resolved] = true
		}
	}
	if changed {
		l.intent.TargetEntities = narrowed
	}
	return changed
}

func (l *correctionLoop) record(requestID string, attempt models.AttemptRecord) {
	l.trail = append(l.trail, attempt)
	l.o.sink.Record(requestID, attempt)
}

func hasUnknownColumn(verdict *models.ValidationVerdict) bool {
	if verdict == nil {
		return false
	}
	for _, v := range verdict.Violations {
		if v.Kind == validator.ViolationUnknownColumn {
			return true
		}
	}
	return false
}

// missingRelation matches backend errors caused by a table or relation the
// chosen join path assumed but the backend does not have.
func missingRelation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "does not exist") ||
		strings.Contains(msg, "no such table") ||
		strings.Contains(msg, "not found")
}

func failed(trail []models.AttemptRecord, err error) *models.Outcome {
	return &models.Outcome{
		Status:    models.StatusFailed,
		ErrCode:   pkgerrors.GetCode(err),
		ErrDetail: err.Error(),
		Trail:     trail,
	}
}

func firstViolation(verdict *models.ValidationVerdict) string {
	if verdict == nil || len(verdict.Violations) == 0 {
		return "candidate rejected"
	}
	v := verdict.Violations[0]
	return v.Kind + ": " + v.Detail
}
