package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"callaudit/internal/audit"
	"callaudit/internal/config"
	"callaudit/internal/logging"
	"callaudit/internal/oracle"
	"callaudit/internal/retry"
	"callaudit/internal/rubric"
	"callaudit/internal/scoring"
	"callaudit/internal/services"
	"callaudit/internal/timeline"
)

// Runner executes audit runs for cases.
type Runner struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       AuditStore
	oracle      Oracle
	cases       CaseStore
	transcripts TranscriptSource
	products    ProductResolver
	builder     *timeline.Builder
	policy      retry.Policy
	workers     int64
}

// Option customizes the runner.
type Option func(*Runner)

// WithRetryPolicy overrides the oracle retry policy (tests inject a sleeper).
func WithRetryPolicy(policy retry.Policy) Option {
	return func(r *Runner) {
		r.policy = policy
	}
}

// NewRunner wires a runner from configuration and its collaborator ports.
func NewRunner(cfg *config.Config, logger *slog.Logger, store AuditStore, o Oracle, cases CaseStore, transcripts TranscriptSource, products ProductResolver, opts ...Option) *Runner {
	workers := int64(cfg.Workflow.StepWorkers)
	if workers <= 0 {
		workers = 1
	}
	runner := &Runner{
		cfg:         cfg,
		logger:      logging.NewComponentLogger(logger, "pipeline"),
		store:       store,
		oracle:      o,
		cases:       cases,
		transcripts: transcripts,
		products:    products,
		builder:     timeline.NewBuilder(cfg.Timeline),
		policy: retry.Policy{
			MaxAttempts: cfg.Oracle.MaxAttempts,
			BaseDelay:   time.Duration(cfg.Oracle.RetryBaseMs) * time.Millisecond,
			MaxDelay:    time.Duration(cfg.Oracle.RetryMaxMs) * time.Millisecond,
			Retriable:   func(err error) bool { return !services.IsNonRetriable(err) },
		},
		workers: workers,
	}
	for _, opt := range opts {
		opt(runner)
	}
	return runner
}

// HealthCheck verifies the oracle is reachable with the configured model.
func (r *Runner) HealthCheck(ctx context.Context) error {
	return r.oracle.HealthCheck(ctx)
}

// Run executes one audit of a case against a rubric and returns the audit
// identifier. A case with no usable transcript is a skip, not a failure: no
// audit row is created and the error carries the not-found marker. Once the
// running row exists the run always reaches a terminal state.
func (r *Runner) Run(ctx context.Context, caseRef string, rub rubric.Rubric) (string, error) {
	snapshot := rub.Snapshot()
	if err := snapshot.Validate(); err != nil {
		return "", err
	}

	ctx = services.WithCaseRef(ctx, caseRef)
	ctx = services.WithRequestID(ctx, uuid.NewString())
	logger := logging.WithContext(ctx, r.logger)

	resolved, err := r.cases.ResolveCase(ctx, caseRef)
	if err != nil {
		return "", fmt.Errorf("resolve case %s: %w", caseRef, err)
	}

	sources, err := r.transcripts.Recordings(ctx, caseRef)
	if err != nil {
		return "", fmt.Errorf("fetch recordings for %s: %w", caseRef, err)
	}
	tl := r.builder.Build(sources)
	if tl.Empty() {
		return "", services.Wrap(services.ErrNotFound, "pipeline", "run",
			fmt.Sprintf("empty timeline for case %s, nothing to audit", caseRef), nil)
	}
	logger.Info("timeline built", logging.Args(
		logging.Int("recordings", len(tl.Recordings)),
		logging.Int("chunks", tl.TotalChunks()),
	)...)

	productInfo := ""
	if snapshot.RequiresProductInfo() {
		info, err := r.products.ProductInfo(ctx, caseRef)
		if err != nil {
			// Non-fatal: the step is judged without product data.
			logger.Warn("product info unavailable", logging.Args(logging.Error(err))...)
		} else {
			productInfo = info
		}
	}

	rubricJSON, err := snapshot.Encode()
	if err != nil {
		return "", fmt.Errorf("encode rubric snapshot: %w", err)
	}
	rubricRef := snapshot.ID
	if rubricRef == "" {
		rubricRef = snapshot.Name
	}
	run := &audit.Audit{
		CaseRef:    caseRef,
		CaseName:   resolved.Name,
		CaseGroup:  resolved.Group,
		RubricRef:  rubricRef,
		RubricName: snapshot.Name,
		RubricJSON: rubricJSON,
	}
	if err := r.store.CreatePending(ctx, run); err != nil {
		return "", fmt.Errorf("create pending audit: %w", err)
	}
	ctx = services.WithAuditID(ctx, run.ID)
	logger = logging.WithContext(ctx, r.logger)
	logger.Info("audit started", logging.Args(
		logging.String(logging.FieldEventType, "audit_started"),
		logging.Int("steps", len(snapshot.Steps)),
	)...)

	started := time.Now()
	results, stats, abortErr := r.executeSteps(ctx, run.ID, snapshot, tl, productInfo)

	// Terminal transitions must land even when the caller's context is gone.
	finalCtx := context.WithoutCancel(ctx)
	if abortErr == nil && ctx.Err() != nil {
		abortErr = ctx.Err()
	}
	if abortErr != nil {
		if err := r.store.MarkFailed(finalCtx, run.ID, abortErr.Error()); err != nil {
			logger.Error("mark failed", logging.Args(logging.Error(err))...)
		}
		logger.Error("audit failed", logging.Args(
			logging.String(logging.FieldEventType, "audit_failed"),
			logging.Error(abortErr),
		)...)
		return run.ID, abortErr
	}

	r.finishCitations(finalCtx, logger, results, tl)

	outcomes := make([]scoring.Outcome, 0, len(results))
	for _, result := range results {
		outcome := scoring.Outcome{Position: result.StepPosition, Conforme: result.Conforme}
		if !result.Failed {
			outcome.Score = result.Score
		}
		outcomes = append(outcomes, outcome)
	}
	summary := scoring.Score(outcomes, snapshot, scoring.ThresholdsFromConfig(r.cfg.Scoring))
	stats.DurationMS = time.Since(started).Milliseconds()

	if err := r.store.Finalize(finalCtx, run.ID, summary, stats); err != nil {
		if markErr := r.store.MarkFailed(finalCtx, run.ID, fmt.Sprintf("finalize: %v", err)); markErr != nil {
			logger.Error("mark failed after finalize error", logging.Args(logging.Error(markErr))...)
		}
		return run.ID, fmt.Errorf("finalize audit: %w", err)
	}

	logger.Info("audit completed", logging.Args(
		logging.String(logging.FieldEventType, "audit_completed"),
		logging.String("niveau", summary.Niveau),
		logging.Float64("score", summary.Score),
		logging.String("critical", summary.CriticalRatio()),
		logging.Int("successful_steps", stats.Successful),
		logging.Int("failed_steps", stats.Failed),
		logging.Int("total_tokens", stats.TotalTokens),
		logging.Int64("duration_ms", stats.DurationMS),
	)...)
	return run.ID, nil
}

// executeSteps runs every rubric step through the oracle with bounded
// concurrency. A step that exhausts its retries becomes a failed result and
// the remaining steps still execute; a non-retriable error cancels the run
// without consuming the remaining steps.
func (r *Runner) executeSteps(ctx context.Context, auditID string, snapshot rubric.Rubric, tl *timeline.Timeline, productInfo string) ([]*audit.StepResult, audit.Statistics, error) {
	timelineText := tl.FullText()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		results  []*audit.StepResult
		stats    audit.Statistics
		abortErr error
	)
	abort := func(err error) {
		mu.Lock()
		if abortErr == nil {
			abortErr = err
		}
		mu.Unlock()
		cancel()
	}

	sem := semaphore.NewWeighted(r.workers)
	var wg sync.WaitGroup
	for _, step := range snapshot.Steps {
		if runCtx.Err() != nil {
			break
		}
		if err := sem.Acquire(runCtx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func(step rubric.Step) {
			defer wg.Done()
			defer sem.Release(1)

			stepCtx := services.WithStep(runCtx, step.Name)
			stepLogger := logging.WithContext(stepCtx, r.logger).With(
				logging.Int(logging.FieldStepPosition, step.Position))

			var evaluation oracle.Evaluation
			err := r.policy.Do(stepCtx, func(ctx context.Context) error {
				var evalErr error
				evaluation, evalErr = r.oracle.EvaluateStep(ctx, step, timelineText, productInfo)
				return evalErr
			})
			if err != nil {
				if services.IsNonRetriable(err) {
					abort(fmt.Errorf("step %d (%s): %w", step.Position, step.Name, err))
					return
				}
				if runCtx.Err() != nil {
					return
				}
				stepLogger.Warn("step failed after retries", logging.Args(logging.Error(err))...)
				failed := &audit.StepResult{
					AuditID:      auditID,
					StepPosition: step.Position,
					StepName:     step.Name,
					Failed:       true,
					ErrorMessage: err.Error(),
				}
				if upsertErr := r.store.UpsertStepResult(context.WithoutCancel(stepCtx), failed); upsertErr != nil {
					stepLogger.Error("persist failed step", logging.Args(logging.Error(upsertErr))...)
				}
				mu.Lock()
				results = append(results, failed)
				stats.Failed++
				mu.Unlock()
				return
			}

			result := &audit.StepResult{
				AuditID:          auditID,
				StepPosition:     step.Position,
				StepName:         step.Name,
				Conforme:         evaluation.Conforme,
				Score:            evaluation.Score,
				NiveauConformite: evaluation.NiveauConformite,
				RawResultJSON:    evaluation.Raw,
			}
			if err := result.SetControlPoints(evaluation.ControlPoints); err != nil {
				stepLogger.Error("encode control points", logging.Args(logging.Error(err))...)
			}
			if err := r.store.UpsertStepResult(stepCtx, result); err != nil {
				abort(fmt.Errorf("persist step %d result: %w", step.Position, err))
				return
			}
			stepLogger.Info("step evaluated", logging.Args(
				logging.Bool("conforme", result.Conforme),
				logging.Int("tokens", evaluation.TokensUsed),
			)...)
			mu.Lock()
			results = append(results, result)
			stats.Successful++
			stats.TotalTokens += evaluation.TokensUsed
			mu.Unlock()
		}(step)
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	return results, stats, abortErr
}

// finishCitations resolves every citation against the timeline snapshot the
// steps were judged on and persists the enriched control points.
func (r *Runner) finishCitations(ctx context.Context, logger *slog.Logger, results []*audit.StepResult, tl *timeline.Timeline) {
	for _, result := range results {
		points, err := result.ControlPoints()
		if err != nil {
			logger.Warn("decode control points for citation resolution", logging.Args(
				logging.Int(logging.FieldStepPosition, result.StepPosition),
				logging.Error(err),
			)...)
			continue
		}
		if len(points) == 0 {
			continue
		}
		resolveCitations(points, tl)
		if err := result.SetControlPoints(points); err != nil {
			logger.Warn("encode resolved control points", logging.Args(logging.Error(err))...)
			continue
		}
		if err := r.store.UpsertStepResult(ctx, result); err != nil {
			logger.Warn("persist resolved citations", logging.Args(
				logging.Int(logging.FieldStepPosition, result.StepPosition),
				logging.Error(err),
			)...)
		}
	}
}
