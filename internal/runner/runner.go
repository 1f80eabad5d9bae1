package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"lib2notes/internal/analyzer"
	"lib2notes/internal/checkpoint"
	"lib2notes/internal/library"
	"lib2notes/internal/metrics"
	"lib2notes/internal/retry"
	"lib2notes/internal/scanner"
)

// SkipReasonNoContent marks items whose content fetch returned nothing
const SkipReasonNoContent = "no_content"

// SkipReasonAlreadyProcessed marks items that already carry the processed marker
const SkipReasonAlreadyProcessed = "already_processed"

// Config controls one batch run
type Config struct {
	TaskID       string
	DryRun       bool
	SkipExisting bool
	MaxRetries   int
	BaseDelay    time.Duration

	// PromptTemplate is the system prompt handed to the analyzer.
	PromptTemplate string

	// ProcessedTag is written back to items after a successful note, and
	// is what the dedup detector looks for on the next run.
	ProcessedTag string
}

// Summary aggregates the outcomes of one run
type Summary struct {
	TaskID      string
	Total       int
	Completed   int
	Failed      int
	Skipped     int
	SkipReasons map[string]int
	FailedItems map[string]string
	Duration    time.Duration
}

// Orchestrator drives each candidate through the per-item state machine.
// Items are processed strictly sequentially; one item's full run completes
// before the next begins. Per-item failures never abort the run; only
// checkpoint-layer errors do.
type Orchestrator struct {
	client   library.Client
	analyzer analyzer.Analyzer
	ckpt     *checkpoint.Manager
	retrier  *retry.Executor
	dedup    *scanner.DedupDetector
	metrics  *metrics.Collector
	logger   *zap.Logger
	cfg      Config
}

// New creates an orchestrator
func New(
	client library.Client,
	anl analyzer.Analyzer,
	ckpt *checkpoint.Manager,
	retrier *retry.Executor,
	dedup *scanner.DedupDetector,
	metricsCollector *metrics.Collector,
	cfg Config,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if cfg.TaskID == "" {
		return nil, fmt.Errorf("task id is required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 500 * time.Millisecond
	}

	return &Orchestrator{
		client:   client,
		analyzer: anl,
		ckpt:     ckpt,
		retrier:  retrier,
		dedup:    dedup,
		metrics:  metricsCollector,
		logger:   logger.With(zap.String("task_id", cfg.TaskID)),
		cfg:      cfg,
	}, nil
}

// Run processes the remaining candidates against the task's checkpoint and
// returns a summary. The checkpoint is created on first run and resumed
// otherwise; candidates already in a bucket are not reprocessed. On
// cancellation the checkpoint is left paused and the in-flight item is simply
// not recorded.
func (o *Orchestrator) Run(ctx context.Context, candidates []scanner.Candidate) (*Summary, error) {
	start := time.Now()

	summary := &Summary{
		TaskID:      o.cfg.TaskID,
		Total:       len(candidates),
		SkipReasons: make(map[string]int),
		FailedItems: make(map[string]string),
	}

	cp, err := o.loadOrCreate(len(candidates))
	if err != nil {
		return nil, err
	}

	byID := make(map[string]scanner.Candidate, len(candidates))
	ids := make([]string, 0, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
		ids = append(ids, c.ID)
	}

	remaining, err := o.ckpt.GetRemaining(o.cfg.TaskID, ids)
	if err != nil {
		return nil, err
	}

	// A resumed checkpoint keeps its original total; a fresh scan can
	// surface candidates beyond it. Those are deferred to a new task rather
	// than recorded past the total.
	if capacity := cp.TotalItems - cp.ProcessedCount(); len(remaining) > capacity {
		o.logger.Warn("More candidates than the checkpoint can hold, deferring the excess",
			zap.Int("capacity", capacity),
			zap.Int("deferred", len(remaining)-capacity),
		)
		remaining = remaining[:capacity]
	}

	o.logger.Info("Starting batch run",
		zap.Int("candidates", len(candidates)),
		zap.Int("remaining", len(remaining)),
		zap.Bool("dry_run", o.cfg.DryRun),
	)
	if o.metrics != nil {
		o.metrics.SetTotal(len(remaining))
	}

	for i, id := range remaining {
		if err := ctx.Err(); err != nil {
			// Stopped between items: pause so a later run resumes with
			// zero loss beyond the item that never started.
			if pauseErr := o.ckpt.Pause(o.cfg.TaskID); pauseErr != nil {
				o.logger.Error("Failed to pause checkpoint on cancellation", zap.Error(pauseErr))
			}
			summary.Duration = time.Since(start)
			return summary, err
		}

		o.logger.Info("Processing item",
			zap.Int("position", i+1),
			zap.Int("remaining", len(remaining)),
			zap.String("item_id", id),
		)

		outcome, itemErr := o.processItem(ctx, byID[id])
		if itemErr != nil {
			// Cancelled mid-item: the item keeps no outcome and is
			// reconsidered on resume.
			if pauseErr := o.ckpt.Pause(o.cfg.TaskID); pauseErr != nil {
				o.logger.Error("Failed to pause checkpoint on cancellation", zap.Error(pauseErr))
			}
			summary.Duration = time.Since(start)
			return summary, itemErr
		}
		if err := o.ckpt.RecordOutcome(o.cfg.TaskID, id, outcome); err != nil {
			// Checkpoint-layer errors are run-fatal; stop without
			// touching further state.
			summary.Duration = time.Since(start)
			return summary, fmt.Errorf("recording outcome for %s: %w", id, err)
		}

		o.tally(summary, id, outcome)
	}

	if err := o.ckpt.Finalize(o.cfg.TaskID, checkpoint.StatusCompleted); err != nil {
		summary.Duration = time.Since(start)
		return summary, fmt.Errorf("finalizing checkpoint: %w", err)
	}

	summary.Duration = time.Since(start)
	o.logger.Info("Batch run finished",
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", summary.Duration),
	)
	return summary, nil
}

// loadOrCreate loads the task's checkpoint, creating it when absent.
// Corrupt state is fatal and propagates untouched.
func (o *Orchestrator) loadOrCreate(totalItems int) (*checkpoint.Checkpoint, error) {
	cp, err := o.ckpt.Resume(o.cfg.TaskID)
	if err == nil {
		o.logger.Info("Resuming existing checkpoint")
		return cp, nil
	}
	if errors.Is(err, checkpoint.ErrNotFound) {
		return o.ckpt.CreateWorkflow(o.cfg.TaskID, totalItems, o.cfg)
	}
	return nil, err
}

func (o *Orchestrator) tally(summary *Summary, itemID string, outcome checkpoint.Outcome) {
	switch outcome.Kind {
	case checkpoint.OutcomeCompleted:
		summary.Completed++
		if o.metrics != nil {
			o.metrics.IncCompleted()
		}
	case checkpoint.OutcomeSkipped:
		summary.Skipped++
		summary.SkipReasons[outcome.SkipReason]++
		if o.metrics != nil {
			o.metrics.IncSkipped()
		}
	case checkpoint.OutcomeFailed:
		summary.Failed++
		summary.FailedItems[itemID] = outcome.Err
		if o.metrics != nil {
			o.metrics.IncFailed()
		}
	}
	if o.metrics != nil {
		o.metrics.AddRetries(outcome.Retries)
		o.metrics.ObserveDuration(outcome.Duration)
	}
}

// processItem runs one candidate through the state machine:
// PENDING -> SKIPPED, or PENDING -> ANALYZING -> (WRITING ->) COMPLETED/FAILED.
// A non-nil error means the run was cancelled mid-item; the item has no
// outcome, stays unrecorded, and is reconsidered on resume.
func (o *Orchestrator) processItem(ctx context.Context, c scanner.Candidate) (checkpoint.Outcome, error) {
	start := time.Now()
	logger := o.logger.With(zap.String("item_id", c.ID))

	done := func(outcome checkpoint.Outcome) checkpoint.Outcome {
		outcome.Duration = time.Since(start)
		return outcome
	}

	// PENDING: the marker check makes restarts idempotent for items whose
	// write-back landed but whose outcome was never recorded.
	if o.cfg.SkipExisting && o.dedup.Processed(c.ID, c.Tags) {
		logger.Debug("Skipping item with processed marker")
		return done(checkpoint.Outcome{Kind: checkpoint.OutcomeSkipped, SkipReason: SkipReasonAlreadyProcessed}), nil
	}

	content, err := o.client.GetItemContent(ctx, c.ID)
	if err != nil {
		if ctx.Err() != nil {
			return checkpoint.Outcome{}, ctx.Err()
		}
		logger.Warn("Content fetch failed", zap.Error(err))
		return done(checkpoint.Outcome{Kind: checkpoint.OutcomeFailed, Err: err.Error()}), nil
	}
	if content == nil || content.Text == "" {
		// Missing content is a data condition, never a failure
		logger.Info("Item has no retrievable content, skipping")
		return done(checkpoint.Outcome{Kind: checkpoint.OutcomeSkipped, SkipReason: SkipReasonNoContent}), nil
	}
	if o.cfg.SkipExisting && o.dedup.Processed(c.ID, content.Tags) {
		logger.Debug("Skipping item with processed marker on fetched metadata")
		return done(checkpoint.Outcome{Kind: checkpoint.OutcomeSkipped, SkipReason: SkipReasonAlreadyProcessed}), nil
	}

	// ANALYZING
	var analysis *analyzer.Analysis
	analyzeRetries, err := o.retrier.Run(ctx, func(ctx context.Context) error {
		var analyzeErr error
		analysis, analyzeErr = o.analyzer.Analyze(ctx, content.Text, o.cfg.PromptTemplate)
		return analyzeErr
	}, retry.ClassifyDefault, o.cfg.MaxRetries, o.cfg.BaseDelay)
	if err != nil {
		if ctx.Err() != nil {
			return checkpoint.Outcome{}, ctx.Err()
		}
		logger.Warn("Analysis failed", zap.Int("retries", analyzeRetries), zap.Error(err))
		return done(checkpoint.Outcome{Kind: checkpoint.OutcomeFailed, Err: err.Error(), Retries: analyzeRetries}), nil
	}

	if o.cfg.DryRun {
		// Rehearsal: counted as completed, no side effect
		logger.Info("Dry run, skipping write-back", zap.String("title", c.Title))
		return done(checkpoint.Outcome{Kind: checkpoint.OutcomeCompleted, Retries: analyzeRetries}), nil
	}

	// WRITING: the note is a single atomic call; a retry of write-back
	// never re-runs analysis.
	body, err := renderNote(c.Title, analysis)
	if err != nil {
		return done(checkpoint.Outcome{Kind: checkpoint.OutcomeFailed, Err: err.Error(), Retries: analyzeRetries}), nil
	}

	var artifactID string
	writeRetries, err := o.retrier.Run(ctx, func(ctx context.Context) error {
		var writeErr error
		artifactID, writeErr = o.client.CreateNote(ctx, c.ID, body, []string{o.cfg.ProcessedTag})
		return writeErr
	}, retry.ClassifyDefault, o.cfg.MaxRetries, o.cfg.BaseDelay)
	totalRetries := analyzeRetries + writeRetries
	if err != nil {
		if ctx.Err() != nil {
			return checkpoint.Outcome{}, ctx.Err()
		}
		logger.Warn("Write-back failed", zap.Int("retries", writeRetries), zap.Error(err))
		return done(checkpoint.Outcome{Kind: checkpoint.OutcomeFailed, Err: err.Error(), Retries: totalRetries}), nil
	}

	if o.cfg.ProcessedTag != "" {
		if err := o.client.AddTags(ctx, c.ID, []string{o.cfg.ProcessedTag}); err != nil {
			if ctx.Err() != nil {
				return checkpoint.Outcome{}, ctx.Err()
			}
			// The note is already attached; failing to mark the item
			// leaves it eligible for a duplicate on the next run.
			logger.Warn("Tagging processed marker failed", zap.Error(err))
			return done(checkpoint.Outcome{
				Kind:       checkpoint.OutcomeFailed,
				Err:        fmt.Sprintf("note %s created but marker tag failed: %v", artifactID, err),
				ArtifactID: artifactID,
				Retries:    totalRetries,
			}), nil
		}
	}

	logger.Info("Item completed",
		zap.String("artifact_id", artifactID),
		zap.Int("retries", totalRetries),
		zap.Duration("duration", time.Since(start)),
	)
	return done(checkpoint.Outcome{
		Kind:       checkpoint.OutcomeCompleted,
		ArtifactID: artifactID,
		Retries:    totalRetries,
	}), nil
}
