package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lib2notes/internal/analyzer"
	"lib2notes/internal/checkpoint"
	"lib2notes/internal/config"
	"lib2notes/internal/library"
	"lib2notes/internal/metrics"
	"lib2notes/internal/progress"
	"lib2notes/internal/retry"
	"lib2notes/internal/runner"
	"lib2notes/internal/scanner"
)

// App wires the scanner, checkpoint manager, and orchestrator into one run
type App struct {
	cfg        *config.Config
	logger     *zap.Logger
	client     library.Client
	checkpoint checkpoint.Store
	metrics    *metrics.Collector
	scanner    *scanner.Scanner
	runner     *runner.Orchestrator
}

// New creates the application from configuration
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	client, err := library.NewZoteroClient(library.Config{
		Endpoint: cfg.Library.Endpoint,
		APIKey:   cfg.Library.APIKey,
		UserID:   cfg.Library.UserID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create library client: %w", err)
	}

	anl, err := analyzer.NewAnthropicAnalyzer(analyzer.Config{
		APIKey:      cfg.Analyzer.APIKey,
		MaxTokens:   cfg.Analyzer.MaxTokens,
		Temperature: cfg.Analyzer.Temperature,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create analyzer: %w", err)
	}

	store, err := checkpoint.NewSQLiteStore(cfg.Run.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to create checkpoint store: %w", err)
	}

	metricsCollector := metrics.New()
	manager := checkpoint.NewManager(store, logger)
	retrier := retry.NewExecutor(logger)
	dedup := scanner.NewDedupDetector(cfg.Run.ProcessedTag, nil)

	scn, err := scanner.New(client, dedup, scanner.Config{
		CollectionID:      cfg.Run.Collection,
		ScanLimit:         cfg.Run.ScanLimit,
		TreatedLimit:      cfg.Run.TreatedLimit,
		PageSize:          cfg.Run.PageSize,
		RequireAttachment: cfg.Run.AttachmentType,
	}, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create scanner: %w", err)
	}

	taskID := cfg.Run.TaskID
	if taskID == "" {
		taskID = uuid.NewString()
		logger.Info("No task id configured, generated one", zap.String("task_id", taskID))
	}

	prompt := analyzer.DefaultTemplate
	if cfg.Analyzer.PromptFile != "" {
		data, err := os.ReadFile(cfg.Analyzer.PromptFile)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("failed to read prompt file: %w", err)
		}
		prompt = string(data)
	}

	orchestrator, err := runner.New(client, anl, manager, retrier, dedup, metricsCollector, runner.Config{
		TaskID:         taskID,
		DryRun:         cfg.Run.DryRun,
		SkipExisting:   cfg.Run.SkipExisting,
		MaxRetries:     cfg.Run.MaxRetries,
		BaseDelay:      time.Duration(cfg.Run.RetryBackoffMs) * time.Millisecond,
		PromptTemplate: prompt,
		ProcessedTag:   cfg.Run.ProcessedTag,
	}, logger)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		client:     client,
		checkpoint: store,
		metrics:    metricsCollector,
		scanner:    scn,
		runner:     orchestrator,
	}, nil
}

// Run scans for candidates and processes them
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("Starting run",
		zap.String("collection", a.cfg.Run.Collection),
		zap.Int("scan_limit", a.cfg.Run.ScanLimit),
		zap.Int("treated_limit", a.cfg.Run.TreatedLimit),
		zap.Bool("dry_run", a.cfg.Run.DryRun),
	)

	go func() {
		if err := a.metrics.StartServer(a.cfg.MetricsAddr); err != nil {
			a.logger.Error("Failed to start metrics server", zap.Error(err))
		}
	}()

	scan, err := a.scanner.Scan(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan for candidates: %w", err)
	}
	if len(scan.Candidates) == 0 {
		a.logger.Info("Nothing to do", zap.Int("scanned", scan.Scanned))
		return nil
	}

	var display *progress.Display
	if a.cfg.Run.ShowProgress && progress.IsTerminalSupported() {
		display = progress.NewDisplay(a.metrics.GetProgressTracker(), 2*time.Second)
		display.Start()
	}

	summary, runErr := a.runner.Run(ctx, scan.Candidates)

	if display != nil {
		display.Stop()
	}

	if summary != nil {
		a.logSummary(summary)
	}
	return runErr
}

func (a *App) logSummary(summary *runner.Summary) {
	a.logger.Info("Run summary",
		zap.String("task_id", summary.TaskID),
		zap.Int("total", summary.Total),
		zap.Int("completed", summary.Completed),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Duration("duration", summary.Duration),
	)
	for reason, count := range summary.SkipReasons {
		a.logger.Info("Skip reason", zap.String("reason", reason), zap.Int("count", count))
	}
	for itemID, errText := range summary.FailedItems {
		a.logger.Warn("Failed item", zap.String("item_id", itemID), zap.String("error", errText))
	}
}

// Close cleans up resources
func (a *App) Close() error {
	if a.checkpoint != nil {
		return a.checkpoint.Close()
	}
	return nil
}
