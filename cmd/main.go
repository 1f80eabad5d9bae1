package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"lib2notes/internal/app"
	"lib2notes/internal/config"
	"lib2notes/internal/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configFile string
	cfg        *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lib2notes",
	Short: "Summarize reference-library items into notes",
	Long:  `A resumable batch tool that scans a Zotero-compatible library for unsummarized items, runs each through an LLM analyzer, and writes the summary back as a child note, with checkpointing and retry.`,
	RunE:  runBatch,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file (default is ./config.yaml)")

	// Library flags
	rootCmd.Flags().String("library-endpoint", "", "Library API endpoint")
	rootCmd.Flags().String("library-api-key", "", "Library API key")
	rootCmd.Flags().String("library-user", "", "Library user id")

	// Analyzer flags
	rootCmd.Flags().String("analyzer-api-key", "", "Analysis provider API key")
	rootCmd.Flags().Int("max-tokens", 2000, "Analyzer max output tokens")
	rootCmd.Flags().String("prompt-file", "", "System prompt template file")

	// Run flags
	rootCmd.Flags().String("task-id", "", "Task id naming this run's checkpoint (generated if empty)")
	rootCmd.Flags().String("collection", "", "Collection id to scan (whole library if empty)")
	rootCmd.Flags().Int("scan-limit", 500, "Maximum raw items to examine")
	rootCmd.Flags().Int("treated-limit", 50, "Maximum candidates to process")
	rootCmd.Flags().Int("page-size", 50, "Listing page size")
	rootCmd.Flags().Int("retries", 3, "Maximum attempts per external call")
	rootCmd.Flags().Int("retry-backoff-ms", 500, "Initial retry backoff in milliseconds")
	rootCmd.Flags().Bool("dry-run", false, "Run analysis without writing notes back")
	rootCmd.Flags().Bool("skip-existing", true, "Skip items already carrying the processed tag")
	rootCmd.Flags().String("processed-tag", "summarized", "Tag marking already-processed items")
	rootCmd.Flags().String("attachment-type", "", "Require an attachment of this content type (e.g. application/pdf)")
	rootCmd.Flags().String("checkpoint", "./checkpoint.db", "Checkpoint database file")
	rootCmd.Flags().Bool("show-progress", true, "Show progress display")
	rootCmd.Flags().String("log-level", "info", "Log level (debug/info/warn/error)")
	rootCmd.Flags().String("metrics-addr", ":8080", "Metrics HTTP listen address")
}

func runBatch(cmd *cobra.Command, args []string) error {
	// Load configuration
	var err error
	cfg, err = config.Load(configFile, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Initialize logger
	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	// Create application
	batch, err := app.New(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	// Setup graceful shutdown; cancellation takes effect between items
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Received shutdown signal, stopping after the current item...")
		cancel()
	}()

	err = batch.Run(ctx)

	if closeErr := batch.Close(); closeErr != nil {
		log.Error("Error closing app", zap.Error(closeErr))
	}

	return err
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
