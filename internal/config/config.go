package config

import (
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Library     Library  `yaml:"library"`
	Analyzer    Analyzer `yaml:"analyzer"`
	Run         Run      `yaml:"run"`
	LogLevel    string   `yaml:"log_level"`
	MetricsAddr string   `yaml:"metrics_addr"`
}

// Library represents reference-library API configuration
type Library struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"api_key"`
	UserID   string `yaml:"user_id"`
}

// Analyzer represents analysis provider configuration
type Analyzer struct {
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	PromptFile  string  `yaml:"prompt_file"`
}

// Run represents run-specific configuration
type Run struct {
	TaskID         string `yaml:"task_id"`
	Collection     string `yaml:"collection"`
	ScanLimit      int    `yaml:"scan_limit"`
	TreatedLimit   int    `yaml:"treated_limit"`
	PageSize       int    `yaml:"page_size"`
	MaxRetries     int    `yaml:"max_retries"`
	RetryBackoffMs int    `yaml:"retry_backoff_ms"`
	DryRun         bool   `yaml:"dry_run"`
	SkipExisting   bool   `yaml:"skip_existing"`
	ProcessedTag   string `yaml:"processed_tag"`
	AttachmentType string `yaml:"attachment_type"`
	Checkpoint     string `yaml:"checkpoint"`
	ShowProgress   bool   `yaml:"show_progress"`
}

// Load loads configuration from file, environment, and command line flags
func Load(configFile string, flags *pflag.FlagSet) (*Config, error) {
	cfg := &Config{
		LogLevel:    "info",
		MetricsAddr: ":8080",
		Analyzer: Analyzer{
			MaxTokens:   2000,
			Temperature: 0.0,
		},
		Run: Run{
			ScanLimit:      500,
			TreatedLimit:   50,
			PageSize:       50,
			MaxRetries:     3,
			RetryBackoffMs: 500,
			SkipExisting:   true,
			ProcessedTag:   "summarized",
			Checkpoint:     "./checkpoint.db",
			ShowProgress:   true,
		},
	}

	// Load from YAML file if provided
	if configFile != "" {
		if err := loadFromFile(cfg, configFile); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	// API keys fall back to the environment
	if cfg.Library.APIKey == "" {
		cfg.Library.APIKey = os.Getenv("ZOTERO_API_KEY")
	}
	if cfg.Analyzer.APIKey == "" {
		cfg.Analyzer.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}

	// Override with command line flags
	if err := loadFromFlags(cfg, flags); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	return yaml.Unmarshal(data, cfg)
}

func loadFromFlags(cfg *Config, flags *pflag.FlagSet) error {
	if flags == nil {
		return nil
	}

	if flags.Changed("library-endpoint") {
		cfg.Library.Endpoint, _ = flags.GetString("library-endpoint")
	}
	if flags.Changed("library-api-key") {
		cfg.Library.APIKey, _ = flags.GetString("library-api-key")
	}
	if flags.Changed("library-user") {
		cfg.Library.UserID, _ = flags.GetString("library-user")
	}

	if flags.Changed("analyzer-api-key") {
		cfg.Analyzer.APIKey, _ = flags.GetString("analyzer-api-key")
	}
	if flags.Changed("max-tokens") {
		cfg.Analyzer.MaxTokens, _ = flags.GetInt("max-tokens")
	}
	if flags.Changed("prompt-file") {
		cfg.Analyzer.PromptFile, _ = flags.GetString("prompt-file")
	}

	if flags.Changed("task-id") {
		cfg.Run.TaskID, _ = flags.GetString("task-id")
	}
	if flags.Changed("collection") {
		cfg.Run.Collection, _ = flags.GetString("collection")
	}
	if flags.Changed("scan-limit") {
		cfg.Run.ScanLimit, _ = flags.GetInt("scan-limit")
	}
	if flags.Changed("treated-limit") {
		cfg.Run.TreatedLimit, _ = flags.GetInt("treated-limit")
	}
	if flags.Changed("page-size") {
		cfg.Run.PageSize, _ = flags.GetInt("page-size")
	}
	if flags.Changed("retries") {
		cfg.Run.MaxRetries, _ = flags.GetInt("retries")
	}
	if flags.Changed("retry-backoff-ms") {
		cfg.Run.RetryBackoffMs, _ = flags.GetInt("retry-backoff-ms")
	}
	if flags.Changed("dry-run") {
		cfg.Run.DryRun, _ = flags.GetBool("dry-run")
	}
	if flags.Changed("skip-existing") {
		cfg.Run.SkipExisting, _ = flags.GetBool("skip-existing")
	}
	if flags.Changed("processed-tag") {
		cfg.Run.ProcessedTag, _ = flags.GetString("processed-tag")
	}
	if flags.Changed("attachment-type") {
		cfg.Run.AttachmentType, _ = flags.GetString("attachment-type")
	}
	if flags.Changed("checkpoint") {
		cfg.Run.Checkpoint, _ = flags.GetString("checkpoint")
	}
	if flags.Changed("show-progress") {
		cfg.Run.ShowProgress, _ = flags.GetBool("show-progress")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if flags.Changed("metrics-addr") {
		cfg.MetricsAddr, _ = flags.GetString("metrics-addr")
	}

	return nil
}

func (c *Config) validate() error {
	if c.Library.Endpoint == "" {
		return fmt.Errorf("library endpoint is required")
	}
	if c.Library.UserID == "" {
		return fmt.Errorf("library user id is required")
	}
	if c.Library.APIKey == "" {
		return fmt.Errorf("library API key is required")
	}

	if c.Analyzer.APIKey == "" {
		return fmt.Errorf("analyzer API key is required")
	}

	if c.Run.ScanLimit <= 0 {
		return fmt.Errorf("scan limit must be positive")
	}
	if c.Run.TreatedLimit <= 0 {
		return fmt.Errorf("treated limit must be positive")
	}
	if c.Run.TreatedLimit > c.Run.ScanLimit {
		return fmt.Errorf("treated limit cannot exceed scan limit")
	}
	if c.Run.MaxRetries <= 0 {
		return fmt.Errorf("retries must be positive")
	}
	if c.Run.Checkpoint == "" {
		return fmt.Errorf("checkpoint path is required")
	}

	return nil
}
