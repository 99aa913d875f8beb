package common

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration
type Config struct {
	// Accounts is the list of account handles to harvest, in order.
	Accounts []string `toml:"accounts" validate:"required,min=1,dive,required"`

	// Schedule is an optional cron expression; when set the harvest is
	// re-run on that schedule instead of exiting after one pass.
	Schedule string `toml:"schedule"`

	Phases  PhasesConfig  `toml:"phases"`
	Browser BrowserConfig `toml:"browser"`
	Harvest HarvestConfig `toml:"harvest"`
	Storage StorageConfig `toml:"storage"`
	Export  ExportConfig  `toml:"export"`
	Logging LoggingConfig `toml:"logging"`
}

// PhasesConfig enables or disables individual harvest phases
type PhasesConfig struct {
	Timeline      bool `toml:"timeline"`      // Collect account timelines
	Conversations bool `toml:"conversations"` // Resolve conversations for collected posts
	Export        bool `toml:"export"`        // Render account documents after resolution
}

// BrowserConfig controls the chromedp page source
type BrowserConfig struct {
	BaseURL           string        `toml:"base_url"`            // Platform base URL (default: https://x.com)
	UserDataDir       string        `toml:"user_data_dir"`       // Chrome profile directory holding the authenticated session
	ExecPath          string        `toml:"exec_path"`           // Optional browser executable override
	UserAgent         string        `toml:"user_agent"`          // User agent override
	Headless          bool          `toml:"headless"`            // Headless mode (default: false for an authenticated profile)
	NavigationTimeout time.Duration `toml:"navigation_timeout"`  // Timeout for a single navigation
	OperationTimeout  time.Duration `toml:"operation_timeout"`   // Timeout for a single page operation (evaluate, click pass)
	SettleDelay       time.Duration `toml:"settle_delay"`        // Wait after navigation before reading the page
}

// HarvestConfig tunes the collection and resolution loops
type HarvestConfig struct {
	MaxPosts            int           `toml:"max_posts"`             // Per-account post cap; negative means unlimited
	DuplicateThreshold  int           `toml:"duplicate_threshold"`   // Stop after N consecutive already-known posts; 0 disables
	StagnationRounds    int           `toml:"stagnation_rounds"`     // Stop after N scroll rounds with no extent growth
	TimelineTimeout     time.Duration `toml:"timeline_timeout"`      // Wall-clock guard on the timeline loop
	ScrollDelay         time.Duration `toml:"scroll_delay"`          // Minimum delay between scrolls
	StabilityRounds     int           `toml:"stability_rounds"`      // Discussion expansion: rounds the post count must hold steady
	MaxExpandIterations int           `toml:"max_expand_iterations"` // Discussion expansion: iteration cap
	ExpandTimeout       time.Duration `toml:"expand_timeout"`        // Discussion expansion: wall-clock guard
	RootCooldown        time.Duration `toml:"root_cooldown"`         // Pause after a failed root before the next one
	SessionRecycleEvery int           `toml:"session_recycle_every"` // Recreate the browser session every N resolved roots; 0 disables
	ExpanderLabels      []string      `toml:"expander_labels"`       // Button labels (lowercase) treated as expansion affordances
}

type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig represents BadgerDB-specific configuration
type BadgerConfig struct {
	Path           string `toml:"path" validate:"required"` // Database directory path
	ResetOnStartup bool   `toml:"reset_on_startup"`         // Delete database on startup for clean test runs
}

// ExportConfig controls document export
type ExportConfig struct {
	OutputDir string `toml:"output_dir"` // Directory for rendered documents
}

type LoggingConfig struct {
	Level  string   `toml:"level" validate:"oneof=trace debug info warn error"` // "debug", "info", "warn", "error"
	Output []string `toml:"output"`                                             // "stdout", "file"
}

// NewDefaultConfig returns the configuration defaults
func NewDefaultConfig() *Config {
	return &Config{
		Phases: PhasesConfig{
			Timeline:      true,
			Conversations: true,
			Export:        false,
		},
		Browser: BrowserConfig{
			BaseURL:           "https://x.com",
			UserDataDir:       "./browser-profile",
			Headless:          false,
			NavigationTimeout: 60 * time.Second,
			OperationTimeout:  30 * time.Second,
			SettleDelay:       4 * time.Second,
		},
		Harvest: HarvestConfig{
			MaxPosts:            -1,
			DuplicateThreshold:  25,
			StagnationRounds:    6,
			TimelineTimeout:     30 * time.Minute,
			ScrollDelay:         4 * time.Second,
			StabilityRounds:     3,
			MaxExpandIterations: 20,
			ExpandTimeout:       2 * time.Minute,
			RootCooldown:        5 * time.Second,
			SessionRecycleEvery: 20,
			ExpanderLabels: []string{
				"show this thread",
				"show replies",
				"show more replies",
				"show more",
				"read more",
			},
		},
		Storage: StorageConfig{
			Badger: BadgerConfig{
				Path: "./data/colligo",
			},
		},
		Export: ExportConfig{
			OutputDir: "./output",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Output: []string{"stdout", "file"},
		},
	}
}

// LoadFromFiles loads configuration from multiple files with priority:
// default -> file1 -> file2 -> ... -> env. Later files override earlier ones.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	applyEnvOverrides(config)

	if err := Validate(config); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate checks structural constraints plus the parts the validator
// tags cannot express (cron syntax, guard values).
func Validate(config *Config) error {
	if err := validator.New().Struct(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if config.Schedule != "" {
		if _, err := cron.ParseStandard(config.Schedule); err != nil {
			return fmt.Errorf("invalid schedule %q: %w", config.Schedule, err)
		}
	}

	if config.Harvest.StagnationRounds <= 0 {
		return fmt.Errorf("harvest.stagnation_rounds must be positive, got %d", config.Harvest.StagnationRounds)
	}
	if config.Harvest.StabilityRounds <= 0 {
		return fmt.Errorf("harvest.stability_rounds must be positive, got %d", config.Harvest.StabilityRounds)
	}
	if config.Harvest.MaxExpandIterations <= 0 {
		return fmt.Errorf("harvest.max_expand_iterations must be positive, got %d", config.Harvest.MaxExpandIterations)
	}
	if config.Harvest.ExpandTimeout <= 0 || config.Harvest.TimelineTimeout <= 0 {
		return fmt.Errorf("harvest loop timeouts must be positive")
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides to config
func applyEnvOverrides(config *Config) {
	if accounts := os.Getenv("COLLIGO_ACCOUNTS"); accounts != "" {
		parsed := []string{}
		for _, a := range strings.Split(accounts, ",") {
			if trimmed := strings.TrimSpace(a); trimmed != "" {
				parsed = append(parsed, trimmed)
			}
		}
		if len(parsed) > 0 {
			config.Accounts = parsed
		}
	}

	if schedule := os.Getenv("COLLIGO_SCHEDULE"); schedule != "" {
		config.Schedule = schedule
	}

	if dir := os.Getenv("COLLIGO_USER_DATA_DIR"); dir != "" {
		config.Browser.UserDataDir = dir
	}
	if execPath := os.Getenv("COLLIGO_BROWSER_EXEC"); execPath != "" {
		config.Browser.ExecPath = execPath
	}
	if headless := os.Getenv("COLLIGO_HEADLESS"); headless != "" {
		if h, err := strconv.ParseBool(headless); err == nil {
			config.Browser.Headless = h
		}
	}

	if maxPosts := os.Getenv("COLLIGO_MAX_POSTS"); maxPosts != "" {
		if m, err := strconv.Atoi(maxPosts); err == nil {
			config.Harvest.MaxPosts = m
		}
	}
	if dupes := os.Getenv("COLLIGO_DUPLICATE_THRESHOLD"); dupes != "" {
		if d, err := strconv.Atoi(dupes); err == nil {
			config.Harvest.DuplicateThreshold = d
		}
	}

	if badgerPath := os.Getenv("COLLIGO_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}

	if level := os.Getenv("COLLIGO_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
	if output := os.Getenv("COLLIGO_LOG_OUTPUT"); output != "" {
		outputs := []string{}
		for _, o := range strings.Split(output, ",") {
			if trimmed := strings.TrimSpace(o); trimmed != "" {
				outputs = append(outputs, trimmed)
			}
		}
		if len(outputs) > 0 {
			config.Logging.Output = outputs
		}
	}
}
