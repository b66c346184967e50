// Package config loads and validates codesearch configuration.
//
// Configuration is resolved from three layers, lowest priority first:
//  1. Built-in defaults.
//  2. <base>/config.yaml.
//  3. Environment variables (CODESEARCH_HOME, CODESEARCH_DEBUG).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvBaseDir overrides the base data directory (~/.coa/codesearch).
const EnvBaseDir = "CODESEARCH_HOME"

// EnvDebug raises log verbosity to debug when set to a non-empty value.
const EnvDebug = "CODESEARCH_DEBUG"

// Config represents the complete codesearch configuration.
type Config struct {
	Version     int               `yaml:"version" json:"version"`
	BaseDir     string            `yaml:"base_dir" json:"base_dir"`
	Paths       PathsConfig       `yaml:"paths" json:"paths"`
	Index       IndexConfig       `yaml:"index" json:"index"`
	Search      SearchConfig      `yaml:"search" json:"search"`
	Watcher     WatcherConfig     `yaml:"watcher" json:"watcher"`
	Symbols     SymbolsConfig     `yaml:"symbols" json:"symbols"`
	Repair      RepairConfig      `yaml:"repair" json:"repair"`
	Performance PerformanceConfig `yaml:"performance" json:"performance"`
	Logging     LoggingConfig     `yaml:"logging" json:"logging"`
}

// PathsConfig configures which files the indexing pipeline considers.
type PathsConfig struct {
	// IncludeExtensions is the extension allow-list (with leading dot).
	IncludeExtensions []string `yaml:"include_extensions" json:"include_extensions"`

	// Exclude are doublestar patterns excluded from the walk, in addition
	// to the built-in junk directory list.
	Exclude []string `yaml:"exclude" json:"exclude"`

	// MaxFileSize is the per-file size cap in bytes.
	MaxFileSize int64 `yaml:"max_file_size" json:"max_file_size"`
}

// IndexConfig configures the index manager.
type IndexConfig struct {
	// MaxConcurrentIndexes bounds open per-workspace contexts (LRU evicted).
	MaxConcurrentIndexes int `yaml:"max_concurrent_indexes" json:"max_concurrent_indexes"`

	// BatchDocs is the document count that triggers a batch flush.
	BatchDocs int `yaml:"batch_docs" json:"batch_docs"`

	// BatchBytes is the accumulated content size that triggers a batch flush.
	BatchBytes int64 `yaml:"batch_bytes" json:"batch_bytes"`

	// ReaderMaxAge is how long a cached searcher stays fresh without reopen.
	ReaderMaxAge time.Duration `yaml:"reader_max_age" json:"reader_max_age"`

	// LockTimeout bounds writer-lock acquisition.
	LockTimeout time.Duration `yaml:"lock_timeout" json:"lock_timeout"`

	// RAMCeiling is the total buffered-bytes ceiling across workspaces;
	// exceeding it forces an early commit on the largest buffer.
	RAMCeiling int64 `yaml:"ram_ceiling" json:"ram_ceiling"`
}

// SearchConfig configures the query pipeline and response shaping.
type SearchConfig struct {
	MaxResults int `yaml:"max_results" json:"max_results"`

	// TokenBudget is the default response token budget.
	TokenBudget int `yaml:"token_budget" json:"token_budget"`

	// AllowLeadingWildcard permits queries starting with * or ?.
	AllowLeadingWildcard bool `yaml:"allow_leading_wildcard" json:"allow_leading_wildcard"`
}

// WatcherConfig configures the filesystem watcher.
type WatcherConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`

	// Debounce is the inactivity window before coalesced events apply.
	Debounce time.Duration `yaml:"debounce" json:"debounce"`

	// AutoCommit is the maximum interval between watcher-driven commits.
	AutoCommit time.Duration `yaml:"auto_commit" json:"auto_commit"`

	// MaxQueue is the event queue depth before the watcher degrades to a
	// dirty-workspace re-walk.
	MaxQueue int `yaml:"max_queue" json:"max_queue"`
}

// SymbolsConfig configures the external symbol extractor bridge.
type SymbolsConfig struct {
	// ExtractorCommand is the external extractor invocation (argv). Empty
	// disables symbol enrichment.
	ExtractorCommand []string `yaml:"extractor_command" json:"extractor_command"`

	// ExtractorTimeout bounds one bulk extraction run.
	ExtractorTimeout time.Duration `yaml:"extractor_timeout" json:"extractor_timeout"`
}

// RepairConfig configures corruption handling.
type RepairConfig struct {
	// Auto enables backup-and-rebuild on detected corruption.
	Auto bool `yaml:"auto" json:"auto"`
}

// PerformanceConfig configures worker pools.
type PerformanceConfig struct {
	// Workers is the CPU-bound worker pool size (default: NumCPU).
	Workers int `yaml:"workers" json:"workers"`
}

// LoggingConfig configures the log subsystem.
type LoggingConfig struct {
	Level     string `yaml:"level" json:"level"`
	MaxSizeMB int    `yaml:"max_size_mb" json:"max_size_mb"`
	MaxFiles  int    `yaml:"max_files" json:"max_files"`
}

// DefaultIncludeExtensions is the built-in extension allow-list.
var DefaultIncludeExtensions = []string{
	".go", ".cs", ".ts", ".tsx", ".js", ".jsx", ".py", ".rs", ".java",
	".c", ".h", ".cpp", ".hpp", ".rb", ".php", ".swift", ".kt", ".scala",
	".sql", ".sh", ".md", ".json", ".yaml", ".yml", ".toml", ".xml",
	".html", ".css", ".proto",
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: 1,
		BaseDir: DefaultBaseDir(),
		Paths: PathsConfig{
			IncludeExtensions: DefaultIncludeExtensions,
			MaxFileSize:       2 * 1024 * 1024,
		},
		Index: IndexConfig{
			MaxConcurrentIndexes: 8,
			BatchDocs:            200,
			BatchBytes:           8 * 1024 * 1024,
			ReaderMaxAge:         30 * time.Second,
			LockTimeout:          30 * time.Second,
			RAMCeiling:           256 * 1024 * 1024,
		},
		Search: SearchConfig{
			MaxResults:  50,
			TokenBudget: 20000,
		},
		Watcher: WatcherConfig{
			Enabled:    true,
			Debounce:   2 * time.Second,
			AutoCommit: 10 * time.Second,
			MaxQueue:   512,
		},
		Symbols: SymbolsConfig{
			ExtractorTimeout: 2 * time.Minute,
		},
		Repair: RepairConfig{
			Auto: true,
		},
		Performance: PerformanceConfig{
			Workers: runtime.NumCPU(),
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSizeMB: 10,
			MaxFiles:  5,
		},
	}
}

// DefaultBaseDir returns ~/.coa/codesearch, honoring CODESEARCH_HOME.
// Falls back to a temp directory when the home directory is unavailable.
func DefaultBaseDir() string {
	if env := os.Getenv(EnvBaseDir); env != "" {
		return env
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".coa", "codesearch")
	}
	return filepath.Join(home, ".coa", "codesearch")
}

// DebugEnabled reports whether CODESEARCH_DEBUG requests debug logging.
func DebugEnabled() bool {
	return os.Getenv(EnvDebug) != ""
}

// Load reads configuration from <base>/config.yaml, layering it over the
// defaults. A missing file is not an error.
func Load() (*Config, error) {
	cfg := Default()
	path := filepath.Join(cfg.BaseDir, "config.yaml")

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	// The base dir env override wins over the file.
	if env := os.Getenv(EnvBaseDir); env != "" {
		cfg.BaseDir = env
	}
	if DebugEnabled() {
		cfg.Logging.Level = "debug"
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.BaseDir == "" {
		return fmt.Errorf("base_dir must not be empty")
	}
	if c.Index.MaxConcurrentIndexes < 1 {
		return fmt.Errorf("index.max_concurrent_indexes must be >= 1, got %d", c.Index.MaxConcurrentIndexes)
	}
	if c.Index.BatchDocs < 1 {
		return fmt.Errorf("index.batch_docs must be >= 1, got %d", c.Index.BatchDocs)
	}
	if c.Search.TokenBudget < 100 {
		return fmt.Errorf("search.token_budget must be >= 100, got %d", c.Search.TokenBudget)
	}
	if c.Watcher.Debounce <= 0 {
		return fmt.Errorf("watcher.debounce must be positive")
	}
	if c.Performance.Workers < 1 {
		c.Performance.Workers = runtime.NumCPU()
	}
	return nil
}

// Save writes the configuration to <base>/config.yaml.
func (c *Config) Save() error {
	if err := os.MkdirAll(c.BaseDir, 0o755); err != nil {
		return fmt.Errorf("failed to create base dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	path := filepath.Join(c.BaseDir, "config.yaml")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
