// =============================================================================
// Marketplace Ledger - Configuration Module
// =============================================================================
//
// This module loads the run configuration: which ledger to append to, which
// marketplace exports to read, and how to react to malformed records.
//
// CONFIGURATION FILE (config.yaml):
//   ledger:
//     path: ./master.xlsx
//     sheet: RAW DATA
//     lookup_range: SKU!A:B
//   sources:
//     - format: marketplace1
//       path: ./marketplace_1.csv
//   on_malformed: abort
//
// Every setting has a default, so a run without any config file behaves
// like the historical single-marketplace run.
//
// =============================================================================

package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Malformed record policies.
const (
	// MalformedAbort stops the run at the first malformed record; nothing
	// is saved.
	MalformedAbort = "abort"

	// MalformedSkip logs the record, writes it to the error log and moves on.
	MalformedSkip = "skip"
)

// =============================================================================
// CONFIGURATION STRUCTURES
// =============================================================================

// Config holds the whole run configuration.
type Config struct {
	// Ledger describes the master workbook.
	Ledger LedgerConfig `yaml:"ledger"`

	// Sources are processed in order; rows are appended in that order.
	Sources []SourceConfig `yaml:"sources" validate:"required,min=1,dive"`

	// OnMalformed is "abort" (default) or "skip".
	OnMalformed string `yaml:"on_malformed" validate:"oneof=abort skip"`

	// DryRun runs the full pipeline but never saves the ledger or archives.
	DryRun bool `yaml:"dry_run"`

	// LogLevel is one of "debug", "info", "warn", "error".
	// Default: "info"
	LogLevel string `yaml:"log_level" validate:"oneof=debug info warn error"`

	// LogJSON switches the console logger to JSON output.
	LogJSON bool `yaml:"log_json"`

	// LogsDir receives the error log of skipped records and, when
	// WriteSummary is set, the run summary.
	// Default: "./logs"
	LogsDir string `yaml:"logs_dir"`

	// WriteSummary writes a processing summary file after every run.
	WriteSummary bool `yaml:"write_summary"`

	// ArchiveDir, when set, receives each source file after a successful save.
	ArchiveDir string `yaml:"archive_dir"`

	// ArchiveDated files archived sources under ArchiveDir/YYYY/MM/DD.
	ArchiveDated bool `yaml:"archive_dated"`
}

// LedgerConfig describes the master workbook.
type LedgerConfig struct {
	// Path is the XLSX file rows are appended to.
	// Default: "./master.xlsx"
	Path string `yaml:"path" validate:"required"`

	// Sheet is the sheet rows are appended to.
	// Default: "RAW DATA"
	Sheet string `yaml:"sheet" validate:"required"`

	// LookupRange is the product code -> name table used by the product
	// name formula.
	// Default: "SKU!A:B"
	LookupRange string `yaml:"lookup_range" validate:"required"`
}

// SourceConfig is one marketplace export file.
type SourceConfig struct {
	// Format is a registered source format id, e.g. "marketplace1".
	Format string `yaml:"format" validate:"required"`

	// Path is the export file.
	Path string `yaml:"path" validate:"required"`

	// CSVSettings controls how the file is split into records.
	CSVSettings CSVSettings `yaml:"csv_settings"`
}

// CSVSettings contains settings for reading delimited source files.
type CSVSettings struct {
	// Delimiter separates fields. Accepts a single character or one of
	// "tab", "pipe", "semicolon".
	// Default: ","
	Delimiter string `yaml:"delimiter"`

	// HeaderRows is the number of leading lines to skip.
	// Default: 0 (header lines are normally dropped by the status filter)
	HeaderRows int `yaml:"header_rows" validate:"gte=0"`
}

// =============================================================================
// LOADING
// =============================================================================

// Default returns the configuration used when no config file exists.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

// Load reads, defaults and validates the YAML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// LoadOrDefault loads path, falling back to Default when the file does not
// exist and allowMissing is true.
func LoadOrDefault(path string, allowMissing bool) (*Config, error) {
	cfg, err := Load(path)
	if err != nil && allowMissing && errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Validate checks the struct tags of cfg.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// applyDefaults sets default values for any unset configuration options.
func applyDefaults(cfg *Config) {
	if cfg.Ledger.Path == "" {
		cfg.Ledger.Path = "./master.xlsx"
	}
	if cfg.Ledger.Sheet == "" {
		cfg.Ledger.Sheet = "RAW DATA"
	}
	if cfg.Ledger.LookupRange == "" {
		cfg.Ledger.LookupRange = "SKU!A:B"
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = []SourceConfig{{
			Format: "marketplace1",
			Path:   "./marketplace_1.csv",
		}}
	}
	for i := range cfg.Sources {
		if cfg.Sources[i].CSVSettings.Delimiter == "" {
			cfg.Sources[i].CSVSettings.Delimiter = ","
		}
	}
	if cfg.OnMalformed == "" {
		cfg.OnMalformed = MalformedAbort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogsDir == "" {
		cfg.LogsDir = "./logs"
	}
}
