package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"emcon/domain/experiment"
	"emcon/internal/errors"
)

// DegeneratePolicy controls what memory processing does with an undefined rate
type DegeneratePolicy string

const (
	// DegenerateSkip leaves the cell empty and logs a warning
	DegenerateSkip DegeneratePolicy = "skip"
	// DegenerateAbort fails the subject
	DegenerateAbort DegeneratePolicy = "abort"
)

// Config represents the complete application configuration
type Config struct {
	Paths      PathConfig
	Processing ProcessingConfig
	Store      StoreConfig
	Figures    FigureConfig
	Logging    LoggingConfig
}

// PathConfig holds file system locations. Empty sub-directories are derived from DataDir.
type PathConfig struct {
	DataDir        string
	PsychopyDir    string
	BehavioralDir  string
	ERPDir         string
	PlotsDir       string
	RepairManifest string
}

// ProcessingConfig holds behavioral processing parameters
type ProcessingConfig struct {
	RTUnit           experiment.RTUnit
	RTOffset         float64 // seconds added to every gamepad RT
	TrimProportion   float64
	SubjectIDLength  int
	Workers          int
	DegeneratePolicy DegeneratePolicy
}

// StoreConfig selects the optional SQL summary store
type StoreConfig struct {
	Driver string // "", "sqlite" or "postgres"
	DSN    string
}

// Enabled reports whether a store is configured
func (s StoreConfig) Enabled() bool {
	return s.Driver != ""
}

// FigureConfig holds figure rendering settings
type FigureConfig struct {
	Format           string
	DropSubjects     []string
	ExpectedSubjects int
}

// LoggingConfig holds log output settings
type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := FromEnv()
	config.ResolvePaths()

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

// FromEnv reads environment variables without deriving directories or
// validating, so command-line overrides can be applied first
func FromEnv() *Config {
	return &Config{
		Paths:      *loadPathConfig(),
		Processing: *loadProcessingConfig(),
		Store:      *loadStoreConfig(),
		Figures:    *loadFigureConfig(),
		Logging:    *loadLoggingConfig(),
	}
}

// Default returns the configuration used when no environment is set
func Default(dataDir string) *Config {
	config := &Config{
		Paths: PathConfig{DataDir: dataDir},
		Processing: ProcessingConfig{
			RTUnit:           experiment.Milliseconds,
			RTOffset:         0.05,
			TrimProportion:   0.2,
			SubjectIDLength:  8,
			Workers:          4,
			DegeneratePolicy: DegenerateSkip,
		},
		Figures: FigureConfig{Format: "png"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
	config.ResolvePaths()
	return config
}

// ResolvePaths fills unset directories from the data directory layout
func (c *Config) ResolvePaths() {
	p := &c.Paths
	if p.DataDir == "" {
		p.DataDir = "."
	}
	if p.PsychopyDir == "" {
		p.PsychopyDir = filepath.Join(p.DataDir, "psychopy")
	}
	if p.BehavioralDir == "" {
		p.BehavioralDir = filepath.Join(p.DataDir, "stats", "behavioral")
	}
	if p.ERPDir == "" {
		p.ERPDir = filepath.Join(p.DataDir, "stats", "erp", "avg", "data")
	}
	if p.PlotsDir == "" {
		p.PlotsDir = filepath.Join(p.BehavioralDir, "plots")
	}
	if p.RepairManifest == "" {
		p.RepairManifest = filepath.Join(p.PsychopyDir, "repairs.yaml")
	}
}

// Validate checks value ranges
func (c *Config) Validate() error {
	pc := c.Processing
	if _, err := experiment.ParseRTUnit(string(pc.RTUnit)); err != nil {
		return errors.ConfigInvalid(err.Error())
	}
	if pc.TrimProportion < 0 || pc.TrimProportion >= 0.5 {
		return errors.ConfigInvalid("trim proportion must be in [0, 0.5)")
	}
	if pc.SubjectIDLength < 1 {
		return errors.ConfigInvalid("subject ID length must be positive")
	}
	if pc.Workers < 1 {
		return errors.ConfigInvalid("workers must be at least 1")
	}
	switch pc.DegeneratePolicy {
	case DegenerateSkip, DegenerateAbort:
	default:
		return errors.ConfigInvalid("degenerate policy must be skip or abort")
	}
	switch c.Store.Driver {
	case "", "sqlite", "postgres":
	default:
		return errors.ConfigInvalid("store driver must be sqlite or postgres")
	}
	if c.Store.Enabled() && c.Store.DSN == "" {
		return errors.ConfigInvalid("EMCON_STORE_DSN is required when a store driver is set")
	}
	return nil
}

func loadPathConfig() *PathConfig {
	return &PathConfig{
		DataDir:        getEnvOrDefault("EMCON_DATA_DIR", "."),
		PsychopyDir:    getEnvOrDefault("EMCON_PSYCHOPY_DIR", ""),
		BehavioralDir:  getEnvOrDefault("EMCON_BEHAVIORAL_DIR", ""),
		ERPDir:         getEnvOrDefault("EMCON_ERP_DIR", ""),
		PlotsDir:       getEnvOrDefault("EMCON_PLOTS_DIR", ""),
		RepairManifest: getEnvOrDefault("EMCON_REPAIR_MANIFEST", ""),
	}
}

func loadProcessingConfig() *ProcessingConfig {
	raw := getEnvOrDefault("EMCON_RT_UNIT", "ms")
	unit, err := experiment.ParseRTUnit(raw)
	if err != nil {
		// kept as given; Validate rejects it
		unit = experiment.RTUnit(raw)
	}

	return &ProcessingConfig{
		RTUnit:           unit,
		RTOffset:         getEnvFloatOrDefault("EMCON_RT_OFFSET", 0.05), // gamepad component starts late
		TrimProportion:   getEnvFloatOrDefault("EMCON_TRIM_PROPORTION", 0.2),
		SubjectIDLength:  getEnvIntOrDefault("EMCON_SUBJECT_ID_LENGTH", 8),
		Workers:          getEnvIntOrDefault("EMCON_WORKERS", 4),
		DegeneratePolicy: DegeneratePolicy(strings.ToLower(getEnvOrDefault("EMCON_DEGENERATE_POLICY", string(DegenerateSkip)))),
	}
}

func loadStoreConfig() *StoreConfig {
	return &StoreConfig{
		Driver: strings.ToLower(getEnvOrDefault("EMCON_STORE_DRIVER", "")),
		DSN:    getEnvOrDefault("EMCON_STORE_DSN", ""),
	}
}

func loadFigureConfig() *FigureConfig {
	return &FigureConfig{
		Format:           getEnvOrDefault("EMCON_PLOT_FORMAT", "png"),
		DropSubjects:     getEnvListOrDefault("EMCON_DROP_SUBJECTS", nil),
		ExpectedSubjects: getEnvIntOrDefault("EMCON_EXPECTED_SUBJECTS", 0),
	}
}

func loadLoggingConfig() *LoggingConfig {
	return &LoggingConfig{
		Level:  getEnvOrDefault("LOG_LEVEL", "info"),
		Format: getEnvOrDefault("LOG_FORMAT", "text"),
	}
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
