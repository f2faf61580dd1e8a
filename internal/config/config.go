// Package config loads and validates the runtime configuration of one
// rfgraph project.
//
// Values come, in increasing priority, from built-in defaults, an optional
// .rfgraph.yaml in the project root, RFGRAPH_* environment variables, and
// whatever the caller sets afterwards (CLI flags).
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// FileName is the optional per-project configuration file (without extension).
const FileName = ".rfgraph"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RFGRAPH"

// DefaultDataDirName is the data directory created under the project root
// when DataDir is empty.
const DefaultDataDirName = ".rfgraph"

// Backends.
const (
	BackendMemory = "memory"
	BackendBadger = "badger"
)

// ErrInvalidConfig is wrapped by every validation error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the runtime configuration for one project.
type Config struct {
	ProjectRoot         string  `mapstructure:"project_root" json:"project_root"`
	DataDir             string  `mapstructure:"data_dir" json:"data_dir,omitempty"`
	SimilarityThreshold float64 `mapstructure:"similarity_threshold" json:"similarity_threshold"`
	SmokeTestCount      int     `mapstructure:"smoke_test_count" json:"smoke_test_count"`
	Backend             string  `mapstructure:"backend" json:"backend"`
	EmbeddingDimension  int     `mapstructure:"embedding_dimension" json:"embedding_dimension"`
	ParseWorkers        int     `mapstructure:"parse_workers" json:"parse_workers"`

	// Role-assignment path prefixes, relative to ProjectRoot.
	TestsDir     string `mapstructure:"tests_dir" json:"tests_dir"`
	SITDir       string `mapstructure:"sit_dir" json:"sit_dir"`
	ResourcesDir string `mapstructure:"resources_dir" json:"resources_dir"`
	DataDirName  string `mapstructure:"data_dir_name" json:"data_dir_name"`
	MigrationDir string `mapstructure:"migration_dir" json:"migration_dir"`
}

// DefaultConfig returns the default configuration for projectRoot.
func DefaultConfig(projectRoot string) *Config {
	return &Config{
		ProjectRoot:         projectRoot,
		SimilarityThreshold: 0.90,
		SmokeTestCount:      20,
		Backend:             BackendMemory,
		EmbeddingDimension:  256,
		ParseWorkers:        8,
		TestsDir:            "tests",
		SITDir:              "SIT",
		ResourcesDir:        "resources",
		DataDirName:         "data",
		MigrationDir:        "tests/migration",
	}
}

// Load builds the configuration for projectRoot from defaults, the optional
// .rfgraph.yaml file in projectRoot and RFGRAPH_* environment variables. It
// does not validate; call Validate once all overrides are applied.
func Load(projectRoot string) (*Config, error) {
	defaults := DefaultConfig(projectRoot)

	v := viper.New()
	v.SetDefault("project_root", defaults.ProjectRoot)
	v.SetDefault("data_dir", defaults.DataDir)
	v.SetDefault("similarity_threshold", defaults.SimilarityThreshold)
	v.SetDefault("smoke_test_count", defaults.SmokeTestCount)
	v.SetDefault("backend", defaults.Backend)
	v.SetDefault("embedding_dimension", defaults.EmbeddingDimension)
	v.SetDefault("parse_workers", defaults.ParseWorkers)
	v.SetDefault("tests_dir", defaults.TestsDir)
	v.SetDefault("sit_dir", defaults.SITDir)
	v.SetDefault("resources_dir", defaults.ResourcesDir)
	v.SetDefault("data_dir_name", defaults.DataDirName)
	v.SetDefault("migration_dir", defaults.MigrationDir)

	v.SetConfigName(FileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(projectRoot)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading %s.yaml: %w", FileName, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration and fails fast on the first problem.
// Every returned error wraps ErrInvalidConfig.
func (c *Config) Validate() error {
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return &ConfigError{Field: "similarity_threshold", Message: fmt.Sprintf("%v is outside [0, 1]", c.SimilarityThreshold)}
	}
	if c.SmokeTestCount < 0 {
		return &ConfigError{Field: "smoke_test_count", Message: fmt.Sprintf("%d is negative", c.SmokeTestCount)}
	}
	if c.EmbeddingDimension <= 0 {
		return &ConfigError{Field: "embedding_dimension", Message: fmt.Sprintf("%d is not positive", c.EmbeddingDimension)}
	}
	if c.ParseWorkers <= 0 {
		return &ConfigError{Field: "parse_workers", Message: fmt.Sprintf("%d is not positive", c.ParseWorkers)}
	}
	switch c.Backend {
	case BackendMemory, BackendBadger:
	default:
		return &ConfigError{Field: "backend", Message: fmt.Sprintf("unknown backend %q", c.Backend)}
	}

	if c.ProjectRoot == "" {
		return &ConfigError{Field: "project_root", Message: "not set"}
	}
	info, err := os.Stat(c.ProjectRoot)
	if err != nil {
		return &ConfigError{Field: "project_root", Message: err.Error()}
	}
	if !info.IsDir() {
		return &ConfigError{Field: "project_root", Message: fmt.Sprintf("%s is not a directory", c.ProjectRoot)}
	}
	return nil
}

// EffectiveDataDir returns DataDir, or the default data directory under the
// project root when DataDir is empty.
func (c *Config) EffectiveDataDir() string {
	if c.DataDir != "" {
		return c.DataDir
	}
	return filepath.Join(c.ProjectRoot, DefaultDataDirName)
}

// GraphPath returns the node-link graph file inside the data directory.
func (c *Config) GraphPath() string {
	return filepath.Join(c.EffectiveDataDir(), "graph.json")
}

// BadgerPath returns the Badger database directory inside the data directory.
func (c *Config) BadgerPath() string {
	return filepath.Join(c.EffectiveDataDir(), "badger")
}

// ConfigError represents a configuration error.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return "config error in field '" + e.Field + "': " + e.Message
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e *ConfigError) Unwrap() error {
	return ErrInvalidConfig
}
