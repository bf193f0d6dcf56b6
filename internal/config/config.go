// Package config provides Viper-based configuration loading for the planeta simulator.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variable overrides, e.g. PLANETA_LOGGING_LEVEL.
const EnvPrefix = "PLANETA"

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
// Postcondition: Returns a valid PostgreSQL DSN string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// StorageConfig switches PostgreSQL persistence on or off.
type StorageConfig struct {
	// Enabled connects to the database, restores creatures at startup and
	// checkpoints them while running.
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// SimulationConfig drives the evolution loop.
type SimulationConfig struct {
	// TickInterval is the wall-clock period between simulation steps.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// RegenInterval is the period of one regeneration pulse.
	RegenInterval time.Duration `mapstructure:"regen_interval"`
	// MutationInterval is the simulated time between mutation checks.
	MutationInterval time.Duration `mapstructure:"mutation_interval"`
	// HazardInterval is the simulated time between hazard rolls.
	HazardInterval time.Duration `mapstructure:"hazard_interval"`
	// CrisisChance is the per-hazard-roll probability of a planet crisis.
	CrisisChance float64 `mapstructure:"crisis_chance"`
	// Seed makes runs reproducible. Zero selects a cryptographic source.
	Seed uint64 `mapstructure:"seed"`
	// Population is the number of creatures spawned when none are restored.
	Population int `mapstructure:"population"`
	// Respawn starts a new lineage, one generation on, for every death.
	Respawn bool `mapstructure:"respawn"`
	// Competition runs a ranking and pairwise duel round among living
	// creatures once per mutation interval.
	Competition bool `mapstructure:"competition"`
	// StartEnvironment is the environment ID new creatures are spawned into.
	StartEnvironment string `mapstructure:"start_environment"`
	// CheckpointInterval is how often creatures are saved. Zero disables
	// periodic checkpoints; a final checkpoint still runs at shutdown.
	CheckpointInterval time.Duration `mapstructure:"checkpoint_interval"`
}

// ContentConfig locates data files.
type ContentConfig struct {
	EnvironmentsDir string `mapstructure:"environments_dir"`
	// ScriptsDir holds Lua hooks. Empty disables scripting.
	ScriptsDir string `mapstructure:"scripts_dir"`
}

// FossilConfig controls the fossil record.
type FossilConfig struct {
	// CSVPath is the append-only hall of fame file. Empty disables it.
	CSVPath string `mapstructure:"csv_path"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging    LoggingConfig    `mapstructure:"logging"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Simulation SimulationConfig `mapstructure:"simulation"`
	Content    ContentConfig    `mapstructure:"content"`
	Fossils    FossilConfig     `mapstructure:"fossils"`
}

// Validate checks all configuration invariants. Database settings are only
// checked when storage is enabled.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Storage.Enabled {
		if err := validateDatabase(c.Database); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if err := validateSimulation(c.Simulation); err != nil {
		errs = append(errs, err.Error())
	}
	if c.Content.EnvironmentsDir == "" {
		errs = append(errs, "content.environments_dir must not be empty")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateDatabase(d DatabaseConfig) error {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if d.Port < 1 || d.Port > 65535 {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateSimulation(s SimulationConfig) error {
	var errs []string
	positive := []struct {
		key string
		d   time.Duration
	}{
		{"simulation.tick_interval", s.TickInterval},
		{"simulation.regen_interval", s.RegenInterval},
		{"simulation.mutation_interval", s.MutationInterval},
		{"simulation.hazard_interval", s.HazardInterval},
	}
	for _, p := range positive {
		if p.d <= 0 {
			errs = append(errs, fmt.Sprintf("%s must be > 0, got %s", p.key, p.d))
		}
	}
	if s.CheckpointInterval < 0 {
		errs = append(errs, "simulation.checkpoint_interval must not be negative")
	}
	if s.CrisisChance < 0 || s.CrisisChance > 1 {
		errs = append(errs, fmt.Sprintf("simulation.crisis_chance must be in [0, 1], got %v", s.CrisisChance))
	}
	if s.Population < 0 {
		errs = append(errs, fmt.Sprintf("simulation.population must be >= 0, got %d", s.Population))
	}
	if s.StartEnvironment == "" {
		errs = append(errs, "simulation.start_environment must not be empty")
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := NewViper()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// NewViper returns a Viper instance carrying the defaults and PLANETA_
// environment overrides, with no config file attached.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "planeta")
	v.SetDefault("database.password", "planeta")
	v.SetDefault("database.name", "planeta")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("storage.enabled", false)

	v.SetDefault("simulation.tick_interval", "1s")
	v.SetDefault("simulation.regen_interval", "5s")
	v.SetDefault("simulation.mutation_interval", "10s")
	v.SetDefault("simulation.hazard_interval", "3s")
	v.SetDefault("simulation.crisis_chance", 0.01)
	v.SetDefault("simulation.seed", 0)
	v.SetDefault("simulation.population", 12)
	v.SetDefault("simulation.respawn", true)
	v.SetDefault("simulation.competition", false)
	v.SetDefault("simulation.start_environment", "ocean")
	v.SetDefault("simulation.checkpoint_interval", "1m")

	v.SetDefault("content.environments_dir", "content/environments")
	v.SetDefault("content.scripts_dir", "content/scripts")

	v.SetDefault("fossils.csv_path", "")
}
