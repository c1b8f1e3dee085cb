// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New() returns defaults; Load layers file and environment on top.
// - External errors are wrapped with ErrLoadConfig or ErrInvalidConfig.
package config

import (
	"fmt"
	"runtime"
	"sort"
	"strconv"
	"strings"
)

// Store backends.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`
	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// QueueSize bounds the in-memory summary recompute queue.
	QueueSize int `koanf:"queue_size"`
	// WorkerCount sets the number of recompute workers.
	WorkerCount int `koanf:"worker_count"`
	// DedupeSize bounds the submission idempotency cache.
	DedupeSize int `koanf:"dedupe_size"`
	// MaxListLimit caps GET /applications?limit.
	MaxListLimit int `koanf:"max_list_limit"`

	// Store selects the persistence backend: memory or postgres.
	Store string `koanf:"store"`
	// DatabaseURL is the pgx connection string used when Store is postgres.
	DatabaseURL string `koanf:"database_url"`

	// ScoreScale is the reporting scale of evaluation overall scores.
	ScoreScale float64 `koanf:"score_scale"`
	// AgreementThreshold is the minimum combined agreement (0-100) for auto resolution.
	AgreementThreshold float64 `koanf:"agreement_threshold"`
	// MaxStdDev escalates any application whose score deviation exceeds it.
	MaxStdDev float64 `koanf:"max_std_dev"`
	// MinEvaluations is the number of completed evaluations needed before resolving.
	MinEvaluations int `koanf:"min_evaluations"`
	// ScorePenaltySlope scales the linear standard-deviation penalty.
	ScorePenaltySlope float64 `koanf:"score_penalty_slope"`
	// LevelWeights maps competency level ("1".."5") to its default weight multiplier.
	LevelWeights map[string]float64 `koanf:"level_weights"`
}

// New creates a Config populated with defaults.
func New() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		Addr:               ":9080",
		QueueSize:          10_000,
		WorkerCount:        runtime.NumCPU(),
		DedupeSize:         100_000,
		MaxListLimit:       100,
		Store:              StoreMemory,
		ScoreScale:         10,
		AgreementThreshold: 70,
		MaxStdDev:          15,
		MinEvaluations:     2,
		ScorePenaltySlope:  1,
		LevelWeights: map[string]float64{
			"1": 0.5,
			"2": 0.8,
			"3": 1.0,
			"4": 1.3,
			"5": 1.7,
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.Store != StoreMemory && c.Store != StorePostgres:
		return fmt.Errorf("%w: %w %q", ErrInvalidConfig, ErrUnknownStore, c.Store)
	case c.Store == StorePostgres && strings.TrimSpace(c.DatabaseURL) == "":
		return fmt.Errorf("%w: database_url is required for the postgres store", ErrInvalidConfig)
	case c.ScoreScale <= 0:
		return fmt.Errorf("%w: score_scale must be positive", ErrInvalidConfig)
	case c.AgreementThreshold < 0 || c.AgreementThreshold > 100:
		return fmt.Errorf("%w: agreement_threshold must be within [0,100]", ErrInvalidConfig)
	case c.MaxStdDev <= 0:
		return fmt.Errorf("%w: max_std_dev must be positive", ErrInvalidConfig)
	case c.MinEvaluations < 2:
		return fmt.Errorf("%w: min_evaluations must be at least 2", ErrInvalidConfig)
	case c.ScorePenaltySlope < 0:
		return fmt.Errorf("%w: score_penalty_slope must not be negative", ErrInvalidConfig)
	}
	if _, err := c.LevelWeightTable(); err != nil {
		return err
	}
	return nil
}

// LevelWeightTable converts LevelWeights into an int-keyed table.
func (c *Config) LevelWeightTable() (map[int]float64, error) {
	out := make(map[int]float64, len(c.LevelWeights))
	keys := make([]string, 0, len(c.LevelWeights))
	for k := range c.LevelWeights {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		level, err := strconv.Atoi(strings.TrimSpace(k))
		if err != nil {
			return nil, fmt.Errorf("%w: level_weights key %q is not a level", ErrInvalidConfig, k)
		}
		out[level] = c.LevelWeights[k]
	}
	return out, nil
}
