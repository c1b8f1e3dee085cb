// Package seed populates a running panel service with generated reviewers,
// criteria and evaluations, then checks the service's consensus analysis
// against a local recomputation.
package seed

import (
	"errors"
	"fmt"
	"time"

	"github.com/okian/panel/internal/domain/consensus"
	"github.com/okian/panel/pkg/logger"
)

// ErrVerification is returned when the service disagrees with the local recomputation.
var ErrVerification = errors.New("verification failed")

// Config holds the seed run settings.
type Config struct {
	BaseURL      string
	Applications int
	Reviewers    int
	// PanelSize reviewers are assigned to every application.
	PanelSize int
	Workers   int
	Timeout   time.Duration
	// Settle bounds how long the run waits for the ranking to include every application.
	Settle time.Duration
	// Seed makes the generated plan reproducible.
	Seed uint64
	// ResendEvery resends every Nth submission to check idempotency. Zero disables it.
	ResendEvery int
	Policy      consensus.Policy
	Verbose     bool
	Logger      logger.Logger
}

// DefaultConfig returns settings suitable for a local service.
func DefaultConfig() Config {
	return Config{
		BaseURL:      "http://localhost:9080",
		Applications: 40,
		Reviewers:    8,
		PanelSize:    3,
		Workers:      8,
		Timeout:      30 * time.Second,
		Settle:       10 * time.Second,
		Seed:         1,
		ResendEvery:  5,
		Policy:       consensus.DefaultPolicy(),
	}
}

// Validate checks the run settings.
func (c Config) Validate() error {
	switch {
	case c.BaseURL == "":
		return fmt.Errorf("base url is required")
	case c.Applications < 1:
		return fmt.Errorf("applications must be positive, got %d", c.Applications)
	case c.PanelSize < 2:
		return fmt.Errorf("panel size must be at least 2, got %d", c.PanelSize)
	case c.Reviewers < c.PanelSize:
		return fmt.Errorf("need at least %d reviewers, got %d", c.PanelSize, c.Reviewers)
	case c.Workers < 1:
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	case c.ResendEvery < 0:
		return fmt.Errorf("resend-every must not be negative, got %d", c.ResendEvery)
	}
	return c.Policy.Validate()
}

func (c Config) log() logger.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return logger.Get().Named("seed")
}

// Report summarises a run.
type Report struct {
	RunID          string
	Reviewers      int
	Criteria       int
	Assignments    int
	Submitted      int
	Duplicates     int
	Failed         int
	Decisions      int
	Verified       int
	Mismatches     []Mismatch
	States         map[consensus.State]int
	RankingChecked bool
	StartTime      time.Time
	Duration       time.Duration
}

// Mismatch describes one application where the service and the local
// recomputation disagree.
type Mismatch struct {
	ApplicationID string
	Diff          string
}
