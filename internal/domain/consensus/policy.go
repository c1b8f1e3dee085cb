package consensus

import (
	"fmt"
	"math"

	"github.com/okian/panel/internal/domain/model"
)

// AgreementCurve turns a score standard deviation into a 0-100 agreement.
type AgreementCurve interface {
	ScoreAgreement(stdDev float64) float64
}

// LinearPenalty subtracts Slope points of agreement per unit of deviation.
type LinearPenalty struct {
	Slope float64
}

// ScoreAgreement implements AgreementCurve.
func (p LinearPenalty) ScoreAgreement(stdDev float64) float64 {
	return math.Max(0, math.Min(100, 100-p.Slope*stdDev))
}

// Policy holds the escalation knobs.
type Policy struct {
	// AgreementThreshold is the lowest combined agreement that may auto-resolve.
	AgreementThreshold float64
	// MaxStdDev escalates regardless of agreement when exceeded.
	MaxStdDev float64
	// MinEvaluations completed, scored evaluations are needed before resolving.
	MinEvaluations int
	Curve          AgreementCurve
}

// DefaultPolicy returns threshold 70, max deviation 15, two evaluations and a unit linear penalty.
func DefaultPolicy() Policy {
	return Policy{
		AgreementThreshold: 70,
		MaxStdDev:          15,
		MinEvaluations:     2,
		Curve:              LinearPenalty{Slope: 1},
	}
}

// Validate checks the policy bounds.
func (p Policy) Validate() error {
	switch {
	case p.AgreementThreshold < 0 || p.AgreementThreshold > 100:
		return fmt.Errorf("%w: agreement threshold %v", model.ErrInvalidRange, p.AgreementThreshold)
	case p.MaxStdDev <= 0:
		return fmt.Errorf("%w: max std dev %v", model.ErrInvalidRange, p.MaxStdDev)
	case p.MinEvaluations < 2:
		return fmt.Errorf("%w: min evaluations %d", model.ErrInvalidRange, p.MinEvaluations)
	case p.Curve == nil:
		return fmt.Errorf("%w: missing agreement curve", model.ErrInvalidRange)
	}
	return nil
}
