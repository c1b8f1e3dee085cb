package competency

import (
	"fmt"
	"math"

	"github.com/okian/panel/internal/domain/model"
)

// WeightTable maps a competency level to its default weight multiplier.
// The zero value is not usable; build one with NewWeightTable or DefaultWeightTable.
type WeightTable struct {
	weights [model.MaxLevel + 1]float64
}

// DefaultWeightTable returns the stock novice-to-expert mapping.
func DefaultWeightTable() WeightTable {
	t, _ := NewWeightTable(map[int]float64{1: 0.5, 2: 0.8, 3: 1.0, 4: 1.3, 5: 1.7})
	return t
}

// NewWeightTable validates that every level has a weight inside the allowed band.
func NewWeightTable(levels map[int]float64) (WeightTable, error) {
	var t WeightTable
	for level := model.MinLevel; level <= model.MaxLevel; level++ {
		w, ok := levels[level]
		if !ok {
			return WeightTable{}, fmt.Errorf("%w: level %d has no weight", model.ErrInvalidRange, level)
		}
		if math.IsNaN(w) || w < model.MinWeight || w > model.MaxWeight {
			return WeightTable{}, fmt.Errorf("%w: level %d weight %v outside [%v,%v]",
				model.ErrInvalidRange, level, w, model.MinWeight, model.MaxWeight)
		}
		t.weights[level] = w
	}
	for level := range levels {
		if level < model.MinLevel || level > model.MaxLevel {
			return WeightTable{}, fmt.Errorf("%w: unknown level %d", model.ErrInvalidRange, level)
		}
	}
	return t, nil
}

// For returns the weight for level, clamping the level first.
func (t WeightTable) For(level int) float64 {
	return t.weights[ClampLevel(level)]
}

func (t WeightTable) valid() bool {
	return t.weights[model.MinLevel] > 0
}

// ClampLevel forces level into [1,5].
func ClampLevel(level int) int {
	switch {
	case level < model.MinLevel:
		return model.MinLevel
	case level > model.MaxLevel:
		return model.MaxLevel
	default:
		return level
	}
}

// ClampWeight forces weight into [0.5,2.0]. NaN is not clampable.
func ClampWeight(weight float64) (float64, error) {
	if math.IsNaN(weight) {
		return 0, fmt.Errorf("%w: weight is NaN", model.ErrInvalidRange)
	}
	return math.Max(model.MinWeight, math.Min(model.MaxWeight, weight)), nil
}
