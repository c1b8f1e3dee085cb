package model

import "errors"

// Shared error taxonomy. Insufficient data is reported as a status, not an error.
var (
	ErrNotFound              = errors.New("not found")
	ErrInvalidRange          = errors.New("value out of range")
	ErrInvalidCategory       = errors.New("invalid category")
	ErrInvalidRecommendation = errors.New("invalid recommendation")
	ErrInvalidStage          = errors.New("invalid stage")
)
