package repository

import (
	"errors"
	"fmt"

	"github.com/okian/panel/internal/domain/model"
)

// Sentinel kinds for repository errors. ErrNotFound matches model.ErrNotFound.
var (
	ErrNotFound     = fmt.Errorf("record %w", model.ErrNotFound)
	ErrInvalidLimit = errors.New("invalid list limit")
	ErrConflict     = errors.New("record already exists")
)
