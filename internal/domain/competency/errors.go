package competency

import "errors"

var (
	// ErrStore wraps failures reported by the backing Store.
	ErrStore = errors.New("competency store failed")
	// ErrSuperseded marks an entry replaced by a later entry for the same category.
	ErrSuperseded = errors.New("superseded by a later entry")
)
