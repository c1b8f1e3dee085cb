package scoring

import "errors"

// ErrDuplicateScore reports a criterion scored more than once in one evaluation.
var ErrDuplicateScore = errors.New("criterion scored more than once")
