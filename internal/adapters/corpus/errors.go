package corpus

import "errors"

// Sentinel kinds for corpus errors.
var (
	ErrMissingColumn     = errors.New("missing required column")
	ErrUnsupportedFormat = errors.New("unsupported corpus format")
	ErrMalformed         = errors.New("malformed corpus")
	ErrInvalidSelector   = errors.New("invalid records selector")
	ErrTooLarge          = errors.New("corpus response too large")
)
