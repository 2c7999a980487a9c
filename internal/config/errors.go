package config

import (
	"errors"
)

// Sentinel error kinds for this package. Callers match them with errors.Is.
var (
	// ErrInvalidConfig reports a value outside its allowed range.
	ErrInvalidConfig = errors.New("invalid config")
	// ErrLoadConfig reports an unreadable file or an undecodable value.
	ErrLoadConfig = errors.New("load config failed")
)
