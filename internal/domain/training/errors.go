package training

import "errors"

// Sentinel errors for this package.
var (
	// ErrConfiguration reports data or settings that make training impossible,
	// such as a degenerate label space or a split that cannot be stratified.
	ErrConfiguration = errors.New("training configuration error")
	// ErrPersist reports a failure while handing the models to the store.
	ErrPersist = errors.New("persist models failed")
)
