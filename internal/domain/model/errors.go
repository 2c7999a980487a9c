package model

import "errors"

// Errors shared by the service and its transports.
var (
	// ErrNotReady means no artifact bundle is loaded.
	ErrNotReady = errors.New("model not loaded")
	// ErrBackpressure means the batch queue cannot take more work.
	ErrBackpressure = errors.New("batch queue full")
)
