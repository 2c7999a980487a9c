package artifact

import "errors"

// Sentinel kinds for artifact errors.
var (
	// ErrMissingArtifact is returned when a required file does not exist.
	// The underlying fs.ErrNotExist is preserved in the chain.
	ErrMissingArtifact = errors.New("missing artifact")
	// ErrCorruptArtifact is returned when a file cannot be decoded or its
	// content fails validation.
	ErrCorruptArtifact = errors.New("corrupt artifact")
	// ErrBundleMismatch is returned when files from different runs are mixed.
	ErrBundleMismatch = errors.New("artifact bundle mismatch")
)
