package vectorize

import "errors"

// Sentinel errors for this package.
var (
	ErrNotFitted       = errors.New("vectorizer not fitted")
	ErrEmptyCorpus     = errors.New("empty corpus")
	ErrEmptyVocabulary = errors.New("empty vocabulary after pruning")
	ErrInvalidOptions  = errors.New("invalid vectorizer options")
	ErrInvalidState    = errors.New("invalid vectorizer state")
)
