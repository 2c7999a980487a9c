package predict

import (
	"fmt"
	"slices"

	"github.com/okian/triage/internal/domain/classifier"
	"github.com/okian/triage/internal/domain/labels"
	"github.com/okian/triage/internal/domain/model"
	"github.com/okian/triage/internal/domain/vectorize"
)

// Bundle is the full set of fitted artifacts required to serve predictions.
// It is only valid as a unit; Validate checks that every piece belongs to
// the same vocabulary and label spaces.
type Bundle struct {
	Vectorizer      *vectorize.Vectorizer
	CategoryEncoder *labels.Encoder
	PriorityEncoder *labels.Encoder
	CategoryModel   *classifier.Model
	PriorityModel   *classifier.Model
	Metadata        model.Metadata
}

// Fingerprint recomputes the content hash of the preprocessing artifacts.
func (b *Bundle) Fingerprint() string {
	return model.Fingerprint(b.Vectorizer.Terms(), b.Vectorizer.IDF(),
		b.CategoryEncoder.Classes(), b.PriorityEncoder.Classes())
}

// Validate checks that the models match the vectorizer width and the label
// spaces, and that the metadata was produced from these exact artifacts.
func (b *Bundle) Validate() error {
	if b == nil || b.Vectorizer == nil || b.CategoryEncoder == nil || b.PriorityEncoder == nil ||
		b.CategoryModel == nil || b.PriorityModel == nil {
		return fmt.Errorf("%w: incomplete bundle", ErrInvalidBundle)
	}
	if !b.Vectorizer.Fitted() {
		return fmt.Errorf("%w: vectorizer not fitted", ErrInvalidBundle)
	}

	dim := b.Vectorizer.Dim()
	heads := []struct {
		name string
		m    *classifier.Model
		enc  *labels.Encoder
		meta model.TargetMetadata
	}{
		{model.TargetCategory, b.CategoryModel, b.CategoryEncoder, b.Metadata.CategoryModel},
		{model.TargetPriority, b.PriorityModel, b.PriorityEncoder, b.Metadata.PriorityModel},
	}
	for _, h := range heads {
		if err := h.m.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidBundle, h.name, err)
		}
		if h.m.Features != dim {
			return fmt.Errorf("%w: %s model expects %d features, vectorizer has %d", ErrInvalidBundle, h.name, h.m.Features, dim)
		}
		if h.m.Classes != h.enc.Len() {
			return fmt.Errorf("%w: %s model has %d classes, encoder has %d", ErrInvalidBundle, h.name, h.m.Classes, h.enc.Len())
		}
		if !slices.Equal(h.meta.Classes, h.enc.Classes()) {
			return fmt.Errorf("%w: %s metadata classes differ from encoder", ErrInvalidBundle, h.name)
		}
	}

	if fp := b.Fingerprint(); b.Metadata.TrainingInfo.Fingerprint != fp {
		return fmt.Errorf("%w: metadata fingerprint %q, artifacts %q", ErrInvalidBundle, b.Metadata.TrainingInfo.Fingerprint, fp)
	}
	return nil
}
