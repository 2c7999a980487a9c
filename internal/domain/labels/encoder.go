// Package labels maps string labels to contiguous class indices.
package labels

import (
	"errors"
	"fmt"
	"sort"
)

// Sentinel errors for this package.
var (
	ErrEmptyLabels   = errors.New("no labels to fit")
	ErrUnknownLabel  = errors.New("unknown label")
	ErrUnknownIndex  = errors.New("class index out of range")
	ErrInvalidLabels = errors.New("invalid label space")
)

// Encoder is a bijection between an ordered label space and [0, Len()).
// It is immutable once built.
type Encoder struct {
	classes []string
	index   map[string]int
}

// Fit builds an encoder from observed labels. Classes are the sorted set of
// distinct values.
func Fit(observed []string) (*Encoder, error) {
	if len(observed) == 0 {
		return nil, ErrEmptyLabels
	}
	set := make(map[string]struct{}, 8)
	for _, l := range observed {
		set[l] = struct{}{}
	}
	classes := make([]string, 0, len(set))
	for l := range set {
		classes = append(classes, l)
	}
	sort.Strings(classes)
	return FromClasses(classes)
}

// FromClasses builds an encoder from an explicit, strictly increasing label list.
func FromClasses(classes []string) (*Encoder, error) {
	if len(classes) == 0 {
		return nil, ErrEmptyLabels
	}
	e := &Encoder{
		classes: append([]string(nil), classes...),
		index:   make(map[string]int, len(classes)),
	}
	for i, c := range e.classes {
		if i > 0 && e.classes[i-1] >= c {
			return nil, fmt.Errorf("%w: classes not sorted and unique at %q", ErrInvalidLabels, c)
		}
		e.index[c] = i
	}
	return e, nil
}

// Encode returns the index of label.
func (e *Encoder) Encode(label string) (int, error) {
	i, ok := e.index[label]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownLabel, label)
	}
	return i, nil
}

// EncodeAll encodes every label, failing on the first unknown one.
func (e *Encoder) EncodeAll(labels []string) ([]int, error) {
	out := make([]int, len(labels))
	for i, l := range labels {
		idx, err := e.Encode(l)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = idx
	}
	return out, nil
}

// Decode returns the label at index i.
func (e *Encoder) Decode(i int) (string, error) {
	if i < 0 || i >= len(e.classes) {
		return "", fmt.Errorf("%w: %d of %d", ErrUnknownIndex, i, len(e.classes))
	}
	return e.classes[i], nil
}

// Classes returns a copy of the ordered label space.
func (e *Encoder) Classes() []string {
	return append([]string(nil), e.classes...)
}

// Len is the number of classes.
func (e *Encoder) Len() int { return len(e.classes) }
