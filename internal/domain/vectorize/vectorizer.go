// Package vectorize turns request text into TF-IDF feature vectors.
//
// A Vectorizer is fit once on a corpus and is read-only afterwards, so a
// fitted instance can be shared by concurrent callers.
package vectorize

import (
	"fmt"
	"math"
	"sort"
)

// Default options.
const (
	DefaultMaxFeatures = 5000
	DefaultMinDF       = 1
	DefaultMaxDF       = 1.0
	DefaultNgramMin    = 1
	DefaultNgramMax    = 2
)

// Vector is a sparse row. Indices are strictly increasing and Values holds
// the matching weights.
type Vector struct {
	Indices []int     `msgpack:"i"`
	Values  []float64 `msgpack:"v"`
	Dim     int       `msgpack:"d"`
}

// Dot returns the dot product of v with a dense row of length v.Dim.
func (v Vector) Dot(dense []float64) float64 {
	var s float64
	for k, idx := range v.Indices {
		s += v.Values[k] * dense[idx]
	}
	return s
}

// NNZ reports the number of stored entries.
func (v Vector) NNZ() int { return len(v.Indices) }

// Option configures a Vectorizer before Fit.
type Option func(*Vectorizer)

// WithNgramRange sets the inclusive word n-gram range.
func WithNgramRange(minN, maxN int) Option {
	return func(v *Vectorizer) {
		v.ngramMin, v.ngramMax = minN, maxN
	}
}

// WithMinDF drops terms that appear in fewer than n documents.
func WithMinDF(n int) Option {
	return func(v *Vectorizer) { v.minDF = n }
}

// WithMaxDF drops terms that appear in more than the given fraction of documents.
func WithMaxDF(ratio float64) Option {
	return func(v *Vectorizer) { v.maxDF = ratio }
}

// WithMaxFeatures keeps only the n most frequent terms; 0 keeps all.
func WithMaxFeatures(n int) Option {
	return func(v *Vectorizer) { v.maxFeatures = n }
}

// Vectorizer is a TF-IDF vectorizer with smoothed IDF and L2 row normalization.
type Vectorizer struct {
	ngramMin    int
	ngramMax    int
	minDF       int
	maxDF       float64
	maxFeatures int

	terms []string
	index map[string]int
	idf   []float64
}

// New creates an unfitted Vectorizer.
func New(opts ...Option) *Vectorizer {
	v := &Vectorizer{
		ngramMin:    DefaultNgramMin,
		ngramMax:    DefaultNgramMax,
		minDF:       DefaultMinDF,
		maxDF:       DefaultMaxDF,
		maxFeatures: DefaultMaxFeatures,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Vectorizer) validate() error {
	switch {
	case v.ngramMin < 1 || v.ngramMax < v.ngramMin:
		return fmt.Errorf("%w: ngram range (%d,%d)", ErrInvalidOptions, v.ngramMin, v.ngramMax)
	case v.minDF < 1:
		return fmt.Errorf("%w: min_df %d", ErrInvalidOptions, v.minDF)
	case v.maxDF <= 0 || v.maxDF > 1:
		return fmt.Errorf("%w: max_df %v", ErrInvalidOptions, v.maxDF)
	case v.maxFeatures < 0:
		return fmt.Errorf("%w: max_features %d", ErrInvalidOptions, v.maxFeatures)
	}
	return nil
}

// Fit learns the vocabulary and IDF weights from docs. Calling Fit on a
// fitted Vectorizer is an error.
func (v *Vectorizer) Fit(docs []string) error {
	if v.Fitted() {
		return fmt.Errorf("%w: already fitted", ErrInvalidOptions)
	}
	if err := v.validate(); err != nil {
		return err
	}
	if len(docs) == 0 {
		return ErrEmptyCorpus
	}

	df := make(map[string]int)
	tf := make(map[string]int)
	seen := make(map[string]struct{})
	for _, doc := range docs {
		clear(seen)
		for _, g := range analyze(doc, v.ngramMin, v.ngramMax) {
			tf[g]++
			if _, ok := seen[g]; ok {
				continue
			}
			seen[g] = struct{}{}
			df[g]++
		}
	}

	n := len(docs)
	maxDocCount := int(math.Floor(v.maxDF * float64(n)))
	if v.maxDF == 1 {
		maxDocCount = n
	}
	if maxDocCount < v.minDF {
		return fmt.Errorf("%w: max_df corresponds to fewer documents than min_df", ErrInvalidOptions)
	}

	terms := make([]string, 0, len(df))
	for term, count := range df {
		if count < v.minDF || count > maxDocCount {
			continue
		}
		terms = append(terms, term)
	}
	if len(terms) == 0 {
		return ErrEmptyVocabulary
	}

	if v.maxFeatures > 0 && len(terms) > v.maxFeatures {
		sort.Slice(terms, func(i, j int) bool {
			if tf[terms[i]] != tf[terms[j]] {
				return tf[terms[i]] > tf[terms[j]]
			}
			return terms[i] < terms[j]
		})
		terms = terms[:v.maxFeatures]
	}
	sort.Strings(terms)

	v.terms = terms
	v.index = make(map[string]int, len(terms))
	v.idf = make([]float64, len(terms))
	for i, term := range terms {
		v.index[term] = i
		v.idf[i] = math.Log(float64(1+n)/float64(1+df[term])) + 1
	}
	return nil
}

// Transform maps doc to an L2-normalized TF-IDF vector. Terms outside the
// vocabulary are ignored; a document with no known terms yields an empty vector.
func (v *Vectorizer) Transform(doc string) (Vector, error) {
	if !v.Fitted() {
		return Vector{}, ErrNotFitted
	}

	counts := make(map[int]float64)
	for _, g := range analyze(doc, v.ngramMin, v.ngramMax) {
		if idx, ok := v.index[g]; ok {
			counts[idx]++
		}
	}

	out := Vector{
		Indices: make([]int, 0, len(counts)),
		Values:  make([]float64, 0, len(counts)),
		Dim:     len(v.terms),
	}
	for idx := range counts {
		out.Indices = append(out.Indices, idx)
	}
	sort.Ints(out.Indices)

	var norm float64
	for _, idx := range out.Indices {
		w := counts[idx] * v.idf[idx]
		out.Values = append(out.Values, w)
		norm += w * w
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for k := range out.Values {
			out.Values[k] /= norm
		}
	}
	return out, nil
}

// TransformAll transforms every document.
func (v *Vectorizer) TransformAll(docs []string) ([]Vector, error) {
	out := make([]Vector, len(docs))
	for i, doc := range docs {
		vec, err := v.Transform(doc)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

// Fitted reports whether Fit has completed.
func (v *Vectorizer) Fitted() bool { return v.index != nil }

// Dim is the vocabulary size.
func (v *Vectorizer) Dim() int { return len(v.terms) }

// Terms returns the vocabulary in index order. Callers must not modify it.
func (v *Vectorizer) Terms() []string { return v.terms }

// IDF returns the IDF weight per vocabulary index. Callers must not modify it.
func (v *Vectorizer) IDF() []float64 { return v.idf }

// State is the serializable form of a fitted Vectorizer.
type State struct {
	NgramMin    int       `msgpack:"ngram_min"`
	NgramMax    int       `msgpack:"ngram_max"`
	MinDF       int       `msgpack:"min_df"`
	MaxDF       float64   `msgpack:"max_df"`
	MaxFeatures int       `msgpack:"max_features"`
	Terms       []string  `msgpack:"terms"`
	IDF         []float64 `msgpack:"idf"`
}

// State exports the fitted vocabulary and weights.
func (v *Vectorizer) State() State {
	return State{
		NgramMin:    v.ngramMin,
		NgramMax:    v.ngramMax,
		MinDF:       v.minDF,
		MaxDF:       v.maxDF,
		MaxFeatures: v.maxFeatures,
		Terms:       v.terms,
		IDF:         v.idf,
	}
}

// FromState rebuilds a fitted Vectorizer. Terms must be unique and sorted
// and every IDF weight must be finite and at least 1.
func FromState(s State) (*Vectorizer, error) {
	v := &Vectorizer{
		ngramMin:    s.NgramMin,
		ngramMax:    s.NgramMax,
		minDF:       s.MinDF,
		maxDF:       s.MaxDF,
		maxFeatures: s.MaxFeatures,
	}
	if err := v.validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if len(s.Terms) == 0 || len(s.Terms) != len(s.IDF) {
		return nil, fmt.Errorf("%w: %d terms, %d weights", ErrInvalidState, len(s.Terms), len(s.IDF))
	}

	v.index = make(map[string]int, len(s.Terms))
	for i, term := range s.Terms {
		if i > 0 && s.Terms[i-1] >= term {
			return nil, fmt.Errorf("%w: vocabulary not sorted at %q", ErrInvalidState, term)
		}
		w := s.IDF[i]
		if math.IsNaN(w) || math.IsInf(w, 0) || w < 1 {
			return nil, fmt.Errorf("%w: idf[%d]=%v", ErrInvalidState, i, w)
		}
		v.index[term] = i
	}
	v.terms = s.Terms
	v.idf = s.IDF
	return v, nil
}
