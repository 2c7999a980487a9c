// Package dedupe tracks record identifiers already seen in a corpus.
package dedupe

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/okian/triage/internal/domain/model"
)

// Deduper records identifiers and reports repeats.
type Deduper interface {
	// SeenAndRecord reports whether id was seen before and records it if not.
	SeenAndRecord(ctx context.Context, id string) bool
	// Size is the number of identifiers currently held.
	Size() int64
}

// Option configures an in-memory deduper.
type Option func(*inMemoryDeduper)

// WithMaxSize bounds the number of identifiers kept. Once full, the oldest
// identifier is forgotten first. maxSize <= 0 means unbounded.
func WithMaxSize(maxSize int) Option {
	return func(d *inMemoryDeduper) {
		d.maxSize = maxSize
	}
}

type inMemoryDeduper struct {
	mu      sync.Mutex
	seen    map[string]struct{}
	order   []string // insertion ring, only used when bounded
	next    int
	maxSize int
	size    atomic.Int64
}

// NewInMemoryDeduper returns an unbounded deduper unless WithMaxSize is given.
func NewInMemoryDeduper(opts ...Option) Deduper {
	d := &inMemoryDeduper{}
	for _, opt := range opts {
		opt(d)
	}
	d.seen = make(map[string]struct{})
	if d.maxSize > 0 {
		d.order = make([]string, 0, d.maxSize)
	}
	return d
}

func (d *inMemoryDeduper) SeenAndRecord(_ context.Context, id string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, ok := d.seen[id]; ok {
		return true
	}

	if d.maxSize > 0 {
		if len(d.order) < d.maxSize {
			d.order = append(d.order, id)
		} else {
			delete(d.seen, d.order[d.next])
			d.order[d.next] = id
			d.next = (d.next + 1) % d.maxSize
			d.size.Add(-1)
		}
	}
	d.seen[id] = struct{}{}
	d.size.Add(1)
	return false
}

func (d *inMemoryDeduper) Size() int64 {
	return d.size.Load()
}

// Records drops every record whose trimmed ID repeats an earlier one. Records
// without an ID are always kept. The first occurrence wins and order is kept.
func Records(ctx context.Context, d Deduper, recs []model.Record) (kept []model.Record, dropped int) {
	kept = make([]model.Record, 0, len(recs))
	for _, r := range recs {
		id := strings.TrimSpace(r.ID)
		if id != "" && d.SeenAndRecord(ctx, id) {
			dropped++
			continue
		}
		kept = append(kept, r)
	}
	return kept, dropped
}
