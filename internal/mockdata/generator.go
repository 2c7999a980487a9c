// Package mockdata generates synthetic support requests for local training
// runs and tests. Output is deterministic for a given seed, independent of
// the number of workers.
package mockdata

import (
	"context"
	"fmt"
	"math/rand"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/okian/triage/internal/domain/model"
	"github.com/okian/triage/pkg/logger"
)

// Defaults.
const (
	DefaultCount = 50
	DefaultSeed  = 42

	createdWindow = 7 * 24 * time.Hour
	updatedWindow = 5 * 24 * time.Hour
	timeLayout    = "2006-01-02T15:04:05.000Z"
	seedStride    = 1_000_003
)

var placeholder = regexp.MustCompile(`\{(\w+)\}`)

// Request is a generated support request in the backend's wire shape.
type Request struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Category       string   `json:"category"`
	Priority       string   `json:"priority"`
	Status         string   `json:"status"`
	RequesterType  string   `json:"requester_type"`
	Channel        string   `json:"channel"`
	CreatedAt      string   `json:"created_at"`
	UpdatedAt      string   `json:"updated_at"`
	AssignedTo     *string  `json:"assigned_to"`
	ResolutionCode *string  `json:"resolution_code"`
	Tags           []string `json:"tags"`
}

// Record drops the fields the classifiers do not use.
func (r Request) Record() model.Record {
	return model.Record{
		ID:          r.ID,
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Priority:    r.Priority,
	}
}

// Option applies a configuration option to the Generator.
type Option func(*Generator)

// WithSeed sets the base seed.
func WithSeed(seed int64) Option {
	return func(g *Generator) { g.seed = seed }
}

// WithWorkers sets the number of generating goroutines.
func WithWorkers(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.workers = n
		}
	}
}

// WithClock sets the reference time for created_at/updated_at.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		if now != nil {
			g.now = now
		}
	}
}

// Generator produces Requests.
type Generator struct {
	seed    int64
	workers int
	now     func() time.Time
}

// New creates a Generator.
func New(opts ...Option) *Generator {
	g := &Generator{
		seed:    DefaultSeed,
		workers: runtime.NumCPU(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate creates n requests. Each row draws from its own RNG seeded from
// the base seed and the row index.
func (g *Generator) Generate(ctx context.Context, n int) ([]Request, error) {
	if n <= 0 {
		return nil, fmt.Errorf("count must be positive, got %d", n)
	}
	logger.Get().Debug(ctx, "generating mock requests", logger.Int("count", n), logger.Int("workers", g.workers))

	ref := g.now().UTC()
	out := make([]Request, n)

	type result struct {
		index int
		err   error
	}
	results := make(chan result, n)

	workers := min(g.workers, n)
	perWorker := n / workers
	for w := 0; w < workers; w++ {
		start := w * perWorker
		end := start + perWorker
		if w == workers-1 {
			end = n
		}
		go func(start, end int) {
			for i := start; i < end; i++ {
				select {
				case <-ctx.Done():
					results <- result{index: i, err: ctx.Err()}
					return
				default:
					out[i] = g.one(i, ref)
					results <- result{index: i}
				}
			}
		}(start, end)
	}

	for i := 0; i < n; i++ {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context cancelled during generation: %w", ctx.Err())
		case r := <-results:
			if r.err != nil {
				return nil, fmt.Errorf("generate request %d: %w", r.index, r.err)
			}
		}
	}
	return out, nil
}

func (g *Generator) one(index int, ref time.Time) Request {
	rng := rand.New(rand.NewSource(g.seed*seedStride + int64(index))) //nolint:gosec // synthetic data
	choice := func(xs []string) string { return xs[rng.Intn(len(xs))] }

	category := choice(Categories)
	requester := choice(requesterTypes)
	priority := choosePriority(rng, category, requester)
	status := choice(statuses)
	channel := choice(channels)

	title := fillTemplate(rng, choice(titleTemplates[category]))
	description := fmt.Sprintf("%s %s. %s %s", choice(intros), strings.ToLower(title), choice(details), choice(closings))

	pool := append([]string(nil), tagPools[category]...)
	rng.Shuffle(len(pool), func(i, j int) { pool[i], pool[j] = pool[j], pool[i] })
	tags := pool[:min(2+rng.Intn(3), len(pool))]

	created := randomTime(rng, ref, createdWindow)
	updated := created
	if status != "new" {
		updated = randomTime(rng, ref, updatedWindow)
	}

	req := Request{
		ID:            fmt.Sprintf("REQ-%06d", index+1),
		Title:         title,
		Description:   description,
		Category:      category,
		Priority:      priority,
		Status:        status,
		RequesterType: requester,
		Channel:       channel,
		CreatedAt:     created,
		UpdatedAt:     updated,
		Tags:          tags,
	}
	if status != "new" {
		// One extra slot leaves the request unassigned.
		if i := rng.Intn(len(agents) + 1); i < len(agents) {
			agent := agents[i]
			req.AssignedTo = &agent
		}
	}
	if status == "resolved" || status == "closed" {
		code := choice(resolutions)
		req.ResolutionCode = &code
	}
	return req
}

// choosePriority skews priority by requester type and category.
func choosePriority(rng *rand.Rand, category, requester string) string {
	var pool []string
	switch {
	case requester == "enterprise":
		pool = []string{"P0", "P1", "P2"}
	case category == "billing":
		pool = []string{"P1", "P2", "P2", "P3"}
	case category == "technical":
		pool = []string{"P0", "P1", "P1", "P2", "P2", "P3"}
	default:
		pool = []string{"P2", "P2", "P3", "P3", "P3"}
	}
	return pool[rng.Intn(len(pool))]
}

func fillTemplate(rng *rand.Rand, tmpl string) string {
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		values, ok := substitutions[m[1:len(m)-1]]
		if !ok {
			return m
		}
		return values[rng.Intn(len(values))]
	})
}

func randomTime(rng *rand.Rand, ref time.Time, window time.Duration) string {
	offset := time.Duration(rng.Int63n(int64(window)))
	return ref.Add(-offset).Format(timeLayout)
}

// Summary counts requests per label for the generate command's report.
type Summary struct {
	ByCategory      map[string]int
	ByPriority      map[string]int
	ByStatus        map[string]int
	ByRequesterType map[string]int
	ByChannel       map[string]int
}

// Summarize tallies reqs.
func Summarize(reqs []Request) Summary {
	s := Summary{
		ByCategory:      map[string]int{},
		ByPriority:      map[string]int{},
		ByStatus:        map[string]int{},
		ByRequesterType: map[string]int{},
		ByChannel:       map[string]int{},
	}
	for _, r := range reqs {
		s.ByCategory[r.Category]++
		s.ByPriority[r.Priority]++
		s.ByStatus[r.Status]++
		s.ByRequesterType[r.RequesterType]++
		s.ByChannel[r.Channel]++
	}
	return s
}

// Records converts generated requests to training records.
func Records(reqs []Request) []model.Record {
	out := make([]model.Record, len(reqs))
	for i, r := range reqs {
		out[i] = r.Record()
	}
	return out
}
