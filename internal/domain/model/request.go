// Package model contains domain models passed between layers.
package model

// Targets of the two classification heads.
const (
	TargetCategory = "category"
	TargetPriority = "priority"
)

// Request is the unit of input to the classifiers.
type Request struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// Text joins title and description with a single space. Empty parts are
// not special-cased so the vectorizer always sees the same shape of input.
func (r Request) Text() string {
	return r.Title + " " + r.Description
}

// Record is one labeled row of a training corpus.
type Record struct {
	ID          string `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Priority    string `json:"priority"`
}

// Request returns the unlabeled part of the record.
func (r Record) Request() Request {
	return Request{Title: r.Title, Description: r.Description}
}
