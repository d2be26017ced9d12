// Package summarize is the small adapter interface for the out-of-core
// LLM-based pattern explanation collaborator (spec.md §1 non-goals, §9).
// It is advisory only: a Summarizer may annotate a pattern but must never
// veto or otherwise influence discovery or matching (spec.md §9 "Open
// questions").
package summarize

import "context"

// Summarizer turns a discovered pattern into a human-readable explanation.
// Callers pass whatever fields the implementation needs pre-flattened into
// Input, so this package never imports internal/models and cannot end up
// back on the critical path of discovery.
type Summarizer interface {
	Summarize(ctx context.Context, input Input) (string, error)
}

// Input is the minimal projection of a pattern a summarizer needs.
type Input struct {
	PatternCase     string
	AmountBehaviour string
	IntervalDays    int
	RepresentativeAmount string
	Confidence      float64
}

// NullSummarizer never produces an annotation; it is the default when no
// external summarisation service is configured.
type NullSummarizer struct{}

func (NullSummarizer) Summarize(ctx context.Context, input Input) (string, error) {
	return "", nil
}
