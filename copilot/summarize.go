package copilot

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/c360/opsgraph/errors"
	"github.com/c360/opsgraph/graphstore"
)

const summaryPromptFormat = `Summarize the following query results in Korean:

Query: %q
Results: %s

Provide a concise 2-3 sentence summary in Korean:`

// maxSummaryRecords caps how many rows are shown to the model.
const maxSummaryRecords = 10

// Summarizer turns a result set into a short natural-language description.
// It is best-effort: callers fall back to a count-based sentence on error.
type Summarizer struct {
	completer Completer
}

// NewSummarizer creates a summarizer. A nil completer is allowed; Summarize
// then always fails and the caller uses the templated fallback.
func NewSummarizer(completer Completer) *Summarizer {
	return &Summarizer{completer: completer}
}

// Summarize produces a 2-3 sentence summary of the result set.
func (s *Summarizer) Summarize(ctx context.Context, query string, records []graphstore.Record) (string, error) {
	if s.completer == nil {
		return "", errors.WrapInvalid(errors.ErrNoCompleter, "Summarizer", "Summarize",
			"no completion backend configured")
	}
	if len(records) == 0 {
		return CountSummary(0), nil
	}

	sample := records
	if len(sample) > maxSummaryRecords {
		sample = sample[:maxSummaryRecords]
	}
	sampleJSON, err := json.MarshalIndent(sample, "", "  ")
	if err != nil {
		return "", errors.WrapInvalid(err, "Summarizer", "Summarize", "record serialization")
	}

	prompt := fmt.Sprintf(summaryPromptFormat, query, sampleJSON)
	summary, err := s.completer.Complete(ctx, prompt, 0.7, 200)
	if err != nil {
		return "", errors.WrapTransient(err, "Summarizer", "Summarize", "model call")
	}
	if summary == "" {
		return CountSummary(len(records)), nil
	}
	return summary, nil
}

// CountSummary is the templated fallback sentence used when the summarizer
// is unavailable. The query result is the primary payload; the summary is
// only an enhancement.
func CountSummary(count int) string {
	return fmt.Sprintf("%d개의 결과를 찾았습니다.", count)
}
