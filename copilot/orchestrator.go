package copilot

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/c360/opsgraph/errors"
	"github.com/c360/opsgraph/graphstore"
	"github.com/c360/opsgraph/metric"
	"github.com/c360/opsgraph/safety"
)

// QuerySource records which path produced the executed query.
const (
	SourceTemplate = "template"
	SourceLLM      = "llm"
)

// Request is one copilot question.
type Request struct {
	Text   string `json:"text"`
	TeamID string `json:"teamId,omitempty"`
	UID    string `json:"uid,omitempty"`
}

// Response is the copilot answer. Records are the primary payload; Summary
// is an enhancement.
type Response struct {
	Success     bool                `json:"success"`
	Query       string              `json:"query"`
	QuerySource string              `json:"querySource"`
	Summary     string              `json:"summary"`
	Records     []graphstore.Record `json:"records"`
	Count       int                 `json:"count"`
	Intent      string              `json:"intent"`
	Params      Params              `json:"params"`
}

// RejectionError reports a query that failed the safety validator. It is
// always surfaced to the caller with the specific reason, never silently
// retried or auto-repaired.
type RejectionError struct {
	Query  string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("query validation failed: %s", e.Reason)
}

// Unwrap classifies rejections as invalid input
func (e *RejectionError) Unwrap() error {
	return errors.ErrQueryRejected
}

// Authorizer is the team-access extension point. Identity verification is a
// collaborator concern; a nil Authorizer allows everything.
type Authorizer interface {
	Authorize(ctx context.Context, uid, teamID string) error
}

// Deps holds runtime dependencies for the orchestrator
type Deps struct {
	Store      graphstore.Reader
	Generator  *Generator
	Summarizer *Summarizer
	Authorizer Authorizer
	Logger     *slog.Logger
	Metrics    *metric.Metrics
}

// Orchestrator composes intent extraction, the template catalog, the
// fallback generator, the safety validator, and the store into the
// per-request state machine. It is request-scoped and stateless.
type Orchestrator struct {
	store      graphstore.Reader
	generator  *Generator
	summarizer *Summarizer
	authorizer Authorizer
	validate   func(string) safety.Result
	logger     *slog.Logger
	metrics    *metric.Metrics
}

// NewOrchestrator creates a copilot orchestrator
func NewOrchestrator(deps Deps) (*Orchestrator, error) {
	if deps.Store == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Orchestrator", "NewOrchestrator",
			"store dependency is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	generator := deps.Generator
	if generator == nil {
		generator = NewGenerator(nil)
	}
	summarizer := deps.Summarizer
	if summarizer == nil {
		summarizer = NewSummarizer(nil)
	}
	return &Orchestrator{
		store:      deps.Store,
		generator:  generator,
		summarizer: summarizer,
		authorizer: deps.Authorizer,
		validate:   safety.Validate,
		logger:     logger.With("component", "copilot"),
		metrics:    deps.Metrics,
	}, nil
}

// Ask runs one question through the full pipeline:
// extract intent, render template or generate fallback, validate, execute,
// format, summarize.
func (o *Orchestrator) Ask(ctx context.Context, req Request) (Response, error) {
	if req.Text == "" {
		return Response{}, errors.WrapInvalid(errors.ErrMalformedInput, "Orchestrator", "Ask",
			"text is required")
	}

	intent, params := ExtractIntent(req.Text)
	if req.TeamID != "" {
		params.TeamID = req.TeamID
	}

	if o.authorizer != nil && params.TeamID != "" {
		if err := o.authorizer.Authorize(ctx, req.UID, params.TeamID); err != nil {
			return Response{}, errors.WrapInvalid(err, "Orchestrator", "Ask", "team access check")
		}
	}

	query, bindings, found := RenderTemplate(intent, params)
	querySource := SourceTemplate
	if !found {
		generated, err := o.generator.Generate(ctx, req.Text, params.TeamID)
		if err != nil {
			return Response{}, err
		}
		query = generated
		bindings = map[string]any{}
		querySource = SourceLLM
	}

	if result := o.validate(query); !result.Valid {
		o.logger.Warn("query rejected by validator",
			"source", querySource, "intent", intent, "reason", result.Reason)
		if o.metrics != nil {
			o.metrics.QueryRejections.WithLabelValues("copilot").Inc()
		}
		return Response{}, &RejectionError{Query: query, Reason: result.Reason}
	}

	rs, err := o.store.RunRead(ctx, query, bindings)
	if err != nil {
		return Response{}, err
	}

	records := rs.Records
	if records == nil {
		records = []graphstore.Record{}
	}

	summary, err := o.summarizer.Summarize(ctx, query, records)
	if err != nil {
		// Best-effort: the summary never fails the request
		o.logger.Debug("summarizer unavailable, using count summary", "error", err)
		summary = CountSummary(len(records))
	}

	o.logger.Info("copilot answered",
		"intent", intent, "source", querySource, "records", len(records))

	return Response{
		Success:     true,
		Query:       query,
		QuerySource: querySource,
		Summary:     summary,
		Records:     records,
		Count:       len(records),
		Intent:      string(intent),
		Params:      params,
	}, nil
}
