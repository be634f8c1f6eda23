package projector

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/opsgraph/graphstore"
	"github.com/c360/opsgraph/metric"
)

// Upsert statements for action records. All mutable fields are set both
// on create and on match so re-ingesting an id is last-write-wins, never a
// duplicate.
const (
	actionUpsertQuery = `
MERGE (t:Team {id: $teamId})
ON CREATE SET t.createdAt = $ts
MERGE (a:Action {id: $id})
ON CREATE SET a.type = $actionType, a.ts = $ts, a.meta = $meta
ON MATCH SET a.type = $actionType, a.ts = $ts, a.meta = $meta
MERGE (a)-[:APPLIED_TO]->(t)`

	actionReportQuery = `
MERGE (r:Report {id: $reportId})
ON CREATE SET r.createdAt = $ts
MERGE (a:Action {id: $id})
MERGE (a)-[:APPLIED_TO]->(r)`

	actionTriggerQuery = `
MERGE (ev:Event {id: $eventId})
MERGE (a:Action {id: $id})
MERGE (ev)-[:TRIGGERED]->(a)`
)

// DefaultActionType is applied when a record carries no actionType and no
// override is configured. Tuning logs historically arrive untyped.
const DefaultActionType = "retuning"

// Deps holds runtime dependencies shared by all projectors
type Deps struct {
	Store   graphstore.Writer
	Logger  *slog.Logger
	Metrics *metric.Metrics

	// DefaultType is the action type applied to untyped records. General
	// action feeds carry no tuning-log fields and set this to "unknown";
	// empty selects DefaultActionType. Only the action projector reads it.
	DefaultType string
}

// ActionProjector folds action records into Team/Action/Report nodes
type ActionProjector struct {
	store       graphstore.Writer
	logger      *slog.Logger
	metrics     *metric.Metrics
	defaultType string
	now         func() time.Time
}

// NewActionProjector creates an action projector
func NewActionProjector(deps Deps) *ActionProjector {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaultType := deps.DefaultType
	if defaultType == "" {
		defaultType = DefaultActionType
	}
	return &ActionProjector{
		store:       deps.Store,
		logger:      logger.With("projector", "action"),
		metrics:     deps.Metrics,
		defaultType: defaultType,
		now:         time.Now,
	}
}

// Project upserts one raw action record. It never returns an error; the
// Result carries the outcome for logging and metering at the ingest boundary.
func (p *ActionProjector) Project(ctx context.Context, data []byte) Result {
	result := p.project(ctx, data)
	p.record(result)
	return result
}

func (p *ActionProjector) project(ctx context.Context, data []byte) Result {
	rec, err := DecodeActionRecord(data)
	if err != nil {
		p.logger.Warn("malformed action record dropped", "error", err)
		return Skipped("malformed record")
	}

	if rec.TeamID == "" {
		p.logger.Warn("action record missing teamId dropped", "id", rec.ID)
		return Skipped("missing teamId")
	}
	if rec.ID == "" {
		p.logger.Warn("action record missing id dropped", "teamId", rec.TeamID)
		return Skipped("missing id")
	}

	actionType := rec.ActionType
	if actionType == "" {
		actionType = p.defaultType
	}
	ts := p.now().UTC().Format(time.RFC3339)

	statements := []graphstore.Statement{{
		Query: actionUpsertQuery,
		Params: map[string]any{
			"teamId":     rec.TeamID,
			"id":         rec.ID,
			"actionType": actionType,
			"ts":         ts,
			"meta":       rec.Meta,
		},
	}}

	if rec.ReportID != "" {
		statements = append(statements, graphstore.Statement{
			Query: actionReportQuery,
			Params: map[string]any{
				"reportId": rec.ReportID,
				"id":       rec.ID,
				"ts":       ts,
			},
		})
	}

	if rec.EventID != "" {
		statements = append(statements, graphstore.Statement{
			Query: actionTriggerQuery,
			Params: map[string]any{
				"eventId": rec.EventID,
				"id":      rec.ID,
			},
		})
	}

	if err := p.store.RunTransaction(ctx, statements); err != nil {
		p.logger.Error("action projection failed", "id", rec.ID, "teamId", rec.TeamID, "error", err)
		return Failed(err.Error())
	}

	p.logger.Info("action projected", "id", rec.ID, "teamId", rec.TeamID, "type", actionType)
	return OK()
}

func (p *ActionProjector) record(result Result) {
	if p.metrics != nil {
		p.metrics.IngestOutcomes.WithLabelValues("action", result.Outcome.String()).Inc()
	}
}
