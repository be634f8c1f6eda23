package projector

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/opsgraph/graphstore"
	"github.com/c360/opsgraph/metric"
)

const (
	alertUpsertQuery = `
MERGE (t:Team {id: $teamId})
ON CREATE SET t.createdAt = $ts
MERGE (ev:Event {id: $eid})
ON CREATE SET ev.type = $type, ev.ts = $ts, ev.meta = $meta
ON MATCH SET ev.type = $type, ev.ts = $ts, ev.meta = $meta
MERGE (ev)-[:AFFECTS]->(t)`

	alertReportQuery = `
MERGE (r:Report {id: $reportId})
ON CREATE SET r.createdAt = $ts
MERGE (ev:Event {id: $eid})
MERGE (ev)-[:AFFECTS]->(r)`

	alertPolicyQuery = `
MERGE (p:PolicyRule {id: $pid})
ON CREATE SET p.name = $pid, p.createdAt = $ts
MERGE (ev:Event {id: $eid})
MERGE (p)-[:FIRED_ON]->(ev)`

	alertTriggerQuery = `
MERGE (ev:Event {id: $eid})
MERGE (a:Action {id: $actionId})
MERGE (ev)-[:TRIGGERED]->(a)`
)

// DefaultEventType is applied when an alert carries no type.
const DefaultEventType = "alert"

// AlertProjector folds alert records into Event nodes and their edges
type AlertProjector struct {
	store   graphstore.Writer
	logger  *slog.Logger
	metrics *metric.Metrics
	now     func() time.Time
}

// NewAlertProjector creates an alert projector
func NewAlertProjector(deps Deps) *AlertProjector {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertProjector{
		store:   deps.Store,
		logger:  logger.With("projector", "alert"),
		metrics: deps.Metrics,
		now:     time.Now,
	}
}

// Project upserts one raw alert record. It never returns an error.
func (p *AlertProjector) Project(ctx context.Context, data []byte) Result {
	result := p.project(ctx, data)
	if p.metrics != nil {
		p.metrics.IngestOutcomes.WithLabelValues("alert", result.Outcome.String()).Inc()
	}
	return result
}

func (p *AlertProjector) project(ctx context.Context, data []byte) Result {
	rec, err := DecodeAlertRecord(data)
	if err != nil {
		p.logger.Warn("malformed alert record dropped", "error", err)
		return Skipped("malformed record")
	}

	if rec.TeamID == "" {
		p.logger.Warn("alert record missing teamId dropped", "id", rec.ID)
		return Skipped("missing teamId")
	}
	if rec.ID == "" {
		p.logger.Warn("alert record missing id dropped", "teamId", rec.TeamID)
		return Skipped("missing id")
	}

	eventType := rec.Type
	if eventType == "" {
		eventType = DefaultEventType
	}
	ts := p.now().UTC().Format(time.RFC3339)

	statements := []graphstore.Statement{{
		Query: alertUpsertQuery,
		Params: map[string]any{
			"teamId": rec.TeamID,
			"eid":    rec.ID,
			"type":   eventType,
			"ts":     ts,
			"meta":   rec.Meta,
		},
	}}

	if rec.ReportID != "" {
		statements = append(statements, graphstore.Statement{
			Query: alertReportQuery,
			Params: map[string]any{
				"reportId": rec.ReportID,
				"eid":      rec.ID,
				"ts":       ts,
			},
		})
	}

	if rec.PolicyID != "" {
		statements = append(statements, graphstore.Statement{
			Query: alertPolicyQuery,
			Params: map[string]any{
				"pid": rec.PolicyID,
				"eid": rec.ID,
				"ts":  ts,
			},
		})
	}

	if rec.ActionID != "" {
		statements = append(statements, graphstore.Statement{
			Query: alertTriggerQuery,
			Params: map[string]any{
				"eid":      rec.ID,
				"actionId": rec.ActionID,
			},
		})
	}

	if err := p.store.RunTransaction(ctx, statements); err != nil {
		p.logger.Error("alert projection failed", "id", rec.ID, "teamId", rec.TeamID, "error", err)
		return Failed(err.Error())
	}

	p.logger.Info("alert projected", "id", rec.ID, "teamId", rec.TeamID, "type", eventType)
	return OK()
}
