// Package snapshot flattens a team's recent graph neighborhood into
// deduplicated node and edge collections for visualization.
package snapshot

import (
	"context"
	"log/slog"
	"time"

	"github.com/c360/opsgraph/errors"
	"github.com/c360/opsgraph/graph"
	"github.com/c360/opsgraph/graphstore"
)

// Request selects the snapshot scope. Team is optional; an empty team means
// all teams. Limit and Days default when zero.
type Request struct {
	Team  string `json:"team,omitempty"`
	Limit int    `json:"limit,omitempty"`
	Days  int    `json:"days,omitempty"`
}

// SetDefaults fills unset request fields
func (r *Request) SetDefaults() {
	if r.Limit <= 0 {
		r.Limit = 50
	}
	if r.Days <= 0 {
		r.Days = 7
	}
}

// Meta echoes the effective request parameters back to the caller.
type Meta struct {
	Team      string `json:"team,omitempty"`
	Limit     int    `json:"limit"`
	Days      int    `json:"days"`
	Timestamp string `json:"timestamp"`
}

// Response is the snapshot payload: a deduplicated graph view plus the
// echoed request parameters.
type Response struct {
	graph.View
	Meta Meta `json:"meta"`
}

// One multi-hop query covers all six node kinds and five edge classes.
// Optional-match branches repeat the same node across rows; deduplication
// happens client-side by id.
const snapshotQueryAll = `
MATCH (t:Team)
OPTIONAL MATCH (e:Event)-[:AFFECTS]->(t)
WHERE datetime(e.ts) > datetime() - duration({days: $days})
OPTIONAL MATCH (a:Action)-[:APPLIED_TO]->(t)
OPTIONAL MATCH (p:PolicyRule)-[:FIRED_ON]->(e)
OPTIONAL MATCH (v:ModelVersion)-[:DEPLOYED_FOR]->(t)
OPTIONAL MATCH (r:Report)<-[:AFFECTS]-(e)
OPTIONAL MATCH (e)-[:TRIGGERED]->(a)
WITH t, e, a, p, v, r
LIMIT $limit
RETURN
    collect(DISTINCT {id: t.id, label: t.id}) AS teams,
    collect(DISTINCT {id: e.id, label: e.type, meta: e.meta}) AS events,
    collect(DISTINCT {id: a.id, label: a.type, meta: a.meta}) AS actions,
    collect(DISTINCT {id: p.id, label: p.name}) AS policies,
    collect(DISTINCT {id: v.id, label: v.ver}) AS models,
    collect(DISTINCT {id: r.id, label: r.id}) AS reports,
    collect(DISTINCT {source: e.id, target: t.id}) AS affects_edges,
    collect(DISTINCT {source: a.id, target: t.id}) AS applied_edges,
    collect(DISTINCT {source: p.id, target: e.id}) AS fired_edges,
    collect(DISTINCT {source: v.id, target: t.id}) AS deployed_edges,
    collect(DISTINCT {source: e.id, target: a.id}) AS triggered_edges`

const snapshotQueryTeam = `
MATCH (t:Team)
WHERE t.id = $team
OPTIONAL MATCH (e:Event)-[:AFFECTS]->(t)
WHERE datetime(e.ts) > datetime() - duration({days: $days})
OPTIONAL MATCH (a:Action)-[:APPLIED_TO]->(t)
OPTIONAL MATCH (p:PolicyRule)-[:FIRED_ON]->(e)
OPTIONAL MATCH (v:ModelVersion)-[:DEPLOYED_FOR]->(t)
OPTIONAL MATCH (r:Report)<-[:AFFECTS]-(e)
OPTIONAL MATCH (e)-[:TRIGGERED]->(a)
WITH t, e, a, p, v, r
LIMIT $limit
RETURN
    collect(DISTINCT {id: t.id, label: t.id}) AS teams,
    collect(DISTINCT {id: e.id, label: e.type, meta: e.meta}) AS events,
    collect(DISTINCT {id: a.id, label: a.type, meta: a.meta}) AS actions,
    collect(DISTINCT {id: p.id, label: p.name}) AS policies,
    collect(DISTINCT {id: v.id, label: v.ver}) AS models,
    collect(DISTINCT {id: r.id, label: r.id}) AS reports,
    collect(DISTINCT {source: e.id, target: t.id}) AS affects_edges,
    collect(DISTINCT {source: a.id, target: t.id}) AS applied_edges,
    collect(DISTINCT {source: p.id, target: e.id}) AS fired_edges,
    collect(DISTINCT {source: v.id, target: t.id}) AS deployed_edges,
    collect(DISTINCT {source: e.id, target: a.id}) AS triggered_edges`

// Deps holds runtime dependencies for the aggregator. Request metering is
// the gateway's concern; the aggregator only queries and flattens.
type Deps struct {
	Store  graphstore.Reader
	Logger *slog.Logger
	Now    func() time.Time
}

// Aggregator runs the snapshot query and flattens the result
type Aggregator struct {
	store  graphstore.Reader
	logger *slog.Logger
	now    func() time.Time
}

// NewAggregator creates a snapshot aggregator
func NewAggregator(deps Deps) *Aggregator {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Aggregator{
		store:  deps.Store,
		logger: logger.With("component", "snapshot"),
		now:    now,
	}
}

// nodeClass pairs a result column with its display group and label fallback
var nodeClasses = []struct {
	column string
	group  string
}{
	{"teams", graph.GroupTeam},
	{"events", graph.GroupEvent},
	{"actions", graph.GroupAction},
	{"policies", graph.GroupPolicy},
	{"models", graph.GroupModel},
	{"reports", graph.GroupReport},
}

// edgeClass pairs a result column with its relationship kind and group
var edgeClasses = []struct {
	column string
	kind   string
	group  string
}{
	{"affects_edges", graph.RelAffects, "EventToTeam"},
	{"applied_edges", graph.RelAppliedTo, "ActionToTeam"},
	{"fired_edges", graph.RelFiredOn, "PolicyToEvent"},
	{"deployed_edges", graph.RelDeployedFor, "ModelToTeam"},
	{"triggered_edges", graph.RelTriggered, "EventToAction"},
}

// Snapshot runs the fixed multi-hop query and returns deduplicated nodes and
// edges. Zero matching rows is an empty view, not an error.
func (a *Aggregator) Snapshot(ctx context.Context, req Request) (Response, error) {
	req.SetDefaults()

	start := a.now()
	resp := Response{
		View: graph.NewView(),
		Meta: Meta{
			Team:      req.Team,
			Limit:     req.Limit,
			Days:      req.Days,
			Timestamp: start.UTC().Format(time.RFC3339),
		},
	}

	query := snapshotQueryAll
	params := map[string]any{
		"days":  req.Days,
		"limit": req.Limit,
	}
	if req.Team != "" {
		query = snapshotQueryTeam
		params["team"] = req.Team
	}

	rs, err := a.store.RunRead(ctx, query, params)
	if err != nil {
		return resp, errors.Wrap(err, "SnapshotAggregator", "Snapshot", "store query")
	}

	if rs.Count() == 0 {
		return resp, nil
	}
	row := rs.Records[0]

	seenNodes := make(map[string]bool)
	for _, class := range nodeClasses {
		for _, item := range asMapSlice(row[class.column]) {
			id := asString(item["id"])
			if id == "" || seenNodes[id] {
				continue
			}
			seenNodes[id] = true

			label := asString(item["label"])
			if label == "" {
				// Partially populated nodes may exist before their typed
				// attributes arrive; fall back to the id.
				label = id
			}
			resp.Nodes = append(resp.Nodes, graph.Node{
				ID:    id,
				Label: label,
				Group: class.group,
				Meta:  asString(item["meta"]),
			})
		}
	}

	seenEdges := make(map[string]bool)
	for _, class := range edgeClasses {
		for _, item := range asMapSlice(row[class.column]) {
			source := asString(item["source"])
			target := asString(item["target"])
			if source == "" || target == "" {
				continue
			}
			id := graph.EdgeID(class.kind, source, target)
			if seenEdges[id] {
				continue
			}
			seenEdges[id] = true

			resp.Edges = append(resp.Edges, graph.Edge{
				ID:     id,
				Source: source,
				Target: target,
				Label:  class.kind,
				Group:  class.group,
			})
		}
	}

	a.logger.Debug("snapshot assembled",
		"team", req.Team, "nodes", len(resp.Nodes), "edges", len(resp.Edges))
	return resp, nil
}

// asMapSlice converts a collected Cypher list of maps into Go maps,
// tolerating both []any and pre-typed []map[string]any values.
func asMapSlice(v any) []map[string]any {
	switch typed := v.(type) {
	case []map[string]any:
		return typed
	case []any:
		out := make([]map[string]any, 0, len(typed))
		for _, item := range typed {
			if m, ok := item.(map[string]any); ok {
				out = append(out, m)
			}
		}
		return out
	default:
		return nil
	}
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
