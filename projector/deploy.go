package projector

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/c360/opsgraph/graphstore"
	"github.com/c360/opsgraph/metric"
)

const (
	deployUpsertQuery = `
MERGE (v:ModelVersion {id: $id})
ON CREATE SET v.ver = $ver, v.sha = $sha, v.ts = $ts, v.createdAt = $ts
ON MATCH SET v.ver = $ver, v.sha = $sha, v.ts = $ts
MERGE (t:Team {id: $team})
ON CREATE SET t.createdAt = $ts
MERGE (v)-[:DEPLOYED_FOR]->(t)`

	deployReplacedQuery = `
MERGE (v1:ModelVersion {id: $prevId})
MERGE (v2:ModelVersion {id: $currId})
MERGE (v1)-[:REPLACED_BY]->(v2)`
)

// DefaultModelVersion is applied when a deployment message carries no ver.
const DefaultModelVersion = "1.0.0"

// DeployProjector folds model rollout messages into ModelVersion nodes,
// linking prior versions forward to their replacements.
type DeployProjector struct {
	store   graphstore.Writer
	logger  *slog.Logger
	metrics *metric.Metrics
	now     func() time.Time
	newID   func() string
}

// NewDeployProjector creates a deployment projector
func NewDeployProjector(deps Deps) *DeployProjector {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &DeployProjector{
		store:   deps.Store,
		logger:  logger.With("projector", "deploy"),
		metrics: deps.Metrics,
		now:     time.Now,
		newID:   func() string { return "model-" + uuid.NewString() },
	}
}

// Project upserts one raw deployment message. It never returns an error.
func (p *DeployProjector) Project(ctx context.Context, data []byte) Result {
	result := p.project(ctx, data)
	if p.metrics != nil {
		p.metrics.IngestOutcomes.WithLabelValues("deploy", result.Outcome.String()).Inc()
	}
	return result
}

func (p *DeployProjector) project(ctx context.Context, data []byte) Result {
	msg, err := DecodeDeployMessage(data)
	if err != nil {
		p.logger.Warn("malformed deployment message dropped", "error", err)
		return Skipped("malformed message")
	}

	teamID := msg.TeamID
	if teamID == "" {
		teamID = msg.Team
	}
	if teamID == "" {
		p.logger.Warn("deployment message missing teamId dropped", "id", msg.ID)
		return Skipped("missing teamId")
	}

	modelID := msg.ID
	if modelID == "" {
		modelID = p.newID()
	}
	ver := msg.Ver
	if ver == "" {
		ver = DefaultModelVersion
	}
	ts := msg.Ts
	if ts == "" {
		ts = p.now().UTC().Format(time.RFC3339)
	}

	statements := []graphstore.Statement{{
		Query: deployUpsertQuery,
		Params: map[string]any{
			"id":   modelID,
			"ver":  ver,
			"sha":  msg.SHA,
			"ts":   ts,
			"team": teamID,
		},
	}}

	if msg.PreviousVersion != "" {
		statements = append(statements, graphstore.Statement{
			Query: deployReplacedQuery,
			Params: map[string]any{
				"prevId": msg.PreviousVersion,
				"currId": modelID,
			},
		})
	}

	if err := p.store.RunTransaction(ctx, statements); err != nil {
		p.logger.Error("deployment projection failed", "id", modelID, "teamId", teamID, "error", err)
		return Failed(err.Error())
	}

	p.logger.Info("deployment projected", "id", modelID, "teamId", teamID, "ver", ver)
	return OK()
}
