// Package opsgraph ingests operational events into a property knowledge
// graph and answers questions about it through a guarded query copilot.
//
// # Architecture
//
// Events flow from JetStream subjects into the graph; queries flow from
// the HTTP gateway through a read-only validator before they ever reach
// the store:
//
//	┌──────────────────────────────┐
//	│        NATS JetStream        │  kg.actions, kg.alerts,
//	│       (stream KG_EVENTS)     │  kg.deployments
//	└──────────────┬───────────────┘
//	               ↓
//	┌──────────────────────────────┐
//	│          Projectors          │  idempotent MERGE upserts,
//	│  (actions, alerts, deploys)  │  per-record transactions
//	└──────────────┬───────────────┘
//	               ↓
//	┌──────────────────────────────┐
//	│         Graph Store          │  Neo4j via Bolt,
//	│   (Team, Event, Action, …)   │  session per call
//	└──────────────┬───────────────┘
//	               ↑
//	┌──────────────┴───────────────┐
//	│  Snapshot / Query / Copilot  │  every query passes the
//	│        (HTTP gateway)        │  safety validator first
//	└──────────────────────────────┘
//
// # Packages
//
// Ingestion path:
//   - natsclient: NATS connection management and JetStream consumers
//   - ingest: subject-to-projector bindings and consumer lifecycle
//   - projector: event record decoding and graph upserts
//
// Query path:
//   - safety: read-only query validation (keyword denylist)
//   - snapshot: whole-graph snapshot aggregation
//   - copilot: intent extraction, query templates, LLM fallback
//   - gateway/http: the external HTTP API
//
// Infrastructure:
//   - graphstore: Neo4j Bolt adapter with error classification
//   - graph: node/edge schema shared by projectors and snapshots
//   - config: YAML configuration with environment overrides
//   - metric: Prometheus metrics
//   - errors: structured error handling
//
// # Safety Model
//
// The copilot and the raw query endpoint never execute a query that has
// not passed the validator: only MATCH/RETURN-shaped queries with none of
// the write or procedure keywords are allowed, and the store side runs
// them on read-mode sessions. Template answers bind user values as
// parameters, never by string interpolation.
//
// # Binary
//
// Build and run the service:
//
//	go build -o bin/opsgraph ./cmd/opsgraph
//	./bin/opsgraph --config config.yaml
package opsgraph
