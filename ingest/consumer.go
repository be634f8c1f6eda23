// Package ingest consumes graph events from JetStream and applies them to
// the property graph through the projectors.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/opsgraph/errors"
	"github.com/c360/opsgraph/graphstore"
	"github.com/c360/opsgraph/metric"
	"github.com/c360/opsgraph/projector"
)

// Config holds the stream and subject bindings for the ingestion consumer
type Config struct {
	Stream             string `yaml:"stream"`
	ActionsSubject     string `yaml:"actions_subject"`
	AlertsSubject      string `yaml:"alerts_subject"`
	DeploymentsSubject string `yaml:"deployments_subject"`
	DurablePrefix      string `yaml:"durable_prefix"`
}

// SetDefaults applies default values for unset fields
func (c *Config) SetDefaults() {
	if c.Stream == "" {
		c.Stream = "KG_EVENTS"
	}
	if c.ActionsSubject == "" {
		c.ActionsSubject = "kg.actions"
	}
	if c.AlertsSubject == "" {
		c.AlertsSubject = "kg.alerts"
	}
	if c.DeploymentsSubject == "" {
		c.DeploymentsSubject = "kg.deployments"
	}
	if c.DurablePrefix == "" {
		c.DurablePrefix = "opsgraph"
	}
}

// Validate checks the configuration for completeness
func (c *Config) Validate() error {
	if c.Stream == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "IngestConfig", "Validate", "stream name")
	}
	for _, subject := range []string{c.ActionsSubject, c.AlertsSubject, c.DeploymentsSubject} {
		if subject == "" {
			return errors.WrapInvalid(errors.ErrMissingConfig, "IngestConfig", "Validate", "subject binding")
		}
	}
	return nil
}

// StreamConsumer is the slice of the NATS client the ingestion path needs
type StreamConsumer interface {
	EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) error
	ConsumeStream(ctx context.Context, stream, durable, subject string, handler func(context.Context, []byte)) error
}

// Deps holds the dependencies for the consumer
type Deps struct {
	NATS    StreamConsumer
	Store   graphstore.Writer
	Logger  *slog.Logger
	Metrics *metric.Metrics
}

// binding ties one subject to one projector
type binding struct {
	name    string
	subject string
	project func(context.Context, []byte) projector.Result
}

// Consumer attaches durable consumers for the graph event subjects and
// routes each message to its projector. Message handling never fails the
// delivery: malformed or unprocessable events are recorded and acked so a
// poison message cannot wedge the stream.
type Consumer struct {
	config   Config
	deps     Deps
	bindings []binding
	started  atomic.Bool
}

// NewConsumer creates the ingestion consumer and its three projectors
func NewConsumer(config Config, deps Deps) (*Consumer, error) {
	config.SetDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if deps.NATS == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "IngestConsumer", "NewConsumer", "NATS client dependency")
	}
	if deps.Store == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "IngestConsumer", "NewConsumer", "graph store dependency")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	deps.Logger = deps.Logger.With("component", "ingest")

	projDeps := projector.Deps{Store: deps.Store, Logger: deps.Logger, Metrics: deps.Metrics}
	actions := projector.NewActionProjector(projDeps)
	alerts := projector.NewAlertProjector(projDeps)
	deploys := projector.NewDeployProjector(projDeps)

	return &Consumer{
		config: config,
		deps:   deps,
		bindings: []binding{
			{name: "action", subject: config.ActionsSubject, project: actions.Project},
			{name: "alert", subject: config.AlertsSubject, project: alerts.Project},
			{name: "deploy", subject: config.DeploymentsSubject, project: deploys.Project},
		},
	}, nil
}

// Start ensures the stream exists and attaches one durable consumer per
// subject. The context governs the lifetime of the consumers.
func (c *Consumer) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return errors.WrapInvalid(errors.ErrAlreadyStarted, "IngestConsumer", "Start", "lifecycle check")
	}

	streamCfg := jetstream.StreamConfig{
		Name:      c.config.Stream,
		Subjects:  []string{c.config.ActionsSubject, c.config.AlertsSubject, c.config.DeploymentsSubject},
		Retention: jetstream.LimitsPolicy,
	}
	if err := c.deps.NATS.EnsureStream(ctx, streamCfg); err != nil {
		c.started.Store(false)
		return err
	}

	for _, b := range c.bindings {
		durable := fmt.Sprintf("%s-%s", c.config.DurablePrefix, b.name)
		if err := c.deps.NATS.ConsumeStream(ctx, c.config.Stream, durable, b.subject, c.handlerFor(b)); err != nil {
			c.started.Store(false)
			return err
		}
	}

	c.deps.Logger.Info("ingestion started",
		"stream", c.config.Stream,
		"subjects", []string{c.config.ActionsSubject, c.config.AlertsSubject, c.config.DeploymentsSubject})
	return nil
}

// handlerFor wraps a projector as a message handler
func (c *Consumer) handlerFor(b binding) func(context.Context, []byte) {
	return func(ctx context.Context, data []byte) {
		if c.deps.Metrics != nil {
			c.deps.Metrics.RecordsIngested.WithLabelValues(b.name).Inc()
		}
		result := b.project(ctx, data)
		switch result.Outcome {
		case projector.OutcomeOK:
			c.deps.Logger.Debug("record projected", "projector", b.name)
		case projector.OutcomeSkipped:
			c.deps.Logger.Warn("record skipped", "projector", b.name, "reason", result.Reason)
		case projector.OutcomeFailed:
			c.deps.Logger.Error("record failed", "projector", b.name, "reason", result.Reason)
		}
	}
}

// Stop marks the consumer stopped. Consumer teardown is owned by the NATS
// client, which stops all attached consumers on Close.
func (c *Consumer) Stop() error {
	if !c.started.CompareAndSwap(true, false) {
		return errors.WrapInvalid(errors.ErrNotStarted, "IngestConsumer", "Stop", "lifecycle check")
	}
	c.deps.Logger.Info("ingestion stopped")
	return nil
}
