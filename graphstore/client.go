// Package graphstore wraps the Neo4j Bolt driver behind a thin
// session-per-call adapter with opsgraph error classification.
package graphstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/c360/opsgraph/errors"
)

// Ensure Client satisfies both store interfaces
var (
	_ Writer = (*Client)(nil)
	_ Reader = (*Client)(nil)
)

// Config holds connection settings for the graph store
type Config struct {
	URI      string `yaml:"uri" json:"uri"`
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Database string `yaml:"database" json:"database"`

	// MaxConnectionPoolSize caps concurrent Bolt connections held by the
	// shared driver. Sessions are per-call; the pool is the only shared state.
	MaxConnectionPoolSize int           `yaml:"max_connection_pool_size" json:"max_connection_pool_size"`
	ConnectTimeout        time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// SetDefaults fills unset fields with sensible defaults
func (c *Config) SetDefaults() {
	if c.URI == "" {
		c.URI = "bolt://localhost:7687"
	}
	if c.Username == "" {
		c.Username = "neo4j"
	}
	if c.MaxConnectionPoolSize <= 0 {
		c.MaxConnectionPoolSize = 50
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
}

// Validate checks the configuration for required fields
func (c *Config) Validate() error {
	if c.URI == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "graph store URI")
	}
	if c.Password == "" {
		return errors.WrapInvalid(errors.ErrMissingConfig, "Config", "Validate", "graph store password")
	}
	return nil
}

// Client owns one shared driver instance for the process lifetime and opens
// a new session per call. Sessions are the unit of isolation and are never
// reused across calls.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewClient constructs a store client from configuration. The caller owns
// the client lifecycle and must call Close on shutdown.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.MaxConnectionPoolSize = cfg.MaxConnectionPoolSize
			c.SocketConnectTimeout = cfg.ConnectTimeout
		},
	)
	if err != nil {
		return nil, errors.WrapFatal(err, "GraphStore", "NewClient", "driver construction")
	}

	return &Client{
		driver:   driver,
		database: cfg.Database,
		logger:   logger.With("component", "graphstore"),
	}, nil
}

// VerifyConnectivity checks the store is reachable. Called once at startup;
// failures afterwards surface per-call.
func (c *Client) VerifyConnectivity(ctx context.Context) error {
	if err := c.driver.VerifyConnectivity(ctx); err != nil {
		return errors.WrapTransient(errors.ErrStoreUnavailable, "GraphStore", "VerifyConnectivity",
			fmt.Sprintf("store unreachable: %v", err))
	}
	return nil
}

// Run executes one statement in a fresh write-capable session and collects
// all rows. Writes are durable once Run returns without error.
func (c *Client) Run(ctx context.Context, query string, params map[string]any) (*RecordSet, error) {
	return c.run(ctx, neo4j.AccessModeWrite, query, params)
}

// RunRead executes one read-only query in a fresh read session.
func (c *Client) RunRead(ctx context.Context, query string, params map[string]any) (*RecordSet, error) {
	return c.run(ctx, neo4j.AccessModeRead, query, params)
}

func (c *Client) run(ctx context.Context, mode neo4j.AccessMode, query string, params map[string]any) (*RecordSet, error) {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: c.database,
	})
	defer func() {
		if err := session.Close(ctx); err != nil {
			c.logger.Warn("session close failed", "error", err)
		}
	}()

	result, err := session.Run(ctx, query, params)
	if err != nil {
		return nil, c.mapError(err, "Run")
	}

	raw, err := result.Collect(ctx)
	if err != nil {
		return nil, c.mapError(err, "Run")
	}

	rs := &RecordSet{Records: make([]Record, 0, len(raw))}
	for _, rec := range raw {
		rs.Records = append(rs.Records, Record(rec.AsMap()))
	}
	return rs, nil
}

// RunTransaction executes all statements in one write transaction. On any
// statement failure the whole transaction is rolled back.
func (c *Client) RunTransaction(ctx context.Context, statements []Statement) error {
	session := c.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   neo4j.AccessModeWrite,
		DatabaseName: c.database,
	})
	defer func() {
		if err := session.Close(ctx); err != nil {
			c.logger.Warn("session close failed", "error", err)
		}
	}()

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		for _, stmt := range statements {
			result, err := tx.Run(ctx, stmt.Query, stmt.Params)
			if err != nil {
				return nil, err
			}
			if _, err := result.Consume(ctx); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	if err != nil {
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrTransactionFailed, err),
			"GraphStore", "RunTransaction",
			fmt.Sprintf("%d statements rolled back", len(statements)))
	}

	c.logger.Debug("transaction committed", "statements", len(statements))
	return nil
}

// Close releases the shared driver. The client is unusable afterwards.
func (c *Client) Close(ctx context.Context) error {
	if err := c.driver.Close(ctx); err != nil {
		return errors.WrapTransient(err, "GraphStore", "Close", "driver shutdown")
	}
	c.logger.Info("graph store driver closed")
	return nil
}

// mapError translates driver errors into the opsgraph taxonomy:
// connectivity loss is transient (StoreUnavailable), server-side rejection
// of the statement itself is invalid (QueryError).
func (c *Client) mapError(err error, op string) error {
	switch {
	case neo4j.IsConnectivityError(err):
		return errors.WrapTransient(
			fmt.Errorf("%w: %w", errors.ErrStoreUnavailable, err),
			"GraphStore", op, "connection lost")
	case neo4j.IsRetryable(err):
		return errors.WrapTransient(err, "GraphStore", op, "transient store error")
	case neo4j.IsNeo4jError(err):
		return errors.WrapInvalid(
			fmt.Errorf("%w: %w", errors.ErrQueryFailed, err),
			"GraphStore", op, "statement rejected by store")
	default:
		return errors.WrapTransient(err, "GraphStore", op, "statement execution")
	}
}
