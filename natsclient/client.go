// Package natsclient manages the NATS connection and JetStream consumers
// used by the ingestion path.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/opsgraph/errors"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// Error variables
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
)

// Client manages one NATS connection and its JetStream consumers
type Client struct {
	url    string
	status atomic.Value // stores ConnectionStatus
	logger *slog.Logger

	conn *nats.Conn
	js   jetstream.JetStream

	consumers   map[string]jetstream.ConsumeContext
	consumersMu sync.Mutex

	// Connection options
	name          string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration

	// Called on connection state changes, e.g. to flip a metrics gauge
	onStateChange func(connected bool)

	closed atomic.Bool
	mu     sync.RWMutex
}

// Option configures the client
type Option func(*Client)

// WithName sets the client connection name
func WithName(name string) Option {
	return func(c *Client) { c.name = name }
}

// WithLogger sets the structured logger
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// WithReconnectWait sets the delay between reconnect attempts
func WithReconnectWait(wait time.Duration) Option {
	return func(c *Client) { c.reconnectWait = wait }
}

// WithStateChangeHook registers a callback invoked on connect, disconnect,
// and reconnect transitions.
func WithStateChangeHook(fn func(connected bool)) Option {
	return func(c *Client) { c.onStateChange = fn }
}

// NewClient creates a NATS client with sensible defaults
func NewClient(url string, opts ...Option) *Client {
	c := &Client{
		url:           url,
		logger:        slog.Default(),
		name:          "opsgraph",
		maxReconnects: -1, // infinite
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  30 * time.Second,
		consumers:     make(map[string]jetstream.ConsumeContext),
	}
	c.status.Store(StatusDisconnected)

	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "natsclient")
	return c
}

// URL returns the configured server URL
func (c *Client) URL() string { return c.url }

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	return c.status.Load().(ConnectionStatus)
}

// IsHealthy reports whether the connection is up
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

func (c *Client) setStatus(status ConnectionStatus) {
	c.status.Store(status)
	if c.onStateChange != nil {
		c.onStateChange(status == StatusConnected)
	}
}

// Connect establishes the connection and JetStream context
func (c *Client) Connect(ctx context.Context) error {
	c.setStatus(StatusConnecting)

	conn, err := nats.Connect(c.url,
		nats.Name(c.name),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			c.setStatus(StatusReconnecting)
			c.logger.Warn("NATS disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.setStatus(StatusConnected)
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			c.setStatus(StatusDisconnected)
			c.logger.Info("NATS connection closed")
		}),
	)
	if err != nil {
		c.setStatus(StatusDisconnected)
		return errors.WrapTransient(err, "NATSClient", "Connect",
			fmt.Sprintf("connect to %s", c.url))
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		c.setStatus(StatusDisconnected)
		return errors.WrapFatal(err, "NATSClient", "Connect", "JetStream context")
	}

	c.mu.Lock()
	c.conn = conn
	c.js = js
	c.mu.Unlock()

	c.setStatus(StatusConnected)
	c.logger.Info("NATS connected", "url", conn.ConnectedUrl())

	// Context cancellation is the shutdown signal for long-lived use
	go func() {
		<-ctx.Done()
		if !c.closed.Load() {
			_ = c.Close(context.Background())
		}
	}()

	return nil
}

// GetConnection returns the underlying connection, or nil before Connect
func (c *Client) GetConnection() *nats.Conn {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

// Publish publishes a message on a core NATS subject
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return errors.WrapTransient(ErrNotConnected, "NATSClient", "Publish", subject)
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "NATSClient", "Publish", subject)
	}
	return nil
}

// EnsureStream creates or updates a JetStream stream
func (c *Client) EnsureStream(ctx context.Context, cfg jetstream.StreamConfig) error {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return errors.WrapTransient(ErrNotConnected, "NATSClient", "EnsureStream", cfg.Name)
	}
	if _, err := js.CreateOrUpdateStream(ctx, cfg); err != nil {
		return errors.WrapTransient(err, "NATSClient", "EnsureStream", cfg.Name)
	}
	return nil
}

// ConsumeStream attaches a durable consumer to one subject of a stream and
// dispatches messages to the handler. The handler must never panic and must
// not return errors: delivery is at-least-once and message handling owns
// its own failure policy. Messages are acked after the handler returns.
func (c *Client) ConsumeStream(ctx context.Context, streamName, durable, subject string, handler func(context.Context, []byte)) error {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return errors.WrapTransient(ErrNotConnected, "NATSClient", "ConsumeStream", subject)
	}
	if c.closed.Load() {
		return errors.WrapInvalid(fmt.Errorf("client is closed"),
			"NATSClient", "ConsumeStream", "check client state")
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, streamName, jetstream.ConsumerConfig{
		Durable:       durable,
		FilterSubject: subject,
		AckPolicy:     jetstream.AckExplicitPolicy,
	})
	if err != nil {
		return errors.WrapTransient(err, "NATSClient", "ConsumeStream",
			fmt.Sprintf("create consumer for %s", subject))
	}

	consumeCtx, err := consumer.Consume(func(msg jetstream.Msg) {
		handler(ctx, msg.Data())
		if err := msg.Ack(); err != nil {
			c.logger.Warn("message ack failed", "subject", subject, "error", err)
		}
	})
	if err != nil {
		return errors.WrapTransient(err, "NATSClient", "ConsumeStream",
			fmt.Sprintf("start consumer for %s", subject))
	}

	c.consumersMu.Lock()
	defer c.consumersMu.Unlock()

	if c.closed.Load() {
		consumeCtx.Stop()
		return errors.WrapInvalid(fmt.Errorf("client is closing"),
			"NATSClient", "ConsumeStream", "consumer registration")
	}

	key := fmt.Sprintf("%s:%s", streamName, subject)
	if existing, ok := c.consumers[key]; ok {
		existing.Stop()
		c.logger.Debug("replaced existing consumer", "key", key)
	}
	c.consumers[key] = consumeCtx

	c.logger.Info("consumer attached", "stream", streamName, "subject", subject, "durable", durable)
	return nil
}

// Close drains consumers and the connection. Safe to call once.
func (c *Client) Close(_ context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}

	c.consumersMu.Lock()
	for key, consumeCtx := range c.consumers {
		consumeCtx.Stop()
		delete(c.consumers, key)
	}
	c.consumersMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.js = nil
	c.mu.Unlock()

	if conn != nil {
		if err := conn.Drain(); err != nil {
			conn.Close()
			return errors.WrapTransient(err, "NATSClient", "Close", "drain")
		}
	}

	c.setStatus(StatusDisconnected)
	return nil
}
