package ingest

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/opsgraph/errors"
	"github.com/c360/opsgraph/graphstore"
)

type fakeStreamConsumer struct {
	streamCfg  *jetstream.StreamConfig
	handlers   map[string]func(context.Context, []byte)
	durables   map[string]string
	ensureErr  error
	consumeErr error
}

func newFakeStreamConsumer() *fakeStreamConsumer {
	return &fakeStreamConsumer{
		handlers: make(map[string]func(context.Context, []byte)),
		durables: make(map[string]string),
	}
}

func (f *fakeStreamConsumer) EnsureStream(_ context.Context, cfg jetstream.StreamConfig) error {
	if f.ensureErr != nil {
		return f.ensureErr
	}
	f.streamCfg = &cfg
	return nil
}

func (f *fakeStreamConsumer) ConsumeStream(_ context.Context, _, durable, subject string, handler func(context.Context, []byte)) error {
	if f.consumeErr != nil {
		return f.consumeErr
	}
	f.handlers[subject] = handler
	f.durables[subject] = durable
	return nil
}

type fakeStore struct {
	transactions [][]graphstore.Statement
	err          error
}

func (f *fakeStore) Run(_ context.Context, _ string, _ map[string]any) (*graphstore.RecordSet, error) {
	return &graphstore.RecordSet{}, f.err
}

func (f *fakeStore) RunTransaction(_ context.Context, statements []graphstore.Statement) error {
	if f.err != nil {
		return f.err
	}
	f.transactions = append(f.transactions, statements)
	return nil
}

func newStartedConsumer(t *testing.T, nats *fakeStreamConsumer, store *fakeStore) *Consumer {
	t.Helper()
	c, err := NewConsumer(Config{}, Deps{NATS: nats, Store: store})
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	return c
}

func TestConfigDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, "KG_EVENTS", cfg.Stream)
	assert.Equal(t, "kg.actions", cfg.ActionsSubject)
	assert.Equal(t, "kg.alerts", cfg.AlertsSubject)
	assert.Equal(t, "kg.deployments", cfg.DeploymentsSubject)
	assert.Equal(t, "opsgraph", cfg.DurablePrefix)
}

func TestNewConsumerRequiresDependencies(t *testing.T) {
	_, err := NewConsumer(Config{}, Deps{Store: &fakeStore{}})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	_, err = NewConsumer(Config{}, Deps{NATS: newFakeStreamConsumer()})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}

func TestStartAttachesAllSubjects(t *testing.T) {
	nats := newFakeStreamConsumer()
	newStartedConsumer(t, nats, &fakeStore{})

	require.NotNil(t, nats.streamCfg)
	assert.Equal(t, "KG_EVENTS", nats.streamCfg.Name)
	assert.ElementsMatch(t,
		[]string{"kg.actions", "kg.alerts", "kg.deployments"},
		nats.streamCfg.Subjects)

	assert.Len(t, nats.handlers, 3)
	assert.Equal(t, "opsgraph-action", nats.durables["kg.actions"])
	assert.Equal(t, "opsgraph-alert", nats.durables["kg.alerts"])
	assert.Equal(t, "opsgraph-deploy", nats.durables["kg.deployments"])
}

func TestStartTwiceRejected(t *testing.T) {
	nats := newFakeStreamConsumer()
	c := newStartedConsumer(t, nats, &fakeStore{})

	err := c.Start(context.Background())

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrAlreadyStarted))
}

func TestStopLifecycle(t *testing.T) {
	nats := newFakeStreamConsumer()
	c := newStartedConsumer(t, nats, &fakeStore{})

	require.NoError(t, c.Stop())

	err := c.Stop()
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrNotStarted))
}

func TestActionMessageReachesStore(t *testing.T) {
	nats := newFakeStreamConsumer()
	store := &fakeStore{}
	newStartedConsumer(t, nats, store)

	payload := []byte(`{"id":"A1","teamId":"T1","actionType":"retuning"}`)
	nats.handlers["kg.actions"](context.Background(), payload)

	require.Len(t, store.transactions, 1)
	assert.Contains(t, store.transactions[0][0].Query, "MERGE (t:Team")
}

func TestMalformedMessageIsSwallowed(t *testing.T) {
	nats := newFakeStreamConsumer()
	store := &fakeStore{}
	newStartedConsumer(t, nats, store)

	// Must not panic or write anything
	nats.handlers["kg.alerts"](context.Background(), []byte(`{not json`))

	assert.Empty(t, store.transactions)
}

func TestStoreFailureDoesNotPropagate(t *testing.T) {
	nats := newFakeStreamConsumer()
	store := &fakeStore{err: errors.WrapTransient(errors.ErrStoreUnavailable, "GraphStore", "RunTransaction", "write")}
	newStartedConsumer(t, nats, store)

	payload := []byte(`{"id":"V1","teamId":"T1","ver":"2.0.0"}`)
	assert.NotPanics(t, func() {
		nats.handlers["kg.deployments"](context.Background(), payload)
	})
}

func TestStartFailsWhenStreamCannotBeEnsured(t *testing.T) {
	nats := newFakeStreamConsumer()
	nats.ensureErr = errors.WrapTransient(stderrors.New("jetstream unavailable"), "NATSClient", "EnsureStream", "KG_EVENTS")

	c, err := NewConsumer(Config{}, Deps{NATS: nats, Store: &fakeStore{}})
	require.NoError(t, err)

	err = c.Start(context.Background())
	require.Error(t, err)

	// A failed start leaves the consumer restartable
	nats.ensureErr = nil
	require.NoError(t, c.Start(context.Background()))
}
