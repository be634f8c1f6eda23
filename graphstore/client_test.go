package graphstore

import (
	stderrors "errors"
	"log/slog"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/opsgraph/errors"
)

func TestConfigSetDefaults(t *testing.T) {
	var cfg Config
	cfg.SetDefaults()

	assert.Equal(t, "bolt://localhost:7687", cfg.URI)
	assert.Equal(t, "neo4j", cfg.Username)
	assert.Equal(t, 50, cfg.MaxConnectionPoolSize)
	assert.Equal(t, 5*time.Second, cfg.ConnectTimeout)
}

func TestConfigSetDefaultsPreservesExplicit(t *testing.T) {
	cfg := Config{
		URI:                   "neo4j://db.internal:7687",
		Username:              "svc",
		MaxConnectionPoolSize: 10,
		ConnectTimeout:        time.Second,
	}
	cfg.SetDefaults()

	assert.Equal(t, "neo4j://db.internal:7687", cfg.URI)
	assert.Equal(t, "svc", cfg.Username)
	assert.Equal(t, 10, cfg.MaxConnectionPoolSize)
	assert.Equal(t, time.Second, cfg.ConnectTimeout)
}

func TestConfigValidateRequiresPassword(t *testing.T) {
	cfg := Config{URI: "bolt://localhost:7687"}
	err := cfg.Validate()

	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrMissingConfig))
	assert.True(t, errors.IsInvalid(err))
}

func TestNewClientRejectsInvalidConfig(t *testing.T) {
	_, err := NewClient(Config{}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestMapErrorClassification(t *testing.T) {
	c := &Client{logger: slog.Default()}

	transient := c.mapError(&db.Neo4jError{
		Code: "Neo.TransientError.General.MemberStillCatchingUp",
		Msg:  "member still catching up",
	}, "Run")
	require.Error(t, transient)
	assert.True(t, errors.IsTransient(transient), "retryable server errors classify as transient")

	invalid := c.mapError(&db.Neo4jError{
		Code: "Neo.ClientError.Statement.SyntaxError",
		Msg:  "invalid input",
	}, "Run")
	require.Error(t, invalid)
	assert.True(t, errors.IsInvalid(invalid), "statement rejections classify as invalid")
	assert.True(t, stderrors.Is(invalid, errors.ErrQueryFailed))

	unknown := c.mapError(stderrors.New("boom"), "Run")
	require.Error(t, unknown)
	assert.True(t, errors.IsTransient(unknown), "unknown errors default to transient")
}

func TestRecordSetCount(t *testing.T) {
	var nilSet *RecordSet
	assert.Equal(t, 0, nilSet.Count())

	rs := &RecordSet{Records: []Record{{"a": 1}, {"b": 2}}}
	assert.Equal(t, 2, rs.Count())
}
