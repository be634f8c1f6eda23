package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/opsgraph/copilot"
	"github.com/c360/opsgraph/errors"
	"github.com/c360/opsgraph/graphstore"
	"github.com/c360/opsgraph/metric"
	"github.com/c360/opsgraph/snapshot"
)

type fakeSnapshotter struct {
	lastReq snapshot.Request
	resp    snapshot.Response
	err     error
}

func (f *fakeSnapshotter) Snapshot(_ context.Context, req snapshot.Request) (snapshot.Response, error) {
	f.lastReq = req
	return f.resp, f.err
}

type fakeAsker struct {
	lastReq copilot.Request
	resp    copilot.Response
	err     error
}

func (f *fakeAsker) Ask(_ context.Context, req copilot.Request) (copilot.Response, error) {
	f.lastReq = req
	return f.resp, f.err
}

type fakeReader struct {
	calls     int
	lastQuery string
	result    *graphstore.RecordSet
	err       error
}

func (f *fakeReader) RunRead(_ context.Context, query string, _ map[string]any) (*graphstore.RecordSet, error) {
	f.calls++
	f.lastQuery = query
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &graphstore.RecordSet{}, nil
	}
	return f.result, nil
}

type testFixture struct {
	server    *Server
	snapshots *fakeSnapshotter
	asker     *fakeAsker
	store     *fakeReader
}

func newFixture(t *testing.T, cfg Config) *testFixture {
	t.Helper()
	f := &testFixture{
		snapshots: &fakeSnapshotter{},
		asker:     &fakeAsker{},
		store:     &fakeReader{},
	}
	server, err := NewServer(cfg, Deps{
		Snapshot: f.snapshots,
		Copilot:  f.asker,
		Store:    f.store,
	})
	require.NoError(t, err)
	f.server = server
	return f
}

func doRequest(f *testFixture, method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestSnapshotEndpoint(t *testing.T) {
	f := newFixture(t, Config{})
	f.snapshots.resp = snapshot.Response{
		Meta: snapshot.Meta{Team: "T1", Limit: 50, Days: 7},
	}

	rec := doRequest(f, http.MethodGet, "/api/v1/kg/snapshot?team=T1&limit=25&days=14", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "T1", f.snapshots.lastReq.Team)
	assert.Equal(t, 25, f.snapshots.lastReq.Limit)
	assert.Equal(t, 14, f.snapshots.lastReq.Days)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Contains(t, body, "nodes")
	assert.Contains(t, body, "edges")
	assert.Contains(t, body, "meta")
}

func TestSnapshotRejectsBadLimit(t *testing.T) {
	f := newFixture(t, Config{})

	rec := doRequest(f, http.MethodGet, "/api/v1/kg/snapshot?limit=abc", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSnapshotStoreFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.snapshots.err = errors.WrapTransient(errors.ErrStoreUnavailable, "GraphStore", "RunRead", "connection refused")

	rec := doRequest(f, http.MethodGet, "/api/v1/kg/snapshot", "")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.NotContains(t, rec.Body.String(), "connection refused", "internal details stay out of responses")
}

func TestQueryEndpointRunsValidQuery(t *testing.T) {
	f := newFixture(t, Config{})
	f.store.result = &graphstore.RecordSet{
		Records: []graphstore.Record{{"id": "T1"}},
	}

	rec := doRequest(f, http.MethodPost, "/api/v1/kg/query",
		`{"query":"MATCH (t:Team) RETURN t.id LIMIT 5"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, f.store.calls)

	var body queryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, 1, body.Count)
}

func TestQueryEndpointRejectsWriteQuery(t *testing.T) {
	f := newFixture(t, Config{})

	rec := doRequest(f, http.MethodPost, "/api/v1/kg/query",
		`{"query":"MATCH (t:Team) SET t.name = 'x' RETURN t"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.store.calls, "rejected queries must never reach the store")

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "query rejected", body["error"])
	assert.Contains(t, body["reason"], "SET")
	assert.Contains(t, body["query"], "SET t.name")
}

func TestQueryEndpointRejectsMissingMatchReturn(t *testing.T) {
	f := newFixture(t, Config{})

	rec := doRequest(f, http.MethodPost, "/api/v1/kg/query",
		`{"query":"RETURN 1"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, f.store.calls)
}

func TestQueryEndpointEmptyQuery(t *testing.T) {
	f := newFixture(t, Config{})

	rec := doRequest(f, http.MethodPost, "/api/v1/kg/query", `{"query":"  "}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryEndpointInvalidJSON(t *testing.T) {
	f := newFixture(t, Config{})

	rec := doRequest(f, http.MethodPost, "/api/v1/kg/query", `{not json`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryEndpointEmptyResultSerializesAsArray(t *testing.T) {
	f := newFixture(t, Config{})

	rec := doRequest(f, http.MethodPost, "/api/v1/kg/query",
		`{"query":"MATCH (t:Team) RETURN t.id"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"records":[]`)
}

func TestAskEndpoint(t *testing.T) {
	f := newFixture(t, Config{})
	f.asker.resp = copilot.Response{
		Success:     true,
		QuerySource: copilot.SourceTemplate,
		Summary:     "3개의 결과를 찾았습니다.",
		Count:       3,
	}

	rec := doRequest(f, http.MethodPost, "/api/v1/copilot/ask",
		`{"text":"지난 7일 경보 원인 top 3","teamId":"T1"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "지난 7일 경보 원인 top 3", f.asker.lastReq.Text)
	assert.Equal(t, "T1", f.asker.lastReq.TeamID)
	assert.Contains(t, rec.Body.String(), "결과를 찾았습니다")
}

func TestAskEndpointRejection(t *testing.T) {
	f := newFixture(t, Config{})
	f.asker.err = &copilot.RejectionError{
		Query:  "MATCH (n) DELETE n",
		Reason: `dangerous keyword "DELETE" is not allowed`,
	}

	rec := doRequest(f, http.MethodPost, "/api/v1/copilot/ask", `{"text":"질문"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "query rejected", body["error"])
	assert.Contains(t, body["reason"], "DELETE")
}

func TestAskEndpointTransientFailure(t *testing.T) {
	f := newFixture(t, Config{})
	f.asker.err = errors.WrapTransient(errors.ErrStoreUnavailable, "Orchestrator", "Ask", "store query")

	rec := doRequest(f, http.MethodPost, "/api/v1/copilot/ask", `{"text":"질문"}`)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t, Config{})

	rec := doRequest(f, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestRequestIDPropagation(t *testing.T) {
	f := newFixture(t, Config{})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "trace-123")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "trace-123", rec.Header().Get("X-Request-ID"))

	rec = doRequest(f, http.MethodGet, "/healthz", "")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRateLimiting(t *testing.T) {
	f := newFixture(t, Config{RateLimit: 1, RateBurst: 1})

	first := doRequest(f, http.MethodPost, "/api/v1/kg/query",
		`{"query":"MATCH (t:Team) RETURN t.id"}`)
	second := doRequest(f, http.MethodPost, "/api/v1/kg/query",
		`{"query":"MATCH (t:Team) RETURN t.id"}`)

	assert.Equal(t, http.StatusOK, first.Code)
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.Equal(t, 1, f.store.calls)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, Config{EnableCORS: true, CORSOrigins: []string{"https://ops.example.com"}})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/kg/query", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ops.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORSDisallowedOrigin(t *testing.T) {
	f := newFixture(t, Config{EnableCORS: true, CORSOrigins: []string{"https://ops.example.com"}})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)

	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestBodySizeLimit(t *testing.T) {
	f := newFixture(t, Config{MaxRequestSize: 64})

	big := `{"query":"` + strings.Repeat("M", 200) + `"}`
	rec := doRequest(f, http.MethodPost, "/api/v1/kg/query", big)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestMeteringCountsEachRequestOnce(t *testing.T) {
	// Full wiring: real orchestrator and aggregator sharing the gateway's
	// metric registry. Each request must land in QueriesTotal exactly once.
	registry := metric.NewMetricsRegistry()
	store := &fakeReader{}

	orchestrator, err := copilot.NewOrchestrator(copilot.Deps{
		Store:   store,
		Metrics: registry.Metrics,
	})
	require.NoError(t, err)
	aggregator := snapshot.NewAggregator(snapshot.Deps{Store: store})

	server, err := NewServer(Config{}, Deps{
		Snapshot: aggregator,
		Copilot:  orchestrator,
		Store:    store,
		Registry: registry,
		Metrics:  registry.Metrics,
	})
	require.NoError(t, err)

	serve := func(method, target, body string) *httptest.ResponseRecorder {
		var req *http.Request
		if body == "" {
			req = httptest.NewRequest(method, target, nil)
		} else {
			req = httptest.NewRequest(method, target, strings.NewReader(body))
		}
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)
		return rec
	}

	rec := serve(http.MethodPost, "/api/v1/copilot/ask", `{"text":"팀 통계"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(registry.Metrics.QueriesTotal.WithLabelValues("copilot", "template")))

	rec = serve(http.MethodGet, "/api/v1/kg/snapshot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(registry.Metrics.QueriesTotal.WithLabelValues("snapshot", "template")))

	rec = serve(http.MethodPost, "/api/v1/kg/query", `{"query":"MATCH (t:Team) RETURN t.id"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1),
		testutil.ToFloat64(registry.Metrics.QueriesTotal.WithLabelValues("query", "raw")))
}

func TestNewServerRequiresDependencies(t *testing.T) {
	_, err := NewServer(Config{}, Deps{Copilot: &fakeAsker{}, Store: &fakeReader{}})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))

	_, err = NewServer(Config{}, Deps{Snapshot: &fakeSnapshotter{}, Store: &fakeReader{}})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}
