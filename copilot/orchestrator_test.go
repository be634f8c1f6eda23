package copilot

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/opsgraph/errors"
	"github.com/c360/opsgraph/graphstore"
	"github.com/c360/opsgraph/safety"
)

type fakeReader struct {
	calls      int
	lastQuery  string
	lastParams map[string]any
	result     *graphstore.RecordSet
	err        error
}

func (f *fakeReader) RunRead(_ context.Context, query string, params map[string]any) (*graphstore.RecordSet, error) {
	f.calls++
	f.lastQuery = query
	f.lastParams = params
	if f.err != nil {
		return nil, f.err
	}
	if f.result == nil {
		return &graphstore.RecordSet{}, nil
	}
	return f.result, nil
}

type fakeCompleter struct {
	response string
	err      error
	prompts  []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string, _ float32, _ int) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.response, nil
}

type denyAuthorizer struct{}

func (denyAuthorizer) Authorize(_ context.Context, _, _ string) error {
	return stderrors.New("team access denied")
}

func newTestOrchestrator(t *testing.T, store graphstore.Reader, summarizer Completer) *Orchestrator {
	t.Helper()
	o, err := NewOrchestrator(Deps{
		Store:      store,
		Summarizer: NewSummarizer(summarizer),
	})
	require.NoError(t, err)
	return o
}

func TestAskTemplatePath(t *testing.T) {
	store := &fakeReader{result: &graphstore.RecordSet{
		Records: []graphstore.Record{{"rule": "P1", "hits": int64(4)}},
	}}
	summarizer := &fakeCompleter{response: "P1 규칙이 가장 많이 발화했습니다."}
	o := newTestOrchestrator(t, store, summarizer)

	resp, err := o.Ask(context.Background(), Request{Text: "지난 7일 경보 원인 top 3", TeamID: "T1"})

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Equal(t, SourceTemplate, resp.QuerySource)
	assert.Equal(t, "top_alerts", resp.Intent)
	assert.Equal(t, "T1", resp.Params.TeamID)
	assert.Equal(t, 7, resp.Params.Days)
	assert.Equal(t, 1, resp.Count)
	assert.Equal(t, "P1 규칙이 가장 많이 발화했습니다.", resp.Summary)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, "T1", store.lastParams["teamId"])
}

func TestAskProvidedTeamOverridesExtracted(t *testing.T) {
	store := &fakeReader{}
	o := newTestOrchestrator(t, store, nil)

	resp, err := o.Ask(context.Background(), Request{Text: "alpha 팀 통계", TeamID: "beta"})

	require.NoError(t, err)
	assert.Equal(t, "beta", resp.Params.TeamID)
	assert.Equal(t, "beta", store.lastParams["teamId"])
}

func TestAskRejectedQueryNeverReachesStore(t *testing.T) {
	store := &fakeReader{}
	o := newTestOrchestrator(t, store, nil)
	o.validate = func(string) safety.Result {
		return safety.Result{Valid: false, Reason: "dangerous keyword \"SET\" is not allowed"}
	}

	_, err := o.Ask(context.Background(), Request{Text: "팀 통계"})

	require.Error(t, err)
	var rejection *RejectionError
	require.True(t, stderrors.As(err, &rejection))
	assert.Contains(t, rejection.Reason, "SET")
	assert.NotEmpty(t, rejection.Query)
	assert.True(t, errors.IsInvalid(err), "rejections map to client errors")
	assert.Zero(t, store.calls, "validator is the gate: store must not be invoked")
}

func TestAskSummarizerFailureFallsBackToCount(t *testing.T) {
	store := &fakeReader{result: &graphstore.RecordSet{
		Records: []graphstore.Record{{"team": "T1"}, {"team": "T2"}},
	}}
	summarizer := &fakeCompleter{err: stderrors.New("model unavailable")}
	o := newTestOrchestrator(t, store, summarizer)

	resp, err := o.Ask(context.Background(), Request{Text: "이벤트 통계"})

	require.NoError(t, err, "summary is best-effort, the request must not fail")
	assert.True(t, resp.Success)
	assert.Equal(t, CountSummary(2), resp.Summary)
}

func TestAskNoSummarizerConfigured(t *testing.T) {
	store := &fakeReader{result: &graphstore.RecordSet{
		Records: []graphstore.Record{{"team": "T1"}},
	}}
	o := newTestOrchestrator(t, store, nil)

	resp, err := o.Ask(context.Background(), Request{Text: "이벤트 통계"})

	require.NoError(t, err)
	assert.Equal(t, CountSummary(1), resp.Summary)
}

func TestAskStoreErrorSurfaces(t *testing.T) {
	store := &fakeReader{err: errors.WrapTransient(errors.ErrStoreUnavailable, "GraphStore", "Run", "connection lost")}
	o := newTestOrchestrator(t, store, nil)

	_, err := o.Ask(context.Background(), Request{Text: "이벤트 통계"})

	require.Error(t, err)
	assert.True(t, errors.IsTransient(err))
}

func TestAskEmptyTextRejected(t *testing.T) {
	store := &fakeReader{}
	o := newTestOrchestrator(t, store, nil)

	_, err := o.Ask(context.Background(), Request{})

	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Zero(t, store.calls)
}

func TestAskAuthorizerDenial(t *testing.T) {
	store := &fakeReader{}
	o, err := NewOrchestrator(Deps{Store: store, Authorizer: denyAuthorizer{}})
	require.NoError(t, err)

	_, err = o.Ask(context.Background(), Request{Text: "통계", TeamID: "T1", UID: "u1"})

	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Zero(t, store.calls)
}

func TestAskEmptyResultSet(t *testing.T) {
	store := &fakeReader{}
	o := newTestOrchestrator(t, store, nil)

	resp, err := o.Ask(context.Background(), Request{Text: "통계"})

	require.NoError(t, err)
	assert.NotNil(t, resp.Records, "records must serialize as [], not null")
	assert.Zero(t, resp.Count)
}

func TestNewOrchestratorRequiresStore(t *testing.T) {
	_, err := NewOrchestrator(Deps{})
	require.Error(t, err)
	assert.True(t, errors.IsFatal(err))
}
