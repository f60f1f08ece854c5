package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/edgeflare/cellbridge/internal/testutil"
	"github.com/edgeflare/cellbridge/pkg/httputil"
	"github.com/edgeflare/cellbridge/pkg/httputil/middleware"
	"github.com/edgeflare/cellbridge/pkg/pipeline"
	"github.com/edgeflare/cellbridge/pkg/pipeline/peer/mock"
	"github.com/edgeflare/cellbridge/pkg/rules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	producer *mock.Producer
	store    *rules.Store
	handler  http.Handler
}

func newFixture(t *testing.T, src rules.Source) *fixture {
	t.Helper()
	store := rules.NewStore(nil, nil)
	require.NoError(t, store.Reload(rules.FileSource{Path: "testdata/rules.yaml"}))

	p := &mock.Producer{}
	d := pipeline.NewDispatcher(store, p)
	s := NewServer(d, store, Options{Source: src, MaxBodyBytes: 1 << 20, SubmitTimeout: 5 * time.Second})
	return &fixture{producer: p, store: store, handler: s.NewRouter()}
}

func (f *fixture) do(method, target, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func TestSubmitBatch(t *testing.T) {
	f := newFixture(t, nil)

	var batch MutationBatch
	_, err := testutil.LoadJSON("testdata/batch.json", &batch)
	require.NoError(t, err)
	body, err := json.Marshal(batch)
	require.NoError(t, err)

	w := f.do("POST", "/v1/tables/T/mutations", string(body))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDHeader))

	res := decode[submitResponse](t, w)
	assert.Equal(t, "default:T", res.Table)
	assert.Equal(t, w.Header().Get(middleware.RequestIDHeader), res.RequestID)
	assert.Equal(t, pipeline.Result{Cells: 3, Excluded: 1, Messages: 2}, res.Result)

	msgs := f.producer.Messages()
	require.Len(t, msgs, 2)
	for _, m := range msgs {
		assert.Equal(t, "audit", m.Topic)
	}
	assert.Equal(t, []byte("row-1"), msgs[0].Key)
}

func TestSubmitBadRequests(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		name, target, body string
		status             int
	}{
		{"invalid table", "/v1/tables/a:b:c/mutations", `{"mutations":[]}`, http.StatusBadRequest},
		{"malformed body", "/v1/tables/T/mutations", `{"mutations":`, http.StatusBadRequest},
		{"unknown field", "/v1/tables/T/mutations", `{"rows":[]}`, http.StatusBadRequest},
		{"empty row", "/v1/tables/T/mutations", `{"mutations":[{"cells":[]}]}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do("POST", tt.target, tt.body)
			assert.Equal(t, tt.status, w.Code)
			assert.NotEmpty(t, decode[httputil.ErrorResponse](t, w).Message)
		})
	}
	assert.Empty(t, f.producer.Messages())
}

func TestSubmitBrokerFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.producer.FailAt = map[int]error{1: errors.New("broker down")}

	body := `{"mutations":[{"row":"cm93","cells":[{"family":"Rg==","qualifier":"cQ==","timestamp":1}]}]}`
	w := f.do("POST", "/v1/tables/T/mutations", body)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	resp := decode[httputil.ErrorResponse](t, w)
	assert.Contains(t, resp.Message, "broker down")
	assert.Equal(t, w.Header().Get(middleware.RequestIDHeader), resp.RequestID)
}

func TestSubmitTimeoutAtBarrier(t *testing.T) {
	store := rules.NewStore(nil, nil)
	require.NoError(t, store.Reload(rules.FileSource{Path: "testdata/rules.yaml"}))
	p := &mock.Producer{Hold: true}
	t.Cleanup(p.Release)
	s := NewServer(pipeline.NewDispatcher(store, p), store, Options{SubmitTimeout: 20 * time.Millisecond})
	f := &fixture{producer: p, store: store, handler: s.NewRouter()}

	body := `{"mutations":[{"row":"cm93","cells":[{"family":"Rg==","qualifier":"cQ==","timestamp":1}]}]}`
	w := f.do("POST", "/v1/tables/T/mutations", body)
	assert.Equal(t, http.StatusGatewayTimeout, w.Code)
	resp := decode[httputil.ErrorResponse](t, w)
	assert.Equal(t, http.StatusGatewayTimeout, resp.Code)
	assert.Contains(t, resp.Message, context.DeadlineExceeded.Error())
	assert.Equal(t, 1, p.Held())
}

func TestMatch(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do("GET", "/v1/rules/match?table=T&family=F&qualifier=secret", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, matchResponse{Table: "default:T", Excluded: true, Topics: []string{}}, decode[matchResponse](t, w))

	w = f.do("GET", "/v1/rules/match?table=default:T&family=F&qualifier=public", "")
	assert.Equal(t, matchResponse{Table: "default:T", Topics: []string{"audit"}}, decode[matchResponse](t, w))

	w = f.do("GET", "/v1/rules/match?table=other:T", "")
	assert.Equal(t, matchResponse{Table: "other:T", Topics: []string{}}, decode[matchResponse](t, w))

	w = f.do("GET", "/v1/rules/match", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListRules(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do("GET", "/v1/rules", "")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[rulesResponse](t, w)
	rs, gen := f.store.Snapshot()
	assert.Equal(t, uint64(1), resp.Generation)
	assert.Equal(t, gen, resp.Generation)
	assert.Len(t, resp.Route, len(rs.RouteRules()))
	assert.Len(t, resp.Drop, 1)
	assert.Equal(t, []string{"action=route table=default:T topic=audit"}, resp.Route)
}

func TestReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - action: route\n    topic: everything\n"), 0o644))
	f := newFixture(t, rules.FileSource{Path: path})

	w := f.do("POST", "/v1/rules/reload", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, reloadResponse{Generation: 2, Rules: 1}, decode[reloadResponse](t, w))

	require.NoError(t, os.WriteFile(path, []byte("rules:\n  - action: route\n"), 0o644))
	w = f.do("POST", "/v1/rules/reload", "")
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, []string{"everything"}, f.store.TopicsFor(rules.MustParseTableName("x:y"), nil, nil))

	require.NoError(t, os.Remove(path))
	w = f.do("POST", "/v1/rules/reload", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestReloadWithoutSource(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do("POST", "/v1/rules/reload", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestServerTimeouts(t *testing.T) {
	s := NewServer(nil, rules.NewStore(nil, nil), Options{SubmitTimeout: 10 * time.Second})
	var srv http.Server
	s.serverTimeouts(&srv)
	assert.Equal(t, readTimeout, srv.ReadTimeout)
	assert.Greater(t, srv.WriteTimeout, 10*time.Second)

	var unbounded http.Server
	NewServer(nil, rules.NewStore(nil, nil), Options{}).serverTimeouts(&unbounded)
	assert.Zero(t, unbounded.WriteTimeout)
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do("GET", "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
