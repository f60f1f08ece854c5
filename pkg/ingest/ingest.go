// Package ingest exposes the dispatcher over HTTP. A replication host posts
// each batch of row mutations for one table and gets a 200 only once every
// derived message has been acknowledged by the broker, so it can safely
// advance its replay position.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/edgeflare/cellbridge/pkg/httputil"
	"github.com/edgeflare/cellbridge/pkg/httputil/middleware"
	"github.com/edgeflare/cellbridge/pkg/pipeline"
	"github.com/edgeflare/cellbridge/pkg/pipeline/cdc"
	"github.com/edgeflare/cellbridge/pkg/rules"
	"go.uber.org/zap"
)

const (
	readTimeout = 30 * time.Second
	idleTimeout = 2 * time.Minute
	writeMargin = 5 * time.Second
)

// Submitter is the part of the dispatcher the handlers need.
type Submitter interface {
	Submit(ctx context.Context, table rules.TableName, batch []cdc.Mutation) (pipeline.Result, error)
}

// Options configure the HTTP handlers.
type Options struct {
	// Source is used by the reload endpoint. Reload is disabled when nil.
	Source        rules.Source
	MaxBodyBytes  int64
	SubmitTimeout time.Duration
	Logger        *zap.Logger
}

// Server holds the handlers.
type Server struct {
	dispatcher Submitter
	store      *rules.Store
	opts       Options
}

func NewServer(dispatcher Submitter, store *rules.Store, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Server{dispatcher: dispatcher, store: store, opts: opts}
}

// Register mounts the routes on r.
func (s *Server) Register(r *httputil.Router) {
	r.HandleFunc("GET /healthz", s.health)

	v1 := r.Group("/v1")
	v1.HandleFunc("POST /tables/{table}/mutations", s.submit)
	v1.HandleFunc("GET /rules", s.listRules)
	v1.HandleFunc("GET /rules/match", s.match)
	v1.HandleFunc("POST /rules/reload", s.reload)
}

// NewRouter returns a router with the request id and access log middleware
// and every route registered.
func (s *Server) NewRouter(opts ...httputil.RouterOptions) *httputil.Router {
	defaults := []httputil.RouterOptions{
		httputil.WithLogger(s.opts.Logger),
		httputil.WithServerOptions(s.serverTimeouts),
	}
	r := httputil.NewRouter(append(defaults, opts...)...)
	r.Use(middleware.RequestID, middleware.LoggerWithOptions(&middleware.LoggerOptions{Logger: s.opts.Logger}))
	s.Register(r)
	return r
}

// serverTimeouts bounds reads and leaves writes enough room to report a
// batch that hit SubmitTimeout at the barrier.
func (s *Server) serverTimeouts(srv *http.Server) {
	srv.ReadTimeout = readTimeout
	srv.IdleTimeout = idleTimeout
	if s.opts.SubmitTimeout > 0 {
		srv.WriteTimeout = readTimeout + s.opts.SubmitTimeout + writeMargin
	}
}

// MutationBatch is the request body of the submit endpoint. Byte fields are
// base64 encoded.
type MutationBatch struct {
	Mutations []cdc.Mutation `json:"mutations"`
}

type submitResponse struct {
	Table     string `json:"table"`
	RequestID string `json:"requestId"`
	pipeline.Result
}

func (s *Server) submit(w http.ResponseWriter, r *http.Request) {
	table, err := rules.ParseTableName(r.PathValue("table"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	var batch MutationBatch
	if err := httputil.BindOrError(r, w, &batch, s.opts.MaxBodyBytes); err != nil {
		return
	}
	for i, m := range batch.Mutations {
		if len(m.Row) == 0 {
			httputil.Error(w, http.StatusBadRequest, fmt.Sprintf("mutation %d: empty row key", i))
			return
		}
	}

	ctx := r.Context()
	if s.opts.SubmitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.SubmitTimeout)
		defer cancel()
	}

	res, err := s.dispatcher.Submit(ctx, table, batch.Mutations)
	if err != nil {
		middleware.RequestLogger(r.Context()).Warn("Batch not forwarded", zap.String("table", table.String()), zap.Error(err))
		status := http.StatusBadGateway
		if errors.Is(err, context.DeadlineExceeded) {
			status = http.StatusGatewayTimeout
		}
		// the id lets the host match a failed batch with the access log
		httputil.JSON(w, status, httputil.ErrorResponse{Code: status, Message: err.Error(), RequestID: httputil.RequestID(r)})
		return
	}
	httputil.JSON(w, http.StatusOK, submitResponse{Table: table.String(), RequestID: httputil.RequestID(r), Result: res})
}

type matchResponse struct {
	Table    string   `json:"table"`
	Excluded bool     `json:"excluded"`
	Topics   []string `json:"topics"`
}

func (s *Server) match(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	table, err := rules.ParseTableName(q.Get("table"))
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	var family []byte
	if q.Has("family") {
		family = []byte(q.Get("family"))
	}
	qualifier := []byte(q.Get("qualifier"))

	// evaluate against one snapshot
	rs := s.store.Load()
	resp := matchResponse{Table: table.String(), Topics: []string{}}
	if rs.IsExcluded(table, family, qualifier) {
		resp.Excluded = true
	} else if topics := rs.TopicsFor(table, family, qualifier); len(topics) > 0 {
		resp.Topics = topics
	}
	httputil.JSON(w, http.StatusOK, resp)
}

type rulesResponse struct {
	Generation uint64   `json:"generation"`
	Drop       []string `json:"drop"`
	Route      []string `json:"route"`
}

func (s *Server) listRules(w http.ResponseWriter, _ *http.Request) {
	rs, generation := s.store.Snapshot()
	resp := rulesResponse{Generation: generation, Drop: []string{}, Route: []string{}}
	for _, r := range rs.ExcludeRules() {
		resp.Drop = append(resp.Drop, r.String())
	}
	for _, r := range rs.RouteRules() {
		resp.Route = append(resp.Route, r.String())
	}
	httputil.JSON(w, http.StatusOK, resp)
}

type reloadResponse struct {
	Generation uint64 `json:"generation"`
	Rules      int    `json:"rules"`
}

func (s *Server) reload(w http.ResponseWriter, r *http.Request) {
	if s.opts.Source == nil {
		httputil.Error(w, http.StatusNotImplemented, "no rule source configured")
		return
	}
	if err := s.store.Reload(s.opts.Source); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, rules.ErrRuleParse) {
			status = http.StatusUnprocessableEntity
		}
		httputil.Error(w, status, err.Error())
		return
	}
	rs, generation := s.store.Snapshot()
	httputil.JSON(w, http.StatusOK, reloadResponse{Generation: generation, Rules: rs.Len()})
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "ok")
}
