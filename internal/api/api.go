// Package api exposes discovery over HTTP: starting and polling runs,
// importing platform listings and reviewing candidates.
//
// Routes:
//
//	GET  /health
//	POST /api/discovery-runs              start a discovery run
//	GET  /api/discovery-runs              recent runs
//	GET  /api/discovery-runs/{id}         poll one run
//	POST /api/scrape-runs                 import aggregator listings
//	GET  /api/candidates                  list candidates
//	POST /api/candidates/{id}/actions     accept, reject or maybe
package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/mathiasgse/screenfree/internal/discovery"
	"github.com/mathiasgse/screenfree/internal/model"
	"github.com/mathiasgse/screenfree/internal/resilience"
	"github.com/mathiasgse/screenfree/internal/store"
)

const (
	minLimit = 1
	maxLimit = 200
)

// RunStarter launches background discovery runs.
type RunStarter interface {
	Start(ctx context.Context, opts discovery.RunOptions) (string, error)
}

// ScrapeStarter launches background platform imports.
type ScrapeStarter interface {
	Start(ctx context.Context, opts discovery.ScrapeOptions) (string, error)
}

// Reviewer applies editorial decisions.
type Reviewer interface {
	Accept(ctx context.Context, id string) (*model.PlaceDraft, error)
	Reject(ctx context.Context, id, reason string) error
	Maybe(ctx context.Context, id string) error
}

// Options configures a Server.
type Options struct {
	// Token guards /api/* when set.
	Token          string
	AllowedOrigins []string
	// DefaultLimit applies when a run request omits limit.
	DefaultLimit int
	// Breakers, when set, are reported by /health.
	Breakers BreakerStates
}

// BreakerStates snapshots the circuit breakers of outbound services.
type BreakerStates interface {
	States() map[string]resilience.CircuitState
}

// Server holds the handlers' dependencies.
type Server struct {
	store    store.Store
	runs     RunStarter
	scrapes  ScrapeStarter
	reviewer Reviewer
	opts     Options
}

// NewServer creates a Server.
func NewServer(st store.Store, runs RunStarter, scrapes ScrapeStarter, reviewer Reviewer, opts Options) *Server {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 50
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{store: st, runs: runs, scrapes: scrapes, reviewer: reviewer, opts: opts}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.auth)
		r.Post("/discovery-runs", s.startRun)
		r.Get("/discovery-runs", s.listRuns)
		r.Get("/discovery-runs/{id}", s.getRun)
		r.Post("/scrape-runs", s.startScrape)
		r.Get("/candidates", s.listCandidates)
		r.Post("/candidates/{id}/actions", s.candidateAction)
	})
	return r
}

func (s *Server) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.opts.Token != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if subtle.ConstantTimeCompare([]byte(got), []byte(s.opts.Token)) != 1 {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type startRunRequest struct {
	Preset  string `json:"preset"`
	Country string `json:"country"`
	Limit   *int   `json:"limit"`
	DryRun  bool   `json:"dryRun"`
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	var req startRunRequest
	// An empty body starts a run over all presets.
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	limit := s.opts.DefaultLimit
	if req.Limit != nil {
		limit = *req.Limit
	}
	opts := discovery.RunOptions{
		Preset:  req.Preset,
		Country: strings.ToUpper(req.Country),
		Limit:   min(max(limit, minLimit), maxLimit),
		DryRun:  req.DryRun,
	}

	id, err := s.runs.Start(r.Context(), opts)
	if err != nil {
		fail(w, err)
		return
	}
	zap.L().Info("discovery run started",
		zap.String("run_id", id),
		zap.String("preset", opts.Preset),
		zap.String("country", opts.Country),
		zap.Int("limit", opts.Limit),
		zap.Bool("dry_run", opts.DryRun),
	)
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": id})
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	runs, err := s.store.ListRuns(r.Context(), limit)
	if err != nil {
		fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": nonNilRuns(runs)})
}

type startScrapeRequest struct {
	URLs   []string `json:"urls"`
	DryRun bool     `json:"dryRun"`
}

func (s *Server) startScrape(w http.ResponseWriter, r *http.Request) {
	var req startScrapeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id, err := s.scrapes.Start(r.Context(), discovery.ScrapeOptions{URLs: req.URLs, DryRun: req.DryRun})
	if err != nil {
		fail(w, err)
		return
	}
	zap.L().Info("scrape run started", zap.String("run_id", id), zap.Int("urls", len(req.URLs)))
	writeJSON(w, http.StatusAccepted, map[string]string{"runId": id})
}

func (s *Server) listCandidates(w http.ResponseWriter, r *http.Request) {
	f := model.CandidateFilter{Status: model.CandidateStatus(r.URL.Query().Get("status"))}
	if f.Status != "" && !f.Status.Valid() {
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}
	var err error
	if f.MinScore, err = intParam(r, "minScore"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.Limit, err = intParam(r, "limit"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if f.Offset, err = intParam(r, "offset"); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	cs, err := s.store.ListCandidates(r.Context(), f)
	if err != nil {
		fail(w, err)
		return
	}
	if cs == nil {
		cs = []model.Candidate{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"candidates": cs})
}

type actionRequest struct {
	Action string `json:"action"`
	Reason string `json:"reason"`
}

func (s *Server) candidateAction(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case "accept":
		place, err := s.reviewer.Accept(r.Context(), id)
		if err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": model.StatusAccepted, "place": place})
	case "reject":
		if err := s.reviewer.Reject(r.Context(), id, req.Reason); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": model.StatusRejected})
	case "maybe":
		if err := s.reviewer.Maybe(r.Context(), id); err != nil {
			fail(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": model.StatusMaybe})
	default:
		writeError(w, http.StatusBadRequest, "action must be accept, reject or maybe")
	}
}

// fail maps domain errors onto status codes.
func fail(w http.ResponseWriter, err error) {
	switch {
	case eris.Is(err, discovery.ErrUnknownPreset),
		eris.Is(err, discovery.ErrUnknownCountry),
		eris.Is(err, discovery.ErrNoURLs),
		eris.Is(err, discovery.ErrTooManyURLs),
		eris.Is(err, discovery.ErrUnsupportedURL):
		writeError(w, http.StatusBadRequest, err.Error())
	case eris.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case eris.Is(err, discovery.ErrAlreadyAccepted):
		writeError(w, http.StatusConflict, err.Error())
	default:
		zap.L().Error("api: request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, eris.Errorf("invalid %s", name)
	}
	return n, nil
}

func nonNilRuns(runs []model.Run) []model.Run {
	if runs == nil {
		return []model.Run{}
	}
	return runs
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{"status": "ok"}
	if s.opts.Breakers != nil {
		states := map[string]string{}
		for name, st := range s.opts.Breakers.States() {
			states[name] = st.String()
		}
		resp["breakers"] = states
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		zap.L().Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
