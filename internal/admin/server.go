// Package admin serves a read-only HTTP view of the running fleet. The only
// writes it accepts are goal submissions and cancellations, which go
// through the scheduler.
package admin

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"html/template"
	"io"
	"net/http"
	"strconv"
	"time"

	"fleetops/internal/broker"
	"fleetops/internal/coordinator"
	"fleetops/internal/goals"
	"fleetops/internal/history"
	"fleetops/internal/logging"
	"fleetops/internal/store"
)

// Fleet publishes coordinator snapshots.
type Fleet interface {
	Snapshot() coordinator.Snapshot
}

// Scheduler is the goal queue.
type Scheduler interface {
	Submit(ctx context.Context, g *goals.Goal) string
	Cancel(ctx context.Context, id string) error
	Queued() []goals.View
	Active() []goals.View
	Completed() []goals.View
	Failed() []goals.View
	Cancelled() []goals.View
}

// Cooldowns lists persisted cooldowns.
type Cooldowns interface {
	List() []store.CooldownEntry
}

// Limiter reports the broker's rate-limit state.
type Limiter interface {
	State() broker.State
}

// History reads the outcome ledger.
type History interface {
	RecentGoals(ctx context.Context, limit int) ([]history.GoalEvent, error)
	RecentActions(ctx context.Context, ship string, limit int) ([]history.ActionEvent, error)
}

// Deps are the components the server reads from.
type Deps struct {
	Fleet     Fleet
	Scheduler Scheduler
	Cooldowns Cooldowns
	Broker    Limiter
	History   History
	// Env binds submitted plans to the running fleet.
	Env goals.Env
}

type Server struct {
	deps Deps
	tpl  *template.Template
	mux  *http.ServeMux
}

//go:embed templates/index.html
var content embed.FS

const maxPlanBytes = 1 << 20

func NewServer(deps Deps) *Server {
	tpl := template.Must(template.New("index.html").Funcs(template.FuncMap{
		"since": func(t time.Time) string { return time.Since(t).Truncate(time.Second).String() },
	}).ParseFS(content, "templates/index.html"))
	s := &Server{deps: deps, tpl: tpl, mux: http.NewServeMux()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /{$}", s.handleIndex)
	s.mux.HandleFunc("GET /units", s.handleUnits)
	s.mux.HandleFunc("GET /goals", s.handleGoals)
	s.mux.HandleFunc("POST /goals", s.handleSubmit)
	s.mux.HandleFunc("POST /goals/{id}/cancel", s.handleCancel)
	s.mux.HandleFunc("GET /cooldowns", s.handleCooldowns)
	s.mux.HandleFunc("GET /broker", s.handleBroker)
	s.mux.HandleFunc("GET /history/goals", s.handleGoalHistory)
	s.mux.HandleFunc("GET /history/actions", s.handleActionHistory)
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.mux }

// Start serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s.mux, ReadHeaderTimeout: 5 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	logging.FromContext(ctx).Info("admin server listening", "addr", addr)
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func limit(r *http.Request, def int) int {
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 {
		return n
	}
	return def
}

type goalLists struct {
	Queued    []goals.View `json:"queued"`
	Active    []goals.View `json:"active"`
	Completed []goals.View `json:"completed"`
	Failed    []goals.View `json:"failed"`
	Cancelled []goals.View `json:"cancelled"`
}

func (s *Server) goalLists() goalLists {
	sch := s.deps.Scheduler
	return goalLists{
		Queued:    sch.Queued(),
		Active:    sch.Active(),
		Completed: sch.Completed(),
		Failed:    sch.Failed(),
		Cancelled: sch.Cancelled(),
	}
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := struct {
		Snapshot  coordinator.Snapshot
		Goals     goalLists
		Cooldowns []store.CooldownEntry
		Broker    broker.State
	}{
		Snapshot:  s.deps.Fleet.Snapshot(),
		Goals:     s.goalLists(),
		Cooldowns: s.deps.Cooldowns.List(),
	}
	if s.deps.Broker != nil {
		data.Broker = s.deps.Broker.State()
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.tpl.Execute(w, data); err != nil {
		logging.FromContext(r.Context()).Warn("render index", "err", err)
	}
}

func (s *Server) handleUnits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Fleet.Snapshot())
}

func (s *Server) handleGoals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.goalLists())
}

// handleSubmit accepts a YAML plan document and queues its goals.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxPlanBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	plan, err := goals.ParsePlan(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	var ids []string
	for _, g := range plan.Build(s.deps.Env) {
		ids = append(ids, s.deps.Scheduler.Submit(r.Context(), g))
	}
	writeJSON(w, http.StatusAccepted, map[string][]string{"ids": ids})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	err := s.deps.Scheduler.Cancel(r.Context(), id)
	switch {
	case errors.Is(err, goals.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case err != nil:
		writeError(w, http.StatusInternalServerError, err)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

func (s *Server) handleCooldowns(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Cooldowns.List())
}

func (s *Server) handleBroker(w http.ResponseWriter, r *http.Request) {
	if s.deps.Broker == nil {
		writeJSON(w, http.StatusOK, broker.State{})
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Broker.State())
}

func (s *Server) handleGoalHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusOK, []history.GoalEvent{})
		return
	}
	events, err := s.deps.History.RecentGoals(r.Context(), limit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleActionHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeJSON(w, http.StatusOK, []history.ActionEvent{})
		return
	}
	events, err := s.deps.History.RecentActions(r.Context(), r.URL.Query().Get("ship"), limit(r, 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}
