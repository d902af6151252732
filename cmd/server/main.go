package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/queueshift/queueshift/internal/logger"
	"github.com/queueshift/queueshift/rules"
	"github.com/queueshift/queueshift/scheduler"
)

// defaultExecutionTimeout bounds a manual execution batch; bulk updates over
// large catalogs can take minutes.
const defaultExecutionTimeout = 10 * time.Minute

type Server struct {
	db          *sql.DB
	engine      *rules.Engine
	coordinator *rules.Coordinator
	history     rules.HistoryStore
	catalog     rules.Catalog
	router      *chi.Mux
	execTimeout time.Duration
}

func NewServer(databaseURL string) (*Server, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return NewServerWithDB(db)
}

// NewServerWithDB wires the engine, coordinator, and stores over an
// existing connection.
func NewServerWithDB(db *sql.DB) (*Server, error) {
	catalog := rules.NewPostgresCatalog(db)
	store := rules.NewPostgresRuleStore(db)
	history := rules.NewPostgresHistoryStore(db)

	engine, err := rules.NewEngine(store, catalog, rules.DefaultFieldSchema())
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	s := &Server{
		db:          db,
		engine:      engine,
		coordinator: rules.NewCoordinator(engine, history),
		history:     history,
		catalog:     catalog,
		execTimeout: executionTimeout(),
	}
	s.setupRoutes()
	return s, nil
}

func executionTimeout() time.Duration {
	if v := os.Getenv("EXECUTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
		logger.Warn("invalid EXECUTION_TIMEOUT, using default", "value", v)
	}
	return defaultExecutionTimeout
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Get("/fields", s.handleListFields)

		r.Route("/schedule-rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)

			r.Route("/{ruleId}", func(r chi.Router) {
				r.Get("/", s.handleGetRule)
				r.Put("/", s.handleUpdateRule)
				r.Delete("/", s.handleDeleteRule)
				r.Put("/enabled", s.handleSetEnabled)
			})
		})

		r.Post("/execute-scheduled-updates", s.handleExecute)
		r.Get("/execution-history", s.handleExecutionHistory)
		r.Get("/contributor-projects", s.handleContributorProjects)
	})

	s.router = r
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unhealthy",
				"error":  err.Error(),
			})
			return
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// handleListFields exposes the condition-field schema so clients can build
// field/operator pickers.
func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	type fieldResponse struct {
		rules.FieldSpec
		Operators []rules.Operator `json:"operators"`
	}

	specs := s.engine.Schema().Fields()
	fields := make([]fieldResponse, 0, len(specs))
	for _, spec := range specs {
		fields = append(fields, fieldResponse{
			FieldSpec: spec,
			Operators: rules.OperatorsFor(spec.Type),
		})
	}

	respondJSON(w, http.StatusOK, map[string]any{"fields": fields})
}

func (s *Server) handleListRules(w http.ResponseWriter, r *http.Request) {
	ruleList, err := s.engine.Rules()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list rules", err)
		return
	}

	out := make([]ruleResponse, 0, len(ruleList))
	for _, rule := range ruleList {
		out = append(out, toRuleResponse(rule))
	}
	respondJSON(w, http.StatusOK, map[string]any{"rules": out})
}

func (s *Server) handleCreateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule(uuid.New().String())
	rule.CreatedBy = requestUser(r)

	if err := s.engine.AddRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to create rule", err)
		return
	}

	respondJSON(w, http.StatusCreated, toRuleResponse(rule))
}

func (s *Server) handleGetRule(w http.ResponseWriter, r *http.Request) {
	rule, err := s.engine.Rule(chi.URLParam(r, "ruleId"))
	if err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}
	respondJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) handleUpdateRule(w http.ResponseWriter, r *http.Request) {
	var req ruleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	rule := req.toRule(chi.URLParam(r, "ruleId"))
	if err := s.engine.UpdateRule(rule); err != nil {
		respondError(w, http.StatusBadRequest, "failed to update rule", err)
		return
	}

	respondJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) handleDeleteRule(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.DeleteRule(chi.URLParam(r, "ruleId")); err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSetEnabled(w http.ResponseWriter, r *http.Request) {
	var req setEnabledRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	ruleID := chi.URLParam(r, "ruleId")
	if err := s.engine.SetEnabled(ruleID, req.Enabled); err != nil {
		respondError(w, http.StatusNotFound, "rule not found", err)
		return
	}

	rule, err := s.engine.Rule(ruleID)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to reload rule", err)
		return
	}
	respondJSON(w, http.StatusOK, toRuleResponse(rule))
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if len(req.RuleIDs) == 0 {
		respondError(w, http.StatusBadRequest, "ruleIds are required", nil)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.execTimeout)
	defer cancel()

	result, err := s.coordinator.Execute(ctx, rules.ExecutionRequest{
		RuleIDs:        req.RuleIDs,
		TriggeredBy:    rules.TriggeredManually,
		EnableDisabled: req.EnableDisabled,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "execution failed", err)
		return
	}

	if result.ConfirmationRequired {
		// Deferred action: the batch contains paused rules the caller must
		// explicitly confirm enabling.
		respondJSON(w, http.StatusConflict, toExecuteResponse(result))
		return
	}

	// A run with per-record errors still completed; the errors list is the
	// operator's signal.
	respondJSON(w, http.StatusOK, toExecuteResponse(result))
}

func (s *Server) handleExecutionHistory(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "invalid limit", err)
			return
		}
		limit = n
	}

	entries, err := s.history.List(r.URL.Query().Get("ruleId"), limit)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list execution history", err)
		return
	}
	if entries == nil {
		entries = []*rules.ExecutionEntry{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"history": entries})
}

func (s *Server) handleContributorProjects(w http.ResponseWriter, r *http.Request) {
	limit, offset := 50, 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	records, err := s.catalog.ContributorProjectsPage(r.Context(), limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list contributor projects", err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"contributorProjects": records})
}

// requestUser attributes rule creation; falls back to "api" when the
// gateway does not forward an identity.
func requestUser(r *http.Request) string {
	if u := r.Header.Get("X-User"); u != "" {
		return u
	}
	return "api"
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]string{"error": message}
	if err != nil {
		response["details"] = err.Error()
	}
	respondJSON(w, status, response)
}

func main() {
	_ = godotenv.Load()

	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		logger.Fatal("DATABASE_URL environment variable is required")
	}

	server, err := NewServer(databaseURL)
	if err != nil {
		logger.Fatal("failed to create server", "error", err)
	}
	defer server.db.Close()

	// Scheduled runs are opt-in: set SCHEDULER_INTERVAL (e.g. "5m").
	var runner *scheduler.Runner
	if v := os.Getenv("SCHEDULER_INTERVAL"); v != "" {
		interval, err := time.ParseDuration(v)
		if err != nil || interval <= 0 {
			logger.Fatal("invalid SCHEDULER_INTERVAL", "value", v)
		}
		runner = scheduler.New(server.coordinator, interval)
		runner.Start(context.Background())
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	httpServer := &http.Server{
		Addr:         ":" + port,
		Handler:      server,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: server.execTimeout + 15*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server starting", "port", port)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", "error", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")
	if runner != nil {
		runner.Stop()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	_ = logger.Shutdown(ctx)

	logger.Info("server stopped")
}
