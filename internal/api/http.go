package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opsmend/opsmend/internal/admission"
	"github.com/opsmend/opsmend/internal/auth"
	"github.com/opsmend/opsmend/internal/cadence"
	"github.com/opsmend/opsmend/internal/cluster"
	"github.com/opsmend/opsmend/internal/model"
	"github.com/opsmend/opsmend/internal/scheduler"
)

// Server is the HTTP query and command surface over the pipeline. Reads,
// health, and metrics are open; command endpoints require an operator token.
type Server struct {
	engine  *cluster.Engine
	sched   *scheduler.Scheduler
	gate    *admission.Gate
	cadence *cadence.Controller
	authSvc *auth.Service
	logger  *slog.Logger
}

// NewServer creates the API server
func NewServer(engine *cluster.Engine, sched *scheduler.Scheduler, gate *admission.Gate, cad *cadence.Controller, authSvc *auth.Service, logger *slog.Logger) *Server {
	return &Server{
		engine:  engine,
		sched:   sched,
		gate:    gate,
		cadence: cad,
		authSvc: authSvc,
		logger:  logger,
	}
}

// Router builds the chi router with all routes mounted
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/auth/login", s.handleLogin)
	r.Post("/events", s.handleIngestEvent)

	r.Get("/clusters", s.handleListClusters)
	r.Get("/clusters/{key}", s.handleGetCluster)
	r.Get("/missions", s.handleListMissions)
	r.Get("/missions/{id}", s.handleGetMission)
	r.Get("/approvals", s.handleListApprovals)
	r.Get("/approvals/{id}", s.handleGetApproval)
	r.Get("/cadence", s.handleCadenceStatus)

	// Command endpoints require an authenticated operator.
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.authSvc))
		r.Post("/clusters/{key}/resolve", auth.RequireRole(s.handleResolveCluster, auth.RoleAdmin, auth.RoleOperator))
		r.Post("/missions/{id}/suspend", auth.RequireRole(s.handleSuspendMission, auth.RoleAdmin, auth.RoleOperator))
		r.Post("/missions/{id}/resume", auth.RequireRole(s.handleResumeMission, auth.RoleAdmin, auth.RoleOperator))
		r.Post("/approvals/{id}/approve", auth.RequireRole(s.handleApprove, auth.RoleAdmin, auth.RoleOperator))
		r.Post("/approvals/{id}/deny", auth.RequireRole(s.handleDeny, auth.RoleAdmin, auth.RoleOperator))
		r.Post("/cadence/boot-complete", auth.RequireRole(s.handleBootComplete, auth.RoleAdmin))
	})

	return r
}

// writeJSON writes a JSON response with the given status
func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}

// handleLogin handles POST /auth/login
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, token, err := s.authSvc.Authenticate(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, http.StatusInternalServerError, "authentication failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"token":    token,
		"username": user.Username,
		"role":     string(user.Role),
	})
}

// handleIngestEvent handles POST /events, the HTTP twin of the NATS
// ingestion subject
func (s *Server) handleIngestEvent(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Type     string                 `json:"type"`
		Severity string                 `json:"severity,omitempty"`
		Payload  map[string]interface{} `json:"payload,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, "event type is required")
		return
	}

	s.engine.Ingest(req.Type, req.Payload, req.Severity)
	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"accepted":  true,
		"timestamp": time.Now().UTC(),
	})
}

// handleListClusters handles GET /clusters?include_resolved=true
func (s *Server) handleListClusters(w http.ResponseWriter, r *http.Request) {
	includeResolved := r.URL.Query().Get("include_resolved") == "true"
	clusters := s.engine.Snapshot(includeResolved)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"clusters":  clusters,
		"count":     len(clusters),
		"timestamp": time.Now().UTC(),
	})
}

// handleGetCluster handles GET /clusters/{key}
func (s *Server) handleGetCluster(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	c, ok := s.engine.Get(key)
	if !ok {
		writeError(w, http.StatusNotFound, "cluster not found")
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleResolveCluster handles POST /clusters/{key}/resolve
func (s *Server) handleResolveCluster(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")
	actor := actorFrom(r)

	if !s.engine.Resolve(key, actor) {
		writeError(w, http.StatusConflict, "cluster not found or already resolved")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resolved":  true,
		"cluster":   key,
		"timestamp": time.Now().UTC(),
	})
}

// handleListMissions handles GET /missions?status=
func (s *Server) handleListMissions(w http.ResponseWriter, r *http.Request) {
	status := model.MissionStatus(r.URL.Query().Get("status"))
	missions := s.sched.List(status)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"missions":  missions,
		"count":     len(missions),
		"timestamp": time.Now().UTC(),
	})
}

// handleGetMission handles GET /missions/{id}
func (s *Server) handleGetMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, ok := s.sched.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "mission not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// handleSuspendMission handles POST /missions/{id}/suspend
func (s *Server) handleSuspendMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	if !s.sched.Suspend(id, req.Reason) {
		writeError(w, http.StatusConflict, "mission not found or not pending")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"suspended": true,
		"mission":   id,
		"timestamp": time.Now().UTC(),
	})
}

// handleResumeMission handles POST /missions/{id}/resume
func (s *Server) handleResumeMission(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if !s.sched.Resume(id) {
		writeError(w, http.StatusConflict, "mission not found or not suspended")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"resumed":   true,
		"mission":   id,
		"timestamp": time.Now().UTC(),
	})
}

// handleListApprovals handles GET /approvals
func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	pending := s.gate.PendingRequests()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"pending":   pending,
		"count":     len(pending),
		"timestamp": time.Now().UTC(),
	})
}

// handleGetApproval handles GET /approvals/{id}
func (s *Server) handleGetApproval(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, ok := s.gate.GetResult(id)
	if !ok {
		writeError(w, http.StatusNotFound, "approval request not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleApprove handles POST /approvals/{id}/approve
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	result, err := s.gate.ApprovePending(id, actorFrom(r))
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleDeny handles POST /approvals/{id}/deny
func (s *Server) handleDeny(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req struct {
		Reason string `json:"reason"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	result, err := s.gate.DenyPending(id, actorFrom(r), req.Reason)
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// handleCadenceStatus handles GET /cadence
func (s *Server) handleCadenceStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cadence.Status())
}

// handleBootComplete handles POST /cadence/boot-complete
func (s *Server) handleBootComplete(w http.ResponseWriter, r *http.Request) {
	s.cadence.MarkBootComplete()
	writeJSON(w, http.StatusOK, s.cadence.Status())
}

// handleHealth handles GET /healthz
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"clusters":  s.engine.Stats(),
		"missions":  s.sched.Stats(),
	})
}

// handleReady handles GET /readyz
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ready":     true,
		"timestamp": time.Now().UTC(),
	})
}

// actorFrom names the authenticated operator for audit purposes
func actorFrom(r *http.Request) string {
	if user, ok := auth.UserFromContext(r.Context()); ok {
		return user.Username
	}
	return "anonymous"
}
