// Package handlers exposes the simulation engine over a JSON REST API.
package handlers

import (
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/tphummel/rackops/internal/catalog"
	"github.com/tphummel/rackops/internal/db"
	"github.com/tphummel/rackops/internal/middleware"
	"github.com/tphummel/rackops/internal/models"
	"github.com/tphummel/rackops/internal/scheduler"
	"github.com/tphummel/rackops/internal/sim"
)

const maxBodyBytes = 64 * 1024

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	Engine  *sim.Engine
	DB      *db.DB
	Session string
	Version string
	Commit  string
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeEngineError maps engine errors onto HTTP status codes.
func writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *models.ValidationError
		perr *models.PermissionError
		cerr *models.ConfigurationError
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &cerr):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &perr):
		writeError(w, http.StatusForbidden, err.Error())
	default:
		slog.ErrorContext(r.Context(), "engine command failed",
			"request_id", middleware.RequestID(r.Context()), "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// decode reads a JSON request body into v, writing the error response and
// returning false on failure.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// Health handles GET /healthz. No auth required.
// Returns 503 if the database is unreachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	st := h.Engine.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"version":   h.Version,
		"commit":    h.Commit,
		"session":   h.Session,
		"game_time": st.Time,
		"paused":    st.Paused,
	})
}

// State handles GET /api/v1/state.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Snapshot())
}

// Catalog handles GET /api/v1/catalog.
func (h *Handler) Catalog(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.Catalog())
}

// ListTasks handles GET /api/v1/tasks with an optional ?status= filter.
func (h *Handler) ListTasks(w http.ResponseWriter, r *http.Request) {
	status := models.TaskStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.TaskPending, models.TaskInProgress:
	default:
		writeError(w, http.StatusBadRequest, "invalid status")
		return
	}

	tasks := []*models.Task{}
	for _, t := range h.Engine.Snapshot().Tasks {
		if status == "" || t.Status == status {
			tasks = append(tasks, t)
		}
	}
	writeJSON(w, http.StatusOK, tasks)
}

// CreateTask handles POST /api/v1/tasks.
func (h *Handler) CreateTask(w http.ResponseWriter, r *http.Request) {
	var req scheduler.Request
	if !decode(w, r, &req) {
		return
	}
	if req.Template == "" {
		writeError(w, http.StatusBadRequest, "template is required")
		return
	}
	t, err := h.Engine.CreateTask(req)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// AbortTask handles DELETE /api/v1/tasks/{id}.
func (h *Handler) AbortTask(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.AbortTask(r.PathValue("id")); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type purchaseRequest struct {
	HardwareID string `json:"hardware_id"`
	Quantity   int    `json:"quantity"`
}

// Purchase handles POST /api/v1/purchases. Quantity defaults to 1.
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req purchaseRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if err := h.Engine.Purchase(req.HardwareID, req.Quantity); err != nil {
		writeEngineError(w, r, err)
		return
	}
	st := h.Engine.Snapshot()
	writeJSON(w, http.StatusCreated, map[string]any{
		"cash":      st.Cash,
		"inventory": st.Inventory,
	})
}

type hireRequest struct {
	Name  string        `json:"name"`
	Skill catalog.Skill `json:"skill"`
}

// Hire handles POST /api/v1/employees.
func (h *Handler) Hire(w http.ResponseWriter, r *http.Request) {
	var req hireRequest
	if !decode(w, r, &req) {
		return
	}
	emp, err := h.Engine.Hire(req.Name, req.Skill)
	if err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, emp)
}

type agentRequest struct {
	Permissions []catalog.Permission `json:"permissions"`
}

// PutAgent handles PUT /api/v1/agents/{name}.
func (h *Handler) PutAgent(w http.ResponseWriter, r *http.Request) {
	var req agentRequest
	if !decode(w, r, &req) {
		return
	}
	name := r.PathValue("name")
	if err := h.Engine.RegisterAgent(name, req.Permissions); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Engine.Snapshot().Agents[name])
}

type daemonRequest struct {
	Agent string        `json:"agent"`
	Rules []models.Rule `json:"rules"`
}

// DeployDaemon handles PUT /api/v1/daemons/{target}. The agent defaults to
// the built-in monitoring agent.
func (h *Handler) DeployDaemon(w http.ResponseWriter, r *http.Request) {
	var req daemonRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Agent == "" {
		req.Agent = sim.DefaultAgent
	}
	d := models.Daemon{Target: r.PathValue("target"), Agent: req.Agent, Rules: req.Rules}
	if err := h.Engine.DeployDaemon(d); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Engine.Snapshot().Daemons[d.Target])
}

// RemoveDaemon handles DELETE /api/v1/daemons/{target}.
func (h *Handler) RemoveDaemon(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.RemoveDaemon(r.PathValue("target")); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetGrid handles PUT /api/v1/power/grid.
func (h *Handler) SetGrid(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active *bool `json:"active"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Active == nil {
		writeError(w, http.StatusBadRequest, "active is required")
		return
	}
	if err := h.Engine.SetGridActive(*req.Active); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Engine.Snapshot().Power)
}

// SetCoolingMode handles PUT /api/v1/cooling/mode.
func (h *Handler) SetCoolingMode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode models.HVACMode `json:"mode"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.Engine.SetHVACMode(req.Mode); err != nil {
		writeEngineError(w, r, err)
		return
	}
	st := h.Engine.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"cooling":          st.Cooling,
		"server_room_temp": st.ServerRoomTemp,
	})
}

type contractRequest struct {
	ID string `json:"id"`
}

// SignISP handles POST /api/v1/contracts/isp.
func (h *Handler) SignISP(w http.ResponseWriter, r *http.Request) {
	var req contractRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Engine.SignISP(req.ID); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.Engine.Snapshot().Network)
}

// AcceptClient handles POST /api/v1/contracts/clients.
func (h *Handler) AcceptClient(w http.ResponseWriter, r *http.Request) {
	var req contractRequest
	if !decode(w, r, &req) {
		return
	}
	if err := h.Engine.AcceptClient(req.ID); err != nil {
		writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"clients": h.Engine.Snapshot().Clients})
}

// CancelClient handles DELETE /api/v1/contracts/clients/{id}.
func (h *Handler) CancelClient(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.CancelClient(r.PathValue("id")); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InjectFailure handles POST /api/v1/devices/{id}/failure.
func (h *Handler) InjectFailure(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Status models.DeviceStatus `json:"status"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := h.Engine.InjectFailure(r.PathValue("id"), req.Status); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// SetClock handles PUT /api/v1/clock. Either field may be omitted.
func (h *Handler) SetClock(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Paused *bool    `json:"paused"`
		Speed  *float64 `json:"speed"`
	}
	if !decode(w, r, &req) {
		return
	}
	if req.Speed != nil {
		if err := h.Engine.SetSpeed(*req.Speed); err != nil {
			writeEngineError(w, r, err)
			return
		}
	}
	if req.Paused != nil {
		h.Engine.SetPaused(*req.Paused)
	}
	st := h.Engine.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"time":   st.Time,
		"paused": st.Paused,
		"speed":  st.Speed,
	})
}

// Events handles GET /api/v1/events with an optional ?limit=.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}
	writeJSON(w, http.StatusOK, h.Engine.Events(limit))
}

// Notifications handles GET /api/v1/notifications. Toasts are delivered
// once; alerts repeat until acknowledged.
func (h *Handler) Notifications(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Engine.TakeNotifications())
}

// AcknowledgeAlert handles POST /api/v1/notifications/{id}/ack.
func (h *Handler) AcknowledgeAlert(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.AcknowledgeAlert(r.PathValue("id")); err != nil {
		writeEngineError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Save handles POST /api/v1/save.
func (h *Handler) Save(w http.ResponseWriter, r *http.Request) {
	if err := h.Engine.Save(r.Context(), h.DB, h.Session); err != nil {
		slog.ErrorContext(r.Context(), "failed to save session",
			"request_id", middleware.RequestID(r.Context()), "session", h.Session, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to save session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session": h.Session, "status": "saved"})
}

// ListSessions handles GET /api/v1/sessions.
func (h *Handler) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.DB.List(r.Context())
	if err != nil {
		slog.ErrorContext(r.Context(), "failed to list sessions", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []db.Session{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"current": h.Session, "sessions": sessions})
}

// LoadSession handles POST /api/v1/sessions/{id}/load. The saved game
// replaces the running one; later saves still go to the current session.
func (h *Handler) LoadSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := h.Engine.Load(r.Context(), h.DB, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to load session",
			"request_id", middleware.RequestID(r.Context()), "session", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	writeJSON(w, http.StatusOK, h.Engine.Snapshot())
}

// DeleteSession handles DELETE /api/v1/sessions/{id}.
func (h *Handler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.DB.Delete(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		slog.ErrorContext(r.Context(), "failed to delete session", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Reset handles POST /api/v1/reset.
func (h *Handler) Reset(w http.ResponseWriter, r *http.Request) {
	h.Engine.Reset()
	writeJSON(w, http.StatusOK, h.Engine.Snapshot())
}
