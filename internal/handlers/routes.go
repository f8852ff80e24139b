package handlers

import (
	"net/http"

	"github.com/tphummel/rackops/internal/middleware"
)

// Wrapper decorates the handler registered for a route pattern.
type Wrapper func(pattern string, next http.Handler) http.Handler

// Routes registers every endpoint on a new mux. API routes require the
// bearer token; wrap, when non-nil, is applied to each route with its
// pattern so instrumentation can label by route.
func (h *Handler) Routes(token string, wrap Wrapper) *http.ServeMux {
	if wrap == nil {
		wrap = func(_ string, next http.Handler) http.Handler { return next }
	}
	mux := http.NewServeMux()
	open := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, wrap(pattern, fn))
	}
	authed := func(pattern string, fn http.HandlerFunc) {
		mux.Handle(pattern, wrap(pattern, middleware.Auth(token, fn)))
	}

	open("GET /healthz", h.Health)
	open("GET /openapi.yaml", h.OpenAPISpec)
	open("GET /docs", h.Docs)

	authed("GET /api/v1/state", h.State)
	authed("GET /api/v1/catalog", h.Catalog)
	authed("GET /api/v1/tasks", h.ListTasks)
	authed("POST /api/v1/tasks", h.CreateTask)
	authed("DELETE /api/v1/tasks/{id}", h.AbortTask)
	authed("POST /api/v1/purchases", h.Purchase)
	authed("POST /api/v1/employees", h.Hire)
	authed("PUT /api/v1/agents/{name}", h.PutAgent)
	authed("PUT /api/v1/daemons/{target}", h.DeployDaemon)
	authed("DELETE /api/v1/daemons/{target}", h.RemoveDaemon)
	authed("PUT /api/v1/power/grid", h.SetGrid)
	authed("PUT /api/v1/cooling/mode", h.SetCoolingMode)
	authed("POST /api/v1/contracts/isp", h.SignISP)
	authed("POST /api/v1/contracts/clients", h.AcceptClient)
	authed("DELETE /api/v1/contracts/clients/{id}", h.CancelClient)
	authed("POST /api/v1/devices/{id}/failure", h.InjectFailure)
	authed("PUT /api/v1/clock", h.SetClock)
	authed("GET /api/v1/events", h.Events)
	authed("GET /api/v1/notifications", h.Notifications)
	authed("POST /api/v1/notifications/{id}/ack", h.AcknowledgeAlert)
	authed("POST /api/v1/save", h.Save)
	authed("GET /api/v1/sessions", h.ListSessions)
	authed("POST /api/v1/sessions/{id}/load", h.LoadSession)
	authed("DELETE /api/v1/sessions/{id}", h.DeleteSession)
	authed("POST /api/v1/reset", h.Reset)

	return mux
}
