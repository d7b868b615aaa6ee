// Package api provides HTTP handlers for the delegation engine REST API.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"scrumdeck/internal/domain"
	"scrumdeck/internal/middleware"
	"scrumdeck/internal/service"
)

// Handler carries the HTTP surface for delegations, checks, the permission
// catalog, and sprint registration.
type Handler struct {
	engine  *service.AuthorizationEngine
	sprints domain.SprintRepository
	logger  *slog.Logger
}

// NewHandler creates a Handler over the engine and sprint store.
func NewHandler(engine *service.AuthorizationEngine, sprints domain.SprintRepository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{engine: engine, sprints: sprints, logger: logger}
}

// Routes mounts every authenticated endpoint. The caller wraps the returned
// router with the auth middleware.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Route("/delegations", func(r chi.Router) {
		r.Post("/", h.createDelegation)
		r.Get("/", h.listDelegations)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.getDelegation)
			r.Put("/suspend", h.suspendDelegation)
			r.Put("/reactivate", h.reactivateDelegation)
			r.Delete("/", h.revokeDelegation)
			r.Delete("/purge", h.purgeDelegation)
			r.Post("/check", h.checkAndReserve)
			r.Post("/release", h.release)
		})
	})
	r.Get("/permissions", h.listPermissions)
	r.Post("/sprints", h.registerSprint)

	return r
}

// --- payloads ---

type checkRequest struct {
	Permission string          `json:"permission"`
	Scope      domain.Scope    `json:"scope"`
	Cost       decimal.Decimal `json:"cost"`
}

type checkResponse struct {
	Decision   string             `json:"decision"`
	Delegation *domain.Delegation `json:"delegation,omitempty"`
	Reason     string             `json:"reason,omitempty"`
	Message    string             `json:"message,omitempty"`
}

type listResponse struct {
	Delegations []domain.Delegation      `json:"delegations"`
	Summary     domain.DelegationSummary `json:"summary"`
	Total       int64                    `json:"total"`
}

type registerSprintRequest struct {
	ID        string `json:"id"`
	ProductID string `json:"productId"`
	Name      string `json:"name,omitempty"`
}

// --- handlers ---

func (h *Handler) createDelegation(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, domain.ErrAccessDenied("no authenticated principal"))
		return
	}

	var req domain.CreateDelegationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	d, err := h.engine.CreateDelegation(r.Context(), actor, req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, d)
}

func (h *Handler) listDelegations(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, domain.ErrAccessDenied("no authenticated principal"))
		return
	}

	filter := domain.DelegationFilter{}
	if v := r.URL.Query().Get("status"); v != "" {
		status := domain.Status(v)
		if !status.Valid() {
			h.writeError(w, r, domain.ErrValidation("unknown status %q", v))
			return
		}
		filter.Status = &status
	}
	if v := r.URL.Query().Get("agent_type"); v != "" {
		filter.AgentType = &v
	}
	filter.Page = domain.PageRequest{
		MaxResults: intQuery(r, "max_results"),
		PageToken:  r.URL.Query().Get("page_token"),
	}

	ds, summary, total, err := h.engine.ListByPrincipal(r.Context(), actor, r.URL.Query().Get("principal"), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, listResponse{Delegations: ds, Summary: summary, Total: total})
}

func (h *Handler) getDelegation(w http.ResponseWriter, r *http.Request) {
	h.withActor(w, r, func(actor domain.Actor) (any, error) {
		return h.engine.Get(r.Context(), actor, chi.URLParam(r, "id"))
	})
}

func (h *Handler) suspendDelegation(w http.ResponseWriter, r *http.Request) {
	h.withActor(w, r, func(actor domain.Actor) (any, error) {
		return h.engine.Suspend(r.Context(), actor, chi.URLParam(r, "id"))
	})
}

func (h *Handler) reactivateDelegation(w http.ResponseWriter, r *http.Request) {
	h.withActor(w, r, func(actor domain.Actor) (any, error) {
		return h.engine.Reactivate(r.Context(), actor, chi.URLParam(r, "id"))
	})
}

func (h *Handler) revokeDelegation(w http.ResponseWriter, r *http.Request) {
	h.withActor(w, r, func(actor domain.Actor) (any, error) {
		return h.engine.Revoke(r.Context(), actor, chi.URLParam(r, "id"))
	})
}

func (h *Handler) purgeDelegation(w http.ResponseWriter, r *http.Request) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, domain.ErrAccessDenied("no authenticated principal"))
		return
	}
	if err := h.engine.Purge(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) checkAndReserve(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrValidation("invalid request body: %v", err))
		return
	}
	if req.Permission == "" {
		h.writeError(w, r, domain.ErrValidation("permission is required"))
		return
	}
	if err := req.Scope.Validate(); err != nil {
		h.writeError(w, r, err)
		return
	}

	d, err := h.engine.CheckAndReserve(r.Context(), chi.URLParam(r, "id"), req.Permission, req.Scope, req.Cost)
	if err != nil {
		// A denial is a policy decision, not a fault: the response still has
		// the decision envelope, plus a status code callers can branch on.
		h.writeJSON(w, httpStatusFromDomainError(err), checkResponse{
			Decision: "deny",
			Reason:   reasonFromDomainError(err),
			Message:  err.Error(),
		})
		return
	}
	h.writeJSON(w, http.StatusOK, checkResponse{Decision: "allow", Delegation: d})
}

func (h *Handler) release(w http.ResponseWriter, r *http.Request) {
	d, err := h.engine.Release(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, d)
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{
		"permissions": h.engine.Catalog().Entries(),
	})
}

func (h *Handler) registerSprint(w http.ResponseWriter, r *http.Request) {
	var req registerSprintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, domain.ErrValidation("invalid request body: %v", err))
		return
	}
	if req.ID == "" || req.ProductID == "" {
		h.writeError(w, r, domain.ErrValidation("id and productId are required"))
		return
	}

	sprint := &domain.Sprint{ID: req.ID, ProductID: req.ProductID, Name: req.Name, CreatedAt: time.Now().UTC()}
	if err := h.sprints.Register(r.Context(), sprint); err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, sprint)
}

// --- helpers ---

// withActor runs an owner-gated engine call and writes the result.
func (h *Handler) withActor(w http.ResponseWriter, r *http.Request, fn func(domain.Actor) (any, error)) {
	actor, ok := middleware.ActorFromContext(r.Context())
	if !ok {
		h.writeError(w, r, domain.ErrAccessDenied("no authenticated principal"))
		return
	}
	out, err := fn(actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	h.writeJSON(w, http.StatusOK, out)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := httpStatusFromDomainError(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.RequestIDFromContext(r.Context()),
			"error", err)
	}
	h.writeJSON(w, status, map[string]any{
		"code":    status,
		"reason":  reasonFromDomainError(err),
		"message": err.Error(),
	})
}

func intQuery(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
