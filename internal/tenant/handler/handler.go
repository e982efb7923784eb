// Package handler exposes the tenant admin surface. These routes are not
// tenant-scoped: they manage tenants themselves and sit behind whatever admin
// gating the deployment's edge applies.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	platformmetrics "custodia/internal/platform/metrics"
	"custodia/internal/platform/middleware"
	"custodia/internal/tenant"
	"custodia/internal/transport/http/shared"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/requestcontext"
)

// Service defines the tenant operations the transport needs.
type Service interface {
	Create(ctx context.Context, name string) (*tenant.Tenant, error)
	Get(ctx context.Context, tenantID id.TenantID) (*tenant.Tenant, error)
	Delete(ctx context.Context, tenantID id.TenantID) error
}

type Handler struct {
	logger  *slog.Logger
	svc     Service
	metrics *platformmetrics.Metrics
}

func New(svc Service, logger *slog.Logger, metrics *platformmetrics.Metrics) *Handler {
	return &Handler{logger: logger, svc: svc, metrics: metrics}
}

func (h *Handler) Register(r chi.Router) {
	tr := chi.NewRouter()
	tr.Use(middleware.Recovery(h.logger))
	tr.Use(middleware.RequestID)
	tr.Use(middleware.RequestTime)
	tr.Use(middleware.Logger(h.logger))
	tr.Use(middleware.Timeout(60 * time.Second))
	tr.Use(middleware.ContentTypeJSON)
	tr.Use(middleware.Latency(h.metrics))

	tr.Post("/", h.handleCreate)
	tr.Get("/{tenantID}", h.handleGet)
	tr.Delete("/{tenantID}", h.handleDelete)

	r.Mount("/tenants", tr)
}

type createRequest struct {
	Name string `json:"name"`
}

type tenantResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	t, err := h.svc.Create(ctx, req.Name)
	if err != nil {
		h.logger.WarnContext(ctx, "tenant create failed",
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, toResponse(t))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	t, err := h.svc.Get(ctx, tenantID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toResponse(t))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenantID, err := id.ParseTenantID(chi.URLParam(r, "tenantID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.Delete(ctx, tenantID); err != nil {
		h.logger.ErrorContext(ctx, "tenant delete failed",
			"tenant_id", tenantID.String(),
			"error", err.Error(),
			"request_id", requestcontext.RequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toResponse(t *tenant.Tenant) tenantResponse {
	return tenantResponse{
		ID:        t.ID.String(),
		Name:      t.Name,
		Status:    string(t.Status),
		CreatedAt: t.CreatedAt,
	}
}
