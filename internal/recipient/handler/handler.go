// Package handler exposes the recipient register over HTTP. It stays thin:
// parse, delegate to the service, translate coded errors to status codes.
package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"custodia/internal/changelog"
	"custodia/internal/graph"
	platformmetrics "custodia/internal/platform/metrics"
	"custodia/internal/platform/middleware"
	"custodia/internal/recipient"
	"custodia/internal/transport/http/shared"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/requestcontext"

	recipientservice "custodia/internal/recipient/service"
)

// HeaderChangeReason lets callers attach a free-text reason to mutations; it
// is copied verbatim onto the resulting change-log entries.
const HeaderChangeReason = "X-Change-Reason"

// Service defines the recipient operations the transport needs.
type Service interface {
	Create(ctx context.Context, tenantID id.TenantID, input recipientservice.CreateInput) (*recipient.Node, []string, error)
	Update(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID, input recipientservice.UpdateInput) (*recipient.Node, []string, error)
	Delete(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) error
	Get(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) (*recipient.Node, error)
	DirectChildren(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) ([]*recipient.Node, error)
	DescendantTree(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID, maxDepth int) ([]graph.TreeEntry, error)
	AncestorChain(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) ([]*recipient.Node, error)
	ChangeLog(ctx context.Context, tenantID id.TenantID, entityType, entityID string) ([]changelog.Entry, error)
	HierarchyHealth(ctx context.Context, tenantID id.TenantID) (*graph.HealthReport, error)
}

type Handler struct {
	logger  *slog.Logger
	svc     Service
	metrics *platformmetrics.Metrics
}

func New(svc Service, logger *slog.Logger, metrics *platformmetrics.Metrics) *Handler {
	return &Handler{logger: logger, svc: svc, metrics: metrics}
}

// Register mounts the recipient routes. Every route runs behind the tenant
// middleware, so handlers can read the tenant from context unconditionally.
func (h *Handler) Register(r chi.Router) {
	rr := chi.NewRouter()
	rr.Use(middleware.Recovery(h.logger))
	rr.Use(middleware.RequestID)
	rr.Use(middleware.RequestTime)
	rr.Use(middleware.Logger(h.logger))
	rr.Use(middleware.Timeout(30 * time.Second))
	rr.Use(middleware.ContentTypeJSON)
	rr.Use(middleware.Latency(h.metrics))
	rr.Use(middleware.TenantContext(h.logger, shared.WriteError))

	rr.Post("/recipients", h.handleCreate)
	rr.Get("/recipients/{nodeID}", h.handleGet)
	rr.Patch("/recipients/{nodeID}", h.handleUpdate)
	rr.Delete("/recipients/{nodeID}", h.handleDelete)
	rr.Get("/recipients/{nodeID}/children", h.handleChildren)
	rr.Get("/recipients/{nodeID}/tree", h.handleTree)
	rr.Get("/recipients/{nodeID}/ancestors", h.handleAncestors)
	rr.Get("/recipients/{nodeID}/changelog", h.handleChangeLog)
	rr.Get("/hierarchy/health", h.handleHierarchyHealth)

	r.Mount("/", rr)
}

type createRequest struct {
	Type             string  `json:"type"`
	ParentID         *string `json:"parentId"`
	Name             string  `json:"name"`
	Description      string  `json:"description"`
	CountryID        string  `json:"countryId"`
	ClassificationID string  `json:"classificationId"`
	AgreementRef     string  `json:"agreementRef"`
}

// updateRequest distinguishes absent fields (leave unchanged) from explicit
// nulls; parentId uses RawMessage so "parentId": null can mean "detach".
type updateRequest struct {
	Type             *string         `json:"type"`
	ParentID         json.RawMessage `json:"parentId"`
	Name             *string         `json:"name"`
	Description      *string         `json:"description"`
	CountryID        *string         `json:"countryId"`
	ClassificationID *string         `json:"classificationId"`
	AgreementRef     *string         `json:"agreementRef"`
	Status           *string         `json:"status"`
}

type nodeResponse struct {
	ID               string    `json:"id"`
	TenantID         string    `json:"tenantId"`
	Type             string    `json:"type"`
	ParentID         *string   `json:"parentId"`
	Kind             string    `json:"kind,omitempty"`
	Name             string    `json:"name"`
	Description      string    `json:"description,omitempty"`
	CountryID        string    `json:"countryId,omitempty"`
	ClassificationID string    `json:"classificationId,omitempty"`
	AgreementRef     string    `json:"agreementRef,omitempty"`
	Status           string    `json:"status"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

type mutationResponse struct {
	Node     nodeResponse `json:"node"`
	Warnings []string     `json:"warnings,omitempty"`
}

type treeEntryResponse struct {
	Node  nodeResponse `json:"node"`
	Depth int          `json:"depth"`
}

type entryResponse struct {
	ID           string             `json:"id"`
	EntityType   string             `json:"entityType"`
	EntityID     string             `json:"entityId"`
	ChangeType   string             `json:"changeType"`
	FieldChanged *string            `json:"fieldChanged,omitempty"`
	OldValue     changelog.Snapshot `json:"oldValue,omitempty"`
	NewValue     changelog.Snapshot `json:"newValue,omitempty"`
	ChangedAt    time.Time          `json:"changedAt"`
	ActorID      string             `json:"actorId,omitempty"`
	ChangeReason string             `json:"changeReason,omitempty"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := withChangeReason(r)
	tenantID := requestcontext.TenantID(ctx)

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}

	nodeType, err := recipient.ParseNodeType(req.Type)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	input := recipientservice.CreateInput{
		Type:             nodeType,
		Name:             req.Name,
		Description:      req.Description,
		CountryID:        req.CountryID,
		ClassificationID: req.ClassificationID,
		AgreementRef:     req.AgreementRef,
	}
	if req.ParentID != nil {
		parentID, err := id.ParseNodeID(*req.ParentID)
		if err != nil {
			shared.WriteError(w, err)
			return
		}
		input.ParentID = &parentID
	}

	node, warnings, err := h.svc.Create(ctx, tenantID, input)
	if err != nil {
		h.logFailure(ctx, "create recipient", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, mutationResponse{Node: toNodeResponse(node), Warnings: warnings})
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx := withChangeReason(r)
	tenantID := requestcontext.TenantID(ctx)
	nodeID, err := id.ParseNodeID(chi.URLParam(r, "nodeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "invalid request body"))
		return
	}
	input, err := toUpdateInput(req)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	node, warnings, err := h.svc.Update(ctx, tenantID, nodeID, input)
	if err != nil {
		h.logFailure(ctx, "update recipient", err)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, mutationResponse{Node: toNodeResponse(node), Warnings: warnings})
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	ctx := withChangeReason(r)
	tenantID := requestcontext.TenantID(ctx)
	nodeID, err := id.ParseNodeID(chi.URLParam(r, "nodeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if err := h.svc.Delete(ctx, tenantID, nodeID); err != nil {
		h.logFailure(ctx, "delete recipient", err)
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	nodeID, err := id.ParseNodeID(chi.URLParam(r, "nodeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	node, err := h.svc.Get(ctx, requestcontext.TenantID(ctx), nodeID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toNodeResponse(node))
}

func (h *Handler) handleChildren(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	nodeID, err := id.ParseNodeID(chi.URLParam(r, "nodeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	children, err := h.svc.DirectChildren(ctx, requestcontext.TenantID(ctx), nodeID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toNodeResponses(children))
}

func (h *Handler) handleTree(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	nodeID, err := id.ParseNodeID(chi.URLParam(r, "nodeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	maxDepth := 0
	if raw := r.URL.Query().Get("maxDepth"); raw != "" {
		maxDepth, err = strconv.Atoi(raw)
		if err != nil || maxDepth < 0 {
			shared.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "maxDepth must be a non-negative integer"))
			return
		}
	}

	tree, err := h.svc.DescendantTree(ctx, requestcontext.TenantID(ctx), nodeID, maxDepth)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]treeEntryResponse, 0, len(tree))
	for _, entry := range tree {
		out = append(out, treeEntryResponse{Node: toNodeResponse(entry.Node), Depth: entry.Depth})
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleAncestors(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	nodeID, err := id.ParseNodeID(chi.URLParam(r, "nodeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	chain, err := h.svc.AncestorChain(ctx, requestcontext.TenantID(ctx), nodeID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, toNodeResponses(chain))
}

func (h *Handler) handleChangeLog(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	nodeID, err := id.ParseNodeID(chi.URLParam(r, "nodeID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	entries, err := h.svc.ChangeLog(ctx, requestcontext.TenantID(ctx), recipient.EntityType, nodeID.String())
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, entryResponse{
			ID:           e.ID.String(),
			EntityType:   e.EntityType,
			EntityID:     e.EntityID,
			ChangeType:   string(e.ChangeType),
			FieldChanged: e.FieldChanged,
			OldValue:     e.OldValue,
			NewValue:     e.NewValue,
			ChangedAt:    e.ChangedAt,
			ActorID:      e.ActorID,
			ChangeReason: e.ChangeReason,
		})
	}
	shared.WriteJSON(w, http.StatusOK, out)
}

func (h *Handler) handleHierarchyHealth(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.svc.HierarchyHealth(ctx, requestcontext.TenantID(ctx))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, report)
}

func (h *Handler) logFailure(ctx context.Context, op string, err error) {
	log := h.logger.WarnContext
	if dErrors.Is(err, dErrors.CodeInternal) {
		log = h.logger.ErrorContext
	}
	log(ctx, "recipient operation failed",
		"operation", op,
		"error", err.Error(),
		"request_id", requestcontext.RequestID(ctx),
	)
}

func withChangeReason(r *http.Request) context.Context {
	ctx := r.Context()
	if reason := r.Header.Get(HeaderChangeReason); reason != "" {
		ctx = changelog.WithChangeReason(ctx, reason)
	}
	return ctx
}

func toUpdateInput(req updateRequest) (recipientservice.UpdateInput, error) {
	var input recipientservice.UpdateInput
	if req.Type != nil {
		t, err := recipient.ParseNodeType(*req.Type)
		if err != nil {
			return input, err
		}
		input.Type = &t
	}
	if len(req.ParentID) > 0 {
		input.ParentSet = true
		if string(req.ParentID) != "null" {
			var raw string
			if err := json.Unmarshal(req.ParentID, &raw); err != nil {
				return input, dErrors.New(dErrors.CodeInvalidInput, "parentId must be a UUID string or null")
			}
			parentID, err := id.ParseNodeID(raw)
			if err != nil {
				return input, err
			}
			input.ParentID = &parentID
		}
	}
	if req.Status != nil {
		status, err := recipient.ParseStatus(*req.Status)
		if err != nil {
			return input, err
		}
		input.Status = &status
	}
	input.Name = req.Name
	input.Description = req.Description
	input.CountryID = req.CountryID
	input.ClassificationID = req.ClassificationID
	input.AgreementRef = req.AgreementRef
	return input, nil
}

func toNodeResponse(n *recipient.Node) nodeResponse {
	var parent *string
	if n.ParentID != nil {
		s := n.ParentID.String()
		parent = &s
	}
	return nodeResponse{
		ID:               n.ID.String(),
		TenantID:         n.TenantID.String(),
		Type:             string(n.Type),
		ParentID:         parent,
		Kind:             string(n.Kind),
		Name:             n.Name,
		Description:      n.Description,
		CountryID:        n.CountryID,
		ClassificationID: n.ClassificationID,
		AgreementRef:     n.AgreementRef,
		Status:           string(n.Status),
		CreatedAt:        n.CreatedAt,
		UpdatedAt:        n.UpdatedAt,
	}
}

func toNodeResponses(nodes []*recipient.Node) []nodeResponse {
	out := make([]nodeResponse, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, toNodeResponse(n))
	}
	return out
}
