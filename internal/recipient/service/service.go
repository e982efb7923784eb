// Package service implements the recipient mutation path: hierarchy
// validation, the entity write, and change interception all run inside one
// transaction, so callers observe either a fully-applied, fully-logged change
// or no change at all.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"custodia/internal/changelog"
	"custodia/internal/graph"
	"custodia/internal/graph/healthcache"
	"custodia/internal/hierarchy"
	"custodia/internal/recipient"
	"custodia/internal/recipient/metrics"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
	pstrings "custodia/pkg/platform/strings"
	"custodia/pkg/platform/tx"
	"custodia/pkg/requestcontext"
)

// CreateInput carries the caller-settable fields for a new node. Kind is
// derived from Type, never accepted from callers.
type CreateInput struct {
	Type             recipient.NodeType
	ParentID         *id.NodeID
	Name             string
	Description      string
	CountryID        string
	ClassificationID string
	AgreementRef     string
}

// UpdateInput is a partial update. Nil pointers mean "leave unchanged";
// ParentSet distinguishes "set parent to nil" from "do not touch parent".
type UpdateInput struct {
	Type             *recipient.NodeType
	ParentID         *id.NodeID
	ParentSet        bool
	Name             *string
	Description      *string
	CountryID        *string
	ClassificationID *string
	AgreementRef     *string
	Status           *recipient.Status
}

// fieldNames lists the snapshot field names present in the patch. The
// interceptor intersects this with the tracked set.
func (in UpdateInput) fieldNames() []string {
	var fields []string
	if in.Type != nil {
		fields = append(fields, "type")
	}
	if in.ParentSet {
		fields = append(fields, "parent_id")
	}
	if in.Name != nil {
		fields = append(fields, "name")
	}
	if in.Description != nil {
		fields = append(fields, "description")
	}
	if in.CountryID != nil {
		fields = append(fields, "country_id")
	}
	if in.ClassificationID != nil {
		fields = append(fields, "classification_id")
	}
	if in.AgreementRef != nil {
		fields = append(fields, "agreement_ref")
	}
	if in.Status != nil {
		fields = append(fields, "status")
	}
	return fields
}

// Service orchestrates recipient mutations and reads.
type Service struct {
	store       recipient.Store
	runner      tx.Runner
	validator   *hierarchy.Service
	engine      *graph.Engine
	interceptor *changelog.Interceptor
	changes     changelog.Store
	health      *healthcache.Cache
	log         *slog.Logger
	metrics     *metrics.Metrics
}

func New(store recipient.Store, runner tx.Runner, validator *hierarchy.Service,
	engine *graph.Engine, interceptor *changelog.Interceptor, changes changelog.Store,
	health *healthcache.Cache, log *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{
		store:       store,
		runner:      runner,
		validator:   validator,
		engine:      engine,
		interceptor: interceptor,
		changes:     changes,
		health:      health,
		log:         log,
		metrics:     m,
	}
}

// Create validates the hierarchy assignment, inserts the node, and logs one
// CREATED entry, all in one transaction. Warnings accompany a successful
// result and never block.
func (s *Service) Create(ctx context.Context, tenantID id.TenantID, input CreateInput) (*recipient.Node, []string, error) {
	start := time.Now()
	now := requestcontext.Now(ctx).UTC()
	node := &recipient.Node{
		ID:               id.NewNodeID(),
		TenantID:         tenantID,
		Type:             input.Type,
		Kind:             s.validator.Rules().KindForType(input.Type),
		Name:             input.Name,
		Description:      input.Description,
		CountryID:        input.CountryID,
		ClassificationID: input.ClassificationID,
		AgreementRef:     input.AgreementRef,
		Status:           recipient.StatusActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	var warnings []string
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		result, err := s.validator.ValidateChange(ctx, tenantID, node, input.ParentID)
		if err != nil {
			return err
		}
		warnings = pstrings.DedupeAndTrim(result.Warnings)
		if err := result.AsError(); err != nil {
			s.metrics.IncrementValidationFailures()
			return err
		}
		node.ParentID = input.ParentID

		_, err = changelog.InterceptCreate(ctx, s.interceptor, recipient.EntityType,
			func(ctx context.Context) (*recipient.Node, error) {
				if err := s.store.Insert(ctx, node); err != nil {
					return nil, translateStoreErr(err)
				}
				return node, nil
			})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.metrics.IncrementNodesCreated()
	s.metrics.ObserveMutation(start)
	s.invalidateHealth(ctx, tenantID)
	s.log.Info("recipient created",
		"tenant_id", tenantID.String(), "node_id", node.ID.String(), "type", string(node.Type))
	return node, warnings, nil
}

// Update applies a partial update. The node row is locked for the duration of
// the transaction, and the transaction runs at an isolation level under which
// the validator's ancestor reads conflict with concurrent parent writes, so
// two concurrent reassignments cannot jointly close a cycle.
func (s *Service) Update(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID, input UpdateInput) (*recipient.Node, []string, error) {
	start := time.Now()
	var (
		updated  *recipient.Node
		warnings []string
	)
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		current, err := s.store.FindByIDForUpdate(ctx, tenantID, nodeID)
		if err != nil {
			return translateStoreErr(err)
		}

		draft := current.Clone()
		applyPatch(draft, input)
		proposedParent := current.ParentID
		if input.ParentSet {
			proposedParent = input.ParentID
		}

		result, err := s.validator.ValidateChange(ctx, tenantID, draft, proposedParent)
		if err != nil {
			return err
		}
		warnings = pstrings.DedupeAndTrim(result.Warnings)
		if err := result.AsError(); err != nil {
			s.metrics.IncrementValidationFailures()
			return err
		}

		draft.ParentID = proposedParent
		draft.Kind = s.validator.Rules().KindForType(draft.Type)
		draft.UpdatedAt = requestcontext.Now(ctx).UTC()

		updated, err = changelog.InterceptUpdate(ctx, s.interceptor, recipient.EntityType, input.fieldNames(),
			func(ctx context.Context) (*recipient.Node, error) { return current, nil },
			func(ctx context.Context) (*recipient.Node, error) {
				if err := s.store.Update(ctx, draft); err != nil {
					return nil, translateStoreErr(err)
				}
				return draft, nil
			})
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	s.metrics.IncrementNodesUpdated()
	s.metrics.ObserveMutation(start)
	s.invalidateHealth(ctx, tenantID)
	return updated, warnings, nil
}

// Delete removes a node. Children are detached, not cascaded: compliance
// records must outlive structural reshuffles, so each direct child becomes a
// root and the detachment is logged like any other parent change.
func (s *Service) Delete(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) error {
	start := time.Now()
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.store.FindByIDForUpdate(ctx, tenantID, nodeID); err != nil {
			return translateStoreErr(err)
		}

		children, err := s.store.ChildrenOf(ctx, tenantID, nodeID)
		if err != nil {
			return translateStoreErr(err)
		}
		// One entry per child, one bulk write for all of them. The entries and
		// the detachment share the transaction, so the log never describes a
		// state the store did not reach.
		detachedAt := requestcontext.Now(ctx).UTC()
		for _, child := range children {
			detached := child.Clone()
			detached.ParentID = nil
			detached.UpdatedAt = detachedAt
			_, err := changelog.InterceptUpdate(ctx, s.interceptor, recipient.EntityType, []string{"parent_id"},
				func(ctx context.Context) (*recipient.Node, error) { return child, nil },
				func(ctx context.Context) (*recipient.Node, error) { return detached, nil })
			if err != nil {
				return err
			}
		}
		if len(children) > 0 {
			if _, err := s.store.DetachChildren(ctx, tenantID, nodeID, detachedAt); err != nil {
				return translateStoreErr(err)
			}
		}

		if err := s.store.Delete(ctx, tenantID, nodeID); err != nil {
			return translateStoreErr(err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.metrics.IncrementNodesDeleted()
	s.metrics.ObserveMutation(start)
	s.invalidateHealth(ctx, tenantID)
	return nil
}

// Get loads one node.
func (s *Service) Get(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) (*recipient.Node, error) {
	return s.engine.FindNode(ctx, tenantID, nodeID)
}

// DirectChildren lists the node's immediate children.
func (s *Service) DirectChildren(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) ([]*recipient.Node, error) {
	return s.engine.DirectChildren(ctx, tenantID, nodeID)
}

// DescendantTree lists every descendant annotated with depth.
func (s *Service) DescendantTree(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID, maxDepth int) ([]graph.TreeEntry, error) {
	return s.engine.DescendantTree(ctx, tenantID, nodeID, maxDepth)
}

// AncestorChain lists the node's ancestors, immediate parent first.
func (s *Service) AncestorChain(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) ([]*recipient.Node, error) {
	return s.engine.AncestorChain(ctx, tenantID, nodeID)
}

// ChangeLog returns the entity's change history ordered by change time.
func (s *Service) ChangeLog(ctx context.Context, tenantID id.TenantID, entityType, entityID string) ([]changelog.Entry, error) {
	entries, err := s.changes.ListByEntity(ctx, tenantID, entityType, entityID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "list change log")
	}
	return entries, nil
}

// HierarchyHealth reports cycles, orphans, and depth violations for the
// tenant, served from cache when fresh.
func (s *Service) HierarchyHealth(ctx context.Context, tenantID id.TenantID) (*graph.HealthReport, error) {
	if s.health != nil {
		return s.health.Report(ctx, tenantID)
	}
	return s.engine.CheckHierarchyHealth(ctx, tenantID, s.validator.Rules().HealthPolicy())
}

func (s *Service) invalidateHealth(ctx context.Context, tenantID id.TenantID) {
	if s.health != nil {
		s.health.Invalidate(ctx, tenantID)
	}
}

func applyPatch(draft *recipient.Node, input UpdateInput) {
	if input.Type != nil {
		draft.Type = *input.Type
	}
	if input.Name != nil {
		draft.Name = *input.Name
	}
	if input.Description != nil {
		draft.Description = *input.Description
	}
	if input.CountryID != nil {
		draft.CountryID = *input.CountryID
	}
	if input.ClassificationID != nil {
		draft.ClassificationID = *input.ClassificationID
	}
	if input.AgreementRef != nil {
		draft.AgreementRef = *input.AgreementRef
	}
	if input.Status != nil {
		draft.Status = *input.Status
	}
}

func translateStoreErr(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(err, dErrors.CodeNotFound, "recipient not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.Wrap(err, dErrors.CodeConflict, "recipient already exists")
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "recipient store")
	}
}
