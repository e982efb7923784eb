package tenant

import (
	"context"
	"errors"
	"log/slog"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/platform/tx"
	"custodia/pkg/requestcontext"
)

// NodePurger removes every recipient node belonging to a tenant.
type NodePurger interface {
	DeleteByTenant(ctx context.Context, tenantID id.TenantID) (int64, error)
}

// ChangeLogPurger removes every change-log entry belonging to a tenant. Tenant
// deletion is the only path allowed to discard change history.
type ChangeLogPurger interface {
	DeleteByTenant(ctx context.Context, tenantID id.TenantID) (int64, error)
}

type Service struct {
	store   Store
	nodes   NodePurger
	changes ChangeLogPurger
	runner  tx.Runner
	log     *slog.Logger
}

func NewService(store Store, nodes NodePurger, changes ChangeLogPurger, runner tx.Runner, log *slog.Logger) *Service {
	return &Service{
		store:   store,
		nodes:   nodes,
		changes: changes,
		runner:  runner,
		log:     log,
	}
}

func (s *Service) Create(ctx context.Context, name string) (*Tenant, error) {
	t, err := NewTenant(name, requestcontext.Now(ctx).UTC())
	if err != nil {
		return nil, err
	}
	if err := s.store.Create(ctx, t); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Newf(dErrors.CodeConflict, "tenant name %q already in use", name)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "create tenant")
	}
	s.log.InfoContext(ctx, "tenant created", "tenant_id", t.ID.String(), "name", t.Name)
	return t, nil
}

func (s *Service) Get(ctx context.Context, tenantID id.TenantID) (*Tenant, error) {
	t, err := s.store.FindByID(ctx, tenantID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Newf(dErrors.CodeNotFound, "tenant %s not found", tenantID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "find tenant")
	}
	return t, nil
}

// Delete removes the tenant together with all of its nodes and change-log
// entries in a single transaction. Data from other tenants is untouched.
func (s *Service) Delete(ctx context.Context, tenantID id.TenantID) error {
	var nodesPurged, entriesPurged int64
	err := s.runner.RunInTx(ctx, func(ctx context.Context) error {
		var err error
		if nodesPurged, err = s.nodes.DeleteByTenant(ctx, tenantID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "purge tenant nodes")
		}
		if entriesPurged, err = s.changes.DeleteByTenant(ctx, tenantID); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "purge tenant change log")
		}
		if err := s.store.Delete(ctx, tenantID); err != nil {
			if errors.Is(err, sentinel.ErrNotFound) {
				return dErrors.Newf(dErrors.CodeNotFound, "tenant %s not found", tenantID)
			}
			return dErrors.Wrap(err, dErrors.CodeInternal, "delete tenant")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.InfoContext(ctx, "tenant deleted",
		"tenant_id", tenantID.String(),
		"nodes_purged", nodesPurged,
		"change_log_entries_purged", entriesPurged)
	return nil
}
