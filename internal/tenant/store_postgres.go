package tenant

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	txcontext "custodia/pkg/platform/tx"
)

// PostgresStore persists tenants. Delete joins the context transaction so the
// cascade over nodes and change-log entries commits atomically.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

func (s *PostgresStore) Create(ctx context.Context, t *Tenant) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO tenant (id, name, status, created_at)
		VALUES ($1, $2, $3, $4)`,
		t.ID.String(), t.Name, t.Status, t.CreatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert tenant: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, tenantID id.TenantID) (*Tenant, error) {
	var (
		t     Tenant
		rawID string
	)
	err := s.execer(ctx).QueryRowContext(ctx, `
		SELECT id, name, status, created_at
		FROM tenant
		WHERE id = $1`, tenantID.String()).
		Scan(&rawID, &t.Name, &t.Status, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find tenant: %w", err)
	}
	parsed, err := id.ParseTenantID(rawID)
	if err != nil {
		return nil, err
	}
	t.ID = parsed
	return &t, nil
}

func (s *PostgresStore) Delete(ctx context.Context, tenantID id.TenantID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM tenant WHERE id = $1`, tenantID.String())
	if err != nil {
		return fmt.Errorf("delete tenant: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}
