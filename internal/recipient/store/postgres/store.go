// Package postgres persists recipient nodes in PostgreSQL. Writes resolve
// their executor through the context transaction so they share a commit point
// with change-log writes.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"custodia/internal/recipient"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	txcontext "custodia/pkg/platform/tx"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *Store) execer(ctx context.Context) dbExecutor {
	if tx, ok := txcontext.From(ctx); ok {
		return tx
	}
	return s.db
}

const nodeColumns = `id, tenant_id, type, parent_id, kind, name, description,
	country_id, classification_id, agreement_ref, status, created_at, updated_at`

func (s *Store) Insert(ctx context.Context, node *recipient.Node) error {
	_, err := s.execer(ctx).ExecContext(ctx, `
		INSERT INTO node (`+nodeColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		node.ID.String(), node.TenantID.String(), node.Type, parentArg(node),
		string(node.Kind), node.Name, node.Description, node.CountryID,
		node.ClassificationID, node.AgreementRef, node.Status,
		node.CreatedAt, node.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert node: %w", err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, node *recipient.Node) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE node
		SET type = $3, parent_id = $4, kind = $5, name = $6, description = $7,
			country_id = $8, classification_id = $9, agreement_ref = $10,
			status = $11, updated_at = $12
		WHERE id = $1 AND tenant_id = $2`,
		node.ID.String(), node.TenantID.String(), node.Type, parentArg(node),
		string(node.Kind), node.Name, node.Description, node.CountryID,
		node.ClassificationID, node.AgreementRef, node.Status, node.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update node: %w", err)
	}
	return ensureRowTouched(res)
}

func (s *Store) FindByID(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) (*recipient.Node, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+nodeColumns+`
		FROM node
		WHERE id = $1 AND tenant_id = $2`,
		nodeID.String(), tenantID.String())
	return scanNode(row)
}

// FindByIDForUpdate locks the row until the surrounding transaction commits,
// serializing concurrent parent reassignments of the same node.
func (s *Store) FindByIDForUpdate(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) (*recipient.Node, error) {
	row := s.execer(ctx).QueryRowContext(ctx, `
		SELECT `+nodeColumns+`
		FROM node
		WHERE id = $1 AND tenant_id = $2
		FOR UPDATE`,
		nodeID.String(), tenantID.String())
	return scanNode(row)
}

func (s *Store) ChildrenOf(ctx context.Context, tenantID id.TenantID, parentID id.NodeID) ([]*recipient.Node, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		SELECT `+nodeColumns+`
		FROM node
		WHERE parent_id = $1 AND tenant_id = $2
		ORDER BY created_at`,
		parentID.String(), tenantID.String())
	if err != nil {
		return nil, fmt.Errorf("children of node: %w", err)
	}
	return scanNodes(rows)
}

func (s *Store) ListByTypes(ctx context.Context, tenantID id.TenantID, types []recipient.NodeType) ([]*recipient.Node, error) {
	query := `SELECT ` + nodeColumns + ` FROM node WHERE tenant_id = $1`
	args := []any{tenantID.String()}
	if len(types) > 0 {
		tags := make([]string, len(types))
		for i, t := range types {
			tags[i] = string(t)
		}
		query += ` AND type = ANY($2)`
		args = append(args, pq.Array(tags))
	}
	rows, err := s.execer(ctx).QueryContext(ctx, query+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, fmt.Errorf("list nodes by type: %w", err)
	}
	return scanNodes(rows)
}

// Descendants walks the subtree with a recursive CTE. The path array breaks
// cycles inside the database and the depth column bounds the expansion, so a
// corrupted graph cannot make the query unbounded.
func (s *Store) Descendants(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID, maxDepth int) ([]*recipient.Node, []int, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, `
		WITH RECURSIVE subtree AS (
			SELECT n.*, 1 AS depth, ARRAY[n.id] AS path
			FROM node n
			WHERE n.parent_id = $1 AND n.tenant_id = $2
			UNION ALL
			SELECT n.*, s.depth + 1, s.path || n.id
			FROM node n
			JOIN subtree s ON n.parent_id = s.id AND n.tenant_id = $2
			WHERE s.depth < $3 AND NOT n.id = ANY(s.path)
		)
		SELECT `+nodeColumns+`, depth
		FROM subtree
		ORDER BY depth, created_at`,
		nodeID.String(), tenantID.String(), maxDepth)
	if err != nil {
		return nil, nil, fmt.Errorf("descendant tree: %w", err)
	}
	defer rows.Close()

	var nodes []*recipient.Node
	var depths []int
	for rows.Next() {
		node, depth, err := scanNodeDepth(rows)
		if err != nil {
			return nil, nil, err
		}
		nodes = append(nodes, node)
		depths = append(depths, depth)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("descendant tree rows: %w", err)
	}
	return nodes, depths, nil
}

func (s *Store) DetachChildren(ctx context.Context, tenantID id.TenantID, parentID id.NodeID, at time.Time) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		UPDATE node
		SET parent_id = NULL, updated_at = $3
		WHERE parent_id = $1 AND tenant_id = $2`,
		parentID.String(), tenantID.String(), at)
	if err != nil {
		return 0, fmt.Errorf("detach children: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) Delete(ctx context.Context, tenantID id.TenantID, nodeID id.NodeID) error {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM node
		WHERE id = $1 AND tenant_id = $2`,
		nodeID.String(), tenantID.String())
	if err != nil {
		return fmt.Errorf("delete node: %w", err)
	}
	return ensureRowTouched(res)
}

func (s *Store) DeleteByTenant(ctx context.Context, tenantID id.TenantID) (int64, error) {
	res, err := s.execer(ctx).ExecContext(ctx, `
		DELETE FROM node WHERE tenant_id = $1`, tenantID.String())
	if err != nil {
		return 0, fmt.Errorf("delete nodes by tenant: %w", err)
	}
	return res.RowsAffected()
}

func parentArg(node *recipient.Node) any {
	if node.ParentID == nil {
		return nil
	}
	return node.ParentID.String()
}

func ensureRowTouched(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInto(sc rowScanner, extra ...any) (*recipient.Node, error) {
	var (
		node      recipient.Node
		rawID     string
		rawTenant string
		rawParent sql.NullString
		rawKind   string
		rawType   string
		rawStatus string
	)
	dest := []any{
		&rawID, &rawTenant, &rawType, &rawParent, &rawKind, &node.Name,
		&node.Description, &node.CountryID, &node.ClassificationID,
		&node.AgreementRef, &rawStatus, &node.CreatedAt, &node.UpdatedAt,
	}
	dest = append(dest, extra...)
	if err := sc.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("scan node: %w", err)
	}
	nodeID, err := id.ParseNodeID(rawID)
	if err != nil {
		return nil, err
	}
	tenantID, err := id.ParseTenantID(rawTenant)
	if err != nil {
		return nil, err
	}
	node.ID = nodeID
	node.TenantID = tenantID
	node.Type = recipient.NodeType(rawType)
	node.Kind = recipient.HierarchyKind(rawKind)
	node.Status = recipient.Status(rawStatus)
	if rawParent.Valid {
		parentID, err := id.ParseNodeID(rawParent.String)
		if err != nil {
			return nil, err
		}
		node.ParentID = &parentID
	}
	return &node, nil
}

func scanNode(row *sql.Row) (*recipient.Node, error) {
	return scanInto(row)
}

func scanNodeDepth(rows *sql.Rows) (*recipient.Node, int, error) {
	var depth int
	node, err := scanInto(rows, &depth)
	return node, depth, err
}

func scanNodes(rows *sql.Rows) ([]*recipient.Node, error) {
	defer rows.Close()
	var out []*recipient.Node
	for rows.Next() {
		node, err := scanInto(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("node rows: %w", err)
	}
	return out, nil
}
