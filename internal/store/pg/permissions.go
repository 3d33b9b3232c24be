package pg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/ticketgate/internal/store/core"
)

// CreatePermissions inserta el batch de permissions de un ticket en una sola
// transacción: un ticket a medio registrar no es resolvible.
func (s *Store) CreatePermissions(ctx context.Context, perms []*core.Permission) error {
	const q = `
		INSERT INTO uma_permissions (id, ticket, resource_id, scopes, attributes, status, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, p := range perms {
		attrs, err := json.Marshal(p.Attributes)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, q, p.ID, p.Ticket, p.ResourceID, p.Scopes, attrs, p.Status, p.CreatedAt, p.ExpiresAt); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

func (s *Store) GetPermissionsByTicket(ctx context.Context, ticket string) ([]*core.Permission, error) {
	const q = `
		SELECT id, ticket, resource_id, scopes, attributes, status, created_at, expires_at
		FROM uma_permissions WHERE ticket=$1 ORDER BY created_at`
	rows, err := s.pool.Query(ctx, q, ticket)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Permission
	for rows.Next() {
		p, err := scanPermission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, core.ErrNotFound
	}
	return out, nil
}

func (s *Store) UpdatePermission(ctx context.Context, p *core.Permission) error {
	const q = `
		UPDATE uma_permissions
		SET ticket=$2, scopes=$3, attributes=$4, status=$5, expires_at=$6
		WHERE id=$1`
	attrs, err := json.Marshal(p.Attributes)
	if err != nil {
		return err
	}
	ct, err := s.pool.Exec(ctx, q, p.ID, p.Ticket, p.Scopes, attrs, p.Status, p.ExpiresAt)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) InvalidateTicket(ctx context.Context, ticket string) error {
	const q = `UPDATE uma_permissions SET status=$2 WHERE ticket=$1`
	ct, err := s.pool.Exec(ctx, q, ticket, core.PermissionInvalidated)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func scanPermission(row pgx.Row) (*core.Permission, error) {
	var p core.Permission
	var attrs []byte
	err := row.Scan(&p.ID, &p.Ticket, &p.ResourceID, &p.Scopes, &attrs, &p.Status, &p.CreatedAt, &p.ExpiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &p.Attributes); err != nil {
			return nil, err
		}
	}
	return &p, nil
}
