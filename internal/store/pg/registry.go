package pg

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/ticketgate/internal/store/core"
)

func (s *Store) GetClient(ctx context.Context, clientID string) (*core.Client, error) {
	const q = `
		SELECT client_id, name, COALESCE(secret_hash,''), disabled, rpt_as_jwt, claims_redirect_uris, created_at
		FROM uma_clients WHERE client_id=$1`
	var c core.Client
	err := s.pool.QueryRow(ctx, q, clientID).Scan(
		&c.ClientID, &c.Name, &c.SecretHash, &c.Disabled, &c.RPTAsJWT, &c.ClaimsRedirectURIs, &c.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) CreateClient(ctx context.Context, c *core.Client) error {
	const q = `
		INSERT INTO uma_clients (client_id, name, secret_hash, disabled, rpt_as_jwt, claims_redirect_uris, created_at)
		VALUES ($1, $2, NULLIF($3,''), $4, $5, $6, NOW())
		ON CONFLICT (client_id) DO NOTHING`
	ct, err := s.pool.Exec(ctx, q, c.ClientID, c.Name, c.SecretHash, c.Disabled, c.RPTAsJWT, c.ClaimsRedirectURIs)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrConflict
	}
	return nil
}

func (s *Store) GetResource(ctx context.Context, id string) (*core.Resource, error) {
	const q = `
		SELECT id, name, scopes, COALESCE(scope_expression,''), clients, created_at
		FROM uma_resources WHERE id=$1`
	var r core.Resource
	err := s.pool.QueryRow(ctx, q, id).Scan(
		&r.ID, &r.Name, &r.Scopes, &r.ScopeExpression, &r.Clients, &r.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) CreateResource(ctx context.Context, r *core.Resource) error {
	const q = `
		INSERT INTO uma_resources (id, name, scopes, scope_expression, clients, created_at)
		VALUES ($1, $2, $3, NULLIF($4,''), $5, NOW())
		ON CONFLICT (id) DO NOTHING`
	ct, err := s.pool.Exec(ctx, q, r.ID, r.Name, r.Scopes, r.ScopeExpression, r.Clients)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrConflict
	}
	return nil
}

func (s *Store) GetScope(ctx context.Context, id string) (*core.ScopeDescription, error) {
	const q = `SELECT id, policies FROM uma_scopes WHERE id=$1`
	var sc core.ScopeDescription
	err := s.pool.QueryRow(ctx, q, id).Scan(&sc.ID, &sc.Policies)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sc, nil
}

func (s *Store) UpsertScope(ctx context.Context, sc *core.ScopeDescription) error {
	const q = `
		INSERT INTO uma_scopes (id, policies) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET policies = EXCLUDED.policies`
	_, err := s.pool.Exec(ctx, q, sc.ID, sc.Policies)
	return err
}
