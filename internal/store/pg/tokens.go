package pg

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/dropDatabas3/ticketgate/internal/store/core"
)

// ─── PCT ───

func (s *Store) CreatePCT(ctx context.Context, t *core.PCT) error {
	const q = `
		INSERT INTO uma_pcts (code, client_id, claims, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)`
	claims, err := json.Marshal(t.Claims)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, q, t.Code, t.ClientID, claims, t.CreatedAt, t.ExpiresAt, t.Revoked)
	return err
}

func (s *Store) GetPCTByCode(ctx context.Context, code string) (*core.PCT, error) {
	const q = `
		SELECT code, client_id, claims, created_at, expires_at, revoked
		FROM uma_pcts WHERE code=$1`
	var t core.PCT
	var claims []byte
	err := s.pool.QueryRow(ctx, q, code).Scan(&t.Code, &t.ClientID, &claims, &t.CreatedAt, &t.ExpiresAt, &t.Revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(claims) > 0 {
		if err := json.Unmarshal(claims, &t.Claims); err != nil {
			return nil, err
		}
	}
	return &t, nil
}

func (s *Store) UpdatePCT(ctx context.Context, t *core.PCT) error {
	const q = `UPDATE uma_pcts SET claims=$2, expires_at=$3, revoked=$4 WHERE code=$1`
	claims, err := json.Marshal(t.Claims)
	if err != nil {
		return err
	}
	ct, err := s.pool.Exec(ctx, q, t.Code, claims, t.ExpiresAt, t.Revoked)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) RevokePCT(ctx context.Context, code string) error {
	const q = `UPDATE uma_pcts SET revoked=TRUE WHERE code=$1`
	ct, err := s.pool.Exec(ctx, q, code)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

// ─── RPT ───

func (s *Store) CreateRPT(ctx context.Context, t *core.RPT) error {
	const q = `
		INSERT INTO uma_rpts (code, client_id, permission_ids, created_at, expires_at, revoked)
		VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := s.pool.Exec(ctx, q, t.Code, t.ClientID, t.PermissionIDs, t.CreatedAt, t.ExpiresAt, t.Revoked)
	return err
}

func (s *Store) GetRPTByCode(ctx context.Context, code string) (*core.RPT, error) {
	const q = `
		SELECT code, client_id, permission_ids, created_at, expires_at, revoked
		FROM uma_rpts WHERE code=$1`
	var t core.RPT
	err := s.pool.QueryRow(ctx, q, code).Scan(&t.Code, &t.ClientID, &t.PermissionIDs, &t.CreatedAt, &t.ExpiresAt, &t.Revoked)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) UpdateRPT(ctx context.Context, t *core.RPT) error {
	const q = `UPDATE uma_rpts SET permission_ids=$2, expires_at=$3, revoked=$4 WHERE code=$1`
	ct, err := s.pool.Exec(ctx, q, t.Code, t.PermissionIDs, t.ExpiresAt, t.Revoked)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}

func (s *Store) RevokeRPT(ctx context.Context, code string) error {
	const q = `UPDATE uma_rpts SET revoked=TRUE WHERE code=$1`
	ct, err := s.pool.Exec(ctx, q, code)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return core.ErrNotFound
	}
	return nil
}
