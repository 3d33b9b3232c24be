// Package rpt emite, actualiza y valida Requesting Party Tokens.
package rpt

import (
	"context"
	"strings"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"

	jwtx "github.com/dropDatabas3/ticketgate/internal/jwt"
	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
	tokens "github.com/dropDatabas3/ticketgate/internal/security/token"
	"github.com/dropDatabas3/ticketgate/internal/store/core"
	"github.com/dropDatabas3/ticketgate/internal/uma/umaerr"
)

type Manager struct {
	repo     core.Repository
	issuer   *jwtx.Issuer
	lifetime time.Duration
}

func NewManager(repo core.Repository, issuer *jwtx.Issuer, lifetime time.Duration) *Manager {
	if lifetime <= 0 {
		lifetime = time.Hour
	}
	return &Manager{repo: repo, issuer: issuer, lifetime: lifetime}
}

// Validate resuelve un código de RPT presentado por el cliente.
// Código en blanco ⇒ (nil, nil): el RPT existente es opcional.
func (m *Manager) Validate(ctx context.Context, code string) (*core.RPT, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}
	t, err := m.repo.GetRPTByCode(ctx, code)
	if err != nil {
		logger.From(ctx).Error("rpt not found", logger.Err(err))
		return nil, umaerr.ErrInvalidRPT
	}
	if !t.IsValid() {
		logger.From(ctx).Error("rpt not valid", logger.Bool("revoked", t.Revoked))
		return nil, umaerr.ErrInvalidRPT
	}
	return t, nil
}

// IssueOrUpgrade emite un RPT nuevo para el cliente, o si existing es válido
// le agrega las permission refs nuevas (sin dedup, comportamiento heredado
// del diseño original) y lo persiste. Devuelve (rpt, upgraded).
func (m *Manager) IssueOrUpgrade(ctx context.Context, client *core.Client, perms []*core.Permission, existing *core.RPT, pctSnapshot map[string]any) (*core.RPT, bool, error) {
	if existing != nil {
		for _, p := range perms {
			existing.PermissionIDs = append(existing.PermissionIDs, p.ID)
		}
		if err := m.repo.UpdateRPT(ctx, existing); err != nil {
			return nil, false, err
		}
		logger.From(ctx).Info("rpt upgraded", logger.ClientID(client.ClientID), logger.Count(len(existing.PermissionIDs)))
		return existing, true, nil
	}

	now := time.Now().UTC()
	t := &core.RPT{
		ClientID:  client.ClientID,
		CreatedAt: now,
		ExpiresAt: now.Add(m.lifetime),
	}
	for _, p := range perms {
		t.PermissionIDs = append(t.PermissionIDs, p.ID)
	}

	code, err := m.encode(client, perms, pctSnapshot, now, t.ExpiresAt)
	if err != nil {
		return nil, false, err
	}
	t.Code = code

	if err := m.repo.CreateRPT(ctx, t); err != nil {
		return nil, false, err
	}
	logger.From(ctx).Info("rpt issued", logger.ClientID(client.ClientID), logger.Bool("as_jwt", client.RPTAsJWT))
	return t, false, nil
}

// encode elige la codificación según la configuración del cliente: código
// opaco, o contenedor JWT firmado con client_id, expiry, los permission
// summaries y el snapshot de claims del PCT.
func (m *Manager) encode(client *core.Client, perms []*core.Permission, pctSnapshot map[string]any, iat, exp time.Time) (string, error) {
	if !client.RPTAsJWT || m.issuer == nil {
		return tokens.GenerateOpaqueToken(32)
	}

	summaries := make([]map[string]any, 0, len(perms))
	for _, p := range perms {
		summaries = append(summaries, map[string]any{
			"resource_id":     p.ResourceID,
			"resource_scopes": p.Scopes,
			"exp":             p.ExpiresAt.Unix(),
		})
	}
	claims := jwtv5.MapClaims{
		"client_id":   client.ClientID,
		"iat":         iat.Unix(),
		"exp":         exp.Unix(),
		"permissions": summaries,
	}
	if len(pctSnapshot) > 0 {
		claims["pct_claims"] = pctSnapshot
	}
	signed, _, err := m.issuer.SignRaw(claims)
	return signed, err
}
