// Package pct administra el Persisted Claims Token: resolución, creación
// lazy y acumulación idempotente de claims a través de grants.
package pct

import (
	"context"
	"strings"
	"time"

	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
	tokens "github.com/dropDatabas3/ticketgate/internal/security/token"
	"github.com/dropDatabas3/ticketgate/internal/store/core"
	"github.com/dropDatabas3/ticketgate/internal/uma/umaerr"
)

type Manager struct {
	repo     core.Repository
	lifetime time.Duration
}

func NewManager(repo core.Repository, lifetime time.Duration) *Manager {
	if lifetime <= 0 {
		lifetime = 30 * 24 * time.Hour
	}
	return &Manager{repo: repo, lifetime: lifetime}
}

// Validate resuelve un código de PCT presentado por el cliente.
// Código en blanco ⇒ (nil, nil): el PCT es opcional en el token request.
func (m *Manager) Validate(ctx context.Context, code string) (*core.PCT, error) {
	if strings.TrimSpace(code) == "" {
		return nil, nil
	}
	t, err := m.repo.GetPCTByCode(ctx, code)
	if err != nil {
		logger.From(ctx).Error("pct not found", logger.Err(err))
		return nil, umaerr.ErrInvalidPCT
	}
	if !t.IsValid() {
		logger.From(ctx).Error("pct not valid", logger.Bool("revoked", t.Revoked))
		return nil, umaerr.ErrInvalidPCT
	}
	return t, nil
}

// UpdateClaims resuelve el PCT efectivo del grant y fusiona los claims de la
// identity assertion (overwrite por key, sin borrar keys existentes).
//
// Resolución: el pct del request si vino; si no, el código "pct" de los
// attributes del primer permission; si tampoco, se crea uno nuevo.
//
// El PCT resuelto se devuelve siempre, incluso si la persistencia falla:
// disponibilidad sobre durabilidad estricta, el error sólo se loguea.
func (m *Manager) UpdateClaims(ctx context.Context, t *core.PCT, assertion map[string]any, clientID string, perms []*core.Permission) *core.PCT {
	log := logger.From(ctx)

	created := false
	if t == nil {
		if code := attachedCode(perms); code != "" {
			loaded, err := m.repo.GetPCTByCode(ctx, code)
			if err == nil && loaded.IsValid() {
				t = loaded
			} else {
				log.Warn("attached pct code not loadable, creating new", logger.Err(err))
			}
		}
	}
	if t == nil {
		t = m.newPCT(clientID)
		created = true
	}

	if len(assertion) > 0 {
		if t.Claims == nil {
			t.Claims = make(map[string]any, len(assertion))
		}
		for k, v := range assertion {
			t.Claims[k] = v
		}
	}

	var err error
	if created {
		err = m.repo.CreatePCT(ctx, t)
	} else {
		err = m.repo.UpdatePCT(ctx, t)
	}
	if err != nil {
		// El PCT en memoria sigue siendo usable para este request.
		log.Error("pct persist failed", logger.ClientID(clientID), logger.Err(err))
	}
	return t
}

// Attach escribe el código del PCT en los attributes de cada permission.
func (m *Manager) Attach(t *core.PCT, perms []*core.Permission) {
	for _, p := range perms {
		p.SetAttribute(core.PCTAttribute, t.Code)
	}
}

func (m *Manager) newPCT(clientID string) *core.PCT {
	code, err := tokens.GenerateOpaqueToken(32)
	if err != nil {
		// rand.Read sólo falla si el sistema está roto
		panic("pct: cannot generate code: " + err.Error())
	}
	now := time.Now().UTC()
	return &core.PCT{
		Code:      code,
		ClientID:  clientID,
		Claims:    map[string]any{},
		CreatedAt: now,
		ExpiresAt: now.Add(m.lifetime),
	}
}

func attachedCode(perms []*core.Permission) string {
	if len(perms) == 0 {
		return ""
	}
	return perms[0].Attributes[core.PCTAttribute]
}
