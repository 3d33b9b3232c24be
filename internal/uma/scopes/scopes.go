// Package scopes resuelve scope ids a sus descripciones y policies.
// Las fallas de resolución no cortan el flujo: se loguean y el scope queda
// como "sin policy", alimentando la rama no-policy del engine.
package scopes

import (
	"context"

	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
	"github.com/dropDatabas3/ticketgate/internal/store/core"
)

type Registry struct {
	repo core.Repository
}

func NewRegistry(repo core.Repository) *Registry {
	return &Registry{repo: repo}
}

// ScopesFor resuelve cada id a su ScopeDescription. Ids no registrados se
// devuelven como descripción vacía (sin policies) para que el scope siga
// participando de la decisión.
func (r *Registry) ScopesFor(ctx context.Context, ids []string) []*core.ScopeDescription {
	out := make([]*core.ScopeDescription, 0, len(ids))
	for _, id := range ids {
		sc, err := r.repo.GetScope(ctx, id)
		if err != nil {
			logger.From(ctx).Warn("scope not resolvable, treating as unprotected", logger.Scope(id), logger.Err(err))
			sc = &core.ScopeDescription{ID: id}
		}
		out = append(out, sc)
	}
	return out
}

// PolicyRefsFor junta las policy refs de los scopes, deduplicadas y en orden
// de primera aparición.
func (r *Registry) PolicyRefsFor(scopes []*core.ScopeDescription) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, sc := range scopes {
		for _, ref := range sc.Policies {
			if _, ok := seen[ref]; ok {
				continue
			}
			seen[ref] = struct{}{}
			out = append(out, ref)
		}
	}
	return out
}

// PoliciesForScope devuelve las refs de un único scope id.
func (r *Registry) PoliciesForScope(ctx context.Context, id string) []string {
	sc, err := r.repo.GetScope(ctx, id)
	if err != nil {
		logger.From(ctx).Warn("scope not resolvable", logger.Scope(id), logger.Err(err))
		return nil
	}
	return sc.Policies
}
