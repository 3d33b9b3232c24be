// Package engine toma la decisión de acceso por permission: evalúa las
// policies de cada scope y, si el resource define una scope expression, la
// aplica sobre el vector de booleanos resultante.
package engine

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
	"github.com/dropDatabas3/ticketgate/internal/store/core"
	"github.com/dropDatabas3/ticketgate/internal/uma/expression"
	"github.com/dropDatabas3/ticketgate/internal/uma/policy"
	"github.com/dropDatabas3/ticketgate/internal/uma/scopes"
	"github.com/dropDatabas3/ticketgate/internal/uma/umaerr"
)

type Engine struct {
	repo    core.Repository
	gateway *policy.Gateway
	scopes  *scopes.Registry

	// grantIfNoPolicies controla la rama sin policies: true concede el
	// acceso (con warning), false lo niega.
	grantIfNoPolicies bool
}

func New(repo core.Repository, gateway *policy.Gateway, reg *scopes.Registry, grantIfNoPolicies bool) *Engine {
	return &Engine{repo: repo, gateway: gateway, scopes: reg, grantIfNoPolicies: grantIfNoPolicies}
}

// Evaluate decide el acceso para cada permission. ctxs es el map policy→
// context construido por el needs-info check; las permissions pueden salir
// mutadas (partial grant recorta sus scopes) y persistidas.
func (e *Engine) Evaluate(ctx context.Context, ctxs map[string]*policy.AuthorizationContext, perms []*core.Permission) error {
	for _, p := range perms {
		if err := e.evaluatePermission(ctx, ctxs, p); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) evaluatePermission(ctx context.Context, ctxs map[string]*policy.AuthorizationContext, p *core.Permission) error {
	log := logger.From(ctx)

	res, err := e.repo.GetResource(ctx, p.ResourceID)
	if err != nil {
		if err == core.ErrNotFound {
			return umaerr.ErrInvalidResourceID
		}
		return fmt.Errorf("%w: resolving resource %s: %v", umaerr.ErrServerError, p.ResourceID, err)
	}

	if res.ScopeExpression != "" {
		return e.evaluateExpression(ctx, ctxs, p, res)
	}

	descs := e.scopes.ScopesFor(ctx, p.Scopes)
	refs := e.scopes.PolicyRefsFor(descs)
	if len(refs) == 0 {
		return e.noPolicies(ctx, p)
	}

	// AND con short-circuit: la primera policy que niega corta.
	for _, ref := range refs {
		if !e.gateway.Authorize(ctx, ref, e.contextFor(ctxs, ref, p)) {
			log.Info("access denied by policy", logger.Policy(ref), logger.ResourceID(p.ResourceID))
			return umaerr.ErrForbiddenByPolicy
		}
	}
	return nil
}

// evaluateExpression aplica la scope expression del resource. El set de
// scopes de la permission tiene que coincidir exactamente con los scopes que
// la expresión referencia; cualquier desajuste es un error de configuración
// y se niega en seco.
func (e *Engine) evaluateExpression(ctx context.Context, ctxs map[string]*policy.AuthorizationContext, p *core.Permission, res *core.Resource) error {
	log := logger.From(ctx)

	expr, err := expression.Parse(res.ScopeExpression)
	if err != nil {
		log.Error("malformed scope expression on resource", logger.ResourceID(res.ID), logger.Err(err))
		return umaerr.ErrForbiddenByPolicy
	}

	data := expr.DataScopes()
	if !sameScopeSet(p.Scopes, data) {
		log.Error("permission scopes do not match expression data scopes",
			logger.ResourceID(res.ID), logger.Any("permission_scopes", p.Scopes), logger.Any("data_scopes", data))
		return umaerr.ErrForbiddenByPolicy
	}

	// Un booleano por scope: AND de todas sus policies. Sin policies el
	// scope cuenta como concedido; la expresión decide el resto.
	values := make([]bool, len(data))
	for i, sc := range data {
		values[i] = true
		for _, ref := range e.scopes.PoliciesForScope(ctx, sc) {
			if !e.gateway.Authorize(ctx, ref, e.contextFor(ctxs, ref, p)) {
				values[i] = false
				break
			}
		}
	}

	ok, err := expr.Evaluate(values)
	if err != nil {
		log.Error("scope expression evaluation failed", logger.ResourceID(res.ID), logger.Err(err))
		return umaerr.ErrForbiddenByPolicy
	}
	if !ok {
		log.Info("access denied by scope expression", logger.ResourceID(res.ID))
		return umaerr.ErrForbiddenByPolicy
	}

	// Partial grant: los scopes cuyo booleano individual dio false se
	// recortan del set concedido.
	granted := make([]string, 0, len(data))
	for i, sc := range data {
		if values[i] {
			granted = append(granted, sc)
		}
	}
	if len(granted) != len(p.Scopes) {
		log.Info("partial grant, dropping denied scopes",
			logger.ResourceID(res.ID), logger.Count(len(data)-len(granted)))
		p.Scopes = granted
		if err := e.repo.UpdatePermission(ctx, p); err != nil {
			return fmt.Errorf("%w: persisting partial grant: %v", umaerr.ErrServerError, err)
		}
	}
	return nil
}

func (e *Engine) noPolicies(ctx context.Context, p *core.Permission) error {
	if e.grantIfNoPolicies {
		logger.From(ctx).Warn("no policies protect requested scopes, granting access",
			logger.ResourceID(p.ResourceID), logger.Any("scopes", p.Scopes))
		return nil
	}
	return umaerr.ErrForbiddenByPolicy
}

// contextFor busca el context construido por el needs-info check y cae a uno
// nuevo si la policy no participó de esa fase.
func (e *Engine) contextFor(ctxs map[string]*policy.AuthorizationContext, ref string, p *core.Permission) *policy.AuthorizationContext {
	if actx, ok := ctxs[ref]; ok {
		return actx
	}
	return policy.NewContext(nil, p.Scopes, []*core.Permission{p}, nil)
}

func sameScopeSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; !ok {
			return false
		}
	}
	return true
}
