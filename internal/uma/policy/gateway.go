package policy

import (
	"context"
	"errors"
	"time"

	"github.com/dropDatabas3/ticketgate/internal/metrics"
	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
)

var errPolicyTimeout = errors.New("policy call timed out")

// Gateway invoca policies con semántica fail-safe:
//   - Authorize: cualquier falla interna ⇒ deny (false), logueado.
//   - RequiredClaims: falla ⇒ lista vacía.
//   - GatheringScriptName: falla ⇒ "", logueado como error de configuración.
//
// Cada invocación corre bajo un timeout acotado: una policy colgada no puede
// bloquear el token request entero.
type Gateway struct {
	reg     *Registry
	timeout time.Duration
}

func NewGateway(reg *Registry, timeout time.Duration) *Gateway {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Gateway{reg: reg, timeout: timeout}
}

// Authorize evalúa la policy. Policy desconocida o falla ⇒ deny.
func (g *Gateway) Authorize(ctx context.Context, ref string, actx *AuthorizationContext) bool {
	p, ok := g.reg.Get(ref)
	if !ok {
		logger.From(ctx).Error("policy not found, denying", logger.Policy(ref))
		return false
	}
	start := time.Now()
	allowed, err := call(ctx, g.timeout, func(ctx context.Context) (bool, error) {
		return p.Authorize(ctx, actx)
	})
	metrics.PolicyEvalLatency.Observe(float64(time.Since(start).Milliseconds()))
	if err != nil {
		logger.From(ctx).Error("policy authorize failed, denying", logger.Policy(ref), logger.Err(err))
		return false
	}
	return allowed
}

// RequiredClaims pide los claims que la policy necesita. Falla ⇒ vacío.
func (g *Gateway) RequiredClaims(ctx context.Context, ref string, actx *AuthorizationContext) []ClaimDefinition {
	p, ok := g.reg.Get(ref)
	if !ok {
		logger.From(ctx).Error("policy not found", logger.Policy(ref))
		return nil
	}
	defs, err := call(ctx, g.timeout, func(ctx context.Context) ([]ClaimDefinition, error) {
		return p.RequiredClaims(ctx, actx)
	})
	if err != nil {
		logger.From(ctx).Error("policy requiredClaims failed", logger.Policy(ref), logger.Err(err))
		return nil
	}
	return defs
}

// GatheringScriptName resuelve el nombre del script de gathering. Falla ⇒ "".
func (g *Gateway) GatheringScriptName(ctx context.Context, ref string, actx *AuthorizationContext) string {
	p, ok := g.reg.Get(ref)
	if !ok {
		logger.From(ctx).Error("policy not found", logger.Policy(ref))
		return ""
	}
	name, err := call(ctx, g.timeout, func(ctx context.Context) (string, error) {
		return p.GatheringScriptName(ctx, actx)
	})
	if err != nil {
		// Error de configuración: la policy declara gathering pero no resuelve el nombre.
		logger.From(ctx).Error("policy gatheringScriptName failed", logger.Policy(ref), logger.Err(err))
		return ""
	}
	return name
}

// call ejecuta fn en una goroutine y corta por timeout aunque la policy no
// coopere con el context.
func call[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, errPolicyTimeout
	}
}