// Package needsinfo decide si el grant puede evaluarse con los claims
// presentes o si hace falta claims gathering interactivo.
package needsinfo

import (
	"context"
	"net/url"
	"strings"

	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
	"github.com/dropDatabas3/ticketgate/internal/store/core"
	"github.com/dropDatabas3/ticketgate/internal/uma/claims"
	"github.com/dropDatabas3/ticketgate/internal/uma/pct"
	"github.com/dropDatabas3/ticketgate/internal/uma/permission"
	"github.com/dropDatabas3/ticketgate/internal/uma/policy"
	"github.com/dropDatabas3/ticketgate/internal/uma/scopes"
)

// Result es la respuesta "need more information": una rama normal del
// protocolo, no un error de la taxonomía. El caller redirige al end-user.
type Result struct {
	Ticket         string                   `json:"ticket"`
	RedirectUser   string                   `json:"redirect_user"`
	RequiredClaims []policy.ClaimDefinition `json:"required_claims"`
}

type Evaluator struct {
	gateway  *policy.Gateway
	scopes   *scopes.Registry
	perms    *permission.Service
	pct      *pct.Manager
	endpoint string // claims gathering endpoint base
}

func NewEvaluator(gateway *policy.Gateway, reg *scopes.Registry, perms *permission.Service, pctMgr *pct.Manager, gatheringEndpoint string) *Evaluator {
	return &Evaluator{gateway: gateway, scopes: reg, perms: perms, pct: pctMgr, endpoint: gatheringEndpoint}
}

// Check computa las policies que cubren los requested scopes, les pregunta
// qué claims necesitan, y si falta alguno ata un PCT a los permissions, rota
// el ticket y devuelve el Result de need_info. Si no falta nada devuelve el
// map policy→context para la evaluación de acceso.
func (e *Evaluator) Check(ctx context.Context, cl *claims.Claims, client *core.Client, presentedPCT *core.PCT, requestedScopes []string, perms []*core.Permission) (map[string]*policy.AuthorizationContext, *Result, error) {
	log := logger.From(ctx)

	descs := e.scopes.ScopesFor(ctx, requestedScopes)
	refs := e.scopes.PolicyRefsFor(descs)

	ctxs := make(map[string]*policy.AuthorizationContext, len(refs))
	var missing []policy.ClaimDefinition
	seenMissing := make(map[string]struct{})

	for _, ref := range refs {
		actx := policy.NewContext(client, requestedScopes, perms, cl)
		ctxs[ref] = actx

		for _, def := range e.gateway.RequiredClaims(ctx, ref, actx) {
			if cl.Has(def.Name) {
				continue
			}
			if _, ok := seenMissing[def.Name]; ok {
				continue
			}
			seenMissing[def.Name] = struct{}{}
			missing = append(missing, def)
		}

		if name := e.gateway.GatheringScriptName(ctx, ref, actx); name != "" {
			actx.AddRedirectParam("gathering_id", name)
		}
	}

	if len(missing) == 0 {
		return ctxs, nil, nil
	}

	// El gathering acumula claims en un PCT, así que tiene que existir uno
	// atado a los permissions antes de redirigir al end-user.
	grantPCT := e.pct.UpdateClaims(ctx, presentedPCT, cl.Assertion(), client.ClientID, perms)

	newTicket, err := e.perms.RotateTicket(ctx, perms, map[string]string{core.PCTAttribute: grantPCT.Code})
	if err != nil {
		return nil, nil, err
	}

	log.Info("claims missing, gathering required",
		logger.Count(len(missing)), logger.Ticket(newTicket))

	return nil, &Result{
		Ticket:         newTicket,
		RedirectUser:   e.redirectURL(ctxs),
		RequiredClaims: missing,
	}, nil
}

// redirectURL arma el redirect de gathering: endpoint base + los query
// params URL-encoded aportados por todas las policies contribuyentes.
func (e *Evaluator) redirectURL(ctxs map[string]*policy.AuthorizationContext) string {
	merged := url.Values{}
	for _, actx := range ctxs {
		for k, vs := range actx.RedirectParams() {
			for _, v := range vs {
				merged.Add(k, v)
			}
		}
	}
	if len(merged) == 0 {
		return e.endpoint
	}
	sep := "?"
	if strings.Contains(e.endpoint, "?") {
		sep = "&"
	}
	return e.endpoint + sep + merged.Encode()
}
