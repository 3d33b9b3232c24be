// Package policy modela las authorization policies externas como una
// capability interface, con un registry recargable y un gateway que
// normaliza fallas (una policy nunca deja la decisión en estado ambiguo).
package policy

import (
	"context"
	"net/url"

	"github.com/dropDatabas3/ticketgate/internal/store/core"
	"github.com/dropDatabas3/ticketgate/internal/uma/claims"
)

// ClaimDefinition describe un claim que una policy necesita del requesting
// party antes de poder decidir.
type ClaimDefinition struct {
	Name         string   `json:"name"`
	ClaimType    string   `json:"claim_type,omitempty"`
	FriendlyName string   `json:"friendly_name,omitempty"`
	IssuedBy     []string `json:"issuer,omitempty"`
}

// Policy son los tres entry points que expone un script de autorización.
// El loading del script es un external concern; acá sólo importa el contrato.
type Policy interface {
	Authorize(ctx context.Context, actx *AuthorizationContext) (bool, error)
	RequiredClaims(ctx context.Context, actx *AuthorizationContext) ([]ClaimDefinition, error)
	GatheringScriptName(ctx context.Context, actx *AuthorizationContext) (string, error)
}

// AuthorizationContext es el contexto efímero que ve una policy durante una
// evaluación: se construye por tupla (policy, scopes, permissions, claims) y
// acumula los redirect params que policies con gathering van aportando.
type AuthorizationContext struct {
	Client      *core.Client
	Scopes      []string
	Permissions []*core.Permission
	Claims      *claims.Claims

	redirectParams url.Values
}

func NewContext(client *core.Client, scopes []string, perms []*core.Permission, cl *claims.Claims) *AuthorizationContext {
	return &AuthorizationContext{
		Client:         client,
		Scopes:         scopes,
		Permissions:    perms,
		Claims:         cl,
		redirectParams: url.Values{},
	}
}

// AddRedirectParam acumula un query param para el redirect de claims gathering.
func (a *AuthorizationContext) AddRedirectParam(key, value string) {
	a.redirectParams.Add(key, value)
}

// RedirectParams devuelve los params acumulados.
func (a *AuthorizationContext) RedirectParams() url.Values {
	return a.redirectParams
}
