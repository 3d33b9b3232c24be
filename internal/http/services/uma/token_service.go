// Package uma contiene los services del grant UMA: token endpoint y claims
// gathering.
package uma

import (
	"context"

	"github.com/dropDatabas3/ticketgate/internal/uma/needsinfo"
)

// GrantTypeUMATicket es el único grant_type que acepta el endpoint.
const GrantTypeUMATicket = "urn:ietf:params:oauth:grant-type:uma-ticket"

// ClaimTokenFormatIDToken es el único claim_token_format reconocido: una
// identity assertion OIDC.
const ClaimTokenFormatIDToken = "http://openid.net/specs/openid-connect-core-1_0.html#IDToken"

// TokenService orquesta un token request UMA de punta a punta.
type TokenService interface {
	// GrantByTicket ejecuta la secuencia completa de validación y emisión.
	// Devuelve exactamente uno de: respuesta de éxito, need-info, o error
	// de la taxonomía.
	GrantByTicket(ctx context.Context, req TokenRequest) (*TokenResponse, *needsinfo.Result, error)
}

// TokenRequest son los campos del POST form del token endpoint.
type TokenRequest struct {
	GrantType        string
	Ticket           string
	ClaimToken       string
	ClaimTokenFormat string
	PCT              string
	RPT              string
	Scope            string
	ClientID         string
	ClientSecret     string
}

// TokenResponse es la respuesta de éxito del grant.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	PCT         string `json:"pct"`
	Upgraded    bool   `json:"upgraded"`
}
