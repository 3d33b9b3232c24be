package core

import "time"

// Permission status values.
const (
	PermissionActive      = "active"
	PermissionInvalidated = "invalidated"
)

// Client es un cliente OAuth registrado que puede pedir RPTs.
type Client struct {
	ClientID           string    `json:"client_id"`
	Name               string    `json:"name"`
	SecretHash         string    `json:"-"` // argon2id; vacío = public client
	Disabled           bool      `json:"disabled"`
	RPTAsJWT           bool      `json:"rpt_as_jwt"` // RPT como JWT firmado en vez de código opaco
	ClaimsRedirectURIs []string  `json:"claims_redirect_uris"`
	CreatedAt          time.Time `json:"created_at"`
}

// Resource es un recurso protegido registrado por un resource server.
// ScopeExpression, si no está vacío, es una expresión booleana JSON sobre
// los scopes del recurso (ver internal/uma/expression).
type Resource struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	Scopes          []string  `json:"scopes"`
	ScopeExpression string    `json:"scope_expression,omitempty"`
	Clients         []string  `json:"clients,omitempty"` // client_ids asociados
	CreatedAt       time.Time `json:"created_at"`
}

// ScopeDescription describe un scope UMA y las policies que lo protegen.
// Registry data: read-only desde el flujo de token.
type ScopeDescription struct {
	ID       string   `json:"id"`
	Policies []string `json:"policies,omitempty"` // policy refs
}

// Permission es un (resource, scopes) pendiente o concedido bajo un ticket.
// Un ticket mapea a 1..N permissions (uno por recurso del batch).
type Permission struct {
	ID         string            `json:"id"`
	Ticket     string            `json:"ticket"`
	ResourceID string            `json:"resource_id"`
	Scopes     []string          `json:"scopes"`
	Attributes map[string]string `json:"attributes,omitempty"` // incluye "pct" opcional
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	ExpiresAt  time.Time         `json:"expires_at"`
}

// IsValid reporta si el permission puede usarse: activo y no expirado.
func (p *Permission) IsValid() bool {
	return p != nil && p.Status == PermissionActive && time.Now().Before(p.ExpiresAt)
}

// IsExpired reporta si el permission venció.
func (p *Permission) IsExpired() bool {
	return p != nil && !time.Now().Before(p.ExpiresAt)
}

// SetAttribute escribe un attribute, inicializando el map si hace falta.
func (p *Permission) SetAttribute(key, value string) {
	if p.Attributes == nil {
		p.Attributes = make(map[string]string, 1)
	}
	p.Attributes[key] = value
}

// PCTAttribute es la key del attribute que vincula un permission con su PCT.
const PCTAttribute = "pct"

// PCT (Persisted Claims Token) acumula claims del requesting party a través
// de múltiples grants/sesiones.
type PCT struct {
	Code      string         `json:"code"`
	ClientID  string         `json:"client_id"`
	Claims    map[string]any `json:"claims"`
	CreatedAt time.Time      `json:"created_at"`
	ExpiresAt time.Time      `json:"expires_at"`
	Revoked   bool           `json:"revoked"`
}

// IsValid reporta si el PCT puede usarse.
func (t *PCT) IsValid() bool {
	return t != nil && !t.Revoked && time.Now().Before(t.ExpiresAt)
}

// RPT (Requesting Party Token) es la credencial que el requester presenta
// ante el resource server. Code puede ser opaco o un JWT firmado.
type RPT struct {
	Code          string    `json:"code"`
	ClientID      string    `json:"client_id"`
	PermissionIDs []string  `json:"permission_ids"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
	Revoked       bool      `json:"revoked"`
}

// IsValid reporta si el RPT puede usarse.
func (t *RPT) IsValid() bool {
	return t != nil && !t.Revoked && time.Now().Before(t.ExpiresAt)
}
