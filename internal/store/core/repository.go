package core

import (
	"context"
)

// Repository es la API de persistencia estilo directory-store que consume el
// núcleo de decisión: point lookup por code/id, búsqueda por igualdad,
// add/merge/remove. Sin transacciones distribuidas: cada llamada es atómica
// por sí sola (ver notas de concurrencia en DESIGN.md).
type Repository interface {
	Ping(ctx context.Context) error
	Close()

	// Registry (read-mostly)
	GetClient(ctx context.Context, clientID string) (*Client, error)
	CreateClient(ctx context.Context, c *Client) error

	GetResource(ctx context.Context, id string) (*Resource, error)
	CreateResource(ctx context.Context, r *Resource) error

	GetScope(ctx context.Context, id string) (*ScopeDescription, error)
	UpsertScope(ctx context.Context, s *ScopeDescription) error

	// Permissions / tickets
	CreatePermissions(ctx context.Context, perms []*Permission) error
	GetPermissionsByTicket(ctx context.Context, ticket string) ([]*Permission, error)
	UpdatePermission(ctx context.Context, p *Permission) error
	InvalidateTicket(ctx context.Context, ticket string) error

	// PCT
	CreatePCT(ctx context.Context, t *PCT) error
	GetPCTByCode(ctx context.Context, code string) (*PCT, error)
	UpdatePCT(ctx context.Context, t *PCT) error
	RevokePCT(ctx context.Context, code string) error

	// RPT
	CreateRPT(ctx context.Context, t *RPT) error
	GetRPTByCode(ctx context.Context, code string) (*RPT, error)
	UpdateRPT(ctx context.Context, t *RPT) error
	RevokeRPT(ctx context.Context, code string) error
}
