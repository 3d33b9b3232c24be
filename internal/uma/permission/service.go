// Package permission maneja el ciclo de vida de tickets y permissions:
// registro, resolución y rotación.
package permission

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/ticketgate/internal/metrics"
	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
	"github.com/dropDatabas3/ticketgate/internal/store/core"
	"github.com/dropDatabas3/ticketgate/internal/uma/umaerr"
)

type Service struct {
	repo      core.Repository
	ticketTTL time.Duration
}

func NewService(repo core.Repository, ticketTTL time.Duration) *Service {
	if ticketTTL <= 0 {
		ticketTTL = time.Hour
	}
	return &Service{repo: repo, ticketTTL: ticketTTL}
}

// NewTicket genera un ticket string nuevo.
func NewTicket() string { return uuid.NewString() }

// Register crea los permissions de un batch de (resource, scopes) bajo un
// ticket nuevo y los persiste. Devuelve el ticket.
func (s *Service) Register(ctx context.Context, reqs []PermissionRequest) (string, error) {
	ticket := NewTicket()
	now := time.Now().UTC()
	perms := make([]*core.Permission, 0, len(reqs))
	for _, r := range reqs {
		perms = append(perms, &core.Permission{
			ID:         uuid.NewString(),
			Ticket:     ticket,
			ResourceID: r.ResourceID,
			Scopes:     r.Scopes,
			Status:     core.PermissionActive,
			CreatedAt:  now,
			ExpiresAt:  now.Add(s.ticketTTL),
		})
	}
	if err := s.repo.CreatePermissions(ctx, perms); err != nil {
		return "", err
	}
	return ticket, nil
}

// PermissionRequest es un (resource, scopes) a registrar bajo un ticket.
type PermissionRequest struct {
	ResourceID string
	Scopes     []string
}

// ResolveTicket valida el ticket y devuelve sus permissions utilizables.
// Ticket en blanco o sin permissions ⇒ ErrInvalidTicket; permissions
// invalidados ⇒ ErrInvalidTicket; expirados ⇒ ErrExpiredTicket.
func (s *Service) ResolveTicket(ctx context.Context, ticket string) ([]*core.Permission, error) {
	if strings.TrimSpace(ticket) == "" {
		logger.From(ctx).Error("ticket is blank")
		return nil, umaerr.ErrInvalidTicket
	}
	perms, err := s.repo.GetPermissionsByTicket(ctx, ticket)
	if err != nil || len(perms) == 0 {
		logger.From(ctx).Error("no permissions registered for ticket", logger.Ticket(ticket))
		return nil, umaerr.ErrInvalidTicket
	}
	for _, p := range perms {
		if p.Status != core.PermissionActive {
			logger.From(ctx).Error("permission invalidated", logger.ID(p.ID), logger.String("status", p.Status))
			return nil, umaerr.ErrInvalidTicket
		}
		if p.IsExpired() {
			logger.From(ctx).Error("permission expired", logger.ID(p.ID), logger.Ticket(ticket))
			return nil, umaerr.ErrExpiredTicket
		}
	}
	return perms, nil
}

// RotateTicket emite un ticket nuevo y reescribe el campo ticket (y
// attributes opcionales) de cada permission, preservando resource/scopes.
// Se usa cuando faltan claims: un ticket viejo no puede ser replayed una vez
// que los claims se suplen contra el nuevo.
func (s *Service) RotateTicket(ctx context.Context, perms []*core.Permission, attributes map[string]string) (string, error) {
	ticket := NewTicket()
	for _, p := range perms {
		p.Ticket = ticket
		for k, v := range attributes {
			p.SetAttribute(k, v)
		}
		if err := s.repo.UpdatePermission(ctx, p); err != nil {
			return "", err
		}
	}
	metrics.TicketRotationsTotal.Inc()
	logger.From(ctx).Debug("ticket rotated", logger.Ticket(ticket), logger.Count(len(perms)))
	return ticket, nil
}

// Persist guarda el estado actual de cada permission (scopes recortados,
// attributes de PCT).
func (s *Service) Persist(ctx context.Context, perms []*core.Permission) error {
	for _, p := range perms {
		if err := s.repo.UpdatePermission(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
