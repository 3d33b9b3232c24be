// Package memory implementa core.Repository en memoria.
// Pensado para desarrollo y tests; producción usa el adapter pg.
package memory

import (
	"context"
	"sync"

	"github.com/dropDatabas3/ticketgate/internal/store/core"
)

type Store struct {
	mu          sync.RWMutex
	clients     map[string]core.Client
	resources   map[string]core.Resource
	scopes      map[string]core.ScopeDescription
	permissions map[string]core.Permission // by id
	byTicket    map[string][]string        // ticket -> permission ids
	pcts        map[string]core.PCT
	rpts        map[string]core.RPT
}

func New() *Store {
	return &Store{
		clients:     make(map[string]core.Client),
		resources:   make(map[string]core.Resource),
		scopes:      make(map[string]core.ScopeDescription),
		permissions: make(map[string]core.Permission),
		byTicket:    make(map[string][]string),
		pcts:        make(map[string]core.PCT),
		rpts:        make(map[string]core.RPT),
	}
}

var _ core.Repository = (*Store)(nil)

func (s *Store) Ping(ctx context.Context) error { return nil }
func (s *Store) Close()                         {}

// ─── Registry ───

func (s *Store) GetClient(ctx context.Context, clientID string) (*core.Client, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[clientID]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := c
	return &cp, nil
}

func (s *Store) CreateClient(ctx context.Context, c *core.Client) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[c.ClientID]; ok {
		return core.ErrConflict
	}
	s.clients[c.ClientID] = *c
	return nil
}

func (s *Store) GetResource(ctx context.Context, id string) (*core.Resource, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.resources[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := r
	return &cp, nil
}

func (s *Store) CreateResource(ctx context.Context, r *core.Resource) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.resources[r.ID]; ok {
		return core.ErrConflict
	}
	s.resources[r.ID] = *r
	return nil
}

func (s *Store) GetScope(ctx context.Context, id string) (*core.ScopeDescription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scopes[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := sc
	return &cp, nil
}

func (s *Store) UpsertScope(ctx context.Context, sc *core.ScopeDescription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scopes[sc.ID] = *sc
	return nil
}

// ─── Permissions / tickets ───

func (s *Store) CreatePermissions(ctx context.Context, perms []*core.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range perms {
		s.permissions[p.ID] = clonePermission(p)
		s.byTicket[p.Ticket] = append(s.byTicket[p.Ticket], p.ID)
	}
	return nil
}

func (s *Store) GetPermissionsByTicket(ctx context.Context, ticket string) ([]*core.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := s.byTicket[ticket]
	if len(ids) == 0 {
		return nil, core.ErrNotFound
	}
	out := make([]*core.Permission, 0, len(ids))
	for _, id := range ids {
		if p, ok := s.permissions[id]; ok {
			cp := clonePermission(&p)
			out = append(out, &cp)
		}
	}
	if len(out) == 0 {
		return nil, core.ErrNotFound
	}
	return out, nil
}

// UpdatePermission reemplaza el permission por id y re-indexa el ticket si rotó.
func (s *Store) UpdatePermission(ctx context.Context, p *core.Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	old, ok := s.permissions[p.ID]
	if !ok {
		return core.ErrNotFound
	}
	if old.Ticket != p.Ticket {
		s.byTicket[old.Ticket] = removeID(s.byTicket[old.Ticket], p.ID)
		if len(s.byTicket[old.Ticket]) == 0 {
			delete(s.byTicket, old.Ticket)
		}
		s.byTicket[p.Ticket] = append(s.byTicket[p.Ticket], p.ID)
	}
	s.permissions[p.ID] = clonePermission(p)
	return nil
}

func (s *Store) InvalidateTicket(ctx context.Context, ticket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := s.byTicket[ticket]
	if len(ids) == 0 {
		return core.ErrNotFound
	}
	for _, id := range ids {
		p := s.permissions[id]
		p.Status = core.PermissionInvalidated
		s.permissions[id] = p
	}
	return nil
}

// ─── PCT ───

func (s *Store) CreatePCT(ctx context.Context, t *core.PCT) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pcts[t.Code]; ok {
		return core.ErrConflict
	}
	s.pcts[t.Code] = clonePCT(t)
	return nil
}

func (s *Store) GetPCTByCode(ctx context.Context, code string) (*core.PCT, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.pcts[code]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := clonePCT(&t)
	return &cp, nil
}

func (s *Store) UpdatePCT(ctx context.Context, t *core.PCT) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.pcts[t.Code]; !ok {
		return core.ErrNotFound
	}
	s.pcts[t.Code] = clonePCT(t)
	return nil
}

func (s *Store) RevokePCT(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.pcts[code]
	if !ok {
		return core.ErrNotFound
	}
	t.Revoked = true
	s.pcts[code] = t
	return nil
}

// ─── RPT ───

func (s *Store) CreateRPT(ctx context.Context, t *core.RPT) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rpts[t.Code]; ok {
		return core.ErrConflict
	}
	s.rpts[t.Code] = cloneRPT(t)
	return nil
}

func (s *Store) GetRPTByCode(ctx context.Context, code string) (*core.RPT, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.rpts[code]
	if !ok {
		return nil, core.ErrNotFound
	}
	cp := cloneRPT(&t)
	return &cp, nil
}

func (s *Store) UpdateRPT(ctx context.Context, t *core.RPT) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rpts[t.Code]; !ok {
		return core.ErrNotFound
	}
	s.rpts[t.Code] = cloneRPT(t)
	return nil
}

func (s *Store) RevokeRPT(ctx context.Context, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rpts[code]
	if !ok {
		return core.ErrNotFound
	}
	t.Revoked = true
	s.rpts[code] = t
	return nil
}

// ─── helpers ───

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}

// clonePermission copia scopes y attributes para que dos resoluciones
// concurrentes del mismo ticket no compartan memoria mutable.
func clonePermission(p *core.Permission) core.Permission {
	cp := *p
	cp.Scopes = append([]string(nil), p.Scopes...)
	if p.Attributes != nil {
		cp.Attributes = make(map[string]string, len(p.Attributes))
		for k, v := range p.Attributes {
			cp.Attributes[k] = v
		}
	}
	return cp
}

// clonePCT copia el map de claims para que el caller no comparta memoria con el store.
func clonePCT(t *core.PCT) core.PCT {
	cp := *t
	if t.Claims != nil {
		cp.Claims = make(map[string]any, len(t.Claims))
		for k, v := range t.Claims {
			cp.Claims[k] = v
		}
	}
	return cp
}

func cloneRPT(t *core.RPT) core.RPT {
	cp := *t
	cp.PermissionIDs = append([]string(nil), t.PermissionIDs...)
	return cp
}
