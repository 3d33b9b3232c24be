// Package session implementa la máquina de pasos del claims gathering
// interactivo. El estado vive en el cache (memory o redis) keyed por session
// id; la expiración la maneja el backend, acá no hay timeout propio.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dropDatabas3/ticketgate/internal/cache"
	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
	"github.com/dropDatabas3/ticketgate/internal/store/core"
)

var (
	ErrNotFound = errors.New("session: not found")
	// ErrNoPCT corta el gathering de entrada: sin PCT code atado al
	// permission no hay dónde acumular los claims recolectados.
	ErrNoPCT = errors.New("session: permission has no pct attribute")
)

// GatheringSession es el estado de una interacción de claims gathering.
// Step es 1-indexed; Passed registra qué pasos ya se completaron.
type GatheringSession struct {
	ID                string       `json:"id"`
	Step              int          `json:"step"`
	Ticket            string       `json:"ticket"`
	PCTCode           string       `json:"pct_code"`
	ClientID          string       `json:"client_id"`
	ClaimsRedirectURI string       `json:"claims_redirect_uri"`
	State             string       `json:"state"`
	ScriptName        string       `json:"script_name,omitempty"`
	Passed            map[int]bool `json:"passed"`
}

// AdvanceStep marca el paso actual como pasado y avanza si el gather dio
// true; con false el paso se reintenta (el caller re-renderiza).
func (s *GatheringSession) AdvanceStep(ok bool) {
	if !ok {
		return
	}
	if s.Passed == nil {
		s.Passed = make(map[int]bool)
	}
	s.Passed[s.Step] = true
	s.Step++
}

// ResetToStep retrocede a target limpiando los flags de target..step.
// Se usa para deshacer después de una falla de validación downstream.
func (s *GatheringSession) ResetToStep(target int) {
	for i := target; i <= s.Step; i++ {
		delete(s.Passed, i)
	}
	s.Step = target
}

// IsPassedPreviousSteps reporta si todos los pasos anteriores a step ya
// se completaron. La capa de UI lo usa para impedir saltos hacia adelante.
func (s *GatheringSession) IsPassedPreviousSteps(step int) bool {
	for i := 1; i < step; i++ {
		if !s.Passed[i] {
			return false
		}
	}
	return true
}

type Manager struct {
	cache cache.Cache
	ttl   time.Duration
}

func NewManager(c cache.Cache, ttl time.Duration) *Manager {
	return &Manager{cache: c, ttl: ttl}
}

// Configure arranca (o reinicia) una sesión en el paso 1. El primer
// permission tiene que traer el attribute pct; sin esa vinculación el
// gathering no puede arrancar.
func (m *Manager) Configure(ctx context.Context, id string, perms []*core.Permission, clientID, claimsRedirectURI, state string) (*GatheringSession, error) {
	if len(perms) == 0 {
		return nil, fmt.Errorf("session: no permissions for ticket")
	}
	pctCode := perms[0].Attributes[core.PCTAttribute]
	if pctCode == "" {
		return nil, ErrNoPCT
	}

	s := &GatheringSession{
		ID:                id,
		Step:              1,
		Ticket:            perms[0].Ticket,
		PCTCode:           pctCode,
		ClientID:          clientID,
		ClaimsRedirectURI: claimsRedirectURI,
		State:             state,
		Passed:            make(map[int]bool),
	}
	if err := m.Save(ctx, s); err != nil {
		return nil, err
	}
	logger.From(ctx).Info("gathering session configured",
		logger.SessionID(id), logger.ClientID(clientID), logger.Ticket(s.Ticket))
	return s, nil
}

func (m *Manager) Load(ctx context.Context, id string) (*GatheringSession, error) {
	raw, ok := m.cache.Get(ctx, key(id))
	if !ok {
		return nil, ErrNotFound
	}
	var s GatheringSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("session: decoding %s: %w", id, err)
	}
	return &s, nil
}

func (m *Manager) Save(ctx context.Context, s *GatheringSession) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encoding %s: %w", s.ID, err)
	}
	m.cache.Set(ctx, key(s.ID), raw, m.ttl)
	return nil
}

func (m *Manager) Delete(ctx context.Context, id string) {
	m.cache.Delete(ctx, key(id))
}

func key(id string) string {
	return "uma:session:" + id
}
