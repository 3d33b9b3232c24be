package uma

import (
	"context"
	"net/url"
	"strings"

	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
	"github.com/dropDatabas3/ticketgate/internal/store/core"
	"github.com/dropDatabas3/ticketgate/internal/uma/pct"
	"github.com/dropDatabas3/ticketgate/internal/uma/permission"
	"github.com/dropDatabas3/ticketgate/internal/uma/session"
	"github.com/dropDatabas3/ticketgate/internal/uma/umaerr"
)

// GatheringService maneja el flujo interactivo de claims gathering: el
// end-user pasa por los pasos del script, los claims recolectados se
// acumulan en el PCT de la sesión, y al terminar se lo redirige de vuelta
// al cliente con un ticket rotado.
type GatheringService interface {
	// Start valida client y claims_redirect_uri, resuelve el ticket y
	// configura la sesión en el paso 1.
	Start(ctx context.Context, req GatheringStartRequest) (*session.GatheringSession, error)

	// Advance registra el resultado del paso actual. Con passed=false el
	// paso se reintenta. Con done=true fusiona nada más pendiente, rota el
	// ticket y devuelve el redirect de vuelta al cliente.
	Advance(ctx context.Context, sessionID string, stepClaims map[string]any, passed, done bool) (*GatheringStepResult, error)

	// Reset retrocede la sesión a un paso anterior tras una falla de
	// validación downstream.
	Reset(ctx context.Context, sessionID string, step int) (*session.GatheringSession, error)
}

type GatheringStartRequest struct {
	SessionID         string
	ClientID          string
	Ticket            string
	ClaimsRedirectURI string
	State             string
}

type GatheringStepResult struct {
	Session    *session.GatheringSession
	Done       bool
	RedirectTo string
}

// GatheringDeps agrupa las dependencias del gathering service.
type GatheringDeps struct {
	Repo        core.Repository
	Permissions *permission.Service
	PCT         *pct.Manager
	Sessions    *session.Manager
}

type gatheringService struct {
	d GatheringDeps
}

func NewGatheringService(d GatheringDeps) GatheringService {
	return &gatheringService{d: d}
}

func (s *gatheringService) Start(ctx context.Context, req GatheringStartRequest) (*session.GatheringSession, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("uma.gathering.start"))

	client, redirectURI, err := s.validateClientAndRedirect(ctx, req.ClientID, req.ClaimsRedirectURI)
	if err != nil {
		return nil, err
	}

	perms, err := s.d.Permissions.ResolveTicket(ctx, req.Ticket)
	if err != nil {
		return nil, err
	}

	sess, err := s.d.Sessions.Configure(ctx, req.SessionID, perms, client.ClientID, redirectURI, req.State)
	if err != nil {
		log.Error("cannot configure gathering session", logger.Err(err))
		return nil, err
	}
	return sess, nil
}

func (s *gatheringService) Advance(ctx context.Context, sessionID string, stepClaims map[string]any, passed, done bool) (*GatheringStepResult, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("uma.gathering.advance"))

	sess, err := s.d.Sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if passed && len(stepClaims) > 0 {
		if err := s.mergeIntoPCT(ctx, sess, stepClaims); err != nil {
			return nil, err
		}
	}

	sess.AdvanceStep(passed)
	if err := s.d.Sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	if !passed || !done {
		return &GatheringStepResult{Session: sess}, nil
	}

	// Gathering completo: rotar el ticket y devolver al end-user al
	// cliente con el ticket nuevo.
	perms, err := s.d.Permissions.ResolveTicket(ctx, sess.Ticket)
	if err != nil {
		return nil, err
	}
	newTicket, err := s.d.Permissions.RotateTicket(ctx, perms, map[string]string{core.PCTAttribute: sess.PCTCode})
	if err != nil {
		return nil, err
	}
	s.d.Sessions.Delete(ctx, sessionID)

	log.Info("gathering finished", logger.SessionID(sessionID), logger.Ticket(newTicket))
	return &GatheringStepResult{
		Session:    sess,
		Done:       true,
		RedirectTo: redirectBack(sess.ClaimsRedirectURI, newTicket, sess.State),
	}, nil
}

func (s *gatheringService) Reset(ctx context.Context, sessionID string, step int) (*session.GatheringSession, error) {
	sess, err := s.d.Sessions.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	sess.ResetToStep(step)
	if err := s.d.Sessions.Save(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// validateClientAndRedirect resuelve el cliente y chequea el redirect contra
// sus claims_redirect_uris registradas: match exacto, o la única registrada
// cuando viene en blanco.
func (s *gatheringService) validateClientAndRedirect(ctx context.Context, clientID, redirectURI string) (*core.Client, string, error) {
	log := logger.From(ctx)

	if strings.TrimSpace(clientID) == "" {
		return nil, "", umaerr.ErrInvalidClientID
	}
	client, err := s.d.Repo.GetClient(ctx, clientID)
	if err != nil {
		log.Warn("client not found", logger.ClientID(clientID), logger.Err(err))
		return nil, "", umaerr.ErrInvalidClientID
	}
	if client.Disabled {
		return nil, "", umaerr.ErrDisabledClient
	}

	if redirectURI == "" {
		if len(client.ClaimsRedirectURIs) != 1 {
			log.Warn("claims_redirect_uri required, client has multiple registered", logger.ClientID(clientID))
			return nil, "", umaerr.ErrInvalidClaimsRedirectURI
		}
		return client, client.ClaimsRedirectURIs[0], nil
	}
	for _, registered := range client.ClaimsRedirectURIs {
		if registered == redirectURI {
			return client, redirectURI, nil
		}
	}
	log.Warn("claims_redirect_uri not registered", logger.ClientID(clientID))
	return nil, "", umaerr.ErrInvalidClaimsRedirectURI
}

func (s *gatheringService) mergeIntoPCT(ctx context.Context, sess *session.GatheringSession, stepClaims map[string]any) error {
	t, err := s.d.Repo.GetPCTByCode(ctx, sess.PCTCode)
	if err != nil {
		logger.From(ctx).Error("session pct not loadable", logger.SessionID(sess.ID), logger.Err(err))
		return umaerr.ErrInvalidPCT
	}
	s.d.PCT.UpdateClaims(ctx, t, stepClaims, sess.ClientID, nil)
	return nil
}

func redirectBack(base, ticket, state string) string {
	q := url.Values{}
	q.Set("ticket", ticket)
	if state != "" {
		q.Set("state", state)
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}
