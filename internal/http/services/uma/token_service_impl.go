package uma

import (
	"context"
	"strings"

	jwtx "github.com/dropDatabas3/ticketgate/internal/jwt"
	"github.com/dropDatabas3/ticketgate/internal/metrics"
	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
	"github.com/dropDatabas3/ticketgate/internal/security/password"
	"github.com/dropDatabas3/ticketgate/internal/store/core"
	"github.com/dropDatabas3/ticketgate/internal/uma/claims"
	"github.com/dropDatabas3/ticketgate/internal/uma/engine"
	"github.com/dropDatabas3/ticketgate/internal/uma/needsinfo"
	"github.com/dropDatabas3/ticketgate/internal/uma/pct"
	"github.com/dropDatabas3/ticketgate/internal/uma/permission"
	"github.com/dropDatabas3/ticketgate/internal/uma/rpt"
	"github.com/dropDatabas3/ticketgate/internal/uma/umaerr"
)

// TokenDeps agrupa las dependencias del token service.
type TokenDeps struct {
	Repo        core.Repository
	Permissions *permission.Service
	PCT         *pct.Manager
	RPT         *rpt.Manager
	NeedsInfo   *needsinfo.Evaluator
	Engine      *engine.Engine
	Keystore    *jwtx.Keystore
	Issuer      string

	// ValidateClaimToken exige firma/issuer/expiry del claim token; en off
	// el token sólo se decodifica.
	ValidateClaimToken bool
	// RestrictResourceToClient niega el acceso cuando el resource lista
	// clients permitidos y el solicitante no está entre ellos.
	RestrictResourceToClient bool
}

type tokenService struct {
	d TokenDeps
}

func NewTokenService(d TokenDeps) TokenService {
	return &tokenService{d: d}
}

// GrantByTicket implementa la secuencia: grant_type → ticket → claim token →
// PCT/RPT → client → scopes → claims merge → needs-info → policies → PCT
// attach + persist → RPT. Cualquier falla inesperada sale como server_error;
// las de validación salen con su sentinel específico.
func (s *tokenService) GrantByTicket(ctx context.Context, req TokenRequest) (*TokenResponse, *needsinfo.Result, error) {
	log := logger.From(ctx).With(logger.Layer("service"), logger.Op("uma.token"))

	if req.GrantType != GrantTypeUMATicket {
		log.Warn("unsupported grant_type", logger.String("grant_type", req.GrantType))
		return nil, nil, umaerr.ErrInvalidGrantType
	}

	perms, err := s.d.Permissions.ResolveTicket(ctx, req.Ticket)
	if err != nil {
		return nil, nil, err
	}

	assertion, err := s.validateClaimToken(ctx, req.ClaimToken, req.ClaimTokenFormat)
	if err != nil {
		return nil, nil, err
	}

	presentedPCT, err := s.d.PCT.Validate(ctx, req.PCT)
	if err != nil {
		return nil, nil, err
	}
	existingRPT, err := s.d.RPT.Validate(ctx, req.RPT)
	if err != nil {
		return nil, nil, err
	}

	client, err := s.resolveClient(ctx, req.ClientID, req.ClientSecret)
	if err != nil {
		return nil, nil, err
	}

	requested, err := s.reconcileScopes(ctx, perms, req.Scope)
	if err != nil {
		return nil, nil, err
	}
	if err := s.checkClientRestriction(ctx, client, perms); err != nil {
		return nil, nil, err
	}

	var pctClaims map[string]any
	if presentedPCT != nil {
		pctClaims = presentedPCT.Claims
	}
	cl := claims.New(assertion, pctClaims, req.ClaimToken)

	ctxs, need, err := s.d.NeedsInfo.Check(ctx, cl, client, presentedPCT, requested, perms)
	if err != nil {
		return nil, nil, err
	}
	if need != nil {
		metrics.NeedInfoTotal.Inc()
		return nil, need, nil
	}

	if err := s.d.Engine.Evaluate(ctx, ctxs, perms); err != nil {
		return nil, nil, err
	}

	grantPCT := s.d.PCT.UpdateClaims(ctx, presentedPCT, assertion, client.ClientID, perms)
	s.d.PCT.Attach(grantPCT, perms)
	if err := s.d.Permissions.Persist(ctx, perms); err != nil {
		log.Error("persisting granted permissions", logger.Err(err))
		return nil, nil, umaerr.ErrServerError
	}

	token, upgraded, err := s.d.RPT.IssueOrUpgrade(ctx, client, perms, existingRPT, grantPCT.Claims)
	if err != nil {
		log.Error("rpt issuance failed", logger.Err(err))
		return nil, nil, umaerr.ErrServerError
	}

	metrics.GrantsTotal.Inc()
	log.Info("access granted", logger.ClientID(client.ClientID), logger.Bool("upgraded", upgraded))

	return &TokenResponse{
		AccessToken: token.Code,
		TokenType:   "Bearer",
		PCT:         grantPCT.Code,
		Upgraded:    upgraded,
	}, nil, nil
}

// validateClaimToken chequea formato y, según configuración, la firma del
// claim token. token y format van juntos: ambos en blanco (opcional) o
// ambos presentes.
func (s *tokenService) validateClaimToken(ctx context.Context, token, format string) (map[string]any, error) {
	log := logger.From(ctx)

	if strings.TrimSpace(token) == "" {
		if strings.TrimSpace(format) != "" {
			log.Error("claim_token_format without claim_token")
			return nil, umaerr.ErrInvalidClaimToken
		}
		return nil, nil
	}
	if format != ClaimTokenFormatIDToken {
		log.Error("unsupported claim_token_format", logger.String("format", format))
		return nil, umaerr.ErrInvalidClaimTokenFormat
	}

	if !s.d.ValidateClaimToken {
		cl, err := jwtx.ParseUnverified(token)
		if err != nil {
			log.Error("claim token not decodable", logger.Err(err))
			return nil, umaerr.ErrInvalidClaimToken
		}
		return cl, nil
	}

	cl, err := jwtx.ParseEdDSA(token, s.d.Keystore, s.d.Issuer)
	if err != nil {
		log.Error("claim token validation failed", logger.Err(err))
		return nil, umaerr.ErrInvalidClaimToken
	}
	return cl, nil
}

func (s *tokenService) resolveClient(ctx context.Context, clientID, secret string) (*core.Client, error) {
	log := logger.From(ctx)

	if strings.TrimSpace(clientID) == "" {
		return nil, umaerr.ErrInvalidClientID
	}
	client, err := s.d.Repo.GetClient(ctx, clientID)
	if err != nil {
		log.Warn("client not found", logger.ClientID(clientID), logger.Err(err))
		return nil, umaerr.ErrInvalidClientID
	}
	if client.Disabled {
		log.Warn("client is disabled", logger.ClientID(clientID))
		return nil, umaerr.ErrDisabledClient
	}
	if client.SecretHash != "" && !password.Verify(secret, client.SecretHash) {
		log.Warn("client secret mismatch", logger.ClientID(clientID))
		return nil, umaerr.ErrUnauthorizedClient
	}
	return client, nil
}

// reconcileScopes resuelve el parámetro scope contra los scopes del resource
// de cada permission: los scopes del ticket siempre entran, los pedidos se
// suman sólo si el resource los declara, los desconocidos se saltean con un
// trace. Resultado vacío ⇒ invalid_scope.
func (s *tokenService) reconcileScopes(ctx context.Context, perms []*core.Permission, scope string) ([]string, error) {
	log := logger.From(ctx)
	requested := strings.Fields(scope)

	seen := make(map[string]struct{})
	var all []string
	add := func(sc string) {
		if _, ok := seen[sc]; ok {
			return
		}
		seen[sc] = struct{}{}
		all = append(all, sc)
	}

	for _, p := range perms {
		for _, sc := range p.Scopes {
			add(sc)
		}
		if len(requested) == 0 {
			continue
		}
		res, err := s.d.Repo.GetResource(ctx, p.ResourceID)
		if err != nil {
			log.Warn("resource not resolvable during scope reconciliation",
				logger.ResourceID(p.ResourceID), logger.Err(err))
			continue
		}
		declared := make(map[string]struct{}, len(res.Scopes))
		for _, sc := range res.Scopes {
			declared[sc] = struct{}{}
		}
		for _, sc := range requested {
			if _, ok := declared[sc]; !ok {
				log.Debug("requested scope not declared by resource, skipping",
					logger.Scope(sc), logger.ResourceID(p.ResourceID))
				continue
			}
			if !contains(p.Scopes, sc) {
				p.Scopes = append(p.Scopes, sc)
			}
			add(sc)
		}
	}

	if len(all) == 0 {
		log.Error("no usable scopes for ticket")
		return nil, umaerr.ErrInvalidScope
	}
	return all, nil
}

// checkClientRestriction aplica el switch opcional que ata resources a
// clients: si el resource lista clients y el solicitante no figura, se niega.
func (s *tokenService) checkClientRestriction(ctx context.Context, client *core.Client, perms []*core.Permission) error {
	if !s.d.RestrictResourceToClient {
		return nil
	}
	for _, p := range perms {
		res, err := s.d.Repo.GetResource(ctx, p.ResourceID)
		if err != nil {
			continue
		}
		if len(res.Clients) == 0 {
			continue
		}
		if !contains(res.Clients, client.ClientID) {
			logger.From(ctx).Warn("resource restricted to other clients",
				logger.ResourceID(p.ResourceID), logger.ClientID(client.ClientID))
			return umaerr.ErrAccessDenied
		}
	}
	return nil
}

func contains(xs []string, x string) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}
