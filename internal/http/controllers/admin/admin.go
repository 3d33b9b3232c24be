// Package admin expone la superficie administrativa: registro de protección
// (tickets), altas de registry, revocaciones y reload de policies.
package admin

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
	"github.com/dropDatabas3/ticketgate/internal/security/password"
	"github.com/dropDatabas3/ticketgate/internal/store/core"
	"github.com/dropDatabas3/ticketgate/internal/uma/expression"
	"github.com/dropDatabas3/ticketgate/internal/uma/permission"
	"github.com/dropDatabas3/ticketgate/internal/uma/policy"
	"github.com/dropDatabas3/ticketgate/internal/validation"
)

// Controller maneja las rutas /admin.
type Controller struct {
	repo     core.Repository
	perms    *permission.Service
	policies *policy.Registry
}

func NewController(repo core.Repository, perms *permission.Service, policies *policy.Registry) *Controller {
	return &Controller{repo: repo, perms: perms, policies: policies}
}

// RegisterPermissions maneja POST /admin/permissions
// Es el punto de entrada del resource server: registra un batch de
// (resource, scopes) y devuelve el ticket.
func (c *Controller) RegisterPermissions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("admin.permissions.register"))

	var body []struct {
		ResourceID     string   `json:"resource_id"`
		ResourceScopes []string `json:"resource_scopes"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil || len(body) == 0 {
		writeAdminError(w, http.StatusBadRequest, "invalid_request", "Expected a non-empty JSON array of permission requests")
		return
	}

	reqs := make([]permission.PermissionRequest, 0, len(body))
	for _, pr := range body {
		res, err := c.repo.GetResource(ctx, pr.ResourceID)
		if err != nil {
			log.Warn("unknown resource in permission request", logger.ResourceID(pr.ResourceID), logger.Err(err))
			writeAdminError(w, http.StatusBadRequest, "invalid_resource_id", "Resource not registered: "+pr.ResourceID)
			return
		}
		if !validation.ValidScopeNames(pr.ResourceScopes) {
			writeAdminError(w, http.StatusBadRequest, "invalid_scope", "Scope names are not valid")
			return
		}
		allowed := declaredScopes(res)
		for _, sc := range pr.ResourceScopes {
			if _, ok := allowed[sc]; !ok {
				writeAdminError(w, http.StatusBadRequest, "invalid_scope", "Scope not declared by resource: "+sc)
				return
			}
		}
		reqs = append(reqs, permission.PermissionRequest{ResourceID: pr.ResourceID, Scopes: pr.ResourceScopes})
	}

	ticket, err := c.perms.Register(ctx, reqs)
	if err != nil {
		log.Error("permission registration failed", logger.Err(err))
		writeAdminError(w, http.StatusInternalServerError, "server_error", "Could not register permissions")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"ticket": ticket})
}

// CreateResource maneja POST /admin/resources
func (c *Controller) CreateResource(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("admin.resources.create"))

	var body struct {
		ID              string   `json:"id"`
		Name            string   `json:"name"`
		Scopes          []string `json:"scopes"`
		ScopeExpression string   `json:"scope_expression,omitempty"`
		Clients         []string `json:"clients,omitempty"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil || body.ID == "" {
		writeAdminError(w, http.StatusBadRequest, "invalid_request", "id is required")
		return
	}
	if err := validation.ValidateResource(body.Scopes, body.ScopeExpression); err != nil {
		log.Warn("resource rejected", logger.ResourceID(body.ID), logger.Err(err))
		writeAdminError(w, http.StatusBadRequest, "invalid_scope", err.Error())
		return
	}

	res := &core.Resource{
		ID:              body.ID,
		Name:            body.Name,
		Scopes:          body.Scopes,
		ScopeExpression: body.ScopeExpression,
		Clients:         body.Clients,
		CreatedAt:       time.Now().UTC(),
	}
	if err := c.repo.CreateResource(ctx, res); err != nil {
		if errors.Is(err, core.ErrConflict) {
			writeAdminError(w, http.StatusConflict, "conflict", "Resource already exists")
			return
		}
		log.Error("resource create failed", logger.Err(err))
		writeAdminError(w, http.StatusInternalServerError, "server_error", "Could not create resource")
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

// CreateClient maneja POST /admin/clients
func (c *Controller) CreateClient(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("admin.clients.create"))

	var body struct {
		ClientID           string   `json:"client_id"`
		Name               string   `json:"name"`
		Secret             string   `json:"secret,omitempty"`
		RPTAsJWT           bool     `json:"rpt_as_jwt"`
		ClaimsRedirectURIs []string `json:"claims_redirect_uris,omitempty"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil || body.ClientID == "" {
		writeAdminError(w, http.StatusBadRequest, "invalid_request", "client_id is required")
		return
	}

	cl := &core.Client{
		ClientID:           body.ClientID,
		Name:               body.Name,
		RPTAsJWT:           body.RPTAsJWT,
		ClaimsRedirectURIs: body.ClaimsRedirectURIs,
		CreatedAt:          time.Now().UTC(),
	}
	if body.Secret != "" {
		hash, err := password.Hash(password.Default, body.Secret)
		if err != nil {
			log.Error("secret hash failed", logger.Err(err))
			writeAdminError(w, http.StatusInternalServerError, "server_error", "Could not hash secret")
			return
		}
		cl.SecretHash = hash
	}

	if err := c.repo.CreateClient(ctx, cl); err != nil {
		if errors.Is(err, core.ErrConflict) {
			writeAdminError(w, http.StatusConflict, "conflict", "Client already exists")
			return
		}
		log.Error("client create failed", logger.Err(err))
		writeAdminError(w, http.StatusInternalServerError, "server_error", "Could not create client")
		return
	}
	// Nunca devolvemos el hash.
	cl.SecretHash = ""
	writeJSON(w, http.StatusCreated, cl)
}

// UpsertScope maneja PUT /admin/scopes/{id}
func (c *Controller) UpsertScope(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("admin.scopes.upsert"))

	id := chi.URLParam(r, "id")
	if !validation.ValidScopeName(id) {
		writeAdminError(w, http.StatusBadRequest, "invalid_scope", "Scope id is not valid")
		return
	}

	var body struct {
		Policies []string `json:"policies"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}

	sc := &core.ScopeDescription{ID: id, Policies: body.Policies}
	if err := c.repo.UpsertScope(ctx, sc); err != nil {
		log.Error("scope upsert failed", logger.Scope(id), logger.Err(err))
		writeAdminError(w, http.StatusInternalServerError, "server_error", "Could not upsert scope")
		return
	}
	writeJSON(w, http.StatusOK, sc)
}

// InvalidateTicket maneja POST /admin/tickets/invalidate
func (c *Controller) InvalidateTicket(w http.ResponseWriter, r *http.Request) {
	c.revoke(w, r, "ticket", func(req *http.Request, v string) error {
		return c.repo.InvalidateTicket(req.Context(), v)
	})
}

// RevokePCT maneja POST /admin/pcts/revoke
func (c *Controller) RevokePCT(w http.ResponseWriter, r *http.Request) {
	c.revoke(w, r, "code", func(req *http.Request, v string) error {
		return c.repo.RevokePCT(req.Context(), v)
	})
}

// RevokeRPT maneja POST /admin/rpts/revoke
func (c *Controller) RevokeRPT(w http.ResponseWriter, r *http.Request) {
	c.revoke(w, r, "code", func(req *http.Request, v string) error {
		return c.repo.RevokeRPT(req.Context(), v)
	})
}

// ReloadPolicies maneja POST /admin/policies/reload
func (c *Controller) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("admin.policies.reload"))

	if err := c.policies.Reload(ctx); err != nil {
		log.Error("policy reload failed", logger.Err(err))
		writeAdminError(w, http.StatusInternalServerError, "server_error", "Policy reload failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"reloaded": true, "policies": c.policies.Refs()})
}

func (c *Controller) revoke(w http.ResponseWriter, r *http.Request, field string, fn func(*http.Request, string) error) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("admin.revoke"))

	var body map[string]string
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&body); err != nil {
		writeAdminError(w, http.StatusBadRequest, "invalid_request", "Invalid JSON body")
		return
	}
	v := strings.TrimSpace(body[field])
	if v == "" {
		writeAdminError(w, http.StatusBadRequest, "invalid_request", field+" is required")
		return
	}

	if err := fn(r, v); err != nil {
		if errors.Is(err, core.ErrNotFound) {
			writeAdminError(w, http.StatusNotFound, "not_found", "No such "+field)
			return
		}
		log.Error("revocation failed", logger.Err(err))
		writeAdminError(w, http.StatusInternalServerError, "server_error", "Revocation failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

// declaredScopes junta los scopes listados por el resource más los que
// referencia su scope expression, si tiene.
func declaredScopes(res *core.Resource) map[string]struct{} {
	out := make(map[string]struct{}, len(res.Scopes))
	for _, sc := range res.Scopes {
		out[sc] = struct{}{}
	}
	if res.ScopeExpression != "" {
		if e, err := expression.Parse(res.ScopeExpression); err == nil {
			for _, sc := range e.DataScopes() {
				out[sc] = struct{}{}
			}
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeAdminError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, map[string]string{"error": code, "error_description": detail})
}
