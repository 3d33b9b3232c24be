// Package uma - controllers del grant UMA: token endpoint y claims gathering.
package uma

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dropDatabas3/ticketgate/internal/metrics"
	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
	"github.com/dropDatabas3/ticketgate/internal/uma/umaerr"

	svc "github.com/dropDatabas3/ticketgate/internal/http/services/uma"
)

// TokenController handles POST /uma/token
type TokenController struct {
	service svc.TokenService
}

func NewTokenController(s svc.TokenService) *TokenController {
	return &TokenController{service: s}
}

// Token handles POST /uma/token
// Implements: grant_type=urn:ietf:params:oauth:grant-type:uma-ticket.
func (c *TokenController) Token(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("uma.token"))

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST")
		writeError(w, http.StatusMethodNotAllowed, "invalid_request", "Only POST method is allowed")
		return
	}

	// Limit body size (64KB for token forms)
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)

	if err := r.ParseForm(); err != nil {
		log.Warn("failed to parse form", logger.Err(err))
		writeError(w, http.StatusBadRequest, "invalid_request", "Invalid form data")
		return
	}

	req := svc.TokenRequest{
		GrantType:        strings.TrimSpace(r.PostForm.Get("grant_type")),
		Ticket:           strings.TrimSpace(r.PostForm.Get("ticket")),
		ClaimToken:       strings.TrimSpace(r.PostForm.Get("claim_token")),
		ClaimTokenFormat: strings.TrimSpace(r.PostForm.Get("claim_token_format")),
		PCT:              strings.TrimSpace(r.PostForm.Get("pct")),
		RPT:              strings.TrimSpace(r.PostForm.Get("rpt")),
		Scope:            strings.TrimSpace(r.PostForm.Get("scope")),
		ClientID:         strings.TrimSpace(r.PostForm.Get("client_id")),
		ClientSecret:     r.PostForm.Get("client_secret"),
	}
	// Client credentials también pueden venir por Basic auth.
	if req.ClientID == "" {
		if id, secret, ok := r.BasicAuth(); ok {
			req.ClientID, req.ClientSecret = id, secret
		}
	}

	resp, need, err := c.service.GrantByTicket(ctx, req)
	if err != nil {
		code := umaerr.Code(err)
		metrics.DenialsTotal.WithLabelValues(code).Inc()
		if umaerr.Status(err) >= http.StatusInternalServerError {
			log.Error("token endpoint error", logger.Err(err))
		}
		writeError(w, umaerr.Status(err), code, err.Error())
		return
	}
	if need != nil {
		writeJSON(w, http.StatusForbidden, needInfoResponse{
			Error:          "need_info",
			Ticket:         need.Ticket,
			RedirectUser:   need.RedirectUser,
			RequiredClaims: need.RequiredClaims,
		})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type needInfoResponse struct {
	Error          string `json:"error"`
	Ticket         string `json:"ticket"`
	RedirectUser   string `json:"redirect_user"`
	RequiredClaims any    `json:"required_claims"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, errorCode, description string) {
	writeJSON(w, status, map[string]string{
		"error":             errorCode,
		"error_description": description,
	})
}
