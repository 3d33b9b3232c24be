// Package umaerr define la taxonomía de errores del flujo UMA y su mapeo a
// códigos de wire + HTTP status. Los services retornan estos sentinels; los
// controllers los traducen con Code/Status.
package umaerr

import (
	"errors"
	"net/http"
)

var (
	ErrInvalidTicket            = errors.New("invalid_ticket")
	ErrExpiredTicket            = errors.New("expired_ticket")
	ErrInvalidRPT               = errors.New("invalid_rpt")
	ErrInvalidPCT               = errors.New("invalid_pct")
	ErrInvalidClaimToken        = errors.New("invalid_claim_token")
	ErrInvalidClaimTokenFormat  = errors.New("invalid_claim_token_format")
	ErrForbiddenByPolicy        = errors.New("forbidden_by_policy")
	ErrDisabledClient           = errors.New("disabled_client")
	ErrUnauthorizedClient       = errors.New("unauthorized_client")
	ErrAccessDenied             = errors.New("access_denied")
	ErrInvalidResourceID        = errors.New("invalid_resource_id")
	ErrInvalidScope             = errors.New("invalid_scope")
	ErrInvalidClientID          = errors.New("invalid_client_id")
	ErrInvalidClaimsRedirectURI = errors.New("invalid_claims_redirect_uri")
	ErrInvalidGrantType         = errors.New("invalid_grant_type")
	ErrServerError              = errors.New("server_error")
)

// Code devuelve el código machine-readable del error, o "server_error" para
// errores fuera de la taxonomía.
func Code(err error) string {
	for _, e := range taxonomy {
		if errors.Is(err, e) {
			return e.Error()
		}
	}
	return ErrServerError.Error()
}

// Status devuelve el HTTP status correspondiente al error.
func Status(err error) int {
	switch {
	case errors.Is(err, ErrInvalidPCT),
		errors.Is(err, ErrUnauthorizedClient):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbiddenByPolicy),
		errors.Is(err, ErrDisabledClient),
		errors.Is(err, ErrAccessDenied):
		return http.StatusForbidden
	case errors.Is(err, ErrServerError):
		return http.StatusInternalServerError
	default:
		for _, e := range taxonomy {
			if errors.Is(err, e) {
				return http.StatusBadRequest
			}
		}
		return http.StatusInternalServerError
	}
}

var taxonomy = []error{
	ErrInvalidTicket, ErrExpiredTicket, ErrInvalidRPT, ErrInvalidPCT,
	ErrInvalidClaimToken, ErrInvalidClaimTokenFormat, ErrForbiddenByPolicy,
	ErrDisabledClient, ErrUnauthorizedClient, ErrAccessDenied,
	ErrInvalidResourceID, ErrInvalidScope, ErrInvalidClientID,
	ErrInvalidClaimsRedirectURI, ErrInvalidGrantType, ErrServerError,
}
