// Package meta sirve el documento de discovery UMA2 y el JWKS de la key
// que firma los RPT.
package meta

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	jwtx "github.com/dropDatabas3/ticketgate/internal/jwt"
	"github.com/dropDatabas3/ticketgate/internal/observability/logger"
)

// Controller maneja /.well-known/uma2-configuration y /.well-known/jwks.json
type Controller struct {
	issuer   string
	keystore *jwtx.Keystore
}

func NewController(issuer string, ks *jwtx.Keystore) *Controller {
	return &Controller{issuer: strings.TrimRight(issuer, "/"), keystore: ks}
}

// Discovery maneja GET/HEAD /.well-known/uma2-configuration
func (c *Controller) Discovery(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	// Cache razonable para discovery
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "public, max-age=600, must-revalidate")
	w.Header().Set("Expires", time.Now().Add(10*time.Minute).UTC().Format(http.TimeFormat))

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	doc := map[string]any{
		"issuer":                      c.issuer,
		"token_endpoint":              c.issuer + "/uma/token",
		"jwks_uri":                    c.issuer + "/.well-known/jwks.json",
		"claims_interaction_endpoint": c.issuer + "/uma/gathering",
		"grant_types_supported": []string{
			"urn:ietf:params:oauth:grant-type:uma-ticket",
		},
		"uma_profiles_supported":   []string{},
		"response_types_supported": []string{"token"},
	}
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(doc)
}

// JWKS maneja GET/HEAD /.well-known/jwks.json
func (c *Controller) JWKS(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.From(ctx).With(logger.Layer("controller"), logger.Op("meta.jwks"))

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")

	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	log.Debug("serving jwks")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(c.keystore.JWKS())
}
