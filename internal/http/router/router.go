// Package router arma el árbol de rutas HTTP del servicio.
package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	adminctrl "github.com/dropDatabas3/ticketgate/internal/http/controllers/admin"
	metactrl "github.com/dropDatabas3/ticketgate/internal/http/controllers/meta"
	umactrl "github.com/dropDatabas3/ticketgate/internal/http/controllers/uma"
	mw "github.com/dropDatabas3/ticketgate/internal/http/middlewares"
	"github.com/dropDatabas3/ticketgate/internal/rate"
	"github.com/dropDatabas3/ticketgate/internal/store/core"
)

// Deps contiene todo lo que el router necesita para registrar rutas.
type Deps struct {
	Repo core.Repository

	Token     *umactrl.TokenController
	Gathering *umactrl.GatheringController
	Meta      *metactrl.Controller
	Admin     *adminctrl.Controller

	// RateLimiter es opcional; nil deshabilita el límite del token endpoint.
	RateLimiter rate.Limiter
	AdminAPIKey string
}

// New construye el router con middlewares base (request id + logging +
// recover) y todas las rutas del servicio.
func New(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(mw.WithRequestID(), mw.WithLogging(), mw.WithRecover())

	// Token endpoint, con rate limit si está configurado.
	tokenHandler := http.HandlerFunc(d.Token.Token)
	if d.RateLimiter != nil {
		r.Method(http.MethodPost, "/uma/token",
			mw.Chain(tokenHandler, mw.WithRateLimit(d.RateLimiter, mw.IPPathRateKey)))
	} else {
		r.Post("/uma/token", tokenHandler)
	}

	// Claims gathering interactivo.
	r.Get("/uma/gathering", d.Gathering.Start)
	r.Post("/uma/gathering", d.Gathering.Submit)
	r.Post("/uma/gathering/reset", d.Gathering.Reset)

	// Metadata.
	r.Get("/.well-known/uma2-configuration", d.Meta.Discovery)
	r.Head("/.well-known/uma2-configuration", d.Meta.Discovery)
	r.Get("/.well-known/jwks.json", d.Meta.JWKS)
	r.Head("/.well-known/jwks.json", d.Meta.JWKS)

	// Superficie administrativa, detrás de la API key.
	r.Route("/admin", func(ar chi.Router) {
		ar.Use(mw.RequireAPIKey(d.AdminAPIKey))
		ar.Post("/permissions", d.Admin.RegisterPermissions)
		ar.Post("/resources", d.Admin.CreateResource)
		ar.Post("/clients", d.Admin.CreateClient)
		ar.Put("/scopes/{id}", d.Admin.UpsertScope)
		ar.Post("/tickets/invalidate", d.Admin.InvalidateTicket)
		ar.Post("/pcts/revoke", d.Admin.RevokePCT)
		ar.Post("/rpts/revoke", d.Admin.RevokeRPT)
		ar.Post("/policies/reload", d.Admin.ReloadPolicies)
	})

	// Observabilidad.
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		status, code := "ok", http.StatusOK
		if err := d.Repo.Ping(req.Context()); err != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": status})
	})

	return r
}
