package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dropDatabas3/ticketgate/internal/security/password"
	"github.com/dropDatabas3/ticketgate/internal/store/core"
	"github.com/dropDatabas3/ticketgate/internal/store/memory"
	"github.com/dropDatabas3/ticketgate/internal/uma/permission"
	"github.com/dropDatabas3/ticketgate/internal/uma/policy"
)

func newTestController(t *testing.T) (*Controller, core.Repository, http.Handler) {
	t.Helper()
	repo := memory.New()
	c := NewController(repo, permission.NewService(repo, time.Hour), policy.NewRegistry(nil))

	r := chi.NewRouter()
	r.Post("/admin/permissions", c.RegisterPermissions)
	r.Post("/admin/resources", c.CreateResource)
	r.Post("/admin/clients", c.CreateClient)
	r.Put("/admin/scopes/{id}", c.UpsertScope)
	r.Post("/admin/tickets/invalidate", c.InvalidateTicket)
	r.Post("/admin/pcts/revoke", c.RevokePCT)
	r.Post("/admin/rpts/revoke", c.RevokeRPT)
	return c, repo, r
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestRegisterPermissions(t *testing.T) {
	_, repo, h := newTestController(t)
	ctx := context.Background()
	if err := repo.CreateResource(ctx, &core.Resource{ID: "res-1", Scopes: []string{"read", "write"}}); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, h, http.MethodPost, "/admin/permissions",
		`[{"resource_id":"res-1","resource_scopes":["read"]}]`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	ticket := body["ticket"]
	if ticket == "" {
		t.Fatal("response must carry a ticket")
	}
	perms, err := repo.GetPermissionsByTicket(ctx, ticket)
	if err != nil || len(perms) != 1 {
		t.Fatalf("ticket must resolve: (%v, %v)", perms, err)
	}
}

func TestRegisterPermissions_Rejections(t *testing.T) {
	_, repo, h := newTestController(t)
	ctx := context.Background()
	if err := repo.CreateResource(ctx, &core.Resource{ID: "res-1", Scopes: []string{"read"}}); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		name string
		body string
		code string
	}{
		{"unknown resource", `[{"resource_id":"ghost","resource_scopes":["read"]}]`, "invalid_resource_id"},
		{"undeclared scope", `[{"resource_id":"res-1","resource_scopes":["admin"]}]`, "invalid_scope"},
		{"bad scope name", `[{"resource_id":"res-1","resource_scopes":["BAD"]}]`, "invalid_scope"},
		{"empty batch", `[]`, "invalid_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := doJSON(t, h, http.MethodPost, "/admin/permissions", tc.body)
			if w.Code != http.StatusBadRequest {
				t.Fatalf("status %d", w.Code)
			}
			var body map[string]string
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			if body["error"] != tc.code {
				t.Fatalf("error %q, want %q", body["error"], tc.code)
			}
		})
	}
}

func TestRegisterPermissions_ExpressionScopes(t *testing.T) {
	_, repo, h := newTestController(t)
	// Resource expression-only: los scopes válidos salen del data de la expresión.
	res := &core.Resource{
		ID:              "res-expr",
		ScopeExpression: `{"rule": {"and": [{"var": 0}, {"var": 1}]}, "data": ["read", "write"]}`,
	}
	if err := repo.CreateResource(context.Background(), res); err != nil {
		t.Fatal(err)
	}

	w := doJSON(t, h, http.MethodPost, "/admin/permissions",
		`[{"resource_id":"res-expr","resource_scopes":["read","write"]}]`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expression data scopes must be registrable: %d %s", w.Code, w.Body.String())
	}
}

func TestCreateResource(t *testing.T) {
	_, _, h := newTestController(t)

	w := doJSON(t, h, http.MethodPost, "/admin/resources",
		`{"id":"res-1","name":"Docs","scopes":["read"]}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}

	// Repetido ⇒ conflicto.
	w = doJSON(t, h, http.MethodPost, "/admin/resources",
		`{"id":"res-1","name":"Docs","scopes":["read"]}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("duplicate must conflict: %d", w.Code)
	}

	// Sin scopes ni expression ⇒ rechazo.
	w = doJSON(t, h, http.MethodPost, "/admin/resources", `{"id":"res-2","name":"Empty"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("unprotectable resource must be rejected: %d", w.Code)
	}
}

func TestCreateClient_HashesAndRedactsSecret(t *testing.T) {
	_, repo, h := newTestController(t)

	w := doJSON(t, h, http.MethodPost, "/admin/clients",
		`{"client_id":"c1","name":"App","secret":"s3cret","rpt_as_jwt":true}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	if strings.Contains(w.Body.String(), "s3cret") || strings.Contains(w.Body.String(), "argon2id") {
		t.Fatal("response must not leak the secret or its hash")
	}

	stored, err := repo.GetClient(context.Background(), "c1")
	if err != nil {
		t.Fatal(err)
	}
	if !stored.RPTAsJWT {
		t.Fatal("rpt_as_jwt flag lost")
	}
	if !password.Verify("s3cret", stored.SecretHash) {
		t.Fatal("stored hash must verify the original secret")
	}
}

func TestUpsertScope(t *testing.T) {
	_, repo, h := newTestController(t)

	w := doJSON(t, h, http.MethodPut, "/admin/scopes/document:read", `{"policies":["pol-a"]}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status %d: %s", w.Code, w.Body.String())
	}
	sc, err := repo.GetScope(context.Background(), "document:read")
	if err != nil || len(sc.Policies) != 1 || sc.Policies[0] != "pol-a" {
		t.Fatalf("got (%v, %v)", sc, err)
	}

	w = doJSON(t, h, http.MethodPut, "/admin/scopes/BAD", `{"policies":[]}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("invalid scope id must be rejected: %d", w.Code)
	}
}

func TestRevocations(t *testing.T) {
	_, repo, h := newTestController(t)
	ctx := context.Background()
	now := time.Now().UTC()

	if err := repo.CreatePermissions(ctx, []*core.Permission{
		{ID: "p1", Ticket: "t1", Status: core.PermissionActive, CreatedAt: now, ExpiresAt: now.Add(time.Hour)},
	}); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreatePCT(ctx, &core.PCT{Code: "pct-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}
	if err := repo.CreateRPT(ctx, &core.RPT{Code: "rpt-1", CreatedAt: now, ExpiresAt: now.Add(time.Hour)}); err != nil {
		t.Fatal(err)
	}

	if w := doJSON(t, h, http.MethodPost, "/admin/tickets/invalidate", `{"ticket":"t1"}`); w.Code != http.StatusOK {
		t.Fatalf("ticket invalidate: %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodPost, "/admin/pcts/revoke", `{"code":"pct-1"}`); w.Code != http.StatusOK {
		t.Fatalf("pct revoke: %d", w.Code)
	}
	if w := doJSON(t, h, http.MethodPost, "/admin/rpts/revoke", `{"code":"rpt-1"}`); w.Code != http.StatusOK {
		t.Fatalf("rpt revoke: %d", w.Code)
	}

	// No encontrados ⇒ 404.
	if w := doJSON(t, h, http.MethodPost, "/admin/rpts/revoke", `{"code":"ghost"}`); w.Code != http.StatusNotFound {
		t.Fatalf("unknown rpt: %d", w.Code)
	}
	// Payload sin el campo ⇒ 400.
	if w := doJSON(t, h, http.MethodPost, "/admin/pcts/revoke", `{}`); w.Code != http.StatusBadRequest {
		t.Fatalf("missing field: %d", w.Code)
	}
}
