package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dropDatabas3/ticketgate/internal/store/core"
	"github.com/dropDatabas3/ticketgate/internal/store/memory"
	"github.com/dropDatabas3/ticketgate/internal/uma/policy"
	"github.com/dropDatabas3/ticketgate/internal/uma/scopes"
	"github.com/dropDatabas3/ticketgate/internal/uma/umaerr"
)

type stubPolicy struct{ allow bool }

func (s *stubPolicy) Authorize(ctx context.Context, actx *policy.AuthorizationContext) (bool, error) {
	return s.allow, nil
}

func (s *stubPolicy) RequiredClaims(ctx context.Context, actx *policy.AuthorizationContext) ([]policy.ClaimDefinition, error) {
	return nil, nil
}

func (s *stubPolicy) GatheringScriptName(ctx context.Context, actx *policy.AuthorizationContext) (string, error) {
	return "", nil
}

type world struct {
	repo core.Repository
	reg  *policy.Registry
}

func newWorld(t *testing.T) (*world, func(grantIfNoPolicies bool) *Engine) {
	t.Helper()
	repo := memory.New()
	reg := policy.NewRegistry(nil)
	gw := policy.NewGateway(reg, time.Second)
	w := &world{repo: repo, reg: reg}
	return w, func(grantIfNoPolicies bool) *Engine {
		return New(repo, gw, scopes.NewRegistry(repo), grantIfNoPolicies)
	}
}

func (w *world) resource(t *testing.T, scopeList []string, expr string) *core.Resource {
	t.Helper()
	res := &core.Resource{ID: uuid.NewString(), Name: "doc", Scopes: scopeList, ScopeExpression: expr}
	if err := w.repo.CreateResource(context.Background(), res); err != nil {
		t.Fatal(err)
	}
	return res
}

func (w *world) protect(t *testing.T, scopeID string, allow bool) {
	t.Helper()
	ref := "pol-" + scopeID
	w.reg.Register(ref, &stubPolicy{allow: allow})
	if err := w.repo.UpsertScope(context.Background(), &core.ScopeDescription{ID: scopeID, Policies: []string{ref}}); err != nil {
		t.Fatal(err)
	}
}

func (w *world) permission(t *testing.T, resourceID string, scopeList []string) *core.Permission {
	t.Helper()
	now := time.Now().UTC()
	p := &core.Permission{
		ID:         uuid.NewString(),
		Ticket:     uuid.NewString(),
		ResourceID: resourceID,
		Scopes:     scopeList,
		Status:     core.PermissionActive,
		CreatedAt:  now,
		ExpiresAt:  now.Add(time.Hour),
	}
	if err := w.repo.CreatePermissions(context.Background(), []*core.Permission{p}); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestEvaluate_UnknownResource(t *testing.T) {
	w, build := newWorld(t)
	e := build(true)
	p := w.permission(t, "no-such-resource", []string{"read"})
	err := e.Evaluate(context.Background(), nil, []*core.Permission{p})
	if !errors.Is(err, umaerr.ErrInvalidResourceID) {
		t.Fatalf("expected ErrInvalidResourceID, got %v", err)
	}
}

func TestEvaluate_AllPoliciesAllow(t *testing.T) {
	w, build := newWorld(t)
	e := build(false)
	res := w.resource(t, []string{"read", "write"}, "")
	w.protect(t, "read", true)
	w.protect(t, "write", true)
	p := w.permission(t, res.ID, []string{"read", "write"})

	if err := e.Evaluate(context.Background(), nil, []*core.Permission{p}); err != nil {
		t.Fatalf("expected grant, got %v", err)
	}
}

func TestEvaluate_AnyPolicyDenies(t *testing.T) {
	w, build := newWorld(t)
	e := build(false)
	res := w.resource(t, []string{"read", "write"}, "")
	w.protect(t, "read", true)
	w.protect(t, "write", false)
	p := w.permission(t, res.ID, []string{"read", "write"})

	err := e.Evaluate(context.Background(), nil, []*core.Permission{p})
	if !errors.Is(err, umaerr.ErrForbiddenByPolicy) {
		t.Fatalf("expected ErrForbiddenByPolicy, got %v", err)
	}
}

func TestEvaluate_NoPoliciesSwitch(t *testing.T) {
	w, build := newWorld(t)
	res := w.resource(t, []string{"read"}, "")
	p := w.permission(t, res.ID, []string{"read"})
	ctx := context.Background()

	if err := build(true).Evaluate(ctx, nil, []*core.Permission{p}); err != nil {
		t.Fatalf("grant-if-no-policies on: expected grant, got %v", err)
	}
	err := build(false).Evaluate(ctx, nil, []*core.Permission{p})
	if !errors.Is(err, umaerr.ErrForbiddenByPolicy) {
		t.Fatalf("grant-if-no-policies off: expected deny, got %v", err)
	}
}

const andExpr = `{"rule": {"and": [{"var": 0}, {"var": 1}]}, "data": ["read", "write"]}`
const orExpr = `{"rule": {"or": [{"var": 0}, {"var": 1}]}, "data": ["read", "write"]}`

func TestExpression_AndDeniesOnOneFalse(t *testing.T) {
	w, build := newWorld(t)
	e := build(false)
	res := w.resource(t, []string{"read", "write"}, andExpr)
	w.protect(t, "read", true)
	w.protect(t, "write", false)
	p := w.permission(t, res.ID, []string{"read", "write"})

	err := e.Evaluate(context.Background(), nil, []*core.Permission{p})
	if !errors.Is(err, umaerr.ErrForbiddenByPolicy) {
		t.Fatalf("and over [true,false] must deny, got %v", err)
	}
}

func TestExpression_AndGrantsAllScopes(t *testing.T) {
	w, build := newWorld(t)
	e := build(false)
	res := w.resource(t, []string{"read", "write"}, andExpr)
	w.protect(t, "read", true)
	w.protect(t, "write", true)
	p := w.permission(t, res.ID, []string{"read", "write"})

	if err := e.Evaluate(context.Background(), nil, []*core.Permission{p}); err != nil {
		t.Fatal(err)
	}
	if len(p.Scopes) != 2 {
		t.Fatalf("full grant must keep both scopes, got %v", p.Scopes)
	}
}

func TestExpression_OrPartialGrant(t *testing.T) {
	w, build := newWorld(t)
	e := build(false)
	res := w.resource(t, []string{"read", "write"}, orExpr)
	w.protect(t, "read", false)
	w.protect(t, "write", true)
	p := w.permission(t, res.ID, []string{"read", "write"})
	ctx := context.Background()

	if err := e.Evaluate(ctx, nil, []*core.Permission{p}); err != nil {
		t.Fatalf("or over [false,true] must grant, got %v", err)
	}
	if len(p.Scopes) != 1 || p.Scopes[0] != "write" {
		t.Fatalf("denied scope must be dropped, got %v", p.Scopes)
	}

	// El recorte queda persistido.
	stored, err := w.repo.GetPermissionsByTicket(ctx, p.Ticket)
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 1 || len(stored[0].Scopes) != 1 || stored[0].Scopes[0] != "write" {
		t.Fatalf("partial grant not persisted: %+v", stored)
	}
}

func TestExpression_ScopeSetMismatch(t *testing.T) {
	w, build := newWorld(t)
	e := build(false)
	res := w.resource(t, []string{"read", "write"}, andExpr)
	p := w.permission(t, res.ID, []string{"read"})

	err := e.Evaluate(context.Background(), nil, []*core.Permission{p})
	if !errors.Is(err, umaerr.ErrForbiddenByPolicy) {
		t.Fatalf("scope set mismatch must deny, got %v", err)
	}
}

func TestExpression_Malformed(t *testing.T) {
	w, build := newWorld(t)
	e := build(false)
	res := w.resource(t, []string{"read"}, `{"rule": {}, "data": ["read"]}`)
	p := w.permission(t, res.ID, []string{"read"})

	err := e.Evaluate(context.Background(), nil, []*core.Permission{p})
	if !errors.Is(err, umaerr.ErrForbiddenByPolicy) {
		t.Fatalf("malformed expression must deny, got %v", err)
	}
}
