package rpt

import (
	"context"
	"errors"
	"testing"
	"time"

	jwtx "github.com/dropDatabas3/ticketgate/internal/jwt"
	"github.com/dropDatabas3/ticketgate/internal/store/core"
	"github.com/dropDatabas3/ticketgate/internal/store/memory"
	"github.com/dropDatabas3/ticketgate/internal/uma/umaerr"
)

func testIssuer(t *testing.T) *jwtx.Issuer {
	t.Helper()
	ks, err := jwtx.NewKeystore()
	if err != nil {
		t.Fatal(err)
	}
	return jwtx.NewIssuer("https://uma.test", ks)
}

func TestValidate_BlankIsOptional(t *testing.T) {
	m := NewManager(memory.New(), nil, time.Hour)
	got, err := m.Validate(context.Background(), "")
	if err != nil || got != nil {
		t.Fatalf("blank rpt should be (nil, nil), got (%v, %v)", got, err)
	}
}

func TestValidate_UnknownExpiredRevoked(t *testing.T) {
	repo := memory.New()
	m := NewManager(repo, nil, time.Hour)
	ctx := context.Background()

	if _, err := m.Validate(ctx, "missing"); !errors.Is(err, umaerr.ErrInvalidRPT) {
		t.Fatalf("expected ErrInvalidRPT, got %v", err)
	}

	now := time.Now().UTC()
	expired := &core.RPT{Code: "r-exp", ClientID: "c", CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	revoked := &core.RPT{Code: "r-rev", ClientID: "c", CreatedAt: now, ExpiresAt: now.Add(time.Hour), Revoked: true}
	for _, r := range []*core.RPT{expired, revoked} {
		if err := repo.CreateRPT(ctx, r); err != nil {
			t.Fatal(err)
		}
		if _, err := m.Validate(ctx, r.Code); !errors.Is(err, umaerr.ErrInvalidRPT) {
			t.Fatalf("expected ErrInvalidRPT for %s, got %v", r.Code, err)
		}
	}
}

func TestIssue_Opaque(t *testing.T) {
	repo := memory.New()
	m := NewManager(repo, nil, time.Hour)
	ctx := context.Background()

	client := &core.Client{ClientID: "client-1"}
	perms := []*core.Permission{{ID: "p1", ResourceID: "res-1", Scopes: []string{"read"}}}

	rpt, upgraded, err := m.IssueOrUpgrade(ctx, client, perms, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	if upgraded {
		t.Fatal("fresh issue should not report upgraded")
	}
	if rpt.Code == "" || len(rpt.PermissionIDs) != 1 || rpt.PermissionIDs[0] != "p1" {
		t.Fatalf("unexpected rpt: %+v", rpt)
	}

	stored, err := m.Validate(ctx, rpt.Code)
	if err != nil {
		t.Fatal(err)
	}
	if stored.ClientID != "client-1" {
		t.Fatalf("wrong client binding: %s", stored.ClientID)
	}
}

func TestIssue_SignedJWT(t *testing.T) {
	repo := memory.New()
	iss := testIssuer(t)
	m := NewManager(repo, iss, time.Hour)
	ctx := context.Background()

	client := &core.Client{ClientID: "client-1", RPTAsJWT: true}
	exp := time.Now().UTC().Add(time.Hour)
	perms := []*core.Permission{{ID: "p1", ResourceID: "res-1", Scopes: []string{"read", "write"}, ExpiresAt: exp}}

	rpt, _, err := m.IssueOrUpgrade(ctx, client, perms, nil, map[string]any{"email": "a@example.com"})
	if err != nil {
		t.Fatal(err)
	}

	claims, err := jwtx.ParseEdDSA(rpt.Code, iss.Keys, "https://uma.test")
	if err != nil {
		t.Fatalf("rpt is not a valid signed container: %v", err)
	}
	if claims["client_id"] != "client-1" {
		t.Fatalf("missing client binding in payload: %v", claims)
	}
	if _, ok := claims["permissions"]; !ok {
		t.Fatal("payload must carry permission summaries")
	}
	if _, ok := claims["pct_claims"]; !ok {
		t.Fatal("payload must carry the pct claim snapshot")
	}
}

func TestUpgrade_AppendsWithoutDiscarding(t *testing.T) {
	repo := memory.New()
	m := NewManager(repo, nil, time.Hour)
	ctx := context.Background()

	client := &core.Client{ClientID: "client-1"}
	first := []*core.Permission{{ID: "p1", ResourceID: "res-1"}}
	existing, _, err := m.IssueOrUpgrade(ctx, client, first, nil, nil)
	if err != nil {
		t.Fatal(err)
	}

	second := []*core.Permission{{ID: "p2", ResourceID: "res-2"}}
	upgradedRPT, upgraded, err := m.IssueOrUpgrade(ctx, client, second, existing, nil)
	if err != nil {
		t.Fatal(err)
	}
	if !upgraded {
		t.Fatal("upgrade flag should be true")
	}
	if upgradedRPT.Code != existing.Code {
		t.Fatal("upgrade must keep the same token code")
	}
	if len(upgradedRPT.PermissionIDs) != 2 || upgradedRPT.PermissionIDs[0] != "p1" || upgradedRPT.PermissionIDs[1] != "p2" {
		t.Fatalf("prior permissions must survive the upgrade: %v", upgradedRPT.PermissionIDs)
	}

	// Sin dedup: repetir el mismo permission lo agrega de nuevo.
	again, _, err := m.IssueOrUpgrade(ctx, client, second, upgradedRPT, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(again.PermissionIDs) != 3 {
		t.Fatalf("duplicate refs are kept as-is, got %v", again.PermissionIDs)
	}
}
