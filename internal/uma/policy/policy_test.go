package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dropDatabas3/ticketgate/internal/uma/claims"
)

type scripted struct {
	allow     bool
	err       error
	claims    []ClaimDefinition
	gathering string
	delay     time.Duration
}

func (s *scripted) Authorize(ctx context.Context, actx *AuthorizationContext) (bool, error) {
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.allow, s.err
}

func (s *scripted) RequiredClaims(ctx context.Context, actx *AuthorizationContext) ([]ClaimDefinition, error) {
	return s.claims, s.err
}

func (s *scripted) GatheringScriptName(ctx context.Context, actx *AuthorizationContext) (string, error) {
	return s.gathering, s.err
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)
	if _, ok := r.Get("missing"); ok {
		t.Fatal("empty registry must not resolve anything")
	}

	p := &scripted{allow: true}
	r.Register("pol-a", p)
	got, ok := r.Get("pol-a")
	if !ok || got != p {
		t.Fatalf("got (%v, %v)", got, ok)
	}

	// Register reemplaza.
	p2 := &scripted{allow: false}
	r.Register("pol-a", p2)
	if got, _ := r.Get("pol-a"); got != p2 {
		t.Fatal("register must replace an existing ref")
	}

	if refs := r.Refs(); len(refs) != 1 || refs[0] != "pol-a" {
		t.Fatalf("unexpected refs: %v", refs)
	}
}

func TestRegistry_ReloadSwapsWholeSet(t *testing.T) {
	loads := 0
	r := NewRegistry(func(ctx context.Context) (map[string]Policy, error) {
		loads++
		return map[string]Policy{"pol-b": &scripted{allow: true}}, nil
	})
	r.Register("pol-a", &scripted{})

	if err := r.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Get("pol-a"); ok {
		t.Fatal("reload must replace the whole set, pol-a should be gone")
	}
	if _, ok := r.Get("pol-b"); !ok {
		t.Fatal("pol-b should be loaded")
	}
	if loads != 1 {
		t.Fatalf("expected 1 load, got %d", loads)
	}
}

func TestRegistry_ReloadError(t *testing.T) {
	boom := errors.New("script host down")
	r := NewRegistry(func(ctx context.Context) (map[string]Policy, error) {
		return nil, boom
	})
	r.Register("pol-a", &scripted{})

	if err := r.Reload(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected loader error, got %v", err)
	}
	// El set previo sobrevive a un reload fallido.
	if _, ok := r.Get("pol-a"); !ok {
		t.Fatal("failed reload must not clear the current set")
	}
}

func TestRegistry_ConcurrentReadersDuringReload(t *testing.T) {
	r := NewRegistry(func(ctx context.Context) (map[string]Policy, error) {
		return map[string]Policy{"pol-a": &scripted{allow: true}}, nil
	})
	r.Register("pol-a", &scripted{})

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				if _, ok := r.Get("pol-a"); !ok {
					t.Error("reader observed a missing ref mid-reload")
					return
				}
			}
		}()
	}
	for i := 0; i < 10; i++ {
		if err := r.Reload(context.Background()); err != nil {
			t.Fatal(err)
		}
	}
	wg.Wait()
}

func TestRegistry_ReloadWithoutLoaderKeepsSet(t *testing.T) {
	r := NewRegistry(nil)
	r.Register("pol-a", &scripted{allow: true})

	if err := r.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Get("pol-a"); !ok {
		t.Fatal("reload without loader must preserve the registered set")
	}
}

func writePolicyFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestFileLoader(t *testing.T) {
	path := writePolicyFile(t, `
policies:
  - ref: pol-email
    required_claims: [email]
    gathering_id: email-flow
  - ref: pol-country
    required_claims: [country]
    match_claims:
      country: AR
`)
	r := NewRegistry(FileLoader(path))
	if err := r.Reload(context.Background()); err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()

	pol, ok := r.Get("pol-email")
	if !ok {
		t.Fatal("pol-email must load")
	}
	defs, err := pol.RequiredClaims(ctx, nil)
	if err != nil || len(defs) != 1 || defs[0].Name != "email" {
		t.Fatalf("got (%v, %v)", defs, err)
	}
	if g, _ := pol.GatheringScriptName(ctx, nil); g != "email-flow" {
		t.Fatalf("got %q", g)
	}

	// Sin el claim ⇒ deny; con el claim ⇒ grant.
	deny := NewContext(nil, nil, nil, claims.New(nil, nil, ""))
	if got, _ := pol.Authorize(ctx, deny); got {
		t.Fatal("missing claim must deny")
	}
	grant := NewContext(nil, nil, nil, claims.New(map[string]any{"email": "a@x"}, nil, ""))
	if got, _ := pol.Authorize(ctx, grant); !got {
		t.Fatal("present claim must grant")
	}

	// match_claims compara el valor.
	country, _ := r.Get("pol-country")
	wrong := NewContext(nil, nil, nil, claims.New(map[string]any{"country": "UY"}, nil, ""))
	if got, _ := country.Authorize(ctx, wrong); got {
		t.Fatal("mismatched claim value must deny")
	}
	right := NewContext(nil, nil, nil, claims.New(map[string]any{"country": "AR"}, nil, ""))
	if got, _ := country.Authorize(ctx, right); !got {
		t.Fatal("matching claim value must grant")
	}
}

func TestFileLoader_Rejections(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing ref", "policies:\n  - required_claims: [email]\n"},
		{"duplicate ref", "policies:\n  - ref: a\n  - ref: a\n"},
		{"malformed yaml", "policies: ["},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			loader := FileLoader(writePolicyFile(t, tc.body))
			if _, err := loader(context.Background()); err == nil {
				t.Fatal("expected an error")
			}
		})
	}

	loader := FileLoader(filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := loader(context.Background()); err == nil {
		t.Fatal("missing file must error")
	}
}

func TestGateway_AuthorizeFailSafe(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("allow", &scripted{allow: true})
	reg.Register("deny", &scripted{allow: false})
	reg.Register("broken", &scripted{allow: true, err: errors.New("script error")})
	gw := NewGateway(reg, time.Second)
	ctx := context.Background()
	actx := NewContext(nil, nil, nil, nil)

	if !gw.Authorize(ctx, "allow", actx) {
		t.Fatal("allow policy should grant")
	}
	if gw.Authorize(ctx, "deny", actx) {
		t.Fatal("deny policy should deny")
	}
	if gw.Authorize(ctx, "broken", actx) {
		t.Fatal("a failing policy must deny")
	}
	if gw.Authorize(ctx, "unknown", actx) {
		t.Fatal("an unknown ref must deny")
	}
}

func TestGateway_Timeout(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("slow", &scripted{allow: true, delay: 200 * time.Millisecond})
	gw := NewGateway(reg, 20*time.Millisecond)

	start := time.Now()
	if gw.Authorize(context.Background(), "slow", NewContext(nil, nil, nil, nil)) {
		t.Fatal("a timed-out policy must deny")
	}
	if elapsed := time.Since(start); elapsed > 150*time.Millisecond {
		t.Fatalf("timeout did not cut the call, took %v", elapsed)
	}
}

func TestGateway_RequiredClaimsAndGathering(t *testing.T) {
	reg := NewRegistry(nil)
	reg.Register("ok", &scripted{claims: []ClaimDefinition{{Name: "email"}}, gathering: "email-flow"})
	reg.Register("broken", &scripted{err: errors.New("nope")})
	gw := NewGateway(reg, time.Second)
	ctx := context.Background()
	actx := NewContext(nil, nil, nil, nil)

	defs := gw.RequiredClaims(ctx, "ok", actx)
	if len(defs) != 1 || defs[0].Name != "email" {
		t.Fatalf("unexpected claims: %v", defs)
	}
	if got := gw.RequiredClaims(ctx, "broken", actx); got != nil {
		t.Fatalf("failures must map to no required claims, got %v", got)
	}
	if got := gw.RequiredClaims(ctx, "unknown", actx); got != nil {
		t.Fatalf("unknown refs must map to no required claims, got %v", got)
	}

	if got := gw.GatheringScriptName(ctx, "ok", actx); got != "email-flow" {
		t.Fatalf("expected email-flow, got %q", got)
	}
	if got := gw.GatheringScriptName(ctx, "broken", actx); got != "" {
		t.Fatalf("failures must map to empty script name, got %q", got)
	}
}

func TestAuthorizationContext_RedirectParams(t *testing.T) {
	actx := NewContext(nil, []string{"read"}, nil, nil)
	actx.AddRedirectParam("gathering_id", "email-flow")
	actx.AddRedirectParam("gathering_id", "country-flow")

	got := actx.RedirectParams()["gathering_id"]
	if len(got) != 2 || got[0] != "email-flow" || got[1] != "country-flow" {
		t.Fatalf("params must accumulate in order: %v", got)
	}
}
