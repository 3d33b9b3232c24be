package jwt

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
)

func TestSignAndParse(t *testing.T) {
	ks, err := NewKeystore()
	if err != nil {
		t.Fatal(err)
	}
	iss := NewIssuer("https://uma.test", ks)

	signed, kid, err := iss.SignRaw(jwtv5.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if kid == "" {
		t.Fatal("kid should be set")
	}

	claims, err := ParseEdDSA(signed, ks, "https://uma.test")
	if err != nil {
		t.Fatal(err)
	}
	if claims["sub"] != "user-1" {
		t.Fatalf("claims: %v", claims)
	}
	if claims["iss"] != "https://uma.test" {
		t.Fatal("iss must be stamped by the issuer")
	}
}

func TestParse_WrongIssuer(t *testing.T) {
	ks, _ := NewKeystore()
	iss := NewIssuer("https://uma.test", ks)
	signed, _, err := iss.SignRaw(jwtv5.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseEdDSA(signed, ks, "https://other.example"); !errors.Is(err, ErrInvalidIssuer) {
		t.Fatalf("expected ErrInvalidIssuer, got %v", err)
	}
}

func TestParse_WrongKey(t *testing.T) {
	ks1, _ := NewKeystore()
	ks2, _ := NewKeystore()
	signed, _, err := NewIssuer("https://uma.test", ks1).SignRaw(jwtv5.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseEdDSA(signed, ks2, "https://uma.test"); !errors.Is(err, ErrInvalidJWT) {
		t.Fatalf("expected ErrInvalidJWT, got %v", err)
	}
}

func TestParse_Expired(t *testing.T) {
	ks, _ := NewKeystore()
	signed, _, err := NewIssuer("https://uma.test", ks).SignRaw(jwtv5.MapClaims{
		"exp": time.Now().Add(-time.Hour).Unix(),
	})
	if err != nil {
		t.Fatal(err)
	}
	// La librería ya rechaza exp vencido al validar.
	if _, err := ParseEdDSA(signed, ks, "https://uma.test"); err == nil {
		t.Fatal("expired token must not parse")
	}
}

func TestParseUnverified(t *testing.T) {
	ks, _ := NewKeystore()
	signed, _, err := NewIssuer("https://uma.test", ks).SignRaw(jwtv5.MapClaims{"sub": "user-1"})
	if err != nil {
		t.Fatal(err)
	}

	claims, err := ParseUnverified(signed)
	if err != nil {
		t.Fatal(err)
	}
	if claims["sub"] != "user-1" {
		t.Fatalf("claims: %v", claims)
	}

	if _, err := ParseUnverified("garbage"); !errors.Is(err, ErrInvalidJWT) {
		t.Fatalf("expected ErrInvalidJWT, got %v", err)
	}
}

func TestKeystore_LoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys.json")

	// Primer load: archivo inexistente ⇒ genera y persiste.
	ks1, err := LoadKeystore(path)
	if err != nil {
		t.Fatal(err)
	}
	kid1, _, pub1, err := ks1.Active()
	if err != nil {
		t.Fatal(err)
	}

	// Segundo load: misma clave.
	ks2, err := LoadKeystore(path)
	if err != nil {
		t.Fatal(err)
	}
	kid2, _, pub2, err := ks2.Active()
	if err != nil {
		t.Fatal(err)
	}
	if kid1 != kid2 || !pub1.Equal(pub2) {
		t.Fatal("reloaded keystore must expose the same active key")
	}

	// Un token firmado antes del reload se valida después.
	signed, _, err := NewIssuer("https://uma.test", ks1).SignRaw(jwtv5.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := ParseEdDSA(signed, ks2, "https://uma.test"); err != nil {
		t.Fatalf("token must survive a keystore reload: %v", err)
	}
}

func TestKeystore_JWKS(t *testing.T) {
	ks, _ := NewKeystore()
	doc := ks.JWKS()
	keys, ok := doc["keys"].([]map[string]any)
	if !ok || len(keys) != 1 {
		t.Fatalf("jwks: %v", doc)
	}
	k := keys[0]
	if k["kty"] != "OKP" || k["crv"] != "Ed25519" || k["alg"] != "EdDSA" || k["x"] == "" {
		t.Fatalf("jwk fields: %v", k)
	}
}
