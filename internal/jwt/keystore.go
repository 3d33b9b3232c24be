// Package jwt maneja las claves de firma y la emisión/validación de JWTs:
// el contenedor firmado del RPT y la validación de claim tokens (id_token).
package jwt

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"sync"
)

// Keystore mantiene la clave de firma activa (Ed25519) y las públicas por kid.
type Keystore struct {
	mu     sync.RWMutex
	active string
	keys   map[string]ed25519.PrivateKey
}

// NewKeystore genera un keystore con una clave activa nueva.
func NewKeystore() (*Keystore, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	kid := newKID(priv)
	return &Keystore{
		active: kid,
		keys:   map[string]ed25519.PrivateKey{kid: priv},
	}, nil
}

type keyFile struct {
	ActiveKID string            `json:"active_kid"`
	Seeds     map[string]string `json:"seeds"` // kid -> seed base64url
}

// LoadKeystore carga las claves desde un JSON {active_kid, seeds}.
// Si el archivo no existe, genera una clave nueva y la persiste.
func LoadKeystore(path string) (*Keystore, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		ks, err := NewKeystore()
		if err != nil {
			return nil, err
		}
		return ks, ks.saveTo(path)
	}
	if err != nil {
		return nil, err
	}
	var kf keyFile
	if err := json.Unmarshal(b, &kf); err != nil {
		return nil, err
	}
	ks := &Keystore{active: kf.ActiveKID, keys: make(map[string]ed25519.PrivateKey, len(kf.Seeds))}
	for kid, seedB64 := range kf.Seeds {
		seed, err := base64.RawURLEncoding.DecodeString(seedB64)
		if err != nil || len(seed) != ed25519.SeedSize {
			return nil, errors.New("keystore: bad seed for kid " + kid)
		}
		ks.keys[kid] = ed25519.NewKeyFromSeed(seed)
	}
	if _, ok := ks.keys[ks.active]; !ok {
		return nil, errors.New("keystore: active kid not present")
	}
	return ks, nil
}

func (ks *Keystore) saveTo(path string) error {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	kf := keyFile{ActiveKID: ks.active, Seeds: make(map[string]string, len(ks.keys))}
	for kid, priv := range ks.keys {
		kf.Seeds[kid] = base64.RawURLEncoding.EncodeToString(priv.Seed())
	}
	b, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0o600)
}

// Active devuelve (kid, priv, pub) de la clave activa.
func (ks *Keystore) Active() (string, ed25519.PrivateKey, ed25519.PublicKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	priv, ok := ks.keys[ks.active]
	if !ok {
		return "", nil, nil, errors.New("keystore: no active key")
	}
	return ks.active, priv, priv.Public().(ed25519.PublicKey), nil
}

// PublicKeyByKID resuelve la clave pública para un kid (active o retiring).
func (ks *Keystore) PublicKeyByKID(kid string) (ed25519.PublicKey, error) {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	priv, ok := ks.keys[kid]
	if !ok {
		return nil, errors.New("keystore: unknown kid")
	}
	return priv.Public().(ed25519.PublicKey), nil
}

// JWKS devuelve el documento JWKS con las claves públicas (OKP/Ed25519).
func (ks *Keystore) JWKS() map[string]any {
	ks.mu.RLock()
	defer ks.mu.RUnlock()
	keys := make([]map[string]any, 0, len(ks.keys))
	for kid, priv := range ks.keys {
		pub := priv.Public().(ed25519.PublicKey)
		keys = append(keys, map[string]any{
			"kty": "OKP",
			"crv": "Ed25519",
			"alg": "EdDSA",
			"use": "sig",
			"kid": kid,
			"x":   base64.RawURLEncoding.EncodeToString(pub),
		})
	}
	return map[string]any{"keys": keys}
}

// newKID deriva un kid corto y estable de la clave pública.
func newKID(priv ed25519.PrivateKey) string {
	pub := priv.Public().(ed25519.PublicKey)
	return hex.EncodeToString(pub[:4])
}
