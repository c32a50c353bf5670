// Copyright 2025 Lantern Protocol
//
// Package keyring loads Ed25519 public keys for checkpoint signature
// verification. A key ring is a directory of <kid>.pem files; a single
// PEM file is treated as kid "default" and is only matched when no
// explicit kid match exists and --strict-kid was not requested.

package keyring

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultKID is used for a single-file key ring with no explicit kid.
const DefaultKID = "default"

// Ring holds loaded Ed25519 public keys indexed by kid.
type Ring struct {
	keys map[string]ed25519.PublicKey
}

// Load reads a key ring from path, which may be a single .pem file or a
// directory of <kid>.pem files.
func Load(path string) (*Ring, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat key path: %w", err)
	}

	r := &Ring{keys: make(map[string]ed25519.PublicKey)}

	if !info.IsDir() {
		pub, err := parsePEMFile(path)
		if err != nil {
			return nil, err
		}
		r.keys[DefaultKID] = pub
		return r, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("read key ring dir: %w", err)
	}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".pem") {
			continue
		}
		kid := strings.TrimSuffix(e.Name(), ".pem")
		pub, err := parsePEMFile(filepath.Join(path, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", e.Name(), err)
		}
		r.keys[kid] = pub
	}
	return r, nil
}

func parsePEMFile(path string) (ed25519.PublicKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pem: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse public key: %w", err)
	}
	edPub, ok := pub.(ed25519.PublicKey)
	if !ok {
		return nil, fmt.Errorf("key in %s is not an Ed25519 public key", path)
	}
	return edPub, nil
}

// Resolve looks up the public key for kid. If no explicit kid is present
// in the ring and strictKID is false, it falls back to the single-key
// ring matched as DefaultKID or as the ring's only entry. With
// strictKID set, only an exact kid match is accepted.
func (r *Ring) Resolve(kid string, strictKID bool) (ed25519.PublicKey, bool) {
	if pub, ok := r.keys[kid]; ok {
		return pub, true
	}
	if strictKID {
		return nil, false
	}
	if len(r.keys) == 1 {
		for _, pub := range r.keys {
			return pub, true
		}
	}
	if pub, ok := r.keys[DefaultKID]; ok {
		return pub, true
	}
	return nil, false
}

// EncodePublicKeyPEM encodes an Ed25519 public key as a PEM block, for
// use by key-generation tooling and tests.
func EncodePublicKeyPEM(pub ed25519.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
