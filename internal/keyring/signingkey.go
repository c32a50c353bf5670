// Copyright 2025 Lantern Protocol

package keyring

import (
	"crypto/ed25519"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// SigningKey is the opaque long-lived signing keypair the checkpoint
// signer (internal/checkpoint) treats as a single unit identified by Kid;
// the core never inspects key material beyond using it to sign.
type SigningKey struct {
	Kid        string
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
}

// LoadSigningKey reads a PKCS8-encoded Ed25519 private key from a PEM
// file and pairs it with the given kid.
func LoadSigningKey(path, kid string) (*SigningKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found in %s", path)
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	priv, ok := key.(ed25519.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("key in %s is not an Ed25519 private key", path)
	}
	return &SigningKey{
		Kid:        kid,
		PrivateKey: priv,
		PublicKey:  priv.Public().(ed25519.PublicKey),
	}, nil
}

// GenerateSigningKey creates a fresh Ed25519 keypair for the given kid,
// used by key-provisioning tooling and tests.
func GenerateSigningKey(kid string) (*SigningKey, error) {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 key: %w", err)
	}
	return &SigningKey{Kid: kid, PrivateKey: priv, PublicKey: pub}, nil
}

// WritePrivatePEM encodes the private key as a PKCS8 PEM block.
func (k *SigningKey) WritePrivatePEM() ([]byte, error) {
	der, err := x509.MarshalPKCS8PrivateKey(k.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der}), nil
}

// WritePublicPEM encodes the public key as a PKIX PEM block.
func (k *SigningKey) WritePublicPEM() ([]byte, error) {
	return EncodePublicKeyPEM(k.PublicKey)
}
