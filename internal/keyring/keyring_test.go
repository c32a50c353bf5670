// Copyright 2025 Lantern Protocol

package keyring

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGenerateSigningKeyRoundTripsThroughPEM(t *testing.T) {
	sk, err := GenerateSigningKey("kid-1")
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}

	dir := t.TempDir()
	privPath := filepath.Join(dir, "key.pem")
	privPEM, err := sk.WritePrivatePEM()
	if err != nil {
		t.Fatalf("write private pem: %v", err)
	}
	if err := os.WriteFile(privPath, privPEM, 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	loaded, err := LoadSigningKey(privPath, "kid-1")
	if err != nil {
		t.Fatalf("load signing key: %v", err)
	}
	if loaded.Kid != "kid-1" {
		t.Fatalf("expected kid-1, got %s", loaded.Kid)
	}
	if !loaded.PrivateKey.Equal(sk.PrivateKey) {
		t.Fatalf("loaded private key does not match original")
	}
}

func TestLoadSingleFileRingResolvesAsDefaultKID(t *testing.T) {
	sk, err := GenerateSigningKey("kid-1")
	if err != nil {
		t.Fatalf("generate signing key: %v", err)
	}
	pubPEM, err := sk.WritePublicPEM()
	if err != nil {
		t.Fatalf("write public pem: %v", err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "only.pem")
	if err := os.WriteFile(path, pubPEM, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	ring, err := Load(path)
	if err != nil {
		t.Fatalf("load ring: %v", err)
	}

	if _, ok := ring.Resolve("nonexistent-kid", false); !ok {
		t.Fatalf("expected single-key ring to fall back for unknown kid when strictKID is false")
	}
	if _, ok := ring.Resolve("nonexistent-kid", true); ok {
		t.Fatalf("expected strictKID=true to reject an unknown kid even in a single-key ring")
	}
}

func TestLoadDirectoryRingResolvesByExactKID(t *testing.T) {
	dir := t.TempDir()
	skA, err := GenerateSigningKey("kid-a")
	if err != nil {
		t.Fatalf("generate kid-a: %v", err)
	}
	skB, err := GenerateSigningKey("kid-b")
	if err != nil {
		t.Fatalf("generate kid-b: %v", err)
	}

	for kid, sk := range map[string]*SigningKey{"kid-a": skA, "kid-b": skB} {
		pubPEM, err := sk.WritePublicPEM()
		if err != nil {
			t.Fatalf("write public pem for %s: %v", kid, err)
		}
		if err := os.WriteFile(filepath.Join(dir, kid+".pem"), pubPEM, 0o644); err != nil {
			t.Fatalf("write file for %s: %v", kid, err)
		}
	}

	ring, err := Load(dir)
	if err != nil {
		t.Fatalf("load ring: %v", err)
	}

	pub, ok := ring.Resolve("kid-a", true)
	if !ok {
		t.Fatalf("expected exact match for kid-a")
	}
	if !pub.Equal(skA.PublicKey) {
		t.Fatalf("resolved kid-a key does not match")
	}

	if _, ok := ring.Resolve("kid-missing", true); ok {
		t.Fatalf("expected strict resolve to reject an unknown kid in a multi-key ring")
	}
	if _, ok := ring.Resolve("kid-missing", false); ok {
		t.Fatalf("expected non-strict resolve to also reject an unknown kid when the ring has more than one key and no default entry")
	}
}
