// Copyright 2025 Lantern Protocol

package pack

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func samplePack(t *testing.T) *Pack {
	t.Helper()
	p := &Pack{
		Format:  Format,
		Segment: Segment{FromSeq: 1, ToSeq: 3, EventCount: 3, TotalEventsInDB: 3},
		HeadAtExportTime: HeadSnapshot{Seq: 3, Hash: "h3"},
		Verification: Verification{
			Algorithm: "SHA-256", Canonicalization: "lantern-canon/1",
			PayloadVersion: 1, ChainStatus: "GENESIS", CheckedEvents: 3,
		},
		Events: []Event{
			{Seq: 1, TS: "2026-01-01T00:00:00Z", Action: "view", Actor: "u1", Payload: json.RawMessage(`{"a":1}`), PrevHash: "GENESIS", Hash: "h1", SchemaVersion: "audit/1.1", PayloadV: 1},
			{Seq: 2, TS: "2026-01-01T00:00:01Z", Action: "view", Actor: "u1", Payload: json.RawMessage(`{"a":2}`), PrevHash: "h1", Hash: "h2", SchemaVersion: "audit/1.1", PayloadV: 1},
			{Seq: 3, TS: "2026-01-01T00:00:02Z", Action: "view", Actor: "u1", Payload: json.RawMessage(`{"a":3}`), PrevHash: "h2", Hash: "h3", SchemaVersion: "audit/1.1", PayloadV: 1},
		},
	}
	hash, err := ComputeHash(p)
	if err != nil {
		t.Fatalf("compute hash: %v", err)
	}
	p.PackHash = hash
	return p
}

func TestComputeHashDeterministic(t *testing.T) {
	p := samplePack(t)
	h2, err := ComputeHash(p)
	if err != nil {
		t.Fatalf("compute hash: %v", err)
	}
	if h2 != p.PackHash {
		t.Fatalf("pack hash not deterministic: %s vs %s", h2, p.PackHash)
	}
}

func TestComputeHashChangesWithTamper(t *testing.T) {
	p := samplePack(t)
	original := p.PackHash
	p.Events[2].Payload = json.RawMessage(`{"a":3,"TAMPERED":true}`)
	tampered, err := ComputeHash(p)
	if err != nil {
		t.Fatalf("compute hash: %v", err)
	}
	if tampered == original {
		t.Fatalf("expected pack_hash to change after payload tamper")
	}
}

func TestWriteFileThenReadFileRoundTrip(t *testing.T) {
	p := samplePack(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "pack.json")

	if err := WriteFile(path, p); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("expected .tmp file to be renamed away")
	}

	got, err := ReadFile(path)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if got.PackHash != p.PackHash {
		t.Fatalf("round-trip pack_hash mismatch: got %s want %s", got.PackHash, p.PackHash)
	}
	if len(got.Events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(got.Events))
	}
}
