// Copyright 2025 Lantern Protocol

package chain

import (
	"testing"

	"github.com/lanternledger/ledger/internal/canon"
	"github.com/lanternledger/ledger/internal/store"
)

func buildChain(t *testing.T, n int) []*store.Event {
	t.Helper()
	var events []*store.Event
	prevHash := "GENESIS"
	for i := int64(1); i <= int64(n); i++ {
		f := canon.AuditPayloadV1Fields{
			SchemaVersion: SchemaVersion,
			Seq:           i,
			TS:            "2026-01-01T00:00:00Z",
			Action:        "view",
			Actor:         "user-1",
			Payload:       `{"n":1}`,
			PrevHash:      prevHash,
		}
		v, err := canon.AuditPayloadV1(f)
		if err != nil {
			t.Fatalf("build payload: %v", err)
		}
		hash, err := canon.HashAuditPayload(v)
		if err != nil {
			t.Fatalf("hash payload: %v", err)
		}
		events = append(events, &store.Event{
			Seq: i, TS: f.TS, Action: f.Action, Actor: f.Actor, Payload: f.Payload,
			PrevHash: prevHash, Hash: hash, SchemaVersion: SchemaVersion, PayloadV: PayloadVersion,
		})
		prevHash = hash
	}
	return events
}

func TestReplayGenesisChainClosure(t *testing.T) {
	events := buildChain(t, 5)
	result, err := Replay(events)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.ChainStatus != "GENESIS" {
		t.Fatalf("expected GENESIS, got %s", result.ChainStatus)
	}
	if result.CheckedEvents != 5 {
		t.Fatalf("expected 5 checked events, got %d", result.CheckedEvents)
	}
	if result.FirstBadSeq != nil {
		t.Fatalf("expected no bad seq, got %v", *result.FirstBadSeq)
	}
}

func TestReplayEmptyChain(t *testing.T) {
	result, err := Replay(nil)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.ChainStatus != "EMPTY" {
		t.Fatalf("expected EMPTY, got %s", result.ChainStatus)
	}
}

func TestReplayDetectsSeqGap(t *testing.T) {
	events := buildChain(t, 3)
	events[1].Seq = 5 // introduce a gap
	_, err := Replay(events)
	if err == nil {
		t.Fatalf("expected chain violation for sequence gap")
	}
	var cv *ChainViolation
	if !asChainViolation(err, &cv) {
		t.Fatalf("expected *ChainViolation, got %T", err)
	}
}

func TestReplayDetectsHashMismatch(t *testing.T) {
	events := buildChain(t, 3)
	events[2].Hash = "deadbeef"
	result, err := Replay(events)
	if err == nil {
		t.Fatalf("expected chain violation for hash mismatch")
	}
	if result.FirstBadSeq == nil || *result.FirstBadSeq != events[2].Seq {
		t.Fatalf("expected first bad seq %d, got %v", events[2].Seq, result.FirstBadSeq)
	}
}

func TestReplayLinkedStatusWhenSegmentDoesNotStartAtOne(t *testing.T) {
	full := buildChain(t, 6)
	segment := full[3:] // seq 4..6, a contiguous non-genesis window
	result, err := Replay(segment)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if result.ChainStatus != "LINKED" {
		t.Fatalf("expected LINKED, got %s", result.ChainStatus)
	}
}

func asChainViolation(err error, out **ChainViolation) bool {
	cv, ok := err.(*ChainViolation)
	if ok {
		*out = cv
	}
	return ok
}
