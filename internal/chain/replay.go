// Copyright 2025 Lantern Protocol

package chain

import (
	"fmt"

	"github.com/lanternledger/ledger/internal/canon"
	"github.com/lanternledger/ledger/internal/store"
)

// ReplayResult summarizes one hash-chain replay pass, shared verbatim
// by the pack exporter's internal refusal check and the offline
// verifier (spec §4.5/§4.6): both must reach the same verdict from the
// same events using the same logic.
type ReplayResult struct {
	ChainStatus   string // "GENESIS", "LINKED", or "EMPTY"
	CheckedEvents int64
	FirstBadSeq   *int64
}

// Replay walks events in order, recomputing each canonical payload
// hash and checking seq contiguity and prev_hash linkage. events must
// already be sorted by Seq ascending. It never touches a database or
// the network.
func Replay(events []*store.Event) (*ReplayResult, error) {
	if len(events) == 0 {
		return &ReplayResult{ChainStatus: "EMPTY"}, nil
	}

	expectedPrevHash := "GENESIS"
	if events[0].Seq != 1 {
		expectedPrevHash = events[0].PrevHash
	}

	result := &ReplayResult{ChainStatus: "GENESIS"}
	if expectedPrevHash != "GENESIS" {
		result.ChainStatus = "LINKED"
	}

	var expectedSeq *int64
	for _, e := range events {
		if expectedSeq != nil && e.Seq != *expectedSeq {
			bad := e.Seq
			result.FirstBadSeq = &bad
			return result, &ChainViolation{Seq: e.Seq, Reason: fmt.Sprintf("sequence gap: expected %d", *expectedSeq)}
		}
		if e.PrevHash != expectedPrevHash {
			bad := e.Seq
			result.FirstBadSeq = &bad
			return result, &ChainViolation{Seq: e.Seq, Reason: "prev_hash mismatch"}
		}
		if e.PayloadV != PayloadVersion {
			bad := e.Seq
			result.FirstBadSeq = &bad
			return result, &ChainViolation{Seq: e.Seq, Reason: fmt.Sprintf("unsupported payload_v %d", e.PayloadV)}
		}

		payloadValue, err := canon.AuditPayloadV1(canon.AuditPayloadV1Fields{
			SchemaVersion: e.SchemaVersion,
			Seq:           e.Seq,
			TS:            e.TS,
			Action:        e.Action,
			Actor:         e.Actor,
			ReceiptID:     e.ReceiptID,
			ExportID:      e.ExportID,
			SavedViewID:   e.SavedViewID,
			Payload:       e.Payload,
			IP:            e.IP,
			UserAgent:     e.UserAgent,
			PrevHash:      e.PrevHash,
		})
		if err != nil {
			bad := e.Seq
			result.FirstBadSeq = &bad
			return result, &ChainViolation{Seq: e.Seq, Reason: fmt.Sprintf("rebuild payload: %v", err)}
		}
		hash, err := canon.HashAuditPayload(payloadValue)
		if err != nil {
			bad := e.Seq
			result.FirstBadSeq = &bad
			return result, &ChainViolation{Seq: e.Seq, Reason: fmt.Sprintf("hash payload: %v", err)}
		}
		if hash != e.Hash {
			bad := e.Seq
			result.FirstBadSeq = &bad
			return result, &ChainViolation{Seq: e.Seq, Reason: "hash mismatch"}
		}

		result.CheckedEvents++
		expectedPrevHash = hash
		next := e.Seq + 1
		expectedSeq = &next
	}

	return result, nil
}
