// Copyright 2025 Lantern Protocol
//
// Package pack implements the forensic pack exporter (C5): a
// self-contained, self-hashed JSON artifact bundling a contiguous
// event segment with the checkpoints and anchor receipts that cover
// it, plus enough metadata for offline replay (spec §4.5).
//
// pack_hash is deliberately NOT computed through internal/canon: it is
// sha256_hex(encoding/json.Marshal(packWithoutPackHash)), a
// serializer-dependent file-level tripwire distinct from the canonical
// hashing used for events/checkpoints/anchors (spec §6/§9). This is the
// one package outside internal/canon allowed to call crypto/sha256
// directly (see internal/canon/drift_test.go's exemption).

package pack

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/lanternledger/ledger/internal/chain"
	"github.com/lanternledger/ledger/internal/store"
)

const Format = "lantern-forensic-pack/1"

// Segment describes the exported window.
type Segment struct {
	FromSeq         int64 `json:"from_seq"`
	ToSeq           int64 `json:"to_seq"`
	EventCount      int64 `json:"event_count"`
	TotalEventsInDB int64 `json:"total_events_in_db"`
}

// HeadSnapshot is a point-in-time snapshot of the chain head.
type HeadSnapshot struct {
	Seq  int64  `json:"seq"`
	Hash string `json:"hash"`
}

// Verification records the exporter's own internal replay result so a
// reader need not trust the exporter blindly.
type Verification struct {
	Algorithm       string `json:"algorithm"`
	Canonicalization string `json:"canonicalization"`
	PayloadVersion  int    `json:"payload_version"`
	ChainStatus     string `json:"chain_status"`
	CheckedEvents   int64  `json:"checked_events"`
	FirstBadSeq     *int64 `json:"first_bad_seq,omitempty"`
}

// Manifest carries descriptive export metadata.
type Manifest struct {
	ExportedAt      time.Time `json:"exported_at"`
	ExporterVersion string    `json:"exporter_version"`
	Generator       string    `json:"generator,omitempty"`
}

// Event is the wire representation of one audit event inside a pack.
type Event struct {
	Seq           int64   `json:"seq"`
	TS            string  `json:"ts"`
	Action        string  `json:"action"`
	Actor         string  `json:"actor"`
	ReceiptID     *string `json:"receipt_id,omitempty"`
	ExportID      *string `json:"export_id,omitempty"`
	SavedViewID   *string `json:"saved_view_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
	IP            *string `json:"ip,omitempty"`
	UserAgent     *string `json:"user_agent,omitempty"`
	PrevHash      string  `json:"prev_hash"`
	Hash          string  `json:"hash"`
	SchemaVersion string  `json:"schema_version"`
	PayloadV      int     `json:"payload_v"`
}

// Checkpoint is the wire representation of one signed checkpoint.
type Checkpoint struct {
	ID                 string  `json:"id"`
	EventSeq           int64   `json:"event_seq"`
	EventHash          string  `json:"event_hash"`
	TS                 string  `json:"ts"`
	PrevCheckpointID   *string `json:"prev_checkpoint_id"`
	PrevCheckpointHash *string `json:"prev_checkpoint_hash"`
	SignatureAlg       string  `json:"signature_alg"`
	PublicKeyID        string  `json:"public_key_id"`
	Signature          string  `json:"signature"`
	SignedPayload      string  `json:"signed_payload"`
	EventCount         int     `json:"event_count"`
}

// AnchorReceipt is the wire representation of one anchor receipt.
type AnchorReceipt struct {
	ID            string          `json:"id"`
	CheckpointID  string          `json:"checkpoint_id"`
	CheckpointSeq int64           `json:"checkpoint_seq"`
	AnchorType    string          `json:"anchor_type"`
	AnchorID      string          `json:"anchor_id"`
	AnchoredAt    time.Time       `json:"anchored_at"`
	AnchorHash    string          `json:"anchor_hash"`
	AnchorPayload json.RawMessage `json:"anchor_payload"`
	Proof         json.RawMessage `json:"proof"`
}

// Pack is the top-level forensic pack artifact. PackHash is computed
// last and over every other field via encoding/json (see ComputeHash).
type Pack struct {
	Format            string          `json:"format"`
	Segment           Segment         `json:"segment"`
	HeadAtExportTime  HeadSnapshot    `json:"head_at_export_time"`
	Verification      Verification    `json:"verification"`
	Manifest          Manifest        `json:"manifest"`
	Events            []Event         `json:"events"`
	Checkpoints       []Checkpoint    `json:"checkpoints"`
	AnchorReceipts    []AnchorReceipt `json:"anchor_receipts"`
	PackHash          string          `json:"pack_hash"`
}

// packForHashing mirrors Pack but omits pack_hash, so its marshaled
// form is exactly "pack_without_pack_hash" per spec §4.5.
type packForHashing struct {
	Format           string          `json:"format"`
	Segment          Segment         `json:"segment"`
	HeadAtExportTime HeadSnapshot    `json:"head_at_export_time"`
	Verification     Verification    `json:"verification"`
	Manifest         Manifest        `json:"manifest"`
	Events           []Event         `json:"events"`
	Checkpoints      []Checkpoint    `json:"checkpoints"`
	AnchorReceipts   []AnchorReceipt `json:"anchor_receipts"`
}

// ComputeHash returns sha256_hex(encoding/json.Marshal(p without PackHash)).
func ComputeHash(p *Pack) (string, error) {
	stripped := packForHashing{
		Format:           p.Format,
		Segment:          p.Segment,
		HeadAtExportTime: p.HeadAtExportTime,
		Verification:     p.Verification,
		Manifest:         p.Manifest,
		Events:           p.Events,
		Checkpoints:      p.Checkpoints,
		AnchorReceipts:   p.AnchorReceipts,
	}
	b, err := json.Marshal(stripped)
	if err != nil {
		return "", fmt.Errorf("marshal pack for hashing: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// ErrChainInvalid is returned when the exporter's own replay of the
// requested segment fails; the exporter refuses to emit such a pack.
type ErrChainInvalid struct {
	Cause error
}

func (e *ErrChainInvalid) Error() string {
	return fmt.Sprintf("refusing to export: internal chain replay failed: %v", e.Cause)
}
func (e *ErrChainInvalid) Unwrap() error { return e.Cause }

// Export builds a forensic pack covering events [fromSeq, toSeq] and
// every checkpoint/anchor receipt that falls within it. It performs
// the same hash-chain replay the offline verifier performs and refuses
// to emit a pack that fails internal verification.
func Export(ctx context.Context, repo *store.Repository, fromSeq, toSeq int64, generator string) (*Pack, error) {
	storeEvents, err := repo.GetEventRange(ctx, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("load event range: %w", err)
	}
	replay, rerr := chain.Replay(storeEvents)
	if rerr != nil {
		return nil, &ErrChainInvalid{Cause: rerr}
	}

	head, err := repo.GetHead(ctx)
	if err != nil {
		return nil, fmt.Errorf("load head: %w", err)
	}
	total, err := repo.CountEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}

	storeCheckpoints, err := repo.GetCheckpointsInRange(ctx, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("load checkpoints: %w", err)
	}
	checkpointIDs := make([]string, 0, len(storeCheckpoints))
	for _, cp := range storeCheckpoints {
		checkpointIDs = append(checkpointIDs, cp.ID)
	}
	storeReceipts, err := repo.GetAnchorReceiptsForCheckpoints(ctx, checkpointIDs)
	if err != nil {
		return nil, fmt.Errorf("load anchor receipts: %w", err)
	}

	p := &Pack{
		Format: Format,
		Segment: Segment{
			FromSeq:         fromSeq,
			ToSeq:           toSeq,
			EventCount:      int64(len(storeEvents)),
			TotalEventsInDB: total,
		},
		HeadAtExportTime: HeadSnapshot{Seq: head.LastSeq, Hash: head.LastHash},
		Verification: Verification{
			Algorithm:        "SHA-256",
			Canonicalization: "lantern-canon/1",
			PayloadVersion:   chain.PayloadVersion,
			ChainStatus:      replay.ChainStatus,
			CheckedEvents:    replay.CheckedEvents,
			FirstBadSeq:      replay.FirstBadSeq,
		},
		Manifest: Manifest{
			ExportedAt:      time.Now().UTC(),
			ExporterVersion: Format,
			Generator:       generator,
		},
		Events:         toWireEvents(storeEvents),
		Checkpoints:    toWireCheckpoints(storeCheckpoints),
		AnchorReceipts: toWireReceipts(storeReceipts),
	}

	hash, err := ComputeHash(p)
	if err != nil {
		return nil, err
	}
	p.PackHash = hash
	return p, nil
}

func toWireEvents(events []*store.Event) []Event {
	out := make([]Event, 0, len(events))
	for _, e := range events {
		out = append(out, Event{
			Seq: e.Seq, TS: e.TS, Action: e.Action, Actor: e.Actor,
			ReceiptID: e.ReceiptID, ExportID: e.ExportID, SavedViewID: e.SavedViewID,
			Payload: json.RawMessage(e.Payload), IP: e.IP, UserAgent: e.UserAgent,
			PrevHash: e.PrevHash, Hash: e.Hash, SchemaVersion: e.SchemaVersion, PayloadV: e.PayloadV,
		})
	}
	return out
}

func toWireCheckpoints(cps []*store.Checkpoint) []Checkpoint {
	out := make([]Checkpoint, 0, len(cps))
	for _, cp := range cps {
		out = append(out, Checkpoint{
			ID: cp.ID, EventSeq: cp.EventSeq, EventHash: cp.EventHash, TS: cp.TS,
			PrevCheckpointID: cp.PrevCheckpointID, PrevCheckpointHash: cp.PrevCheckpointHash,
			SignatureAlg: cp.SignatureAlg, PublicKeyID: cp.PublicKeyID,
			Signature: cp.Signature, SignedPayload: cp.SignedPayload, EventCount: cp.EventCount,
		})
	}
	return out
}

func toWireReceipts(receipts []*store.AnchorReceipt) []AnchorReceipt {
	out := make([]AnchorReceipt, 0, len(receipts))
	for _, r := range receipts {
		out = append(out, AnchorReceipt{
			ID: r.ID, CheckpointID: r.CheckpointID, CheckpointSeq: r.CheckpointSeq,
			AnchorType: r.AnchorType, AnchorID: r.AnchorID, AnchoredAt: r.AnchoredAt,
			AnchorHash: r.AnchorHash, AnchorPayload: json.RawMessage(r.AnchorPayload),
			Proof: json.RawMessage(r.Proof),
		})
	}
	return out
}

// WriteFile serializes p to path atomically: writes to path+".tmp" then
// renames over path, so a crash mid-write never leaves a corrupt pack
// visible at the final name.
func WriteFile(path string, p *Pack) error {
	b, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal pack: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write temp pack file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename pack file: %w", err)
	}
	return nil
}

// ReadFile reads and JSON-parses a pack file without validating it;
// callers needing validation should use internal/verify.VerifyPack.
func ReadFile(path string) (*Pack, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pack file: %w", err)
	}
	var p Pack
	if err := json.Unmarshal(b, &p); err != nil {
		return nil, fmt.Errorf("parse pack file: %w", err)
	}
	return &p, nil
}
