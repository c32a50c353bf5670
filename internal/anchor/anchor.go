// Copyright 2025 Lantern Protocol
//
// Package anchor implements the external anchoring subsystem (C4): it
// publishes a checkpoint's signed payload to one or more independent,
// pluggable backends and produces a content-addressed AnchorReceipt
// bound to that checkpoint by hash (spec §4.4).

package anchor

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/lanternledger/ledger/internal/canon"
	"github.com/lanternledger/ledger/internal/store"
)

// Backend publishes one checkpoint to an external medium and returns
// enough evidence (AnchorID, Proof) to reconstruct/verify the
// publication later without contacting the backend again.
type Backend interface {
	// Type is the anchor_type label recorded on the resulting receipt
	// (e.g. "log-only", "s3-worm", "rfc3161", "ethereum").
	Type() string
	// Publish anchors in.Payload (the checkpoint's canonical anchor_payload
	// bytes) and returns a backend-specific AnchorID and Proof blob. Proof
	// must be valid, self-contained JSON. Backends that must embed the
	// checkpoint's own signature in what they anchor (e.g. the s3-worm
	// object body, spec §4.4) read it off in.Signature/in.SignedPayload
	// rather than re-deriving it.
	Publish(ctx context.Context, in PublishInput) (anchorID string, proof []byte, err error)
}

// PublishInput carries everything a Backend may need to anchor one
// checkpoint: the canonical anchor_payload bytes and hash already
// computed by Hash, plus the checkpoint's own signature fields for
// backends whose anchored artifact embeds them (spec §4.4 s3-worm
// object body).
type PublishInput struct {
	CheckpointID  string
	Payload       []byte // canonical anchor_payload bytes
	AnchorHash    string // sha256_hex(Payload)
	Signature     string // base64 checkpoint signature
	SignatureAlg  string
	SignedPayload string
}

// PayloadFields are the inputs to the versioned anchor payload
// (spec §3 Anchor Receipt): {_v, engine_id, audit_payload_version,
// checkpoint_id, checkpoint_seq, event_seq, event_hash, checkpoint_hash,
// kid, created_at}.
type PayloadFields struct {
	EngineID           string
	AuditPayloadVersion int
	CheckpointID       string
	CheckpointSeq      int64
	EventSeq           int64
	EventHash          string
	SignedPayload      string
	Signature          string // base64, as stored on the checkpoint
	Kid                string
	CreatedAt          string // ISO-8601
}

// Payload builds the canonical, versioned anchor payload that binds a
// receipt to its checkpoint. checkpoint_hash is SHA-256 over the raw
// concatenation of signed_payload and signature bytes (spec §3), hashed
// only through internal/canon so the same hashing primitive backs
// events, checkpoints, and anchors alike.
func Payload(f PayloadFields) canon.Value {
	checkpointHash := canon.SHA256Hex([]byte(f.SignedPayload + f.Signature))
	return canon.Map(map[string]canon.Value{
		"_v":                    canon.Int(1),
		"engine_id":             canon.Str(f.EngineID),
		"audit_payload_version": canon.Int(int64(f.AuditPayloadVersion)),
		"checkpoint_id":         canon.Str(f.CheckpointID),
		"checkpoint_seq":        canon.Int(f.CheckpointSeq),
		"event_seq":             canon.Int(f.EventSeq),
		"event_hash":            canon.Str(f.EventHash),
		"checkpoint_hash":       canon.Str(checkpointHash),
		"kid":                   canon.Str(f.Kid),
		"created_at":            canon.Str(f.CreatedAt),
	})
}

// Hash canonicalizes payload and returns its hex SHA-256 digest.
func Hash(payload canon.Value) (canonicalBytes []byte, anchorHash string, err error) {
	b, err := canon.Canon(payload)
	if err != nil {
		return nil, "", err
	}
	return b, canon.SHA256Hex(b), nil
}

// Publisher anchors a single checkpoint across one or more backends and
// persists the resulting receipts.
type Publisher struct {
	backends            []Backend
	repo                *store.Repository
	required            bool // spec §6 anchors_mode: "required" fails the caller if every backend errors
	engineID            string
	auditPayloadVersion int
	now                 func() time.Time
}

// NewPublisher constructs a Publisher. required mirrors the
// anchors_mode config key: when true, PublishCheckpoint adds
// ErrAllBackendsFailed to its returned errors if no backend succeeds,
// and ErrRequiredModeNeedsTrustBoundary if every receipt came from a
// log-only backend; when false, failures are best-effort and are only
// surfaced via the returned per-backend errors slice.
// engineID identifies this ledger instance in every anchor_payload it
// produces (spec §3 Anchor Receipt).
func NewPublisher(repo *store.Repository, required bool, engineID string, auditPayloadVersion int, backends ...Backend) *Publisher {
	return &Publisher{
		backends:            backends,
		repo:                repo,
		required:            required,
		engineID:            engineID,
		auditPayloadVersion: auditPayloadVersion,
		now:                 time.Now,
	}
}

// PublishCheckpoint anchors cp across every configured backend,
// persisting one AnchorReceipt per backend that succeeds. It must be
// called after cp's transaction has committed (spec §5: anchor I/O
// never holds the head lock).
func (p *Publisher) PublishCheckpoint(ctx context.Context, cp *store.Checkpoint) ([]*store.AnchorReceipt, []error) {
	createdAt := p.now().UTC().Format(time.RFC3339)
	payload := Payload(PayloadFields{
		EngineID:            p.engineID,
		AuditPayloadVersion: p.auditPayloadVersion,
		CheckpointID:        cp.ID,
		CheckpointSeq:       cp.EventSeq,
		EventSeq:            cp.EventSeq,
		EventHash:           cp.EventHash,
		SignedPayload:       cp.SignedPayload,
		Signature:           cp.Signature,
		Kid:                 cp.PublicKeyID,
		CreatedAt:           createdAt,
	})
	canonicalBytes, anchorHash, err := Hash(payload)
	if err != nil {
		return nil, []error{err}
	}

	in := PublishInput{
		CheckpointID:  cp.ID,
		Payload:       canonicalBytes,
		AnchorHash:    anchorHash,
		Signature:     cp.Signature,
		SignatureAlg:  cp.SignatureAlg,
		SignedPayload: cp.SignedPayload,
	}

	var receipts []*store.AnchorReceipt
	var errs []error
	for _, b := range p.backends {
		anchorID, proof, perr := b.Publish(ctx, in)
		if perr != nil {
			errs = append(errs, perr)
			continue
		}
		receipt := &store.AnchorReceipt{
			ID:            uuid.New().String(),
			CheckpointID:  cp.ID,
			CheckpointSeq: cp.EventSeq,
			AnchorType:    b.Type(),
			AnchorID:      anchorID,
			AnchoredAt:    p.now().UTC(),
			AnchorHash:    anchorHash,
			AnchorPayload: canonicalBytes,
			Proof:         proof,
		}
		if err := p.repo.InsertAnchorReceipt(ctx, receipt); err != nil {
			errs = append(errs, err)
			continue
		}
		receipts = append(receipts, receipt)
	}

	if p.required && len(p.backends) > 0 {
		if len(receipts) == 0 {
			errs = append(errs, ErrAllBackendsFailed)
		} else if allReceiptsLogOnly(receipts) {
			errs = append(errs, ErrRequiredModeNeedsTrustBoundary)
		}
	}
	return receipts, errs
}

// allReceiptsLogOnly reports whether every receipt produced this call
// came from a log-only backend. BuildBackends already refuses to
// construct a log-only-only set under anchors_mode=required, but a
// caller that hand-assembles a Publisher bypasses that check, so
// PublishCheckpoint enforces it again at the one place every anchoring
// attempt passes through.
func allReceiptsLogOnly(receipts []*store.AnchorReceipt) bool {
	for _, r := range receipts {
		if r.AnchorType != "log-only" {
			return false
		}
	}
	return true
}
