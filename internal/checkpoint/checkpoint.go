// Copyright 2025 Lantern Protocol
//
// Package checkpoint implements the checkpoint signer (C3): on a
// configurable event-count cadence it builds a canonical checkpoint
// payload committing to the current head, signs it with Ed25519, and
// links it to the previous checkpoint (spec §4.3).

package checkpoint

import (
	"context"
	"crypto/ed25519"
	"database/sql"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/lanternledger/ledger/internal/canon"
	"github.com/lanternledger/ledger/internal/store"
)

// SignatureAlgEd25519 is the v1 signature algorithm label.
const SignatureAlgEd25519 = "Ed25519"

// Now lets tests substitute a deterministic clock.
type Now func() time.Time

// Signer builds and signs checkpoints every Interval events.
type Signer struct {
	Interval   int64
	SigningKey ed25519.PrivateKey
	Kid        string
	Now        Now
}

// NewSigner constructs a Signer. interval <= 0 disables checkpointing
// (MaybeCheckpoint always returns (nil, nil)).
func NewSigner(interval int64, signingKey ed25519.PrivateKey, kid string) *Signer {
	return &Signer{
		Interval:   interval,
		SigningKey: signingKey,
		Kid:        kid,
		Now:        time.Now,
	}
}

// MaybeCheckpoint implements chain.Checkpointer. It must be called
// inside the same transaction as the triggering event append.
func (s *Signer) MaybeCheckpoint(ctx context.Context, tx *sql.Tx, repo *store.Repository, eventSeq int64, eventHash string) (*store.Checkpoint, error) {
	if s.Interval <= 0 || eventSeq%s.Interval != 0 {
		return nil, nil
	}

	prev, err := repo.GetLatestCheckpoint(ctx)
	var prevID, prevHash *string
	eventCount := eventSeq
	if err == store.ErrCheckpointNotFound {
		// first checkpoint: covers every event from genesis
	} else if err != nil {
		return nil, fmt.Errorf("load previous checkpoint: %w", err)
	} else {
		id := prev.ID
		prevID = &id
		h, err := prevCheckpointHash(prev.SignedPayload)
		if err != nil {
			return nil, err
		}
		prevHash = &h
		eventCount = eventSeq - prev.EventSeq
	}

	ts := s.Now().UTC().Format(time.RFC3339)
	payload := buildPayload(eventSeq, eventHash, eventCount, ts, prevID, prevHash, s.Kid)

	signedPayloadBytes, err := canon.Canon(payload)
	if err != nil {
		return nil, fmt.Errorf("canonicalize checkpoint payload: %w", err)
	}
	signedPayload := string(signedPayloadBytes)
	signature := ed25519.Sign(s.SigningKey, signedPayloadBytes)

	cp := &store.Checkpoint{
		ID:                 uuid.New().String(),
		EventSeq:           eventSeq,
		EventHash:          eventHash,
		TS:                 ts,
		PrevCheckpointID:   prevID,
		PrevCheckpointHash: prevHash,
		SignatureAlg:       SignatureAlgEd25519,
		PublicKeyID:        s.Kid,
		Signature:          base64.StdEncoding.EncodeToString(signature),
		SignedPayload:      signedPayload,
		EventCount:         int(eventCount),
	}

	if err := repo.InsertCheckpoint(ctx, tx, cp); err != nil {
		return nil, fmt.Errorf("persist checkpoint: %w", err)
	}
	return cp, nil
}

func buildPayload(eventSeq int64, eventHash string, eventCount int64, ts string, prevID, prevHash *string, kid string) canon.Value {
	m := map[string]canon.Value{
		"event_seq":   canon.Int(eventSeq),
		"event_hash":  canon.Str(eventHash),
		"event_count": canon.Int(eventCount),
		"ts":          canon.Str(ts),
		"kid":         canon.Str(kid),
	}
	if prevID != nil {
		m["prev_checkpoint_id"] = canon.Str(*prevID)
	} else {
		m["prev_checkpoint_id"] = canon.Null()
	}
	if prevHash != nil {
		m["prev_checkpoint_hash"] = canon.Str(*prevHash)
	} else {
		m["prev_checkpoint_hash"] = canon.Null()
	}
	return canon.Map(m)
}

// prevCheckpointHash derives the compact cross-checkpoint binding
// defined in spec §4.3: the first 64 hex characters of the canonical
// re-serialization of the previous checkpoint's signed_payload. This is
// adopted as-is per spec's Open Question — see DESIGN.md.
func prevCheckpointHash(prevSignedPayload string) (string, error) {
	v, err := canon.FromJSON([]byte(prevSignedPayload))
	if err != nil {
		return "", fmt.Errorf("reparse previous signed_payload: %w", err)
	}
	reserialized, err := canon.Canon(v)
	if err != nil {
		return "", fmt.Errorf("reserialize previous signed_payload: %w", err)
	}
	s := string(reserialized)
	if len(s) < 64 {
		return s, nil
	}
	return s[:64], nil
}

// Verify checks that signature over signedPayload validates under pub.
func Verify(pub ed25519.PublicKey, signedPayload string, signature []byte) bool {
	return ed25519.Verify(pub, []byte(signedPayload), signature)
}
