// Copyright 2025 Lantern Protocol
//
// Package chain implements the append-only audit hash chain engine (C2):
// transactional append, head maintenance, and sequence/prev-hash
// linkage, per spec §4.2.

package chain

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lanternledger/ledger/internal/canon"
	"github.com/lanternledger/ledger/internal/store"
)

// SchemaVersion is the audit/1.1 schema label embedded in every event.
const SchemaVersion = "audit/1.1"

// PayloadVersion is the current canonical payload shape version.
const PayloadVersion = 1

// Fields are the caller-supplied fields for one event append. Seq and
// PrevHash are computed by the engine, never supplied by the caller.
type Fields struct {
	TS          string
	Action      string
	Actor       string
	ReceiptID   *string
	ExportID    *string
	SavedViewID *string
	Payload     string // opaque caller-provided JSON blob
	IP          *string
	UserAgent   *string
}

// Checkpointer is implemented by internal/checkpoint. It is invoked
// inside the same transaction as the triggering append (spec §4.2 step
// 7) and may return (nil, nil) when the interval hasn't been reached.
type Checkpointer interface {
	MaybeCheckpoint(ctx context.Context, tx *sql.Tx, repo *store.Repository, eventSeq int64, eventHash string) (*store.Checkpoint, error)
}

// Engine is the audit chain engine.
type Engine struct {
	repo         *store.Repository
	checkpointer Checkpointer
}

// NewEngine constructs an Engine over repo. checkpointer may be nil to
// disable checkpointing entirely.
func NewEngine(repo *store.Repository, checkpointer Checkpointer) *Engine {
	return &Engine{repo: repo, checkpointer: checkpointer}
}

// AppendEvent implements the transactional append protocol of spec
// §4.2: lock head, compute seq/prev_hash, build and hash the canonical
// payload, insert the event, update head, optionally checkpoint, commit.
// It returns the appended event and, if a checkpoint was produced in the
// same transaction, that checkpoint too (the caller is responsible for
// anchoring it — see internal/anchor — and persisting the receipt).
func (e *Engine) AppendEvent(ctx context.Context, f Fields) (*store.Event, *store.Checkpoint, error) {
	tx, err := e.repo.Tx(ctx)
	if err != nil {
		return nil, nil, &StorageError{Op: "begin", Err: err}
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	head, err := e.repo.LockHead(ctx, tx)
	if err != nil {
		return nil, nil, &StorageError{Op: "lock head", Err: err}
	}

	seq := head.LastSeq + 1
	prevHash := head.LastHash

	payloadValue, err := canon.AuditPayloadV1(canon.AuditPayloadV1Fields{
		SchemaVersion: SchemaVersion,
		Seq:           seq,
		TS:            f.TS,
		Action:        f.Action,
		Actor:         f.Actor,
		ReceiptID:     f.ReceiptID,
		ExportID:      f.ExportID,
		SavedViewID:   f.SavedViewID,
		Payload:       f.Payload,
		IP:            f.IP,
		UserAgent:     f.UserAgent,
		PrevHash:      prevHash,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("build canonical payload: %w", err)
	}
	hash, err := canon.HashAuditPayload(payloadValue)
	if err != nil {
		return nil, nil, fmt.Errorf("hash canonical payload: %w", err)
	}

	event := &store.Event{
		Seq:           seq,
		TS:            f.TS,
		Action:        f.Action,
		Actor:         f.Actor,
		ReceiptID:     f.ReceiptID,
		ExportID:      f.ExportID,
		SavedViewID:   f.SavedViewID,
		Payload:       f.Payload,
		IP:            f.IP,
		UserAgent:     f.UserAgent,
		PrevHash:      prevHash,
		Hash:          hash,
		SchemaVersion: SchemaVersion,
		PayloadV:      PayloadVersion,
	}

	if err := e.repo.InsertEvent(ctx, tx, event); err != nil {
		return nil, nil, &StorageError{Op: "insert event", Err: err}
	}
	if err := e.repo.UpdateHead(ctx, tx, seq, hash); err != nil {
		return nil, nil, &StorageError{Op: "update head", Err: err}
	}

	var checkpoint *store.Checkpoint
	if e.checkpointer != nil {
		checkpoint, err = e.checkpointer.MaybeCheckpoint(ctx, tx, e.repo, seq, hash)
		if err != nil {
			return nil, nil, fmt.Errorf("checkpoint: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, &StorageError{Op: "commit", Err: err}
	}
	committed = true

	return event, checkpoint, nil
}

// RecoverHead repairs the head row from the max-seq event after an
// abnormal shutdown (spec §4.2 "Failure modes").
func (e *Engine) RecoverHead(ctx context.Context) error {
	seq, err := e.repo.LatestEventSeq(ctx)
	if err != nil {
		return fmt.Errorf("recover head: %w", err)
	}
	if seq == 0 {
		return nil
	}
	ev, err := e.repo.GetEvent(ctx, seq)
	if err != nil {
		return fmt.Errorf("recover head: load latest event: %w", err)
	}

	head, err := e.repo.GetHead(ctx)
	if err == store.ErrHeadNotFound || (err == nil && (head.LastSeq != seq || head.LastHash != ev.Hash)) {
		tx, terr := e.repo.Tx(ctx)
		if terr != nil {
			return &StorageError{Op: "recover head begin", Err: terr}
		}
		if _, lerr := e.repo.LockHead(ctx, tx); lerr != nil {
			_ = tx.Rollback()
			return &StorageError{Op: "recover head lock", Err: lerr}
		}
		if uerr := e.repo.UpdateHead(ctx, tx, seq, ev.Hash); uerr != nil {
			_ = tx.Rollback()
			return &StorageError{Op: "recover head update", Err: uerr}
		}
		return tx.Commit()
	}
	if err != nil {
		return fmt.Errorf("recover head: get head: %w", err)
	}
	return nil
}
