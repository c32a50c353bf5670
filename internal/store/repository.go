// Copyright 2025 Lantern Protocol
//
// Repository implements the transactional record store the audit chain
// engine (internal/chain) builds on: row-level locking of the singleton
// head row, append-only event inserts, and checkpoint/anchor persistence.

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/lib/pq"
)

// Repository handles all SQL access for the audit ledger.
type Repository struct {
	client *Client
}

// NewRepository creates a Repository over an open Client.
func NewRepository(client *Client) *Repository {
	return &Repository{client: client}
}

// Tx begins a new transaction. Callers are responsible for Commit/Rollback.
func (r *Repository) Tx(ctx context.Context) (*sql.Tx, error) {
	return r.client.db.BeginTx(ctx, nil)
}

// LockHead acquires SELECT ... FOR UPDATE on the singleton head row
// (id = 1), creating it with last_seq=0, last_hash="GENESIS" if absent.
// It must be called inside tx and the caller must keep tx open for the
// duration of the critical section (spec §4.2 step 1-2).
func (r *Repository) LockHead(ctx context.Context, tx *sql.Tx) (*Head, error) {
	var h Head
	err := tx.QueryRowContext(ctx,
		`SELECT last_seq, last_hash FROM audit_head WHERE id = 1 FOR UPDATE`,
	).Scan(&h.LastSeq, &h.LastHash)

	if err == sql.ErrNoRows {
		h = Head{LastSeq: 0, LastHash: "GENESIS"}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO audit_head (id, last_seq, last_hash) VALUES (1, $1, $2)`,
			h.LastSeq, h.LastHash); err != nil {
			return nil, fmt.Errorf("insert initial head: %w", err)
		}
		return &h, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lock head: %w", err)
	}
	return &h, nil
}

// UpdateHead sets the head row to (seq, hash) inside tx.
func (r *Repository) UpdateHead(ctx context.Context, tx *sql.Tx, seq int64, hash string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE audit_head SET last_seq = $1, last_hash = $2 WHERE id = 1`,
		seq, hash)
	if err != nil {
		return fmt.Errorf("update head: %w", err)
	}
	return nil
}

// InsertEvent appends one event row inside tx. Event rows are never
// updated or deleted elsewhere in this package (spec I4).
func (r *Repository) InsertEvent(ctx context.Context, tx *sql.Tx, e *Event) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_events (
			seq, ts, action, actor, receipt_id, export_id, saved_view_id,
			payload, ip, user_agent, prev_hash, hash, schema_version, payload_v
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)`,
		e.Seq, e.TS, e.Action, e.Actor, e.ReceiptID, e.ExportID, e.SavedViewID,
		e.Payload, e.IP, e.UserAgent, e.PrevHash, e.Hash, e.SchemaVersion, e.PayloadV)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

// InsertCheckpoint persists a signed checkpoint row inside tx.
func (r *Repository) InsertCheckpoint(ctx context.Context, tx *sql.Tx, cp *Checkpoint) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_checkpoints (
			id, event_seq, event_hash, ts, prev_checkpoint_id, prev_checkpoint_hash,
			signature_alg, public_key_id, signature, signed_payload, event_count
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		cp.ID, cp.EventSeq, cp.EventHash, cp.TS, cp.PrevCheckpointID, cp.PrevCheckpointHash,
		cp.SignatureAlg, cp.PublicKeyID, cp.Signature, cp.SignedPayload, cp.EventCount)
	if err != nil {
		return fmt.Errorf("insert checkpoint: %w", err)
	}
	return nil
}

// InsertAnchorReceipt persists an anchor receipt. Unlike events and
// checkpoints, receipts are written by the caller after the triggering
// transaction has committed (spec §3 lifecycle), so it runs on the
// client's plain *sql.DB rather than on a *sql.Tx.
func (r *Repository) InsertAnchorReceipt(ctx context.Context, ar *AnchorReceipt) error {
	_, err := r.client.db.ExecContext(ctx, `
		INSERT INTO audit_anchor_receipts (
			id, checkpoint_id, checkpoint_seq, anchor_type, anchor_id,
			anchored_at, anchor_hash, anchor_payload, proof
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		ar.ID, ar.CheckpointID, ar.CheckpointSeq, ar.AnchorType, ar.AnchorID,
		ar.AnchoredAt, ar.AnchorHash, json.RawMessage(ar.AnchorPayload), json.RawMessage(ar.Proof))
	if err != nil {
		return fmt.Errorf("insert anchor receipt: %w", err)
	}
	return nil
}

// LatestEventSeq returns MAX(seq) over audit_events, or 0 if empty. Used
// by the chain engine to recover the head on startup (spec §4.2 "Failure
// modes").
func (r *Repository) LatestEventSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := r.client.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM audit_events`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("query latest seq: %w", err)
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}

// GetEvent fetches a single event by seq.
func (r *Repository) GetEvent(ctx context.Context, seq int64) (*Event, error) {
	e := &Event{}
	err := r.client.db.QueryRowContext(ctx, `
		SELECT seq, ts, action, actor, receipt_id, export_id, saved_view_id,
			payload, ip, user_agent, prev_hash, hash, schema_version, payload_v, created_at
		FROM audit_events WHERE seq = $1`, seq).Scan(
		&e.Seq, &e.TS, &e.Action, &e.Actor, &e.ReceiptID, &e.ExportID, &e.SavedViewID,
		&e.Payload, &e.IP, &e.UserAgent, &e.PrevHash, &e.Hash, &e.SchemaVersion, &e.PayloadV, &e.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// GetEventRange returns events with seq in [fromSeq, toSeq], in seq order.
func (r *Repository) GetEventRange(ctx context.Context, fromSeq, toSeq int64) ([]*Event, error) {
	rows, err := r.client.db.QueryContext(ctx, `
		SELECT seq, ts, action, actor, receipt_id, export_id, saved_view_id,
			payload, ip, user_agent, prev_hash, hash, schema_version, payload_v, created_at
		FROM audit_events WHERE seq >= $1 AND seq <= $2 ORDER BY seq ASC`, fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("query event range: %w", err)
	}
	defer rows.Close()

	var out []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.Seq, &e.TS, &e.Action, &e.Actor, &e.ReceiptID, &e.ExportID, &e.SavedViewID,
			&e.Payload, &e.IP, &e.UserAgent, &e.PrevHash, &e.Hash, &e.SchemaVersion, &e.PayloadV, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// GetHead returns the current head row, or ErrHeadNotFound if absent.
func (r *Repository) GetHead(ctx context.Context) (*Head, error) {
	h := &Head{}
	err := r.client.db.QueryRowContext(ctx,
		`SELECT last_seq, last_hash FROM audit_head WHERE id = 1`).Scan(&h.LastSeq, &h.LastHash)
	if err == sql.ErrNoRows {
		return nil, ErrHeadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get head: %w", err)
	}
	return h, nil
}

// GetCheckpointsInRange returns checkpoints whose event_seq falls in
// [fromSeq, toSeq], ordered by event_seq.
func (r *Repository) GetCheckpointsInRange(ctx context.Context, fromSeq, toSeq int64) ([]*Checkpoint, error) {
	rows, err := r.client.db.QueryContext(ctx, `
		SELECT id, event_seq, event_hash, ts, prev_checkpoint_id, prev_checkpoint_hash,
			signature_alg, public_key_id, signature, signed_payload, event_count, created_at
		FROM audit_checkpoints WHERE event_seq >= $1 AND event_seq <= $2 ORDER BY event_seq ASC`,
		fromSeq, toSeq)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var out []*Checkpoint
	for rows.Next() {
		cp := &Checkpoint{}
		if err := rows.Scan(&cp.ID, &cp.EventSeq, &cp.EventHash, &cp.TS, &cp.PrevCheckpointID, &cp.PrevCheckpointHash,
			&cp.SignatureAlg, &cp.PublicKeyID, &cp.Signature, &cp.SignedPayload, &cp.EventCount, &cp.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		out = append(out, cp)
	}
	return out, rows.Err()
}

// GetLatestCheckpoint returns the most recently created checkpoint, or
// ErrCheckpointNotFound if none exist yet.
func (r *Repository) GetLatestCheckpoint(ctx context.Context) (*Checkpoint, error) {
	cp := &Checkpoint{}
	err := r.client.db.QueryRowContext(ctx, `
		SELECT id, event_seq, event_hash, ts, prev_checkpoint_id, prev_checkpoint_hash,
			signature_alg, public_key_id, signature, signed_payload, event_count, created_at
		FROM audit_checkpoints ORDER BY event_seq DESC LIMIT 1`).Scan(
		&cp.ID, &cp.EventSeq, &cp.EventHash, &cp.TS, &cp.PrevCheckpointID, &cp.PrevCheckpointHash,
		&cp.SignatureAlg, &cp.PublicKeyID, &cp.Signature, &cp.SignedPayload, &cp.EventCount, &cp.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrCheckpointNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get latest checkpoint: %w", err)
	}
	return cp, nil
}

// GetAnchorReceiptsForCheckpoints returns receipts bound to any of the
// given checkpoint IDs.
func (r *Repository) GetAnchorReceiptsForCheckpoints(ctx context.Context, checkpointIDs []string) ([]*AnchorReceipt, error) {
	if len(checkpointIDs) == 0 {
		return nil, nil
	}
	rows, err := r.client.db.QueryContext(ctx, `
		SELECT id, checkpoint_id, checkpoint_seq, anchor_type, anchor_id,
			anchored_at, anchor_hash, anchor_payload, proof, created_at
		FROM audit_anchor_receipts WHERE checkpoint_id = ANY($1) ORDER BY checkpoint_seq ASC`,
		pq.Array(checkpointIDs))
	if err != nil {
		return nil, fmt.Errorf("query anchor receipts: %w", err)
	}
	defer rows.Close()

	var out []*AnchorReceipt
	for rows.Next() {
		ar := &AnchorReceipt{}
		if err := rows.Scan(&ar.ID, &ar.CheckpointID, &ar.CheckpointSeq, &ar.AnchorType, &ar.AnchorID,
			&ar.AnchoredAt, &ar.AnchorHash, &ar.AnchorPayload, &ar.Proof, &ar.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan anchor receipt: %w", err)
		}
		out = append(out, ar)
	}
	return out, rows.Err()
}

// CountEvents returns the total number of events in the table.
func (r *Repository) CountEvents(ctx context.Context) (int64, error) {
	var n int64
	err := r.client.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_events`).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count events: %w", err)
	}
	return n, nil
}
