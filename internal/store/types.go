// Copyright 2025 Lantern Protocol

package store

import "time"

// Event is one durable audit-ledger row (spec §3 Event).
type Event struct {
	Seq           int64
	TS            string
	Action        string
	Actor         string
	ReceiptID     *string
	ExportID      *string
	SavedViewID   *string
	Payload       string
	IP            *string
	UserAgent     *string
	PrevHash      string
	Hash          string
	SchemaVersion string
	PayloadV      int
	CreatedAt     time.Time
}

// Head is the singleton head row (spec §3 Head).
type Head struct {
	LastSeq  int64
	LastHash string
}

// Checkpoint is a durable signed checkpoint row (spec §3 Checkpoint).
type Checkpoint struct {
	ID                 string
	EventSeq           int64
	EventHash          string
	TS                 string
	PrevCheckpointID   *string
	PrevCheckpointHash *string
	SignatureAlg       string
	PublicKeyID        string
	Signature          string // base64
	SignedPayload      string // canonical string that was signed
	EventCount         int
	CreatedAt          time.Time
}

// AnchorReceipt is a durable anchor receipt row (spec §3 Anchor Receipt).
type AnchorReceipt struct {
	ID            string
	CheckpointID  string
	CheckpointSeq int64
	AnchorType    string
	AnchorID      string
	AnchoredAt    time.Time
	AnchorHash    string
	AnchorPayload []byte // canonical JSON, stored as JSONB
	Proof         []byte // backend-specific JSON, stored as JSONB
	CreatedAt     time.Time
}
