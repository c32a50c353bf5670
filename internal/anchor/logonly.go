// Copyright 2025 Lantern Protocol

package anchor

import (
	"context"
	"encoding/json"
	"log"

	"github.com/lanternledger/ledger/internal/canon"
)

// LogOnlyBackend anchors by writing the checkpoint id and the payload's
// hash to a structured log line. It provides no external durability and
// exists for local development and for anchors_mode=optional fan-out
// alongside stronger backends.
type LogOnlyBackend struct {
	logger *log.Logger
}

// NewLogOnlyBackend constructs a LogOnlyBackend. logger defaults to the
// standard library's global logger when nil.
func NewLogOnlyBackend(logger *log.Logger) *LogOnlyBackend {
	if logger == nil {
		logger = log.Default()
	}
	return &LogOnlyBackend{logger: logger}
}

func (b *LogOnlyBackend) Type() string { return "log-only" }

func (b *LogOnlyBackend) Publish(ctx context.Context, in PublishInput) (string, []byte, error) {
	hash := canon.SHA256Hex(in.Payload)
	anchorID := "log:" + in.CheckpointID
	b.logger.Printf("anchor publish backend=log-only checkpoint=%s hash=%s", in.CheckpointID, hash)

	proof := struct {
		Logged       bool   `json:"logged"`
		CheckpointID string `json:"checkpoint_id"`
		PayloadHex   string `json:"payload_sha256"`
	}{
		Logged:       true,
		CheckpointID: in.CheckpointID,
		PayloadHex:   hash,
	}
	proofBytes, err := json.Marshal(proof)
	if err != nil {
		return "", nil, err
	}
	return anchorID, proofBytes, nil
}
