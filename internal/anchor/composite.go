// Copyright 2025 Lantern Protocol

package anchor

import (
	"context"
	"encoding/json"
	"fmt"
)

// CompositeBackend fans a single Publish out to every child backend and
// succeeds if at least minOK children do, aggregating all child proofs
// into one receipt whose proof is {"type":"multi","receipts":[...]}.
// Unlike Publisher (which persists one receipt per
// backend), CompositeBackend is useful when a single anchor_type slot
// should itself represent "anchored to at least N independent media".
type CompositeBackend struct {
	children []Backend
	minOK    int
}

// NewCompositeBackend requires at least minOK of children to succeed.
func NewCompositeBackend(minOK int, children ...Backend) *CompositeBackend {
	return &CompositeBackend{children: children, minOK: minOK}
}

func (b *CompositeBackend) Type() string { return "composite" }

func (b *CompositeBackend) Publish(ctx context.Context, in PublishInput) (string, []byte, error) {
	type childResult struct {
		Type     string          `json:"type"`
		AnchorID string          `json:"anchor_id,omitempty"`
		Proof    json.RawMessage `json:"proof,omitempty"`
		Error    string          `json:"error,omitempty"`
	}

	var results []childResult
	ok := 0
	for _, child := range b.children {
		anchorID, proof, err := child.Publish(ctx, in)
		if err != nil {
			results = append(results, childResult{Type: child.Type(), Error: err.Error()})
			continue
		}
		ok++
		results = append(results, childResult{Type: child.Type(), AnchorID: anchorID, Proof: proof})
	}

	if ok < b.minOK {
		return "", nil, fmt.Errorf("composite anchor: only %d/%d backends succeeded, need %d", ok, len(b.children), b.minOK)
	}

	proofBytes, err := json.Marshal(struct {
		Type     string        `json:"type"`
		Receipts []childResult `json:"receipts"`
	}{Type: "multi", Receipts: results})
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("composite:%s:%d/%d", in.CheckpointID, ok, len(b.children)), proofBytes, nil
}
