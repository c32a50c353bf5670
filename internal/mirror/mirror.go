// Copyright 2025 Lantern Protocol
//
// Package mirror provides an optional, non-authoritative Firestore
// mirror of checkpoints and anchor receipts for dashboard queries. It
// is never consulted by internal/verify: the mirror can fall behind
// or be disabled entirely without affecting what the offline verifier
// considers trustworthy.

package mirror

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	gcpfirestore "cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"

	"github.com/lanternledger/ledger/internal/store"
)

// Client wraps a Firestore client for mirroring ledger state. With
// Enabled false, every method is a no-op.
type Client struct {
	app       *firebase.App
	firestore *gcpfirestore.Client
	projectID string
	logger    *log.Logger
	enabled   bool
	mu        sync.RWMutex
}

// Config configures the mirror client.
type Config struct {
	ProjectID       string
	CredentialsFile string
	Enabled         bool
	Logger          *log.Logger
}

// New creates a Client. When cfg.Enabled is false, it returns a no-op
// client without contacting Firestore.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = log.New(os.Stdout, "[mirror] ", log.LstdFlags)
	}

	c := &Client{projectID: cfg.ProjectID, logger: cfg.Logger, enabled: cfg.Enabled}
	if !cfg.Enabled {
		cfg.Logger.Println("Firestore mirror disabled - running in no-op mode")
		return c, nil
	}
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("mirror: project id is required when enabled")
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("mirror: init firebase app: %w", err)
	}
	fsClient, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("mirror: create firestore client: %w", err)
	}

	c.app = app
	c.firestore = fsClient
	cfg.Logger.Printf("Firestore mirror initialized for project: %s", cfg.ProjectID)
	return c, nil
}

// Close releases the underlying Firestore client.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.firestore != nil {
		return c.firestore.Close()
	}
	return nil
}

// IsEnabled reports whether mirroring is active.
func (c *Client) IsEnabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enabled
}

// MirrorCheckpoint upserts a signed checkpoint into the
// `ledger_checkpoints` collection for dashboard queries. A failure
// here never affects the authoritative Postgres record.
func (c *Client) MirrorCheckpoint(ctx context.Context, cp *store.Checkpoint) error {
	if !c.IsEnabled() {
		return nil
	}
	doc := c.firestore.Collection("ledger_checkpoints").Doc(cp.ID)
	_, err := doc.Set(ctx, map[string]interface{}{
		"id":            cp.ID,
		"event_seq":     cp.EventSeq,
		"event_hash":    cp.EventHash,
		"ts":            cp.TS,
		"public_key_id": cp.PublicKeyID,
		"signature_alg": cp.SignatureAlg,
		"event_count":   cp.EventCount,
	})
	if err != nil {
		c.logger.Printf("mirror checkpoint %s failed: %v", cp.ID, err)
		return fmt.Errorf("mirror checkpoint: %w", err)
	}
	return nil
}

// MirrorAnchorReceipt upserts an anchor receipt into the
// `ledger_anchor_receipts` collection.
func (c *Client) MirrorAnchorReceipt(ctx context.Context, r *store.AnchorReceipt) error {
	if !c.IsEnabled() {
		return nil
	}
	doc := c.firestore.Collection("ledger_anchor_receipts").Doc(r.ID)
	_, err := doc.Set(ctx, map[string]interface{}{
		"id":             r.ID,
		"checkpoint_id":  r.CheckpointID,
		"checkpoint_seq": r.CheckpointSeq,
		"anchor_type":    r.AnchorType,
		"anchor_id":      r.AnchorID,
		"anchored_at":    r.AnchoredAt,
		"anchor_hash":    r.AnchorHash,
	})
	if err != nil {
		c.logger.Printf("mirror anchor receipt %s failed: %v", r.ID, err)
		return fmt.Errorf("mirror anchor receipt: %w", err)
	}
	return nil
}
