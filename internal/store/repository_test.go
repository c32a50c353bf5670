// Copyright 2025 Lantern Protocol

package store

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// These tests exercise Repository against a real PostgreSQL database. They
// are skipped entirely unless LEDGER_TEST_DB names a reachable connection
// string, since the audit chain's locking and transactional semantics
// cannot be faithfully exercised against a mock.
var testClient *Client

func TestMain(m *testing.M) {
	connStr := os.Getenv("LEDGER_TEST_DB")
	if connStr == "" {
		os.Exit(0)
	}

	var err error
	testClient, err = NewClient(Config{DatabaseURL: connStr})
	if err != nil {
		panic("connect test database: " + err.Error())
	}
	if err := testClient.Migrate(context.Background()); err != nil {
		panic("migrate test database: " + err.Error())
	}

	code := m.Run()
	testClient.Close()
	os.Exit(code)
}

func freshRepo(t *testing.T) *Repository {
	t.Helper()
	if testClient == nil {
		t.Skip("LEDGER_TEST_DB not configured")
	}
	db := testClient.DB()
	for _, stmt := range []string{
		`DELETE FROM audit_anchor_receipts`,
		`DELETE FROM audit_checkpoints`,
		`DELETE FROM audit_events`,
		`DELETE FROM audit_head`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("reset table: %v", err)
		}
	}
	return NewRepository(testClient)
}

func insertOneEvent(t *testing.T, repo *Repository, seq int64, prevHash string) *Event {
	t.Helper()
	ctx := context.Background()
	tx, err := repo.Tx(ctx)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if _, err := repo.LockHead(ctx, tx); err != nil {
		t.Fatalf("lock head: %v", err)
	}
	e := &Event{
		Seq: seq, TS: time.Now().UTC().Format(time.RFC3339), Action: "view", Actor: "tester",
		Payload: `{}`, PrevHash: prevHash, Hash: fmt.Sprintf("hash-%d", seq),
		SchemaVersion: "audit/1.1", PayloadV: 1,
	}
	if err := repo.InsertEvent(ctx, tx, e); err != nil {
		t.Fatalf("insert event: %v", err)
	}
	if err := repo.UpdateHead(ctx, tx, seq, e.Hash); err != nil {
		t.Fatalf("update head: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}
	return e
}

func TestLockHeadCreatesGenesisWhenAbsent(t *testing.T) {
	repo := freshRepo(t)
	ctx := context.Background()

	tx, err := repo.Tx(ctx)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	defer tx.Rollback()

	head, err := repo.LockHead(ctx, tx)
	if err != nil {
		t.Fatalf("lock head: %v", err)
	}
	if head.LastSeq != 0 || head.LastHash != "GENESIS" {
		t.Fatalf("expected genesis head, got %+v", head)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	head2, err := repo.GetHead(ctx)
	if err != nil {
		t.Fatalf("get head: %v", err)
	}
	if head2.LastSeq != 0 || head2.LastHash != "GENESIS" {
		t.Fatalf("expected persisted genesis head, got %+v", head2)
	}
}

func TestGetHeadReturnsErrHeadNotFoundBeforeFirstLock(t *testing.T) {
	repo := freshRepo(t)
	_, err := repo.GetHead(context.Background())
	if err != ErrHeadNotFound {
		t.Fatalf("expected ErrHeadNotFound, got %v", err)
	}
}

func TestInsertEventAndGetEventRoundTrip(t *testing.T) {
	repo := freshRepo(t)
	ctx := context.Background()

	inserted := insertOneEvent(t, repo, 1, "GENESIS")

	got, err := repo.GetEvent(ctx, 1)
	if err != nil {
		t.Fatalf("get event: %v", err)
	}
	if got.Seq != inserted.Seq || got.Hash != inserted.Hash || got.PrevHash != "GENESIS" {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, inserted)
	}

	if _, err := repo.GetEvent(ctx, 999); err != ErrEventNotFound {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
}

func TestGetEventRangeOrdersBySeq(t *testing.T) {
	repo := freshRepo(t)
	ctx := context.Background()

	prev := "GENESIS"
	for seq := int64(1); seq <= 5; seq++ {
		e := insertOneEvent(t, repo, seq, prev)
		prev = e.Hash
	}

	events, err := repo.GetEventRange(ctx, 2, 4)
	if err != nil {
		t.Fatalf("get event range: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("expected 3 events, got %d", len(events))
	}
	for i, e := range events {
		if e.Seq != int64(2+i) {
			t.Fatalf("expected ordered seqs starting at 2, got %d at index %d", e.Seq, i)
		}
	}
}

func TestLatestEventSeqAndCountEvents(t *testing.T) {
	repo := freshRepo(t)
	ctx := context.Background()

	seq, err := repo.LatestEventSeq(ctx)
	if err != nil {
		t.Fatalf("latest event seq: %v", err)
	}
	if seq != 0 {
		t.Fatalf("expected 0 on empty table, got %d", seq)
	}

	prev := "GENESIS"
	for i := int64(1); i <= 3; i++ {
		e := insertOneEvent(t, repo, i, prev)
		prev = e.Hash
	}

	seq, err = repo.LatestEventSeq(ctx)
	if err != nil {
		t.Fatalf("latest event seq: %v", err)
	}
	if seq != 3 {
		t.Fatalf("expected latest seq 3, got %d", seq)
	}

	count, err := repo.CountEvents(ctx)
	if err != nil {
		t.Fatalf("count events: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected 3 events, got %d", count)
	}
}

func TestLockHeadSerializesConcurrentAppends(t *testing.T) {
	repo := freshRepo(t)
	ctx := context.Background()

	// seed genesis head
	tx0, err := repo.Tx(ctx)
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if _, err := repo.LockHead(ctx, tx0); err != nil {
		t.Fatalf("lock head: %v", err)
	}
	if err := tx0.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	tx1, err := repo.Tx(ctx)
	if err != nil {
		t.Fatalf("begin tx1: %v", err)
	}
	if _, err := repo.LockHead(ctx, tx1); err != nil {
		t.Fatalf("lock head tx1: %v", err)
	}

	unblocked := make(chan struct{})
	go func() {
		tx2, err := repo.Tx(ctx)
		if err != nil {
			return
		}
		defer tx2.Rollback()
		// This must block until tx1 commits or rolls back, since both
		// lock the same singleton head row.
		_, _ = repo.LockHead(ctx, tx2)
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("second LockHead returned before first transaction released the row lock")
	case <-time.After(200 * time.Millisecond):
		// expected: still blocked
	}

	if err := tx1.Rollback(); err != nil {
		t.Fatalf("rollback tx1: %v", err)
	}

	select {
	case <-unblocked:
	case <-time.After(2 * time.Second):
		t.Fatal("second LockHead never unblocked after first transaction released the row lock")
	}
}
