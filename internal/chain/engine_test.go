// Copyright 2025 Lantern Protocol

package chain

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/lanternledger/ledger/internal/store"

	_ "github.com/lib/pq" // PostgreSQL driver
)

// Engine.AppendEvent and RecoverHead need real transactional locking
// semantics, so these tests run against PostgreSQL when LEDGER_TEST_DB
// names a reachable connection string, and are skipped otherwise.
var testStoreClient *store.Client

func TestMain(m *testing.M) {
	connStr := os.Getenv("LEDGER_TEST_DB")
	if connStr == "" {
		os.Exit(0)
	}

	var err error
	testStoreClient, err = store.NewClient(store.Config{DatabaseURL: connStr})
	if err != nil {
		panic("connect test database: " + err.Error())
	}
	if err := testStoreClient.Migrate(context.Background()); err != nil {
		panic("migrate test database: " + err.Error())
	}

	code := m.Run()
	testStoreClient.Close()
	os.Exit(code)
}

func freshEngine(t *testing.T, checkpointer Checkpointer) (*Engine, *store.Repository) {
	t.Helper()
	if testStoreClient == nil {
		t.Skip("LEDGER_TEST_DB not configured")
	}
	db := testStoreClient.DB()
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
	repo := store.NewRepository(testStoreClient)
	return NewEngine(repo, checkpointer), repo
}

func appendN(t *testing.T, e *Engine, n int) []*store.Event {
	t.Helper()
	var out []*store.Event
	for i := 0; i < n; i++ {
		ev, _, err := e.AppendEvent(context.Background(), Fields{
			TS: "2026-01-01T00:00:00Z", Action: "view", Actor: "tester",
			Payload: fmt.Sprintf(`{"i":%d}`, i),
		})
		if err != nil {
			t.Fatalf("append event %d: %v", i, err)
		}
		out = append(out, ev)
	}
	return out
}

func TestAppendEventAssignsMonotoneSeqAndPrevHashLinkage(t *testing.T) {
	e, _ := freshEngine(t, nil)
	events := appendN(t, e, 5)

	prevHash := "GENESIS"
	for i, ev := range events {
		wantSeq := int64(i + 1)
		if ev.Seq != wantSeq {
			t.Fatalf("event %d: expected seq %d, got %d", i, wantSeq, ev.Seq)
		}
		if ev.PrevHash != prevHash {
			t.Fatalf("event %d: expected prev_hash %q, got %q", i, prevHash, ev.PrevHash)
		}
		if ev.Hash == "" {
			t.Fatalf("event %d: empty hash", i)
		}
		prevHash = ev.Hash
	}
}

func TestAppendEventUpdatesHeadEachCall(t *testing.T) {
	e, repo := freshEngine(t, nil)
	events := appendN(t, e, 3)

	head, err := repo.GetHead(context.Background())
	if err != nil {
		t.Fatalf("get head: %v", err)
	}
	last := events[len(events)-1]
	if head.LastSeq != last.Seq || head.LastHash != last.Hash {
		t.Fatalf("expected head to match last event (seq=%d hash=%s), got %+v", last.Seq, last.Hash, head)
	}
}

// stubCheckpointer lets the test control exactly when a checkpoint fires
// without depending on internal/checkpoint's signing logic.
type stubCheckpointer struct {
	every int64
	calls int
}

func (s *stubCheckpointer) MaybeCheckpoint(ctx context.Context, tx *sql.Tx, repo *store.Repository, eventSeq int64, eventHash string) (*store.Checkpoint, error) {
	if s.every <= 0 || eventSeq%s.every != 0 {
		return nil, nil
	}
	s.calls++
	cp := &store.Checkpoint{
		ID: fmt.Sprintf("cp-%d", eventSeq), EventSeq: eventSeq, EventHash: eventHash,
		TS: "2026-01-01T00:00:00Z", SignatureAlg: "Ed25519", PublicKeyID: "test-key",
		Signature: "c2ln", SignedPayload: `{"event_seq":` + fmt.Sprint(eventSeq) + `}`, EventCount: int(eventSeq),
	}
	if err := repo.InsertCheckpoint(ctx, tx, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func TestAppendEventInvokesCheckpointerOnInterval(t *testing.T) {
	cp := &stubCheckpointer{every: 3}
	e, _ := freshEngine(t, cp)

	var lastCheckpoint *store.Checkpoint
	for i := 0; i < 5; i++ {
		_, got, err := e.AppendEvent(context.Background(), Fields{
			TS: "2026-01-01T00:00:00Z", Action: "view", Actor: "tester", Payload: `{}`,
		})
		if err != nil {
			t.Fatalf("append event %d: %v", i, err)
		}
		if got != nil {
			lastCheckpoint = got
		}
	}
	if cp.calls != 1 {
		t.Fatalf("expected exactly 1 checkpoint over 5 events at interval 3, got %d", cp.calls)
	}
	if lastCheckpoint == nil || lastCheckpoint.EventSeq != 3 {
		t.Fatalf("expected checkpoint at seq 3, got %+v", lastCheckpoint)
	}
}

func TestRecoverHeadRepairsFromLatestEvent(t *testing.T) {
	e, repo := freshEngine(t, nil)
	events := appendN(t, e, 4)
	last := events[len(events)-1]

	// simulate a crash that left the head row behind the true latest event
	tx, err := repo.Tx(context.Background())
	if err != nil {
		t.Fatalf("begin tx: %v", err)
	}
	if _, err := repo.LockHead(context.Background(), tx); err != nil {
		t.Fatalf("lock head: %v", err)
	}
	if err := repo.UpdateHead(context.Background(), tx, events[1].Seq, events[1].Hash); err != nil {
		t.Fatalf("regress head: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	if err := e.RecoverHead(context.Background()); err != nil {
		t.Fatalf("recover head: %v", err)
	}

	head, err := repo.GetHead(context.Background())
	if err != nil {
		t.Fatalf("get head: %v", err)
	}
	if head.LastSeq != last.Seq || head.LastHash != last.Hash {
		t.Fatalf("expected head repaired to (seq=%d hash=%s), got %+v", last.Seq, last.Hash, head)
	}
}

func TestRecoverHeadNoOpOnEmptyLedger(t *testing.T) {
	e, repo := freshEngine(t, nil)
	if err := e.RecoverHead(context.Background()); err != nil {
		t.Fatalf("recover head on empty ledger: %v", err)
	}
	if _, err := repo.GetHead(context.Background()); err != store.ErrHeadNotFound {
		t.Fatalf("expected ErrHeadNotFound on untouched empty ledger, got %v", err)
	}
}
