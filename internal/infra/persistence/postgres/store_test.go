package postgres_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"testing"

	"spatialcore/internal/infra/persistence/postgres"
	"spatialcore/internal/infra/persistence/postgres/testutil"
	"spatialcore/pkg/domain"
)

func withStubDB(t *testing.T) *testutil.StubConn {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := postgres.OverrideSQLOpen(func(string, string) (*sql.DB, error) {
		return db, nil
	})
	t.Cleanup(restore)
	return conn
}

func TestNewStoreEnsuresStateTable(t *testing.T) {
	conn := withStubDB(t)

	store, err := postgres.NewStore("", nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()

	if len(conn.Execs) == 0 {
		t.Fatalf("expected DDL exec on startup")
	}
}

func TestRunInTransactionSnapshotsToPostgres(t *testing.T) {
	conn := withStubDB(t)

	store, err := postgres.NewStore("postgres://stub/spatialcore", nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()

	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateRun(domain.RunRecord{ID: "r1", Dataset: "section_a", Concordance: 0.81})
		return err
	}); err != nil {
		t.Fatalf("transaction: %v", err)
	}

	payload, ok := conn.Buckets["runs"]
	if !ok {
		t.Fatalf("expected runs bucket snapshot")
	}
	var runs []domain.RunRecord
	if err := json.Unmarshal(payload, &runs); err != nil {
		t.Fatalf("decode snapshot: %v", err)
	}
	if len(runs) != 1 || runs[0].ID != "r1" || runs[0].Dataset != "section_a" {
		t.Fatalf("unexpected snapshot contents: %+v", runs)
	}
}

func TestNewStoreHydratesFromSnapshot(t *testing.T) {
	conn := withStubDB(t)
	payload, err := json.Marshal([]domain.RunRecord{{ID: "r7", Dataset: "section_b", Units: 1200}})
	if err != nil {
		t.Fatalf("marshal seed: %v", err)
	}
	conn.Buckets["runs"] = payload

	store, err := postgres.NewStore("", nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer func() { _ = store.Close() }()

	got, ok := store.GetRun("r7")
	if !ok || got.Dataset != "section_b" || got.Units != 1200 {
		t.Fatalf("unexpected hydrated run: ok=%v %+v", ok, got)
	}
}

func TestNewStoreFailsWhenPingFails(t *testing.T) {
	conn := withStubDB(t)
	conn.FailPing = true

	if _, err := postgres.NewStore("", nil); err == nil {
		t.Fatalf("expected ping error")
	}
}
