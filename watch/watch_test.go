package watch

import (
	"context"
	"database/sql"
	"sync/atomic"
	"testing"
	"time"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatal(err)
	}
	// Force single connection so PRAGMA changes are visible to all callers.
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestPragmaDataVersion(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	v, err := PragmaDataVersion(ctx, db)
	if err != nil {
		t.Fatal(err)
	}
	if v < 0 {
		t.Fatalf("expected non-negative version, got %d", v)
	}
}

func TestOnChangeFires(t *testing.T) {
	db := testDB(t)

	// user_version doubles as a controllable change detector.
	det := func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
		return v, err
	}

	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: det})

	var fired atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func() error {
		fired.Add(1)
		return nil
	})

	// Let the watcher seed the initial version, then bump it.
	time.Sleep(30 * time.Millisecond)
	if _, err := db.Exec("PRAGMA user_version = 7"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for fired.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if fired.Load() == 0 {
		t.Fatal("action never fired after version change")
	}
}

func TestOnChangeRetriesOnActionError(t *testing.T) {
	db := testDB(t)

	det := func(ctx context.Context, db *sql.DB) (int64, error) {
		var v int64
		err := db.QueryRowContext(ctx, "PRAGMA user_version").Scan(&v)
		return v, err
	}

	w := New(db, Options{Interval: 10 * time.Millisecond, Detector: det})

	var calls atomic.Int64
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.OnChange(ctx, func() error {
		if calls.Add(1) == 1 {
			return context.DeadlineExceeded // any error: version must not advance
		}
		return nil
	})

	time.Sleep(30 * time.Millisecond)
	if _, err := db.Exec("PRAGMA user_version = 3"); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if calls.Load() < 2 {
		t.Fatalf("action called %d times, want retry after failure", calls.Load())
	}
}
