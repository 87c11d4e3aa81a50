package leaselock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type fakeRow struct {
	key string
	err error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	*(dest[0].(*string)) = r.key
	return nil
}

// fakeDB keeps app_locks in a map and ignores expiry.
type fakeDB struct {
	mu    sync.Mutex
	locks map[string]string
}

func newFakeDB() *fakeDB {
	return &fakeDB{locks: make(map[string]string)}
}

func (f *fakeDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	switch sql {
	case tryAcquireSQL:
		if held, ok := f.locks[key]; ok && held != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		f.locks[key] = token
		return fakeRow{key: key}
	case renewSQL:
		if f.locks[key] != token {
			return fakeRow{err: pgx.ErrNoRows}
		}
		return fakeRow{key: key}
	}
	return fakeRow{err: errors.New("unexpected query")}
}

func (f *fakeDB) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key, token := args[0].(string), args[1].(string)
	if sql == releaseSQL && f.locks[key] == token {
		delete(f.locks, key)
		return pgconn.NewCommandTag("DELETE 1"), nil
	}
	return pgconn.NewCommandTag("DELETE 0"), nil
}

func TestAcquireBusyAndRelease(t *testing.T) {
	ctx := context.Background()
	c := New(newFakeDB())
	key := MergeKey("user-1")

	lease, err := c.Acquire(ctx, key, Options{})
	if err != nil {
		t.Fatalf("expected lease, got %v", err)
	}
	if _, err := c.Acquire(ctx, key, Options{}); !errors.Is(err, ErrBusy) {
		t.Fatalf("expected ErrBusy, got %v", err)
	}
	if _, err := c.Acquire(ctx, MergeKey("user-2"), Options{}); err != nil {
		t.Fatalf("expected other user's lease to be free, got %v", err)
	}

	if err := lease.Release(ctx); err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if lease.Context.Err() == nil {
		t.Fatal("expected lease context cancelled after release")
	}
	if _, err := c.Acquire(ctx, key, Options{}); err != nil {
		t.Fatalf("expected lease after release, got %v", err)
	}
}

func TestAcquireWaitsUntilFree(t *testing.T) {
	ctx := context.Background()
	c := New(newFakeDB())
	key := MergeKey("user-1")

	first, err := c.Acquire(ctx, key, Options{})
	if err != nil {
		t.Fatalf("expected lease, got %v", err)
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = first.Release(context.Background())
	}()

	second, err := c.Acquire(ctx, key, Options{Wait: true, WaitInterval: 5 * time.Millisecond})
	if err != nil {
		t.Fatalf("expected lease after waiting, got %v", err)
	}
	_ = second.Release(ctx)
}

func TestAcquireWaitHonoursContext(t *testing.T) {
	c := New(newFakeDB())
	key := MergeKey("user-1")
	if _, err := c.Acquire(context.Background(), key, Options{}); err != nil {
		t.Fatalf("expected lease, got %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.Acquire(ctx, key, Options{Wait: true, WaitInterval: 5 * time.Millisecond})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestWithLease(t *testing.T) {
	ctx := context.Background()
	db := newFakeDB()
	c := New(db)
	key := MergeKey("user-1")

	ran := false
	err := c.WithLease(ctx, key, Options{}, func(ctx context.Context) error {
		ran = true
		if _, err := c.Acquire(ctx, key, Options{}); !errors.Is(err, ErrBusy) {
			t.Fatalf("expected ErrBusy inside lease, got %v", err)
		}
		return nil
	})
	if err != nil || !ran {
		t.Fatalf("expected fn to run without error, got ran=%v err=%v", ran, err)
	}
	if len(db.locks) != 0 {
		t.Fatalf("expected lock released, got %v", db.locks)
	}

	boom := errors.New("boom")
	if err := c.WithLease(ctx, key, Options{}, func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}
}

func TestAcquireEmptyKey(t *testing.T) {
	if _, err := New(newFakeDB()).Acquire(context.Background(), "", Options{}); err == nil {
		t.Fatal("expected error for empty key")
	}
}
