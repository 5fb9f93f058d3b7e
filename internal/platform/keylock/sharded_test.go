package keylock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestShardedLockerSerializesSameKey(t *testing.T) {
	locker := NewShardedLocker(4)
	var active int32
	var maxActive int32
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Lock(context.Background(), "mp-1|2025-01-01|2025-02-01")
			if err != nil {
				t.Errorf("lock: %v", err)
				return
			}
			n := atomic.AddInt32(&active, 1)
			for {
				m := atomic.LoadInt32(&maxActive)
				if n <= m || atomic.CompareAndSwapInt32(&maxActive, m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
			unlock()
		}()
	}
	wg.Wait()

	if maxActive != 1 {
		t.Fatalf("expected at most one holder, got %d", maxActive)
	}
}

func TestShardedLockerIndependentKeys(t *testing.T) {
	locker := NewShardedLocker(1)
	unlockA, err := locker.Lock(context.Background(), "a")
	if err != nil {
		t.Fatalf("lock a: %v", err)
	}
	defer unlockA()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	unlockB, err := locker.Lock(ctx, "b")
	if err != nil {
		t.Fatalf("lock b should not wait for a: %v", err)
	}
	unlockB()
}

func TestShardedLockerContextCancel(t *testing.T) {
	locker := NewShardedLocker(0)
	unlock, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := locker.Lock(ctx, "k"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}

	unlock()
	unlock()
	again, err := locker.Lock(context.Background(), "k")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()

	shard := locker.shard("k")
	shard.mu.Lock()
	defer shard.mu.Unlock()
	if len(shard.slots) != 0 {
		t.Fatalf("expected slots to be released, got %d", len(shard.slots))
	}
}

func TestShardedLockerEmptyKey(t *testing.T) {
	if _, err := NewShardedLocker(2).Lock(context.Background(), ""); !errors.Is(err, ErrEmptyKey) {
		t.Fatalf("expected ErrEmptyKey, got %v", err)
	}
}

func TestHashKeyStable(t *testing.T) {
	if HashKey("mp-1|2025-01-01|2025-02-01") != HashKey("mp-1|2025-01-01|2025-02-01") {
		t.Fatalf("expected stable hash")
	}
	if HashKey("a") == HashKey("b") {
		t.Fatalf("expected distinct hashes")
	}
}
