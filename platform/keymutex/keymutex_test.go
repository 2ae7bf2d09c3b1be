package keymutex

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestMutex(t *testing.T) *Mutex {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return New(client)
}

func TestLockSerializesSameKey(t *testing.T) {
	m := newTestMutex(t)
	ctx := context.Background()

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "lead:abc")
			if err != nil {
				t.Errorf("lock failed: %v", err)
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			unlock()
		}(i)
	}
	wg.Wait()

	if len(order) != 4 {
		t.Fatalf("expected 4 critical sections, got %d", len(order))
	}
}

func TestLockDifferentKeysDoNotBlock(t *testing.T) {
	m := newTestMutex(t)
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, "lead:a")
	if err != nil {
		t.Fatalf("lock a failed: %v", err)
	}
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB, err := m.Lock(ctx, "lead:b")
		if err != nil {
			t.Errorf("lock b failed: %v", err)
			return
		}
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("lock on a different key should not block")
	}
}

func TestLockRespectsContextCancel(t *testing.T) {
	m := newTestMutex(t)

	unlock, err := m.Lock(context.Background(), "lead:held")
	if err != nil {
		t.Fatalf("initial lock failed: %v", err)
	}
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if _, err := m.Lock(ctx, "lead:held"); err == nil {
		t.Fatal("expected context deadline error while lock is held")
	}
}
