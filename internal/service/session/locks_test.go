package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func mustLock(t *testing.T, k *keyedMutex, id string) func() {
	t.Helper()
	unlock, err := k.Lock(context.Background(), id)
	if err != nil {
		t.Fatalf("lock %s: %v", id, err)
	}
	return unlock
}

func TestKeyedMutexSerialisesSameKey(t *testing.T) {
	k := newKeyedMutex()
	unlock := mustLock(t, k, "a")

	acquired := make(chan struct{})
	go func() {
		release, err := k.Lock(context.Background(), "a")
		if err != nil {
			return
		}
		close(acquired)
		release()
	}()

	select {
	case <-acquired:
		t.Fatal("second holder acquired a locked key")
	case <-time.After(50 * time.Millisecond):
	}

	unlock()
	select {
	case <-acquired:
	case <-time.After(time.Second):
		t.Fatal("waiter never acquired the key")
	}
}

func TestKeyedMutexIndependentKeys(t *testing.T) {
	k := newKeyedMutex()
	unlockA := mustLock(t, k, "a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		if release, err := k.Lock(context.Background(), "b"); err == nil {
			release()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
}

func TestKeyedMutexDropsIdleEntries(t *testing.T) {
	k := newKeyedMutex()
	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if release, err := k.Lock(context.Background(), "a"); err == nil {
				release()
			}
		}()
	}
	wg.Wait()

	if got := k.size(); got != 0 {
		t.Fatalf("expected no idle entries, got %d", got)
	}
}

func TestKeyedMutexWaiterGivesUpOnCancel(t *testing.T) {
	k := newKeyedMutex()
	unlock := mustLock(t, k, "a")

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	release, err := k.Lock(ctx, "a")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if release != nil {
		t.Fatal("cancelled waiter received an unlock func")
	}

	unlock()
	if got := k.size(); got != 0 {
		t.Fatalf("expected no idle entries, got %d", got)
	}
	mustLock(t, k, "a")()
}
