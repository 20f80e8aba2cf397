package assistant

import (
	"sync"
	"testing"
	"time"
)

func TestTurnQueueRunsInOrder(t *testing.T) {
	q := newTurnQueue()

	var mu sync.Mutex
	var order []int

	for i := 0; i < 20; i++ {
		i := i
		q.Do("user", func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		})
	}
	q.Wait("user")

	mu.Lock()
	defer mu.Unlock()
	if len(order) != 20 {
		t.Fatalf("expected 20 jobs run, got %d", len(order))
	}
	for i, v := range order {
		if v != i {
			t.Fatalf("jobs ran out of order: %v", order)
		}
	}
}

func TestTurnQueueKeysIndependent(t *testing.T) {
	q := newTurnQueue()

	block := make(chan struct{})
	q.Do("slow", func() { <-block })

	done := make(chan struct{})
	q.Do("fast", func() { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("job under a different key was blocked")
	}
	close(block)
	q.Wait("slow")
}

func TestTurnQueueSingleInFlightPerKey(t *testing.T) {
	q := newTurnQueue()

	var mu sync.Mutex
	running, maxRunning := 0, 0

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		q.Do("user", func() {
			defer wg.Done()
			mu.Lock()
			running++
			if running > maxRunning {
				maxRunning = running
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			running--
			mu.Unlock()
		})
	}
	wg.Wait()

	if maxRunning != 1 {
		t.Errorf("expected at most 1 in-flight job per key, saw %d", maxRunning)
	}
}

func TestTurnQueueWaitOnIdleKey(t *testing.T) {
	q := newTurnQueue()
	// Must not block.
	q.Wait("nobody")
}
