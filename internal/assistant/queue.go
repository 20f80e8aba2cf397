package assistant

import "sync"

// turnQueue serializes work per key. Jobs enqueued under the same key run
// strictly in arrival order, one at a time; jobs under different keys run
// independently. No goroutine outlives its job, so idle keys cost nothing.
type turnQueue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

func newTurnQueue() *turnQueue {
	return &turnQueue{tails: make(map[string]chan struct{})}
}

// Do schedules fn to run after every previously enqueued job for key has
// finished. It returns immediately; fn runs on its own goroutine.
func (q *turnQueue) Do(key string, fn func()) {
	done := make(chan struct{})

	q.mu.Lock()
	prev := q.tails[key]
	q.tails[key] = done
	q.mu.Unlock()

	go func() {
		if prev != nil {
			<-prev
		}
		defer func() {
			close(done)
			q.mu.Lock()
			// Remove the entry only if no newer job has been chained on.
			if q.tails[key] == done {
				delete(q.tails, key)
			}
			q.mu.Unlock()
		}()
		fn()
	}()
}

// Wait blocks until the job most recently enqueued for key (at call time) has
// finished. Intended for tests.
func (q *turnQueue) Wait(key string) {
	q.mu.Lock()
	tail := q.tails[key]
	q.mu.Unlock()
	if tail != nil {
		<-tail
	}
}
