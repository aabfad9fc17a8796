package ingest

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/equipctl/internal/infrastructure/metrics"
)

const (
	defaultQueueSize   = 64
	defaultIdleTimeout = 30 * time.Second
)

// job is one inbound message waiting for its equipment's worker.
type job struct {
	kind     string
	payload  []byte
	enqueued time.Time
}

type handleFunc func(equipmentID string, j job)

// worker drains the queue of one equipment.
type worker struct {
	jobs chan job

	// inflight counts jobs promised to this worker but not yet received.
	// Guarded by queues.mu. The worker only retires at zero.
	inflight int
}

// queues routes jobs to per-key single-writer workers.
type queues struct {
	size   int
	idle   time.Duration
	handle handleFunc

	mu      sync.Mutex
	workers map[string]*worker
	stopped bool

	done chan struct{}
	wg   sync.WaitGroup
}

func newQueues(size int, idle time.Duration, handle handleFunc) *queues {
	if size <= 0 {
		size = defaultQueueSize
	}
	if idle <= 0 {
		idle = defaultIdleTimeout
	}
	return &queues{
		size:    size,
		idle:    idle,
		handle:  handle,
		workers: make(map[string]*worker),
		done:    make(chan struct{}),
	}
}

// enqueue hands j to key's worker, starting one if needed. It blocks while
// that worker's queue is full and returns ErrStopped after stop. A nil
// return means the job will be handled.
func (q *queues) enqueue(key string, j job) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrStopped
	}
	w, ok := q.workers[key]
	if !ok {
		w = &worker{jobs: make(chan job, q.size)}
		q.workers[key] = w
		q.wg.Add(1)
		metrics.AddIngestWorkers(1)
		go q.run(key, w)
	}
	w.inflight++
	q.mu.Unlock()

	// The worker does not exit while inflight is non-zero, so this send
	// always lands, even if stop runs meanwhile.
	w.jobs <- j
	return nil
}

func (q *queues) run(key string, w *worker) {
	defer q.wg.Done()
	defer metrics.AddIngestWorkers(-1)

	timer := time.NewTimer(q.idle)
	defer timer.Stop()

	for {
		select {
		case j := <-w.jobs:
			q.received(w)
			q.handle(key, j)
			resetTimer(timer, q.idle)

		case <-timer.C:
			if q.retire(key, w) {
				return
			}
			timer.Reset(q.idle)

		case <-q.done:
			q.drain(key, w)
			return
		}
	}
}

func (q *queues) received(w *worker) {
	q.mu.Lock()
	w.inflight--
	q.mu.Unlock()
}

// retire removes an idle worker unless a sender is mid-enqueue.
func (q *queues) retire(key string, w *worker) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if w.inflight > 0 || len(w.jobs) > 0 {
		return false
	}
	delete(q.workers, key)
	return true
}

// drain handles every job promised to w after stop, including those whose
// senders have not reached the channel yet. No new promises are made once
// stopped is set.
func (q *queues) drain(key string, w *worker) {
	for q.pending(w) > 0 {
		j := <-w.jobs
		q.received(w)
		q.handle(key, j)
	}
}

func (q *queues) pending(w *worker) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return w.inflight
}

// stop refuses new jobs, lets workers finish their buffers and waits for
// them until ctx is done.
func (q *queues) stop(ctx context.Context) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.stopped = true
	close(q.done)
	q.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// active reports the number of running workers.
func (q *queues) active() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.workers)
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
