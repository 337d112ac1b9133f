// Package queue serializes outbound Thyrocare calls. Every upstream call in
// the system funnels through one Queue, so the provider sees at most
// Concurrency requests at a time (default 1; it has blocked us for burst
// traffic before). Items run in priority order, FIFO within a tier.
package queue

import (
	"container/heap"
	"context"
	"errors"
	"sync"
	"time"
)

// Priority orders pending work. Credential refreshes run high so a stale key
// never waits behind a backlog of pricing or sync calls.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
)

func (p Priority) String() string {
	switch p {
	case PriorityHigh:
		return "high"
	case PriorityNormal:
		return "normal"
	case PriorityLow:
		return "low"
	default:
		return "unknown"
	}
}

// ErrSaturated is returned by Enqueue when the pending backlog is full.
var ErrSaturated = errors.New("request queue saturated")

// ErrClosed is returned by Enqueue after Close.
var ErrClosed = errors.New("request queue closed")

// Operation is one deferred upstream call.
type Operation func() (any, error)

// Options describe how an operation should be scheduled.
type Options struct {
	Priority Priority
	// Metadata is free-form and only used for logging.
	Metadata map[string]string
}

// Executor runs an operation; in production this is the circuit breaker.
type Executor interface {
	Execute(op func() (any, error)) (any, error)
}

// Config tunes a Queue.
type Config struct {
	// Concurrency is the max number of simultaneously executing operations.
	// Defaults to 1, fully serializing upstream traffic.
	Concurrency int
	// MaxBacklog bounds the number of pending (not yet executing) items.
	// Defaults to 256.
	MaxBacklog int
	// OnDepth, if set, is called with the pending depth after each enqueue.
	OnDepth func(depth int)
}

type outcome struct {
	result any
	err    error
}

type item struct {
	op         Operation
	priority   Priority
	metadata   map[string]string
	enqueuedAt time.Time
	seq        uint64
	done       chan outcome
}

// Queue dispatches enqueued operations through an Executor.
type Queue struct {
	exec    Executor
	cfg     Config
	nowFunc func() time.Time

	mu      sync.Mutex
	cond    *sync.Cond
	pending itemHeap
	seq     uint64
	closed  bool

	wg sync.WaitGroup
}

// New builds a Queue and starts its dispatch workers.
func New(cfg Config, exec Executor) *Queue {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.MaxBacklog <= 0 {
		cfg.MaxBacklog = 256
	}
	q := &Queue{
		exec:    exec,
		cfg:     cfg,
		nowFunc: time.Now,
	}
	q.cond = sync.NewCond(&q.mu)
	for i := 0; i < cfg.Concurrency; i++ {
		q.wg.Add(1)
		go q.dispatch()
	}
	return q
}

// Enqueue schedules op and blocks until it completes, returning the
// operation's own result and error (Executor errors included, unchanged).
// If ctx is done before the operation finishes, Enqueue returns ctx.Err();
// the operation itself still runs to completion and is accounted for.
func (q *Queue) Enqueue(ctx context.Context, op Operation, opts Options) (any, error) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil, ErrClosed
	}
	if q.pending.Len() >= q.cfg.MaxBacklog {
		q.mu.Unlock()
		return nil, ErrSaturated
	}
	q.seq++
	it := &item{
		op:         op,
		priority:   opts.Priority,
		metadata:   opts.Metadata,
		enqueuedAt: q.nowFunc(),
		seq:        q.seq,
		// buffered: the dispatcher never blocks on an abandoned caller
		done: make(chan outcome, 1),
	}
	heap.Push(&q.pending, it)
	depth := q.pending.Len()
	q.cond.Signal()
	q.mu.Unlock()

	if q.cfg.OnDepth != nil {
		q.cfg.OnDepth(depth)
	}

	select {
	case out := <-it.done:
		return out.result, out.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Depth reports the number of pending (not yet executing) items.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.pending.Len()
}

// Close stops the workers after draining already-pending items.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()
	q.wg.Wait()
}

func (q *Queue) dispatch() {
	defer q.wg.Done()
	for {
		q.mu.Lock()
		for q.pending.Len() == 0 && !q.closed {
			q.cond.Wait()
		}
		if q.pending.Len() == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		it := heap.Pop(&q.pending).(*item)
		q.mu.Unlock()

		result, err := q.exec.Execute(it.op)
		it.done <- outcome{result: result, err: err}
	}
}

// itemHeap orders by priority (high first), then by enqueue sequence.
type itemHeap []*item

func (h itemHeap) Len() int { return len(h) }

func (h itemHeap) Less(i, j int) bool {
	if h[i].priority != h[j].priority {
		return h[i].priority > h[j].priority
	}
	return h[i].seq < h[j].seq
}

func (h itemHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *itemHeap) Push(x any) { *h = append(*h, x.(*item)) }

func (h *itemHeap) Pop() any {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return it
}
