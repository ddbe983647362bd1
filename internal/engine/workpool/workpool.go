// Package workpool bounds CPU-bound work such as parsing debug files and
// building indices.
package workpool

import (
	"context"
	"sync/atomic"

	"go.trai.ch/symcache/internal/core/domain"
	"go.trai.ch/zerr"
	"golang.org/x/sync/semaphore"
)

// Pool runs at most Workers functions at once and lets at most Queue more
// wait for a slot. Callers beyond that are refused.
type Pool struct {
	sem      *semaphore.Weighted
	workers  int
	maxQueue int64
	queued   atomic.Int64
	running  atomic.Int64
}

// New creates a pool. Non-positive sizes select one worker and no queue.
func New(workers, queue int) *Pool {
	workers = max(workers, 1)
	return &Pool{
		sem:      semaphore.NewWeighted(int64(workers)),
		workers:  workers,
		maxQueue: int64(max(queue, 0)),
	}
}

// Workers returns the number of concurrent slots.
func (p *Pool) Workers() int { return p.workers }

// Running returns the number of functions currently executing.
func (p *Pool) Running() int { return int(p.running.Load()) }

// Queued returns the number of callers waiting for a slot.
func (p *Pool) Queued() int { return int(p.queued.Load()) }

// Do runs fn on a slot. It fails with domain.KindResourceExhausted when the
// queue is full, and with the context's error when ctx ends while waiting.
func (p *Pool) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	if !p.sem.TryAcquire(1) {
		if p.queued.Add(1) > p.maxQueue {
			p.queued.Add(-1)
			return domain.ResourceExhausted(zerr.With(domain.ErrWorkerPoolSaturated, "workers", p.workers))
		}
		err := p.sem.Acquire(ctx, 1)
		p.queued.Add(-1)
		if err != nil {
			return err
		}
	}
	defer p.sem.Release(1)

	p.running.Add(1)
	defer p.running.Add(-1)
	return fn(ctx)
}

// Run is Do for functions returning a value.
func Run[T any](ctx context.Context, p *Pool, fn func(ctx context.Context) (T, error)) (T, error) {
	var out T
	err := p.Do(ctx, func(ctx context.Context) error {
		var err error
		out, err = fn(ctx)
		return err
	})
	return out, err
}
