// Package dispatch runs blocking filesystem and store work on a bounded set
// of worker goroutines so request handlers never block on it directly.
package dispatch

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pool bounds how many jobs run at once. Jobs share nothing through the
// pool; each call carries its own inputs and result.
type Pool struct {
	sem    chan struct{}
	wg     sync.WaitGroup
	logger *zap.Logger
}

// NewPool returns a pool with the given number of workers. workers <= 0
// means one per CPU.
func NewPool(workers int, logger *zap.Logger) *Pool {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pool{
		sem:    make(chan struct{}, workers),
		logger: logger,
	}
}

// Size returns the worker count.
func (p *Pool) Size() int { return cap(p.sem) }

// Wait blocks until every started job has returned.
func (p *Pool) Wait() { p.wg.Wait() }

type result[T any] struct {
	value T
	err   error
}

// Do runs fn on a pool worker and waits for its result. If ctx ends first
// Do returns ctx.Err(); a job that already started keeps its worker until
// it finishes and its result is dropped. A nil pool runs fn inline.
func Do[T any](ctx context.Context, p *Pool, name string, fn func() (T, error)) (T, error) {
	var zero T
	if p == nil {
		return fn()
	}
	if err := ctx.Err(); err != nil {
		return zero, err
	}

	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return zero, ctx.Err()
	}

	done := make(chan result[T], 1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		start := time.Now()

		var r result[T]
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					p.logger.Error("job panicked", zap.String("job", name), zap.Any("panic", rec))
					r.err = fmt.Errorf("%s: panic: %v", name, rec)
				}
			}()
			r.value, r.err = fn()
		}()

		p.logger.Debug("job finished",
			zap.String("job", name),
			zap.Duration("duration", time.Since(start)),
			zap.Bool("ok", r.err == nil))
		done <- r
	}()

	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		p.logger.Warn("caller gave up on job", zap.String("job", name), zap.Error(ctx.Err()))
		return zero, ctx.Err()
	}
}
