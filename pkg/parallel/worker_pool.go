// Package parallel provides a small worker pool for fanning out
// independent jobs, such as indexing several dumps at once.
package parallel

import (
	"context"
	"runtime"
	"sync"
	"time"
)

// PoolConfig configures the worker pool behavior.
type PoolConfig struct {
	// MaxWorkers is the maximum number of concurrent workers.
	// Default: runtime.NumCPU() clamped to [2, 8]
	MaxWorkers int

	// Timeout bounds the entire Execute call. Zero means no timeout.
	Timeout time.Duration
}

// DefaultPoolConfig returns a default pool configuration.
func DefaultPoolConfig() PoolConfig {
	workers := runtime.NumCPU()
	if workers > 8 {
		workers = 8
	}
	if workers < 2 {
		workers = 2
	}
	return PoolConfig{MaxWorkers: workers}
}

// WithWorkers returns a copy of the config with the worker count set.
func (c PoolConfig) WithWorkers(n int) PoolConfig {
	c.MaxWorkers = n
	return c
}

// WithTimeout returns a copy of the config with the timeout set.
func (c PoolConfig) WithTimeout(d time.Duration) PoolConfig {
	c.Timeout = d
	return c
}

// TaskResult holds the outcome of one job.
type TaskResult[T any, R any] struct {
	Input    T
	Result   R
	Error    error
	Duration time.Duration
}

// WorkerPool runs jobs of type T -> R across a bounded set of workers.
type WorkerPool[T any, R any] struct {
	config PoolConfig
}

// NewWorkerPool creates a worker pool with the given configuration.
func NewWorkerPool[T any, R any](config PoolConfig) *WorkerPool[T, R] {
	if config.MaxWorkers <= 0 {
		config.MaxWorkers = DefaultPoolConfig().MaxWorkers
	}
	return &WorkerPool[T, R]{config: config}
}

// Execute runs fn over every input in parallel. Results are returned in
// input order. A cancelled context leaves unstarted jobs with zero-value
// results and ctx.Err() set.
func (p *WorkerPool[T, R]) Execute(ctx context.Context, inputs []T, fn func(ctx context.Context, input T) (R, error)) []TaskResult[T, R] {
	if len(inputs) == 0 {
		return nil
	}

	if p.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.config.Timeout)
		defer cancel()
	}

	results := make([]TaskResult[T, R], len(inputs))
	taskCh := make(chan int)

	numWorkers := p.config.MaxWorkers
	if numWorkers > len(inputs) {
		numWorkers = len(inputs)
	}

	var wg sync.WaitGroup
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range taskCh {
				if err := ctx.Err(); err != nil {
					results[idx] = TaskResult[T, R]{Input: inputs[idx], Error: err}
					continue
				}
				start := time.Now()
				result, err := fn(ctx, inputs[idx])
				results[idx] = TaskResult[T, R]{
					Input:    inputs[idx],
					Result:   result,
					Error:    err,
					Duration: time.Since(start),
				}
			}
		}()
	}

	for i := range inputs {
		taskCh <- i
	}
	close(taskCh)
	wg.Wait()

	return results
}
