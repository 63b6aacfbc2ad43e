package pool

import (
	"context"
	"sync"
)

type Task func(ctx context.Context)

type WorkerPool struct {
	sem chan struct{}
	wg  sync.WaitGroup
}

func NewWorkerPool(maxWorkers int) *WorkerPool {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	return &WorkerPool{
		sem: make(chan struct{}, maxWorkers),
	}
}

// Submit blocks until a worker slot is free, then runs task in its own
// goroutine. If ctx ends first the task is dropped and Submit returns false.
func (p *WorkerPool) Submit(ctx context.Context, task Task) bool {
	if ctx.Err() != nil {
		return false
	}
	select {
	case p.sem <- struct{}{}:
	case <-ctx.Done():
		return false
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer func() { <-p.sem }()
		task(ctx)
	}()
	return true
}

func (p *WorkerPool) Size() int {
	return cap(p.sem)
}

func (p *WorkerPool) Wait() {
	p.wg.Wait()
}
