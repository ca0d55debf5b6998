package worker

import (
	"context"
	"sync"
)

// Task is one unit of work. Index is its position in the submission order.
type Task[T any] struct {
	Index int
	Run   func(ctx context.Context) T
}

// Pool runs tasks on a fixed number of goroutines and hands results back in
// submission order
type Pool[T any] struct {
	workers int
	tasks   chan Task[T]
	wg      sync.WaitGroup

	mu      sync.Mutex
	results map[int]T
	next    int

	ctx    context.Context
	cancel context.CancelFunc
	closed bool
}

// NewPool creates a pool bound to ctx. workers below 1 become 1.
func NewPool[T any](ctx context.Context, workers int) *Pool[T] {
	if workers <= 0 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)

	p := &Pool[T]{
		workers: workers,
		tasks:   make(chan Task[T], workers*2),
		results: make(map[int]T),
		ctx:     ctx,
		cancel:  cancel,
	}
	for i := 0; i < workers; i++ {
		p.wg.Add(1)
		go p.work()
	}
	return p
}

func (p *Pool[T]) work() {
	defer p.wg.Done()

	for {
		select {
		case <-p.ctx.Done():
			return
		case task, ok := <-p.tasks:
			if !ok {
				return
			}
			out := task.Run(p.ctx)
			p.mu.Lock()
			p.results[task.Index] = out
			p.mu.Unlock()
		}
	}
}

// Submit queues fn. It returns false once the pool is cancelled or closed.
func (p *Pool[T]) Submit(fn func(ctx context.Context) T) bool {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return false
	}
	task := Task[T]{Index: p.next, Run: fn}
	p.next++
	p.mu.Unlock()

	select {
	case <-p.ctx.Done():
		return false
	case p.tasks <- task:
		return true
	}
}

// Wait closes the queue, waits for the workers and returns the results in
// submission order. Tasks that never ran leave the zero value in their slot.
// Submit must not race with Wait.
func (p *Pool[T]) Wait() []T {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.tasks)
	}
	p.mu.Unlock()

	p.wg.Wait()
	p.cancel()

	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]T, p.next)
	for i := range out {
		out[i] = p.results[i]
	}
	return out
}

// Shutdown cancels running tasks and waits for the workers to exit
func (p *Pool[T]) Shutdown() {
	p.cancel()
	p.wg.Wait()
}
