package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewPool_ClampsWorkers(t *testing.T) {
	for _, n := range []int{0, -3} {
		p := NewPool[int](context.Background(), n)
		if p.workers != 1 {
			t.Errorf("Expected 1 worker for %d, got %d", n, p.workers)
		}
		p.Wait()
	}
}

func TestPool_ResultsInSubmissionOrder(t *testing.T) {
	pool := NewPool[int](context.Background(), 4)

	for i := 0; i < 20; i++ {
		i := i
		pool.Submit(func(ctx context.Context) int {
			// later tasks finish first
			time.Sleep(time.Duration(20-i) * time.Millisecond)
			return i * i
		})
	}

	results := pool.Wait()
	if len(results) != 20 {
		t.Fatalf("Expected 20 results, got %d", len(results))
	}
	for i, r := range results {
		if r != i*i {
			t.Errorf("Expected %d at %d, got %d", i*i, i, r)
		}
	}
}

func TestPool_BoundsConcurrency(t *testing.T) {
	const workers = 3
	pool := NewPool[struct{}](context.Background(), workers)

	var current, peak atomic.Int32
	for i := 0; i < 30; i++ {
		pool.Submit(func(ctx context.Context) struct{} {
			n := current.Add(1)
			for {
				p := peak.Load()
				if n <= p || peak.CompareAndSwap(p, n) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
			current.Add(-1)
			return struct{}{}
		})
	}
	pool.Wait()

	if peak.Load() > workers {
		t.Errorf("Expected at most %d concurrent tasks, got %d", workers, peak.Load())
	}
}

func TestPool_SubmitAfterWait(t *testing.T) {
	pool := NewPool[int](context.Background(), 2)
	pool.Wait()

	if pool.Submit(func(context.Context) int { return 1 }) {
		t.Error("Expected Submit to refuse work after Wait")
	}
}

func TestPool_ShutdownCancelsRunningTasks(t *testing.T) {
	pool := NewPool[error](context.Background(), 1)
	started := make(chan struct{})

	pool.Submit(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})
	<-started

	done := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Shutdown timed out")
	}

	results := pool.Wait()
	if len(results) != 1 || results[0] != context.Canceled {
		t.Errorf("Expected cancelled task result, got %v", results)
	}
}
