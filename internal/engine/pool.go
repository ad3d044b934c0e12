package engine

import (
	"context"
	"sync"
)

// runPool calls fn(i) for every i in [0, n) on at most workers goroutines.
// Results are written by index, so callers get a deterministic order. Once
// ctx is done no further indexes are dispatched; indexes already running
// finish and the context error is returned.
func runPool(ctx context.Context, workers, n int, fn func(i int)) error {
	if workers < 1 {
		workers = 1
	}
	if workers > n {
		workers = n
	}

	jobChan := make(chan int)
	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobChan {
				fn(i)
			}
		}()
	}

	var err error
enqueue:
	for i := 0; i < n; i++ {
		if err = ctx.Err(); err != nil {
			break
		}
		select {
		case <-ctx.Done():
			err = ctx.Err()
			break enqueue
		case jobChan <- i:
		}
	}
	close(jobChan)

	wg.Wait()
	return err
}
