package pool

import (
	"context"
	"sync"
)

// WorkerFunc defines the function signature for a worker that processes an
// item and produces a result.
type WorkerFunc[T, R any] func(ctx context.Context, item T) R

// Map executes a bounded worker pool over items and returns one result per
// item, in input order. Workers stop picking up new items once the context is
// cancelled; results for items that were never processed are the zero value
// of R and reported in the skipped count.
func Map[T, R any](ctx context.Context, items []T, numWorkers int, workerFunc WorkerFunc[T, R]) (results []R, skipped int) {
	if numWorkers < 1 {
		numWorkers = 1
	}

	type task struct {
		index int
		item  T
	}

	var wg sync.WaitGroup
	taskChan := make(chan task, numWorkers)
	results = make([]R, len(items))
	done := make([]bool, len(items))
	var mu sync.Mutex

	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for t := range taskChan {
				select {
				case <-ctx.Done():
					return
				default:
					r := workerFunc(ctx, t.item)
					mu.Lock()
					results[t.index] = r
					done[t.index] = true
					mu.Unlock()
				}
			}
		}()
	}

OUT:
	for i, item := range items {
		select {
		case taskChan <- task{index: i, item: item}:
		case <-ctx.Done():
			// Stop feeding tasks if the context is cancelled
			break OUT
		}
	}
	close(taskChan)

	wg.Wait()

	for _, d := range done {
		if !d {
			skipped++
		}
	}
	return results, skipped
}
