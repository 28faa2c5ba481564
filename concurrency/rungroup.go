// Package concurrency holds the small fan-out helper the read path and
// cmd/server use to run independent operations without a full worker pool.
package concurrency

import (
	"context"
	"sync"
)

// RunGroup runs every fn concurrently, waits for all of them to return, and
// reports the first error encountered. When one fn fails, the derived
// context passed to the others is cancelled so they can stop early; RunGroup
// still waits for every goroutine to exit before returning.
func RunGroup(ctx context.Context, fns ...func(ctx context.Context) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, len(fns))

	for _, fn := range fns {
		wg.Add(1)
		go func(f func(context.Context) error) {
			defer wg.Done()

			if err := f(ctx); err != nil {
				select {
				case errCh <- err:
					cancel()
				default:
				}
			}
		}(fn)
	}

	wg.Wait()
	close(errCh)

	return <-errCh
}
