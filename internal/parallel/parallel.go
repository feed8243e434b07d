// Package parallel provides parallel execution helpers.
package parallel

import (
	"runtime"
	"sync"
)

// NumWorkers returns the default number of workers for parallel operations.
func NumWorkers() int {
	return runtime.GOMAXPROCS(0)
}

// ParallelFor executes fn for indices [start, end) using n workers.
func ParallelFor(start, end, n int, fn func(i int)) {
	_ = ForErr(start, end, n, func(i int) error {
		fn(i)
		return nil
	})
}

// ForErr executes fn for indices [start, end) using n workers and returns
// the error of the lowest failing index. All indices run even when one fails.
func ForErr(start, end, n int, fn func(i int) error) error {
	total := end - start
	if total <= 0 {
		return nil
	}

	errs := make([]error, total)

	if n <= 1 {
		for i := start; i < end; i++ {
			errs[i-start] = fn(i)
		}
		return firstErr(errs)
	}

	var wg sync.WaitGroup
	chunkSize := (total + n - 1) / n

	for w := 0; w < n; w++ {
		chunkStart := start + w*chunkSize
		chunkEnd := chunkStart + chunkSize
		if chunkEnd > end {
			chunkEnd = end
		}
		if chunkStart >= chunkEnd {
			break
		}

		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			for i := s; i < e; i++ {
				errs[i-start] = fn(i)
			}
		}(chunkStart, chunkEnd)
	}

	wg.Wait()
	return firstErr(errs)
}

func firstErr(errs []error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}
	return nil
}
