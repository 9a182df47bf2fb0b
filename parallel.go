package panodecode

import (
	"runtime"
	"sync"
)

// maxParallelWorkers caps row workers per call; 0 means GOMAXPROCS.
var maxParallelWorkers = 0

var (
	workerSemOnce sync.Once
	workerSem     chan struct{}
)

// parallelFor splits [0, total) into contiguous ranges and runs fn on them
// concurrently. A process-wide semaphore bounds the number of busy workers.
func parallelFor(total int, fn func(start, end int)) {
	if total <= 0 {
		return
	}
	workers := runtime.GOMAXPROCS(0)
	if maxParallelWorkers > 0 && workers > maxParallelWorkers {
		workers = maxParallelWorkers
	}
	workerSemOnce.Do(func() {
		workerSem = make(chan struct{}, max(workers, 1))
	})
	workers = min(workers, cap(workerSem), total)
	if workers <= 1 {
		fn(0, total)
		return
	}

	step := (total + workers - 1) / workers
	var wg sync.WaitGroup
	for start := 0; start < total; start += step {
		end := min(start+step, total)
		workerSem <- struct{}{}
		wg.Add(1)
		go func(s, e int) {
			defer wg.Done()
			defer func() { <-workerSem }()
			fn(s, e)
		}(start, end)
	}
	wg.Wait()
}
