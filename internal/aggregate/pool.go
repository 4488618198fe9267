package aggregate

import (
	"context"
	"sync"
)

// workerPool fans per-device jobs out to a fixed set of workers and
// collects one result per job.
type workerPool struct {
	size int
}

func newWorkerPool(size int) *workerPool {
	return &workerPool{size: size}
}

// run executes fn for every serial and returns the collected results in
// completion order. It blocks until all jobs are done; fn observes ctx for
// its own I/O.
func (p *workerPool) run(ctx context.Context, serials []string, fn func(context.Context, string) Result) []Result {
	jobs := make(chan string)
	out := make(chan Result, len(serials))

	var wg sync.WaitGroup
	for i := 0; i < p.size; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sn := range jobs {
				out <- fn(ctx, sn)
			}
		}()
	}

	for _, sn := range serials {
		jobs <- sn
	}
	close(jobs)
	wg.Wait()
	close(out)

	results := make([]Result, 0, len(serials))
	for r := range out {
		results = append(results, r)
	}
	return results
}
