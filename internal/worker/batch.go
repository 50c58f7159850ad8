package worker

import "context"

// Batch runs a fixed list of jobs on a bounded pool
type Batch struct {
	concurrency int
}

// NewBatch creates a batch runner with the given pool size
func NewBatch(concurrency int) *Batch {
	return &Batch{concurrency: concurrency}
}

// Run submits every job and hands each result to onResult as it arrives.
// onResult is called from a single goroutine. Run returns the number of
// jobs that produced a result and the context error if the run was
// cancelled before every job started.
func (b *Batch) Run(ctx context.Context, jobs []Job, onResult func(Result)) (int, error) {
	if len(jobs) == 0 {
		return 0, nil
	}

	pool := NewPool(ctx, b.concurrency)
	pool.Start()

	go func() {
		defer pool.Close()
		for _, job := range jobs {
			if err := pool.Submit(job); err != nil {
				return
			}
		}
	}()

	done := 0
	for result := range pool.Results() {
		done++
		if onResult != nil {
			onResult(result)
		}
	}

	if done < len(jobs) {
		return done, ctx.Err()
	}
	return done, nil
}
