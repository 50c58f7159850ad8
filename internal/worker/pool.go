package worker

import (
	"context"
	"sync"
)

// Job is one unit of work, typically the evaluation of a single claim
type Job interface {
	Execute(ctx context.Context) Result
}

// Result is what a job reports back
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of goroutines. Cancelling its context
// stops workers from taking new jobs. A job that already started sees the
// cancelled context and still reports a result, so the consumer of Results
// can account for every claim that was touched.
type Pool struct {
	size    int
	ctx     context.Context
	jobs    chan Job
	results chan Result
	wg      sync.WaitGroup
	once    sync.Once
}

// NewPool creates a pool of size workers bound to ctx
func NewPool(ctx context.Context, size int) *Pool {
	if size <= 0 {
		size = 1
	}
	return &Pool{
		size:    size,
		ctx:     ctx,
		jobs:    make(chan Job, size),
		results: make(chan Result, size),
	}
}

// Start launches the workers
func (p *Pool) Start() {
	p.wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		go p.run()
	}
}

func (p *Pool) run() {
	defer p.wg.Done()
	for {
		select {
		case <-p.ctx.Done():
			return
		case job, ok := <-p.jobs:
			if !ok {
				return
			}
			// Dequeued after cancellation: dropped, never started
			if p.ctx.Err() != nil {
				return
			}
			p.results <- job.Execute(p.ctx)
		}
	}
}

// Submit queues a job. It fails with the context error once the pool is
// cancelled.
func (p *Pool) Submit(job Job) error {
	if err := p.ctx.Err(); err != nil {
		return err
	}
	select {
	case <-p.ctx.Done():
		return p.ctx.Err()
	case p.jobs <- job:
		return nil
	}
}

// Results delivers job results. It must be drained; it is closed after
// Close once every worker has exited.
func (p *Pool) Results() <-chan Result {
	return p.results
}

// Close stops accepting jobs
func (p *Pool) Close() {
	p.once.Do(func() {
		close(p.jobs)
		go func() {
			p.wg.Wait()
			close(p.results)
		}()
	})
}
