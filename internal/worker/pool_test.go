package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type testResult struct {
	err error
}

func (r testResult) GetError() error { return r.err }

// testJob counts executions and optionally holds for a while or fails
type testJob struct {
	hold     time.Duration
	fail     bool
	executed *int32
	running  *int32
	peak     *int32
}

func (j *testJob) Execute(ctx context.Context) Result {
	if j.executed != nil {
		atomic.AddInt32(j.executed, 1)
	}
	if j.running != nil {
		n := atomic.AddInt32(j.running, 1)
		defer atomic.AddInt32(j.running, -1)
		for {
			peak := atomic.LoadInt32(j.peak)
			if n <= peak || atomic.CompareAndSwapInt32(j.peak, peak, n) {
				break
			}
		}
	}
	if j.hold > 0 {
		select {
		case <-time.After(j.hold):
		case <-ctx.Done():
			return testResult{err: ctx.Err()}
		}
	}
	if j.fail {
		return testResult{err: errors.New("claim failed")}
	}
	return testResult{}
}

func TestNewPool_SizeFloor(t *testing.T) {
	for _, size := range []int{0, -3} {
		if p := NewPool(context.Background(), size); p.size != 1 {
			t.Errorf("NewPool(%d).size = %d, want 1", size, p.size)
		}
	}
	if p := NewPool(context.Background(), 8); p.size != 8 {
		t.Errorf("size = %d, want 8", p.size)
	}
}

func TestBatch_RunsEveryJob(t *testing.T) {
	var executed int32
	jobs := make([]Job, 40)
	for i := range jobs {
		jobs[i] = &testJob{executed: &executed, fail: i%4 == 0}
	}

	var failed int
	done, err := NewBatch(3).Run(context.Background(), jobs, func(r Result) {
		if r.GetError() != nil {
			failed++
		}
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if done != 40 || atomic.LoadInt32(&executed) != 40 {
		t.Errorf("done = %d executed = %d, want 40", done, executed)
	}
	if failed != 10 {
		t.Errorf("failed = %d, want 10", failed)
	}
}

func TestBatch_Empty(t *testing.T) {
	called := false
	done, err := NewBatch(2).Run(context.Background(), nil, func(Result) { called = true })
	if done != 0 || err != nil || called {
		t.Errorf("Run(nil) = %d, %v, called=%v", done, err, called)
	}
}

func TestBatch_BoundsConcurrency(t *testing.T) {
	const size = 4
	var running, peak int32
	jobs := make([]Job, 30)
	for i := range jobs {
		jobs[i] = &testJob{hold: 5 * time.Millisecond, running: &running, peak: &peak}
	}

	if _, err := NewBatch(size).Run(context.Background(), jobs, nil); err != nil {
		t.Fatal(err)
	}
	if p := atomic.LoadInt32(&peak); p > size || p < 1 {
		t.Errorf("peak concurrency = %d, want 1..%d", p, size)
	}
}

func TestBatch_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var executed int32
	jobs := []Job{&testJob{executed: &executed}, &testJob{executed: &executed}}
	done, err := NewBatch(2).Run(ctx, jobs, nil)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if done != 0 || atomic.LoadInt32(&executed) != 0 {
		t.Errorf("done = %d executed = %d, want nothing started", done, executed)
	}
}

func TestBatch_CancelMidRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var executed int32
	jobs := make([]Job, 50)
	for i := range jobs {
		jobs[i] = &testJob{executed: &executed, hold: 20 * time.Millisecond}
	}

	go func() {
		time.Sleep(30 * time.Millisecond)
		cancel()
	}()

	done, err := NewBatch(2).Run(ctx, jobs, nil)
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if done >= len(jobs) {
		t.Errorf("expected fewer than %d results, got %d", len(jobs), done)
	}
	// Every started claim reports back
	if int(atomic.LoadInt32(&executed)) != done {
		t.Errorf("executed %d, results %d", executed, done)
	}
}

func TestPool_SubmitAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	pool := NewPool(ctx, 1)
	pool.Start()
	cancel()

	returned := make(chan error, 1)
	go func() {
		for i := 0; i < 5; i++ {
			if err := pool.Submit(&testJob{}); err != nil {
				returned <- err
				return
			}
		}
		returned <- nil
	}()

	select {
	case err := <-returned:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Submit = %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Submit blocked after cancellation")
	}

	pool.Close()
	for range pool.Results() {
		t.Error("no job should run after cancellation")
	}
}
