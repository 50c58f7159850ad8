package score

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ppiankov/resubmit/internal/model"
)

// Scorer estimates the probability that a resubmission would be accepted
type Scorer interface {
	// Name identifies the scorer kind
	Name() string

	// ModelVersion is recorded on every result the scorer produces
	ModelVersion() string

	// Score returns a result with a non-nil Score, or an error
	Score(ctx context.Context, claim *model.CanonicalClaim) (model.InferenceResult, error)
}

// Invoke calls s with a per-call timeout. It never fails: an error or a
// timeout yields a result with a nil Score whose Reason starts with
// "scorer unavailable". Callers distinguish run cancellation by checking
// ctx afterwards.
func Invoke(ctx context.Context, s Scorer, claim *model.CanonicalClaim, timeout time.Duration) model.InferenceResult {
	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type outcome struct {
		res model.InferenceResult
		err error
	}
	// Buffered so a scorer that ignores its context does not leak a blocked sender
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("scorer panicked: %v", r)}
			}
		}()
		res, err := s.Score(callCtx, claim)
		done <- outcome{res: res, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-callCtx.Done():
		out = outcome{err: callCtx.Err()}
	}

	if out.err == nil && out.res.Score == nil {
		out.err = errors.New("scorer returned no score")
	}
	if out.err != nil {
		reason := out.err.Error()
		if errors.Is(out.err, context.DeadlineExceeded) && ctx.Err() == nil {
			reason = fmt.Sprintf("timeout after %s", timeout)
		}
		return model.InferenceResult{
			ModelVersion: s.ModelVersion(),
			Reason:       fmt.Sprintf("scorer unavailable: %s", reason),
		}
	}

	if out.res.ModelVersion == "" {
		out.res.ModelVersion = s.ModelVersion()
	}
	return out.res
}

func ptr(v float64) *float64 { return &v }
