package engine

import (
	"context"
	"errors"

	"codepractice/internal/sandbox/result"
	"codepractice/internal/sandbox/spec"
	pkgerrors "codepractice/pkg/errors"

	"github.com/zeromicro/go-zero/core/breaker"
)

type breakerEngine struct {
	inner Engine
	brk   breaker.Breaker
}

// WithBreaker trips after repeated engine failures so requests fail fast
// with SandboxUnavailable instead of piling up on a broken sandbox.
func WithBreaker(inner Engine, name string) Engine {
	return &breakerEngine{
		inner: inner,
		brk:   breaker.NewBreaker(breaker.WithName(name)),
	}
}

func (b *breakerEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	var res result.RunResult
	err := b.brk.DoWithAcceptable(func() error {
		var runErr error
		res, runErr = b.inner.Run(ctx, runSpec)
		return runErr
	}, acceptable)
	if errors.Is(err, breaker.ErrServiceUnavailable) {
		return result.RunResult{}, pkgerrors.Wrap(err, pkgerrors.SandboxUnavailable)
	}
	return res, err
}

// Caller cancellation says nothing about sandbox health.
func acceptable(err error) bool {
	return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
