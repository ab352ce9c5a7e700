package engine

import (
	"context"
	"errors"
	"testing"

	"codepractice/internal/sandbox/result"
	"codepractice/internal/sandbox/spec"
	pkgerrors "codepractice/pkg/errors"
)

type fakeEngine struct {
	calls int
	res   result.RunResult
	err   error
}

func (f *fakeEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	f.calls++
	return f.res, f.err
}

func TestWithBreaker_PassesResults(t *testing.T) {
	inner := &fakeEngine{res: result.RunResult{ExitCode: 3, Stdout: "hi"}}
	eng := WithBreaker(inner, "test-pass")

	res, err := eng.Run(context.Background(), spec.RunSpec{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.ExitCode != 3 || res.Stdout != "hi" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestWithBreaker_TripsOnRepeatedFailures(t *testing.T) {
	inner := &fakeEngine{err: errors.New("helper crashed")}
	eng := WithBreaker(inner, "test-trip")

	tripped := false
	for i := 0; i < 2000; i++ {
		_, err := eng.Run(context.Background(), spec.RunSpec{})
		if pkgerrors.Is(err, pkgerrors.SandboxUnavailable) {
			tripped = true
			break
		}
	}
	if !tripped {
		t.Fatalf("expected breaker to reject calls after repeated failures")
	}
	if inner.calls >= 2000 {
		t.Fatalf("expected some calls to be rejected without reaching the engine")
	}
}

func TestWithBreaker_IgnoresCancellation(t *testing.T) {
	inner := &fakeEngine{err: context.Canceled}
	eng := WithBreaker(inner, "test-cancel")

	for i := 0; i < 200; i++ {
		_, err := eng.Run(context.Background(), spec.RunSpec{})
		if pkgerrors.Is(err, pkgerrors.SandboxUnavailable) {
			t.Fatalf("breaker tripped on caller cancellation at call %d", i)
		}
	}
	if inner.calls != 200 {
		t.Fatalf("expected every call to reach the engine, got %d", inner.calls)
	}
}

func TestNew_RejectsUnknownMode(t *testing.T) {
	if _, err := New(Config{Mode: "vm"}, nil); err == nil {
		t.Fatalf("expected unsupported mode error")
	}
}
