package engine

import (
	"context"
	"fmt"
	"strings"

	"codepractice/internal/sandbox/result"
	"codepractice/internal/sandbox/security"
	"codepractice/internal/sandbox/spec"
	"codepractice/pkg/utils/logger"
)

// Engine executes a RunSpec inside a sandbox.
// Limit violations are reported in the result; an error means the run
// could not be carried out or ctx was canceled.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
}

// ProfileResolver resolves a profile name into an isolation profile.
type ProfileResolver interface {
	Resolve(profile string) (security.IsolationProfile, error)
}

const (
	ModeIsolated = "isolated"
	ModeDirect   = "direct"
)

// New builds the engine selected by cfg.Mode, guarded by a circuit breaker.
func New(cfg Config, resolver ProfileResolver) (Engine, error) {
	cfg.applyDefaults()
	var (
		eng Engine
		err error
	)
	switch strings.ToLower(cfg.Mode) {
	case ModeIsolated:
		eng, err = NewIsolatedEngine(cfg, resolver)
	case ModeDirect:
		logger.Warn(context.Background(), "direct sandbox mode has no filesystem, network or syscall isolation; use it for development only")
		eng, err = NewDirectEngine(cfg)
	default:
		return nil, fmt.Errorf("unsupported sandbox mode: %s", cfg.Mode)
	}
	if err != nil {
		return nil, err
	}
	return WithBreaker(eng, "sandbox-"+strings.ToLower(cfg.Mode)), nil
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	if runSpec.TestID == "" {
		return fmt.Errorf("test id is required")
	}
	if runSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if len(runSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	return nil
}
