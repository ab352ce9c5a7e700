//go:build unix

package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync/atomic"
	"syscall"
	"time"

	"codepractice/internal/sandbox/result"
	"codepractice/internal/sandbox/spec"
	"codepractice/pkg/utils/logger"

	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"
)

const defaultPath = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

type directEngine struct {
	cfg Config
}

// NewDirectEngine creates an engine that runs processes on the host in their
// own process group. CPU time, file size and stack are set as rlimits on
// Linux; memory is sampled with gopsutil and enforced by killing the group.
// It offers no filesystem, network or syscall isolation.
func NewDirectEngine(cfg Config) (Engine, error) {
	cfg.applyDefaults()
	return &directEngine{cfg: cfg}, nil
}

// limitState records which limit, if any, ended the run.
type limitState struct {
	timedOut       atomic.Bool
	memoryExceeded atomic.Bool
	outputExceeded atomic.Bool
	peakRSSKB      atomic.Int64
}

func (e *directEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}

	args := make([]string, len(runSpec.Cmd))
	for i, arg := range runSpec.Cmd {
		args[i] = resolveHostPath(arg, runSpec)
	}
	stdinPath := resolveHostPath(runSpec.StdinPath, runSpec)
	stdoutPath := resolveHostPath(runSpec.StdoutPath, runSpec)
	stderrPath := resolveHostPath(runSpec.StderrPath, runSpec)

	cmd := exec.Command(args[0], args[1:]...)
	cmd.Dir = resolveHostPath(runSpec.WorkDir, runSpec)
	cmd.Env = runSpec.Env
	if len(cmd.Env) == 0 {
		cmd.Env = []string{defaultPath}
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	files, err := openStdio(cmd, stdinPath, stdoutPath, stderrPath)
	if err != nil {
		return result.RunResult{}, err
	}
	defer closeAll(files)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		// A missing interpreter or compiler is a sandbox problem, not a user error.
		return result.RunResult{}, fmt.Errorf("start process: %w", err)
	}
	pid := cmd.Process.Pid
	if err := applyRlimits(pid, runSpec.Limits); err != nil {
		killProcessGroup(pid)
		_ = cmd.Wait()
		return result.RunResult{}, err
	}

	var state limitState
	done := make(chan struct{})
	go e.watch(ctx, pid, runSpec.Limits, stdoutPath, &state, done)

	waitErr := cmd.Wait()
	close(done)
	wallTimeMs := time.Since(start).Milliseconds()

	memoryKB := state.peakRSSKB.Load()
	if rss := maxRSSKB(cmd.ProcessState); rss > memoryKB {
		memoryKB = rss
	}
	runResult := result.RunResult{
		ExitCode:       exitCodeFromErr(waitErr, cmd.ProcessState),
		TimeMs:         cpuTimeMs(cmd.ProcessState),
		WallTimeMs:     wallTimeMs,
		MemoryKB:       memoryKB,
		OutputKB:       stdoutSizeKB(stdoutPath),
		Stdout:         readLimitedFile(stdoutPath, e.cfg.StdoutStderrMaxBytes),
		Stderr:         readLimitedFile(stderrPath, e.cfg.StdoutStderrMaxBytes),
		TimedOut:       state.timedOut.Load(),
		OomKilled:      state.memoryExceeded.Load(),
		OutputExceeded: state.outputExceeded.Load(),
	}
	if runResult.TimedOut {
		runResult.ExitCode = -1
	}
	// RLIMIT_FSIZE stops the writer before the watcher notices.
	if limit := runSpec.Limits.OutputMB; limit > 0 && runResult.OutputKB >= limit*1024 {
		runResult.OutputExceeded = true
	}
	if err := ctx.Err(); err != nil && !runResult.TimedOut {
		return runResult, err
	}
	return runResult, nil
}

// watch enforces wall time, memory and output limits until done is closed.
func (e *directEngine) watch(ctx context.Context, pid int, limits spec.ResourceLimit, stdoutPath string, state *limitState, done <-chan struct{}) {
	var wallTimer <-chan time.Time
	if wallLimit := durationFromMs(limits.WallTimeMs); wallLimit > 0 {
		timer := time.NewTimer(wallLimit)
		defer timer.Stop()
		wallTimer = timer.C
	}
	ticker := time.NewTicker(e.cfg.MemorySampleInterval)
	defer ticker.Stop()

	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		logger.Debug(ctx, "process handle unavailable", zap.Int("pid", pid), zap.Error(err))
	}

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			killProcessGroup(pid)
			return
		case <-wallTimer:
			state.timedOut.Store(true)
			killProcessGroup(pid)
			return
		case <-ticker.C:
			if proc != nil {
				rssKB := sampleRSSKB(ctx, proc)
				if rssKB > state.peakRSSKB.Load() {
					state.peakRSSKB.Store(rssKB)
				}
				if limits.MemoryMB > 0 && rssKB > limits.MemoryMB*1024 {
					state.memoryExceeded.Store(true)
					killProcessGroup(pid)
					return
				}
			}
			if limits.OutputMB > 0 && stdoutSizeKB(stdoutPath) > limits.OutputMB*1024 {
				state.outputExceeded.Store(true)
				killProcessGroup(pid)
				return
			}
		}
	}
}

// sampleRSSKB reads the resident set of the program process. Runtimes that
// fork helpers are still covered by ru_maxrss once the process exits.
func sampleRSSKB(ctx context.Context, proc *process.Process) int64 {
	mem, err := proc.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0
	}
	return int64(mem.RSS / 1024)
}

func openStdio(cmd *exec.Cmd, stdinPath, stdoutPath, stderrPath string) ([]*os.File, error) {
	var files []*os.File
	if stdinPath != "" {
		f, err := os.Open(stdinPath)
		if err != nil {
			return nil, fmt.Errorf("open stdin: %w", err)
		}
		files = append(files, f)
		cmd.Stdin = f
	}
	if stdoutPath != "" {
		f, err := os.OpenFile(stdoutPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			closeAll(files)
			return nil, fmt.Errorf("open stdout: %w", err)
		}
		files = append(files, f)
		cmd.Stdout = f
	}
	if stderrPath != "" {
		f, err := os.OpenFile(stderrPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			closeAll(files)
			return nil, fmt.Errorf("open stderr: %w", err)
		}
		files = append(files, f)
		cmd.Stderr = f
	}
	return files, nil
}

func closeAll(files []*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}
