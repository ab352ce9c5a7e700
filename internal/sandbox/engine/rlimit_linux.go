//go:build linux

package engine

import (
	"fmt"

	"codepractice/internal/sandbox/spec"

	"golang.org/x/sys/unix"
)

// applyRlimits sets per-process limits on a started child. The kernel then
// enforces CPU time, file size and stack even between memory samples.
// RLIMIT_AS is left alone because JVM and V8 reserve far more address space
// than they touch, and RLIMIT_NPROC counts every process of the server's
// uid, so both stay with the isolated engine.
func applyRlimits(pid int, limits spec.ResourceLimit) error {
	set := func(resource int, value uint64, name string) error {
		rl := unix.Rlimit{Cur: value, Max: value}
		if err := unix.Prlimit(pid, resource, &rl, nil); err != nil {
			return fmt.Errorf("set rlimit %s: %w", name, err)
		}
		return nil
	}
	if err := set(unix.RLIMIT_CORE, 0, "core"); err != nil {
		return err
	}
	if limits.CPUTimeMs > 0 {
		// Second granularity; cpuTimeMs is compared exactly afterwards.
		seconds := uint64((limits.CPUTimeMs+999)/1000) + 1
		if err := set(unix.RLIMIT_CPU, seconds, "cpu"); err != nil {
			return err
		}
	}
	if limits.OutputMB > 0 {
		if err := set(unix.RLIMIT_FSIZE, uint64(limits.OutputMB)<<20, "fsize"); err != nil {
			return err
		}
	}
	if limits.StackMB > 0 {
		if err := set(unix.RLIMIT_STACK, uint64(limits.StackMB)<<20, "stack"); err != nil {
			return err
		}
	}
	return nil
}
