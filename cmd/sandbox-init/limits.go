//go:build linux

package main

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func applyRlimits(limits resourceLimit) error {
	set := func(resource int, value uint64, name string) error {
		if err := unix.Setrlimit(resource, &unix.Rlimit{Cur: value, Max: value}); err != nil {
			return fmt.Errorf("set rlimit %s: %w", name, err)
		}
		return nil
	}
	if err := set(unix.RLIMIT_CORE, 0, "core"); err != nil {
		return err
	}
	if limits.CPUTimeMs > 0 {
		// RLIMIT_CPU has second granularity; the wall timer catches the rest.
		seconds := uint64((limits.CPUTimeMs + 999) / 1000)
		if err := set(unix.RLIMIT_CPU, seconds, "cpu"); err != nil {
			return err
		}
	}
	if limits.OutputMB > 0 {
		if err := set(unix.RLIMIT_FSIZE, uint64(limits.OutputMB)*1024*1024, "fsize"); err != nil {
			return err
		}
	}
	if limits.StackMB > 0 {
		if err := set(unix.RLIMIT_STACK, uint64(limits.StackMB)*1024*1024, "stack"); err != nil {
			return err
		}
	}
	if limits.PIDs > 0 {
		if err := set(unix.RLIMIT_NPROC, uint64(limits.PIDs), "nproc"); err != nil {
			return err
		}
	}
	return nil
}
