//go:build unix && !linux

package engine

import "codepractice/internal/sandbox/spec"

// applyRlimits is a no-op without prlimit; the watcher still enforces wall
// time, memory and output.
func applyRlimits(pid int, limits spec.ResourceLimit) error {
	return nil
}
