//go:build unix && !linux

package engine

import (
	"os"
	"syscall"
)

// maxRSSKB reports ru_maxrss, which BSD-derived kernels express in bytes.
func maxRSSKB(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return int64(usage.Maxrss) / 1024
	}
	return 0
}
