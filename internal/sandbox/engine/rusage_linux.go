//go:build linux

package engine

import (
	"os"
	"syscall"
)

// maxRSSKB reports ru_maxrss, which Linux already expresses in KB.
func maxRSSKB(state *os.ProcessState) int64 {
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}
