//go:build linux

package engine

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"codepractice/internal/sandbox/spec"
	pkgerrors "codepractice/pkg/errors"
)

// createRunCgroup makes <root>/<runID>/<testID> and returns its cleanup.
func createRunCgroup(root, runID, testID string) (string, func(), error) {
	if root == "" {
		return "", func() {}, pkgerrors.ValidationError("cgroup_root", "required")
	}
	runDir := filepath.Join(root, runID)
	cgroupPath := filepath.Join(runDir, testID)
	if err := os.MkdirAll(cgroupPath, 0750); err != nil {
		return "", func() {}, pkgerrors.Wrapf(err, pkgerrors.SandboxUnavailable, "create cgroup path failed")
	}
	cleanup := func() {
		// cgroup directories are removed with rmdir, never recursively.
		_ = os.Remove(cgroupPath)
		_ = os.Remove(runDir)
	}
	return cgroupPath, cleanup, nil
}

func applyCgroupLimits(cgroupPath string, limits spec.ResourceLimit) error {
	pidsValue := "max"
	if limits.PIDs > 0 {
		pidsValue = strconv.FormatInt(limits.PIDs, 10)
	}
	if err := writeCgroupValue(cgroupPath, "pids.max", pidsValue); err != nil {
		return err
	}
	if limits.MemoryMB > 0 {
		bytes := strconv.FormatInt(limits.MemoryMB*1024*1024, 10)
		if err := writeCgroupValue(cgroupPath, "memory.max", bytes); err != nil {
			return err
		}
		// No swap, otherwise memory.max only slows the program down.
		if err := writeCgroupValue(cgroupPath, "memory.swap.max", "0"); err != nil && !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}
	return writeCgroupValue(cgroupPath, "cpu.max", "max 100000")
}

func addProcessToCgroup(cgroupPath string, pid int) error {
	if pid <= 0 {
		return pkgerrors.ValidationError("pid", "invalid")
	}
	return writeCgroupValue(cgroupPath, "cgroup.procs", strconv.Itoa(pid))
}

func killCgroup(cgroupPath string) error {
	if cgroupPath == "" {
		return nil
	}
	killPath := filepath.Join(cgroupPath, "cgroup.kill")
	if _, err := os.Stat(killPath); err != nil {
		return err
	}
	return os.WriteFile(killPath, []byte("1"), 0600)
}

func wasOomKilled(cgroupPath string) bool {
	if cgroupPath == "" {
		return false
	}
	val, err := readCgroupKeyed(cgroupPath, "memory.events", "oom_kill")
	return err == nil && val > 0
}

// cgroupCPUTimeMs covers every process of the run, not just the helper.
func cgroupCPUTimeMs(cgroupPath string) (int64, error) {
	if cgroupPath == "" {
		return 0, pkgerrors.ValidationError("cgroup_path", "required")
	}
	usec, err := readCgroupKeyed(cgroupPath, "cpu.stat", "usage_usec")
	if err != nil {
		return 0, err
	}
	return usec / 1000, nil
}

func memoryPeakKB(cgroupPath string, state *os.ProcessState) int64 {
	if cgroupPath != "" {
		if val, err := readCgroupInt(cgroupPath, "memory.peak"); err == nil && val > 0 {
			return val / 1024
		}
	}
	return maxRSSKB(state)
}

func readCgroupKeyed(cgroupPath, file, key string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(cgroupPath, file))
	if err != nil {
		return 0, pkgerrors.Wrapf(err, pkgerrors.SandboxUnavailable, "read %s failed", file)
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[0] != key {
			continue
		}
		val, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return 0, pkgerrors.Wrapf(err, pkgerrors.SandboxUnavailable, "parse %s %s failed", file, key)
		}
		return val, nil
	}
	return 0, fmt.Errorf("%s not found in %s", key, file)
}

func readCgroupInt(cgroupPath, name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(cgroupPath, name))
	if err != nil {
		return 0, pkgerrors.Wrapf(err, pkgerrors.SandboxUnavailable, "read cgroup value failed")
	}
	parsed, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return 0, pkgerrors.Wrapf(err, pkgerrors.SandboxUnavailable, "parse cgroup value failed")
	}
	return parsed, nil
}

func writeCgroupValue(cgroupPath, name, value string) error {
	if err := os.WriteFile(filepath.Join(cgroupPath, name), []byte(value), 0640); err != nil {
		return pkgerrors.Wrapf(err, pkgerrors.SandboxUnavailable, "write %s failed", name)
	}
	return nil
}
