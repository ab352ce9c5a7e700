//go:build linux

// Command sandbox-init is exec'd by the isolated engine inside fresh
// namespaces. It reads one JSON request on stdin, sets up mounts, limits,
// stdio and seccomp, then replaces itself with the program.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

const defaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

func main() {
	if err := run(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "sandbox-init:", err.Error())
		os.Exit(1)
	}
}

func run() error {
	req, err := decodeRequest(os.Stdin)
	if err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}

	if req.EnableNs {
		if err := enterRoot(req.Isolation, req.RunSpec.BindMounts); err != nil {
			return err
		}
	}
	if err := os.Chdir(req.RunSpec.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}
	if err := applyRlimits(req.RunSpec.Limits); err != nil {
		return err
	}
	if err := redirectIO(req.RunSpec); err != nil {
		return err
	}

	env := buildEnv(req.RunSpec.Env)
	cmdPath, err := lookPath(req.RunSpec.Cmd[0], req.RunSpec.envValue("PATH"))
	if err != nil {
		return err
	}

	// Seccomp goes last: the filter may forbid the syscalls used above.
	if req.EnableSeccomp && req.Isolation.SeccompProfile != "" {
		if err := applySeccomp(req.Isolation.SeccompProfile); err != nil {
			return err
		}
	}
	return unix.Exec(cmdPath, req.RunSpec.Cmd, env)
}

func buildEnv(env []string) []string {
	out := make([]string, 0, len(env)+1)
	hasPath := false
	for _, kv := range env {
		if !strings.Contains(kv, "=") {
			continue
		}
		if strings.HasPrefix(kv, "PATH=") {
			hasPath = true
		}
		out = append(out, kv)
	}
	if !hasPath {
		out = append(out, "PATH="+defaultPath)
	}
	return out
}

// lookPath resolves name against the program's PATH, not the helper's.
func lookPath(name, pathEnv string) (string, error) {
	if strings.Contains(name, "/") {
		return name, nil
	}
	if pathEnv == "" {
		pathEnv = defaultPath
	}
	for _, dir := range filepath.SplitList(pathEnv) {
		candidate := filepath.Join(dir, name)
		if err := unix.Access(candidate, unix.X_OK); err == nil {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("resolve command %q: not found in PATH", name)
}

func redirectIO(spec runSpec) error {
	targets := []struct {
		path  string
		flags int
		fd    int
		name  string
	}{
		{spec.StdinPath, os.O_RDONLY, 0, "stdin"},
		{spec.StdoutPath, os.O_CREATE | os.O_WRONLY | os.O_TRUNC, 1, "stdout"},
		{spec.StderrPath, os.O_CREATE | os.O_WRONLY | os.O_TRUNC, 2, "stderr"},
	}
	for _, t := range targets {
		path := t.path
		if path == "" {
			path = "/dev/null"
		}
		file, err := os.OpenFile(path, t.flags, 0644)
		if err != nil {
			return fmt.Errorf("open %s: %w", t.name, err)
		}
		if err := unix.Dup2(int(file.Fd()), t.fd); err != nil {
			_ = file.Close()
			return fmt.Errorf("dup %s: %w", t.name, err)
		}
		_ = file.Close()
	}
	return nil
}
