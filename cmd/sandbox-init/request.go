//go:build linux

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
)

// initRequest mirrors the document written by the isolated engine.
type initRequest struct {
	RunSpec       runSpec          `json:"RunSpec"`
	Isolation     isolationProfile `json:"Isolation"`
	EnableSeccomp bool             `json:"EnableSeccomp"`
	EnableNs      bool             `json:"EnableNs"`
}

type runSpec struct {
	RunID      string        `json:"RunID"`
	TestID     string        `json:"TestID"`
	WorkDir    string        `json:"WorkDir"`
	Cmd        []string      `json:"Cmd"`
	Env        []string      `json:"Env"`
	StdinPath  string        `json:"StdinPath"`
	StdoutPath string        `json:"StdoutPath"`
	StderrPath string        `json:"StderrPath"`
	BindMounts []mountSpec   `json:"BindMounts"`
	Limits     resourceLimit `json:"Limits"`
}

type mountSpec struct {
	Source   string `json:"Source"`
	Target   string `json:"Target"`
	ReadOnly bool   `json:"ReadOnly"`
}

type resourceLimit struct {
	CPUTimeMs  int64 `json:"CPUTimeMs"`
	WallTimeMs int64 `json:"WallTimeMs"`
	MemoryMB   int64 `json:"MemoryMB"`
	StackMB    int64 `json:"StackMB"`
	OutputMB   int64 `json:"OutputMB"`
	PIDs       int64 `json:"PIDs"`
}

type isolationProfile struct {
	RootFS         string `json:"RootFS"`
	SeccompProfile string `json:"SeccompProfile"`
	DisableNetwork bool   `json:"DisableNetwork"`
}

func decodeRequest(r io.Reader) (initRequest, error) {
	var req initRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return initRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func validateRequest(req initRequest) error {
	if len(req.RunSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if req.RunSpec.WorkDir == "" || !filepath.IsAbs(req.RunSpec.WorkDir) {
		return fmt.Errorf("work dir must be an absolute path")
	}
	if !req.EnableNs && (req.Isolation.RootFS != "" || len(req.RunSpec.BindMounts) > 0) {
		return fmt.Errorf("namespaces disabled with rootfs or bind mounts")
	}
	for _, m := range req.RunSpec.BindMounts {
		if m.Source == "" || m.Target == "" {
			return fmt.Errorf("invalid mount spec %+v", m)
		}
	}
	return nil
}

func (r runSpec) envValue(key string) string {
	prefix := key + "="
	for _, kv := range r.Env {
		if len(kv) > len(prefix) && kv[:len(prefix)] == prefix {
			return kv[len(prefix):]
		}
	}
	return ""
}
