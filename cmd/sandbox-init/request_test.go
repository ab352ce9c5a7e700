//go:build linux

package main

import (
	"strings"
	"testing"
)

func TestDecodeAndValidateRequest(t *testing.T) {
	doc := `{"RunSpec":{"RunID":"r","TestID":"0","WorkDir":"/work","Cmd":["python3","main.py"],
		"Env":["PATH=/usr/bin","LANG=C.UTF-8"],
		"BindMounts":[{"Source":"/tmp/ws","Target":"/work"}],
		"Limits":{"CPUTimeMs":1000,"MemoryMB":64}},
		"Isolation":{"RootFS":"/srv/rootfs"},"EnableNs":true}`
	req, err := decodeRequest(strings.NewReader(doc))
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if err := validateRequest(req); err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if req.RunSpec.Limits.MemoryMB != 64 || req.RunSpec.BindMounts[0].Target != "/work" {
		t.Fatalf("unexpected request %+v", req)
	}
	if got := req.RunSpec.envValue("PATH"); got != "/usr/bin" {
		t.Fatalf("unexpected PATH %q", got)
	}

	req.EnableNs = false
	if err := validateRequest(req); err == nil {
		t.Fatalf("expected error for mounts without namespaces")
	}
	req = initRequest{RunSpec: runSpec{WorkDir: "relative", Cmd: []string{"true"}}}
	if err := validateRequest(req); err == nil {
		t.Fatalf("expected error for relative work dir")
	}
}

func TestBuildEnv(t *testing.T) {
	env := buildEnv([]string{"LANG=C", "broken"})
	if len(env) != 2 || env[0] != "LANG=C" || !strings.HasPrefix(env[1], "PATH=") {
		t.Fatalf("unexpected env %v", env)
	}
	env = buildEnv([]string{"PATH=/opt/bin"})
	if len(env) != 1 || env[0] != "PATH=/opt/bin" {
		t.Fatalf("unexpected env %v", env)
	}
}

func TestParseSeccompAction(t *testing.T) {
	for _, action := range []string{"SCMP_ACT_ALLOW", "scmp_act_errno", "SCMP_ACT_KILL_PROCESS"} {
		if _, err := parseSeccompAction(action); err != nil {
			t.Fatalf("action %s: %v", action, err)
		}
	}
	if _, err := parseSeccompAction("SCMP_ACT_TRACE"); err == nil {
		t.Fatalf("expected unsupported action error")
	}
}
