package language

import (
	"strings"
	"testing"
)

func TestRenderFunctionHarness(t *testing.T) {
	code := "def f(x):\n    return '{marker} {call}'\n"
	src, ok := renderFunctionHarness(Python, code, EntryPoint{Name: "f"}, "MARK")
	if !ok {
		t.Fatalf("expected python harness")
	}
	if !strings.HasPrefix(src, code) {
		t.Fatalf("user code must be kept verbatim at the top")
	}
	if !strings.Contains(src, "__value = f(*__args)") {
		t.Fatalf("expected entry call in harness:\n%s", src)
	}
	if strings.Count(src, "MARK") != 1 {
		t.Fatalf("expected marker once in harness")
	}

	src, _ = renderFunctionHarness(Python, "class Solution:\n    def g(self): pass\n", EntryPoint{Name: "g", Receiver: "Solution"}, "M")
	if !strings.Contains(src, "Solution().g(*__args)") {
		t.Fatalf("expected method call on Solution")
	}

	src, _ = renderFunctionHarness(JavaScript, "function twoSum(a, b) {}", EntryPoint{Name: "twoSum"}, "M")
	if !strings.Contains(src, "twoSum(...__args)") {
		t.Fatalf("expected spread call in js harness")
	}

	if _, ok := renderFunctionHarness(Cpp, "", EntryPoint{Name: "x"}, "M"); ok {
		t.Fatalf("cpp has no function harness")
	}
}

func TestRenderWithHarness(t *testing.T) {
	tpl := "#include <bits/stdc++.h>\n{code}\nint main() { solve(); }\n"
	got := renderWithHarness(tpl, "void solve() {}")
	if !strings.Contains(got, "void solve() {}\nint main()") {
		t.Fatalf("unexpected render:\n%s", got)
	}
}

func TestParseFrame(t *testing.T) {
	m := "MK"
	cases := []struct {
		name   string
		stdout string
		want   frame
	}{
		{name: "ok", stdout: "debug line\n\nMK:OK\n[0,1]\nMK:END\n", want: frame{ok: true, text: "[0,1]", found: true}},
		{name: "error", stdout: "\nMK:ERR\nboom\nMK:END\n", want: frame{ok: false, text: "boom", found: true}},
		{name: "multiline value", stdout: "\nMK:OK\na\nb\nMK:END\n", want: frame{ok: true, text: "a\nb", found: true}},
		{name: "empty string result", stdout: "\nMK:OK\n\nMK:END\n", want: frame{ok: true, text: "", found: true}},
		{name: "missing end", stdout: "\nMK:OK\n[0,1]\n", want: frame{}},
		{name: "no frame", stdout: "[0,1]\n", want: frame{}},
		{name: "forged with other marker", stdout: "\nXX:OK\n1\nXX:END\n", want: frame{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := parseFrame(tc.stdout, m); got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestNewMarkerIsRandom(t *testing.T) {
	a, b := newMarker(), newMarker()
	if a == b || !strings.HasPrefix(a, "__PRACTICE_") {
		t.Fatalf("unexpected markers %q %q", a, b)
	}
}
