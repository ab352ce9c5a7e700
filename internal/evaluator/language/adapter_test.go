package language

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"testing"

	"codepractice/internal/sandbox/result"
	"codepractice/internal/sandbox/spec"
)

type runHandler func(hostDir string, rs spec.RunSpec) (result.RunResult, error)

// fakeEngine stands in for the sandbox; it sees the host directory behind /work.
type fakeEngine struct {
	mu      sync.Mutex
	specs   []spec.RunSpec
	compile runHandler
	run     runHandler
}

func (f *fakeEngine) Run(ctx context.Context, rs spec.RunSpec) (result.RunResult, error) {
	f.mu.Lock()
	f.specs = append(f.specs, rs)
	f.mu.Unlock()
	hostDir := rs.BindMounts[0].Source
	if rs.TestID == "compile" {
		if f.compile == nil {
			return result.RunResult{}, nil
		}
		return f.compile(hostDir, rs)
	}
	return f.run(hostDir, rs)
}

var markerPattern = regexp.MustCompile(`__PRACTICE_[0-9A-F]+__`)

func newTestAdapter(t *testing.T, eng *fakeEngine) *Adapter {
	t.Helper()
	a, err := NewAdapter(eng, NewRegistry(nil), Config{WorkRoot: t.TempDir()})
	if err != nil {
		t.Fatalf("new adapter failed: %v", err)
	}
	return a
}

func TestAdapter_FunctionModeRoundTrip(t *testing.T) {
	var seenInput string
	eng := &fakeEngine{
		run: func(hostDir string, rs spec.RunSpec) (result.RunResult, error) {
			src, err := os.ReadFile(filepath.Join(hostDir, "main.py"))
			if err != nil {
				return result.RunResult{}, err
			}
			input, _ := os.ReadFile(filepath.Join(hostDir, "input.txt"))
			seenInput = string(input)
			marker := markerPattern.FindString(string(src))
			stdout := "print noise\n\n" + marker + ":OK\n[0,1]\n" + marker + ":END\n"
			return result.RunResult{Stdout: stdout, TimeMs: 12, MemoryKB: 9000}, nil
		},
	}
	a := newTestAdapter(t, eng)

	prog, err := a.Prepare(context.Background(), PrepareRequest{
		RunID:    "run-1",
		Language: "python",
		Code:     "def twoSum(nums, target):\n    return [0, 1]\n",
	})
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer prog.Close()
	if prog.Mode != ModeFunction || prog.Entry.Name != "twoSum" {
		t.Fatalf("unexpected program %+v", prog)
	}

	out, err := a.Run(context.Background(), prog, Case{Index: 0, Input: "[2,7,11,15], 9"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out.Errored || out.Output != "[0,1]" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	if out.TimeMs != 12 || out.MemoryKB != 9000 {
		t.Fatalf("metrics not carried: %+v", out)
	}
	if seenInput != "[[2,7,11,15],9]" {
		t.Fatalf("unexpected program input %q", seenInput)
	}

	entries, _ := os.ReadDir(filepath.Join(prog.root, "tests"))
	if len(entries) != 0 {
		t.Fatalf("case directory not removed")
	}
	root := prog.root
	if err := prog.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Fatalf("workspace not removed")
	}
}

func TestAdapter_RunReadsFullOutputFromCaseDir(t *testing.T) {
	eng := &fakeEngine{
		run: func(hostDir string, rs spec.RunSpec) (result.RunResult, error) {
			src, _ := os.ReadFile(filepath.Join(hostDir, "main.py"))
			marker := markerPattern.FindString(string(src))
			noise := strings.Repeat("debug output line\n", 8000)
			full := noise + "\n" + marker + ":OK\n[0,1]\n" + marker + ":END\n"
			if err := os.WriteFile(filepath.Join(hostDir, "output.txt"), []byte(full), 0644); err != nil {
				return result.RunResult{}, err
			}
			// The engine copy is cut short like a bounded capture.
			return result.RunResult{Stdout: full[:64*1024]}, nil
		},
	}
	a := newTestAdapter(t, eng)
	prog, err := a.Prepare(context.Background(), PrepareRequest{RunID: "r", Language: "python", Code: "def f(a):\n    return a\n"})
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer prog.Close()
	out, err := a.Run(context.Background(), prog, Case{Input: "1"})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out.Errored || out.Output != "[0,1]" {
		t.Fatalf("expected the frame after long output, got %q errored=%v", out.Output, out.Errored)
	}
}

func TestAdapter_RuntimeErrorHidesHostPaths(t *testing.T) {
	eng := &fakeEngine{
		run: func(hostDir string, rs spec.RunSpec) (result.RunResult, error) {
			stderr := hostDir + "/main.js:1\nthrow new TypeError('x is ' + " + "hostDir)\n^\n\nTypeError: cannot read " + hostDir + "/data.json\n    at Object.<anonymous> (" + hostDir + "/main.js:1:7)\n"
			if err := os.WriteFile(filepath.Join(hostDir, "runtime.log"), []byte(stderr), 0644); err != nil {
				return result.RunResult{}, err
			}
			return result.RunResult{ExitCode: 1}, nil
		},
	}
	a := newTestAdapter(t, eng)
	prog, err := a.Prepare(context.Background(), PrepareRequest{RunID: "r", Language: "cpp", Code: "int main() { return 1; }"})
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer prog.Close()
	out, err := a.Run(context.Background(), prog, Case{})
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if out.Output != "Error: TypeError: cannot read data.json" {
		t.Fatalf("unexpected runtime error %q", out.Output)
	}
}

func TestAdapter_CommandsAndLimits(t *testing.T) {
	eng := &fakeEngine{
		run: func(hostDir string, rs spec.RunSpec) (result.RunResult, error) {
			return result.RunResult{Stdout: "42\n"}, nil
		},
	}
	a := newTestAdapter(t, eng)
	code := "public class Solution {\n    public static void main(String[] a) {}\n}\n"
	prog, err := a.Prepare(context.Background(), PrepareRequest{
		RunID: "run-2", Language: "JAVA", Code: code, TimeLimitMs: 1000, MemoryLimitMB: 128,
	})
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer prog.Close()
	if prog.SourceFile != "Solution.java" {
		t.Fatalf("expected source named after class, got %s", prog.SourceFile)
	}
	if _, err := os.Stat(filepath.Join(prog.buildDir, "Solution.java")); err != nil {
		t.Fatalf("source not written: %v", err)
	}

	limits := prog.Limits()
	if limits.CPUTimeMs != 2000 || limits.WallTimeMs != 5000 || limits.MemoryMB != 256 {
		t.Fatalf("unexpected limits %+v", limits)
	}

	out, err := a.Run(context.Background(), prog, Case{Index: 3, Input: "6 7"})
	if err != nil || out.Output != "42" {
		t.Fatalf("unexpected outcome %+v err=%v", out, err)
	}

	compileCmd := strings.Join(eng.specs[0].Cmd, " ")
	if compileCmd != "javac -encoding UTF-8 -d /work /work/Solution.java" {
		t.Fatalf("unexpected compile command %q", compileCmd)
	}
	runCmd := eng.specs[1].Cmd
	if runCmd[len(runCmd)-1] != "Solution" || eng.specs[1].Profile != "java-run" {
		t.Fatalf("unexpected run spec %+v", eng.specs[1])
	}
	if eng.specs[1].StdinPath != "/work/input.txt" {
		t.Fatalf("unexpected stdin path %q", eng.specs[1].StdinPath)
	}
}

func TestAdapter_PrepareErrors(t *testing.T) {
	t.Run("no entry point", func(t *testing.T) {
		a := newTestAdapter(t, &fakeEngine{})
		_, err := a.Prepare(context.Background(), PrepareRequest{RunID: "r", Language: "python", Code: "print(1)\n"})
		if !errors.Is(err, ErrNoEntryPoint) {
			t.Fatalf("expected ErrNoEntryPoint, got %v", err)
		}
		entries, _ := os.ReadDir(a.cfg.WorkRoot)
		if len(entries) != 0 {
			t.Fatalf("workspace left behind")
		}
	})

	t.Run("harness entry missing", func(t *testing.T) {
		a := newTestAdapter(t, &fakeEngine{})
		_, err := a.Prepare(context.Background(), PrepareRequest{
			RunID: "r", Language: "cpp", Code: "int other() { return 0; }",
			EntryPoint: "solve", Harness: "{code}\nint main() { return solve(); }\n",
		})
		if !errors.Is(err, ErrNoEntryPoint) {
			t.Fatalf("expected ErrNoEntryPoint, got %v", err)
		}
	})

	t.Run("compile error", func(t *testing.T) {
		eng := &fakeEngine{
			compile: func(hostDir string, rs spec.RunSpec) (result.RunResult, error) {
				log := "  File \"/work/main.py\", line 1\n    def f(:\n SyntaxError: invalid syntax\n"
				_ = os.WriteFile(filepath.Join(hostDir, "compile.log"), []byte(log), 0644)
				return result.RunResult{ExitCode: 1}, nil
			},
		}
		a := newTestAdapter(t, eng)
		_, err := a.Prepare(context.Background(), PrepareRequest{RunID: "r", Language: "python", Code: "def f(:\n"})
		var ce *CompileError
		if !errors.As(err, &ce) {
			t.Fatalf("expected CompileError, got %v", err)
		}
		if !strings.Contains(ce.Log, "SyntaxError") || strings.Contains(ce.Log, "/work/") {
			t.Fatalf("unexpected compile log %q", ce.Log)
		}
	})

	t.Run("sandbox failure", func(t *testing.T) {
		eng := &fakeEngine{
			compile: func(hostDir string, rs spec.RunSpec) (result.RunResult, error) {
				return result.RunResult{}, errors.New("helper missing")
			},
		}
		a := newTestAdapter(t, eng)
		_, err := a.Prepare(context.Background(), PrepareRequest{RunID: "r", Language: "cpp", Code: "int main(){}"})
		var ce *CompileError
		if err == nil || errors.As(err, &ce) || errors.Is(err, ErrNoEntryPoint) {
			t.Fatalf("expected systemic error, got %v", err)
		}
	})

	t.Run("unsupported language", func(t *testing.T) {
		a := newTestAdapter(t, &fakeEngine{})
		if _, err := a.Prepare(context.Background(), PrepareRequest{RunID: "r", Language: "cobol", Code: "x"}); err == nil {
			t.Fatalf("expected unsupported language error")
		}
	})
}

func TestAdapter_RunReportsBadArguments(t *testing.T) {
	eng := &fakeEngine{
		run: func(hostDir string, rs spec.RunSpec) (result.RunResult, error) {
			t.Fatalf("program must not run with invalid arguments")
			return result.RunResult{}, nil
		},
	}
	a := newTestAdapter(t, eng)
	prog, err := a.Prepare(context.Background(), PrepareRequest{RunID: "r", Language: "javascript", Code: "function f(a) { return a }"})
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer prog.Close()
	out, err := a.Run(context.Background(), prog, Case{Input: "not json"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !out.Errored || !strings.HasPrefix(out.Output, "Error: ") {
		t.Fatalf("expected error outcome, got %+v", out)
	}
}

func TestAdapter_RunSandboxFailure(t *testing.T) {
	eng := &fakeEngine{
		run: func(hostDir string, rs spec.RunSpec) (result.RunResult, error) {
			return result.RunResult{}, context.Canceled
		},
	}
	a := newTestAdapter(t, eng)
	prog, err := a.Prepare(context.Background(), PrepareRequest{RunID: "r", Language: "cpp", Code: "int main(){}"})
	if err != nil {
		t.Fatalf("prepare failed: %v", err)
	}
	defer prog.Close()
	if _, err := a.Run(context.Background(), prog, Case{}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation to surface, got %v", err)
	}
}

func TestProgramInterpret(t *testing.T) {
	limits := spec.ResourceLimit{CPUTimeMs: 1000, MemoryMB: 64, OutputMB: 1}
	fn := &Program{Mode: ModeFunction, marker: "MK", limits: limits}
	stdio := &Program{Mode: ModeStdio, limits: limits}

	cases := []struct {
		name    string
		prog    *Program
		res     result.RunResult
		want    string
		errored bool
	}{
		{name: "timeout", prog: fn, res: result.RunResult{TimedOut: true, ExitCode: -1}, want: "Error: Time limit exceeded (1000 ms)", errored: true},
		{name: "cpu over limit", prog: stdio, res: result.RunResult{TimeMs: 1500, Stdout: "1"}, want: "Error: Time limit exceeded (1000 ms)", errored: true},
		{name: "memory", prog: fn, res: result.RunResult{OomKilled: true, ExitCode: -1}, want: "Error: Memory limit exceeded (64 MB)", errored: true},
		{name: "output", prog: stdio, res: result.RunResult{OutputExceeded: true}, want: "Error: Output limit exceeded", errored: true},
		{name: "framed value", prog: fn, res: result.RunResult{Stdout: "\nMK:OK\nhello\nMK:END\n"}, want: "hello"},
		{name: "framed exception", prog: fn, res: result.RunResult{ExitCode: 1, Stdout: "\nMK:ERR\nlist index out of range\nMK:END\n"}, want: "Error: list index out of range", errored: true},
		{name: "js error prefix not doubled", prog: fn, res: result.RunResult{ExitCode: 1, Stdout: "\nMK:ERR\nError: boom\nMK:END\n"}, want: "Error: boom", errored: true},
		{name: "exit before result", prog: fn, res: result.RunResult{Stdout: "partial"}, want: "Error: Program exited before returning a result", errored: true},
		{
			name: "python traceback",
			prog: fn,
			res:  result.RunResult{ExitCode: 1, Stderr: "Traceback (most recent call last):\n  File \"/work/main.py\", line 3, in <module>\nZeroDivisionError: division by zero\n"},
			want: "Error: ZeroDivisionError: division by zero", errored: true,
		},
		{
			name: "java exception",
			prog: stdio,
			res:  result.RunResult{ExitCode: 1, Stderr: "Exception in thread \"main\" java.lang.ArithmeticException: / by zero\n\tat Main.main(Main.java:5)\n"},
			want: "Error: Exception in thread \"main\" java.lang.ArithmeticException: / by zero", errored: true,
		},
		{
			name: "node error",
			prog: stdio,
			res:  result.RunResult{ExitCode: 1, Stderr: "/work/main.js:1\nthrow new Error('boom')\n^\n\nError: boom\n    at Object.<anonymous> (/work/main.js:1:7)\n\nNode.js v20.11.0\n"},
			want: "Error: boom", errored: true,
		},
		{name: "segfault", prog: stdio, res: result.RunResult{ExitCode: -1}, want: "Error: Process terminated abnormally", errored: true},
		{name: "exit code", prog: stdio, res: result.RunResult{ExitCode: 3}, want: "Error: Process exited with code 3", errored: true},
		{name: "stdio output trimmed", prog: stdio, res: result.RunResult{Stdout: "  1 2\n3\r\n\n"}, want: "  1 2\n3"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.prog.interpret(tc.res)
			if got.Output != tc.want || got.Errored != tc.errored {
				t.Fatalf("expected %q errored=%v, got %q errored=%v", tc.want, tc.errored, got.Output, got.Errored)
			}
		})
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry([]Spec{
		{ID: "python", RunCmd: "pypy3 {src}", RunLimits: spec.ResourceLimit{MemoryMB: 512}},
		{ID: "ruby", RunCmd: "ruby {src}"},
	})
	py, err := r.Get("Python")
	if err != nil {
		t.Fatalf("get python failed: %v", err)
	}
	if py.RunCmd != "pypy3 {src}" || py.RunLimits.MemoryMB != 512 || py.RunLimits.CPUTimeMs != defaultRunLimits.CPUTimeMs {
		t.Fatalf("override not merged: %+v", py)
	}
	if r.Supported("ruby") {
		t.Fatalf("overrides must not add languages")
	}
	if got := strings.Join(r.IDs(), ","); got != "cpp,java,javascript,python" {
		t.Fatalf("unexpected ids %s", got)
	}
}
