package result

import "testing"

func TestRunResultClassify(t *testing.T) {
	cases := []struct {
		name string
		res  RunResult
		want Verdict
	}{
		{name: "ok", res: RunResult{ExitCode: 0, MemoryKB: 1024}, want: VerdictOK},
		{name: "timeout flag", res: RunResult{TimedOut: true, ExitCode: 137}, want: VerdictTLE},
		{name: "killed by signal", res: RunResult{ExitCode: -1}, want: VerdictRE},
		{name: "oom", res: RunResult{OomKilled: true, ExitCode: 137}, want: VerdictMLE},
		{name: "peak over limit", res: RunResult{MemoryKB: 70 * 1024}, want: VerdictMLE},
		{name: "output flag", res: RunResult{OutputExceeded: true}, want: VerdictOLE},
		{name: "output size", res: RunResult{OutputKB: 2048}, want: VerdictOLE},
		{name: "runtime error", res: RunResult{ExitCode: 1}, want: VerdictRE},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.res.Classify(64, 1); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}
