// Package result defines raw sandbox execution results.
package result

// RunResult captures raw sandbox execution data for one process.
type RunResult struct {
	ExitCode   int
	TimeMs     int64
	WallTimeMs int64
	MemoryKB   int64
	OutputKB   int64
	Stdout     string
	Stderr     string

	// Limit flags are set by the engine that enforced the limit.
	// ExitCode is -1 for any signaled process; only TimedOut marks a timeout.
	TimedOut       bool
	OomKilled      bool
	OutputExceeded bool
}

// Verdict classifies how a run ended.
type Verdict string

const (
	VerdictOK  Verdict = "OK"
	VerdictTLE Verdict = "TLE"
	VerdictMLE Verdict = "MLE"
	VerdictOLE Verdict = "OLE"
	VerdictRE  Verdict = "RE"
)

// Classify maps a run onto a verdict given the limits it ran under.
func (r RunResult) Classify(memoryLimitMB, outputLimitMB int64) Verdict {
	if r.TimedOut {
		return VerdictTLE
	}
	if r.OomKilled {
		return VerdictMLE
	}
	if memoryLimitMB > 0 && r.MemoryKB > memoryLimitMB*1024 {
		return VerdictMLE
	}
	if r.OutputExceeded || (outputLimitMB > 0 && r.OutputKB > outputLimitMB*1024) {
		return VerdictOLE
	}
	if r.ExitCode != 0 {
		return VerdictRE
	}
	return VerdictOK
}
