package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"codepractice/internal/evaluator/language"
	"codepractice/internal/evaluator/model"
	pkgerrors "codepractice/pkg/errors"
	"codepractice/pkg/utils/logger"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

const (
	errorPrefix         = "Error: "
	defaultMaxActive    = 4
	defaultSlotWait     = 2 * time.Second
	noEntryPointMessage = "No entry point found. Define a top-level function or a main program."
	timeLimitMessage    = "Evaluation time limit exceeded"
)

// errEvaluationTimeout is the cause attached to the evaluator's own deadline,
// which tells it apart from the caller going away.
var errEvaluationTimeout = errors.New("evaluation time limit exceeded")

// ProblemSource loads a problem with its ordered test cases. Unknown ids
// are reported as ProblemNotFound.
type ProblemSource interface {
	GetProblem(ctx context.Context, problemID string) (*model.Problem, error)
}

// Runner prepares and runs programs. *language.Adapter implements it.
type Runner interface {
	Registry() *language.Registry
	Prepare(ctx context.Context, req language.PrepareRequest) (*language.Program, error)
	Run(ctx context.Context, prog *language.Program, c language.Case) (language.Outcome, error)
}

// ProgressReporter receives each test result as soon as it is known.
// Calls are serialized.
type ProgressReporter interface {
	ReportTest(ctx context.Context, result model.TestResult)
}

// Config holds evaluator settings.
type Config struct {
	// MaxConcurrent bounds evaluations running at once across requests.
	MaxConcurrent int `yaml:"maxConcurrent"`
	// SlotWait is how long a request waits for a slot before EvaluationQueueFull.
	SlotWait time.Duration `yaml:"slotWait"`
	// CaseParallelism runs up to this many cases of one evaluation at once.
	CaseParallelism int `yaml:"caseParallelism"`
	// Timeout caps one evaluation end to end.
	Timeout time.Duration `yaml:"timeout"`
}

// Evaluator runs execution requests against problems.
type Evaluator struct {
	problems ProblemSource
	runner   Runner
	cfg      Config
	sem      chan struct{}
}

// NewEvaluator creates an Evaluator.
func NewEvaluator(problems ProblemSource, runner Runner, cfg Config) *Evaluator {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = defaultMaxActive
	}
	if cfg.SlotWait <= 0 {
		cfg.SlotWait = defaultSlotWait
	}
	if cfg.CaseParallelism <= 0 {
		cfg.CaseParallelism = 1
	}
	return &Evaluator{
		problems: problems,
		runner:   runner,
		cfg:      cfg,
		sem:      make(chan struct{}, cfg.MaxConcurrent),
	}
}

// Evaluate runs req to completion.
func (e *Evaluator) Evaluate(ctx context.Context, req model.ExecutionRequest) (*model.ExecutionResult, error) {
	return e.EvaluateWithProgress(ctx, req, nil)
}

// EvaluateWithProgress runs req and reports each test result to progress.
//
// Validation, not-found and queue-full conditions are returned as errors
// before anything runs. Failures of the user code and of the sandbox are
// reported inside the result. When ctx ends mid-run the results computed so
// far are returned together with the context error. When the evaluator's
// own Timeout fires instead, the unfinished cases fail with a time limit
// message and the result is returned without an error.
func (e *Evaluator) EvaluateWithProgress(ctx context.Context, req model.ExecutionRequest, progress ProgressReporter) (*model.ExecutionResult, error) {
	langSpec, err := e.validate(req)
	if err != nil {
		return nil, err
	}
	problem, err := e.problems.GetProblem(ctx, strings.TrimSpace(req.ProblemID))
	if err != nil {
		return nil, err
	}
	cases := selectCases(problem.TestCases, req.TestCaseIDs)
	if len(cases) == 0 {
		return nil, pkgerrors.Newf(pkgerrors.TestCaseNotFound, "no test cases selected for problem %s", problem.ID)
	}

	parent := ctx
	if e.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeoutCause(ctx, e.cfg.Timeout, errEvaluationTimeout)
		defer cancel()
	}
	timedOut := func() bool {
		return parent.Err() == nil && errors.Is(context.Cause(ctx), errEvaluationTimeout)
	}
	if err := e.acquireSlot(ctx); err != nil {
		if timedOut() {
			return nil, pkgerrors.New(pkgerrors.EvaluationQueueFull)
		}
		return nil, err
	}
	defer e.releaseSlot()

	lang := string(langSpec.ID)
	prog, err := e.runner.Prepare(ctx, language.PrepareRequest{
		RunID:         uuid.NewString(),
		Language:      lang,
		Code:          req.Code,
		EntryPoint:    problem.EntryPoints[lang],
		Harness:       problem.Harnesses[lang],
		TimeLimitMs:   problem.TimeLimitMs,
		MemoryLimitMB: problem.MemoryLimitMB,
	})
	if err != nil {
		var compileErr *language.CompileError
		switch {
		case errors.Is(err, language.ErrNoEntryPoint):
			return failAll(cases, noEntryPointMessage), nil
		case errors.As(err, &compileErr):
			return failAll(cases, compileErr.Error()), nil
		case timedOut():
			return failAll(cases, timeLimitMessage), nil
		case ctx.Err() != nil:
			return e.systemic(ctx, problem.ID, err), ctx.Err()
		default:
			return e.systemic(ctx, problem.ID, err), nil
		}
	}
	defer func() {
		if cerr := prog.Close(); cerr != nil {
			logger.Warn(ctx, "remove program workspace failed", zap.String("run_id", prog.RunID), zap.Error(cerr))
		}
	}()

	runs, runErr := e.runCases(ctx, prog, problem.CompareMode, cases, progress)
	if runErr != nil {
		if timedOut() {
			failUnfinished(parent, runs, cases, progress)
			return summarize(runs, cases), nil
		}
		if ctx.Err() != nil {
			res := summarize(runs, cases)
			return res, ctx.Err()
		}
		return e.systemic(ctx, problem.ID, runErr), nil
	}
	return summarize(runs, cases), nil
}

func (e *Evaluator) validate(req model.ExecutionRequest) (language.Spec, error) {
	if strings.TrimSpace(req.Code) == "" {
		return language.Spec{}, pkgerrors.ValidationError("code", "required")
	}
	if strings.TrimSpace(req.Language) == "" {
		return language.Spec{}, pkgerrors.ValidationError("language", "required")
	}
	if strings.TrimSpace(req.ProblemID) == "" {
		return language.Spec{}, pkgerrors.ValidationError("problemId", "required")
	}
	return e.runner.Registry().Get(req.Language)
}

func (e *Evaluator) acquireSlot(ctx context.Context) error {
	timer := time.NewTimer(e.cfg.SlotWait)
	defer timer.Stop()
	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return pkgerrors.New(pkgerrors.EvaluationQueueFull)
	}
}

func (e *Evaluator) releaseSlot() {
	select {
	case <-e.sem:
	default:
	}
}

type caseRun struct {
	result  model.TestResult
	errored bool
	done    bool
}

// runCases runs every case and returns the runs in selection order. Cases
// that never finished are left with done unset.
func (e *Evaluator) runCases(ctx context.Context, prog *language.Program, mode model.CompareMode, cases []selectedCase, progress ProgressReporter) ([]caseRun, error) {
	runs := make([]caseRun, len(cases))
	var mu sync.Mutex

	runOne := func(ctx context.Context, i int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		tc := cases[i]
		out, err := e.runner.Run(ctx, prog, language.Case{Index: tc.index, Input: tc.Input, Arguments: tc.Arguments})
		if err != nil {
			return err
		}
		r := model.TestResult{
			Passed:         !out.Errored && Compare(mode, out.Output, tc.ExpectedOutput),
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ActualOutput:   out.Output,
			TestCaseID:     i,
			CaseIndex:      tc.index,
			TimeMs:         out.TimeMs,
			MemoryKB:       out.MemoryKB,
		}
		mu.Lock()
		defer mu.Unlock()
		runs[i] = caseRun{result: r, errored: out.Errored, done: true}
		if progress != nil {
			progress.ReportTest(ctx, r)
		}
		return nil
	}

	if e.cfg.CaseParallelism <= 1 || len(cases) == 1 {
		for i := range cases {
			if err := runOne(ctx, i); err != nil {
				return runs, err
			}
		}
		return runs, nil
	}

	p := pool.New().
		WithMaxGoroutines(e.cfg.CaseParallelism).
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError()
	for i := range cases {
		p.Go(func(ctx context.Context) error {
			return runOne(ctx, i)
		})
	}
	return runs, p.Wait()
}

// failUnfinished marks every case that did not finish as failed by the
// evaluation time limit and reports it.
func failUnfinished(ctx context.Context, runs []caseRun, cases []selectedCase, progress ProgressReporter) {
	for i := range runs {
		if runs[i].done {
			continue
		}
		tc := cases[i]
		runs[i] = caseRun{
			result: model.TestResult{
				Input:          tc.Input,
				ExpectedOutput: tc.ExpectedOutput,
				ActualOutput:   errorPrefix + timeLimitMessage,
				TestCaseID:     i,
				CaseIndex:      tc.index,
			},
			errored: true,
			done:    true,
		}
		if progress != nil {
			progress.ReportTest(ctx, runs[i].result)
		}
	}
}

// summarize builds the result from the finished runs.
func summarize(runs []caseRun, cases []selectedCase) *model.ExecutionResult {
	res := &model.ExecutionResult{
		Status:      model.StatusSuccess,
		TestResults: make([]model.TestResult, 0, len(runs)),
	}
	hidden := make([]bool, 0, len(runs))
	allPassed, allErrored := true, true
	for i, run := range runs {
		if !run.done {
			continue
		}
		res.TestResults = append(res.TestResults, run.result)
		hidden = append(hidden, cases[i].IsHidden)
		res.ExecutionTime += run.result.TimeMs
		if run.result.MemoryKB > res.MemoryUsed {
			res.MemoryUsed = run.result.MemoryKB
		}
		allPassed = allPassed && run.result.Passed
		allErrored = allErrored && run.errored
	}
	res.AllTestsPassed = len(res.TestResults) > 0 && allPassed
	if len(res.TestResults) > 0 && allErrored {
		res.Status = model.StatusError
	}
	res.Output = FormatOutput(res.TestResults, hidden)
	return res
}

// failAll reports message as the outcome of every case. It is used when the
// program could not be built at all.
func failAll(cases []selectedCase, message string) *model.ExecutionResult {
	res := &model.ExecutionResult{
		Status:      model.StatusError,
		TestResults: make([]model.TestResult, len(cases)),
		Error:       message,
	}
	hidden := make([]bool, len(cases))
	for i, tc := range cases {
		res.TestResults[i] = model.TestResult{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
			ActualOutput:   errorPrefix + message,
			TestCaseID:     i,
			CaseIndex:      tc.index,
		}
		hidden[i] = tc.IsHidden
	}
	res.Output = FormatErrorOutput(res.TestResults, hidden, message)
	return res
}

func (e *Evaluator) systemic(ctx context.Context, problemID string, err error) *model.ExecutionResult {
	logger.Error(ctx, "evaluation failed", zap.String("problem_id", problemID), zap.Error(err))
	message := pkgerrors.EvaluationSystemError.Message()
	if pkgerrors.Is(err, pkgerrors.SandboxUnavailable) {
		message = pkgerrors.SandboxUnavailable.Message()
	}
	if ctx.Err() != nil {
		message = "Evaluation canceled"
	}
	return &model.ExecutionResult{
		Status:      model.StatusError,
		Output:      FormatErrorOutput(nil, nil, message),
		TestResults: []model.TestResult{},
		Error:       message,
	}
}
