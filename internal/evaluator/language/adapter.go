package language

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"codepractice/internal/sandbox/engine"
	"codepractice/internal/sandbox/result"
	"codepractice/internal/sandbox/spec"
	pkgerrors "codepractice/pkg/errors"
	"codepractice/pkg/utils/logger"

	"github.com/google/shlex"
	"go.uber.org/zap"
)

const (
	containerWorkDir   = "/work"
	inputName          = "input.txt"
	outputName         = "output.txt"
	compileLogName     = "compile.log"
	runtimeLogName     = "runtime.log"
	maxCompileLogBytes = 8 * 1024
	maxRuntimeLogBytes = 64 * 1024
	// Stdout read cap when a language sets no output limit.
	defaultOutputReadBytes = 16 << 20

	defaultWallTimeFactor  = 2.0
	defaultWallTimeGraceMs = 1000
)

// Config controls where programs are built and how wall time is derived.
type Config struct {
	WorkRoot string `yaml:"workRoot"`
	// Wall time is CPU limit * WallTimeFactor + WallTimeGraceMs, which leaves
	// room for interpreter start-up and blocked I/O.
	WallTimeFactor  float64 `yaml:"wallTimeFactor"`
	WallTimeGraceMs int64   `yaml:"wallTimeGraceMs"`
}

// Adapter compiles and runs user programs inside the sandbox engine.
type Adapter struct {
	eng      engine.Engine
	registry *Registry
	cfg      Config
}

func NewAdapter(eng engine.Engine, registry *Registry, cfg Config) (*Adapter, error) {
	if eng == nil {
		return nil, fmt.Errorf("sandbox engine is required")
	}
	if registry == nil {
		registry = NewRegistry(nil)
	}
	if cfg.WorkRoot == "" {
		cfg.WorkRoot = filepath.Join(os.TempDir(), "codepractice")
	}
	if cfg.WallTimeFactor <= 0 {
		cfg.WallTimeFactor = defaultWallTimeFactor
	}
	if cfg.WallTimeGraceMs <= 0 {
		cfg.WallTimeGraceMs = defaultWallTimeGraceMs
	}
	if err := os.MkdirAll(cfg.WorkRoot, 0755); err != nil {
		return nil, fmt.Errorf("create work root: %w", err)
	}
	return &Adapter{eng: eng, registry: registry, cfg: cfg}, nil
}

// Registry exposes the language table used by the adapter.
func (a *Adapter) Registry() *Registry {
	return a.registry
}

// PrepareRequest describes one program to build.
type PrepareRequest struct {
	RunID    string
	Language string
	Code     string
	// EntryPoint is the problem-defined function name, if any.
	EntryPoint string
	// Harness is the problem-defined template for this language, if any.
	Harness       string
	TimeLimitMs   int64
	MemoryLimitMB int64
}

// CompileError carries the compiler or syntax checker output.
type CompileError struct {
	Log string
}

func (e *CompileError) Error() string {
	if e.Log == "" {
		return "Compilation failed"
	}
	return "Compilation failed: " + e.Log
}

// Program is a prepared workspace ready to run test cases.
type Program struct {
	RunID      string
	Language   ID
	Mode       Mode
	Entry      EntryPoint
	SourceFile string

	spec     Spec
	limits   spec.ResourceLimit
	root     string
	buildDir string
	marker   string
	// hostPaths matches workspace directories as the host sees them.
	hostPaths *regexp.Regexp
}

// Limits returns the resource limits each test case runs under.
func (p *Program) Limits() spec.ResourceLimit {
	return p.limits
}

// Close removes the program workspace.
func (p *Program) Close() error {
	if p == nil || p.root == "" {
		return nil
	}
	return os.RemoveAll(p.root)
}

// Prepare renders, writes and compiles a program. It returns ErrNoEntryPoint
// or a *CompileError for problems in the user code; any other error is
// systemic.
func (a *Adapter) Prepare(ctx context.Context, req PrepareRequest) (*Program, error) {
	langSpec, err := a.registry.Get(req.Language)
	if err != nil {
		return nil, err
	}
	if req.RunID == "" {
		return nil, pkgerrors.ValidationError("run_id", "required")
	}

	prog := &Program{
		RunID:    req.RunID,
		Language: langSpec.ID,
		spec:     langSpec,
		limits:   a.runLimits(langSpec, req.TimeLimitMs, req.MemoryLimitMB),
	}
	source, err := prog.render(req)
	if err != nil {
		return nil, err
	}

	prog.root, err = os.MkdirTemp(a.cfg.WorkRoot, "prog-")
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.EvaluationSystemError, "create workspace failed")
	}
	prog.buildDir = filepath.Join(prog.root, "build")
	prog.hostPaths = regexp.MustCompile(regexp.QuoteMeta(prog.root) + `/(?:build|tests/[^/\s"':]+)/`)
	if err := os.MkdirAll(prog.buildDir, 0755); err != nil {
		_ = prog.Close()
		return nil, pkgerrors.Wrapf(err, pkgerrors.EvaluationSystemError, "create build dir failed")
	}
	if err := os.WriteFile(filepath.Join(prog.buildDir, prog.SourceFile), []byte(source), 0644); err != nil {
		_ = prog.Close()
		return nil, pkgerrors.Wrapf(err, pkgerrors.EvaluationSystemError, "write source failed")
	}

	if langSpec.CompileEnabled() {
		if err := a.compile(ctx, prog); err != nil {
			_ = prog.Close()
			return nil, err
		}
	}
	return prog, nil
}

// render picks the invocation mode and produces the source to write.
func (p *Program) render(req PrepareRequest) (string, error) {
	lang := p.spec.ID
	p.SourceFile = p.spec.SourceFile

	var (
		source string
		ep     EntryPoint
		err    error
	)
	switch {
	case req.Harness != "":
		if req.EntryPoint != "" && !HasDeclaration(lang, req.Code, req.EntryPoint) {
			return "", ErrNoEntryPoint
		}
		p.Mode = ModeStdio
		source = renderWithHarness(req.Harness, req.Code)
		ep, err = FindEntryPoint(lang, ModeStdio, source, "")
		if err != nil {
			return "", err
		}
		ep.Name = req.EntryPoint
	case p.spec.Mode == ModeFunction:
		ep, err = FindEntryPoint(lang, ModeFunction, req.Code, req.EntryPoint)
		if err != nil {
			return "", err
		}
		p.marker = newMarker()
		var ok bool
		source, ok = renderFunctionHarness(lang, req.Code, ep, p.marker)
		if !ok {
			return "", fmt.Errorf("function mode is not available for %s", lang)
		}
		p.Mode = ModeFunction
	default:
		ep, err = FindEntryPoint(lang, ModeStdio, req.Code, "")
		if err != nil {
			return "", err
		}
		p.Mode = ModeStdio
		source = req.Code
	}
	if ep.Class != "" {
		p.SourceFile = ep.Class + ".java"
	}
	p.Entry = ep
	return source, nil
}

func (a *Adapter) compile(ctx context.Context, prog *Program) error {
	cmd, err := buildCommand(prog.spec.CompileCmd, prog.spec, prog.SourceFile, prog.Entry.Class)
	if err != nil {
		return err
	}
	runSpec := spec.RunSpec{
		RunID:      prog.RunID,
		TestID:     "compile",
		WorkDir:    containerWorkDir,
		Cmd:        cmd,
		Env:        prog.spec.Env,
		StderrPath: filepath.Join(containerWorkDir, compileLogName),
		Profile:    profileName(prog.Language, "compile"),
		Limits:     prog.spec.CompileLimits,
		BindMounts: []spec.MountSpec{{Source: prog.buildDir, Target: containerWorkDir}},
	}
	res, err := a.eng.Run(ctx, runSpec)
	logPath := filepath.Join(prog.buildDir, compileLogName)
	defer os.Remove(logPath)
	if err != nil {
		return err
	}
	if res.TimedOut {
		return &CompileError{Log: "compilation timed out"}
	}
	if res.ExitCode != 0 {
		log := prog.cleanPaths(strings.TrimSpace(readTail(logPath, maxCompileLogBytes)))
		logger.Debug(ctx, "compile failed",
			zap.String("run_id", prog.RunID),
			zap.String("language", string(prog.Language)),
			zap.Int("exit_code", res.ExitCode),
		)
		return &CompileError{Log: log}
	}
	return nil
}

// Case is one test case handed to Run.
type Case struct {
	Index     int
	Input     string
	Arguments json.RawMessage
}

// Outcome is the observed result of one test case. Failures of the user
// program are reported in Output with Errored set.
type Outcome struct {
	Output   string
	Errored  bool
	TimeMs   int64
	MemoryKB int64
}

func errorOutcome(format string, args ...interface{}) Outcome {
	return Outcome{Output: "Error: " + fmt.Sprintf(format, args...), Errored: true}
}

// Run executes one test case in a fresh copy of the build directory.
// The returned error is reserved for sandbox failures and cancellation.
func (a *Adapter) Run(ctx context.Context, prog *Program, c Case) (Outcome, error) {
	var stdin []byte
	if prog.Mode == ModeFunction {
		args, err := ParseArguments(c.Input, c.Arguments)
		if err != nil {
			return errorOutcome("%s", err.Error()), nil
		}
		stdin = args
	} else {
		stdin = []byte(c.Input)
		if len(stdin) > 0 && stdin[len(stdin)-1] != '\n' {
			stdin = append(stdin, '\n')
		}
	}

	testsDir := filepath.Join(prog.root, "tests")
	if err := os.MkdirAll(testsDir, 0755); err != nil {
		return Outcome{}, pkgerrors.Wrapf(err, pkgerrors.EvaluationSystemError, "create tests dir failed")
	}
	caseDir, err := os.MkdirTemp(testsDir, fmt.Sprintf("case-%d-", c.Index))
	if err != nil {
		return Outcome{}, pkgerrors.Wrapf(err, pkgerrors.EvaluationSystemError, "create case dir failed")
	}
	defer os.RemoveAll(caseDir)
	if err := copyTree(prog.buildDir, caseDir); err != nil {
		return Outcome{}, pkgerrors.Wrapf(err, pkgerrors.EvaluationSystemError, "copy program failed")
	}
	if err := os.WriteFile(filepath.Join(caseDir, inputName), stdin, 0644); err != nil {
		return Outcome{}, pkgerrors.Wrapf(err, pkgerrors.EvaluationSystemError, "write input failed")
	}

	cmd, err := buildCommand(prog.spec.RunCmd, prog.spec, prog.SourceFile, prog.Entry.Class)
	if err != nil {
		return Outcome{}, err
	}
	runSpec := spec.RunSpec{
		RunID:      prog.RunID,
		TestID:     filepath.Base(caseDir),
		WorkDir:    containerWorkDir,
		Cmd:        cmd,
		Env:        prog.spec.Env,
		StdinPath:  filepath.Join(containerWorkDir, inputName),
		StdoutPath: filepath.Join(containerWorkDir, outputName),
		StderrPath: filepath.Join(containerWorkDir, runtimeLogName),
		Profile:    profileName(prog.Language, "run"),
		Limits:     prog.limits,
		BindMounts: []spec.MountSpec{{Source: caseDir, Target: containerWorkDir}},
	}
	res, err := a.eng.Run(ctx, runSpec)
	if err != nil {
		return Outcome{}, err
	}
	// Engines keep only a bounded prefix of stdout and stderr. The frame sits
	// at the end of stdout and the exception summary at the end of stderr, so
	// both are read back from the case directory.
	if stdout, ok := readHead(filepath.Join(caseDir, outputName), prog.outputReadBytes()); ok {
		res.Stdout = stdout
	}
	if stderr, ok := readTailIfExists(filepath.Join(caseDir, runtimeLogName), maxRuntimeLogBytes); ok {
		res.Stderr = stderr
	}
	out := prog.interpret(res)
	out.TimeMs = res.TimeMs
	out.MemoryKB = res.MemoryKB
	return out, nil
}

func (p *Program) outputReadBytes() int64 {
	if p.limits.OutputMB > 0 {
		return p.limits.OutputMB << 20
	}
	return defaultOutputReadBytes
}

// interpret maps a raw run onto an Outcome. Limit violations win over
// whatever the program printed.
func (p *Program) interpret(res result.RunResult) Outcome {
	verdict := res.Classify(p.limits.MemoryMB, p.limits.OutputMB)
	if verdict == result.VerdictOK || verdict == result.VerdictRE {
		if p.limits.CPUTimeMs > 0 && res.TimeMs > p.limits.CPUTimeMs {
			verdict = result.VerdictTLE
		}
	}
	switch verdict {
	case result.VerdictTLE:
		return errorOutcome("Time limit exceeded (%d ms)", p.limits.CPUTimeMs)
	case result.VerdictMLE:
		return errorOutcome("Memory limit exceeded (%d MB)", p.limits.MemoryMB)
	case result.VerdictOLE:
		return errorOutcome("Output limit exceeded")
	}

	if p.Mode == ModeFunction {
		fr := parseFrame(res.Stdout, p.marker)
		switch {
		case fr.found && fr.ok && verdict == result.VerdictOK:
			return Outcome{Output: fr.text}
		case fr.found && !fr.ok:
			return errorOutcome("%s", strings.TrimPrefix(p.cleanPaths(fr.text), "Error: "))
		case verdict == result.VerdictRE:
			return p.runtimeError(res)
		default:
			return errorOutcome("Program exited before returning a result")
		}
	}
	if verdict == result.VerdictRE {
		return p.runtimeError(res)
	}
	return Outcome{Output: strings.TrimRight(res.Stdout, " \t\r\n")}
}

// runtimeError reports the last unindented stderr line, which is where
// Python, Java, Node and libstdc++ put the exception summary.
func (p *Program) runtimeError(res result.RunResult) Outcome {
	lines := strings.Split(strings.TrimSpace(res.Stderr), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimRight(lines[i], "\r")
		if line == "" || line[0] == ' ' || line[0] == '\t' || strings.HasPrefix(line, "Node.js v") {
			continue
		}
		return errorOutcome("%s", strings.TrimPrefix(p.cleanPaths(line), "Error: "))
	}
	if res.ExitCode < 0 {
		return errorOutcome("Process terminated abnormally")
	}
	return errorOutcome("Process exited with code %d", res.ExitCode)
}

// cleanPaths strips workspace directories from messages shown to users,
// both the sandbox view and the host view used by the direct engine.
func (p *Program) cleanPaths(s string) string {
	if p.hostPaths != nil {
		s = p.hostPaths.ReplaceAllString(s, "")
	}
	return strings.ReplaceAll(s, containerWorkDir+"/", "")
}

func (a *Adapter) runLimits(s Spec, timeLimitMs, memoryLimitMB int64) spec.ResourceLimit {
	limits := s.RunLimits
	if timeLimitMs > 0 {
		limits.CPUTimeMs = timeLimitMs
		limits.WallTimeMs = 0
	}
	if memoryLimitMB > 0 {
		limits.MemoryMB = memoryLimitMB
	}
	limits.CPUTimeMs = scaleLimit(limits.CPUTimeMs, s.TimeMultiplier)
	limits.MemoryMB = scaleLimit(limits.MemoryMB, s.MemoryMultiplier)
	if limits.WallTimeMs <= 0 && limits.CPUTimeMs > 0 {
		limits.WallTimeMs = int64(math.Ceil(float64(limits.CPUTimeMs)*a.cfg.WallTimeFactor)) + a.cfg.WallTimeGraceMs
	}
	return limits
}

func scaleLimit(value int64, multiplier float64) int64 {
	if value <= 0 {
		return 0
	}
	if multiplier <= 0 {
		return value
	}
	return int64(math.Ceil(float64(value) * multiplier))
}

func buildCommand(tpl string, s Spec, sourceFile, class string) ([]string, error) {
	if strings.TrimSpace(tpl) == "" {
		return nil, pkgerrors.New(pkgerrors.EvaluationSystemError).WithMessage("command template is required")
	}
	binary := s.BinaryFile
	if binary == "" {
		binary = sourceFile
	}
	expanded := strings.NewReplacer(
		"{src}", filepath.Join(containerWorkDir, sourceFile),
		"{bin}", filepath.Join(containerWorkDir, binary),
		"{class}", class,
		"{dir}", containerWorkDir,
	).Replace(tpl)
	fields, err := shlex.Split(expanded)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, pkgerrors.EvaluationSystemError, "parse command template failed")
	}
	if len(fields) == 0 {
		return nil, pkgerrors.New(pkgerrors.EvaluationSystemError).WithMessage("command is empty after expansion")
	}
	return fields, nil
}

func profileName(lang ID, task string) string {
	return fmt.Sprintf("%s-%s", lang, task)
}
