// Package language turns user source into runnable programs for each
// supported language and runs them one test case at a time in the sandbox.
package language

import (
	"codepractice/internal/sandbox/spec"
)

// ID identifies a supported language.
type ID string

const (
	JavaScript ID = "javascript"
	Python     ID = "python"
	Java       ID = "java"
	Cpp        ID = "cpp"
)

// Mode is how a program receives a test case and reports its answer.
type Mode string

const (
	// ModeFunction calls an entry function with JSON arguments and prints
	// its return value inside a result frame.
	ModeFunction Mode = "function"
	// ModeStdio feeds the raw input on stdin and takes stdout as the answer.
	ModeStdio Mode = "stdio"
)

// Spec describes how to build and run one language.
//
// Command templates are split with shell quoting rules and support the
// placeholders {src}, {bin}, {class} and {dir}.
type Spec struct {
	ID         ID       `yaml:"id"`
	SourceFile string   `yaml:"sourceFile"`
	BinaryFile string   `yaml:"binaryFile"`
	CompileCmd string   `yaml:"compileCmd"`
	RunCmd     string   `yaml:"runCmd"`
	Env        []string `yaml:"env"`
	Mode       Mode     `yaml:"mode"`

	CompileLimits spec.ResourceLimit `yaml:"compileLimits"`
	RunLimits     spec.ResourceLimit `yaml:"runLimits"`

	TimeMultiplier   float64 `yaml:"timeMultiplier"`
	MemoryMultiplier float64 `yaml:"memoryMultiplier"`
}

// CompileEnabled reports whether the language has a build or check step.
func (s Spec) CompileEnabled() bool {
	return s.CompileCmd != ""
}

var defaultEnv = []string{
	"PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin",
	"LANG=C.UTF-8",
	"HOME=/tmp",
}

var defaultCompileLimits = spec.ResourceLimit{
	CPUTimeMs:  10000,
	WallTimeMs: 20000,
	MemoryMB:   512,
	OutputMB:   16,
	PIDs:       64,
}

var defaultRunLimits = spec.ResourceLimit{
	CPUTimeMs:  2000,
	WallTimeMs: 5000,
	MemoryMB:   256,
	StackMB:    64,
	OutputMB:   8,
	PIDs:       64,
}

// DefaultSpecs returns the built-in language table.
func DefaultSpecs() []Spec {
	return []Spec{
		{
			ID:            JavaScript,
			SourceFile:    "main.js",
			CompileCmd:    "node --check {src}",
			RunCmd:        "node --stack-size=65500 {src}",
			Env:           defaultEnv,
			Mode:          ModeFunction,
			CompileLimits: defaultCompileLimits,
			RunLimits:     defaultRunLimits,
		},
		{
			ID:            Python,
			SourceFile:    "main.py",
			CompileCmd:    "python3 -m py_compile {src}",
			RunCmd:        "python3 -B {src}",
			Env:           append([]string{"PYTHONIOENCODING=utf-8", "PYTHONDONTWRITEBYTECODE=1"}, defaultEnv...),
			Mode:          ModeFunction,
			CompileLimits: defaultCompileLimits,
			RunLimits:     defaultRunLimits,
		},
		{
			ID:               Java,
			SourceFile:       "Main.java",
			CompileCmd:       "javac -encoding UTF-8 -d {dir} {src}",
			RunCmd:           "java -Xss64m -XX:+UseSerialGC -XX:TieredStopAtLevel=1 -cp {dir} {class}",
			Env:              defaultEnv,
			Mode:             ModeStdio,
			CompileLimits:    defaultCompileLimits,
			RunLimits:        defaultRunLimits,
			TimeMultiplier:   2,
			MemoryMultiplier: 2,
		},
		{
			ID:            Cpp,
			SourceFile:    "main.cpp",
			BinaryFile:    "main",
			CompileCmd:    "g++ -std=c++17 -O2 -pipe -o {bin} {src}",
			RunCmd:        "{bin}",
			Env:           defaultEnv,
			Mode:          ModeStdio,
			CompileLimits: defaultCompileLimits,
			RunLimits:     defaultRunLimits,
		},
	}
}
