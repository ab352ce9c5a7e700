package engine

import "time"

const (
	defaultStdoutStderrMaxBytes int64 = 64 * 1024
	defaultMemorySampleInterval       = 10 * time.Millisecond
)

// Config controls sandbox engine behavior.
type Config struct {
	// Mode is "isolated" (sandbox-init helper, namespaces, cgroup v2, seccomp)
	// or "direct" (host child process with rlimits and sampled memory).
	// Default: isolated
	Mode                 string        `yaml:"mode"`
	CgroupRoot           string        `yaml:"cgroupRoot"`
	SeccompDir           string        `yaml:"seccompDir"`
	HelperPath           string        `yaml:"helperPath"`
	StdoutStderrMaxBytes int64         `yaml:"stdoutStderrMaxBytes"`
	EnableSeccomp        bool          `yaml:"enableSeccomp"`
	EnableCgroup         bool          `yaml:"enableCgroup"`
	EnableNamespaces     bool          `yaml:"enableNamespaces"`
	MemorySampleInterval time.Duration `yaml:"memorySampleInterval"`
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = ModeIsolated
	}
	if c.StdoutStderrMaxBytes <= 0 {
		c.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if c.HelperPath == "" {
		c.HelperPath = "sandbox-init"
	}
	if c.MemorySampleInterval <= 0 {
		c.MemorySampleInterval = defaultMemorySampleInterval
	}
}
