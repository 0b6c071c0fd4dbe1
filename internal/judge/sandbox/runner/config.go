package runner

import "algojudge/internal/judge/sandbox/spec"

const (
	DefaultOutputBytes int64 = 1 << 20

	defaultCompileProfile = "compile"
	defaultRunProfile     = "run"
)

// Config controls how runs are laid out inside the sandbox.
type Config struct {
	// Isolated bind-mounts the scratch dir at /work inside the sandbox rootfs.
	// Without it the program sees host paths.
	Isolated bool `yaml:"isolated"`

	CompileProfile string `yaml:"compileProfile"`
	RunProfile     string `yaml:"runProfile"`

	CompileLimits spec.ResourceLimit `yaml:"compileLimits"`

	// OutputBytes caps captured stdout, and every file a run writes.
	OutputBytes int64 `yaml:"outputBytes"`

	// StackBytes defaults to the memory limit.
	StackBytes int64 `yaml:"stackBytes"`

	// WallTimeFactor scales the CPU limit into the wall-clock limit.
	WallTimeFactor  float64 `yaml:"wallTimeFactor"`
	WallTimeExtraMs int64   `yaml:"wallTimeExtraMs"`
}

func (c *Config) applyDefaults() {
	if c.CompileProfile == "" {
		c.CompileProfile = defaultCompileProfile
	}
	if c.RunProfile == "" {
		c.RunProfile = defaultRunProfile
	}
	if c.OutputBytes <= 0 {
		c.OutputBytes = DefaultOutputBytes
	}
	if c.WallTimeFactor <= 0 {
		c.WallTimeFactor = 2
	}
	if c.WallTimeExtraMs <= 0 {
		c.WallTimeExtraMs = 500
	}
	limits := &c.CompileLimits
	if limits.CPUTimeMs <= 0 {
		limits.CPUTimeMs = 10000
	}
	if limits.WallTimeMs <= 0 {
		limits.WallTimeMs = 20000
	}
	if limits.MemoryBytes <= 0 {
		limits.MemoryBytes = 1 << 30
	}
	// Compilers write binaries and class files, which RLIMIT_FSIZE also covers.
	if limits.OutputBytes <= 0 {
		limits.OutputBytes = 256 << 20
	}
	if limits.PIDs <= 0 {
		limits.PIDs = 64
	}
}
