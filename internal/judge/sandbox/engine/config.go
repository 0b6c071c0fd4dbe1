package engine

import (
	"fmt"

	"algojudge/internal/judge/sandbox/spec"
)

const (
	// DefaultStdoutMaxBytes is the stdout capture ceiling when a run sets no OutputBytes.
	DefaultStdoutMaxBytes int64 = 1 << 20
	// DefaultStderrMaxBytes bounds the stderr kept for diagnostics.
	DefaultStderrMaxBytes int64 = 64 << 10
)

// ProfileResolver resolves a profile name into an isolation profile.
type ProfileResolver interface {
	Resolve(profile string) (spec.IsolationProfile, error)
}

// StaticProfiles resolves profiles from a fixed table, usually loaded from config.
type StaticProfiles map[string]spec.IsolationProfile

func (p StaticProfiles) Resolve(profile string) (spec.IsolationProfile, error) {
	iso, ok := p[profile]
	if !ok {
		return spec.IsolationProfile{}, fmt.Errorf("unknown sandbox profile %q", profile)
	}
	return iso, nil
}

// Config controls sandbox engine behavior.
type Config struct {
	CgroupRoot     string `yaml:"cgroupRoot"`
	SeccompDir     string `yaml:"seccompDir"`
	HelperPath     string `yaml:"helperPath"`
	StdoutMaxBytes int64  `yaml:"stdoutMaxBytes"`
	StderrMaxBytes int64  `yaml:"stderrMaxBytes"`

	EnableSeccomp    bool `yaml:"enableSeccomp"`
	EnableCgroup     bool `yaml:"enableCgroup"`
	EnableNamespaces bool `yaml:"enableNamespaces"`

	// NprocRlimit applies PIDs as RLIMIT_NPROC. The limit counts every task of
	// the real user, so it is off unless the sandbox runs under a dedicated uid.
	NprocRlimit bool `yaml:"nprocRlimit"`

	// AllowHostFilesystem lets runs see the host filesystem: without
	// namespaces, or with a profile that has no rootfs. Local development only.
	AllowHostFilesystem bool `yaml:"allowHostFilesystem"`
}

// checkIsolation rejects a profile that would leave the host filesystem
// visible to the sandboxed program.
func (c Config) checkIsolation(name string, profile spec.IsolationProfile) error {
	if c.AllowHostFilesystem {
		return nil
	}
	if !c.EnableNamespaces {
		return fmt.Errorf("sandbox profile %q: namespaces are required to hide the host filesystem", name)
	}
	if profile.RootFS == "" {
		return fmt.Errorf("sandbox profile %q: rootfs is required when namespaces are enabled", name)
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.StdoutMaxBytes <= 0 {
		c.StdoutMaxBytes = DefaultStdoutMaxBytes
	}
	if c.StderrMaxBytes <= 0 {
		c.StderrMaxBytes = DefaultStderrMaxBytes
	}
	if c.HelperPath == "" {
		c.HelperPath = "sandbox-init"
	}
}
