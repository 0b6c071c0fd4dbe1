// Package spec defines the execution specification and resource limits.
package spec

// ResourceLimit describes hard limits enforced by the sandbox.
// Zero means unlimited for every field.
type ResourceLimit struct {
	CPUTimeMs  int64 `yaml:"cpuTimeMs"`
	WallTimeMs int64 `yaml:"wallTimeMs"`

	// MemoryBytes is the measured ceiling, written to cgroup memory.max.
	MemoryBytes int64 `yaml:"memoryBytes"`

	// AddressSpaceBytes is applied as RLIMIT_AS right before exec.
	AddressSpaceBytes int64 `yaml:"addressSpaceBytes"`

	// OutputBytes caps every file the program writes, stdout included.
	OutputBytes int64 `yaml:"outputBytes"`

	StackBytes int64 `yaml:"stackBytes"`
	PIDs       int64 `yaml:"pids"`
}

// MountSpec describes a bind mount inside the sandbox.
type MountSpec struct {
	Source   string
	Target   string
	ReadOnly bool
}

// DefaultReadOnlyPaths are the host toolchain paths a rootfs exposes when
// a profile names none. Missing paths are skipped and symlinks are copied
// as symlinks, so merged-/usr hosts work unchanged.
var DefaultReadOnlyPaths = []string{
	"/usr",
	"/bin",
	"/sbin",
	"/lib",
	"/lib32",
	"/lib64",
	"/etc/alternatives",
	"/etc/ld.so.cache",
	"/etc/ld.so.conf",
	"/etc/ld.so.conf.d",
}

// IsolationProfile describes namespace and seccomp settings.
//
// RootFS is an empty host directory. Inside the run's mount namespace the
// helper puts a tmpfs on it, bind mounts ReadOnlyPaths and the scratch dir
// into it, pivots into it and detaches the host root. The program then sees
// nothing of the host beyond those paths.
type IsolationProfile struct {
	RootFS         string   `yaml:"rootfs"`
	ReadOnlyPaths  []string `yaml:"readOnlyPaths"`
	SeccompProfile string   `yaml:"seccompProfile"`
	DisableNetwork bool     `yaml:"disableNetwork"`
}

// RootPaths returns the read-only host paths mirrored into the rootfs.
func (p IsolationProfile) RootPaths() []string {
	if len(p.ReadOnlyPaths) > 0 {
		return p.ReadOnlyPaths
	}
	return DefaultReadOnlyPaths
}

// RunSpec is the unified execution specification for one task.
// Paths are as seen by the sandboxed program; the engine maps them back
// through BindMounts to read results on the host.
type RunSpec struct {
	SubmissionID string
	TestID       string
	WorkDir      string
	Cmd          []string
	Env          []string
	StdinPath    string
	StdoutPath   string
	StderrPath   string
	BindMounts   []MountSpec
	Profile      string
	Limits       ResourceLimit
}
