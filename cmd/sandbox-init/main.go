//go:build linux

// Command sandbox-init prepares the sandbox for one task and replaces itself
// with the task's command. It reads a spec.InitRequest as JSON on stdin.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"

	"algojudge/internal/judge/sandbox/spec"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

const defaultPath = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

// sandboxDevices are bound into every rootfs when the host has them.
var sandboxDevices = []string{"/dev/null", "/dev/zero", "/dev/random", "/dev/urandom"}

func main() {
	status := os.NewFile(spec.StatusFD, "status")
	syscall.CloseOnExec(spec.StatusFD)
	if err := run(); err != nil {
		msg := err.Error()
		if status != nil {
			_, _ = io.WriteString(status, msg)
		}
		_, _ = fmt.Fprintln(os.Stderr, msg)
		os.Exit(1)
	}
}

func run() error {
	req, err := decodeRequest(os.Stdin)
	if err != nil {
		return err
	}
	if err := validateRequest(req); err != nil {
		return err
	}
	runSpec := req.RunSpec
	rootfs := req.Isolation.RootFS

	// The seccomp profile is a host file, so it is read before the host root goes away.
	var filter *seccompConfig
	if req.EnableSeccomp && req.Isolation.SeccompProfile != "" {
		if filter, err = loadSeccomp(req.Isolation.SeccompProfile); err != nil {
			return err
		}
	}

	if req.EnableNs {
		if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
			return fmt.Errorf("make mount private: %w", err)
		}
		if rootfs != "" {
			if err := enterRootFS(rootfs, req.Isolation.RootPaths(), runSpec.BindMounts); err != nil {
				return err
			}
		} else {
			for _, m := range runSpec.BindMounts {
				if err := bindMount(m, m.Target); err != nil {
					return err
				}
			}
		}
		if err := dropCapabilities(); err != nil {
			return err
		}
	} else if rootfs != "" || len(runSpec.BindMounts) > 0 {
		return fmt.Errorf("namespaces disabled with rootfs or bind mounts")
	}

	if err := os.Chdir(runSpec.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}

	if err := applyRlimits(runSpec.Limits, req.NprocRlimit); err != nil {
		return err
	}

	// Resolve the command and build the environment while allocations are still unbounded.
	tmpDir := ""
	if rootfs != "" {
		tmpDir = runSpec.WorkDir
	}
	env := buildEnv(runSpec.Env, tmpDir)
	os.Clearenv()
	for _, kv := range env {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if err := os.Setenv(key, value); err != nil {
			return fmt.Errorf("set env: %w", err)
		}
	}
	cmdPath, err := exec.LookPath(runSpec.Cmd[0])
	if err != nil {
		return fmt.Errorf("resolve command: %w", err)
	}
	argv := runSpec.Cmd

	if err := redirectIO(runSpec); err != nil {
		return err
	}

	if filter != nil {
		if err := applySeccomp(filter); err != nil {
			return err
		}
	}

	// RLIMIT_AS goes last so it bounds the user program and not this helper.
	if runSpec.Limits.AddressSpaceBytes > 0 {
		as := uint64(runSpec.Limits.AddressSpaceBytes)
		if err := unix.Setrlimit(unix.RLIMIT_AS, &unix.Rlimit{Cur: as, Max: as}); err != nil {
			return fmt.Errorf("set rlimit as: %w", err)
		}
	}
	return unix.Exec(cmdPath, argv, env)
}

func decodeRequest(r io.Reader) (spec.InitRequest, error) {
	var req spec.InitRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return spec.InitRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func validateRequest(req spec.InitRequest) error {
	if len(req.RunSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if req.RunSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	return nil
}

// enterRootFS builds a fresh root for the run and pivots into it. The host
// root is detached afterwards, so only the mirrored paths, the devices and
// the run's own bind mounts stay reachable, and the root itself is read-only.
func enterRootFS(rootfs string, readOnly []string, mounts []spec.MountSpec) error {
	if err := unix.Mount("tmpfs", rootfs, "tmpfs", unix.MS_NOSUID|unix.MS_NODEV, "mode=0755,size=16m"); err != nil {
		return fmt.Errorf("mount rootfs: %w", err)
	}
	for _, path := range readOnly {
		if err := mirrorHostPath(rootfs, path); err != nil {
			return err
		}
	}
	for _, dev := range sandboxDevices {
		if _, err := os.Stat(dev); err != nil {
			continue
		}
		if err := bindMount(spec.MountSpec{Source: dev, Target: dev}, filepath.Join(rootfs, dev)); err != nil {
			return err
		}
	}
	for _, m := range mounts {
		if err := bindMount(m, filepath.Join(rootfs, m.Target)); err != nil {
			return err
		}
	}

	procPath := filepath.Join(rootfs, "proc")
	if err := os.MkdirAll(procPath, 0755); err != nil {
		return fmt.Errorf("mkdir proc: %w", err)
	}
	if err := unix.Mount("proc", procPath, "proc", unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, ""); err != nil && !errors.Is(err, unix.EBUSY) {
		return fmt.Errorf("mount proc: %w", err)
	}

	if err := os.Chdir(rootfs); err != nil {
		return fmt.Errorf("chdir rootfs: %w", err)
	}
	// pivot_root(".", ".") stacks the old root on the new one, where it is detached.
	if err := unix.PivotRoot(".", "."); err != nil {
		return fmt.Errorf("pivot root: %w", err)
	}
	if err := unix.Unmount(".", unix.MNT_DETACH); err != nil {
		return fmt.Errorf("detach host root: %w", err)
	}
	if err := os.Chdir("/"); err != nil {
		return fmt.Errorf("chdir root: %w", err)
	}
	if err := unix.Mount("", "/", "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY|unix.MS_NOSUID|unix.MS_NODEV, ""); err != nil {
		return fmt.Errorf("remount rootfs readonly: %w", err)
	}
	return nil
}

// mirrorHostPath exposes a host path at the same place in the rootfs.
// Symlinks are recreated instead of followed.
func mirrorHostPath(rootfs, path string) error {
	info, err := os.Lstat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat %s: %w", path, err)
	}
	target := filepath.Join(rootfs, path)
	if info.Mode()&os.ModeSymlink == 0 {
		return bindMount(spec.MountSpec{Source: path, Target: path, ReadOnly: true}, target)
	}
	link, err := os.Readlink(path)
	if err != nil {
		return fmt.Errorf("readlink %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("mkdir %s: %w", filepath.Dir(target), err)
	}
	if err := os.Symlink(link, target); err != nil && !errors.Is(err, os.ErrExist) {
		return fmt.Errorf("symlink %s: %w", path, err)
	}
	return nil
}

func bindMount(m spec.MountSpec, target string) error {
	if m.Source == "" || m.Target == "" {
		return fmt.Errorf("invalid mount spec")
	}
	if err := ensureMountTarget(m.Source, target); err != nil {
		return err
	}
	if err := unix.Mount(m.Source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("bind mount %s: %w", m.Target, err)
	}
	if !m.ReadOnly {
		return nil
	}
	// Inside a user namespace the remount must keep every flag the host mount locked.
	flags := uintptr(unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY) | lockedFlags(m.Source)
	if err := unix.Mount("", target, "", flags, ""); err != nil {
		return fmt.Errorf("remount readonly %s: %w", m.Target, err)
	}
	return nil
}

func lockedFlags(path string) uintptr {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return 0
	}
	mapping := []struct {
		st int64
		ms uintptr
	}{
		{unix.ST_NOSUID, unix.MS_NOSUID},
		{unix.ST_NODEV, unix.MS_NODEV},
		{unix.ST_NOEXEC, unix.MS_NOEXEC},
		{unix.ST_NOATIME, unix.MS_NOATIME},
		{unix.ST_NODIRATIME, unix.MS_NODIRATIME},
		{unix.ST_RELATIME, unix.MS_RELATIME},
	}
	var flags uintptr
	for _, m := range mapping {
		if int64(st.Flags)&m.st != 0 {
			flags |= m.ms
		}
	}
	return flags
}

// dropCapabilities empties the bounding and ambient sets. The helper is
// root in its user namespace, and without this the program would keep
// that root's capabilities across exec.
func dropCapabilities() error {
	for c := 0; c <= unix.CAP_LAST_CAP; c++ {
		if err := unix.Prctl(unix.PR_CAPBSET_DROP, uintptr(c), 0, 0, 0); err != nil && !errors.Is(err, unix.EINVAL) {
			return fmt.Errorf("drop capability %d: %w", c, err)
		}
	}
	if err := unix.Prctl(unix.PR_CAP_AMBIENT, unix.PR_CAP_AMBIENT_CLEAR_ALL, 0, 0, 0); err != nil && !errors.Is(err, unix.EINVAL) {
		return fmt.Errorf("clear ambient capabilities: %w", err)
	}
	return nil
}

func ensureMountTarget(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat mount source: %w", err)
	}
	if info.IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("mkdir mount target: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("mkdir mount target dir: %w", err)
	}
	file, err := os.OpenFile(target, os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("create mount target file: %w", err)
	}
	return file.Close()
}

func applyRlimits(limits spec.ResourceLimit, nproc bool) error {
	if limits.CPUTimeMs > 0 {
		// SIGXCPU at the soft limit, SIGKILL one second later if it is handled.
		seconds := uint64((limits.CPUTimeMs + 999) / 1000)
		if err := unix.Setrlimit(unix.RLIMIT_CPU, &unix.Rlimit{Cur: seconds, Max: seconds + 1}); err != nil {
			return fmt.Errorf("set rlimit cpu: %w", err)
		}
	}
	if limits.OutputBytes > 0 {
		// One byte of headroom: writing exactly the cap is allowed, the next byte is detected.
		size := uint64(limits.OutputBytes) + 1
		if err := unix.Setrlimit(unix.RLIMIT_FSIZE, &unix.Rlimit{Cur: size, Max: size}); err != nil {
			return fmt.Errorf("set rlimit fsize: %w", err)
		}
	}
	if limits.StackBytes > 0 {
		size := uint64(limits.StackBytes)
		if err := unix.Setrlimit(unix.RLIMIT_STACK, &unix.Rlimit{Cur: size, Max: size}); err != nil {
			return fmt.Errorf("set rlimit stack: %w", err)
		}
	}
	if nproc && limits.PIDs > 0 {
		val := uint64(limits.PIDs)
		if err := unix.Setrlimit(unix.RLIMIT_NPROC, &unix.Rlimit{Cur: val, Max: val}); err != nil {
			return fmt.Errorf("set rlimit nproc: %w", err)
		}
	}
	return nil
}

func redirectIO(runSpec spec.RunSpec) error {
	stdinFile, err := os.Open(orDevNull(runSpec.StdinPath))
	if err != nil {
		return fmt.Errorf("open stdin: %w", err)
	}
	stdoutFile, err := os.OpenFile(orDevNull(runSpec.StdoutPath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open stdout: %w", err)
	}
	stderrFile, err := os.OpenFile(orDevNull(runSpec.StderrPath), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return fmt.Errorf("open stderr: %w", err)
	}
	if err := unix.Dup2(int(stdinFile.Fd()), 0); err != nil {
		return fmt.Errorf("dup stdin: %w", err)
	}
	if err := unix.Dup2(int(stdoutFile.Fd()), 1); err != nil {
		return fmt.Errorf("dup stdout: %w", err)
	}
	if err := unix.Dup2(int(stderrFile.Fd()), 2); err != nil {
		return fmt.Errorf("dup stderr: %w", err)
	}
	_ = stdinFile.Close()
	_ = stdoutFile.Close()
	_ = stderrFile.Close()
	return nil
}

func orDevNull(path string) string {
	if path == "" {
		return os.DevNull
	}
	return path
}

// buildEnv adds a default PATH, and TMPDIR when the program has no
// writable /tmp, unless env already sets them.
func buildEnv(env []string, tmpDir string) []string {
	hasPath, hasTmp := false, false
	for _, kv := range env {
		hasPath = hasPath || strings.HasPrefix(kv, "PATH=")
		hasTmp = hasTmp || strings.HasPrefix(kv, "TMPDIR=")
	}
	out := make([]string, 0, len(env)+2)
	if !hasPath {
		out = append(out, defaultPath)
	}
	if tmpDir != "" && !hasTmp {
		out = append(out, "TMPDIR="+tmpDir)
	}
	return append(out, env...)
}

func loadSeccomp(profilePath string) (*seccompConfig, error) {
	data, err := os.ReadFile(profilePath)
	if err != nil {
		return nil, fmt.Errorf("read seccomp profile: %w", err)
	}
	var cfg seccompConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse seccomp profile: %w", err)
	}
	return &cfg, nil
}

func applySeccomp(cfg *seccompConfig) error {
	defaultAction, err := parseSeccompAction(cfg.DefaultAction, cfg.DefaultErrnoRet)
	if err != nil {
		return err
	}
	filter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		return fmt.Errorf("create seccomp filter: %w", err)
	}
	defer filter.Release()
	for _, rule := range cfg.Syscalls {
		action, err := parseSeccompAction(rule.Action, rule.ErrnoRet)
		if err != nil {
			return err
		}
		for _, name := range rule.Names {
			call, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				// Not every syscall exists on every architecture.
				continue
			}
			if err := filter.AddRule(call, action); err != nil {
				return fmt.Errorf("add seccomp rule %s: %w", name, err)
			}
		}
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

type seccompConfig struct {
	DefaultAction   string           `json:"defaultAction"`
	DefaultErrnoRet *uint            `json:"defaultErrnoRet"`
	Syscalls        []seccompSyscall `json:"syscalls"`
}

type seccompSyscall struct {
	Names    []string `json:"names"`
	Action   string   `json:"action"`
	ErrnoRet *uint    `json:"errnoRet"`
}

func parseSeccompAction(action string, errnoRet *uint) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(action) {
	case "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	case "SCMP_ACT_ERRNO":
		code := uint(unix.EPERM)
		if errnoRet != nil {
			code = *errnoRet
		}
		return seccomp.ActErrno.SetReturnCode(int16(code)), nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action: %s", action)
	}
}
