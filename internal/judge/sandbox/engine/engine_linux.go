//go:build linux

package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"algojudge/internal/judge/sandbox/result"
	"algojudge/internal/judge/sandbox/spec"
	"algojudge/pkg/utils/logger"

	"go.uber.org/zap"
)

type runHandle struct {
	pid    int
	cgroup *runCgroup
}

type linuxEngine struct {
	cfg      Config
	resolver ProfileResolver

	mu      sync.Mutex
	running map[string][]*runHandle
}

// NewEngine creates a Linux sandbox engine.
func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	if resolver == nil {
		return nil, fmt.Errorf("profile resolver is required")
	}
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, fmt.Errorf("cgroup root is required when cgroups are enabled")
	}
	if profiles, ok := resolver.(StaticProfiles); ok {
		for name, profile := range profiles {
			if err := cfg.checkIsolation(name, profile); err != nil {
				return nil, err
			}
			if profile.RootFS != "" {
				if err := os.MkdirAll(profile.RootFS, 0755); err != nil {
					return nil, fmt.Errorf("create rootfs mount point: %w", err)
				}
			}
		}
	}
	cfg.applyDefaults()
	return &linuxEngine{
		cfg:      cfg,
		resolver: resolver,
		running:  make(map[string][]*runHandle),
	}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}
	if err := ctx.Err(); err != nil {
		return result.RunResult{}, err
	}

	isoProfile, err := e.resolver.Resolve(runSpec.Profile)
	if err != nil {
		return result.RunResult{}, fmt.Errorf("resolve profile: %w", err)
	}
	if err := e.cfg.checkIsolation(runSpec.Profile, isoProfile); err != nil {
		return result.RunResult{}, err
	}
	if isoProfile.RootFS != "" && len(runSpec.BindMounts) == 0 {
		return result.RunResult{}, fmt.Errorf("sandbox profile %q: the scratch dir must be bind mounted into the rootfs", runSpec.Profile)
	}
	if e.cfg.SeccompDir != "" && isoProfile.SeccompProfile != "" && !filepath.IsAbs(isoProfile.SeccompProfile) {
		isoProfile.SeccompProfile = filepath.Join(e.cfg.SeccompDir, isoProfile.SeccompProfile)
	}

	var cg *runCgroup
	if e.cfg.EnableCgroup {
		cg, err = newRunCgroup(e.cfg.CgroupRoot, runSpec.SubmissionID, runSpec.TestID)
		if err != nil {
			return result.RunResult{}, fmt.Errorf("create cgroup: %w", err)
		}
		defer cg.remove()
		if err := cg.limit(runSpec.Limits); err != nil {
			return result.RunResult{}, fmt.Errorf("apply cgroup limits: %w", err)
		}
	}

	statusR, statusW, err := os.Pipe()
	if err != nil {
		return result.RunResult{}, fmt.Errorf("create status pipe: %w", err)
	}
	defer statusR.Close()

	cmd := exec.Command(e.cfg.HelperPath)
	cmd.SysProcAttr = buildSysProcAttr(isoProfile, e.cfg.EnableNamespaces)
	cmd.ExtraFiles = []*os.File{statusW}
	var helperStderr bytes.Buffer
	cmd.Stderr = &helperStderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		_ = statusW.Close()
		return result.RunResult{}, fmt.Errorf("helper stdin: %w", err)
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		_ = statusW.Close()
		return result.RunResult{}, fmt.Errorf("start helper: %w", err)
	}
	_ = statusW.Close()

	handle := &runHandle{pid: cmd.Process.Pid, cgroup: cg}
	e.register(runSpec.SubmissionID, handle)
	defer e.unregister(runSpec.SubmissionID, handle)

	if err := e.confine(cmd, stdin, handle); err != nil {
		return result.RunResult{}, err
	}
	initReq := spec.InitRequest{
		RunSpec:       runSpec,
		Isolation:     isoProfile,
		EnableSeccomp: e.cfg.EnableSeccomp,
		EnableNs:      e.cfg.EnableNamespaces,
		NprocRlimit:   e.cfg.NprocRlimit,
	}
	if err := json.NewEncoder(stdin).Encode(initReq); err != nil {
		logger.Warn(ctx, "send init request failed", zap.Error(err))
	}
	_ = stdin.Close()

	var timedOut atomic.Bool
	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if runSpec.Limits.WallTimeMs > 0 {
			timer := time.NewTimer(time.Duration(runSpec.Limits.WallTimeMs) * time.Millisecond)
			defer timer.Stop()
			wallTimer = timer.C
		}
		select {
		case <-ctx.Done():
			e.kill(handle)
		case <-wallTimer:
			timedOut.Store(true)
			e.kill(handle)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	wallTimeMs := time.Since(start).Milliseconds()

	if cmd.ProcessState == nil {
		return result.RunResult{}, fmt.Errorf("wait helper: %w", waitErr)
	}
	if msg := readStatus(statusR); msg != "" {
		if ctx.Err() != nil {
			return result.RunResult{}, ctx.Err()
		}
		return result.RunResult{}, fmt.Errorf("sandbox setup failed: %s", msg)
	}

	exitCode, signal := exitStatus(cmd.ProcessState)
	outputCap := runSpec.Limits.OutputBytes
	if outputCap <= 0 {
		outputCap = e.cfg.StdoutMaxBytes
	}
	stdout, outputBytes := captureFile(hostPath(runSpec.StdoutPath, runSpec.BindMounts), outputCap)
	stderr, _ := captureFile(hostPath(runSpec.StderrPath, runSpec.BindMounts), e.cfg.StderrMaxBytes)
	mem := runMemory(cg, cmd.ProcessState)

	runResult := result.RunResult{
		ExitCode:    exitCode,
		Signal:      signal,
		TimeMs:      cpuTimeMs(cmd.ProcessState),
		WallTimeMs:  wallTimeMs,
		MemoryKB:    mem.PeakKB,
		OutputBytes: outputBytes,
		Stderr:      stderr,
		TimedOut:    timedOut.Load(),
		OomKilled:   mem.OomKilled,
	}
	if outputBytes > outputCap || signal == int(syscall.SIGXFSZ) {
		runResult.OutputExceeded = true
	} else {
		runResult.Stdout = stdout
	}

	if helperStderr.Len() > 0 {
		logger.Debug(ctx, "sandbox helper stderr", zap.String("stderr", helperStderr.String()))
	}
	if err := ctx.Err(); err != nil && !runResult.TimedOut {
		return runResult, err
	}
	return runResult, nil
}

// confine moves the helper into its cgroup while it still blocks on stdin,
// so no user code runs unconfined. A helper that cannot join is killed and
// reaped, since the run would have no memory or pids ceiling.
func (e *linuxEngine) confine(cmd *exec.Cmd, stdin io.Closer, handle *runHandle) error {
	if handle.cgroup == nil {
		return nil
	}
	if err := handle.cgroup.join(handle.pid); err != nil {
		_ = stdin.Close()
		e.kill(handle)
		_ = cmd.Wait()
		return fmt.Errorf("join cgroup %s: %w", handle.cgroup.path, err)
	}
	return nil
}

func exitStatus(state *os.ProcessState) (int, int) {
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		sig := int(ws.Signal())
		return 128 + sig, sig
	}
	return state.ExitCode(), 0
}

func readStatus(r io.Reader) string {
	data, _ := io.ReadAll(io.LimitReader(r, 4096))
	return string(bytes.TrimSpace(data))
}

func (e *linuxEngine) KillSubmission(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return fmt.Errorf("submission id is required")
	}
	for _, handle := range e.snapshot(submissionID) {
		e.kill(handle)
	}
	return nil
}

func (e *linuxEngine) kill(handle *runHandle) {
	if handle.pid > 0 {
		_ = syscall.Kill(-handle.pid, syscall.SIGKILL)
	}
	if handle.cgroup != nil {
		_ = handle.cgroup.kill()
	}
}

func (e *linuxEngine) register(submissionID string, handle *runHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.running[submissionID] = append(e.running[submissionID], handle)
}

func (e *linuxEngine) unregister(submissionID string, handle *runHandle) {
	e.mu.Lock()
	defer e.mu.Unlock()
	handles := e.running[submissionID]
	updated := handles[:0]
	for _, h := range handles {
		if h != handle {
			updated = append(updated, h)
		}
	}
	if len(updated) == 0 {
		delete(e.running, submissionID)
		return
	}
	e.running[submissionID] = updated
}

func (e *linuxEngine) snapshot(submissionID string) []*runHandle {
	e.mu.Lock()
	defer e.mu.Unlock()
	handles := e.running[submissionID]
	out := make([]*runHandle, len(handles))
	copy(out, handles)
	return out
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.SubmissionID == "" {
		return fmt.Errorf("submission id is required")
	}
	if runSpec.TestID == "" {
		return fmt.Errorf("test id is required")
	}
	if runSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if len(runSpec.Cmd) == 0 {
		return fmt.Errorf("command is required")
	}
	if runSpec.Profile == "" {
		return fmt.Errorf("profile is required")
	}
	return nil
}

func buildSysProcAttr(profile spec.IsolationProfile, enableNamespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}
	if !enableNamespaces {
		return attr
	}

	cloneFlags := uintptr(syscall.CLONE_NEWNS | syscall.CLONE_NEWPID | syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC)
	if profile.DisableNetwork {
		cloneFlags |= syscall.CLONE_NEWNET
	}
	cloneFlags |= syscall.CLONE_NEWUSER

	attr.Cloneflags = cloneFlags
	attr.GidMappingsEnableSetgroups = false
	attr.UidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getuid(),
		Size:        1,
	}}
	attr.GidMappings = []syscall.SysProcIDMap{{
		ContainerID: 0,
		HostID:      os.Getgid(),
		Size:        1,
	}}
	return attr
}
