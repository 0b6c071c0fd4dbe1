package runner

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"

	"algojudge/internal/judge/compare"
	"algojudge/internal/judge/model"
	"algojudge/internal/judge/sandbox/diagnose"
	"algojudge/internal/judge/sandbox/engine"
	"algojudge/internal/judge/sandbox/observer"
	"algojudge/internal/judge/sandbox/result"
	"algojudge/internal/judge/sandbox/spec"
	"algojudge/internal/judge/sandbox/toolchain"
	"algojudge/internal/judge/sandbox/workspace"
	appErr "algojudge/pkg/errors"
	"algojudge/pkg/utils/logger"
)

const (
	containerWorkDir = "/work"
	inputName        = "input.txt"
	outputName       = "output.txt"
	compileLogName   = "compile.log"
	runtimeLogName   = "runtime.log"
	compileTestID    = "compile"
)

// Messages for limit verdicts.
const (
	MessageTimeLimit   = "Time limit exceeded"
	MessageMemoryLimit = "Memory limit exceeded"
	MessageOutputLimit = "Output size exceeded limit"
	MessageWrongAnswer = "Wrong answer"
)

// DefaultRunner implements compile/run workflows for supported languages.
type DefaultRunner struct {
	eng      engine.Engine
	resolver *toolchain.Resolver
	cfg      Config
	metrics  observer.MetricsRecorder
}

// NewRunner creates a new runner backed by the sandbox engine.
func NewRunner(eng engine.Engine, resolver *toolchain.Resolver, cfg Config) *DefaultRunner {
	return NewRunnerWithObserver(eng, resolver, cfg, observer.NoopMetricsRecorder{})
}

// NewRunnerWithObserver creates a new runner with metrics hooks.
func NewRunnerWithObserver(eng engine.Engine, resolver *toolchain.Resolver, cfg Config, metrics observer.MetricsRecorder) *DefaultRunner {
	if metrics == nil {
		metrics = observer.NoopMetricsRecorder{}
	}
	if resolver == nil {
		resolver = &toolchain.Resolver{}
	}
	cfg.applyDefaults()
	return &DefaultRunner{eng: eng, resolver: resolver, cfg: cfg, metrics: metrics}
}

func (r *DefaultRunner) Compile(ctx context.Context, req CompileRequest) (result.CompileResult, error) {
	if err := validateCompileRequest(req); err != nil {
		return result.CompileResult{}, err
	}
	if !req.Language.CompileEnabled {
		return result.CompileResult{OK: true}, nil
	}

	compiler, err := r.resolver.Resolve(req.Language.ID+" compiler", req.Language.Compilers)
	if err != nil {
		if appErr.Is(err, appErr.ToolchainNotFound) {
			return result.CompileResult{Error: err.Error(), ToolchainMissing: true}, nil
		}
		return result.CompileResult{}, err
	}

	workDir, mounts := r.sandboxDir(req.Artifact.Dir)
	cmd, err := toolchain.Expand(req.Language.CompileCmdTpl, vars(req.Artifact, workDir, compiler, "", 0))
	if err != nil {
		return result.CompileResult{}, err
	}

	runSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       compileTestID,
		WorkDir:      workDir,
		Cmd:          cmd,
		Env:          req.Language.Env,
		StderrPath:   filepath.Join(workDir, compileLogName),
		BindMounts:   mounts,
		Profile:      r.cfg.CompileProfile,
		Limits:       r.cfg.CompileLimits,
	}

	runRes, err := r.eng.Run(ctx, runSpec)
	compileRes := result.CompileResult{
		OK:       err == nil && runRes.ExitCode == 0 && !runRes.ResourceExceeded(),
		ExitCode: runRes.ExitCode,
		TimeMs:   runRes.TimeMs,
		MemoryKB: runRes.MemoryKB,
	}
	r.metrics.ObserveCompile(ctx, req.Language.ID, compileRes.OK, compileRes.TimeMs, compileRes.MemoryKB)
	if err != nil {
		compileRes.Error = err.Error()
		return compileRes, err
	}
	if !compileRes.OK {
		compileRes.Error = compileFailureMessage(runRes)
		logger.Debug(ctx, "compilation failed",
			zap.String("submission_id", req.SubmissionID),
			zap.String("language", req.Language.ID),
			zap.Int("exit_code", runRes.ExitCode),
		)
	}
	return compileRes, nil
}

func compileFailureMessage(res result.RunResult) string {
	switch {
	case res.TimedOut || res.Signal == int(syscall.SIGXCPU):
		return "Compilation time limit exceeded"
	case res.OomKilled:
		return "Compilation memory limit exceeded"
	case res.OutputExceeded:
		return "Compilation output size exceeded limit"
	case res.Stderr != "":
		return res.Stderr
	default:
		return fmt.Sprintf("compiler exited with code %d", res.ExitCode)
	}
}

func (r *DefaultRunner) Run(ctx context.Context, req RunRequest) (result.TestcaseResult, error) {
	if err := validateRunRequest(req); err != nil {
		return result.TestcaseResult{}, err
	}
	base := result.TestcaseResult{
		TestID:     req.TestID,
		TestCaseID: req.TestCaseID,
		Order:      req.Order,
		IsSample:   req.IsSample,
	}

	runtime := ""
	if len(req.Language.Runtimes) > 0 {
		resolved, err := r.resolver.Resolve(req.Language.ID+" runtime", req.Language.Runtimes)
		if err != nil {
			if !appErr.Is(err, appErr.ToolchainNotFound) {
				return base, err
			}
			base.Verdict = model.VerdictCE
			base.Message = err.Error()
			base.FailureKind = model.FailureToolchain
			r.metrics.ObserveRun(ctx, req.Language.ID, string(base.Verdict), 0, 0, 0)
			return base, nil
		}
		runtime = resolved
	}

	if err := workspace.CopyTree(req.Artifact.Dir, req.WorkDir); err != nil {
		return base, appErr.Wrapf(err, appErr.JudgeSystemError, "copy artifacts failed")
	}
	if err := workspace.WriteInput(filepath.Join(req.WorkDir, inputName), req.Input); err != nil {
		return base, appErr.Wrapf(err, appErr.JudgeSystemError, "write input failed")
	}

	limits := r.runLimits(req)
	workDir, mounts := r.sandboxDir(req.WorkDir)
	memoryMB := req.MemoryBytes >> 20
	cmd, err := toolchain.Expand(req.Language.RunCmdTpl, vars(req.Artifact, workDir, "", runtime, memoryMB))
	if err != nil {
		return base, err
	}

	runSpec := spec.RunSpec{
		SubmissionID: req.SubmissionID,
		TestID:       req.TestID,
		WorkDir:      workDir,
		Cmd:          cmd,
		Env:          req.Language.Env,
		StdinPath:    filepath.Join(workDir, inputName),
		StdoutPath:   filepath.Join(workDir, outputName),
		StderrPath:   filepath.Join(workDir, runtimeLogName),
		BindMounts:   mounts,
		Profile:      r.cfg.RunProfile,
		Limits:       limits,
	}

	runRes, err := r.eng.Run(ctx, runSpec)
	if err != nil {
		return base, err
	}

	res := classify(req, runRes, limits)
	r.metrics.ObserveRun(ctx, req.Language.ID, string(res.Verdict), res.TimeMs, res.MemoryKB, runRes.OutputBytes)
	return res, nil
}

// classify maps a raw run result to a per-case verdict.
func classify(req RunRequest, runRes result.RunResult, limits spec.ResourceLimit) result.TestcaseResult {
	res := result.TestcaseResult{
		TestID:     req.TestID,
		TestCaseID: req.TestCaseID,
		Order:      req.Order,
		IsSample:   req.IsSample,
		TimeMs:     runRes.TimeMs,
		WallTimeMs: runRes.WallTimeMs,
		MemoryKB:   runRes.MemoryKB,
		ExitCode:   runRes.ExitCode,
		Signal:     runRes.Signal,
		Stdout:     runRes.Stdout,
		Stderr:     runRes.Stderr,
	}

	switch {
	case timeExceeded(runRes, limits):
		res.Verdict = model.VerdictTLE
		res.Message = MessageTimeLimit
		// Output of a killed process is never judged.
		res.Stdout = ""
	case runRes.OomKilled || (limits.MemoryBytes > 0 && runRes.MemoryKB*1024 > limits.MemoryBytes):
		res.Verdict = model.VerdictMLE
		res.Message = MessageMemoryLimit
	case runRes.OutputExceeded:
		res.Verdict = model.VerdictRE
		res.Message = MessageOutputLimit
		res.FailureKind = model.FailureOutputLimit
	case runRes.ExitCode != 0:
		diag := diagnose.Classify(req.Language.ID, runRes.ExitCode, runRes.Signal, runRes.Stderr)
		res.Verdict = model.VerdictRE
		res.Message = diag.Message
		res.Diagnosis = string(diag.Category)
	case req.SkipCompare || compare.Matches(runRes.Stdout, req.Expected):
		res.Verdict = model.VerdictAC
	default:
		res.Verdict = model.VerdictWA
		res.Message = MessageWrongAnswer
	}
	return res
}

// timeExceeded judges elapsed and CPU time against the scaled time limit.
// limits.WallTimeMs is only the kill deadline.
func timeExceeded(runRes result.RunResult, limits spec.ResourceLimit) bool {
	if runRes.TimedOut || runRes.Signal == int(syscall.SIGXCPU) {
		return true
	}
	if limits.CPUTimeMs <= 0 {
		return false
	}
	return runRes.TimeMs > limits.CPUTimeMs || runRes.WallTimeMs > limits.CPUTimeMs
}

func (r *DefaultRunner) runLimits(req RunRequest) spec.ResourceLimit {
	cpu := scaleLimit(req.TimeLimitMs, req.Language.TimeMultiplier)
	memory := scaleLimit(req.MemoryBytes, req.Language.MemoryMultiplier)
	limits := spec.ResourceLimit{
		CPUTimeMs:   cpu,
		WallTimeMs:  scaleLimit(cpu, r.cfg.WallTimeFactor) + r.cfg.WallTimeExtraMs,
		MemoryBytes: memory,
		OutputBytes: r.cfg.OutputBytes,
		StackBytes:  r.cfg.StackBytes,
		PIDs:        req.Language.PIDs,
	}
	if cpu <= 0 {
		limits.WallTimeMs = 0
	}
	if limits.StackBytes <= 0 {
		limits.StackBytes = memory
	}
	if memory > 0 {
		limits.AddressSpaceBytes = memory + req.Language.AddressSpaceSlackMB<<20
	}
	return limits
}

// sandboxDir returns the scratch dir as the sandboxed program sees it.
func (r *DefaultRunner) sandboxDir(hostDir string) (string, []spec.MountSpec) {
	if !r.cfg.Isolated {
		return hostDir, nil
	}
	return containerWorkDir, []spec.MountSpec{{Source: hostDir, Target: containerWorkDir}}
}

func vars(artifact toolchain.Artifact, workDir, compiler, runtime string, memoryMB int64) toolchain.Vars {
	v := toolchain.Vars{
		Compiler: compiler,
		Runtime:  runtime,
		Src:      filepath.Join(workDir, artifact.SourceFile),
		Dir:      workDir,
		Entry:    artifact.Entry,
		MemoryMB: memoryMB,
	}
	if artifact.BinaryFile != "" {
		v.Bin = filepath.Join(workDir, artifact.BinaryFile)
	}
	return v
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

func validateCompileRequest(req CompileRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	if req.Artifact.Dir == "" || req.Artifact.SourceFile == "" {
		return appErr.ValidationError("artifact", "required")
	}
	return nil
}

func validateRunRequest(req RunRequest) error {
	if req.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if req.TestID == "" {
		return appErr.ValidationError("test_id", "required")
	}
	if req.WorkDir == "" {
		return appErr.ValidationError("work_dir", "required")
	}
	if req.Language.ID == "" {
		return appErr.ValidationError("language_id", "required")
	}
	if req.Artifact.Dir == "" {
		return appErr.ValidationError("artifact", "required")
	}
	return nil
}
