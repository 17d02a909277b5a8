//go:build linux

package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"coderush/internal/judge/sandbox/result"
	"coderush/internal/judge/sandbox/security"
	"coderush/internal/judge/sandbox/spec"
	appErr "coderush/pkg/errors"
	"coderush/pkg/utils/logger"

	"go.uber.org/zap"
)

type linuxEngine struct {
	cfg       Config
	resolver  ProfileResolver
	registry  map[string][]string
	registryM sync.Mutex
}

// NewEngine creates a Linux sandbox engine.
func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	if resolver == nil {
		return nil, appErr.ValidationError("resolver", "required")
	}
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, appErr.ValidationError("cgroup_root", "required when cgroup is enabled")
	}
	return &linuxEngine{
		cfg:      cfg.withDefaults(),
		resolver: resolver,
		registry: make(map[string][]string),
	}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}

	isoProfile, err := e.resolver.Resolve(runSpec.Profile)
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "resolve profile failed")
	}
	if e.cfg.SeccompDir != "" && isoProfile.SeccompProfile != "" && !filepath.IsAbs(isoProfile.SeccompProfile) {
		isoProfile.SeccompProfile = filepath.Join(e.cfg.SeccompDir, isoProfile.SeccompProfile)
	}

	cgroupPath := ""
	cgroupCleanup := func() {}
	if e.cfg.EnableCgroup {
		cgroupPath, cgroupCleanup, err = createRunCgroup(e.cfg.CgroupRoot, runSpec.SubmissionID, runSpec.TestID)
		if err != nil {
			return result.RunResult{}, err
		}
		if err := applyCgroupLimits(cgroupPath, runSpec.Limits); err != nil {
			cgroupCleanup()
			return result.RunResult{}, err
		}
		e.registerCgroup(runSpec.SubmissionID, cgroupPath)
	}
	defer func() {
		if e.cfg.EnableCgroup {
			e.unregisterCgroup(runSpec.SubmissionID, cgroupPath)
			cgroupCleanup()
		}
	}()

	cmd, err := e.buildCommand(runSpec, isoProfile)
	if err != nil {
		return result.RunResult{}, err
	}

	stdoutMax := e.cfg.StdoutStderrMaxBytes
	if runSpec.Limits.OutputMB > 0 {
		stdoutMax = runSpec.Limits.OutputMB * 1024 * 1024
	}

	var timedOut atomic.Bool
	var killMu sync.Mutex
	var killErr error
	kill := func() {
		if err := killProcessGroup(cmd.Process); err != nil {
			killMu.Lock()
			if killErr == nil {
				killErr = err
			}
			killMu.Unlock()
		}
	}

	// Overflow stops the whole group instead of letting it spin until the wall limit.
	stdout := newBoundedBuffer(stdoutMax, kill)
	stderr := newBoundedBuffer(e.cfg.StdoutStderrMaxBytes, nil)
	stdoutPipe, err := newOutputPipe()
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "create stdout pipe failed")
	}
	defer stdoutPipe.close()
	stderrPipe, err := newOutputPipe()
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.JudgeSystemError, "create stderr pipe failed")
	}
	defer stderrPipe.close()

	cmd.Stdin = bytes.NewReader(runSpec.Stdin)
	cmd.Stdout = stdoutPipe.w
	cmd.Stderr = stderrPipe.w
	// Bounds the stdin copier when a descendant keeps the read end open.
	cmd.WaitDelay = durationFromMs(e.cfg.WaitDelayMs)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.EntryPointNotFound, "start process failed")
	}
	stdoutPipe.drainTo(stdout)
	stderrPipe.drainTo(stderr)

	if e.cfg.EnableCgroup {
		if err := addProcessToCgroup(cgroupPath, cmd.Process.Pid); err != nil {
			logger.Warn(ctx, "add process to cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		wallLimit := durationFromMs(runSpec.Limits.WallTimeMs)
		var wallTimer <-chan time.Time
		if wallLimit > 0 {
			timer := time.NewTimer(wallLimit)
			defer timer.Stop()
			wallTimer = timer.C
		}
		select {
		case <-ctx.Done():
			kill()
		case <-wallTimer:
			timedOut.Store(true)
			kill()
		case <-done:
		}
	}()

	// Output goes through our own pipes, so Wait returns once the leader exits
	// even if a descendant still holds stdout.
	waitErr := cmd.Wait()
	close(done)
	// Stop descendants before collecting their output.
	kill()
	if e.cfg.EnableCgroup {
		if err := killCgroup(cgroupPath); err != nil {
			logger.Warn(ctx, "kill cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}
	killMu.Lock()
	groupErr := killErr
	killMu.Unlock()
	if groupErr != nil {
		logger.Error(ctx, "kill process group failed", zap.Int("pid", cmd.Process.Pid), zap.Error(groupErr))
		return result.RunResult{}, appErr.Wrapf(groupErr, appErr.ChannelRestoreFailed, "kill process group failed")
	}

	outputHeld := !drainPipes(durationFromMs(e.cfg.WaitDelayMs), stdoutPipe, stderrPipe)
	if errors.Is(waitErr, exec.ErrWaitDelay) {
		outputHeld = true
	}
	if outputHeld {
		logger.Warn(ctx, "output still held after exit",
			zap.String("submission_id", runSpec.SubmissionID),
			zap.String("test_id", runSpec.TestID),
		)
	}

	runResult := result.RunResult{
		ExitCode:       exitCodeFromErr(waitErr, cmd.ProcessState),
		Signal:         signalFromState(cmd.ProcessState),
		TimeMs:         cpuTimeMs(cmd.ProcessState),
		WallTimeMs:     time.Since(start).Milliseconds(),
		MemoryKB:       memoryPeakKB(cgroupPath, cmd.ProcessState),
		OutputKB:       stdout.total / 1024,
		Stdout:         stdout.String(),
		Stderr:         stderr.String(),
		OomKilled:      wasOomKilled(cgroupPath),
		TimedOut:       timedOut.Load(),
		OutputExceeded: stdout.exceeded,
		OutputHeld:     outputHeld,
	}
	if runResult.TimedOut && runResult.ExitCode == 0 {
		runResult.ExitCode = -1
	}
	if waitErr != nil && stderr.Len() > 0 {
		logger.Debug(ctx, "sandboxed process failed", zap.String("stderr", stderr.String()))
	}
	return runResult, nil
}

func (e *linuxEngine) buildCommand(runSpec spec.RunSpec, isoProfile security.IsolationProfile) (*exec.Cmd, error) {
	var cmd *exec.Cmd
	if e.cfg.HelperPath == "" {
		cmd = newCommand(runSpec.Cmd)
		cmd.Dir = runSpec.WorkDir
	} else {
		args, err := helperArgs(InitRequest{
			WorkDir:       runSpec.WorkDir,
			Cmd:           runSpec.Cmd,
			Env:           runSpec.Env,
			Limits:        runSpec.Limits,
			Isolation:     isoProfile,
			EnableSeccomp: e.cfg.EnableSeccomp,
			EnableNs:      e.cfg.EnableNamespaces,
		})
		if err != nil {
			return nil, appErr.Wrapf(err, appErr.JudgeSystemError, "encode init request failed")
		}
		cmd = exec.Command(e.cfg.HelperPath, args...)
	}
	// A nil Env would leak the judge's own environment into the child.
	cmd.Env = append([]string{}, runSpec.Env...)
	cmd.ExtraFiles = runSpec.ExtraFiles
	cmd.SysProcAttr = buildSysProcAttr(isoProfile, e.cfg.EnableNamespaces)
	return cmd, nil
}

// newCommand skips PATH lookup for absolute paths so that fd-relative paths
// such as /proc/self/fd/3 resolve in the child, not in the judge.
// outputPipe carries one output stream of the child. The judge drains the
// read end itself so that reaping the leader never waits on descendants.
type outputPipe struct {
	r    *os.File
	w    *os.File
	done chan struct{}
}

func newOutputPipe() (*outputPipe, error) {
	r, w, err := os.Pipe()
	if err != nil {
		return nil, err
	}
	return &outputPipe{r: r, w: w, done: make(chan struct{})}, nil
}

// drainTo closes the parent's write end and copies the read end into dst.
func (p *outputPipe) drainTo(dst io.Writer) {
	_ = p.w.Close()
	go func() {
		defer close(p.done)
		_, _ = io.Copy(dst, p.r)
	}()
}

func (p *outputPipe) close() {
	_ = p.r.Close()
	_ = p.w.Close()
}

// drainPipes waits up to delay for every pipe to reach EOF. Pipes still open
// after that are closed on the reader side. It reports whether all pipes
// finished on their own.
func drainPipes(delay time.Duration, pipes ...*outputPipe) bool {
	timer := time.NewTimer(delay)
	defer timer.Stop()
	released := true
	for _, p := range pipes {
		if !released {
			break
		}
		select {
		case <-p.done:
		case <-timer.C:
			released = false
		}
	}
	if !released {
		for _, p := range pipes {
			_ = p.r.Close()
		}
	}
	for _, p := range pipes {
		<-p.done
	}
	return released
}

func newCommand(argv []string) *exec.Cmd {
	if filepath.IsAbs(argv[0]) {
		return &exec.Cmd{Path: argv[0], Args: argv}
	}
	return exec.Command(argv[0], argv[1:]...)
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func signalFromState(state *os.ProcessState) string {
	if state == nil {
		return ""
	}
	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return ""
	}
	return status.Signal().String()
}

func (e *linuxEngine) KillSubmission(ctx context.Context, submissionID string) error {
	if submissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	paths := e.snapshotCgroups(submissionID)
	for _, cgroupPath := range paths {
		if err := killCgroup(cgroupPath); err != nil {
			logger.Warn(ctx, "kill cgroup failed", zap.String("cgroup", cgroupPath), zap.Error(err))
		}
	}
	return nil
}

func (e *linuxEngine) registerCgroup(submissionID, cgroupPath string) {
	e.registryM.Lock()
	defer e.registryM.Unlock()
	e.registry[submissionID] = append(e.registry[submissionID], cgroupPath)
}

func (e *linuxEngine) unregisterCgroup(submissionID, cgroupPath string) {
	e.registryM.Lock()
	defer e.registryM.Unlock()
	paths := e.registry[submissionID]
	if len(paths) == 0 {
		return
	}
	updated := paths[:0]
	for _, p := range paths {
		if p != cgroupPath {
			updated = append(updated, p)
		}
	}
	if len(updated) == 0 {
		delete(e.registry, submissionID)
		return
	}
	e.registry[submissionID] = updated
}

func (e *linuxEngine) snapshotCgroups(submissionID string) []string {
	e.registryM.Lock()
	defer e.registryM.Unlock()
	paths := e.registry[submissionID]
	out := make([]string, len(paths))
	copy(out, paths)
	return out
}

// killProcessGroup SIGKILLs the group led by proc. A group that is already
// gone is not an error.
func killProcessGroup(proc *os.Process) error {
	if proc == nil || proc.Pid <= 0 {
		return nil
	}
	err := syscall.Kill(-proc.Pid, syscall.SIGKILL)
	if err == nil || errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return fmt.Errorf("kill -%d: %w", proc.Pid, err)
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	if runSpec.TestID == "" {
		return appErr.ValidationError("test_id", "required")
	}
	if len(runSpec.Cmd) == 0 || runSpec.Cmd[0] == "" {
		return appErr.ValidationError("cmd", "required")
	}
	if runSpec.Profile == "" {
		return appErr.ValidationError("profile", "required")
	}
	return nil
}

func buildSysProcAttr(profile security.IsolationProfile, enableNamespaces bool) *syscall.SysProcAttr {
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
