//go:build linux

// Command sandbox-init applies process limits and a syscall filter to
// itself, then execs the sandboxed command in place.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"coderush/internal/judge/sandbox/engine"
	"coderush/internal/judge/sandbox/spec"

	"golang.org/x/sys/unix"
)

const defaultPath = "PATH=/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

func main() {
	if err := run(os.Args[1:]); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "sandbox-init: "+err.Error())
		os.Exit(126)
	}
}

func run(args []string) error {
	req, err := parseArgs(args)
	if err != nil {
		return err
	}
	if req.EnableNs {
		if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
			return fmt.Errorf("make mount private: %w", err)
		}
	}
	if req.WorkDir != "" {
		if err := os.Chdir(req.WorkDir); err != nil {
			return fmt.Errorf("chdir workdir: %w", err)
		}
	}
	if err := applyRlimits(req.Limits); err != nil {
		return err
	}
	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("set no new privs: %w", err)
	}

	env := buildEnv(req.Env)
	cmdPath, err := resolveCommand(req.Cmd[0], env)
	if err != nil {
		return err
	}
	// The filter goes last so that nothing above needs to be allowed by it.
	if req.EnableSeccomp && req.Isolation.SeccompProfile != "" {
		if err := applySeccomp(req.Isolation.SeccompProfile); err != nil {
			return err
		}
	}
	// Stdio and inherited descriptors such as fd 3 pass through untouched.
	return unix.Exec(cmdPath, req.Cmd, env)
}

func parseArgs(args []string) (engine.InitRequest, error) {
	fs := flag.NewFlagSet("sandbox-init", flag.ContinueOnError)
	raw := fs.String(strings.TrimLeft(engine.RequestFlag, "-"), "", "JSON encoded init request")
	if err := fs.Parse(args); err != nil {
		return engine.InitRequest{}, err
	}
	if *raw == "" {
		return engine.InitRequest{}, fmt.Errorf("%s is required", engine.RequestFlag)
	}
	var req engine.InitRequest
	if err := json.Unmarshal([]byte(*raw), &req); err != nil {
		return engine.InitRequest{}, fmt.Errorf("decode request: %w", err)
	}
	if len(req.Cmd) == 0 || req.Cmd[0] == "" {
		return engine.InitRequest{}, fmt.Errorf("command is required")
	}
	return req, nil
}

// resolveCommand keeps absolute paths as given so fd-relative paths like
// /proc/self/fd/3 are opened by exec itself.
func resolveCommand(name string, env []string) (string, error) {
	if filepath.IsAbs(name) {
		return name, nil
	}
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			if err := os.Setenv("PATH", strings.TrimPrefix(kv, "PATH=")); err != nil {
				return "", fmt.Errorf("set path: %w", err)
			}
			break
		}
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("resolve command: %w", err)
	}
	return path, nil
}

func applyRlimits(limits spec.ResourceLimit) error {
	type rlimit struct {
		name     string
		resource int
		value    uint64
	}
	var set []rlimit
	if limits.CPUTimeMs > 0 {
		// One extra second so the wall timer, not SIGXCPU, reports the overrun.
		set = append(set, rlimit{"cpu", unix.RLIMIT_CPU, uint64((limits.CPUTimeMs+999)/1000) + 1})
	}
	if limits.OutputMB > 0 {
		set = append(set, rlimit{"fsize", unix.RLIMIT_FSIZE, uint64(limits.OutputMB) * 1024 * 1024})
	}
	if limits.StackMB > 0 {
		set = append(set, rlimit{"stack", unix.RLIMIT_STACK, uint64(limits.StackMB) * 1024 * 1024})
	}
	if limits.PIDs > 0 {
		set = append(set, rlimit{"nproc", unix.RLIMIT_NPROC, uint64(limits.PIDs)})
	}
	set = append(set, rlimit{"core", unix.RLIMIT_CORE, 0})
	for _, l := range set {
		if err := unix.Setrlimit(l.resource, &unix.Rlimit{Cur: l.value, Max: l.value}); err != nil {
			return fmt.Errorf("set rlimit %s: %w", l.name, err)
		}
	}
	return nil
}

func buildEnv(env []string) []string {
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			return env
		}
	}
	return append(append([]string{}, env...), defaultPath)
}
