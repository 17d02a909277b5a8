//go:build linux

package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"coderush/internal/judge/sandbox/spec"
	appErr "coderush/pkg/errors"
)

func createRunCgroup(root, submissionID, testID string) (string, func(), error) {
	if root == "" {
		return "", func() {}, appErr.ValidationError("cgroup_root", "required")
	}
	runDir := fmt.Sprintf("%s-%d", testID, time.Now().UnixNano())
	cgroupPath := filepath.Join(root, submissionID, runDir)
	if err := os.MkdirAll(cgroupPath, 0750); err != nil {
		return "", func() {}, appErr.Wrapf(err, appErr.JudgeSystemError, "create cgroup path failed")
	}
	cleanup := func() {
		// cgroupfs directories are removed with rmdir, leaf first.
		_ = os.Remove(cgroupPath)
		_ = os.Remove(filepath.Dir(cgroupPath))
	}
	return cgroupPath, cleanup, nil
}

func applyCgroupLimits(cgroupPath string, limits spec.ResourceLimit) error {
	pidsValue := "max"
	if limits.PIDs > 0 {
		pidsValue = strconv.FormatInt(limits.PIDs, 10)
	}
	if err := writeCgroupValue(cgroupPath, "pids.max", pidsValue); err != nil {
		return appErr.Wrapf(err, appErr.JudgeSystemError, "write pids.max failed")
	}
	if limits.MemoryMB > 0 {
		bytes := strconv.FormatInt(limits.MemoryMB*1024*1024, 10)
		if err := writeCgroupValue(cgroupPath, "memory.max", bytes); err != nil {
			return appErr.Wrapf(err, appErr.JudgeSystemError, "write memory.max failed")
		}
		// Without swap the OOM killer fires at the limit instead of paging.
		_ = writeCgroupValue(cgroupPath, "memory.swap.max", "0")
	}
	return nil
}

func addProcessToCgroup(cgroupPath string, pid int) error {
	if pid <= 0 {
		return appErr.ValidationError("pid", "invalid")
	}
	return writeCgroupValue(cgroupPath, "cgroup.procs", strconv.Itoa(pid))
}

func killCgroup(cgroupPath string) error {
	killPath := filepath.Join(cgroupPath, "cgroup.kill")
	if _, err := os.Stat(killPath); err != nil {
		return err
	}
	return os.WriteFile(killPath, []byte("1"), 0600)
}

func wasOomKilled(cgroupPath string) bool {
	if cgroupPath == "" {
		return false
	}
	data, err := os.ReadFile(filepath.Join(cgroupPath, "memory.events"))
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 || fields[0] != "oom_kill" {
			continue
		}
		val, _ := strconv.ParseInt(fields[1], 10, 64)
		return val > 0
	}
	return false
}

func memoryPeakKB(cgroupPath string, state *os.ProcessState) int64 {
	if cgroupPath != "" {
		if val, err := readCgroupInt(cgroupPath, "memory.peak"); err == nil && val > 0 {
			return val / 1024
		}
	}
	if state == nil {
		return 0
	}
	if usage, ok := state.SysUsage().(*syscall.Rusage); ok {
		return usage.Maxrss
	}
	return 0
}

func readCgroupInt(cgroupPath, name string) (int64, error) {
	data, err := os.ReadFile(filepath.Join(cgroupPath, name))
	if err != nil {
		return 0, err
	}
	return strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
}

func writeCgroupValue(cgroupPath, name, value string) error {
	return os.WriteFile(filepath.Join(cgroupPath, name), []byte(value), 0640)
}
