//go:build linux

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

type seccompConfig struct {
	DefaultAction string           `json:"defaultAction"`
	Syscalls      []seccompSyscall `json:"syscalls"`
}

type seccompSyscall struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
}

func loadSeccompConfig(path string) (seccompConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return seccompConfig{}, fmt.Errorf("read seccomp profile: %w", err)
	}
	var cfg seccompConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return seccompConfig{}, fmt.Errorf("parse seccomp profile: %w", err)
	}
	return cfg, nil
}

func buildFilter(cfg seccompConfig) (*seccomp.ScmpFilter, error) {
	defaultAction, err := parseSeccompAction(cfg.DefaultAction)
	if err != nil {
		return nil, err
	}
	filter, err := seccomp.NewFilter(defaultAction)
	if err != nil {
		return nil, fmt.Errorf("create seccomp filter: %w", err)
	}
	for _, rule := range cfg.Syscalls {
		action, err := parseSeccompAction(rule.Action)
		if err != nil {
			filter.Release()
			return nil, err
		}
		for _, name := range rule.Names {
			call, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				// Unknown on this architecture.
				continue
			}
			if err := filter.AddRule(call, action); err != nil {
				filter.Release()
				return nil, fmt.Errorf("add seccomp rule %s: %w", name, err)
			}
		}
	}
	return filter, nil
}

func applySeccomp(profilePath string) error {
	cfg, err := loadSeccompConfig(profilePath)
	if err != nil {
		return err
	}
	filter, err := buildFilter(cfg)
	if err != nil {
		return err
	}
	defer filter.Release()
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

func parseSeccompAction(action string) (seccomp.ScmpAction, error) {
	switch strings.ToUpper(action) {
	case "SCMP_ACT_ALLOW":
		return seccomp.ActAllow, nil
	case "SCMP_ACT_ERRNO":
		return seccomp.ActErrno.SetReturnCode(int16(unix.EPERM)), nil
	case "SCMP_ACT_KILL", "SCMP_ACT_KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	default:
		return seccomp.ActKillProcess, fmt.Errorf("unsupported seccomp action: %s", action)
	}
}
