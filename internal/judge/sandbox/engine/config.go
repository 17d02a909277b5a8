package engine

import (
	"time"

	"coderush/internal/judge/sandbox/security"
)

// ProfileResolver resolves a profile name into an isolation profile.
type ProfileResolver interface {
	Resolve(profile string) (security.IsolationProfile, error)
}

// Config controls sandbox engine behavior.
type Config struct {
	CgroupRoot string `yaml:"cgroupRoot"`
	SeccompDir string `yaml:"seccompDir"`
	// HelperPath is the sandbox-init binary. Empty runs commands directly.
	HelperPath           string `yaml:"helperPath"`
	StdoutStderrMaxBytes int64  `yaml:"stdoutStderrMaxBytes"`
	// WaitDelayMs bounds how long output pipes may stay open after the process exits.
	WaitDelayMs      int64 `yaml:"waitDelayMs"`
	EnableSeccomp    bool  `yaml:"enableSeccomp"`
	EnableCgroup     bool  `yaml:"enableCgroup"`
	EnableNamespaces bool  `yaml:"enableNamespaces"`
}

const (
	defaultStdoutStderrMaxBytes int64 = 64 * 1024
	defaultWaitDelay                  = 500 * time.Millisecond
)

func (c Config) withDefaults() Config {
	if c.StdoutStderrMaxBytes <= 0 {
		c.StdoutStderrMaxBytes = defaultStdoutStderrMaxBytes
	}
	if c.WaitDelayMs <= 0 {
		c.WaitDelayMs = defaultWaitDelay.Milliseconds()
	}
	return c
}
