package main

import (
	"fmt"
	"os"
	"time"

	"coderush/internal/judge/exercise"
	"coderush/internal/judge/sandbox/engine"
	"coderush/internal/judge/sandbox/profile"
	"coderush/internal/judge/sandbox/spec"
	"coderush/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultHTTPAddr        = "0.0.0.0:8085"
	defaultAdminAddr       = "127.0.0.1:8086"
	defaultReadTimeout     = 5 * time.Second
	defaultWriteTimeout    = 60 * time.Second
	defaultIdleTimeout     = 60 * time.Second
	defaultShutdownTimeout = 10 * time.Second
	defaultTimeLimit       = 2 * time.Second
	defaultSubmitTimeout   = 45 * time.Second
	defaultQueueWait       = 2 * time.Second
	defaultStatusTTL       = 10 * time.Minute
	defaultMaxSourceBytes  = 64 * 1024
	defaultLanguage        = "go"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
	// AdminAddr serves operator endpoints such as recovery. Keep it off
	// public interfaces.
	AdminAddr    string        `yaml:"adminAddr"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	IdleTimeout  time.Duration `yaml:"idleTimeout"`
	MetricsPath  string        `yaml:"metricsPath"`
}

// JudgeConfig holds grading settings.
type JudgeConfig struct {
	WorkRoot        string        `yaml:"workRoot"`
	TimeLimit       time.Duration `yaml:"timeLimit"`
	SubmitTimeout   time.Duration `yaml:"submitTimeout"`
	MaxSourceBytes  int           `yaml:"maxSourceBytes"`
	MaxInFlight     int           `yaml:"maxInFlight"`
	QueueWait       time.Duration `yaml:"queueWait"`
	CaseParallelism int           `yaml:"caseParallelism"`
	ExposeWarnings  bool          `yaml:"exposeWarnings"`
	DefaultLanguage string        `yaml:"defaultLanguage"`
	DefaultExercise int           `yaml:"defaultExercise"`
}

// StatusConfig holds submission status retention settings.
type StatusConfig struct {
	TTL     time.Duration `yaml:"ttl"`
	Timeout time.Duration `yaml:"timeout"`
}

// LanguageConfig holds language definitions.
type LanguageConfig struct {
	Languages []profile.LanguageSpec `yaml:"languages"`
	Profiles  []profile.TaskProfile  `yaml:"profiles"`
}

// AppConfig holds judge-service config.
type AppConfig struct {
	Server    ServerConfig        `yaml:"server"`
	Logger    logger.Config       `yaml:"logger"`
	Judge     JudgeConfig         `yaml:"judge"`
	Status    StatusConfig        `yaml:"status"`
	Sandbox   engine.Config       `yaml:"sandbox"`
	Language  LanguageConfig      `yaml:"language"`
	Exercises []exercise.Exercise `yaml:"exercises"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = defaultHTTPAddr
	}
	if cfg.Server.AdminAddr == "" {
		cfg.Server.AdminAddr = defaultAdminAddr
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = defaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = defaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Server.MetricsPath == "" {
		cfg.Server.MetricsPath = "/metrics"
	}
	if cfg.Judge.WorkRoot == "" {
		cfg.Judge.WorkRoot = os.TempDir()
	}
	if cfg.Judge.TimeLimit == 0 {
		cfg.Judge.TimeLimit = defaultTimeLimit
	}
	if cfg.Judge.SubmitTimeout == 0 {
		cfg.Judge.SubmitTimeout = defaultSubmitTimeout
	}
	if cfg.Judge.MaxSourceBytes == 0 {
		cfg.Judge.MaxSourceBytes = defaultMaxSourceBytes
	}
	if cfg.Judge.MaxInFlight <= 0 {
		cfg.Judge.MaxInFlight = 1
	}
	if cfg.Judge.QueueWait == 0 {
		cfg.Judge.QueueWait = defaultQueueWait
	}
	if cfg.Judge.CaseParallelism <= 0 {
		cfg.Judge.CaseParallelism = 1
	}
	if cfg.Judge.DefaultLanguage == "" {
		cfg.Judge.DefaultLanguage = defaultLanguage
	}
	if cfg.Judge.DefaultExercise <= 0 {
		cfg.Judge.DefaultExercise = 1
	}
	if cfg.Status.TTL == 0 {
		cfg.Status.TTL = defaultStatusTTL
	}
	if len(cfg.Language.Languages) == 0 {
		cfg.Language.Languages = defaultLanguages()
	}
	if len(cfg.Language.Profiles) == 0 {
		cfg.Language.Profiles = defaultProfiles(cfg.Language.Languages)
	}
}

func validateConfig(cfg *AppConfig) error {
	found := false
	for _, lang := range cfg.Language.Languages {
		if lang.ID == "" {
			return fmt.Errorf("language id is required")
		}
		if lang.ID == cfg.Judge.DefaultLanguage {
			found = true
		}
	}
	if !found {
		return fmt.Errorf("default language %q is not configured", cfg.Judge.DefaultLanguage)
	}
	if cfg.Server.AdminAddr == cfg.Server.Addr {
		return fmt.Errorf("server adminAddr must differ from addr")
	}
	if cfg.Sandbox.EnableCgroup && cfg.Sandbox.CgroupRoot == "" {
		return fmt.Errorf("sandbox cgroupRoot is required when cgroup is enabled")
	}
	return nil
}

// defaultLanguages is the toolchain set used when the config lists none.
func defaultLanguages() []profile.LanguageSpec {
	return []profile.LanguageSpec{
		{
			ID:               "go",
			Name:             "Go",
			SourceFile:       "main.go",
			BinaryFile:       "main",
			CompileEnabled:   true,
			CompileCmdTpl:    "go build -o {bin} {extraFlags} {src}",
			LintCmdTpl:       "go vet {src}",
			DiagnosticFormat: profile.DiagnosticFormatGo,
			EntrySymbol:      "main.main",
			PassEnv:          []string{"PATH", "HOME", "GOCACHE", "GOPATH", "GOROOT", "GOMODCACHE"},
			CompileEnv:       []string{"CGO_ENABLED=0", "GOTOOLCHAIN=local"},
			RunEnv:           []string{"GOMAXPROCS=1"},
			TimeMultiplier:   1,
			MemoryMultiplier: 1,
		},
		{
			ID:               "cpp",
			Name:             "C++17",
			SourceFile:       "main.cpp",
			BinaryFile:       "main",
			CompileEnabled:   true,
			CompileCmdTpl:    "g++ -std=c++17 -O2 -pipe -Wall {extraFlags} -o {bin} {src}",
			DiagnosticFormat: profile.DiagnosticFormatGCC,
			EntrySymbol:      "main",
			PassEnv:          []string{"PATH"},
			TimeMultiplier:   1,
			MemoryMultiplier: 1,
		},
		{
			ID:               "c",
			Name:             "C11",
			SourceFile:       "main.c",
			BinaryFile:       "main",
			CompileEnabled:   true,
			CompileCmdTpl:    "gcc -std=c11 -O2 -pipe -Wall {extraFlags} -o {bin} {src}",
			DiagnosticFormat: profile.DiagnosticFormatGCC,
			EntrySymbol:      "main",
			PassEnv:          []string{"PATH"},
			TimeMultiplier:   1,
			MemoryMultiplier: 1,
		},
	}
}

func defaultProfiles(langs []profile.LanguageSpec) []profile.TaskProfile {
	out := make([]profile.TaskProfile, 0, len(langs)*3)
	for _, lang := range langs {
		out = append(out,
			profile.TaskProfile{
				LanguageID:     lang.ID,
				TaskType:       profile.TaskTypeCompile,
				SeccompProfile: "compile.json",
				DisableNetwork: true,
				DefaultLimits:  spec.ResourceLimit{CPUTimeMs: 20000, WallTimeMs: 30000, MemoryMB: 1024, OutputMB: 4, PIDs: 128},
			},
			profile.TaskProfile{
				LanguageID:     lang.ID,
				TaskType:       profile.TaskTypeRun,
				SeccompProfile: "run.json",
				DisableNetwork: true,
				DefaultLimits:  spec.ResourceLimit{CPUTimeMs: 2000, WallTimeMs: 2000, MemoryMB: 256, StackMB: 64, OutputMB: 1, PIDs: 16},
			},
		)
		if lang.LintCmdTpl != "" {
			out = append(out, profile.TaskProfile{
				LanguageID:     lang.ID,
				TaskType:       profile.TaskTypeLint,
				SeccompProfile: "compile.json",
				DisableNetwork: true,
				DefaultLimits:  spec.ResourceLimit{CPUTimeMs: 20000, WallTimeMs: 30000, MemoryMB: 1024, OutputMB: 4, PIDs: 128},
			})
		}
	}
	return out
}
