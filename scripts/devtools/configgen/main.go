package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	judgeServiceName = "judge-service"
	cliName          = "judge-cli"
)

// Profile describes a local deployment rendered from base configs.
type Profile struct {
	OutputDir string                    `yaml:"outputDir"`
	Shared    SharedProfile             `yaml:"shared"`
	Services  map[string]ServiceProfile `yaml:"services"`
}

// SharedProfile holds values that must agree between the judge service and its CLI.
type SharedProfile struct {
	JudgeAddr  string `yaml:"judgeAddr"`
	AdminAddr  string `yaml:"adminAddr"`
	HelperPath string `yaml:"helperPath"`
	WorkRoot   string `yaml:"workRoot"`
	// Unsandboxed turns off seccomp, cgroup and namespaces for hosts without
	// privileges. Without a HelperPath it also runs programs directly.
	Unsandboxed bool `yaml:"unsandboxed"`
}

type ServiceProfile struct {
	Base      string                 `yaml:"base"`
	Output    string                 `yaml:"output"`
	Overrides map[string]interface{} `yaml:"overrides"`
}

func main() {
	profilePath := flag.String("profile", "configs/dev-profile.yaml", "Path to config profile")
	outputDir := flag.String("output-dir", "", "Override output directory")
	flag.Parse()

	if err := run(*profilePath, *outputDir); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(profilePath, outputDir string) error {
	profilePathAbs, err := filepath.Abs(profilePath)
	if err != nil {
		return fmt.Errorf("resolve profile path failed: %w", err)
	}

	profile, err := loadProfile(profilePathAbs)
	if err != nil {
		return fmt.Errorf("load profile failed: %w", err)
	}

	if outputDir != "" {
		profile.OutputDir = outputDir
	}
	if profile.OutputDir == "" {
		return errors.New("output directory is required")
	}
	profileDir := filepath.Dir(profilePathAbs)
	if !filepath.IsAbs(profile.OutputDir) {
		profile.OutputDir = filepath.Join(profileDir, profile.OutputDir)
	}

	if err := os.MkdirAll(profile.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory failed: %w", err)
	}

	serviceNames := make([]string, 0, len(profile.Services))
	for name := range profile.Services {
		serviceNames = append(serviceNames, name)
	}
	sort.Strings(serviceNames)

	for _, name := range serviceNames {
		service := profile.Services[name]
		if service.Base == "" {
			return fmt.Errorf("service %q missing base config", name)
		}
		if !filepath.IsAbs(service.Base) {
			service.Base = filepath.Join(profileDir, service.Base)
		}
		baseConfig, err := loadYAML(service.Base)
		if err != nil {
			return fmt.Errorf("load base config for %q failed: %w", name, err)
		}
		baseConfig = normalizeValue(baseConfig)

		if len(service.Overrides) > 0 {
			override := normalizeValue(service.Overrides)
			merged, err := mergeMap(baseConfig, override)
			if err != nil {
				return fmt.Errorf("merge overrides for %q failed: %w", name, err)
			}
			baseConfig = merged
		}
		baseConfig, err = applyShared(profile, name, baseConfig)
		if err != nil {
			return fmt.Errorf("apply shared settings for %q failed: %w", name, err)
		}

		outputPath, err := resolveOutputPath(profile.OutputDir, service)
		if err != nil {
			return fmt.Errorf("resolve output path for %q failed: %w", name, err)
		}

		if err := writeYAML(outputPath, baseConfig); err != nil {
			return fmt.Errorf("write config for %q failed: %w", name, err)
		}
	}
	return nil
}

func loadProfile(path string) (*Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profile failed: %w", err)
	}

	var profile Profile
	if err := yaml.Unmarshal(data, &profile); err != nil {
		return nil, fmt.Errorf("parse profile failed: %w", err)
	}
	if len(profile.Services) == 0 {
		return nil, errors.New("profile has no services")
	}
	return &profile, nil
}

func loadYAML(path string) (interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read yaml failed: %w", err)
	}

	var value interface{}
	if err := yaml.Unmarshal(data, &value); err != nil {
		return nil, fmt.Errorf("parse yaml failed: %w", err)
	}
	return value, nil
}

func writeYAML(path string, value interface{}) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir failed: %w", err)
	}
	data, err := yaml.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal yaml failed: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write yaml failed: %w", err)
	}
	return nil
}

func resolveOutputPath(outputDir string, service ServiceProfile) (string, error) {
	output := service.Output
	if output == "" {
		output = filepath.Base(service.Base)
	}
	if output == "" {
		return "", errors.New("output path is empty")
	}
	if filepath.IsAbs(output) {
		return output, nil
	}
	return filepath.Join(outputDir, output), nil
}

func normalizeValue(value interface{}) interface{} {
	switch typed := value.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			out[k] = normalizeValue(v)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, v := range typed {
			key, ok := k.(string)
			if !ok {
				key = fmt.Sprintf("%v", k)
			}
			out[key] = normalizeValue(v)
		}
		return out
	case []interface{}:
		out := make([]interface{}, 0, len(typed))
		for _, item := range typed {
			out = append(out, normalizeValue(item))
		}
		return out
	default:
		return value
	}
}

func mergeMap(base interface{}, override interface{}) (interface{}, error) {
	baseMap, ok := base.(map[string]interface{})
	if !ok {
		return nil, errors.New("base config is not a map")
	}
	overrideMap, ok := override.(map[string]interface{})
	if !ok {
		return nil, errors.New("override config is not a map")
	}

	merged := make(map[string]interface{}, len(baseMap))
	for k, v := range baseMap {
		merged[k] = v
	}

	for key, overrideValue := range overrideMap {
		baseValue, exists := merged[key]
		if !exists {
			merged[key] = overrideValue
			continue
		}

		baseChild, baseIsMap := baseValue.(map[string]interface{})
		overrideChild, overrideIsMap := overrideValue.(map[string]interface{})
		if baseIsMap && overrideIsMap {
			combined, err := mergeMap(baseChild, overrideChild)
			if err != nil {
				return nil, err
			}
			merged[key] = combined
			continue
		}
		merged[key] = overrideValue
	}
	return merged, nil
}

// applyShared writes the shared profile values into the judge service and
// CLI configs so both sides point at the same address.
func applyShared(profile *Profile, serviceName string, config interface{}) (interface{}, error) {
	if profile == nil {
		return config, nil
	}
	shared := profile.Shared
	if shared == (SharedProfile{}) {
		return config, nil
	}
	root, ok := config.(map[string]interface{})
	if !ok {
		return nil, errors.New("service config is not a map")
	}
	switch serviceName {
	case judgeServiceName:
		if shared.JudgeAddr != "" {
			section(root, "server")["addr"] = shared.JudgeAddr
		}
		if shared.AdminAddr != "" {
			section(root, "server")["adminAddr"] = shared.AdminAddr
		}
		if shared.WorkRoot != "" {
			section(root, "judge")["workRoot"] = shared.WorkRoot
		}
		sandbox := section(root, "sandbox")
		if shared.HelperPath != "" {
			sandbox["helperPath"] = shared.HelperPath
		}
		if shared.Unsandboxed {
			if shared.HelperPath == "" {
				sandbox["helperPath"] = ""
			}
			sandbox["enableSeccomp"] = false
			sandbox["enableCgroup"] = false
			sandbox["enableNamespaces"] = false
		}
	case cliName:
		if shared.JudgeAddr != "" {
			root["baseURL"] = clientURL(shared.JudgeAddr)
		}
		if shared.AdminAddr != "" {
			root["adminURL"] = clientURL(shared.AdminAddr)
		}
	}
	return root, nil
}

func section(root map[string]interface{}, key string) map[string]interface{} {
	child, ok := root[key].(map[string]interface{})
	if !ok {
		child = map[string]interface{}{}
		root[key] = child
	}
	return child
}

// clientURL turns a listen address into a URL the CLI can dial.
func clientURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	if strings.HasPrefix(addr, "0.0.0.0:") {
		addr = "127.0.0.1:" + strings.TrimPrefix(addr, "0.0.0.0:")
	} else if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr
}
