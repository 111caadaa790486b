// Package config resolves runtime settings from a YAML file,
// THREADLENS_* environment variables, and CLI flags, in ascending
// precedence. Every resolved value records where it came from.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

type ValueSource string

const (
	SourceConfig  ValueSource = "config"
	SourceEnv     ValueSource = "env"
	SourceCLI     ValueSource = "cli"
	SourceDefault ValueSource = "default"
)

type ResolvedValue struct {
	Value  string      `json:"value"`
	Source ValueSource `json:"source"`
	From   string      `json:"from,omitempty"`
}

type ResolveOptions struct {
	ConfigPath string
	CLIDBPath  string
	CLIData    string
	CLIAddr    string
}

type ResolvedConfig struct {
	ConfigPath string `json:"config_path"`

	DBPath   ResolvedValue `json:"db_path"`
	DataPath ResolvedValue `json:"data_path"`
	Addr     ResolvedValue `json:"addr"`
	LogLevel ResolvedValue `json:"log_level"`
}

type fileConfig struct {
	DBPath   string `yaml:"db_path"`
	DataPath string `yaml:"data_path"`
	Server   struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

func DefaultConfigPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".threadlens", "config.yaml")
}

func ResolveConfig(opts ResolveOptions) (ResolvedConfig, error) {
	path := strings.TrimSpace(opts.ConfigPath)
	if path == "" {
		path = DefaultConfigPath()
	}

	out := ResolvedConfig{ConfigPath: path}

	cfg, err := loadConfig(path)
	if err != nil {
		return out, err
	}
	if cfg != nil {
		apply(&out.DBPath, cfg.DBPath, SourceConfig, path)
		apply(&out.DataPath, cfg.DataPath, SourceConfig, path)
		apply(&out.Addr, cfg.Server.Addr, SourceConfig, path)
		apply(&out.LogLevel, cfg.Log.Level, SourceConfig, path)
	}

	applyEnv(&out.DBPath, "THREADLENS_DB")
	applyEnv(&out.DataPath, "THREADLENS_DATA")
	applyEnv(&out.Addr, "THREADLENS_ADDR")
	applyEnv(&out.LogLevel, "THREADLENS_LOG_LEVEL")

	apply(&out.DBPath, opts.CLIDBPath, SourceCLI, "--db")
	apply(&out.DataPath, opts.CLIData, SourceCLI, "--data")
	apply(&out.Addr, opts.CLIAddr, SourceCLI, "--addr")

	applyDefault(&out.Addr, ":8080")
	applyDefault(&out.LogLevel, "info")

	if out.DBPath.Value != "" {
		out.DBPath.Value = expandUserPath(out.DBPath.Value)
	}
	if out.DataPath.Value != "" {
		out.DataPath.Value = expandUserPath(out.DataPath.Value)
	}
	return out, nil
}

func loadConfig(path string) (*fileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg fileConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// apply overwrites the target only when the candidate is non-empty, so
// later calls with higher-precedence sources win.
func apply(target *ResolvedValue, value string, source ValueSource, from string) {
	v := strings.TrimSpace(value)
	if v == "" {
		return
	}
	*target = ResolvedValue{Value: v, Source: source, From: from}
}

func applyEnv(target *ResolvedValue, key string) {
	apply(target, os.Getenv(key), SourceEnv, key)
}

// applyDefault fills the target only when nothing has set it yet.
func applyDefault(target *ResolvedValue, value string) {
	if strings.TrimSpace(target.Value) != "" {
		return
	}
	*target = ResolvedValue{Value: value, Source: SourceDefault, From: "built-in default"}
}

func expandUserPath(p string) string {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err == nil && home != "" {
			return filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	return p
}
