// Package config loads assay settings from ~/.config/assay/config.yaml and
// ASSAY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
	"github.com/mitchellh/go-homedir"
)

const (
	// DefaultPath is used when no --config flag is given.
	DefaultPath = "~/.config/assay/config.yaml"
	// DefaultProjectsRoot is where `assay project list` looks by default.
	DefaultProjectsRoot = "~/AssayProjects"
	// EnvPrefix marks environment overrides: ASSAY_LOG_LEVEL -> log.level.
	EnvPrefix = "ASSAY_"

	maxConfigFileSize = 1024 * 1024
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type Config struct {
	Workspace WorkspaceConfig `koanf:"workspace"`
	Log       LogConfig       `koanf:"log"`
	Server    ServerConfig    `koanf:"server"`
}

type WorkspaceConfig struct {
	// ProjectsRoot is home-expanded after loading.
	ProjectsRoot string `koanf:"projects_root" validate:"required"`
	// Workers sizes the dispatch pool; 0 means one per CPU.
	Workers int `koanf:"workers" validate:"min=0"`
}

type LogConfig struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

type ServerConfig struct {
	Transport string `koanf:"transport" validate:"oneof=stdio http"`
	Addr      string `koanf:"addr" validate:"required_if=Transport http"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		Workspace: WorkspaceConfig{ProjectsRoot: DefaultProjectsRoot},
		Log:       LogConfig{Level: "info", Format: "console"},
		Server:    ServerConfig{Transport: "stdio", Addr: "localhost:8080"},
	}
}

// Load reads the YAML file at path (DefaultPath when empty) and then applies
// environment overrides. A missing file is not an error.
//
// Precedence, highest first: ASSAY_* variables, the file, Default().
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = DefaultPath
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return nil, fmt.Errorf("expand config path %s: %w", path, err)
	}

	content, err := readConfigFile(expanded)
	if err != nil {
		return nil, err
	}
	if content != nil {
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", expanded, err)
		}
	}

	// ASSAY_WORKSPACE_PROJECTS_ROOT -> workspace.projects_root: the first
	// underscore after the prefix separates section from field.
	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		key := strings.ToLower(strings.TrimPrefix(s, EnvPrefix))
		section, field, ok := strings.Cut(key, "_")
		if !ok {
			return key
		}
		return section + "." + field
	}), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Workspace.ProjectsRoot, err = homedir.Expand(cfg.Workspace.ProjectsRoot)
	if err != nil {
		return nil, fmt.Errorf("expand workspace.projects_root: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error { return validate.Struct(c) }

func readConfigFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file %s exceeds %d bytes", path, maxConfigFileSize)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return content, nil
}
