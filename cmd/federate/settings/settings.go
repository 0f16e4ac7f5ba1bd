// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package settings loads the per-user tool settings for the federate CLI.
//
// Settings live in a YAML file, by default
// $XDG_CONFIG_HOME/federate/settings.yaml, overridden by $FEDERATE_SETTINGS.
// A missing file is not an error. Environment variables then override the
// file, and command-line flags override both.
//
// Settings are returned by value and passed down; there is no global.
package settings

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/federate/cmd/federate/internal/mutate"
	"github.com/AleutianAI/federate/cmd/federate/internal/validate"
	"github.com/AleutianAI/federate/pkg/logging"
)

// Environment variables read by Load.
const (
	EnvSettingsPath = "FEDERATE_SETTINGS"
	EnvLogLevel     = "FEDERATE_LOG_LEVEL"
	EnvLogDir       = "FEDERATE_LOG_DIR"
	EnvConfigHome   = "XDG_CONFIG_HOME"
)

// Color modes.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// DefaultDebounce is how long watch waits for file events to settle.
const DefaultDebounce = 300 * time.Millisecond

// Settings is the full tool configuration.
type Settings struct {
	// LogLevel is the minimum console level (debug, info, warn, error).
	LogLevel string `yaml:"log_level" json:"log_level" validate:"omitempty,oneof=debug info warn warning error"`

	// LogDir enables JSON file logging into the directory.
	LogDir string `yaml:"log_dir,omitempty" json:"log_dir,omitempty"`

	// LogJSON switches console logs to JSON.
	LogJSON bool `yaml:"log_json" json:"log_json"`

	// Color is auto, always or never.
	Color string `yaml:"color" json:"color" validate:"oneof=auto always never"`

	Backup    BackupSettings    `yaml:"backup" json:"backup"`
	Workspace WorkspaceSettings `yaml:"workspace" json:"workspace"`
	Watch     WatchSettings     `yaml:"watch" json:"watch"`
}

// BackupSettings controls backups taken by apply.
type BackupSettings struct {
	// Enabled makes apply back up overwritten files without --backup.
	Enabled bool `yaml:"enabled" json:"enabled"`

	// MaxBackups per file; 0 uses mutate.DefaultMaxBackups.
	MaxBackups int `yaml:"max_backups" json:"max_backups" validate:"gte=0"`

	Suffix string `yaml:"suffix" json:"suffix" validate:"required"`
}

// WorkspaceSettings controls workspace fan-out.
type WorkspaceSettings struct {
	// Concurrency bounds parallel app reports; 0 uses GOMAXPROCS.
	Concurrency int `yaml:"concurrency" json:"concurrency" validate:"gte=0"`
}

// WatchSettings controls the watch command.
type WatchSettings struct {
	Debounce time.Duration `yaml:"debounce" json:"debounce" validate:"gte=0"`
}

// Default returns the built-in settings.
func Default() Settings {
	return Settings{
		LogLevel: "info",
		Color:    ColorAuto,
		Backup: BackupSettings{
			MaxBackups: mutate.DefaultMaxBackups,
			Suffix:     mutate.DefaultBackupSuffix,
		},
		Watch: WatchSettings{Debounce: DefaultDebounce},
	}
}

// Path returns the settings file location for the environment.
func Path(getenv func(string) string) (string, error) {
	if p := getenv(EnvSettingsPath); p != "" {
		return p, nil
	}
	if home := getenv(EnvConfigHome); home != "" {
		return filepath.Join(home, "federate", "settings.yaml"), nil
	}
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("locate settings directory: %w", err)
	}
	return filepath.Join(dir, "federate", "settings.yaml"), nil
}

// Load reads settings for the process environment. It returns the
// settings and the path they were looked up at.
func Load() (Settings, string, error) {
	return LoadFrom(os.Getenv)
}

// LoadFrom is Load with an injectable environment.
func LoadFrom(getenv func(string) string) (Settings, string, error) {
	path, err := Path(getenv)
	if err != nil {
		return Settings{}, "", err
	}
	s, err := LoadFile(path)
	if err != nil {
		return Settings{}, path, err
	}
	s = s.WithEnv(getenv)
	if err := s.Validate(); err != nil {
		return Settings{}, path, err
	}
	return s, path, nil
}

// LoadFile decodes path over Default. A missing or empty file yields the
// defaults. Unknown keys are an error.
func LoadFile(path string) (Settings, error) {
	s := Default()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return Settings{}, fmt.Errorf("read settings %s: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil && !errors.Is(err, io.EOF) {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("settings %s: %w", path, err)
	}
	return s, nil
}

// WithEnv returns s with environment overrides applied.
func (s Settings) WithEnv(getenv func(string) string) Settings {
	if v := getenv(EnvLogLevel); v != "" {
		s.LogLevel = v
	}
	if v := getenv(EnvLogDir); v != "" {
		s.LogDir = v
	}
	return s
}

// Validate checks field values.
func (s Settings) Validate() error {
	return validate.Struct(s)
}

// Logging returns the logger configuration for these settings. verbose
// forces debug level.
func (s Settings) Logging(verbose bool) (logging.Config, error) {
	level, err := logging.ParseLevel(s.LogLevel)
	if err != nil {
		return logging.Config{}, err
	}
	if verbose {
		level = logging.LevelDebug
	}
	return logging.Config{
		Level:   level,
		LogDir:  s.LogDir,
		Service: "federate",
		JSON:    s.LogJSON,
	}, nil
}

// BackupConfig returns the mutate backup configuration for these settings.
func (s Settings) BackupConfig() mutate.BackupConfig {
	cfg := mutate.DefaultBackupConfig()
	cfg.MaxBackups = s.Backup.MaxBackups
	cfg.BackupSuffix = s.Backup.Suffix
	return cfg
}

// Save writes s to path as YAML, creating parent directories.
func Save(path string, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create settings directory: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}
