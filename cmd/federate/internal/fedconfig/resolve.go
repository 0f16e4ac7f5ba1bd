// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fedconfig

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/AleutianAI/federate/cmd/federate/internal/detect"
	"github.com/AleutianAI/federate/pkg/logging"
)

// sharedDefaults are the packages given singleton sharing when a config
// does not declare its own shared map.
var sharedDefaults = []string{"react", "react-dom"}

var invalidNameChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// Options configures a Resolve call.
//
// # Fields
//
//   - ProjectDir: Project root. Required.
//   - ConfigPath: Explicit config path; empty probes by convention.
//   - Project: Detection snapshot for defaults. Detected when nil.
//   - Overrides: Caller values that beat every source.
//   - Logger: Debug output. Nil discards.
type Options struct {
	ProjectDir string
	ConfigPath string
	Project    *detect.ProjectInfo
	Overrides  Overrides
	Logger     *slog.Logger
}

// Resolution is the outcome of Resolve.
type Resolution struct {
	// Config is the merged, validated configuration.
	Config ResolvedConfig `json:"config"`

	// Source is the loaded file path, or SourceDefaults when none was found.
	Source string `json:"source"`

	// Overridden lists the JSON keys set by Overrides, in schema order.
	Overridden []string `json:"overridden,omitempty"`
}

// Resolve loads, validates and merges the configuration for a project.
//
// # Description
//
// The single file source found by Load is validated with Validate, layered
// over defaults derived from the project, then Overrides are applied. The
// merged config is checked again so override values face the same rules,
// with failures labelled SourceOverrides.
//
// # Outputs
//
//   - *Resolution: Merged config and source label.
//   - error: Any Load error, or a *ValidationError.
func Resolve(opts Options) (*Resolution, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	loaded, err := Load(opts.ProjectDir, opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	source := SourceDefaults
	var doc map[string]any
	if loaded != nil {
		source = loaded.FilePath
		doc = loaded.Config
		if err := Validate(doc, source); err != nil {
			return nil, err
		}
	}

	info := opts.Project
	if info == nil {
		info = detect.NewDetector(logger).Detect(opts.ProjectDir)
	}

	role := RoleRemote
	if r, ok := doc["role"].(string); ok {
		role = Role(r)
	}
	if opts.Overrides.Role != nil {
		role = *opts.Overrides.Role
	}

	cfg, err := merge(Defaults(info, opts.ProjectDir, role), doc, source)
	if err != nil {
		return nil, err
	}

	overridden := applyOverrides(&cfg, opts.Overrides)

	if cfg.Shared == nil {
		cfg.Shared = DefaultShared(manifestOf(info))
	}

	label := source
	if len(overridden) > 0 {
		label = SourceOverrides
	}
	if err := ValidateConfig(&cfg, label); err != nil {
		return nil, err
	}

	logger.Debug("config resolved",
		slog.String("source", source),
		slog.String("role", string(cfg.Role)),
		slog.String("name", cfg.Name),
		slog.Any("overridden", overridden),
	)

	return &Resolution{Config: cfg, Source: source, Overridden: overridden}, nil
}

// Defaults builds the baseline config for a project and role.
//
// The name comes from the manifest name (scope stripped, invalid characters
// replaced) or the directory name. The port follows the role.
func Defaults(info *detect.ProjectInfo, projectDir string, role Role) ResolvedConfig {
	raw := filepath.Base(projectDir)
	if m := manifestOf(info); m != nil && m.Name != "" {
		raw = m.Name
	}

	port := DefaultRemotePort
	if role == RoleHost {
		port = DefaultHostPort
	}

	return ResolvedConfig{
		Version:     SchemaVersion,
		Role:        role,
		Name:        DeriveName(raw),
		Port:        port,
		BuildTarget: DefaultBuildTarget,
	}
}

// DeriveName turns a package name into a valid federation name.
//
//	"@acme/checkout-ui" -> "checkout-ui"
//	"my.app"            -> "my_app"
//	"1st"               -> "app_1st"
func DeriveName(raw string) string {
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	name := strings.Trim(invalidNameChars.ReplaceAllString(raw, "_"), "_")
	if name == "" {
		return "app"
	}
	if c := name[0]; !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z') {
		name = "app_" + name
	}
	return name
}

// DefaultShared returns singleton entries for the React packages listed in
// the manifest. RequiredVersion is copied from the manifest only when the
// declared range pins a valid semantic version. Returns nil when neither
// package is listed.
func DefaultShared(m *detect.Manifest) map[string]SharedDep {
	var shared map[string]SharedDep
	for _, pkg := range sharedDefaults {
		if !m.HasDependency(pkg) {
			continue
		}
		if shared == nil {
			shared = make(map[string]SharedDep)
		}
		dep := SharedDep{Singleton: boolPtr(true)}
		declared := m.DependencyVersion(pkg)
		if semver.IsValid(canonicalVersion(declared)) {
			dep.RequiredVersion = declared
		}
		shared[pkg] = dep
	}
	return shared
}

// canonicalVersion strips a leading range operator from a declared npm
// version so it can be checked as "vMAJOR.MINOR.PATCH".
func canonicalVersion(declared string) string {
	v := strings.TrimSpace(declared)
	v = strings.TrimLeft(v, "^~>=<")
	v = strings.TrimPrefix(strings.TrimSpace(v), "v")
	if v == "" {
		return ""
	}
	return "v" + v
}

// Decode converts a loaded document to a typed config with no defaults
// applied. A nil l decodes to the zero config.
func Decode(l *Loaded) (ResolvedConfig, error) {
	if l == nil {
		return ResolvedConfig{}, nil
	}
	return merge(ResolvedConfig{}, l.Config, l.FilePath)
}

func manifestOf(info *detect.ProjectInfo) *detect.Manifest {
	if info == nil {
		return nil
	}
	return info.Manifest
}

// merge lays doc's keys over base and decodes the result. Keys absent from
// doc keep their default.
func merge(base ResolvedConfig, doc map[string]any, source string) (ResolvedConfig, error) {
	if len(doc) == 0 {
		return base, nil
	}

	data, err := json.Marshal(base)
	if err != nil {
		return ResolvedConfig{}, fmt.Errorf("encode defaults: %w", err)
	}
	var layered map[string]any
	if err := json.Unmarshal(data, &layered); err != nil {
		return ResolvedConfig{}, fmt.Errorf("decode defaults: %w", err)
	}
	for k, v := range doc {
		layered[k] = v
	}

	data, err = json.Marshal(layered)
	if err != nil {
		return ResolvedConfig{}, fmt.Errorf("encode config: %w", err)
	}
	var cfg ResolvedConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return ResolvedConfig{}, &ValidationError{
				Field:   typeErr.Field,
				Source:  source,
				Message: fmt.Sprintf("must be %s, got %s", typeErr.Type, typeErr.Value),
			}
		}
		return ResolvedConfig{}, &ValidationError{Field: "config", Source: source, Message: err.Error()}
	}
	return cfg, nil
}

// applyOverrides writes set override fields into cfg and returns their
// JSON keys.
func applyOverrides(cfg *ResolvedConfig, o Overrides) []string {
	var keys []string
	if o.Role != nil {
		cfg.Role = *o.Role
		keys = append(keys, "role")
	}
	if o.Name != nil {
		cfg.Name = *o.Name
		keys = append(keys, "name")
	}
	if o.Port != nil {
		cfg.Port = *o.Port
		keys = append(keys, "port")
	}
	if o.BuildTarget != nil {
		cfg.BuildTarget = *o.BuildTarget
		keys = append(keys, "buildTarget")
	}
	if o.Exposes != nil {
		cfg.Exposes = o.Exposes
		keys = append(keys, "exposes")
	}
	if o.Remotes != nil {
		cfg.Remotes = o.Remotes
		keys = append(keys, "remotes")
	}
	if o.Shared != nil {
		cfg.Shared = o.Shared
		keys = append(keys, "shared")
	}
	return keys
}
