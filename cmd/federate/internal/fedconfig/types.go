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

import "strings"

// SchemaVersion is the config document version this package writes.
const SchemaVersion = 1

// Convention file names, in priority order. Only the first existing one is
// ever loaded.
var ConventionFiles = []string{
	"federation.config.json",
	".federationrc.json",
}

// ManifestKeySuffix is appended to the manifest path to form the synthetic
// source path of a config embedded in package.json.
const ManifestKeySuffix = "#federation"

// SourceOverrides labels values supplied by the caller rather than a file.
const SourceOverrides = "overrides"

// SourceDefaults labels a config built only from defaults.
const SourceDefaults = "defaults"

// Role is whether a project exposes modules or consumes them.
type Role string

const (
	RoleRemote Role = "remote"
	RoleHost   Role = "host"
)

// Valid reports whether r is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleRemote || r == RoleHost
}

// BuildTargets lists the accepted buildTarget values.
var BuildTargets = []string{"esnext", "es2022", "es2021", "es2020", "chrome89"}

// DefaultBuildTarget is used when no source sets buildTarget.
const DefaultBuildTarget = "esnext"

// Default dev-server ports by role.
const (
	DefaultRemotePort = "5001"
	DefaultHostPort   = "5000"
)

// ResolvedConfig is the merged, typed federation configuration.
//
// Field names and JSON keys match the config file schema so a
// ResolvedConfig can be written back to a convention file unchanged.
type ResolvedConfig struct {
	Version        int                    `json:"version,omitempty"`
	Role           Role                   `json:"role,omitempty" validate:"omitempty,oneof=remote host"`
	Name           string                 `json:"name,omitempty" validate:"omitempty,fedname"`
	Port           string                 `json:"port,omitempty" validate:"omitempty,fedport"`
	BuildTarget    string                 `json:"buildTarget,omitempty" validate:"omitempty,oneof=esnext es2022 es2021 es2020 chrome89"`
	Manifest       *bool                  `json:"manifest,omitempty"`
	DTS            *bool                  `json:"dts,omitempty"`
	Dev            *bool                  `json:"dev,omitempty"`
	RuntimePlugins []string               `json:"runtimePlugins,omitempty"`
	GetPublicPath  string                 `json:"getPublicPath,omitempty"`
	Exposes        map[string]string      `json:"exposes,omitempty"`
	Remotes        map[string]RemoteEntry `json:"remotes,omitempty" validate:"omitempty,dive"`
	Shared         map[string]SharedDep   `json:"shared,omitempty"`
}

// RemoteEntry is one remote module a host consumes.
type RemoteEntry struct {
	Entry           string `json:"entry" validate:"required"`
	Type            string `json:"type,omitempty"`
	EntryGlobalName string `json:"entryGlobalName,omitempty"`
	ShareScope      string `json:"shareScope,omitempty"`
}

// SharedDep configures how a dependency is shared between containers.
type SharedDep struct {
	Singleton       *bool  `json:"singleton,omitempty"`
	RequiredVersion string `json:"requiredVersion,omitempty"`
	Eager           *bool  `json:"eager,omitempty"`
}

// Loaded is a config document and the path it was read from.
//
// Config is the normalized document: a copy of the parsed JSON object with
// an integer port rewritten as a string. Numbers are json.Number.
type Loaded struct {
	FilePath string
	Config   map[string]any
}

// FromManifest reports whether the document came from the package.json
// reserved key.
func (l *Loaded) FromManifest() bool {
	return l != nil && strings.HasSuffix(l.FilePath, ManifestKeySuffix)
}

// Overrides are caller-supplied values that beat every other source.
// A nil field is unset.
type Overrides struct {
	Role        *Role
	Name        *string
	Port        *string
	BuildTarget *string
	Exposes     map[string]string
	Remotes     map[string]RemoteEntry
	Shared      map[string]SharedDep
}

// IsZero reports whether no override is set.
func (o Overrides) IsZero() bool {
	return o.Role == nil && o.Name == nil && o.Port == nil && o.BuildTarget == nil &&
		o.Exposes == nil && o.Remotes == nil && o.Shared == nil
}

// OverrideKeys are the JSON keys Overrides can carry, in schema order.
var OverrideKeys = []string{"role", "name", "port", "buildTarget", "exposes", "remotes", "shared"}

// OverridesFrom returns Overrides for the override keys set in a partial
// config. Empty strings and nil maps are unset.
func OverridesFrom(cfg ResolvedConfig) Overrides {
	var o Overrides
	if cfg.Role != "" {
		role := cfg.Role
		o.Role = &role
	}
	if cfg.Name != "" {
		name := cfg.Name
		o.Name = &name
	}
	if cfg.Port != "" {
		port := cfg.Port
		o.Port = &port
	}
	if cfg.BuildTarget != "" {
		target := cfg.BuildTarget
		o.BuildTarget = &target
	}
	o.Exposes = cfg.Exposes
	o.Remotes = cfg.Remotes
	o.Shared = cfg.Shared
	return o
}

func boolPtr(b bool) *bool { return &b }
