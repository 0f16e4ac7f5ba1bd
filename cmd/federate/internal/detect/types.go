// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package detect

import "github.com/AleutianAI/federate/cmd/federate/internal/validate"

// ManifestFileName is the package manifest that marks a project directory.
const ManifestFileName = validate.ManifestFileName

// ReservedKey is the top-level manifest key that may embed a federation
// configuration object.
const ReservedKey = "federation"

// Package names whose presence drives detection.
const (
	TailwindPluginPackage = "@tailwindcss/vite"
	FederationPackage     = "@module-federation/vite"
	FederationCall        = "federation("
)

// PackageManager identifies the JavaScript package manager a project uses.
type PackageManager string

// Known package managers. DefaultPackageManager applies when no lock file
// is present.
const (
	PackageManagerNPM  PackageManager = "npm"
	PackageManagerPNPM PackageManager = "pnpm"
	PackageManagerYarn PackageManager = "yarn"
	PackageManagerBun  PackageManager = "bun"

	DefaultPackageManager = PackageManagerNPM
)

// lockFiles is probed in order; the first existing file wins.
var lockFiles = []struct {
	name    string
	manager PackageManager
}{
	{"pnpm-lock.yaml", PackageManagerPNPM},
	{"yarn.lock", PackageManagerYarn},
	{"bun.lockb", PackageManagerBun},
}

// Dialect is the scripting flavor of a build config file.
type Dialect string

const (
	DialectTS Dialect = "ts"
	DialectJS Dialect = "js"
)

// buildConfigCandidates is probed in order; the first existing file wins.
var buildConfigCandidates = []struct {
	name    string
	dialect Dialect
}{
	{"vite.config.ts", DialectTS},
	{"vite.config.mts", DialectTS},
	{"vite.config.js", DialectJS},
	{"vite.config.mjs", DialectJS},
	{"vite.config.cjs", DialectJS},
}

// sourceDirCandidates is probed in order. The first entry is also the
// fallback when none exist.
var sourceDirCandidates = []string{"src", "app"}

// BuildConfigFile locates the project's build tool configuration.
type BuildConfigFile struct {
	Path    string  `json:"path"`
	Dialect Dialect `json:"dialect"`
}

// Manifest is the subset of package.json the tool reads.
type Manifest struct {
	Name            string            `json:"name,omitempty"`
	Version         string            `json:"version,omitempty"`
	Dependencies    map[string]string `json:"dependencies,omitempty"`
	DevDependencies map[string]string `json:"devDependencies,omitempty"`

	// Federation is the reserved key when it holds an object, with numbers
	// as json.Number. Nil otherwise.
	Federation map[string]any `json:"federation,omitempty"`
}

// HasDependency reports whether pkg is listed as a production or
// development dependency.
func (m *Manifest) HasDependency(pkg string) bool {
	if m == nil {
		return false
	}
	if _, ok := m.Dependencies[pkg]; ok {
		return true
	}
	_, ok := m.DevDependencies[pkg]
	return ok
}

// DependencyVersion returns the declared version range for pkg, preferring
// production dependencies. Returns "" if pkg is not listed.
func (m *Manifest) DependencyVersion(pkg string) string {
	if m == nil {
		return ""
	}
	if v, ok := m.Dependencies[pkg]; ok {
		return v
	}
	return m.DevDependencies[pkg]
}

// ProjectInfo is an immutable snapshot of what Detect found in a directory.
//
// # Fields
//
//   - Dir: Absolute project directory.
//   - PackageManager: Inferred from lock files.
//   - Manifest: Parsed package.json. Never nil.
//   - ViteConfig: Build config file, or nil if none of the candidates exist.
//   - HasTailwind: The Tailwind v4 build plugin is a dependency.
//   - SourceDir: "src" or "app"; a guess when neither exists.
//   - HasFederation: The build config already references federation.
type ProjectInfo struct {
	Dir            string           `json:"dir"`
	PackageManager PackageManager   `json:"packageManager"`
	Manifest       *Manifest        `json:"packageJson"`
	ViteConfig     *BuildConfigFile `json:"viteConfig"`
	HasTailwind    bool             `json:"hasTailwind"`
	SourceDir      string           `json:"srcDir"`
	HasFederation  bool             `json:"hasFederation"`
}
