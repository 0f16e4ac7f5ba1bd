// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package detect inspects a project directory and reports what it finds.
//
// Detection only reads. Each check runs on its own so an unreadable file
// degrades one answer instead of the whole snapshot. A directory without a
// readable package.json is "not a project" and yields a nil *ProjectInfo.
package detect

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/AleutianAI/federate/pkg/logging"
)

// Detector produces ProjectInfo snapshots.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a Detector. A nil logger discards debug output.
func NewDetector(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Detector{logger: logger}
}

// Detect inspects dir using a Detector without logging.
func Detect(dir string) *ProjectInfo {
	return NewDetector(nil).Detect(dir)
}

// Detect inspects dir and returns a fresh snapshot.
//
// # Outputs
//
//   - *ProjectInfo: The snapshot, or nil if dir has no package.json or it
//     is not a JSON object.
func (d *Detector) Detect(dir string) *ProjectInfo {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}

	manifest, ok := d.readManifest(dir)
	if !ok {
		return nil
	}

	info := &ProjectInfo{
		Dir:            dir,
		PackageManager: d.detectPackageManager(dir),
		Manifest:       manifest,
		ViteConfig:     d.findBuildConfig(dir),
		HasTailwind:    manifest.HasDependency(TailwindPluginPackage),
		SourceDir:      detectSourceDir(dir),
	}
	if info.ViteConfig != nil {
		info.HasFederation = d.hasFederation(info.ViteConfig.Path)
	}

	d.logger.Debug("project detected",
		slog.String("dir", dir),
		slog.String("package_manager", string(info.PackageManager)),
		slog.Bool("has_build_config", info.ViteConfig != nil),
		slog.Bool("has_federation", info.HasFederation),
	)
	return info
}

// ReadManifest parses dir/package.json.
//
// Returns nil when the file is missing or not a JSON object.
func ReadManifest(dir string) *Manifest {
	m, _ := NewDetector(nil).readManifest(dir)
	return m
}

func (d *Detector) readManifest(dir string) (*Manifest, bool) {
	path := filepath.Join(dir, ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		d.logger.Debug("no package manifest", slog.String("path", path), slog.String("error", err.Error()))
		return nil, false
	}

	m, err := ParseManifest(data)
	if err != nil {
		d.logger.Debug("malformed package manifest", slog.String("path", path), slog.String("error", err.Error()))
		return nil, false
	}
	return m, true
}

// ParseManifest decodes package.json content.
//
// # Description
//
// The content must be a single JSON object. Fields the tool reads are
// picked out individually: a field of an unexpected type is ignored
// rather than failing the whole manifest. Numbers are kept as json.Number
// so the reserved key reaches the config loader exactly as written.
//
// # Outputs
//
//   - *Manifest: The picked fields.
//   - error: Malformed JSON or a non-object top-level value.
func ParseManifest(data []byte) (*Manifest, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("unexpected data after top-level value")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, errors.New("top-level value must be an object")
	}

	m := &Manifest{
		Name:            scalar(obj["name"]),
		Version:         scalar(obj["version"]),
		Dependencies:    stringMap(obj["dependencies"]),
		DevDependencies: stringMap(obj["devDependencies"]),
	}
	m.Federation, _ = obj[ReservedKey].(map[string]any)
	return m, nil
}

func scalar(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case json.Number:
		return s.String()
	}
	return ""
}

// stringMap keeps the string-valued entries of a JSON object.
func stringMap(v any) map[string]string {
	obj, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	out := make(map[string]string, len(obj))
	for k, val := range obj {
		if s, ok := val.(string); ok {
			out[k] = s
		}
	}
	return out
}

func (d *Detector) detectPackageManager(dir string) PackageManager {
	for _, lf := range lockFiles {
		if fileExists(filepath.Join(dir, lf.name)) {
			return lf.manager
		}
	}
	return DefaultPackageManager
}

func (d *Detector) findBuildConfig(dir string) *BuildConfigFile {
	for _, c := range buildConfigCandidates {
		path := filepath.Join(dir, c.name)
		if fileExists(path) {
			return &BuildConfigFile{Path: path, Dialect: c.dialect}
		}
	}
	return nil
}

// hasFederation is a text check on the build config, not a parse.
func (d *Detector) hasFederation(path string) bool {
	data, err := os.ReadFile(path)
	if err != nil {
		d.logger.Debug("build config unreadable, skipping federation check",
			slog.String("path", path), slog.String("error", err.Error()))
		return false
	}
	return ContainsFederation(string(data))
}

// ContainsFederation reports whether build config text imports the
// federation plugin or calls its setup function.
func ContainsFederation(text string) bool {
	return strings.Contains(text, FederationPackage) || strings.Contains(text, FederationCall)
}

func detectSourceDir(dir string) string {
	for _, name := range sourceDirCandidates {
		if info, err := os.Stat(filepath.Join(dir, name)); err == nil && info.IsDir() {
			return name
		}
	}
	return sourceDirCandidates[0]
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
