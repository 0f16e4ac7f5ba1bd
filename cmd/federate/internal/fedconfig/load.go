// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package fedconfig locates, loads, validates and merges federation
// configuration for a project.
//
// # Source Priority
//
// Exactly one file source is loaded per resolution, first match wins:
//
//  1. An explicit path from the caller. Missing is fatal (ErrConfigNotFound).
//  2. federation.config.json, then .federationrc.json in the project dir.
//  3. The "federation" object in package.json.
//
// Nothing found is not an error: Load returns (nil, nil). Callers rely on
// that difference to tell "you told me where to look" from "I looked by
// convention and found nothing."
//
// # Precedence
//
// Resolve layers overrides > the loaded source > defaults derived from the
// detected project.
package fedconfig

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/AleutianAI/federate/cmd/federate/internal/detect"
)

// Load finds and parses the single config source for projectDir.
//
// # Inputs
//
//   - projectDir: Project root. Relative explicit paths resolve against it.
//   - explicitPath: Optional caller-supplied path. Empty means probe by
//     convention.
//
// # Outputs
//
//   - *Loaded: The source path and normalized document, or nil when no
//     source exists.
//   - error: ErrConfigNotFound for a missing explicit path, a *ParseError
//     (matching ErrConfigParse) for malformed JSON, or an I/O error.
func Load(projectDir, explicitPath string) (*Loaded, error) {
	if explicitPath != "" {
		path := explicitPath
		if !filepath.IsAbs(path) {
			path = filepath.Join(projectDir, path)
		}
		if _, err := os.Stat(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, path)
			}
			return nil, fmt.Errorf("stat config %s: %w", path, err)
		}
		return loadFile(path)
	}

	for _, name := range ConventionFiles {
		path := filepath.Join(projectDir, name)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		return loadFile(path)
	}

	return loadManifestKey(projectDir)
}

// ConventionPath returns the path of the highest-priority convention file
// for projectDir, whether or not it exists.
func ConventionPath(projectDir string) string {
	return filepath.Join(projectDir, ConventionFiles[0])
}

// ManifestSourcePath returns the synthetic source path for a config embedded
// in projectDir's package.json.
func ManifestSourcePath(projectDir string) string {
	return filepath.Join(projectDir, detect.ManifestFileName) + ManifestKeySuffix
}

func loadFile(path string) (*Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	doc, err := decodeObject(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	return &Loaded{FilePath: path, Config: NormalizePort(doc)}, nil
}

func loadManifestKey(projectDir string) (*Loaded, error) {
	path := filepath.Join(projectDir, detect.ManifestFileName)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	manifest, err := detect.ParseManifest(data)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if manifest.Federation == nil {
		return nil, nil
	}
	return &Loaded{FilePath: ManifestSourcePath(projectDir), Config: NormalizePort(manifest.Federation)}, nil
}

// decodeObject parses data as a single JSON object, keeping numbers as
// json.Number so integer ports and versions survive exactly.
func decodeObject(data []byte) (map[string]any, error) {
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
		return nil, fmt.Errorf("top-level value must be an object, got %s", jsonKind(v))
	}
	return obj, nil
}

// NormalizePort returns a shallow copy of doc with an integer port
// rewritten in its canonical string form. doc itself is never modified.
// Non-integer ports are left for Validate to reject.
func NormalizePort(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}

	switch p := doc["port"].(type) {
	case json.Number:
		if n, err := p.Int64(); err == nil {
			out["port"] = fmt.Sprintf("%d", n)
		}
	case float64:
		if p == float64(int64(p)) {
			out["port"] = fmt.Sprintf("%d", int64(p))
		}
	}
	return out
}

func jsonKind(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "boolean"
	case json.Number, float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
