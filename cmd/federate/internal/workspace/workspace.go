// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace handles multi-app workspaces described by a
// federation.workspace.json file at the workspace root:
//
//	{
//	  "apps": [
//	    {"dir": "apps/shell", "role": "host", "port": 5000},
//	    {"dir": "apps/checkout", "role": "remote"}
//	  ]
//	}
//
// Each entry resolves as its own project. Config keys on an entry act as
// overrides for that app.
package workspace

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/AleutianAI/federate/cmd/federate/internal/fedconfig"
	"github.com/AleutianAI/federate/cmd/federate/internal/validate"
)

// FileName is the workspace file looked up in the workspace root.
const FileName = "federation.workspace.json"

var (
	// ErrNoWorkspace means the root has no workspace file.
	ErrNoWorkspace = errors.New("no " + FileName + " found")

	// ErrInvalidWorkspace wraps malformed or invalid workspace files.
	ErrInvalidWorkspace = errors.New("invalid workspace file")
)

// Workspace is a parsed workspace file.
type Workspace struct {
	// Root is the directory holding the workspace file.
	Root string `json:"root"`

	// Path is the workspace file path.
	Path string `json:"path"`

	Apps []AppEntry `json:"apps" validate:"required,min=1,dive"`
}

// AppEntry is one app of a workspace: its directory, relative to the
// workspace root, plus a partial config.
type AppEntry struct {
	Dir string `json:"dir" validate:"required"`

	// Config holds the entry's other keys, normalized like a loaded
	// config document.
	Config map[string]any `json:"-"`
}

// UnmarshalJSON splits "dir" from the config keys.
func (e *AppEntry) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return errors.New("app entry must be an object")
	}

	if dir, ok := raw["dir"]; ok {
		s, isString := dir.(string)
		if !isString {
			return fmt.Errorf("dir must be a string, got %v", dir)
		}
		e.Dir = s
		delete(raw, "dir")
	}
	e.Config = fedconfig.NormalizePort(raw)
	return nil
}

// MarshalJSON writes the entry back as a single flat object.
func (e AppEntry) MarshalJSON() ([]byte, error) {
	flat := make(map[string]any, len(e.Config)+1)
	for k, v := range e.Config {
		flat[k] = v
	}
	flat["dir"] = e.Dir
	return json.Marshal(flat)
}

// Path returns the entry's absolute directory under root.
func (e AppEntry) Path(root string) string {
	if filepath.IsAbs(e.Dir) {
		return filepath.Clean(e.Dir)
	}
	return filepath.Join(root, e.Dir)
}

// Overrides validates the entry's config keys and converts them to
// fedconfig.Overrides. Keys that Overrides cannot carry are rejected
// rather than dropped.
func (e AppEntry) Overrides(source string) (fedconfig.Overrides, error) {
	for key := range e.Config {
		if !slices.Contains(fedconfig.OverrideKeys, key) {
			return fedconfig.Overrides{}, &fedconfig.ValidationError{
				Field:   key,
				Source:  source,
				Message: "cannot be set in a workspace entry; put it in the app's config file",
			}
		}
	}
	if err := fedconfig.Validate(e.Config, source); err != nil {
		return fedconfig.Overrides{}, err
	}
	cfg, err := fedconfig.Decode(&fedconfig.Loaded{FilePath: source, Config: e.Config})
	if err != nil {
		return fedconfig.Overrides{}, err
	}
	return fedconfig.OverridesFrom(cfg), nil
}

// Load reads root's workspace file.
//
// # Outputs
//
//   - *Workspace: The parsed workspace, with Root and Path set.
//   - error: ErrNoWorkspace when the file is missing, ErrInvalidWorkspace
//     wrapping parse or validation failures.
func Load(root string) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	path := filepath.Join(abs, FileName)

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w in %s", ErrNoWorkspace, abs)
	}
	if err != nil {
		return nil, fmt.Errorf("read workspace %s: %w", path, err)
	}

	return Parse(data, abs, path)
}

// Parse decodes workspace file content. root is used for entry paths and
// path for messages.
func Parse(data []byte, root, path string) (*Workspace, error) {
	ws := &Workspace{Root: root, Path: path}
	if err := json.Unmarshal(data, ws); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidWorkspace, path, err)
	}
	ws.Root, ws.Path = root, path

	if err := validate.Struct(ws); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidWorkspace, path, err)
	}

	seen := make(map[string]int, len(ws.Apps))
	for i, app := range ws.Apps {
		dir := app.Path(root)
		if j, dup := seen[dir]; dup {
			return nil, fmt.Errorf("%w: %s: apps[%d] and apps[%d] both use %s", ErrInvalidWorkspace, path, j, i, app.Dir)
		}
		seen[dir] = i
	}
	return ws, nil
}

// EntrySource labels diagnostics for the i-th entry.
func (w *Workspace) EntrySource(i int) string {
	return fmt.Sprintf("%s#apps[%d]", w.Path, i)
}
