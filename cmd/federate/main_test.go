// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/federate/cmd/federate/internal/fedconfig"
	"github.com/AleutianAI/federate/cmd/federate/internal/lock"
	"github.com/AleutianAI/federate/cmd/federate/internal/workspace"
	"github.com/AleutianAI/federate/cmd/federate/settings"
)

// =============================================================================
// Harness
// =============================================================================

type cliResult struct {
	code   int
	stdout string
	stderr string
}

// envelope decodes the --json output.
func (r cliResult) envelope(t *testing.T) (CommandResult, map[string]any) {
	t.Helper()
	var res CommandResult
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &res), "stdout: %s", r.stdout)
	data, _ := res.Data.(map[string]any)
	return res, data
}

// cli runs federate in-process with a private settings file location.
func cli(t *testing.T, env map[string]string, args ...string) cliResult {
	t.Helper()
	vars := map[string]string{settings.EnvSettingsPath: filepath.Join(t.TempDir(), "settings.yaml")}
	for k, v := range env {
		vars[k] = v
	}
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr, func(k string) string { return vars[k] })
	return cliResult{code: code, stdout: stdout.String(), stderr: stderr.String()}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

const checkoutConfig = `{"role":"remote","name":"checkout","exposes":{"./Cart":"./src/Cart.tsx"}}`

// newProject creates a remote project with a valid, lint-clean config.
func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{"name":"@acme/checkout","dependencies":{"react":"^18.2.0"}}`)
	writeFile(t, dir, "pnpm-lock.yaml", "")
	writeFile(t, dir, "federation.config.json", checkoutConfig)
	writeFile(t, dir, "src/Cart.tsx", "export {}\n")
	return dir
}

func viteConfig(name string) string {
	return `import { federation } from '@module-federation/vite'
export default {
  plugins: [federation({
    name: '` + name + `',
    exposes: { './Cart': './src/Cart.tsx' },
  })],
}
`
}

// =============================================================================
// Exit Codes
// =============================================================================

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, exitCode(nil))
	assert.Equal(t, ExitFailure, exitCode(failure("%d finding(s)", 2)))
	assert.Equal(t, ExitFailure, exitCode(errors.Join(errors.New("x"), failure("y"))))
	assert.Equal(t, ExitFatal, exitCode(errors.New("boom")))
}

func TestCLI_UnknownCommand(t *testing.T) {
	r := cli(t, nil, "frobnicate")
	assert.Equal(t, ExitFatal, r.code)
	assert.Contains(t, r.stderr, "unknown command")
}

func TestCLI_BadArgs(t *testing.T) {
	r := cli(t, nil, "detect", "a", "b")
	assert.Equal(t, ExitFatal, r.code)
}

func TestCLI_Version(t *testing.T) {
	r := cli(t, nil, "--version")
	assert.Equal(t, ExitOK, r.code)
	assert.Contains(t, r.stdout, "federate version "+version)
}

// =============================================================================
// detect
// =============================================================================

func TestDetect_JSON(t *testing.T) {
	dir := newProject(t)

	r := cli(t, nil, "detect", dir, "--json")
	require.Equal(t, ExitOK, r.code, r.stderr)

	res, data := r.envelope(t)
	assert.Equal(t, "detect", res.Command)
	assert.True(t, res.OK)
	assert.Equal(t, "pnpm", data["packageManager"])
	assert.Equal(t, "src", data["srcDir"])
	assert.Equal(t, false, data["hasFederation"])
}

func TestDetect_Human(t *testing.T) {
	dir := newProject(t)
	writeFile(t, dir, "vite.config.ts", viteConfig("checkout"))

	r := cli(t, nil, "detect", dir)
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "@acme/checkout")
	assert.Contains(t, r.stdout, "vite.config.ts (ts)")
	assert.Regexp(t, `federation:\s+yes`, r.stdout)
}

func TestDetect_NotAProject(t *testing.T) {
	r := cli(t, nil, "detect", t.TempDir(), "--json")
	assert.Equal(t, ExitFailure, r.code)

	res, _ := r.envelope(t)
	assert.False(t, res.OK)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "not a project")
}

func TestDetect_NotAProjectReasons(t *testing.T) {
	notObject := t.TempDir()
	writeFile(t, notObject, "package.json", "[]")
	noManifest := t.TempDir()

	tests := []struct {
		name string
		dir  string
		want string
	}{
		{"missing dir", filepath.Join(t.TempDir(), "gone"), "does not exist"},
		{"no manifest", noManifest, "no package.json found"},
		{"manifest not an object", notObject, "package.json is not a JSON object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := cli(t, nil, "detect", tt.dir)
			assert.Equal(t, ExitFailure, r.code)
			assert.Contains(t, r.stderr+r.stdout, tt.want)
		})
	}
}

// =============================================================================
// config
// =============================================================================

func TestConfigShow_Overrides(t *testing.T) {
	dir := newProject(t)

	r := cli(t, nil, "config", "show", dir, "--json", "--port", "6100", "--name", "cart")
	require.Equal(t, ExitOK, r.code, r.stderr)

	_, data := r.envelope(t)
	cfg := data["config"].(map[string]any)
	assert.Equal(t, "6100", cfg["port"])
	assert.Equal(t, "cart", cfg["name"])
	assert.Equal(t, "remote", cfg["role"])
	assert.Equal(t, filepath.Join(dir, "federation.config.json"), data["source"])
	assert.Equal(t, []any{"name", "port"}, data["overridden"])
}

func TestConfigShow_Human(t *testing.T) {
	dir := newProject(t)

	r := cli(t, nil, "config", "show", dir)
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "federation.config.json")
	assert.Contains(t, r.stdout, `"name": "checkout"`)
}

func TestConfigShow_InvalidOverrideIsFatal(t *testing.T) {
	dir := newProject(t)

	r := cli(t, nil, "config", "show", dir, "--json", "--port", "80")
	assert.Equal(t, ExitFatal, r.code)

	res, _ := r.envelope(t)
	assert.Equal(t, "config show", res.Command)
	assert.False(t, res.OK)
	require.NotEmpty(t, res.Errors)
	assert.Contains(t, res.Errors[0], "port")
	assert.Contains(t, res.Errors[0], fedconfig.SourceOverrides)
}

func TestConfigShow_ExplicitMissing(t *testing.T) {
	dir := newProject(t)
	r := cli(t, nil, "config", "show", dir, "--config", "nope.json")
	assert.Equal(t, ExitFatal, r.code)
	assert.Contains(t, r.stderr, "nope.json")
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name   string
		config string
		code   int
		want   string
	}{
		{"clean", checkoutConfig, ExitOK, ""},
		{"missing expose", `{"role":"remote","exposes":{"./Gone":"./src/Gone.tsx"}}`, ExitFailure, "exposes../Gone"},
		{"host without remotes", `{"role":"host"}`, ExitFailure, "remotes"},
		{"invalid", `{"role":"sidecar"}`, ExitFatal, "role"},
		{"malformed", `{"role":`, ExitFatal, "federation.config.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := newProject(t)
			writeFile(t, dir, "federation.config.json", tt.config)

			r := cli(t, nil, "config", "validate", dir, "--json")
			assert.Equal(t, tt.code, r.code, r.stdout+r.stderr)
			res, _ := r.envelope(t)
			assert.Equal(t, tt.code == ExitOK, res.OK)
			if tt.want != "" {
				assert.Contains(t, strings.Join(res.Errors, "\n"), tt.want)
			}
		})
	}
}

func TestConfigWrite_DryRunTouchesNothing(t *testing.T) {
	dir := newProject(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "federation.config.json")))

	r := cli(t, nil, "config", "write", dir, "--dry-run", "--json", "--role", "host")
	require.Equal(t, ExitOK, r.code, r.stderr)

	_, data := r.envelope(t)
	assert.Equal(t, true, data["dryRun"])
	changes := data["preview"].(map[string]any)["changes"].([]any)
	require.Len(t, changes, 1)
	assert.Equal(t, "create", changes[0].(map[string]any)["kind"])

	assert.NoFileExists(t, filepath.Join(dir, "federation.config.json"))
}

func TestConfigWrite_WritesAndResolvesBack(t *testing.T) {
	dir := newProject(t)
	require.NoError(t, os.Remove(filepath.Join(dir, "federation.config.json")))

	r := cli(t, nil, "config", "write", dir, "--port", "6200")
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "1 applied")
	assert.NoFileExists(t, filepath.Join(dir, lock.FileName))

	r = cli(t, nil, "config", "show", dir, "--json")
	require.Equal(t, ExitOK, r.code, r.stderr)
	_, data := r.envelope(t)
	assert.Equal(t, filepath.Join(dir, "federation.config.json"), data["source"])
	assert.Equal(t, "6200", data["config"].(map[string]any)["port"])
	assert.Equal(t, "checkout", data["config"].(map[string]any)["name"])
}

// =============================================================================
// apply
// =============================================================================

func writePlan(t *testing.T, plan string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, []byte(plan), 0644))
	return path
}

func TestApply_MixedPlan(t *testing.T) {
	dir := newProject(t)
	writeFile(t, dir, "old.config.js", "old\n")
	plan := writePlan(t, `{"operations":[
		{"type":"write","path":"vite.config.ts","content":"export default {}\n"},
		{"type":"write","path":"src/bootstrap.tsx","content":"import('./main')\n"},
		{"type":"delete","path":"old.config.js"}
	]}`)

	r := cli(t, nil, "apply", plan, dir, "--json")
	require.Equal(t, ExitOK, r.code, r.stderr)

	_, data := r.envelope(t)
	result := data["result"].(map[string]any)
	assert.Equal(t, []any{"vite.config.ts", filepath.Join("src", "bootstrap.tsx"), "(deleted) old.config.js"}, result["applied"])

	assert.Equal(t, "export default {}\n", readFile(t, filepath.Join(dir, "vite.config.ts")))
	assert.FileExists(t, filepath.Join(dir, "src", "bootstrap.tsx"))
	assert.NoFileExists(t, filepath.Join(dir, "old.config.js"))
	assert.NoFileExists(t, filepath.Join(dir, lock.FileName))
}

func TestApply_HumanProgress(t *testing.T) {
	dir := newProject(t)
	plan := writePlan(t, `{"operations":[{"type":"write","path":"a.txt","content":"A"}]}`)

	r := cli(t, nil, "apply", plan, dir)
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "✓ "+filepath.Join(dir, "a.txt"))
	assert.Contains(t, r.stdout, "1 applied  0 failed")
}

func TestApply_DryRunShowsDiff(t *testing.T) {
	dir := newProject(t)
	writeFile(t, dir, "a.txt", "one\n")
	plan := writePlan(t, `{"operations":[{"type":"write","path":"a.txt","content":"two\n"}]}`)

	r := cli(t, nil, "apply", plan, dir, "--dry-run")
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "-one")
	assert.Contains(t, r.stdout, "+two")
	assert.Contains(t, r.stdout, "1 file(s) would change")
	assert.Equal(t, "one\n", readFile(t, filepath.Join(dir, "a.txt")))
}

func TestApply_InvalidPlanIsFatal(t *testing.T) {
	dir := newProject(t)
	plan := writePlan(t, `{"operations":[{"type":"chmod","path":"a.txt"}]}`)

	r := cli(t, nil, "apply", plan, dir)
	assert.Equal(t, ExitFatal, r.code)
	assert.Contains(t, r.stderr, "chmod")
}

func TestApply_PartialFailureExitsOne(t *testing.T) {
	dir := newProject(t)
	// A non-empty directory cannot be deleted by the engine.
	writeFile(t, dir, "busy/keep.txt", "x")
	plan := writePlan(t, `{"operations":[
		{"type":"write","path":"a.txt","content":"A"},
		{"type":"delete","path":"busy"}
	]}`)

	r := cli(t, nil, "apply", plan, dir, "--json")
	assert.Equal(t, ExitFailure, r.code)

	res, data := r.envelope(t)
	assert.False(t, res.OK)
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, []any{"a.txt"}, data["result"].(map[string]any)["applied"])
	assert.FileExists(t, filepath.Join(dir, "a.txt"))
}

func TestApply_LockedProject(t *testing.T) {
	dir := newProject(t)
	held, err := lock.New(dir)
	require.NoError(t, err)
	require.NoError(t, held.Acquire())
	defer held.Release()

	plan := writePlan(t, `{"operations":[{"type":"write","path":"a.txt","content":"A"}]}`)
	r := cli(t, nil, "apply", plan, dir)
	assert.Equal(t, ExitFatal, r.code)
	assert.Contains(t, r.stderr, "locked")
	assert.NoFileExists(t, filepath.Join(dir, "a.txt"))
}

func TestApply_LeftoverLockFile(t *testing.T) {
	dir := newProject(t)
	writeFile(t, dir, lock.FileName, `{"pid":2147483646,"acquired_at":"2020-01-01T00:00:00Z"}`)

	plan := writePlan(t, `{"operations":[{"type":"write","path":"a.txt","content":"A"}]}`)
	r := cli(t, nil, "apply", plan, dir)
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.NotContains(t, r.stderr, "stale")
	assert.FileExists(t, filepath.Join(dir, "a.txt"))
	assert.NoFileExists(t, filepath.Join(dir, lock.FileName))
}

func TestApply_OldHeldLockIsNotBroken(t *testing.T) {
	dir := newProject(t)
	held, err := lock.New(dir)
	require.NoError(t, err)
	require.NoError(t, held.Acquire())
	defer held.Release()
	// Still locked, but the record says it was taken long ago.
	writeFile(t, dir, lock.FileName, `{"pid":1,"acquired_at":"2020-01-01T00:00:00Z"}`)

	plan := writePlan(t, `{"operations":[{"type":"write","path":"a.txt","content":"A"}]}`)
	r := cli(t, nil, "apply", plan, dir)
	assert.Equal(t, ExitFatal, r.code)
	assert.Contains(t, r.stderr, "locked")
	assert.NotContains(t, r.stderr, "breaking stale lock")
	assert.NoFileExists(t, filepath.Join(dir, "a.txt"))
	assert.FileExists(t, filepath.Join(dir, lock.FileName))
}

func TestApply_MetricsFile(t *testing.T) {
	dir := newProject(t)
	plan := writePlan(t, `{"operations":[{"type":"write","path":"a.txt","content":"A"}]}`)
	metrics := filepath.Join(t.TempDir(), "federate.prom")

	r := cli(t, nil, "apply", plan, dir, "--metrics-file", metrics)
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Contains(t, readFile(t, metrics), "federate_mutate_operations_total")
}

func TestApply_Trace(t *testing.T) {
	dir := newProject(t)
	plan := writePlan(t, `{"operations":[{"type":"write","path":"a.txt","content":"A"}]}`)

	r := cli(t, nil, "apply", plan, dir, "--trace", "--json")
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Contains(t, r.stderr, `"Name": "mutate.apply"`)
}

// =============================================================================
// status
// =============================================================================

func TestStatus_Clean(t *testing.T) {
	dir := newProject(t)
	writeFile(t, dir, "vite.config.ts", viteConfig("checkout"))

	r := cli(t, nil, "status", dir, "--json")
	require.Equal(t, ExitOK, r.code, r.stdout+r.stderr)

	res, data := r.envelope(t)
	assert.True(t, res.OK)
	inspection := data["inspection"].(map[string]any)
	assert.Equal(t, "remote", inspection["role"])
	assert.Equal(t, "checkout", inspection["name"])
}

func TestStatus_Drift(t *testing.T) {
	dir := newProject(t)
	writeFile(t, dir, "vite.config.ts", viteConfig("shop"))

	r := cli(t, nil, "status", dir)
	assert.Equal(t, ExitFailure, r.code)
	assert.Contains(t, r.stderr, `drift: name: config says "checkout", build file says "shop"`)
}

func TestStatus_Workspace(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, workspace.FileName, `{"apps":[{"dir":"apps/checkout"},{"dir":"apps/missing"}]}`)
	writeFile(t, root, "apps/checkout/package.json", `{"name":"checkout"}`)
	writeFile(t, root, "apps/checkout/federation.config.json", checkoutConfig)
	writeFile(t, root, "apps/checkout/src/Cart.tsx", "export {}\n")

	r := cli(t, nil, "status", root, "--workspace", "--json")
	assert.Equal(t, ExitFailure, r.code)

	var res struct {
		OK     bool                  `json:"ok"`
		Data   []workspace.AppStatus `json:"data"`
		Errors []string              `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &res))
	require.Len(t, res.Data, 2)
	assert.True(t, res.Data[0].Clean())
	assert.Contains(t, res.Data[1].Error, "not a project")
	require.Len(t, res.Errors, 1)
}

func TestStatus_NoWorkspaceFile(t *testing.T) {
	r := cli(t, nil, "status", t.TempDir(), "--workspace")
	assert.Equal(t, ExitFatal, r.code)
	assert.Contains(t, r.stderr, workspace.FileName)
}

// =============================================================================
// backups
// =============================================================================

func TestBackups_Lifecycle(t *testing.T) {
	dir := newProject(t)
	target := filepath.Join(dir, "a.txt")
	writeFile(t, dir, "a.txt", "original\n")
	plan := writePlan(t, `{"operations":[{"type":"write","path":"a.txt","content":"changed\n"}]}`)

	r := cli(t, nil, "apply", plan, dir, "--backup")
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Equal(t, "changed\n", readFile(t, target))

	r = cli(t, nil, "backups", "list", target, "--json")
	require.Equal(t, ExitOK, r.code, r.stderr)
	var listed struct {
		Data []struct {
			Path string `json:"path"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(r.stdout), &listed))
	require.Len(t, listed.Data, 1)

	r = cli(t, nil, "backups", "restore", listed.Data[0].Path)
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Equal(t, "original\n", readFile(t, target))
	assert.NoFileExists(t, listed.Data[0].Path)
}

func TestBackups_BackupFromSettings(t *testing.T) {
	dir := newProject(t)
	target := filepath.Join(dir, "a.txt")
	writeFile(t, dir, "a.txt", "original\n")

	settingsPath := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(settingsPath, []byte("backup:\n  enabled: true\n"), 0644))
	env := map[string]string{settings.EnvSettingsPath: settingsPath}

	plan := writePlan(t, `{"operations":[{"type":"write","path":"a.txt","content":"changed\n"}]}`)
	r := cli(t, env, "apply", plan, dir)
	require.Equal(t, ExitOK, r.code, r.stderr)

	r = cli(t, env, "backups", "clean", target, "--older-than", "0s", "--json")
	require.Equal(t, ExitOK, r.code, r.stderr)
	_, data := r.envelope(t)
	assert.Equal(t, float64(1), data["removed"])
}

func TestBackups_RestoreRejectsNonBackup(t *testing.T) {
	dir := newProject(t)
	r := cli(t, nil, "backups", "restore", filepath.Join(dir, "package.json"))
	assert.Equal(t, ExitFatal, r.code)
	assert.Contains(t, r.stderr, "not a backup")
}

func TestBackups_ListEmpty(t *testing.T) {
	dir := newProject(t)
	r := cli(t, nil, "backups", "list", filepath.Join(dir, "package.json"))
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Contains(t, r.stdout, "no backups")
}

// =============================================================================
// settings
// =============================================================================

func TestSettings_PathAndInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.yaml")
	env := map[string]string{settings.EnvSettingsPath: path}

	r := cli(t, env, "settings", "path")
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.Equal(t, path+"\n", r.stdout)

	r = cli(t, env, "settings", "init")
	require.Equal(t, ExitOK, r.code, r.stderr)
	assert.FileExists(t, path)

	r = cli(t, env, "settings", "init")
	assert.Equal(t, ExitFatal, r.code)
	assert.Contains(t, r.stderr, "--force")

	r = cli(t, env, "settings", "init", "--force")
	assert.Equal(t, ExitOK, r.code, r.stderr)
}

func TestSettings_ShowAppliesOverrides(t *testing.T) {
	r := cli(t, map[string]string{settings.EnvLogLevel: "warn"}, "settings", "show", "--json", "--color", "never")
	require.Equal(t, ExitOK, r.code, r.stderr)

	_, data := r.envelope(t)
	assert.Equal(t, "warn", data["log_level"])
	assert.Equal(t, "never", data["color"])
}

func TestSettings_InvalidFileIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("colour: never\n"), 0644))

	r := cli(t, map[string]string{settings.EnvSettingsPath: path}, "detect", t.TempDir())
	assert.Equal(t, ExitFatal, r.code)
	assert.Contains(t, r.stderr, "colour")
}

func TestCLI_InvalidLogLevelFlag(t *testing.T) {
	r := cli(t, nil, "detect", "--log-level", "loud")
	assert.Equal(t, ExitFatal, r.code)
	assert.Contains(t, r.stderr, "log_level")
}
