// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"runtime"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/federate/cmd/federate/internal/detect"
	"github.com/AleutianAI/federate/cmd/federate/internal/fedconfig"
	"github.com/AleutianAI/federate/cmd/federate/internal/inspect"
	"github.com/AleutianAI/federate/cmd/federate/internal/validate"
	"github.com/AleutianAI/federate/pkg/logging"
)

// AppStatus is the read-only report for one project.
type AppStatus struct {
	Dir        string                `json:"dir"`
	Project    *detect.ProjectInfo   `json:"project"`
	Resolution *fedconfig.Resolution `json:"resolution,omitempty"`
	Inspection *inspect.Report       `json:"inspection,omitempty"`
	Findings   []fedconfig.Finding   `json:"findings,omitempty"`
	Drift      []string              `json:"drift,omitempty"`
	Error      string                `json:"error,omitempty"`
}

// OK reports whether the project resolved without error.
func (s AppStatus) OK() bool { return s.Error == "" }

// Clean reports whether the project resolved with no findings and no drift
// between its config and its build file.
func (s AppStatus) Clean() bool {
	return s.OK() && len(s.Findings) == 0 && len(s.Drift) == 0
}

// Runner produces AppStatus reports.
//
// # Thread Safety
//
// Safe for concurrent use. Reports only read the filesystem.
type Runner struct {
	detector    *detect.Detector
	inspector   inspect.Inspector
	logger      *slog.Logger
	concurrency int
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithInspector replaces the default text inspector.
func WithInspector(i inspect.Inspector) RunnerOption {
	return func(r *Runner) { r.inspector = i }
}

// WithConcurrency bounds parallel project reports in Status. Values below
// one are ignored.
func WithConcurrency(n int) RunnerOption {
	return func(r *Runner) {
		if n > 0 {
			r.concurrency = n
		}
	}
}

// NewRunner returns a Runner. A nil logger discards output.
func NewRunner(logger *slog.Logger, opts ...RunnerOption) *Runner {
	if logger == nil {
		logger = logging.Discard()
	}
	r := &Runner{
		detector:    detect.NewDetector(logger),
		inspector:   inspect.New(),
		logger:      logger,
		concurrency: runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Project reports on a single project directory.
//
// # Description
//
// Detects the project, resolves its config with the given explicit path
// and overrides, lints the result, and inspects the build config file when
// there is one. Failures are recorded in AppStatus.Error; Project never
// returns an error of its own.
func (r *Runner) Project(dir, configPath string, overrides fedconfig.Overrides) AppStatus {
	st := AppStatus{Dir: dir}
	if err := validate.Directory(dir); err != nil {
		st.Error = fmt.Sprintf("%s is not a project: %v", dir, err)
		return st
	}

	info := r.detector.Detect(dir)
	st.Project = info
	if info == nil {
		st.Error = fmt.Sprintf("%s is not a project: %s is not a JSON object", dir, detect.ManifestFileName)
		return st
	}

	res, err := fedconfig.Resolve(fedconfig.Options{
		ProjectDir: dir,
		ConfigPath: configPath,
		Project:    info,
		Overrides:  overrides,
		Logger:     r.logger,
	})
	if err != nil {
		st.Error = err.Error()
	} else {
		st.Resolution = res
		st.Findings = fedconfig.Lint(res.Config, dir)
	}

	if info.ViteConfig != nil {
		text, err := os.ReadFile(info.ViteConfig.Path)
		if err != nil {
			r.logger.Debug("build config unreadable", slog.String("path", info.ViteConfig.Path), slog.String("error", err.Error()))
		} else {
			report := r.inspector.Inspect(string(text))
			st.Inspection = &report
			if res != nil {
				st.Drift = Drift(res.Config, report)
			}
		}
	}
	return st
}

// Status reports on every app of ws in parallel.
//
// Results are in entry order. An entry whose overrides are invalid gets an
// AppStatus carrying the error. The returned error is non-nil only when ctx
// is cancelled before every report is produced.
func (r *Runner) Status(ctx context.Context, ws *Workspace) ([]AppStatus, error) {
	results := make([]AppStatus, len(ws.Apps))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for i, app := range ws.Apps {
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			dir := app.Path(ws.Root)
			overrides, err := app.Overrides(ws.EntrySource(i))
			if err != nil {
				results[i] = AppStatus{Dir: dir, Error: err.Error()}
				return nil
			}
			results[i] = r.Project(dir, "", overrides)
			r.logger.Debug("workspace app inspected", slog.String("dir", dir), slog.Bool("ok", results[i].OK()))
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return results, err
	}
	return results, nil
}

// Drift lists disagreements between a resolved config and what the build
// file declares. Fields the inspector could not read are not compared.
func Drift(cfg fedconfig.ResolvedConfig, report inspect.Report) []string {
	if !report.HasCall {
		return nil
	}

	var drift []string
	if report.Role != inspect.RoleUnknown && string(report.Role) != string(cfg.Role) {
		drift = append(drift, fmt.Sprintf("role: config says %q, build file looks like %q", cfg.Role, report.Role))
	}
	if report.Name != "" && report.Name != cfg.Name {
		drift = append(drift, fmt.Sprintf("name: config says %q, build file says %q", cfg.Name, report.Name))
	}
	if report.Port != "" && report.Port != cfg.Port {
		drift = append(drift, fmt.Sprintf("port: config says %s, build file says %s", cfg.Port, report.Port))
	}
	if len(report.Exposes) > 0 {
		for _, key := range slices.Sorted(maps.Keys(cfg.Exposes)) {
			if _, ok := report.Exposes[key]; !ok {
				drift = append(drift, fmt.Sprintf("exposes.%s: missing from build file", key))
			}
		}
	}
	if len(report.Remotes) > 0 {
		for _, key := range slices.Sorted(maps.Keys(cfg.Remotes)) {
			if _, ok := report.Remotes[key]; !ok {
				drift = append(drift, fmt.Sprintf("remotes.%s: missing from build file", key))
			}
		}
	}
	return drift
}
