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
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/federate/cmd/federate/internal/workspace"
	"github.com/AleutianAI/federate/pkg/ux"
)

func (a *app) statusCommand() *cobra.Command {
	var useWorkspace bool

	cmd := &cobra.Command{
		Use:   "status [dir]",
		Short: "Report detection, config and build-file state",
		Long: `Status detects the project, resolves and lints its config, and reads the
federation call in its Vite config to report drift between the two.

With --workspace, dir holds a ` + workspace.FileName + ` and every app
listed there is reported in parallel. Exits 1 when any app has an error,
a finding or drift.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := projectDir(args, 0)
			if err != nil {
				return err
			}
			runner := workspace.NewRunner(a.slog(), workspace.WithConcurrency(a.settings.Workspace.Concurrency))

			var statuses []workspace.AppStatus
			if useWorkspace {
				ws, err := workspace.Load(dir)
				if err != nil {
					return err
				}
				statuses, err = runner.Status(cmd.Context(), ws)
				if err != nil {
					return err
				}
			} else {
				statuses = []workspace.AppStatus{runner.Project(dir, a.flags.configPath, a.overrides(cmd))}
			}
			return a.reportStatus(statuses)
		},
	}

	cmd.Flags().BoolVarP(&useWorkspace, "workspace", "w", false, "report every app in "+workspace.FileName)
	return cmd
}

func (a *app) reportStatus(statuses []workspace.AppStatus) error {
	var problems []string
	for _, st := range statuses {
		if st.Error != "" {
			problems = append(problems, st.Dir+": "+st.Error)
		}
		for _, f := range st.Findings {
			problems = append(problems, st.Dir+": "+f.String())
		}
		for _, d := range st.Drift {
			problems = append(problems, st.Dir+": drift: "+d)
		}
	}

	var data any = statuses
	if len(statuses) == 1 {
		data = statuses[0]
	}
	if !a.emit("status", len(problems) == 0, data, problems) {
		for i, st := range statuses {
			if i > 0 {
				fmt.Fprintln(a.printer.Out())
			}
			a.printStatus(st)
		}
	}
	if len(problems) > 0 {
		return failure("%d problem(s)", len(problems))
	}
	return nil
}

func (a *app) printStatus(st workspace.AppStatus) {
	p := a.printer
	icon := ux.IconSuccess
	switch {
	case !st.OK():
		icon = ux.IconError
	case !st.Clean():
		icon = ux.IconWarning
	}
	p.FileStatus(st.Dir, icon, "")

	if st.Project != nil {
		p.Field("package mgr", st.Project.PackageManager)
		p.Field("federation", yesNo(st.Project.HasFederation))
	}
	if st.Resolution != nil {
		cfg := st.Resolution.Config
		p.Field("source", st.Resolution.Source)
		p.Field("role", cfg.Role)
		p.Field("name", cfg.Name)
		p.Field("port", cfg.Port)
	}
	if st.Inspection != nil && st.Inspection.HasCall {
		in := st.Inspection
		p.Field("build role", in.Role)
		if len(in.Exposes) > 0 {
			p.Field("build exposes", strings.Join(slices.Sorted(maps.Keys(in.Exposes)), ", "))
		}
		if len(in.Remotes) > 0 {
			p.Field("build remotes", strings.Join(slices.Sorted(maps.Keys(in.Remotes)), ", "))
		}
	}
	if st.Error != "" {
		p.Error(st.Error)
	}
	for _, f := range st.Findings {
		p.Warning(f.String())
	}
	for _, d := range st.Drift {
		p.Warning("drift: " + d)
	}
}
