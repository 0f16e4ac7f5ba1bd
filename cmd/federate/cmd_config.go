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
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/federate/cmd/federate/internal/fedconfig"
	"github.com/AleutianAI/federate/cmd/federate/internal/mutate"
)

// ConfigReport is the JSON data of config show and config validate.
type ConfigReport struct {
	*fedconfig.Resolution
	Findings []fedconfig.Finding `json:"findings,omitempty"`
}

func (a *app) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Resolve, validate and write the federation config",
	}
	cmd.AddCommand(a.configShowCommand(), a.configValidateCommand(), a.configWriteCommand())
	return cmd
}

// resolve resolves the config for args[0] or the current directory using
// the --config path and override flags.
func (a *app) resolve(cmd *cobra.Command, args []string) (string, *fedconfig.Resolution, error) {
	dir, err := projectDir(args, 0)
	if err != nil {
		return "", nil, err
	}
	res, err := fedconfig.Resolve(fedconfig.Options{
		ProjectDir: dir,
		ConfigPath: a.flags.configPath,
		Overrides:  a.overrides(cmd),
		Logger:     a.slog(),
	})
	if err != nil {
		return dir, nil, err
	}
	return dir, res, nil
}

func (a *app) configShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show [dir]",
		Short: "Print the resolved config and where it came from",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, res, err := a.resolve(cmd, args)
			if err != nil {
				return err
			}
			findings := fedconfig.Lint(res.Config, dir)
			if a.emit("config show", true, ConfigReport{Resolution: res, Findings: findings}, nil) {
				return nil
			}

			body, err := fedconfig.Marshal(res.Config)
			if err != nil {
				return err
			}
			a.printer.Field("source", res.Source)
			if len(res.Overridden) > 0 {
				a.printer.Field("overridden", strings.Join(res.Overridden, ", "))
			}
			a.printer.Box("Federation config", strings.TrimRight(string(body), "\n"))
			for _, f := range findings {
				a.printer.Warning(f.String())
			}
			return nil
		},
	}
}

func (a *app) configValidateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [dir]",
		Short: "Validate the config and lint it against the project",
		Long: `Validate resolves the config the same way show does. An invalid config
exits 2. A valid config with lint findings, such as an expose path that does
not exist, exits 1.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, res, err := a.resolve(cmd, args)
			if err != nil {
				return err
			}
			findings := fedconfig.Lint(res.Config, dir)
			msgs := make([]string, 0, len(findings))
			for _, f := range findings {
				msgs = append(msgs, f.String())
			}

			if !a.emit("config validate", len(findings) == 0, ConfigReport{Resolution: res, Findings: findings}, msgs) {
				if len(findings) == 0 {
					a.printer.Success(fmt.Sprintf("config from %s is valid", res.Source))
				}
				for _, m := range msgs {
					a.printer.Warning(m)
				}
			}
			if len(findings) > 0 {
				return failure("%d finding(s)", len(findings))
			}
			return nil
		},
	}
}

func (a *app) configWriteCommand() *cobra.Command {
	var opts applyOptions

	cmd := &cobra.Command{
		Use:   "write [dir]",
		Short: "Write the resolved config to " + fedconfig.ConventionFiles[0],
		Long: `Write resolves the config, including any override flags, and writes it to
the top-priority convention file through the same staging engine apply uses.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, res, err := a.resolve(cmd, args)
			if err != nil {
				return err
			}
			op, err := fedconfig.WriteConventionFile(dir, res.Config)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("backup") {
				opts.backup = a.settings.Backup.Enabled
			}
			return a.applyOps(cmd.Context(), "config write", []mutate.FileOperation{op}, dir, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "show the diff without writing")
	cmd.Flags().BoolVar(&opts.backup, "backup", false, "back up an existing config file first")
	return cmd
}
