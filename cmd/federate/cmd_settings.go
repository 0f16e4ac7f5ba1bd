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
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/federate/cmd/federate/settings"
)

func (a *app) settingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or create the tool settings file",
	}
	cmd.AddCommand(a.settingsShowCommand(), a.settingsPathCommand(), a.settingsInitCommand())
	return cmd
}

func (a *app) settingsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the effective settings after env and flag overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.emit("settings show", true, a.settings, nil) {
				return nil
			}
			data, err := yaml.Marshal(a.settings)
			if err != nil {
				return fmt.Errorf("encode settings: %w", err)
			}
			a.printer.Field("path", a.settingsPath)
			a.printer.Box("Settings", strings.TrimRight(string(data), "\n"))
			return nil
		},
	}
}

func (a *app) settingsPathCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print where the settings file is looked up",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !a.emit("settings path", true, map[string]string{"path": a.settingsPath}, nil) {
				fmt.Fprintln(a.printer.Out(), a.settingsPath)
			}
			return nil
		},
	}
}

func (a *app) settingsInitCommand() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a settings file with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := a.settingsPath
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists; use --force to overwrite", path)
			} else if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return fmt.Errorf("stat %s: %w", path, err)
			}
			if err := settings.Save(path, settings.Default()); err != nil {
				return err
			}
			if !a.emit("settings init", true, map[string]string{"path": path}, nil) {
				a.printer.Success("wrote " + path)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing file")
	return cmd
}
