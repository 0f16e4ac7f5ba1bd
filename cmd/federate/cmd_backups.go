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
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/federate/cmd/federate/internal/mutate"
	"github.com/AleutianAI/federate/pkg/ux"
)

// DefaultBackupMaxAge is the --older-than default for backups clean.
const DefaultBackupMaxAge = 7 * 24 * time.Hour

func (a *app) backupsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backups",
		Short: "List, restore and prune file backups",
		Long: `Backups are sibling copies named <file>` + mutate.DefaultBackupSuffix + `.<timestamp>, taken by
apply and config write when --backup is set or backup.enabled is true in
the settings file.`,
	}
	cmd.AddCommand(a.backupsListCommand(), a.backupsRestoreCommand(), a.backupsCleanCommand())
	return cmd
}

func (a *app) backupManager() *mutate.BackupManager {
	return mutate.NewBackupManager(a.settings.BackupConfig())
}

func absPath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", p, err)
	}
	return abs, nil
}

func (a *app) backupsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list <file>",
		Short: "List backups of a file, newest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := absPath(args[0])
			if err != nil {
				return err
			}
			backups, err := a.backupManager().List(path)
			if err != nil {
				return err
			}
			if backups == nil {
				backups = []mutate.BackupInfo{}
			}
			if a.emit("backups list", true, backups, nil) {
				return nil
			}
			if len(backups) == 0 {
				a.printer.Muted("no backups of " + path)
				return nil
			}
			for _, b := range backups {
				a.printer.FileStatus(b.Path, ux.IconBullet,
					fmt.Sprintf("%s, %d bytes", b.CreatedAt.Format(time.DateTime), b.Size))
			}
			return nil
		},
	}
}

func (a *app) backupsRestoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "restore <backup>",
		Short: "Move a backup back over the file it was taken from",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := absPath(args[0])
			if err != nil {
				return err
			}

			mgr := a.backupManager()
			original := mgr.OriginalPath(path)
			if original == "" {
				return fmt.Errorf("%w: %s", mutate.ErrNotABackup, path)
			}
			l, err := a.acquireLock(filepath.Dir(original))
			if err != nil {
				return err
			}
			defer l.Release()

			restored, err := mgr.Restore(path)
			if err != nil {
				return err
			}
			a.slog().Info("backup restored", slog.String("backup", path), slog.String("path", restored))

			if !a.emit("backups restore", true, map[string]string{"backup": path, "restored": restored}, nil) {
				a.printer.Success("restored " + restored)
			}
			return nil
		},
	}
}

func (a *app) backupsCleanCommand() *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "clean <file>",
		Short: "Remove backups of a file older than --older-than",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan < 0 {
				return fmt.Errorf("--older-than must not be negative")
			}
			path, err := absPath(args[0])
			if err != nil {
				return err
			}
			removed, err := a.backupManager().CleanOld(path, olderThan)
			if err != nil {
				return err
			}
			if !a.emit("backups clean", true, map[string]int{"removed": removed}, nil) {
				a.printer.Success(fmt.Sprintf("removed %d backup(s) of %s", removed, path))
			}
			return nil
		},
	}

	cmd.Flags().DurationVar(&olderThan, "older-than", DefaultBackupMaxAge, "minimum age of removed backups")
	return cmd
}
