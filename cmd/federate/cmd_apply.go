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
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/federate/cmd/federate/internal/lock"
	"github.com/AleutianAI/federate/cmd/federate/internal/mutate"
	"github.com/AleutianAI/federate/cmd/federate/internal/preview"
	"github.com/AleutianAI/federate/pkg/ux"
)

// applyOptions control how a batch is applied.
type applyOptions struct {
	dryRun bool
	backup bool
}

// ApplyOutcome is the JSON data of apply and config write.
type ApplyOutcome struct {
	DryRun  bool             `json:"dryRun"`
	Preview *preview.Preview `json:"preview,omitempty"`
	Backups []string         `json:"backups,omitempty"`
	Result  *mutate.Result   `json:"result,omitempty"`
}

func (a *app) applyCommand() *cobra.Command {
	var opts applyOptions

	cmd := &cobra.Command{
		Use:   "apply <plan.json> [dir]",
		Short: "Apply a plan of file operations to a project",
		Long: `Apply stages every write next to its target, commits them, then runs the
deletes. A staging failure aborts the whole batch before any file changes.

The plan is JSON:

  {"operations": [
    {"type": "write", "path": "vite.config.ts", "content": "..."},
    {"type": "delete", "path": "old.config.js"}
  ]}

Relative paths resolve against dir, which defaults to the current
directory.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := projectDir(args, 1)
			if err != nil {
				return err
			}
			ops, err := mutate.ReadPlanFile(args[0])
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("backup") {
				opts.backup = a.settings.Backup.Enabled
			}
			return a.applyOps(cmd.Context(), "apply", ops, dir, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "show the diff without changing files")
	cmd.Flags().BoolVar(&opts.backup, "backup", false, "back up overwritten and deleted files first")
	return cmd
}

// applyOps previews or applies ops under the project lock.
//
// # Description
//
// A dry run builds and prints a diff preview and touches nothing. Otherwise
// the project lock is taken, existing targets are backed up when requested,
// and the batch goes through the engine with progress printed per file.
//
// # Outputs
//
//   - error: Fatal setup failures, or an exitError with ExitFailure when
//     any operation failed.
func (a *app) applyOps(ctx context.Context, command string, ops []mutate.FileOperation, dir string, opts applyOptions) error {
	if opts.dryRun {
		return a.dryRun(command, ops, dir)
	}

	l, err := a.acquireLock(dir)
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			a.slog().Warn("release lock", slog.String("path", l.Path()), slog.String("error", err.Error()))
		}
	}()

	outcome := ApplyOutcome{}
	if opts.backup {
		backups, err := mutate.NewBackupManager(a.settings.BackupConfig()).CreateAll(ops, dir)
		if err != nil {
			return fmt.Errorf("back up targets: %w", err)
		}
		outcome.Backups = backups
	}

	var reporter mutate.Reporter
	if !a.flags.json {
		reporter = a.progress
	}
	result := a.engine(reporter).Apply(ctx, ops, dir)
	outcome.Result = &result

	a.slog().Info("apply finished",
		slog.String("command", command),
		slog.String("dir", dir),
		slog.Int("applied", len(result.Applied)),
		slog.Int("failed", len(result.Errors)),
	)

	if !a.emit(command, result.OK(), outcome, result.Errors) {
		for _, b := range outcome.Backups {
			a.printer.Muted("backup " + b)
		}
		for _, e := range result.Errors {
			a.printer.Error(e)
		}
		a.printer.Summary(len(result.Applied), len(result.Errors))
	}
	if !result.OK() {
		return failure("%d operation(s) failed", len(result.Errors))
	}
	return nil
}

func (a *app) dryRun(command string, ops []mutate.FileOperation, dir string) error {
	pv, err := preview.Build(ops, dir)
	if err != nil {
		return err
	}
	if a.emit(command, true, ApplyOutcome{DryRun: true, Preview: pv}, nil) {
		return nil
	}

	for _, c := range pv.Changes {
		a.printer.FileStatus(c.Path, changeIcon(c.Kind), string(c.Kind))
	}
	if diff := pv.Diff(); diff != "" {
		fmt.Fprintln(a.printer.Out())
		a.printer.Diff(diff)
	}
	a.printer.Info(fmt.Sprintf("%d file(s) would change, +%d -%d", pv.Changed(), pv.Added, pv.Removed))
	return nil
}

func changeIcon(k preview.ChangeKind) ux.Icon {
	switch k {
	case preview.KindCreate, preview.KindModify:
		return ux.IconArrow
	case preview.KindDelete:
		return ux.IconWarning
	default:
		return ux.IconPending
	}
}

// progress prints engine events as they happen.
func (a *app) progress(ev mutate.Event) {
	switch ev.Kind {
	case mutate.EventCommitted:
		reason := ""
		if ev.Strategy != mutate.RenameStrategy.Name {
			reason = ev.Strategy
		}
		a.printer.FileStatus(ev.Path, ux.IconSuccess, reason)
	case mutate.EventDeleted:
		a.printer.FileStatus(ev.Path, ux.IconSuccess, "deleted")
	case mutate.EventFailed, mutate.EventAborted:
		reason := string(ev.Kind)
		if ev.Err != nil {
			reason = ev.Err.Error()
		}
		a.printer.FileStatus(ev.Path, ux.IconError, reason)
	case mutate.EventFallback:
		a.slog().Debug("commit strategy failed", slog.String("path", ev.Path), slog.String("strategy", ev.Strategy))
	}
}

// acquireLock takes the project lock. A held lock is broken only where
// lock.Stale can tell it was abandoned; with OS-level locks a held lock
// always fails with lock.ErrLockHeld.
func (a *app) acquireLock(dir string) (*lock.FileLock, error) {
	l, err := lock.New(dir)
	if err != nil {
		return nil, err
	}
	err = l.Acquire()
	var held *lock.HeldError
	if errors.As(err, &held) && l.Stale() {
		a.printer.Warning(fmt.Sprintf("breaking stale lock %s (pid %d)", l.Path(), held.Holder.PID))
		if berr := l.Break(); berr != nil {
			return nil, berr
		}
		err = l.Acquire()
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}
