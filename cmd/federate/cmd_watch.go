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
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/federate/cmd/federate/internal/detect"
	"github.com/AleutianAI/federate/cmd/federate/internal/fedconfig"
	"github.com/AleutianAI/federate/cmd/federate/internal/workspace"
)

// buildConfigPrefix matches every vite.config.* variant.
const buildConfigPrefix = "vite.config."

func (a *app) watchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "watch [dir]",
		Short: "Re-check the project whenever a config source changes",
		Long: `Watch reports status once, then again each time package.json, a
convention config file, the --config file or a vite.config.* file in dir
changes. Bursts of events are coalesced using watch.debounce from the
settings file. Stop with Ctrl-C.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := projectDir(args, 0)
			if err != nil {
				return err
			}

			fsw, err := fsnotify.NewWatcher()
			if err != nil {
				return fmt.Errorf("create watcher: %w", err)
			}
			defer fsw.Close()

			runner := workspace.NewRunner(a.slog())
			overrides := a.overrides(cmd)
			w := newConfigWatcher(dir, a.flags.configPath, a.settings.Watch.Debounce, a.slog(), func() {
				_ = a.reportStatus([]workspace.AppStatus{runner.Project(dir, a.flags.configPath, overrides)})
			})
			for _, d := range w.dirs() {
				if err := fsw.Add(d); err != nil {
					return fmt.Errorf("watch %s: %w", d, err)
				}
			}

			if !a.flags.json {
				a.printer.Info("watching " + dir)
			}
			return w.run(cmd.Context(), fsw.Events, fsw.Errors)
		},
	}
}

// configWatcher coalesces file events for a project's config sources and
// runs check after each burst settles.
type configWatcher struct {
	dir      string
	names    []string
	explicit string
	debounce time.Duration
	logger   *slog.Logger
	check    func()
}

func newConfigWatcher(dir, configPath string, debounce time.Duration, logger *slog.Logger, check func()) *configWatcher {
	w := &configWatcher{
		dir:      filepath.Clean(dir),
		names:    append([]string{detect.ManifestFileName}, fedconfig.ConventionFiles...),
		debounce: debounce,
		logger:   logger,
		check:    check,
	}
	if configPath != "" {
		if !filepath.IsAbs(configPath) {
			configPath = filepath.Join(dir, configPath)
		}
		w.explicit = filepath.Clean(configPath)
	}
	return w
}

// dirs returns the directories to watch: the project and, when it lives
// elsewhere, the directory of the explicit config file.
func (w *configWatcher) dirs() []string {
	dirs := []string{w.dir}
	if w.explicit != "" && filepath.Dir(w.explicit) != w.dir {
		dirs = append(dirs, filepath.Dir(w.explicit))
	}
	return dirs
}

// relevant reports whether an event on path can change the resolved
// config or the build file.
func (w *configWatcher) relevant(path string) bool {
	path = filepath.Clean(path)
	if w.explicit != "" && path == w.explicit {
		return true
	}
	if filepath.Dir(path) != w.dir {
		return false
	}
	base := filepath.Base(path)
	return slices.Contains(w.names, base) || strings.HasPrefix(base, buildConfigPrefix)
}

// run checks once, then after every settled burst of relevant events,
// until ctx is done or events closes.
func (w *configWatcher) run(ctx context.Context, events <-chan fsnotify.Event, errs <-chan error) error {
	w.check()

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Has(fsnotify.Chmod) && !ev.Has(fsnotify.Write) {
				continue
			}
			if !w.relevant(ev.Name) {
				continue
			}
			w.logger.Debug("config source changed", slog.String("path", ev.Name), slog.String("op", ev.Op.String()))
			timer.Reset(w.debounce)
		case <-timer.C:
			w.check()
		case err, ok := <-errs:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", slog.String("error", err.Error()))
		}
	}
}
