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
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AleutianAI/federate/cmd/federate/internal/fedconfig"
	"github.com/AleutianAI/federate/cmd/federate/internal/mutate"
	"github.com/AleutianAI/federate/cmd/federate/settings"
	"github.com/AleutianAI/federate/pkg/logging"
	"github.com/AleutianAI/federate/pkg/ux"
)

// globalFlags are the flags shared by every command.
type globalFlags struct {
	configPath  string
	json        bool
	logLevel    string
	verbose     bool
	trace       bool
	metricsFile string
	color       string

	name        string
	port        string
	role        string
	buildTarget string
}

// app holds the state of one CLI invocation. It is built by newApp,
// completed by setup before any command runs, and torn down by close.
type app struct {
	stdout io.Writer
	stderr io.Writer
	getenv func(string) string

	flags globalFlags

	settings     settings.Settings
	settingsPath string
	logger       *logging.Logger
	printer      *ux.Printer
	tracer       *sdktrace.TracerProvider
	metrics      *mutate.Metrics
}

func newApp(stdout, stderr io.Writer, getenv func(string) string) *app {
	return &app{stdout: stdout, stderr: stderr, getenv: getenv}
}

// rootCommand builds the command tree bound to a.
func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "federate",
		Short:         "Configure Vite projects for module federation",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.flags.configPath, "config", "", "explicit federation config file, relative to the project")
	pf.BoolVar(&a.flags.json, "json", false, "print a JSON result envelope")
	pf.StringVar(&a.flags.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.BoolVarP(&a.flags.verbose, "verbose", "v", false, "debug logging")
	pf.BoolVar(&a.flags.trace, "trace", false, "print OpenTelemetry spans to stderr")
	pf.StringVar(&a.flags.metricsFile, "metrics-file", "", "write Prometheus textfile metrics after the command")
	pf.StringVar(&a.flags.color, "color", "", "color mode (auto, always, never)")

	pf.StringVar(&a.flags.name, "name", "", "override the federation name")
	pf.StringVar(&a.flags.port, "port", "", "override the dev server port")
	pf.StringVar(&a.flags.role, "role", "", "override the role (remote, host)")
	pf.StringVar(&a.flags.buildTarget, "build-target", "", "override the build target")

	root.AddCommand(
		a.detectCommand(),
		a.configCommand(),
		a.statusCommand(),
		a.applyCommand(),
		a.backupsCommand(),
		a.watchCommand(),
		a.settingsCommand(),
	)
	return root
}

// setup loads settings and builds the logger, printer and observability
// hooks. Flags beat environment variables, which beat the settings file.
func (a *app) setup(cmd *cobra.Command) error {
	s, path, err := settings.LoadFrom(a.getenv)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("log-level") {
		s.LogLevel = a.flags.logLevel
	}
	if cmd.Flags().Changed("color") {
		s.Color = a.flags.color
	}
	if err := s.Validate(); err != nil {
		return err
	}
	a.settings, a.settingsPath = s, path

	logCfg, err := s.Logging(a.flags.verbose)
	if err != nil {
		return err
	}
	logCfg.Output = a.stderr
	a.logger = logging.New(logCfg)
	a.printer = ux.NewPrinter(a.stdout, a.stderr, s.Color)
	if err := a.logger.FileErr(); err != nil {
		a.logger.Warn("file logging disabled", slog.String("dir", logCfg.LogDir), slog.String("error", err.Error()))
	}

	if a.flags.trace {
		tp, err := newTracerProvider(a.stderr)
		if err != nil {
			return fmt.Errorf("start tracing: %w", err)
		}
		a.tracer = tp
	}
	if a.flags.metricsFile != "" {
		m, err := mutate.NewMetrics()
		if err != nil {
			return fmt.Errorf("create metrics: %w", err)
		}
		a.metrics = m
	}

	a.logger.Debug("settings loaded", slog.String("path", path), slog.String("log_level", s.LogLevel))
	return nil
}

// close flushes spans, writes metrics and closes the log file.
func (a *app) close() error {
	var errs []error
	if a.tracer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		errs = append(errs, a.tracer.Shutdown(ctx))
		cancel()
	}
	if a.metrics != nil {
		if err := a.metrics.WriteTextfile(a.flags.metricsFile); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if a.logger != nil {
		errs = append(errs, a.logger.Close())
	}
	return errors.Join(errs...)
}

// newTracerProvider returns an sdk provider exporting spans to w.
func newTracerProvider(w io.Writer) (*sdktrace.TracerProvider, error) {
	exporter, err := stdouttrace.New(
		stdouttrace.WithWriter(w),
		stdouttrace.WithPrettyPrint(),
	)
	if err != nil {
		return nil, err
	}
	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", "federate"),
		attribute.String("service.version", version),
	)
	return sdktrace.NewTracerProvider(
		sdktrace.WithSyncer(exporter),
		sdktrace.WithResource(res),
	), nil
}

// slog returns the configured logger, or a discard logger before setup.
func (a *app) slog() *slog.Logger {
	if a.logger == nil {
		return logging.Discard()
	}
	return a.logger.Slog()
}

// projectDir returns the absolute project directory from an optional
// positional argument.
func projectDir(args []string, i int) (string, error) {
	dir := "."
	if len(args) > i {
		dir = args[i]
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", dir, err)
	}
	return abs, nil
}

// overrides collects the override flags the user set.
func (a *app) overrides(cmd *cobra.Command) fedconfig.Overrides {
	var o fedconfig.Overrides
	flags := cmd.Flags()
	if flags.Changed("role") {
		role := fedconfig.Role(a.flags.role)
		o.Role = &role
	}
	if flags.Changed("name") {
		o.Name = &a.flags.name
	}
	if flags.Changed("port") {
		o.Port = &a.flags.port
	}
	if flags.Changed("build-target") {
		o.BuildTarget = &a.flags.buildTarget
	}
	return o
}

// engine builds a mutation engine wired to the app's logger, tracing and
// metrics. reporter may be nil.
func (a *app) engine(reporter mutate.Reporter) *mutate.Engine {
	opts := []mutate.Option{
		mutate.WithLogger(a.slog()),
		mutate.WithReporter(reporter),
		mutate.WithMetrics(a.metrics),
	}
	if a.tracer != nil {
		opts = append(opts, mutate.WithTracing(a.tracer))
	}
	return mutate.NewEngine(opts...)
}

// emit prints a JSON envelope when --json is set and reports whether it
// did. Commands print human output when it returns false.
func (a *app) emit(command string, ok bool, data any, errs []string) bool {
	if !a.flags.json {
		return false
	}
	_ = writeJSON(a.stdout, CommandResult{Command: command, OK: ok, Data: data, Errors: errs})
	return true
}
