// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Command federate configures Vite projects for module federation.
//
// It detects a project, resolves its federation config from the convention
// files, package.json and flags, and applies file changes through an
// all-or-nothing staging engine.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	stop()
	os.Exit(code)
}

// run executes one CLI invocation and returns its exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, getenv func(string) string) int {
	a := newApp(stdout, stderr, getenv)
	root := a.rootCommand()
	root.SetArgs(args)

	cmd, err := root.ExecuteContextC(ctx)
	if cerr := a.close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil && exitCode(err) == ExitFatal {
		a.reportFatal(commandName(cmd), err)
	}
	return exitCode(err)
}

// commandName is the command path without the binary name, e.g.
// "config show".
func commandName(cmd *cobra.Command) string {
	if cmd == nil {
		return ""
	}
	return strings.TrimPrefix(strings.TrimPrefix(cmd.CommandPath(), "federate"), " ")
}

// reportFatal prints an error that stopped a command before it produced
// a result.
func (a *app) reportFatal(command string, err error) {
	if a.flags.json {
		_ = writeJSON(a.stdout, CommandResult{Command: command, OK: false, Errors: []string{err.Error()}})
		return
	}
	if a.printer != nil {
		a.printer.Error(err.Error())
		return
	}
	fmt.Fprintf(a.stderr, "Error: %v\n", err)
}
