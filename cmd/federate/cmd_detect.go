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

	"github.com/spf13/cobra"

	"github.com/AleutianAI/federate/cmd/federate/internal/detect"
	"github.com/AleutianAI/federate/cmd/federate/internal/validate"
)

func (a *app) detectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "detect [dir]",
		Short: "Show what federate detects about a project",
		Args:  cobra.MaximumNArgs(1),
		RunE:  a.runDetect,
	}
}

func (a *app) runDetect(cmd *cobra.Command, args []string) error {
	dir, err := projectDir(args, 0)
	if err != nil {
		return err
	}

	var info *detect.ProjectInfo
	reason := validate.Directory(dir)
	if reason == nil {
		info = detect.NewDetector(a.slog()).Detect(dir)
		if info == nil {
			reason = fmt.Errorf("%s is not a JSON object", detect.ManifestFileName)
		}
	}
	if reason != nil {
		msg := fmt.Sprintf("%s is not a project: %v", dir, reason)
		if !a.emit("detect", false, nil, []string{msg}) {
			a.printer.Error(msg)
		}
		return &exitError{code: ExitFailure, msg: msg}
	}

	if a.emit("detect", true, info, nil) {
		return nil
	}
	a.printProject(info)
	return nil
}

func (a *app) printProject(info *detect.ProjectInfo) {
	p := a.printer
	p.Title("Project")
	p.Field("dir", info.Dir)
	if info.Manifest != nil && info.Manifest.Name != "" {
		p.Field("name", info.Manifest.Name)
	}
	p.Field("package mgr", info.PackageManager)
	if info.ViteConfig != nil {
		p.Field("vite config", fmt.Sprintf("%s (%s)", info.ViteConfig.Path, info.ViteConfig.Dialect))
	} else {
		p.Field("vite config", "none")
	}
	p.Field("source dir", info.SourceDir)
	p.Field("tailwind", yesNo(info.HasTailwind))
	p.Field("federation", yesNo(info.HasFederation))
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
