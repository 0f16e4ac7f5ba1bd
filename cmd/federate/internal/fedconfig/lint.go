// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package fedconfig

import (
	"fmt"
	"path/filepath"

	"github.com/AleutianAI/federate/cmd/federate/internal/validate"
)

// exposeExtensions are tried when an expose path omits its extension.
var exposeExtensions = []string{"", ".ts", ".tsx", ".js", ".jsx", ".mjs", ".vue"}

// Finding is a non-fatal problem in a valid config.
type Finding struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// String implements fmt.Stringer.
func (f Finding) String() string {
	return f.Field + ": " + f.Message
}

// Lint reports problems that do not make cfg invalid but will likely break
// the build: expose paths that are not "./"-relative or do not exist under
// projectDir, remote entries that are not absolute http(s) URLs, and a role
// that declares nothing for its side of the federation.
func Lint(cfg ResolvedConfig, projectDir string) []Finding {
	var findings []Finding

	for _, key := range sortedKeys(cfg.Exposes) {
		p := cfg.Exposes[key]
		field := "exposes." + key
		if err := validate.ExposePath(p); err != nil {
			findings = append(findings, Finding{Field: field, Message: err.Error()})
			continue
		}
		if !exposeExists(projectDir, p) {
			findings = append(findings, Finding{Field: field, Message: fmt.Sprintf("file %s not found", filepath.Join(projectDir, p))})
		}
	}

	for _, key := range sortedKeys(cfg.Remotes) {
		if err := validate.RemoteURL(cfg.Remotes[key].Entry); err != nil {
			findings = append(findings, Finding{Field: "remotes." + key + ".entry", Message: err.Error()})
		}
	}

	switch cfg.Role {
	case RoleRemote:
		if len(cfg.Exposes) == 0 {
			findings = append(findings, Finding{Field: "exposes", Message: "remote role exposes no modules"})
		}
	case RoleHost:
		if len(cfg.Remotes) == 0 {
			findings = append(findings, Finding{Field: "remotes", Message: "host role declares no remotes"})
		}
	}

	return findings
}

func exposeExists(projectDir, p string) bool {
	for _, ext := range exposeExtensions {
		if validate.LocalFilePath(projectDir, p+ext) == nil {
			return true
		}
	}
	return false
}
