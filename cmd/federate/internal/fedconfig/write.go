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
	"encoding/json"
	"fmt"

	"github.com/AleutianAI/federate/cmd/federate/internal/mutate"
)

// Marshal renders cfg as an indented config document with a trailing
// newline. A zero Version is written as SchemaVersion.
func Marshal(cfg ResolvedConfig) ([]byte, error) {
	if cfg.Version == 0 {
		cfg.Version = SchemaVersion
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return append(data, '\n'), nil
}

// WriteConventionFile returns the operation that writes cfg to the
// top-priority convention file in projectDir. Nothing touches disk until
// the operation is applied by an Engine.
func WriteConventionFile(projectDir string, cfg ResolvedConfig) (mutate.WriteOp, error) {
	data, err := Marshal(cfg)
	if err != nil {
		return mutate.WriteOp{}, err
	}
	return mutate.WriteOp{
		Path:        ConventionPath(projectDir),
		Content:     string(data),
		Description: "write " + ConventionFiles[0],
	}, nil
}
