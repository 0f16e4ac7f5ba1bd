// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package mutate

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
)

// Operation kinds as they appear in plan files.
const (
	KindWrite  = "write"
	KindDelete = "delete"
)

// ErrInvalidPlan is returned for plan files that cannot be decoded.
var ErrInvalidPlan = errors.New("invalid plan")

// Plan is the on-disk form of an operation list:
//
//	{"operations": [
//	  {"type": "write", "path": "a.txt", "content": "X"},
//	  {"type": "delete", "path": "old.txt"}
//	]}
type Plan struct {
	Operations []FileOperation
}

type planFile struct {
	Operations []planEntry `json:"operations"`
}

type planEntry struct {
	Type        string  `json:"type"`
	Path        string  `json:"path"`
	Content     *string `json:"content,omitempty"`
	Description string  `json:"description,omitempty"`
}

// planEncoder converts operations to plan entries.
type planEncoder struct {
	entries []planEntry
}

func (e *planEncoder) VisitWrite(op WriteOp) error {
	content := op.Content
	e.entries = append(e.entries, planEntry{Type: KindWrite, Path: op.Path, Content: &content, Description: op.Description})
	return nil
}

func (e *planEncoder) VisitDelete(op DeleteOp) error {
	e.entries = append(e.entries, planEntry{Type: KindDelete, Path: op.Path, Description: op.Description})
	return nil
}

// MarshalJSON implements json.Marshaler.
func (p Plan) MarshalJSON() ([]byte, error) {
	enc := &planEncoder{entries: []planEntry{}}
	for _, op := range p.Operations {
		if err := op.Accept(enc); err != nil {
			return nil, err
		}
	}
	return json.Marshal(planFile{Operations: enc.entries})
}

// UnmarshalJSON implements json.Unmarshaler.
//
// Every entry needs a type of "write" or "delete" and a non-empty path.
// Write entries need content (which may be the empty string).
func (p *Plan) UnmarshalJSON(data []byte) error {
	var pf planFile
	if err := json.Unmarshal(data, &pf); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}

	ops := make([]FileOperation, 0, len(pf.Operations))
	for i, e := range pf.Operations {
		if e.Path == "" {
			return fmt.Errorf("%w: operation %d: path is required", ErrInvalidPlan, i)
		}
		switch e.Type {
		case KindWrite:
			if e.Content == nil {
				return fmt.Errorf("%w: operation %d: write requires content", ErrInvalidPlan, i)
			}
			ops = append(ops, WriteOp{Path: e.Path, Content: *e.Content, Description: e.Description})
		case KindDelete:
			ops = append(ops, DeleteOp{Path: e.Path, Description: e.Description})
		default:
			return fmt.Errorf("%w: operation %d: unknown type %q", ErrInvalidPlan, i, e.Type)
		}
	}
	p.Operations = ops
	return nil
}

// DecodePlan reads a plan from r.
func DecodePlan(r io.Reader) ([]FileOperation, error) {
	var p Plan
	if err := json.NewDecoder(r).Decode(&p); err != nil {
		if errors.Is(err, ErrInvalidPlan) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidPlan, err)
	}
	return p.Operations, nil
}

// ReadPlanFile reads and decodes the plan at path.
func ReadPlanFile(path string) ([]FileOperation, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open plan: %w", err)
	}
	defer f.Close()
	return DecodePlan(f)
}
