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

// FileOperation is one change the engine can apply.
//
// The set of implementations is closed: WriteOp and DeleteOp. Code that
// needs to handle every kind does so through an OperationVisitor, so adding
// a kind adds a visitor method and breaks every visitor until it handles
// the new case.
type FileOperation interface {
	// Target returns the file path the operation acts on.
	Target() string

	// Describe returns a short human-readable summary.
	Describe() string

	// Accept dispatches to the matching visitor method.
	Accept(v OperationVisitor) error

	sealed()
}

// OperationVisitor handles each FileOperation kind.
type OperationVisitor interface {
	VisitWrite(op WriteOp) error
	VisitDelete(op DeleteOp) error
}

// WriteOp creates or replaces a file with Content.
type WriteOp struct {
	Path        string `json:"path"`
	Content     string `json:"content"`
	Description string `json:"description,omitempty"`
}

// Target implements FileOperation.
func (op WriteOp) Target() string { return op.Path }

// Describe implements FileOperation.
func (op WriteOp) Describe() string {
	if op.Description != "" {
		return op.Description
	}
	return "write " + op.Path
}

// Accept implements FileOperation.
func (op WriteOp) Accept(v OperationVisitor) error { return v.VisitWrite(op) }

func (WriteOp) sealed() {}

// DeleteOp removes a file. Deleting a missing file succeeds.
type DeleteOp struct {
	Path        string `json:"path"`
	Description string `json:"description,omitempty"`
}

// Target implements FileOperation.
func (op DeleteOp) Target() string { return op.Path }

// Describe implements FileOperation.
func (op DeleteOp) Describe() string {
	if op.Description != "" {
		return op.Description
	}
	return "delete " + op.Path
}

// Accept implements FileOperation.
func (op DeleteOp) Accept(v OperationVisitor) error { return v.VisitDelete(op) }

func (DeleteOp) sealed() {}

// batch splits operations by kind, preserving order within each kind.
type batch struct {
	writes  []WriteOp
	deletes []DeleteOp
}

func (b *batch) VisitWrite(op WriteOp) error {
	b.writes = append(b.writes, op)
	return nil
}

func (b *batch) VisitDelete(op DeleteOp) error {
	b.deletes = append(b.deletes, op)
	return nil
}

func partition(ops []FileOperation) *batch {
	b := &batch{}
	for _, op := range ops {
		if op != nil {
			_ = op.Accept(b)
		}
	}
	return b
}
