// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package preview renders a batch of file operations as a unified diff
// against the current disk state, without changing anything.
package preview

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pmezard/go-difflib/difflib"
	"github.com/sourcegraph/go-diff/diff"

	"github.com/AleutianAI/federate/cmd/federate/internal/mutate"
)

// DefaultContext is the number of unchanged lines shown around each hunk.
const DefaultContext = 3

// devNull names the missing side of a create or delete.
const devNull = "/dev/null"

// ChangeKind classifies the effect of one operation.
type ChangeKind string

const (
	KindCreate    ChangeKind = "create"
	KindModify    ChangeKind = "modify"
	KindDelete    ChangeKind = "delete"
	KindUnchanged ChangeKind = "unchanged"
	KindNoop      ChangeKind = "noop"
)

// FileChange is the preview of one operation.
type FileChange struct {
	Path        string     `json:"path"`
	Kind        ChangeKind `json:"kind"`
	Description string     `json:"description"`
	Diff        string     `json:"diff,omitempty"`
	Added       int        `json:"added"`
	Removed     int        `json:"removed"`
}

// Preview is the diff of a whole batch.
type Preview struct {
	Changes []FileChange `json:"changes"`
	Added   int          `json:"added"`
	Removed int          `json:"removed"`
}

// Changed returns the number of files the batch would alter.
func (p *Preview) Changed() int {
	n := 0
	for _, c := range p.Changes {
		if c.Kind != KindUnchanged && c.Kind != KindNoop {
			n++
		}
	}
	return n
}

// Diff returns the concatenated unified diff of every change.
func (p *Preview) Diff() string {
	var b strings.Builder
	for _, c := range p.Changes {
		b.WriteString(c.Diff)
	}
	return b.String()
}

// builder visits operations and accumulates their diffs.
type builder struct {
	baseDir string
	context int
	changes []FileChange
}

// Build diffs every operation against the file currently on disk.
//
// # Description
//
// Writes to a missing path are creates, writes with identical content are
// unchanged, deletes of a missing path are no-ops. Line counts are taken by
// parsing the rendered diff so they match what a patch tool would apply.
//
// # Inputs
//
//   - ops: The batch. Nil entries are skipped.
//   - baseDir: Base for relative operation paths.
//
// # Outputs
//
//   - *Preview: One FileChange per non-nil operation, in input order.
//   - error: A file that exists but cannot be read.
func Build(ops []mutate.FileOperation, baseDir string) (*Preview, error) {
	b := &builder{baseDir: baseDir, context: DefaultContext}
	for _, op := range ops {
		if op == nil {
			continue
		}
		if err := op.Accept(b); err != nil {
			return nil, err
		}
	}

	p := &Preview{Changes: b.changes}
	if p.Changes == nil {
		p.Changes = []FileChange{}
	}
	for i := range p.Changes {
		if err := countLines(&p.Changes[i]); err != nil {
			return nil, err
		}
		p.Added += p.Changes[i].Added
		p.Removed += p.Changes[i].Removed
	}
	return p, nil
}

// VisitWrite implements mutate.OperationVisitor.
func (b *builder) VisitWrite(op mutate.WriteOp) error {
	rel, abs := b.paths(op.Path)
	change := FileChange{Path: rel, Description: op.Describe()}

	current, exists, err := readCurrent(abs)
	if err != nil {
		return err
	}

	from := "a/" + rel
	switch {
	case !exists:
		change.Kind = KindCreate
		from = devNull
	case current == op.Content:
		change.Kind = KindUnchanged
		b.changes = append(b.changes, change)
		return nil
	default:
		change.Kind = KindModify
	}

	text, err := unified(current, op.Content, from, "b/"+rel, b.context)
	if err != nil {
		return fmt.Errorf("diff %s: %w", rel, err)
	}
	change.Diff = text
	b.changes = append(b.changes, change)
	return nil
}

// VisitDelete implements mutate.OperationVisitor.
func (b *builder) VisitDelete(op mutate.DeleteOp) error {
	rel, abs := b.paths(op.Path)
	change := FileChange{Path: rel, Description: op.Describe()}

	current, exists, err := readCurrent(abs)
	if err != nil {
		return err
	}
	if !exists {
		change.Kind = KindNoop
		b.changes = append(b.changes, change)
		return nil
	}

	change.Kind = KindDelete
	text, err := unified(current, "", "a/"+rel, devNull, b.context)
	if err != nil {
		return fmt.Errorf("diff %s: %w", rel, err)
	}
	change.Diff = text
	b.changes = append(b.changes, change)
	return nil
}

func (b *builder) paths(p string) (rel, abs string) {
	abs = p
	if !filepath.IsAbs(p) {
		abs = filepath.Join(b.baseDir, p)
	}
	rel = abs
	if b.baseDir != "" {
		if r, err := filepath.Rel(b.baseDir, abs); err == nil {
			rel = r
		}
	}
	return filepath.ToSlash(rel), abs
}

// readCurrent returns the file's content and whether it exists. A directory
// at the path is reported as an error.
func readCurrent(path string) (string, bool, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), true, nil
}

func unified(a, b, from, to string, context int) (string, error) {
	if a == b {
		return "", nil
	}
	return difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        splitLines(a),
		B:        splitLines(b),
		FromFile: from,
		ToFile:   to,
		Context:  context,
	})
}

// splitLines splits s after each newline. A final line without one is
// given one so the diff stays line-oriented.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.SplitAfter(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	} else {
		lines[len(lines)-1] += "\n"
	}
	return lines
}

// countLines fills Added and Removed from the parsed diff text.
func countLines(c *FileChange) error {
	if c.Diff == "" {
		return nil
	}
	fileDiffs, err := diff.NewMultiFileDiffReader(strings.NewReader(c.Diff)).ReadAllFiles()
	if err != nil {
		return fmt.Errorf("parse diff for %s: %w", c.Path, err)
	}
	for _, fd := range fileDiffs {
		for _, hunk := range fd.Hunks {
			for _, line := range strings.Split(string(hunk.Body), "\n") {
				switch {
				case strings.HasPrefix(line, "+"):
					c.Added++
				case strings.HasPrefix(line, "-"):
					c.Removed++
				}
			}
		}
	}
	return nil
}
