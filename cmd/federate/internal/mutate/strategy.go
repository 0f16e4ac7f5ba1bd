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
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// CommitStrategy moves a staged temp file onto its destination.
//
// On success the temp file must no longer exist. On failure the temp file
// must still exist so the next strategy can try.
type CommitStrategy struct {
	Name   string
	Commit func(tmp, dest string) error
}

// RenameStrategy is a plain atomic rename.
var RenameStrategy = CommitStrategy{Name: "rename", Commit: os.Rename}

// ReplaceStrategy removes the destination, then renames. Covers platforms
// that refuse to rename over an existing or locked file.
var ReplaceStrategy = CommitStrategy{Name: "replace", Commit: replaceCommit}

// CopyStrategy copies the temp file's bytes over the destination and then
// deletes the temp file. Covers cross-volume moves.
var CopyStrategy = CommitStrategy{Name: "copy", Commit: copyCommit}

// DefaultStrategies returns the commit fallback chain in order.
func DefaultStrategies() []CommitStrategy {
	return []CommitStrategy{RenameStrategy, ReplaceStrategy, CopyStrategy}
}

// replaceCommit leaves dest untouched when there is no staged file to
// move into its place.
func replaceCommit(tmp, dest string) error {
	if _, err := os.Lstat(tmp); err != nil {
		return fmt.Errorf("staged file: %w", err)
	}
	if err := os.Remove(dest); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove destination: %w", err)
	}
	return os.Rename(tmp, dest)
}

func copyCommit(tmp, dest string) error {
	if err := copyFile(tmp, dest); err != nil {
		return err
	}
	// The destination is final at this point; a leftover temp file is not
	// a commit failure.
	_ = os.Remove(tmp)
	return nil
}

// runStrategy calls s.Commit and converts a panic into an error.
func runStrategy(s CommitStrategy, tmp, dest string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s strategy panicked: %v", s.Name, r)
		}
	}()
	if s.Commit == nil {
		return fmt.Errorf("%s strategy has no commit function", s.Name)
	}
	return s.Commit(tmp, dest)
}

// copyFile copies src to dst, creating or truncating dst with src's mode.
func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", src, err)
	}

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy to %s: %w", dst, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return fmt.Errorf("sync %s: %w", dst, err)
	}
	return out.Close()
}
