// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package lock provides the advisory per-project lock taken by commands
// that mutate a project.
//
// The lock is an OS file lock on FileName in the project directory. The
// file also carries a JSON Holder record so a blocked process can say who
// it is waiting on and decide whether the lock was abandoned.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileName is the lock file created in the project directory.
const FileName = ".federate.lock"

// StaleAfter is the age past which a held lock is considered abandoned.
const StaleAfter = 1 * time.Hour

var (
	// ErrEmptyProjectDir is returned by New for an empty directory.
	ErrEmptyProjectDir = errors.New("project directory is empty")

	// ErrLockHeld means another process holds the project lock. Errors
	// returned by Acquire for a held lock are *HeldError values that match
	// it with errors.Is.
	ErrLockHeld = errors.New("project is locked by another federate process")

	// ErrLockAcquireFailed wraps unexpected failures while locking.
	ErrLockAcquireFailed = errors.New("failed to acquire project lock")

	// ErrNoHolder means the lock file is missing or carries no record.
	ErrNoHolder = errors.New("no lock holder recorded")
)

// Holder identifies the process holding a lock.
type Holder struct {
	PID        int       `json:"pid"`
	Host       string    `json:"host,omitempty"`
	Command    string    `json:"command,omitempty"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// HeldError reports a lock held by someone else.
type HeldError struct {
	Path string
	// Holder is zero when the record could not be read.
	Holder Holder
}

func (e *HeldError) Error() string {
	if e.Holder.PID == 0 {
		return fmt.Sprintf("%s (%s)", ErrLockHeld, e.Path)
	}
	return fmt.Sprintf("%s (pid %d since %s, %s)", ErrLockHeld, e.Holder.PID,
		e.Holder.AcquiredAt.Format(time.RFC3339), e.Path)
}

func (e *HeldError) Is(target error) bool { return target == ErrLockHeld }

// FileLock is an advisory, non-blocking exclusive lock on a project.
//
// # Thread Safety
//
// FileLock is NOT safe for concurrent use. Each goroutine should have its
// own instance.
//
// # Platform Support
//
// flock(2) on Unix, LockFileEx on Windows, and a no-op elsewhere.
type FileLock struct {
	path string
	held *os.File
	now  func() time.Time
	host func() (string, error)
}

// New returns an unacquired lock for projectDir.
func New(projectDir string) (*FileLock, error) {
	if projectDir == "" {
		return nil, ErrEmptyProjectDir
	}
	return &FileLock{
		path: filepath.Join(projectDir, FileName),
		now:  time.Now,
		host: os.Hostname,
	}, nil
}

// Path returns the lock file path.
func (l *FileLock) Path() string { return l.path }

// Acquire takes the lock without waiting. Acquiring a lock this instance
// already holds is a no-op.
//
// # Outputs
//
//   - error: a *HeldError when another process holds the lock, or
//     ErrLockAcquireFailed wrapping the cause.
func (l *FileLock) Acquire() error {
	if l.held != nil {
		return nil
	}

	// A holder releasing between our open and lock unlinks the file we
	// locked; retry against whatever now sits at the path.
	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0o644)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
		}
		switch err := lockFile(f); {
		case errors.Is(err, ErrLockHeld):
			f.Close()
			holder, _ := l.Holder()
			return &HeldError{Path: l.path, Holder: holder}
		case err != nil:
			f.Close()
			return fmt.Errorf("%w: %v", ErrLockAcquireFailed, err)
		}

		if !l.current(f) {
			_ = unlockFile(f)
			f.Close()
			continue
		}

		// The record is diagnostic only; a lock without one still excludes.
		_ = writeHolder(f, l.self())
		l.held = f
		return nil
	}
	return fmt.Errorf("%w: %s keeps being replaced", ErrLockAcquireFailed, l.path)
}

// current reports whether f is still the file at l.path.
func (l *FileLock) current(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	pi, err := os.Stat(l.path)
	if err != nil {
		return false
	}
	return os.SameFile(fi, pi)
}

func (l *FileLock) self() Holder {
	h := Holder{PID: os.Getpid(), AcquiredAt: l.now().UTC()}
	if name, err := l.host(); err == nil {
		h.Host = name
	}
	if len(os.Args) > 1 {
		h.Command = strings.Join(os.Args[1:], " ")
	}
	return h
}

func writeHolder(f *os.File, h Holder) error {
	data, err := json.Marshal(h)
	if err != nil {
		return err
	}
	if err := f.Truncate(0); err != nil {
		return err
	}
	_, err = f.WriteAt(append(data, '\n'), 0)
	return err
}

// Release unlocks and removes the lock file. It is a no-op on a lock this
// instance does not hold.
func (l *FileLock) Release() error {
	f := l.held
	if f == nil {
		return nil
	}
	l.held = nil
	// Remove while still locked so no waiter locks a file about to vanish.
	_ = os.Remove(l.path)
	_ = unlockFile(f)
	return f.Close()
}

// Holder reads the record left by the current or last holder.
func (l *FileLock) Holder() (Holder, error) {
	data, err := os.ReadFile(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return Holder{}, ErrNoHolder
	}
	if err != nil {
		return Holder{}, err
	}
	var h Holder
	if err := json.Unmarshal(data, &h); err != nil || h.PID == 0 {
		return Holder{}, ErrNoHolder
	}
	return h, nil
}

// Stale reports whether a held lock looks abandoned.
//
// Where the OS releases a lock when its holder exits (flock, LockFileEx),
// a held lock always has a live holder and Stale is false. Elsewhere the
// lock is abandoned when acquired more than StaleAfter ago, or recorded by
// a process on this host that has exited.
func (l *FileLock) Stale() bool {
	if osReleasesLocks {
		return false
	}
	return l.abandoned()
}

// abandoned judges the holder record. Without a readable record the file's
// modification time stands in for the acquisition time.
func (l *FileLock) abandoned() bool {
	h, err := l.Holder()
	if err != nil {
		info, serr := os.Stat(l.path)
		return serr == nil && l.now().Sub(info.ModTime()) > StaleAfter
	}
	if l.now().Sub(h.AcquiredAt) > StaleAfter {
		return true
	}
	if host, err := l.host(); err == nil && h.Host != "" && h.Host != host {
		return false
	}
	return !processAlive(h.PID)
}

// Break removes a lock file left by another process so Acquire can be
// retried. Another process can take the lock between Stale and Break.
//
// Where the OS releases locks on exit, Break refuses with ErrLockHeld and
// leaves the file alone.
func (l *FileLock) Break() error {
	if osReleasesLocks {
		return fmt.Errorf("%w: not breaking %s", ErrLockHeld, l.path)
	}
	if err := os.Remove(l.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}
