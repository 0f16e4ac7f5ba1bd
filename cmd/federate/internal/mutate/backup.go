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
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Backup defaults.
const (
	DefaultMaxBackups   = 5
	DefaultBackupSuffix = ".backup"
	DefaultTimeFormat   = "2006-01-02_150405.000000"
)

// ErrNotABackup is returned when a path does not follow the backup naming
// scheme.
var ErrNotABackup = errors.New("not a backup path")

// BackupInfo describes one backup file.
type BackupInfo struct {
	// Path is the full path to the backup.
	Path string `json:"path"`

	// OriginalPath is the file that was backed up.
	OriginalPath string `json:"originalPath"`

	// CreatedAt is parsed from the backup name.
	CreatedAt time.Time `json:"createdAt"`

	// Size is the backup size in bytes.
	Size int64 `json:"size"`
}

// BackupConfig configures backup naming and retention.
//
// # Example
//
//	config := BackupConfig{
//	    MaxBackups:   5,
//	    BackupSuffix: ".backup",
//	    TimeFormat:   "2006-01-02_150405.000000",
//	}
type BackupConfig struct {
	// MaxBackups is the number of backups kept per file. Default: 5
	MaxBackups int

	// BackupSuffix goes between the file name and the timestamp.
	// Default: ".backup"
	BackupSuffix string

	// TimeFormat is the timestamp layout. Default: DefaultTimeFormat
	TimeFormat string
}

// DefaultBackupConfig returns the standard backup settings.
func DefaultBackupConfig() BackupConfig {
	return BackupConfig{
		MaxBackups:   DefaultMaxBackups,
		BackupSuffix: DefaultBackupSuffix,
		TimeFormat:   DefaultTimeFormat,
	}
}

// BackupManager creates, lists, restores and prunes sibling backups of
// project files.
//
// A backup of "vite.config.ts" is "vite.config.ts.backup.<timestamp>" in the
// same directory. After each backup the oldest copies beyond MaxBackups are
// removed.
//
// # Thread Safety
//
// BackupManager holds only configuration and is safe for concurrent use.
// Concurrent backups of the same file race on rotation.
type BackupManager struct {
	config BackupConfig
	now    func() time.Time
}

// NewBackupManager creates a BackupManager, filling zero config fields with
// defaults.
func NewBackupManager(config BackupConfig) *BackupManager {
	if config.MaxBackups <= 0 {
		config.MaxBackups = DefaultMaxBackups
	}
	if config.BackupSuffix == "" {
		config.BackupSuffix = DefaultBackupSuffix
	}
	if config.TimeFormat == "" {
		config.TimeFormat = DefaultTimeFormat
	}
	return &BackupManager{config: config, now: time.Now}
}

// Create copies path to a timestamped sibling.
//
// # Outputs
//
//   - string: The backup path, or "" when path does not exist.
//   - error: Non-nil if path is a directory or the copy failed.
func (m *BackupManager) Create(path string) (string, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("backup %s: is a directory", path)
	}

	backupPath := m.backupPath(path)
	if err := copyFile(path, backupPath); err != nil {
		_ = os.Remove(backupPath)
		return "", fmt.Errorf("backup %s: %w", path, err)
	}

	// Rotation failure leaves extra backups behind; the new one is intact.
	_ = m.rotate(path)

	return backupPath, nil
}

// List returns the backups of originalPath, newest first.
func (m *BackupManager) List(originalPath string) ([]BackupInfo, error) {
	dir := filepath.Dir(originalPath)
	prefix := filepath.Base(originalPath) + m.config.BackupSuffix + "."

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var backups []BackupInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, prefix) {
			continue
		}
		createdAt, err := time.ParseInLocation(m.config.TimeFormat, strings.TrimPrefix(name, prefix), time.Local)
		if err != nil {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, BackupInfo{
			Path:         filepath.Join(dir, name),
			OriginalPath: originalPath,
			CreatedAt:    createdAt,
			Size:         info.Size(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Restore moves backupPath back over the file it was taken from and
// returns that file's path. The backup is consumed.
func (m *BackupManager) Restore(backupPath string) (string, error) {
	originalPath := m.OriginalPath(backupPath)
	if originalPath == "" {
		return "", fmt.Errorf("%w: %s", ErrNotABackup, backupPath)
	}
	if _, err := os.Stat(backupPath); err != nil {
		return "", fmt.Errorf("restore %s: %w", backupPath, err)
	}

	if err := os.Rename(backupPath, originalPath); err != nil {
		// Cross-device or locked destination.
		if cerr := copyFile(backupPath, originalPath); cerr != nil {
			return "", fmt.Errorf("restore %s: %w", backupPath, errors.Join(err, cerr))
		}
		_ = os.Remove(backupPath)
	}
	return originalPath, nil
}

// CleanOld removes backups of originalPath older than maxAge and returns
// how many were removed.
func (m *BackupManager) CleanOld(originalPath string, maxAge time.Duration) (int, error) {
	backups, err := m.List(originalPath)
	if err != nil {
		return 0, err
	}

	cutoff := m.now().Add(-maxAge)
	removed := 0
	for _, b := range backups {
		if !b.CreatedAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(b.Path); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}

// CreateAll backs up every existing target of ops, resolving relative
// paths against baseDir. On failure the backups already made are removed.
func (m *BackupManager) CreateAll(ops []FileOperation, baseDir string) ([]string, error) {
	var created []string
	for _, op := range ops {
		target := op.Target()
		if !filepath.IsAbs(target) {
			target = filepath.Join(baseDir, target)
		}
		backupPath, err := m.Create(target)
		if err != nil {
			for _, p := range created {
				_ = RemoveBackup(p)
			}
			return nil, err
		}
		if backupPath != "" {
			created = append(created, backupPath)
		}
	}
	return created, nil
}

// OriginalPath returns the file a backup was taken from, or "" if
// backupPath does not follow the naming scheme.
func (m *BackupManager) OriginalPath(backupPath string) string {
	base := filepath.Base(backupPath)
	idx := strings.LastIndex(base, m.config.BackupSuffix+".")
	if idx <= 0 {
		return ""
	}
	stamp := base[idx+len(m.config.BackupSuffix)+1:]
	if _, err := time.Parse(m.config.TimeFormat, stamp); err != nil {
		return ""
	}
	return filepath.Join(filepath.Dir(backupPath), base[:idx])
}

func (m *BackupManager) backupPath(originalPath string) string {
	stamp := m.now().Format(m.config.TimeFormat)
	return originalPath + m.config.BackupSuffix + "." + stamp
}

// rotate removes the oldest backups beyond MaxBackups.
func (m *BackupManager) rotate(originalPath string) error {
	backups, err := m.List(originalPath)
	if err != nil {
		return err
	}
	var errs []error
	for i := m.config.MaxBackups; i < len(backups); i++ {
		if err := os.Remove(backups[i].Path); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CreateBackup backs up path with the default config.
//
// Returns "" and a nil error when path does not exist.
func CreateBackup(path string) (string, error) {
	return NewBackupManager(DefaultBackupConfig()).Create(path)
}

// RemoveBackup deletes a backup file. An empty path or a missing file is
// not an error.
func RemoveBackup(path string) error {
	if path == "" {
		return nil
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove backup %s: %w", path, err)
	}
	return nil
}
