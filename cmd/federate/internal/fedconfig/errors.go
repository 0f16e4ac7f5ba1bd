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
	"errors"
	"fmt"
)

// Sentinel errors for configuration loading. All are fatal to the
// operation that produced them.
var (
	// ErrConfigNotFound means an explicitly named config path does not exist.
	// Convention misses are not errors; Load returns nil instead.
	ErrConfigNotFound = errors.New("config file not found")

	// ErrConfigParse means a config source is not a valid JSON object.
	ErrConfigParse = errors.New("config parse error")

	// ErrInvalidConfig means a config document failed validation.
	ErrInvalidConfig = errors.New("invalid federation config")
)

// ValidationError names the first field that failed validation and the
// source it came from.
type ValidationError struct {
	// Field is the offending field path, e.g. "remotes.app.entry".
	Field string

	// Source is a label for where the document came from: a file path,
	// the manifest synthetic path, or "overrides".
	Source string

	// Message describes the violation.
	Message string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s in %s: %s", ErrInvalidConfig, e.Field, e.Source, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidConfig.
func (e *ValidationError) Unwrap() error {
	return ErrInvalidConfig
}

// ParseError wraps a JSON decoding failure for a config source.
type ParseError struct {
	Path string
	Err  error
}

// Error implements the error interface.
func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrConfigParse, e.Path, e.Err)
}

// Unwrap returns the underlying error.
func (e *ParseError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is match ErrConfigParse.
func (e *ParseError) Is(target error) bool {
	return target == ErrConfigParse
}
