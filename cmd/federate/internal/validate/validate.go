// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package validate holds the scalar field validators used by the resolver
// and the CLI.
//
// Every validator returns nil on success or an error whose message is fit to
// show the user. Validators never panic. Only Directory and LocalFilePath
// touch the filesystem.
package validate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Port bounds, inclusive.
const (
	MinPort = 1024
	MaxPort = 65535
)

// ManifestFileName is the package manifest every project directory carries.
const ManifestFileName = "package.json"

var (
	namePattern   = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_-]*$`)
	digitsPattern = regexp.MustCompile(`^[0-9]+$`)

	validate = newValidator()
)

// newValidator builds the shared validator instance with the custom tags
// used by struct-level checks:
//
//   - fedname: matches the federation name pattern
//   - fedport: numeric string in [MinPort, MaxPort]
//   - exposepath: starts with "./"
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())

	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" {
			name = strings.SplitN(fld.Tag.Get("yaml"), ",", 2)[0]
		}
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("fedname", func(fl validator.FieldLevel) bool {
		return namePattern.MatchString(fl.Field().String())
	})
	_ = v.RegisterValidation("fedport", func(fl validator.FieldLevel) bool {
		return Port(fl.Field().String()) == nil
	})
	_ = v.RegisterValidation("exposepath", func(fl validator.FieldLevel) bool {
		return ExposePath(fl.Field().String()) == nil
	})
	return v
}

// Name checks a federation container name.
//
// The name must start with an ASCII letter followed by letters, digits,
// underscores or hyphens. Empty names fail.
func Name(s string) error {
	if s == "" {
		return errors.New("name is required")
	}
	if err := validate.Var(s, "fedname"); err != nil {
		return fmt.Errorf("name %q must start with a letter and contain only letters, digits, '_' or '-'", s)
	}
	return nil
}

// Port checks a dev-server port given as a decimal string.
func Port(s string) error {
	if !digitsPattern.MatchString(s) {
		return fmt.Errorf("port %q must be a number", s)
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < MinPort || n > MaxPort {
		return fmt.Errorf("port %s must be between %d and %d", s, MinPort, MaxPort)
	}
	return nil
}

// ExposePath checks that an exposed module path is relative to the project
// ("./..."). Absolute and parent-relative paths fail.
func ExposePath(s string) error {
	if !strings.HasPrefix(s, "./") {
		return fmt.Errorf("expose path %q must start with ./", s)
	}
	return nil
}

// RemoteURL checks that s is an absolute http or https URL.
func RemoteURL(s string) error {
	if s == "" {
		return errors.New("remote URL is required")
	}
	if err := validate.Var(s, "http_url"); err != nil {
		return fmt.Errorf("remote URL %q must be an absolute http:// or https:// URL", s)
	}
	return nil
}

// Directory checks that s is an existing directory holding a package manifest.
func Directory(s string) error {
	if s == "" {
		return errors.New("directory is required")
	}
	info, err := os.Stat(s)
	if err != nil {
		return fmt.Errorf("directory %s does not exist", s)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", s)
	}
	if _, err := os.Stat(filepath.Join(s, ManifestFileName)); err != nil {
		return fmt.Errorf("no %s found in %s", ManifestFileName, s)
	}
	return nil
}

// LocalFilePath resolves p against base and checks that the result exists.
func LocalFilePath(base, p string) error {
	if p == "" {
		return errors.New("path is required")
	}
	resolved := p
	if !filepath.IsAbs(p) {
		resolved = filepath.Join(base, p)
	}
	if _, err := os.Stat(resolved); err != nil {
		return fmt.Errorf("file %s does not exist", resolved)
	}
	return nil
}

// FieldError describes the first struct field that failed a Struct check.
type FieldError struct {
	// Field is the JSON name path of the failing field (e.g. "remotes[app].entry").
	Field string

	// Tag is the validation tag that failed.
	Tag string

	// Param is the tag parameter, if any.
	Param string

	// Value is the offending value.
	Value any
}

// Error implements the error interface.
func (e *FieldError) Error() string {
	switch e.Tag {
	case "required":
		return fmt.Sprintf("%s is required", e.Field)
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %v", e.Field, strings.ReplaceAll(e.Param, " ", ", "), e.Value)
	case "fedname":
		return fmt.Sprintf("%s %q must start with a letter and contain only letters, digits, '_' or '-'", e.Field, e.Value)
	case "fedport":
		return fmt.Sprintf("%s must be an integer between %d and %d, got %v", e.Field, MinPort, MaxPort, e.Value)
	case "exposepath":
		return fmt.Sprintf("%s %q must start with ./", e.Field, e.Value)
	default:
		return fmt.Sprintf("%s failed %s validation", e.Field, e.Tag)
	}
}

// Struct validates s against its `validate` tags and returns the first
// failing field, in declaration order, as a *FieldError. Returns nil when
// s is valid.
func Struct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}

	first := verrs[0]
	field := first.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	return &FieldError{
		Field: field,
		Tag:   first.Tag(),
		Param: first.Param(),
		Value: first.Value(),
	}
}
