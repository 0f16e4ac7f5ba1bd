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
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"

	"github.com/AleutianAI/federate/cmd/federate/internal/validate"
)

// Validate checks a loaded config document and returns the first violation
// as a *ValidationError naming source.
//
// Fields are checked in a fixed order: role, port, name, buildTarget,
// exposes, remotes, shared. Map entries are checked in key order so the
// reported violation is deterministic. Absent fields are valid.
func Validate(doc map[string]any, source string) error {
	checks := []func(map[string]any) *ValidationError{
		checkRole,
		checkPort,
		checkName,
		checkBuildTarget,
		checkExposes,
		checkRemotes,
		checkShared,
	}
	for _, check := range checks {
		if verr := check(doc); verr != nil {
			verr.Source = source
			return verr
		}
	}
	return nil
}

// ValidateConfig checks an already typed config. Resolve uses it to hold
// merged override values to the same rules as file sources.
//
// The config is first checked as a document by Validate, so violations are
// reported in the same field order, then by the struct-level tags.
func ValidateConfig(cfg *ResolvedConfig, source string) error {
	if cfg == nil {
		return nil
	}
	data, err := json.Marshal(cfg)
	if err != nil {
		return &ValidationError{Field: "config", Source: source, Message: err.Error()}
	}
	doc, err := decodeObject(data)
	if err != nil {
		return &ValidationError{Field: "config", Source: source, Message: err.Error()}
	}
	if err := Validate(doc, source); err != nil {
		return err
	}
	if err := validate.Struct(cfg); err != nil {
		var fe *validate.FieldError
		if errors.As(err, &fe) {
			return &ValidationError{Field: fe.Field, Source: source, Message: fieldMessage(fe)}
		}
		return &ValidationError{Field: "config", Source: source, Message: err.Error()}
	}
	return nil
}

// fieldMessage strips the field name FieldError puts in front of its
// message, since ValidationError prints it separately.
func fieldMessage(fe *validate.FieldError) string {
	return strings.TrimPrefix(fe.Error(), fe.Field+" ")
}

func checkRole(doc map[string]any) *ValidationError {
	v, ok := doc["role"]
	if !ok {
		return nil
	}
	s, isString := v.(string)
	if !isString || !Role(s).Valid() {
		return &ValidationError{
			Field:   "role",
			Message: fmt.Sprintf("must be %q or %q, got %s", RoleRemote, RoleHost, describe(v)),
		}
	}
	return nil
}

func checkPort(doc map[string]any) *ValidationError {
	v, ok := doc["port"]
	if !ok {
		return nil
	}

	var s string
	switch p := v.(type) {
	case string:
		s = p
	case json.Number:
		s = p.String()
	default:
		return &ValidationError{Field: "port", Message: fmt.Sprintf("must be an integer or numeric string, got %s", describe(v))}
	}
	if err := validate.Port(s); err != nil {
		return &ValidationError{Field: "port", Message: err.Error()}
	}
	return nil
}

func checkName(doc map[string]any) *ValidationError {
	v, ok := doc["name"]
	if !ok {
		return nil
	}
	s, isString := v.(string)
	if !isString {
		return &ValidationError{Field: "name", Message: fmt.Sprintf("must be a string, got %s", describe(v))}
	}
	if err := validate.Name(s); err != nil {
		return &ValidationError{Field: "name", Message: err.Error()}
	}
	return nil
}

func checkBuildTarget(doc map[string]any) *ValidationError {
	v, ok := doc["buildTarget"]
	if !ok {
		return nil
	}
	s, isString := v.(string)
	if !isString || !slices.Contains(BuildTargets, s) {
		return &ValidationError{
			Field:   "buildTarget",
			Message: fmt.Sprintf("must be one of [%s], got %s", strings.Join(BuildTargets, ", "), describe(v)),
		}
	}
	return nil
}

func checkExposes(doc map[string]any) *ValidationError {
	v, ok := doc["exposes"]
	if !ok {
		return nil
	}
	m, isObject := v.(map[string]any)
	if !isObject {
		return &ValidationError{Field: "exposes", Message: fmt.Sprintf("must be an object, got %s", describe(v))}
	}
	for _, key := range sortedKeys(m) {
		if _, isString := m[key].(string); !isString {
			return &ValidationError{
				Field:   "exposes." + key,
				Message: fmt.Sprintf("must be a string path, got %s", describe(m[key])),
			}
		}
	}
	return nil
}

func checkRemotes(doc map[string]any) *ValidationError {
	v, ok := doc["remotes"]
	if !ok {
		return nil
	}
	m, isObject := v.(map[string]any)
	if !isObject {
		return &ValidationError{Field: "remotes", Message: fmt.Sprintf("must be an object, got %s", describe(v))}
	}
	for _, key := range sortedKeys(m) {
		entry, isObject := m[key].(map[string]any)
		if !isObject {
			return &ValidationError{
				Field:   "remotes." + key,
				Message: fmt.Sprintf("must be an object with an entry URL, got %s", describe(m[key])),
			}
		}
		url, isString := entry["entry"].(string)
		if !isString || url == "" {
			return &ValidationError{Field: "remotes." + key + ".entry", Message: "must be a non-empty URL string"}
		}
		for _, opt := range []string{"type", "entryGlobalName", "shareScope"} {
			if ov, present := entry[opt]; present {
				if _, isString := ov.(string); !isString {
					return &ValidationError{
						Field:   "remotes." + key + "." + opt,
						Message: fmt.Sprintf("must be a string, got %s", describe(ov)),
					}
				}
			}
		}
	}
	return nil
}

func checkShared(doc map[string]any) *ValidationError {
	v, ok := doc["shared"]
	if !ok {
		return nil
	}
	m, isObject := v.(map[string]any)
	if !isObject {
		return &ValidationError{Field: "shared", Message: fmt.Sprintf("must be an object, got %s", describe(v))}
	}
	for _, key := range sortedKeys(m) {
		dep, isObject := m[key].(map[string]any)
		if !isObject {
			return &ValidationError{Field: "shared." + key, Message: fmt.Sprintf("must be an object, got %s", describe(m[key]))}
		}
		for _, flag := range []string{"singleton", "eager"} {
			if fv, present := dep[flag]; present {
				if _, isBool := fv.(bool); !isBool {
					return &ValidationError{Field: "shared." + key + "." + flag, Message: fmt.Sprintf("must be a boolean, got %s", describe(fv))}
				}
			}
		}
		if rv, present := dep["requiredVersion"]; present {
			if _, isString := rv.(string); !isString {
				return &ValidationError{Field: "shared." + key + ".requiredVersion", Message: fmt.Sprintf("must be a string, got %s", describe(rv))}
			}
		}
	}
	return nil
}

func describe(v any) string {
	switch t := v.(type) {
	case string:
		return fmt.Sprintf("%q", t)
	case json.Number:
		return t.String()
	default:
		return jsonKind(v)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
