// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package inspect reads federation settings out of an existing build-config
// file without executing or fully parsing it.
//
// The TextInspector locates the federation(...) call, matches its delimiters
// while skipping string literals and comments, and reads top-level object
// properties of its first argument. It is best-effort: configs that build
// the options object elsewhere and pass a variable are reported as a call
// with no recognizable fields.
package inspect

import (
	"regexp"
	"strings"
)

// FederationCall is the function name whose invocation anchors every
// extraction.
const FederationCall = "federation"

// Role is the role inferred from build-config text.
type Role string

const (
	RoleRemote  Role = "remote"
	RoleHost    Role = "host"
	RoleUnknown Role = "unknown"
)

// Report is everything an Inspector can read from one config file.
type Report struct {
	HasCall bool              `json:"hasCall"`
	Role    Role              `json:"role"`
	Name    string            `json:"name,omitempty"`
	Port    string            `json:"port,omitempty"`
	Exposes map[string]string `json:"exposes,omitempty"`
	Remotes map[string]string `json:"remotes,omitempty"`
}

// Inspector extracts federation settings from build-config source text.
//
// # Description
//
// Every method is total: a missing anchor yields an empty result, never an
// error or a panic. Callers treat absence as unknown.
//
// # Thread Safety
//
// Implementations must be safe for concurrent use.
type Inspector interface {
	// DetectRole returns RoleRemote when exposes are declared, RoleHost
	// when only remotes are declared, else RoleUnknown.
	DetectRole(text string) Role

	// ParseExposes returns exposed name -> module path pairs.
	ParseExposes(text string) map[string]string

	// ParseRemotes returns remote name -> entry pairs. Object-valued
	// remotes contribute their entry property.
	ParseRemotes(text string) map[string]string

	// FindFederationCall returns the text between the call's parentheses.
	FindFederationCall(text string) (string, bool)

	// ExtractName returns the name option, or "".
	ExtractName(text string) string

	// ExtractPort returns the port option as digits, or "".
	ExtractPort(text string) string

	// Inspect runs every extraction.
	Inspect(text string) Report
}

// TextInspector is the pattern-based Inspector. The zero value is ready
// to use.
type TextInspector struct{}

// New returns the default Inspector.
func New() Inspector {
	return TextInspector{}
}

var (
	namePattern = regexp.MustCompile(`(?:^|[^\w$.])name\s*:\s*(?:"([^"\n]*)"|'([^'\n]*)'|` + "`([^`$]*)`" + `)`)
	portPattern = regexp.MustCompile(`(?:^|[^\w$.])port\s*:\s*['"]?(\d{1,5})\b`)
)

// FindFederationCall implements Inspector.
func (TextInspector) FindFederationCall(text string) (string, bool) {
	open := findCall(text, FederationCall)
	if open < 0 {
		return "", false
	}
	end := matchClose(text, open)
	if end < 0 {
		return "", false
	}
	return text[open+1 : end], true
}

// options returns the top-level properties of the call's first argument
// when it is an object literal.
func (i TextInspector) options(text string) ([]property, bool) {
	args, ok := i.FindFederationCall(text)
	if !ok {
		return nil, false
	}
	body, ok := objectBody(args, 0)
	if !ok {
		return nil, false
	}
	return objectProperties(body), true
}

func (i TextInspector) option(text, key string) (string, bool) {
	props, _ := i.options(text)
	for _, p := range props {
		if p.key == key {
			return p.value, true
		}
	}
	return "", false
}

// ParseExposes implements Inspector.
func (i TextInspector) ParseExposes(text string) map[string]string {
	value, ok := i.option(text, "exposes")
	if !ok {
		return map[string]string{}
	}
	body, ok := objectBody(value, 0)
	if !ok {
		return map[string]string{}
	}

	exposes := make(map[string]string)
	for _, p := range objectProperties(body) {
		if path, ok := stringLiteral(p.value); ok {
			exposes[p.key] = path
			continue
		}
		// { import: './src/Button.tsx' }
		if inner, ok := objectBody(p.value, 0); ok {
			for _, ip := range objectProperties(inner) {
				if ip.key == "import" {
					if path, ok := stringLiteral(ip.value); ok {
						exposes[p.key] = path
					}
				}
			}
		}
	}
	return exposes
}

// ParseRemotes implements Inspector.
func (i TextInspector) ParseRemotes(text string) map[string]string {
	value, ok := i.option(text, "remotes")
	if !ok {
		return map[string]string{}
	}
	body, ok := objectBody(value, 0)
	if !ok {
		return map[string]string{}
	}

	remotes := make(map[string]string)
	for _, p := range objectProperties(body) {
		if entry, ok := stringLiteral(p.value); ok {
			remotes[p.key] = entry
			continue
		}
		if inner, ok := objectBody(p.value, 0); ok {
			for _, ip := range objectProperties(inner) {
				if ip.key == "entry" {
					if entry, ok := stringLiteral(ip.value); ok {
						remotes[p.key] = entry
					}
				}
			}
		}
	}
	return remotes
}

// DetectRole implements Inspector.
//
// Declared keys count even when their values cannot be read, so an exposes
// map built from a variable still marks the config as a remote.
func (i TextInspector) DetectRole(text string) Role {
	if len(i.ParseExposes(text)) > 0 {
		return RoleRemote
	}
	if len(i.ParseRemotes(text)) > 0 {
		return RoleHost
	}
	if _, ok := i.option(text, "exposes"); ok {
		return RoleRemote
	}
	if _, ok := i.option(text, "remotes"); ok {
		return RoleHost
	}
	return RoleUnknown
}

// ExtractName implements Inspector.
//
// A top-level name property wins; otherwise the first name: literal in the
// call's arguments is used.
func (i TextInspector) ExtractName(text string) string {
	if value, ok := i.option(text, "name"); ok {
		if name, ok := stringLiteral(value); ok {
			return name
		}
	}
	args, ok := i.FindFederationCall(text)
	if !ok {
		return ""
	}
	m := namePattern.FindStringSubmatch(stripComments(args))
	if m == nil {
		return ""
	}
	return m[1] + m[2] + m[3]
}

// ExtractPort implements Inspector.
func (i TextInspector) ExtractPort(text string) string {
	args, ok := i.FindFederationCall(text)
	if !ok {
		return ""
	}
	m := portPattern.FindStringSubmatch(stripComments(args))
	if m == nil {
		return ""
	}
	return strings.TrimLeft(m[1], "0")
}

// Inspect implements Inspector.
func (i TextInspector) Inspect(text string) Report {
	_, hasCall := i.FindFederationCall(text)
	return Report{
		HasCall: hasCall,
		Role:    i.DetectRole(text),
		Name:    i.ExtractName(text),
		Port:    i.ExtractPort(text),
		Exposes: i.ParseExposes(text),
		Remotes: i.ParseRemotes(text),
	}
}
