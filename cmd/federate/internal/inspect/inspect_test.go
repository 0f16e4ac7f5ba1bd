// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package inspect

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const remoteConfig = `import { defineConfig } from 'vite'
import { federation } from '@module-federation/vite'

// federation({ name: 'commented' })
const server = { port: 9999, name: "not-this-one" }

export default defineConfig({
  server,
  plugins: [
    federation({
      name: 'checkout',
      filename: 'remoteEntry.js',
      port: 5001,
      exposes: {
        './Button': './src/Button.tsx',
        "./Cart": { import: "./src/Cart.tsx" },
        './Paren': './src/weird(name).tsx', // ) not a closer
      },
      shared: { react: { singleton: true } },
    }),
  ],
})
`

const hostConfig = `export default defineConfig({
  plugins: [
    federation({
      name: "shell",
      remotes: {
        checkout: 'checkout@http://localhost:5001/remoteEntry.js',
        cart: {
          type: 'module',
          name: 'cart',
          entry: 'http://localhost:5002/remoteEntry.js',
        },
      },
      /* port: 1111 */
      port: '5000',
    }),
  ],
})
`

// =============================================================================
// FindFederationCall Tests
// =============================================================================

func TestFindFederationCall_SkipsStringsAndComments(t *testing.T) {
	args, ok := New().FindFederationCall(remoteConfig)
	require.True(t, ok)

	assert.Contains(t, args, "name: 'checkout'")
	assert.Contains(t, args, "weird(name)")
	assert.NotContains(t, args, "commented")
	assert.Equal(t, byte('{'), args[0])
}

func TestFindFederationCall_Absent(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"no call", "export default defineConfig({ plugins: [react()] })"},
		{"only in string", `const s = "federation({ name: 'x' })"`},
		{"only in comment", "/* federation({}) */\nexport default {}"},
		{"identifier suffix", "myfederation({ name: 'x' })"},
		{"unbalanced", "federation({ name: 'x' )"},
		{"unterminated", "federation({ name: 'x',"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args, ok := New().FindFederationCall(tt.text)
			assert.False(t, ok)
			assert.Empty(t, args)
		})
	}
}

func TestFindFederationCall_WhitespaceBeforeParen(t *testing.T) {
	args, ok := New().FindFederationCall("federation ( { name: 'a' } )")
	require.True(t, ok)
	assert.Equal(t, " { name: 'a' } ", args)
}

// =============================================================================
// Exposes and Remotes
// =============================================================================

func TestParseExposes(t *testing.T) {
	got := New().ParseExposes(remoteConfig)

	assert.Equal(t, map[string]string{
		"./Button": "./src/Button.tsx",
		"./Cart":   "./src/Cart.tsx",
		"./Paren":  "./src/weird(name).tsx",
	}, got)
}

func TestParseRemotes(t *testing.T) {
	got := New().ParseRemotes(hostConfig)

	assert.Equal(t, map[string]string{
		"checkout": "checkout@http://localhost:5001/remoteEntry.js",
		"cart":     "http://localhost:5002/remoteEntry.js",
	}, got)
}

func TestParse_AbsentReturnsEmptyMap(t *testing.T) {
	i := New()
	assert.NotNil(t, i.ParseExposes(hostConfig))
	assert.Empty(t, i.ParseExposes(hostConfig))
	assert.Empty(t, i.ParseRemotes(remoteConfig))
	assert.Empty(t, i.ParseExposes("not a config"))
	assert.Empty(t, i.ParseRemotes("federation(options)"))
}

// =============================================================================
// Role, Name and Port
// =============================================================================

func TestDetectRole(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Role
	}{
		{"remote", remoteConfig, RoleRemote},
		{"host", hostConfig, RoleHost},
		{"no call", "export default {}", RoleUnknown},
		{"call without keys", "federation({ name: 'x' })", RoleUnknown},
		{"exposes from variable", "federation({ exposes: myExposes })", RoleRemote},
		{"remotes from variable", "federation({ remotes })", RoleUnknown},
		{"remotes from call", "federation({ remotes: loadRemotes() })", RoleHost},
		{"exposes in comment only", "federation({ /* exposes: {} */ name: 'x' })", RoleUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New().DetectRole(tt.text))
		})
	}
}

func TestExtractName_OnlyWithinCall(t *testing.T) {
	i := New()
	assert.Equal(t, "checkout", i.ExtractName(remoteConfig))
	assert.Equal(t, "shell", i.ExtractName(hostConfig))
	assert.Empty(t, i.ExtractName(`const x = { name: "outside" }`))
	assert.Empty(t, i.ExtractName(`federation({ name: someVar })`))
}

func TestExtractName_FallsBackToNestedLiteral(t *testing.T) {
	got := New().ExtractName("federation(merge(base, { name: `nested` }))")
	assert.Equal(t, "nested", got)
}

func TestExtractPort(t *testing.T) {
	i := New()
	assert.Equal(t, "5001", i.ExtractPort(remoteConfig))
	assert.Equal(t, "5000", i.ExtractPort(hostConfig), "commented port must be ignored")
	assert.Empty(t, i.ExtractPort("server: { port: 3000 }"))
	assert.Empty(t, i.ExtractPort("federation({ name: 'x' })"))
}

func TestInspect_Report(t *testing.T) {
	report := New().Inspect(hostConfig)

	assert.True(t, report.HasCall)
	assert.Equal(t, RoleHost, report.Role)
	assert.Equal(t, "shell", report.Name)
	assert.Equal(t, "5000", report.Port)
	assert.Len(t, report.Remotes, 2)
	assert.Empty(t, report.Exposes)
}

func TestInspect_NoCall(t *testing.T) {
	report := TextInspector{}.Inspect("export default defineConfig({})")

	assert.Equal(t, Report{
		Role:    RoleUnknown,
		Exposes: map[string]string{},
		Remotes: map[string]string{},
	}, report)
}

// =============================================================================
// Scanner Helpers
// =============================================================================

func TestMatchClose(t *testing.T) {
	tests := []struct {
		name string
		text string
		want int
	}{
		{"simple", "(a)", 2},
		{"nested", "({[]})", 5},
		{"string closer", `(")")`, 4},
		{"template closer", "(`)`)", 4},
		{"line comment", "(// )\n)", 6},
		{"block comment", "(/* ) */)", 8},
		{"escaped quote", `('\')')`, 6},
		{"mismatch", "({)}", -1},
		{"unterminated", "((", -1},
		{"not an opener", "a", -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, matchClose(tt.text, 0))
		})
	}
}

func TestStringLiteral(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`"a"`, "a", true},
		{`'a'`, "a", true},
		{"`a`", "a", true},
		{`'it\'s'`, "it's", true},
		{`"tab\t"`, "tab\t", true},
		{"`${x}`", "", false},
		{"ident", "", false},
		{`"a" + "b"`, "", false},
		{`"`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := stringLiteral(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestObjectProperties_SkipsShorthandAndSpread(t *testing.T) {
	props := objectProperties(`a: 1, b, ...rest, [k]: 2, 'c-d': { x: 1 }, `)

	require.Len(t, props, 2)
	assert.Equal(t, property{key: "a", value: "1"}, props[0])
	assert.Equal(t, property{key: "c-d", value: "{ x: 1 }"}, props[1])
}
