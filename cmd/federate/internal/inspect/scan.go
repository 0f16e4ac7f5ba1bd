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
	"strconv"
	"strings"
)

// skipNonCode returns the index just past a string literal or comment that
// starts at i, or i itself if none starts there. Unterminated literals run
// to the end of text.
func skipNonCode(text string, i int) int {
	if i >= len(text) {
		return i
	}
	switch text[i] {
	case '"', '\'', '`':
		return skipString(text, i)
	case '/':
		if i+1 < len(text) {
			switch text[i+1] {
			case '/':
				if end := strings.IndexByte(text[i:], '\n'); end >= 0 {
					return i + end + 1
				}
				return len(text)
			case '*':
				if end := strings.Index(text[i+2:], "*/"); end >= 0 {
					return i + 2 + end + 2
				}
				return len(text)
			}
		}
	}
	return i
}

// skipString returns the index just past the quoted literal at i.
func skipString(text string, i int) int {
	quote := text[i]
	for j := i + 1; j < len(text); j++ {
		switch text[j] {
		case '\\':
			j++
		case quote:
			return j + 1
		case '\n':
			if quote != '`' {
				// Unterminated single-line literal.
				return j
			}
		}
	}
	return len(text)
}

var closers = map[byte]byte{'(': ')', '[': ']', '{': '}'}

// matchClose returns the index of the delimiter closing the one at open,
// or -1 if the text is unbalanced before it closes.
func matchClose(text string, open int) int {
	if open < 0 || open >= len(text) {
		return -1
	}
	if _, ok := closers[text[open]]; !ok {
		return -1
	}

	stack := []byte{closers[text[open]]}
	for i := open + 1; i < len(text); {
		if next := skipNonCode(text, i); next != i {
			i = next
			continue
		}
		c := text[i]
		if want, ok := closers[c]; ok {
			stack = append(stack, want)
		} else if c == ')' || c == ']' || c == '}' {
			if stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
		i++
	}
	return -1
}

func isIdentByte(c byte) bool {
	return c == '_' || c == '$' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}

// findCall returns the index of the opening parenthesis of the first call
// to fn outside strings and comments, or -1.
func findCall(text, fn string) int {
	for i := 0; i < len(text); {
		if next := skipNonCode(text, i); next != i {
			i = next
			continue
		}
		if strings.HasPrefix(text[i:], fn) && (i == 0 || !isIdentByte(text[i-1])) {
			j := i + len(fn)
			for j < len(text) && isSpace(text[j]) {
				j++
			}
			if j < len(text) && text[j] == '(' {
				return j
			}
		}
		i++
	}
	return -1
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// skipSpaceAndComments advances past whitespace and comments.
func skipSpaceAndComments(text string, i int) int {
	for i < len(text) {
		if isSpace(text[i]) {
			i++
			continue
		}
		if text[i] == '/' {
			if next := skipNonCode(text, i); next != i {
				i = next
				continue
			}
		}
		break
	}
	return i
}

// property is one "key: value" pair of an object literal.
type property struct {
	key   string
	value string
}

// objectProperties splits the body of an object literal (the text between
// its braces) into top-level properties. Shorthand, spread and computed
// entries are skipped.
func objectProperties(body string) []property {
	var props []property
	for _, entry := range splitTopLevel(body, ',') {
		entry = strings.TrimSpace(stripComments(entry))
		if entry == "" || strings.HasPrefix(entry, "...") || strings.HasPrefix(entry, "[") {
			continue
		}
		key, rest, ok := splitKey(entry)
		if !ok {
			continue
		}
		props = append(props, property{key: key, value: strings.TrimSpace(rest)})
	}
	return props
}

// splitKey separates a property key from its value text.
func splitKey(entry string) (key, value string, ok bool) {
	if entry[0] == '"' || entry[0] == '\'' || entry[0] == '`' {
		end := skipString(entry, 0)
		k, isLit := stringLiteral(entry[:end])
		if !isLit {
			return "", "", false
		}
		after := strings.TrimSpace(entry[end:])
		if !strings.HasPrefix(after, ":") {
			return "", "", false
		}
		return k, after[1:], true
	}

	colon := strings.IndexByte(entry, ':')
	if colon <= 0 {
		return "", "", false
	}
	k := strings.TrimSpace(entry[:colon])
	for i := 0; i < len(k); i++ {
		if !isIdentByte(k[i]) {
			return "", "", false
		}
	}
	return k, entry[colon+1:], true
}

// splitTopLevel splits text on sep where sep is outside any brackets,
// strings and comments.
func splitTopLevel(text string, sep byte) []string {
	var parts []string
	depth, start := 0, 0
	for i := 0; i < len(text); {
		if next := skipNonCode(text, i); next != i {
			i = next
			continue
		}
		switch c := text[i]; {
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, text[start:i])
			start = i + 1
		}
		i++
	}
	return append(parts, text[start:])
}

// stripComments removes comments outside string literals.
func stripComments(text string) string {
	var b strings.Builder
	for i := 0; i < len(text); {
		next := skipNonCode(text, i)
		if next == i {
			b.WriteByte(text[i])
			i++
			continue
		}
		if text[i] == '/' {
			b.WriteByte(' ')
		} else {
			b.WriteString(text[i:next])
		}
		i = next
	}
	return b.String()
}

// stringLiteral unquotes a complete single, double or backtick literal.
// Template literals with substitutions are rejected.
func stringLiteral(s string) (string, bool) {
	s = strings.TrimSpace(s)
	if len(s) < 2 {
		return "", false
	}
	q := s[0]
	if (q != '"' && q != '\'' && q != '`') || s[len(s)-1] != q || skipString(s, 0) != len(s) {
		return "", false
	}
	inner := s[1 : len(s)-1]
	switch q {
	case '`':
		if strings.Contains(inner, "${") {
			return "", false
		}
		return inner, true
	case '\'':
		inner = strings.ReplaceAll(inner, `\'`, `'`)
		inner = strings.ReplaceAll(inner, `"`, `\"`)
	}
	if u, err := strconv.Unquote(`"` + inner + `"`); err == nil {
		return u, true
	}
	return inner, true
}

// objectBody returns the text between the braces of the object literal
// starting at or after i (skipping whitespace and comments), or false.
func objectBody(text string, i int) (string, bool) {
	i = skipSpaceAndComments(text, i)
	if i >= len(text) || text[i] != '{' {
		return "", false
	}
	end := matchClose(text, i)
	if end < 0 {
		return "", false
	}
	return text[i+1 : end], true
}
