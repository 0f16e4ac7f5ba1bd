// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux renders human-facing CLI output.
package ux

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
)

// Brand palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // Bright teal - highlights, success
	ColorTealPrimary = lipgloss.Color("#20B9B4") // Primary teal - main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // Deep teal - borders, accents
	ColorSlate       = lipgloss.Color("#2C4A54") // Slate - muted text, borders

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Color modes accepted by ColorEnabled.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Styles is the set of lipgloss styles bound to one output.
type Styles struct {
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Box       lipgloss.Style
}

// NewStyles builds the styles for a renderer.
func NewStyles(r *lipgloss.Renderer) Styles {
	return Styles{
		Title:     r.NewStyle().Bold(true).Foreground(ColorTealBright),
		Subtitle:  r.NewStyle().Foreground(ColorTealPrimary),
		Bold:      r.NewStyle().Bold(true),
		Muted:     r.NewStyle().Foreground(ColorSlate),
		Success:   r.NewStyle().Foreground(ColorSuccess),
		Warning:   r.NewStyle().Foreground(ColorWarning),
		Error:     r.NewStyle().Foreground(ColorError),
		Highlight: r.NewStyle().Foreground(ColorTealBright).Bold(true),
		Box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorTealDeep).
			Padding(0, 1),
	}
}

// Icon is a status marker.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)

// ColorEnabled decides whether output to w is colored. "auto" colors
// terminals unless NO_COLOR is set.
func ColorEnabled(mode string, w io.Writer) bool {
	switch mode {
	case ColorAlways:
		return true
	case ColorNever:
		return false
	}
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Printer writes styled messages. Results go to out; warnings and errors
// go to errOut.
//
// # Thread Safety
//
// Not safe for concurrent use.
type Printer struct {
	out    io.Writer
	errOut io.Writer
	color  bool
	styles Styles
}

// NewPrinter returns a Printer for the given color mode.
func NewPrinter(out, errOut io.Writer, colorMode string) *Printer {
	color := ColorEnabled(colorMode, out)

	r := lipgloss.NewRenderer(out)
	if color {
		r.SetColorProfile(termenv.TrueColor)
	} else {
		r.SetColorProfile(termenv.Ascii)
	}

	return &Printer{out: out, errOut: errOut, color: color, styles: NewStyles(r)}
}

// Color reports whether the printer emits color.
func (p *Printer) Color() bool { return p.color }

// Styles returns the printer's styles.
func (p *Printer) Styles() Styles { return p.styles }

// Out returns the result writer.
func (p *Printer) Out() io.Writer { return p.out }

func (p *Printer) icon(i Icon) string {
	switch i {
	case IconSuccess:
		return p.styles.Success.Render(string(i))
	case IconWarning:
		return p.styles.Warning.Render(string(i))
	case IconError:
		return p.styles.Error.Render(string(i))
	case IconPending:
		return p.styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Title prints a styled heading.
func (p *Printer) Title(text string) {
	fmt.Fprintln(p.out, p.styles.Title.Render(text))
}

// Success prints a message with a check mark.
func (p *Printer) Success(text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.icon(IconSuccess), p.styles.Success.Render(text))
}

// Warning prints a warning to errOut.
func (p *Printer) Warning(text string) {
	fmt.Fprintf(p.errOut, "%s %s\n", p.icon(IconWarning), p.styles.Warning.Render(text))
}

// Error prints an error to errOut.
func (p *Printer) Error(text string) {
	fmt.Fprintf(p.errOut, "%s %s\n", p.icon(IconError), p.styles.Error.Render(text))
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	fmt.Fprintf(p.out, "%s %s\n", p.styles.Muted.Render("│"), text)
}

// Muted prints secondary text.
func (p *Printer) Muted(text string) {
	fmt.Fprintln(p.out, p.styles.Muted.Render(text))
}

// Field prints an aligned "key: value" line.
func (p *Printer) Field(key string, value any) {
	fmt.Fprintf(p.out, "  %s %v\n", p.styles.Muted.Render(fmt.Sprintf("%-14s", key+":")), value)
}

// FileStatus prints a path with its status and an optional reason.
func (p *Printer) FileStatus(path string, status Icon, reason string) {
	if reason == "" {
		fmt.Fprintf(p.out, "%s %s\n", p.icon(status), path)
		return
	}
	fmt.Fprintf(p.out, "%s %s %s\n", p.icon(status), path, p.styles.Muted.Render("("+reason+")"))
}

// Summary prints applied and failed counts.
func (p *Printer) Summary(applied, failed int) {
	fmt.Fprintf(p.out, "\n%s %s  %s %s\n",
		p.styles.Success.Render(fmt.Sprintf("%d", applied)), p.styles.Muted.Render("applied"),
		p.styles.Error.Render(fmt.Sprintf("%d", failed)), p.styles.Muted.Render("failed"),
	)
}

// Box prints content in a rounded box under a title.
func (p *Printer) Box(title, content string) {
	fmt.Fprintln(p.out, p.styles.Box.Render(p.styles.Title.Render(title)+"\n"+content))
}

// Diff prints a unified diff, coloring added and removed lines.
func (p *Printer) Diff(text string) {
	for _, line := range strings.SplitAfter(text, "\n") {
		if line == "" {
			continue
		}
		body := strings.TrimSuffix(line, "\n")
		switch {
		case strings.HasPrefix(body, "+++"), strings.HasPrefix(body, "---"):
			body = p.styles.Bold.Render(body)
		case strings.HasPrefix(body, "@@"):
			body = p.styles.Subtitle.Render(body)
		case strings.HasPrefix(body, "+"):
			body = p.styles.Success.Render(body)
		case strings.HasPrefix(body, "-"):
			body = p.styles.Error.Render(body)
		}
		fmt.Fprintln(p.out, body)
	}
}
