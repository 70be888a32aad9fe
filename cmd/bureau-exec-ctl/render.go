// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
	"github.com/muesli/termenv"

	"github.com/bureau-foundation/bureau-exec/lib/wire"
)

// sourceStyles colors tail output by entry source.
type sourceStyles struct {
	timestamp lipgloss.Style
	text      lipgloss.Style
	sources   map[wire.Source]lipgloss.Style
	fallback  lipgloss.Style

	// plain output also strips escape sequences that build tools
	// embed in their own messages.
	plain bool
}

// newSourceStyles builds styles for w. colorMode is auto (detect from
// w), always, or never.
func newSourceStyles(w io.Writer, colorMode string) (sourceStyles, error) {
	var renderer *lipgloss.Renderer
	switch colorMode {
	case "auto":
		renderer = lipgloss.NewRenderer(w)
	case "always":
		renderer = lipgloss.NewRenderer(w, termenv.WithProfile(termenv.ANSI256))
		renderer.SetColorProfile(termenv.ANSI256)
	case "never":
		renderer = lipgloss.NewRenderer(w, termenv.WithProfile(termenv.Ascii))
		renderer.SetColorProfile(termenv.Ascii)
	default:
		return sourceStyles{}, fmt.Errorf("--color %q: want auto, always, or never", colorMode)
	}

	label := func(color string) lipgloss.Style {
		return renderer.NewStyle().Foreground(lipgloss.Color(color)).Bold(true).Width(16)
	}
	return sourceStyles{
		timestamp: renderer.NewStyle().Foreground(lipgloss.Color("244")),
		text:      renderer.NewStyle().Foreground(lipgloss.Color("252")),
		sources: map[wire.Source]lipgloss.Style{
			wire.SourceDequeueLogger:   label("75"),
			wire.SourceExecutionLogger: label("114"),
			wire.SourceResultsParser:   label("177"),
			wire.SourceBuildLogger:     label("180"),
			wire.SourceProcessOutput:   label("250"),
			wire.SourceAgentLogger:     label("214"),
		},
		fallback: label("244"),
		plain:    renderer.ColorProfile() == termenv.Ascii,
	}, nil
}

// render formats one entry as "HH:MM:SS.mmm Source text".
func (s sourceStyles) render(entry wire.LogEntry) string {
	style, ok := s.sources[entry.Source]
	if !ok {
		style = s.fallback
	}
	text := entry.Text
	if s.plain {
		text = ansi.Strip(text)
	}
	return s.timestamp.Render(entry.Timestamp.Local().Format(time.TimeOnly+".000")) + " " +
		style.Render(entry.Source.String()) + " " +
		s.text.Render(text)
}
