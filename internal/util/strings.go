// Package util provides shared utility functions used across the codebase.
package util

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"
)

// TruncateANSI truncates a string to maxWidth visual columns, adding "..." if truncated.
// This function properly handles ANSI escape codes and wide characters, making it
// suitable for terminal output with styling.
func TruncateANSI(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	if lipgloss.Width(s) <= maxWidth {
		return s
	}
	// ansi.Truncate includes the tail in the final width calculation
	return ansi.Truncate(s, maxWidth, "...")
}

// TruncateLeft truncates a string to maxWidth visual columns by dropping its
// start, prefixing "..." when truncated. Paths keep their most specific part.
func TruncateLeft(s string, maxWidth int) string {
	if maxWidth <= 3 {
		return "..."
	}
	width := lipgloss.Width(s)
	if width <= maxWidth {
		return s
	}
	return ansi.TruncateLeft(s, width-maxWidth+3, "...")
}
