// Package util holds small text helpers shared by services and handlers.
package util

import (
	"strings"
	"unicode"
)

// CleanLine normalizes user text that must stay on one line, such as a unit
// name or a message subject. Control and invisible characters are dropped,
// whitespace runs collapse to one space and the result is cut to maxRunes
// runes (no limit when maxRunes <= 0).
func CleanLine(raw string, maxRunes int) string {
	var b strings.Builder
	b.Grow(len(raw))

	space := false
	for _, r := range raw {
		switch {
		case unicode.IsSpace(r):
			space = b.Len() > 0
			continue
		case unicode.IsControl(r) || isInvisibleUnicode(r):
			continue
		}
		if space {
			b.WriteByte(' ')
			space = false
		}
		b.WriteRune(r)
	}

	cleaned := b.String()
	if maxRunes > 0 {
		// cut by runes so multi-byte characters stay whole
		if runes := []rune(cleaned); len(runes) > maxRunes {
			cleaned = strings.TrimSpace(string(runes[:maxRunes]))
		}
	}
	return cleaned
}

// CleanText is CleanLine for multi-line text: line breaks survive, other
// control and invisible characters do not.
func CleanText(raw string) string {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	for i, line := range lines {
		lines[i] = CleanLine(line, 0)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// isInvisibleUnicode returns true for zero-width, formatting, and other
// invisible Unicode characters.
func isInvisibleUnicode(r rune) bool {
	switch r {
	case
		'\u200B', // Zero-Width Space
		'\u200C', // Zero-Width Non-Joiner
		'\u200D', // Zero-Width Joiner
		'\u200E', // Left-to-Right Mark
		'\u200F', // Right-to-Left Mark
		'\u2060', // Word Joiner
		'\uFEFF', // Zero-Width No-Break Space / BOM
		'\uFFF9', // Interlinear Annotation Anchor
		'\uFFFA', // Interlinear Annotation Separator
		'\uFFFB': // Interlinear Annotation Terminator
		return true
	}

	return unicode.Is(unicode.Cf, r)
}
