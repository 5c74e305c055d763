// Package util provides small text helpers shared by the kernel packages.
// This lives in internal to avoid committing to public API stability prematurely.
package util

import "unicode"

// SplitLines splits source text into lines on "\n", trimming a trailing
// "\r" from each line so Windows line endings behave like Unix ones.
func SplitLines(text string) []string {
	if text == "" {
		return []string{""}
	}

	lines := make([]string, 0, 16)
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] != '\n' {
			continue
		}
		line := text[start:i]
		if len(line) > 0 && line[len(line)-1] == '\r' {
			line = line[:len(line)-1]
		}
		lines = append(lines, line)
		start = i + 1
	}

	line := text[start:]
	if len(line) > 0 && line[len(line)-1] == '\r' {
		line = line[:len(line)-1]
	}
	return append(lines, line)
}

// LineAt returns the 0-based line of text, or false when the index is out
// of range.
func LineAt(text string, line int) (string, bool) {
	if line < 0 {
		return "", false
	}
	lines := SplitLines(text)
	if line >= len(lines) {
		return "", false
	}
	return lines[line], true
}

// WordSpanAt returns the half-open rune span [start, end) of the identifier
// around pos. The span grows left over identifier runes preceding pos and
// right over identifier runes at or after pos, so a position on whitespace
// yields the empty span (pos, pos), which callers use as an insertion point.
func WordSpanAt(line string, pos int) (int, int) {
	runes := []rune(line)
	if pos < 0 {
		pos = 0
	}
	if pos > len(runes) {
		pos = len(runes)
	}

	start := pos
	for start > 0 && isIdentifierRune(runes[start-1]) {
		start--
	}
	end := pos
	for end < len(runes) && isIdentifierRune(runes[end]) {
		end++
	}
	return start, end
}

// TruncateString shortens s to at most limit runes, appending "..." when
// anything was cut. A limit of zero or less disables truncation.
func TruncateString(s string, limit int) string {
	if limit <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "..."
}

// isIdentifierRune reports whether r can appear inside an F# identifier.
// Apostrophes count: names like x' are legal.
func isIdentifierRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '\''
}
