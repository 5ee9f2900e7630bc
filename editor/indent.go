// Package editor holds the plain-text helpers shared by the edit engine and
// the formatters.
package editor

import "strings"

// DetectIndentStyle looks at the text to determine whether tabs or spaces are
// used for indentation. Returns the indent unit string (e.g., "\t" or "    ").
// Defaults to "\t" if no indentation found.
func DetectIndentStyle(text string) string {
	tabCount := 0
	spaceCount := 0
	minSpaceWidth := 0

	for _, line := range strings.Split(text, "\n") {
		if len(strings.TrimSpace(line)) == 0 {
			continue
		}
		if line[0] == '\t' {
			tabCount++
		} else if line[0] == ' ' {
			spaceCount++
			w := len(LeadingIndent(line))
			if minSpaceWidth == 0 || w < minSpaceWidth {
				minSpaceWidth = w
			}
		}
	}

	if spaceCount > tabCount && minSpaceWidth > 0 {
		return strings.Repeat(" ", minSpaceWidth)
	}
	return "\t"
}

// HasIndentation reports whether any non-blank line starts with whitespace.
func HasIndentation(text string) bool {
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" && LeadingIndent(line) != "" {
			return true
		}
	}
	return false
}

// LeadingIndent returns the run of spaces and tabs that starts line.
func LeadingIndent(line string) string {
	for i := 0; i < len(line); i++ {
		if line[i] != ' ' && line[i] != '\t' {
			return line[:i]
		}
	}
	return line
}

// IndentContinuation prefixes every non-blank line after the first with
// indent. Text whose continuation lines already carry indent is returned
// unchanged.
func IndentContinuation(text, indent string) string {
	if indent == "" || !strings.Contains(text, "\n") {
		return text
	}
	lines := strings.Split(text, "\n")
	already := true
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) != "" && !strings.HasPrefix(line, indent) {
			already = false
			break
		}
	}
	if already {
		return text
	}
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) != "" {
			lines[i] = indent + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}
