// Package edit applies structural edits to a parsed snapshot in memory and
// renders the resulting unified diff.
package edit

import (
	"fmt"
	"strings"

	"github.com/odvcencio/semedit/diag"
	"github.com/odvcencio/semedit/editor"
)

// Operation is the kind of structural edit.
type Operation string

const (
	Replace      Operation = "replace"
	InsertBefore Operation = "insert_before"
	InsertAfter  Operation = "insert_after"
	Wrap         Operation = "wrap"
)

// Placeholder marks where a wrap template receives the target's text.
const Placeholder = "{{content}}"

// Operations lists every supported operation.
var Operations = []Operation{Replace, InsertBefore, InsertAfter, Wrap}

// ParseOperation validates an operation name.
func ParseOperation(name string) (Operation, error) {
	for _, op := range Operations {
		if string(op) == name {
			return op, nil
		}
	}
	return "", diag.New(diag.InvalidRequest, "unknown operation_type %q", name).
		WithSuggestions("operation_type must be one of replace, insert_before, insert_after, wrap")
}

// CheckContent validates content for op before any file is touched.
func CheckContent(op Operation, content string) error {
	switch op {
	case InsertBefore, InsertAfter:
		if strings.TrimSpace(content) == "" {
			return diag.New(diag.InvalidRequest, "content is required for %s", op)
		}
	case Wrap:
		if n := strings.Count(content, Placeholder); n != 1 {
			return diag.New(diag.InvalidRequest, "wrap template must contain %s exactly once, found %d", Placeholder, n).
				WithSuggestions(fmt.Sprintf("for example: \"if ready {\\n    %s\\n}\"", Placeholder))
		}
	}
	return nil
}

// Splice computes the new source for op applied to the byte span
// [start, end) of source. The returned offsets bound the inserted text.
func Splice(source []byte, start, end int, op Operation, content string) (out []byte, insStart, insEnd int, err error) {
	if start < 0 || end > len(source) || start > end {
		return nil, 0, 0, fmt.Errorf("span [%d,%d) out of range", start, end)
	}
	if err := CheckContent(op, content); err != nil {
		return nil, 0, 0, err
	}
	indent := lineIndent(source, start)

	var at, cut int
	var text string
	switch op {
	case Replace:
		at, cut = start, end
		text = editor.IndentContinuation(content, indent)
	case InsertBefore:
		at, cut = start, start
		text = editor.IndentContinuation(content, indent) + "\n" + indent
	case InsertAfter:
		at, cut = end, end
		text = "\n" + indent + editor.IndentContinuation(content, indent)
	case Wrap:
		at, cut = start, end
		text = strings.Replace(content, Placeholder, string(source[start:end]), 1)
	default:
		return nil, 0, 0, diag.New(diag.InvalidRequest, "unknown operation_type %q", op)
	}

	out = make([]byte, 0, len(source)-(cut-at)+len(text))
	out = append(out, source[:at]...)
	out = append(out, text...)
	out = append(out, source[cut:]...)
	return out, at, at + len(text), nil
}

// lineIndent returns the leading whitespace of the line containing offset.
func lineIndent(source []byte, offset int) string {
	lineStart := offset
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	return editor.LeadingIndent(string(source[lineStart:offset]))
}
