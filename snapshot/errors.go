package snapshot

import (
	"fmt"
	"strings"

	"github.com/odvcencio/gotreesitter"
)

// SyntaxError is one error or missing node in a parse tree.
type SyntaxError struct {
	Line      int
	Column    int
	EndLine   int
	EndColumn int
	Missing   bool
	Message   string
}

func (e SyntaxError) String() string {
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Column, e.Message)
}

// HasErrors reports whether the tree contains any error or missing node.
func (s *Snapshot) HasErrors() bool {
	root := s.Root()
	if root == nil {
		return true
	}
	if root.HasError() {
		return true
	}
	return len(s.Errors()) > 0
}

// Errors collects every error and missing node in document order.
func (s *Snapshot) Errors() []SyntaxError {
	var out []SyntaxError
	Walk(s.Root(), func(n *gotreesitter.Node) bool {
		switch {
		case IsError(n):
			start, end := n.StartPoint(), n.EndPoint()
			out = append(out, SyntaxError{
				Line:      int(start.Row) + 1,
				Column:    int(start.Column) + 1,
				EndLine:   int(end.Row) + 1,
				EndColumn: int(end.Column) + 1,
				Message:   "syntax error",
			})
		case n.IsMissing():
			p := n.StartPoint()
			out = append(out, SyntaxError{
				Line:      int(p.Row) + 1,
				Column:    int(p.Column) + 1,
				EndLine:   int(p.Row) + 1,
				EndColumn: int(p.Column) + 1,
				Missing:   true,
				Message:   "missing " + s.Type(n),
			})
		}
		return true
	})
	if len(out) == 0 && s.Root() != nil && s.Root().HasError() {
		n := unrecovered(s.Root())
		start, end := n.StartPoint(), n.EndPoint()
		out = append(out, SyntaxError{
			Line:      int(start.Row) + 1,
			Column:    int(start.Column) + 1,
			EndLine:   int(end.Row) + 1,
			EndColumn: int(end.Column) + 1,
			Message:   "syntax error",
		})
	}
	return out
}

// unrecovered finds the node to blame when the parser flagged the tree as
// erroneous without producing an error node, which happens when several
// partial trees are left over at the end of input.
func unrecovered(root *gotreesitter.Node) *gotreesitter.Node {
	n := root
	for {
		var next *gotreesitter.Node
		for i := 0; i < n.ChildCount(); i++ {
			if c := n.Child(i); c.HasError() {
				next = c
				break
			}
		}
		if next == nil {
			break
		}
		n = next
	}
	if n == root && root.ChildCount() > 1 {
		return root.Child(root.ChildCount() - 1)
	}
	return n
}

// ErrorNodes returns the error nodes of the tree.
func (s *Snapshot) ErrorNodes() []*gotreesitter.Node {
	var out []*gotreesitter.Node
	Walk(s.Root(), func(n *gotreesitter.Node) bool {
		if IsError(n) || n.IsMissing() {
			out = append(out, n)
		}
		return true
	})
	return out
}

// ErrorReport lists errs followed by the surrounding source with the
// offending lines marked.
func (s *Snapshot) ErrorReport(errs []SyntaxError, radius int) string {
	if len(errs) == 0 {
		return ""
	}
	var b strings.Builder
	marked := make(map[int]bool)
	for _, e := range errs {
		fmt.Fprintf(&b, "  %s\n", e)
		for l := e.Line; l <= e.EndLine; l++ {
			marked[l] = true
		}
	}
	b.WriteString("\n")

	// Merge overlapping windows so each line prints once.
	lines := make([]int, 0, len(marked))
	for l := 1; l <= s.LineCount(); l++ {
		if marked[l] {
			lines = append(lines, l)
		}
	}
	if len(lines) == 0 {
		return b.String()
	}
	from, to := lines[0], lines[0]
	for _, l := range lines[1:] {
		if l-to > 2*radius+1 {
			b.WriteString(s.Window(from, to, radius, marked))
			b.WriteString("   ...\n")
			from = l
		}
		to = l
	}
	b.WriteString(s.Window(from, to, radius, marked))
	return b.String()
}
