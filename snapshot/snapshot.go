// Package snapshot pairs a source text with its parse tree. A Snapshot is
// immutable; byte offsets taken from it are only meaningful against the
// same Snapshot.
package snapshot

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/gotreesitter"

	"github.com/odvcencio/semedit/languages"
)

// errorSymbol is the symbol the runtime assigns to error nodes.
const errorSymbol = gotreesitter.Symbol(65535)

// Snapshot is one parse of one source text.
type Snapshot struct {
	Path    string
	Source  []byte
	Tree    *gotreesitter.Tree
	Profile *languages.Profile

	lineStarts []int
}

// Parse parses source with profile.
func Parse(path string, source []byte, profile *languages.Profile) (*Snapshot, error) {
	tree, err := profile.Parse(source)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &Snapshot{
		Path:       path,
		Source:     source,
		Tree:       tree,
		Profile:    profile,
		lineStarts: lineStarts(source),
	}, nil
}

func lineStarts(source []byte) []int {
	starts := []int{0}
	for i, c := range source {
		if c == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// Language returns the grammar the snapshot was parsed with.
func (s *Snapshot) Language() *gotreesitter.Language { return s.Profile.Language() }

// Root returns the root node.
func (s *Snapshot) Root() *gotreesitter.Node { return s.Tree.RootNode() }

// Text returns the source text of n.
func (s *Snapshot) Text(n *gotreesitter.Node) string { return n.Text(s.Source) }

// IsError reports whether n is a parse error node.
func IsError(n *gotreesitter.Node) bool {
	return n != nil && n.Symbol() == errorSymbol
}

// Type returns the node type, naming error nodes "ERROR".
func (s *Snapshot) Type(n *gotreesitter.Node) string {
	if IsError(n) {
		return "ERROR"
	}
	return n.Type(s.Language())
}

// Position converts a byte offset to a 1-based line and column.
func (s *Snapshot) Position(offset int) (line, col int) {
	i := sort.Search(len(s.lineStarts), func(i int) bool { return s.lineStarts[i] > offset }) - 1
	if i < 0 {
		i = 0
	}
	return i + 1, offset - s.lineStarts[i] + 1
}

// Offset converts a 1-based line and column to a byte offset.
func (s *Snapshot) Offset(line, col int) (int, bool) {
	if line < 1 || line > len(s.lineStarts) || col < 1 {
		return 0, false
	}
	off := s.lineStarts[line-1] + col - 1
	if off > len(s.Source) {
		return 0, false
	}
	return off, true
}

// LineCount returns the number of lines, counting a trailing partial line.
func (s *Snapshot) LineCount() int { return len(s.lineStarts) }

// Line returns line n (1-based) without its newline.
func (s *Snapshot) Line(n int) string {
	if n < 1 || n > len(s.lineStarts) {
		return ""
	}
	start := s.lineStarts[n-1]
	end := len(s.Source)
	if n < len(s.lineStarts) {
		end = s.lineStarts[n] - 1
	}
	return strings.TrimSuffix(string(s.Source[start:end]), "\r")
}

// LineStart returns the byte offset where the line holding offset begins.
func (s *Snapshot) LineStart(offset int) int {
	line, _ := s.Position(offset)
	return s.lineStarts[line-1]
}

// Window renders lines [from-radius, to+radius] with line numbers. Lines in
// marked are prefixed with an arrow.
func (s *Snapshot) Window(from, to, radius int, marked map[int]bool) string {
	first := max(1, from-radius)
	last := min(s.LineCount(), to+radius)
	var b strings.Builder
	for n := first; n <= last; n++ {
		marker := "  "
		if marked[n] {
			marker = "->"
		}
		fmt.Fprintf(&b, "%4d %s| %s\n", n, marker, s.Line(n))
	}
	return b.String()
}

// NodeWindow renders the lines around n with n's lines marked.
func (s *Snapshot) NodeWindow(n *gotreesitter.Node, radius int) string {
	from := int(n.StartPoint().Row) + 1
	to := int(n.EndPoint().Row) + 1
	marked := make(map[int]bool, to-from+1)
	for l := from; l <= to; l++ {
		marked[l] = true
	}
	return s.Window(from, to, radius, marked)
}

// Location formats the 1-based start position of n as "line:col".
func Location(n *gotreesitter.Node) string {
	p := n.StartPoint()
	return fmt.Sprintf("%d:%d", p.Row+1, p.Column+1)
}
