// Package inspect answers read-only questions about a file's syntax tree.
package inspect

import (
	"fmt"
	"os"
	"strings"

	"github.com/odvcencio/gotreesitter"

	"github.com/odvcencio/semedit/diag"
	"github.com/odvcencio/semedit/languages"
	"github.com/odvcencio/semedit/selector"
	"github.com/odvcencio/semedit/snapshot"
)

const previewWidth = 80

// Span locates a node. Lines and columns are 1-based.
type Span struct {
	StartLine   int `json:"start_line"`
	StartColumn int `json:"start_column"`
	EndLine     int `json:"end_line"`
	EndColumn   int `json:"end_column"`
	StartByte   int `json:"start_byte"`
	EndByte     int `json:"end_byte"`
}

func spanOf(n *gotreesitter.Node) Span {
	sp, ep := n.StartPoint(), n.EndPoint()
	return Span{
		StartLine:   int(sp.Row) + 1,
		StartColumn: int(sp.Column) + 1,
		EndLine:     int(ep.Row) + 1,
		EndColumn:   int(ep.Column) + 1,
		StartByte:   int(n.StartByte()),
		EndByte:     int(n.EndByte()),
	}
}

func (s Span) String() string {
	return fmt.Sprintf("%d:%d-%d:%d (bytes %d-%d)", s.StartLine, s.StartColumn, s.EndLine, s.EndColumn, s.StartByte, s.EndByte)
}

// Node summarizes one node.
type Node struct {
	Type    string `json:"type"`
	Field   string `json:"field,omitempty"`
	Named   bool   `json:"named"`
	Span    Span   `json:"span"`
	Preview string `json:"preview"`
}

func summarize(snap *snapshot.Snapshot, n *gotreesitter.Node) Node {
	return Node{
		Type:    snap.Type(n),
		Named:   n.IsNamed(),
		Span:    spanOf(n),
		Preview: snap.Preview(n, previewWidth),
	}
}

func (n Node) String() string {
	return fmt.Sprintf("%s at %d:%d: %s", n.Type, n.Span.StartLine, n.Span.StartColumn, n.Preview)
}

// Load reads and parses path with the profile registry picks for it.
func Load(registry *languages.Registry, path, hint string) (*snapshot.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, diag.Wrap(diag.IOError, err, "read %s", path)
	}
	profile, err := registry.Resolve(path, hint)
	if err != nil {
		return nil, err
	}
	return snapshot.Parse(path, data, profile)
}

// NodeInfo describes the node a selector resolves to.
type NodeInfo struct {
	Node
	Ancestors []string `json:"ancestors"`
}

// Info resolves sel against snap and describes the target.
func Info(snap *snapshot.Snapshot, r selector.Resolver, sel selector.Selector) (*NodeInfo, error) {
	target, err := r.Resolve(snap, sel)
	if err != nil {
		return nil, err
	}
	var ancestors []string
	if p := target.Node.Parent(); p != nil {
		ancestors = snap.Chain(p, 0)
	}
	return &NodeInfo{Node: summarize(snap, target.Node), Ancestors: ancestors}, nil
}

// Render formats info as plain text.
func (info *NodeInfo) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Node type: %s\n", info.Type)
	fmt.Fprintf(&b, "Location: %s\n", info.Span)
	fmt.Fprintf(&b, "Preview: %s\n", info.Preview)
	if len(info.Ancestors) > 0 {
		fmt.Fprintf(&b, "Ancestors: %s\n", strings.Join(info.Ancestors, " > "))
	}
	return b.String()
}

// Exploration is the neighbourhood of the node at a position.
type Exploration struct {
	Focus     Node   `json:"focus"`
	Ancestors []Node `json:"ancestors"`
	Children  []Node `json:"children"`
	Siblings  []Node `json:"siblings"`
}

// Explore describes the deepest named node at the 1-based line and column.
func Explore(snap *snapshot.Snapshot, line, col int) (*Exploration, error) {
	if _, ok := snap.Offset(line, col); !ok {
		return nil, diag.New(diag.InvalidRequest, "position %d:%d is outside %s (%d lines)", line, col, snap.Path, snap.LineCount())
	}
	n := snap.NodeAt(line, col)
	if n == nil {
		return nil, diag.New(diag.InvalidRequest, "no node at %d:%d", line, col)
	}
	ex := &Exploration{Focus: summarize(snap, n)}
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		ex.Ancestors = append(ex.Ancestors, summarize(snap, cur))
	}
	for i := 0; i < n.NamedChildCount(); i++ {
		ex.Children = append(ex.Children, summarize(snap, n.NamedChild(i)))
	}
	if p := n.Parent(); p != nil {
		for i := 0; i < p.NamedChildCount(); i++ {
			sib := p.NamedChild(i)
			if sib.StartByte() == n.StartByte() && sib.EndByte() == n.EndByte() {
				continue
			}
			ex.Siblings = append(ex.Siblings, summarize(snap, sib))
		}
	}
	return ex, nil
}

// Render formats ex as plain text.
func (ex *Exploration) Render() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Focus: %s\n", ex.Focus)
	section := func(title string, nodes []Node) {
		if len(nodes) == 0 {
			return
		}
		fmt.Fprintf(&b, "\n%s:\n", title)
		for _, n := range nodes {
			fmt.Fprintf(&b, "  %s\n", n)
		}
	}
	section("Ancestors", ex.Ancestors)
	section("Children", ex.Children)
	section("Siblings", ex.Siblings)
	return b.String()
}

// SyntaxTree dumps snap as an S-expression.
func SyntaxTree(snap *snapshot.Snapshot) string {
	return snap.SExpr(snap.Root(), 0)
}

// FirstNonBlank returns the 1-based column of the first character on line
// that is not a space or tab, or 1 for a blank line.
func FirstNonBlank(line string) int {
	for i, c := range line {
		if c != ' ' && c != '\t' {
			return i + 1
		}
	}
	return 1
}
