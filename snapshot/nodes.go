package snapshot

import (
	"strings"

	"github.com/odvcencio/gotreesitter"
)

// Walk visits n and its descendants depth-first. Returning false from fn
// skips the node's children.
func Walk(n *gotreesitter.Node, fn func(*gotreesitter.Node) bool) {
	if n == nil || !fn(n) {
		return
	}
	for i := 0; i < n.ChildCount(); i++ {
		Walk(n.Child(i), fn)
	}
}

// Covering returns the deepest named node whose span contains [start, end).
func (s *Snapshot) Covering(start, end int) *gotreesitter.Node {
	node := s.Root()
	if node == nil || start < int(node.StartByte()) || end > int(node.EndByte()) {
		return nil
	}
	for {
		next := (*gotreesitter.Node)(nil)
		for i := 0; i < node.NamedChildCount(); i++ {
			child := node.NamedChild(i)
			if int(child.StartByte()) <= start && end <= int(child.EndByte()) && child.EndByte() > child.StartByte() {
				next = child
				break
			}
		}
		if next == nil {
			return node
		}
		node = next
	}
}

// NodeAt returns the deepest named node containing the 1-based position.
func (s *Snapshot) NodeAt(line, col int) *gotreesitter.Node {
	off, ok := s.Offset(line, col)
	if !ok {
		return nil
	}
	end := off + 1
	if end > len(s.Source) {
		end = len(s.Source)
		off = max(0, end-1)
	}
	return s.Covering(off, end)
}

// Ancestor walks upward from n (inclusive) and returns the first node of
// type nodeType, or nil.
func (s *Snapshot) Ancestor(n *gotreesitter.Node, nodeType string) *gotreesitter.Node {
	for cur := n; cur != nil; cur = cur.Parent() {
		if s.Type(cur) == nodeType {
			return cur
		}
	}
	return nil
}

// Chain returns the types from n (inclusive) up to the root, innermost
// first. limit <= 0 means no limit.
func (s *Snapshot) Chain(n *gotreesitter.Node, limit int) []string {
	var chain []string
	for cur := n; cur != nil; cur = cur.Parent() {
		if limit > 0 && len(chain) == limit {
			break
		}
		chain = append(chain, s.Type(cur))
	}
	return chain
}

// SExpr renders n and its named descendants as an indented S-expression.
func (s *Snapshot) SExpr(n *gotreesitter.Node, depth int) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	indent := strings.Repeat("  ", depth)
	b.WriteString("(")
	b.WriteString(s.Type(n))
	if n.IsMissing() {
		b.WriteString(" MISSING")
	}
	if n.NamedChildCount() > 0 {
		for i := 0; i < n.NamedChildCount(); i++ {
			b.WriteString("\n")
			b.WriteString(indent)
			b.WriteString("  ")
			b.WriteString(s.SExpr(n.NamedChild(i), depth+1))
		}
		b.WriteString("\n")
		b.WriteString(indent)
	}
	b.WriteString(")")
	return b.String()
}

// Preview returns the first line of n's text, truncated to width runes.
func (s *Snapshot) Preview(n *gotreesitter.Node, width int) string {
	text := s.Text(n)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i] + " ..."
	}
	r := []rune(text)
	if width > 0 && len(r) > width {
		return string(r[:width]) + "..."
	}
	return text
}
