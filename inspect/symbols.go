package inspect

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/gotreesitter"

	"github.com/odvcencio/semedit/snapshot"
)

// Symbol is a named declaration.
type Symbol struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	NodeType  string `json:"node_type"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

func symbolKind(nodeType string) string {
	t := strings.ToLower(nodeType)
	switch {
	case strings.Contains(t, "function"), strings.Contains(t, "method"):
		return "function"
	case strings.Contains(t, "class"):
		return "class"
	case strings.Contains(t, "trait"), strings.Contains(t, "interface"):
		return "interface"
	case strings.Contains(t, "struct"):
		return "struct"
	case strings.Contains(t, "enum"):
		return "enum"
	case strings.HasPrefix(t, "impl"):
		return "impl"
	case strings.Contains(t, "type"):
		return "type"
	case strings.HasPrefix(t, "mod"):
		return "module"
	case strings.Contains(t, "const"), strings.Contains(t, "static"):
		return "variable"
	default:
		return ""
	}
}

func symbolName(snap *snapshot.Snapshot, n *gotreesitter.Node) string {
	lang := snap.Language()
	for _, field := range []string{"name", "type"} {
		if named := n.ChildByFieldName(field, lang); named != nil {
			return strings.TrimSpace(snap.Text(named))
		}
	}
	for i := 0; i < n.NamedChildCount(); i++ {
		child := n.NamedChild(i)
		t := snap.Type(child)
		if strings.Contains(t, "identifier") || t == "name" {
			return strings.TrimSpace(snap.Text(child))
		}
	}
	return ""
}

// Symbols lists the declarations in snap, in source order. Expression-level
// nodes such as closures and calls are skipped.
func Symbols(snap *snapshot.Snapshot) []Symbol {
	var out []Symbol
	seen := make(map[string]bool)
	snapshot.Walk(snap.Root(), func(n *gotreesitter.Node) bool {
		if !n.IsNamed() {
			return false
		}
		t := snap.Type(n)
		if strings.Contains(t, "expression") || strings.Contains(t, "call") || strings.Contains(t, "parameter") {
			return true
		}
		kind := symbolKind(t)
		if kind == "" || !strings.HasSuffix(t, "_item") && !strings.HasSuffix(t, "_definition") && !strings.HasSuffix(t, "_declaration") {
			return true
		}
		name := symbolName(snap, n)
		if name == "" {
			return true
		}
		sym := Symbol{
			Name:      name,
			Kind:      kind,
			NodeType:  t,
			StartLine: int(n.StartPoint().Row) + 1,
			EndLine:   int(n.EndPoint().Row) + 1,
		}
		key := fmt.Sprintf("%s:%s:%d:%d", sym.Kind, sym.Name, sym.StartLine, sym.EndLine)
		if !seen[key] {
			seen[key] = true
			out = append(out, sym)
		}
		return true
	})
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartLine == out[j].StartLine {
			return out[i].Name < out[j].Name
		}
		return out[i].StartLine < out[j].StartLine
	})
	return out
}

// RenderSymbols formats syms one per line.
func RenderSymbols(syms []Symbol) string {
	var b strings.Builder
	for _, s := range syms {
		fmt.Fprintf(&b, "%4d-%-4d %-9s %s (%s)\n", s.StartLine, s.EndLine, s.Kind, s.Name, s.NodeType)
	}
	return b.String()
}
