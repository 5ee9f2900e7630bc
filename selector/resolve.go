package selector

import (
	"fmt"
	"sort"
	"strings"

	"github.com/odvcencio/gotreesitter"

	"github.com/odvcencio/semedit/diag"
	"github.com/odvcencio/semedit/snapshot"
)

// Candidate is an anchor occurrence with a qualifying ancestor.
type Candidate struct {
	Node         *gotreesitter.Node
	Type         string
	Start, End   int
	StartLine    int
	StartColumn  int
	EndLine      int
	EndColumn    int
	AnchorOffset int
}

func (c Candidate) String() string {
	return fmt.Sprintf("%s at %d:%d-%d:%d", c.Type, c.StartLine, c.StartColumn, c.EndLine, c.EndColumn)
}

// Orphan is an anchor occurrence with no ancestor of the requested type.
type Orphan struct {
	Offset int
	Line   int
	Column int
	Chain  []string
	node   *gotreesitter.Node
}

// Resolver turns selectors into candidates. The zero value uses defaults.
type Resolver struct {
	ContextLines int // lines of context around each reported location
	MaxChain     int // ancestor types listed per orphan
}

func (r Resolver) contextLines() int {
	if r.ContextLines <= 0 {
		return 3
	}
	return r.ContextLines
}

func (r Resolver) maxChain() int {
	if r.MaxChain <= 0 {
		return 5
	}
	return r.MaxChain
}

// Resolve returns the single candidate sel identifies in snap, or a
// diagnostic explaining why there is none.
func (r Resolver) Resolve(snap *snapshot.Snapshot, sel Selector) (*Candidate, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	candidates, orphans := r.Scan(snap, sel)

	switch {
	case len(candidates) == 1:
		return &candidates[0], nil
	case len(candidates) > 1:
		return nil, r.ambiguous(snap, sel, candidates)
	case len(orphans) == 0:
		return nil, diag.New(diag.AnchorNotFound, "anchor text %q not found in %s", sel.AnchorText, snap.Path).
			WithSuggestions("anchor_text is matched exactly and case-sensitively; copy it from the file")
	default:
		return nil, r.noQualifyingAncestor(snap, sel, orphans)
	}
}

// Scan classifies every occurrence of the anchor.
func (r Resolver) Scan(snap *snapshot.Snapshot, sel Selector) ([]Candidate, []Orphan) {
	var candidates []Candidate
	var orphans []Orphan
	for _, off := range Occurrences(snap.Source, sel.AnchorText) {
		inner := snap.Covering(off, off+len(sel.AnchorText))
		if inner == nil {
			continue
		}
		if anc := snap.Ancestor(inner, sel.AncestorNodeType); anc != nil {
			candidates = append(candidates, newCandidate(snap, anc, off))
			continue
		}
		line, col := snap.Position(off)
		orphans = append(orphans, Orphan{
			Offset: off,
			Line:   line,
			Column: col,
			Chain:  snap.Chain(inner, r.maxChain()),
			node:   inner,
		})
	}
	return candidates, orphans
}

func newCandidate(snap *snapshot.Snapshot, n *gotreesitter.Node, anchor int) Candidate {
	sp, ep := n.StartPoint(), n.EndPoint()
	return Candidate{
		Node:         n,
		Type:         snap.Type(n),
		Start:        int(n.StartByte()),
		End:          int(n.EndByte()),
		StartLine:    int(sp.Row) + 1,
		StartColumn:  int(sp.Column) + 1,
		EndLine:      int(ep.Row) + 1,
		EndColumn:    int(ep.Column) + 1,
		AnchorOffset: anchor,
	}
}

func (r Resolver) ambiguous(snap *snapshot.Snapshot, sel Selector, candidates []Candidate) error {
	var b strings.Builder
	for i, c := range candidates {
		line, col := snap.Position(c.AnchorOffset)
		fmt.Fprintf(&b, "Candidate %d: %s (anchor at %d:%d)\n", i+1, c, line, col)
		b.WriteString(snap.Window(line, line, r.contextLines(), map[int]bool{line: true}))
		b.WriteString("\n")
	}
	return diag.New(diag.AmbiguousTarget, "%d candidates match %s", len(candidates), sel).
		WithDetail(b.String()).
		WithSuggestions(
			"extend anchor_text with neighbouring text so it occurs once",
			"or choose a more specific ancestor_node_type",
		)
}

func (r Resolver) noQualifyingAncestor(snap *snapshot.Snapshot, sel Selector, orphans []Orphan) error {
	var b strings.Builder
	observed := make(map[string]bool)
	for i, o := range orphans {
		fmt.Fprintf(&b, "Occurrence %d at %d:%d, ancestors: %s\n", i+1, o.Line, o.Column, strings.Join(o.Chain, " > "))
		b.WriteString(snap.Window(o.Line, o.Line, r.contextLines(), map[int]bool{o.Line: true}))
		b.WriteString("\n")
		for cur := o.node; cur != nil; cur = cur.Parent() {
			if cur.IsNamed() && !snapshot.IsError(cur) {
				observed[snap.Type(cur)] = true
			}
		}
	}
	types := make([]string, 0, len(observed))
	for t := range observed {
		types = append(types, t)
	}
	sort.Strings(types)

	return diag.New(diag.NoQualifyingAncestor, "no occurrence of %q is inside a %s node", sel.AnchorText, sel.AncestorNodeType).
		WithDetail(b.String()).
		WithSuggestions("ancestor types seen around the anchor: " + strings.Join(types, ", "))
}
