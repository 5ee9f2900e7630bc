package edit

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/odvcencio/semedit/selector"
	"github.com/odvcencio/semedit/snapshot"
)

// Region is the changed byte range of an edit. Start and End index the new
// source; OldEnd indexes the old one. Start == End means pure deletion.
// Enclosing lists the node types around the insertion point in the old
// tree, innermost first.
type Region struct {
	Start     int
	End       int
	OldEnd    int
	Enclosing []string
}

// Intersects reports whether [start, end) touches the region. An empty
// region is treated as a point.
func (r Region) Intersects(start, end int) bool {
	if r.Start == r.End {
		return start <= r.Start && r.Start <= end
	}
	return start < r.End && r.Start < end
}

// ChangedRegion returns the region between the common prefix and common
// suffix of oldSrc and newSrc.
func ChangedRegion(oldSrc, newSrc []byte) Region {
	p := 0
	for p < len(oldSrc) && p < len(newSrc) && oldSrc[p] == newSrc[p] {
		p++
	}
	s := 0
	for s < len(oldSrc)-p && s < len(newSrc)-p && oldSrc[len(oldSrc)-1-s] == newSrc[len(newSrc)-1-s] {
		s++
	}
	return Region{Start: p, End: len(newSrc) - s, OldEnd: len(oldSrc) - s}
}

// Result is an edit applied in memory.
type Result struct {
	Operation   Operation
	Target      selector.Candidate
	Source      []byte // candidate text, formatted when a formatter succeeded
	Raw         []byte // candidate text before formatting
	Region      Region // edited region within Source
	Formatted   bool
	FormatError error
	Warnings    []string
}

// Engine applies operations. The zero value does not format.
type Engine struct {
	Format        bool
	FormatTimeout time.Duration
}

// Apply splices content into snap at target and runs the language formatter
// over the whole candidate.
func (e Engine) Apply(ctx context.Context, snap *snapshot.Snapshot, target *selector.Candidate, op Operation, content string) (*Result, error) {
	raw, insStart, insEnd, err := Splice(snap.Source, target.Start, target.End, op, content)
	if err != nil {
		return nil, err
	}
	res := &Result{
		Operation: op,
		Target:    *target,
		Source:    raw,
		Raw:       raw,
		Region: Region{
			Start:  insStart,
			End:    insEnd,
			OldEnd: insStart + len(snap.Source) - len(raw) + (insEnd - insStart),
		},
		Warnings: StructuralWarnings(op, target.Type),
	}
	res.Region.Enclosing = enclosing(snap, target)

	f := snap.Profile.Formatter
	if !e.Format || f == nil {
		return res, nil
	}
	if e.FormatTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.FormatTimeout)
		defer cancel()
	}
	formatted, err := f.Format(ctx, raw)
	if err != nil {
		res.FormatError = err
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s could not format the result, using unformatted text: %v", f.Name(), err))
		return res, nil
	}
	res.Source = formatted
	res.Formatted = true
	if !bytes.Equal(formatted, raw) {
		res.Region = ChangedRegion(snap.Source, formatted)
		res.Region.Enclosing = enclosing(snap, target)
	}
	return res, nil
}

// enclosing returns the types of the target's ancestors. Every operation
// places content among the target's siblings, so the chain starts at its
// parent.
func enclosing(snap *snapshot.Snapshot, target *selector.Candidate) []string {
	if target.Node == nil {
		return nil
	}
	var out []string
	for n := target.Node.Parent(); n != nil; n = n.Parent() {
		out = append(out, snap.Type(n))
	}
	return out
}

var containerTypes = map[string]bool{
	"struct_item":      true,
	"enum_item":        true,
	"impl_item":        true,
	"trait_item":       true,
	"mod_item":         true,
	"class_definition": true,
}

// StructuralWarnings returns non-fatal notes about where content will land.
func StructuralWarnings(op Operation, targetType string) []string {
	if !containerTypes[targetType] {
		return nil
	}
	switch op {
	case InsertAfter:
		return []string{fmt.Sprintf("content is inserted after the closing of the %s, outside it; target a node inside it to add members", targetType)}
	case InsertBefore:
		return []string{fmt.Sprintf("content is inserted before the %s, outside it", targetType)}
	case Replace:
		return []string{fmt.Sprintf("the entire %s is replaced, including its body", targetType)}
	}
	return nil
}
