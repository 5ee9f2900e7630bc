// Package validate runs the two validation layers over a candidate source:
// placement rules first, then a syntax check of the whole tree.
package validate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/odvcencio/semedit/diag"
	"github.com/odvcencio/semedit/edit"
	"github.com/odvcencio/semedit/languages"
	"github.com/odvcencio/semedit/snapshot"
)

// DefaultRuleTTL is how long a compiled rule stays cached.
const DefaultRuleTTL = 30 * time.Minute

// Violation is one placement rule hit.
type Violation struct {
	RuleID      string
	NodeType    string
	Line        int
	Column      int
	Start, End  int
	Message     string
	Suggestion  string
	Alternative languages.Alternative
}

func (v Violation) String() string {
	return fmt.Sprintf("%s at %d:%d: %s [%s]", v.NodeType, v.Line, v.Column, v.Message, v.RuleID)
}

// Validator checks candidates. It is safe for concurrent use.
type Validator struct {
	rules        *ruleCache
	ContextLines int
}

// New returns a Validator caching compiled rules for ttl.
func New(ttl time.Duration) *Validator {
	if ttl <= 0 {
		ttl = DefaultRuleTTL
	}
	return &Validator{rules: newRuleCache(ttl), ContextLines: 3}
}

// Check runs both layers. Only rule hits that intersect region count.
func (v *Validator) Check(snap *snapshot.Snapshot, region edit.Region) error {
	if err := v.Context(snap, region); err != nil {
		return err
	}
	return v.Syntax(snap)
}

// Context runs the placement rules of snap's language.
func (v *Validator) Context(snap *snapshot.Snapshot, region edit.Region) error {
	var hits []Violation
	for _, vio := range v.Violations(snap) {
		if region.Intersects(vio.Start, vio.End) {
			hits = append(hits, vio)
		}
	}
	hits = append(hits, v.insertionHits(snap, region, hits)...)
	if len(hits) == 0 {
		return nil
	}

	var b strings.Builder
	var suggestions []string
	seen := make(map[string]bool)
	for _, h := range hits {
		fmt.Fprintf(&b, "%s\n", h)
		b.WriteString(snap.Window(h.Line, h.Line, v.ContextLines, map[int]bool{h.Line: true}))
		b.WriteString("\n")
		for _, s := range []string{h.Suggestion, altSuggestion(h.Alternative)} {
			if s != "" && !seen[s] {
				seen[s] = true
				suggestions = append(suggestions, s)
			}
		}
	}
	return diag.New(diag.InvalidSemantics, "%s", hits[0].Message).
		WithDetail(b.String()).
		WithSuggestions(suggestions...)
}

// insertionHits applies error-form rules to the insertion point itself. Error
// recovery often folds the surrounding container into the error node, so the
// candidate tree alone cannot say where the content went; the enclosing types
// recorded from the old tree can.
func (v *Validator) insertionHits(snap *snapshot.Snapshot, region edit.Region, found []Violation) []Violation {
	if snap.Profile.Rules == nil || len(region.Enclosing) == 0 || !snap.HasErrors() {
		return nil
	}
	if !errorNear(snap, region) {
		return nil
	}
	have := make(map[string]bool, len(found))
	for _, h := range found {
		have[h.RuleID] = true
	}
	start, end := region.Start, min(region.End, len(snap.Source))
	if start > end {
		return nil
	}
	inserted := string(snap.Source[start:end])
	line, col := snap.Position(start)

	var out []Violation
	for i := range snap.Profile.Rules.Rules {
		cr := v.rules.get(snap.Profile, i)
		if cr.err != nil || cr.query != nil || len(cr.rule.ErrorContext) == 0 || have[cr.rule.ID] {
			continue
		}
		if !containsAny(region.Enclosing, cr.rule.ErrorContext) {
			continue
		}
		if cr.match != nil && !cr.match.MatchString(inserted) {
			continue
		}
		have[cr.rule.ID] = true
		out = append(out, Violation{
			RuleID:      cr.rule.ID,
			NodeType:    region.Enclosing[0],
			Line:        line,
			Column:      col,
			Start:       start,
			End:         end,
			Message:     cr.rule.Message,
			Suggestion:  cr.rule.Suggestion,
			Alternative: cr.rule.Alternative,
		})
	}
	return out
}

// errorNear reports whether a parse error touches region. A tree flagged as
// erroneous without any error node counts as touching.
func errorNear(snap *snapshot.Snapshot, region edit.Region) bool {
	nodes := snap.ErrorNodes()
	if len(nodes) == 0 {
		return true
	}
	for _, n := range nodes {
		if region.Intersects(int(n.StartByte()), int(n.EndByte())) {
			return true
		}
	}
	return false
}

func containsAny(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

func altSuggestion(a languages.Alternative) string {
	if a.IsZero() {
		return ""
	}
	return "try " + a.String()
}

type hitKey struct {
	id         string
	start, end uint32
}

// Violations returns every rule hit in snap regardless of position.
func (v *Validator) Violations(snap *snapshot.Snapshot) []Violation {
	profile := snap.Profile
	if profile.Rules == nil {
		return nil
	}
	var out []Violation
	seen := make(map[hitKey]bool)
	for i := range profile.Rules.Rules {
		cr := v.rules.get(profile, i)
		for _, n := range cr.flagged(snap) {
			if !cr.ancestorsAllow(snap, n) {
				continue
			}
			key := hitKey{cr.rule.ID, n.StartByte(), n.EndByte()}
			if seen[key] {
				continue
			}
			seen[key] = true
			p := n.StartPoint()
			out = append(out, Violation{
				RuleID:      cr.rule.ID,
				NodeType:    snap.Type(n),
				Line:        int(p.Row) + 1,
				Column:      int(p.Column) + 1,
				Start:       int(n.StartByte()),
				End:         int(n.EndByte()),
				Message:     cr.rule.Message,
				Suggestion:  cr.rule.Suggestion,
				Alternative: cr.rule.Alternative,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// Syntax rejects any tree containing an error or missing node.
func (v *Validator) Syntax(snap *snapshot.Snapshot) error {
	if !snap.HasErrors() {
		return nil
	}
	errs := snap.Errors()
	msg := "edit produces invalid syntax"
	if len(errs) > 0 {
		msg = fmt.Sprintf("edit produces invalid syntax (%d parse errors, first at %d:%d)", len(errs), errs[0].Line, errs[0].Column)
	}
	return diag.New(diag.InvalidSyntax, "%s", msg).
		WithDetail(snap.ErrorReport(errs, v.ContextLines))
}

// Prevalidate rejects a file that already fails to parse.
func (v *Validator) Prevalidate(snap *snapshot.Snapshot) error {
	if !snap.HasErrors() {
		return nil
	}
	errs := snap.Errors()
	return diag.New(diag.InvalidSyntax, "syntax error found prior to edit in %s, not attempting", snap.Path).
		WithDetail(snap.ErrorReport(errs, v.ContextLines)).
		WithSuggestions("fix the existing syntax errors first, or show them to a human collaborator")
}

// RuleErrors compiles every rule of profile and reports those that fail.
func (v *Validator) RuleErrors(profile *languages.Profile) []error {
	if profile.Rules == nil || profile.Language() == nil {
		return nil
	}
	var errs []error
	for i := range profile.Rules.Rules {
		if cr := v.rules.get(profile, i); cr.err != nil {
			errs = append(errs, cr.err)
		}
	}
	return errs
}
