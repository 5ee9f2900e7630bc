package validate

import (
	"fmt"
	"regexp"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/odvcencio/gotreesitter"

	"github.com/odvcencio/semedit/languages"
	"github.com/odvcencio/semedit/snapshot"
)

const violationCapture = "violation"

type compiledRule struct {
	rule  languages.Rule
	query *gotreesitter.Query
	match *regexp.Regexp
	err   error
}

// ruleCache holds compiled rules keyed by language and rule position.
type ruleCache struct {
	cache *ttlcache.Cache[string, *compiledRule]
}

func newRuleCache(ttl time.Duration) *ruleCache {
	return &ruleCache{
		cache: ttlcache.New[string, *compiledRule](
			ttlcache.WithTTL[string, *compiledRule](ttl),
		),
	}
}

func (c *ruleCache) get(profile *languages.Profile, index int) *compiledRule {
	rule := profile.Rules.Rules[index]
	key := fmt.Sprintf("%s\x00%d\x00%s", profile.Name, index, rule.ID)
	if item := c.cache.Get(key); item != nil {
		return item.Value()
	}
	cr := compile(profile.Language(), rule)
	c.cache.Set(key, cr, ttlcache.DefaultTTL)
	return cr
}

func compile(lang *gotreesitter.Language, rule languages.Rule) *compiledRule {
	cr := &compiledRule{rule: rule}
	if rule.Query != "" {
		q, err := gotreesitter.NewQuery(rule.Query, lang)
		if err != nil {
			cr.err = fmt.Errorf("rule %s: %w", rule.ID, err)
			return cr
		}
		cr.query = q
		return cr
	}
	if rule.ErrorMatch != "" {
		re, err := regexp.Compile(rule.ErrorMatch)
		if err != nil {
			cr.err = fmt.Errorf("rule %s: error_match: %w", rule.ID, err)
			return cr
		}
		cr.match = re
	}
	return cr
}

// flagged returns the nodes a compiled rule selects in snap, before ancestor
// filters.
func (cr *compiledRule) flagged(snap *snapshot.Snapshot) []*gotreesitter.Node {
	if cr.err != nil {
		return nil
	}
	if cr.query != nil {
		var out []*gotreesitter.Node
		for _, m := range cr.query.Execute(snap.Tree) {
			var first *gotreesitter.Node
			found := false
			for _, c := range m.Captures {
				if first == nil {
					first = c.Node
				}
				if c.Name == violationCapture {
					out = append(out, c.Node)
					found = true
				}
			}
			if !found && first != nil {
				out = append(out, first)
			}
		}
		return out
	}

	var out []*gotreesitter.Node
	for _, n := range snap.ErrorNodes() {
		if !snapshot.IsError(n) {
			continue
		}
		if !errorInContext(snap, n, cr.rule.ErrorContext) {
			continue
		}
		if cr.match != nil && !cr.matchesAround(snap, n) {
			continue
		}
		out = append(out, n)
	}
	return out
}

// matchesAround matches the error node's text, falling back to its parent's
// when recovery split the offending tokens across siblings.
func (cr *compiledRule) matchesAround(snap *snapshot.Snapshot, n *gotreesitter.Node) bool {
	if cr.match.MatchString(snap.Text(n)) {
		return true
	}
	p := n.Parent()
	return p != nil && p.Parent() != nil && cr.match.MatchString(snap.Text(p))
}

// errorInContext reports whether an error node sits inside one of types or
// directly wraps a node of one of types.
func errorInContext(snap *snapshot.Snapshot, n *gotreesitter.Node, types []string) bool {
	want := make(map[string]bool, len(types))
	for _, t := range types {
		want[t] = true
	}
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		if want[snap.Type(cur)] {
			return true
		}
	}
	for i := 0; i < n.ChildCount(); i++ {
		if want[snap.Type(n.Child(i))] {
			return true
		}
	}
	return false
}

// ancestorsAllow applies the rule's inside / not_inside / stop_at filters.
func (cr *compiledRule) ancestorsAllow(snap *snapshot.Snapshot, n *gotreesitter.Node) bool {
	r := cr.rule
	if len(r.Inside) == 0 && len(r.NotInside) == 0 {
		return true
	}
	stop := toSet(r.StopAt)
	inside := toSet(r.Inside)
	notInside := toSet(r.NotInside)
	sawInside := false
	for cur := n.Parent(); cur != nil; cur = cur.Parent() {
		t := snap.Type(cur)
		if stop[t] {
			break
		}
		if notInside[t] {
			return false
		}
		if inside[t] {
			sawInside = true
		}
	}
	return len(inside) == 0 || sawInside
}

func toSet(items []string) map[string]bool {
	s := make(map[string]bool, len(items))
	for _, it := range items {
		s[it] = true
	}
	return s
}
