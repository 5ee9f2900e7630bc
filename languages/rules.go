package languages

import (
	"embed"
	"fmt"
	"path"

	"github.com/BurntSushi/toml"
)

//go:embed rules/*.toml
var ruleFiles embed.FS

// Rule is one declarative placement rule. Exactly one of Query or
// ErrorContext selects the flagged nodes.
type Rule struct {
	ID      string `toml:"id"`
	Message string `toml:"message"`

	// Query is a tree query; the node captured as @violation is flagged.
	Query string `toml:"query"`

	// ErrorContext flags parse-error nodes that sit inside, or wrap, one of
	// these node types and whose text matches ErrorMatch.
	ErrorContext []string `toml:"error_context"`
	ErrorMatch   string   `toml:"error_match"`

	// Ancestor filters applied to the flagged node. The walk upward stops
	// before any type listed in StopAt.
	Inside    []string `toml:"inside"`
	NotInside []string `toml:"not_inside"`
	StopAt    []string `toml:"stop_at"`

	Suggestion  string      `toml:"suggestion"`
	Alternative Alternative `toml:"alternative"`
}

// Alternative names an edit that would place the content legally.
type Alternative struct {
	Operation string `toml:"operation"`
	Ancestor  string `toml:"ancestor"`
	Note      string `toml:"note"`
}

// IsZero reports whether no alternative is set.
func (a Alternative) IsZero() bool { return a.Operation == "" }

func (a Alternative) String() string {
	if a.IsZero() {
		return ""
	}
	s := a.Operation
	if a.Ancestor != "" {
		s += fmt.Sprintf(" with ancestor_node_type %q", a.Ancestor)
	}
	if a.Note != "" {
		s += " (" + a.Note + ")"
	}
	return s
}

// RuleSet is the placement policy for one language.
type RuleSet struct {
	Language string `toml:"language"`
	Rules    []Rule `toml:"rule"`
}

// ParseRuleSet decodes a TOML rule document.
func ParseRuleSet(data string) (*RuleSet, error) {
	var rs RuleSet
	if _, err := toml.Decode(data, &rs); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	for i, r := range rs.Rules {
		if r.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		if (r.Query == "") == (len(r.ErrorContext) == 0) {
			return nil, fmt.Errorf("rule %s: exactly one of query or error_context is required", r.ID)
		}
		if r.Message == "" {
			return nil, fmt.Errorf("rule %s: message is required", r.ID)
		}
	}
	return &rs, nil
}

// LoadRuleSet returns the embedded rule set for a language.
func LoadRuleSet(language string) (*RuleSet, error) {
	data, err := ruleFiles.ReadFile(path.Join("rules", language+".toml"))
	if err != nil {
		return nil, fmt.Errorf("rules for %s: %w", language, err)
	}
	rs, err := ParseRuleSet(string(data))
	if err != nil {
		return nil, fmt.Errorf("rules for %s: %w", language, err)
	}
	return rs, nil
}

func mustRules(language string) *RuleSet {
	rs, err := LoadRuleSet(language)
	if err != nil {
		panic(err)
	}
	return rs
}
