// Package languages maps file extensions to grammar, formatter, and
// placement rules. Adding a language means registering a Profile.
package languages

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/odvcencio/gotreesitter"
	"github.com/odvcencio/gotreesitter/grammars"

	"github.com/odvcencio/semedit/diag"
)

// Profile holds everything the editing pipeline needs for one language.
type Profile struct {
	Name       string
	Extensions []string // e.g. [".rs"]
	Grammar    string   // grammar name in the gotreesitter registry; defaults to Name
	Formatter  Formatter
	Rules      *RuleSet

	once  sync.Once
	entry *grammars.LangEntry
	lang  *gotreesitter.Language
}

func (p *Profile) load() {
	p.once.Do(func() {
		name := p.Grammar
		if name == "" {
			name = p.Name
		}
		p.entry = grammarByName(name)
		if p.entry == nil {
			for _, ext := range p.Extensions {
				if p.entry = grammars.DetectLanguage("x" + ext); p.entry != nil {
					break
				}
			}
		}
		if p.entry != nil {
			p.lang = p.entry.Language()
		}
	})
}

// Language returns the loaded grammar, or nil when the runtime has none.
func (p *Profile) Language() *gotreesitter.Language {
	p.load()
	return p.lang
}

// Support reports how the runtime can parse this language.
func (p *Profile) Support() grammars.ParseSupport {
	p.load()
	if p.entry == nil || p.lang == nil {
		return grammars.ParseSupport{
			Name:    p.Name,
			Backend: grammars.ParseBackendUnsupported,
			Reason:  "no grammar registered",
		}
	}
	return grammars.EvaluateParseSupport(*p.entry, p.lang)
}

// Parse parses source with the profile's grammar.
func (p *Profile) Parse(source []byte) (*gotreesitter.Tree, error) {
	p.load()
	if p.entry == nil || p.lang == nil {
		return nil, diag.New(diag.UnsupportedLanguage, "no grammar for %s", p.Name)
	}
	if p.Support().Backend == grammars.ParseBackendUnsupported {
		return nil, diag.New(diag.UnsupportedLanguage, "tree-sitter unsupported for %s", p.Name)
	}

	parser := gotreesitter.NewParser(p.lang)
	var tree *gotreesitter.Tree
	var err error
	if p.entry.TokenSourceFactory != nil {
		tree, err = parser.ParseWithTokenSource(source, p.entry.TokenSourceFactory(source, p.lang))
	} else {
		tree, err = parser.Parse(source)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s source: %w", p.Name, err)
	}
	if tree == nil || tree.RootNode() == nil {
		return nil, fmt.Errorf("failed to parse %s source", p.Name)
	}
	return tree, nil
}

func grammarByName(name string) *grammars.LangEntry {
	all := grammars.AllLanguages()
	for i := range all {
		if strings.EqualFold(all[i].Name, name) {
			return &all[i]
		}
	}
	return nil
}

// Registry resolves profiles by extension or name.
type Registry struct {
	mu       sync.RWMutex
	profiles []*Profile
	fallback map[string]*Profile
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{fallback: make(map[string]*Profile)}
}

// Register adds a profile. Later registrations win for shared extensions.
func (r *Registry) Register(p *Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles = append([]*Profile{p}, r.profiles...)
}

// Profiles returns all explicitly registered profiles sorted by name.
func (r *Registry) Profiles() []*Profile {
	r.mu.RLock()
	out := append([]*Profile(nil), r.profiles...)
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ByName returns the profile registered under name.
func (r *Registry) ByName(name string) (*Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.profiles {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return nil, false
}

// Detect returns the profile for path. Files whose extension has no explicit
// profile but is known to the grammar registry get a syntax-only profile.
func (r *Registry) Detect(path string) (*Profile, error) {
	base := filepath.Base(path)
	r.mu.RLock()
	for _, p := range r.profiles {
		for _, ext := range p.Extensions {
			if strings.HasSuffix(base, ext) {
				r.mu.RUnlock()
				return p, nil
			}
		}
	}
	r.mu.RUnlock()

	entry := grammars.DetectLanguage(base)
	if entry == nil {
		return nil, diag.New(diag.UnsupportedLanguage, "no language registered for %s", base).
			WithSuggestions(fmt.Sprintf("supported languages: %s", strings.Join(r.names(), ", ")))
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.fallback[entry.Name]; ok {
		return p, nil
	}
	p := &Profile{Name: entry.Name, Extensions: entry.Extensions, Grammar: entry.Name}
	r.fallback[entry.Name] = p
	return p, nil
}

// Resolve returns the profile named by hint, or detects one from path.
func (r *Registry) Resolve(path, hint string) (*Profile, error) {
	if hint == "" {
		return r.Detect(path)
	}
	if p, ok := r.ByName(hint); ok {
		return p, nil
	}
	if entry := grammarByName(hint); entry != nil {
		return &Profile{Name: entry.Name, Extensions: entry.Extensions, Grammar: entry.Name}, nil
	}
	return nil, diag.New(diag.UnsupportedLanguage, "unknown language %q", hint).
		WithSuggestions(fmt.Sprintf("supported languages: %s", strings.Join(r.names(), ", ")))
}

func (r *Registry) names() []string {
	var names []string
	for _, p := range r.Profiles() {
		names = append(names, p.Name)
	}
	return names
}

// Support summarizes one profile for listings.
type Support struct {
	Name       string
	Extensions []string
	Backend    grammars.ParseBackend
	Reason     string
	Formatter  string
	Rules      int
}

// Audit evaluates parse support for every registered profile.
func (r *Registry) Audit() []Support {
	profiles := r.Profiles()
	out := make([]Support, 0, len(profiles))
	for _, p := range profiles {
		s := p.Support()
		row := Support{
			Name:       p.Name,
			Extensions: p.Extensions,
			Backend:    s.Backend,
			Reason:     s.Reason,
		}
		if p.Formatter != nil {
			row.Formatter = p.Formatter.Name()
		}
		if p.Rules != nil {
			row.Rules = len(p.Rules.Rules)
		}
		out = append(out, row)
	}
	return out
}
