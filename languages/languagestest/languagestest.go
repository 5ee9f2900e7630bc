// Package languagestest provides helpers for tests that need a working
// grammar.
package languagestest

import (
	"testing"

	"github.com/odvcencio/gotreesitter/grammars"

	"github.com/odvcencio/semedit/languages"
)

// sample is a known-good snippet and the root and first item types it must
// parse into.
type sample struct {
	src   string
	root  string
	first string
}

var samples = map[string]sample{
	"rust":   {"fn a() {}\n", "source_file", "function_item"},
	"python": {"def f():\n    pass\n", "module", "function_definition"},
	"json":   {"{\"a\": 1}\n", "document", "object"},
	"toml":   {"a = 1\n", "document", "pair"},
}

// Require returns reg's profile for name and fails the test unless its
// grammar parses a known snippet into the expected nodes without errors.
func Require(t testing.TB, reg *languages.Registry, name string) *languages.Profile {
	t.Helper()
	p, ok := reg.ByName(name)
	if !ok {
		t.Fatalf("no %s profile registered", name)
	}
	if s := p.Support(); s.Backend == grammars.ParseBackendUnsupported {
		t.Fatalf("%s grammar cannot parse: %s", name, s.Reason)
	}
	want, ok := samples[p.Name]
	if !ok {
		return p
	}
	tree, err := p.Parse([]byte(want.src))
	if err != nil {
		t.Fatalf("%s: parse %q: %v", name, want.src, err)
	}
	root := tree.RootNode()
	lang := p.Language()
	if got := root.Type(lang); got != want.root {
		t.Fatalf("%s: root of %q is %s, want %s", name, want.src, got, want.root)
	}
	if root.HasError() {
		t.Fatalf("%s: %q parsed with errors", name, want.src)
	}
	if root.NamedChildCount() == 0 {
		t.Fatalf("%s: %q parsed to an empty %s", name, want.src, want.root)
	}
	if got := root.NamedChild(0).Type(lang); got != want.first {
		t.Fatalf("%s: first item of %q is %s, want %s", name, want.src, got, want.first)
	}
	return p
}

// Rust is Require for the default rust profile.
func Rust(t testing.TB) *languages.Profile {
	t.Helper()
	return Require(t, languages.Default(), "rust")
}
