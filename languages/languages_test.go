package languages

import (
	"context"
	"strings"
	"testing"

	"github.com/odvcencio/gotreesitter/grammars"

	"github.com/odvcencio/semedit/diag"
)

func TestDetectBuiltinProfiles(t *testing.T) {
	reg := Default()
	tests := []struct {
		path string
		want string
	}{
		{"src/main.rs", "rust"},
		{"pkg/app.py", "python"},
		{"stubs/app.pyi", "python"},
		{"cmd/main.go", "go"},
		{"package.json", "json"},
	}
	for _, tt := range tests {
		p, err := reg.Detect(tt.path)
		if err != nil {
			t.Fatalf("Detect(%q): %v", tt.path, err)
		}
		if p.Name != tt.want {
			t.Errorf("Detect(%q) = %q, want %q", tt.path, p.Name, tt.want)
		}
	}
}

func TestDetectUnknownExtension(t *testing.T) {
	_, err := Default().Detect("notes.unknown-ext")
	if !diag.Is(err, diag.UnsupportedLanguage) {
		t.Fatalf("expected UnsupportedLanguage, got %v", err)
	}
}

func TestResolveHint(t *testing.T) {
	reg := Default()
	p, err := reg.Resolve("script", "python")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if p.Name != "python" {
		t.Fatalf("got %q", p.Name)
	}
	if _, err := reg.Resolve("a.rs", "klingon"); !diag.Is(err, diag.UnsupportedLanguage) {
		t.Fatalf("expected UnsupportedLanguage for unknown hint, got %v", err)
	}
}

func TestBuiltinGrammarsParse(t *testing.T) {
	tests := []struct {
		name, src, root, first string
	}{
		{"rust", "fn main() {}\n", "source_file", "function_item"},
		{"rust", "struct User { pub name: String }\n", "source_file", "struct_item"},
		{"python", "def f():\n    pass\n", "module", "function_definition"},
		{"toml", "a = 1\n", "document", "pair"},
		{"json", "{\"a\": 1}\n", "document", "object"},
	}
	reg := Default()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, ok := reg.ByName(tt.name)
			if !ok {
				t.Fatalf("no %s profile", tt.name)
			}
			if s := p.Support(); s.Backend == grammars.ParseBackendUnsupported {
				t.Fatalf("%s unsupported: %s", tt.name, s.Reason)
			}
			tree, err := p.Parse([]byte(tt.src))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			root := tree.RootNode()
			if got := root.Type(p.Language()); got != tt.root {
				t.Fatalf("root type = %q, want %q", got, tt.root)
			}
			if root.HasError() || root.NamedChildCount() == 0 {
				t.Fatalf("%q parsed to an empty or erroneous %s", tt.src, tt.root)
			}
			if got := root.NamedChild(0).Type(p.Language()); got != tt.first {
				t.Fatalf("first item = %q, want %q", got, tt.first)
			}
		})
	}
}

func TestEmbeddedRuleSets(t *testing.T) {
	for _, name := range []string{"rust", "python"} {
		rs, err := LoadRuleSet(name)
		if err != nil {
			t.Fatalf("LoadRuleSet(%s): %v", name, err)
		}
		if rs.Language != name {
			t.Errorf("%s: language = %q", name, rs.Language)
		}
		if len(rs.Rules) == 0 {
			t.Errorf("%s: no rules", name)
		}
	}
}

func TestParseRuleSetValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"missing id", "[[rule]]\nquery = \"(a)\"\nmessage = \"m\"\n", "id is required"},
		{"no selector", "[[rule]]\nid = \"x\"\nmessage = \"m\"\n", "exactly one of"},
		{"both selectors", "[[rule]]\nid = \"x\"\nquery = \"(a)\"\nerror_context = [\"b\"]\nmessage = \"m\"\n", "exactly one of"},
		{"missing message", "[[rule]]\nid = \"x\"\nquery = \"(a)\"\n", "message is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRuleSet(tt.doc)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want substring %q", err, tt.want)
			}
		})
	}
}

func TestAlternativeString(t *testing.T) {
	a := Alternative{Operation: "insert_after", Ancestor: "enum_item", Note: "wrap it in an impl block"}
	want := `insert_after with ancestor_node_type "enum_item" (wrap it in an impl block)`
	if got := a.String(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if (Alternative{}).String() != "" {
		t.Fatal("zero alternative should render empty")
	}
}

func TestJSONFormatterKeepsIndentUnit(t *testing.T) {
	src := "{\n    \"a\": 1,\n\"b\": [1,2]}"
	out, err := JSONFormatter{}.Format(context.Background(), []byte(src))
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	want := "{\n    \"a\": 1,\n    \"b\": [\n        1,\n        2\n    ]\n}\n"
	if string(out) != want {
		t.Fatalf("got %q, want %q", out, want)
	}
	again, _ := JSONFormatter{}.Format(context.Background(), out)
	if string(again) != string(out) {
		t.Fatal("json formatting is not idempotent")
	}
}

func TestGoFormatter(t *testing.T) {
	out, err := GoFormatter{}.Format(context.Background(), []byte("package a\n\nfunc f( ) {  }\n"))
	if err != nil {
		t.Fatalf("Format: %v", err)
	}
	if string(out) != "package a\n\nfunc f() {}\n" {
		t.Fatalf("got %q", out)
	}
}

func TestCommandFormatterMissingBinary(t *testing.T) {
	f := &CommandFormatter{Command: "semedit-no-such-formatter"}
	_, err := f.Format(context.Background(), []byte("x"))
	if err == nil || !strings.Contains(err.Error(), ErrFormatterUnavailable.Error()) {
		t.Fatalf("expected ErrFormatterUnavailable, got %v", err)
	}
}

func TestAuditListsProfiles(t *testing.T) {
	rows := Default().WithoutFormatters().Audit()
	seen := map[string]Support{}
	for _, r := range rows {
		seen[r.Name] = r
	}
	rust, ok := seen["rust"]
	if !ok {
		t.Fatal("rust missing from audit")
	}
	if rust.Rules == 0 {
		t.Error("rust should report rules")
	}
	if rust.Formatter != "" {
		t.Errorf("formatter should be stripped, got %q", rust.Formatter)
	}
}
