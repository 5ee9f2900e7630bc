package validate

import (
	"strings"
	"testing"

	"github.com/odvcencio/semedit/diag"
	"github.com/odvcencio/semedit/edit"
	"github.com/odvcencio/semedit/languages"
	"github.com/odvcencio/semedit/languages/languagestest"
	"github.com/odvcencio/semedit/snapshot"
)

func profile(t *testing.T, name string) *languages.Profile {
	t.Helper()
	return languagestest.Require(t, languages.Default(), name)
}

func parse(t *testing.T, p *languages.Profile, src string) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.Parse("file", []byte(src), p)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return snap
}

func whole(src string) edit.Region {
	return edit.Region{Start: 0, End: len(src), OldEnd: len(src)}
}

func TestBuiltinRulesCompile(t *testing.T) {
	v := New(0)
	for _, name := range []string{"rust", "python"} {
		p := profile(t, name)
		for _, err := range v.RuleErrors(p) {
			t.Errorf("%s: %v", name, err)
		}
	}
}

func TestCheckPassesValidSource(t *testing.T) {
	src := "struct User {\n    name: String,\n}\n\nimpl User {\n    fn name(&self) -> &str {\n        &self.name\n    }\n}\n"
	snap := parse(t, profile(t, "rust"), src)
	if err := New(0).Check(snap, whole(src)); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestSyntaxLayerRejectsErrors(t *testing.T) {
	src := "fn main() {\n    let x = ;\n}\n"
	snap := parse(t, profile(t, "rust"), src)
	err := New(0).Check(snap, whole(src))
	if !diag.Is(err, diag.InvalidSyntax) {
		t.Fatalf("expected InvalidSyntax, got %v", err)
	}
	if !strings.Contains(diag.Report(err), "   2 ->| ") {
		t.Fatalf("report should mark line 2:\n%s", diag.Report(err))
	}
}

func TestPrevalidate(t *testing.T) {
	v := New(0)
	p := profile(t, "rust")
	if err := v.Prevalidate(parse(t, p, "fn main() {}\n")); err != nil {
		t.Fatalf("clean file rejected: %v", err)
	}
	err := v.Prevalidate(parse(t, p, "fn main( {}\n"))
	if !diag.Is(err, diag.InvalidSyntax) || !strings.Contains(err.Error(), "prior to edit") {
		t.Fatalf("expected prior-to-edit InvalidSyntax, got %v", err)
	}
}

func TestImplInsideFunctionBody(t *testing.T) {
	src := "struct A;\n\nfn main() {\n    impl A {}\n}\n"
	snap := parse(t, profile(t, "rust"), src)
	v := New(0)

	vios := v.Violations(snap)
	if len(vios) != 1 || vios[0].RuleID != "invalid.impl.in.function.body" {
		t.Fatalf("unexpected violations %v", vios)
	}
	if vios[0].Line != 4 || vios[0].Column != 5 {
		t.Fatalf("violation at %d:%d, want 4:5", vios[0].Line, vios[0].Column)
	}

	start := strings.Index(src, "impl A")
	err := v.Check(snap, edit.Region{Start: start, End: start + len("impl A {}")})
	if !diag.Is(err, diag.InvalidSemantics) {
		t.Fatalf("expected InvalidSemantics, got %v", err)
	}
	if !strings.Contains(err.Error(), "Impl blocks cannot be placed inside function bodies") {
		t.Fatalf("unexpected message %q", err.Error())
	}

	// Hits outside the edited region are pre-existing and ignored.
	if err := v.Check(snap, edit.Region{Start: 0, End: len("struct A;")}); err != nil {
		t.Fatalf("pre-existing violation should be ignored: %v", err)
	}
}

func TestFunctionInsideEnumVariants(t *testing.T) {
	orig := "enum Color {\n    Red,\n    Green,\n}\n"
	start := strings.Index(orig, "Red")
	out, insStart, insEnd, err := edit.Splice([]byte(orig), start, start+len("Red"), edit.InsertAfter, "fn paint() {}")
	if err != nil {
		t.Fatalf("Splice: %v", err)
	}
	snap := parse(t, profile(t, "rust"), string(out))
	region := edit.Region{Start: insStart, End: insEnd, Enclosing: []string{"enum_variant_list", "enum_item", "source_file"}}
	err = New(0).Check(snap, region)
	if !diag.Is(err, diag.InvalidSemantics) {
		t.Fatalf("expected InvalidSemantics, got %v\n%s", err, snap.SExpr(snap.Root(), 0))
	}
	report := diag.Report(err)
	if !strings.Contains(report, "Functions cannot be defined inside enum variant lists") {
		t.Fatalf("unexpected report:\n%s", report)
	}
	if !strings.Contains(report, `try insert_after with ancestor_node_type "enum_item"`) {
		t.Fatalf("report should suggest an alternative:\n%s", report)
	}
}

func TestInsertionContextRules(t *testing.T) {
	tests := []struct {
		name      string
		src       string
		anchor    string
		content   string
		enclosing []string
		want      string // rule id, "" for a syntax-only failure
	}{
		{
			name:      "fn in struct fields",
			src:       "struct User {\n    name: String,\n}\n",
			anchor:    "name: String",
			content:   "fn greet() {}",
			enclosing: []string{"field_declaration_list", "struct_item", "source_file"},
			want:      "invalid.function.in.struct.fields",
		},
		{
			name:      "fn in enum variants",
			src:       "enum Color {\n    Red,\n}\n",
			anchor:    "Red",
			content:   "fn paint() {}",
			enclosing: []string{"enum_variant_list", "enum_item", "source_file"},
			want:      "invalid.function.in.enum.variants",
		},
		{
			name:      "broken fn at top level",
			src:       "struct User {\n    name: String,\n}\n",
			anchor:    "struct User",
			content:   "fn greet() { let = ; }",
			enclosing: []string{"source_file"},
		},
	}
	v := New(0)
	p := profile(t, "rust")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			start := strings.Index(tt.src, tt.anchor)
			end := start + len(tt.anchor)
			if tt.anchor == "struct User" {
				end = len(strings.TrimRight(tt.src, "\n"))
			}
			out, insStart, insEnd, err := edit.Splice([]byte(tt.src), start, end, edit.InsertAfter, tt.content)
			if err != nil {
				t.Fatalf("Splice: %v", err)
			}
			snap := parse(t, p, string(out))
			err = v.Check(snap, edit.Region{Start: insStart, End: insEnd, Enclosing: tt.enclosing})
			if tt.want == "" {
				if !diag.Is(err, diag.InvalidSyntax) {
					t.Fatalf("expected InvalidSyntax, got %v", err)
				}
				return
			}
			if !diag.Is(err, diag.InvalidSemantics) {
				t.Fatalf("expected InvalidSemantics, got %v\n%s", err, snap.SExpr(snap.Root(), 0))
			}
			if !strings.Contains(diag.Report(err), tt.want) {
				t.Fatalf("report lacks %s:\n%s", tt.want, diag.Report(err))
			}
		})
	}
}

func TestInsertionContextIgnoresValidEdits(t *testing.T) {
	src := "enum Color {\n    Red,\n    Green,\n}\n\nfn paint() {}\n"
	snap := parse(t, profile(t, "rust"), src)
	start := strings.Index(src, "fn paint")
	region := edit.Region{Start: start, End: len(src), Enclosing: []string{"enum_variant_list", "enum_item"}}
	if err := New(0).Check(snap, region); err != nil {
		t.Fatalf("valid source must pass: %v", err)
	}
}

func TestAncestorFilters(t *testing.T) {
	rs, err := languages.ParseRuleSet(`
[[rule]]
id = "let.outside.impl"
query = "(let_declaration) @violation"
not_inside = ["impl_item"]
message = "let outside impl"

[[rule]]
id = "let.in.closure"
query = "(let_declaration) @violation"
inside = ["closure_expression"]
stop_at = ["function_item"]
message = "let in closure"
`)
	if err != nil {
		t.Fatalf("ParseRuleSet: %v", err)
	}
	base := profile(t, "rust")
	p := &languages.Profile{Name: "rust-filters", Grammar: "rust", Extensions: base.Extensions, Rules: rs}
	src := "fn a() {\n    let x = 1;\n}\n\nimpl T {\n    fn b() {\n        let y = 2;\n    }\n}\n\nfn c() {\n    let f = || {\n        let z = 3;\n    };\n}\n"
	snap := parse(t, p, src)

	got := map[string][]int{}
	for _, v := range New(0).Violations(snap) {
		got[v.RuleID] = append(got[v.RuleID], v.Line)
	}
	if lines := got["let.outside.impl"]; len(lines) != 3 || lines[0] != 2 {
		t.Errorf("let.outside.impl lines = %v, want [2 12 13]", lines)
	}
	if lines := got["let.in.closure"]; len(lines) != 1 || lines[0] != 13 {
		t.Errorf("let.in.closure lines = %v, want [13]", lines)
	}
}

func TestPythonSelfOutsideClass(t *testing.T) {
	p := profile(t, "python")
	src := "class A:\n    def ok(self):\n        return 1\n\ndef bad(self):\n    return 2\n"
	snap := parse(t, p, src)
	vios := New(0).Violations(snap)
	if len(vios) != 1 || vios[0].RuleID != "invalid.self.outside.class" || vios[0].Line != 5 {
		t.Fatalf("unexpected violations %v", vios)
	}
}

func TestPythonReturnAtModuleLevel(t *testing.T) {
	p := profile(t, "python")
	src := "x = 1\nreturn x\n"
	snap := parse(t, p, src)
	vios := New(0).Violations(snap)
	if len(vios) != 1 || vios[0].RuleID != "invalid.return.at.module.level" {
		t.Fatalf("unexpected violations %v", vios)
	}
}

func TestNoRuleSetPasses(t *testing.T) {
	p := profile(t, "json")
	src := "{\"a\": 1}\n"
	snap := parse(t, p, src)
	if err := New(0).Check(snap, whole(src)); err != nil {
		t.Fatalf("Check: %v", err)
	}
}

func TestBreakOutsideLoop(t *testing.T) {
	src := "fn a() {\n    loop {\n        break;\n    }\n}\n\nfn b() {\n    continue;\n}\n"
	snap := parse(t, profile(t, "rust"), src)
	vios := New(0).Violations(snap)
	if len(vios) != 1 || vios[0].RuleID != "invalid.break.outside.loop" || vios[0].Line != 8 {
		t.Fatalf("unexpected violations %v", vios)
	}
}

func TestStaticAssignmentOutsideUnsafe(t *testing.T) {
	src := "static mut COUNT: u32 = 0;\n\nfn a() {\n    unsafe {\n        COUNT = 1;\n    }\n    COUNT = 2;\n}\n"
	snap := parse(t, profile(t, "rust"), src)
	vios := New(0).Violations(snap)
	if len(vios) != 1 || vios[0].RuleID != "invalid.global.assignment.outside.unsafe" || vios[0].Line != 7 {
		t.Fatalf("unexpected violations %v", vios)
	}
}
