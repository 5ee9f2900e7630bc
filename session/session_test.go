package session

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"pgregory.net/rapid"

	"github.com/odvcencio/semedit/diag"
	"github.com/odvcencio/semedit/edit"
	"github.com/odvcencio/semedit/languages"
	"github.com/odvcencio/semedit/languages/languagestest"
	"github.com/odvcencio/semedit/selector"
)

// trimFormatter strips trailing whitespace from every line.
type trimFormatter struct{}

func (trimFormatter) Name() string { return "trim" }

var trailing = regexp.MustCompile(`[ \t]+\n`)

func (trimFormatter) Format(_ context.Context, src []byte) ([]byte, error) {
	return trailing.ReplaceAll(src, []byte("\n")), nil
}

func newSession(t *testing.T, dir string) *Session {
	t.Helper()
	reg := languages.Default().WithoutFormatters()
	reg.SetFormatter("rust", trimFormatter{})
	languagestest.Require(t, reg, "rust")
	return New(Options{
		WorkingDirectory: dir,
		Registry:         reg,
		Engine:           edit.Engine{Format: true},
		Logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readFileString(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

const userSource = `struct User {
    name: String,
}

fn main() {
    let count = items.len();
    report(stats.count);
}
`

func TestPreviewPersistReplaceStruct(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lib.rs", userSource)
	s := newSession(t, dir)
	ctx := context.Background()

	prev, err := s.Preview(ctx, Request{
		Path:      "lib.rs",
		Selector:  selector.Selector{AnchorText: "struct User", AncestorNodeType: "struct_item"},
		Content:   "struct User {   \n    name: String,\n    email: String,  \n}",
		Operation: edit.Replace,
	})
	if err != nil {
		t.Fatalf("Preview: %v", diag.Report(err))
	}
	if !prev.Formatted {
		t.Fatal("expected formatted preview")
	}
	if !strings.Contains(prev.Diff, "+    email: String,\n") || !strings.HasPrefix(prev.Diff, "--- a/lib.rs\n+++ b/lib.rs\n") {
		t.Fatalf("unexpected diff:\n%s", prev.Diff)
	}
	if readFileString(t, path) != userSource {
		t.Fatal("preview must not write the file")
	}
	staged := s.Staged()

	done, err := s.Persist(ctx)
	if err != nil {
		t.Fatalf("Persist: %v", diag.Report(err))
	}
	want := strings.Replace(userSource, "    name: String,\n}", "    name: String,\n    email: String,\n}", 1)
	got := readFileString(t, path)
	if got != want {
		t.Fatalf("file =\n%s\nwant\n%s", got, want)
	}
	if !bytes.Equal([]byte(got), staged.Candidate) {
		t.Fatal("persisted bytes differ from the previewed candidate")
	}
	if done.Diff != prev.Diff {
		t.Fatal("persist confirmation diff differs from preview diff")
	}
	if s.Staged() != nil {
		t.Fatal("stage should be empty after persist")
	}
}

func TestReplaceSingleLineStruct(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "user.rs", "struct User { pub name: String }\n")
	s := newSession(t, dir)
	ctx := context.Background()

	prev, err := s.Preview(ctx, Request{
		Path:      "user.rs",
		Selector:  selector.Selector{AnchorText: "struct User", AncestorNodeType: "struct_item"},
		Content:   "struct User { pub name: String, pub email: String }",
		Operation: edit.Replace,
	})
	if err != nil {
		t.Fatalf("Preview: %v", diag.Report(err))
	}
	if prev.Target.Type != "struct_item" || prev.Target.StartLine != 1 {
		t.Fatalf("unexpected target %s", prev.Target)
	}
	if _, err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", diag.Report(err))
	}
	if got := readFileString(t, path); got != "struct User { pub name: String, pub email: String }\n" {
		t.Fatalf("file = %q", got)
	}
}

func TestLetDeclarationAnchor(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib.rs", userSource)
	s := newSession(t, dir)

	prev, err := s.Preview(context.Background(), Request{
		Path:      "lib.rs",
		Selector:  selector.Selector{AnchorText: "count", AncestorNodeType: "let_declaration"},
		Content:   "let count = items.iter().count();",
		Operation: edit.Replace,
	})
	if err != nil {
		t.Fatalf("Preview: %v", diag.Report(err))
	}
	if prev.Target.Type != "let_declaration" || prev.Target.StartLine != 6 {
		t.Fatalf("unexpected target %s", prev.Target)
	}
	if !strings.Contains(prev.Diff, "-    let count = items.len();\n+    let count = items.iter().count();\n") {
		t.Fatalf("unexpected diff:\n%s", prev.Diff)
	}
}

func TestFunctionAfterEnumVariantRejected(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "color.rs", "enum Color {\n    Red,\n    Green,\n}\n")
	s := newSession(t, dir)

	_, err := s.Preview(context.Background(), Request{
		Path:      path,
		Selector:  selector.Selector{AnchorText: "Red", AncestorNodeType: "enum_variant"},
		Content:   "fn paint() {}",
		Operation: edit.InsertAfter,
	})
	if !diag.Is(err, diag.InvalidSemantics) {
		t.Fatalf("expected InvalidSemantics, got %v", err)
	}
	if s.Staged() != nil {
		t.Fatal("rejected preview must not stage")
	}
}

func TestFailedPreviewKeepsStage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib.rs", userSource)
	s := newSession(t, dir)
	ctx := context.Background()

	if _, err := s.Preview(ctx, Request{
		Path:      "lib.rs",
		Selector:  selector.Selector{AnchorText: "fn main", AncestorNodeType: "function_item"},
		Content:   "fn helper() {}",
		Operation: edit.InsertBefore,
	}); err != nil {
		t.Fatalf("Preview: %v", diag.Report(err))
	}
	before := s.Staged()

	tests := []struct {
		name string
		req  Request
		kind diag.Kind
	}{
		{"anchor not found", Request{Path: "lib.rs", Selector: selector.Selector{AnchorText: "fn nope", AncestorNodeType: "function_item"}, Content: "x", Operation: edit.Replace}, diag.AnchorNotFound},
		{"no ancestor", Request{Path: "lib.rs", Selector: selector.Selector{AnchorText: "count", AncestorNodeType: "impl_item"}, Content: "x", Operation: edit.Replace}, diag.NoQualifyingAncestor},
		{"invalid syntax", Request{Path: "lib.rs", Selector: selector.Selector{AnchorText: "fn main", AncestorNodeType: "function_item"}, Content: "fn main( {", Operation: edit.Replace}, diag.InvalidSyntax},
		{"missing file", Request{Path: "missing.rs", Selector: selector.Selector{AnchorText: "x", AncestorNodeType: "y"}, Content: "x", Operation: edit.Replace}, diag.IOError},
		{"multi-line anchor", Request{Path: "lib.rs", Selector: selector.Selector{AnchorText: "a\nb", AncestorNodeType: "y"}, Content: "x", Operation: edit.Replace}, diag.InvalidRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Preview(ctx, tt.req)
			if !diag.Is(err, tt.kind) {
				t.Fatalf("expected %s, got %v", tt.kind, err)
			}
			after := s.Staged()
			if after == nil || after.ID != before.ID || after.Diff != before.Diff {
				t.Fatal("failed preview changed the staged operation")
			}
		})
	}
}

func TestRetargetKeepsContentAndOperation(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lib.rs", "fn a() {}\n\nfn b() {}\n")
	s := newSession(t, dir)
	ctx := context.Background()

	if _, err := s.Preview(ctx, Request{
		Path:      "lib.rs",
		Selector:  selector.Selector{AnchorText: "fn a", AncestorNodeType: "function_item"},
		Content:   "fn z() {}",
		Operation: edit.InsertAfter,
	}); err != nil {
		t.Fatalf("Preview: %v", diag.Report(err))
	}

	prev, err := s.Retarget(ctx, selector.Selector{AnchorText: "fn b", AncestorNodeType: "function_item"})
	if err != nil {
		t.Fatalf("Retarget: %v", diag.Report(err))
	}
	if !strings.Contains(prev.Diff, " fn b() {}\n+fn z() {}\n") {
		t.Fatalf("unexpected diff:\n%s", prev.Diff)
	}
	staged := s.Staged()
	if staged.Content != "fn z() {}" || staged.Operation != edit.InsertAfter {
		t.Fatalf("retarget changed content or operation: %+v", staged)
	}

	// A failed retarget leaves the retargeted stage in place.
	if _, err := s.Retarget(ctx, selector.Selector{AnchorText: "fn c", AncestorNodeType: "function_item"}); !diag.Is(err, diag.AnchorNotFound) {
		t.Fatalf("expected AnchorNotFound, got %v", err)
	}
	if s.Staged().Diff != prev.Diff {
		t.Fatal("failed retarget changed the stage")
	}

	if _, err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", diag.Report(err))
	}
	if got := readFileString(t, path); got != "fn a() {}\n\nfn b() {}\nfn z() {}\n" {
		t.Fatalf("file = %q", got)
	}
}

func TestRetargetReadsCurrentContent(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lib.rs", "fn a() {}\n")
	s := newSession(t, dir)
	ctx := context.Background()

	if _, err := s.Preview(ctx, Request{
		Path:      path,
		Selector:  selector.Selector{AnchorText: "fn a", AncestorNodeType: "function_item"},
		Content:   "fn z() {}",
		Operation: edit.InsertBefore,
	}); err != nil {
		t.Fatalf("Preview: %v", diag.Report(err))
	}
	writeFile(t, dir, "lib.rs", "fn a() {}\n\nfn c() {}\n")

	if _, err := s.Retarget(ctx, selector.Selector{AnchorText: "fn c", AncestorNodeType: "function_item"}); err != nil {
		t.Fatalf("Retarget: %v", diag.Report(err))
	}
	if _, err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist after retarget should see fresh content: %v", err)
	}
	if got := readFileString(t, path); got != "fn a() {}\n\nfn z() {}\nfn c() {}\n" {
		t.Fatalf("file = %q", got)
	}
}

func TestPersistStaleFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lib.rs", "fn a() {}\n")
	s := newSession(t, dir)
	ctx := context.Background()

	if _, err := s.Preview(ctx, Request{
		Path:      "lib.rs",
		Selector:  selector.Selector{AnchorText: "fn a", AncestorNodeType: "function_item"},
		Content:   "fn b() {}",
		Operation: edit.Replace,
	}); err != nil {
		t.Fatalf("Preview: %v", diag.Report(err))
	}
	const external = "fn a() {}\nfn external() {}\n"
	writeFile(t, dir, "lib.rs", external)

	_, err := s.Persist(ctx)
	if !diag.Is(err, diag.StaleFile) {
		t.Fatalf("expected StaleFile, got %v", err)
	}
	if readFileString(t, path) != external {
		t.Fatal("stale persist must not write")
	}
	if s.Staged() == nil {
		t.Fatal("stale persist must keep the stage")
	}
}

func TestPersistIgnoresTouchWithoutChange(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lib.rs", "fn a() {}\n")
	s := newSession(t, dir)
	ctx := context.Background()
	if _, err := s.Preview(ctx, Request{
		Path:      "lib.rs",
		Selector:  selector.Selector{AnchorText: "fn a", AncestorNodeType: "function_item"},
		Content:   "fn b() {}",
		Operation: edit.Replace,
	}); err != nil {
		t.Fatalf("Preview: %v", diag.Report(err))
	}
	writeFile(t, dir, "lib.rs", "fn a() {}\n")
	if _, err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	if got := readFileString(t, path); got != "fn b() {}\n" {
		t.Fatalf("file = %q", got)
	}
}

func TestPersistKeepsPermissions(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "lib.rs", "fn a() {}\n")
	if err := os.Chmod(path, 0o600); err != nil {
		t.Fatal(err)
	}
	s := newSession(t, dir)
	ctx := context.Background()
	if _, err := s.Preview(ctx, Request{
		Path:      "lib.rs",
		Selector:  selector.Selector{AnchorText: "fn a", AncestorNodeType: "function_item"},
		Content:   "fn b() {}",
		Operation: edit.Replace,
	}); err != nil {
		t.Fatalf("Preview: %v", diag.Report(err))
	}
	if _, err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Fatalf("mode = %v, want 0600", info.Mode().Perm())
	}
}

func TestPersistWritesThroughSymlink(t *testing.T) {
	dir := t.TempDir()
	target := writeFile(t, dir, "real.rs", "fn a() {}\n")
	link := filepath.Join(dir, "link.rs")
	if err := os.Symlink(target, link); err != nil {
		t.Fatal(err)
	}
	s := newSession(t, dir)
	ctx := context.Background()
	if _, err := s.Preview(ctx, Request{
		Path:      "link.rs",
		Selector:  selector.Selector{AnchorText: "fn a", AncestorNodeType: "function_item"},
		Content:   "fn b() {}",
		Operation: edit.Replace,
	}); err != nil {
		t.Fatalf("Preview: %v", diag.Report(err))
	}
	if _, err := s.Persist(ctx); err != nil {
		t.Fatalf("Persist: %v", err)
	}
	info, err := os.Lstat(link)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode()&os.ModeSymlink == 0 {
		t.Fatalf("link.rs was replaced by a regular file (mode %v)", info.Mode())
	}
	if got := readFileString(t, target); got != "fn b() {}\n" {
		t.Fatalf("link target = %q", got)
	}
}

func TestNoStagedOperation(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		dir := t.TempDir()
		content := rapid.StringMatching(`fn [a-z]{1,8}\(\) \{\}\n`).Draw(rt, "content")
		path := writeFile(t, dir, "lib.rs", content)
		s := newSession(t, dir)
		ctx := context.Background()

		sel := selector.Selector{
			AnchorText:       rapid.StringMatching(`[a-z ]{1,10}`).Draw(rt, "anchor"),
			AncestorNodeType: rapid.SampledFrom([]string{"function_item", "block", "identifier"}).Draw(rt, "ancestor"),
		}
		if rapid.Bool().Draw(rt, "persistFirst") {
			if _, err := s.Persist(ctx); !diag.Is(err, diag.NoStagedOperation) {
				rt.Fatalf("Persist: expected NoStagedOperation, got %v", err)
			}
		}
		if _, err := s.Retarget(ctx, sel); !diag.Is(err, diag.NoStagedOperation) {
			rt.Fatalf("Retarget: expected NoStagedOperation, got %v", err)
		}
		if _, err := s.Persist(ctx); !diag.Is(err, diag.NoStagedOperation) {
			rt.Fatalf("Persist: expected NoStagedOperation, got %v", err)
		}
		if readFileString(t, path) != content {
			rt.Fatal("file mutated without a staged operation")
		}
	})
}

func TestSetWorkingDirectory(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "src")
	if err := os.Mkdir(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	writeFile(t, sub, "lib.rs", "fn a() {}\n")
	s := newSession(t, "")
	ctx := context.Background()
	req := Request{
		Path:      "lib.rs",
		Selector:  selector.Selector{AnchorText: "fn a", AncestorNodeType: "function_item"},
		Content:   "fn b() {}",
		Operation: edit.Replace,
	}

	if _, err := s.Preview(ctx, req); !diag.Is(err, diag.InvalidRequest) {
		t.Fatalf("relative path without working directory: got %v", err)
	}
	if _, err := s.SetWorkingDirectory(filepath.Join(dir, "nope")); !diag.Is(err, diag.IOError) {
		t.Fatalf("expected IOError for missing directory, got %v", err)
	}
	if _, err := s.SetWorkingDirectory(filepath.Join(sub, "lib.rs")); !diag.Is(err, diag.InvalidRequest) {
		t.Fatalf("expected InvalidRequest for a file, got %v", err)
	}

	got, err := s.SetWorkingDirectory(sub)
	if err != nil || got != sub {
		t.Fatalf("SetWorkingDirectory = %q, %v", got, err)
	}
	if _, err := s.Preview(ctx, req); err != nil {
		t.Fatalf("Preview: %v", diag.Report(err))
	}
	staged := s.Staged()
	if _, err := s.SetWorkingDirectory(dir); err != nil {
		t.Fatal(err)
	}
	if s.Staged() == nil || s.Staged().ID != staged.ID {
		t.Fatal("changing directory must not touch the stage")
	}
}

func TestPreviewRejectsExistingSyntaxErrors(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib.rs", "fn a( {}\n")
	s := newSession(t, dir)
	_, err := s.Preview(context.Background(), Request{
		Path:      "lib.rs",
		Selector:  selector.Selector{AnchorText: "fn a", AncestorNodeType: "function_item"},
		Content:   "fn b() {}",
		Operation: edit.Replace,
	})
	if !diag.Is(err, diag.InvalidSyntax) || !strings.Contains(err.Error(), "prior to edit") {
		t.Fatalf("expected prior-to-edit InvalidSyntax, got %v", err)
	}
}

func TestUnsupportedLanguage(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "notes.unknown-ext", "hello\n")
	s := newSession(t, dir)
	_, err := s.Preview(context.Background(), Request{
		Path:      "notes.unknown-ext",
		Selector:  selector.Selector{AnchorText: "hello", AncestorNodeType: "document"},
		Content:   "bye",
		Operation: edit.Replace,
	})
	if !diag.Is(err, diag.UnsupportedLanguage) {
		t.Fatalf("expected UnsupportedLanguage, got %v", err)
	}
}

func TestDiscard(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib.rs", "fn a() {}\n")
	s := newSession(t, dir)
	if s.Discard() {
		t.Fatal("nothing to discard")
	}
	if _, err := s.Preview(context.Background(), Request{
		Path:      "lib.rs",
		Selector:  selector.Selector{AnchorText: "fn a", AncestorNodeType: "function_item"},
		Content:   "fn b() {}",
		Operation: edit.Replace,
	}); err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if !s.Discard() || s.Staged() != nil {
		t.Fatal("discard should clear the stage")
	}
}

func TestFresh(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "lib.rs", "fn a() {}\n")
	s := newSession(t, dir)
	if _, err := s.Fresh(); !diag.Is(err, diag.NoStagedOperation) {
		t.Fatalf("expected NoStagedOperation, got %v", err)
	}
	if _, err := s.Preview(context.Background(), Request{
		Path:      "lib.rs",
		Selector:  selector.Selector{AnchorText: "fn a", AncestorNodeType: "function_item"},
		Content:   "fn b() {}",
		Operation: edit.Replace,
	}); err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if fresh, err := s.Fresh(); err != nil || !fresh {
		t.Fatalf("Fresh = %v, %v", fresh, err)
	}
	writeFile(t, dir, "lib.rs", "fn a() {}\nfn c() {}\n")
	if fresh, err := s.Fresh(); err != nil || fresh {
		t.Fatalf("Fresh after change = %v, %v", fresh, err)
	}
	if err := os.Remove(filepath.Join(dir, "lib.rs")); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Fresh(); !diag.Is(err, diag.IOError) {
		t.Fatalf("expected IOError for removed file, got %v", err)
	}
}
