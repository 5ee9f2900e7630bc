package mcptools

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/odvcencio/semedit/diag"
	"github.com/odvcencio/semedit/edit"
	"github.com/odvcencio/semedit/inspect"
	"github.com/odvcencio/semedit/snapshot"
)

const (
	versionTTL      = time.Hour
	versionCapacity = 256
	diffContext     = 3
)

// versionCache remembers file contents by path and version id so a later
// open_files call can diff against them.
type versionCache struct {
	items *ttlcache.Cache[string, string]
}

func newVersionCache() *versionCache {
	return &versionCache{items: ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](versionTTL),
		ttlcache.WithCapacity[string, string](versionCapacity),
	)}
}

func versionKey(path, version string) string { return path + "#" + version }

func (c *versionCache) put(path, version, content string) {
	c.items.Set(versionKey(path, version), content, ttlcache.DefaultTTL)
}

func (c *versionCache) get(path, version string) (string, bool) {
	item := c.items.Get(versionKey(path, version))
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// Version returns the version id of one or more file contents: the first
// ten hex digits of their combined SHA-256.
func Version(contents ...string) string {
	h := sha256.New()
	for _, c := range contents {
		fmt.Fprintf(h, "%d:", len(c))
		h.Write([]byte(c))
	}
	return hex.EncodeToString(h.Sum(nil))[:10]
}

// OpenedFile is one file returned by open_files.
type OpenedFile struct {
	Path     string `json:"path"`
	Language string `json:"language,omitempty"`
	Content  string `json:"content"`
	Tree     string `json:"tree,omitempty"`
}

func (r *Registry) toolOpenFiles() ToolDef {
	return ToolDef{
		Name: "open_files",
		Description: "Read one or more files with their syntax trees. The response carries a version id; pass it back " +
			"as diff_since to get only what changed since then.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"file_paths": {
					"type": "array",
					"items": {"type": "string"},
					"description": "Files to open, absolute or relative to the working directory."
				},
				"language": {
					"type": "string",
					"description": "Language name applied to every file, overriding extension-based detection."
				},
				"diff_since": {
					"type": "string",
					"description": "Version id from an earlier open_files response. Only one file may be opened with it."
				}
			},
			"required": ["file_paths"]
		}`),
		Handler: func(_ context.Context, params json.RawMessage) (*Result, error) {
			var p struct {
				FilePaths []string `json:"file_paths"`
				Language  string   `json:"language"`
				DiffSince string   `json:"diff_since"`
			}
			if err := decode(params, &p); err != nil {
				return nil, err
			}
			if len(p.FilePaths) == 0 {
				return nil, diag.New(diag.InvalidRequest, "file_paths cannot be empty")
			}
			if p.DiffSince != "" && len(p.FilePaths) > 1 {
				return nil, diag.New(diag.InvalidRequest, "diff_since works with a single file").
					WithSuggestions("open files one at a time to track changes, or omit diff_since")
			}
			return r.openFiles(p.FilePaths, p.Language, p.DiffSince)
		},
	}
}

func (r *Registry) openFiles(paths []string, language, since string) (*Result, error) {
	resolved := make([]string, len(paths))
	contents := make([]string, len(paths))
	for i, path := range paths {
		abs, err := r.editor.ResolvePath(path)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, diag.Wrap(diag.IOError, err, "read %s", path)
		}
		resolved[i], contents[i] = abs, string(data)
	}

	if since != "" {
		if earlier, ok := r.versions.get(resolved[0], since); ok {
			return r.diffSince(resolved[0], since, earlier, contents[0]), nil
		}
	}

	version := Version(contents...)
	files := make([]OpenedFile, len(paths))
	var b strings.Builder
	fmt.Fprintf(&b, "Version: %s\n", version)
	for i := range paths {
		files[i] = r.describe(resolved[i], contents[i], language)
		r.versions.put(resolved[i], version, contents[i])
		b.WriteString("\n")
		writeOpened(&b, files[i], version)
	}
	if since != "" {
		fmt.Fprintf(&b, "\nVersion %s of %s is unknown; returned the full content.\n", since, paths[0])
	}
	return &Result{
		Text: b.String(),
		Data: map[string]any{"version": version, "files": files},
	}, nil
}

// describe parses content when its language is known. Unknown languages
// still return the text.
func (r *Registry) describe(path, content, language string) OpenedFile {
	f := OpenedFile{Path: path, Content: content}
	profile, err := r.editor.Registry().Resolve(path, language)
	if err != nil {
		return f
	}
	f.Language = profile.Name
	if snap, err := snapshot.Parse(path, []byte(content), profile); err == nil {
		f.Tree = inspect.SyntaxTree(snap)
	}
	return f
}

func writeOpened(b *strings.Builder, f OpenedFile, version string) {
	rule := strings.Repeat("=", 10)
	fmt.Fprintf(b, "%s %s CONTENTS %s\n%s", rule, f.Path, rule, f.Content)
	if !strings.HasSuffix(f.Content, "\n") {
		b.WriteString("\n")
	}
	switch {
	case f.Tree != "":
		fmt.Fprintf(b, "%s %s SYNTAX (%s) %s\n%s\n", rule, f.Path, f.Language, rule, f.Tree)
	case f.Language == "":
		b.WriteString("Language not recognized; pass language to parse this file.\n")
	}
	fmt.Fprintf(b, "To see later changes: open_files {\"file_paths\": [%q], \"diff_since\": %q}\n", f.Path, version)
}

func (r *Registry) diffSince(path, since, earlier, current string) *Result {
	version := Version(current)
	r.versions.put(path, version, current)
	diff := edit.UnifiedDiff(path, earlier, current, diffContext)

	var b strings.Builder
	fmt.Fprintf(&b, "Version: %s (since %s)\n\n", version, since)
	if diff == "" {
		b.WriteString("No changes.\n")
	} else {
		b.WriteString(diff)
	}
	return &Result{
		Text: b.String(),
		Data: map[string]any{"version": version, "since": since, "path": path, "diff": diff},
	}
}
