// Package mcptools defines the editing tools and resources shared by the MCP
// server and the websocket transport.
package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/odvcencio/semedit/diag"
	"github.com/odvcencio/semedit/edit"
	"github.com/odvcencio/semedit/inspect"
	"github.com/odvcencio/semedit/languages"
	"github.com/odvcencio/semedit/selector"
	"github.com/odvcencio/semedit/session"
	"github.com/odvcencio/semedit/snapshot"
)

// Editor is the session state the tools drive. *session.Session implements it.
type Editor interface {
	Preview(ctx context.Context, req session.Request) (*session.Preview, error)
	Retarget(ctx context.Context, sel selector.Selector) (*session.Preview, error)
	Persist(ctx context.Context) (*session.Persisted, error)
	Discard() bool
	Staged() *session.StagedOperation
	SetWorkingDirectory(path string) (string, error)
	WorkingDirectory() string
	ResolvePath(path string) (string, error)
	Registry() *languages.Registry
	Resolver() selector.Resolver
}

// Result is a tool's answer: text for humans plus optional structured data.
type Result struct {
	Text string `json:"text"`
	Data any    `json:"data,omitempty"`
}

// ToolDef describes an MCP tool.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
	Handler     func(ctx context.Context, params json.RawMessage) (*Result, error)
}

// ResourceDef describes an MCP resource.
type ResourceDef struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
	Handler     func(uri string) (string, error)
}

// Registry holds the tools and resources bound to one editor session.
type Registry struct {
	editor    Editor
	tools     []ToolDef
	resources []ResourceDef
	versions  *versionCache
}

// NewRegistry creates a registry with every tool and resource bound to editor.
func NewRegistry(editor Editor) *Registry {
	r := &Registry{editor: editor, versions: newVersionCache()}
	r.registerTools()
	r.registerResources()
	return r
}

// Tools returns all registered tools.
func (r *Registry) Tools() []ToolDef {
	return r.tools
}

// Resources returns all registered resources.
func (r *Registry) Resources() []ResourceDef {
	return r.resources
}

// HandleTool dispatches a tool call by name.
func (r *Registry) HandleTool(ctx context.Context, name string, params json.RawMessage) (*Result, error) {
	for _, t := range r.tools {
		if t.Name == name {
			if len(params) == 0 {
				params = json.RawMessage("{}")
			}
			return t.Handler(ctx, params)
		}
	}
	return nil, diag.New(diag.InvalidRequest, "unknown tool: %s", name)
}

// HandleResource dispatches a resource read by URI.
func (r *Registry) HandleResource(uri string) (string, error) {
	for _, res := range r.resources {
		if matchResourceURI(res.URI, uri) {
			return res.Handler(uri)
		}
	}
	return "", diag.New(diag.InvalidRequest, "unknown resource: %s", uri)
}

// matchResourceURI checks whether a concrete URI matches a resource URI template.
// Templates use {param} placeholders that match one or more path segments.
func matchResourceURI(template, uri string) bool {
	idx := strings.Index(template, "{")
	if idx < 0 {
		return template == uri
	}
	return strings.HasPrefix(uri, template[:idx]) && len(uri) > idx
}

// extractURIParam extracts the path parameter from a resource URI given its prefix.
func extractURIParam(prefix, uri string) string {
	return strings.TrimPrefix(uri, prefix)
}

func decode(params json.RawMessage, v any) error {
	if err := json.Unmarshal(params, v); err != nil {
		return diag.Wrap(diag.InvalidRequest, err, "invalid params")
	}
	return nil
}

func (r *Registry) registerTools() {
	r.tools = []ToolDef{
		r.toolPreviewEdit(),
		r.toolRetargetEdit(),
		r.toolPersistEdit(),
		r.toolDiscardEdit(),
		r.toolSetWorkingDirectory(),
		r.toolGetNodeInfo(),
		r.toolExploreAST(),
		r.toolOpenFiles(),
	}
}

func (r *Registry) registerResources() {
	r.resources = []ResourceDef{
		r.resourceSyntaxTree(),
		r.resourceSymbols(),
		r.resourceStaged(),
	}
}

// load reads path relative to the session and parses it.
func (r *Registry) load(path, language string) (*snapshot.Snapshot, error) {
	resolved, err := r.editor.ResolvePath(path)
	if err != nil {
		return nil, err
	}
	return inspect.Load(r.editor.Registry(), resolved, language)
}

const selectorProperties = `
				"selector": {
					"type": "object",
					"properties": {
						"anchor_text": {
							"type": "string",
							"description": "Short, single-line text that appears in the file near the node to edit. Include enough characters to be distinctive."
						},
						"ancestor_node_type": {
							"type": "string",
							"description": "Tree-sitter node type of the enclosing node to operate on, e.g. function_item, struct_item, let_declaration. Use explore_ast to discover types."
						}
					},
					"required": ["anchor_text", "ancestor_node_type"]
				}`

// selectorParams accepts a nested selector object or its fields inline.
type selectorParams struct {
	Selector         *selector.Selector `json:"selector"`
	AnchorText       string             `json:"anchor_text"`
	AncestorNodeType string             `json:"ancestor_node_type"`
}

func (p selectorParams) selector() selector.Selector {
	if p.Selector != nil {
		return *p.Selector
	}
	return selector.Selector{AnchorText: p.AnchorText, AncestorNodeType: p.AncestorNodeType}
}

// --- Tool definitions ---

func (r *Registry) toolPreviewEdit() ToolDef {
	return ToolDef{
		Name: "preview_edit",
		Description: "Stage an edit and return a unified diff of the result. The node to edit is the nearest " +
			"ancestor of type selector.ancestor_node_type around selector.anchor_text. Nothing is written until persist_edit. " +
			"A new preview replaces any staged edit; a rejected preview leaves it in place.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"file_path": {
					"type": "string",
					"description": "Path to the source file. Relative paths resolve against the working directory."
				},` + selectorProperties + `,
				"operation_type": {
					"type": "string",
					"enum": ["replace", "insert_before", "insert_after", "wrap"],
					"description": "How to apply content to the target node."
				},
				"content": {
					"type": "string",
					"description": "Text to insert or replace with. Omit with replace to delete the node. For wrap, must contain {{content}} exactly once."
				},
				"language": {
					"type": "string",
					"description": "Language name overriding extension-based detection."
				}
			},
			"required": ["file_path", "selector", "operation_type"]
		}`),
		Handler: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var p struct {
				FilePath string `json:"file_path"`
				selectorParams
				Operation string `json:"operation_type"`
				Content   string `json:"content"`
				Language  string `json:"language"`
			}
			if err := decode(params, &p); err != nil {
				return nil, err
			}
			op, err := edit.ParseOperation(p.Operation)
			if err != nil {
				return nil, err
			}
			prev, err := r.editor.Preview(ctx, session.Request{
				Path:      p.FilePath,
				Selector:  p.selector(),
				Content:   p.Content,
				Operation: op,
				Language:  p.Language,
			})
			if err != nil {
				return nil, err
			}
			return previewResult("STAGED", op, prev), nil
		},
	}
}

func (r *Registry) toolRetargetEdit() ToolDef {
	return ToolDef{
		Name: "retarget_edit",
		Description: "Point the staged edit at a different node, keeping its content and operation. " +
			"The file is re-read, so the diff reflects its current content.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {` + selectorProperties + `
			},
			"required": ["selector"]
		}`),
		Handler: func(ctx context.Context, params json.RawMessage) (*Result, error) {
			var p selectorParams
			if err := decode(params, &p); err != nil {
				return nil, err
			}
			prev, err := r.editor.Retarget(ctx, p.selector())
			if err != nil {
				return nil, err
			}
			var op edit.Operation
			if staged := r.editor.Staged(); staged != nil {
				op = staged.Operation
			}
			return previewResult("RETARGETED", op, prev), nil
		},
	}
}

func previewResult(verb string, op edit.Operation, prev *session.Preview) *Result {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s on %s\n", verb, op, prev.Target)
	added, removed := edit.DiffStats(prev.Diff)
	fmt.Fprintf(&b, "+%d -%d lines\n", added, removed)
	for _, w := range prev.Warnings {
		fmt.Fprintf(&b, "warning: %s\n", w)
	}
	b.WriteString("\n")
	if prev.Diff == "" {
		b.WriteString("(no changes)\n")
	} else {
		b.WriteString(prev.Diff)
	}
	b.WriteString("\nCall persist_edit to write this change, or retarget_edit to move it.\n")
	return &Result{
		Text: b.String(),
		Data: map[string]any{
			"path":      prev.Path,
			"language":  prev.Language,
			"target":    prev.Target.String(),
			"diff":      prev.Diff,
			"warnings":  prev.Warnings,
			"formatted": prev.Formatted,
		},
	}
}

func (r *Registry) toolPersistEdit() ToolDef {
	return ToolDef{
		Name:        "persist_edit",
		Description: "Write the staged edit to disk. Fails without writing if the file changed since it was staged.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
		Handler: func(ctx context.Context, _ json.RawMessage) (*Result, error) {
			done, err := r.editor.Persist(ctx)
			if err != nil {
				return nil, err
			}
			return &Result{
				Text: fmt.Sprintf("PERSISTED: %s (%d bytes)\n\n%s", done.Path, done.Bytes, done.Diff),
				Data: map[string]any{
					"path":  done.Path,
					"bytes": done.Bytes,
					"diff":  done.Diff,
				},
			}, nil
		},
	}
}

func (r *Registry) toolDiscardEdit() ToolDef {
	return ToolDef{
		Name:        "discard_edit",
		Description: "Drop the staged edit without writing it.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {}
		}`),
		Handler: func(_ context.Context, _ json.RawMessage) (*Result, error) {
			if !r.editor.Discard() {
				return &Result{Text: "Nothing was staged.", Data: map[string]any{"discarded": false}}, nil
			}
			return &Result{Text: "Staged edit discarded.", Data: map[string]any{"discarded": true}}, nil
		},
	}
}

func (r *Registry) toolSetWorkingDirectory() ToolDef {
	return ToolDef{
		Name:        "set_working_directory",
		Description: "Set the directory relative file paths resolve against, usually the project root.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"path": {
					"type": "string",
					"description": "Absolute directory path. ~ expands to the home directory."
				}
			},
			"required": ["path"]
		}`),
		Handler: func(_ context.Context, params json.RawMessage) (*Result, error) {
			var p struct {
				Path string `json:"path"`
			}
			if err := decode(params, &p); err != nil {
				return nil, err
			}
			dir, err := r.editor.SetWorkingDirectory(p.Path)
			if err != nil {
				return nil, err
			}
			return &Result{
				Text: fmt.Sprintf("Working directory set to %s", dir),
				Data: map[string]any{"path": dir},
			}, nil
		},
	}
}

func (r *Registry) toolGetNodeInfo() ToolDef {
	return ToolDef{
		Name:        "get_node_info",
		Description: "Describe the node a selector resolves to without staging anything: type, position, preview and ancestors.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"file_path": {
					"type": "string",
					"description": "Path to the source file."
				},` + selectorProperties + `,
				"language": {
					"type": "string",
					"description": "Language name overriding extension-based detection."
				}
			},
			"required": ["file_path", "selector"]
		}`),
		Handler: func(_ context.Context, params json.RawMessage) (*Result, error) {
			var p struct {
				FilePath string `json:"file_path"`
				selectorParams
				Language string `json:"language"`
			}
			if err := decode(params, &p); err != nil {
				return nil, err
			}
			sel := p.selector()
			if err := sel.Validate(); err != nil {
				return nil, err
			}
			snap, err := r.load(p.FilePath, p.Language)
			if err != nil {
				return nil, err
			}
			info, err := inspect.Info(snap, r.editor.Resolver(), sel)
			if err != nil {
				return nil, err
			}
			return &Result{Text: info.Render(), Data: info}, nil
		},
	}
}

func (r *Registry) toolExploreAST() ToolDef {
	return ToolDef{
		Name:        "explore_ast",
		Description: "Show the syntax node at a position together with its ancestors, children and siblings, to find ancestor_node_type values.",
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {
				"file_path": {
					"type": "string",
					"description": "Path to the source file."
				},
				"line": {
					"type": "integer",
					"description": "1-based line."
				},
				"column": {
					"type": "integer",
					"description": "1-based column. Defaults to the first non-blank character of the line."
				},
				"language": {
					"type": "string",
					"description": "Language name overriding extension-based detection."
				}
			},
			"required": ["file_path", "line"]
		}`),
		Handler: func(_ context.Context, params json.RawMessage) (*Result, error) {
			var p struct {
				FilePath string `json:"file_path"`
				Line     int    `json:"line"`
				Column   int    `json:"column"`
				Language string `json:"language"`
			}
			if err := decode(params, &p); err != nil {
				return nil, err
			}
			snap, err := r.load(p.FilePath, p.Language)
			if err != nil {
				return nil, err
			}
			col := p.Column
			if col <= 0 {
				col = inspect.FirstNonBlank(snap.Line(p.Line))
			}
			ex, err := inspect.Explore(snap, p.Line, col)
			if err != nil {
				return nil, err
			}
			return &Result{Text: ex.Render(), Data: ex}, nil
		},
	}
}

// --- Resource definitions ---

const (
	syntaxTreePrefix = "semedit://syntax-tree/"
	symbolsPrefix    = "semedit://symbols/"
	stagedURI        = "semedit://staged"
)

func (r *Registry) resourceSyntaxTree() ResourceDef {
	return ResourceDef{
		URI:         syntaxTreePrefix + "{path}",
		Name:        "Syntax Tree",
		Description: "Returns the tree-sitter parse tree for a file in S-expression format.",
		MimeType:    "text/plain",
		Handler: func(uri string) (string, error) {
			path := extractURIParam(syntaxTreePrefix, uri)
			if path == "" {
				return "", diag.New(diag.InvalidRequest, "path is required in URI")
			}
			snap, err := r.load(path, "")
			if err != nil {
				return "", err
			}
			return inspect.SyntaxTree(snap), nil
		},
	}
}

func (r *Registry) resourceSymbols() ResourceDef {
	return ResourceDef{
		URI:         symbolsPrefix + "{path}",
		Name:        "Symbols",
		Description: "Returns the declarations in a file (functions, types, impls) as JSON.",
		MimeType:    "application/json",
		Handler: func(uri string) (string, error) {
			path := extractURIParam(symbolsPrefix, uri)
			if path == "" {
				return "", diag.New(diag.InvalidRequest, "path is required in URI")
			}
			snap, err := r.load(path, "")
			if err != nil {
				return "", err
			}
			data, err := json.Marshal(inspect.Symbols(snap))
			if err != nil {
				return "", fmt.Errorf("marshal symbols: %w", err)
			}
			return string(data), nil
		},
	}
}

func (r *Registry) resourceStaged() ResourceDef {
	return ResourceDef{
		URI:         stagedURI,
		Name:        "Staged Edit",
		Description: "Returns the diff of the currently staged edit, or an empty document.",
		MimeType:    "text/x-diff",
		Handler: func(string) (string, error) {
			staged := r.editor.Staged()
			if staged == nil {
				return "", nil
			}
			return staged.Diff, nil
		},
	}
}
