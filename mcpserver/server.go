// Package mcpserver exposes a session's tools over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/odvcencio/semedit/diag"
	"github.com/odvcencio/semedit/mcptools"
)

// Name is the server name reported during initialization.
const Name = "semedit"

// Server wraps an MCP server bound to one tool registry. Calls are
// serialized because the underlying session is single-threaded.
type Server struct {
	mcp    *server.MCPServer
	reg    *mcptools.Registry
	logger *slog.Logger
	mu     sync.Mutex
}

// New builds an MCP server exposing every tool and resource in reg.
func New(reg *mcptools.Registry, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		mcp: server.NewMCPServer(Name, version,
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
			server.WithInstructions(instructions),
		),
		reg:    reg,
		logger: logger,
	}
	s.register()
	return s
}

const instructions = `Structural code editing. Typical flow: set_working_directory, then
preview_edit with a selector (anchor_text plus ancestor_node_type), inspect the diff,
optionally retarget_edit, then persist_edit. Use explore_ast or get_node_info to find
node types. Nothing is written to disk until persist_edit succeeds.`

func (s *Server) register() {
	for _, tool := range s.reg.Tools() {
		tool := tool
		s.mcp.AddTool(
			mcp.NewToolWithRawSchema(tool.Name, tool.Description, tool.InputSchema),
			func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				return s.callTool(ctx, tool.Name, req.Params.Arguments)
			},
		)
	}

	for _, res := range s.reg.Resources() {
		res := res
		handler := func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			text, err := s.readResource(req.Params.URI)
			if err != nil {
				return nil, err
			}
			return []mcp.ResourceContents{
				mcp.TextResourceContents{URI: req.Params.URI, MIMEType: res.MimeType, Text: text},
			}, nil
		}
		if strings.Contains(res.URI, "{") {
			s.mcp.AddResourceTemplate(
				mcp.NewResourceTemplate(res.URI, res.Name,
					mcp.WithTemplateDescription(res.Description),
					mcp.WithTemplateMIMEType(res.MimeType),
				),
				handler,
			)
			continue
		}
		s.mcp.AddResource(
			mcp.NewResource(res.URI, res.Name,
				mcp.WithResourceDescription(res.Description),
				mcp.WithMIMEType(res.MimeType),
			),
			handler,
		)
	}
}

// callTool runs a tool and turns diagnostics into tool-level errors so the
// client sees the full report instead of a protocol failure.
func (s *Server) callTool(ctx context.Context, name string, args any) (*mcp.CallToolResult, error) {
	params, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal arguments: %w", err)
	}
	if string(params) == "null" {
		params = json.RawMessage("{}")
	}

	start := time.Now()
	s.mu.Lock()
	res, err := s.reg.HandleTool(ctx, name, params)
	s.mu.Unlock()

	if err != nil {
		s.logger.Info("tool failed", "tool", name, "kind", diag.KindOf(err).String(), "duration", time.Since(start))
		return mcp.NewToolResultError(diag.Report(err)), nil
	}
	s.logger.Debug("tool succeeded", "tool", name, "duration", time.Since(start))
	return mcp.NewToolResultText(res.Text), nil
}

func (s *Server) readResource(uri string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	text, err := s.reg.HandleResource(uri)
	if err != nil {
		return "", errors.New(diag.Report(err))
	}
	return text, nil
}

// ServeStdio serves MCP over stdin and stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	s.logger.Info("serving MCP on stdio", "tools", len(s.reg.Tools()))
	return server.ServeStdio(s.mcp,
		server.WithErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError)),
	)
}
