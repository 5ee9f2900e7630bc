// Package web serves the editing tools as JSON-RPC over websockets. Each
// connection gets its own session.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/odvcencio/semedit/diag"
	"github.com/odvcencio/semedit/mcptools"
	"github.com/odvcencio/semedit/session"
	"github.com/odvcencio/semedit/watch"
)

// StagedFileChanged is the notification sent when the file behind a
// connection's staged edit changes on disk.
const StagedFileChanged = "stagedFileChanged"

// ServerShutdown is broadcast to every connection before the server closes
// them. Staged edits are lost with the connection.
const ServerShutdown = "serverShutdown"

// SessionFactory creates the session for a new connection.
type SessionFactory func() *session.Session

// Server provides the HTTP + WebSocket endpoint.
type Server struct {
	newSession SessionFactory
	origins    map[string]bool
	upgrader   websocket.Upgrader
	logger     *slog.Logger
	mu         sync.Mutex
	clients    []*wsClient
}

type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex // guards writes to conn

	callMu  sync.Mutex // serializes session access
	sess    *session.Session
	reg     *mcptools.Registry
	watcher *watch.Watcher
	watched string
}

type rpcRequest struct {
	ID     any             `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	ID     any       `json:"id"`
	Result any       `json:"result,omitempty"`
	Error  *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcNotification struct {
	Method string `json:"method"`
	Params any    `json:"params"`
}

const (
	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeToolError      = -32000
)

// NewServer creates a web server. allowedOrigins lists browser origins
// allowed to connect besides localhost ones.
func NewServer(newSession SessionFactory, allowedOrigins []string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		newSession: newSession,
		origins:    make(map[string]bool, len(allowedOrigins)),
		logger:     logger,
	}
	for _, o := range allowedOrigins {
		s.origins[o] = true
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	return s
}

// checkOrigin admits non-browser clients, localhost pages and configured
// origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || s.origins[origin] {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case "/ws":
		s.handleWebSocket(w, r)
	case "/healthz":
		w.Header().Set("Content-Type", "text/plain")
		fmt.Fprintln(w, "ok")
	default:
		http.NotFound(w, r)
	}
}

// ListenAndServe serves on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}
	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.logger.Info("web server listening", "addr", addr)

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("web server shutting down")
		s.closeClients("server shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade", "err", err)
		return
	}
	sess := s.newSession()
	client := &wsClient{conn: conn, sess: sess, reg: mcptools.NewRegistry(sess)}
	logger := s.logger.With("session", sess.ID, "remote", r.RemoteAddr)

	ctx, cancel := context.WithCancel(r.Context())
	if wt, err := watch.New(logger); err != nil {
		logger.Warn("file watching unavailable", "err", err)
	} else {
		client.watcher = wt
		go func() {
			if err := wt.Run(ctx, func(ev watch.Event) { s.stagedChanged(client, ev) }); err != nil {
				logger.Warn("file watcher stopped", "err", err)
			}
		}()
	}

	s.mu.Lock()
	s.clients = append(s.clients, client)
	s.mu.Unlock()
	logger.Info("client connected")

	defer func() {
		cancel()
		if client.watcher != nil {
			client.watcher.Close()
		}
		conn.Close()
		s.mu.Lock()
		for i, c := range s.clients {
			if c == client {
				s.clients = append(s.clients[:i], s.clients[i+1:]...)
				break
			}
		}
		s.mu.Unlock()
		logger.Info("client disconnected")
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var req rpcRequest
		if err := json.Unmarshal(msg, &req); err != nil {
			client.send(rpcResponse{Error: &rpcError{Code: codeParseError, Message: err.Error()}})
			continue
		}
		start := time.Now()
		resp := s.handleRPC(ctx, client, req)
		logger.Debug("rpc", "method", req.Method, "duration", time.Since(start), "ok", resp.Error == nil)
		client.send(resp)
	}
}

func (c *wsClient) send(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	c.mu.Lock()
	_ = c.conn.WriteMessage(websocket.TextMessage, data)
	c.mu.Unlock()
}

func (s *Server) handleRPC(ctx context.Context, c *wsClient, req rpcRequest) rpcResponse {
	c.callMu.Lock()
	defer c.callMu.Unlock()

	switch req.Method {
	case "listTools":
		return s.rpcListTools(c, req)
	case "readResource":
		return s.rpcReadResource(c, req)
	}
	for _, t := range c.reg.Tools() {
		if t.Name == req.Method {
			res, err := c.reg.HandleTool(ctx, req.Method, req.Params)
			s.syncWatch(c)
			if err != nil {
				return rpcResponse{ID: req.ID, Error: toRPCError(err)}
			}
			return rpcResponse{ID: req.ID, Result: res}
		}
	}
	return rpcResponse{
		ID:    req.ID,
		Error: &rpcError{Code: codeMethodNotFound, Message: fmt.Sprintf("unknown method: %s", req.Method)},
	}
}

func toRPCError(err error) *rpcError {
	kind := diag.KindOf(err)
	code := codeToolError
	if kind == diag.InvalidRequest {
		code = codeInvalidParams
	}
	return &rpcError{
		Code:    code,
		Message: diag.Report(err),
		Data:    map[string]string{"kind": kind.String()},
	}
}

func (s *Server) rpcListTools(c *wsClient, req rpcRequest) rpcResponse {
	type toolInfo struct {
		Name        string          `json:"name"`
		Description string          `json:"description"`
		InputSchema json.RawMessage `json:"inputSchema"`
	}
	tools := make([]toolInfo, 0, len(c.reg.Tools()))
	for _, t := range c.reg.Tools() {
		tools = append(tools, toolInfo{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
	}
	return rpcResponse{ID: req.ID, Result: map[string]any{"tools": tools}}
}

func (s *Server) rpcReadResource(c *wsClient, req rpcRequest) rpcResponse {
	var p struct {
		URI string `json:"uri"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		return rpcResponse{ID: req.ID, Error: &rpcError{Code: codeInvalidParams, Message: err.Error()}}
	}
	text, err := c.reg.HandleResource(p.URI)
	if err != nil {
		return rpcResponse{ID: req.ID, Error: toRPCError(err)}
	}
	return rpcResponse{ID: req.ID, Result: map[string]string{"uri": p.URI, "text": text}}
}

// syncWatch points the client's watcher at its staged file. Callers hold
// c.callMu.
func (s *Server) syncWatch(c *wsClient) {
	if c.watcher == nil {
		return
	}
	var path string
	if staged := c.sess.Staged(); staged != nil {
		path = staged.Path
	}
	if path == c.watched {
		return
	}
	if c.watched != "" {
		c.watcher.Unwatch(c.watched)
	}
	c.watched = ""
	if path != "" {
		if err := c.watcher.Watch(path); err != nil {
			s.logger.Warn("watch staged file", "path", path, "err", err)
			return
		}
		c.watched = path
	}
}

// stagedChanged notifies the client when its staged file no longer has the
// staged content. Events for writes the session made itself arrive after the
// stage was cleared and are dropped.
func (s *Server) stagedChanged(c *wsClient, ev watch.Event) {
	c.callMu.Lock()
	staged := c.sess.Staged()
	if staged == nil || staged.Path != ev.Path {
		c.callMu.Unlock()
		return
	}
	fresh, err := c.sess.Fresh()
	c.callMu.Unlock()
	if fresh && err == nil {
		return
	}

	params := map[string]any{
		"path":    ev.Path,
		"removed": ev.Removed || diag.Is(err, diag.IOError),
		"stale":   !fresh,
	}
	c.send(rpcNotification{Method: StagedFileChanged, Params: params})
}

// Broadcast sends a notification to all connected WebSocket clients.
func (s *Server) Broadcast(method string, params any) {
	for _, c := range s.connected() {
		c.send(rpcNotification{Method: method, Params: params})
	}
}

func (s *Server) connected() []*wsClient {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*wsClient(nil), s.clients...)
}

// closeClients tells every client why it is being dropped, then closes the
// connections. http.Server.Shutdown does not track hijacked connections.
func (s *Server) closeClients(reason string) {
	s.Broadcast(ServerShutdown, map[string]string{"reason": reason})
	deadline := time.Now().Add(time.Second)
	for _, c := range s.connected() {
		c.mu.Lock()
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, reason), deadline)
		c.mu.Unlock()
		c.conn.Close()
	}
}
