// Package session holds the per-connection editing state: a working
// directory and at most one staged operation.
//
// A Session is owned by one connection and serves one call at a time; it
// does no locking of its own.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/renameio"
	"github.com/google/uuid"

	"github.com/odvcencio/semedit/diag"
	"github.com/odvcencio/semedit/edit"
	"github.com/odvcencio/semedit/languages"
	"github.com/odvcencio/semedit/selector"
	"github.com/odvcencio/semedit/snapshot"
	"github.com/odvcencio/semedit/validate"
)

// StagedOperation is a validated edit waiting to be persisted.
type StagedOperation struct {
	ID          string
	Path        string
	Language    string
	Selector    selector.Selector
	Content     string
	Operation   edit.Operation
	Target      selector.Candidate
	Fingerprint Fingerprint
	Candidate   []byte
	Region      edit.Region
	Diff        string
	Warnings    []string
	Formatted   bool
	StagedAt    time.Time
}

// Request describes a new edit to preview.
type Request struct {
	Path      string
	Selector  selector.Selector
	Content   string
	Operation edit.Operation
	Language  string // optional override of extension-based detection
}

// Preview is the outcome of a successful preview or retarget.
type Preview struct {
	Path      string
	Language  string
	Target    selector.Candidate
	Diff      string
	Warnings  []string
	Formatted bool
}

// Persisted confirms a write.
type Persisted struct {
	Path  string
	Diff  string
	Bytes int
}

// Options configures a Session. Zero fields take defaults.
type Options struct {
	WorkingDirectory string
	Registry         *languages.Registry
	Resolver         selector.Resolver
	Engine           edit.Engine
	Validator        *validate.Validator
	DiffContext      int
	Logger           *slog.Logger
}

// Session is the editing state of one client connection.
type Session struct {
	ID string

	workdir     string
	staged      *StagedOperation
	registry    *languages.Registry
	resolver    selector.Resolver
	engine      edit.Engine
	validator   *validate.Validator
	diffContext int
	logger      *slog.Logger
}

// New creates an empty session.
func New(opts Options) *Session {
	s := &Session{
		ID:          uuid.NewString(),
		registry:    opts.Registry,
		resolver:    opts.Resolver,
		engine:      opts.Engine,
		validator:   opts.Validator,
		diffContext: opts.DiffContext,
		logger:      opts.Logger,
	}
	if s.registry == nil {
		s.registry = languages.Default()
	}
	if s.validator == nil {
		s.validator = validate.New(0)
	}
	if s.diffContext <= 0 {
		s.diffContext = 3
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("session", s.ID)
	if opts.WorkingDirectory != "" {
		if dir, err := canonicalDir(opts.WorkingDirectory); err == nil {
			s.workdir = dir
		} else {
			s.logger.Warn("ignoring working directory", "path", opts.WorkingDirectory, "err", err)
		}
	}
	return s
}

// Registry returns the language registry the session edits with.
func (s *Session) Registry() *languages.Registry { return s.registry }

// Resolver returns the selector resolver the session uses.
func (s *Session) Resolver() selector.Resolver { return s.resolver }

// WorkingDirectory returns the directory relative paths resolve against.
func (s *Session) WorkingDirectory() string { return s.workdir }

// Staged returns a copy of the staged operation, or nil.
func (s *Session) Staged() *StagedOperation {
	if s.staged == nil {
		return nil
	}
	cp := *s.staged
	return &cp
}

// SetWorkingDirectory changes the base for relative paths. It does not touch
// the staged operation.
func (s *Session) SetWorkingDirectory(path string) (string, error) {
	dir, err := canonicalDir(path)
	if err != nil {
		return "", err
	}
	s.workdir = dir
	s.logger.Debug("working directory set", "path", dir)
	return dir, nil
}

func canonicalDir(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", diag.New(diag.InvalidRequest, "path is required")
	}
	abs, err := filepath.Abs(expandHome(path))
	if err != nil {
		return "", diag.Wrap(diag.IOError, err, "resolve %s", path)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", diag.Wrap(diag.IOError, err, "stat %s", abs)
	}
	if !info.IsDir() {
		return "", diag.New(diag.InvalidRequest, "%s is not a directory", abs)
	}
	return abs, nil
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~"))
}

// ResolvePath makes path absolute against the working directory.
func (s *Session) ResolvePath(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", diag.New(diag.InvalidRequest, "file_path is required")
	}
	path = expandHome(path)
	if filepath.IsAbs(path) {
		return filepath.Clean(path), nil
	}
	if s.workdir == "" {
		return "", diag.New(diag.InvalidRequest, "relative path %q given but no working directory is set", path).
			WithSuggestions("call set_working_directory first, or pass an absolute path")
	}
	return filepath.Join(s.workdir, path), nil
}

// displayPath is path relative to the working directory when possible.
func (s *Session) displayPath(path string) string {
	if s.workdir != "" {
		if rel, err := filepath.Rel(s.workdir, path); err == nil && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.ToSlash(strings.TrimPrefix(path, "/"))
}

// Preview stages req if it resolves and validates. On failure the previous
// staged operation is left untouched.
func (s *Session) Preview(ctx context.Context, req Request) (*Preview, error) {
	path, err := s.ResolvePath(req.Path)
	if err != nil {
		return nil, err
	}
	op, err := s.build(ctx, path, req.Language, req.Selector, req.Operation, req.Content)
	if err != nil {
		s.logger.Debug("preview rejected", "path", path, "kind", diag.KindOf(err).String())
		return nil, err
	}
	s.staged = op
	s.logger.Info("edit staged", "path", path, "operation", string(op.Operation), "selector", op.Selector.String())
	return s.preview(op), nil
}

// Retarget re-resolves the staged content and operation against sel using
// the file's current content.
func (s *Session) Retarget(ctx context.Context, sel selector.Selector) (*Preview, error) {
	if s.staged == nil {
		return nil, diag.New(diag.NoStagedOperation, "no operation staged").
			WithSuggestions("call preview_edit first")
	}
	prev := s.staged
	op, err := s.build(ctx, prev.Path, prev.Language, sel, prev.Operation, prev.Content)
	if err != nil {
		s.logger.Debug("retarget rejected", "path", prev.Path, "kind", diag.KindOf(err).String())
		return nil, err
	}
	s.staged = op
	s.logger.Info("edit retargeted", "path", op.Path, "selector", sel.String())
	return s.preview(op), nil
}

// Persist writes the staged candidate if the file has not changed since it
// was staged, then clears the stage.
//
// Freshness is checked, not locked: a write landing between the check and
// the rename is not detected.
func (s *Session) Persist(ctx context.Context) (*Persisted, error) {
	if s.staged == nil {
		return nil, diag.New(diag.NoStagedOperation, "no operation staged").
			WithSuggestions("call preview_edit first")
	}
	op := s.staged

	info, err := s.checkFresh(op)
	if err != nil {
		return nil, err
	}

	profile, err := s.registry.Resolve(op.Path, op.Language)
	if err != nil {
		return nil, err
	}
	cand, err := snapshot.Parse(op.Path, op.Candidate, profile)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Check(cand, op.Region); err != nil {
		return nil, err
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	perm := info.Mode().Perm()
	// Rename over the link target so a symlinked path stays a symlink.
	dest, err := filepath.EvalSymlinks(op.Path)
	if err != nil {
		return nil, diag.Wrap(diag.IOError, err, "resolve %s", op.Path)
	}
	if err := renameio.WriteFile(dest, op.Candidate, perm); err != nil {
		return nil, diag.Wrap(diag.IOError, err, "write %s", op.Path)
	}
	s.staged = nil
	s.logger.Info("edit persisted", "path", op.Path, "bytes", len(op.Candidate))
	return &Persisted{Path: op.Path, Diff: op.Diff, Bytes: len(op.Candidate)}, nil
}

// Fresh reports whether the staged file still has the content it was staged
// against. It fails with NoStagedOperation when nothing is staged.
func (s *Session) Fresh() (bool, error) {
	if s.staged == nil {
		return false, diag.New(diag.NoStagedOperation, "no operation staged")
	}
	if _, err := s.checkFresh(s.staged); err != nil {
		if diag.Is(err, diag.StaleFile) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Session) checkFresh(op *StagedOperation) (os.FileInfo, error) {
	data, info, err := readFile(op.Path)
	if err != nil {
		return nil, err
	}
	if current := NewFingerprint(data, info); !current.Matches(op.Fingerprint) {
		return nil, diag.New(diag.StaleFile, "%s changed since the edit was staged", s.displayPath(op.Path)).
			WithDetail(fmt.Sprintf("staged fingerprint %s, current %s", op.Fingerprint, current)).
			WithSuggestions("call retarget_edit or preview_edit to stage against the current content")
	}
	return info, nil
}

// Discard drops the staged operation, if any.
func (s *Session) Discard() bool {
	had := s.staged != nil
	s.staged = nil
	return had
}

func (s *Session) preview(op *StagedOperation) *Preview {
	return &Preview{
		Path:      op.Path,
		Language:  op.Language,
		Target:    op.Target,
		Diff:      op.Diff,
		Warnings:  op.Warnings,
		Formatted: op.Formatted,
	}
}

func readFile(path string) ([]byte, os.FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, nil, diag.Wrap(diag.IOError, err, "stat %s", path)
	}
	if info.IsDir() {
		return nil, nil, diag.New(diag.IOError, "%s is a directory", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, diag.Wrap(diag.IOError, err, "read %s", path)
	}
	return data, info, nil
}

// build runs the whole pipeline against the file's current content and
// returns the operation to stage.
func (s *Session) build(ctx context.Context, path, language string, sel selector.Selector, opKind edit.Operation, content string) (*StagedOperation, error) {
	if err := sel.Validate(); err != nil {
		return nil, err
	}
	if err := edit.CheckContent(opKind, content); err != nil {
		return nil, err
	}

	data, info, err := readFile(path)
	if err != nil {
		return nil, err
	}
	profile, err := s.registry.Resolve(path, language)
	if err != nil {
		return nil, err
	}
	snap, err := snapshot.Parse(path, data, profile)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Prevalidate(snap); err != nil {
		return nil, err
	}

	target, err := s.resolver.Resolve(snap, sel)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.Apply(ctx, snap, target, opKind, content)
	if err != nil {
		return nil, err
	}
	cand, err := snapshot.Parse(path, res.Source, profile)
	if err != nil {
		return nil, err
	}
	if err := s.validator.Check(cand, res.Region); err != nil {
		return nil, err
	}

	return &StagedOperation{
		ID:          uuid.NewString(),
		Path:        path,
		Language:    profile.Name,
		Selector:    sel,
		Content:     content,
		Operation:   opKind,
		Target:      *target,
		Fingerprint: NewFingerprint(data, info),
		Candidate:   res.Source,
		Region:      res.Region,
		Diff:        edit.UnifiedDiff(s.displayPath(path), string(data), string(res.Source), s.diffContext),
		Warnings:    res.Warnings,
		Formatted:   res.Formatted,
		StagedAt:    time.Now(),
	}, nil
}
