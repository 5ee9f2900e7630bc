package languages

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"go/format"
	"os/exec"
	"strings"

	"github.com/odvcencio/semedit/editor"
)

// ErrFormatterUnavailable is returned when an external formatter binary is
// not installed.
var ErrFormatterUnavailable = errors.New("formatter unavailable")

// Formatter rewrites a whole source file into canonical form. Implementations
// must be idempotent.
type Formatter interface {
	Name() string
	Format(ctx context.Context, source []byte) ([]byte, error)
}

// CommandFormatter pipes the source through an external program.
type CommandFormatter struct {
	Command string
	Args    []string
}

func (f *CommandFormatter) Name() string { return f.Command }

func (f *CommandFormatter) Format(ctx context.Context, source []byte) ([]byte, error) {
	path, err := exec.LookPath(f.Command)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Command, ErrFormatterUnavailable)
	}
	cmd := exec.CommandContext(ctx, path, f.Args...)
	cmd.Stdin = bytes.NewReader(source)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("%s: %w", f.Command, err)
		}
		return nil, fmt.Errorf("%s: %s", f.Command, msg)
	}
	return stdout.Bytes(), nil
}

// Rustfmt formats Rust sources read from stdin.
func Rustfmt() *CommandFormatter {
	return &CommandFormatter{Command: "rustfmt", Args: []string{"--emit", "stdout", "--edition", "2021"}}
}

// GoFormatter formats Go sources in-process.
type GoFormatter struct{}

func (GoFormatter) Name() string { return "gofmt" }

func (GoFormatter) Format(_ context.Context, source []byte) ([]byte, error) {
	out, err := format.Source(source)
	if err != nil {
		return nil, fmt.Errorf("gofmt: %w", err)
	}
	return out, nil
}

// JSONFormatter re-indents JSON documents using the indent unit already
// present in the document.
type JSONFormatter struct{}

func (JSONFormatter) Name() string { return "json" }

func (JSONFormatter) Format(_ context.Context, source []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, bytes.TrimSpace(source), "", jsonIndentUnit(source)); err != nil {
		return nil, fmt.Errorf("json: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// jsonIndentUnit returns the indent unit already used by the document, or
// two spaces for documents without indentation.
func jsonIndentUnit(source []byte) string {
	text := string(source)
	if !editor.HasIndentation(text) {
		return "  "
	}
	return editor.DetectIndentStyle(text)
}
