// Package cli implements the semedit command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/odvcencio/semedit/config"
	"github.com/odvcencio/semedit/diag"
	"github.com/odvcencio/semedit/edit"
	"github.com/odvcencio/semedit/selector"
	"github.com/odvcencio/semedit/session"
	"github.com/odvcencio/semedit/validate"
)

// Version is set at build time.
var Version = "dev"

const formatTimeout = 10 * time.Second

// app holds state shared by subcommands, populated in PersistentPreRunE.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	configPath string
	workdir    string
	debug      bool
	noFormat   bool
}

func (a *app) newSession() *session.Session {
	return session.New(session.Options{
		WorkingDirectory: a.cfg.WorkingDirectory,
		Registry:         a.cfg.Registry(),
		Resolver:         selector.Resolver{ContextLines: a.cfg.ContextLines, MaxChain: a.cfg.MaxChain},
		Engine:           edit.Engine{Format: a.cfg.FormatEnabled(), FormatTimeout: formatTimeout},
		Validator:        a.validator(),
		DiffContext:      a.cfg.DiffContext,
		Logger:           a.logger,
	})
}

// localSession is a session for one-shot commands, where relative paths
// resolve against the current directory unless one is configured.
func (a *app) localSession() *session.Session {
	if a.cfg.WorkingDirectory == "" {
		if wd, err := os.Getwd(); err == nil {
			a.cfg.WorkingDirectory = wd
		}
	}
	return a.newSession()
}

func (a *app) validator() *validate.Validator {
	v := validate.New(a.cfg.RuleCacheTTL.Duration)
	v.ContextLines = a.cfg.ContextLines
	return v
}

// NewRootCommand builds the command tree. Logs go to stderr; stdout carries
// command output and the MCP stream.
func NewRootCommand(stderr io.Writer) *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "semedit",
		Short:         "Structural code editing by syntax node",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			if a.configPath != "" {
				a.cfg, err = config.LoadFile(a.configPath)
				if err == nil {
					a.cfg.ApplyEnv(os.Getenv)
				}
			} else {
				a.cfg, err = config.Load()
			}
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			if a.workdir != "" {
				a.cfg.WorkingDirectory = a.workdir
			}
			if a.debug {
				a.cfg.LogLevel = "debug"
			}
			if a.noFormat {
				off := false
				a.cfg.Format = &off
			}

			a.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: a.cfg.Level()}))
			slog.SetDefault(a.logger)
			for _, w := range a.cfg.Validate(a.cfg.Registry()) {
				a.logger.Warn("config", "warning", w)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default "+config.Path()+")")
	root.PersistentFlags().StringVarP(&a.workdir, "workdir", "C", "", "working directory for relative paths")
	root.PersistentFlags().BoolVar(&a.debug, "debug", false, "debug logging")
	root.PersistentFlags().BoolVar(&a.noFormat, "no-format", false, "do not run language formatters")

	root.AddCommand(
		newServeCommand(a),
		newWebCommand(a),
		newEditCommand(a),
		newCheckCommand(a),
		newInspectCommand(a),
		newLanguagesCommand(a),
		newConfigCommand(a),
	)
	return root
}

// Execute runs the root command. Exits with code 1 on error.
func Execute() {
	root := NewRootCommand(os.Stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, diag.Report(err))
		os.Exit(1)
	}
}
