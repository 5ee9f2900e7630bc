package cli

import (
	"encoding/json"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/odvcencio/semedit/diag"
	"github.com/odvcencio/semedit/inspect"
	"github.com/odvcencio/semedit/selector"
	"github.com/odvcencio/semedit/snapshot"
)

func newInspectCommand(a *app) *cobra.Command {
	var language string
	var asJSON bool

	load := func(arg string) (*snapshot.Snapshot, error) {
		sess := a.localSession()
		path, err := sess.ResolvePath(arg)
		if err != nil {
			return nil, err
		}
		return inspect.Load(sess.Registry(), path, language)
	}
	emit := func(w io.Writer, v any, text string) error {
		if !asJSON {
			_, err := io.WriteString(w, text)
			return err
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Look at a file's syntax tree",
	}
	cmd.PersistentFlags().StringVar(&language, "language", "", "override language detection")
	cmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print JSON")

	tree := &cobra.Command{
		Use:   "tree FILE",
		Short: "Print the syntax tree as an S-expression",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := load(args[0])
			if err != nil {
				return err
			}
			s := inspect.SyntaxTree(snap)
			return emit(cmd.OutOrStdout(), map[string]string{"tree": s}, s+"\n")
		},
	}

	symbols := &cobra.Command{
		Use:   "symbols FILE",
		Short: "List the items declared in a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := load(args[0])
			if err != nil {
				return err
			}
			syms := inspect.Symbols(snap)
			return emit(cmd.OutOrStdout(), syms, inspect.RenderSymbols(syms))
		},
	}

	var anchor, ancestor string
	node := &cobra.Command{
		Use:   "node FILE",
		Short: "Describe the node a selector resolves to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			snap, err := load(args[0])
			if err != nil {
				return err
			}
			r := selector.Resolver{ContextLines: a.cfg.ContextLines, MaxChain: a.cfg.MaxChain}
			info, err := inspect.Info(snap, r, selector.Selector{AnchorText: anchor, AncestorNodeType: ancestor})
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), info, info.Render())
		},
	}
	node.Flags().StringVar(&anchor, "anchor", "", "literal text inside the target node")
	node.Flags().StringVar(&ancestor, "ancestor", "", "node type of the target")
	_ = node.MarkFlagRequired("anchor")
	_ = node.MarkFlagRequired("ancestor")

	at := &cobra.Command{
		Use:   "at FILE LINE [COLUMN]",
		Short: "Show the node at a position with its parents, children and siblings",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := strconv.Atoi(args[1])
			if err != nil {
				return diag.New(diag.InvalidRequest, "line %q is not a number", args[1])
			}
			snap, err := load(args[0])
			if err != nil {
				return err
			}
			col := inspect.FirstNonBlank(snap.Line(line))
			if len(args) == 3 {
				if col, err = strconv.Atoi(args[2]); err != nil {
					return diag.New(diag.InvalidRequest, "column %q is not a number", args[2])
				}
			}
			ex, err := inspect.Explore(snap, line, col)
			if err != nil {
				return err
			}
			return emit(cmd.OutOrStdout(), ex, ex.Render())
		},
	}

	cmd.AddCommand(tree, symbols, node, at)
	return cmd
}
