package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/odvcencio/semedit/diag"
	"github.com/odvcencio/semedit/edit"
	"github.com/odvcencio/semedit/selector"
	"github.com/odvcencio/semedit/session"
)

type editFlags struct {
	anchor      string
	ancestor    string
	op          string
	content     string
	contentFile string
	language    string
	write       bool
}

func newEditCommand(a *app) *cobra.Command {
	var f editFlags
	cmd := &cobra.Command{
		Use:   "edit FILE",
		Short: "Preview a structural edit and optionally write it",
		Long: `Resolve the node enclosing --anchor of type --ancestor, apply --op with the
given content, validate the result and print the diff. Nothing is written
unless --write is set.`,
		Example: `  semedit edit src/lib.rs --anchor "fn parse" --ancestor function_item \
    --op insert_after --content-file new_fn.rs --write`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := readContent(cmd.InOrStdin(), f)
			if err != nil {
				return err
			}
			op, err := edit.ParseOperation(f.op)
			if err != nil {
				return err
			}

			sess := a.localSession()
			prev, err := sess.Preview(cmd.Context(), session.Request{
				Path:      args[0],
				Selector:  selector.Selector{AnchorText: f.anchor, AncestorNodeType: f.ancestor},
				Content:   content,
				Operation: op,
				Language:  f.language,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, w := range prev.Warnings {
				printWarning(cmd.ErrOrStderr(), w)
			}
			printDiff(out, prev.Diff)
			if !f.write {
				fmt.Fprintln(cmd.ErrOrStderr(), "dry run: pass --write to apply")
				return nil
			}
			res, err := sess.Persist(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s (%d bytes)\n", res.Path, res.Bytes)
			return nil
		},
	}
	cmd.Flags().StringVar(&f.anchor, "anchor", "", "literal text inside the target node")
	cmd.Flags().StringVar(&f.ancestor, "ancestor", "", "node type of the target")
	cmd.Flags().StringVar(&f.op, "op", string(edit.Replace), "replace, insert_before, insert_after or wrap")
	cmd.Flags().StringVar(&f.content, "content", "", "new code")
	cmd.Flags().StringVar(&f.contentFile, "content-file", "", "read new code from a file (- for stdin)")
	cmd.Flags().StringVar(&f.language, "language", "", "override language detection")
	cmd.Flags().BoolVarP(&f.write, "write", "w", false, "write the edit to disk")
	_ = cmd.MarkFlagRequired("anchor")
	_ = cmd.MarkFlagRequired("ancestor")
	cmd.MarkFlagsMutuallyExclusive("content", "content-file")
	return cmd
}

func readContent(stdin io.Reader, f editFlags) (string, error) {
	switch f.contentFile {
	case "":
		return f.content, nil
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", diag.Wrap(diag.IOError, err, "read content from stdin")
		}
		return string(data), nil
	default:
		data, err := os.ReadFile(f.contentFile)
		if err != nil {
			return "", diag.Wrap(diag.IOError, err, "read %s", f.contentFile)
		}
		return string(data), nil
	}
}
