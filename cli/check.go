package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/odvcencio/semedit/inspect"
)

func newCheckCommand(a *app) *cobra.Command {
	var language string
	cmd := &cobra.Command{
		Use:   "check FILE...",
		Short: "Report syntax errors and placement rule violations",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess := a.localSession()
			v := a.validator()
			out := cmd.OutOrStdout()
			problems := 0
			for _, arg := range args {
				path, err := sess.ResolvePath(arg)
				if err != nil {
					return err
				}
				snap, err := inspect.Load(sess.Registry(), path, language)
				if err != nil {
					return err
				}
				for _, e := range snap.Errors() {
					fmt.Fprintf(out, "%s:%s\n", arg, e)
					problems++
				}
				for _, viol := range v.Violations(snap) {
					fmt.Fprintf(out, "%s:%d:%d: %s [%s]\n", arg, viol.Line, viol.Column, viol.Message, viol.RuleID)
					problems++
				}
				for _, err := range v.RuleErrors(snap.Profile) {
					a.logger.Warn("rule skipped", "language", snap.Profile.Name, "err", err)
				}
			}
			if problems > 0 {
				return fmt.Errorf("%d problem(s) found", problems)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&language, "language", "", "override language detection")
	return cmd
}
