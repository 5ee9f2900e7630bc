package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/odvcencio/gotreesitter/grammars"
	"github.com/spf13/cobra"
)

func newLanguagesCommand(a *app) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List languages with parser support, formatter and rule count",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg := a.cfg.Registry()
			rows := reg.Audit()
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(rows)
			}

			color := useColor(out)
			col := func(w int) lipgloss.Style { return lipgloss.NewStyle().Width(w) }
			header := lipgloss.JoinHorizontal(lipgloss.Top,
				col(12).Render("LANGUAGE"), col(22).Render("EXTENSIONS"),
				col(14).Render("BACKEND"), col(14).Render("FORMATTER"), "RULES")
			if color {
				header = headerStyle.Render(header)
			}
			fmt.Fprintln(out, header)

			v := a.validator()
			for _, row := range rows {
				backend := string(row.Backend)
				if color && row.Backend == grammars.ParseBackendUnsupported {
					backend = removedStyle.Render(backend)
				}
				formatter := row.Formatter
				if formatter == "" {
					formatter = "-"
				}
				fmt.Fprintln(out, lipgloss.JoinHorizontal(lipgloss.Top,
					col(12).Render(row.Name), col(22).Render(strings.Join(row.Extensions, " ")),
					col(14).Render(backend), col(14).Render(formatter), fmt.Sprint(row.Rules)))
				if row.Reason != "" {
					fmt.Fprintf(out, "  %s\n", row.Reason)
				}
				if p, ok := reg.ByName(row.Name); ok {
					for _, err := range v.RuleErrors(p) {
						printWarning(out, err.Error())
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
