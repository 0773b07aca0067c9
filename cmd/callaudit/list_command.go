package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"callaudit/internal/audit"
	"callaudit/internal/config"
)

func newListCommand(ctx *commandContext) *cobra.Command {
	var caseRef string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List audits, most recent first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *audit.Store) error {
				var (
					audits []*audit.Audit
					err    error
				)
				if ref := strings.TrimSpace(caseRef); ref != "" {
					audits, err = store.ListByCase(cmd.Context(), ref)
				} else {
					audits, err = store.List(cmd.Context())
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, audits)
				}
				if len(audits) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No audits recorded")
					return nil
				}

				colorize := shouldColorize(cmd.OutOrStdout())
				rows := make([][]string, 0, len(audits))
				for _, a := range audits {
					rows = append(rows, []string{
						shortID(a.ID),
						a.CaseRef,
						a.RubricName,
						string(a.Status),
						renderNiveau(a.Niveau, colorize),
						formatScore(a),
						fmt.Sprintf("%d/%d", a.CriticalPassed, a.CriticalTotal),
						formatTime(a.StartedAt),
						yesNo(a.IsLatest),
					})
				}
				table := renderTable(
					[]string{"ID", "Case", "Rubric", "Status", "Niveau", "Score", "Critical", "Started", "Latest"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignLeft, alignLeft},
				)
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&caseRef, "case", "", "Only show audits for this case reference")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
