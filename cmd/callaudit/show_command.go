package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"callaudit/internal/audit"
	"callaudit/internal/config"
	"callaudit/internal/services"
)

func newShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	var withPoints bool

	cmd := &cobra.Command{
		Use:   "show <audit-id>",
		Short: "Display one audit with its step verdicts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *audit.Store) error {
				a, err := resolveAudit(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				results, err := store.StepResults(cmd.Context(), a.ID)
				if err != nil {
					return err
				}

				if asJSON {
					return writeJSON(cmd, struct {
						Audit *audit.Audit        `json:"audit"`
						Steps []*audit.StepResult `json:"steps"`
					}{a, results})
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				stats := a.Statistics()

				fmt.Fprintf(out, "Audit:     %s\n", a.ID)
				fmt.Fprintf(out, "Case:      %s", a.CaseRef)
				if a.CaseName != "" {
					fmt.Fprintf(out, " (%s)", a.CaseName)
				}
				fmt.Fprintln(out)
				if a.CaseGroup != "" {
					fmt.Fprintf(out, "Group:     %s\n", a.CaseGroup)
				}
				fmt.Fprintf(out, "Rubric:    %s\n", a.RubricName)
				fmt.Fprintf(out, "Status:    %s\n", a.Status)
				if a.Status == audit.StatusCompleted {
					fmt.Fprintf(out, "Niveau:    %s\n", renderNiveau(a.Niveau, colorize))
					fmt.Fprintf(out, "Score:     %s (weight %.1f of %.1f)\n", formatScore(a), a.EarnedWeight, a.TotalWeight)
					fmt.Fprintf(out, "Critical:  %d/%d\n", a.CriticalPassed, a.CriticalTotal)
				}
				if a.ErrorMessage != "" {
					fmt.Fprintf(out, "Error:     %s\n", a.ErrorMessage)
				}
				fmt.Fprintf(out, "Started:   %s\n", formatTime(a.StartedAt))
				fmt.Fprintf(out, "Completed: %s\n", formatTimePtr(a.CompletedAt))
				fmt.Fprintf(out, "Latest:    %s\n", yesNo(a.IsLatest))
				fmt.Fprintf(out, "Steps:     %d ok, %d failed, %d tokens, %d ms\n",
					stats.Successful, stats.Failed, stats.TotalTokens, stats.DurationMS)

				if len(results) == 0 {
					return nil
				}
				rows := make([][]string, 0, len(results))
				for _, result := range results {
					verdict := "non conforme"
					if result.Conforme {
						verdict = "conforme"
					}
					if result.Failed {
						verdict = "failed"
					}
					trail, _ := result.ReviewTrail()
					rows = append(rows, []string{
						fmt.Sprintf("%d", result.StepPosition),
						result.StepName,
						verdict,
						formatStepScore(result.Score),
						result.NiveauConformite,
						fmt.Sprintf("%d", len(trail)),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"#", "Step", "Verdict", "Score", "Niveau", "Reviews"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignLeft, alignRight},
				))

				if !withPoints {
					return nil
				}
				for _, result := range results {
					points, err := result.ControlPoints()
					if err != nil {
						return fmt.Errorf("decode control points for step %d: %w", result.StepPosition, err)
					}
					if len(points) == 0 {
						continue
					}
					fmt.Fprintf(out, "\nStep %d: %s\n", result.StepPosition, result.StepName)
					for i, point := range points {
						fmt.Fprintf(out, "  %d. [%s] %s\n", i+1, point.Statut, point.Point)
						if point.Commentaire != "" {
							fmt.Fprintf(out, "     %s\n", point.Commentaire)
						}
						for _, citation := range point.Citations {
							fmt.Fprintf(out, "     > enregistrement %d @ %.1fs (%s %s) %q\n",
								citation.RecordingIndex, citation.Timestamp,
								citation.RecordingDate, citation.RecordingTime,
								citation.Excerpt)
						}
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	cmd.Flags().BoolVar(&withPoints, "points", false, "Include control points and citations")
	return cmd
}

// resolveAudit accepts a full audit ID or an unambiguous prefix.
func resolveAudit(ctx context.Context, store *audit.Store, ref string) (*audit.Audit, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, services.Wrap(services.ErrValidation, "cli", "show", "audit id is required", nil)
	}
	a, err := store.GetByID(ctx, ref)
	if err != nil {
		return nil, err
	}
	if a != nil {
		return a, nil
	}

	audits, err := store.List(ctx)
	if err != nil {
		return nil, err
	}
	var match *audit.Audit
	for _, candidate := range audits {
		if strings.HasPrefix(candidate.ID, ref) {
			if match != nil {
				return nil, fmt.Errorf("audit id prefix %q is ambiguous", ref)
			}
			match = candidate
		}
	}
	if match == nil {
		return nil, services.Wrap(services.ErrNotFound, "cli", "show",
			fmt.Sprintf("no audit matches %q", ref), nil)
	}
	return match, nil
}
