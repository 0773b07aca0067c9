package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"callaudit/internal/audit"
	"callaudit/internal/config"
)

func newReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Fail runs left in the running state by a dead process",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *audit.Store) error {
				cutoff := time.Now().Add(-time.Duration(cfg.Workflow.StuckRunningMinutes) * time.Minute)
				updated, err := store.MarkStuckFailed(cmd.Context(), cutoff)
				if err != nil {
					return err
				}
				if updated == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No stuck audits found")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Marked %d stuck audit(s) as failed\n", updated)
				return nil
			})
		},
	}
}

func newDeleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <audit-id>",
		Short: "Soft-delete an audit so it no longer appears in listings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *audit.Store) error {
				a, err := resolveAudit(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				deleted, err := store.SoftDelete(cmd.Context(), a.ID)
				if err != nil {
					return err
				}
				if !deleted {
					fmt.Fprintf(cmd.OutOrStdout(), "Audit %s was already deleted\n", shortID(a.ID))
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted audit %s\n", a.ID)
				return nil
			})
		},
	}
}

func newStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show audit counts by status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *audit.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				if len(stats) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No audits recorded")
					return nil
				}
				rows := make([][]string, 0, len(stats))
				for _, status := range []audit.Status{audit.StatusRunning, audit.StatusCompleted, audit.StatusFailed} {
					count, ok := stats[status]
					if !ok {
						continue
					}
					rows = append(rows, []string{string(status), fmt.Sprintf("%d", count)})
				}
				table := renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight})
				fmt.Fprintln(cmd.OutOrStdout(), table)
				return nil
			})
		},
	}
}
