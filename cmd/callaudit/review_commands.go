package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"callaudit/internal/audit"
	"callaudit/internal/config"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Record human review overrides on audit results",
	}

	reviewCmd.AddCommand(newReviewStepCommand(ctx))
	reviewCmd.AddCommand(newReviewPointCommand(ctx))

	return reviewCmd
}

func newReviewStepCommand(ctx *commandContext) *cobra.Command {
	var (
		conforme bool
		score    float64
		niveau   string
		by       string
		reason   string
	)

	cmd := &cobra.Command{
		Use:   "step <audit-id> <position>",
		Short: "Override a step verdict",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *audit.Store) error {
				a, err := resolveAudit(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				position, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid step position %q", args[1])
				}
				override, err := buildStepOverride(cmd, conforme, score, niveau, by, reason)
				if err != nil {
					return err
				}

				result, err := store.ReviewStep(cmd.Context(), a.ID, position, override)
				if err != nil {
					return err
				}
				trail, err := result.ReviewTrail()
				if err != nil {
					return err
				}
				verdict := "non conforme"
				if result.Conforme {
					verdict = "conforme"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Step %d of audit %s is now %s (score %s), review #%d recorded\n",
					position, shortID(a.ID), verdict, formatStepScore(result.Score), len(trail))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&conforme, "conforme", false, "New verdict for the step")
	cmd.Flags().Float64Var(&score, "score", 0, "New score for the step")
	cmd.Flags().StringVar(&niveau, "niveau", "", "New conformity level for the step")
	cmd.Flags().StringVar(&by, "by", "", "Reviewer identity")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the machine verdict is overridden")
	markReviewFlagsRequired(cmd)
	return cmd
}

func newReviewPointCommand(ctx *commandContext) *cobra.Command {
	var (
		statut      string
		commentaire string
		by          string
		reason      string
	)

	cmd := &cobra.Command{
		Use:   "point <audit-id> <position> <index>",
		Short: "Override one control point within a step",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *audit.Store) error {
				a, err := resolveAudit(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				position, err := strconv.Atoi(args[1])
				if err != nil {
					return fmt.Errorf("invalid step position %q", args[1])
				}
				index, err := strconv.Atoi(args[2])
				if err != nil {
					return fmt.Errorf("invalid control point index %q", args[2])
				}

				override := audit.ControlPointOverride{By: by, Reason: reason}
				if cmd.Flags().Changed("statut") {
					value := strings.ToUpper(strings.TrimSpace(statut))
					override.Statut = &value
				}
				if cmd.Flags().Changed("commentaire") {
					override.Commentaire = &commentaire
				}
				if override.Statut == nil && override.Commentaire == nil {
					return errors.New("at least one of --statut or --commentaire is required")
				}

				if _, err := store.ReviewControlPoint(cmd.Context(), a.ID, position, index, override); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Control point %d of step %d (audit %s) updated\n",
					index, position, shortID(a.ID))
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&statut, "statut", "", "New status for the control point")
	cmd.Flags().StringVar(&commentaire, "commentaire", "", "New comment for the control point")
	cmd.Flags().StringVar(&by, "by", "", "Reviewer identity")
	cmd.Flags().StringVar(&reason, "reason", "", "Why the machine verdict is overridden")
	markReviewFlagsRequired(cmd)
	return cmd
}

func buildStepOverride(cmd *cobra.Command, conforme bool, score float64, niveau, by, reason string) (audit.StepOverride, error) {
	override := audit.StepOverride{By: by, Reason: reason}
	if cmd.Flags().Changed("conforme") {
		override.Conforme = &conforme
	}
	if cmd.Flags().Changed("score") {
		if score < 0 {
			return audit.StepOverride{}, fmt.Errorf("score must not be negative, got %v", score)
		}
		override.Score = &score
	}
	if cmd.Flags().Changed("niveau") {
		value := strings.ToUpper(strings.TrimSpace(niveau))
		override.NiveauConformite = &value
	}
	if override.Conforme == nil && override.Score == nil && override.NiveauConformite == nil {
		return audit.StepOverride{}, errors.New("at least one of --conforme, --score, or --niveau is required")
	}
	return override, nil
}

func markReviewFlagsRequired(cmd *cobra.Command) {
	_ = cmd.MarkFlagRequired("by")
	_ = cmd.MarkFlagRequired("reason")
}
