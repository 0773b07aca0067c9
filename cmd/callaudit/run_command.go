package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"callaudit/internal/audit"
	"callaudit/internal/config"
	"callaudit/internal/rubric"
	"callaudit/internal/services"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var rubricPath string
	var checkOnly bool

	cmd := &cobra.Command{
		Use:   "run [case-ref...]",
		Short: "Audit one or more cases against a rubric",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *audit.Store) error {
				if err := cfg.RequireOracle(); err != nil {
					return err
				}
				logger, err := ctx.newLogger(cfg)
				if err != nil {
					return err
				}
				runner := ctx.newRunner(cfg, store, logger)

				if checkOnly {
					if err := runner.HealthCheck(cmd.Context()); err != nil {
						return fmt.Errorf("oracle health check: %w", err)
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Oracle reachable")
					return nil
				}

				if len(args) == 0 {
					return errors.New("at least one case reference is required")
				}
				if err := cfg.RequireCRM(); err != nil {
					return err
				}
				rub, err := rubric.LoadFile(strings.TrimSpace(rubricPath))
				if err != nil {
					return err
				}

				// One pipeline run at a time per data directory.
				lock := flock.New(cfg.LockPath())
				locked, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("acquire run lock: %w", err)
				}
				if !locked {
					return fmt.Errorf("another audit run holds the lock at %s", cfg.LockPath())
				}
				defer func() { _ = lock.Unlock() }()

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				var failures int
				for _, caseRef := range args {
					auditID, err := runner.Run(cmd.Context(), caseRef, rub)
					if err != nil {
						if services.IsSkip(err) {
							fmt.Fprintf(out, "%s: skipped (%v)\n", caseRef, err)
							continue
						}
						failures++
						fmt.Fprintf(out, "%s: failed (%v)\n", caseRef, err)
						continue
					}
					completed, err := store.GetByID(cmd.Context(), auditID)
					if err != nil {
						return err
					}
					if completed == nil {
						return fmt.Errorf("audit %s vanished after run", auditID)
					}
					fmt.Fprintf(out, "%s: %s %s (critical %d/%d) audit %s\n",
						caseRef,
						renderNiveau(completed.Niveau, colorize),
						formatScore(completed),
						completed.CriticalPassed, completed.CriticalTotal,
						completed.ID,
					)
				}
				if failures > 0 {
					return fmt.Errorf("%d of %d case(s) failed", failures, len(args))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&rubricPath, "rubric", "r", "", "Path to the rubric JSON file")
	cmd.Flags().BoolVar(&checkOnly, "check", false, "Verify oracle connectivity and exit")
	return cmd
}
