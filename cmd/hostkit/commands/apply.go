package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/hostkit/pkg/engine"
	"github.com/openfroyo/hostkit/pkg/stores"
)

func newApplyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply",
		Short: "Provision the target host",
		Long: `Provision the target host.

This command:
  - Loads and validates the configuration, policies and templates
  - Probes the host for what is already in place
  - Runs every step in dependency order, skipping satisfied ones
  - Stops at the first failing step
  - Prints a report with the manual follow-ups
  - Journals the run and writes metrics if configured`,
		Example: `  # Provision this machine
  sudo hostkit apply --config hostkit.yaml

  # Provision a remote VPS over SSH
  hostkit apply --target ssh://deploy@203.0.113.7 --identity ~/.ssh/id_ed25519

  # Machine-readable report
  sudo hostkit apply -o json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runApply(cmd)
		},
	}

	return cmd
}

func runApply(cmd *cobra.Command) error {
	ctx := cmd.Context()

	format, err := engine.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	s, err := loadSession(cmd, "apply", false)
	if err != nil {
		return err
	}

	h, err := openTarget(true)
	if err != nil {
		return err
	}
	defer h.Close()

	tel, err := newTelemetry(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.Warn().Err(err).Msg("Failed to flush telemetry")
		}
	}()
	tel.Metrics.RecordPolicyFindings("warning", len(s.policy.Warnings))

	observers := []engine.Observer{tel.Observer()}
	var journal *stores.Journal
	if store := openJournal(ctx); store != nil {
		defer store.Close()
		journal = stores.NewJournal(store, targetLabel(), s.logger)
		observers = append(observers, journal)
	}

	log.Info().Str("host", h.Name()).Str("app", s.cfg.App.Name).Msg("Probing host")
	state, err := discover(ctx, s, h)
	if err != nil {
		return err
	}

	exec := engine.NewExecutor(s.logger,
		engine.WithObservers(observers...),
		engine.WithManualSteps(s.registry.ManualSteps()),
	)
	report, err := exec.Run(ctx, s.registry.Steps(), h, state)
	if err != nil {
		return err
	}

	if err := report.Write(cmd.OutOrStdout(), engine.FormatOptions{Format: format, Color: colorOutput()}); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if journal != nil {
		if err := journal.Err(); err != nil {
			log.Warn().Err(err).Msg("Run was not fully journaled")
		}
	}

	if !report.Succeeded() {
		return fmt.Errorf("%w: %v", ErrRunAborted, report.Err())
	}
	return nil
}
