package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hostkit/pkg/engine"
	"github.com/openfroyo/hostkit/pkg/stores"
)

// historyEntry is one journaled run, with its steps when requested.
type historyEntry struct {
	stores.Run `yaml:",inline"`
	Steps       []*stores.StepRecord `json:"steps,omitempty" yaml:"steps,omitempty"`
}

func newHistoryCommand() *cobra.Command {
	var (
		limit     int
		showSteps bool
		prune     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List journaled provisioning runs",
		Long: `List provisioning runs recorded in the run journal, newest first.
--steps includes every step result; --prune deletes runs older than the
given age first.`,
		Example: `  hostkit history --limit 5
  hostkit history --steps -o json
  hostkit history --prune 2160h`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			format, err := engine.ParseFormat(outputFormat)
			if err != nil {
				return err
			}
			if journalPath == "" {
				return engine.NewValidationError("journaling is disabled (--journal is empty)", nil)
			}

			store, err := stores.Open(ctx, journalPath)
			if err != nil {
				return err
			}
			defer store.Close()

			w := cmd.OutOrStdout()
			if prune > 0 {
				n, err := store.PruneBefore(ctx, time.Now().Add(-prune))
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Pruned %d runs older than %s\n", n, prune)
			}

			runs, err := store.ListRuns(ctx, limit, 0)
			if err != nil {
				return err
			}
			entries := make([]historyEntry, 0, len(runs))
			for _, run := range runs {
				entry := historyEntry{Run: *run}
				if showSteps {
					if entry.Steps, err = store.ListStepResults(ctx, run.ID); err != nil {
						return err
					}
				}
				entries = append(entries, entry)
			}

			if ok, err := writeStructured(w, format, entries); ok {
				return err
			}
			if len(entries) == 0 {
				fmt.Fprintln(w, "No journaled runs.")
				return nil
			}
			for _, e := range entries {
				style := okStyle
				if e.Status != engine.RunStatusCompleted {
					style = badStyle
				}
				fmt.Fprintf(w, "%s  %-9s  %-20s  %s  applied=%d skipped=%d failed=%d\n",
					e.StartedAt.Local().Format("2006-01-02 15:04:05"),
					paint(style, string(e.Status)),
					e.Host,
					paint(dimStyle, e.ID),
					e.Applied, e.Skipped, e.Failed)
				if e.FailedStep != nil {
					fmt.Fprintf(w, "    failed at %s\n", *e.FailedStep)
				}
				for _, step := range e.Steps {
					fmt.Fprintf(w, "    %-8s %s (%s)\n", step.Outcome, step.StepID, step.Duration)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of runs to show")
	cmd.Flags().BoolVar(&showSteps, "steps", false, "include step results")
	cmd.Flags().DurationVar(&prune, "prune", 0, "delete runs older than this age first")

	return cmd
}
