package commands

import (
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/hostkit/pkg/config"
	"github.com/openfroyo/hostkit/pkg/engine"
)

// planOutput is the structured form of a dry run.
type planOutput struct {
	Host        string               `json:"host" yaml:"host"`
	Pending     int                  `json:"pending" yaml:"pending"`
	Provisional int                  `json:"provisional" yaml:"provisional"`
	Steps       []engine.PlannedStep `json:"steps" yaml:"steps"`
}

func newPlanCommand() *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show which steps would run, without changing the host",
		Long: `Probe the target host and evaluate every step's precondition.

Nothing is changed. Preconditions are evaluated against the host as it is
now, so a step that depends on a pending step may be reported as pending
too even if applying its dependency would satisfy it.

With --watch the plan is recomputed whenever the config file, the
templates directory or the policy directory changes.`,
		Example: `  # Dry run against this machine
  hostkit plan --config hostkit.yaml

  # Keep re-planning while editing the configuration
  hostkit plan --config hostkit.cue --watch`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !watch {
				return runPlan(cmd)
			}
			return watchPlan(cmd)
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "re-plan when configuration files change")

	return cmd
}

func runPlan(cmd *cobra.Command) error {
	format, err := engine.ParseFormat(outputFormat)
	if err != nil {
		return err
	}

	s, err := loadSession(cmd, "plan", true)
	if err != nil {
		return err
	}

	h, err := openTarget(false)
	if err != nil {
		return err
	}
	defer h.Close()

	state, err := discover(cmd.Context(), s, h)
	if err != nil {
		return err
	}

	planned, err := engine.NewExecutor(s.logger).Plan(s.registry.Steps(), state)
	if err != nil {
		return err
	}

	out := planOutput{Host: h.Name(), Steps: planned}
	for _, p := range planned {
		if p.Check == engine.CheckNeedsApply {
			out.Pending++
		}
		if p.Provisional {
			out.Provisional++
		}
	}

	if ok, err := writeStructured(cmd.OutOrStdout(), format, out); ok {
		return err
	}
	writePlanText(cmd.OutOrStdout(), out)
	return nil
}

func writePlanText(w io.Writer, out planOutput) {
	printHeader(w, "Plan for %s: %d of %d steps pending", out.Host, out.Pending, len(out.Steps))
	fmt.Fprintln(w)

	width := 0
	for _, p := range out.Steps {
		width = max(width, len(p.StepID))
	}
	for _, p := range out.Steps {
		mark := paint(okStyle, "ok     ")
		switch {
		case p.Check == engine.CheckNeedsApply:
			mark = paint(changeStyle, "pending")
		case p.Provisional:
			mark = paint(okStyle, "ok*    ")
		}
		fmt.Fprintf(w, "  %s  %-*s  %s\n", mark, width, p.StepID, paint(dimStyle, p.Description))
	}

	if out.Provisional > 0 {
		fmt.Fprintln(w)
		fmt.Fprintf(w, "  * satisfied as of now; %d step(s) come after pending steps and are checked again during apply\n", out.Provisional)
	}
}

func watchPlan(cmd *cobra.Command) error {
	ctx := cmd.Context()

	replan := func() {
		if err := runPlan(cmd); err != nil {
			log.Error().Err(err).Msg("Plan failed")
		}
	}
	replan()

	var paths []string
	if configPath != "" {
		paths = append(paths, configPath)
	}
	// Directories come from the loaded configuration when it is valid.
	if s, err := loadSession(cmd, "plan", true); err == nil {
		for _, dir := range []string{s.cfg.Templates.Dir, s.cfg.Policy.Dir} {
			if dir != "" {
				paths = append(paths, dir)
			}
		}
	}
	if len(paths) == 0 {
		return fmt.Errorf("--watch needs --config, a templates directory or a policy directory")
	}

	log.Info().Strs("paths", paths).Msg("Watching for changes (Ctrl-C to stop)")
	return config.NewWatcher(log.Logger, paths...).Watch(ctx, replan)
}
