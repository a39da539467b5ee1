package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hostkit/pkg/engine"
	"github.com/openfroyo/hostkit/pkg/policy"
)

// validateOutput is the structured form of a successful validation.
type validateOutput struct {
	Valid     bool               `json:"valid" yaml:"valid"`
	Steps     int                `json:"steps" yaml:"steps"`
	Templates []string           `json:"templates" yaml:"templates"`
	Overrides map[string]string  `json:"overrides,omitempty" yaml:"overrides,omitempty"`
	Policies  []string           `json:"policies" yaml:"policies"`
	Warnings  []policy.Violation `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

func newValidateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration, policies and templates",
		Long: `Validate the configuration without contacting any host.

This command:
  - Checks every configuration field
  - Evaluates the built-in and custom policies
  - Renders every template and checks the result parses
  - Verifies the step graph has no missing dependencies or cycles`,
		Example: `  hostkit validate --config hostkit.cue
  HOSTKIT_DATABASE_PASSWORD=... hostkit validate --env-file prod.env`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := engine.ParseFormat(outputFormat)
			if err != nil {
				return err
			}

			s, err := loadSession(cmd, "validate", true)
			if err != nil {
				return err
			}
			if _, err := engine.Graph(s.registry.Steps()); err != nil {
				return err
			}

			out := validateOutput{
				Valid:     true,
				Steps:     len(s.registry.Steps()),
				Templates: s.catalog.Names(),
				Policies:  s.policy.EvaluatedPolicies,
				Warnings:  s.policy.Warnings,
			}
			for _, name := range out.Templates {
				if file, ok := s.catalog.Overridden(name); ok {
					if out.Overrides == nil {
						out.Overrides = make(map[string]string)
					}
					out.Overrides[name] = file
				}
			}

			w := cmd.OutOrStdout()
			if ok, err := writeStructured(w, format, out); ok {
				return err
			}
			fmt.Fprintf(w, "%s %d steps, %d templates, %d policies\n",
				paint(okStyle, "Configuration is valid:"), out.Steps, len(out.Templates), len(out.Policies))
			for name, file := range out.Overrides {
				fmt.Fprintf(w, "  template %s overridden by %s\n", name, file)
			}
			for _, v := range out.Warnings {
				fmt.Fprintf(w, "  %s %s\n", paint(changeStyle, "warning:"), v)
			}
			return nil
		},
	}

	return cmd
}
