package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hostkit/pkg/engine"
)

// stepOutput describes one registered step.
type stepOutput struct {
	ID          string   `json:"id" yaml:"id"`
	Description string   `json:"description" yaml:"description"`
	DependsOn   []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
}

func newStepsCommand() *cobra.Command {
	var dot bool

	cmd := &cobra.Command{
		Use:   "steps",
		Short: "List the provisioning steps",
		Long: `List the provisioning steps in the order they run, with their
dependencies. --dot prints the dependency graph for Graphviz.`,
		Example: `  hostkit steps
  hostkit steps --dot | dot -Tsvg > steps.svg`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := engine.ParseFormat(outputFormat)
			if err != nil {
				return err
			}

			s, err := loadSession(cmd, "steps", true)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if dot {
				graph, err := engine.Graph(s.registry.Steps())
				if err != nil {
					return err
				}
				fmt.Fprint(w, graph)
				return nil
			}

			ordered, err := engine.NewDAGBuilder().Order(s.registry.Steps())
			if err != nil {
				return err
			}
			out := make([]stepOutput, 0, len(ordered))
			for _, step := range ordered {
				out = append(out, stepOutput{ID: step.ID, Description: step.Description, DependsOn: step.DependsOn})
			}

			if ok, err := writeStructured(w, format, out); ok {
				return err
			}
			width := 0
			for _, step := range out {
				width = max(width, len(step.ID))
			}
			for i, step := range out {
				deps := ""
				if len(step.DependsOn) > 0 {
					deps = paint(dimStyle, " (after "+strings.Join(step.DependsOn, ", ")+")")
				}
				fmt.Fprintf(w, "%2d. %-*s  %s%s\n", i+1, width, step.ID, step.Description, deps)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dot, "dot", false, "print the dependency graph in DOT format")

	return cmd
}
