package commands

import (
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/hostkit/pkg/config"
	"github.com/openfroyo/hostkit/pkg/engine"
)

func newConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the effective configuration",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the merged configuration with secrets masked",
		Long: `Print the configuration after defaults, the config file, env files,
environment variables and flags have been merged. Secrets are masked.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := engine.ParseFormat(outputFormat)
			if err != nil {
				return err
			}
			if format == engine.FormatText {
				format = engine.FormatYAML
			}

			cfg, err := config.NewLoader(log.Logger).Load(cmd.Context(), config.LoadOptions{
				File:     configPath,
				EnvFiles: envFiles,
				Flags:    cmd.Flags(),
			})
			if err != nil {
				return engine.NewValidationError("failed to load configuration", err).WithOperation("config")
			}

			redacted := cfg.Redacted()
			_, err = writeStructured(cmd.OutOrStdout(), format, &redacted)
			return err
		},
	})

	return cmd
}
