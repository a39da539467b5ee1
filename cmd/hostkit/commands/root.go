package commands

import (
	"context"
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/hostkit/pkg/config"
)

var (
	// Global flags
	configPath    string
	envFiles      []string
	target        string
	outputFormat  string
	noColor       bool
	metricsFile   string
	journalPath   string
	identityFile  string
	knownHosts    string
	insecureHosts bool
	traceExporter string
	traceEndpoint string
	traceInsecure bool
	verbose       bool
	jsonOutput    bool

	buildVersion = "dev"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	buildVersion = version

	rootCmd := &cobra.Command{
		Use:   "hostkit",
		Short: "hostkit - declarative provisioning for Node.js hosts on Ubuntu",
		Long: `hostkit turns a fresh Ubuntu VPS into a production host for one Node.js
application: Node.js, PostgreSQL, nginx, PM2, fail2ban and ufw, an app user
and directories, config files, and backup, status and update scripts.

Every step checks the host first and only acts when something is missing,
so running it again is safe. The first failing step stops the run.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupCommandLogging()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&configPath, "config", "c", "", "config file (.cue, .yaml, .json or .toml)")
	flags.StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load before the environment (default: .env if present)")
	flags.StringVarP(&target, "target", "t", "local", "host to provision: local or ssh://user@host:port")
	flags.StringVarP(&outputFormat, "output", "o", "text", "output format: text, json or yaml")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after each run")
	flags.StringVar(&journalPath, "journal", defaultJournalPath(), "run journal database (empty disables journaling)")
	flags.StringVarP(&identityFile, "identity", "i", "", "SSH private key for ssh:// targets")
	flags.StringVar(&knownHosts, "known-hosts", "", "known_hosts file for ssh:// targets (default: ~/.ssh/known_hosts)")
	flags.BoolVar(&insecureHosts, "insecure-ignore-host-key", false, "accept any SSH host key")
	flags.StringVar(&traceExporter, "trace-exporter", "none", "trace exporter: none, stdout or otlp")
	flags.StringVar(&traceEndpoint, "trace-endpoint", "", "OTLP gRPC collector address")
	flags.BoolVar(&traceInsecure, "trace-insecure", false, "disable TLS for the OTLP collector")
	flags.BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	flags.BoolVar(&jsonOutput, "json", false, "log in JSON format")
	config.RegisterFlags(flags)

	rootCmd.AddCommand(newApplyCommand())
	rootCmd.AddCommand(newPlanCommand())
	rootCmd.AddCommand(newRenderCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newStepsCommand())
	rootCmd.AddCommand(newStatusCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newConfigCommand())
	rootCmd.AddCommand(newVersionCommand(version, commit, buildDate))

	return rootCmd
}

// setupCommandLogging applies --verbose, --json and --no-color to the
// global logger.
func setupCommandLogging() {
	if jsonOutput {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, NoColor: noColor || !isatty.IsTerminal(os.Stderr.Fd())})
	}
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// colorOutput reports whether stdout gets ANSI colors.
func colorOutput() bool {
	return !noColor && os.Getenv("NO_COLOR") == "" && isatty.IsTerminal(os.Stdout.Fd())
}
