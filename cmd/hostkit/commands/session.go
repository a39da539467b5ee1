package commands

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/hostkit/pkg/config"
	"github.com/openfroyo/hostkit/pkg/engine"
	"github.com/openfroyo/hostkit/pkg/host"
	"github.com/openfroyo/hostkit/pkg/policy"
	"github.com/openfroyo/hostkit/pkg/steps"
	"github.com/openfroyo/hostkit/pkg/stores"
	"github.com/openfroyo/hostkit/pkg/telemetry"
	"github.com/openfroyo/hostkit/pkg/templates"
	"github.com/openfroyo/hostkit/pkg/transports/ssh"
)

// ErrRunAborted is returned when a step failed. The printed report
// carries the details.
var ErrRunAborted = errors.New("provisioning run aborted")

// session is a validated configuration with its step registry.
type session struct {
	cfg      *config.ProvisioningConfig
	catalog  *templates.Catalog
	registry *steps.Registry
	policy   *policy.Result
	logger   zerolog.Logger
}

// loadSession loads the configuration and runs every validation that
// precedes a run: field checks, policies and a dry render.
func loadSession(cmd *cobra.Command, operation string, dryRun bool) (*session, error) {
	ctx := cmd.Context()
	logger := log.Logger

	cfg, err := config.NewLoader(logger).Load(ctx, config.LoadOptions{
		File:     configPath,
		EnvFiles: envFiles,
		Flags:    cmd.Flags(),
	})
	if err != nil {
		return nil, engine.NewValidationError("failed to load configuration", err).WithOperation("config")
	}

	result, err := evaluatePolicies(ctx, cfg, policy.Context{Operation: operation, Target: target, DryRun: dryRun})
	if err != nil {
		return nil, err
	}

	catalog, err := templates.LoadCatalog(cfg.Templates.Dir)
	if err != nil {
		return nil, engine.NewValidationError("failed to load templates", err).WithOperation("templates")
	}
	registry, err := steps.NewRegistry(cfg, catalog)
	if err != nil {
		return nil, engine.NewValidationError("invalid configuration", err).WithOperation("render")
	}

	return &session{
		cfg:      cfg,
		catalog:  catalog,
		registry: registry,
		policy:   result,
		logger:   logger,
	}, nil
}

func evaluatePolicies(ctx context.Context, cfg *config.ProvisioningConfig, pctx policy.Context) (*policy.Result, error) {
	pe, err := policy.NewEngine(log.Logger)
	if err != nil {
		return nil, engine.NewInternalError("failed to start policy engine", err)
	}
	if cfg.Policy.Dir != "" {
		if err := pe.LoadPolicies(ctx, []string{cfg.Policy.Dir}); err != nil {
			return nil, engine.NewValidationError("failed to load policies", err).WithOperation("policy")
		}
	}

	result, err := pe.Evaluate(ctx, cfg, pctx)
	if err != nil {
		return nil, engine.NewInternalError("policy evaluation failed", err).WithOperation("policy")
	}
	for _, w := range result.Warnings {
		log.Warn().Str("policy", w.Policy).Str("key", w.Key).Msg(w.Message)
	}
	if err := result.Err(); err != nil {
		return result, err
	}
	return result, nil
}

// openTarget connects to --target. Local runs that change the machine
// must be root.
func openTarget(requireRoot bool) (host.Host, error) {
	logger := log.Logger

	if target == "" || target == "local" {
		if requireRoot && os.Geteuid() != 0 {
			return nil, engine.NewValidationError("provisioning the local machine requires root; re-run with sudo", nil).
				WithOperation("target")
		}
		return host.NewLocal(logger), nil
	}

	if !strings.HasPrefix(target, "ssh://") {
		return nil, engine.NewValidationError(fmt.Sprintf("unknown target %q (want local or ssh://user@host)", target), nil).
			WithOperation("target")
	}

	sshCfg, err := ssh.ParseTarget(target)
	if err != nil {
		return nil, engine.NewValidationError("invalid target", err).WithOperation("target")
	}
	if identityFile != "" {
		sshCfg.AuthMethod = ssh.AuthMethodKey
		sshCfg.PrivateKeyPath = identityFile
	} else if sshCfg.AuthMethod == ssh.AuthMethodKey && os.Getenv("SSH_AUTH_SOCK") != "" {
		sshCfg.AuthMethod = ssh.AuthMethodAgent
	}
	if knownHosts != "" {
		sshCfg.KnownHostsPath = knownHosts
	}
	if insecureHosts {
		sshCfg.StrictHostKeyChecking = false
	}

	client, err := ssh.NewSSHClient(sshCfg)
	if err != nil {
		return nil, engine.NewValidationError("invalid SSH configuration", err).WithOperation("target")
	}
	return host.NewRemote(client, logger), nil
}

// discover probes h for everything the registry's steps check.
func discover(ctx context.Context, s *session, h host.Host) (host.State, error) {
	st, err := host.NewDiscoverer(s.logger).Discover(ctx, h, s.registry.Probe())
	if err != nil {
		return host.State{}, engine.NewHostError("host discovery failed", err).WithCode(engine.ErrCodeDiscovery)
	}
	return st, nil
}

// newTelemetry builds logging, tracing and metrics from the global flags.
func newTelemetry(ctx context.Context) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = buildVersion
	cfg.Logging.NoColor = noColor
	if jsonOutput {
		cfg.Logging.Format = "json"
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}
	cfg.Tracing.Exporter = traceExporter
	cfg.Tracing.Endpoint = traceEndpoint
	cfg.Tracing.Insecure = traceInsecure
	cfg.Metrics.TextfilePath = metricsFile

	tel, err := telemetry.New(ctx, cfg)
	if err != nil {
		return nil, engine.NewValidationError("invalid telemetry settings", err).WithOperation("telemetry")
	}
	return tel, nil
}

// openJournal opens the run journal. A journal that cannot be opened is
// reported and skipped.
func openJournal(ctx context.Context) *stores.SQLiteStore {
	if journalPath == "" {
		return nil
	}
	store, err := stores.Open(ctx, journalPath)
	if err != nil {
		log.Warn().Err(err).Str("path", journalPath).Msg("Run journal unavailable; continuing without it")
		return nil
	}
	return store
}

// defaultJournalPath is the system journal for root and a per-user one
// otherwise.
func defaultJournalPath() string {
	if os.Geteuid() == 0 {
		return stores.DefaultPath
	}
	if dir := os.Getenv("XDG_STATE_HOME"); dir != "" {
		return filepath.Join(dir, "hostkit", "journal.db")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "state", "hostkit", "journal.db")
}

// targetLabel names the target in the journal.
func targetLabel() string {
	if target == "" {
		return "local"
	}
	if sshCfg, err := ssh.ParseTarget(target); err == nil {
		return fmt.Sprintf("ssh://%s@%s", sshCfg.User, sshCfg.Address())
	}
	return target
}
