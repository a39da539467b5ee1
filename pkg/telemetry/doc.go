// Package telemetry instruments provisioning runs.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry) and
// metrics (Prometheus). An Observer plugs all three into the engine
// executor:
//
//	tel, err := telemetry.New(ctx, telemetry.DefaultConfig())
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	exec := engine.NewExecutor(tel.Logger.Zerolog(), engine.WithObservers(tel.Observer()))
//
// Each run gets a hostkit.run span with one hostkit.step child per step.
// Spans go to stdout or to an OTLP gRPC collector; the none exporter
// still assigns trace IDs.
//
// Metrics live on a private registry. There is no HTTP endpoint: a
// one-shot CLI writes them to a file for the node_exporter textfile
// collector instead (MetricsConfig.TextfilePath).
//
// Secrets never go through this package. Log a config only through
// config.ProvisioningConfig.Redacted.
package telemetry
