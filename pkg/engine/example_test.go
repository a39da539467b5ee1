package engine_test

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openfroyo/hostkit/pkg/engine"
	"github.com/openfroyo/hostkit/pkg/host"
)

// Example demonstrates running two dependent steps twice. The second run
// finds both preconditions satisfied and changes nothing.
func Example_idempotentRun() {
	packageStep := engine.Step{
		ID:          "nginx",
		Description: "Install nginx",
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.HasPackages("nginx"))
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			if _, err := host.Exec(ctx, h, "apt-get", "install", "-y", "nginx"); err != nil {
				return st, err
			}
			st.Packages["nginx"] = "1.24.0"
			return st, nil
		},
	}
	siteStep := engine.Step{
		ID:          "nginx-site",
		Description: "Write the nginx site",
		DependsOn:   []string{"nginx"},
		Check: func(st *host.State) engine.CheckStatus {
			return engine.Satisfied(st.FileMatches("/etc/nginx/sites-available/app", "server {}\n"))
		},
		Apply: func(ctx context.Context, h host.Host, st host.State) (host.State, error) {
			if err := h.WriteFile(ctx, "/etc/nginx/sites-available/app", []byte("server {}\n"), 0o644); err != nil {
				return st, err
			}
			st.RecordFile("/etc/nginx/sites-available/app", "server {}\n", "root", 0o644)
			return st, nil
		},
	}

	sim := host.NewSimulated("web1")
	executor := engine.NewExecutor(zerolog.Nop())
	steps := []engine.Step{siteStep, packageStep}

	first, err := executor.Run(context.Background(), steps, sim, host.NewState())
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	for _, r := range first.Results {
		fmt.Printf("%s: %s\n", r.StepID, r.Outcome)
	}

	second, err := executor.Run(context.Background(), steps, sim, first.FinalState)
	if err != nil {
		fmt.Println("error:", err)
		return
	}
	fmt.Printf("second run: %s, %d applied, %d skipped\n", second.Status, second.Applied, second.Skipped)

	// Output:
	// nginx: applied
	// nginx-site: applied
	// second run: completed, 0 applied, 2 skipped
}
