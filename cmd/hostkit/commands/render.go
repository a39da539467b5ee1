package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/openfroyo/hostkit/pkg/engine"
)

func newRenderCommand() *cobra.Command {
	var (
		outDir string
		only   []string
	)

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render the generated files for review",
		Long: `Render every file hostkit would write, without touching the host.

Without --out the files are printed to stdout, each preceded by a header
with its target path, owner and mode. With --out each file is written
under DIR at its target path, e.g. DIR/etc/nginx/sites-available/<app>.

The env file contains the database password; handle the output with care.`,
		Example: `  # Print everything
  hostkit render --config hostkit.yaml

  # Write the nginx site and the backup script into ./review
  hostkit render --out review --only nginx-site,backup-script`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			format, err := engine.ParseFormat(outputFormat)
			if err != nil {
				return err
			}

			s, err := loadSession(cmd, "render", true)
			if err != nil {
				return err
			}

			files := s.registry.Files()
			if len(only) > 0 {
				keep := make(map[string]bool, len(only))
				for _, name := range only {
					if _, ok := s.catalog.Get(name); !ok {
						return engine.NewValidationError(fmt.Sprintf("unknown template %q", name), nil)
					}
					keep[name] = true
				}
				filtered := files[:0]
				for _, f := range files {
					if keep[f.Name] {
						filtered = append(filtered, f)
					}
				}
				files = filtered
			}

			w := cmd.OutOrStdout()
			if outDir == "" {
				if ok, err := writeStructured(w, format, files); ok {
					return err
				}
				for _, f := range files {
					printHeader(w, "# %s (%s, %04o)", f.Path, f.Owner, f.Mode.Perm())
					fmt.Fprint(w, f.Content)
					fmt.Fprintln(w)
				}
				return nil
			}

			for _, f := range files {
				dest := filepath.Join(outDir, filepath.FromSlash(f.Path))
				if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
					return fmt.Errorf("failed to create directory for %s: %w", dest, err)
				}
				if err := os.WriteFile(dest, []byte(f.Content), f.Mode.Perm()); err != nil {
					return fmt.Errorf("failed to write %s: %w", dest, err)
				}
				// WriteFile keeps the mode of an existing file.
				if err := os.Chmod(dest, f.Mode.Perm()); err != nil {
					return fmt.Errorf("failed to chmod %s: %w", dest, err)
				}
				fmt.Fprintf(w, "%s -> %s\n", f.Name, dest)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&outDir, "out", "", "write files under this directory instead of stdout")
	cmd.Flags().StringSliceVar(&only, "only", nil, "render only these templates")

	return cmd
}
