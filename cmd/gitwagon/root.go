package main

import (
	"github.com/spf13/cobra"

	"github.com/rancher/gitwagon/internal/app"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "gitwagon",
		Short:         "Publish and fetch build artifacts through a branch of a git repository",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.Bool("debug", false, "Log every git command and its output")
	flags.Bool("safe-checkout", false, "Wipe the working directory before pulling and after pushing")
	flags.Bool("skip-empty-commit", false, "Fail instead of publishing a commit without changes")
	flags.Bool("dry-run", false, "Log git commands without running them")
	flags.String("cache-dir", "", "Directory holding the per-remote working directories")

	cmd.AddCommand(
		newPutCmd(),
		newPutDirCmd(),
		newGetCmd(),
		newResolveCmd(),
		newInspectCmd(),
	)

	return cmd
}

// loadRunner builds the app runner from the environment, the optional
// config file and the persistent flags, in increasing precedence.
func loadRunner(cmd *cobra.Command) (*app.Runner, error) {
	cfg, err := app.LoadConfig()
	if err != nil {
		return nil, err
	}

	flags := cmd.Flags()
	for name, target := range map[string]*bool{
		"debug":             &cfg.Debug,
		"safe-checkout":     &cfg.SafeCheckout,
		"skip-empty-commit": &cfg.SkipEmptyCommit,
		"dry-run":           &cfg.DryRun,
	} {
		if flags.Changed(name) {
			v, err := flags.GetBool(name)
			if err != nil {
				return nil, err
			}
			*target = v
		}
	}
	if flags.Changed("cache-dir") {
		cfg.CacheDir, _ = flags.GetString("cache-dir")
	}

	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return app.NewRunner(cfg, cmd.ErrOrStderr())
}
