package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <connection>",
		Short: "Show the artifact branch of a GitHub-hosted remote",
		Args:  cobra.ExactArgs(1),
		RunE:  runInspect,
	}
}

func runInspect(cmd *cobra.Command, args []string) error {
	runner, err := loadRunner(cmd)
	if err != nil {
		return err
	}

	info, err := runner.Inspect(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	w := cmd.OutOrStdout()
	if !info.Exists {
		_, _ = fmt.Fprintf(w, "%s/%s: branch %s does not exist yet (default branch %s)\n",
			info.Owner, info.Repo, info.Branch, info.DefaultBranch)
		return nil
	}

	protected := ""
	if info.Protected {
		protected = " (protected)"
	}
	_, _ = fmt.Fprintf(w, "%s/%s: branch %s at %s%s\n", info.Owner, info.Repo, info.Branch, info.SHA, protected)
	return nil
}
