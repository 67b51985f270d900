package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <connection> <path> [<out-file>]",
		Short: "Fetch an artifact to a file or stdout",
		Args:  cobra.RangeArgs(2, 3),
		RunE:  runGet,
	}
}

func runGet(cmd *cobra.Command, args []string) error {
	runner, err := loadRunner(cmd)
	if err != nil {
		return err
	}

	var out io.Writer = cmd.OutOrStdout()
	if len(args) == 3 {
		f, err := os.Create(args[2])
		if err != nil {
			return fmt.Errorf("creating %s: %w", args[2], err)
		}
		defer f.Close()
		out = f
	}

	_, err = runner.Get(cmd.Context(), args[0], args[1], out)
	return err
}
