package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <connection> <src-file> <dest-path>",
		Short: "Publish a file as an artifact",
		Args:  cobra.ExactArgs(3),
		RunE:  runPut,
	}
}

func runPut(cmd *cobra.Command, args []string) error {
	runner, err := loadRunner(cmd)
	if err != nil {
		return err
	}

	res, err := runner.Put(cmd.Context(), args[0], args[1], args[2])
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Published %s to %s\n", args[2], res.Identity)
	return nil
}

func newPutDirCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put-dir <connection> <src-dir> <dest-path>",
		Short: "Publish a directory tree as artifacts",
		Args:  cobra.ExactArgs(3),
		RunE:  runPutDir,
	}
}

func runPutDir(cmd *cobra.Command, args []string) error {
	runner, err := loadRunner(cmd)
	if err != nil {
		return err
	}

	res, err := runner.PutDir(cmd.Context(), args[0], args[1], args[2])
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Published %s/ to %s\n", args[2], res.Identity)
	return nil
}
