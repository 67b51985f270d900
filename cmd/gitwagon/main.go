package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// Set via -ldflags at build time.
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "gitwagon: %v\n", err)
		stop()
		os.Exit(1)
	}
}
