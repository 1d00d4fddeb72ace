package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// rootCtx is canceled on SIGINT/SIGTERM so the run halts after the current
// pull request's decision, never mid-decision.
var rootCtx context.Context

func main() {
	var stop context.CancelFunc
	rootCtx, stop = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
