package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	// Set up context with signal handling for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err := rootCmd.ExecuteContext(ctx)
	if cerr := shutdown(); cerr != nil {
		fmt.Fprintln(os.Stderr, "shutdown:", cerr)
	}
	if err != nil {
		os.Exit(1)
	}
}
