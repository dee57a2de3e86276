// Command relgraph synthesizes session APIs from declarative models and
// initializes databases.
//
// Usage:
//
//	relgraph [--config relgraph.yaml] <command>
//
// Commands:
//
//	generate   - write the typed session wrapper (--watch, --check)
//	init       - create the tables and load the seed data
//	inspect    - list entities, edges and operations
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
