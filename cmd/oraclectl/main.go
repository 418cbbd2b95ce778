// Command oraclectl is the operator CLI for the oracle resolver: key
// encryption, one-shot resolutions, schema migrations, directory
// reconciliation, archive listings, the audit trail and read-only reports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "oraclectl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
