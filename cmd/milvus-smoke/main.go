// Package main provides the milvus-smoke CLI.
//
// Usage:
//
//	milvus-smoke [flags]
//
// It connects to a Milvus endpoint, creates a uniquely named collection,
// inserts random vectors, flushes, builds an index, loads, searches, queries
// and releases the collection. Exit status is 0 when every step passed and 1
// otherwise.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"

	"github.com/mmga-lab/milvus-smoke/cmd/milvus-smoke/commands"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := commands.Execute(ctx)
	stop()

	if err != nil {
		// a failed run has already printed its own report
		if !errors.Is(err, commands.ErrFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}
