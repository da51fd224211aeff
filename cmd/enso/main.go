// Command enso generates personalised certificates from PDF templates and
// manages the templates, style, history and data files they use.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	if err := newRootCmd(os.Stdin, os.Stdout).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "enso:", err)
		stop()
		os.Exit(1)
	}
}
