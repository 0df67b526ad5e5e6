package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
)

func main() {
	if err := execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// execute runs the root command and closes the result store whether or not
// the command succeeded.
func execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	defer closeStore()
	return rootCmd.ExecuteContext(ctx)
}
