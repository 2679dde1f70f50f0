package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/grovetools/relay/cli"
	"github.com/grovetools/relay/cmd"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := cmd.NewRootCmd()
	if executed, err := root.ExecuteContextC(ctx); err != nil {
		cli.NewErrorHandler(os.Stderr, cli.GetOptions(executed).Verbose).Handle(err)
		stop()
		os.Exit(1)
	}
}
