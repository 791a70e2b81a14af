package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/bassista/go_lmsync/internal/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		logger.WithComponent("main").Error(err)
		os.Exit(exitCode(err))
	}
}
