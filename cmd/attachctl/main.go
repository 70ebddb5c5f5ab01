package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	apperrors "github.com/lk2023060901/attachment-store/internal/pkg/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := newRootCommand().ExecuteContext(ctx)
	stop()

	if err != nil {
		os.Exit(apperrors.ExitCode(err))
	}
}
