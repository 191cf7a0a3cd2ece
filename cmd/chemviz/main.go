package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"chemviz-client-go/internal/bootstrap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := bootstrap.Run(ctx, os.Args[1:], bootstrap.IO{})
	stop()
	os.Exit(code)
}
