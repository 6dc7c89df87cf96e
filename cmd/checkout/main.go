package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/DanielPopoola/ficmart-checkout/internal/app"
	"go.uber.org/fx"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fxApp := fx.New(app.Module())

	if err := fxApp.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "failed to start checkout service: %v\n", err)
		os.Exit(1)
	}

	select {
	case <-ctx.Done():
	case <-fxApp.Done():
	}

	if err := fxApp.Stop(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "failed to stop checkout service: %v\n", err)
		os.Exit(1)
	}
}
