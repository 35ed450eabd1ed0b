package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yungbote/trackflow-backend/internal/app"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init app: %v\n", err)
		os.Exit(1)
	}
	defer a.Close()

	a.Log.Info("TrackFlow starting", "run_server", a.Cfg.RunServer, "run_worker", a.Cfg.RunWorker)
	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		a.Log.Error("TrackFlow stopped with error", "error", err)
		a.Close()
		os.Exit(1)
	}
	a.Log.Info("TrackFlow stopped")
}
