package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/okian/spinta/internal/coachcli"
	"github.com/okian/spinta/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		stop()
		os.Exit(1)
	}
	if err := coachcli.SetupLogging(cfg, os.Stderr); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		stop()
		os.Exit(1)
	}

	if err := coachcli.Run(ctx, cfg, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, coachcli.ErrUsage) {
			os.Stderr.WriteString("coach: " + err.Error() + "\n")
		}
		stop()
		os.Exit(1)
	}
}
