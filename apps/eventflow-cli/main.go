package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/command"
	"github.com/Z4phxr/eventflow-client/apps/eventflow-cli/internal/di"
	"github.com/Z4phxr/eventflow-client/pkg/config"
	"github.com/Z4phxr/eventflow-client/pkg/logger"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "eventflow: %v\n", err)
		if errors.Is(err, command.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run() error {
	// EVENTFLOW_CONFIG points at an env file; otherwise ./.env and the environment apply
	var (
		cfg *config.Config
		err error
	)
	if path := os.Getenv("EVENTFLOW_CONFIG"); path != "" {
		cfg, err = config.LoadWithPath(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log, err := logger.New(&logger.Config{
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
		Output:      cfg.Log.Output,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &command.App{}
	app.Connect = func(ctx context.Context) (*di.Container, error) {
		return di.NewContainer(ctx, &di.ContainerConfig{
			Config:    cfg,
			Log:       log,
			Navigator: app.Navigator(),
		})
	}

	err = app.Run(ctx, os.Args[1:])
	if ctx.Err() != nil && errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
