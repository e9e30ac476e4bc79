package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"
)

// scheduleAutomation keeps the process alive and replays the automation on
// the given cron expression until interrupted.
func scheduleAutomation(ctx context.Context, command *cli.Command, logger *slog.Logger) error {
	name := command.Args().First()
	if name == "" {
		return errors.New("automation name is required")
	}

	rt, err := newRuntime(ctx, command, logger)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	scheduler := cron.New()

	_, err = scheduler.AddFunc(command.String("cron"), func() {
		logger.Info("Scheduled run starting", "automation", name)

		if err := rt.queue.Load(ctx, name); err != nil {
			logger.Error("Failed to load automation", "automation", name, "error", err)

			return
		}

		if err := rt.queue.RunAll(ctx); err != nil {
			logger.Error("Scheduled run failed", "automation", name, "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", command.String("cron"), err)
	}

	logger.InfoContext(ctx, "Scheduler started", "automation", name, "cron", command.String("cron"))
	scheduler.Start()

	<-ctx.Done()

	logger.Info("Shutting down scheduler")
	<-scheduler.Stop().Done()

	return nil
}
