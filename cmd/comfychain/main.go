// Package main provides the ComfyChain command line interface.
package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/comfychain/comfychain/pkg/log"
)

func main() {
	logger := log.WithModule("cli")

	cmd := &cli.Command{
		Name:                  "comfychain",
		Usage:                 "Chain and run image generation workflows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "store-url",
				Usage:   "Document store URL (directory path or redis://)",
				Value:   "./data",
				Sources: cli.EnvVars("STORE_URL"),
			},
			&cli.StringFlag{
				Name:    "comfy-url",
				Usage:   "Base URL of the generation backend",
				Value:   "http://127.0.0.1:8188",
				Sources: cli.EnvVars("COMFY_URL"),
			},
			&cli.StringFlag{
				Name:    "client-id",
				Usage:   "Session identifier presented to the backend (random when empty)",
				Sources: cli.EnvVars("CLIENT_ID"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OTLP trace export",
				Sources: cli.EnvVars("COMFYCHAIN_TRACING"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Aliases:   []string{"r"},
				Usage:     "Run a saved automation from start to finish",
				ArgsUsage: "<automation-name>",
				Action: func(ctx context.Context, command *cli.Command) error {
					return runAutomation(ctx, command, logger)
				},
			},
			{
				Name:      "step",
				Aliases:   []string{"s"},
				Usage:     "Run a single workflow once",
				ArgsUsage: "<workflow-name>",
				Action: func(ctx context.Context, command *cli.Command) error {
					return runSingle(ctx, command, logger)
				},
			},
			{
				Name:    "list",
				Aliases: []string{"ls"},
				Usage:   "List stored workflows and automations",
				Action: func(ctx context.Context, command *cli.Command) error {
					return listDocuments(ctx, command)
				},
			},
			{
				Name:      "schedule",
				Usage:     "Run an automation on a cron schedule",
				ArgsUsage: "<automation-name>",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "cron",
						Usage:    "Cron expression, e.g. \"0 3 * * *\"",
						Required: true,
						Sources:  cli.EnvVars("COMFYCHAIN_CRON"),
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					return scheduleAutomation(ctx, command, logger)
				},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
