package main

import (
	"context"
	"os"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"

	"github.com/comfychain/comfychain/pkg/cmd"
	"github.com/comfychain/comfychain/pkg/comfy"
	"github.com/comfychain/comfychain/pkg/eventbus"
	"github.com/comfychain/comfychain/pkg/log"
	"github.com/comfychain/comfychain/pkg/queue"
)

const defaultPort = 9191

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "comfychain-api",
		Usage:                 "Serve the queue and workflow management API",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
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
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing ComfyChain API")

			store, err := cmd.NewStore(command.String("store-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close store", "error", err)
				}
			}()

			comfyURL := command.String("comfy-url")

			clientID := command.String("client-id")
			if clientID == "" {
				clientID = uuid.New().String()
			}

			client := comfy.NewClient(comfyURL, logger)

			channel, err := comfy.NewChannel(comfyURL, clientID, logger)
			if err != nil {
				return err
			}
			defer channel.Close()

			go channel.Run(ctx)

			bus := eventbus.NewInProcessEventBus()
			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			q := queue.New(queue.Config{
				Backend:  client,
				Events:   channel,
				Store:    store,
				Bus:      bus,
				ClientID: clientID,
				Logger:   logger,
			})

			api := NewAPI(logger, store, q, client)

			return api.Start(command.Int("port"))
		},
	}

	if err := command.Run(context.Background(), os.Args); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
