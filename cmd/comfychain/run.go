package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/trace"

	"github.com/comfychain/comfychain/pkg/cmd"
	"github.com/comfychain/comfychain/pkg/comfy"
	"github.com/comfychain/comfychain/pkg/eventbus"
	"github.com/comfychain/comfychain/pkg/log"
	"github.com/comfychain/comfychain/pkg/models"
	"github.com/comfychain/comfychain/pkg/otelhelper"
	"github.com/comfychain/comfychain/pkg/persistence"
	"github.com/comfychain/comfychain/pkg/queue"
)

// logRenderer reports queue progress through the structured logger.
type logRenderer struct {
	logger *slog.Logger
}

func (r *logRenderer) QueueUpdated(steps []*models.Step) {
	r.logger.Info("Queue updated", "steps", len(steps))
}

func (r *logRenderer) StepUpdated(step *models.Step) {
	attrs := []any{"step", step.ID, "filename", step.Filename, "status", step.Status}
	if step.OutputImage != "" {
		attrs = append(attrs, "output", step.OutputImage)
	}

	r.logger.Info("Step updated", attrs...)
}

func (r *logRenderer) StepPreview(step *models.Step, frame *comfy.PreviewFrame) {
	r.logger.Debug("Preview frame received",
		"step", step.ID, "mime_type", frame.MimeType, "bytes", len(frame.Data))
}

type runtime struct {
	queue   *queue.Queue
	store   persistence.Store
	channel *comfy.Channel
	cancel  context.CancelFunc
}

func (rt *runtime) close(ctx context.Context) {
	rt.cancel()
	rt.channel.Close()

	if err := rt.store.Close(ctx); err != nil {
		slog.Default().Warn("Failed to close store", "error", err)
	}
}

// newRuntime wires the store, backend client, event channel, and queue from
// the command line flags.
func newRuntime(ctx context.Context, command *cli.Command, logger *slog.Logger) (*runtime, error) {
	log.Setup(command.String("log-level"))

	store, err := cmd.NewStore(command.String("store-url"))
	if err != nil {
		return nil, err
	}

	comfyURL := command.String("comfy-url")

	clientID := command.String("client-id")
	if clientID == "" {
		clientID = uuid.New().String()
	}

	client := comfy.NewClient(comfyURL, logger)

	channel, err := comfy.NewChannel(comfyURL, clientID, logger)
	if err != nil {
		return nil, err
	}

	channelCtx, cancel := context.WithCancel(ctx)
	go channel.Run(channelCtx)

	var tracer trace.Tracer

	if command.Bool("tracing") {
		tracer, err = otelhelper.NewTracer(ctx, "comfychain")
		if err != nil {
			cancel()

			return nil, fmt.Errorf("failed to initialize tracing: %w", err)
		}
	}

	q := queue.New(queue.Config{
		Backend:  client,
		Events:   channel,
		Store:    store,
		Bus:      eventbus.NewInProcessEventBus(),
		Renderer: &logRenderer{logger: logger},
		ClientID: clientID,
		Tracer:   tracer,
		Logger:   logger,
	})

	return &runtime{queue: q, store: store, channel: channel, cancel: cancel}, nil
}

func runAutomation(ctx context.Context, command *cli.Command, logger *slog.Logger) error {
	name := command.Args().First()
	if name == "" {
		return errors.New("automation name is required")
	}

	rt, err := newRuntime(ctx, command, logger)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	if err := rt.queue.Load(ctx, name); err != nil {
		return err
	}

	logger.InfoContext(ctx, "Running automation", "name", name, "steps", len(rt.queue.Steps()))

	return rt.queue.RunAll(ctx)
}

func runSingle(ctx context.Context, command *cli.Command, logger *slog.Logger) error {
	name := command.Args().First()
	if name == "" {
		return errors.New("workflow name is required")
	}

	rt, err := newRuntime(ctx, command, logger)
	if err != nil {
		return err
	}
	defer rt.close(ctx)

	step, err := rt.queue.Enqueue(ctx, name)
	if err != nil {
		return err
	}

	return rt.queue.RunStep(ctx, step.ID)
}

func listDocuments(ctx context.Context, command *cli.Command) error {
	store, err := cmd.NewStore(command.String("store-url"))
	if err != nil {
		return err
	}

	defer func() {
		_ = store.Close(ctx)
	}()

	workflows, err := store.ListWorkflows(ctx)
	if err != nil {
		return err
	}

	automations, err := store.ListAutomations(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Workflows:")

	for _, name := range workflows {
		fmt.Printf("  %s\n", name)
	}

	fmt.Println("Automations:")

	for _, name := range automations {
		fmt.Printf("  %s\n", name)
	}

	return nil
}
