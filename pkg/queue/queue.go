// Package queue implements the automation queue: an ordered list of workflow
// steps executed sequentially against the generation backend, with
// inter-step data bridging, history reconciliation, and a cancellable run
// lifecycle.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/comfychain/comfychain/pkg/comfy"
	"github.com/comfychain/comfychain/pkg/eventbus"
	"github.com/comfychain/comfychain/pkg/events"
	"github.com/comfychain/comfychain/pkg/models"
	"github.com/comfychain/comfychain/pkg/otelhelper"
	"github.com/comfychain/comfychain/pkg/persistence"
)

// Backend is the remote execution surface a queue drives.
type Backend interface {
	SubmitPrompt(ctx context.Context, clientID string, prompt models.Graph) (string, error)
	Interrupt(ctx context.Context, clientID string) error
	History(ctx context.Context, promptID string) (comfy.HistoryOutputs, error)
	BridgeImage(ctx context.Context, ref models.ImageRef) (string, error)
	ViewURL(ref models.ImageRef) string
}

// EventSource hands out scoped subscriptions to the backend session stream.
// Each subscription must be detached via its cancel function once the
// awaited job settles.
type EventSource interface {
	Subscribe() (<-chan comfy.Event, func())
}

// Queue owns the ordered step list and the run lifecycle. Structural
// mutations are rejected while a run is in progress; Stop is the only
// mutation allowed mid-run.
type Queue struct {
	mu      sync.Mutex
	steps   []*models.Step
	running bool
	stop    *stopToken

	repo     *Repository
	driver   *Driver
	backend  Backend
	store    persistence.Store
	bus      eventbus.EventPublisher
	renderer Renderer
	clientID string
	tracer   trace.Tracer
	logger   *slog.Logger
}

// Config carries the queue's collaborators.
type Config struct {
	Backend  Backend
	Events   EventSource
	Store    persistence.Store
	Bus      eventbus.EventPublisher
	Renderer Renderer
	ClientID string
	Tracer   trace.Tracer
	Logger   *slog.Logger
}

// New creates an empty queue.
func New(cfg Config) *Queue {
	if cfg.Renderer == nil {
		cfg.Renderer = NopRenderer{}
	}

	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("comfychain")
	}

	if cfg.ClientID == "" {
		cfg.ClientID = uuid.New().String()
	}

	logger := cfg.Logger.With("module", "queue")

	return &Queue{
		repo:     NewRepository(cfg.Store, cfg.Logger),
		driver:   NewDriver(cfg.Backend, cfg.Events, cfg.Store, cfg.ClientID, cfg.Renderer, cfg.Logger),
		backend:  cfg.Backend,
		store:    cfg.Store,
		bus:      cfg.Bus,
		renderer: cfg.Renderer,
		clientID: cfg.ClientID,
		tracer:   cfg.Tracer,
		logger:   logger,
	}
}

// Steps returns a snapshot of the current step list in queue order.
func (q *Queue) Steps() []*models.Step {
	q.mu.Lock()
	defer q.mu.Unlock()

	return append([]*models.Step(nil), q.steps...)
}

// IsRunning reports whether a run is in progress.
func (q *Queue) IsRunning() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.running
}

// Enqueue loads the named workflow and appends it as a pending step.
// Workflows without input groups are rejected.
func (q *Queue) Enqueue(ctx context.Context, filename string) (*models.Step, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return nil, ErrQueueRunning
	}

	step, err := q.repo.LoadStep(ctx, filename)
	if err != nil {
		return nil, err
	}

	q.steps = append(q.steps, step)
	q.renderer.QueueUpdated(q.steps)

	return step, nil
}

// Remove deletes the identified step from the queue.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return ErrQueueRunning
	}

	for i, step := range q.steps {
		if step.ID == id {
			q.steps = append(q.steps[:i], q.steps[i+1:]...)
			q.renderer.QueueUpdated(q.steps)

			return nil
		}
	}

	return fmt.Errorf("%w: %s", ErrStepNotFound, id)
}

// Reorder moves the identified step to the given position, clamped to the
// list bounds.
func (q *Queue) Reorder(id string, position int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return ErrQueueRunning
	}

	from := -1

	for i, step := range q.steps {
		if step.ID == id {
			from = i

			break
		}
	}

	if from == -1 {
		return fmt.Errorf("%w: %s", ErrStepNotFound, id)
	}

	if position < 0 {
		position = 0
	}

	if position >= len(q.steps) {
		position = len(q.steps) - 1
	}

	step := q.steps[from]
	q.steps = append(q.steps[:from], q.steps[from+1:]...)
	q.steps = append(q.steps[:position], append([]*models.Step{step}, q.steps[position:]...)...)
	q.renderer.QueueUpdated(q.steps)

	return nil
}

// Clear drops every step from the queue.
func (q *Queue) Clear() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return ErrQueueRunning
	}

	q.steps = nil
	q.renderer.QueueUpdated(q.steps)

	return nil
}

// SetConnection records the chaining selectors between a step and its
// successor: what the step exposes and which of the successor's inputs
// receives it.
func (q *Queue) SetConnection(id string, output, input *models.Selector) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return ErrQueueRunning
	}

	for i, step := range q.steps {
		if step.ID != id {
			continue
		}

		step.ConnectedOutput = output

		if i+1 < len(q.steps) {
			q.steps[i+1].ConnectedInput = input
		}

		q.renderer.QueueUpdated(q.steps)

		return nil
	}

	return fmt.Errorf("%w: %s", ErrStepNotFound, id)
}

// Load replaces the queue contents with the named saved automation. Each
// referenced workflow is loaded fresh from the store.
func (q *Queue) Load(ctx context.Context, name string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return ErrQueueRunning
	}

	definition, err := q.store.LoadAutomation(ctx, name)
	if err != nil {
		return err
	}

	steps := make([]*models.Step, 0, len(definition))

	for _, item := range definition {
		step, err := q.repo.LoadStep(ctx, item.Filename)
		if err != nil {
			return fmt.Errorf("failed to load automation step %q: %w", item.Filename, err)
		}

		step.ConnectedOutput = item.ConnectedOutput
		step.ConnectedInput = item.ConnectedInput
		steps = append(steps, step)
	}

	q.steps = steps
	q.renderer.QueueUpdated(q.steps)

	return nil
}

// SaveAs persists the current queue shape as a named automation and returns
// the stored name.
func (q *Queue) SaveAs(ctx context.Context, name string) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return "", ErrQueueRunning
	}

	definition := make([]models.AutomationStep, 0, len(q.steps))

	for _, step := range q.steps {
		definition = append(definition, models.AutomationStep{
			Filename:        step.Filename,
			ConnectedOutput: step.ConnectedOutput,
			ConnectedInput:  step.ConnectedInput,
		})
	}

	return q.store.SaveAutomation(ctx, name, definition)
}

// RunAll executes every step in order. A failed step is recorded and the
// run continues with the next step; only an explicit stop or context
// cancellation ends the run early.
func (q *Queue) RunAll(ctx context.Context) error {
	steps, token, err := q.beginRun()
	if err != nil {
		return err
	}
	defer q.endRun()

	runID := uuid.New().String()
	startedAt := time.Now()

	ctx, span := otelhelper.StartSpan(ctx, q.tracer, "queue.run_all",
		attribute.String(otelhelper.RunIDKey, runID),
		attribute.Int("comfychain.run.step_count", len(steps)),
	)
	defer span.End()

	q.publish(ctx, runID, events.RunStarted{
		BaseEvent: events.NewBaseEvent(events.RunStartedEvent, runID),
		StepCount: len(steps),
	})

	if err := q.persistGraphs(ctx, steps); err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	var completed, failed int

	for i, step := range steps {
		if token.IsStopped() {
			break
		}

		var prev *models.Step
		if i > 0 {
			prev = steps[i-1]
		}

		err := q.runOne(ctx, runID, prev, step, token)

		switch {
		case IsStopped(err):
			q.publish(ctx, runID, events.RunStopped{
				BaseEvent:      events.NewBaseEvent(events.RunStoppedEvent, runID),
				StepsCompleted: completed,
				StoppedAtStep:  step.ID,
			})

			return nil
		case err != nil:
			failed++
		default:
			completed++
		}
	}

	q.publish(ctx, runID, events.RunFinished{
		BaseEvent:      events.NewBaseEvent(events.RunFinishedEvent, runID),
		StepsCompleted: completed,
		StepsFailed:    failed,
		Duration:       time.Since(startedAt),
	})

	return nil
}

// RunStep executes a single queued step, bridging from its predecessor in
// the queue if connections are configured.
func (q *Queue) RunStep(ctx context.Context, id string) error {
	steps, token, err := q.beginRun()
	if err != nil {
		return err
	}
	defer q.endRun()

	var prev, target *models.Step

	for i, step := range steps {
		if step.ID == id {
			target = step

			if i > 0 {
				prev = steps[i-1]
			}

			break
		}
	}

	if target == nil {
		return fmt.Errorf("%w: %s", ErrStepNotFound, id)
	}

	runID := uuid.New().String()

	ctx, span := otelhelper.StartSpan(ctx, q.tracer, "queue.run_step",
		attribute.String(otelhelper.RunIDKey, runID),
		attribute.String(otelhelper.StepIDKey, target.ID),
	)
	defer span.End()

	if err := q.persistGraphs(ctx, []*models.Step{target}); err != nil {
		otelhelper.SetError(span, err)

		return err
	}

	err = q.runOne(ctx, runID, prev, target, token)
	if IsStopped(err) {
		return nil
	}

	return err
}

// Stop requests cancellation of the run in progress: the current step's
// backend job is interrupted and no further steps are submitted. Stopping
// an idle queue is a no-op.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()

	if !q.running || q.stop == nil {
		q.mu.Unlock()

		return nil
	}

	q.stop.Stop()
	q.mu.Unlock()

	q.logger.InfoContext(ctx, "Stop requested, interrupting backend job")

	if err := q.backend.Interrupt(ctx, q.clientID); err != nil {
		return fmt.Errorf("failed to interrupt backend: %w", err)
	}

	return nil
}

func (q *Queue) beginRun() ([]*models.Step, *stopToken, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.running {
		return nil, nil, ErrQueueRunning
	}

	if len(q.steps) == 0 {
		return nil, nil, ErrQueueEmpty
	}

	q.running = true
	q.stop = newStopToken()

	return append([]*models.Step(nil), q.steps...), q.stop, nil
}

func (q *Queue) endRun() {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.running = false
	q.stop = nil
}

func (q *Queue) runOne(ctx context.Context, runID string, prev, step *models.Step, token *stopToken) error {
	stepCtx, span := otelhelper.StartSpan(ctx, q.tracer, "queue.step",
		attribute.String(otelhelper.StepIDKey, step.ID),
		attribute.String(otelhelper.StepFilenameKey, step.Filename),
	)
	defer span.End()

	startedAt := time.Now()

	q.publish(stepCtx, runID, events.StepStarted{
		BaseEvent: events.NewBaseEvent(events.StepStartedEvent, runID),
		StepID:    step.ID,
		Filename:  step.Filename,
	})

	result, err := q.driver.Execute(stepCtx, prev, step, token)
	if err != nil {
		if !IsStopped(err) {
			otelhelper.SetError(span, err, attribute.String(otelhelper.StepIDKey, step.ID))

			q.publish(stepCtx, runID, events.StepFailed{
				BaseEvent: events.NewBaseEvent(events.StepFailedEvent, runID),
				StepID:    step.ID,
				Filename:  step.Filename,
				Error:     err.Error(),
				Duration:  time.Since(startedAt),
			})
		}

		return err
	}

	span.SetAttributes(attribute.String(otelhelper.PromptIDKey, result.PromptID))

	q.publish(stepCtx, runID, events.StepFinished{
		BaseEvent:   events.NewBaseEvent(events.StepFinishedEvent, runID),
		StepID:      step.ID,
		Filename:    step.Filename,
		PromptID:    result.PromptID,
		OutputImage: step.OutputImage,
		Duration:    time.Since(startedAt),
	})

	return nil
}

// persistGraphs writes every step's edited graph back to the store before
// submission, so a crash mid-run cannot lose user edits.
func (q *Queue) persistGraphs(ctx context.Context, steps []*models.Step) error {
	for _, step := range steps {
		if err := q.store.SaveWorkflow(ctx, step.Filename, step.Graph); err != nil {
			return fmt.Errorf("failed to persist workflow %q before run: %w", step.Filename, err)
		}
	}

	return nil
}

func (q *Queue) publish(ctx context.Context, runID string, event eventbus.Event) {
	if q.bus == nil {
		return
	}

	if err := q.bus.Publish(ctx, runID, event); err != nil {
		q.logger.WarnContext(ctx, "Failed to publish lifecycle event",
			"event_type", event.GetType(), "error", err)
	}
}
