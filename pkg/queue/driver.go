package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/comfychain/comfychain/pkg/comfy"
	"github.com/comfychain/comfychain/pkg/models"
	"github.com/comfychain/comfychain/pkg/persistence"
)

// Result describes a successfully settled step execution.
type Result struct {
	PromptID string
}

// Driver executes one step end to end: resolve incoming connections, submit
// the payload, await the terminal event, then reconcile and persist. The
// step is mutated in place throughout.
type Driver struct {
	backend    Backend
	source     EventSource
	store      persistence.Store
	resolver   *Resolver
	reconciler *Reconciler
	renderer   Renderer
	clientID   string
	logger     *slog.Logger
}

func NewDriver(backend Backend, source EventSource, store persistence.Store, clientID string, renderer Renderer, logger *slog.Logger) *Driver {
	return &Driver{
		backend:    backend,
		source:     source,
		store:      store,
		resolver:   NewResolver(backend, logger),
		reconciler: NewReconciler(backend, logger),
		renderer:   renderer,
		clientID:   clientID,
		logger:     logger.With("module", "queue_driver"),
	}
}

// Execute runs a single step. On stop the step is left in whatever state it
// held at interruption; on failure it is marked errored and the error
// returned.
func (d *Driver) Execute(ctx context.Context, prev, step *models.Step, token *stopToken) (*Result, error) {
	d.resolver.Resolve(ctx, prev, step)

	step.Status = models.StepStatusRunning
	step.ResetOutput()
	d.renderer.StepUpdated(step)

	// Subscribe before submitting so the job's events cannot slip past us.
	stream, cancel := d.source.Subscribe()
	defer cancel()

	promptID, err := d.backend.SubmitPrompt(ctx, d.clientID, buildPayload(step.Graph))
	if err != nil {
		d.fail(step, err)

		return nil, err
	}

	d.logger.InfoContext(ctx, "Step submitted",
		"step", step.ID, "filename", step.Filename, "prompt_id", promptID)

	if err := d.await(ctx, step, promptID, stream, token); err != nil {
		return nil, err
	}

	step.Status = models.StepStatusDone

	if err := d.reconciler.Reconcile(ctx, promptID, step); err != nil {
		// The step still succeeded; the graph just keeps its pre-run values.
		d.logger.WarnContext(ctx, "History reconciliation failed", "step", step.ID, "error", err)
	}

	if err := d.store.SaveWorkflow(ctx, step.Filename, step.Graph); err != nil {
		d.logger.WarnContext(ctx, "Failed to persist workflow after step", "step", step.ID, "error", err)
	}

	d.renderer.StepUpdated(step)

	return &Result{PromptID: promptID}, nil
}

// await consumes session events until the backend reports an empty queue.
func (d *Driver) await(ctx context.Context, step *models.Step, promptID string, stream <-chan comfy.Event, token *stopToken) error {
	for {
		select {
		case <-token.Stopped():
			// The step keeps whatever state it held at interruption.
			return ErrStopped

		case <-ctx.Done():
			d.fail(step, ctx.Err())

			return ctx.Err()

		case event, ok := <-stream:
			if !ok {
				err := fmt.Errorf("event stream closed while awaiting job %s", promptID)
				d.fail(step, err)

				return err
			}

			if done := d.handleEvent(step, promptID, event); done {
				return nil
			}
		}
	}
}

// handleEvent folds one session event into the step and reports whether the
// job has settled.
func (d *Driver) handleEvent(step *models.Step, promptID string, event comfy.Event) bool {
	switch event.Kind {
	case comfy.EventExecuted:
		if event.PromptID != promptID || len(event.Images) == 0 {
			return false
		}

		meta := event.Images[0]
		step.OutputImageMeta = &meta
		step.OutputImage = d.backend.ViewURL(meta)
		step.IsFinished = true
		d.renderer.StepUpdated(step)

	case comfy.EventPreview:
		d.renderer.StepPreview(step, event.Preview)

	case comfy.EventStatus:
		// An empty backend queue is the terminal signal for our session's
		// only in-flight job.
		if event.QueueRemaining == 0 {
			return true
		}
	}

	return false
}

func (d *Driver) fail(step *models.Step, err error) {
	step.Status = models.StepStatusError
	d.renderer.StepUpdated(step)
	d.logger.Error("Step failed", "step", step.ID, "filename", step.Filename, "error", err)
}
