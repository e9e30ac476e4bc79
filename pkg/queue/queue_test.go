package queue

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfychain/comfychain/pkg/comfy"
	"github.com/comfychain/comfychain/pkg/models"
	"github.com/comfychain/comfychain/pkg/persistence"
)

func TestQueue_Enqueue(t *testing.T) {
	session := newFakeSession()
	q, store := newTestQueue(t, session)

	seedWorkflow(t, store, "gen", generatorGraph(), defaultGroups())

	step, err := q.Enqueue(context.Background(), "gen")
	require.NoError(t, err)
	assert.NotEmpty(t, step.ID)
	assert.Equal(t, "gen", step.Filename)
	assert.Equal(t, models.StepStatusPending, step.Status)
	assert.Len(t, q.Steps(), 1)

	// Queued graphs are copies; editing one step never leaks into another.
	other, err := q.Enqueue(context.Background(), "gen")
	require.NoError(t, err)

	step.Graph["6"].Inputs["text"] = "edited"
	assert.Equal(t, "a castle", other.Graph["6"].Inputs["text"])
}

func TestQueue_Enqueue_RejectsWorkflowWithoutGroups(t *testing.T) {
	session := newFakeSession()
	q, store := newTestQueue(t, session)

	require.NoError(t, store.SaveWorkflow(context.Background(), "bare", generatorGraph()))

	_, err := q.Enqueue(context.Background(), "bare")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoGroupsDefined)
	assert.Empty(t, q.Steps())
}

func TestQueue_RemoveAndReorder(t *testing.T) {
	session := newFakeSession()
	q, store := newTestQueue(t, session)

	seedWorkflow(t, store, "gen", generatorGraph(), defaultGroups())

	ctx := context.Background()

	first, err := q.Enqueue(ctx, "gen")
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, "gen")
	require.NoError(t, err)
	third, err := q.Enqueue(ctx, "gen")
	require.NoError(t, err)

	require.NoError(t, q.Reorder(third.ID, 0))

	steps := q.Steps()
	assert.Equal(t, []string{third.ID, first.ID, second.ID}, []string{steps[0].ID, steps[1].ID, steps[2].ID})

	require.NoError(t, q.Remove(first.ID))
	assert.Len(t, q.Steps(), 2)

	assert.ErrorIs(t, q.Remove("nope"), ErrStepNotFound)
	assert.ErrorIs(t, q.Reorder("nope", 0), ErrStepNotFound)
}

func TestQueue_RunAll_EmptyQueue(t *testing.T) {
	session := newFakeSession()
	q, _ := newTestQueue(t, session)

	assert.ErrorIs(t, q.RunAll(context.Background()), ErrQueueEmpty)
}

func TestQueue_RunAll_AllStepsSucceed(t *testing.T) {
	session := newFakeSession()
	q, _ := newTestQueue(t, session)
	store := seedThree(t, q)

	require.NoError(t, q.RunAll(context.Background()))

	for _, step := range q.Steps() {
		assert.Equal(t, models.StepStatusDone, step.Status)
	}

	assert.Equal(t, 3, session.submitCount())

	// Bookkeeping nodes never reach the backend.
	for ordinal := 1; ordinal <= 3; ordinal++ {
		assert.NotContains(t, session.payload(ordinal), "_state")
	}

	// Graphs were persisted before submission.
	_, err := store.LoadWorkflow(context.Background(), "gen")
	require.NoError(t, err)
}

func TestQueue_RunAll_FailedStepDoesNotBlockRun(t *testing.T) {
	session := newFakeSession()
	session.failOn[2] = errors.New("backend rejected prompt")

	q, _ := newTestQueue(t, session)
	seedThree(t, q)

	require.NoError(t, q.RunAll(context.Background()))

	steps := q.Steps()
	assert.Equal(t, models.StepStatusDone, steps[0].Status)
	assert.Equal(t, models.StepStatusError, steps[1].Status)
	assert.Equal(t, models.StepStatusDone, steps[2].Status)
	assert.Equal(t, 3, session.submitCount())
}

func TestQueue_RunAll_ImageBridge(t *testing.T) {
	session := newFakeSession()
	session.imageOn[1] = models.ImageRef{Filename: "out_00001_.png", Subfolder: "", Type: "output"}
	session.bridgeName = "out_00001_ (1).png"

	q, store := newTestQueue(t, session)

	seedWorkflow(t, store, "gen", generatorGraph(), defaultGroups())
	seedWorkflow(t, store, "upscale", consumerGraph(), defaultGroups())

	ctx := context.Background()

	producer, err := q.Enqueue(ctx, "gen")
	require.NoError(t, err)
	consumer, err := q.Enqueue(ctx, "upscale")
	require.NoError(t, err)

	require.NoError(t, q.SetConnection(producer.ID,
		&models.Selector{Special: models.SelectorImage},
		&models.Selector{NodeID: "5", Key: "image"},
	))

	require.NoError(t, q.RunAll(ctx))

	// The producer's finished image was captured from the event stream.
	require.NotNil(t, producer.OutputImageMeta)
	assert.Equal(t, "out_00001_.png", producer.OutputImageMeta.Filename)
	assert.True(t, producer.IsFinished)
	assert.Equal(t, session.ViewURL(*producer.OutputImageMeta), producer.OutputImage)

	// The bridge was driven with exactly that descriptor and the uploaded
	// name was written into the consumer before its submission.
	require.Len(t, session.bridged, 1)
	assert.Equal(t, *producer.OutputImageMeta, session.bridged[0])
	assert.Equal(t, "out_00001_ (1).png", consumer.Graph["5"].Inputs["image"])
	assert.Equal(t, "out_00001_ (1).png", session.payload(2)["5"].Inputs["image"])
}

func TestQueue_RunAll_StopHaltsRemainingSteps(t *testing.T) {
	session := newFakeSession()
	session.holdOn[2] = true

	q, _ := newTestQueue(t, session)
	seedThree(t, q)

	ctx := context.Background()
	done := make(chan error, 1)

	go func() { done <- q.RunAll(ctx) }()

	require.Eventually(t, func() bool { return session.submitCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	require.NoError(t, q.Stop(ctx))

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}

	// The in-flight step keeps the status it held at interruption; later
	// steps stay pending and nothing further was submitted.
	steps := q.Steps()
	assert.Equal(t, models.StepStatusDone, steps[0].Status)
	assert.Equal(t, models.StepStatusRunning, steps[1].Status)
	assert.Equal(t, models.StepStatusPending, steps[2].Status)

	assert.Empty(t, steps[1].OutputImage)
	assert.False(t, steps[1].IsFinished)
	assert.Equal(t, 2, session.submitCount())
	assert.Equal(t, 1, session.interruptCount())
	assert.False(t, q.IsRunning())
}

func TestQueue_RunAll_BridgeFailureStillSubmits(t *testing.T) {
	session := newFakeSession()
	session.imageOn[1] = models.ImageRef{Filename: "out_00001_.png", Type: "output"}
	session.bridgeErr = errors.New("upload rejected")

	q, store := newTestQueue(t, session)

	seedWorkflow(t, store, "gen", generatorGraph(), defaultGroups())
	seedWorkflow(t, store, "upscale", consumerGraph(), defaultGroups())

	ctx := context.Background()

	producer, err := q.Enqueue(ctx, "gen")
	require.NoError(t, err)
	consumer, err := q.Enqueue(ctx, "upscale")
	require.NoError(t, err)

	require.NoError(t, q.SetConnection(producer.ID,
		&models.Selector{Special: models.SelectorImage},
		&models.Selector{NodeID: "5", Key: "image"},
	))

	require.NoError(t, q.RunAll(ctx))

	// The failed bridge is logged and skipped; the consumer is still
	// submitted with its unbridged input and completes normally.
	assert.Equal(t, models.StepStatusDone, producer.Status)
	assert.Equal(t, models.StepStatusDone, consumer.Status)
	assert.Equal(t, 2, session.submitCount())
	assert.Equal(t, "", session.payload(2)["5"].Inputs["image"])
}

func TestQueue_Stop_IdleIsNoOp(t *testing.T) {
	session := newFakeSession()
	q, _ := newTestQueue(t, session)

	require.NoError(t, q.Stop(context.Background()))
	assert.Zero(t, session.interruptCount())
}

func TestQueue_MutationsRejectedWhileRunning(t *testing.T) {
	session := newFakeSession()
	session.holdOn[1] = true

	q, store := newTestQueue(t, session)
	seedWorkflow(t, store, "gen", generatorGraph(), defaultGroups())

	ctx := context.Background()

	step, err := q.Enqueue(ctx, "gen")
	require.NoError(t, err)

	done := make(chan error, 1)

	go func() { done <- q.RunAll(ctx) }()

	require.Eventually(t, q.IsRunning, 2*time.Second, 5*time.Millisecond)

	_, err = q.Enqueue(ctx, "gen")
	assert.ErrorIs(t, err, ErrQueueRunning)
	assert.ErrorIs(t, q.Remove(step.ID), ErrQueueRunning)
	assert.ErrorIs(t, q.Reorder(step.ID, 0), ErrQueueRunning)
	assert.ErrorIs(t, q.Clear(), ErrQueueRunning)
	assert.ErrorIs(t, q.Load(ctx, "whatever"), ErrQueueRunning)

	_, err = q.SaveAs(ctx, "whatever")
	assert.ErrorIs(t, err, ErrQueueRunning)

	assert.ErrorIs(t, q.RunAll(ctx), ErrQueueRunning)

	require.NoError(t, q.Stop(ctx))
	require.NoError(t, <-done)
}

func TestQueue_RunStep_ReconcilesAndPersists(t *testing.T) {
	session := newFakeSession()
	session.history = comfy.HistoryOutputs{
		"6": {"text": []any{"resolved caption"}},
	}

	q, store := newTestQueue(t, session)
	seedWorkflow(t, store, "gen", generatorGraph(), defaultGroups())

	ctx := context.Background()

	step, err := q.Enqueue(ctx, "gen")
	require.NoError(t, err)

	require.NoError(t, q.RunStep(ctx, step.ID))

	assert.Equal(t, models.StepStatusDone, step.Status)
	assert.Equal(t, "resolved caption", step.Graph["6"].Inputs["text"])

	// The reconciled graph was written back to the store.
	persisted, err := store.LoadWorkflow(ctx, "gen")
	require.NoError(t, err)
	assert.Equal(t, "resolved caption", persisted["6"].Inputs["text"])
}

func TestQueue_RunStep_HistoryFailureKeepsStepDone(t *testing.T) {
	session := newFakeSession()
	session.historyErr = errors.New("history endpoint down")

	q, store := newTestQueue(t, session)
	seedWorkflow(t, store, "gen", generatorGraph(), defaultGroups())

	ctx := context.Background()

	step, err := q.Enqueue(ctx, "gen")
	require.NoError(t, err)

	require.NoError(t, q.RunStep(ctx, step.ID))
	assert.Equal(t, models.StepStatusDone, step.Status)
	assert.Equal(t, "a castle", step.Graph["6"].Inputs["text"])
}

func TestQueue_RunStep_UnknownStep(t *testing.T) {
	session := newFakeSession()
	q, store := newTestQueue(t, session)
	seedWorkflow(t, store, "gen", generatorGraph(), defaultGroups())

	_, err := q.Enqueue(context.Background(), "gen")
	require.NoError(t, err)

	assert.ErrorIs(t, q.RunStep(context.Background(), "nope"), ErrStepNotFound)
}

func TestQueue_SaveAsAndLoad(t *testing.T) {
	session := newFakeSession()
	q, store := newTestQueue(t, session)

	seedWorkflow(t, store, "gen", generatorGraph(), defaultGroups())
	seedWorkflow(t, store, "upscale", consumerGraph(), defaultGroups())

	ctx := context.Background()

	producer, err := q.Enqueue(ctx, "gen")
	require.NoError(t, err)
	_, err = q.Enqueue(ctx, "upscale")
	require.NoError(t, err)

	require.NoError(t, q.SetConnection(producer.ID,
		&models.Selector{Special: models.SelectorImage},
		&models.Selector{NodeID: "5", Key: "image"},
	))

	name, err := q.SaveAs(ctx, "Nightly Chain")
	require.NoError(t, err)
	assert.Equal(t, "Nightly Chain", name)

	require.NoError(t, q.Clear())
	require.NoError(t, q.Load(ctx, name))

	steps := q.Steps()
	require.Len(t, steps, 2)
	assert.Equal(t, "gen", steps[0].Filename)
	assert.True(t, steps[0].ConnectedOutput.IsImage())
	assert.Equal(t, "image", steps[1].ConnectedInput.Key)
	assert.Equal(t, models.StepStatusPending, steps[0].Status)
}

func seedThree(t *testing.T, q *Queue) persistence.Store {
	t.Helper()

	seedWorkflow(t, q.store, "gen", stateGraph(), defaultGroups())

	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := q.Enqueue(ctx, "gen")
		require.NoError(t, err)
	}

	return q.store
}

func stateGraph() models.Graph {
	graph := generatorGraph()
	graph["_state"] = &models.Node{ClassType: "EditorState", Inputs: map[string]any{}}

	return graph
}
