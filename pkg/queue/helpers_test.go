package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/comfychain/comfychain/pkg/comfy"
	"github.com/comfychain/comfychain/pkg/models"
	"github.com/comfychain/comfychain/pkg/persistence"
	"github.com/comfychain/comfychain/pkg/persistence/file"
)

// fakeSession implements Backend and EventSource in memory. Submissions
// settle immediately by pushing an executed image (when configured) and a
// terminal status into the subscriber stream, except for held ordinals,
// which stay in flight until the run is stopped.
type fakeSession struct {
	mu         sync.Mutex
	stream     chan comfy.Event
	submitted  []models.Graph
	failOn     map[int]error
	holdOn     map[int]bool
	imageOn    map[int]models.ImageRef
	history    comfy.HistoryOutputs
	historyErr error
	bridged    []models.ImageRef
	bridgeName string
	bridgeErr  error
	interrupts int
}

func newFakeSession() *fakeSession {
	return &fakeSession{
		failOn:     make(map[int]error),
		holdOn:     make(map[int]bool),
		imageOn:    make(map[int]models.ImageRef),
		bridgeName: "bridged.png",
	}
}

func (f *fakeSession) SubmitPrompt(_ context.Context, _ string, prompt models.Graph) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	ordinal := len(f.submitted) + 1
	f.submitted = append(f.submitted, prompt)

	if err := f.failOn[ordinal]; err != nil {
		return "", err
	}

	promptID := fmt.Sprintf("job-%d", ordinal)

	if f.holdOn[ordinal] {
		return promptID, nil
	}

	if img, ok := f.imageOn[ordinal]; ok {
		f.stream <- comfy.Event{Kind: comfy.EventExecuted, PromptID: promptID, Images: []models.ImageRef{img}}
	}

	f.stream <- comfy.Event{Kind: comfy.EventStatus, QueueRemaining: 0}

	return promptID, nil
}

func (f *fakeSession) Interrupt(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.interrupts++

	return nil
}

func (f *fakeSession) History(context.Context, string) (comfy.HistoryOutputs, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.history, f.historyErr
}

func (f *fakeSession) BridgeImage(_ context.Context, ref models.ImageRef) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.bridged = append(f.bridged, ref)

	if f.bridgeErr != nil {
		return "", f.bridgeErr
	}

	return f.bridgeName, nil
}

func (f *fakeSession) ViewURL(ref models.ImageRef) string {
	return "http://comfy/view?filename=" + ref.Filename
}

func (f *fakeSession) Subscribe() (<-chan comfy.Event, func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stream = make(chan comfy.Event, 16)

	return f.stream, func() {}
}

func (f *fakeSession) submitCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.submitted)
}

func (f *fakeSession) payload(ordinal int) models.Graph {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.submitted[ordinal-1]
}

func (f *fakeSession) interruptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.interrupts
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func generatorGraph() models.Graph {
	return models.Graph{
		"3": {ClassType: "KSampler", Inputs: map[string]any{"seed": float64(42), "steps": float64(20)}},
		"6": {ClassType: "CLIPTextEncode", Inputs: map[string]any{"text": "a castle"}},
		"9": {ClassType: "SaveImage", Inputs: map[string]any{"filename_prefix": "out"}},
	}
}

func consumerGraph() models.Graph {
	return models.Graph{
		"5": {ClassType: "LoadImage", Inputs: map[string]any{"image": ""}},
		"9": {ClassType: "SaveImage", Inputs: map[string]any{"filename_prefix": "upscaled"}},
	}
}

func defaultGroups() []models.Group {
	return []models.Group{
		{Title: "Main", Inputs: []models.InputRef{{NodeID: "9", Key: "filename_prefix"}}},
	}
}

func seedWorkflow(t *testing.T, store persistence.Store, name string, graph models.Graph, groups []models.Group) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, store.SaveWorkflow(ctx, name, graph))
	require.NoError(t, store.SaveGroups(ctx, name, groups))
}

func newTestQueue(t *testing.T, session *fakeSession) (*Queue, persistence.Store) {
	t.Helper()

	store := file.NewStore(t.TempDir())

	q := New(Config{
		Backend:  session,
		Events:   session,
		Store:    store,
		ClientID: "test-client",
		Logger:   discardLogger(),
	})

	return q, store
}
