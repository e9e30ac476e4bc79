package main

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfychain/comfychain/pkg/comfy"
	"github.com/comfychain/comfychain/pkg/models"
	"github.com/comfychain/comfychain/pkg/persistence/file"
	"github.com/comfychain/comfychain/pkg/queue"
)

type idleBackend struct{}

func (idleBackend) SubmitPrompt(context.Context, string, models.Graph) (string, error) {
	return "job-1", nil
}
func (idleBackend) Interrupt(context.Context, string) error { return nil }
func (idleBackend) History(context.Context, string) (comfy.HistoryOutputs, error) {
	return comfy.HistoryOutputs{}, nil
}
func (idleBackend) BridgeImage(context.Context, models.ImageRef) (string, error) {
	return "bridged.png", nil
}
func (idleBackend) ViewURL(ref models.ImageRef) string { return ref.Filename }
func (idleBackend) Subscribe() (<-chan comfy.Event, func()) {
	return make(chan comfy.Event), func() {}
}

func (idleBackend) UploadImage(context.Context, string, io.Reader) (string, error) {
	return "uploaded.png", nil
}

func newTestAPI(t *testing.T) *API {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := file.NewStore(t.TempDir())

	q := queue.New(queue.Config{
		Backend:  idleBackend{},
		Events:   idleBackend{},
		Store:    store,
		ClientID: "test-client",
		Logger:   logger,
	})

	return NewAPI(logger, store, q, idleBackend{})
}

func TestAPI_Root(t *testing.T) {
	app := newTestAPI(t).App()

	req := httptest.NewRequest(http.MethodGet, "/", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "ComfyChain API", string(body))
}

func TestAPI_Health(t *testing.T) {
	app := newTestAPI(t).App()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_QueueEmpty(t *testing.T) {
	app := newTestAPI(t).App()

	req := httptest.NewRequest(http.MethodGet, "/queue/", nil)

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
