package comfy

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfychain/comfychain/pkg/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestClient_SubmitPrompt(t *testing.T) {
	var captured map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/prompt", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))

		_ = json.NewEncoder(w).Encode(map[string]string{"prompt_id": "job-42"})
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())

	graph := models.Graph{"3": {ClassType: "KSampler", Inputs: map[string]any{"seed": float64(1)}}}

	promptID, err := client.SubmitPrompt(context.Background(), "session-1", graph)
	require.NoError(t, err)
	assert.Equal(t, "job-42", promptID)
	assert.Equal(t, "session-1", captured["client_id"])

	prompt, ok := captured["prompt"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, prompt, "3")
}

func TestClient_SubmitPrompt_RejectedByBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"invalid prompt"}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())

	_, err := client.SubmitPrompt(context.Background(), "session-1", models.Graph{})
	require.Error(t, err)
	assert.True(t, IsSubmissionFailed(err))
	assert.Contains(t, err.Error(), "status 400")
}

func TestClient_History(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/history/job-42", r.URL.Path)

		_, _ = w.Write([]byte(`{
			"job-42": {
				"outputs": {
					"6": {"text": ["a castle"]},
					"9": {"images": [{"filename": "out_00001_.png", "subfolder": "", "type": "output"}]}
				}
			}
		}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())

	outputs, err := client.History(context.Background(), "job-42")
	require.NoError(t, err)
	require.Contains(t, outputs, "6")
	assert.Equal(t, []any{"a castle"}, outputs["6"]["text"])
}

func TestClient_History_MissingRecord(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())

	_, err := client.History(context.Background(), "job-42")
	require.Error(t, err)
	assert.True(t, IsHistoryUnavailable(err))
}

func TestClient_BridgeImage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/view":
			assert.Equal(t, "out_00001_.png", r.URL.Query().Get("filename"))
			assert.Equal(t, "batch", r.URL.Query().Get("subfolder"))
			assert.Equal(t, "output", r.URL.Query().Get("type"))
			_, _ = w.Write([]byte("png-bytes"))
		case "/upload/image":
			require.NoError(t, r.ParseMultipartForm(1<<20))

			file, header, err := r.FormFile("image")
			require.NoError(t, err)
			defer file.Close()

			body, err := io.ReadAll(file)
			require.NoError(t, err)
			assert.Equal(t, "png-bytes", string(body))
			assert.Equal(t, "out_00001_.png", header.Filename)

			_ = json.NewEncoder(w).Encode(map[string]string{"name": "out_00001_ (1).png"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())

	ref := models.ImageRef{Filename: "out_00001_.png", Subfolder: "batch", Type: "output"}

	name, err := client.BridgeImage(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "out_00001_ (1).png", name)
}

func TestClient_BridgeImage_ViewFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())

	_, err := client.BridgeImage(context.Background(), models.ImageRef{Filename: "gone.png"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBridgeFailed)
}

func TestClient_Interrupt(t *testing.T) {
	var path string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(server.URL, testLogger())

	require.NoError(t, client.Interrupt(context.Background(), "session-1"))
	assert.Equal(t, "/interrupt", path)
}

func TestClient_ViewURL(t *testing.T) {
	client := NewClient("http://localhost:8188/", testLogger())

	got := client.ViewURL(models.ImageRef{Filename: "a b.png", Subfolder: "sub", Type: "output"})

	assert.True(t, strings.HasPrefix(got, "http://localhost:8188/view?"))
	assert.Contains(t, got, "filename=a+b.png")
	assert.Contains(t, got, "subfolder=sub")
	assert.Contains(t, got, "type=output")
}
