// Package comfy is the boundary to the remote generation backend: an HTTP
// client for job submission, interruption, history, and image transfer,
// plus the persistent WebSocket event channel.
package comfy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/comfychain/comfychain/pkg/models"
)

const defaultRequestTimeout = 60 * time.Second

// Client talks to the generation backend over HTTP. All methods take plain
// data; nothing above this package depends on transport specifics.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a backend client for the given base URL.
func NewClient(baseURL string, logger *slog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultRequestTimeout},
		logger:     logger.With("module", "comfy_client"),
	}
}

// SubmitPrompt submits a graph for execution and returns the backend's job
// identifier. The client token scopes event delivery to our session.
func (c *Client) SubmitPrompt(ctx context.Context, clientID string, prompt models.Graph) (string, error) {
	payload := map[string]any{
		"client_id": clientID,
		"prompt":    prompt,
	}

	var response struct {
		PromptID string `json:"prompt_id"`
	}

	if err := c.postJSON(ctx, "/prompt", payload, &response); err != nil {
		return "", fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}

	if response.PromptID == "" {
		return "", fmt.Errorf("%w: backend returned no prompt id", ErrSubmissionFailed)
	}

	return response.PromptID, nil
}

// Interrupt asks the backend to halt the in-flight job for our session.
func (c *Client) Interrupt(ctx context.Context, clientID string) error {
	payload := map[string]any{"client_id": clientID}

	if err := c.postJSON(ctx, "/interrupt", payload, nil); err != nil {
		return fmt.Errorf("interrupt request failed: %w", err)
	}

	return nil
}

// HistoryOutputs maps node identifiers to their recorded output values.
type HistoryOutputs map[string]map[string]any

// History fetches the authoritative execution record for a completed job.
func (c *Client) History(ctx context.Context, promptID string) (HistoryOutputs, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/history/"+url.PathEscape(promptID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrHistoryUnavailable, resp.StatusCode)
	}

	var records map[string]struct {
		Outputs HistoryOutputs `json:"outputs"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrHistoryUnavailable, err)
	}

	record, ok := records[promptID]
	if !ok {
		return nil, fmt.Errorf("%w: no record for job %s", ErrHistoryUnavailable, promptID)
	}

	return record.Outputs, nil
}

// BridgeImage converts a previously produced output image into a freshly
// uploaded, input-ready filename: it downloads the image from the view
// endpoint and re-uploads it to the input store.
func (c *Client) BridgeImage(ctx context.Context, ref models.ImageRef) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.ViewURL(ref), nil)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBridgeFailed, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBridgeFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: view returned status %d", ErrBridgeFailed, resp.StatusCode)
	}

	name, err := c.UploadImage(ctx, ref.Filename, resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrBridgeFailed, err)
	}

	c.logger.InfoContext(ctx, "Bridged image to input store", "source", ref.Filename, "uploaded", name)

	return name, nil
}

// UploadImage uploads image bytes to the backend's input store and returns
// the stored filename.
func (c *Client) UploadImage(ctx context.Context, filename string, r io.Reader) (string, error) {
	var body bytes.Buffer

	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("image", filename)
	if err != nil {
		return "", fmt.Errorf("failed to build upload form: %w", err)
	}

	if _, err := io.Copy(part, r); err != nil {
		return "", fmt.Errorf("failed to read image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize upload form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload/image", &body)
	if err != nil {
		return "", fmt.Errorf("failed to build upload request: %w", err)
	}

	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("upload request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("upload returned status %d", resp.StatusCode)
	}

	var response struct {
		Name string `json:"name"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode upload response: %w", err)
	}

	return response.Name, nil
}

// ViewURL returns the locator for a produced image.
func (c *Client) ViewURL(ref models.ImageRef) string {
	query := url.Values{}
	query.Set("filename", ref.Filename)
	query.Set("subfolder", ref.Subfolder)
	query.Set("type", ref.Type)

	return c.baseURL + "/view?" + query.Encode()
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}

	if out == nil {
		return nil
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}
