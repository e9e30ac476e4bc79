package comfy

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"github.com/comfychain/comfychain/pkg/models"
)

// EventKind identifies the backend event being delivered.
type EventKind string

const (
	EventStatus   EventKind = "status"
	EventProgress EventKind = "progress"
	EventExecuted EventKind = "executed"
	EventPreview  EventKind = "preview"
)

const (
	reconnectDelay      = 2 * time.Second
	subscriberBuffer    = 64
	previewHeaderLength = 8
	previewEventType    = 1
)

// PreviewFrame is a transient in-progress image pushed by the backend.
type PreviewFrame struct {
	MimeType string
	Data     []byte
}

// Event is a single notification from the backend session stream.
type Event struct {
	Kind           EventKind
	PromptID       string
	NodeID         string
	QueueRemaining int
	Value          int
	Max            int
	Images         []models.ImageRef
	Preview        *PreviewFrame
}

// Channel maintains a persistent WebSocket session to the backend and fans
// incoming events out to subscribers. It reconnects on failure until closed.
type Channel struct {
	wsURL  string
	logger *slog.Logger

	mu          sync.Mutex
	subscribers map[int]chan Event
	nextID      int

	done      chan struct{}
	closeOnce sync.Once
}

// NewChannel prepares an event channel for the given backend base URL and
// session token. Call Run to start receiving.
func NewChannel(baseURL, clientID string, logger *slog.Logger) (*Channel, error) {
	wsURL, err := websocketURL(baseURL, clientID)
	if err != nil {
		return nil, err
	}

	return &Channel{
		wsURL:       wsURL,
		logger:      logger.With("module", "comfy_events"),
		subscribers: make(map[int]chan Event),
		done:        make(chan struct{}),
	}, nil
}

func websocketURL(baseURL, clientID string) (string, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid backend URL %q: %w", baseURL, err)
	}

	switch parsed.Scheme {
	case "http":
		parsed.Scheme = "ws"
	case "https":
		parsed.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported backend URL scheme %q", parsed.Scheme)
	}

	parsed.Path = strings.TrimRight(parsed.Path, "/") + "/ws"
	query := parsed.Query()
	query.Set("clientId", clientID)
	parsed.RawQuery = query.Encode()

	return parsed.String(), nil
}

// Run connects and reads events until the context is cancelled or the
// channel is closed. Connection drops trigger a delayed reconnect.
func (ch *Channel) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ch.done:
			return
		default:
		}

		if err := ch.readSession(ctx); err != nil {
			ch.logger.WarnContext(ctx, "Event stream disconnected", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-ch.done:
			return
		case <-time.After(reconnectDelay):
		}
	}
}

func (ch *Channel) readSession(ctx context.Context) error {
	conn, _, err := websocket.Dial(ctx, ch.wsURL, nil)
	if err != nil {
		return fmt.Errorf("failed to connect to event stream: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "session ended")

	conn.SetReadLimit(32 * 1024 * 1024)

	ch.logger.InfoContext(ctx, "Connected to backend event stream")

	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("event stream read failed: %w", err)
		}

		var event *Event

		switch msgType {
		case websocket.MessageText:
			event, err = parseTextEvent(data)
		case websocket.MessageBinary:
			event, err = parseBinaryFrame(data)
		}

		if err != nil {
			ch.logger.WarnContext(ctx, "Dropping malformed event", "error", err)

			continue
		}

		if event != nil {
			ch.publish(*event)
		}
	}
}

// Subscribe registers a new listener. The returned function detaches it;
// always call it once the listener is done.
func (ch *Channel) Subscribe() (<-chan Event, func()) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	id := ch.nextID
	ch.nextID++

	events := make(chan Event, subscriberBuffer)
	ch.subscribers[id] = events

	cancel := func() {
		ch.mu.Lock()
		defer ch.mu.Unlock()

		if sub, ok := ch.subscribers[id]; ok {
			delete(ch.subscribers, id)
			close(sub)
		}
	}

	return events, cancel
}

func (ch *Channel) publish(event Event) {
	ch.mu.Lock()
	defer ch.mu.Unlock()

	for _, sub := range ch.subscribers {
		select {
		case sub <- event:
		default:
			ch.logger.Warn("Subscriber queue full, dropping event", "kind", event.Kind)
		}
	}
}

// Close shuts the channel down and detaches all subscribers.
func (ch *Channel) Close() {
	ch.closeOnce.Do(func() {
		close(ch.done)

		ch.mu.Lock()
		defer ch.mu.Unlock()

		for id, sub := range ch.subscribers {
			delete(ch.subscribers, id)
			close(sub)
		}
	})
}

type eventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func parseTextEvent(data []byte) (*Event, error) {
	var envelope eventEnvelope

	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("failed to decode event envelope: %w", err)
	}

	switch envelope.Type {
	case "status":
		var payload struct {
			Status struct {
				ExecInfo struct {
					QueueRemaining int `json:"queue_remaining"`
				} `json:"exec_info"`
			} `json:"status"`
		}

		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode status event: %w", err)
		}

		return &Event{
			Kind:           EventStatus,
			QueueRemaining: payload.Status.ExecInfo.QueueRemaining,
		}, nil

	case "progress":
		var payload struct {
			PromptID string `json:"prompt_id"`
			Node     string `json:"node"`
			Value    int    `json:"value"`
			Max      int    `json:"max"`
		}

		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode progress event: %w", err)
		}

		return &Event{
			Kind:     EventProgress,
			PromptID: payload.PromptID,
			NodeID:   payload.Node,
			Value:    payload.Value,
			Max:      payload.Max,
		}, nil

	case "executed":
		var payload struct {
			PromptID string `json:"prompt_id"`
			Node     string `json:"node"`
			Output   struct {
				Images []models.ImageRef `json:"images"`
			} `json:"output"`
		}

		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode executed event: %w", err)
		}

		return &Event{
			Kind:     EventExecuted,
			PromptID: payload.PromptID,
			NodeID:   payload.Node,
			Images:   payload.Output.Images,
		}, nil
	}

	// Other event types are not interesting to us.
	return nil, nil
}

func parseBinaryFrame(data []byte) (*Event, error) {
	if len(data) < previewHeaderLength {
		return nil, fmt.Errorf("binary frame too short: %d bytes", len(data))
	}

	eventType := binary.BigEndian.Uint32(data[0:4])
	if eventType != previewEventType {
		return nil, nil
	}

	format := binary.BigEndian.Uint32(data[4:8])

	mimeType := "image/jpeg"
	if format == 2 {
		mimeType = "image/png"
	}

	return &Event{
		Kind: EventPreview,
		Preview: &PreviewFrame{
			MimeType: mimeType,
			Data:     data[previewHeaderLength:],
		},
	}, nil
}
