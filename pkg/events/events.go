// Package events defines event types and structures for queue lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const Topic = "comfychain.events"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Run lifecycle events.
	RunStartedEvent  EventType = "run.started"
	RunFinishedEvent EventType = "run.finished"
	RunStoppedEvent  EventType = "run.stopped"

	// Step lifecycle events.
	StepStartedEvent  EventType = "step.started"
	StepFinishedEvent EventType = "step.finished"
	StepFailedEvent   EventType = "step.failed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	RunID     string         `json:"run_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type RunStarted struct {
	BaseEvent

	StepCount int `json:"step_count"`
}

func (r RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunFinished struct {
	BaseEvent

	StepsCompleted int           `json:"steps_completed"`
	StepsFailed    int           `json:"steps_failed"`
	Duration       time.Duration `json:"duration"`
}

func (r RunFinished) GetType() EventType {
	return RunFinishedEvent
}

type RunStopped struct {
	BaseEvent

	StepsCompleted int    `json:"steps_completed"`
	StoppedAtStep  string `json:"stopped_at_step,omitempty"`
}

func (r RunStopped) GetType() EventType {
	return RunStoppedEvent
}

type StepStarted struct {
	BaseEvent

	StepID   string `json:"step_id"`
	Filename string `json:"filename"`
	PromptID string `json:"prompt_id,omitempty"`
}

func (s StepStarted) GetType() EventType {
	return StepStartedEvent
}

type StepFinished struct {
	BaseEvent

	StepID      string        `json:"step_id"`
	Filename    string        `json:"filename"`
	PromptID    string        `json:"prompt_id"`
	OutputImage string        `json:"output_image,omitempty"`
	Duration    time.Duration `json:"duration"`
}

func (s StepFinished) GetType() EventType {
	return StepFinishedEvent
}

type StepFailed struct {
	BaseEvent

	StepID   string        `json:"step_id"`
	Filename string        `json:"filename"`
	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (s StepFailed) GetType() EventType {
	return StepFailedEvent
}

func NewBaseEvent(eventType EventType, runID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		RunID:     runID,
		Metadata:  make(map[string]any),
	}
}
