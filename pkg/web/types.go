package web

import "github.com/comfychain/comfychain/pkg/models"

// EnqueueRequest appends a stored workflow to the queue.
type EnqueueRequest struct {
	Filename string `json:"filename" validate:"required"`
}

// ReorderRequest moves a queued step to a new position.
type ReorderRequest struct {
	Position int `json:"position" validate:"min=0"`
}

// ConnectionRequest wires a step's output selector to its successor's
// input selector.
type ConnectionRequest struct {
	Output *models.Selector `json:"output"`
	Input  *models.Selector `json:"input"`
}

// NameRequest carries an automation name for save and load operations.
type NameRequest struct {
	Name string `json:"name" validate:"required"`
}

// SaveGroupsRequest replaces a workflow's declared input groups.
type SaveGroupsRequest struct {
	Groups []models.Group `json:"groups" validate:"required,dive"`
}

// SaveAutomationRequest stores an automation definition directly, without
// going through the queue.
type SaveAutomationRequest struct {
	Name  string                  `json:"name"  validate:"required"`
	Steps []models.AutomationStep `json:"steps" validate:"required,min=1,dive"`
}

// WorkflowResponse is a stored workflow with its input groups.
type WorkflowResponse struct {
	Name   string         `json:"name"`
	Graph  models.Graph   `json:"graph"`
	Groups []models.Group `json:"groups"`
}

// QueueResponse is the queue's current shape.
type QueueResponse struct {
	Running bool           `json:"running"`
	Steps   []*models.Step `json:"steps"`
}
