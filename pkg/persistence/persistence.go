// Package persistence defines the document-store contract for workflows,
// input groups, and saved automations.
package persistence

import (
	"context"

	"github.com/comfychain/comfychain/pkg/models"
)

// Store is a name-keyed JSON document store. Workflow graphs, their input
// groups, and automation definitions are each stored under the workflow or
// automation name.
type Store interface {
	// ListWorkflows returns workflow names, most recently modified first.
	ListWorkflows(ctx context.Context) ([]string, error)

	// LoadWorkflow returns the stored graph for a workflow name, or
	// ErrWorkflowNotFound.
	LoadWorkflow(ctx context.Context, name string) (models.Graph, error)

	// SaveWorkflow stores a graph under the given name, replacing any
	// previous version.
	SaveWorkflow(ctx context.Context, name string, graph models.Graph) error

	// LoadGroups returns the declared input groups for a workflow. A
	// workflow with no groups yields an empty slice, not an error.
	LoadGroups(ctx context.Context, name string) ([]models.Group, error)

	// SaveGroups stores the input groups for a workflow.
	SaveGroups(ctx context.Context, name string, groups []models.Group) error

	// ListAutomations returns saved automation names.
	ListAutomations(ctx context.Context) ([]string, error)

	// LoadAutomation returns the ordered step definitions of a saved
	// automation, or ErrAutomationNotFound.
	LoadAutomation(ctx context.Context, name string) ([]models.AutomationStep, error)

	// SaveAutomation stores an automation definition and returns the name
	// it was stored under (the given name, sanitized).
	SaveAutomation(ctx context.Context, name string, steps []models.AutomationStep) (string, error)

	// HealthCheck verifies the store is reachable.
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the store.
	Close(ctx context.Context) error
}
