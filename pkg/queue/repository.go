package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/comfychain/comfychain/pkg/models"
	"github.com/comfychain/comfychain/pkg/persistence"
)

// Repository turns stored workflows into runnable queue steps.
type Repository struct {
	store  persistence.Store
	logger *slog.Logger
}

func NewRepository(store persistence.Store, logger *slog.Logger) *Repository {
	return &Repository{
		store:  store,
		logger: logger.With("module", "queue_repository"),
	}
}

// LoadStep builds a fresh pending step from the named workflow. The graph
// is deep-copied so queued steps never share node state with each other or
// with the store. Workflows without input groups cannot be queued.
func (r *Repository) LoadStep(ctx context.Context, filename string) (*models.Step, error) {
	groups, err := r.store.LoadGroups(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load groups for %q: %w", filename, err)
	}

	if len(groups) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrNoGroupsDefined, filename)
	}

	graph, err := r.store.LoadWorkflow(ctx, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to load workflow %q: %w", filename, err)
	}

	return &models.Step{
		ID:       uuid.New().String(),
		Filename: filename,
		Graph:    graph.Clone(),
		Groups:   groups,
		Status:   models.StepStatusPending,
	}, nil
}
