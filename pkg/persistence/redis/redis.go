// Package redis provides a Redis-backed document store with the same
// contract as the file store, for deployments where the engine and the
// editing frontend do not share a file system.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/comfychain/comfychain/pkg/models"
	"github.com/comfychain/comfychain/pkg/persistence"
	goredis "github.com/redis/go-redis/v9"
)

const (
	workflowKeyPrefix   = "comfychain:workflow:"
	groupsKeyPrefix     = "comfychain:groups:"
	automationKeyPrefix = "comfychain:automation:"

	// Sorted sets indexing document names by last-modified time.
	workflowIndexKey   = "comfychain:workflows"
	automationIndexKey = "comfychain:automations"
)

// Store implements persistence.Store on a Redis instance. Documents are
// JSON strings; two sorted sets index names by modification time so
// listing preserves most-recent-first order.
type Store struct {
	client *goredis.Client
}

// NewStore creates a Redis store from a redis:// connection URL.
func NewStore(url string) (*Store, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return &Store{client: goredis.NewClient(opts)}, nil
}

// ListWorkflows returns workflow names, most recently modified first.
func (s *Store) ListWorkflows(ctx context.Context) ([]string, error) {
	names, err := s.client.ZRevRange(ctx, workflowIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	return names, nil
}

// LoadWorkflow returns the stored graph for a workflow name.
func (s *Store) LoadWorkflow(ctx context.Context, name string) (models.Graph, error) {
	body, err := s.client.Get(ctx, workflowKeyPrefix+name).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.NewDocumentError("LoadWorkflow", name, persistence.ErrWorkflowNotFound)
		}

		return nil, fmt.Errorf("failed to read workflow %s: %w", name, err)
	}

	var graph models.Graph
	if err := json.Unmarshal(body, &graph); err != nil {
		return nil, fmt.Errorf("failed to unmarshal workflow %s: %w", name, err)
	}

	return graph, nil
}

// SaveWorkflow stores a graph under the given name.
func (s *Store) SaveWorkflow(ctx context.Context, name string, graph models.Graph) error {
	if name == "" {
		return persistence.NewDocumentError("SaveWorkflow", name, persistence.ErrEmptyName)
	}

	data, err := json.Marshal(graph)
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", name, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, workflowKeyPrefix+name, data, 0)
	pipe.ZAdd(ctx, workflowIndexKey, goredis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: name,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to write workflow %s: %w", name, err)
	}

	return nil
}

// LoadGroups returns the declared input groups for a workflow. Missing
// group documents yield an empty slice.
func (s *Store) LoadGroups(ctx context.Context, name string) ([]models.Group, error) {
	body, err := s.client.Get(ctx, groupsKeyPrefix+name).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return []models.Group{}, nil
		}

		return nil, fmt.Errorf("failed to read groups for %s: %w", name, err)
	}

	var groups []models.Group
	if err := json.Unmarshal(body, &groups); err != nil {
		return nil, fmt.Errorf("failed to unmarshal groups for %s: %w", name, err)
	}

	return groups, nil
}

// SaveGroups stores the input groups for a workflow.
func (s *Store) SaveGroups(ctx context.Context, name string, groups []models.Group) error {
	if name == "" {
		return persistence.NewDocumentError("SaveGroups", name, persistence.ErrEmptyName)
	}

	data, err := json.Marshal(groups)
	if err != nil {
		return fmt.Errorf("failed to marshal groups for %s: %w", name, err)
	}

	if err := s.client.Set(ctx, groupsKeyPrefix+name, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to write groups for %s: %w", name, err)
	}

	return nil
}

// ListAutomations returns saved automation names.
func (s *Store) ListAutomations(ctx context.Context) ([]string, error) {
	names, err := s.client.ZRevRange(ctx, automationIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list automations: %w", err)
	}

	return names, nil
}

// LoadAutomation returns the ordered step definitions of a saved automation.
func (s *Store) LoadAutomation(ctx context.Context, name string) ([]models.AutomationStep, error) {
	body, err := s.client.Get(ctx, automationKeyPrefix+name).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, persistence.NewDocumentError("LoadAutomation", name, persistence.ErrAutomationNotFound)
		}

		return nil, fmt.Errorf("failed to read automation %s: %w", name, err)
	}

	var steps []models.AutomationStep
	if err := json.Unmarshal(body, &steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal automation %s: %w", name, err)
	}

	return steps, nil
}

// SaveAutomation stores an automation definition under a sanitized name.
func (s *Store) SaveAutomation(ctx context.Context, name string, steps []models.AutomationStep) (string, error) {
	safeName := persistence.SanitizeName(name)
	if safeName == "" {
		return "", persistence.NewDocumentError("SaveAutomation", name, persistence.ErrEmptyName)
	}

	data, err := json.Marshal(steps)
	if err != nil {
		return "", fmt.Errorf("failed to marshal automation %s: %w", safeName, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, automationKeyPrefix+safeName, data, 0)
	pipe.ZAdd(ctx, automationIndexKey, goredis.Z{
		Score:  float64(time.Now().UnixNano()),
		Member: safeName,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to write automation %s: %w", safeName, err)
	}

	return safeName, nil
}

// HealthCheck pings the Redis server.
func (s *Store) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return s.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *Store) Close(_ context.Context) error {
	return s.client.Close()
}
