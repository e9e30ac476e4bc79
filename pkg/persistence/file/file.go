// Package file provides a file-based document store for workflows, input
// groups, and automations.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/comfychain/comfychain/pkg/models"
	"github.com/comfychain/comfychain/pkg/persistence"
)

const (
	workflowsDir   = "workflows"
	metaDir        = "workflows/meta"
	automationsDir = "automations"

	groupsSuffix = ".groups.json"
)

// Store implements persistence.Store on the local file system. Workflows
// live under <root>/workflows, their group declarations under
// <root>/workflows/meta, automations under <root>/automations.
type Store struct {
	root string
}

// NewStore creates a file store rooted at the given directory. A "file://"
// prefix is accepted and stripped.
func NewStore(root string) *Store {
	return &Store{root: strings.Replace(root, "file://", "", 1)}
}

// ListWorkflows returns workflow names, most recently modified first.
func (s *Store) ListWorkflows(_ context.Context) ([]string, error) {
	dir := filepath.Join(s.root, workflowsDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}

		return nil, fmt.Errorf("failed to list workflows: %w", err)
	}

	type namedFile struct {
		name    string
		modTime int64
	}

	files := make([]namedFile, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, namedFile{
			name:    trimName(entry.Name()),
			modTime: info.ModTime().UnixNano(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime > files[j].modTime
	})

	names := make([]string, len(files))
	for i, f := range files {
		names[i] = f.name
	}

	return names, nil
}

// LoadWorkflow returns the stored graph for a workflow name.
func (s *Store) LoadWorkflow(_ context.Context, name string) (models.Graph, error) {
	name = trimName(name)
	if name == "" {
		return nil, persistence.NewDocumentError("LoadWorkflow", name, persistence.ErrEmptyName)
	}

	body, err := os.ReadFile(s.workflowPath(name))
	if err != nil {
		if os.IsNotExist(err) {
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
func (s *Store) SaveWorkflow(_ context.Context, name string, graph models.Graph) error {
	name = trimName(name)
	if name == "" {
		return persistence.NewDocumentError("SaveWorkflow", name, persistence.ErrEmptyName)
	}

	if err := os.MkdirAll(filepath.Join(s.root, workflowsDir), 0750); err != nil {
		return fmt.Errorf("failed to create workflows directory: %w", err)
	}

	data, err := json.MarshalIndent(graph, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal workflow %s: %w", name, err)
	}

	return os.WriteFile(s.workflowPath(name), data, 0600)
}

// LoadGroups returns the declared input groups for a workflow. Missing
// group files yield an empty slice.
func (s *Store) LoadGroups(_ context.Context, name string) ([]models.Group, error) {
	name = trimName(name)

	body, err := os.ReadFile(s.groupsPath(name))
	if err != nil {
		if os.IsNotExist(err) {
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
func (s *Store) SaveGroups(_ context.Context, name string, groups []models.Group) error {
	name = trimName(name)
	if name == "" {
		return persistence.NewDocumentError("SaveGroups", name, persistence.ErrEmptyName)
	}

	if err := os.MkdirAll(filepath.Join(s.root, metaDir), 0750); err != nil {
		return fmt.Errorf("failed to create meta directory: %w", err)
	}

	data, err := json.MarshalIndent(groups, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal groups for %s: %w", name, err)
	}

	return os.WriteFile(s.groupsPath(name), data, 0600)
}

// HealthCheck verifies the root directory exists.
func (s *Store) HealthCheck(_ context.Context) error {
	if _, err := os.Stat(s.root); os.IsNotExist(err) {
		return os.ErrNotExist
	}

	return nil
}

// Close performs any necessary cleanup. For the file store there is
// nothing to clean up.
func (s *Store) Close(_ context.Context) error {
	return nil
}

func (s *Store) workflowPath(name string) string {
	return filepath.Clean(filepath.Join(s.root, workflowsDir, name+".json"))
}

func (s *Store) groupsPath(name string) string {
	return filepath.Clean(filepath.Join(s.root, metaDir, name+groupsSuffix))
}

// trimName normalizes a document name by stripping a trailing .json
// extension, so callers may pass either form.
func trimName(name string) string {
	return strings.TrimSuffix(strings.TrimSpace(name), ".json")
}
