package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/comfychain/comfychain/pkg/models"
	"github.com/comfychain/comfychain/pkg/persistence"
	"github.com/xeipuuv/gojsonschema"
)

// automationSchema validates stored automation documents before they are
// turned into queue entries. Hand-edited files are the expected failure
// mode here, not code bugs.
var automationSchema = map[string]any{
	"type": "array",
	"items": map[string]any{
		"type":     "object",
		"required": []any{"filename"},
		"properties": map[string]any{
			"filename": map[string]any{"type": "string", "minLength": 1},
			"connectedOutput": map[string]any{
				"type": []any{"object", "null"},
			},
			"connectedInput": map[string]any{
				"type": []any{"object", "null"},
			},
		},
	},
}

// ListAutomations returns saved automation names.
func (s *Store) ListAutomations(_ context.Context) ([]string, error) {
	dir := filepath.Join(s.root, automationsDir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}

		return nil, fmt.Errorf("failed to list automations: %w", err)
	}

	names := make([]string, 0, len(entries))

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		names = append(names, trimName(entry.Name()))
	}

	return names, nil
}

// LoadAutomation returns the ordered step definitions of a saved automation.
func (s *Store) LoadAutomation(_ context.Context, name string) ([]models.AutomationStep, error) {
	name = trimName(name)
	if name == "" {
		return nil, persistence.NewDocumentError("LoadAutomation", name, persistence.ErrEmptyName)
	}

	body, err := os.ReadFile(s.automationPath(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, persistence.NewDocumentError("LoadAutomation", name, persistence.ErrAutomationNotFound)
		}

		return nil, fmt.Errorf("failed to read automation %s: %w", name, err)
	}

	if err := validateAutomationDocument(body); err != nil {
		return nil, persistence.NewDocumentError("LoadAutomation", name, err)
	}

	var steps []models.AutomationStep
	if err := json.Unmarshal(body, &steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal automation %s: %w", name, err)
	}

	return steps, nil
}

// SaveAutomation stores an automation definition under a sanitized name and
// returns the name it was stored under.
func (s *Store) SaveAutomation(_ context.Context, name string, steps []models.AutomationStep) (string, error) {
	safeName := persistence.SanitizeName(name)
	if safeName == "" {
		return "", persistence.NewDocumentError("SaveAutomation", name, persistence.ErrEmptyName)
	}

	if err := os.MkdirAll(filepath.Join(s.root, automationsDir), 0750); err != nil {
		return "", fmt.Errorf("failed to create automations directory: %w", err)
	}

	data, err := json.MarshalIndent(steps, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal automation %s: %w", safeName, err)
	}

	if err := os.WriteFile(s.automationPath(safeName), data, 0600); err != nil {
		return "", fmt.Errorf("failed to write automation %s: %w", safeName, err)
	}

	return safeName, nil
}

func (s *Store) automationPath(name string) string {
	return filepath.Clean(filepath.Join(s.root, automationsDir, name+".json"))
}

func validateAutomationDocument(body []byte) error {
	schemaLoader := gojsonschema.NewGoLoader(automationSchema)
	dataLoader := gojsonschema.NewBytesLoader(body)

	result, err := gojsonschema.Validate(schemaLoader, dataLoader)
	if err != nil {
		return fmt.Errorf("%w: %w", persistence.ErrInvalidAutomation, err)
	}

	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, desc := range result.Errors() {
			details = append(details, desc.String())
		}

		return fmt.Errorf("%w: %s", persistence.ErrInvalidAutomation, strings.Join(details, "; "))
	}

	return nil
}
