package queue

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/comfychain/comfychain/pkg/comfy"
	"github.com/comfychain/comfychain/pkg/models"
)

// Reconciler folds the backend's authoritative execution record back into a
// step's graph after completion, so resolved values (interrogated prompts,
// computed strings) survive into the next run and into chaining.
type Reconciler struct {
	backend Backend
	logger  *slog.Logger
}

func NewReconciler(backend Backend, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		backend: backend,
		logger:  logger.With("module", "queue_reconciler"),
	}
}

// Reconcile fetches the job's history record and applies its outputs to the
// step's graph in place.
func (r *Reconciler) Reconcile(ctx context.Context, promptID string, step *models.Step) error {
	outputs, err := r.backend.History(ctx, promptID)
	if err != nil {
		return fmt.Errorf("failed to reconcile step %s: %w", step.ID, err)
	}

	applied := applyOutputs(step.Graph, outputs)

	r.logger.DebugContext(ctx, "Reconciled history into graph",
		"step", step.ID, "prompt_id", promptID, "applied", applied)

	return nil
}

// applyOutputs copies recorded node outputs into matching graph inputs and
// returns how many values were written. The rules are deliberately narrow:
//
//   - image lists are skipped, they are handled by the event stream
//   - list values collapse to their first element
//   - nested objects are skipped
//   - only inputs that already exist are updated, except that a recorded
//     "text" output may land in a "text_0" input slot
func applyOutputs(graph models.Graph, outputs comfy.HistoryOutputs) int {
	applied := 0

	for nodeID, nodeOutputs := range outputs {
		node, ok := graph[nodeID]
		if !ok || node.Inputs == nil {
			continue
		}

		for key, value := range nodeOutputs {
			if key == "images" {
				continue
			}

			if list, isList := value.([]any); isList {
				if len(list) == 0 {
					continue
				}

				value = list[0]
			}

			if _, isObject := value.(map[string]any); isObject {
				continue
			}

			target, ok := reconcileTarget(node, key)
			if !ok {
				continue
			}

			node.Inputs[target] = value
			applied++
		}
	}

	return applied
}

func reconcileTarget(node *models.Node, key string) (string, bool) {
	if _, ok := node.Inputs[key]; ok {
		return key, true
	}

	if key == "text" {
		if _, ok := node.Inputs["text_0"]; ok {
			return "text_0", true
		}
	}

	return "", false
}
