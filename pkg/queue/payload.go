package queue

import (
	"math/rand/v2"
	"strings"

	"github.com/comfychain/comfychain/pkg/models"
)

const seedUpperBound = 10_000_000_000

// buildPayload derives the submission payload from a step's graph. Editor
// bookkeeping nodes are stripped and sampler seeds are re-randomized. The
// step's own graph is never modified; randomized seeds exist only in the
// payload so the stored workflow keeps the user's value.
func buildPayload(graph models.Graph) models.Graph {
	payload := make(models.Graph, len(graph))

	for id, node := range graph {
		if strings.HasPrefix(id, models.PrivateNodePrefix) {
			continue
		}

		if node == nil || node.ClassType == "" || node.ClassType == models.GroupMarkerClass {
			continue
		}

		clone := node.Clone()

		if clone.IsSampler() {
			if _, ok := clone.Inputs["seed"]; ok {
				clone.Inputs["seed"] = rand.Int64N(seedUpperBound)
			}
		}

		payload[id] = clone
	}

	return payload
}
