package queue

import (
	"context"
	"log/slog"

	"github.com/comfychain/comfychain/pkg/models"
)

// Resolver applies inter-step connections just before a step is submitted:
// either a literal value copied from the predecessor's graph, or the
// predecessor's finished image bridged into an input-ready upload. Only the
// consuming step is ever mutated.
type Resolver struct {
	backend Backend
	logger  *slog.Logger
}

func NewResolver(backend Backend, logger *slog.Logger) *Resolver {
	return &Resolver{
		backend: backend,
		logger:  logger.With("module", "queue_resolver"),
	}
}

// Resolve bridges data from prev into curr according to their connection
// selectors. Bridging is best-effort: unconfigured or unresolvable
// connections are logged and skipped, and the step proceeds either way.
func (r *Resolver) Resolve(ctx context.Context, prev, curr *models.Step) {
	if prev == nil || prev.ConnectedOutput == nil || curr.ConnectedInput == nil {
		return
	}

	out := prev.ConnectedOutput
	in := curr.ConnectedInput

	if out.IsImage() || r.isSavedImageSelector(prev, out) {
		r.bridgeImage(ctx, prev, curr, in)

		return
	}

	value, ok := prev.InputValue(out.NodeID, out.Key)
	if !ok {
		r.logger.WarnContext(ctx, "Connected output has no value, skipping bridge",
			"step", prev.ID, "node", out.NodeID, "key", out.Key)

		return
	}

	if !curr.SetInputValue(in.NodeID, in.Key, value) {
		r.logger.WarnContext(ctx, "Connected input node missing, skipping bridge",
			"step", curr.ID, "node", in.NodeID)
	}
}

// isSavedImageSelector detects a node selector that points at a save node's
// filename prefix. Copying the prefix string would be useless; the user
// means the produced image, so it is treated as an image hand-off.
func (r *Resolver) isSavedImageSelector(prev *models.Step, out *models.Selector) bool {
	if out.Key != "filename_prefix" {
		return false
	}

	node, ok := prev.Graph[out.NodeID]

	return ok && node.IsSaveNode()
}

func (r *Resolver) bridgeImage(ctx context.Context, prev, curr *models.Step, in *models.Selector) {
	if prev.OutputImageMeta == nil {
		r.logger.WarnContext(ctx, "Predecessor produced no image, skipping bridge",
			"step", prev.ID)

		return
	}

	name, err := r.backend.BridgeImage(ctx, *prev.OutputImageMeta)
	if err != nil {
		r.logger.WarnContext(ctx, "Image bridge failed, submitting without bridged value",
			"step", prev.ID, "error", err)

		return
	}

	if !curr.SetInputValue(in.NodeID, in.Key, name) {
		r.logger.WarnContext(ctx, "Connected input node missing, discarding bridged image",
			"step", curr.ID, "node", in.NodeID)
	}
}
