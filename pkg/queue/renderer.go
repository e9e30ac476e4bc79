package queue

import (
	"github.com/comfychain/comfychain/pkg/comfy"
	"github.com/comfychain/comfychain/pkg/models"
)

// Renderer receives queue state changes for presentation. Implementations
// must be fast; they are called from the run loop.
type Renderer interface {
	// QueueUpdated is called after the step list changes shape.
	QueueUpdated(steps []*models.Step)

	// StepUpdated is called after a step's status or output changes.
	StepUpdated(step *models.Step)

	// StepPreview delivers a transient in-progress image for a running step.
	StepPreview(step *models.Step, frame *comfy.PreviewFrame)
}

// NopRenderer discards all updates.
type NopRenderer struct{}

func (NopRenderer) QueueUpdated([]*models.Step)                  {}
func (NopRenderer) StepUpdated(*models.Step)                     {}
func (NopRenderer) StepPreview(*models.Step, *comfy.PreviewFrame) {}
