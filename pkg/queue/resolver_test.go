package queue

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/comfychain/comfychain/pkg/models"
)

func connectedSteps(outSel, inSel *models.Selector) (*models.Step, *models.Step) {
	prev := &models.Step{
		ID:              "step-1",
		Filename:        "gen",
		Graph:           generatorGraph(),
		ConnectedOutput: outSel,
	}
	curr := &models.Step{
		ID:             "step-2",
		Filename:       "upscale",
		Graph:          consumerGraph(),
		ConnectedInput: inSel,
	}

	return prev, curr
}

func TestResolver_NoConnectionIsNoOp(t *testing.T) {
	session := newFakeSession()
	resolver := NewResolver(session, discardLogger())

	prev, curr := connectedSteps(nil, nil)

	resolver.Resolve(context.Background(), prev, curr)
	assert.Equal(t, "", curr.Graph["5"].Inputs["image"])

	resolver.Resolve(context.Background(), nil, curr)
}

func TestResolver_ImageBridge(t *testing.T) {
	session := newFakeSession()
	session.bridgeName = "out_00001_ (1).png"
	resolver := NewResolver(session, discardLogger())

	prev, curr := connectedSteps(
		&models.Selector{Special: models.SelectorImage},
		&models.Selector{NodeID: "5", Key: "image"},
	)
	prev.OutputImageMeta = &models.ImageRef{Filename: "out_00001_.png", Subfolder: "", Type: "output"}

	resolver.Resolve(context.Background(), prev, curr)

	require.Len(t, session.bridged, 1)
	assert.Equal(t, *prev.OutputImageMeta, session.bridged[0])
	assert.Equal(t, "out_00001_ (1).png", curr.Graph["5"].Inputs["image"])
}

func TestResolver_ImageBridge_NoImageIsSkipped(t *testing.T) {
	session := newFakeSession()
	resolver := NewResolver(session, discardLogger())

	prev, curr := connectedSteps(
		&models.Selector{Special: models.SelectorImage},
		&models.Selector{NodeID: "5", Key: "image"},
	)

	// Predecessor never produced an image.
	resolver.Resolve(context.Background(), prev, curr)
	assert.Empty(t, session.bridged)
	assert.Equal(t, "", curr.Graph["5"].Inputs["image"])
}

func TestResolver_ImageBridge_UploadFailure(t *testing.T) {
	session := newFakeSession()
	session.bridgeErr = errors.New("upload rejected")
	resolver := NewResolver(session, discardLogger())

	prev, curr := connectedSteps(
		&models.Selector{Special: models.SelectorImage},
		&models.Selector{NodeID: "5", Key: "image"},
	)
	prev.OutputImageMeta = &models.ImageRef{Filename: "out_00001_.png"}

	// A failed upload is logged and skipped; the consumer keeps its
	// unbridged input and still gets submitted.
	resolver.Resolve(context.Background(), prev, curr)

	require.Len(t, session.bridged, 1)
	assert.Equal(t, "", curr.Graph["5"].Inputs["image"])
}

func TestResolver_SaveNodePrefixSelectorMeansImage(t *testing.T) {
	session := newFakeSession()
	resolver := NewResolver(session, discardLogger())

	// A node selector pointing at a save node's filename_prefix is an image
	// hand-off, not a literal string copy.
	prev, curr := connectedSteps(
		&models.Selector{NodeID: "9", Key: "filename_prefix"},
		&models.Selector{NodeID: "5", Key: "image"},
	)
	prev.OutputImageMeta = &models.ImageRef{Filename: "out_00002_.png"}

	resolver.Resolve(context.Background(), prev, curr)

	require.Len(t, session.bridged, 1)
	assert.Equal(t, "bridged.png", curr.Graph["5"].Inputs["image"])
}

func TestResolver_LiteralValueCopy(t *testing.T) {
	tests := []struct {
		name  string
		value any
	}{
		{name: "string", value: "a castle"},
		{name: "zero number", value: float64(0)},
		{name: "empty string", value: ""},
		{name: "false", value: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			session := newFakeSession()
			resolver := NewResolver(session, discardLogger())

			prev, curr := connectedSteps(
				&models.Selector{NodeID: "6", Key: "text"},
				&models.Selector{NodeID: "5", Key: "image"},
			)
			prev.Graph["6"].Inputs["text"] = tt.value

			resolver.Resolve(context.Background(), prev, curr)

			// Zero values are copied exactly, not treated as missing.
			assert.Equal(t, tt.value, curr.Graph["5"].Inputs["image"])
			assert.Empty(t, session.bridged)
		})
	}
}

func TestResolver_MissingSourceValueIsSkipped(t *testing.T) {
	session := newFakeSession()
	resolver := NewResolver(session, discardLogger())

	prev, curr := connectedSteps(
		&models.Selector{NodeID: "6", Key: "nope"},
		&models.Selector{NodeID: "5", Key: "image"},
	)

	resolver.Resolve(context.Background(), prev, curr)
	assert.Equal(t, "", curr.Graph["5"].Inputs["image"])
}

func TestResolver_OnlyConsumerIsMutated(t *testing.T) {
	session := newFakeSession()
	resolver := NewResolver(session, discardLogger())

	prev, curr := connectedSteps(
		&models.Selector{NodeID: "6", Key: "text"},
		&models.Selector{NodeID: "5", Key: "image"},
	)

	before := prev.Graph.Clone()

	resolver.Resolve(context.Background(), prev, curr)
	assert.Equal(t, before, prev.Graph)
}
