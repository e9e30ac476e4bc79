package models

// StepStatus represents the lifecycle state of a queued step.
type StepStatus string

const (
	StepStatusPending StepStatus = "pending" // Enqueued, not yet executed
	StepStatusRunning StepStatus = "running" // Submitted, waiting for terminal event
	StepStatusDone    StepStatus = "done"    // Terminal: completed successfully
	StepStatusError   StepStatus = "error"   // Terminal: failed, later steps still run
)

// InputRef identifies one editable input slot inside a workflow graph.
type InputRef struct {
	NodeID string `json:"nodeId" validate:"required"`
	Key    string `json:"key"    validate:"required"`
}

// Group is a curated, ordered subset of a workflow's inputs exposed for
// end-user editing and for chaining.
type Group struct {
	Title  string     `json:"title"`
	Inputs []InputRef `json:"inputs"`
}

// SelectorImage is the reserved special selector meaning "pass my finished
// output image", offered only for graphs containing a save node.
const SelectorImage = "IMAGE"

// Selector describes what a step exposes to its successor (output side) or
// which input receives the predecessor's bridged value (input side). Either
// Special is set, or NodeID/Key are.
type Selector struct {
	Special string `json:"special,omitempty"`
	NodeID  string `json:"nodeId,omitempty"`
	Key     string `json:"key,omitempty"`
}

// IsImage reports whether the selector is the reserved generated-image
// selector.
func (s *Selector) IsImage() bool {
	return s != nil && s.Special == SelectorImage
}

// ImageRef is the backend locator for a produced image, as delivered in
// executed events. It is required to re-submit the image as an upload to a
// later step.
type ImageRef struct {
	Filename  string `json:"filename"`
	Subfolder string `json:"subfolder"`
	Type      string `json:"type"`
}

// Step is one queued workflow instance within an automation run. It is
// mutated in place by the connection resolver and history reconciler while
// the queue lifecycle controller drives its execution.
type Step struct {
	ID       string  `json:"id"`
	Filename string  `json:"filename"`
	Graph    Graph   `json:"graph"`
	Groups   []Group `json:"groups"`

	Status StepStatus `json:"status"`

	// OutputImage is a locator for the most recent preview or final image,
	// never binary data. OutputImageMeta is set only once a final image has
	// been confirmed and is what image bridging consumes.
	OutputImage     string    `json:"outputImage,omitempty"`
	OutputImageMeta *ImageRef `json:"outputImageMeta,omitempty"`
	IsFinished      bool      `json:"isFinished"`

	ConnectedOutput *Selector `json:"connectedOutput,omitempty"`
	ConnectedInput  *Selector `json:"connectedInput,omitempty"`
}

// ResetOutput clears per-run output state before a new submission.
func (s *Step) ResetOutput() {
	s.OutputImage = ""
	s.OutputImageMeta = nil
	s.IsFinished = false
}

// InputValue returns the literal current value of the referenced input and
// whether it exists.
func (s *Step) InputValue(nodeID, key string) (any, bool) {
	node, ok := s.Graph[nodeID]
	if !ok || node.Inputs == nil {
		return nil, false
	}

	val, ok := node.Inputs[key]

	return val, ok
}

// SetInputValue writes a value into an input slot. Unlike reconciliation,
// this creates the key if the node exists but the key does not.
func (s *Step) SetInputValue(nodeID, key string, value any) bool {
	node, ok := s.Graph[nodeID]
	if !ok {
		return false
	}

	if node.Inputs == nil {
		node.Inputs = make(map[string]any)
	}

	node.Inputs[key] = value

	return true
}
