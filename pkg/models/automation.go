package models

// AutomationStep is the persisted form of one queue entry inside a saved
// automation: which workflow to load plus the chaining selectors. Graphs and
// groups are re-loaded from the document store when the automation is opened.
type AutomationStep struct {
	Filename        string    `json:"filename"                  validate:"required"`
	ConnectedOutput *Selector `json:"connectedOutput,omitempty"`
	ConnectedInput  *Selector `json:"connectedInput,omitempty"`
}
