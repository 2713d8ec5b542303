package workflow

import "fmt"

// Version identifies a workflow definition generation. A continuation token
// embeds the version it was issued under; resuming against a different
// version is always rejected.
type Version struct {
	Major int `json:"maj"`
	Minor int `json:"min"`
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d", v.Major, v.Minor)
}

// State is the complete in-flight execution state of one workflow run. It is
// entirely reconstructible from its continuation token; no server-side row
// is needed to resume.
//
// Invariant: 0 <= StepIndex <= len(definition.Steps).
type State struct {
	WorkflowID string         `json:"wf"`
	Version    Version        `json:"ver"`
	StepIndex  int            `json:"idx"`
	Bag        map[string]any `json:"bag"`
}

// NewState builds fresh state positioned at step 0 with an empty bag.
func NewState(workflowID string, version Version) *State {
	return &State{
		WorkflowID: workflowID,
		Version:    version,
		Bag:        map[string]any{},
	}
}
