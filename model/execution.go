package model

import "time"

type ExecutionState string

const EXECUTION_QUEUED ExecutionState = "queued"
const EXECUTION_RUNNING ExecutionState = "running"
const EXECUTION_PAUSED ExecutionState = "paused"
const EXECUTION_COMPLETED ExecutionState = "completed"
const EXECUTION_FAILED ExecutionState = "failed"
const EXECUTION_STOPPED ExecutionState = "stopped"

// EXECUTION_INTERRUPTED is written at startup for executions found in a
// non-terminal state. It requires operator acknowledgment and is never
// resumed automatically.
const EXECUTION_INTERRUPTED ExecutionState = "interrupted"

func (s ExecutionState) Terminal() bool {
	switch s {
	case EXECUTION_COMPLETED, EXECUTION_FAILED, EXECUTION_STOPPED, EXECUTION_INTERRUPTED:
		return true
	}
	return false
}

// ActionLogEntry records one dispatched action with its monitoring
// artifacts. Appended and persisted before the engine proceeds.
type ActionLogEntry struct {
	ActionIndex    int          `json:"actionIndex"`
	Kind           ActionKind   `json:"kind"`
	Result         ActionResult `json:"result"`
	BeforeArtifact string       `json:"beforeArtifact,omitempty"`
	AfterArtifact  string       `json:"afterArtifact,omitempty"`
	ErrorArtifact  string       `json:"errorArtifact,omitempty"`
	StartedAt      time.Time    `json:"startedAt"`
	FinishedAt     time.Time    `json:"finishedAt"`
	Error          string       `json:"error,omitempty"`
}

// Execution is one governed run of a workflow. Terminal executions are
// immutable except for the feedback model's ConfidenceDelta annotation.
type Execution struct {
	Id              string           `json:"id"`
	WorkflowId      string           `json:"workflowId"`
	State           ExecutionState   `json:"state"`
	ParameterValues map[string]any   `json:"parameterValues,omitempty"`
	Actions         []Action         `json:"actions"`
	Log             []ActionLogEntry `json:"log,omitempty"`
	Error           string           `json:"error,omitempty"`
	CreatedAt       time.Time        `json:"createdAt"`
	StartedAt       time.Time        `json:"startedAt,omitempty"`
	CompletedAt     time.Time        `json:"completedAt,omitempty"`
	ConfidenceDelta float64          `json:"confidenceDelta,omitempty"`
}
