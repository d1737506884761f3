package model

import "time"

// ActionTemplate is an Action with volatile fields dropped and, for slots
// the detector saw varying across repetitions, the payload marked variable
// together with the observed sample values.
type ActionTemplate struct {
	Kind       ActionKind `json:"kind"`
	Surface    Surface    `json:"surface"`
	Target     Target     `json:"target"`
	Payload    string     `json:"payload,omitempty"`
	Variable   bool       `json:"variable,omitempty"`
	Samples    []string   `json:"samples,omitempty"`
	Confidence float64    `json:"confidence"`
}

func (t ActionTemplate) Concrete() Action {
	return Action{
		Kind:    t.Kind,
		Surface: t.Surface,
		Target:  t.Target,
		Payload: t.Payload,
	}
}

// Workflow is a detected, reusable sequence of action templates.
// Frequency and LastSeen are maintained by the detector, Confidence by the
// feedback model, Schema by the parameterizer. Never deleted automatically.
type Workflow struct {
	Id          string           `json:"id"`
	Name        string           `json:"name"`
	Actions     []ActionTemplate `json:"actions"`
	Frequency   int              `json:"frequency"`
	Confidence  float64          `json:"confidence"`
	Schema      *ParameterSchema `json:"schema,omitempty"`
	Suggestions []string         `json:"suggestions,omitempty"`
	CreatedAt   time.Time        `json:"createdAt"`
	LastSeen    time.Time        `json:"lastSeen"`
}

type ParameterType string

const PARAM_TEXT ParameterType = "text"
const PARAM_NUMBER ParameterType = "number"
const PARAM_DATE ParameterType = "date"
const PARAM_FILE ParameterType = "file"
const PARAM_CHOICE ParameterType = "choice"

type ValidationRules struct {
	Pattern   string   `json:"pattern,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
	MinLength int      `json:"minLength,omitempty"`
	MaxLength int      `json:"maxLength,omitempty"`
	Choices   []string `json:"choices,omitempty"`
	// Expr is a javascript expression evaluated against {value: v};
	// it must evaluate truthy for the value to pass.
	Expr string `json:"expr,omitempty"`
}

type Parameter struct {
	Name        string          `json:"name"`
	Type        ParameterType   `json:"type"`
	Description string          `json:"description,omitempty"`
	Default     any             `json:"default,omitempty"`
	Required    bool            `json:"required"`
	Rules       ValidationRules `json:"rules,omitempty"`
}

// ParameterSchema is owned by exactly one workflow and recomputed, never
// merged, when the parameterizer re-runs.
type ParameterSchema struct {
	WorkflowId string      `json:"workflowId"`
	Version    int         `json:"version"`
	Parameters []Parameter `json:"parameters"`
	CreatedAt  time.Time   `json:"createdAt"`
	UpdatedAt  time.Time   `json:"updatedAt"`
}
