package parameterizer

import (
	"testing"

	"github.com/recurhq/recur/model"
	"github.com/stretchr/testify/assert"
)

func sampleWorkflow() *model.Workflow {
	return &model.Workflow{
		Id: "wf-1",
		Actions: []model.ActionTemplate{
			{Kind: model.KIND_CLICK, Surface: model.SURFACE_DESKTOP, Target: model.Target{X: 100, Y: 200}},
			{
				Kind:     model.KIND_TYPE,
				Surface:  model.SURFACE_DESKTOP,
				Payload:  "alice@example.com",
				Variable: true,
				Samples:  []string{"alice@example.com", "bob@example.com"},
			},
		},
	}
}

func TestCreateSchemaRewritesVariableSlots(t *testing.T) {
	p := New()
	wf := sampleWorkflow()

	schema := p.CreateSchema(wf)
	assert.Equal(t, "wf-1", schema.WorkflowId)
	assert.Equal(t, 1, schema.Version)
	assert.Len(t, schema.Parameters, 1)

	param := schema.Parameters[0]
	assert.Equal(t, "email_2", param.Name)
	assert.Equal(t, model.PARAM_TEXT, param.Type)
	assert.True(t, param.Required)
	assert.Equal(t, "bob@example.com", param.Default)
	assert.NotEmpty(t, param.Rules.Pattern)

	assert.Equal(t, "${email_2}", wf.Actions[1].Payload)
	assert.Same(t, schema, wf.Schema)
}

func TestCreateSchemaRecomputesVersion(t *testing.T) {
	p := New()
	wf := sampleWorkflow()

	first := p.CreateSchema(wf)
	second := p.CreateSchema(wf)
	assert.Equal(t, first.Version+1, second.Version)
	assert.Equal(t, first.CreatedAt, second.CreatedAt)
}

func TestSubstituteAllSyntaxes(t *testing.T) {
	p := New()
	wf := &model.Workflow{
		Id: "wf-2",
		Actions: []model.ActionTemplate{
			{Kind: model.KIND_TYPE, Surface: model.SURFACE_DESKTOP, Payload: "hello {{who}}"},
			{Kind: model.KIND_TYPE, Surface: model.SURFACE_DESKTOP, Payload: "id ${who}"},
			{Kind: model.KIND_TYPE, Surface: model.SURFACE_DESKTOP, Payload: "tag <who>"},
			{Kind: model.KIND_NAVIGATE, Surface: model.SURFACE_BROWSER, Target: model.Target{Url: "https://example.com/{$.values.who}"}},
		},
	}

	actions, err := p.Substitute(wf, map[string]any{"who": "alice"})
	assert.NoError(t, err)
	assert.Equal(t, "hello alice", actions[0].Payload)
	assert.Equal(t, "id alice", actions[1].Payload)
	assert.Equal(t, "tag alice", actions[2].Payload)
	assert.Equal(t, "https://example.com/alice", actions[3].Target.Url)
}

func TestSubstituteMissingRequired(t *testing.T) {
	p := New()
	wf := sampleWorkflow()
	p.CreateSchema(wf)

	// The schema carries a default, but a required parameter still needs
	// an explicit value.
	_, err := p.Substitute(wf, map[string]any{})
	assert.Error(t, err)
	verrs, ok := err.(ValidationErrors)
	assert.True(t, ok)
	assert.Equal(t, "email_2", verrs[0].Field)
	assert.Contains(t, verrs[0].Message, "required parameter missing")

	actions, err := p.Substitute(wf, map[string]any{"email_2": "carol@example.com"})
	assert.NoError(t, err)
	assert.Equal(t, "carol@example.com", actions[1].Payload)
}

func TestSubstituteOptionalDefaultFills(t *testing.T) {
	p := New()
	wf := &model.Workflow{
		Actions: []model.ActionTemplate{
			{Kind: model.KIND_TYPE, Surface: model.SURFACE_DESKTOP, Payload: "${greeting}"},
		},
		Schema: &model.ParameterSchema{Parameters: []model.Parameter{
			{Name: "greeting", Type: model.PARAM_TEXT, Default: "hello"},
		}},
	}

	actions, err := p.Substitute(wf, map[string]any{})
	assert.NoError(t, err)
	assert.Equal(t, "hello", actions[0].Payload)
}

func TestSubstituteLeftoverPlaceholder(t *testing.T) {
	p := New()
	wf := &model.Workflow{
		Actions: []model.ActionTemplate{
			{Kind: model.KIND_TYPE, Surface: model.SURFACE_DESKTOP, Payload: "${unknown}"},
		},
	}
	_, err := p.Substitute(wf, map[string]any{"who": "alice"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "unresolved placeholder")
}

func TestValidateRules(t *testing.T) {
	p := New()
	min, max := 1.0, 10.0
	schema := &model.ParameterSchema{
		WorkflowId: "wf-3",
		Parameters: []model.Parameter{
			{Name: "count", Type: model.PARAM_NUMBER, Required: true, Rules: model.ValidationRules{Min: &min, Max: &max}},
			{Name: "region", Type: model.PARAM_CHOICE, Required: true, Rules: model.ValidationRules{Choices: []string{"emea", "apac"}}},
			{Name: "even", Type: model.PARAM_NUMBER, Required: true, Rules: model.ValidationRules{Expr: "value % 2 === 0"}},
		},
	}

	err := p.Validate(schema, map[string]any{"count": 5.0, "region": "emea", "even": 4})
	assert.NoError(t, err)

	err = p.Validate(schema, map[string]any{"count": 50.0, "region": "mars", "even": 3})
	assert.Error(t, err)
	verrs := err.(ValidationErrors)
	assert.Len(t, verrs, 3)
}

func TestValidateMissingRequired(t *testing.T) {
	p := New()
	schema := &model.ParameterSchema{
		Parameters: []model.Parameter{
			{Name: "name", Type: model.PARAM_TEXT, Required: true, Default: "fallback"},
		},
	}

	// Required is rejected even though a default exists.
	err := p.Validate(schema, map[string]any{})
	assert.Error(t, err)
	verrs := err.(ValidationErrors)
	assert.Equal(t, "name", verrs[0].Field)

	assert.NoError(t, p.Validate(schema, map[string]any{"name": "alice"}))
}
