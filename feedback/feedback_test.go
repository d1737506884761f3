package feedback

import (
	"fmt"
	"strings"
	"testing"

	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/persistence/inmem"
	"github.com/stretchr/testify/assert"
)

func seedWorkflow(t *testing.T, storage *inmem.Storage, confidence float64) *model.Workflow {
	t.Helper()
	wf := &model.Workflow{Id: "wf-1", Name: "test", Confidence: confidence,
		Actions: []model.ActionTemplate{{Kind: model.KIND_CLICK, Surface: model.SURFACE_DESKTOP}}}
	assert.NoError(t, storage.Workflows().Save(wf))
	return wf
}

func terminalExecution(id string, state model.ExecutionState, errText string) *model.Execution {
	e := &model.Execution{Id: id, WorkflowId: "wf-1", State: state, Error: errText}
	if errText != "" {
		e.Log = []model.ActionLogEntry{{ActionIndex: 0, Kind: model.KIND_CLICK, Error: errText}}
	}
	return e
}

func TestRecordSuccessRaisesConfidence(t *testing.T) {
	storage := inmem.NewStorage()
	seedWorkflow(t, storage, 0.5)
	m := New(storage)

	execution := terminalExecution("e1", model.EXECUTION_COMPLETED, "")
	assert.NoError(t, storage.Executions().Save(execution))
	assert.NoError(t, m.Record(execution))

	wf, err := storage.Workflows().Get("wf-1")
	assert.NoError(t, err)
	assert.InDelta(t, 0.55, wf.Confidence, 1e-9)
	assert.InDelta(t, 0.05, execution.ConfidenceDelta, 1e-9)
}

func TestRecordFailureCutsConfidenceHarder(t *testing.T) {
	storage := inmem.NewStorage()
	seedWorkflow(t, storage, 0.5)
	m := New(storage)

	execution := terminalExecution("e1", model.EXECUTION_FAILED, "click timeout exceeded")
	assert.NoError(t, storage.Executions().Save(execution))
	assert.NoError(t, m.Record(execution))

	wf, err := storage.Workflows().Get("wf-1")
	assert.NoError(t, err)
	assert.InDelta(t, 0.375, wf.Confidence, 1e-9)
	assert.Negative(t, execution.ConfidenceDelta)
	assert.Len(t, wf.Suggestions, 1)
	assert.Contains(t, wf.Suggestions[0], "wait steps")
}

func TestConfidenceNeverLeavesUnitRange(t *testing.T) {
	storage := inmem.NewStorage()
	seedWorkflow(t, storage, 0.99)
	m := New(storage)

	for i := 0; i < 50; i++ {
		e := terminalExecution(fmt.Sprintf("up-%d", i), model.EXECUTION_COMPLETED, "")
		assert.NoError(t, storage.Executions().Save(e))
		assert.NoError(t, m.Record(e))
	}
	wf, _ := storage.Workflows().Get("wf-1")
	assert.LessOrEqual(t, wf.Confidence, 1.0)

	for i := 0; i < 50; i++ {
		e := terminalExecution(fmt.Sprintf("down-%d", i), model.EXECUTION_FAILED, "boom")
		assert.NoError(t, storage.Executions().Save(e))
		assert.NoError(t, m.Record(e))
	}
	wf, _ = storage.Workflows().Get("wf-1")
	assert.GreaterOrEqual(t, wf.Confidence, 0.0)
}

func TestStoppedExecutionLeavesConfidenceAlone(t *testing.T) {
	storage := inmem.NewStorage()
	seedWorkflow(t, storage, 0.6)
	m := New(storage)

	for _, state := range []model.ExecutionState{model.EXECUTION_STOPPED, model.EXECUTION_INTERRUPTED} {
		execution := terminalExecution("e-"+string(state), state, "")
		assert.NoError(t, m.Record(execution))
	}
	wf, err := storage.Workflows().Get("wf-1")
	assert.NoError(t, err)
	assert.Equal(t, 0.6, wf.Confidence)
	assert.Empty(t, wf.Suggestions)
}

func TestFailureClassification(t *testing.T) {
	scenarios := map[string]failureClass{
		"context deadline exceeded":  failureTiming,
		"coordinates (5000,10) outside screen 1920x1080": failureCoordinate,
		"element not found":          failureSelector,
		"parameter email_2 rejected": failureValidation,
		"something exploded":         failureUnknown,
	}
	for message, expected := range scenarios {
		assert.Equal(t, expected, classify(message), message)
	}
}

func TestFailureStreakSuggestion(t *testing.T) {
	storage := inmem.NewStorage()
	seedWorkflow(t, storage, 0.8)
	m := New(storage)

	var last *model.Workflow
	for i := 0; i < 3; i++ {
		e := terminalExecution(fmt.Sprintf("f-%d", i), model.EXECUTION_FAILED, "boom")
		assert.NoError(t, storage.Executions().Save(e))
		assert.NoError(t, m.Record(e))
		var err error
		last, err = storage.Workflows().Get("wf-1")
		assert.NoError(t, err)
	}

	found := false
	for _, s := range last.Suggestions {
		if strings.Contains(s, "in a row") {
			found = true
		}
	}
	assert.True(t, found, "expected a failure streak suggestion, got %v", last.Suggestions)
}
