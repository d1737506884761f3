package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/recurhq/recur/adapter"
	"github.com/recurhq/recur/cache"
	"github.com/recurhq/recur/detector"
	"github.com/recurhq/recur/engine"
	"github.com/recurhq/recur/model"
	"github.com/recurhq/recur/parameterizer"
	"github.com/recurhq/recur/persistence/inmem"
	"github.com/recurhq/recur/safety"
	"github.com/recurhq/recur/scheduler"
	"github.com/recurhq/recur/service"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
)

type okAdapter struct{}

func (okAdapter) Initialize(ctx context.Context) error { return nil }

func (okAdapter) Dispatch(ctx context.Context, a model.Action) (*model.ActionResult, error) {
	return &model.ActionResult{Success: true}, nil
}

func (okAdapter) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }

func (okAdapter) Close() error { return nil }

type testEnv struct {
	server  *Server
	storage *inmem.Storage
	engine  *engine.Engine
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()
	storage := inmem.NewStorage()
	registry := adapter.NewRegistry()
	registry.Register(model.SURFACE_DESKTOP, func() (adapter.PlatformAdapter, error) {
		return okAdapter{}, nil
	})
	params := parameterizer.New()
	stop := safety.NewStopSignal()
	eng := engine.New(storage, registry, safety.NewValidator(registry, params, 0), params, stop,
		engine.NewArtifactStore(afero.NewMemMapFs(), "/artifacts"), engine.Options{Workers: 1})

	var wg sync.WaitGroup
	sched := scheduler.New(storage, eng, time.Minute, &wg)
	workflows := service.NewWorkflowService(storage, detector.NewDetector(storage, 50),
		params, cache.NewWorkflowCache(time.Minute))
	executions := service.NewExecutionService(storage, eng, stop)

	server, err := NewServer(0, workflows, executions, sched, storage)
	assert.NoError(t, err)
	return &testEnv{server: server, storage: storage, engine: eng}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		assert.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	env.server.Handler.ServeHTTP(rec, req)
	return rec
}

func TestRecordActionEndpoint(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodPost, "/actions", model.Action{
		Kind: model.KIND_CLICK, Target: model.Target{X: 10, Y: 20},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var saved model.Action
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.NotEmpty(t, saved.Id)
	assert.Equal(t, model.SURFACE_DESKTOP, saved.Surface)

	rec = env.do(t, http.MethodPost, "/actions", model.Action{Kind: "teleport"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWorkflowEndpoints(t *testing.T) {
	env := newTestServer(t)
	wf := &model.Workflow{Id: "wf-1", Name: "clicks", Actions: []model.ActionTemplate{
		{Kind: model.KIND_CLICK, Surface: model.SURFACE_DESKTOP},
	}}
	assert.NoError(t, env.storage.Workflows().Save(wf))

	rec := env.do(t, http.MethodGet, "/workflows", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	var listed []model.Workflow
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)

	rec = env.do(t, http.MethodGet, "/workflows/wf-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodGet, "/workflows/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = env.do(t, http.MethodDelete, "/workflows/wf-1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/workflows/wf-1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestExecuteEndpointValidation(t *testing.T) {
	env := newTestServer(t)
	wf := &model.Workflow{Id: "wf-1", Name: "typed",
		Actions: []model.ActionTemplate{{Kind: model.KIND_TYPE, Surface: model.SURFACE_DESKTOP, Payload: "${name}"}},
		Schema: &model.ParameterSchema{WorkflowId: "wf-1", Parameters: []model.Parameter{
			{Name: "name", Type: model.PARAM_TEXT, Required: true},
		}},
	}
	assert.NoError(t, env.storage.Workflows().Save(wf))

	rec := env.do(t, http.MethodPost, "/workflows/wf-1/execute", map[string]any{"parameters": map[string]any{}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "required parameter missing")

	env.engine.Start()
	defer env.engine.Shutdown()
	rec = env.do(t, http.MethodPost, "/workflows/wf-1/execute",
		map[string]any{"parameters": map[string]any{"name": "alice"}})
	assert.Equal(t, http.StatusAccepted, rec.Code)

	var execution model.Execution
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &execution))
	assert.Equal(t, "alice", execution.Actions[0].Payload)
}

func TestEmergencyStopEndpoints(t *testing.T) {
	env := newTestServer(t)

	rec := env.do(t, http.MethodGet, "/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "false")

	rec = env.do(t, http.MethodPost, "/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/stop", nil)
	assert.Contains(t, rec.Body.String(), "true")

	rec = env.do(t, http.MethodDelete, "/stop", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/stop", nil)
	assert.Contains(t, rec.Body.String(), "false")
}

func TestScheduleEndpoints(t *testing.T) {
	env := newTestServer(t)
	wf := &model.Workflow{Id: "wf-1", Name: "clicks", Actions: []model.ActionTemplate{
		{Kind: model.KIND_CLICK, Surface: model.SURFACE_DESKTOP},
	}}
	assert.NoError(t, env.storage.Workflows().Save(wf))

	rec := env.do(t, http.MethodPost, "/schedules", model.Schedule{
		WorkflowId: "wf-1",
		Type:       model.SCHEDULE_INTERVAL,
		Config:     model.ScheduleConfig{IntervalMinutes: 30},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
	var created model.Schedule
	assert.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.NotEmpty(t, created.Id)
	assert.False(t, created.NextRun.IsZero())

	rec = env.do(t, http.MethodGet, "/schedules", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(t, http.MethodPost, "/schedules", model.Schedule{
		WorkflowId: "missing", Type: model.SCHEDULE_INTERVAL,
		Config: model.ScheduleConfig{IntervalMinutes: 30},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodDelete, "/schedules/"+created.Id, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = env.do(t, http.MethodGet, "/schedules/"+created.Id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
