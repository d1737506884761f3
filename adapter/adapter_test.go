package adapter

import (
	"context"
	"testing"

	"github.com/recurhq/recur/model"
	"github.com/stretchr/testify/assert"
)

type fakeAdapter struct {
	initialized bool
	closed      bool
	dispatched  []model.Action
}

func (f *fakeAdapter) Initialize(ctx context.Context) error { f.initialized = true; return nil }

func (f *fakeAdapter) Dispatch(ctx context.Context, a model.Action) (*model.ActionResult, error) {
	f.dispatched = append(f.dispatched, a)
	return &model.ActionResult{Success: true}, nil
}

func (f *fakeAdapter) Screenshot(ctx context.Context) ([]byte, error) { return nil, nil }

func (f *fakeAdapter) Close() error { f.closed = true; return nil }

func TestSetLazyInitAndReuse(t *testing.T) {
	registry := NewRegistry()
	created := 0
	var last *fakeAdapter
	registry.Register(model.SURFACE_DESKTOP, func() (PlatformAdapter, error) {
		created++
		last = &fakeAdapter{}
		return last, nil
	})

	set := registry.NewSet()
	a1, err := set.Get(context.Background(), model.SURFACE_DESKTOP)
	assert.NoError(t, err)
	assert.True(t, last.initialized)

	a2, err := set.Get(context.Background(), model.SURFACE_DESKTOP)
	assert.NoError(t, err)
	assert.Same(t, a1, a2)
	assert.Equal(t, 1, created)

	assert.NoError(t, set.CloseAll())
	assert.True(t, last.closed)
}

func TestSetUnknownSurface(t *testing.T) {
	registry := NewRegistry()
	set := registry.NewSet()

	_, err := set.Get(context.Background(), model.SURFACE_BROWSER)
	assert.Error(t, err)
	_, ok := err.(UnavailableError)
	assert.True(t, ok)
	assert.False(t, registry.Available(model.SURFACE_BROWSER))
}
