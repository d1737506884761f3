// Package cache is a read-through cache for workflow definitions; the
// REST surface reads them far more often than the detector writes them.
package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/recurhq/recur/model"
)

type WorkflowCache struct {
	cache *gocache.Cache
}

func NewWorkflowCache(ttl time.Duration) *WorkflowCache {
	return &WorkflowCache{cache: gocache.New(ttl, 2*ttl)}
}

func (wc *WorkflowCache) Get(id string) (*model.Workflow, bool) {
	v, ok := wc.cache.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*model.Workflow), true
}

func (wc *WorkflowCache) Put(wf *model.Workflow) {
	wc.cache.SetDefault(wf.Id, wf)
}

func (wc *WorkflowCache) Invalidate(id string) {
	wc.cache.Delete(id)
}
