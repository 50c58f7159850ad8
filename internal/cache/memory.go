package cache

import (
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/ppiankov/resubmit/internal/model"
)

// Memory is a process-local result cache with a fixed TTL
type Memory struct {
	items *gocache.Cache
}

// NewMemory creates a memory cache whose entries live for ttl
func NewMemory(ttl time.Duration) *Memory {
	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	return &Memory{items: gocache.New(ttl, 10*time.Minute)}
}

// Get returns the result stored under key
func (m *Memory) Get(key string) (model.InferenceResult, bool) {
	v, ok := m.items.Get(key)
	if !ok {
		return model.InferenceResult{}, false
	}
	res, ok := v.(model.InferenceResult)
	return res, ok
}

// Put stores res under key; unscored results are ignored
func (m *Memory) Put(key string, res model.InferenceResult) error {
	if res.Available() {
		m.items.SetDefault(key, res)
	}
	return nil
}

// Len returns the number of live entries
func (m *Memory) Len() int {
	return m.items.ItemCount()
}
