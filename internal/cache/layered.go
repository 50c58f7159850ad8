package cache

import (
	"time"

	"github.com/ppiankov/resubmit/internal/model"
)

// Tiered reads through a memory cache to a disk cache. Disk hits are
// promoted so a warm restart only pays one file read per key.
type Tiered struct {
	memory *Memory
	disk   *Disk
}

// NewTiered creates a memory-over-disk cache
func NewTiered(memoryTTL time.Duration, dir string, diskTTL time.Duration) *Tiered {
	return &Tiered{memory: NewMemory(memoryTTL), disk: NewDisk(dir, diskTTL)}
}

// Get checks memory, then disk
func (t *Tiered) Get(key string) (model.InferenceResult, bool) {
	if res, ok := t.memory.Get(key); ok {
		return res, true
	}
	res, ok := t.disk.Get(key)
	if ok {
		_ = t.memory.Put(key, res)
	}
	return res, ok
}

// Put writes through to both layers. The memory layer is filled even when
// the disk write fails.
func (t *Tiered) Put(key string, res model.InferenceResult) error {
	_ = t.memory.Put(key, res)
	return t.disk.Put(key, res)
}
