package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/resubmit/internal/model"
)

// Disk persists results as one JSON file per key, sharded by key prefix.
// Expiry is measured from the time an entry was written.
type Disk struct {
	dir string
	ttl time.Duration
	now func() time.Time
}

// NewDisk creates a disk cache rooted at dir
func NewDisk(dir string, ttl time.Duration) *Disk {
	return &Disk{dir: dir, ttl: ttl, now: time.Now}
}

type diskEntry struct {
	Key      string                `json:"key"`
	StoredAt time.Time             `json:"stored_at"`
	Result   model.InferenceResult `json:"result"`
}

// Get returns the entry under key unless it is missing, corrupt or expired
func (d *Disk) Get(key string) (model.InferenceResult, bool) {
	path := d.path(key)
	data, err := os.ReadFile(path)
	if err != nil {
		return model.InferenceResult{}, false
	}

	var e diskEntry
	if err := json.Unmarshal(data, &e); err != nil || e.Key != key || !e.Result.Available() {
		return model.InferenceResult{}, false
	}
	if d.ttl > 0 && d.now().Sub(e.StoredAt) > d.ttl {
		_ = os.Remove(path)
		return model.InferenceResult{}, false
	}
	return e.Result, true
}

// Put writes res under key; unscored results are ignored
func (d *Disk) Put(key string, res model.InferenceResult) error {
	if !res.Available() {
		return nil
	}

	data, err := json.Marshal(diskEntry{Key: key, StoredAt: d.now().UTC(), Result: res})
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	path := d.path(key)
	shard := filepath.Dir(path)
	if err := os.MkdirAll(shard, 0o755); err != nil {
		return fmt.Errorf("create cache dir: %w", err)
	}

	// Readers never observe a partially written entry
	tmp, err := os.CreateTemp(shard, ".put-*")
	if err != nil {
		return fmt.Errorf("create cache entry: %w", err)
	}
	_, werr := tmp.Write(data)
	cerr := tmp.Close()
	if werr == nil {
		werr = cerr
	}
	if werr == nil {
		werr = os.Rename(tmp.Name(), path)
	}
	if werr != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write cache entry: %w", werr)
	}
	return nil
}

func (d *Disk) path(key string) string {
	shard := "00"
	if n := len(keyPrefix); len(key) > n+2 {
		shard = key[n : n+2]
	}
	return filepath.Join(d.dir, shard, key+".json")
}
