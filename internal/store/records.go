package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ppiankov/resubmit/internal/model"
)

// RecordStore keeps every accepted raw record, grouped by claim id, so a
// late-arriving record can be resolved together with earlier ones.
type RecordStore interface {
	// Append stores rec under claimID. It returns false when a record with
	// the same fingerprint is already stored for the claim.
	Append(ctx context.Context, claimID string, rec model.RawRecord) (bool, error)

	// Records returns the claim's records in append order
	Records(claimID string) []model.RawRecord

	// ClaimIDs returns every claim id with stored records, sorted
	ClaimIDs() []string

	Close() error
}

type storedRecord struct {
	ClaimID     string          `json:"claim_id"`
	Fingerprint string          `json:"fingerprint"`
	Record      model.RawRecord `json:"record"`
}

// recordIndex is the in-memory view shared by both implementations
type recordIndex struct {
	mu      sync.RWMutex
	byClaim map[string][]model.RawRecord
	seen    map[string]bool // claimID + fingerprint
}

func newRecordIndex() *recordIndex {
	return &recordIndex{byClaim: make(map[string][]model.RawRecord), seen: make(map[string]bool)}
}

func (ix *recordIndex) has(claimID, fp string) bool {
	return ix.seen[claimID+"\x00"+fp]
}

func (ix *recordIndex) add(claimID, fp string, rec model.RawRecord) {
	ix.seen[claimID+"\x00"+fp] = true
	ix.byClaim[claimID] = append(ix.byClaim[claimID], rec)
}

func (ix *recordIndex) Records(claimID string) []model.RawRecord {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return append([]model.RawRecord(nil), ix.byClaim[claimID]...)
}

func (ix *recordIndex) ClaimIDs() []string {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	ids := make([]string, 0, len(ix.byClaim))
	for id := range ix.byClaim {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MemoryRecordStore is a RecordStore for tests and one-shot runs
type MemoryRecordStore struct {
	*recordIndex
}

// NewMemoryRecordStore creates an empty store
func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{recordIndex: newRecordIndex()}
}

// Append stores rec unless already present
func (s *MemoryRecordStore) Append(ctx context.Context, claimID string, rec model.RawRecord) (bool, error) {
	fp := rec.Fingerprint()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.has(claimID, fp) {
		return false, nil
	}
	s.add(claimID, fp, rec)
	return true, nil
}

// Close is a no-op
func (s *MemoryRecordStore) Close() error { return nil }

// RecordsFile is the record log's name inside the state directory
const RecordsFile = "records.jsonl"

// JSONLRecordStore persists records as JSON lines
type JSONLRecordStore struct {
	*recordIndex
	file *appendFile
}

// NewJSONLRecordStore opens dir/records.jsonl and indexes its contents
func NewJSONLRecordStore(dir string) (*JSONLRecordStore, error) {
	ix := newRecordIndex()

	err := readLines(filepath.Join(dir, RecordsFile), func(dec *json.Decoder) error {
		var sr storedRecord
		if err := dec.Decode(&sr); err != nil {
			return err
		}
		if !ix.has(sr.ClaimID, sr.Fingerprint) {
			ix.add(sr.ClaimID, sr.Fingerprint, sr.Record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	f, err := openAppendFile(dir, RecordsFile)
	if err != nil {
		return nil, err
	}
	return &JSONLRecordStore{recordIndex: ix, file: f}, nil
}

// Append persists rec unless already present
func (s *JSONLRecordStore) Append(ctx context.Context, claimID string, rec model.RawRecord) (bool, error) {
	fp := rec.Fingerprint()
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.has(claimID, fp) {
		return false, nil
	}
	if err := s.file.append(storedRecord{ClaimID: claimID, Fingerprint: fp, Record: rec}); err != nil {
		return false, err
	}
	s.add(claimID, fp, rec)
	return true, nil
}

// Close closes the record log
func (s *JSONLRecordStore) Close() error {
	return s.file.close()
}
