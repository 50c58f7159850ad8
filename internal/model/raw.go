package model

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"
)

// RawRecord is one record as exported by a source system. Immutable once ingested.
type RawRecord struct {
	SourceID      string         `json:"source_id"`
	SchemaVersion string         `json:"schema_version,omitempty"`
	IngestedAt    time.Time      `json:"ingest_timestamp"`
	Payload       map[string]any `json:"payload"`
}

// Fingerprint identifies the record content. The ingest timestamp is excluded
// so a re-ingested record is recognised as the same record.
func (r RawRecord) Fingerprint() string {
	payload, err := json.Marshal(r.Payload)
	if err != nil {
		payload = []byte(err.Error())
	}

	h := sha256.New()
	h.Write([]byte(r.SourceID))
	h.Write([]byte{0})
	h.Write([]byte(r.SchemaVersion))
	h.Write([]byte{0})
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}
