package store

import (
	"context"
	"sync"
	"time"

	"github.com/ppiankov/resubmit/internal/model"
)

// QuarantineEntry is a record that could not be mapped, kept with its
// errors for manual repair
type QuarantineEntry struct {
	RunID         string               `json:"run_id"`
	Record        model.RawRecord      `json:"record"`
	Fingerprint   string               `json:"fingerprint"`
	Errors        []model.MappingError `json:"errors"`
	QuarantinedAt time.Time            `json:"quarantined_at"`
}

// QuarantineSink receives unmappable records
type QuarantineSink interface {
	Quarantine(ctx context.Context, entry QuarantineEntry) error
	Close() error
}

// AuditKind classifies an audit entry
type AuditKind string

const (
	AuditConflict       AuditKind = "conflict"
	AuditMappingWarning AuditKind = "mapping_warning"
)

// AuditEntry records a conflict resolution or a non-fatal mapping problem
type AuditEntry struct {
	RunID      string                    `json:"run_id"`
	Kind       AuditKind                 `json:"kind"`
	ClaimID    string                    `json:"claim_id,omitempty"`
	Resolution *model.ConflictResolution `json:"resolution,omitempty"`
	Warning    *model.MappingError       `json:"warning,omitempty"`
	At         time.Time                 `json:"at"`
}

// AuditSink receives audit entries
type AuditSink interface {
	Audit(ctx context.Context, entry AuditEntry) error
	Close() error
}

// File names inside the state directory
const (
	QuarantineFile = "quarantine.jsonl"
	AuditFile      = "audit.jsonl"
)

// JSONLQuarantine appends quarantine entries to dir/quarantine.jsonl
type JSONLQuarantine struct{ file *appendFile }

// NewJSONLQuarantine opens the quarantine log
func NewJSONLQuarantine(dir string) (*JSONLQuarantine, error) {
	f, err := openAppendFile(dir, QuarantineFile)
	if err != nil {
		return nil, err
	}
	return &JSONLQuarantine{file: f}, nil
}

// Quarantine appends entry
func (q *JSONLQuarantine) Quarantine(ctx context.Context, entry QuarantineEntry) error {
	return q.file.append(entry)
}

// Close closes the log
func (q *JSONLQuarantine) Close() error { return q.file.close() }

// JSONLAudit appends audit entries to dir/audit.jsonl
type JSONLAudit struct{ file *appendFile }

// NewJSONLAudit opens the audit log
func NewJSONLAudit(dir string) (*JSONLAudit, error) {
	f, err := openAppendFile(dir, AuditFile)
	if err != nil {
		return nil, err
	}
	return &JSONLAudit{file: f}, nil
}

// Audit appends entry
func (a *JSONLAudit) Audit(ctx context.Context, entry AuditEntry) error {
	return a.file.append(entry)
}

// Close closes the log
func (a *JSONLAudit) Close() error { return a.file.close() }

// MemoryQuarantine collects entries in memory
type MemoryQuarantine struct {
	mu      sync.Mutex
	entries []QuarantineEntry
}

// Quarantine stores entry
func (q *MemoryQuarantine) Quarantine(ctx context.Context, entry QuarantineEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, entry)
	return nil
}

// Entries returns a copy of the stored entries
func (q *MemoryQuarantine) Entries() []QuarantineEntry {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]QuarantineEntry(nil), q.entries...)
}

// Close is a no-op
func (q *MemoryQuarantine) Close() error { return nil }

// MemoryAudit collects entries in memory
type MemoryAudit struct {
	mu      sync.Mutex
	entries []AuditEntry
}

// Audit stores entry
func (a *MemoryAudit) Audit(ctx context.Context, entry AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
	return nil
}

// Entries returns a copy of the stored entries
func (a *MemoryAudit) Entries() []AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]AuditEntry(nil), a.entries...)
}

// Close is a no-op
func (a *MemoryAudit) Close() error { return nil }
