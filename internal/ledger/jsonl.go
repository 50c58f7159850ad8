package ledger

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ppiankov/resubmit/internal/model"
)

// DecisionsFile is the log's file name inside the state directory
const DecisionsFile = "decisions.jsonl"

// JSONLStore appends one JSON object per line and fsyncs after every
// append, so each recorded decision survives a crash.
type JSONLStore struct {
	mu   sync.Mutex
	path string
	file *os.File
}

// NewJSONLStore opens (creating if needed) dir/decisions.jsonl
func NewJSONLStore(dir string) (*JSONLStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	path := filepath.Join(dir, DecisionsFile)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	return &JSONLStore{path: path, file: f}, nil
}

// Path returns the log file path
func (s *JSONLStore) Path() string { return s.path }

// Load reads every decision. An unterminated final line from an
// interrupted append is truncated away; a complete line that does not
// decode is an error, wherever it is.
func (s *JSONLStore) Load(ctx context.Context) ([]model.EligibilityDecision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []model.EligibilityDecision
	var torn bool
	var valid int64
	reader := bufio.NewReader(f)
	line := 0
	for {
		data, readErr := reader.ReadBytes('\n')
		if len(data) > 0 {
			line++
			// Every append ends with a newline; ReadBytes only returns an
			// unterminated line at EOF, so this is the torn tail
			if data[len(data)-1] != '\n' {
				torn = true
				break
			}
			var d model.EligibilityDecision
			if err := json.Unmarshal(data, &d); err != nil {
				return nil, fmt.Errorf("decision log line %d: malformed JSON: %w", line, err)
			}
			out = append(out, d)
			valid += int64(len(data))
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("read decision log: %w", readErr)
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	if torn {
		if err := s.file.Truncate(valid); err != nil {
			return nil, fmt.Errorf("truncate torn decision log entry: %w", err)
		}
	}
	return out, nil
}

// Append writes d as one line and syncs the file
func (s *JSONLStore) Append(ctx context.Context, d model.EligibilityDecision) error {
	data, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.file.Write(data); err != nil {
		return fmt.Errorf("write decision: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync decision log: %w", err)
	}
	return nil
}

// Close closes the log file
func (s *JSONLStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}
