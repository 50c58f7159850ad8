package store

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// appendFile is an fsync-per-write JSON lines file
type appendFile struct {
	mu   sync.Mutex
	path string
	file *os.File
}

func openAppendFile(dir, name string) (*appendFile, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", dir, err)
	}
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &appendFile{path: path, file: f}, nil
}

func (a *appendFile) append(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.file.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", a.path, err)
	}
	return a.file.Sync()
}

func (a *appendFile) close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// readLines decodes every complete line of path into fn. Numbers decode as
// json.Number so payloads keep their exact literal. An unterminated last
// line, left by an interrupted append, is truncated away.
func readLines(path string, fn func(dec *json.Decoder) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	reader := bufio.NewReader(f)
	var valid int64
	line := 0
	for {
		data, readErr := reader.ReadBytes('\n')
		if len(data) > 0 {
			if data[len(data)-1] != '\n' {
				return os.Truncate(path, valid)
			}
			line++
			dec := json.NewDecoder(bytes.NewReader(data))
			dec.UseNumber()
			if err := fn(dec); err != nil {
				return fmt.Errorf("%s line %d: %w", path, line, err)
			}
			valid += int64(len(data))
		}
		if readErr == io.EOF {
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("read %s: %w", path, readErr)
		}
	}
}
