// Package source turns structured source-system exports into raw records
package source

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/resubmit/internal/model"
)

// Format of an export file
type Format string

const (
	FormatJSON  Format = "json"  // Array of objects
	FormatJSONL Format = "jsonl" // One object per line
	FormatCSV   Format = "csv"   // Header row, then one record per row
	FormatTSV   Format = "tsv"
)

// ErrFormat marks an export whose layout cannot be read
var ErrFormat = errors.New("unreadable export")

// Options describe where the records came from
type Options struct {
	SourceID      string
	SchemaVersion string
	IngestedAt    time.Time // Zero means now
	Format        Format    // Empty means detect from the file extension
}

// DetectFormat picks a format from the file extension
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONL, nil
	case ".csv":
		return FormatCSV, nil
	case ".tsv":
		return FormatTSV, nil
	default:
		return "", fmt.Errorf("%w: unknown extension %q", ErrFormat, filepath.Ext(path))
	}
}

// ReadFile reads every record of an export file
func ReadFile(path string, opts Options) ([]model.RawRecord, error) {
	if opts.Format == "" {
		f, err := DetectFormat(path)
		if err != nil {
			return nil, err
		}
		opts.Format = f
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", filepath.Base(path), err)
	}
	defer func() { _ = f.Close() }()

	records, err := Read(f, opts)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	return records, nil
}

// Read decodes records from r. Numbers keep their literal as json.Number;
// empty CSV cells become explicit nulls.
func Read(r io.Reader, opts Options) ([]model.RawRecord, error) {
	if opts.SourceID == "" {
		return nil, fmt.Errorf("%w: source id required", ErrFormat)
	}
	if opts.IngestedAt.IsZero() {
		opts.IngestedAt = time.Now().UTC()
	}

	var (
		payloads []map[string]any
		err      error
	)
	switch opts.Format {
	case FormatJSON:
		payloads, err = readJSON(r)
	case FormatJSONL:
		payloads, err = readJSONL(r)
	case FormatCSV:
		payloads, err = readDelimited(r, ',')
	case FormatTSV:
		payloads, err = readDelimited(r, '\t')
	default:
		return nil, fmt.Errorf("%w: format %q", ErrFormat, opts.Format)
	}
	if err != nil {
		return nil, err
	}

	records := make([]model.RawRecord, 0, len(payloads))
	for _, p := range payloads {
		records = append(records, model.RawRecord{
			SourceID:      opts.SourceID,
			SchemaVersion: opts.SchemaVersion,
			IngestedAt:    opts.IngestedAt,
			Payload:       p,
		})
	}
	return records, nil
}

// DecodeRecords reads a JSON array of fully formed raw records, as posted
// to the batch API
func DecodeRecords(r io.Reader) ([]model.RawRecord, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var records []model.RawRecord
	if err := dec.Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	for i, rec := range records {
		if rec.SourceID == "" {
			return nil, fmt.Errorf("%w: record %d has no source_id", ErrFormat, i)
		}
		if rec.IngestedAt.IsZero() {
			records[i].IngestedAt = time.Now().UTC()
		}
	}
	return records, nil
}

func readJSON(r io.Reader) ([]map[string]any, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var out []map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return out, nil
}

func readJSONL(r io.Reader) ([]map[string]any, error) {
	var out []map[string]any
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(text))
		dec.UseNumber()
		var obj map[string]any
		if err := dec.Decode(&obj); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrFormat, line, err)
		}
		out = append(out, obj)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return out, nil
}

func readDelimited(r io.Reader, comma rune) ([]map[string]any, error) {
	reader := csv.NewReader(r)
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	header := make([]string, len(rows[0]))
	for i, cell := range rows[0] {
		header[i] = cleanCell(cell)
		if header[i] == "" {
			return nil, fmt.Errorf("%w: empty header in column %d", ErrFormat, i+1)
		}
	}

	out := make([]map[string]any, 0, len(rows)-1)
	for n, row := range rows[1:] {
		if len(row) > len(header) {
			return nil, fmt.Errorf("%w: row %d has %d cells, header has %d", ErrFormat, n+2, len(row), len(header))
		}
		obj := make(map[string]any, len(header))
		for i, key := range header {
			if i >= len(row) || strings.TrimSpace(row[i]) == "" {
				obj[key] = nil
				continue
			}
			obj[key] = row[i]
		}
		out = append(out, obj)
	}
	return out, nil
}

func cleanCell(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(s, "\ufeff"))
}
