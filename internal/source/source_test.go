package source

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

var ingest = time.Date(2025, 7, 30, 9, 0, 0, 0, time.UTC)

func TestReadFile_CSV(t *testing.T) {
	records, err := ReadFile("testdata/alpha.csv", Options{SourceID: "alpha", IngestedAt: ingest})
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	if len(records) != 5 {
		t.Fatalf("records = %d, want 5", len(records))
	}

	a125 := records[2].Payload
	if a125["claim_id"] != "A125" {
		t.Errorf("claim_id = %v", a125["claim_id"])
	}
	if v, ok := a125["patient_id"]; !ok || v != nil {
		t.Errorf("empty patient_id = %v (present %v), want explicit null", v, ok)
	}
	if records[0].SourceID != "alpha" || !records[0].IngestedAt.Equal(ingest) {
		t.Errorf("record metadata = %+v", records[0])
	}
}

func TestReadFile_JSON(t *testing.T) {
	records, err := ReadFile("testdata/beta.json", Options{SourceID: "beta", IngestedAt: ingest})
	if err != nil {
		t.Fatalf("ReadFile() = %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("records = %d, want 4", len(records))
	}
	if v, ok := records[3].Payload["member"]; !ok || v != nil {
		t.Errorf("member = %v, want explicit null", v)
	}
}

func TestRead_JSONLNumbers(t *testing.T) {
	input := `{"id":"B1","billed":350.10}

{"id":"B2","billed":12}
`
	records, err := Read(strings.NewReader(input), Options{SourceID: "beta", Format: FormatJSONL})
	if err != nil {
		t.Fatalf("Read() = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("records = %d, want 2", len(records))
	}
	n, ok := records[0].Payload["billed"].(json.Number)
	if !ok || n.String() != "350.10" {
		t.Errorf("billed = %#v, want json.Number 350.10", records[0].Payload["billed"])
	}
	if records[1].IngestedAt.IsZero() {
		t.Error("ingest time not defaulted")
	}
}

func TestRead_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
		opts  Options
	}{
		{"no source", `[]`, Options{Format: FormatJSON}},
		{"bad json", `[{"id":`, Options{SourceID: "s", Format: FormatJSON}},
		{"bad jsonl line", "{\"id\":1}\nnope\n", Options{SourceID: "s", Format: FormatJSONL}},
		{"long csv row", "a,b\n1,2,3\n", Options{SourceID: "s", Format: FormatCSV}},
		{"empty header", "a,\n1,2\n", Options{SourceID: "s", Format: FormatCSV}},
		{"unknown format", `x`, Options{SourceID: "s", Format: "xml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Read(strings.NewReader(tt.input), tt.opts)
			if !errors.Is(err, ErrFormat) {
				t.Errorf("Read() = %v, want ErrFormat", err)
			}
		})
	}
}

func TestDetectFormat(t *testing.T) {
	tests := map[string]Format{
		"a.json":   FormatJSON,
		"a.JSONL":  FormatJSONL,
		"a.ndjson": FormatJSONL,
		"a.csv":    FormatCSV,
		"a.tsv":    FormatTSV,
	}
	for path, want := range tests {
		if got, err := DetectFormat(path); err != nil || got != want {
			t.Errorf("DetectFormat(%q) = %q, %v", path, got, err)
		}
	}
	if _, err := DetectFormat("a.xml"); !errors.Is(err, ErrFormat) {
		t.Errorf("DetectFormat(xml) = %v", err)
	}
}

func TestDecodeRecords(t *testing.T) {
	input := `[{"source_id":"alpha","payload":{"claim_id":"A1","amount":10.5}},
	           {"source_id":"beta","ingest_timestamp":"2025-07-30T09:00:00Z","payload":{"id":"B1"}}]`
	records, err := DecodeRecords(strings.NewReader(input))
	if err != nil {
		t.Fatalf("DecodeRecords() = %v", err)
	}
	if _, ok := records[0].Payload["amount"].(json.Number); !ok {
		t.Errorf("amount = %T, want json.Number", records[0].Payload["amount"])
	}
	if records[0].IngestedAt.IsZero() || !records[1].IngestedAt.Equal(ingest) {
		t.Errorf("ingest times = %v, %v", records[0].IngestedAt, records[1].IngestedAt)
	}

	if _, err := DecodeRecords(strings.NewReader(`[{"payload":{}}]`)); !errors.Is(err, ErrFormat) {
		t.Errorf("missing source_id = %v", err)
	}
}
