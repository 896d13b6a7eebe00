package storage

import (
	"bytes"
	"encoding/json"
)

// Record is one stored line as returned to readers: the line itself when it
// is valid JSON, otherwise a RawLine wrapper
type Record = json.RawMessage

// RawLine wraps a stored line that could not be parsed
type RawLine struct {
	Raw string `json:"raw"`
}

// FromLine converts a stored line into a Record
func FromLine(line []byte) Record {
	line = bytes.TrimSpace(line)
	if json.Valid(line) {
		out := make([]byte, len(line))
		copy(out, line)
		return out
	}
	data, _ := json.Marshal(RawLine{Raw: string(line)})
	return data
}

// ToLine compacts a JSON record onto a single line
func ToLine(record []byte) ([]byte, error) {
	var buf bytes.Buffer
	if err := json.Compact(&buf, record); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
