package parser

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/UlisseMini/sanitycheck-sub001/pkg/event"
)

// Line is one collected log line, ready to be relayed as an event
type Line struct {
	Time    time.Time
	Level   event.Level
	Message string
	Source  string
	Fields  map[string]any
	Raw     string
}

// Parser interface for different log formats
type Parser interface {
	Parse(line string) (*Line, error)
	CanParse(line string) bool
}

// JSONParser handles standard JSON logs
type JSONParser struct{}

// NewJSONParser creates a new JSON parser
func NewJSONParser() *JSONParser {
	return &JSONParser{}
}

// CanParse checks if the line is a JSON object
func (p *JSONParser) CanParse(line string) bool {
	var obj map[string]any
	return json.Unmarshal([]byte(line), &obj) == nil
}

// Parse parses a JSON log line. Numbers are kept as json.Number so integer
// fields survive the relay unchanged.
func (p *JSONParser) Parse(line string) (*Line, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(line)))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, err
	}

	entry := &Line{
		Fields: make(map[string]any),
		Raw:    line,
	}

	// Extract timestamp
	for _, key := range []string{"timestamp", "time"} {
		ts, ok := obj[key].(string)
		if !ok {
			continue
		}
		if t, ok := parseTime(ts); ok {
			entry.Time = t
		}
		delete(obj, key)
		break
	}
	if entry.Time.IsZero() {
		entry.Time = timeNow()
	}

	// Extract level
	if level, ok := obj["level"].(string); ok {
		entry.Level = NormalizeLevel(level)
		delete(obj, "level")
	} else if level, ok := obj["severity"].(string); ok {
		entry.Level = NormalizeLevel(level)
		delete(obj, "severity")
	} else {
		entry.Level = event.LevelInfo
	}

	// Extract message
	if msg, ok := obj["message"].(string); ok {
		entry.Message = msg
		delete(obj, "message")
	} else if msg, ok := obj["msg"].(string); ok {
		entry.Message = msg
		delete(obj, "msg")
	}

	if src, ok := obj["source"].(string); ok {
		entry.Source = src
		delete(obj, "source")
	}

	// Remaining fields go to Fields
	for k, v := range obj {
		entry.Fields[k] = v
	}

	return entry, nil
}

// LogfmtParser handles key=value log format (logfmt)
type LogfmtParser struct{}

// NewLogfmtParser creates a new logfmt parser
func NewLogfmtParser() *LogfmtParser {
	return &LogfmtParser{}
}

// CanParse checks if the line looks like logfmt (key=value pairs)
func (p *LogfmtParser) CanParse(line string) bool {
	// Must contain at least a msg= or level= to be logfmt
	has := func(key string) bool {
		return strings.Contains(line, key+"=")
	}
	return has("msg") || (has("level") && (has("source") || has("time") || has("error")))
}

// Parse parses a logfmt line
func (p *LogfmtParser) Parse(line string) (*Line, error) {
	fields := parseLogfmt(line)

	entry := &Line{
		Fields: make(map[string]any),
		Raw:    line,
	}

	// Extract timestamp
	for _, key := range []string{"time", "timestamp"} {
		ts, ok := fields[key]
		if !ok {
			continue
		}
		if t, ok := parseTime(ts); ok {
			entry.Time = t
		}
		delete(fields, key)
		break
	}
	if entry.Time.IsZero() {
		entry.Time = timeNow()
	}

	// Extract level
	if level, ok := fields["level"]; ok {
		entry.Level = NormalizeLevel(level)
		delete(fields, "level")
	} else {
		entry.Level = event.LevelInfo
	}

	// Extract message
	if msg, ok := fields["msg"]; ok {
		entry.Message = msg
		delete(fields, "msg")
	} else if msg, ok := fields["message"]; ok {
		entry.Message = msg
		delete(fields, "message")
	}

	if src, ok := fields["source"]; ok {
		entry.Source = src
		delete(fields, "source")
	}

	// Remaining fields
	for k, v := range fields {
		entry.Fields[k] = v
	}

	return entry, nil
}

// parseLogfmt parses a logfmt-style line into key-value pairs.
// Handles: key=value, key="quoted value", key="value with \"escapes\""
func parseLogfmt(line string) map[string]string {
	result := make(map[string]string)
	i := 0
	n := len(line)

	for i < n {
		// Skip whitespace
		for i < n && line[i] == ' ' {
			i++
		}
		if i >= n {
			break
		}

		// Read key
		keyStart := i
		for i < n && line[i] != '=' && line[i] != ' ' {
			i++
		}
		if i >= n || line[i] != '=' {
			continue
		}
		key := line[keyStart:i]
		i++ // skip '='

		if i >= n {
			result[key] = ""
			break
		}

		// Read value
		var value string
		if line[i] == '"' {
			i++ // skip opening quote
			var b strings.Builder
			for i < n {
				if line[i] == '\\' && i+1 < n {
					b.WriteByte(line[i+1])
					i += 2
				} else if line[i] == '"' {
					i++
					break
				} else {
					b.WriteByte(line[i])
					i++
				}
			}
			value = b.String()
		} else {
			valStart := i
			for i < n && line[i] != ' ' {
				i++
			}
			value = line[valStart:i]
		}

		result[key] = value
	}

	return result
}

func parseTime(s string) (time.Time, bool) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// NormalizeLevel maps a level name onto the relay's four levels. Trace maps
// to debug, fatal and critical to error, anything unknown to info.
func NormalizeLevel(level string) event.Level {
	if l, ok := event.ParseLevel(level); ok {
		return l
	}
	return event.LevelInfo
}
