package event

import (
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Level is the severity of a log event
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
	LevelDebug Level = "debug"
)

// DefaultSource tags events whose emitter did not name itself
const DefaultSource = "unknown"

// TimeFormat matches the ISO-8601 form browsers produce (millisecond precision, UTC)
const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// ParseLevel maps a level name (case-insensitive, common aliases allowed) to a Level
func ParseLevel(s string) (Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "info", "information", "log":
		return LevelInfo, true
	case "warn", "warning":
		return LevelWarn, true
	case "error", "err", "fatal", "critical", "crit":
		return LevelError, true
	case "debug", "dbg", "trace", "trc":
		return LevelDebug, true
	default:
		return "", false
	}
}

// Slog returns the slog level used when an event is written to a console logger
func (l Level) Slog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// FromSlog converts a slog level to the nearest event level
func FromSlog(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarn
	case l >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// Ambient is the emission context captured alongside every event
type Ambient struct {
	URL       string
	UserAgent string
}

// Event is one structured, sanitized log record. Values are built by New and
// not modified afterwards; Data never aliases the caller's map.
type Event struct {
	ID        string         `json:"id,omitempty"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	Source    string         `json:"source"`
	Timestamp string         `json:"timestamp"`
	URL       string         `json:"url,omitempty"`
	UserAgent string         `json:"userAgent,omitempty"`
}

// New sanitizes data and stamps the event with at and the ambient context
func New(level Level, message string, data map[string]any, source string, amb Ambient, at time.Time) Event {
	if source == "" {
		source = DefaultSource
	}
	if _, ok := ParseLevel(string(level)); !ok {
		level = LevelInfo
	}
	return Event{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		Data:      Sanitize(data),
		Source:    source,
		Timestamp: at.UTC().Format(TimeFormat),
		URL:       amb.URL,
		UserAgent: amb.UserAgent,
	}
}
