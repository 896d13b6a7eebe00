package event

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	at := time.Date(2024, 1, 15, 10, 30, 0, 123456789, time.FixedZone("CET", 3600))
	data := map[string]any{"k": "v"}
	amb := Ambient{URL: "https://example.com/article", UserAgent: "test-agent"}

	ev := New(LevelWarn, "selection too short", data, "content", amb, at)

	if ev.ID == "" {
		t.Error("New() ID is empty")
	}
	if ev.Level != LevelWarn {
		t.Errorf("New() Level = %v, want warn", ev.Level)
	}
	if ev.Timestamp != "2024-01-15T09:30:00.123Z" {
		t.Errorf("New() Timestamp = %v, want 2024-01-15T09:30:00.123Z", ev.Timestamp)
	}
	if ev.URL != amb.URL || ev.UserAgent != amb.UserAgent {
		t.Errorf("New() ambient = %q/%q", ev.URL, ev.UserAgent)
	}

	data["k"] = "mutated"
	if ev.Data["k"] != "v" {
		t.Error("New() event data aliases the caller's map")
	}
}

func TestNew_Defaults(t *testing.T) {
	ev := New(Level("bogus"), "m", nil, "", Ambient{}, time.Now())

	if ev.Source != DefaultSource {
		t.Errorf("New() Source = %q, want %q", ev.Source, DefaultSource)
	}
	if ev.Level != LevelInfo {
		t.Errorf("New() Level = %q, want info", ev.Level)
	}
	if ev.Data != nil {
		t.Errorf("New() Data = %#v, want nil", ev.Data)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in     string
		want   Level
		wantOK bool
	}{
		{"info", LevelInfo, true},
		{"INFO", LevelInfo, true},
		{"warning", LevelWarn, true},
		{" Error ", LevelError, true},
		{"fatal", LevelError, true},
		{"dbg", LevelDebug, true},
		{"trace", LevelDebug, true},
		{"verbose", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseLevel(tt.in)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ParseLevel(%q) = %v, %v, want %v, %v", tt.in, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestLevel_SlogMapping(t *testing.T) {
	for _, l := range []Level{LevelDebug, LevelInfo, LevelWarn, LevelError} {
		if got := FromSlog(l.Slog()); got != l {
			t.Errorf("FromSlog(%v.Slog()) = %v", l, got)
		}
	}
	if got := FromSlog(slog.LevelError + 4); got != LevelError {
		t.Errorf("FromSlog(above error) = %v, want error", got)
	}
}

type namedErr struct{}

func (namedErr) Error() string { return "named failure" }
func (namedErr) Name() string  { return "NamedErr" }

func TestProject(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		if got := Project(nil); got != (ErrorInfo{}) {
			t.Errorf("Project(nil) = %#v, want zero", got)
		}
	})

	t.Run("plain error", func(t *testing.T) {
		got := Project(errors.New("boom"))
		if got.Message != "boom" || got.ToString != "boom" {
			t.Errorf("Project() = %#v", got)
		}
		if got.Name != "*errors.errorString" {
			t.Errorf("Project() Name = %q", got.Name)
		}
		if got.Stack != "" {
			t.Errorf("Project() Stack = %q, want empty", got.Stack)
		}
	})

	t.Run("named error", func(t *testing.T) {
		got := Project(namedErr{})
		if got.Name != "NamedErr" {
			t.Errorf("Project() Name = %q, want NamedErr", got.Name)
		}
	})

	t.Run("wrapped error", func(t *testing.T) {
		got := Project(fmt.Errorf("fetching annotations: %w", errors.New("timeout")))
		if got.Message != "fetching annotations: timeout" {
			t.Errorf("Project() Message = %q", got.Message)
		}
	})

	t.Run("non-error value", func(t *testing.T) {
		got := Project("just a string")
		if got.Name != "" || got.Message != "" || got.ToString != "just a string" {
			t.Errorf("Project() = %#v", got)
		}
	})

	t.Run("panic error carries stack", func(t *testing.T) {
		cause := errors.New("nil map write")
		p := NewPanicError(cause, []byte("goroutine 1 [running]:"))
		got := Project(p)
		if got.Name != "panic" || !strings.HasPrefix(got.Stack, "goroutine 1") {
			t.Errorf("Project() = %#v", got)
		}
		if !errors.Is(p, cause) {
			t.Error("PanicError does not unwrap to the recovered error")
		}
	})
}

func TestErrorInfo_Map(t *testing.T) {
	m := ErrorInfo{Name: "n", Message: "m"}.Map()
	if len(m) != 2 || m["name"] != "n" || m["message"] != "m" {
		t.Errorf("Map() = %#v", m)
	}
}
