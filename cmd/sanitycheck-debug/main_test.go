package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/UlisseMini/sanitycheck-sub001/pkg/event"
	"github.com/UlisseMini/sanitycheck-sub001/pkg/parser"
	"github.com/UlisseMini/sanitycheck-sub001/pkg/relay"
	"github.com/UlisseMini/sanitycheck-sub001/pkg/server"
	"github.com/UlisseMini/sanitycheck-sub001/pkg/storage"
)

func TestCollector_RelaysToSink(t *testing.T) {
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "debug.log"))
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	sink := httptest.NewServer(server.New(server.Options{Store: store, Logger: quiet}).Handler())
	defer sink.Close()

	client := relay.NewClient(relay.Options{Endpoint: sink.URL, Source: "collect", Fallback: quiet})
	c := &collector{
		detector: parser.NewDetector(),
		client:   client,
		source:   "collect",
		ambient:  event.Ambient{URL: "stdin://collect", UserAgent: userAgent},
		logger:   quiet,
	}

	input := strings.Join([]string{
		`{"level":"error","message":"json line","source":"api","code":7}`,
		``,
		`level=warn msg="logfmt line" tab=3`,
		`plain text line`,
	}, "\n")

	count, err := c.run(context.Background(), strings.NewReader(input))
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if count != 3 {
		t.Errorf("run() relayed %d lines, want 3", count)
	}

	resp, err := http.Get(sink.URL + "/debug/logs")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var got struct {
		Logs []map[string]any `json:"logs"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if len(got.Logs) != 3 {
		t.Fatalf("sink stored %d records, want 3", len(got.Logs))
	}

	tests := []struct {
		level, message, source string
	}{
		{"error", "json line", "api"},
		{"warn", "logfmt line", "collect"},
		{"info", "plain text line", "collect"},
	}
	for i, tt := range tests {
		rec := got.Logs[i]
		if rec["level"] != tt.level || rec["message"] != tt.message || rec["source"] != tt.source {
			t.Errorf("record %d = %v, want %s/%s/%s", i, rec, tt.level, tt.message, tt.source)
		}
		if rec["userAgent"] != userAgent {
			t.Errorf("record %d userAgent = %v", i, rec["userAgent"])
		}
	}

	data, _ := got.Logs[0]["data"].(map[string]any)
	if data["code"] != float64(7) {
		t.Errorf("json line data = %v, want code 7", data)
	}
}

func TestCollector_FormatMismatchSkipsLine(t *testing.T) {
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	client := relay.NewClient(relay.Options{Endpoint: "http://127.0.0.1:1", Disabled: true, Fallback: quiet})
	c := &collector{
		detector: parser.NewDetector(),
		client:   client,
		format:   "json",
		logger:   quiet,
	}

	count, err := c.run(context.Background(), strings.NewReader("not json\n{\"message\":\"ok\"}\n"))
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if count != 1 {
		t.Errorf("run() relayed %d lines, want 1", count)
	}
}
