package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/UlisseMini/sanitycheck-sub001/pkg/event"
)

// LogPath is the sink route that accepts a single event
const LogPath = "/debug/log"

// Transport delivers one event to the sink
type Transport interface {
	Send(ctx context.Context, ev event.Event) error
}

// HTTPTransport posts events as JSON to a sink's LogPath
type HTTPTransport struct {
	url       string
	userAgent string
	client    *http.Client
}

// NewHTTPTransport creates a transport for the sink at endpoint (scheme://host:port).
// A nil client uses http.DefaultClient; attempts are bounded by the caller's context.
func NewHTTPTransport(endpoint, userAgent string, client *http.Client) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPTransport{
		url:       strings.TrimRight(endpoint, "/") + LogPath,
		userAgent: userAgent,
		client:    client,
	}
}

// Send posts ev. Network failures, cancellation and non-2xx statuses are errors.
func (h *HTTPTransport) Send(ctx context.Context, ev event.Event) error {
	// HTML stays unescaped, matching how Sanitize measures payload size
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(ev); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if h.userAgent != "" {
		req.Header.Set("User-Agent", h.userAgent)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64*1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Code: resp.StatusCode}
	}
	return nil
}

// StatusError reports a non-2xx sink response
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("sink responded with status %d", e.Code)
}
