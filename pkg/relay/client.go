// Package relay is the producer side of the debug log channel: it builds
// sanitized events, posts them to a sink, and keeps undelivered events in a
// bounded queue until a later send or an explicit Flush gets them through.
package relay

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/UlisseMini/sanitycheck-sub001/pkg/event"
)

// DefaultTimeout bounds every delivery attempt
const DefaultTimeout = 2 * time.Second

// Options configures a Client
type Options struct {
	// Endpoint is the sink base URL, e.g. http://localhost:3001
	Endpoint string
	// Source tags events submitted without an explicit source
	Source    string
	Timeout   time.Duration
	QueueSize int
	// Disabled turns every submission into a silent no-op
	Disabled bool
	Ambient  event.Ambient
	// Fallback receives events that could not be delivered; nil uses slog.Default()
	Fallback *slog.Logger
	// Transport overrides the HTTP transport built from Endpoint
	Transport  Transport
	HTTPClient *http.Client
}

// Stats is a snapshot of a Client's delivery counters
type Stats struct {
	Delivered uint64 `json:"delivered"`
	Queued    int    `json:"queued"`
	Dropped   uint64 `json:"dropped"`
}

// Client captures events and relays them to a sink. Each Client owns its
// queue; independent Clients never share state.
type Client struct {
	source    string
	timeout   time.Duration
	ambient   event.Ambient
	transport Transport
	fallback  *slog.Logger
	queue     *Queue

	disabled  atomic.Bool
	delivered atomic.Uint64
	flushMu   sync.Mutex
}

// NewClient creates a Client from opts
func NewClient(opts Options) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Fallback == nil {
		opts.Fallback = slog.Default()
	}
	if opts.Transport == nil {
		opts.Transport = NewHTTPTransport(opts.Endpoint, opts.Ambient.UserAgent, opts.HTTPClient)
	}

	c := &Client{
		source:    opts.Source,
		timeout:   opts.Timeout,
		ambient:   opts.Ambient,
		transport: opts.Transport,
		fallback:  opts.Fallback,
		queue:     NewQueue(opts.QueueSize),
	}
	c.disabled.Store(opts.Disabled)
	return c
}

// SetEnabled switches submission on or off
func (c *Client) SetEnabled(enabled bool) {
	c.disabled.Store(!enabled)
}

// Enabled reports whether submissions are relayed
func (c *Client) Enabled() bool {
	return !c.disabled.Load()
}

// Log submits an info event
func (c *Client) Log(message string, data map[string]any, source string) {
	c.Submit(context.Background(), event.LevelInfo, message, data, source)
}

// Warn submits a warn event
func (c *Client) Warn(message string, data map[string]any, source string) {
	c.Submit(context.Background(), event.LevelWarn, message, data, source)
}

// Debug submits a debug event
func (c *Client) Debug(message string, data map[string]any, source string) {
	c.Submit(context.Background(), event.LevelDebug, message, data, source)
}

// Error submits an error event whose data is additional merged with the
// projection of err under the "error" key
func (c *Client) Error(message string, err any, source string, additional map[string]any) {
	data := make(map[string]any, len(additional)+1)
	for k, v := range additional {
		data[k] = v
	}
	data["error"] = event.Project(err).Map()
	c.Submit(context.Background(), event.LevelError, message, data, source)
}

// Submit builds an event and relays it. Delivery failures are never returned:
// the event is queued and written to the fallback logger instead.
func (c *Client) Submit(ctx context.Context, level event.Level, message string, data map[string]any, source string) {
	if c.disabled.Load() {
		return
	}
	if source == "" {
		source = c.source
	}
	c.Send(ctx, event.New(level, message, data, source, c.ambient, time.Now()))
}

// Send relays a prebuilt event. After a successful delivery any queued
// events are flushed unless another flush is already running.
func (c *Client) Send(ctx context.Context, ev event.Event) {
	if c.disabled.Load() {
		return
	}

	if err := c.attempt(ctx, ev); err != nil {
		c.queue.Push(ev)
		c.logFallback(ctx, ev, err)
		return
	}
	c.delivered.Add(1)

	if c.queue.Len() > 0 && c.flushMu.TryLock() {
		defer c.flushMu.Unlock()
		_ = c.flushLocked(ctx)
	}
}

// Flush delivers queued events oldest first, one at a time. On the first
// failure that event and everything after it go back to the queue and the
// error is returned.
func (c *Client) Flush(ctx context.Context) error {
	c.flushMu.Lock()
	defer c.flushMu.Unlock()
	return c.flushLocked(ctx)
}

func (c *Client) flushLocked(ctx context.Context) error {
	pending := c.queue.Drain()
	for i, ev := range pending {
		if err := c.attempt(ctx, ev); err != nil {
			c.queue.Requeue(pending[i:])
			return err
		}
		c.delivered.Add(1)
	}
	return nil
}

func (c *Client) attempt(ctx context.Context, ev event.Event) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	return c.transport.Send(ctx, ev)
}

// Stats returns the current delivery counters
func (c *Client) Stats() Stats {
	return Stats{
		Delivered: c.delivered.Load(),
		Queued:    c.queue.Len(),
		Dropped:   c.queue.Dropped(),
	}
}

// Pending returns a copy of the queued events, oldest first
func (c *Client) Pending() []event.Event {
	return c.queue.Snapshot()
}

type fallbackKey struct{}

// isFallback reports whether ctx belongs to a fallback write, so handlers
// that feed a Client do not loop a failed event back into it
func isFallback(ctx context.Context) bool {
	return ctx.Value(fallbackKey{}) != nil
}

func (c *Client) logFallback(ctx context.Context, ev event.Event, err error) {
	ctx = context.WithValue(context.WithoutCancel(ctx), fallbackKey{}, true)
	c.fallback.Log(ctx, ev.Level.Slog(), "["+ev.Source+"] "+ev.Message,
		"source", ev.Source,
		"data", ev.Data,
		"delivery_error", err,
	)
}
