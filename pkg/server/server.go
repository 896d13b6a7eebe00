// Package server implements the debug log sink: a local HTTP service that
// appends submitted records to an NDJSON file and serves them back.
package server

import (
	"context"
	_ "embed"
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/UlisseMini/sanitycheck-sub001/pkg/mirror"
	"github.com/UlisseMini/sanitycheck-sub001/pkg/parser"
	"github.com/UlisseMini/sanitycheck-sub001/pkg/storage"
)

//go:embed index.html
var indexHTML string

// FaultSource tags records the sink writes about its own failures
const FaultSource = "debug-server"

// DefaultLines is the number of records GET /debug/logs returns when the
// lines parameter is missing or invalid
const DefaultLines = 100

// MaxBodyBytes caps the size of a POST /debug/log body
const MaxBodyBytes = 100 << 10

const (
	mirrorBacklog = 256
	mirrorTimeout = 2 * time.Second
)

// Options configures a Server
type Options struct {
	Store *storage.FileStore
	// Mirror receives every appended record; nil disables mirroring
	Mirror mirror.Publisher
	// AllowedOrigins lists CORS origins; empty or "*" allows any origin
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Server represents the HTTP server
type Server struct {
	store    *storage.FileStore
	receiver *parser.Receiver
	hub      *hub
	origins  []string
	logger   *slog.Logger
	router   chi.Router
	httpSrv  *http.Server

	mirror   mirror.Publisher
	mirrorCh chan []byte

	done     chan struct{}
	stopOnce sync.Once

	now func() time.Time
}

// New creates a new sink server
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		store:    opts.Store,
		receiver: parser.NewReceiver(),
		origins:  opts.AllowedOrigins,
		logger:   opts.Logger,
		mirror:   mirror.Nop{},
		done:     make(chan struct{}),
		now:      time.Now,
	}
	s.hub = newHub(s)
	s.router = s.routes()

	if opts.Mirror != nil {
		s.mirror = opts.Mirror
		s.mirrorCh = make(chan []byte, mirrorBacklog)
		s.safeGo("mirror", s.mirrorPump)
	}
	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(s.cors)
	r.Use(s.recoverer)

	// Serve static web UI
	r.Get("/", s.handleIndex)

	r.Route("/debug", func(r chi.Router) {
		r.Post("/log", s.handleLog)
		r.Get("/logs", s.handleLogs)
		r.Delete("/logs", s.handleClear)
		r.Get("/logs/export", s.handleExport)
		r.Get("/health", s.handleHealth)
		r.Get("/stream", s.handleStream)
	})

	return r
}

// Handler returns the sink's HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on addr until Shutdown is called
func (s *Server) Start(addr string) error {
	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("debug log server listening",
		"url", "http://"+addr,
		"log_file", s.store.Path())

	if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, closes live streams and the mirror
func (s *Server) Shutdown(ctx context.Context) error {
	var err error
	if s.httpSrv != nil {
		err = s.httpSrv.Shutdown(ctx)
	}
	s.hub.closeAll()
	s.stopOnce.Do(func() { close(s.done) })

	if merr := s.mirror.Close(); merr != nil && err == nil {
		err = merr
	}
	return err
}

// append stores record and fans it out to live streams and the mirror
func (s *Server) append(record []byte) error {
	if err := s.store.Append(record); err != nil {
		return err
	}

	s.hub.broadcast(record)

	if s.mirrorCh != nil {
		select {
		case s.mirrorCh <- record:
		default:
			s.logger.Warn("mirror backlog full, record not mirrored")
		}
	}
	return nil
}

// mirrorPump publishes appended records in order
func (s *Server) mirrorPump() {
	for {
		select {
		case record := <-s.mirrorCh:
			s.publish(record)
		case <-s.done:
			return
		}
	}
}

// publish mirrors one record. A panicking publisher loses that record only;
// the pump keeps running.
func (s *Server) publish(record []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			s.recordFault("panic in mirror publish", rec, debug.Stack(), "")
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), mirrorTimeout)
	defer cancel()
	if err := s.mirror.Publish(ctx, record); err != nil {
		s.logger.Warn("mirror publish failed", "error", err)
	}
}

// handleIndex serves the web UI
func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(indexHTML))
}
