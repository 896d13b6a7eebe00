package server

import (
	"encoding/json"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/UlisseMini/sanitycheck-sub001/pkg/event"
)

// cors lets extension pages post to the sink cross-origin and answers
// preflight requests directly
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			if origin != "*" {
				h.Add("Vary", "Origin")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// allowOrigin returns the Access-Control-Allow-Origin value for origin, or ""
// when the origin is not allowed
func (s *Server) allowOrigin(origin string) string {
	if len(s.origins) == 0 {
		return "*"
	}
	for _, o := range s.origins {
		if o == "*" {
			return "*"
		}
		if origin != "" && o == origin {
			return origin
		}
	}
	return ""
}

// recoverer turns a handler panic into a stored error record and a 500
func (s *Server) recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			s.recordFault("panic in "+r.Method+" "+r.URL.Path, rec, debug.Stack(), chimw.GetReqID(r.Context()))
			jsonResponse(w, http.StatusInternalServerError, map[string]any{
				"success": false,
				"error":   "internal server error",
			})
		}()

		next.ServeHTTP(w, r)
	})
}

// safeGo runs fn in a goroutine, recording a panic instead of crashing the sink
func (s *Server) safeGo(name string, fn func()) {
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				s.recordFault("panic in background goroutine "+name, rec, debug.Stack(), "")
			}
		}()
		fn()
	}()
}

// recordFault writes an error-level record describing a recovered panic.
// If the record cannot be stored it only reaches the console.
func (s *Server) recordFault(message string, rec any, stack []byte, requestID string) {
	info := event.Project(event.NewPanicError(rec, stack))
	s.logger.Error(message, "panic", info.Message, "request_id", requestID)

	record := map[string]any{
		"timestamp": s.now().UTC().Format(event.TimeFormat),
		"level":     event.LevelError,
		"source":    FaultSource,
		"message":   message,
		"error": map[string]any{
			"name":    info.Name,
			"message": info.Message,
			"stack":   info.Stack,
		},
	}
	if requestID != "" {
		record["requestId"] = requestID
	}

	data, err := json.Marshal(record)
	if err == nil {
		err = s.append(data)
	}
	if err != nil {
		s.logger.Error("failed to record fault", "error", err)
	}
}
