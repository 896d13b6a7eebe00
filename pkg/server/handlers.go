package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/UlisseMini/sanitycheck-sub001/pkg/event"
)

// handleLog handles POST /debug/log
func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			jsonResponse(w, http.StatusRequestEntityTooLarge, map[string]any{
				"success": false,
				"error":   fmt.Sprintf("request body exceeds %d bytes", MaxBodyBytes),
			})
			return
		}
		jsonResponse(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   "failed to read body",
		})
		return
	}

	receipt, err := s.receiver.Receive(body, s.now())
	if err != nil {
		jsonResponse(w, http.StatusBadRequest, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	if err := s.append(receipt.Record); err != nil {
		s.logger.Error("failed to append log record", "error", err)
		jsonResponse(w, http.StatusInternalServerError, map[string]any{
			"success": false,
			"error":   err.Error(),
		})
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"success":   true,
		"timestamp": receipt.Timestamp,
	})
}

// handleLogs handles GET /debug/logs?lines=N
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	lines := DefaultLines
	if v := r.URL.Query().Get("lines"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			lines = n
		}
	}

	records, total, err := s.store.Tail(lines)
	if err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	jsonResponse(w, http.StatusOK, map[string]any{
		"logs":  records,
		"total": total,
	})
}

// handleClear handles DELETE /debug/logs
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Clear(); err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	s.hub.broadcastCleared()
	s.logger.Info("debug logs cleared", "log_file", s.store.Path())

	jsonResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "Logs cleared",
	})
}

// handleHealth handles GET /debug/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"timestamp":     s.now().UTC().Format(event.TimeFormat),
		"logFile":       s.store.Path(),
		"logFileExists": s.store.Exists(),
	})
}

// handleExport handles GET /debug/logs/export
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.store.Export(&buf); err != nil {
		jsonResponse(w, http.StatusInternalServerError, map[string]any{"error": err.Error()})
		return
	}

	name := fmt.Sprintf("debug-logs-%s.ndjson.zst", s.now().UTC().Format("20060102-150405"))
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Write(buf.Bytes())
}

// jsonResponse writes a JSON response with the given status code and data
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
