package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/oakfield-systems/edgelink-core/internal/audit"
)

// healthProbeTimeout bounds the database probe inside /health.
const healthProbeTimeout = 2 * time.Second

// handleHealth reports node health: core loop reachable, database
// reachable (when configured), uptime and version.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	checks := map[string]string{}

	if _, err := s.core.StatsSnapshot(); err != nil {
		status = "degraded"
		checks["core"] = err.Error()
	} else {
		checks["core"] = "ok"
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthProbeTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			status = "degraded"
			checks["database"] = err.Error()
		} else {
			checks["database"] = "ok"
		}
	}

	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]any{
		"status":  status,
		"node":    s.nodeName,
		"version": s.version,
		"uptime":  time.Since(s.startedAt).String(),
		"checks":  checks,
	})
}

// handleListLinks returns a snapshot of every registered link.
func (s *Server) handleListLinks(w http.ResponseWriter, _ *http.Request) {
	snaps, err := s.core.LinkSnapshots()
	if err != nil {
		writeInternalError(w, "core loop unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"links": snaps})
}

// handleGetLink returns the snapshot of one link by name.
func (s *Server) handleGetLink(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	snaps, err := s.core.LinkSnapshots()
	if err != nil {
		writeInternalError(w, "core loop unavailable: "+err.Error())
		return
	}
	for _, snap := range snaps {
		if snap.Name == name {
			writeJSON(w, http.StatusOK, snap)
			return
		}
	}
	writeNotFound(w, "no such link: "+name)
}

// handleStats returns core-loop statistics.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	stats, err := s.core.StatsSnapshot()
	if err != nil {
		writeInternalError(w, "core loop unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// handleWatchdog returns per-actor watchdog status.
func (s *Server) handleWatchdog(w http.ResponseWriter, _ *http.Request) {
	actors, err := s.core.WatchdogActors()
	if err != nil {
		writeInternalError(w, "core loop unavailable: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"actors": actors})
}

// handleListEvents queries the comm-event audit trail. Supported query
// parameters: link, kind, since (RFC 3339), limit, offset.
func (s *Server) handleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeNotFound(w, "audit trail not configured")
		return
	}

	filter := audit.Filter{
		Link: r.URL.Query().Get("link"),
		Kind: r.URL.Query().Get("kind"),
	}

	if v := r.URL.Query().Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be RFC 3339")
			return
		}
		filter.Since = since
	}
	if v := r.URL.Query().Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	res, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("audit query failed", "error", err)
		writeInternalError(w, "audit query failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}
