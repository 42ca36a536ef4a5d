package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/fingerprint-bridge/internal/history"
)

// healthCheckTimeout bounds the database ping in the health endpoint.
const healthCheckTimeout = 2 * time.Second

// HealthResponse is the body of GET /api/v1/health.
type HealthResponse struct {
	Status          string `json:"status"`
	Version         string `json:"version"`
	DeviceConnected bool   `json:"device_connected"`
	Clients         int    `json:"clients"`
	Users           int    `json:"users"`
	MQTT            *bool  `json:"mqtt_connected,omitempty"`
	Database        string `json:"database,omitempty"`
}

// handleHealth reports "ok" when the device is connected and "degraded"
// otherwise. The bridge keeps serving clients in both cases.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	m := s.bridge.GetMetrics()

	resp := HealthResponse{
		Status:          "ok",
		Version:         s.version,
		DeviceConnected: m.DeviceConnected,
		Clients:         m.Clients,
		Users:           m.Users,
	}
	if !m.DeviceConnected {
		resp.Status = "degraded"
	}
	if s.mqtt != nil {
		connected := s.mqtt.IsConnected()
		resp.MQTT = &connected
	}
	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		resp.Database = "ok"
		if err := s.db.HealthCheck(ctx); err != nil {
			resp.Database = "error"
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleListUsers returns the registry snapshot in enrolment order.
func (s *Server) handleListUsers(w http.ResponseWriter, _ *http.Request) {
	users := s.bridge.Users()
	writeJSON(w, http.StatusOK, map[string]any{"users": users, "count": len(users)})
}

// handleListPorts returns the serial ports present on the host.
func (s *Server) handleListPorts(w http.ResponseWriter, _ *http.Request) {
	ports, err := s.listPorts()
	if err != nil {
		s.logger.Warn("listing serial ports failed", "error", err)
		writeInternalError(w, "failed to list serial ports")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ports": ports, "count": len(ports)})
}

// handleListHistory returns journal entries, newest first.
//
// Query parameters: roll, kind, limit (1..history.MaxLimit).
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "activity journal is disabled")
		return
	}

	q := r.URL.Query()
	limit, err := parseHistoryLimit(q.Get("limit"))
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	entries, err := s.history.List(r.Context(), history.Filter{
		Roll:  q.Get("roll"),
		Kind:  q.Get("kind"),
		Limit: limit,
	})
	if err != nil {
		s.logger.Error("listing history failed", "error", err)
		writeInternalError(w, "failed to list history")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "count": len(entries)})
}

// parseHistoryLimit parses the limit query parameter with bounds enforcement.
// An empty value selects history.DefaultLimit.
func parseHistoryLimit(raw string) (int, error) {
	if raw == "" {
		return history.DefaultLimit, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid limit")
	}
	if limit > history.MaxLimit {
		return 0, fmt.Errorf("limit exceeds maximum of %d", history.MaxLimit)
	}
	return limit, nil
}
