package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/pitaeeg/sensor-server/internal/storage"
)

// ========== Auth handlers ==========

// HandleLogin handles operator login
func (s *RESTServer) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.auth.Authenticate(req.Username, req.Password) {
		s.respondError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	accessToken, refreshToken, err := s.auth.GenerateTokenPair(req.Username)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "failed to generate tokens")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.Auth.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// HandleRefresh handles token refresh
func (s *RESTServer) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req struct {
		RefreshToken string `json:"refresh_token" validate:"required"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	accessToken, refreshToken, err := s.auth.RefreshToken(req.RefreshToken)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid refresh token")
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"access_token":  accessToken,
		"refresh_token": refreshToken,
		"expires_in":    int(s.config.Auth.AccessTokenTTL.Seconds()),
		"token_type":    "Bearer",
	})
}

// ========== Sensor handlers ==========

// HandleStatus reports the sensor session state
func (s *RESTServer) HandleStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{
		"port":  s.session.Port(),
		"state": s.session.State().String(),
	}

	if dev, ok := s.session.ConnectedDevice(); ok {
		resp["device_name"] = dev.DeviceName()
		resp["device_id"] = dev.DeviceID()
	}

	// Auxiliary queries are best effort, the sensor rejects them in some
	// states and the status report should still succeed.
	if s.session.IsConnected() {
		if minutes, err := s.session.BatteryRemainingTime(); err == nil {
			resp["battery_minutes"] = minutes
		}
		if version, err := s.session.Version(); err == nil {
			resp["firmware_version"] = version
		}
	}

	s.mu.Lock()
	resp["measuring"] = s.running
	if s.lastRecording != nil {
		resp["last_recording_id"] = s.lastRecording.ID
	}
	if s.lastRunErr != nil {
		resp["last_run_error"] = s.lastRunErr.Error()
	}
	s.mu.Unlock()

	s.respondJSON(w, http.StatusOK, resp)
}

// HandleContactResistance reads electrode contact resistance
func (s *RESTServer) HandleContactResistance(w http.ResponseWriter, r *http.Request) {
	cr, err := s.session.GetContactResistance()
	if err != nil {
		s.respondError(w, http.StatusConflict, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"ch_z": cr.ChZ,
		"ch_r": cr.ChR,
		"ch_l": cr.ChL,
	})
}

// ========== Measurement handlers ==========

// HandleStartMeasurement starts an acquisition run
func (s *RESTServer) HandleStartMeasurement(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Channels []int `json:"channels" validate:"channels"`
	}

	// An empty body means default channels from the configuration.
	_ = json.NewDecoder(r.Body).Decode(&req)

	if err := s.validator.Validate(req); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	if !s.session.IsConnected() {
		s.respondError(w, http.StatusConflict, "no device connected")
		return
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.respondError(w, http.StatusConflict, "measurement already running")
		return
	}
	if len(req.Channels) > 0 {
		s.config.Sensor.Channels = req.Channels
	}
	runCtx, cancel := context.WithCancel(context.Background())
	s.running = true
	s.cancelRun = cancel
	s.mu.Unlock()

	go func() {
		rec, err := s.svc.Run(runCtx)
		if err != nil {
			log.Error().Err(err).Msg("Acquisition run failed")
		}

		s.mu.Lock()
		s.running = false
		s.cancelRun = nil
		s.lastRecording = rec
		s.lastRunErr = err
		s.mu.Unlock()
	}()

	s.respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"status": "started",
	})
}

// HandleStopMeasurement stops the active acquisition run
func (s *RESTServer) HandleStopMeasurement(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	cancel := s.cancelRun
	s.mu.Unlock()

	if cancel == nil {
		s.respondError(w, http.StatusConflict, "no measurement running")
		return
	}

	cancel()

	// Give the run a moment to drain and close its recording.
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		s.mu.Lock()
		running := s.running
		s.mu.Unlock()
		if !running {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}

	s.mu.Lock()
	resp := map[string]interface{}{"status": "stopped"}
	if s.lastRecording != nil {
		resp["recording_id"] = s.lastRecording.ID
		resp["sample_count"] = s.lastRecording.SampleCount
		resp["file_path"] = s.lastRecording.FilePath
	}
	s.mu.Unlock()

	s.respondJSON(w, http.StatusOK, resp)
}

// ========== Recording handlers ==========

// HandleListRecordings lists recordings
func (s *RESTServer) HandleListRecordings(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}

	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	recordings, total, err := s.store.ListRecordings(ctx, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"recordings": recordings,
		"total":      total,
	})
}

// HandleGetRecording gets a recording
func (s *RESTServer) HandleGetRecording(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}

	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid recording id")
		return
	}

	rec, err := s.store.GetRecording(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "recording not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, rec)
}

// ========== Event handlers ==========

// HandleListEvents lists event logs
func (s *RESTServer) HandleListEvents(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.respondError(w, http.StatusServiceUnavailable, "storage not configured")
		return
	}

	ctx := r.Context()

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit == 0 {
		limit = 20
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	var recordingID *uuid.UUID
	if recIDStr := r.URL.Query().Get("recording_id"); recIDStr != "" {
		if id, err := uuid.Parse(recIDStr); err == nil {
			recordingID = &id
		}
	}

	events, total, err := s.store.ListEvents(ctx, recordingID, limit, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"events": events,
		"total":  total,
	})
}

// ========== System handlers ==========

// HandleHealth health check
func (s *RESTServer) HandleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	})
}

// HandleRoot root handler
func (s *RESTServer) HandleRoot(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"service": "EEG Sensor Server",
		"version": "1.0.0",
		"health":  "/api/v1/health",
	})
}

// respondJSON responds with JSON
func (s *RESTServer) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

// respondError responds with error
func (s *RESTServer) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{
		"error": message,
	})
}
