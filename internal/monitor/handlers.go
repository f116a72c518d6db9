package monitor

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type createCheckRequest struct {
	DeviceID  string    `json:"deviceId"`
	CheckType CheckType `json:"checkType"`
	Target    string    `json:"target"`
}

// handleCreateCheck registers an endpoint check for a device.
//
//	@Summary	Create an endpoint check
//	@Tags		monitor
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		createCheckRequest	true	"Check definition"
//	@Success	201		{object}	Check
//	@Failure	400		{object}	map[string]any
//	@Router		/monitor/checks [post]
func (m *Module) handleCreateCheck(w http.ResponseWriter, r *http.Request) {
	var req createCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DeviceID == "" || req.Target == "" {
		writeError(w, http.StatusBadRequest, "deviceId and target are required")
		return
	}
	if !ValidCheckType(req.CheckType) {
		writeError(w, http.StatusBadRequest, "checkType must be icmp or tcp")
		return
	}
	if _, err := m.devicesMod.Registry().Get(r.Context(), req.DeviceID); err != nil {
		writeError(w, http.StatusBadRequest, "unknown device")
		return
	}

	now := time.Now().UTC()
	check := &Check{
		ID:        uuid.NewString(),
		DeviceID:  req.DeviceID,
		CheckType: req.CheckType,
		Target:    req.Target,
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.store.InsertCheck(r.Context(), check); err != nil {
		m.logger.Error("failed to create check", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create check")
		return
	}
	writeJSON(w, http.StatusCreated, check)
}

// handleListChecks returns all registered checks.
//
//	@Summary	List endpoint checks
//	@Tags		monitor
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{array}	Check
//	@Router		/monitor/checks [get]
func (m *Module) handleListChecks(w http.ResponseWriter, r *http.Request) {
	checks, err := m.store.ListChecks(r.Context())
	if err != nil {
		m.logger.Error("failed to list checks", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list checks")
		return
	}
	if checks == nil {
		checks = []Check{}
	}
	writeJSON(w, http.StatusOK, checks)
}

// handleDeleteCheck removes a check.
//
//	@Summary	Delete an endpoint check
//	@Tags		monitor
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Check ID"
//	@Success	204	"No Content"
//	@Failure	404	{object}	map[string]any
//	@Router		/monitor/checks/{id} [delete]
func (m *Module) handleDeleteCheck(w http.ResponseWriter, r *http.Request) {
	if err := m.store.DeleteCheck(r.Context(), r.PathValue("id")); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "check not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to delete check")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEnableCheck re-enables a check.
//
//	@Summary	Enable an endpoint check
//	@Tags		monitor
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Check ID"
//	@Success	204	"No Content"
//	@Failure	404	{object}	map[string]any
//	@Router		/monitor/checks/{id}/enable [post]
func (m *Module) handleEnableCheck(w http.ResponseWriter, r *http.Request) {
	m.setEnabled(w, r, true)
}

// handleDisableCheck pauses a check.
//
//	@Summary	Disable an endpoint check
//	@Tags		monitor
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Check ID"
//	@Success	204	"No Content"
//	@Failure	404	{object}	map[string]any
//	@Router		/monitor/checks/{id}/disable [post]
func (m *Module) handleDisableCheck(w http.ResponseWriter, r *http.Request) {
	m.setEnabled(w, r, false)
}

func (m *Module) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	if err := m.store.SetEnabled(r.Context(), r.PathValue("id"), enabled); err != nil {
		if errors.Is(err, ErrNotFound) {
			writeError(w, http.StatusNotFound, "check not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to update check")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleLatestResults returns the most recent result per check.
//
//	@Summary	Latest probe results
//	@Tags		monitor
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{array}	Result
//	@Router		/monitor/results [get]
func (m *Module) handleLatestResults(w http.ResponseWriter, r *http.Request) {
	results, err := m.store.LatestResults(r.Context())
	if err != nil {
		m.logger.Error("failed to load results", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load results")
		return
	}
	if results == nil {
		results = []Result{}
	}
	writeJSON(w, http.StatusOK, results)
}

// handleStatus reports whether the probe scheduler is running.
//
//	@Summary	Monitor status
//	@Tags		monitor
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	map[string]any
//	@Router		/monitor/status [get]
func (m *Module) handleStatus(w http.ResponseWriter, r *http.Request) {
	running := m.scheduler != nil && m.scheduler.Running()
	writeJSON(w, http.StatusOK, map[string]any{
		"schedulerRunning": running,
	})
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a problem+json error response.
func writeError(w http.ResponseWriter, status int, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"type":   problemType(status),
		"title":  http.StatusText(status),
		"status": status,
		"detail": detail,
	})
}

func problemType(status int) string {
	slug := strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "-"))
	return "https://schoolgate.io/problems/" + slug
}
