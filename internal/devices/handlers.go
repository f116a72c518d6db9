package devices

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

// handleRegister registers a new external device.
//
//	@Summary		Register a device
//	@Description	Registers an external device pending admin approval. A fresh symmetric key is issued and wrapped at rest.
//	@Tags			devices
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		RegisterRequest	true	"Registration request"
//	@Success		201		{object}	map[string]any
//	@Failure		400		{object}	map[string]any
//	@Router			/devices [post]
func (m *Module) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := m.registry.Register(r.Context(), &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"deviceId":  d.DeviceID,
		"status":    d.Status,
		"expiresAt": d.ExpiresAt,
	})
}

// handleList returns operator-facing device summaries.
//
//	@Summary	List devices
//	@Tags		devices
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{array}	Summary
//	@Router		/devices [get]
func (m *Module) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := m.registry.Summaries(r.Context())
	if err != nil {
		m.logger.Error("failed to list devices")
		writeError(w, http.StatusInternalServerError, "failed to list devices")
		return
	}
	if summaries == nil {
		summaries = []Summary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}

// handleListPending returns devices awaiting approval.
//
//	@Summary	List devices pending approval
//	@Tags		devices
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{array}	Summary
//	@Router		/devices/pending [get]
func (m *Module) handleListPending(w http.ResponseWriter, r *http.Request) {
	devs, err := m.registry.ListPending(r.Context())
	if err != nil {
		m.logger.Error("failed to list pending devices")
		writeError(w, http.StatusInternalServerError, "failed to list pending devices")
		return
	}
	out := make([]Summary, 0, len(devs))
	for _, d := range devs {
		out = append(out, d.Summarize())
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGet returns the operator-facing projection of one device.
//
//	@Summary	Get a device
//	@Tags		devices
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Device ID"
//	@Success	200	{object}	Summary
//	@Failure	404	{object}	map[string]any
//	@Router		/devices/{id} [get]
func (m *Module) handleGet(w http.ResponseWriter, r *http.Request) {
	d, err := m.registry.Get(r.Context(), r.PathValue("id"))
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "device not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load device")
		return
	}
	writeJSON(w, http.StatusOK, d.Summarize())
}

type approveRequest struct {
	Permissions []Permission `json:"permissions"`
}

// handleApprove activates a pending device with its granted permissions.
//
//	@Summary		Approve a device
//	@Description	Transitions a PENDING_APPROVAL device to ACTIVE. The granted permission set may be narrower than requested.
//	@Tags			devices
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id		path		string			true	"Device ID"
//	@Param			request	body		approveRequest	true	"Granted permissions"
//	@Success		200		{object}	map[string]any
//	@Failure		400		{object}	map[string]any
//	@Router			/devices/{id}/approve [post]
func (m *Module) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	d, err := m.registry.Approve(r.Context(), r.PathValue("id"), actorFrom(r), req.Permissions)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"deviceId":    d.DeviceID,
		"status":      d.Status,
		"permissions": d.Permissions,
	})
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// handleRevoke permanently revokes a device.
//
//	@Summary	Revoke a device
//	@Tags		devices
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string			true	"Device ID"
//	@Param		request	body		reasonRequest	true	"Revocation reason"
//	@Success	200		{object}	map[string]any
//	@Failure	400		{object}	map[string]any
//	@Router		/devices/{id}/revoke [post]
func (m *Module) handleRevoke(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := r.PathValue("id")
	if err := m.registry.Revoke(r.Context(), id, req.Reason, actorFrom(r)); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deviceId": id, "status": StatusRevoked})
}

// handleSuspend suspends a device.
//
//	@Summary	Suspend a device
//	@Tags		devices
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string			true	"Device ID"
//	@Param		request	body		reasonRequest	true	"Suspension reason"
//	@Success	200		{object}	map[string]any
//	@Failure	400		{object}	map[string]any
//	@Router		/devices/{id}/suspend [post]
func (m *Module) handleSuspend(w http.ResponseWriter, r *http.Request) {
	var req reasonRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	id := r.PathValue("id")
	if err := m.registry.Suspend(r.Context(), id, req.Reason); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deviceId": id, "status": StatusSuspended})
}

// handleReinstate returns a suspended device to active service.
//
//	@Summary	Reinstate a suspended device
//	@Tags		devices
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id	path		string	true	"Device ID"
//	@Success	200	{object}	map[string]any
//	@Failure	400	{object}	map[string]any
//	@Router		/devices/{id}/reinstate [post]
func (m *Module) handleReinstate(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := m.registry.Reinstate(r.Context(), id); err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deviceId": id, "status": StatusActive})
}

type renewRequest struct {
	Years int `json:"years"`
}

// handleRenew extends a device's expiry.
//
//	@Summary	Renew a device registration
//	@Tags		devices
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path		string			true	"Device ID"
//	@Param		request	body		renewRequest	true	"Years to extend"
//	@Success	200		{object}	map[string]any
//	@Failure	400		{object}	map[string]any
//	@Router		/devices/{id}/renew [post]
func (m *Module) handleRenew(w http.ResponseWriter, r *http.Request) {
	var req renewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	d, err := m.registry.Renew(r.Context(), r.PathValue("id"), req.Years)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deviceId":  d.DeviceID,
		"status":    d.Status,
		"expiresAt": d.ExpiresAt,
	})
}

// actorFrom returns the administrative actor recorded for a transition.
// The identity middleware upstream has already authenticated the caller.
func actorFrom(r *http.Request) string {
	if actor := r.Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "unknown"
}

func statusFor(err error) int {
	if errors.Is(err, ErrNotFound) {
		return http.StatusNotFound
	}
	return http.StatusBadRequest
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
