package transmit

import (
	"encoding/json"
	"net"
	"net/http"
	"strings"
)

type dataRequest struct {
	Request
	DataType DataType `json:"dataType"`
}

// handleTransmitData encrypts and returns a typed data payload.
//
//	@Summary		Transmit data to a device
//	@Description	Runs the full outbound pipeline: verification, permission check, sanitization, encryption, audit.
//	@Tags			transmit
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		dataRequest	true	"Transmission request"
//	@Success		200		{object}	Result
//	@Failure		400		{object}	map[string]any
//	@Failure		403		{object}	Result
//	@Failure		500		{object}	Result
//	@Router			/transmit/data [post]
func (m *Module) handleTransmitData(w http.ResponseWriter, r *http.Request) {
	var req dataRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !ValidDataType(req.DataType) {
		writeError(w, http.StatusBadRequest, "unknown dataType")
		return
	}
	fillSourceIP(&req.Request, r)
	writeResult(w, m.proxy.TransmitToDevice(r.Context(), req.Request, req.DataType))
}

type notificationRequest struct {
	Request
	NotificationType NotificationType `json:"notificationType"`
}

// handleTransmitNotification encrypts and returns a notification payload.
//
//	@Summary	Transmit a notification to a device
//	@Tags		transmit
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		notificationRequest	true	"Notification request"
//	@Success	200		{object}	Result
//	@Failure	400		{object}	map[string]any
//	@Failure	403		{object}	Result
//	@Failure	500		{object}	Result
//	@Router		/transmit/notification [post]
func (m *Module) handleTransmitNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !ValidNotificationType(req.NotificationType) {
		writeError(w, http.StatusBadRequest, "unknown notificationType")
		return
	}
	fillSourceIP(&req.Request, r)
	writeResult(w, m.proxy.TransmitNotification(r.Context(), req.Request, req.NotificationType))
}

// handleTransmitAggregate encrypts and returns aggregate statistics.
//
//	@Summary	Transmit aggregate data to a device
//	@Tags		transmit
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		Request	true	"Aggregate transmission request"
//	@Success	200		{object}	Result
//	@Failure	400		{object}	map[string]any
//	@Failure	403		{object}	Result
//	@Failure	500		{object}	Result
//	@Router		/transmit/aggregate [post]
func (m *Module) handleTransmitAggregate(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	fillSourceIP(&req, r)
	writeResult(w, m.proxy.TransmitAggregateData(r.Context(), req))
}

// handleCanReceive answers the capability precondition query.
//
//	@Summary	Check whether a device can receive a data type
//	@Tags		transmit
//	@Produce	json
//	@Security	BearerAuth
//	@Param		deviceId	query		string	true	"Device ID"
//	@Param		dataType	query		string	true	"Data type"
//	@Success	200			{object}	map[string]any
//	@Failure	400			{object}	map[string]any
//	@Router		/transmit/can-receive [get]
func (m *Module) handleCanReceive(w http.ResponseWriter, r *http.Request) {
	deviceID := r.URL.Query().Get("deviceId")
	dataType := DataType(r.URL.Query().Get("dataType"))
	if deviceID == "" || !ValidDataType(dataType) {
		writeError(w, http.StatusBadRequest, "deviceId and a known dataType are required")
		return
	}
	can, err := m.proxy.CanDeviceReceive(r.Context(), deviceID, dataType)
	if err != nil {
		m.logger.Error("capability check failed")
		writeError(w, http.StatusInternalServerError, "capability check failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"deviceId":   deviceID,
		"dataType":   dataType,
		"canReceive": can,
	})
}

// handleStatus reports gateway aggregates.
//
//	@Summary	Gateway status
//	@Tags		transmit
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{object}	StatusInfo
//	@Router		/transmit/status [get]
func (m *Module) handleStatus(w http.ResponseWriter, r *http.Request) {
	info, err := m.proxy.Status(r.Context())
	if err != nil {
		m.logger.Error("status query failed")
		writeError(w, http.StatusInternalServerError, "status query failed")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// writeResult maps the tagged result onto HTTP: blocked and technical
// errors use distinct status codes so callers can tell "fix the device"
// from "retry later".
func writeResult(w http.ResponseWriter, res Result) {
	switch res.Outcome {
	case OutcomeSuccess:
		writeJSON(w, http.StatusOK, map[string]any{
			"transmissionId":   res.TransmissionID,
			"encryptedPayload": res.Payload,
		})
	case OutcomeBlocked:
		writeJSON(w, http.StatusForbidden, res)
	default:
		writeJSON(w, http.StatusInternalServerError, res)
	}
}

// fillSourceIP defaults the source address to the peer address when the
// caller did not supply one.
func fillSourceIP(req *Request, r *http.Request) {
	if req.SourceIP != "" {
		return
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		req.SourceIP = host
	} else {
		req.SourceIP = r.RemoteAddr
	}
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
