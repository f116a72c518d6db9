package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
)

// handleListRecent returns the newest audit records.
//
//	@Summary	List recent audit records
//	@Tags		audit
//	@Produce	json
//	@Security	BearerAuth
//	@Param		limit	query	int	false	"Maximum records to return"
//	@Success	200		{array}	Record
//	@Router		/audit [get]
func (m *Module) handleListRecent(w http.ResponseWriter, r *http.Request) {
	records, err := m.ledger.ListRecent(r.Context(), limitParam(r))
	if err != nil {
		m.logger.Error("failed to list audit records")
		writeError(w, http.StatusInternalServerError, "failed to list audit records")
		return
	}
	writeRecords(w, records)
}

// handleListByDevice returns recent audit records for one device.
//
//	@Summary	List audit records for a device
//	@Tags		audit
//	@Produce	json
//	@Security	BearerAuth
//	@Param		id		path	string	true	"Device ID"
//	@Param		limit	query	int		false	"Maximum records to return"
//	@Success	200		{array}	Record
//	@Router		/audit/device/{id} [get]
func (m *Module) handleListByDevice(w http.ResponseWriter, r *http.Request) {
	records, err := m.ledger.ListByDevice(r.Context(), r.PathValue("id"), limitParam(r))
	if err != nil {
		m.logger.Error("failed to list audit records")
		writeError(w, http.StatusInternalServerError, "failed to list audit records")
		return
	}
	writeRecords(w, records)
}

// handleListByStatus returns recent audit records with a given status.
//
//	@Summary	List audit records by status
//	@Tags		audit
//	@Produce	json
//	@Security	BearerAuth
//	@Param		status	path	string	true	"SUCCESS, BLOCKED, FAILED or UNREGISTERED_ATTEMPT"
//	@Param		limit	query	int		false	"Maximum records to return"
//	@Success	200		{array}	Record
//	@Failure	400		{object}	map[string]any
//	@Router		/audit/status/{status} [get]
func (m *Module) handleListByStatus(w http.ResponseWriter, r *http.Request) {
	status := Status(r.PathValue("status"))
	switch status {
	case StatusSuccess, StatusBlocked, StatusFailed, StatusUnregisteredAttempt:
	default:
		writeError(w, http.StatusBadRequest, "unknown audit status")
		return
	}
	records, err := m.ledger.ListByStatus(r.Context(), status, limitParam(r))
	if err != nil {
		m.logger.Error("failed to list audit records")
		writeError(w, http.StatusInternalServerError, "failed to list audit records")
		return
	}
	writeRecords(w, records)
}

func limitParam(r *http.Request) int {
	n, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return n
}

func writeRecords(w http.ResponseWriter, records []Record) {
	if records == nil {
		records = []Record{}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(records)
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
