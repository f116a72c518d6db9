package transmit

import (
	"github.com/schoolgate/schoolgate/internal/devices"
	"github.com/schoolgate/schoolgate/internal/keys"
)

// DataType classifies an outbound payload.
type DataType string

const (
	DataStudentRecord    DataType = "STUDENT_RECORD"
	DataAttendanceRecord DataType = "ATTENDANCE_RECORD"
	DataGradeRecord      DataType = "GRADE_RECORD"
	DataAggregateReport  DataType = "AGGREGATE_REPORT"
	DataComplianceReport DataType = "COMPLIANCE_REPORT"
	DataScheduleData     DataType = "SCHEDULE_DATA"
	DataNotification     DataType = "NOTIFICATION"
)

// NotificationType classifies an outbound notification.
type NotificationType string

const (
	NotifyAttendanceAlert     NotificationType = "ATTENDANCE_ALERT"
	NotifyGradeUpdate         NotificationType = "GRADE_UPDATE"
	NotifyEmergency           NotificationType = "EMERGENCY_NOTIFICATION"
	NotifyGeneralAnnouncement NotificationType = "GENERAL_ANNOUNCEMENT"
	NotifyScheduleChange      NotificationType = "SCHEDULE_CHANGE"
	NotifyParentReminder      NotificationType = "PARENT_REMINDER"
)

// dataTypePermissions maps each data type to the permissions that allow
// it. A device needs ANY listed permission. The table lives next to the
// enum so the two cannot drift apart silently.
var dataTypePermissions = map[DataType][]devices.Permission{
	DataStudentRecord:    {devices.PermStudentBasicInfo},
	DataAttendanceRecord: {devices.PermStudentAttendance},
	DataGradeRecord:      {devices.PermStudentGrades},
	DataAggregateReport:  {devices.PermAggregateStatistics},
	DataComplianceReport: {devices.PermComplianceReports},
	DataScheduleData:     {devices.PermSyncSchedules},
	DataNotification: {
		devices.PermSendAttendance,
		devices.PermSendGradeUpdates,
		devices.PermSendEmergency,
		devices.PermSendGeneral,
	},
}

// notificationPermissions maps each notification type to its single
// required permission.
var notificationPermissions = map[NotificationType]devices.Permission{
	NotifyAttendanceAlert:     devices.PermSendAttendance,
	NotifyGradeUpdate:         devices.PermSendGradeUpdates,
	NotifyEmergency:           devices.PermSendEmergency,
	NotifyGeneralAnnouncement: devices.PermSendGeneral,
	NotifyScheduleChange:      devices.PermSendGeneral,
	NotifyParentReminder:      devices.PermSendGeneral,
}

// ValidDataType reports whether dt is a known data type.
func ValidDataType(dt DataType) bool {
	_, ok := dataTypePermissions[dt]
	return ok
}

// ValidNotificationType reports whether nt is a known notification type.
func ValidNotificationType(nt NotificationType) bool {
	_, ok := notificationPermissions[nt]
	return ok
}

// permittedFor reports whether the device holds any permission allowing
// the data type.
func permittedFor(d *devices.Device, dt DataType) bool {
	for _, p := range dataTypePermissions[dt] {
		if d.HasPermission(p) {
			return true
		}
	}
	return false
}

// Outcome tags a transmission result.
type Outcome string

const (
	OutcomeSuccess Outcome = "SUCCESS"
	OutcomeBlocked Outcome = "BLOCKED"
	OutcomeError   Outcome = "ERROR"
)

// Error codes carried on blocked and failed results, beyond the
// verification codes defined by the device registry.
const (
	CodeInsufficientPermissions = "INSUFFICIENT_PERMISSIONS"
	CodeNoPermission            = "NO_PERMISSION"
	CodeTransmissionError       = "TRANSMISSION_ERROR"
)

// Result is the tagged outcome of one transmission attempt. Payload is
// set only on success; ErrorCode and ErrorMessage only otherwise.
// Blocked means the device must be reconfigured before retrying; Error
// means a technical fault worth retrying later.
type Result struct {
	Outcome        Outcome               `json:"outcome"`
	TransmissionID string                `json:"transmissionId"`
	Payload        *keys.EncryptedPayload `json:"encryptedPayload,omitempty"`
	ErrorCode      string                `json:"errorCode,omitempty"`
	ErrorMessage   string                `json:"errorMessage,omitempty"`
}

func success(txID string, payload *keys.EncryptedPayload) Result {
	return Result{Outcome: OutcomeSuccess, TransmissionID: txID, Payload: payload}
}

func blocked(txID, code, message string) Result {
	return Result{Outcome: OutcomeBlocked, TransmissionID: txID, ErrorCode: code, ErrorMessage: message}
}

func failure(txID, message string) Result {
	return Result{Outcome: OutcomeError, TransmissionID: txID, ErrorCode: CodeTransmissionError, ErrorMessage: message}
}
