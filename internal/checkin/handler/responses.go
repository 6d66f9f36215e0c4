package handler

import (
	"time"

	"presence/internal/checkin/models"
	"presence/internal/checkin/service"
)

// AttendancePayload is the wire shape of one attendance record.
type AttendancePayload struct {
	ID             string    `json:"id"`
	RegistrationID string    `json:"registration_id"`
	EventID        string    `json:"event_id"`
	RecordedAt     time.Time `json:"recorded_at"`
	Origin         string    `json:"origin"`
	OperatorID     *string   `json:"operator_id,omitempty"`
}

func fromRecord(rec models.AttendanceRecord) AttendancePayload {
	payload := AttendancePayload{
		ID:             rec.ID.String(),
		RegistrationID: rec.RegistrationID.String(),
		EventID:        rec.EventID.String(),
		RecordedAt:     rec.RecordedAt,
		Origin:         string(rec.Origin),
	}
	if rec.OperatorID != nil {
		operatorID := rec.OperatorID.String()
		payload.OperatorID = &operatorID
	}
	return payload
}

// CheckinResponse is the wire shape of a classified check-in outcome.
type CheckinResponse struct {
	Status     string             `json:"status"`
	Reason     string             `json:"reason,omitempty"`
	Attendance *AttendancePayload `json:"attendance,omitempty"`
}

func fromResult(result models.CheckinResult) CheckinResponse {
	resp := CheckinResponse{
		Status: string(result.Status),
		Reason: result.Reason,
	}
	if result.Record != nil {
		payload := fromRecord(*result.Record)
		resp.Attendance = &payload
	}
	return resp
}

// SyncItemResponse classifies one reconciled batch item.
type SyncItemResponse struct {
	RegistrationID string `json:"registration_id"`
	EventID        string `json:"event_id"`
	Status         string `json:"status"`
	Reason         string `json:"reason,omitempty"`
}

// SyncResponse is the wire shape of a reconciliation report.
type SyncResponse struct {
	Total     int                `json:"total"`
	Accepted  int                `json:"accepted"`
	Duplicate int                `json:"duplicate"`
	Failed    int                `json:"failed"`
	Results   []SyncItemResponse `json:"results"`
}

func fromReport(report models.SyncReport) SyncResponse {
	resp := SyncResponse{
		Total:     report.Total,
		Accepted:  report.Accepted,
		Duplicate: report.Duplicate,
		Failed:    report.Failed,
		Results:   make([]SyncItemResponse, 0, len(report.Results)),
	}
	for _, result := range report.Results {
		resp.Results = append(resp.Results, SyncItemResponse{
			RegistrationID: result.RegistrationID.String(),
			EventID:        result.EventID.String(),
			Status:         string(result.Status),
			Reason:         result.Reason,
		})
	}
	return resp
}

// RosterEntryPayload is one registration on the roster download.
type RosterEntryPayload struct {
	RegistrationID string    `json:"registration_id"`
	ParticipantID  string    `json:"participant_id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Status         string    `json:"status"`
	HasAttendance  bool      `json:"has_attendance"`
	RegisteredAt   time.Time `json:"registered_at"`
}

// RosterResponse is the wire shape of GET /events/{eventID}/attendance-roster.
type RosterResponse struct {
	EventID            string               `json:"event_id"`
	EventName          string               `json:"event_name"`
	StartsAt           time.Time            `json:"starts_at"`
	EndsAt             time.Time            `json:"ends_at"`
	TotalRegistrations int                  `json:"total_registrations"`
	TotalCheckedIn     int                  `json:"total_checked_in"`
	Entries            []RosterEntryPayload `json:"entries"`
}

func fromRoster(roster models.Roster) RosterResponse {
	resp := RosterResponse{
		EventID:            roster.EventID.String(),
		EventName:          roster.EventName,
		StartsAt:           roster.StartsAt,
		EndsAt:             roster.EndsAt,
		TotalRegistrations: roster.TotalRegistrations,
		TotalCheckedIn:     roster.TotalCheckedIn,
		Entries:            make([]RosterEntryPayload, 0, len(roster.Entries)),
	}
	for _, entry := range roster.Entries {
		resp.Entries = append(resp.Entries, RosterEntryPayload{
			RegistrationID: entry.RegistrationID.String(),
			ParticipantID:  entry.ParticipantID,
			Name:           entry.Name,
			Email:          entry.Email,
			Status:         entry.Status,
			HasAttendance:  entry.HasAttendance,
			RegisteredAt:   entry.RegisteredAt,
		})
	}
	return resp
}

// StatusResponse is the wire shape of GET /attendance/{registrationID}.
type StatusResponse struct {
	RegistrationID string             `json:"registration_id"`
	HasAttendance  bool               `json:"has_attendance"`
	Attendance     *AttendancePayload `json:"attendance,omitempty"`
}

func fromStatus(registrationID string, status service.AttendanceStatus) StatusResponse {
	resp := StatusResponse{
		RegistrationID: registrationID,
		HasAttendance:  status.HasAttendance,
	}
	if status.Record != nil {
		payload := fromRecord(*status.Record)
		resp.Attendance = &payload
	}
	return resp
}
