package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
)

// AttendanceHandler handles picture submissions and attendance records
type AttendanceHandler struct {
	service  *attendance.Service
	maxBytes int64
}

// NewAttendanceHandler creates a new attendance handler
func NewAttendanceHandler(service *attendance.Service, maxBytes int64) *AttendanceHandler {
	if maxBytes <= 0 {
		maxBytes = attendance.DefaultMaxImageBytes
	}
	return &AttendanceHandler{service: service, maxBytes: maxBytes}
}

// MemberDiagnostic describes how one roster member resolved
type MemberDiagnostic struct {
	Key        string `json:"key"`
	Outcome    string `json:"outcome"`
	Error      string `json:"error,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// SubmitResponse represents the result of an attendance submission
type SubmitResponse struct {
	BatchID        string             `json:"batch_id"`
	Label          string             `json:"label"`
	PresentMembers []string           `json:"present_members"`
	RecordMembers  []string           `json:"record_members"`
	WasNewRecord   bool               `json:"was_new_record"`
	Diagnostics    []MemberDiagnostic `json:"diagnostics"`
}

// Submit matches the uploaded picture against the course roster (label + picture)
func (h *AttendanceHandler) Submit(w http.ResponseWriter, r *http.Request) {
	image, err := readPicture(w, r, h.maxBytes)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	sub, err := h.service.Submit(r.Context(), ownerKey(r), chi.URLParam(r, "course"), r.FormValue("label"), image)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	diagnostics := make([]MemberDiagnostic, len(sub.Diagnostics))
	for i, m := range sub.Diagnostics {
		diagnostics[i] = MemberDiagnostic{
			Key:        m.Key,
			Outcome:    string(m.Outcome),
			DurationMs: m.Duration.Milliseconds(),
		}
		if m.Err != nil {
			diagnostics[i].Error = m.Err.Error()
		}
	}

	status := http.StatusOK
	if sub.WasNewRecord {
		status = http.StatusCreated
	}
	respondJSON(w, status, SubmitResponse{
		BatchID:        sub.BatchID,
		Label:          sub.Label,
		PresentMembers: nonNil(sub.PresentMembers),
		RecordMembers:  nonNil(sub.RecordMembers),
		WasNewRecord:   sub.WasNewRecord,
		Diagnostics:    diagnostics,
	})
}

// RecordResponse represents an attendance record
type RecordResponse struct {
	Label      string       `json:"label"`
	LabelKey   string       `json:"label_key"`
	Present    []string     `json:"present"`
	Members    []MemberName `json:"members,omitempty"`
	CapturedAt string       `json:"captured_at"`
	CreatedAt  string       `json:"created_at"`
}

// MemberName is a present member with its display name
type MemberName struct {
	Key         string `json:"key"`
	DisplayName string `json:"display_name"`
}

func recordResponse(rec *database.AttendanceRecord) RecordResponse {
	return RecordResponse{
		Label:      rec.Label,
		LabelKey:   rec.LabelKey,
		Present:    nonNil(rec.Present),
		CapturedAt: rec.CapturedAt.UTC().Format(time.RFC3339),
		CreatedAt:  rec.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// List returns every record of a course
func (h *AttendanceHandler) List(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListRecords(r.Context(), ownerKey(r), chi.URLParam(r, "course"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	result := make([]RecordResponse, len(records))
	for i := range records {
		result[i] = recordResponse(&records[i])
	}
	respondJSON(w, http.StatusOK, result)
}

// Get returns the record stored under a label, with display names
func (h *AttendanceHandler) Get(w http.ResponseWriter, r *http.Request) {
	view, err := h.service.GetRecord(r.Context(), ownerKey(r), chi.URLParam(r, "course"), chi.URLParam(r, "label"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	resp := recordResponse(&view.Record)
	resp.Members = make([]MemberName, len(view.Members))
	for i, m := range view.Members {
		resp.Members[i] = MemberName{Key: m.Key, DisplayName: m.DisplayName}
	}
	respondJSON(w, http.StatusOK, resp)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
