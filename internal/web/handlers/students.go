package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
)

// StudentsHandler handles student registration and reference pictures
type StudentsHandler struct {
	service  *attendance.Service
	maxBytes int64
}

// NewStudentsHandler creates a new students handler
func NewStudentsHandler(service *attendance.Service, maxBytes int64) *StudentsHandler {
	if maxBytes <= 0 {
		maxBytes = attendance.DefaultMaxImageBytes
	}
	return &StudentsHandler{service: service, maxBytes: maxBytes}
}

// StudentResponse represents a student in API responses
type StudentResponse struct {
	Key          string `json:"key"`
	DisplayName  string `json:"display_name"`
	ImageFormat  string `json:"image_format"`
	HasEmbedding bool   `json:"has_embedding"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func studentResponse(id *database.Identity) StudentResponse {
	return StudentResponse{
		Key:          id.Key,
		DisplayName:  id.DisplayName,
		ImageFormat:  id.ImageFormat,
		HasEmbedding: len(id.FaceEmbedding) > 0,
		CreatedAt:    id.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    id.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

// Register handles multipart student registration (name + picture)
func (h *StudentsHandler) Register(w http.ResponseWriter, r *http.Request) {
	image, err := readPicture(w, r, h.maxBytes)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	identity, err := h.service.RegisterStudent(r.Context(), r.FormValue("name"), image)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, studentResponse(identity))
}

// Get returns a student's details
func (h *StudentsHandler) Get(w http.ResponseWriter, r *http.Request) {
	identity, err := h.service.GetStudent(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, studentResponse(identity))
}

// GetPicture serves the stored reference picture
func (h *StudentsHandler) GetPicture(w http.ResponseWriter, r *http.Request) {
	identity, err := h.service.GetStudent(r.Context(), chi.URLParam(r, "key"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", identity.ImageFormat)
	w.Header().Set("Content-Length", strconv.Itoa(len(identity.ReferenceImage)))
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(identity.ReferenceImage)
}

// UpdatePicture replaces a student's reference picture
func (h *StudentsHandler) UpdatePicture(w http.ResponseWriter, r *http.Request) {
	image, err := readPicture(w, r, h.maxBytes)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	key := chi.URLParam(r, "key")
	if err := h.service.UpdateStudentImage(r.Context(), key, image); err != nil {
		respondServiceError(w, r, err)
		return
	}
	identity, err := h.service.GetStudent(r.Context(), key)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, studentResponse(identity))
}
