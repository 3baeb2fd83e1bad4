package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/naming"
)

// CoursesHandler handles the owner's course rosters
type CoursesHandler struct {
	service *attendance.Service
}

// NewCoursesHandler creates a new courses handler
func NewCoursesHandler(service *attendance.Service) *CoursesHandler {
	return &CoursesHandler{service: service}
}

// CourseResponse represents a course in API responses
type CourseResponse struct {
	Key       string   `json:"key"`
	Name      string   `json:"name"`
	Members   []string `json:"members"`
	CreatedAt string   `json:"created_at"`
}

func courseResponse(c *database.Course) CourseResponse {
	members := c.Members
	if members == nil {
		members = []string{}
	}
	return CourseResponse{
		Key:       c.Key,
		Name:      c.Name,
		Members:   members,
		CreatedAt: c.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// memberList accepts either a JSON array of names or one comma-separated string.
type memberList []string

func (m *memberList) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*m = list
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = naming.SplitMembers(raw)
	return nil
}

type createCourseRequest struct {
	Name    string     `json:"name"`
	Members memberList `json:"members"`
}

// Create stores a new course for the session owner
func (h *CoursesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createCourseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	course, err := h.service.CreateCourse(r.Context(), ownerKey(r), req.Name, req.Members)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, courseResponse(course))
}

// List returns the session owner's courses
func (h *CoursesHandler) List(w http.ResponseWriter, r *http.Request) {
	courses, err := h.service.ListCourses(r.Context(), ownerKey(r))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	result := make([]CourseResponse, len(courses))
	for i := range courses {
		result[i] = courseResponse(&courses[i])
	}
	respondJSON(w, http.StatusOK, result)
}

// Get returns one course
func (h *CoursesHandler) Get(w http.ResponseWriter, r *http.Request) {
	course, err := h.service.GetCourse(r.Context(), ownerKey(r), chi.URLParam(r, "course"))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, courseResponse(course))
}

// Delete removes a course, its attendance records are kept
func (h *CoursesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.DeleteCourse(r.Context(), ownerKey(r), chi.URLParam(r, "course")); err != nil {
		respondServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
