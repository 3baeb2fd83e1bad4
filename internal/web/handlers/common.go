package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/web/middleware"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// pictureField is the multipart field carrying an uploaded image.
const pictureField = "picture"

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondServiceError maps a service error onto an HTTP status.
// Internal causes are logged, not returned.
func respondServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var validation *attendance.ValidationError
	var missing *attendance.NotFoundError
	switch {
	case errors.As(err, &validation):
		respondError(w, http.StatusBadRequest, validation.Error())
	case errors.As(err, &missing):
		respondError(w, http.StatusNotFound, missing.Error())
	case errors.Is(err, database.ErrConflict):
		respondError(w, http.StatusConflict, "already exists")
	case errors.Is(err, database.ErrUnavailable):
		slog.Error("store unavailable", "path", sanitizeForLog(r.URL.Path), "error", err)
		respondError(w, http.StatusServiceUnavailable, "store unavailable")
	default:
		slog.Error("request failed", "path", sanitizeForLog(r.URL.Path), "error", err)
		respondError(w, http.StatusInternalServerError, "internal error")
	}
}

// ownerKey returns the key of the authenticated owner, "" when the request has no session.
func ownerKey(r *http.Request) string {
	if session := middleware.GetSessionFromContext(r.Context()); session != nil {
		return session.OwnerKey
	}
	return ""
}

// readPicture parses a multipart form and returns the picture bytes.
// Bodies above maxBytes are rejected before they are buffered.
func readPicture(w http.ResponseWriter, r *http.Request, maxBytes int64) ([]byte, error) {
	// Room for the other form fields.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+1<<20)
	if err := r.ParseMultipartForm(maxBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, fmt.Errorf("picture exceeds %d bytes", maxBytes)
		}
		return nil, errors.New("failed to parse multipart form")
	}

	file, _, err := r.FormFile(pictureField)
	if err != nil {
		return nil, errors.New("picture is required")
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxBytes+1))
	if err != nil {
		return nil, errors.New("failed to read picture")
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("picture exceeds %d bytes", maxBytes)
	}
	return data, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
