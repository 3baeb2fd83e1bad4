package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/web/middleware"
)

// AuthHandler binds an owner, as named by the upstream identity provider, to a session
type AuthHandler struct {
	service        *attendance.Service
	sessionManager *middleware.SessionManager
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(service *attendance.Service, sm *middleware.SessionManager) *AuthHandler {
	return &AuthHandler{
		service:        service,
		sessionManager: sm,
	}
}

type loginRequest struct {
	Name string `json:"name"`
}

// LoginResponse represents a login response
type LoginResponse struct {
	Success     bool   `json:"success"`
	SessionID   string `json:"session_id,omitempty"`
	OwnerKey    string `json:"owner_key,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	ExpiresAt   string `json:"expires_at,omitempty"`
}

// Login upserts the owner named in the request and opens a session for it
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	owner, err := h.service.Login(r.Context(), req.Name)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	session, err := h.sessionManager.CreateSession(r.Context(), owner.Key, owner.DisplayName)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	h.sessionManager.SetSessionCookie(w, session)

	respondJSON(w, http.StatusOK, LoginResponse{
		Success:     true,
		SessionID:   session.ID,
		OwnerKey:    owner.Key,
		DisplayName: owner.DisplayName,
		ExpiresAt:   session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// Logout ends the current session
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if session := h.sessionManager.GetSessionFromRequest(r); session != nil {
		h.sessionManager.DeleteSession(r.Context(), session.ID)
	}
	h.sessionManager.ClearSessionCookie(w)
	respondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// StatusResponse represents the auth status response
type StatusResponse struct {
	Authenticated bool   `json:"authenticated"`
	OwnerKey      string `json:"owner_key,omitempty"`
	DisplayName   string `json:"display_name,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

// Status reports whether the request carries a valid session
func (h *AuthHandler) Status(w http.ResponseWriter, r *http.Request) {
	session := h.sessionManager.GetSessionFromRequest(r)
	if session == nil {
		respondJSON(w, http.StatusOK, StatusResponse{Authenticated: false})
		return
	}
	respondJSON(w, http.StatusOK, StatusResponse{
		Authenticated: true,
		OwnerKey:      session.OwnerKey,
		DisplayName:   session.DisplayName,
		ExpiresAt:     session.ExpiresAt.UTC().Format(time.RFC3339),
	})
}
