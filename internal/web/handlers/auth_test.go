package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/web/middleware"
)

func TestAuthHandler_Login(t *testing.T) {
	env := newTestEnv(t)
	sm := middleware.NewSessionManager("test-secret", nil)
	handler := NewAuthHandler(env.service, sm)

	recorder := httptest.NewRecorder()
	handler.Login(recorder, jsonRequest(t, "POST", "/api/v1/auth/login", map[string]string{"name": "  José   Núñez "}))

	assertStatusCode(t, recorder, http.StatusOK)

	var resp LoginResponse
	parseJSONResponse(t, recorder, &resp)
	if !resp.Success || resp.SessionID == "" {
		t.Fatalf("expected a session, got %+v", resp)
	}
	if resp.OwnerKey != "JoseNunez" {
		t.Errorf("expected owner key 'JoseNunez', got '%s'", resp.OwnerKey)
	}
	if resp.DisplayName != "José Núñez" {
		t.Errorf("expected display name 'José Núñez', got '%s'", resp.DisplayName)
	}

	owner, _ := env.store.FindOwnerByKey(t.Context(), "JoseNunez")
	if owner == nil {
		t.Error("expected owner to be stored")
	}

	cookies := recorder.Result().Cookies()
	if len(cookies) == 0 || !strings.HasPrefix(cookies[0].Value, resp.SessionID+".") {
		t.Error("expected a signed session cookie")
	}
}

func TestAuthHandler_Login_InvalidBody(t *testing.T) {
	env := newTestEnv(t)
	handler := NewAuthHandler(env.service, middleware.NewSessionManager("test-secret", nil))

	recorder := httptest.NewRecorder()
	handler.Login(recorder, httptest.NewRequest("POST", "/api/v1/auth/login", strings.NewReader("{not json")))

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, errInvalidRequestBody)
}

func TestAuthHandler_Login_BlankName(t *testing.T) {
	env := newTestEnv(t)
	handler := NewAuthHandler(env.service, middleware.NewSessionManager("test-secret", nil))

	recorder := httptest.NewRecorder()
	handler.Login(recorder, jsonRequest(t, "POST", "/api/v1/auth/login", map[string]string{"name": "!!!"}))

	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "invalid name: must contain at least one letter or digit")
}

func TestAuthHandler_Login_StoreDown(t *testing.T) {
	env := newTestEnv(t)
	env.store.UpsertOwnerError = database.Unavailable("upsert owner", database.ErrUnavailable)
	handler := NewAuthHandler(env.service, middleware.NewSessionManager("test-secret", nil))

	recorder := httptest.NewRecorder()
	handler.Login(recorder, jsonRequest(t, "POST", "/api/v1/auth/login", map[string]string{"name": "Profe"}))

	assertStatusCode(t, recorder, http.StatusServiceUnavailable)
}

func TestAuthHandler_StatusAndLogout(t *testing.T) {
	env := newTestEnv(t)
	sm := middleware.NewSessionManager("test-secret", nil)
	handler := NewAuthHandler(env.service, sm)

	session, err := sm.CreateSession(t.Context(), testOwner, "Profe")
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	status := func() StatusResponse {
		req := httptest.NewRequest("GET", "/api/v1/auth/status", nil)
		req.Header.Set("Authorization", "Bearer "+session.ID)
		recorder := httptest.NewRecorder()
		handler.Status(recorder, req)
		assertStatusCode(t, recorder, http.StatusOK)
		var resp StatusResponse
		parseJSONResponse(t, recorder, &resp)
		return resp
	}

	if resp := status(); !resp.Authenticated || resp.OwnerKey != testOwner {
		t.Errorf("expected authenticated as %s, got %+v", testOwner, resp)
	}

	req := httptest.NewRequest("POST", "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+session.ID)
	recorder := httptest.NewRecorder()
	handler.Logout(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	if resp := status(); resp.Authenticated {
		t.Error("expected session to end after logout")
	}
}
