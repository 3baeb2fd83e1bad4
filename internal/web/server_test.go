package web

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database/mock"
	"github.com/kozaktomas/rollcall/internal/logging"
	"github.com/kozaktomas/rollcall/internal/matcher"
)

type neverComparator struct{}

func (neverComparator) Compare(ctx context.Context, target, reference []byte, threshold float64) (bool, error) {
	return false, nil
}

func newTestServer(t *testing.T) (*Server, *mock.MockSessionStore) {
	t.Helper()
	store := mock.NewMockStore()
	sessions := mock.NewMockSessionStore()
	m := matcher.New(store, neverComparator{}, matcher.Options{Logger: logging.Discard()})
	svc := attendance.NewService(store, m, attendance.NewMerger(store, nil, logging.Discard()), attendance.Options{Logger: logging.Discard()})
	return NewServer(svc, Options{Host: "127.0.0.1", Port: 0, SessionSecret: "test-secret", SessionStore: sessions}), sessions
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t)

	recorder := httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/health", nil))

	if recorder.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", recorder.Code)
	}
	if recorder.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("expected security headers")
	}
}

func TestServer_ProtectedRoutesRequireSession(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/api/v1/courses", "/api/v1/students/Alice", "/api/v1/courses/Math/attendance"} {
		recorder := httptest.NewRecorder()
		srv.Router().ServeHTTP(recorder, httptest.NewRequest("GET", path, nil))
		if recorder.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected status 401, got %d", path, recorder.Code)
		}
	}
}

func TestServer_LoginThenCreateCourse(t *testing.T) {
	srv, sessions := newTestServer(t)
	defer srv.Sessions().Stop()

	recorder := httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, httptest.NewRequest("POST", "/api/v1/auth/login", bytes.NewBufferString(`{"name":"Profe"}`)))
	if recorder.Code != http.StatusOK {
		t.Fatalf("login: expected status 200, got %d: %s", recorder.Code, recorder.Body.String())
	}
	if sessions.Len() != 1 {
		t.Errorf("expected the session to be persisted, store holds %d", sessions.Len())
	}
	cookies := recorder.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatal("expected a session cookie")
	}

	req := httptest.NewRequest("POST", "/api/v1/courses", bytes.NewBufferString(`{"name":"Math","members":"Alice, Bob"}`))
	req.AddCookie(cookies[0])
	recorder = httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, req)
	if recorder.Code != http.StatusCreated {
		t.Fatalf("create course: expected status 201, got %d: %s", recorder.Code, recorder.Body.String())
	}

	req = httptest.NewRequest("GET", "/api/v1/courses/Math", nil)
	req.AddCookie(cookies[0])
	recorder = httptest.NewRecorder()
	srv.Router().ServeHTTP(recorder, req)
	if recorder.Code != http.StatusOK {
		t.Fatalf("get course: expected status 200, got %d", recorder.Code)
	}

	var course struct {
		Key     string   `json:"key"`
		Members []string `json:"members"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &course); err != nil {
		t.Fatalf("failed to parse course: %v", err)
	}
	if course.Key != "Math" || len(course.Members) != 2 {
		t.Errorf("unexpected course %+v", course)
	}
}
