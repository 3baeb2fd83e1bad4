package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/rollcall/internal/attendance"
	"github.com/kozaktomas/rollcall/internal/database"
	"github.com/kozaktomas/rollcall/internal/database/mock"
	"github.com/kozaktomas/rollcall/internal/logging"
	"github.com/kozaktomas/rollcall/internal/matcher"
	"github.com/kozaktomas/rollcall/internal/web/middleware"
)

// testOwner is the owner every authenticated test request acts for
const testOwner = "profe"

// byteComparator matches when the submitted picture lists the reference
type byteComparator struct {
	shows map[string][]string
}

func (c *byteComparator) Compare(ctx context.Context, target, reference []byte, threshold float64) (bool, error) {
	for _, ref := range c.shows[string(target)] {
		if ref == string(reference) {
			return true, nil
		}
	}
	return false, nil
}

// testEnv wires a real attendance service over the mock store
type testEnv struct {
	store   *mock.MockStore
	service *attendance.Service
	cmp     *byteComparator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := mock.NewMockStore()
	cmp := &byteComparator{shows: map[string][]string{}}
	m := matcher.New(store, cmp, matcher.Options{MemberTimeout: 5 * time.Second, Logger: logging.Discard()})
	svc := attendance.NewService(store, m, attendance.NewMerger(store, nil, logging.Discard()), attendance.Options{
		MaxImageBytes: 1 << 20,
		Logger:        logging.Discard(),
	})
	return &testEnv{store: store, service: svc, cmp: cmp}
}

// seedStudent registers an identity directly in the store
func (e *testEnv) seedStudent(key, name string, picture []byte) {
	e.store.AddIdentity(database.Identity{
		Key:            key,
		DisplayName:    name,
		ReferenceImage: picture,
		ImageFormat:    "image/png",
		CreatedAt:      time.Now(),
		UpdatedAt:      time.Now(),
	})
}

// testPNG returns a distinct small PNG per shade
func testPNG(t *testing.T, shade uint8) []byte {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, 2, 2))
	for i := range img.Pix {
		img.Pix[i] = shade
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode PNG: %v", err)
	}
	return buf.Bytes()
}

// multipartRequest builds a multipart request with form fields and an optional picture
func multipartRequest(t *testing.T, method, path string, fields map[string]string, picture []byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("failed to write field: %v", err)
		}
	}
	if picture != nil {
		fw, err := mw.CreateFormFile(pictureField, "picture.png")
		if err != nil {
			t.Fatalf("failed to create form file: %v", err)
		}
		fw.Write(picture)
	}
	mw.Close()

	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

// jsonRequest builds a request with a JSON body
func jsonRequest(t *testing.T, method, path string, payload any) *http.Request {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("failed to marshal payload: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// withOwner places an authenticated session for testOwner in the request context
func withOwner(r *http.Request) *http.Request {
	session := &middleware.Session{ID: "test-session", OwnerKey: testOwner, DisplayName: "Profe"}
	return r.WithContext(middleware.SetSessionInContext(r.Context(), session))
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// parseJSONResponse parses a JSON response body into the target type
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertContentType checks if the response has the expected content type
func assertContentType(t *testing.T, recorder *httptest.ResponseRecorder, expected string) {
	t.Helper()
	ct := recorder.Header().Get("Content-Type")
	if ct != expected {
		t.Errorf("expected Content-Type '%s', got '%s'", expected, ct)
	}
}

// assertJSONError checks if the response is a JSON error with the expected message
func assertJSONError(t *testing.T, recorder *httptest.ResponseRecorder, expectedMessage string) {
	t.Helper()
	var result map[string]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse error response: %v\nBody: %s", err, recorder.Body.String())
	}
	if result["error"] != expectedMessage {
		t.Errorf("expected error '%s', got '%s'", expectedMessage, result["error"])
	}
}
