package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
)

// requestWithChiParams creates a request with chi URL parameters.
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// jsonRequest creates a request with a JSON body.
func jsonRequest(t *testing.T, method, path string, body any) *http.Request {
	t.Helper()
	data, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("failed to marshal request body: %v", err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// parseJSONResponse parses a JSON response body into the target type.
func parseJSONResponse(t *testing.T, recorder *httptest.ResponseRecorder, target any) {
	t.Helper()
	if err := json.Unmarshal(recorder.Body.Bytes(), target); err != nil {
		t.Fatalf("failed to parse JSON response: %v\nBody: %s", err, recorder.Body.String())
	}
}

// assertStatusCode checks if the response has the expected status code.
func assertStatusCode(t *testing.T, recorder *httptest.ResponseRecorder, expected int) {
	t.Helper()
	if recorder.Code != expected {
		t.Errorf("expected status %d, got %d\nBody: %s", expected, recorder.Code, recorder.Body.String())
	}
}

// assertJSONError checks if the response is a JSON error with the expected message.
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

// snapshotDataURI renders a synthetic 200x200 camera snapshot with the given
// number of face-like skin regions and encodes it as a PNG data URI.
func snapshotDataURI(t *testing.T, faces int) string {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, 200, 200))
	background := color.RGBA{40, 60, 200, 255}
	skin := color.RGBA{210, 150, 120, 255}

	for y := 0; y < 200; y++ {
		for x := 0; x < 200; x++ {
			img.SetRGBA(x, y, background)
		}
	}

	regions := []image.Rectangle{
		image.Rect(40, 50, 100, 140),
		image.Rect(120, 50, 180, 140),
	}
	for i := 0; i < faces && i < len(regions); i++ {
		r := regions[i]
		for y := r.Min.Y; y < r.Max.Y; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				img.SetRGBA(x, y, skin)
			}
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("failed to encode snapshot: %v", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

// seedEnrolledEmployee adds an active employee whose signature matches the
// single-face snapshot produced by snapshotDataURI.
func seedEnrolledEmployee(t *testing.T, store *mock.EmployeeStore, code string, sig []float32) {
	t.Helper()
	store.Add(database.Employee{
		Code:       code,
		FirstName:  "Jane",
		LastName:   "Doe",
		Department: "Engineering",
		Active:     true,
		Signature:  sig,
	})
}

// assertContains fails unless the response body contains the substring.
func assertContains(t *testing.T, recorder *httptest.ResponseRecorder, substring string) {
	t.Helper()
	if !strings.Contains(recorder.Body.String(), substring) {
		t.Errorf("expected body to contain %q\nBody: %s", substring, recorder.Body.String())
	}
}
