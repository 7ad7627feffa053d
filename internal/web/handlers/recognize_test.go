package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/kozaktomas/face-attendance/internal/attendance"
	"github.com/kozaktomas/face-attendance/internal/broadcast"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/signature"
)

type recognizeFixture struct {
	handler    *RecognizeHandler
	employees  *mock.EmployeeStore
	attendance *mock.AttendanceStore
	hub        *broadcast.Hub
}

func newRecognizeFixture(t *testing.T) *recognizeFixture {
	t.Helper()

	employees := mock.NewEmployeeStore()
	records := mock.NewAttendanceStore()
	hub := broadcast.NewHub()

	extractor := signature.NewExtractor()
	classifier := gallery.NewClassifier(employees)
	engine := attendance.NewEngine(records, attendance.DefaultPolicy())

	handler := NewRecognizeHandler(extractor, classifier, engine, hub, gallery.DefaultThreshold)

	return &recognizeFixture{
		handler:    handler,
		employees:  employees,
		attendance: records,
		hub:        hub,
	}
}

// enrollFromSnapshot runs the real extractor on the single-face snapshot and
// enrolls the result, so recognition sees an exact gallery match.
func (f *recognizeFixture) enrollFromSnapshot(t *testing.T, code, dataURI string) {
	t.Helper()
	sig, err := f.handler.extractor.Extract(dataURI)
	if err != nil {
		t.Fatalf("failed to extract enrollment signature: %v", err)
	}
	seedEnrolledEmployee(t, f.employees, code, sig.Pixels)
}

func (f *recognizeFixture) post(t *testing.T, image string, at time.Time) *httptest.ResponseRecorder {
	t.Helper()
	f.handler.now = func() time.Time { return at }
	req := jsonRequest(t, http.MethodPost, "/api/v1/attendance/recognize", map[string]string{"image": image})
	recorder := httptest.NewRecorder()
	f.handler.Recognize(recorder, req)
	return recorder
}

func TestRecognize_CheckInCheckOutFlow(t *testing.T) {
	f := newRecognizeFixture(t)
	snapshot := snapshotDataURI(t, 1)
	f.enrollFromSnapshot(t, "EMP001", snapshot)

	notifications := f.hub.Subscribe(broadcast.TopicNotifications)
	defer notifications.Close()

	day := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)

	// Morning snapshot: first event of the day is a check-in.
	recorder := f.post(t, snapshot, day.Add(8*time.Hour+55*time.Minute))
	assertStatusCode(t, recorder, http.StatusOK)

	var resp recognizeResponse
	parseJSONResponse(t, recorder, &resp)
	if !resp.Success {
		t.Fatalf("expected success, got message %q", resp.Message)
	}
	if resp.EmployeeID != "EMP001" || resp.EmployeeName != "Jane Doe" {
		t.Errorf("unexpected identity: %+v", resp)
	}
	if resp.Action != "Check In" {
		t.Errorf("action = %q, want Check In", resp.Action)
	}
	if resp.Confidence != 100 {
		t.Errorf("self-match confidence = %f, want 100", resp.Confidence)
	}

	select {
	case <-notifications.C():
	default:
		t.Error("expected a broadcast notification after a recorded event")
	}

	// Evening snapshot closes the session.
	recorder = f.post(t, snapshot, day.Add(17*time.Hour+30*time.Minute))
	assertStatusCode(t, recorder, http.StatusOK)
	parseJSONResponse(t, recorder, &resp)
	if resp.Action != "Check Out" {
		t.Errorf("action = %q, want Check Out", resp.Action)
	}

	if got := len(f.attendance.Records()); got != 2 {
		t.Fatalf("stored records = %d, want 2", got)
	}

	emp, err := f.employees.GetByCode(context.Background(), "EMP001")
	if err != nil {
		t.Fatalf("failed to resolve employee: %v", err)
	}
	summary, err := f.attendance.SummaryForDay(context.Background(), emp.ID, day)
	if err != nil {
		t.Fatalf("failed to read summary: %v", err)
	}
	if summary.Late {
		t.Error("08:55 check-in must not be late")
	}
	if summary.TotalHours <= 0 {
		t.Errorf("TotalHours = %f, want positive", summary.TotalHours)
	}
}

func TestRecognize_MultipleFaces(t *testing.T) {
	f := newRecognizeFixture(t)
	f.enrollFromSnapshot(t, "EMP001", snapshotDataURI(t, 1))

	recorder := f.post(t, snapshotDataURI(t, 2), time.Now())
	assertStatusCode(t, recorder, http.StatusBadRequest)

	var resp recognizeResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Success {
		t.Error("expected failure for an ambiguous snapshot")
	}
	if resp.Message != "Multiple faces detected. Please ensure only one face is visible" {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if got := len(f.attendance.Records()); got != 0 {
		t.Errorf("ambiguous snapshot must not record events, got %d", got)
	}
}

func TestRecognize_NoFace(t *testing.T) {
	f := newRecognizeFixture(t)
	f.enrollFromSnapshot(t, "EMP001", snapshotDataURI(t, 1))

	recorder := f.post(t, snapshotDataURI(t, 0), time.Now())
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertContains(t, recorder, "No face detected in the image")
}

func TestRecognize_InvalidImage(t *testing.T) {
	f := newRecognizeFixture(t)

	recorder := f.post(t, "data:image/png;base64,!!!not-base64!!!", time.Now())
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertContains(t, recorder, "Invalid image data")
}

func TestRecognize_EmptyGallery(t *testing.T) {
	f := newRecognizeFixture(t)

	recorder := f.post(t, snapshotDataURI(t, 1), time.Now())
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertContains(t, recorder, "No employee faces found for training")
}

func TestRecognize_UnknownFace(t *testing.T) {
	f := newRecognizeFixture(t)

	// Enrolled signature far away from any snapshot face.
	far := make([]float32, signature.Size*signature.Size)
	for i := range far {
		far[i] = 10
	}
	seedEnrolledEmployee(t, f.employees, "EMP001", far)

	recorder := f.post(t, snapshotDataURI(t, 1), time.Now())
	assertStatusCode(t, recorder, http.StatusOK)

	var resp recognizeResponse
	parseJSONResponse(t, recorder, &resp)
	if resp.Success {
		t.Error("expected failed recognition")
	}
	if resp.Message != "Face not recognized" {
		t.Errorf("unexpected message: %q", resp.Message)
	}
	if got := len(f.attendance.Records()); got != 0 {
		t.Errorf("unrecognized snapshot must not record events, got %d", got)
	}
}

func TestRecognize_StoreFailureSuppressesEvent(t *testing.T) {
	f := newRecognizeFixture(t)
	snapshot := snapshotDataURI(t, 1)
	f.enrollFromSnapshot(t, "EMP001", snapshot)
	f.attendance.AppendError = context.DeadlineExceeded

	notifications := f.hub.Subscribe(broadcast.TopicNotifications)
	defer notifications.Close()

	recorder := f.post(t, snapshot, time.Now())
	assertStatusCode(t, recorder, http.StatusInternalServerError)

	if got := len(f.attendance.Records()); got != 0 {
		t.Errorf("failed write must not leave records, got %d", got)
	}
	select {
	case <-notifications.C():
		t.Error("no event may be broadcast when the write fails")
	default:
	}
}
