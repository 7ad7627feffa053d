package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/database/mock"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/signature"
)

func newEmployeesFixture() (*EmployeesHandler, *mock.EmployeeStore, *gallery.Classifier) {
	store := mock.NewEmployeeStore()
	classifier := gallery.NewClassifier(store)
	handler := NewEmployeesHandler(store, signature.NewExtractor(), classifier)
	return handler, store, classifier
}

func TestEmployees_CreateAndGet(t *testing.T) {
	handler, _, _ := newEmployeesFixture()

	req := jsonRequest(t, http.MethodPost, "/api/v1/employees", map[string]any{
		"employee_id": "EMP001",
		"first_name":  "Jane",
		"last_name":   "Doe",
		"department":  "Engineering",
		"hire_date":   "2023-06-01",
	})
	recorder := httptest.NewRecorder()
	handler.Create(recorder, req)
	assertStatusCode(t, recorder, http.StatusCreated)

	var created employeeResponse
	parseJSONResponse(t, recorder, &created)
	if created.Code != "EMP001" || !created.Active {
		t.Errorf("unexpected employee: %+v", created)
	}
	if created.Enrolled {
		t.Error("new employee must not be enrolled")
	}

	getReq := requestWithChiParams(
		httptest.NewRequest(http.MethodGet, "/api/v1/employees/EMP001", nil),
		map[string]string{"code": "EMP001"},
	)
	recorder = httptest.NewRecorder()
	handler.Get(recorder, getReq)
	assertStatusCode(t, recorder, http.StatusOK)
}

func TestEmployees_CreateMissingFields(t *testing.T) {
	handler, _, _ := newEmployeesFixture()

	req := jsonRequest(t, http.MethodPost, "/api/v1/employees", map[string]any{
		"employee_id": "EMP001",
	})
	recorder := httptest.NewRecorder()
	handler.Create(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "employee_id, first_name and last_name are required")
}

func TestEmployees_GetMissing(t *testing.T) {
	handler, _, _ := newEmployeesFixture()

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodGet, "/api/v1/employees/NOPE", nil),
		map[string]string{"code": "NOPE"},
	)
	recorder := httptest.NewRecorder()
	handler.Get(recorder, req)
	assertStatusCode(t, recorder, http.StatusNotFound)
	assertJSONError(t, recorder, "employee not found")
}

func TestEmployees_DeactivateInvalidatesClassifier(t *testing.T) {
	handler, store, classifier := newEmployeesFixture()

	sig := make([]float32, signature.Size*signature.Size)
	for i := range sig {
		sig[i] = 100
	}
	seedEnrolledEmployee(t, store, "EMP001", sig)
	if err := classifier.Train(context.Background()); err != nil {
		t.Fatalf("failed to train: %v", err)
	}

	active := false
	req := requestWithChiParams(
		jsonRequest(t, http.MethodPut, "/api/v1/employees/EMP001", map[string]any{"is_active": active}),
		map[string]string{"code": "EMP001"},
	)
	recorder := httptest.NewRecorder()
	handler.Update(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	// The stale model is rebuilt on the next recognition, which now sees an
	// empty gallery.
	_, _, err := classifier.Recognize(context.Background(), &signature.Signature{Pixels: sig}, gallery.DefaultThreshold)
	if err != gallery.ErrEmptyGallery {
		t.Errorf("expected ErrEmptyGallery after deactivation, got %v", err)
	}
}

func TestEmployees_EnrollFace(t *testing.T) {
	handler, store, classifier := newEmployeesFixture()
	store.Add(database.Employee{Code: "EMP001", FirstName: "Jane", LastName: "Doe", Active: true})

	req := requestWithChiParams(
		jsonRequest(t, http.MethodPost, "/api/v1/employees/EMP001/face", map[string]string{
			"image": snapshotDataURI(t, 1),
		}),
		map[string]string{"code": "EMP001"},
	)
	recorder := httptest.NewRecorder()
	handler.EnrollFace(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	emp, err := store.GetByCode(context.Background(), "EMP001")
	if err != nil {
		t.Fatalf("failed to get employee: %v", err)
	}
	if !emp.Enrolled() {
		t.Fatal("employee should be enrolled after face upload")
	}
	if len(emp.Signature) != signature.Size*signature.Size {
		t.Errorf("signature length = %d, want %d", len(emp.Signature), signature.Size*signature.Size)
	}

	// Enrollment marks the gallery stale; training must now succeed.
	if err := classifier.Train(context.Background()); err != nil {
		t.Errorf("training after enrollment failed: %v", err)
	}
}

func TestEmployees_EnrollFaceRejectsAmbiguous(t *testing.T) {
	handler, store, _ := newEmployeesFixture()
	store.Add(database.Employee{Code: "EMP001", FirstName: "Jane", LastName: "Doe", Active: true})

	req := requestWithChiParams(
		jsonRequest(t, http.MethodPost, "/api/v1/employees/EMP001/face", map[string]string{
			"image": snapshotDataURI(t, 2),
		}),
		map[string]string{"code": "EMP001"},
	)
	recorder := httptest.NewRecorder()
	handler.EnrollFace(recorder, req)
	assertStatusCode(t, recorder, http.StatusBadRequest)
	assertJSONError(t, recorder, "Multiple faces detected. Please ensure only one face is visible")

	emp, _ := store.GetByCode(context.Background(), "EMP001")
	if emp.Enrolled() {
		t.Error("ambiguous snapshot must not enroll a signature")
	}
}

func TestEmployees_Delete(t *testing.T) {
	handler, store, _ := newEmployeesFixture()
	store.Add(database.Employee{Code: "EMP001", FirstName: "Jane", LastName: "Doe", Active: true})

	req := requestWithChiParams(
		httptest.NewRequest(http.MethodDelete, "/api/v1/employees/EMP001", nil),
		map[string]string{"code": "EMP001"},
	)
	recorder := httptest.NewRecorder()
	handler.Delete(recorder, req)
	assertStatusCode(t, recorder, http.StatusOK)

	if _, err := store.GetByCode(context.Background(), "EMP001"); err != database.ErrNotFound {
		t.Errorf("expected employee to be gone, got %v", err)
	}
}

func TestEmployees_List(t *testing.T) {
	handler, store, _ := newEmployeesFixture()
	store.Add(database.Employee{Code: "EMP001", FirstName: "Jane", LastName: "Doe", Active: true})
	store.Add(database.Employee{Code: "EMP002", FirstName: "John", LastName: "Smith", Active: true})

	recorder := httptest.NewRecorder()
	handler.List(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/employees", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Employees []employeeResponse `json:"employees"`
		Count     int                `json:"count"`
	}
	parseJSONResponse(t, recorder, &resp)
	if resp.Count != 2 || len(resp.Employees) != 2 {
		t.Errorf("expected 2 employees, got %+v", resp)
	}
}

func TestEmployees_Search(t *testing.T) {
	handler, store, _ := newEmployeesFixture()
	store.Add(database.Employee{Code: "EMP001", FirstName: "Jiří", LastName: "Novák", Active: true})

	recorder := httptest.NewRecorder()
	handler.Search(recorder, httptest.NewRequest(http.MethodGet, "/api/v1/employees/search?q=jiri+novak", nil))
	assertStatusCode(t, recorder, http.StatusOK)

	var resp struct {
		Employees []employeeResponse `json:"employees"`
	}
	parseJSONResponse(t, recorder, &resp)
	if len(resp.Employees) != 1 || resp.Employees[0].Code != "EMP001" {
		t.Errorf("expected diacritics-insensitive match, got %+v", resp.Employees)
	}
}
