package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/gallery"
	"github.com/kozaktomas/face-attendance/internal/signature"
)

// EmployeesHandler handles employee CRUD and face enrollment endpoints.
type EmployeesHandler struct {
	store      database.EmployeeStore
	extractor  *signature.Extractor
	classifier *gallery.Classifier
}

// NewEmployeesHandler creates a new employees handler.
func NewEmployeesHandler(store database.EmployeeStore, extractor *signature.Extractor, classifier *gallery.Classifier) *EmployeesHandler {
	return &EmployeesHandler{store: store, extractor: extractor, classifier: classifier}
}

type employeeRequest struct {
	Code       string `json:"employee_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	Department string `json:"department"`
	Position   string `json:"position"`
	HireDate   string `json:"hire_date"`
	Active     *bool  `json:"is_active"`
}

type employeeResponse struct {
	database.Employee
	Enrolled bool `json:"face_enrolled"`
}

func toEmployeeResponse(e *database.Employee) employeeResponse {
	return employeeResponse{Employee: *e, Enrolled: e.Enrolled()}
}

// List returns all employees.
func (h *EmployeesHandler) List(w http.ResponseWriter, r *http.Request) {
	employees, err := h.store.List(r.Context())
	if err != nil {
		log.Printf("employees: listing: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list employees")
		return
	}

	result := make([]employeeResponse, len(employees))
	for i := range employees {
		result[i] = toEmployeeResponse(&employees[i])
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"employees": result,
		"count":     len(result),
	})
}

// Search finds employees by (diacritics-insensitive) name.
func (h *EmployeesHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		respondError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	employees, err := h.store.SearchByName(r.Context(), query)
	if err != nil {
		log.Printf("employees: searching %q: %v", sanitizeForLog(query), err)
		respondError(w, http.StatusInternalServerError, "failed to search employees")
		return
	}

	result := make([]employeeResponse, len(employees))
	for i := range employees {
		result[i] = toEmployeeResponse(&employees[i])
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"employees": result,
		"count":     len(result),
	})
}

// Get returns one employee by code.
func (h *EmployeesHandler) Get(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	emp, err := h.store.GetByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "employee not found")
			return
		}
		log.Printf("employees: getting %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to get employee")
		return
	}
	respondJSON(w, http.StatusOK, toEmployeeResponse(emp))
}

// Create registers a new employee without an enrolled face.
func (h *EmployeesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req employeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Code == "" || req.FirstName == "" || req.LastName == "" {
		respondError(w, http.StatusBadRequest, "employee_id, first_name and last_name are required")
		return
	}

	emp := database.Employee{
		Code:       req.Code,
		FirstName:  req.FirstName,
		LastName:   req.LastName,
		Email:      req.Email,
		Phone:      req.Phone,
		Department: req.Department,
		Position:   req.Position,
		Active:     true,
	}
	if req.Active != nil {
		emp.Active = *req.Active
	}
	if req.HireDate != "" {
		hired, err := time.Parse("2006-01-02", req.HireDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "hire_date must be YYYY-MM-DD")
			return
		}
		emp.HireDate = hired
	}

	if err := h.store.Create(r.Context(), &emp); err != nil {
		log.Printf("employees: creating %s: %v", sanitizeForLog(req.Code), err)
		respondError(w, http.StatusInternalServerError, "failed to create employee")
		return
	}
	respondJSON(w, http.StatusCreated, toEmployeeResponse(&emp))
}

// Update rewrites an employee's profile. Deactivation makes the stale gallery
// model refuse the employee, so the classifier is invalidated as well.
func (h *EmployeesHandler) Update(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	emp, err := h.store.GetByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "employee not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get employee")
		return
	}

	var req employeeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	if req.FirstName != "" {
		emp.FirstName = req.FirstName
	}
	if req.LastName != "" {
		emp.LastName = req.LastName
	}
	if req.Email != "" {
		emp.Email = req.Email
	}
	if req.Phone != "" {
		emp.Phone = req.Phone
	}
	if req.Department != "" {
		emp.Department = req.Department
	}
	if req.Position != "" {
		emp.Position = req.Position
	}
	if req.HireDate != "" {
		hired, err := time.Parse("2006-01-02", req.HireDate)
		if err != nil {
			respondError(w, http.StatusBadRequest, "hire_date must be YYYY-MM-DD")
			return
		}
		emp.HireDate = hired
	}
	if req.Active != nil {
		emp.Active = *req.Active
	}

	if err := h.store.Update(r.Context(), emp); err != nil {
		log.Printf("employees: updating %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to update employee")
		return
	}

	h.classifier.Invalidate()
	respondJSON(w, http.StatusOK, toEmployeeResponse(emp))
}

// Delete removes an employee and their attendance history.
func (h *EmployeesHandler) Delete(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if err := h.store.Delete(r.Context(), code); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "employee not found")
			return
		}
		log.Printf("employees: deleting %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to delete employee")
		return
	}

	h.classifier.Invalidate()
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

type enrollRequest struct {
	Image string `json:"image"`
}

// EnrollFace extracts a signature from the submitted snapshot and stores it
// as the employee's enrolled face. Re-enrollment replaces the previous
// signature; either way the gallery model is marked stale.
func (h *EmployeesHandler) EnrollFace(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	if _, err := h.store.GetByCode(r.Context(), code); err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "employee not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get employee")
		return
	}

	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}
	if req.Image == "" {
		respondError(w, http.StatusBadRequest, "image is required")
		return
	}

	sig, err := h.extractor.Extract(req.Image)
	if err != nil {
		switch {
		case errors.Is(err, signature.ErrDecode):
			respondError(w, http.StatusBadRequest, "Invalid image data")
		case errors.Is(err, signature.ErrNoFace):
			respondError(w, http.StatusBadRequest, "No face detected in the image")
		case errors.Is(err, signature.ErrAmbiguousFace):
			respondError(w, http.StatusBadRequest, "Multiple faces detected. Please ensure only one face is visible")
		default:
			log.Printf("enroll: extracting signature for %s: %v", sanitizeForLog(code), err)
			respondError(w, http.StatusInternalServerError, "failed to process image")
		}
		return
	}

	if err := h.store.SetSignature(r.Context(), code, sig.Pixels); err != nil {
		log.Printf("enroll: storing signature for %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to store face signature")
		return
	}

	h.classifier.Invalidate()
	respondJSON(w, http.StatusOK, map[string]any{
		"success":     true,
		"employee_id": code,
	})
}
