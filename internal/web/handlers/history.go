package handlers

import (
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-attendance/internal/database"
)

const defaultHistoryLimit = 50

// HistoryHandler serves attendance records and daily summaries.
type HistoryHandler struct {
	employees  database.EmployeeStore
	attendance database.AttendanceStore
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(employees database.EmployeeStore, attendance database.AttendanceStore) *HistoryHandler {
	return &HistoryHandler{employees: employees, attendance: attendance}
}

// parseLimit reads the limit query parameter, clamped to [1, 500].
func parseLimit(r *http.Request) int {
	limit := defaultHistoryLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			limit = n
		}
	}
	if limit > 500 {
		limit = 500
	}
	return limit
}

// RecentRecords returns the newest attendance records across all employees.
func (h *HistoryHandler) RecentRecords(w http.ResponseWriter, r *http.Request) {
	records, err := h.attendance.RecentRecords(r.Context(), parseLimit(r))
	if err != nil {
		log.Printf("history: listing records: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"records": records,
		"count":   len(records),
	})
}

// EmployeeRecords returns one employee's newest attendance records.
func (h *HistoryHandler) EmployeeRecords(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	emp, err := h.employees.GetByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "employee not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get employee")
		return
	}

	records, err := h.attendance.RecentRecordsForEmployee(r.Context(), emp.ID, parseLimit(r))
	if err != nil {
		log.Printf("history: listing records for %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to list records")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"employee_id": emp.Code,
		"records":     records,
		"count":       len(records),
	})
}

// EmployeeSummary returns one employee's daily summary. The date query
// parameter defaults to today.
func (h *HistoryHandler) EmployeeSummary(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	emp, err := h.employees.GetByCode(r.Context(), code)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "employee not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to get employee")
		return
	}

	date := time.Now()
	if s := r.URL.Query().Get("date"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		date = parsed
	}

	summary, err := h.attendance.SummaryForDay(r.Context(), emp.ID, date)
	if err != nil {
		if errors.Is(err, database.ErrNotFound) {
			respondError(w, http.StatusNotFound, "no summary for that date")
			return
		}
		log.Printf("history: summary for %s: %v", sanitizeForLog(code), err)
		respondError(w, http.StatusInternalServerError, "failed to get summary")
		return
	}
	respondJSON(w, http.StatusOK, summary)
}

// RecentSummaries returns the newest daily summaries across all employees.
func (h *HistoryHandler) RecentSummaries(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.attendance.RecentSummaries(r.Context(), parseLimit(r))
	if err != nil {
		log.Printf("history: listing summaries: %v", err)
		respondError(w, http.StatusInternalServerError, "failed to list summaries")
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"summaries": summaries,
		"count":     len(summaries),
	})
}
