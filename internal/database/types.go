package database

import (
	"context"
	"errors"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Employee represents an enrolled (or not yet enrolled) employee.
type Employee struct {
	ID         int64     `json:"id"`
	Code       string    `json:"employee_id"`
	FirstName  string    `json:"first_name"`
	LastName   string    `json:"last_name"`
	Email      string    `json:"email"`
	Phone      string    `json:"phone,omitempty"`
	Department string    `json:"department,omitempty"`
	Position   string    `json:"position,omitempty"`
	HireDate   time.Time `json:"hire_date"`
	Active     bool      `json:"is_active"`

	// Signature is the enrolled face signature (flattened 100x100 luma grid).
	// Nil when the employee has no enrolled face. Re-enrollment replaces it.
	Signature []float32 `json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FullName returns the display name.
func (e *Employee) FullName() string {
	return strings.TrimSpace(e.FirstName + " " + e.LastName)
}

// Enrolled reports whether the employee has a face signature on file.
func (e *Employee) Enrolled() bool {
	return len(e.Signature) > 0
}

// RecordType is the attendance action of a record.
type RecordType string

const (
	CheckIn  RecordType = "check_in"
	CheckOut RecordType = "check_out"
)

// Label returns the human-readable action name ("Check In" / "Check Out").
func (t RecordType) Label() string {
	switch t {
	case CheckIn:
		return "Check In"
	case CheckOut:
		return "Check Out"
	}
	return string(t)
}

// AttendanceRecord is an immutable attendance event. Records are append-only;
// one is created per recognized snapshot that passes the confidence threshold.
type AttendanceRecord struct {
	ID           int64      `json:"id"`
	UID          string     `json:"uid"`
	EmployeeID   int64      `json:"-"`
	EmployeeCode string     `json:"employee_id"`
	Type         RecordType `json:"attendance_type"`
	Timestamp    time.Time  `json:"timestamp"`
	Date         time.Time  `json:"date"`
	Confidence   float64    `json:"confidence_score"`
}

// DailySummary is the aggregate for one (employee, calendar date). It is
// recomputed from the full set of the day's records, never patched.
type DailySummary struct {
	EmployeeID   int64      `json:"-"`
	EmployeeCode string     `json:"employee_id"`
	Date         time.Time  `json:"date"`
	CheckInTime  *time.Time `json:"check_in_time"`
	CheckOutTime *time.Time `json:"check_out_time"`
	TotalHours   float64    `json:"total_hours"`
	Present      bool       `json:"is_present"`
	Late         bool       `json:"is_late"`
}

// EmployeeDay identifies one (employee, date) pair with recorded events.
type EmployeeDay struct {
	EmployeeID   int64
	EmployeeCode string
	Date         time.Time
}

// DashboardStats holds the aggregate counters shown on the dashboard feed.
type DashboardStats struct {
	TotalEmployees int     `json:"total_employees"`
	PresentToday   int     `json:"present_today"`
	AbsentToday    int     `json:"absent_today"`
	RecordsToday   int     `json:"total_records_today"`
	AttendanceRate float64 `json:"attendance_rate"`
}

// DateOf truncates a timestamp to its calendar date in the same location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EmployeeStore provides CRUD over employees and their face signatures.
type EmployeeStore interface {
	List(ctx context.Context) ([]Employee, error)
	// ListEnrolled returns active employees with a non-null signature,
	// i.e. the trainable gallery.
	ListEnrolled(ctx context.Context) ([]Employee, error)
	GetByCode(ctx context.Context, code string) (*Employee, error)
	SearchByName(ctx context.Context, name string) ([]Employee, error)
	Create(ctx context.Context, e *Employee) error
	Update(ctx context.Context, e *Employee) error
	Delete(ctx context.Context, code string) error
	// SetSignature replaces the employee's enrolled signature.
	SetSignature(ctx context.Context, code string, sig []float32) error
}

// AttendanceStore provides access to attendance records and daily summaries.
type AttendanceStore interface {
	RecordsForDay(ctx context.Context, employeeID int64, date time.Time) ([]AttendanceRecord, error)
	RecentRecords(ctx context.Context, limit int) ([]AttendanceRecord, error)
	RecentRecordsForEmployee(ctx context.Context, employeeID int64, limit int) ([]AttendanceRecord, error)

	// AppendWithSummary inserts the record and upserts the summary computed by
	// the summarize callback from the full day of records (including the new
	// one), atomically in one transaction.
	AppendWithSummary(ctx context.Context, rec *AttendanceRecord, summarize func([]AttendanceRecord) DailySummary) (*DailySummary, error)

	SummaryForDay(ctx context.Context, employeeID int64, date time.Time) (*DailySummary, error)
	RecentSummaries(ctx context.Context, limit int) ([]DailySummary, error)
	UpsertSummary(ctx context.Context, s *DailySummary) error

	// EmployeeDaysBetween lists (employee, date) pairs with at least one
	// record in [from, to], for summary backfills.
	EmployeeDaysBetween(ctx context.Context, from, to time.Time) ([]EmployeeDay, error)

	Stats(ctx context.Context, date time.Time) (*DashboardStats, error)
}
