// Package mock provides in-memory implementations of the database interfaces
// for testing.
package mock

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

// EmployeeStore is an in-memory implementation of database.EmployeeStore.
type EmployeeStore struct {
	mu        sync.RWMutex
	employees map[string]*database.Employee
	nextID    int64

	// Error injection
	ListError         error
	GetError          error
	CreateError       error
	UpdateError       error
	DeleteError       error
	SetSignatureError error
}

// NewEmployeeStore creates an empty mock employee store.
func NewEmployeeStore() *EmployeeStore {
	return &EmployeeStore{employees: make(map[string]*database.Employee)}
}

// Add seeds an employee, assigning an ID if missing.
func (m *EmployeeStore) Add(e database.Employee) *database.Employee {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == 0 {
		m.nextID++
		e.ID = m.nextID
	}
	m.employees[e.Code] = &e
	return &e
}

func (m *EmployeeStore) List(ctx context.Context) ([]database.Employee, error) {
	if m.ListError != nil {
		return nil, m.ListError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]database.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out, nil
}

func (m *EmployeeStore) ListEnrolled(ctx context.Context) ([]database.Employee, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	var out []database.Employee
	for _, e := range all {
		if e.Active && e.Enrolled() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *EmployeeStore) GetByCode(ctx context.Context, code string) (*database.Employee, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	e, ok := m.employees[code]
	if !ok {
		return nil, database.ErrNotFound
	}
	clone := *e
	return &clone, nil
}

func (m *EmployeeStore) SearchByName(ctx context.Context, name string) ([]database.Employee, error) {
	all, err := m.List(ctx)
	if err != nil {
		return nil, err
	}
	want := database.NormalizeName(name)
	var out []database.Employee
	for _, e := range all {
		if database.NormalizeName(e.FullName()) == want {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *EmployeeStore) Create(ctx context.Context, e *database.Employee) error {
	if m.CreateError != nil {
		return m.CreateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.employees[e.Code]; ok {
		return fmt.Errorf("employee %s already exists", e.Code)
	}
	m.nextID++
	e.ID = m.nextID
	clone := *e
	m.employees[e.Code] = &clone
	return nil
}

func (m *EmployeeStore) Update(ctx context.Context, e *database.Employee) error {
	if m.UpdateError != nil {
		return m.UpdateError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.employees[e.Code]
	if !ok {
		return database.ErrNotFound
	}
	clone := *e
	clone.ID = existing.ID
	clone.Signature = existing.Signature
	m.employees[e.Code] = &clone
	return nil
}

func (m *EmployeeStore) Delete(ctx context.Context, code string) error {
	if m.DeleteError != nil {
		return m.DeleteError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.employees[code]; !ok {
		return database.ErrNotFound
	}
	delete(m.employees, code)
	return nil
}

func (m *EmployeeStore) SetSignature(ctx context.Context, code string, sig []float32) error {
	if m.SetSignatureError != nil {
		return m.SetSignatureError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.employees[code]
	if !ok {
		return database.ErrNotFound
	}
	e.Signature = sig
	return nil
}

// AttendanceStore is an in-memory implementation of database.AttendanceStore.
type AttendanceStore struct {
	mu        sync.RWMutex
	records   []database.AttendanceRecord
	summaries map[string]*database.DailySummary
	nextID    int64

	// TotalEmployees feeds the Stats counter that the SQL backend derives
	// from the employees table.
	TotalEmployees int

	// Error injection
	RecordsError error
	AppendError  error
	SummaryError error
	StatsError   error
}

// NewAttendanceStore creates an empty mock attendance store.
func NewAttendanceStore() *AttendanceStore {
	return &AttendanceStore{summaries: make(map[string]*database.DailySummary)}
}

func summaryKey(employeeID int64, date time.Time) string {
	return fmt.Sprintf("%d/%s", employeeID, date.Format("2006-01-02"))
}

// Records returns a copy of all stored records.
func (m *AttendanceStore) Records() []database.AttendanceRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]database.AttendanceRecord, len(m.records))
	copy(out, m.records)
	return out
}

func (m *AttendanceStore) recordsForDayLocked(employeeID int64, date time.Time) []database.AttendanceRecord {
	var out []database.AttendanceRecord
	for _, r := range m.records {
		if r.EmployeeID == employeeID && r.Date.Equal(database.DateOf(date)) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (m *AttendanceStore) RecordsForDay(ctx context.Context, employeeID int64, date time.Time) ([]database.AttendanceRecord, error) {
	if m.RecordsError != nil {
		return nil, m.RecordsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recordsForDayLocked(employeeID, date), nil
}

func (m *AttendanceStore) RecentRecords(ctx context.Context, limit int) ([]database.AttendanceRecord, error) {
	if m.RecordsError != nil {
		return nil, m.RecordsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]database.AttendanceRecord, len(m.records))
	copy(out, m.records)
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.After(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *AttendanceStore) RecentRecordsForEmployee(ctx context.Context, employeeID int64, limit int) ([]database.AttendanceRecord, error) {
	all, err := m.RecentRecords(ctx, 0)
	if err != nil {
		return nil, err
	}
	var out []database.AttendanceRecord
	for _, r := range all {
		if r.EmployeeID == employeeID {
			out = append(out, r)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *AttendanceStore) AppendWithSummary(ctx context.Context, rec *database.AttendanceRecord, summarize func([]database.AttendanceRecord) database.DailySummary) (*database.DailySummary, error) {
	if m.AppendError != nil {
		return nil, m.AppendError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	rec.ID = m.nextID
	m.records = append(m.records, *rec)

	day := m.recordsForDayLocked(rec.EmployeeID, rec.Date)
	summary := summarize(day)
	m.summaries[summaryKey(summary.EmployeeID, summary.Date)] = &summary

	clone := summary
	return &clone, nil
}

func (m *AttendanceStore) SummaryForDay(ctx context.Context, employeeID int64, date time.Time) (*database.DailySummary, error) {
	if m.SummaryError != nil {
		return nil, m.SummaryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.summaries[summaryKey(employeeID, database.DateOf(date))]
	if !ok {
		return nil, database.ErrNotFound
	}
	clone := *s
	return &clone, nil
}

func (m *AttendanceStore) RecentSummaries(ctx context.Context, limit int) ([]database.DailySummary, error) {
	if m.SummaryError != nil {
		return nil, m.SummaryError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]database.DailySummary, 0, len(m.summaries))
	for _, s := range m.summaries {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *AttendanceStore) UpsertSummary(ctx context.Context, s *database.DailySummary) error {
	if m.SummaryError != nil {
		return m.SummaryError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	clone := *s
	m.summaries[summaryKey(s.EmployeeID, s.Date)] = &clone
	return nil
}

func (m *AttendanceStore) EmployeeDaysBetween(ctx context.Context, from, to time.Time) ([]database.EmployeeDay, error) {
	if m.RecordsError != nil {
		return nil, m.RecordsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]database.EmployeeDay)
	for _, r := range m.records {
		if r.Date.Before(database.DateOf(from)) || r.Date.After(database.DateOf(to)) {
			continue
		}
		key := summaryKey(r.EmployeeID, r.Date)
		seen[key] = database.EmployeeDay{EmployeeID: r.EmployeeID, EmployeeCode: r.EmployeeCode, Date: r.Date}
	}

	out := make([]database.EmployeeDay, 0, len(seen))
	for _, d := range seen {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].EmployeeID < out[j].EmployeeID
	})
	return out, nil
}

func (m *AttendanceStore) Stats(ctx context.Context, date time.Time) (*database.DashboardStats, error) {
	if m.StatsError != nil {
		return nil, m.StatsError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	day := database.DateOf(date)
	present := 0
	for _, s := range m.summaries {
		if s.Date.Equal(day) && s.Present {
			present++
		}
	}
	records := 0
	for _, r := range m.records {
		if r.Date.Equal(day) {
			records++
		}
	}

	stats := &database.DashboardStats{
		TotalEmployees: m.TotalEmployees,
		PresentToday:   present,
		AbsentToday:    m.TotalEmployees - present,
		RecordsToday:   records,
	}
	if m.TotalEmployees > 0 {
		stats.AttendanceRate = float64(present) / float64(m.TotalEmployees) * 100
	}
	return stats, nil
}
