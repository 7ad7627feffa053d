package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
)

const recordColumns = `
	r.id, r.uid, r.employee_id, e.code, r.record_type, r.recorded_at, r.record_date, r.confidence
`

const summaryColumns = `
	s.employee_id, e.code, s.summary_date, s.check_in_time, s.check_out_time,
	s.total_hours, s.present, s.late
`

// AttendanceRepository provides PostgreSQL-backed attendance storage.
type AttendanceRepository struct {
	pool *Pool
}

// NewAttendanceRepository creates a new PostgreSQL attendance repository.
func NewAttendanceRepository(pool *Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

// RecordsForDay returns the employee's records for one calendar date, oldest
// first.
func (r *AttendanceRepository) RecordsForDay(ctx context.Context, employeeID int64, date time.Time) ([]database.AttendanceRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM attendance_records r
		JOIN employees e ON e.id = r.employee_id
		WHERE r.employee_id = $1 AND r.record_date = $2
		ORDER BY r.recorded_at
	`

	rows, err := r.pool.Query(ctx, query, employeeID, database.DateOf(date))
	if err != nil {
		return nil, fmt.Errorf("query day records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// RecentRecords returns the newest records across all employees.
func (r *AttendanceRepository) RecentRecords(ctx context.Context, limit int) ([]database.AttendanceRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM attendance_records r
		JOIN employees e ON e.id = r.employee_id
		ORDER BY r.recorded_at DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// RecentRecordsForEmployee returns the employee's newest records.
func (r *AttendanceRepository) RecentRecordsForEmployee(ctx context.Context, employeeID int64, limit int) ([]database.AttendanceRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM attendance_records r
		JOIN employees e ON e.id = r.employee_id
		WHERE r.employee_id = $1
		ORDER BY r.recorded_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, employeeID, limit)
	if err != nil {
		return nil, fmt.Errorf("query employee records: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// AppendWithSummary inserts the record and upserts the recomputed daily
// summary in one transaction. On failure neither is persisted.
func (r *AttendanceRepository) AppendWithSummary(
	ctx context.Context,
	rec *database.AttendanceRecord,
	summarize func([]database.AttendanceRecord) database.DailySummary,
) (*database.DailySummary, error) {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO attendance_records (uid, employee_id, record_type, recorded_at, record_date, confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, rec.UID, rec.EmployeeID, rec.Type, rec.Timestamp, rec.Date, rec.Confidence).Scan(&rec.ID)
	if err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}

	// Re-read the whole day inside the transaction so the summary reflects
	// exactly the records it was computed from.
	rows, err := tx.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM attendance_records r
		JOIN employees e ON e.id = r.employee_id
		WHERE r.employee_id = $1 AND r.record_date = $2
		ORDER BY r.recorded_at
	`, rec.EmployeeID, rec.Date)
	if err != nil {
		return nil, fmt.Errorf("query day records: %w", err)
	}
	day, err := scanRecords(rows)
	rows.Close()
	if err != nil {
		return nil, err
	}

	summary := summarize(day)
	if err := upsertSummaryTx(ctx, tx, &summary); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit record: %w", err)
	}
	return &summary, nil
}

// SummaryForDay returns the summary for one (employee, date), or ErrNotFound.
func (r *AttendanceRepository) SummaryForDay(ctx context.Context, employeeID int64, date time.Time) (*database.DailySummary, error) {
	query := `
		SELECT ` + summaryColumns + `
		FROM attendance_summaries s
		JOIN employees e ON e.id = s.employee_id
		WHERE s.employee_id = $1 AND s.summary_date = $2
	`

	row := r.pool.QueryRow(ctx, query, employeeID, database.DateOf(date))
	summary, err := scanSummary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return summary, nil
}

// RecentSummaries returns the newest summaries across all employees.
func (r *AttendanceRepository) RecentSummaries(ctx context.Context, limit int) ([]database.DailySummary, error) {
	query := `
		SELECT ` + summaryColumns + `
		FROM attendance_summaries s
		JOIN employees e ON e.id = s.employee_id
		ORDER BY s.summary_date DESC, e.code
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent summaries: %w", err)
	}
	defer rows.Close()

	var summaries []database.DailySummary
	for rows.Next() {
		s, err := scanSummary(rows)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate summaries: %w", err)
	}
	return summaries, nil
}

// UpsertSummary writes the summary keyed by (employee, date).
func (r *AttendanceRepository) UpsertSummary(ctx context.Context, s *database.DailySummary) error {
	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := upsertSummaryTx(ctx, tx, s); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit summary: %w", err)
	}
	return nil
}

func upsertSummaryTx(ctx context.Context, tx *sql.Tx, s *database.DailySummary) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO attendance_summaries (employee_id, summary_date, check_in_time, check_out_time, total_hours, present, late)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (employee_id, summary_date) DO UPDATE SET
			check_in_time = EXCLUDED.check_in_time,
			check_out_time = EXCLUDED.check_out_time,
			total_hours = EXCLUDED.total_hours,
			present = EXCLUDED.present,
			late = EXCLUDED.late,
			updated_at = NOW()
	`, s.EmployeeID, s.Date, s.CheckInTime, s.CheckOutTime, s.TotalHours, s.Present, s.Late)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	return nil
}

// EmployeeDaysBetween lists distinct (employee, date) pairs with at least one
// record in the inclusive range.
func (r *AttendanceRepository) EmployeeDaysBetween(ctx context.Context, from, to time.Time) ([]database.EmployeeDay, error) {
	query := `
		SELECT DISTINCT r.employee_id, e.code, r.record_date
		FROM attendance_records r
		JOIN employees e ON e.id = r.employee_id
		WHERE r.record_date BETWEEN $1 AND $2
		ORDER BY r.record_date, e.code
	`

	rows, err := r.pool.Query(ctx, query, database.DateOf(from), database.DateOf(to))
	if err != nil {
		return nil, fmt.Errorf("query employee days: %w", err)
	}
	defer rows.Close()

	var days []database.EmployeeDay
	for rows.Next() {
		var d database.EmployeeDay
		if err := rows.Scan(&d.EmployeeID, &d.EmployeeCode, &d.Date); err != nil {
			return nil, fmt.Errorf("scan employee day: %w", err)
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employee days: %w", err)
	}
	return days, nil
}

// Stats computes the dashboard counters for one calendar date.
func (r *AttendanceRepository) Stats(ctx context.Context, date time.Time) (*database.DashboardStats, error) {
	day := database.DateOf(date)
	stats := &database.DashboardStats{}

	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM employees WHERE active").Scan(&stats.TotalEmployees)
	if err != nil {
		return nil, fmt.Errorf("count employees: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM attendance_summaries WHERE summary_date = $1 AND present", day,
	).Scan(&stats.PresentToday)
	if err != nil {
		return nil, fmt.Errorf("count present: %w", err)
	}

	err = r.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM attendance_records WHERE record_date = $1", day,
	).Scan(&stats.RecordsToday)
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}

	stats.AbsentToday = stats.TotalEmployees - stats.PresentToday
	if stats.AbsentToday < 0 {
		stats.AbsentToday = 0
	}
	if stats.TotalEmployees > 0 {
		rate := float64(stats.PresentToday) / float64(stats.TotalEmployees) * 100
		stats.AttendanceRate = math.Round(rate*10) / 10
	}
	return stats, nil
}

// scanRecord scans a single row into an AttendanceRecord.
func scanRecord(scanner interface{ Scan(...any) error }) (*database.AttendanceRecord, error) {
	var rec database.AttendanceRecord
	err := scanner.Scan(
		&rec.ID, &rec.UID, &rec.EmployeeID, &rec.EmployeeCode,
		&rec.Type, &rec.Timestamp, &rec.Date, &rec.Confidence,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan record: %w", err)
	}
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]database.AttendanceRecord, error) {
	var records []database.AttendanceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

// scanSummary scans a single row into a DailySummary.
func scanSummary(scanner interface{ Scan(...any) error }) (*database.DailySummary, error) {
	var s database.DailySummary
	var checkIn, checkOut sql.NullTime

	err := scanner.Scan(
		&s.EmployeeID, &s.EmployeeCode, &s.Date, &checkIn, &checkOut,
		&s.TotalHours, &s.Present, &s.Late,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan summary: %w", err)
	}

	if checkIn.Valid {
		s.CheckInTime = &checkIn.Time
	}
	if checkOut.Valid {
		s.CheckOutTime = &checkOut.Time
	}
	return &s, nil
}

// Verify interface compliance.
var _ database.AttendanceStore = (*AttendanceRepository)(nil)
