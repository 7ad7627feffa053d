package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/pgvector/pgvector-go"
)

const employeeColumns = `
	id, code, first_name, last_name, email, phone, department, position,
	hire_date, active, signature, created_at, updated_at
`

// EmployeeRepository provides PostgreSQL-backed employee storage.
type EmployeeRepository struct {
	pool *Pool
}

// NewEmployeeRepository creates a new PostgreSQL employee repository.
func NewEmployeeRepository(pool *Pool) *EmployeeRepository {
	return &EmployeeRepository{pool: pool}
}

// List returns all employees ordered by code.
func (r *EmployeeRepository) List(ctx context.Context) ([]database.Employee, error) {
	rows, err := r.pool.Query(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("query employees: %w", err)
	}
	defer rows.Close()

	return scanEmployees(rows)
}

// ListEnrolled returns active employees with an enrolled face signature.
func (r *EmployeeRepository) ListEnrolled(ctx context.Context) ([]database.Employee, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT "+employeeColumns+" FROM employees WHERE active AND signature IS NOT NULL ORDER BY code")
	if err != nil {
		return nil, fmt.Errorf("query enrolled employees: %w", err)
	}
	defer rows.Close()

	return scanEmployees(rows)
}

// GetByCode returns the employee with the given code, or ErrNotFound.
func (r *EmployeeRepository) GetByCode(ctx context.Context, code string) (*database.Employee, error) {
	row := r.pool.QueryRow(ctx, "SELECT "+employeeColumns+" FROM employees WHERE code = $1", code)

	emp, err := scanEmployee(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, database.ErrNotFound
		}
		return nil, err
	}
	return emp, nil
}

// SearchByName finds employees whose name contains the given text. Names are
// normalized on both sides (lowercase, no diacritics, dashes to spaces), so
// "jiri" matches "Jiří".
func (r *EmployeeRepository) SearchByName(ctx context.Context, name string) ([]database.Employee, error) {
	normalized := database.NormalizeName(name)

	query := `
		SELECT ` + employeeColumns + `
		FROM employees
		WHERE LOWER(REPLACE(unaccent(first_name || ' ' || last_name), '-', ' ')) LIKE '%' || $1 || '%'
		ORDER BY code
	`

	rows, err := r.pool.Query(ctx, query, normalized)
	if err != nil {
		return nil, fmt.Errorf("search employees: %w", err)
	}
	defer rows.Close()

	return scanEmployees(rows)
}

// Create inserts a new employee and fills in the assigned ID and timestamps.
func (r *EmployeeRepository) Create(ctx context.Context, e *database.Employee) error {
	query := `
		INSERT INTO employees (code, first_name, last_name, email, phone, department, position, hire_date, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		e.Code, e.FirstName, e.LastName, e.Email, e.Phone,
		e.Department, e.Position, nullableTime(e.HireDate), e.Active,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert employee: %w", err)
	}
	return nil
}

// Update rewrites the employee's profile fields. The face signature is
// managed separately through SetSignature.
func (r *EmployeeRepository) Update(ctx context.Context, e *database.Employee) error {
	query := `
		UPDATE employees SET
			first_name = $1, last_name = $2, email = $3, phone = $4,
			department = $5, position = $6, hire_date = $7, active = $8,
			updated_at = NOW()
		WHERE code = $9
		RETURNING updated_at
	`

	err := r.pool.QueryRow(ctx, query,
		e.FirstName, e.LastName, e.Email, e.Phone,
		e.Department, e.Position, nullableTime(e.HireDate), e.Active, e.Code,
	).Scan(&e.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return database.ErrNotFound
		}
		return fmt.Errorf("update employee: %w", err)
	}
	return nil
}

// Delete removes the employee and, through cascades, their attendance data.
func (r *EmployeeRepository) Delete(ctx context.Context, code string) error {
	result, err := r.pool.Exec(ctx, "DELETE FROM employees WHERE code = $1", code)
	if err != nil {
		return fmt.Errorf("delete employee: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete employee: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

// SetSignature replaces the employee's enrolled face signature.
func (r *EmployeeRepository) SetSignature(ctx context.Context, code string, sig []float32) error {
	var value any
	if len(sig) > 0 {
		value = pgvector.NewVector(sig)
	}

	result, err := r.pool.Exec(ctx,
		"UPDATE employees SET signature = $1, updated_at = NOW() WHERE code = $2", value, code)
	if err != nil {
		return fmt.Errorf("set signature: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set signature: %w", err)
	}
	if affected == 0 {
		return database.ErrNotFound
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

// scanEmployee scans a single row into an Employee.
func scanEmployee(scanner interface{ Scan(...any) error }) (*database.Employee, error) {
	var e database.Employee
	var hireDate sql.NullTime
	var sig *pgvector.Vector

	err := scanner.Scan(
		&e.ID, &e.Code, &e.FirstName, &e.LastName, &e.Email, &e.Phone,
		&e.Department, &e.Position, &hireDate, &e.Active, &sig,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan employee: %w", err)
	}

	if hireDate.Valid {
		e.HireDate = hireDate.Time
	}
	if sig != nil {
		e.Signature = sig.Slice()
	}
	return &e, nil
}

func scanEmployees(rows *sql.Rows) ([]database.Employee, error) {
	var employees []database.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		employees = append(employees, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate employees: %w", err)
	}
	return employees, nil
}

// Verify interface compliance.
var _ database.EmployeeStore = (*EmployeeRepository)(nil)
