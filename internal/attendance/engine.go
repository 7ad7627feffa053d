// Package attendance derives check-in/check-out actions from an employee's
// history for the day and keeps the daily summaries consistent with the
// recorded events.
package attendance

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/kozaktomas/face-attendance/internal/database"
)

const secondsPerDay = 24 * 3600

// Policy holds the attendance policy applied during summary computation.
type Policy struct {
	// CutoffSeconds is the lateness cutoff as seconds since midnight. A first
	// check-in strictly after this clock time counts as late.
	CutoffSeconds int
	// OvernightCorrection applies a +24h correction when the check-out clock
	// time precedes the check-in clock time on the same calendar date.
	OvernightCorrection bool
}

// DefaultPolicy returns the stock policy: 09:00 cutoff, overnight correction on.
func DefaultPolicy() Policy {
	return Policy{CutoffSeconds: 9 * 3600, OvernightCorrection: true}
}

// secondsOfDay returns the clock time of a timestamp as seconds since midnight.
func secondsOfDay(t time.Time) int {
	return t.Hour()*3600 + t.Minute()*60 + t.Second()
}

// ResolveAction decides the next action for the day's records so far:
// no events yet means check-in, an open check-in means check-out, and a
// closed check-in/check-out pair starts a new session with another check-in.
func ResolveAction(records []database.AttendanceRecord) database.RecordType {
	var lastIn, lastOut *database.AttendanceRecord
	for i := range records {
		r := &records[i]
		switch r.Type {
		case database.CheckIn:
			if lastIn == nil || r.Timestamp.After(lastIn.Timestamp) {
				lastIn = r
			}
		case database.CheckOut:
			if lastOut == nil || r.Timestamp.After(lastOut.Timestamp) {
				lastOut = r
			}
		}
	}

	if lastIn == nil {
		return database.CheckIn
	}
	if lastOut == nil || lastOut.Timestamp.Before(lastIn.Timestamp) {
		return database.CheckOut
	}
	return database.CheckIn
}

// ComputeSummary recomputes the daily aggregate from the full set of the
// day's records: first check-in, last check-out, worked hours with the
// overnight correction, presence and lateness flags.
func ComputeSummary(employeeID int64, employeeCode string, date time.Time, records []database.AttendanceRecord, policy Policy) database.DailySummary {
	summary := database.DailySummary{
		EmployeeID:   employeeID,
		EmployeeCode: employeeCode,
		Date:         database.DateOf(date),
	}

	var firstIn, lastOut *database.AttendanceRecord
	for i := range records {
		r := &records[i]
		switch r.Type {
		case database.CheckIn:
			if firstIn == nil || r.Timestamp.Before(firstIn.Timestamp) {
				firstIn = r
			}
		case database.CheckOut:
			if lastOut == nil || r.Timestamp.After(lastOut.Timestamp) {
				lastOut = r
			}
		}
	}

	if firstIn != nil {
		t := firstIn.Timestamp
		summary.CheckInTime = &t
		summary.Present = true
		summary.Late = secondsOfDay(t) > policy.CutoffSeconds
	}
	if lastOut != nil {
		t := lastOut.Timestamp
		summary.CheckOutTime = &t
	}

	if firstIn != nil && lastOut != nil {
		worked := secondsOfDay(lastOut.Timestamp) - secondsOfDay(firstIn.Timestamp)
		if worked < 0 && policy.OvernightCorrection {
			worked += secondsPerDay
		}
		if worked < 0 {
			worked = 0
		}
		summary.TotalHours = math.Round(float64(worked)/3600*100) / 100
	}

	return summary
}

// Engine records attendance events and keeps summaries in sync with them.
type Engine struct {
	store  database.AttendanceStore
	policy Policy
}

// NewEngine creates an engine over the attendance store.
func NewEngine(store database.AttendanceStore, policy Policy) *Engine {
	return &Engine{store: store, policy: policy}
}

// Policy returns the engine's attendance policy.
func (e *Engine) Policy() Policy {
	return e.policy
}

// ResolveAction reads the employee's records for now's date and decides the
// next action.
func (e *Engine) ResolveAction(ctx context.Context, employeeID int64, now time.Time) (database.RecordType, error) {
	records, err := e.store.RecordsForDay(ctx, employeeID, now)
	if err != nil {
		return "", fmt.Errorf("loading day records: %w", err)
	}
	return ResolveAction(records), nil
}

// Record appends the attendance event for a recognized employee and
// recomputes the day's summary. The append and the summary upsert happen
// atomically in the store; on failure no event exists and the caller must
// report a failed recognition.
func (e *Engine) Record(ctx context.Context, emp *database.Employee, confidence float64, now time.Time) (*database.AttendanceRecord, *database.DailySummary, error) {
	records, err := e.store.RecordsForDay(ctx, emp.ID, now)
	if err != nil {
		return nil, nil, fmt.Errorf("loading day records: %w", err)
	}

	rec := &database.AttendanceRecord{
		UID:          uuid.NewString(),
		EmployeeID:   emp.ID,
		EmployeeCode: emp.Code,
		Type:         ResolveAction(records),
		Timestamp:    now,
		Date:         database.DateOf(now),
		Confidence:   confidence,
	}

	summary, err := e.store.AppendWithSummary(ctx, rec, func(day []database.AttendanceRecord) database.DailySummary {
		return ComputeSummary(emp.ID, emp.Code, rec.Date, day, e.policy)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("recording attendance: %w", err)
	}

	return rec, summary, nil
}

// RecomputeSummary rebuilds the summary for one (employee, date) from its
// records. Used by backfills; returns nil when the day has no records.
func (e *Engine) RecomputeSummary(ctx context.Context, day database.EmployeeDay) (*database.DailySummary, error) {
	records, err := e.store.RecordsForDay(ctx, day.EmployeeID, day.Date)
	if err != nil {
		return nil, fmt.Errorf("loading day records: %w", err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	summary := ComputeSummary(day.EmployeeID, day.EmployeeCode, day.Date, records, e.policy)
	if err := e.store.UpsertSummary(ctx, &summary); err != nil {
		return nil, fmt.Errorf("upserting summary: %w", err)
	}
	return &summary, nil
}
