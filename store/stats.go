package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// DayCount is the number of scans on one date.
type DayCount struct {
	Date  string `json:"date"`
	Scans int    `json:"scans"`
}

// MonthCount is the number of scans in one calendar month.
type MonthCount struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Scans int `json:"scans"`
}

// HourCount is the number of scans in one hour of the day.
type HourCount struct {
	Hour  int `json:"hour"`
	Scans int `json:"scans"`
}

// YearCount is the number of scans in one year.
type YearCount struct {
	Year  int `json:"year"`
	Scans int `json:"scans"`
}

// Summary is the dashboard overview of all scans.
type Summary struct {
	Total          int  `json:"total"`
	Today          int  `json:"today"`
	ThisWeek       int  `json:"this_week"`
	ThisMonth      int  `json:"this_month"`
	BusiestHour    *int `json:"busiest_hour"`
	BusiestHourHit int  `json:"busiest_hour_scans"`
}

// StatsByDay counts scans per date, newest first. Zero year or month
// leaves that filter off.
func (s *ScanStore) StatsByDay(ctx context.Context, year, month int) ([]DayCount, error) {
	var (
		where []string
		args  []any
	)
	if year != 0 {
		where = append(where, "year = ?")
		args = append(args, year)
	}
	if month != 0 {
		where = append(where, "month = ?")
		args = append(args, month)
	}

	query := `SELECT date, COUNT(*) FROM scans` + whereClause(where) + `
		GROUP BY date ORDER BY date DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stats by day: %w", err)
	}
	defer rows.Close()

	out := []DayCount{}
	for rows.Next() {
		var c DayCount
		if err := rows.Scan(&c.Date, &c.Scans); err != nil {
			return nil, fmt.Errorf("scan day row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// StatsByMonth counts scans per month, newest first.
func (s *ScanStore) StatsByMonth(ctx context.Context, year int) ([]MonthCount, error) {
	var (
		where []string
		args  []any
	)
	if year != 0 {
		where = append(where, "year = ?")
		args = append(args, year)
	}

	query := `SELECT year, month, COUNT(*) FROM scans` + whereClause(where) + `
		GROUP BY year, month ORDER BY year DESC, month DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stats by month: %w", err)
	}
	defer rows.Close()

	out := []MonthCount{}
	for rows.Next() {
		var c MonthCount
		if err := rows.Scan(&c.Year, &c.Month, &c.Scans); err != nil {
			return nil, fmt.Errorf("scan month row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// StatsByHour counts scans per hour of day, optionally for one date.
func (s *ScanStore) StatsByHour(ctx context.Context, date string) ([]HourCount, error) {
	var (
		where []string
		args  []any
	)
	if date != "" {
		where = append(where, "date = ?")
		args = append(args, date)
	}

	query := `SELECT hour, COUNT(*) FROM scans` + whereClause(where) + `
		GROUP BY hour ORDER BY hour ASC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("stats by hour: %w", err)
	}
	defer rows.Close()

	out := []HourCount{}
	for rows.Next() {
		var c HourCount
		if err := rows.Scan(&c.Hour, &c.Scans); err != nil {
			return nil, fmt.Errorf("scan hour row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// StatsByYear counts scans per year, newest first.
func (s *ScanStore) StatsByYear(ctx context.Context) ([]YearCount, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT year, COUNT(*) FROM scans GROUP BY year ORDER BY year DESC`)
	if err != nil {
		return nil, fmt.Errorf("stats by year: %w", err)
	}
	defer rows.Close()

	out := []YearCount{}
	for rows.Next() {
		var c YearCount
		if err := rows.Scan(&c.Year, &c.Scans); err != nil {
			return nil, fmt.Errorf("scan year row: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Summary computes the overview relative to now. The week starts on the
// most recent Sunday before today, or a week ago when today is Sunday.
func (s *ScanStore) Summary(ctx context.Context, now time.Time) (*Summary, error) {
	now = now.In(s.loc)
	today := now.Format(dateLayout)
	weekStart := weekStart(now).Format(dateLayout)
	monthPrefix := now.Format("2006-01")

	var sum Summary
	counts := []struct {
		dst   *int
		query string
		args  []any
	}{
		{&sum.Total, `SELECT COUNT(*) FROM scans`, nil},
		{&sum.Today, `SELECT COUNT(*) FROM scans WHERE date = ?`, []any{today}},
		{&sum.ThisWeek, `SELECT COUNT(*) FROM scans WHERE date >= ?`, []any{weekStart}},
		{&sum.ThisMonth, `SELECT COUNT(*) FROM scans WHERE substr(date, 1, 7) = ?`, []any{monthPrefix}},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.query, c.args...).Scan(c.dst); err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
	}

	var hour, hits int
	err := s.db.QueryRowContext(ctx,
		`SELECT hour, COUNT(*) AS total FROM scans GROUP BY hour ORDER BY total DESC, hour ASC LIMIT 1`,
	).Scan(&hour, &hits)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return nil, fmt.Errorf("summary busiest hour: %w", err)
	default:
		sum.BusiestHour = &hour
		sum.BusiestHourHit = hits
	}

	return &sum, nil
}

// weekStart mirrors SQLite's date(d, 'weekday 0', '-7 days').
func weekStart(d time.Time) time.Time {
	untilSunday := (7 - int(d.Weekday())) % 7
	return d.AddDate(0, 0, untilSunday-7)
}
