package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// Scan is a single recorded scan of a generated QR code.
type Scan struct {
	ID        int64  `json:"id"`
	Date      string `json:"date"`
	Time      string `json:"time"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`
	Referer   string `json:"referer"`
	Timestamp int64  `json:"timestamp"`
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Day       int    `json:"day"`
	Hour      int    `json:"hour"`
}

// ScanInput is what the scan endpoint knows about a request.
type ScanInput struct {
	IP        string
	UserAgent string
	Referer   string
}

// ScanStore manages SQLite storage for scans.
type ScanStore struct {
	db  *sql.DB
	loc *time.Location
}

const createScansTable = `
CREATE TABLE IF NOT EXISTS scans (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    date TEXT NOT NULL,
    time TEXT NOT NULL,
    ip TEXT NOT NULL DEFAULT '',
    user_agent TEXT NOT NULL DEFAULT '',
    referer TEXT NOT NULL DEFAULT '',
    timestamp INTEGER NOT NULL,
    year INTEGER NOT NULL,
    month INTEGER NOT NULL,
    day INTEGER NOT NULL,
    hour INTEGER NOT NULL
);
`

const createIndexes = `
CREATE INDEX IF NOT EXISTS idx_scans_date ON scans(date);
CREATE INDEX IF NOT EXISTS idx_scans_year_month ON scans(year, month);
CREATE INDEX IF NOT EXISTS idx_scans_hour ON scans(hour);
CREATE INDEX IF NOT EXISTS idx_scans_timestamp ON scans(timestamp);
`

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// NewScanStore opens (or creates) the SQLite database at dbPath and
// initialises the schema. Calendar fields are derived in loc; nil means
// time.Local.
func NewScanStore(dbPath string, loc *time.Location) (*ScanStore, error) {
	if loc == nil {
		loc = time.Local
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	for _, stmt := range []string{createScansTable, createIndexes} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec schema statement: %w", err)
		}
	}

	return &ScanStore{db: db, loc: loc}, nil
}

// RecordScan stores a scan that happened at now and returns it.
func (s *ScanStore) RecordScan(ctx context.Context, in ScanInput, now time.Time) (*Scan, error) {
	now = now.In(s.loc)
	scan := &Scan{
		Date:      now.Format(dateLayout),
		Time:      now.Format(timeLayout),
		IP:        in.IP,
		UserAgent: in.UserAgent,
		Referer:   in.Referer,
		Timestamp: now.Unix(),
		Year:      now.Year(),
		Month:     int(now.Month()),
		Day:       now.Day(),
		Hour:      now.Hour(),
	}

	const query = `
		INSERT INTO scans (date, time, ip, user_agent, referer, timestamp, year, month, day, hour)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	res, err := s.db.ExecContext(ctx, query,
		scan.Date, scan.Time, scan.IP, scan.UserAgent, scan.Referer,
		scan.Timestamp, scan.Year, scan.Month, scan.Day, scan.Hour,
	)
	if err != nil {
		return nil, fmt.Errorf("record scan: %w", err)
	}
	if scan.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("record scan id: %w", err)
	}
	return scan, nil
}

// ScanFilter narrows ListScans. Zero values mean "any"; the hour bounds
// are pointers because hour 0 is a real bound.
type ScanFilter struct {
	Date     string `json:"date,omitempty"`
	Month    int    `json:"month,omitempty"`
	Year     int    `json:"year,omitempty"`
	HourFrom *int   `json:"hour_from,omitempty"`
	HourTo   *int   `json:"hour_to,omitempty"`
	Limit    int    `json:"limit"`
}

// DefaultScanLimit is used when ScanFilter.Limit is zero.
const DefaultScanLimit = 100

// ListScans returns scans matching f, newest first.
func (s *ScanStore) ListScans(ctx context.Context, f ScanFilter) ([]Scan, error) {
	var (
		where []string
		args  []any
	)
	if f.Date != "" {
		where = append(where, "date = ?")
		args = append(args, f.Date)
	}
	if f.Month != 0 {
		where = append(where, "month = ?")
		args = append(args, f.Month)
	}
	if f.Year != 0 {
		where = append(where, "year = ?")
		args = append(args, f.Year)
	}
	if f.HourFrom != nil {
		where = append(where, "hour >= ?")
		args = append(args, *f.HourFrom)
	}
	if f.HourTo != nil {
		where = append(where, "hour <= ?")
		args = append(args, *f.HourTo)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = DefaultScanLimit
	}

	query := `
		SELECT id, date, time, ip, user_agent, referer, timestamp, year, month, day, hour
		FROM scans` + whereClause(where) + `
		ORDER BY timestamp DESC, id DESC
		LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list scans: %w", err)
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var sc Scan
		if err := rows.Scan(
			&sc.ID, &sc.Date, &sc.Time, &sc.IP, &sc.UserAgent, &sc.Referer,
			&sc.Timestamp, &sc.Year, &sc.Month, &sc.Day, &sc.Hour,
		); err != nil {
			return nil, fmt.Errorf("scan scan row: %w", err)
		}
		scans = append(scans, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scan rows: %w", err)
	}
	return scans, nil
}

// PruneBefore deletes scans older than cutoff and returns how many went.
func (s *ScanStore) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE timestamp < ?`, cutoff.Unix())
	if err != nil {
		return 0, fmt.Errorf("prune scans: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune scans: %w", err)
	}
	return n, nil
}

// Close closes the underlying database connection.
func (s *ScanStore) Close() error {
	return s.db.Close()
}

// --- helpers ----------------------------------------------------------------

func whereClause(conds []string) string {
	if len(conds) == 0 {
		return ""
	}
	return "\n\t\tWHERE " + strings.Join(conds, " AND ")
}
