package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/roach88/oddsync/internal/record"
)

const selectColumns = `id, record_key, value, time_of_day, captured_at, source, capture_date`

// ReadAll returns records in id order.
// With limit > 0 only the most recent limit records are returned, still in
// ascending id order.
//
// Returns an empty slice (not nil) when the store is empty.
func (s *Store) ReadAll(ctx context.Context, limit int) ([]record.Record, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows *sql.Rows
	if limit > 0 {
		rows, err = db.QueryContext(ctx, `
			SELECT `+selectColumns+` FROM (
				SELECT `+selectColumns+` FROM records
				ORDER BY id DESC
				LIMIT ?
			) ORDER BY id ASC
		`, limit)
	} else {
		rows, err = db.QueryContext(ctx, `
			SELECT `+selectColumns+` FROM records
			ORDER BY id ASC
		`)
	}
	if err != nil {
		return nil, unavailable("read all", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return 0, err
	}
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, unavailable("count", err)
	}
	return n, nil
}

// RangeQuery selects records through the secondary indexes.
// Nil or empty bounds are open.
type RangeQuery struct {
	ValueMin *float64
	ValueMax *float64

	// CapturedFrom and CapturedTo bound CapturedAt (epoch ms, inclusive).
	CapturedFrom *int64
	CapturedTo   *int64

	// TimeStart and TimeEnd bound TimeOfDay ("HH:MM", inclusive).
	// Records without a time of day never match a time bound.
	TimeStart string
	TimeEnd   string

	// Limit keeps only the most recent matches when > 0.
	Limit int
}

// ReadRange returns the records matching q, in id order.
func (s *Store) ReadRange(ctx context.Context, q RangeQuery) ([]record.Record, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var where []string
	var args []any
	if q.ValueMin != nil {
		where = append(where, "value >= ?")
		args = append(args, *q.ValueMin)
	}
	if q.ValueMax != nil {
		where = append(where, "value <= ?")
		args = append(args, *q.ValueMax)
	}
	if q.CapturedFrom != nil {
		where = append(where, "captured_at >= ?")
		args = append(args, *q.CapturedFrom)
	}
	if q.CapturedTo != nil {
		where = append(where, "captured_at <= ?")
		args = append(args, *q.CapturedTo)
	}
	if q.TimeStart != "" {
		where = append(where, "time_of_day >= ?")
		args = append(args, q.TimeStart)
	}
	if q.TimeEnd != "" {
		where = append(where, "time_of_day <= ?")
		args = append(args, q.TimeEnd)
	}

	query := `SELECT ` + selectColumns + ` FROM records`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	if q.Limit > 0 {
		query = `SELECT ` + selectColumns + ` FROM (` + query + ` ORDER BY id DESC LIMIT ?)`
		args = append(args, q.Limit)
	}
	query += ` ORDER BY id ASC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, unavailable("read range", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// scanRecords drains rows into records.
func scanRecords(rows *sql.Rows) ([]record.Record, error) {
	records := []record.Record{}
	for rows.Next() {
		var r record.Record
		var key, tod sql.NullString
		var source string
		if err := rows.Scan(&r.ID, &key, &r.Value, &tod, &r.CapturedAt, &source, &r.CaptureDate); err != nil {
			return nil, unavailable("scan", fmt.Errorf("scan record: %w", err))
		}
		r.Key = key.String
		r.TimeOfDay = tod.String
		r.Source = record.Source(source)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("scan", fmt.Errorf("iterate records: %w", err))
	}
	return records, nil
}
