package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/oddsync/internal/record"
)

// AppendResult reports the outcome of one Append batch.
type AppendResult struct {
	SavedCount int
	ErrorCount int

	// IDs[i] is the id assigned to records[i], or 0 if it failed.
	IDs []int64

	// Failures lists the records that were not stored, by batch index.
	Failures []AppendFailure
}

// AppendFailure is one record of a batch that was not stored.
type AppendFailure struct {
	Index int
	Err   error
}

// Append inserts records in one transaction.
//
// Each record is attempted independently: a record that fails validation or
// violates a constraint is counted in ErrorCount and the others still commit.
// Append itself only fails when the transaction cannot begin or commit; in
// that case it returns an UnavailableError and nothing from the batch is
// stored.
//
// Records keep their capture fields; the store ignores any incoming ID and
// assigns a fresh one.
func (s *Store) Append(ctx context.Context, records []record.Record) (AppendResult, error) {
	res := AppendResult{IDs: make([]int64, len(records))}
	if len(records) == 0 {
		return res, nil
	}

	db, err := s.conn(ctx)
	if err != nil {
		return AppendResult{}, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return AppendResult{}, unavailable("append: begin tx", err)
	}
	defer tx.Rollback() // No-op if committed

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO records
		(record_key, value, time_of_day, captured_at, source, capture_date)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return AppendResult{}, unavailable("append: prepare", err)
	}
	defer stmt.Close()

	for i, r := range records {
		id, err := s.insert(ctx, stmt, r)
		if err != nil {
			res.ErrorCount++
			res.Failures = append(res.Failures, AppendFailure{Index: i, Err: err})
			continue
		}
		res.IDs[i] = id
		res.SavedCount++
	}

	if err := tx.Commit(); err != nil {
		return AppendResult{}, unavailable("append: commit", err)
	}

	return res, nil
}

// insert writes one record inside the batch transaction. A constraint
// failure only rolls back this statement, not the transaction.
func (s *Store) insert(ctx context.Context, stmt *sql.Stmt, r record.Record) (int64, error) {
	if err := record.Validate(r, s.minValue); err != nil {
		return 0, err
	}

	result, err := stmt.ExecContext(ctx,
		nullString(r.Key),
		r.Value,
		nullString(r.TimeOfDay),
		r.CapturedAt,
		string(r.Source),
		r.CaptureDate,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return 0, fmt.Errorf("insert %q: %w", r.Key, ErrDuplicate)
		}
		return 0, fmt.Errorf("insert: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert: last insert id: %w", err)
	}
	return id, nil
}

// Clear removes every record. Ids keep increasing afterwards.
// Clearing an empty store succeeds.
func (s *Store) Clear(ctx context.Context) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM records`); err != nil {
		return unavailable("clear", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
