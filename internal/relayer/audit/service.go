// Package audit persists an append-only record of executed batches. Records
// are written after the batch outcome is final, never for in-flight state.
package audit

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Record is one finalized batch execution.
type Record struct {
	ID            string
	Caller        string
	Status        string
	CallCount     int
	FailedIndex   *int
	FailureReason string
	AttachedValue string
	CreatedAt     time.Time
}

// Service writes and reads batch audit records.
type Service interface {
	// RecordBatch inserts a finalized batch record. With auditing disabled
	// this is a no-op.
	RecordBatch(ctx context.Context, rec *Record) error

	// ListBatches returns the most recent records of a caller, newest first.
	ListBatches(ctx context.Context, caller string, limit int) ([]*Record, error)

	// Enabled reports whether records are actually persisted.
	Enabled() bool
}

type service struct {
	db *sql.DB
}

// NewService creates the audit service. A nil db disables persistence.
//
//nolint:ireturn
func NewService(db *sql.DB) Service {
	return &service{db: db}
}

func (s *service) Enabled() bool {
	return s.db != nil
}

func (s *service) RecordBatch(ctx context.Context, rec *Record) error {
	if s.db == nil {
		return nil
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO relayer_batches (id, caller, status, call_count, failed_index, failure_reason, attached_value, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	var failedIndex sql.NullInt64
	if rec.FailedIndex != nil {
		failedIndex = sql.NullInt64{Int64: int64(*rec.FailedIndex), Valid: true}
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Caller,
		rec.Status,
		rec.CallCount,
		failedIndex,
		sql.NullString{String: rec.FailureReason, Valid: rec.FailureReason != ""},
		rec.AttachedValue,
		rec.CreatedAt,
	)
	if err != nil {
		return errors.Wrap(err, "failed to insert batch record")
	}

	return nil
}

func (s *service) ListBatches(ctx context.Context, caller string, limit int) ([]*Record, error) {
	if s.db == nil {
		return nil, nil
	}

	if limit <= 0 {
		limit = 50
	}

	query := `
		SELECT id, caller, status, call_count, failed_index, failure_reason, attached_value, created_at
		FROM relayer_batches
		WHERE caller = $1
		ORDER BY created_at DESC
		LIMIT $2`

	rows, err := s.db.QueryContext(ctx, query, caller, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query batch records")
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var failedIndex sql.NullInt64
		var failureReason sql.NullString

		if err := rows.Scan(&rec.ID, &rec.Caller, &rec.Status, &rec.CallCount, &failedIndex, &failureReason, &rec.AttachedValue, &rec.CreatedAt); err != nil {
			return nil, errors.Wrap(err, "failed to scan batch record")
		}

		if failedIndex.Valid {
			idx := int(failedIndex.Int64)
			rec.FailedIndex = &idx
		}
		rec.FailureReason = failureReason.String

		records = append(records, &rec)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate batch records")
	}

	return records, nil
}
