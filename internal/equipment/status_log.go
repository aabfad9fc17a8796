package equipment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/equipctl/internal/infrastructure/database"
)

// StatusLogRepository persists the append-only status history.
type StatusLogRepository interface {
	// ApplyStatus sets the current status by filter and appends a log
	// row, atomically. Returns ErrNotFound, with nothing written, when
	// equipmentID does not exist.
	ApplyStatus(ctx context.Context, equipmentID, statusID string, at time.Time) (*StatusLogEntry, error)

	// AttachFeedback sets details on the newest entry by reportedAt.
	// Returns ErrNoStatusLog when the equipment has no entries.
	AttachFeedback(ctx context.Context, equipmentID, details string) (*StatusLogEntry, error)

	// StatusLogs lists entries newest first; an empty equipmentID lists all.
	StatusLogs(ctx context.Context, equipmentID string) ([]StatusLogEntry, error)
}

const selectStatusLog = `
	SELECT l.id, l.equipment_id, e.name, l.status_id, s.name, l.details, l.reported_at, l.created_at
	FROM equipment_status_logs l
	JOIN equipments e ON e.id = l.equipment_id
	JOIN equipment_statuses s ON s.id = l.status_id`

// newestFirst orders by report time; rowid breaks ties between rows
// reported within the same nanosecond.
const newestFirst = " ORDER BY l.reported_at DESC, l.rowid DESC"

// ApplyStatus implements StatusLogRepository.
func (r *SQLiteRepository) ApplyStatus(ctx context.Context, equipmentID, statusID string, at time.Time) (*StatusLogEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		"UPDATE equipments SET current_status_id = ? WHERE id = ?", statusID, equipmentID)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, ErrStatusNotFound
		}
		return nil, fmt.Errorf("updating current status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports
		return nil, ErrNotFound
	}

	entry, err := appendStatusLog(ctx, tx, equipmentID, statusID, at)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing status change: %w", err)
	}
	return entry, nil
}

// appendStatusLog inserts a log row inside tx and reads it back with names.
func appendStatusLog(ctx context.Context, tx *sql.Tx, equipmentID, statusID string, at time.Time) (*StatusLogEntry, error) {
	id := uuid.NewString()
	_, err := tx.ExecContext(ctx,
		`INSERT INTO equipment_status_logs (id, equipment_id, status_id, details, reported_at, created_at)
		 VALUES (?, ?, ?, NULL, ?, ?)`,
		id, equipmentID, statusID, database.FormatTime(at), database.FormatTime(time.Now()),
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return nil, ErrStatusNotFound
		}
		return nil, fmt.Errorf("appending status log: %w", err)
	}

	entry, err := scanStatusLog(tx.QueryRowContext(ctx, selectStatusLog+" WHERE l.id = ?", id))
	if err != nil {
		return nil, fmt.Errorf("reading status log: %w", err)
	}
	return entry, nil
}

// AttachFeedback implements StatusLogRepository.
func (r *SQLiteRepository) AttachFeedback(ctx context.Context, equipmentID, details string) (*StatusLogEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var logID string
	err = tx.QueryRowContext(ctx,
		`SELECT l.id FROM equipment_status_logs l WHERE l.equipment_id = ?`+newestFirst+` LIMIT 1`,
		equipmentID,
	).Scan(&logID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNoStatusLog
	}
	if err != nil {
		return nil, fmt.Errorf("finding newest status log: %w", err)
	}

	if _, err := tx.ExecContext(ctx,
		"UPDATE equipment_status_logs SET details = ? WHERE id = ?", details, logID); err != nil {
		return nil, fmt.Errorf("attaching feedback: %w", err)
	}

	entry, err := scanStatusLog(tx.QueryRowContext(ctx, selectStatusLog+" WHERE l.id = ?", logID))
	if err != nil {
		return nil, fmt.Errorf("reading status log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing feedback: %w", err)
	}
	return entry, nil
}

// StatusLogs implements StatusLogRepository.
func (r *SQLiteRepository) StatusLogs(ctx context.Context, equipmentID string) ([]StatusLogEntry, error) {
	query := selectStatusLog
	var args []any
	if equipmentID != "" {
		query += " WHERE l.equipment_id = ?"
		args = append(args, equipmentID)
	}
	query += newestFirst

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing status logs: %w", err)
	}
	defer rows.Close()

	var out []StatusLogEntry
	for rows.Next() {
		entry, err := scanStatusLog(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning status log: %w", err)
		}
		out = append(out, *entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating status logs: %w", err)
	}
	return out, nil
}

func scanStatusLog(s scanner) (*StatusLogEntry, error) {
	var (
		entry                 StatusLogEntry
		details               sql.NullString
		reportedAt, createdAt string
	)
	err := s.Scan(&entry.ID, &entry.EquipmentID, &entry.EquipmentName, &entry.StatusID,
		&entry.EquipmentStatus, &details, &reportedAt, &createdAt)
	if err != nil {
		return nil, err
	}

	entry.Details = stringPtr(details)
	if entry.ReportedAt, err = database.ParseTime(reportedAt); err != nil {
		return nil, err
	}
	if entry.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &entry, nil
}
