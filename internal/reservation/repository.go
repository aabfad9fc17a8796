package reservation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/equipctl/internal/infrastructure/database"
)

// Repository persists reservations and answers the existence checks the
// ledger makes before writing.
type Repository interface {
	List(ctx context.Context) ([]Reservation, error)
	GetByID(ctx context.Context, id string) (*Reservation, error)
	Create(ctx context.Context, r *Reservation) error

	// CompareAndSetStatus moves id from status from to status to. It
	// reports false when the reservation no longer has status from.
	CompareAndSetStatus(ctx context.Context, id, from, to string) (bool, error)

	UserActive(ctx context.Context, userID string) (bool, error)
	EquipmentExists(ctx context.Context, equipmentID string) (bool, error)
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectReservation = `
	SELECT r.id, r.user_id, u.name, r.equipment_id, e.name,
	       r.start_time, r.end_time, r.status_id, s.name, r.created_at
	FROM reservations r
	JOIN users u ON u.id = r.user_id
	JOIN equipments e ON e.id = r.equipment_id
	JOIN reservation_statuses s ON s.id = r.status_id`

// List returns every reservation, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Reservation, error) {
	rows, err := r.db.QueryContext(ctx, selectReservation+" ORDER BY r.created_at DESC, r.rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("listing reservations: %w", err)
	}
	defer rows.Close()

	var out []Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning reservation: %w", err)
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating reservations: %w", err)
	}
	return out, nil
}

// GetByID returns ErrNotFound for an unknown id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx, selectReservation+" WHERE r.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying reservation by id: %w", err)
	}
	return res, nil
}

// Create inserts res, assigning ID and CreatedAt.
func (r *SQLiteRepository) Create(ctx context.Context, res *Reservation) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO reservations (id, user_id, equipment_id, start_time, end_time, status_id, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		res.ID, res.UserID, res.EquipmentID,
		database.FormatTime(res.StartTime), database.FormatTime(res.EndTime),
		res.StatusID, database.FormatTime(now),
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			// A referenced row vanished between the checks and the insert.
			return ErrNotFound
		}
		return fmt.Errorf("creating reservation: %w", err)
	}

	res.CreatedAt = now
	return nil
}

// CompareAndSetStatus implements Repository.
func (r *SQLiteRepository) CompareAndSetStatus(ctx context.Context, id, from, to string) (bool, error) {
	res, err := r.db.ExecContext(ctx,
		"UPDATE reservations SET status_id = ? WHERE id = ? AND status_id = ?", to, id, from)
	if err != nil {
		return false, fmt.Errorf("updating reservation status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("checking reservation update: %w", err)
	}
	return n > 0, nil
}

// UserActive reports whether userID exists and is active.
func (r *SQLiteRepository) UserActive(ctx context.Context, userID string) (bool, error) {
	var active bool
	err := r.db.QueryRowContext(ctx, "SELECT is_active FROM users WHERE id = ?", userID).Scan(&active)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking user: %w", err)
	}
	return active, nil
}

// EquipmentExists reports whether equipmentID exists.
func (r *SQLiteRepository) EquipmentExists(ctx context.Context, equipmentID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM equipments WHERE id = ?", equipmentID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking equipment: %w", err)
	}
	return true, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanReservation(s scanner) (*Reservation, error) {
	var (
		res                   Reservation
		start, end, createdAt string
	)
	err := s.Scan(&res.ID, &res.UserID, &res.UserName, &res.EquipmentID, &res.EquipmentName,
		&start, &end, &res.StatusID, &res.StatusName, &createdAt)
	if err != nil {
		return nil, err
	}

	if res.StartTime, err = database.ParseTime(start); err != nil {
		return nil, err
	}
	if res.EndTime, err = database.ParseTime(end); err != nil {
		return nil, err
	}
	if res.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &res, nil
}
