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

// Repository is the persistence surface the Directory uses.
type Repository interface {
	List(ctx context.Context) ([]Equipment, error)
	GetByID(ctx context.Context, id string) (*Equipment, error)

	// Create inserts e, assigning ID and CreatedAt. Returns ErrNameTaken
	// on a duplicate name.
	Create(ctx context.Context, e *Equipment) error

	// Update writes every mutable column of e. When logStatus is true a
	// status log row for e.CurrentStatusID is appended in the same
	// transaction and returned.
	Update(ctx context.Context, e *Equipment, logStatus bool, at time.Time) (*StatusLogEntry, error)

	Delete(ctx context.Context, id string) error

	// CountDependents counts reservations and commands referencing id.
	CountDependents(ctx context.Context, id string) (reservations, commands int, err error)

	StatusLogRepository
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a repository on an open, migrated database.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const selectEquipment = `
	SELECT e.id, e.name, e.current_status_id, s.name, e.location, e.last_heartbeat, e.created_at
	FROM equipments e
	LEFT JOIN equipment_statuses s ON s.id = e.current_status_id`

// List returns all equipment, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Equipment, error) {
	rows, err := r.db.QueryContext(ctx, selectEquipment+" ORDER BY e.created_at DESC, e.rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("listing equipment: %w", err)
	}
	defer rows.Close()

	var out []Equipment
	for rows.Next() {
		e, err := scanEquipment(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning equipment: %w", err)
		}
		out = append(out, *e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating equipment: %w", err)
	}
	return out, nil
}

// GetByID returns ErrNotFound for an unknown id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Equipment, error) {
	e, err := scanEquipment(r.db.QueryRowContext(ctx, selectEquipment+" WHERE e.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying equipment by id: %w", err)
	}
	return e, nil
}

// Create inserts a new equipment.
func (r *SQLiteRepository) Create(ctx context.Context, e *Equipment) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO equipments (id, name, current_status_id, location, last_heartbeat, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, e.Name, nullString(e.CurrentStatusID), nullString(e.Location),
		database.NullTime(e.LastHeartbeat), database.FormatTime(now),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return ErrNameTaken
		}
		if database.IsForeignKeyViolation(err) {
			return ErrStatusNotFound
		}
		return fmt.Errorf("creating equipment: %w", err)
	}

	e.CreatedAt = now
	return nil
}

// Update rewrites the mutable columns of e.
func (r *SQLiteRepository) Update(ctx context.Context, e *Equipment, logStatus bool, at time.Time) (*StatusLogEntry, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	res, err := tx.ExecContext(ctx,
		`UPDATE equipments SET name = ?, current_status_id = ?, location = ?, last_heartbeat = ?
		 WHERE id = ?`,
		e.Name, nullString(e.CurrentStatusID), nullString(e.Location),
		database.NullTime(e.LastHeartbeat), e.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, ErrNameTaken
		}
		if database.IsForeignKeyViolation(err) {
			return nil, ErrStatusNotFound
		}
		return nil, fmt.Errorf("updating equipment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports
		return nil, ErrNotFound
	}

	var entry *StatusLogEntry
	if logStatus && e.CurrentStatusID != nil {
		entry, err = appendStatusLog(ctx, tx, e.ID, *e.CurrentStatusID, at)
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing equipment update: %w", err)
	}
	return entry, nil
}

// Delete removes an equipment. Its status log rows cascade.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, "DELETE FROM equipments WHERE id = ?", id)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrHasDependents
		}
		return fmt.Errorf("deleting equipment: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 { //nolint:errcheck // sqlite always reports
		return ErrNotFound
	}
	return nil
}

// CountDependents counts rows that block deletion.
func (r *SQLiteRepository) CountDependents(ctx context.Context, id string) (reservations, commands int, err error) {
	err = r.db.QueryRowContext(ctx,
		`SELECT
			(SELECT COUNT(*) FROM reservations WHERE equipment_id = ?),
			(SELECT COUNT(*) FROM commands WHERE equipment_id = ?)`,
		id, id,
	).Scan(&reservations, &commands)
	if err != nil {
		return 0, 0, fmt.Errorf("counting equipment dependents: %w", err)
	}
	return reservations, commands, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEquipment(s scanner) (*Equipment, error) {
	var (
		e                              Equipment
		statusID, statusName, location sql.NullString
		lastHeartbeat                  sql.NullString
		createdAt                      string
	)
	if err := s.Scan(&e.ID, &e.Name, &statusID, &statusName, &location, &lastHeartbeat, &createdAt); err != nil {
		return nil, err
	}

	e.CurrentStatusID = stringPtr(statusID)
	e.CurrentStatusName = stringPtr(statusName)
	e.Location = stringPtr(location)

	var err error
	if e.LastHeartbeat, err = database.ScanNullTime(lastHeartbeat); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = database.ParseTime(createdAt); err != nil {
		return nil, err
	}
	return &e, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
