package command

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/equipctl/internal/infrastructure/database"
)

// Repository persists commands.
type Repository interface {
	List(ctx context.Context) ([]Command, error)
	GetByID(ctx context.Context, id string) (*Command, error)
	Create(ctx context.Context, c *Command) error
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

const selectCommand = `
	SELECT c.id, c.equipment_id, e.name, c.command_type_id, t.name, c.payload, c.created_at
	FROM commands c
	JOIN equipments e ON e.id = c.equipment_id
	JOIN command_types t ON t.id = c.command_type_id`

// List returns every command, newest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Command, error) {
	rows, err := r.db.QueryContext(ctx, selectCommand+" ORDER BY c.created_at DESC, c.rowid DESC")
	if err != nil {
		return nil, fmt.Errorf("listing commands: %w", err)
	}
	defer rows.Close()

	var out []Command
	for rows.Next() {
		c, err := scanCommand(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning command: %w", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating commands: %w", err)
	}
	return out, nil
}

// GetByID returns ErrNotFound for an unknown id.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Command, error) {
	c, err := scanCommand(r.db.QueryRowContext(ctx, selectCommand+" WHERE c.id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying command by id: %w", err)
	}
	return c, nil
}

// Create inserts c, assigning ID and CreatedAt.
func (r *SQLiteRepository) Create(ctx context.Context, c *Command) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	var payload sql.NullString
	if c.Payload != nil {
		payload = sql.NullString{String: *c.Payload, Valid: true}
	}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO commands (id, equipment_id, command_type_id, payload, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.EquipmentID, c.CommandTypeID, payload, database.FormatTime(now),
	)
	if err != nil {
		if database.IsForeignKeyViolation(err) {
			return ErrEquipmentNotFound
		}
		return fmt.Errorf("creating command: %w", err)
	}

	c.CreatedAt = now
	return nil
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

func scanCommand(s scanner) (*Command, error) {
	var (
		c         Command
		payload   sql.NullString
		createdAt string
	)
	if err := s.Scan(&c.ID, &c.EquipmentID, &c.EquipmentName, &c.CommandTypeID, &c.CommandName, &payload, &createdAt); err != nil {
		return nil, err
	}
	if payload.Valid {
		p := payload.String
		c.Payload = &p
	}
	t, err := database.ParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = t
	return &c, nil
}
