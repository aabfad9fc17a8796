package registry

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/equipctl/internal/infrastructure/database"
)

// Logger is the logging surface the registry needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Registry resolves vocabulary names and ids.
//
// All public methods are thread-safe.
type Registry struct {
	db     *sql.DB
	logger Logger

	mu    sync.RWMutex
	cache map[Kind][]Entry
}

// New creates a registry on db. Call Seed before serving lookups.
func New(db *sql.DB) *Registry {
	return &Registry{
		db:     db,
		logger: noopLogger{},
		cache:  make(map[Kind][]Entry),
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Seed inserts any missing vocabulary row and then reloads the cache.
// Existing rows, including ones not in the built-in lists, are kept.
func (r *Registry) Seed(ctx context.Context) error {
	created := 0
	for _, kind := range Kinds() {
		v := vocabularies[kind]
		for _, name := range v.names {
			// table is from the fixed vocabularies map, never user input.
			res, err := r.db.ExecContext(ctx,
				"INSERT OR IGNORE INTO "+v.table+" (id, name, created_at) VALUES (?, ?, ?)",
				uuid.NewString(), name, database.FormatTime(time.Now()),
			)
			if err != nil {
				return fmt.Errorf("seeding %s %q: %w", kind, name, err)
			}
			if n, _ := res.RowsAffected(); n > 0 { //nolint:errcheck // sqlite always reports
				created++
			}
		}
	}

	if created > 0 {
		r.logger.Info("vocabularies seeded", "created", created)
	}
	return r.Refresh(ctx)
}

// Refresh reloads every vocabulary from the database.
func (r *Registry) Refresh(ctx context.Context) error {
	fresh := make(map[Kind][]Entry, len(vocabularies))
	for _, kind := range Kinds() {
		entries, err := r.load(ctx, kind)
		if err != nil {
			return err
		}
		fresh[kind] = entries
	}

	r.mu.Lock()
	r.cache = fresh
	r.mu.Unlock()
	return nil
}

func (r *Registry) load(ctx context.Context, kind Kind) ([]Entry, error) {
	v := vocabularies[kind]
	rows, err := r.db.QueryContext(ctx,
		"SELECT id, name, created_at FROM "+v.table+" ORDER BY created_at, rowid")
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", kind, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", kind, err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating %s: %w", kind, err)
	}
	return entries, nil
}

// ResolveByName returns the id of name within kind.
func (r *Registry) ResolveByName(ctx context.Context, kind Kind, name string) (string, error) {
	v, ok := vocabularies[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	r.mu.RLock()
	for _, e := range r.cache[kind] {
		if e.Name == name {
			r.mu.RUnlock()
			return e.ID, nil
		}
	}
	r.mu.RUnlock()

	e, err := r.queryOne(ctx, "SELECT id, name, created_at FROM "+v.table+" WHERE name = ?", name)
	if err != nil {
		return "", fmt.Errorf("%s %q: %w", kind, name, err)
	}
	r.remember(kind, e)
	return e.ID, nil
}

// ResolveByID returns the entry with id within kind.
func (r *Registry) ResolveByID(ctx context.Context, kind Kind, id string) (Entry, error) {
	v, ok := vocabularies[kind]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	r.mu.RLock()
	for _, e := range r.cache[kind] {
		if e.ID == id {
			r.mu.RUnlock()
			return e, nil
		}
	}
	r.mu.RUnlock()

	e, err := r.queryOne(ctx, "SELECT id, name, created_at FROM "+v.table+" WHERE id = ?", id)
	if err != nil {
		return Entry{}, fmt.Errorf("%s %q: %w", kind, id, err)
	}
	r.remember(kind, e)
	return e, nil
}

func (r *Registry) queryOne(ctx context.Context, query string, arg string) (Entry, error) {
	e, err := scanEntry(r.db.QueryRowContext(ctx, query, arg))
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("querying vocabulary: %w", err)
	}
	return e, nil
}

// remember appends an entry found on a cache miss.
func (r *Registry) remember(kind Kind, e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.cache[kind] {
		if existing.ID == e.ID {
			return
		}
	}
	r.cache[kind] = append(r.cache[kind], e)
}

// List returns the cached entries of kind, oldest first.
func (r *Registry) List(kind Kind) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Entry(nil), r.cache[kind]...)
}

// EquipmentStatuses lists the equipment status vocabulary.
func (r *Registry) EquipmentStatuses() []Entry { return r.List(KindEquipmentStatus) }

// ReservationStatuses lists the reservation status vocabulary.
func (r *Registry) ReservationStatuses() []Entry { return r.List(KindReservationStatus) }

// CommandTypes lists the command type vocabulary.
func (r *Registry) CommandTypes() []Entry { return r.List(KindCommandType) }

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(s scanner) (Entry, error) {
	var e Entry
	var createdAt string
	if err := s.Scan(&e.ID, &e.Name, &createdAt); err != nil {
		return Entry{}, err
	}
	t, err := database.ParseTime(createdAt)
	if err != nil {
		return Entry{}, err
	}
	e.CreatedAt = t
	return e, nil
}
