package equipment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nerrad567/equipctl/internal/registry"
)

// StatusResolver looks up equipment status vocabulary entries.
// *registry.Registry satisfies it.
type StatusResolver interface {
	ResolveByName(ctx context.Context, kind registry.Kind, name string) (string, error)
	ResolveByID(ctx context.Context, kind registry.Kind, id string) (registry.Entry, error)
}

// Observer is told about committed status history changes.
// Calls happen after commit, outside the per-equipment lock.
type Observer interface {
	StatusChanged(entry StatusLogEntry)
	FeedbackAttached(entry StatusLogEntry)
}

// Logger is the logging surface the directory needs.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}

type noopObserver struct{}

func (noopObserver) StatusChanged(StatusLogEntry)    {}
func (noopObserver) FeedbackAttached(StatusLogEntry) {}

// Directory is the equipment service. It owns both write paths to an
// equipment's current status: synchronous PATCHes and asynchronous device
// reports. Both run under the same per-equipment lock.
type Directory struct {
	repo     Repository
	statuses StatusResolver
	locks    *keyLock
	logger   Logger
	observer Observer
	now      func() time.Time
}

// NewDirectory creates a Directory.
func NewDirectory(repo Repository, statuses StatusResolver) *Directory {
	return &Directory{
		repo:     repo,
		statuses: statuses,
		locks:    newKeyLock(),
		logger:   noopLogger{},
		observer: noopObserver{},
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetLogger sets the logger for the directory.
func (d *Directory) SetLogger(logger Logger) {
	d.logger = logger
}

// SetObserver registers the receiver of status history events.
func (d *Directory) SetObserver(o Observer) {
	if o == nil {
		o = noopObserver{}
	}
	d.observer = o
}

// List returns every equipment, newest first.
func (d *Directory) List(ctx context.Context) ([]Equipment, error) {
	return d.repo.List(ctx)
}

// Get returns one equipment or ErrNotFound.
func (d *Directory) Get(ctx context.Context, id string) (*Equipment, error) {
	return d.repo.GetByID(ctx, id)
}

// Status returns the current status of one equipment.
func (d *Directory) Status(ctx context.Context, id string) (*StatusView, error) {
	e, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		EquipmentID:       e.ID,
		CurrentStatusID:   e.CurrentStatusID,
		CurrentStatusName: e.CurrentStatusName,
		LastHeartbeat:     e.LastHeartbeat,
	}, nil
}

// Create registers new equipment. LastHeartbeat defaults to now.
func (d *Directory) Create(ctx context.Context, req CreateRequest) (*Equipment, error) {
	name, err := validateName(req.Name)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(req.CurrentStatusID) == "" {
		return nil, fmt.Errorf("%w: currentStatusId is required", ErrInvalid)
	}
	if err := d.checkStatus(ctx, req.CurrentStatusID); err != nil {
		return nil, err
	}
	location, err := validateLocation(req.Location)
	if err != nil {
		return nil, err
	}

	heartbeat := d.now()
	if req.LastHeartbeat != nil {
		heartbeat = req.LastHeartbeat.UTC()
	}

	statusID := req.CurrentStatusID
	e := &Equipment{
		Name:            name,
		CurrentStatusID: &statusID,
		Location:        location,
		LastHeartbeat:   &heartbeat,
	}
	if err := d.repo.Create(ctx, e); err != nil {
		return nil, err
	}

	// Re-read so the joined status name is filled in.
	return d.repo.GetByID(ctx, e.ID)
}

// Update applies a partial update. A change to a non-null status appends
// a status log entry in the same transaction.
func (d *Directory) Update(ctx context.Context, id string, p Patch) (*Equipment, error) {
	unlock := d.locks.Lock(id)

	e, entry, err := d.update(ctx, id, p)
	unlock()
	if err != nil {
		return nil, err
	}

	if entry != nil {
		d.observer.StatusChanged(*entry)
	}
	return e, nil
}

func (d *Directory) update(ctx context.Context, id string, p Patch) (*Equipment, *StatusLogEntry, error) {
	e, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	if p.Name.Set {
		if p.Name.Value == nil {
			return nil, nil, fmt.Errorf("%w: name cannot be null", ErrInvalid)
		}
		name, err := validateName(*p.Name.Value)
		if err != nil {
			return nil, nil, err
		}
		e.Name = name
	}

	statusChanged := false
	if p.CurrentStatusID.Set {
		next := p.CurrentStatusID.Value
		if next != nil {
			if err := d.checkStatus(ctx, *next); err != nil {
				return nil, nil, err
			}
		}
		statusChanged = next != nil && (e.CurrentStatusID == nil || *e.CurrentStatusID != *next)
		e.CurrentStatusID = next
	}

	if p.Location.Set {
		location, err := validateLocation(p.Location.Value)
		if err != nil {
			return nil, nil, err
		}
		e.Location = location
	}

	if p.LastHeartbeat.Set {
		if p.LastHeartbeat.Value == nil {
			e.LastHeartbeat = nil
		} else {
			hb := p.LastHeartbeat.Value.UTC()
			e.LastHeartbeat = &hb
		}
	}

	entry, err := d.repo.Update(ctx, e, statusChanged, d.now())
	if err != nil {
		return nil, nil, err
	}

	updated, err := d.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return updated, entry, nil
}

// Delete removes equipment that nothing references.
func (d *Directory) Delete(ctx context.Context, id string) error {
	unlock := d.locks.Lock(id)
	defer unlock()

	if _, err := d.repo.GetByID(ctx, id); err != nil {
		return err
	}

	reservations, commands, err := d.repo.CountDependents(ctx, id)
	if err != nil {
		return err
	}
	if reservations > 0 || commands > 0 {
		return fmt.Errorf("%w: %d reservations, %d commands", ErrHasDependents, reservations, commands)
	}

	return d.repo.Delete(ctx, id)
}

// ApplyReportedStatus records a status reported by the device itself.
//
// An unknown status name is ErrInvalid. An unknown equipment id is
// ErrNotFound and nothing is written.
func (d *Directory) ApplyReportedStatus(ctx context.Context, id, statusName string) (*StatusLogEntry, error) {
	statusID, err := d.statuses.ResolveByName(ctx, registry.KindEquipmentStatus, statusName)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, fmt.Errorf("%w: unknown status %q", ErrInvalid, statusName)
		}
		return nil, err
	}

	unlock := d.locks.Lock(id)
	entry, err := d.repo.ApplyStatus(ctx, id, statusID, d.now())
	unlock()
	if err != nil {
		return nil, err
	}

	d.logger.Debug("status applied", "equipment_id", id, "status", statusName)
	d.observer.StatusChanged(*entry)
	return entry, nil
}

// AttachFeedback sets the details of the newest status log entry.
// Text longer than MaxDetailsLength is truncated.
func (d *Directory) AttachFeedback(ctx context.Context, id, text string) (*StatusLogEntry, error) {
	text = truncate(text, MaxDetailsLength)

	unlock := d.locks.Lock(id)
	entry, err := d.repo.AttachFeedback(ctx, id, text)
	unlock()
	if err != nil {
		return nil, err
	}

	d.observer.FeedbackAttached(*entry)
	return entry, nil
}

// StatusLogs lists status history newest first. An empty id lists every
// equipment.
func (d *Directory) StatusLogs(ctx context.Context, equipmentID string) ([]StatusLogEntry, error) {
	return d.repo.StatusLogs(ctx, equipmentID)
}

func (d *Directory) checkStatus(ctx context.Context, statusID string) error {
	if _, err := d.statuses.ResolveByID(ctx, registry.KindEquipmentStatus, statusID); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return ErrStatusNotFound
		}
		return err
	}
	return nil
}

func validateName(name string) (string, error) {
	name = strings.TrimSpace(name)
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return "", fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if n > MaxNameLength {
		return "", fmt.Errorf("%w: name exceeds %d characters", ErrInvalid, MaxNameLength)
	}
	return name, nil
}

// validateLocation accepts nil or a UUID and returns it in canonical form.
func validateLocation(location *string) (*string, error) {
	if location == nil {
		return nil, nil
	}
	id, err := uuid.Parse(*location)
	if err != nil {
		return nil, fmt.Errorf("%w: location must be a UUID", ErrInvalid)
	}
	s := id.String()
	return &s, nil
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	r := []rune(s)
	return string(r[:limit])
}
