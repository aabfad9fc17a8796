package reservation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nerrad567/equipctl/internal/infrastructure/metrics"
	"github.com/nerrad567/equipctl/internal/registry"
)

// casAttempts bounds how often UpdateStatus re-reads after losing a race.
const casAttempts = 3

// Metric operation labels.
const (
	opCreate = "create"
	opUpdate = "update"
	opCancel = "cancel"
)

// StatusResolver looks up reservation status entries.
// *registry.Registry satisfies it.
type StatusResolver interface {
	ResolveByName(ctx context.Context, kind registry.Kind, name string) (string, error)
	ResolveByID(ctx context.Context, kind registry.Kind, id string) (registry.Entry, error)
	ReservationStatuses() []registry.Entry
}

// Logger is the logging surface the ledger needs.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Ledger creates reservations and guards their status transitions.
type Ledger struct {
	repo     Repository
	statuses StatusResolver
	logger   Logger
}

// NewLedger creates a Ledger.
func NewLedger(repo Repository, statuses StatusResolver) *Ledger {
	return &Ledger{repo: repo, statuses: statuses, logger: noopLogger{}}
}

// SetLogger sets the logger for the ledger.
func (l *Ledger) SetLogger(logger Logger) {
	l.logger = logger
}

// ListStatuses returns the reservation status vocabulary, oldest first.
func (l *Ledger) ListStatuses() []registry.Entry {
	return l.statuses.ReservationStatuses()
}

// List returns every reservation, newest first.
func (l *Ledger) List(ctx context.Context) ([]Reservation, error) {
	return l.repo.List(ctx)
}

// Get returns one reservation or ErrNotFound.
func (l *Ledger) Get(ctx context.Context, id string) (*Reservation, error) {
	return l.repo.GetByID(ctx, id)
}

// Create books equipment for a user. The reservation starts Active.
func (l *Ledger) Create(ctx context.Context, req CreateRequest) (res *Reservation, err error) {
	defer func() { metrics.IncReservationOp(opCreate, resultOf(err)) }()

	if strings.TrimSpace(req.UserID) == "" || strings.TrimSpace(req.EquipmentID) == "" {
		return nil, fmt.Errorf("%w: userId and equipmentId are required", ErrInvalid)
	}
	if req.StartTime.IsZero() || req.EndTime.IsZero() {
		return nil, fmt.Errorf("%w: startTime and endTime are required", ErrInvalid)
	}
	if !req.EndTime.After(req.StartTime) {
		return nil, fmt.Errorf("%w: endTime must be after startTime", ErrInvalid)
	}

	active, err := l.repo.UserActive(ctx, req.UserID)
	if err != nil {
		return nil, err
	}
	if !active {
		return nil, ErrUserNotFound
	}

	exists, err := l.repo.EquipmentExists(ctx, req.EquipmentID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrEquipmentNotFound
	}

	statusID, err := l.resolveBuiltin(ctx, registry.ReservationActive)
	if err != nil {
		return nil, err
	}

	created := &Reservation{
		UserID:      req.UserID,
		EquipmentID: req.EquipmentID,
		StartTime:   req.StartTime.UTC(),
		EndTime:     req.EndTime.UTC(),
		StatusID:    statusID,
	}
	if err := l.repo.Create(ctx, created); err != nil {
		return nil, err
	}

	l.logger.Info("reservation created",
		"reservation_id", created.ID,
		"equipment_id", created.EquipmentID,
		"user_id", created.UserID,
	)
	return l.repo.GetByID(ctx, created.ID)
}

// UpdateStatus moves a reservation to statusID. Setting the current status
// again is a no-op. Leaving a terminal status is ErrInvalidTransition.
func (l *Ledger) UpdateStatus(ctx context.Context, id, statusID string) (res *Reservation, err error) {
	defer func() { metrics.IncReservationOp(opUpdate, resultOf(err)) }()

	target, err := l.statuses.ResolveByID(ctx, registry.KindReservationStatus, statusID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, ErrStatusNotFound
		}
		return nil, err
	}
	return l.transition(ctx, id, target)
}

// Cancel sets a reservation to Canceled. Canceling twice succeeds.
func (l *Ledger) Cancel(ctx context.Context, id string) (err error) {
	defer func() { metrics.IncReservationOp(opCancel, resultOf(err)) }()

	canceledID, err := l.resolveBuiltin(ctx, registry.ReservationCanceled)
	if err != nil {
		return err
	}
	_, err = l.transition(ctx, id, registry.Entry{ID: canceledID, Name: registry.ReservationCanceled})
	return err
}

// transition applies the transition table with a compare-and-set so two
// concurrent changes cannot both leave Active.
func (l *Ledger) transition(ctx context.Context, id string, target registry.Entry) (*Reservation, error) {
	for range casAttempts {
		current, err := l.repo.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if current.StatusID == target.ID {
			return current, nil
		}
		if !canTransition(current.StatusName, target.Name) {
			return nil, fmt.Errorf("%w: %s to %s", ErrInvalidTransition, current.StatusName, target.Name)
		}

		ok, err := l.repo.CompareAndSetStatus(ctx, id, current.StatusID, target.ID)
		if err != nil {
			return nil, err
		}
		if ok {
			l.logger.Info("reservation status changed",
				"reservation_id", id,
				"from", current.StatusName,
				"to", target.Name,
			)
			return l.repo.GetByID(ctx, id)
		}
	}
	return nil, fmt.Errorf("%w: concurrent update", ErrInvalidTransition)
}

func (l *Ledger) resolveBuiltin(ctx context.Context, name string) (string, error) {
	id, err := l.statuses.ResolveByName(ctx, registry.KindReservationStatus, name)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			l.logger.Error("reservation status missing from vocabulary", "status", name)
			return "", fmt.Errorf("%w: %q", ErrStatusMisconfigured, name)
		}
		return "", err
	}
	return id, nil
}

func resultOf(err error) string {
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, ErrStatusMisconfigured):
		return metrics.ResultError
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrUserNotFound),
		errors.Is(err, ErrEquipmentNotFound), errors.Is(err, ErrStatusNotFound),
		errors.Is(err, ErrInvalid), errors.Is(err, ErrInvalidTransition):
		return metrics.ResultRejected
	default:
		return metrics.ResultError
	}
}
