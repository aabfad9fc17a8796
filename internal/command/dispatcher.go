package command

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/nerrad567/equipctl/internal/infrastructure/metrics"
	"github.com/nerrad567/equipctl/internal/infrastructure/mqtt"
	"github.com/nerrad567/equipctl/internal/registry"
)

// Publisher sends one message, retrying as it sees fit.
// *mqtt.RetryPublisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// TypeResolver looks up command types. *registry.Registry satisfies it.
type TypeResolver interface {
	ResolveByID(ctx context.Context, kind registry.Kind, id string) (registry.Entry, error)
	CommandTypes() []registry.Entry
}

// Exporter receives one point per dispatched command.
// *influxdb.Client satisfies it.
type Exporter interface {
	WriteCommand(equipmentID, commandType string, payloadBytes int, at time.Time)
}

// Notifier is told about every persisted command, published or not.
type Notifier interface {
	CommandDispatched(cmd Command, published bool)
}

// Logger is the logging surface the dispatcher needs.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// Dispatcher validates, records and publishes commands.
type Dispatcher struct {
	repo      Repository
	types     TypeResolver
	publisher Publisher
	exporter  Exporter
	notifier  Notifier
	logger    Logger
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(repo Repository, types TypeResolver, publisher Publisher) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		types:     types,
		publisher: publisher,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the dispatcher.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.logger = logger
}

// SetExporter enables time-series export. nil disables it.
func (d *Dispatcher) SetExporter(e Exporter) {
	d.exporter = e
}

// SetNotifier registers the receiver of dispatch events. nil disables it.
func (d *Dispatcher) SetNotifier(n Notifier) {
	d.notifier = n
}

// ListTypes returns the command type vocabulary, oldest first.
func (d *Dispatcher) ListTypes() []registry.Entry {
	return d.types.CommandTypes()
}

// List returns every command, newest first.
func (d *Dispatcher) List(ctx context.Context) ([]Command, error) {
	return d.repo.List(ctx)
}

// Get returns one command or ErrNotFound.
func (d *Dispatcher) Get(ctx context.Context, id string) (*Command, error) {
	return d.repo.GetByID(ctx, id)
}

// Submit records a command and publishes it to the equipment's commands
// topic.
//
// Validation failures return (nil, err) and persist nothing. A publish
// failure returns the persisted command together with an error wrapping
// ErrPublishFailed; callers decide whether that is fatal.
func (d *Dispatcher) Submit(ctx context.Context, req SubmitRequest) (*Command, error) {
	cmd, typeName, err := d.record(ctx, req)
	if err != nil {
		metrics.IncCommand(metrics.CommandRejected)
		return nil, err
	}

	body, err := json.Marshal(Message{CommandType: typeName, Payload: cmd.Payload})
	if err != nil {
		return cmd, fmt.Errorf("encoding command message: %w", err)
	}

	topic := mqtt.Topics{}.EquipmentCommands(cmd.EquipmentID)
	pubErr := d.publisher.Publish(ctx, topic, body)
	if pubErr != nil {
		metrics.IncCommand(metrics.CommandPublishFailed)
		d.logger.Warn("command persisted but not published",
			"command_id", cmd.ID,
			"equipment_id", cmd.EquipmentID,
			"command_type", typeName,
			"error", pubErr,
		)
	} else {
		metrics.IncCommand(metrics.CommandPublished)
		d.logger.Info("command published",
			"command_id", cmd.ID,
			"equipment_id", cmd.EquipmentID,
			"command_type", typeName,
		)
		if d.exporter != nil {
			d.exporter.WriteCommand(cmd.EquipmentID, typeName, payloadBytes(cmd.Payload), cmd.CreatedAt)
		}
	}

	if d.notifier != nil {
		d.notifier.CommandDispatched(*cmd, pubErr == nil)
	}

	if pubErr != nil {
		return cmd, fmt.Errorf("%w: %w", ErrPublishFailed, pubErr)
	}
	return cmd, nil
}

// record validates req and inserts the command row.
func (d *Dispatcher) record(ctx context.Context, req SubmitRequest) (*Command, string, error) {
	if strings.TrimSpace(req.EquipmentID) == "" || strings.TrimSpace(req.CommandTypeID) == "" {
		return nil, "", fmt.Errorf("%w: equipmentId and commandTypeId are required", ErrInvalid)
	}
	if req.Payload != nil && utf8.RuneCountInString(*req.Payload) > MaxPayloadLength {
		return nil, "", fmt.Errorf("%w: payload exceeds %d characters", ErrInvalid, MaxPayloadLength)
	}

	exists, err := d.repo.EquipmentExists(ctx, req.EquipmentID)
	if err != nil {
		return nil, "", err
	}
	if !exists {
		return nil, "", ErrEquipmentNotFound
	}

	typ, err := d.types.ResolveByID(ctx, registry.KindCommandType, req.CommandTypeID)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return nil, "", ErrTypeNotFound
		}
		return nil, "", err
	}

	cmd := &Command{
		EquipmentID:   req.EquipmentID,
		CommandTypeID: typ.ID,
		Payload:       req.Payload,
	}
	if err := d.repo.Create(ctx, cmd); err != nil {
		return nil, "", err
	}

	// Re-read for the joined display names.
	stored, err := d.repo.GetByID(ctx, cmd.ID)
	if err != nil {
		return nil, "", err
	}
	return stored, typ.Name, nil
}

func payloadBytes(p *string) int {
	if p == nil {
		return 0
	}
	return len(*p)
}
