package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/equipctl/internal/command"
	"github.com/nerrad567/equipctl/internal/equipment"
	"github.com/nerrad567/equipctl/internal/infrastructure/metrics"
	"github.com/nerrad567/equipctl/internal/infrastructure/mqtt"
)

// handleTimeout bounds the database work for one message.
const handleTimeout = 10 * time.Second

// Subscriber registers topic handlers. *mqtt.Client satisfies it.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// StatusWriter applies device reports. *equipment.Directory satisfies it.
type StatusWriter interface {
	ApplyReportedStatus(ctx context.Context, equipmentID, statusName string) (*equipment.StatusLogEntry, error)
	AttachFeedback(ctx context.Context, equipmentID, text string) (*equipment.StatusLogEntry, error)
}

// Options tunes the per-equipment queues.
type Options struct {
	QueueSize   int
	IdleTimeout time.Duration
}

// Ingestor subscribes to device topics and applies what arrives.
type Ingestor struct {
	sub    Subscriber
	qos    byte
	status StatusWriter
	sim    *Simulator
	queues *queues
	logger Logger
}

// New creates an Ingestor. Call Start to subscribe.
func New(sub Subscriber, qos byte, status StatusWriter, opts Options) *Ingestor {
	i := &Ingestor{
		sub:    sub,
		qos:    qos,
		status: status,
		logger: noopLogger{},
	}
	i.queues = newQueues(opts.QueueSize, opts.IdleTimeout, i.handle)
	return i
}

// SetLogger sets the logger for the ingestor and its simulator.
func (i *Ingestor) SetLogger(logger Logger) {
	i.logger = logger
}

// SetSimulator enables answering commands with simulated device behaviour.
func (i *Ingestor) SetSimulator(sim *Simulator) {
	i.sim = sim
}

// Start subscribes to the status, feedback and command topics.
func (i *Ingestor) Start() error {
	topics := mqtt.Topics{}
	for _, topic := range []string{
		topics.AllEquipmentStatus(),
		topics.AllEquipmentFeedback(),
		topics.AllEquipmentCommands(),
	} {
		if err := i.sub.Subscribe(topic, i.qos, i.Route); err != nil {
			return fmt.Errorf("subscribe to %s: %w", topic, err)
		}
		i.logger.Info("subscribed", "topic", topic)
	}
	return nil
}

// Stop stops accepting messages, finishes what is queued and waits for
// simulator holds, all bounded by ctx.
func (i *Ingestor) Stop(ctx context.Context) error {
	queueErr := i.queues.stop(ctx)

	var simErr error
	if i.sim != nil {
		simErr = i.sim.Stop(ctx)
	}
	return errors.Join(queueErr, simErr)
}

// Route is the MQTT message handler. It never blocks on persistence; it
// only blocks while the target equipment's queue is full.
func (i *Ingestor) Route(topic string, payload []byte) error {
	equipmentID, kind, err := mqtt.ParseEquipmentTopic(topic)
	if err != nil {
		i.logger.Warn("dropping message on unexpected topic", "topic", topic)
		metrics.IncIngestDropped("unknown")
		return nil
	}

	switch kind {
	case mqtt.KindStatus, mqtt.KindFeedback, mqtt.KindCommands:
	default:
		i.logger.Warn("dropping message with unknown topic suffix", "topic", topic, "kind", kind)
		metrics.IncIngestDropped(kind)
		return nil
	}

	// The job outlives this callback.
	data := append([]byte(nil), payload...)
	if err := i.queues.enqueue(equipmentID, job{kind: kind, payload: data, enqueued: time.Now()}); err != nil {
		metrics.IncIngestDropped(kind)
		return fmt.Errorf("enqueue %s: %w", topic, err)
	}
	return nil
}

// handle runs on the equipment's worker goroutine.
func (i *Ingestor) handle(equipmentID string, j job) {
	ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
	defer cancel()

	var result string
	switch j.kind {
	case mqtt.KindStatus:
		result = i.handleStatus(ctx, equipmentID, j.payload)
	case mqtt.KindFeedback:
		result = i.handleFeedback(ctx, equipmentID, j.payload)
	case mqtt.KindCommands:
		result = i.handleCommand(ctx, equipmentID, j.payload)
	}
	metrics.ObserveIngest(j.kind, result, time.Since(j.enqueued))
}

func (i *Ingestor) handleStatus(ctx context.Context, equipmentID string, payload []byte) string {
	var msg StatusMessage
	if err := json.Unmarshal(payload, &msg); err != nil || msg.Status == "" {
		i.logger.Warn("malformed status message", "equipment_id", equipmentID, "payload", string(payload))
		return metrics.ResultRejected
	}

	_, err := i.status.ApplyReportedStatus(ctx, equipmentID, msg.Status)
	switch {
	case err == nil:
		i.logger.Debug("status recorded", "equipment_id", equipmentID, "status", msg.Status)
		return metrics.ResultOK
	case errors.Is(err, equipment.ErrInvalid):
		i.logger.Warn("unknown status reported", "equipment_id", equipmentID, "status", msg.Status)
		return metrics.ResultRejected
	case errors.Is(err, equipment.ErrNotFound):
		i.logger.Warn("status for unknown equipment", "equipment_id", equipmentID, "status", msg.Status)
		return metrics.ResultRejected
	default:
		i.logger.Error("recording status failed", "equipment_id", equipmentID, "error", err)
		return metrics.ResultError
	}
}

func (i *Ingestor) handleFeedback(ctx context.Context, equipmentID string, payload []byte) string {
	var msg FeedbackMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		i.logger.Warn("malformed feedback message", "equipment_id", equipmentID, "payload", string(payload))
		return metrics.ResultRejected
	}

	_, err := i.status.AttachFeedback(ctx, equipmentID, msg.Message)
	switch {
	case err == nil:
		return metrics.ResultOK
	case errors.Is(err, equipment.ErrNoStatusLog):
		i.logger.Warn("no status log to attach feedback to", "equipment_id", equipmentID)
		return metrics.ResultRejected
	default:
		i.logger.Error("attaching feedback failed", "equipment_id", equipmentID, "error", err)
		return metrics.ResultError
	}
}

func (i *Ingestor) handleCommand(ctx context.Context, equipmentID string, payload []byte) string {
	if i.sim == nil {
		return metrics.ResultOK
	}

	var msg command.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		i.logger.Warn("malformed command message", "equipment_id", equipmentID, "payload", string(payload))
		return metrics.ResultRejected
	}

	if err := i.sim.Run(ctx, equipmentID, msg); err != nil {
		if errors.Is(err, ErrUnknownCommand) {
			i.logger.Warn("unknown command type", "equipment_id", equipmentID, "command_type", msg.CommandType)
			return metrics.ResultRejected
		}
		if errors.Is(err, ErrStopped) {
			return metrics.ResultDropped
		}
		i.logger.Error("starting simulation failed", "equipment_id", equipmentID, "error", err)
		return metrics.ResultError
	}
	return metrics.ResultOK
}
