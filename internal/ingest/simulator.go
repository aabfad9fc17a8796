package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/equipctl/internal/command"
	"github.com/nerrad567/equipctl/internal/infrastructure/metrics"
	"github.com/nerrad567/equipctl/internal/infrastructure/mqtt"
	"github.com/nerrad567/equipctl/internal/registry"
)

const (
	defaultTick = time.Second

	// defaultTicks holds a vocabulary type the simulator has no behaviour for.
	defaultTicks = 5

	// simPublishTimeout bounds each simulator publish including retries.
	simPublishTimeout = 30 * time.Second
)

// behaviour is how a simulated device reacts to one command type.
type behaviour struct {
	ticks int
	verb  string
}

var behaviours = map[string]behaviour{
	registry.CommandStart:   {ticks: 10, verb: "Equipment started"},
	registry.CommandStop:    {ticks: 5, verb: "Equipment stopped"},
	registry.CommandTurnOn:  {ticks: 3, verb: "Equipment turned on"},
	registry.CommandTurnOff: {ticks: 3, verb: "Equipment turned off"},
	registry.CommandAction:  {ticks: 20, verb: "Action executed"},
	registry.CommandRestart: {ticks: 15, verb: "Equipment restarted"},
}

// Publisher sends one message. *mqtt.RetryPublisher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// TypeResolver checks command type names. *registry.Registry satisfies it.
type TypeResolver interface {
	ResolveByName(ctx context.Context, kind registry.Kind, name string) (string, error)
}

// Simulator stands in for real devices. For each command it reports
// Occupied, holds for the type's duration, reports Available and then
// publishes feedback, all over MQTT so the normal ingest path records it.
type Simulator struct {
	pub    Publisher
	types  TypeResolver
	tick   time.Duration
	logger Logger

	mu      sync.Mutex
	stopped bool
	wg      sync.WaitGroup
}

// NewSimulator creates a Simulator. A tick of zero means one second.
func NewSimulator(pub Publisher, types TypeResolver, tick time.Duration) *Simulator {
	if tick <= 0 {
		tick = defaultTick
	}
	return &Simulator{pub: pub, types: types, tick: tick, logger: noopLogger{}}
}

// SetLogger sets the logger for the simulator.
func (s *Simulator) SetLogger(logger Logger) {
	s.logger = logger
}

// Run starts simulating msg for equipmentID on its own goroutine.
// It returns ErrUnknownCommand without starting anything for a type the
// vocabulary does not know.
func (s *Simulator) Run(ctx context.Context, equipmentID string, msg command.Message) error {
	if _, err := s.types.ResolveByName(ctx, registry.KindCommandType, msg.CommandType); err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			return fmt.Errorf("%w: %q", ErrUnknownCommand, msg.CommandType)
		}
		return err
	}

	b, ok := behaviours[msg.CommandType]
	if !ok {
		b = behaviour{ticks: defaultTicks, verb: "Unknown command"}
	}

	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return ErrStopped
	}
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.IncSimulated(msg.CommandType)
	go func() {
		defer s.wg.Done()
		s.execute(equipmentID, msg, b)
	}()
	return nil
}

// execute runs one hold to completion. It is not interrupted by Stop.
func (s *Simulator) execute(equipmentID string, msg command.Message, b behaviour) {
	topics := mqtt.Topics{}

	s.logger.Info("simulating command",
		"equipment_id", equipmentID,
		"command_type", msg.CommandType,
		"ticks", b.ticks,
	)

	s.publish(topics.EquipmentStatus(equipmentID), StatusMessage{Status: registry.StatusOccupied})

	time.Sleep(time.Duration(b.ticks) * s.tick)

	s.publish(topics.EquipmentStatus(equipmentID), StatusMessage{Status: registry.StatusAvailable})
	s.publish(topics.EquipmentFeedback(equipmentID), FeedbackMessage{
		Message: FeedbackText(b.verb, msg.Payload, b.ticks, equipmentID),
	})
}

func (s *Simulator) publish(topic string, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		s.logger.Error("encoding simulator message", "topic", topic, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), simPublishTimeout)
	defer cancel()

	if err := s.pub.Publish(ctx, topic, data); err != nil {
		s.logger.Warn("simulator publish failed", "topic", topic, "error", err)
	}
}

// Stop refuses new runs and waits for in-flight holds until ctx is done.
func (s *Simulator) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// FeedbackText formats the device feedback for a finished command.
//
//	Equipment started: speed=3 (Duration: 10s, equipmentId: 3f0c...)
func FeedbackText(verb string, payload *string, ticks int, equipmentID string) string {
	p := ""
	if payload != nil {
		p = *payload
	}
	return fmt.Sprintf("%s: %s (Duration: %ds, equipmentId: %s)", verb, p, ticks, equipmentID)
}
