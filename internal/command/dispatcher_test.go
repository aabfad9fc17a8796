package command

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/equipctl/internal/infrastructure/database"
	"github.com/nerrad567/equipctl/internal/infrastructure/database/dbtest"
	"github.com/nerrad567/equipctl/internal/registry"
)

type published struct {
	topic   string
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	err  error
	sent []published
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, published{topic: topic, payload: payload})
	return nil
}

type exported struct {
	equipmentID, commandType string
	payloadBytes             int
}

type fakeExporter struct {
	points []exported
}

func (e *fakeExporter) WriteCommand(equipmentID, commandType string, payloadBytes int, _ time.Time) {
	e.points = append(e.points, exported{equipmentID, commandType, payloadBytes})
}

type fakeNotifier struct {
	events []bool
}

func (n *fakeNotifier) CommandDispatched(_ Command, ok bool) {
	n.events = append(n.events, ok)
}

type fixture struct {
	db        *database.DB
	reg       *registry.Registry
	pub       *fakePublisher
	exp       *fakeExporter
	notifier  *fakeNotifier
	disp      *Dispatcher
	equipment string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.Open(t)
	reg := registry.New(db.DB)
	if err := reg.Seed(context.Background()); err != nil {
		t.Fatalf("Seed() error = %v", err)
	}

	equipmentID := uuid.NewString()
	if _, err := db.Exec("INSERT INTO equipments (id, name, created_at) VALUES (?, ?, ?)",
		equipmentID, "Press", database.FormatTime(time.Now())); err != nil {
		t.Fatalf("inserting equipment: %v", err)
	}

	f := &fixture{
		db:        db,
		reg:       reg,
		pub:       &fakePublisher{},
		exp:       &fakeExporter{},
		notifier:  &fakeNotifier{},
		equipment: equipmentID,
	}
	f.disp = NewDispatcher(NewSQLiteRepository(db.DB), reg, f.pub)
	f.disp.SetExporter(f.exp)
	f.disp.SetNotifier(f.notifier)
	return f
}

func (f *fixture) typeID(t *testing.T, name string) string {
	t.Helper()
	id, err := f.reg.ResolveByName(context.Background(), registry.KindCommandType, name)
	if err != nil {
		t.Fatalf("resolving %q: %v", name, err)
	}
	return id
}

func (f *fixture) count(t *testing.T) int {
	t.Helper()
	var n int
	if err := f.db.QueryRow("SELECT COUNT(*) FROM commands").Scan(&n); err != nil {
		t.Fatalf("counting commands: %v", err)
	}
	return n
}

func TestSubmit_Publishes(t *testing.T) {
	f := newFixture(t)
	payload := "speed=3"

	cmd, err := f.disp.Submit(context.Background(), SubmitRequest{
		EquipmentID:   f.equipment,
		CommandTypeID: f.typeID(t, registry.CommandTurnOn),
		Payload:       &payload,
	})
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if cmd.CommandName != registry.CommandTurnOn || cmd.EquipmentName != "Press" {
		t.Errorf("joined names = %q/%q", cmd.CommandName, cmd.EquipmentName)
	}

	if len(f.pub.sent) != 1 {
		t.Fatalf("published %d messages, want 1", len(f.pub.sent))
	}
	msg := f.pub.sent[0]
	if want := "equipments/" + f.equipment + "/commands"; msg.topic != want {
		t.Errorf("topic = %q, want %q", msg.topic, want)
	}

	var body map[string]any
	if err := json.Unmarshal(msg.payload, &body); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if body["commandType"] != "Turn On" || body["payload"] != payload {
		t.Errorf("payload = %v", body)
	}

	if len(f.exp.points) != 1 || f.exp.points[0].payloadBytes != len(payload) {
		t.Errorf("exported points = %+v", f.exp.points)
	}
	if len(f.notifier.events) != 1 || !f.notifier.events[0] {
		t.Errorf("notifier events = %v", f.notifier.events)
	}
}

func TestSubmit_NullPayload(t *testing.T) {
	f := newFixture(t)

	if _, err := f.disp.Submit(context.Background(), SubmitRequest{
		EquipmentID:   f.equipment,
		CommandTypeID: f.typeID(t, registry.CommandStop),
	}); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}

	if got := string(f.pub.sent[0].payload); got != `{"commandType":"Stop","payload":null}` {
		t.Errorf("payload = %s", got)
	}
}

func TestSubmit_ValidationPersistsNothing(t *testing.T) {
	f := newFixture(t)
	start := f.typeID(t, registry.CommandStart)
	long := strings.Repeat("p", MaxPayloadLength+1)

	tests := []struct {
		name string
		req  SubmitRequest
		want error
	}{
		{"unknown equipment", SubmitRequest{EquipmentID: uuid.NewString(), CommandTypeID: start}, ErrEquipmentNotFound},
		{"unknown type", SubmitRequest{EquipmentID: f.equipment, CommandTypeID: uuid.NewString()}, ErrTypeNotFound},
		{"payload too long", SubmitRequest{EquipmentID: f.equipment, CommandTypeID: start, Payload: &long}, ErrInvalid},
		{"missing ids", SubmitRequest{}, ErrInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := f.disp.Submit(context.Background(), tt.req)
			if !errors.Is(err, tt.want) {
				t.Errorf("Submit() error = %v, want %v", err, tt.want)
			}
			if cmd != nil {
				t.Errorf("Submit() returned command %+v on failure", cmd)
			}
		})
	}

	if n := f.count(t); n != 0 {
		t.Errorf("%d commands persisted, want 0", n)
	}
	if len(f.pub.sent) != 0 {
		t.Errorf("%d messages published, want 0", len(f.pub.sent))
	}
}

func TestSubmit_PublishFailureKeepsCommand(t *testing.T) {
	f := newFixture(t)
	f.pub.err = errors.New("broker unreachable")

	cmd, err := f.disp.Submit(context.Background(), SubmitRequest{
		EquipmentID:   f.equipment,
		CommandTypeID: f.typeID(t, registry.CommandRestart),
	})
	if !errors.Is(err, ErrPublishFailed) {
		t.Fatalf("Submit() error = %v, want ErrPublishFailed", err)
	}
	if cmd == nil {
		t.Fatal("Submit() must return the persisted command on publish failure")
	}

	got, err := f.disp.Get(context.Background(), cmd.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.ID != cmd.ID {
		t.Errorf("Get() = %s, want %s", got.ID, cmd.ID)
	}
	if len(f.exp.points) != 0 {
		t.Error("unpublished command should not be exported")
	}
	if len(f.notifier.events) != 1 || f.notifier.events[0] {
		t.Errorf("notifier events = %v, want [false]", f.notifier.events)
	}
}

func TestList_NewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	var ids []string
	for _, name := range []string{registry.CommandStart, registry.CommandAction} {
		cmd, err := f.disp.Submit(ctx, SubmitRequest{EquipmentID: f.equipment, CommandTypeID: f.typeID(t, name)})
		if err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		ids = append(ids, cmd.ID)
	}

	list, err := f.disp.List(ctx)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != ids[1] || list[1].ID != ids[0] {
		t.Errorf("List() order wrong: %+v", list)
	}
}

func TestGet_NotFound(t *testing.T) {
	f := newFixture(t)
	if _, err := f.disp.Get(context.Background(), uuid.NewString()); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestListTypes(t *testing.T) {
	f := newFixture(t)
	types := f.disp.ListTypes()
	if len(types) != len(registry.Names(registry.KindCommandType)) {
		t.Errorf("ListTypes() = %d entries", len(types))
	}
}

func TestMessage_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantType    string
		wantPayload string
	}{
		{"camelCase", `{"commandType":"Start","payload":"x"}`, "Start", "x"},
		{"snake_case", `{"command_type":"Turn Off","payload":"y"}`, "Turn Off", "y"},
		{"camel wins", `{"commandType":"Stop","command_type":"Start"}`, "Stop", ""},
		{"missing type", `{"payload":"z"}`, "", "z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Message
			if err := json.Unmarshal([]byte(tt.input), &m); err != nil {
				t.Fatalf("Unmarshal() error = %v", err)
			}
			if m.CommandType != tt.wantType {
				t.Errorf("CommandType = %q, want %q", m.CommandType, tt.wantType)
			}
			got := ""
			if m.Payload != nil {
				got = *m.Payload
			}
			if got != tt.wantPayload {
				t.Errorf("Payload = %q, want %q", got, tt.wantPayload)
			}
		})
	}

	var m Message
	if err := json.Unmarshal([]byte(`not json`), &m); err == nil {
		t.Error("expected error for malformed JSON")
	}
}
