package influxdb

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/equipctl/internal/infrastructure/config"
)

// recordingWriter captures points instead of sending them.
type recordingWriter struct {
	mu      sync.Mutex
	points  []*write.Point
	flushes int
}

func (w *recordingWriter) WritePoint(p *write.Point) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.points = append(w.points, p)
}

func (w *recordingWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
}

func tagMap(p *write.Point) map[string]string {
	tags := make(map[string]string)
	for _, t := range p.TagList() {
		tags[t.Key] = t.Value
	}
	return tags
}

func fieldMap(p *write.Point) map[string]any {
	fields := make(map[string]any)
	for _, f := range p.FieldList() {
		fields[f.Key] = f.Value
	}
	return fields
}

func TestConnect_Disabled(t *testing.T) {
	_, err := Connect(config.InfluxDBConfig{Enabled: false})
	if !errors.Is(err, ErrDisabled) {
		t.Errorf("Connect() error = %v, want ErrDisabled", err)
	}
}

func TestConnect_Unreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("dials the network")
	}

	// Grab a free port and close it so nothing is listening there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	_, err = Connect(config.InfluxDBConfig{Enabled: true, URL: "http://" + addr, Token: "t", Org: "o", Bucket: "b"})
	if !errors.Is(err, ErrConnectionFailed) {
		t.Errorf("Connect() error = %v, want ErrConnectionFailed", err)
	}
}

func TestWriteStatusTransition(t *testing.T) {
	w := &recordingWriter{}
	c := newWithWriter(w)
	at := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

	c.WriteStatusTransition("eq-1", "Occupied", at)

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != "equipment_status" {
		t.Errorf("measurement = %q", p.Name())
	}
	tags := tagMap(p)
	if tags["equipment_id"] != "eq-1" || tags["status"] != "Occupied" {
		t.Errorf("tags = %v", tags)
	}
	if !p.Time().Equal(at) {
		t.Errorf("time = %v, want %v", p.Time(), at)
	}
}

func TestWriteCommand(t *testing.T) {
	w := &recordingWriter{}
	c := newWithWriter(w)

	c.WriteCommand("eq-1", "Turn On", 12, time.Now())

	if len(w.points) != 1 {
		t.Fatalf("points = %d, want 1", len(w.points))
	}
	p := w.points[0]
	if p.Name() != "command" {
		t.Errorf("measurement = %q", p.Name())
	}
	if tags := tagMap(p); tags["command_type"] != "Turn On" {
		t.Errorf("tags = %v", tags)
	}
	if fields := fieldMap(p); fields["payload_bytes"] != int64(12) {
		t.Errorf("fields = %v", fields)
	}
}

func TestClose_StopsWrites(t *testing.T) {
	w := &recordingWriter{}
	c := newWithWriter(w)

	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if w.flushes != 1 {
		t.Errorf("flushes on close = %d, want 1", w.flushes)
	}

	c.WriteStatusTransition("eq-1", "Available", time.Now())
	c.Flush()

	if len(w.points) != 0 {
		t.Errorf("points after close = %d, want 0", len(w.points))
	}
	if w.flushes != 1 {
		t.Errorf("Flush after close should be a no-op")
	}
	if err := c.HealthCheck(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestHandleWriteErrors(t *testing.T) {
	c := newWithWriter(&recordingWriter{})

	got := make(chan error, 1)
	c.SetOnError(func(err error) { got <- err })

	errs := make(chan error, 1)
	go c.handleWriteErrors(errs)
	errs <- errors.New("bucket not found")
	close(errs)

	select {
	case err := <-got:
		if err.Error() != "bucket not found" {
			t.Errorf("callback err = %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("error callback not invoked")
	}
}
