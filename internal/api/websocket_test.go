package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/equipctl/internal/command"
	"github.com/nerrad567/equipctl/internal/equipment"
	"github.com/nerrad567/equipctl/internal/infrastructure/config"
	"github.com/nerrad567/equipctl/internal/infrastructure/logging"
	"github.com/nerrad567/equipctl/internal/registry"
)

func testHub(t *testing.T) *Hub {
	t.Helper()
	hub := NewHub(config.WebSocketConfig{}, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)
	return hub
}

func testClient(hub *Hub, channels ...string) *WSClient {
	subs := make(map[string]struct{}, len(channels))
	for _, ch := range channels {
		subs[ch] = struct{}{}
	}
	client := &WSClient{hub: hub, send: make(chan []byte, wsSendBufferSize), subscriptions: subs}
	hub.Register(client)
	return client
}

func receive(t *testing.T, client *WSClient) WSMessage {
	t.Helper()
	select {
	case data := <-client.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return msg
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for broadcast message")
		return WSMessage{}
	}
}

func TestHub_BroadcastToSubscribed(t *testing.T) {
	hub := testHub(t)
	client := testClient(hub, EventStatusChanged)

	hub.StatusChanged(equipment.StatusLogEntry{EquipmentID: "eq-1", EquipmentStatus: "Occupied"})

	msg := receive(t, client)
	if msg.Type != WSTypeEvent || msg.EventType != EventStatusChanged {
		t.Errorf("message = %+v", msg)
	}
	payload, _ := msg.Payload.(map[string]any) //nolint:errcheck // checked below
	if payload["equipmentId"] != "eq-1" || payload["equipmentStatus"] != "Occupied" {
		t.Errorf("payload = %v", msg.Payload)
	}
}

func TestHub_NoMessageForUnsubscribed(t *testing.T) {
	hub := testHub(t)
	client := testClient(hub, EventFeedback)

	hub.StatusChanged(equipment.StatusLogEntry{EquipmentID: "eq-1"})

	select {
	case <-client.send:
		t.Error("unsubscribed client should not receive message")
	case <-time.After(100 * time.Millisecond):
	}
}

func TestHub_DefaultReceivesEverything(t *testing.T) {
	hub := testHub(t)
	client := testClient(hub)

	hub.FeedbackAttached(equipment.StatusLogEntry{EquipmentID: "eq-1"})
	hub.CommandDispatched(command.Command{ID: "cmd-1", CommandName: "Start"}, true)

	if got := receive(t, client).EventType; got != EventFeedback {
		t.Errorf("first event = %q, want %q", got, EventFeedback)
	}
	msg := receive(t, client)
	if msg.EventType != EventCommandDispatched {
		t.Errorf("second event = %q, want %q", msg.EventType, EventCommandDispatched)
	}
	payload, _ := msg.Payload.(map[string]any) //nolint:errcheck // checked below
	if payload["id"] != "cmd-1" || payload["published"] != true {
		t.Errorf("command payload = %v", msg.Payload)
	}
}

func TestHub_ClientCount(t *testing.T) {
	hub := testHub(t)
	if hub.ClientCount() != 0 {
		t.Errorf("initial client count = %d, want 0", hub.ClientCount())
	}

	client := testClient(hub)
	if hub.ClientCount() != 1 {
		t.Errorf("after register count = %d, want 1", hub.ClientCount())
	}

	hub.Unregister(client)
	hub.Unregister(client)
	if hub.ClientCount() != 0 {
		t.Errorf("after unregister count = %d, want 0", hub.ClientCount())
	}
}

func TestWSClient_Subscription(t *testing.T) {
	hub := testHub(t)
	client := testClient(hub)

	client.handleMessage([]byte(`{"type":"subscribe","id":"1","payload":{"channels":["command.dispatched"]}}`))
	if resp := receive(t, client); resp.Type != WSTypeResponse || resp.ID != "1" {
		t.Errorf("subscribe response = %+v", resp)
	}
	if client.isSubscribed(EventStatusChanged) {
		t.Error("subscribing should narrow the client to the named channels")
	}

	client.handleMessage([]byte(`{"type":"unsubscribe","id":"2","payload":{"channels":["command.dispatched"]}}`))
	receive(t, client)
	if !client.isSubscribed(EventStatusChanged) {
		t.Error("an empty subscription set should receive every channel")
	}

	client.handleMessage([]byte(`{"type":"ping","id":"3"}`))
	if resp := receive(t, client); resp.Type != WSTypePong {
		t.Errorf("ping response type = %q, want pong", resp.Type)
	}

	client.handleMessage([]byte(`not json`))
	if resp := receive(t, client); resp.Type != WSTypeError {
		t.Errorf("bad message response type = %q, want error", resp.Type)
	}
}

func TestWebSocket_StatusEventEndToEnd(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.login(t, "alice")
	eq := env.createEquipment(t, token, "Centrifuge")

	ts := httptest.NewServer(env.router)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	t.Run("rejects anonymous", func(t *testing.T) {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
		if err == nil {
			t.Fatal("dial without token should fail")
		}
		if resp == nil || resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("handshake response = %v, want 401", resp)
		}
	})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL+"?token="+token, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for env.srv.Hub().ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	occupied := env.statusID(t, registry.KindEquipmentStatus, registry.StatusOccupied)
	if w := env.do(t, http.MethodPatch, "/equipments/"+eq.ID, token, map[string]any{"currentStatusId": occupied}); w.Code != http.StatusOK {
		t.Fatalf("patch status = %d", w.Code)
	}

	//nolint:errcheck // read error reported below
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.EventType != EventStatusChanged {
		t.Errorf("event = %q, want %q", msg.EventType, EventStatusChanged)
	}
}
