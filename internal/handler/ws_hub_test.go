package handler

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/SWCCGArena/rando/internal/service"
)

func newTestConn(adminID string) *WSConn {
	return &WSConn{
		conn:    nil, // no real connection for hub tests
		adminID: adminID,
		send:    make(chan []byte, 256),
	}
}

func TestHubRegisterUnregister(t *testing.T) {
	hub := NewHub()
	c := newTestConn("admin-1")

	hub.Register(c)
	if hub.ConnectionCount() != 1 {
		t.Errorf("expected 1 connection, got %d", hub.ConnectionCount())
	}

	hub.Unregister(c)
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections, got %d", hub.ConnectionCount())
	}
}

func TestHubSubscribeUnsubscribe(t *testing.T) {
	hub := NewHub()
	c := newTestConn("admin-1")
	hub.Register(c)
	defer hub.Unregister(c)

	hub.Subscribe(c, "artoo")
	if hub.WorkerSubscriberCount("artoo") != 1 {
		t.Errorf("expected 1 subscriber, got %d", hub.WorkerSubscriberCount("artoo"))
	}

	hub.Unsubscribe(c, "artoo")
	if hub.WorkerSubscriberCount("artoo") != 0 {
		t.Errorf("expected 0 subscribers, got %d", hub.WorkerSubscriberCount("artoo"))
	}
}

func TestHubBroadcastToWorker(t *testing.T) {
	hub := NewHub()
	c1 := newTestConn("admin-1")
	c2 := newTestConn("admin-2")
	c3 := newTestConn("admin-3") // not subscribed

	hub.Register(c1)
	hub.Register(c2)
	hub.Register(c3)
	defer hub.Unregister(c1)
	defer hub.Unregister(c2)
	defer hub.Unregister(c3)

	hub.Subscribe(c1, "artoo")
	hub.Subscribe(c2, "artoo")

	hub.BroadcastToWorker("artoo", WSEvent{
		Type:   service.EventBoardUpdate,
		Worker: "artoo",
		Data:   map[string]int{"turn": 4},
	})

	// c1 and c2 should receive, c3 should not
	select {
	case msg := <-c1.send:
		var event WSEvent
		json.Unmarshal(msg, &event)
		if event.Type != service.EventBoardUpdate {
			t.Errorf("expected board_update, got %s", event.Type)
		}
	case <-time.After(time.Second):
		t.Error("c1 did not receive broadcast")
	}

	select {
	case <-c2.send:
		// ok
	case <-time.After(time.Second):
		t.Error("c2 did not receive broadcast")
	}

	select {
	case <-c3.send:
		t.Error("c3 should not have received broadcast")
	default:
		// ok
	}
}

func TestHubWildcardSubscription(t *testing.T) {
	hub := NewHub()
	c := newTestConn("admin-1")
	hub.Register(c)
	defer hub.Unregister(c)
	hub.Subscribe(c, "*")

	hub.BroadcastToWorker("artoo", WSEvent{Type: service.EventDecision, Worker: "artoo"})

	select {
	case msg := <-c.send:
		var event WSEvent
		json.Unmarshal(msg, &event)
		if event.Worker != "artoo" {
			t.Errorf("expected worker artoo, got %s", event.Worker)
		}
	case <-time.After(time.Second):
		t.Error("wildcard subscriber did not receive broadcast")
	}
}

func TestHubWildcardNoDoubleDelivery(t *testing.T) {
	hub := NewHub()
	c := newTestConn("admin-1")
	hub.Register(c)
	defer hub.Unregister(c)
	hub.Subscribe(c, "artoo")
	hub.Subscribe(c, "*")

	hub.BroadcastToWorker("artoo", WSEvent{Type: service.EventDecision, Worker: "artoo"})

	<-c.send
	select {
	case <-c.send:
		t.Error("expected a single delivery for doubly-subscribed connection")
	default:
		// ok
	}
}

func TestHubUnregisterCleansUpSubscriptions(t *testing.T) {
	hub := NewHub()
	c := newTestConn("admin-1")
	hub.Register(c)
	hub.Subscribe(c, "artoo")
	hub.Subscribe(c, "threepio")

	hub.Unregister(c)

	if hub.WorkerSubscriberCount("artoo") != 0 {
		t.Errorf("expected 0 subscribers for artoo after unregister")
	}
	if hub.WorkerSubscriberCount("threepio") != 0 {
		t.Errorf("expected 0 subscribers for threepio after unregister")
	}
}

func TestHubConcurrentAccess(t *testing.T) {
	hub := NewHub()
	var wg sync.WaitGroup

	// Concurrently register, subscribe, broadcast, unregister
	for i := range 50 {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			c := newTestConn("admin")
			hub.Register(c)
			hub.Subscribe(c, "artoo")
			hub.BroadcastToWorker("artoo", WSEvent{Type: "test", Worker: "artoo"})
			hub.Unsubscribe(c, "artoo")
			hub.Unregister(c)
		}(i)
	}

	wg.Wait()
	if hub.ConnectionCount() != 0 {
		t.Errorf("expected 0 connections after concurrent test, got %d", hub.ConnectionCount())
	}
}

func TestBroadcastWorkerEventRouting(t *testing.T) {
	hub := NewHub()
	subscribed := newTestConn("admin-1")
	bystander := newTestConn("admin-2")

	hub.Register(subscribed)
	hub.Register(bystander)
	defer hub.Unregister(subscribed)
	defer hub.Unregister(bystander)
	hub.Subscribe(subscribed, "artoo")

	// Board updates only reach subscribers.
	hub.BroadcastWorkerEvent("artoo", service.EventBoardUpdate, map[string]int{"turn": 2})
	select {
	case <-subscribed.send:
		// ok
	case <-time.After(time.Second):
		t.Error("subscriber did not receive board update")
	}
	select {
	case <-bystander.send:
		t.Error("bystander should not receive board updates")
	default:
		// ok
	}

	// Status changes reach everyone.
	hub.BroadcastWorkerEvent("artoo", service.EventStatusChange, map[string]string{"state": "playing"})
	for _, c := range []*WSConn{subscribed, bystander} {
		select {
		case msg := <-c.send:
			var event WSEvent
			json.Unmarshal(msg, &event)
			if event.Type != service.EventStatusChange || event.Worker != "artoo" {
				t.Errorf("unexpected event: %+v", event)
			}
		case <-time.After(time.Second):
			t.Error("connection did not receive status change")
		}
	}
}

func TestWSEventSerialization(t *testing.T) {
	event := WSEvent{
		Type:   service.EventGameEnded,
		Worker: "artoo",
		Data:   map[string]any{"opponent": "vader", "bot_won": true},
	}

	data, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var parsed WSEvent
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if parsed.Type != service.EventGameEnded {
		t.Errorf("expected game_ended, got %s", parsed.Type)
	}
	if parsed.Worker != "artoo" {
		t.Errorf("expected artoo, got %s", parsed.Worker)
	}
}

func TestClientMessageSerialization(t *testing.T) {
	msg := ClientMessage{Action: "subscribe", Worker: "artoo"}
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var parsed ClientMessage
	json.Unmarshal(data, &parsed)
	if parsed.Action != "subscribe" {
		t.Errorf("expected subscribe, got %s", parsed.Action)
	}
	if parsed.Worker != "artoo" {
		t.Errorf("expected artoo, got %s", parsed.Worker)
	}
}
