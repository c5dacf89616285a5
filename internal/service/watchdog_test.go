package service

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestWatchdogHandleExpiry(t *testing.T) {
	hub := &recordingBroadcaster{}
	w := NewWatchdog(nil, hub, nil, zerolog.Nop())

	// Only status keys mark a worker offline; board and trace keys expire
	// as part of normal operation.
	w.handleExpiry("worker:artoo:status")
	w.handleExpiry("worker:artoo:board")
	w.handleExpiry("worker:artoo:trace")
	w.handleExpiry("game:123:timer")
	w.handleExpiry("garbage")

	events := hub.eventsOfType(EventWorkerOffline)
	if len(events) != 1 {
		t.Fatalf("expected exactly one offline event, got %d", len(events))
	}
	if events[0].worker != "artoo" {
		t.Errorf("expected worker artoo, got %s", events[0].worker)
	}
}

func TestWatchdogExpiryWorkerNameWithColons(t *testing.T) {
	hub := &recordingBroadcaster{}
	w := NewWatchdog(nil, hub, nil, zerolog.Nop())

	w.handleExpiry("worker:dark:side:status")

	events := hub.eventsOfType(EventWorkerOffline)
	if len(events) != 1 {
		t.Fatalf("expected one offline event, got %d", len(events))
	}
	if events[0].worker != "dark:side" {
		t.Errorf("expected worker name dark:side, got %s", events[0].worker)
	}
}
