package web

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"gree-ir-home/internal/climate"
)

func newTestHub() *WSHub {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewWSHub(logger)
}

func TestWSHubRegisterUnregister(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	client := &wsClient{send: make(chan []byte, 16)}
	hub.register <- client

	// Give hub time to process
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	count := len(hub.clients)
	hub.mu.RUnlock()
	if count != 1 {
		t.Errorf("after register: count = %d, want 1", count)
	}

	hub.unregister <- client

	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	count = len(hub.clients)
	hub.mu.RUnlock()
	if count != 0 {
		t.Errorf("after unregister: count = %d, want 0", count)
	}
}

func TestWSHubBroadcastEvent(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	client := &wsClient{send: make(chan []byte, 16)}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Broadcast(climate.Event{
		Type: climate.EventStateChange,
		Data: map[string]interface{}{"unit": "bedroom", "mode": "cool"},
	})
	time.Sleep(10 * time.Millisecond)

	select {
	case msg := <-client.send:
		if len(msg) == 0 {
			t.Error("received empty message")
		}
	default:
		t.Error("client did not receive broadcast")
	}
}

func TestWSHubSlowClientEviction(t *testing.T) {
	hub := newTestHub()
	go hub.Run()
	defer hub.Stop()

	slow := &wsClient{send: make(chan []byte, 1)}
	fast := &wsClient{send: make(chan []byte, 64)}

	hub.register <- slow
	hub.register <- fast
	time.Sleep(10 * time.Millisecond)

	// Fill slow client's buffer
	hub.Broadcast("msg1")
	time.Sleep(10 * time.Millisecond)

	// Second message should evict the slow client
	hub.Broadcast("msg2")
	time.Sleep(10 * time.Millisecond)

	hub.mu.RLock()
	_, slowPresent := hub.clients[slow]
	_, fastPresent := hub.clients[fast]
	hub.mu.RUnlock()

	if slowPresent {
		t.Error("slow client should have been evicted")
	}
	if !fastPresent {
		t.Error("fast client should still be present")
	}
}

func TestWSHubStopIdempotent(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	hub.Stop()

	defer func() {
		if r := recover(); r != nil {
			t.Errorf("second Stop() panicked: %v", r)
		}
	}()
	hub.Stop()
}

func TestWSHubStopClosesClients(t *testing.T) {
	hub := newTestHub()
	go hub.Run()

	client := &wsClient{send: make(chan []byte, 16)}
	hub.register <- client
	time.Sleep(10 * time.Millisecond)

	hub.Stop()
	time.Sleep(10 * time.Millisecond)

	_, ok := <-client.send
	if ok {
		t.Error("client.send should be closed after hub stop")
	}
}
