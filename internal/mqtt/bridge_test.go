package mqtt

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"sync"
	"testing"

	"gree-ir-home/internal/climate"
	"gree-ir-home/internal/gree"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

type nullTransmitter struct {
	mu   sync.Mutex
	sent int
}

func (n *nullTransmitter) Transmit(context.Context, []byte) error {
	n.mu.Lock()
	n.sent++
	n.mu.Unlock()
	return nil
}

func (n *nullTransmitter) Close() error { return nil }

func (n *nullTransmitter) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent
}

func newTestUnit(t *testing.T, id string, swing bool) (*Unit, *nullTransmitter) {
	t.Helper()
	tx := &nullTransmitter{}
	events := climate.NewEventBus(testLogger())
	c := climate.New(climate.Config{ID: id, Name: "Test " + id, SwingEnabled: swing}, tx, events, nil, testLogger())
	c.Start()
	t.Cleanup(c.Stop)
	return &Unit{Controller: c}, tx
}

func newTestBridge(t *testing.T, units ...*Unit) *Bridge {
	t.Helper()
	b := &Bridge{
		units:     make(map[string]*Unit, len(units)),
		prefix:    "greeac",
		discovery: "homeassistant",
		logger:    testLogger(),
	}
	for _, u := range units {
		b.units[u.Controller.ID()] = u
	}
	return b
}

func TestDiscoveryClimate(t *testing.T) {
	u, _ := newTestUnit(t, "living_room", false)

	msg := buildDiscovery(u.Controller, "greeac", "homeassistant")
	if msg.Topic != "homeassistant/climate/gree_living_room/config" {
		t.Errorf("topic = %q", msg.Topic)
	}

	var payload haClimate
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}

	if payload.Name != "Test living_room" {
		t.Errorf("name = %q", payload.Name)
	}
	if payload.UniqueID != "gree_living_room" {
		t.Errorf("unique_id = %q", payload.UniqueID)
	}
	if payload.MinTemp != 16 || payload.MaxTemp != 30 {
		t.Errorf("temp range = %d..%d, want 16..30", payload.MinTemp, payload.MaxTemp)
	}
	if len(payload.Modes) != 6 {
		t.Errorf("modes = %v", payload.Modes)
	}
	if len(payload.FanModes) != 4 {
		t.Errorf("fan_modes = %v", payload.FanModes)
	}
	if payload.ModeCommandTopic != "greeac/living_room/mode/set" {
		t.Errorf("mode_command_topic = %q", payload.ModeCommandTopic)
	}
	if payload.ModeStateTopic != "greeac/living_room" {
		t.Errorf("mode_state_topic = %q", payload.ModeStateTopic)
	}
	if payload.AvailabilityTopic != "greeac/bridge/state" {
		t.Errorf("availability_topic = %q", payload.AvailabilityTopic)
	}

	// Swing omitted for units without the capability.
	if len(payload.SwingModes) != 0 || payload.SwingModeCommandTopic != "" {
		t.Errorf("swing advertised without capability: %v", payload.SwingModes)
	}
}

func TestDiscoveryClimateWithSwing(t *testing.T) {
	u, _ := newTestUnit(t, "bedroom", true)

	msg := buildDiscovery(u.Controller, "greeac", "homeassistant")
	var payload haClimate
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		t.Fatal(err)
	}

	if len(payload.SwingModes) != 4 {
		t.Errorf("swing_modes = %v", payload.SwingModes)
	}
	if payload.SwingModeCommandTopic != "greeac/bedroom/swing/set" {
		t.Errorf("swing_mode_command_topic = %q", payload.SwingModeCommandTopic)
	}
}

func TestHandleCommandMode(t *testing.T) {
	u, tx := newTestUnit(t, "u", false)
	b := newTestBridge(t, u)

	b.handleCommand(u, "mode", []byte("cool"))

	if got := u.Controller.Snapshot().Mode; got != gree.ModeCool {
		t.Errorf("mode = %s, want cool", got)
	}
	if tx.count() != 1 {
		t.Errorf("transmit count = %d, want 1", tx.count())
	}
}

func TestHandleCommandTemperatureFractional(t *testing.T) {
	u, _ := newTestUnit(t, "u", false)
	b := newTestBridge(t, u)

	// HA publishes temperatures as floats.
	b.handleCommand(u, "temperature", []byte("21.5"))

	if got := u.Controller.Snapshot().Temperature; got != 22 {
		t.Errorf("temperature = %d, want 22", got)
	}
}

func TestHandleCommandInvalidFanToken(t *testing.T) {
	u, tx := newTestUnit(t, "u", false)
	b := newTestBridge(t, u)

	before := u.Controller.Snapshot()
	b.handleCommand(u, "fan", []byte("turbo"))

	after := u.Controller.Snapshot()
	if after.Fan != before.Fan {
		t.Errorf("fan changed by invalid token: %s", after.Fan)
	}
	if tx.count() != 0 {
		t.Errorf("transmit count = %d, want 0", tx.count())
	}
}

func TestHandleCommandPower(t *testing.T) {
	u, _ := newTestUnit(t, "u", false)
	b := newTestBridge(t, u)

	b.handleCommand(u, "power", []byte("ON"))
	if got := u.Controller.Snapshot().Mode; got != gree.ModeCool {
		t.Errorf("mode after power ON = %s, want cool", got)
	}

	b.handleCommand(u, "power", []byte("OFF"))
	if got := u.Controller.Snapshot().Mode; got != gree.ModeOff {
		t.Errorf("mode after power OFF = %s, want off", got)
	}
}

func TestHandleSensorReport(t *testing.T) {
	u, _ := newTestUnit(t, "u", false)
	b := newTestBridge(t, u)

	b.handleSensorReport(u, []byte("23.4"))

	snap := u.Controller.Snapshot()
	if snap.CurrentTemperature == nil || *snap.CurrentTemperature != 23.4 {
		t.Errorf("current_temperature = %v, want 23.4", snap.CurrentTemperature)
	}

	// Garbage payloads are ignored.
	b.handleSensorReport(u, []byte("not-a-number"))
	snap = u.Controller.Snapshot()
	if snap.CurrentTemperature == nil || *snap.CurrentTemperature != 23.4 {
		t.Errorf("current_temperature clobbered: %v", snap.CurrentTemperature)
	}
}

func TestStateJSON(t *testing.T) {
	u, _ := newTestUnit(t, "u", true)

	if err := u.Controller.SetMode(context.Background(), gree.ModeHeat); err != nil {
		t.Fatal(err)
	}
	u.Controller.SetCurrentTemperature(19.5)

	state := stateJSON(u.Controller)
	if state["mode"] != "heat" || state["power"] != true {
		t.Errorf("state = %v", state)
	}
	if state["current_temperature"] != 19.5 {
		t.Errorf("current_temperature = %v", state["current_temperature"])
	}
	if _, ok := state["swing"]; !ok {
		t.Error("swing missing for swing-capable unit")
	}
}
