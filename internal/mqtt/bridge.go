// Package mqtt exposes the configured AC units to a host automation
// platform over MQTT with Home Assistant autodiscovery.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"gree-ir-home/internal/climate"
	"gree-ir-home/internal/gree"
)

// Config holds MQTT bridge configuration.
type Config struct {
	Broker          string
	Username        string
	Password        string
	TopicPrefix     string
	DiscoveryPrefix string
}

// Unit binds a controller to its optional external temperature sensor feed.
type Unit struct {
	Controller  *climate.Controller
	SensorTopic string // current-temperature source, empty = none
}

// Bridge connects the climate controllers to MQTT with HA autodiscovery.
type Bridge struct {
	client    pahomqtt.Client
	units     map[string]*Unit
	prefix    string
	discovery string
	logger    *slog.Logger
	events    *climate.EventBus
	unsub     func()
}

// NewBridge creates and connects an MQTT bridge.
func NewBridge(units []*Unit, events *climate.EventBus, cfg Config, logger *slog.Logger) (*Bridge, error) {
	b := &Bridge{
		units:     make(map[string]*Unit, len(units)),
		prefix:    cfg.TopicPrefix,
		discovery: cfg.DiscoveryPrefix,
		logger:    logger.With("component", "mqtt"),
		events:    events,
	}
	if b.discovery == "" {
		b.discovery = "homeassistant"
	}
	for _, u := range units {
		b.units[u.Controller.ID()] = u
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID("gree-ir-home").
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(cfg.TopicPrefix+"/bridge/state", "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			b.logger.Info("MQTT connected")
			b.publishBridgeState("online")
			b.publishAllDiscovery()
			b.subscribeCommands()
			b.subscribeSensors()
			b.publishAllStates()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			b.logger.Warn("MQTT connection lost", "err", err)
		})

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("mqtt connect timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect: %w", err)
	}

	b.client = client
	return b, nil
}

// Start subscribes to controller events and begins MQTT publishing.
func (b *Bridge) Start() {
	b.unsub = b.events.On(climate.EventStateChange, b.handleStateChange)
	b.logger.Info("MQTT bridge started", "prefix", b.prefix, "units", len(b.units))
}

// Stop publishes offline state, unsubscribes, and disconnects.
func (b *Bridge) Stop() {
	if b.unsub != nil {
		b.unsub()
	}
	b.publishBridgeState("offline")
	b.client.Disconnect(1000)
	b.logger.Info("MQTT bridge stopped")
}

func (b *Bridge) handleStateChange(event climate.Event) {
	data, ok := event.Data.(map[string]interface{})
	if !ok {
		return
	}
	id, _ := data["unit"].(string)
	if _, known := b.units[id]; !known {
		return
	}
	b.publishState(id)
}

func (b *Bridge) publishState(id string) {
	u, ok := b.units[id]
	if !ok {
		return
	}
	payload := mustJSON(stateJSON(u.Controller))
	b.publish(b.stateTopic(id), payload, true)
}

func (b *Bridge) publishAllStates() {
	for id := range b.units {
		b.publishState(id)
	}
}

func (b *Bridge) publishBridgeState(state string) {
	b.publish(b.prefix+"/bridge/state", []byte(state), true)
}

func (b *Bridge) publishAllDiscovery() {
	for _, u := range b.units {
		msg := buildDiscovery(u.Controller, b.prefix, b.discovery)
		b.publish(msg.Topic, msg.Payload, true)
		b.logger.Info("published HA discovery", "unit", u.Controller.ID(), "name", u.Controller.Name())
	}
}

func (b *Bridge) subscribeCommands() {
	for id, u := range b.units {
		for _, dim := range []string{"mode", "temperature", "fan", "swing", "power"} {
			topic := b.commandTopic(id, dim)
			unit, dimension := u, dim
			b.client.Subscribe(topic, 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
				b.handleCommand(unit, dimension, msg.Payload())
			})
		}
	}
}

func (b *Bridge) subscribeSensors() {
	for _, u := range b.units {
		if u.SensorTopic == "" {
			continue
		}
		unit := u
		b.client.Subscribe(u.SensorTopic, 0, func(_ pahomqtt.Client, msg pahomqtt.Message) {
			b.handleSensorReport(unit, msg.Payload())
		})
	}
}

// handleCommand applies one command-topic message to the controller.
// Invalid tokens are rejected without any state change.
func (b *Bridge) handleCommand(u *Unit, dimension string, payload []byte) {
	ctx, cancel := contextWithTimeout()
	defer cancel()

	id := u.Controller.ID()
	value := strings.TrimSpace(string(payload))

	var err error
	switch dimension {
	case "mode":
		var mode gree.Mode
		if mode, err = gree.ParseMode(value); err == nil {
			err = u.Controller.SetMode(ctx, mode)
		}
	case "temperature":
		var temp float64
		if temp, err = strconv.ParseFloat(value, 64); err == nil {
			err = u.Controller.SetTemperature(ctx, int(temp+0.5))
		}
	case "fan":
		var fan gree.FanSpeed
		if fan, err = gree.ParseFanSpeed(value); err == nil {
			err = u.Controller.SetFanSpeed(ctx, fan)
		}
	case "swing":
		var swing gree.Swing
		if swing, err = gree.ParseSwing(value); err == nil {
			err = u.Controller.SetSwing(ctx, swing)
		}
	case "power":
		switch strings.ToUpper(value) {
		case "ON":
			err = u.Controller.TurnOn(ctx)
		case "OFF":
			err = u.Controller.TurnOff(ctx)
		default:
			err = fmt.Errorf("unknown power command %q", value)
		}
	}

	if err != nil {
		b.logger.Warn("command failed", "unit", id, "dimension", dimension, "value", value, "err", err)
	}
}

func (b *Bridge) handleSensorReport(u *Unit, payload []byte) {
	value, err := strconv.ParseFloat(strings.TrimSpace(string(payload)), 64)
	if err != nil {
		b.logger.Warn("invalid sensor payload", "unit", u.Controller.ID(), "payload", string(payload))
		return
	}
	u.Controller.SetCurrentTemperature(value)
}

func (b *Bridge) publish(topic string, payload []byte, retained bool) {
	token := b.client.Publish(topic, 1, retained, payload)
	go func() {
		if !token.WaitTimeout(5 * time.Second) {
			b.logger.Warn("MQTT publish timeout", "topic", topic)
		} else if err := token.Error(); err != nil {
			b.logger.Warn("MQTT publish error", "topic", topic, "err", err)
		}
	}()
}

func (b *Bridge) stateTopic(id string) string {
	return b.prefix + "/" + id
}

func (b *Bridge) commandTopic(id, dimension string) string {
	return b.prefix + "/" + id + "/" + dimension + "/set"
}

// stateJSON builds the retained state document for a unit.
func stateJSON(c *climate.Controller) map[string]interface{} {
	snap := c.Snapshot()
	state := map[string]interface{}{
		"mode":        snap.Mode.String(),
		"power":       snap.Mode != gree.ModeOff,
		"temperature": snap.Temperature,
		"fan":         snap.Fan.String(),
	}
	if snap.SwingEnabled {
		state["swing"] = snap.Swing.String()
	}
	if snap.CurrentTemperature != nil {
		state["current_temperature"] = *snap.CurrentTemperature
	}
	return state
}

func contextWithTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func mustJSON(v interface{}) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		return []byte("{}")
	}
	return data
}
