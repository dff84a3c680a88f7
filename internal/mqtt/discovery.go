package mqtt

import (
	"fmt"

	"gree-ir-home/internal/climate"
	"gree-ir-home/internal/gree"
)

// discoveryMsg is a Home Assistant MQTT discovery payload.
type discoveryMsg struct {
	Topic   string // e.g. "homeassistant/climate/gree_living_room/config"
	Payload []byte // JSON, empty means delete
}

// haDevice is the "device" block in HA discovery.
type haDevice struct {
	Identifiers  []string `json:"identifiers"`
	Manufacturer string   `json:"manufacturer,omitempty"`
	Model        string   `json:"model,omitempty"`
	Name         string   `json:"name"`
}

// haClimate is the HA MQTT climate discovery payload.
type haClimate struct {
	Name                    string   `json:"name"`
	UniqueID                string   `json:"unique_id"`
	AvailabilityTopic       string   `json:"availability_topic"`
	Modes                   []string `json:"modes"`
	FanModes                []string `json:"fan_modes"`
	SwingModes              []string `json:"swing_modes,omitempty"`
	MinTemp                 int      `json:"min_temp"`
	MaxTemp                 int      `json:"max_temp"`
	TempStep                float64  `json:"temp_step"`
	ModeCommandTopic        string   `json:"mode_command_topic"`
	ModeStateTopic          string   `json:"mode_state_topic"`
	ModeStateTemplate       string   `json:"mode_state_template"`
	TemperatureCommandTopic string   `json:"temperature_command_topic"`
	TemperatureStateTopic   string   `json:"temperature_state_topic"`
	TemperatureStateTmpl    string   `json:"temperature_state_template"`
	FanModeCommandTopic     string   `json:"fan_mode_command_topic"`
	FanModeStateTopic       string   `json:"fan_mode_state_topic"`
	FanModeStateTemplate    string   `json:"fan_mode_state_template"`
	SwingModeCommandTopic   string   `json:"swing_mode_command_topic,omitempty"`
	SwingModeStateTopic     string   `json:"swing_mode_state_topic,omitempty"`
	SwingModeStateTemplate  string   `json:"swing_mode_state_template,omitempty"`
	PowerCommandTopic       string   `json:"power_command_topic,omitempty"`
	CurrentTemperatureTopic string   `json:"current_temperature_topic,omitempty"`
	CurrentTemperatureTmpl  string   `json:"current_temperature_template,omitempty"`
	Device                  haDevice `json:"device"`
}

var haModes = []string{"off", "heat", "cool", "dry", "fan_only", "auto"}

var haFanModes = []string{
	gree.FanAuto.String(), gree.FanMax.String(), gree.FanMed.String(), gree.FanMin.String(),
}

var haSwingModes = []string{
	gree.SwingOff.String(), gree.SwingVertical.String(), gree.SwingHorizontal.String(), gree.SwingBoth.String(),
}

// nodeID returns the unique identifier used in HA discovery topics.
func nodeID(c *climate.Controller) string {
	return "gree_" + c.ID()
}

// buildDiscovery generates the HA climate discovery message for a unit.
func buildDiscovery(c *climate.Controller, prefix, discoveryPrefix string) discoveryMsg {
	id := c.ID()
	node := nodeID(c)
	stateTopic := prefix + "/" + id
	avail := prefix + "/bridge/state"

	payload := haClimate{
		Name:                    c.Name(),
		UniqueID:                node,
		AvailabilityTopic:       avail,
		Modes:                   haModes,
		FanModes:                haFanModes,
		MinTemp:                 gree.MinTemp,
		MaxTemp:                 gree.MaxTemp,
		TempStep:                1,
		ModeCommandTopic:        prefix + "/" + id + "/mode/set",
		ModeStateTopic:          stateTopic,
		ModeStateTemplate:       "{{ value_json.mode }}",
		TemperatureCommandTopic: prefix + "/" + id + "/temperature/set",
		TemperatureStateTopic:   stateTopic,
		TemperatureStateTmpl:    "{{ value_json.temperature }}",
		FanModeCommandTopic:     prefix + "/" + id + "/fan/set",
		FanModeStateTopic:       stateTopic,
		FanModeStateTemplate:    "{{ value_json.fan }}",
		PowerCommandTopic:       prefix + "/" + id + "/power/set",
		CurrentTemperatureTopic: stateTopic,
		CurrentTemperatureTmpl:  "{{ value_json.current_temperature }}",
		Device: haDevice{
			Identifiers:  []string{node},
			Manufacturer: "Gree",
			Model:        "Gree Air Conditioner",
			Name:         c.Name(),
		},
	}

	if c.SwingEnabled() {
		payload.SwingModes = haSwingModes
		payload.SwingModeCommandTopic = prefix + "/" + id + "/swing/set"
		payload.SwingModeStateTopic = stateTopic
		payload.SwingModeStateTemplate = "{{ value_json.swing }}"
	}

	topic := fmt.Sprintf("%s/climate/%s/config", discoveryPrefix, node)
	return discoveryMsg{Topic: topic, Payload: mustJSON(payload)}
}
