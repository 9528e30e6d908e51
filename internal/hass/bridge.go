// Package hass bridges discovered door switches onto MQTT using Home
// Assistant's discovery convention, so each door shows up as a momentary
// switch entity without any manual configuration.
package hass

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/joshp123/intercomd/plugins/netatmo"
)

const (
	discoveryPrefix = "homeassistant"
	commandTimeout  = 30 * time.Second
)

// DoorService is what the bridge needs from the intercom plugin.
type DoorService interface {
	Doors(ctx context.Context) ([]netatmo.DoorModule, error)
	Open(ctx context.Context, moduleID string) error
	Switchboard() *netatmo.Switchboard
}

// Config for the MQTT connection. Password is the resolved secret.
type Config struct {
	Broker      string
	ClientID    string
	Username    string
	Password    string
	TopicPrefix string
}

// Bridge connects the door service to an MQTT broker.
type Bridge struct {
	cfg    Config
	doors  DoorService
	client mqtt.Client
}

func NewBridge(cfg Config, doors DoorService) *Bridge {
	if cfg.ClientID == "" {
		cfg.ClientID = "intercomd"
	}
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "intercomd"
	}
	return &Bridge{cfg: cfg, doors: doors}
}

// Start connects, announces every discovered door, and serves door-open
// commands until the context is cancelled.
func (b *Bridge) Start(ctx context.Context) error {
	doors, err := b.doors.Doors(ctx)
	if err != nil {
		return fmt.Errorf("discover doors for mqtt bridge: %w", err)
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(b.cfg.Broker)
	opts.SetClientID(b.cfg.ClientID)
	opts.SetUsername(b.cfg.Username)
	opts.SetPassword(b.cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)
	opts.SetWill(b.availabilityTopic(), "offline", 0, true)
	opts.OnConnect = func(client mqtt.Client) {
		b.announce(client, doors)
	}

	client := mqtt.NewClient(opts)
	// OnConnect can fire before Connect returns; the publish helpers need
	// the client in place by then.
	b.client = client
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mqtt connect: %w", token.Error())
	}

	b.doors.Switchboard().OnChange(func(moduleID string, on bool) {
		b.publishState(moduleID, on)
	})

	go func() {
		<-ctx.Done()
		b.publish(b.availabilityTopic(), "offline", true)
		client.Disconnect(250)
	}()

	return nil
}

// announce publishes discovery configs and subscribes command topics. Runs
// on every (re)connect; all publishes are retained or idempotent.
func (b *Bridge) announce(client mqtt.Client, doors []netatmo.DoorModule) {
	b.publish(b.availabilityTopic(), "online", true)

	for _, door := range doors {
		door := door

		payload, err := json.Marshal(discoveryConfig(b.cfg.TopicPrefix, door))
		if err != nil {
			slog.Error("marshal discovery config", "module_id", door.ModuleID, "error", err)
			continue
		}
		b.publishBytes(discoveryTopic(door), payload, true)
		b.publish(stateTopic(b.cfg.TopicPrefix, door.ModuleID), "OFF", false)

		cmdTopic := commandTopic(b.cfg.TopicPrefix, door.ModuleID)
		token := client.Subscribe(cmdTopic, 0, func(_ mqtt.Client, msg mqtt.Message) {
			b.handleCommand(door.ModuleID, msg.Payload())
		})
		if token.Wait() && token.Error() != nil {
			slog.Error("mqtt subscribe failed", "topic", cmdTopic, "error", token.Error())
		}
	}

	slog.Info("announced doors over mqtt", "count", len(doors))
}

func (b *Bridge) handleCommand(moduleID string, payload []byte) {
	command := strings.ToUpper(strings.TrimSpace(string(payload)))
	if command != "ON" {
		// Turning the momentary switch off is a no-op; the switchboard
		// resets it on its own.
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	if err := b.doors.Open(ctx, moduleID); err != nil {
		slog.Error("mqtt door open failed", "module_id", moduleID, "error", err)
	}
}

func (b *Bridge) publishState(moduleID string, on bool) {
	state := "OFF"
	if on {
		state = "ON"
	}
	b.publish(stateTopic(b.cfg.TopicPrefix, moduleID), state, false)
}

func (b *Bridge) publish(topic, payload string, retained bool) {
	b.publishBytes(topic, []byte(payload), retained)
}

func (b *Bridge) publishBytes(topic string, payload []byte, retained bool) {
	if b.client == nil {
		return
	}
	if token := b.client.Publish(topic, 0, retained, payload); token.Wait() && token.Error() != nil {
		slog.Error("mqtt publish failed", "topic", topic, "error", token.Error())
	}
}

func (b *Bridge) availabilityTopic() string {
	return b.cfg.TopicPrefix + "/status"
}

// switchConfig is the Home Assistant MQTT discovery payload for one door.
type switchConfig struct {
	Name              string       `json:"name"`
	UniqueID          string       `json:"unique_id"`
	CommandTopic      string       `json:"command_topic"`
	StateTopic        string       `json:"state_topic"`
	AvailabilityTopic string       `json:"availability_topic"`
	Icon              string       `json:"icon"`
	Device            switchDevice `json:"device"`
}

type switchDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Manufacturer string   `json:"manufacturer"`
	Model        string   `json:"model"`
	ViaDevice    string   `json:"via_device,omitempty"`
}

func discoveryConfig(prefix string, door netatmo.DoorModule) switchConfig {
	name := door.HomeName + " - " + door.ModuleName
	return switchConfig{
		Name:              name,
		UniqueID:          "netatmo_door_" + sanitizeID(door.ModuleID),
		CommandTopic:      commandTopic(prefix, door.ModuleID),
		StateTopic:        stateTopic(prefix, door.ModuleID),
		AvailabilityTopic: prefix + "/status",
		Icon:              "mdi:door-open",
		Device: switchDevice{
			Identifiers:  []string{"netatmo_door_" + sanitizeID(door.ModuleID)},
			Name:         name,
			Manufacturer: "Netatmo",
			Model:        "Video Intercom Door",
			ViaDevice:    "netatmo_bridge_" + sanitizeID(door.BridgeID),
		},
	}
}

func discoveryTopic(door netatmo.DoorModule) string {
	return discoveryPrefix + "/switch/netatmo_door_" + sanitizeID(door.ModuleID) + "/config"
}

func commandTopic(prefix, moduleID string) string {
	return prefix + "/door/" + sanitizeID(moduleID) + "/set"
}

func stateTopic(prefix, moduleID string) string {
	return prefix + "/door/" + sanitizeID(moduleID) + "/state"
}

// sanitizeID keeps module ids (typically MAC-like, with colons) safe for
// topic segments and entity ids.
func sanitizeID(id string) string {
	var out strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out.WriteRune(r)
		default:
			out.WriteByte('_')
		}
	}
	return out.String()
}
