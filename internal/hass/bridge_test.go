package hass

import (
	"encoding/json"
	"testing"

	"github.com/joshp123/intercomd/plugins/netatmo"
)

var door = netatmo.DoorModule{
	HomeID:     "H1",
	HomeName:   "Main Street",
	Timezone:   "Europe/Paris",
	BridgeID:   "70:ee:50:00:00:01",
	ModuleID:   "70:ee:50:00:00:02",
	ModuleName: "Front Door",
}

func TestSanitizeID(t *testing.T) {
	if got := sanitizeID("70:ee:50/ab#c"); got != "70_ee_50_ab_c" {
		t.Fatalf("unexpected sanitized id: %s", got)
	}
}

func TestTopics(t *testing.T) {
	if got := commandTopic("intercomd", door.ModuleID); got != "intercomd/door/70_ee_50_00_00_02/set" {
		t.Fatalf("unexpected command topic: %s", got)
	}
	if got := stateTopic("intercomd", door.ModuleID); got != "intercomd/door/70_ee_50_00_00_02/state" {
		t.Fatalf("unexpected state topic: %s", got)
	}
	if got := discoveryTopic(door); got != "homeassistant/switch/netatmo_door_70_ee_50_00_00_02/config" {
		t.Fatalf("unexpected discovery topic: %s", got)
	}
}

func TestDiscoveryConfig(t *testing.T) {
	cfg := discoveryConfig("intercomd", door)

	if cfg.Name != "Main Street - Front Door" {
		t.Fatalf("unexpected name: %s", cfg.Name)
	}
	if cfg.UniqueID != "netatmo_door_70_ee_50_00_00_02" {
		t.Fatalf("unexpected unique id: %s", cfg.UniqueID)
	}
	if cfg.AvailabilityTopic != "intercomd/status" {
		t.Fatalf("unexpected availability topic: %s", cfg.AvailabilityTopic)
	}
	if cfg.Device.Manufacturer != "Netatmo" || cfg.Device.Model != "Video Intercom Door" {
		t.Fatalf("unexpected device info: %+v", cfg.Device)
	}
	if cfg.Device.ViaDevice != "netatmo_bridge_70_ee_50_00_00_01" {
		t.Fatalf("unexpected via_device: %s", cfg.Device.ViaDevice)
	}

	data, err := json.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if decoded["icon"] != "mdi:door-open" {
		t.Fatalf("unexpected icon: %v", decoded["icon"])
	}
}
