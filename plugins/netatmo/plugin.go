package netatmo

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/joshp123/intercomd/internal/auth"
	"github.com/joshp123/intercomd/internal/core"
	"github.com/prometheus/client_golang/prometheus"
)

//go:embed dashboard.json
var dashboardJSON []byte

// Plugin wires the Netatmo intercom client into the intercomd plugin
// contract: discovery cache, momentary switch state, HTTP surface, metrics.
type Plugin struct {
	client *Client
	board  *Switchboard

	mu         sync.Mutex
	doors      []DoorModule
	discovered bool

	health        core.HealthStatus
	healthMessage string
}

func NewPlugin(cfg Config, manager *auth.Manager, resetDelay time.Duration) *Plugin {
	client, err := NewClient(cfg, manager)
	if err != nil {
		return &Plugin{health: core.HealthError, healthMessage: err.Error()}
	}

	return &Plugin{
		client: client,
		board:  NewSwitchboard(resetDelay),
		health: core.HealthHealthy,
	}
}

func (p *Plugin) ID() string {
	return "netatmo"
}

func (p *Plugin) Manifest() core.Manifest {
	return core.Manifest{
		PluginID:    "netatmo",
		DisplayName: "Netatmo Video Intercom",
		Version:     "0.1.0",
	}
}

func (p *Plugin) Dashboards() []core.Dashboard {
	return []core.Dashboard{{Name: "netatmo-doors", JSON: dashboardJSON}}
}

func (p *Plugin) Collectors() []prometheus.Collector {
	if p.client == nil {
		return nil
	}
	collectors := []prometheus.Collector{NewMetricsCollector(p.client)}
	return append(collectors, openDoorCollectors()...)
}

func (p *Plugin) Health() core.HealthStatus {
	return p.health
}

func (p *Plugin) HealthMessage() string {
	return p.healthMessage
}

// Switchboard exposes the momentary state tracker, e.g. for the MQTT bridge.
func (p *Plugin) Switchboard() *Switchboard {
	return p.board
}

// Discover refreshes the cached door list from the account topology.
func (p *Plugin) Discover(ctx context.Context) ([]DoorModule, error) {
	if p.client == nil {
		return nil, fmt.Errorf("netatmo unavailable: %s", p.healthMessage)
	}

	doors, err := p.client.DoorModules(ctx)
	if err != nil {
		return nil, err
	}
	if len(doors) == 0 {
		slog.Warn("no door modules found in netatmo account")
	}

	p.mu.Lock()
	p.doors = doors
	p.discovered = true
	p.mu.Unlock()
	return doors, nil
}

// Doors returns the cached door list, discovering on first use. An account
// with zero doors is still a completed discovery and stays cached.
func (p *Plugin) Doors(ctx context.Context) ([]DoorModule, error) {
	p.mu.Lock()
	doors := p.doors
	discovered := p.discovered
	p.mu.Unlock()
	if discovered {
		return doors, nil
	}
	return p.Discover(ctx)
}

// Open releases the door with the given module id and trips its momentary
// switch.
func (p *Plugin) Open(ctx context.Context, moduleID string) error {
	doors, err := p.Doors(ctx)
	if err != nil {
		return err
	}

	for _, door := range doors {
		if door.ModuleID != moduleID {
			continue
		}
		if err := p.client.OpenDoor(ctx, door.HomeID, door.Timezone, door.BridgeID, door.ModuleID); err != nil {
			openDoorFailure.Inc()
			return err
		}
		openDoorSuccess.Inc()
		p.board.Trip(door.ModuleID)
		slog.Info("opened door", "module_id", door.ModuleID, "module_name", door.ModuleName, "home", door.HomeName)
		return nil
	}

	return fmt.Errorf("unknown door module %q", moduleID)
}
