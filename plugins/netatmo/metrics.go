package netatmo

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	openDoorSuccess = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "intercomd_netatmo_open_door_success_total",
		Help: "Successful door release commands",
	})
	openDoorFailure = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "intercomd_netatmo_open_door_failure_total",
		Help: "Failed door release commands",
	})
)

func openDoorCollectors() []prometheus.Collector {
	return []prometheus.Collector{openDoorSuccess, openDoorFailure}
}

// MetricsCollector scrapes the account topology on collection.
type MetricsCollector struct {
	client *Client

	doorModules        *prometheus.GaugeVec
	homesWithoutBridge prometheus.Gauge
	lastSuccess        prometheus.Gauge
	success            prometheus.Gauge
}

func NewMetricsCollector(client *Client) *MetricsCollector {
	return &MetricsCollector{
		client: client,
		doorModules: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "intercomd_netatmo_door_modules",
			Help: "Controllable door modules per home",
		}, []string{"home_id", "home_name"}),
		homesWithoutBridge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "intercomd_netatmo_homes_without_bridge",
			Help: "Homes whose door modules are uncontrollable for lack of a bridge",
		}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "intercomd_netatmo_last_success_timestamp_seconds",
			Help: "Last successful topology scrape timestamp (epoch seconds)",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "intercomd_netatmo_scrape_success",
			Help: "Last scrape success (1=ok, 0=error)",
		}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.doorModules.Describe(ch)
	c.homesWithoutBridge.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.success.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	data, err := c.client.HomesData(ctx)
	if err != nil {
		c.success.Set(0)
		c.collectAll(ch)
		return
	}

	c.doorModules.Reset()
	skipped := 0
	for _, home := range data.Homes {
		if findBridge(home) == "" {
			if countDoors(home) > 0 {
				skipped++
			}
			continue
		}
		c.doorModules.With(prometheus.Labels{
			"home_id":   home.ID,
			"home_name": home.Name,
		}).Set(float64(countDoors(home)))
	}
	c.homesWithoutBridge.Set(float64(skipped))

	c.success.Set(1)
	c.lastSuccess.Set(float64(time.Now().Unix()))
	c.collectAll(ch)
}

func (c *MetricsCollector) collectAll(ch chan<- prometheus.Metric) {
	c.doorModules.Collect(ch)
	c.homesWithoutBridge.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.success.Collect(ch)
}

func countDoors(home Home) int {
	count := 0
	for _, module := range home.Modules {
		if module.Type == moduleTypeDoor {
			count++
		}
	}
	return count
}
