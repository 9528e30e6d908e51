package core

import "github.com/prometheus/client_golang/prometheus"

// MetricsRegistry builds the daemon's registry from every plugin's
// collectors plus host-level collectors such as the auth metrics.
func MetricsRegistry(plugins []Plugin, host ...prometheus.Collector) *prometheus.Registry {
	registry := prometheus.NewRegistry()

	for _, plugin := range plugins {
		for _, collector := range plugin.Collectors() {
			registry.MustRegister(collector)
		}
	}
	for _, collector := range host {
		registry.MustRegister(collector)
	}

	return registry
}
