// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	relayAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camproxy_relay_attempts_total",
		Help: "Strategy attempts against devices by outcome",
	}, []string{"strategy", "result"}) // result=success|rejected|timeout|unreachable|protocol|upstream_status|canceled

	relayResolutions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camproxy_relay_resolutions_total",
		Help: "Completed resolutions by final result and deciding strategy",
	}, []string{"result", "strategy"})

	relayResolutionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "camproxy_relay_resolution_duration_seconds",
		Help:    "Wall time of a full strategy cascade",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 15, 30, 45},
	}, []string{"result"})

	upstreamSlotsInUse = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "camproxy_upstream_slots_in_use",
		Help: "Resolutions currently holding an upstream concurrency slot",
	})

	mediaSanitized = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "camproxy_media_sanitized_total",
		Help: "Sanitizer decisions on relayed bodies",
	}, []string{"action"}) // action=clean|stripped|unrecognized

	mediaStrippedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "camproxy_media_stripped_bytes_total",
		Help: "Total garbage-prefix bytes removed before forwarding",
	})
)

// RecordAttempt counts one strategy attempt.
func RecordAttempt(strategy, result string) {
	relayAttempts.WithLabelValues(strategy, result).Inc()
}

// ObserveResolution records the final result of a cascade.
func ObserveResolution(result, strategy string, d time.Duration) {
	relayResolutions.WithLabelValues(result, strategy).Inc()
	relayResolutionDuration.WithLabelValues(result).Observe(d.Seconds())
}

// UpstreamSlotAcquired and UpstreamSlotReleased track the concurrency gate.
func UpstreamSlotAcquired() { upstreamSlotsInUse.Inc() }
func UpstreamSlotReleased() { upstreamSlotsInUse.Dec() }

// RecordSanitize counts a sanitizer decision and the bytes it dropped.
func RecordSanitize(action string, stripped int) {
	mediaSanitized.WithLabelValues(action).Inc()
	if stripped > 0 {
		mediaStrippedBytes.Add(float64(stripped))
	}
}
