package discord

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "insignia_discord_requests_total",
			Help: "Total number of Discord API requests by route and status",
		},
		[]string{"route", "status"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "insignia_discord_request_duration_seconds",
			Help:    "Discord API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)
)

// observe records one finished call. status is the HTTP code or "error".
func observe(route, status string, start time.Time) {
	requestsTotal.WithLabelValues(route, status).Inc()
	requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
}
