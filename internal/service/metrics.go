package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var dragResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "insignia_drag_results_total",
	Help: "Per-user drag results by outcome.",
}, []string{"outcome"})
