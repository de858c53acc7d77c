package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	routes      *prometheus.CounterVec
	lookups     *prometheus.CounterVec
	writeErrors prometheus.Counter
	fallbacks   prometheus.Counter
	state       *prometheus.GaugeVec
}

// newMetrics registers the controller collectors with reg.
// A nil reg yields working but unregistered collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		routes: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offlinecache",
			Name:      "requests_total",
			Help:      "Intercepted requests by route and policy.",
		}, []string{"route", "policy"}),
		lookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "offlinecache",
			Name:      "lookups_total",
			Help:      "Cache lookups by result.",
		}, []string{"result"}),
		writeErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: "offlinecache",
			Name:      "write_errors_total",
			Help:      "Cache writes that failed and were skipped.",
		}),
		fallbacks: f.NewCounter(prometheus.CounterOpts{
			Namespace: "offlinecache",
			Name:      "navigation_fallbacks_total",
			Help:      "Navigations answered from the cached document index.",
		}),
		state: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "offlinecache",
			Name:      "state",
			Help:      "Lifecycle state of the controller, 1 for the current state.",
		}, []string{"version", "state"}),
	}
}

var allStates = []State{StateNew, StateInstalling, StateIdle, StateActivating, StateActive, StateRedundant}

func (m *metrics) setState(version string, s State) {
	for _, st := range allStates {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(version, string(st)).Set(v)
	}
}
