package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gitlab.com/lologarithm/spa/spa"
)

type metrics struct {
	reg      *prometheus.Registry
	presses  *prometheus.CounterVec
	runs     *prometheus.CounterVec
	duration prometheus.Histogram
	busy     prometheus.Gauge
	temps    *prometheus.GaugeVec
}

func newMetrics() *metrics {
	m := &metrics{
		reg: prometheus.NewRegistry(),
		presses: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spa_presses_total",
				Help: "Button presses sent to the spa, by entity and result",
			},
			[]string{"entity", "result"},
		),
		runs: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "spa_converge_runs_total",
				Help: "Set temperature runs, by outcome",
			},
			[]string{"outcome"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "spa_converge_duration_seconds",
				Help:    "Duration of set temperature runs",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 40, 80},
			},
		),
		busy: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "spa_busy",
			Help: "1 while a press or set temperature run is in flight",
		}),
		temps: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "spa_temperature",
				Help: "Latest temperature readings by entity",
			},
			[]string{"entity"},
		),
	}
	m.reg.MustRegister(m.presses, m.runs, m.duration, m.busy, m.temps)
	return m
}

func (m *metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{})
}

func (m *metrics) press(a spa.Action, err error) {
	result := "ok"
	if err != nil {
		result = "failed"
	}
	m.presses.WithLabelValues(a.EntityID, result).Inc()
}

func (m *metrics) result(r spa.Result) {
	m.runs.WithLabelValues(r.Outcome.String()).Inc()
	m.duration.Observe(r.Duration.Seconds())
}

func (m *metrics) setBusy(busy bool) {
	if busy {
		m.busy.Set(1)
	} else {
		m.busy.Set(0)
	}
}

// reading tracks numeric entity values, unreadable ones are dropped.
func (m *metrics) reading(st spa.EntityState) {
	if v, ok := spa.Number(st, true); ok {
		m.temps.WithLabelValues(st.ID).Set(v)
	} else {
		m.temps.DeleteLabelValues(st.ID)
	}
}
