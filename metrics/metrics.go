// Package metrics exposes engine activity as Prometheus series:
//
//	gridscalp_ticks_total{account}               ticks run
//	gridscalp_tick_errors_total{account}         ticks that ended with an error
//	gridscalp_tick_seconds{account}              tick duration
//	gridscalp_quote_failures_total{account}      quotes given up on
//	gridscalp_orders_total{account,level,result} orders submitted or rejected
//	gridscalp_rungs_closed_total{account}        rungs closed for profit
//	gridscalp_trailing_hits_total{account}       trailing stops triggered
//	gridscalp_pending_levels{account}            pending levels after the tick
//	gridscalp_live_levels{account}               live averaging positions
//	gridscalp_session_wait_seconds{account}      wait for the broker session
//	gridscalp_loop_round_seconds                 reconciliation round duration
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns its registry so several instances can coexist in tests.
type Metrics struct {
	reg *prometheus.Registry

	ticks         *prometheus.CounterVec
	tickErrors    *prometheus.CounterVec
	tickSeconds   *prometheus.HistogramVec
	quoteFailures *prometheus.CounterVec
	orders        *prometheus.CounterVec
	rungsClosed   *prometheus.CounterVec
	trailingHits  *prometheus.CounterVec
	pending       *prometheus.GaugeVec
	live          *prometheus.GaugeVec
	sessionWait   *prometheus.HistogramVec
	roundSeconds  prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),

		ticks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridscalp_ticks_total",
				Help: "Reconciliation ticks run",
			},
			[]string{"account"},
		),

		tickErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridscalp_tick_errors_total",
				Help: "Ticks that ended with an error",
			},
			[]string{"account"},
		),

		tickSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gridscalp_tick_seconds",
				Help:    "Duration of one account tick",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"account"},
		),

		quoteFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridscalp_quote_failures_total",
				Help: "Ticks aborted because no quote could be fetched",
			},
			[]string{"account"},
		),

		// result: submitted|rejected, level 0 is the entry rung
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridscalp_orders_total",
				Help: "Market orders sent, by level and result",
			},
			[]string{"account", "level", "result"},
		),

		rungsClosed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridscalp_rungs_closed_total",
				Help: "Averaging rungs closed for profit",
			},
			[]string{"account"},
		),

		trailingHits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gridscalp_trailing_hits_total",
				Help: "Virtual trailing stops triggered on the entry rung",
			},
			[]string{"account"},
		),

		pending: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gridscalp_pending_levels",
				Help: "Levels with an unconfirmed averaging order",
			},
			[]string{"account"},
		),

		live: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gridscalp_live_levels",
				Help: "Live averaging positions",
			},
			[]string{"account"},
		),

		sessionWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gridscalp_session_wait_seconds",
				Help:    "Time spent waiting for the exclusive broker session",
				Buckets: prometheus.ExponentialBuckets(0.001, 2, 14),
			},
			[]string{"account"},
		),

		roundSeconds: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gridscalp_loop_round_seconds",
				Help:    "Duration of one reconciliation round over all accounts",
				Buckets: prometheus.DefBuckets,
			},
		),
	}

	m.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m.reg.MustRegister(m.ticks, m.tickErrors, m.tickSeconds, m.quoteFailures)
	m.reg.MustRegister(m.orders, m.rungsClosed, m.trailingHits)
	m.reg.MustRegister(m.pending, m.live, m.sessionWait, m.roundSeconds)
	return m
}

// Registry exposes the registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Handler serves the registry in the text exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) Tick(account string, d time.Duration, err error) {
	m.ticks.WithLabelValues(account).Inc()
	m.tickSeconds.WithLabelValues(account).Observe(d.Seconds())
	if err != nil {
		m.tickErrors.WithLabelValues(account).Inc()
	}
}

func (m *Metrics) QuoteFailed(account string) {
	m.quoteFailures.WithLabelValues(account).Inc()
}

func (m *Metrics) OrderSubmitted(account string, level int) {
	m.orders.WithLabelValues(account, strconv.Itoa(level), "submitted").Inc()
}

func (m *Metrics) OrderRejected(account string, level int) {
	m.orders.WithLabelValues(account, strconv.Itoa(level), "rejected").Inc()
}

func (m *Metrics) RungClosed(account string, _ int) {
	m.rungsClosed.WithLabelValues(account).Inc()
}

func (m *Metrics) TrailingHit(account string) {
	m.trailingHits.WithLabelValues(account).Inc()
}

func (m *Metrics) Levels(account string, pending, live int) {
	m.pending.WithLabelValues(account).Set(float64(pending))
	m.live.WithLabelValues(account).Set(float64(live))
}

// SessionWait fits broker.WithWaitObserver.
func (m *Metrics) SessionWait(account string, d time.Duration) {
	m.sessionWait.WithLabelValues(account).Observe(d.Seconds())
}

// Round fits loop.WithRoundHook.
func (m *Metrics) Round(d time.Duration, _ int) {
	m.roundSeconds.Observe(d.Seconds())
}
