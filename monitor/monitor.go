package monitor

import (
	"expvar"
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	WaitingMatches  prometheus.Gauge
	OngoingMatches  prometheus.Gauge
	MatchesStarted  prometheus.Counter
	MatchesFinished prometheus.Counter
	MatchesReaped   prometheus.Counter
	MovesSubmitted  prometheus.Counter
	RoundsResolved  prometheus.Counter
	EventsPublished prometheus.Counter
}

func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		WaitingMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "waiting_matches",
			Help:      "Number of matches currently waiting for an opponent",
		}),
		OngoingMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ongoing_matches",
			Help:      "Number of matches currently being played",
		}),
		MatchesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_started_total",
			Help:      "Total number of matches paired and started",
		}),
		MatchesFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_finished_total",
			Help:      "Total number of matches that reached a terminal state",
		}),
		MatchesReaped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "matches_reaped_total",
			Help:      "Total number of stale waiting matches cancelled by the reaper",
		}),
		MovesSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "moves_submitted_total",
			Help:      "Total number of accepted move submissions",
		}),
		RoundsResolved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rounds_resolved_total",
			Help:      "Total number of resolved RPS rounds",
		}),
		EventsPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Total number of events published to broadcast channels",
		}),
	}

	prometheus.MustRegister(
		m.WaitingMatches,
		m.OngoingMatches,
		m.MatchesStarted,
		m.MatchesFinished,
		m.MatchesReaped,
		m.MovesSubmitted,
		m.RoundsResolved,
		m.EventsPublished,
	)

	return m
}

// Monitor exposes match-engine metrics on a side port. All increment methods
// are nil-safe so services can run without metrics wired (tests).
type Monitor struct {
	metrics   *Metrics
	startTime time.Time
}

func NewMonitor(namespace string) *Monitor {
	return &Monitor{
		metrics:   NewMetrics(namespace),
		startTime: time.Now(),
	}
}

func (m *Monitor) StartServer(addr string) {
	http.Handle("/metrics", promhttp.Handler())

	expvar.Publish("uptime", expvar.Func(func() interface{} {
		return time.Since(m.startTime).Seconds()
	}))

	go func() {
		if err := http.ListenAndServe(addr, nil); err != nil {
			log.Printf("[Monitor] metrics server stopped: %v", err)
		}
	}()
}

func (m *Monitor) SetWaitingMatches(count int) {
	if m == nil {
		return
	}
	m.metrics.WaitingMatches.Set(float64(count))
}

func (m *Monitor) SetOngoingMatches(count int) {
	if m == nil {
		return
	}
	m.metrics.OngoingMatches.Set(float64(count))
}

func (m *Monitor) IncMatchesStarted() {
	if m == nil {
		return
	}
	m.metrics.MatchesStarted.Inc()
}

func (m *Monitor) IncMatchesFinished() {
	if m == nil {
		return
	}
	m.metrics.MatchesFinished.Inc()
}

func (m *Monitor) AddMatchesReaped(count int) {
	if m == nil {
		return
	}
	m.metrics.MatchesReaped.Add(float64(count))
}

func (m *Monitor) IncMovesSubmitted() {
	if m == nil {
		return
	}
	m.metrics.MovesSubmitted.Inc()
}

func (m *Monitor) IncRoundsResolved() {
	if m == nil {
		return
	}
	m.metrics.RoundsResolved.Inc()
}

func (m *Monitor) IncEventsPublished() {
	if m == nil {
		return
	}
	m.metrics.EventsPublished.Inc()
}
