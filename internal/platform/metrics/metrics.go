// Package metrics exposes launcher counters on a private prometheus registry.
package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	namespace = "trader_demo"

	TextfileEnv = "TRADER_DEMO_METRICS_FILE"

	outcomeOK    = "ok"
	outcomeError = "error"
)

type Metrics struct {
	registry       *prometheus.Registry
	dispatches     *prometheus.CounterVec
	sessionsOpened prometheus.Counter
	sessionsClosed prometheus.Counter
	callDuration   *prometheus.HistogramVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		dispatches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dispatch_total",
			Help:      "Role dispatches by role and outcome.",
		}, []string{"role", "outcome"}),
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_opened_total",
			Help:      "RPC sessions successfully opened.",
		}),
		sessionsClosed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_closed_total",
			Help:      "RPC sessions closed.",
		}),
		callDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Latency of RPC calls by method and outcome.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "outcome"}),
	}
	m.registry.MustRegister(m.dispatches, m.sessionsOpened, m.sessionsClosed, m.callDuration)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveDispatch(role string, err error) {
	m.dispatches.WithLabelValues(strings.ToUpper(role), outcome(err)).Inc()
}

func (m *Metrics) ObserveCall(method string, elapsed time.Duration, err error) {
	m.callDuration.WithLabelValues(method, outcome(err)).Observe(elapsed.Seconds())
}

func (m *Metrics) SessionOpened() {
	m.sessionsOpened.Inc()
}

func (m *Metrics) SessionClosed() {
	m.sessionsClosed.Inc()
}

// WriteTextfile dumps the registry in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.registry)
}

func outcome(err error) string {
	if err != nil {
		return outcomeError
	}
	return outcomeOK
}
