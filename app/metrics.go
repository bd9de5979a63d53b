package app

import (
	"context"
	"net/http"

	"github.com/calehh/oracle-node/tx"
	"github.com/calehh/oracle-node/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const metricsNamespace = "oracle"

// Metrics counts transitions and funds moved. It is fed as an event sink
// so every committed transition is counted exactly once.
type Metrics struct {
	registry    *prometheus.Registry
	events      *prometheus.CounterVec
	outcomes    *prometheus.CounterVec
	payouts     *prometheus.CounterVec
	txs         *prometheus.CounterVec
	escrowed    prometheus.Counter
	lastVersion prometheus.Gauge
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "events_total",
			Help:      "Committed request transitions by event type.",
		}, []string{"type"}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "resolutions_total",
			Help:      "Resolved requests by outcome.",
		}, []string{"outcome"}),
		payouts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "payout_amount_total",
			Help:      "Funds paid out at resolution by kind and role.",
		}, []string{"kind", "role"}),
		txs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "txs_total",
			Help:      "Handled transactions by type and result code.",
		}, []string{"type", "code"}),
		escrowed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "escrowed_amount_total",
			Help:      "Rewards escrowed by requesters.",
		}),
		lastVersion: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "state_version",
			Help:      "Latest committed state store version.",
		}),
	}
	m.registry.MustRegister(m.events, m.outcomes, m.payouts, m.txs, m.escrowed, m.lastVersion)
	return m
}

func (m *Metrics) Emit(_ context.Context, ev types.Event) error {
	m.events.WithLabelValues(ev.EventType()).Inc()
	switch e := ev.(type) {
	case *types.EventRequestRegistered:
		m.escrowed.Add(float64(e.Reward))
	case *types.EventRequestResolved:
		m.outcomes.WithLabelValues(e.Outcome.String()).Inc()
	case *types.EventRewardDistributed:
		m.payouts.WithLabelValues("reward", e.Role).Add(float64(e.Amount))
	case *types.EventBondRefunded:
		m.payouts.WithLabelValues("bond", e.Role).Add(float64(e.Amount))
	}
	return nil
}

func (m *Metrics) observeTx(tp tx.OracleTxType, code uint32) {
	m.txs.WithLabelValues(tp.String(), codeLabel(code)).Inc()
}

func (m *Metrics) setVersion(version uint64) {
	m.lastVersion.Set(float64(version))
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func codeLabel(code uint32) string {
	switch code {
	case tx.CodeTypeOK:
		return "ok"
	case tx.CodeTypeEncoding:
		return "encoding"
	case tx.CodeTypePrecondition:
		return types.KindPrecondition.String()
	case tx.CodeTypeAuthorization:
		return types.KindAuthorization.String()
	case tx.CodeTypeResource:
		return types.KindResource.String()
	case tx.CodeTypeInput:
		return types.KindInput.String()
	case tx.CodeTypeNotFound:
		return "not_found"
	}
	return "internal"
}
