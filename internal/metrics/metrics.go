// Package metrics exposes exchange activity as Prometheus metrics, fed
// from the event bus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/efreitasn/exchangecore/internal/events"
)

// Collector holds the exchange metrics.
type Collector struct {
	trades     *prometheus.CounterVec
	volume     *prometheus.CounterVec
	notional   *prometheus.CounterVec
	accepted   *prometheus.CounterVec
	rejected   *prometheus.CounterVec
	terminated *prometheus.CounterVec
	edited     *prometheus.CounterVec
	lastPrice  *prometheus.GaugeVec
}

// New creates the collectors and registers them with reg. dropped, when
// non-nil, is exported as the count of events the bus discarded.
func New(reg prometheus.Registerer, dropped func() uint64) *Collector {
	m := &Collector{
		trades: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "trades_total",
			Help:      "Executed trades.",
		}, []string{"symbol"}),
		volume: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "traded_volume_total",
			Help:      "Units traded.",
		}, []string{"symbol"}),
		notional: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "traded_notional_cents_total",
			Help:      "Traded value in cents.",
		}, []string{"symbol"}),
		accepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "orders_accepted_total",
			Help:      "Orders accepted by the engine.",
		}, []string{"symbol", "type"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "orders_rejected_total",
			Help:      "Submissions rejected before becoming orders.",
		}, []string{"symbol"}),
		terminated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "orders_terminated_total",
			Help:      "Orders that reached a final status.",
		}, []string{"symbol", "status"}),
		edited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "orders_edited_total",
			Help:      "In-place order edits.",
		}, []string{"symbol"}),
		lastPrice: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "exchange",
			Name:      "last_trade_price_cents",
			Help:      "Price of the most recent trade.",
		}, []string{"symbol"}),
	}
	reg.MustRegister(m.trades, m.volume, m.notional, m.accepted, m.rejected, m.terminated, m.edited, m.lastPrice)

	if dropped != nil {
		reg.MustRegister(prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: "exchange",
			Name:      "events_dropped_total",
			Help:      "Events discarded because the bus buffer was full.",
		}, func() float64 { return float64(dropped()) }))
	}
	return m
}

// Observe records one event.
func (m *Collector) Observe(ev events.Event) {
	switch ev.Kind {
	case events.KindTradeExecuted:
		m.trades.WithLabelValues(ev.Symbol).Inc()
		m.volume.WithLabelValues(ev.Symbol).Add(float64(ev.Volume))
		m.notional.WithLabelValues(ev.Symbol).Add(float64(ev.Price * ev.Volume))
		m.lastPrice.WithLabelValues(ev.Symbol).Set(float64(ev.Price))
	case events.KindOrderAccepted:
		m.accepted.WithLabelValues(ev.Symbol, string(ev.Type)).Inc()
	case events.KindOrderRejected:
		m.rejected.WithLabelValues(ev.Symbol).Inc()
	case events.KindOrderTerminated:
		m.terminated.WithLabelValues(ev.Symbol, string(ev.Status)).Inc()
	case events.KindOrderEdited:
		m.edited.WithLabelValues(ev.Symbol).Inc()
	}
}

// Handler adapts Observe to the event bus.
func (m *Collector) Handler() events.Handler {
	return func(_ context.Context, ev events.Event) {
		m.Observe(ev)
	}
}
