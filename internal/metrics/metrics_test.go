package metrics

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/events"
)

func TestMetrics_Observe(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg, nil)
	h := m.Handler()
	ctx := context.Background()

	h(ctx, events.TradeExecuted(&domain.Trade{ID: 1, Symbol: "AAPL", Price: 15000, Volume: 2, ExecutedAt: time.Now()}))
	h(ctx, events.TradeExecuted(&domain.Trade{ID: 2, Symbol: "AAPL", Price: 15100, Volume: 3, ExecutedAt: time.Now()}))
	h(ctx, events.Event{Kind: events.KindOrderAccepted, Symbol: "AAPL", Type: domain.OrderTypeLimit})
	h(ctx, events.Event{Kind: events.KindOrderRejected, Symbol: "JPK"})
	h(ctx, events.Event{Kind: events.KindOrderTerminated, Symbol: "AAPL", Status: domain.OrderStatusKilled})
	h(ctx, events.Event{Kind: events.KindOrderEdited, Symbol: "AAPL"})

	tests := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"trades", m.trades.WithLabelValues("AAPL"), 2},
		{"volume", m.volume.WithLabelValues("AAPL"), 5},
		{"notional", m.notional.WithLabelValues("AAPL"), 15000*2 + 15100*3},
		{"last price", m.lastPrice.WithLabelValues("AAPL"), 15100},
		{"accepted", m.accepted.WithLabelValues("AAPL", "limit"), 1},
		{"rejected", m.rejected.WithLabelValues("JPK"), 1},
		{"terminated", m.terminated.WithLabelValues("AAPL", "killed"), 1},
		{"edited", m.edited.WithLabelValues("AAPL"), 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := testutil.ToFloat64(tt.c); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMetrics_DroppedEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	var dropped uint64 = 7
	New(reg, func() uint64 { return dropped })

	expected := `
# HELP exchange_events_dropped_total Events discarded because the bus buffer was full.
# TYPE exchange_events_dropped_total counter
exchange_events_dropped_total 7
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected), "exchange_events_dropped_total"); err != nil {
		t.Error(err)
	}
}
