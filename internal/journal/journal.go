// Package journal persists executed trades so price history survives a
// restart.
package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/events"
)

// Journal is a durable trade log. RecordTrade makes it usable as the
// engine's required sink; Save is the best-effort path.
type Journal interface {
	RecordTrade(ctx context.Context, t domain.TradeTicket) (uint64, error)
	Save(ctx context.Context, t *domain.Trade) error
	Trades(ctx context.Context) ([]*domain.Trade, error)
	Close() error
}

// Restorer accepts replayed trades.
type Restorer interface {
	Restore(trades []*domain.Trade)
}

// Replay loads every journaled trade into dst and returns how many were
// found.
func Replay(ctx context.Context, j Journal, dst Restorer) (int, error) {
	trades, err := j.Trades(ctx)
	if err != nil {
		return 0, fmt.Errorf("replay journal: %w", err)
	}
	dst.Restore(trades)
	return len(trades), nil
}

// Recorder returns an event handler that saves every executed trade. In
// required mode it completes the record RecordTrade wrote with the order
// ids. Failures are logged and do not affect the exchange.
func Recorder(j Journal, logger *slog.Logger) events.Handler {
	return func(ctx context.Context, ev events.Event) {
		if ev.Kind != events.KindTradeExecuted || ev.Trade == nil {
			return
		}
		t := ev.Trade.ToTrade(ev.Symbol)
		if err := j.Save(ctx, t); err != nil {
			logger.Error("journal trade", "trade_id", t.ID, "symbol", t.Symbol, "error", err)
		}
	}
}
