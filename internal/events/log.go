package events

import (
	"context"
	"log/slog"
)

// LogSubscriber writes every event as a structured log record.
func LogSubscriber(logger *slog.Logger) Handler {
	return func(ctx context.Context, ev Event) {
		attrs := []any{
			"event_id", ev.ID,
			"symbol", ev.Symbol,
		}
		switch ev.Kind {
		case KindTradeExecuted:
			attrs = append(attrs,
				"trade_id", ev.Trade.TradeID,
				"buy_order_id", ev.Trade.BuyOrderID,
				"sell_order_id", ev.Trade.SellOrderID,
				"price", ev.Trade.Price,
				"volume", ev.Trade.Volume,
			)
		case KindOrderRejected:
			attrs = append(attrs, "ledger_id", ev.LedgerID, "reason", ev.Reason)
		default:
			attrs = append(attrs,
				"order_id", ev.OrderID,
				"ledger_id", ev.LedgerID,
				"status", ev.Status,
				"executed", ev.Executed,
				"total", ev.Volume,
			)
			if ev.Kind == KindOrderEdited {
				attrs = append(attrs, "delta", ev.Delta)
			}
		}

		level := slog.LevelInfo
		if ev.Kind == KindOrderRejected {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, string(ev.Kind), attrs...)
	}
}
