package service

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/engine"
	"github.com/efreitasn/exchangecore/internal/store"
)

type testServices struct {
	ledgers  *store.LedgerStore
	trades   *store.TradeStore
	exchange *engine.Exchange
	accounts *AccountService
	orders   *OrderService
	market   *MarketService
	webhooks *WebhookService
}

// newTestServices lists AAPL at 150.00 and JPK at 100.00.
func newTestServices(t *testing.T) *testServices {
	t.Helper()
	reg := domain.NewInstrumentRegistry()
	reg.List("AAPL", 15000)
	reg.List("JPK", 10000)

	ts := &testServices{
		ledgers: store.NewLedgerStore(),
		trades:  store.NewTradeStore(),
	}
	ts.exchange = engine.NewExchange(reg, engine.Deps{
		Ledgers: ts.ledgers,
		Orders:  store.NewOrderStore(),
		Trades:  ts.trades,
	})
	ts.accounts = NewAccountService(ts.ledgers, reg, ts.exchange)
	ts.orders = NewOrderService(ts.exchange)
	ts.market = NewMarketService(ts.exchange, ts.trades, 5*time.Minute)
	ts.webhooks = NewWebhookService(store.NewWebhookStore(), ts.ledgers, 5*time.Second,
		slog.New(slog.NewTextHandler(io.Discard, nil)))
	return ts
}

func (ts *testServices) register(t *testing.T, username string, balance float64, holdings ...HoldingInput) domain.ClientRef {
	t.Helper()
	resp, err := ts.accounts.Register(RegisterClientRequest{
		Username:        username,
		InitialBalance:  balance,
		InitialHoldings: holdings,
	})
	if err != nil {
		t.Fatalf("register %s: %v", username, err)
	}
	return domain.ClientByID(uint64(resp.ClientID))
}

func ptr[T any](v T) *T { return &v }
