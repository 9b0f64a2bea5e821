package service

import (
	"context"
	"errors"
	"testing"

	"github.com/efreitasn/exchangecore/internal/domain"
)

// seedBook rests bids at 99 (2) and 98 (1+3), asks at 101 (2) and 102 (5).
func seedBook(t *testing.T, ts *testServices) {
	t.Helper()
	buyer := ts.register(t, "buyer", 10000)
	seller := ts.register(t, "seller", 0, HoldingInput{Ticker: "JPK", Volume: 100})
	ctx := context.Background()
	place := func(ref domain.ClientRef, side domain.Side, price float64, volume int64) {
		if _, err := ts.orders.PlaceOrder(ctx, PlaceOrderRequest{
			Type: domain.OrderTypeLimit, Client: ref, Side: side, Ticker: "JPK", Price: &price, Volume: volume,
		}); err != nil {
			t.Fatalf("place: %v", err)
		}
	}
	place(buyer, domain.SideBuy, 99, 2)
	place(buyer, domain.SideBuy, 98, 1)
	place(buyer, domain.SideBuy, 98, 3)
	place(seller, domain.SideSell, 101, 2)
	place(seller, domain.SideSell, 102, 5)
}

func TestGetBook_AggregatesLevels(t *testing.T) {
	ts := newTestServices(t)
	seedBook(t, ts)

	book, err := ts.market.GetBook("jpk", 10)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	wantBids := []BookPriceLevel{{Price: 9900, TotalVolume: 2, OrderCount: 1}, {Price: 9800, TotalVolume: 4, OrderCount: 2}}
	if len(book.Bids) != len(wantBids) {
		t.Fatalf("bids = %+v, want %+v", book.Bids, wantBids)
	}
	for i := range wantBids {
		if book.Bids[i] != wantBids[i] {
			t.Errorf("bid level %d = %+v, want %+v", i, book.Bids[i], wantBids[i])
		}
	}
	if len(book.Asks) != 2 || book.Asks[0].Price != 10100 {
		t.Errorf("asks = %+v", book.Asks)
	}
	if book.Spread == nil || *book.Spread != 200 {
		t.Errorf("spread = %v, want 200", book.Spread)
	}

	top, err := ts.market.GetBook("JPK", 1)
	if err != nil {
		t.Fatalf("GetBook: %v", err)
	}
	if len(top.Bids) != 1 || len(top.Asks) != 1 {
		t.Errorf("depth 1 returned %d/%d levels", len(top.Bids), len(top.Asks))
	}

	var ve *domain.ValidationError
	if _, err := ts.market.GetBook("JPK", 0); !errors.As(err, &ve) {
		t.Errorf("got %v, want ValidationError", err)
	}
}

func TestGetBest(t *testing.T) {
	ts := newTestServices(t)

	empty, err := ts.market.GetBest("JPK")
	if err != nil {
		t.Fatalf("GetBest: %v", err)
	}
	if empty.BestBid != nil || empty.BestAsk != nil || empty.Spread != nil {
		t.Errorf("empty book should report nil prices: %+v", empty)
	}

	seedBook(t, ts)
	best, err := ts.market.GetBest("JPK")
	if err != nil {
		t.Fatalf("GetBest: %v", err)
	}
	if *best.BestBid != 9900 || *best.BestAsk != 10100 {
		t.Errorf("best = %d/%d, want 9900/10100", *best.BestBid, *best.BestAsk)
	}

	if _, err := ts.market.GetBest("MSFT"); !errors.Is(err, domain.ErrUnknownInstrument) {
		t.Errorf("got %v, want ErrUnknownInstrument", err)
	}
}

func TestGetVolume(t *testing.T) {
	ts := newTestServices(t)
	seedBook(t, ts)

	tests := []struct {
		side  domain.Side
		price string
		want  int64
	}{
		{domain.SideBuy, "98", 4},
		{domain.SideBuy, "98.00", 4},
		{domain.SideBuy, "97", 0},
		{domain.SideSell, "102", 5},
	}
	for _, tt := range tests {
		got, err := ts.market.GetVolume("JPK", tt.side, tt.price)
		if err != nil {
			t.Fatalf("GetVolume(%s, %s): %v", tt.side, tt.price, err)
		}
		if got != tt.want {
			t.Errorf("GetVolume(%s, %s) = %d, want %d", tt.side, tt.price, got, tt.want)
		}
	}

	var ve *domain.ValidationError
	if _, err := ts.market.GetVolume("JPK", domain.SideBuy, "98.001"); !errors.As(err, &ve) {
		t.Errorf("got %v, want ValidationError", err)
	}
}

func TestGetQuote(t *testing.T) {
	ts := newTestServices(t)
	seedBook(t, ts)

	q, err := ts.market.GetQuote("JPK", domain.SideBuy, 4)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if !q.FullyFillable || q.VolumeAvailable != 4 {
		t.Errorf("fillable=%v available=%d", q.FullyFillable, q.VolumeAvailable)
	}
	// 2 × 101 + 2 × 102
	if q.EstimatedTotal == nil || *q.EstimatedTotal != 40600 {
		t.Errorf("total = %v, want 40600", q.EstimatedTotal)
	}
	if len(q.PriceLevels) != 2 {
		t.Errorf("levels = %+v", q.PriceLevels)
	}

	q, err = ts.market.GetQuote("JPK", domain.SideSell, 10)
	if err != nil {
		t.Fatalf("GetQuote: %v", err)
	}
	if q.FullyFillable || q.VolumeAvailable != 6 {
		t.Errorf("fillable=%v available=%d, want false/6", q.FullyFillable, q.VolumeAvailable)
	}
}

func TestGetPrice(t *testing.T) {
	ts := newTestServices(t)

	p, err := ts.market.GetPrice("JPK")
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if p.LastPrice != nil || p.VWAP != nil || p.OpeningPrice != 10000 || p.PnL != 0 {
		t.Errorf("no-trade price = %+v", p)
	}
	if p.Window != "5m" {
		t.Errorf("window = %q, want 5m", p.Window)
	}

	seedBook(t, ts)
	taker := ts.register(t, "taker", 10000)
	if _, err := ts.orders.PlaceOrder(context.Background(), PlaceOrderRequest{
		Type: domain.OrderTypeMarket, Client: taker, Side: domain.SideBuy, Ticker: "JPK", Volume: 4,
	}); err != nil {
		t.Fatalf("place: %v", err)
	}

	p, err = ts.market.GetPrice("JPK")
	if err != nil {
		t.Fatalf("GetPrice: %v", err)
	}
	if p.LastPrice == nil || *p.LastPrice != 10200 {
		t.Errorf("last price = %v, want 10200", p.LastPrice)
	}
	if p.VWAP == nil || *p.VWAP != 10150 || p.TradesInWindow != 2 {
		t.Errorf("vwap = %v trades = %d, want 10150/2", p.VWAP, p.TradesInWindow)
	}
}
