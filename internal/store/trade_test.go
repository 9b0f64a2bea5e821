package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/exchangecore/internal/domain"
)

func newTestTrade(id domain.TradeID, symbol string, price int64, executedAt time.Time) *domain.Trade {
	return &domain.Trade{
		ID:         id,
		Symbol:     symbol,
		BuyerID:    1,
		SellerID:   2,
		Price:      price,
		Volume:     10,
		ExecutedAt: executedAt,
	}
}

func TestTradeStore_RecordTradeIssuesSequentialIDs(t *testing.T) {
	s := NewTradeStore()
	ctx := context.Background()

	for want := uint64(1); want <= 3; want++ {
		id, err := s.RecordTrade(ctx, domain.TradeTicket{Symbol: "AAPL"})
		if err != nil {
			t.Fatalf("RecordTrade: %v", err)
		}
		if id != want {
			t.Fatalf("RecordTrade id = %d, want %d", id, want)
		}
	}
}

func TestTradeStore_AppendAndGetBySymbol(t *testing.T) {
	s := NewTradeStore()
	now := time.Now()

	s.Append(newTestTrade(1, "AAPL", 15000, now))
	s.Append(newTestTrade(2, "AAPL", 15100, now.Add(time.Second)))
	s.Append(newTestTrade(3, "JPK", 100, now))

	trades := s.GetBySymbol("AAPL")
	if len(trades) != 2 || trades[0].ID != 1 || trades[1].ID != 2 {
		t.Fatalf("GetBySymbol(AAPL) = %v", trades)
	}
	if got := s.GetBySymbol("MSFT"); got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %v", got)
	}
	if last, ok := s.Last("AAPL"); !ok || last.Price != 15100 {
		t.Fatalf("Last(AAPL) = %v, %v", last, ok)
	}
	if tr, ok := s.Get(3); !ok || tr.Symbol != "JPK" {
		t.Fatalf("Get(3) = %v, %v", tr, ok)
	}
}

func TestTradeStore_PriceAt(t *testing.T) {
	s := NewTradeStore()
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s.Append(newTestTrade(1, "AAPL", 100, base))
	s.Append(newTestTrade(2, "AAPL", 200, base.Add(time.Hour)))
	s.Append(newTestTrade(3, "AAPL", 300, base.Add(2*time.Hour)))

	tests := []struct {
		name   string
		at     time.Time
		want   int64
		wantOK bool
	}{
		{"before first trade", base.Add(-time.Minute), 0, false},
		{"exactly at first trade", base, 100, true},
		{"between trades", base.Add(90 * time.Minute), 200, true},
		{"after last trade", base.Add(24 * time.Hour), 300, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := s.PriceAt("AAPL", tt.at)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("PriceAt() = %d, %v; want %d, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestTradeStore_RestoreContinuesIDs(t *testing.T) {
	s := NewTradeStore()
	base := time.Now()

	// Journals may return trades out of chronological order.
	s.Restore([]*domain.Trade{
		newTestTrade(7, "AAPL", 300, base.Add(2*time.Second)),
		newTestTrade(4, "AAPL", 100, base),
		newTestTrade(4, "AAPL", 100, base),
	})

	trades := s.GetBySymbol("AAPL")
	if len(trades) != 2 || trades[0].ID != 4 || trades[1].ID != 7 {
		t.Fatalf("restored trades = %v", trades)
	}
	id, _ := s.RecordTrade(context.Background(), domain.TradeTicket{})
	if id != 8 {
		t.Fatalf("next id after restore = %d, want 8", id)
	}
}

func TestTradeStore_ConcurrentAppend(t *testing.T) {
	s := NewTradeStore()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id, _ := s.RecordTrade(context.Background(), domain.TradeTicket{})
			s.Append(newTestTrade(domain.TradeID(id), "AAPL", 100, time.Now()))
		}()
	}
	wg.Wait()

	if s.Len() != 100 {
		t.Fatalf("expected 100 trades, got %d", s.Len())
	}
}
