package journal

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/store"
)

func openMem(t *testing.T, fs vfs.FS) *PebbleJournal {
	t.Helper()
	j, err := OpenPebble("journal", &pebble.Options{FS: fs})
	if err != nil {
		t.Fatalf("OpenPebble: %v", err)
	}
	return j
}

func ticket(symbol string, price, volume int64, at time.Time) domain.TradeTicket {
	return domain.TradeTicket{
		BuyerID:    1,
		BidPrice:   price,
		SellerID:   2,
		AskPrice:   price,
		Volume:     volume,
		Symbol:     symbol,
		Price:      price,
		ExecutedAt: at,
	}
}

func TestPebbleJournal_RecordTradeIssuesSequentialIDs(t *testing.T) {
	j := openMem(t, vfs.NewMem())
	defer j.Close()
	ctx := context.Background()
	at := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)

	for want := uint64(1); want <= 3; want++ {
		id, err := j.RecordTrade(ctx, ticket("AAPL", 15000, 10, at))
		if err != nil {
			t.Fatalf("RecordTrade: %v", err)
		}
		if id != want {
			t.Errorf("id = %d, want %d", id, want)
		}
	}

	trades, err := j.Trades(ctx)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(trades) != 3 {
		t.Fatalf("len(trades) = %d, want 3", len(trades))
	}
	got := trades[0]
	if got.Symbol != "AAPL" || got.Price != 15000 || got.Volume != 10 || got.BuyerID != 1 || got.SellerID != 2 {
		t.Errorf("unexpected record: %+v", got)
	}
	if !got.ExecutedAt.Equal(at) {
		t.Errorf("ExecutedAt = %v, want %v", got.ExecutedAt, at)
	}
}

func TestPebbleJournal_SequenceSurvivesReopen(t *testing.T) {
	fs := vfs.NewMem()
	ctx := context.Background()

	j := openMem(t, fs)
	for range 2 {
		if _, err := j.RecordTrade(ctx, ticket("JPK", 10000, 1, time.Now())); err != nil {
			t.Fatalf("RecordTrade: %v", err)
		}
	}
	if err := j.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	j = openMem(t, fs)
	defer j.Close()
	id, err := j.RecordTrade(ctx, ticket("JPK", 10000, 1, time.Now()))
	if err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	if id != 3 {
		t.Errorf("id after reopen = %d, want 3", id)
	}
}

func TestPebbleJournal_SaveCompletesRecord(t *testing.T) {
	j := openMem(t, vfs.NewMem())
	defer j.Close()
	ctx := context.Background()
	at := time.Now().UTC()

	id, err := j.RecordTrade(ctx, ticket("AAPL", 15000, 5, at))
	if err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	full := &domain.Trade{
		ID: domain.TradeID(id), Symbol: "AAPL", BuyOrderID: 7, SellOrderID: 8,
		BuyerID: 1, SellerID: 2, BidPrice: 15000, AskPrice: 15000, Price: 15000, Volume: 5, ExecutedAt: at,
	}
	if err := j.Save(ctx, full); err != nil {
		t.Fatalf("Save: %v", err)
	}

	trades, err := j.Trades(ctx)
	if err != nil {
		t.Fatalf("Trades: %v", err)
	}
	if len(trades) != 1 {
		t.Fatalf("len(trades) = %d, want 1", len(trades))
	}
	if trades[0].BuyOrderID != 7 || trades[0].SellOrderID != 8 {
		t.Errorf("order ids = %d/%d, want 7/8", trades[0].BuyOrderID, trades[0].SellOrderID)
	}
}

func TestPebbleJournal_SaveAdvancesSequence(t *testing.T) {
	j := openMem(t, vfs.NewMem())
	defer j.Close()
	ctx := context.Background()

	if err := j.Save(ctx, &domain.Trade{ID: 41, Symbol: "AAPL", Price: 100, Volume: 1, ExecutedAt: time.Now()}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	id, err := j.RecordTrade(ctx, ticket("AAPL", 100, 1, time.Now()))
	if err != nil {
		t.Fatalf("RecordTrade: %v", err)
	}
	if id != 42 {
		t.Errorf("id = %d, want 42", id)
	}
}

func TestPebbleJournal_RecordTradeHonorsContext(t *testing.T) {
	j := openMem(t, vfs.NewMem())
	defer j.Close()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := j.RecordTrade(ctx, ticket("AAPL", 100, 1, time.Now())); err == nil {
		t.Fatal("expected error for cancelled context")
	}
}

func TestReplay_RestoresPriceHistory(t *testing.T) {
	j := openMem(t, vfs.NewMem())
	defer j.Close()
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, price := range []int64{10000, 10100, 10200} {
		if _, err := j.RecordTrade(ctx, ticket("JPK", price, 1, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("RecordTrade: %v", err)
		}
	}

	trades := store.NewTradeStore()
	n, err := Replay(ctx, j, trades)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if n != 3 {
		t.Errorf("replayed %d trades, want 3", n)
	}
	if p, ok := trades.PriceAt("JPK", base.Add(90*time.Minute)); !ok || p != 10100 {
		t.Errorf("PriceAt = %d, %v; want 10100, true", p, ok)
	}
	id, _ := trades.RecordTrade(ctx, domain.TradeTicket{})
	if id != 4 {
		t.Errorf("next in-memory id = %d, want 4", id)
	}
}
