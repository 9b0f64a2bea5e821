package events

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/efreitasn/exchangecore/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recorder struct {
	mu     sync.Mutex
	events []Event
	got    chan struct{}
}

func newRecorder() *recorder {
	return &recorder{got: make(chan struct{}, 100)}
}

func (r *recorder) handle(_ context.Context, ev Event) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
	r.got <- struct{}{}
}

func (r *recorder) wait(t *testing.T, n int) []Event {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-r.got:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for event %d of %d", i+1, n)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

func TestBus_FansOutInOrder(t *testing.T) {
	bus := NewBus(16, discardLogger())
	a, b := newRecorder(), newRecorder()
	bus.Subscribe("a", a.handle)
	bus.Subscribe("b", b.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)

	bus.Publish(
		Event{Kind: KindOrderAccepted, OrderID: 1},
		Event{Kind: KindOrderTerminated, OrderID: 1},
	)

	for _, r := range []*recorder{a, b} {
		got := r.wait(t, 2)
		if got[0].Kind != KindOrderAccepted || got[1].Kind != KindOrderTerminated {
			t.Fatalf("unexpected order: %v", got)
		}
		if got[0].ID == "" || got[0].ID == got[1].ID {
			t.Fatalf("expected distinct generated ids, got %q and %q", got[0].ID, got[1].ID)
		}
	}
}

func TestBus_PublishNeverBlocks(t *testing.T) {
	bus := NewBus(2, discardLogger())

	done := make(chan struct{})
	go func() {
		for i := 0; i < 10; i++ {
			bus.Publish(Event{Kind: KindOrderAccepted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full buffer")
	}
	if got := bus.Dropped(); got != 8 {
		t.Fatalf("Dropped() = %d, want 8", got)
	}
}

func TestBus_SubscriberPanicIsContained(t *testing.T) {
	bus := NewBus(4, discardLogger())
	r := newRecorder()
	bus.Subscribe("panics", func(context.Context, Event) { panic("boom") })
	bus.Subscribe("records", r.handle)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus.Start(ctx)

	bus.Publish(Event{Kind: KindOrderAccepted})
	r.wait(t, 1)
}

func TestBus_DrainsOnShutdown(t *testing.T) {
	bus := NewBus(8, discardLogger())
	r := newRecorder()
	bus.Subscribe("records", r.handle)

	bus.Publish(Event{Kind: KindOrderAccepted}, Event{Kind: KindOrderAccepted}, Event{Kind: KindOrderAccepted})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	bus.Start(ctx)

	select {
	case <-bus.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("bus did not stop")
	}
	if got := r.wait(t, 3); len(got) != 3 {
		t.Fatalf("expected 3 drained events, got %d", len(got))
	}
}

func TestEvent_Ledgers(t *testing.T) {
	trade := TradeExecuted(&domain.Trade{ID: 1, Symbol: "JPK", BuyerID: 3, SellerID: 4, Price: 100, Volume: 1})
	if got := trade.Ledgers(); len(got) != 2 || got[0] != 3 || got[1] != 4 {
		t.Errorf("trade Ledgers() = %v", got)
	}

	o := &domain.Order{ID: 9, Symbol: "JPK", LedgerID: 5, Total: 10, Remaining: 4}
	if got := OrderTerminated(o).Ledgers(); len(got) != 1 || got[0] != 5 {
		t.Errorf("order Ledgers() = %v", got)
	}
	if got := (Event{}).Ledgers(); got != nil {
		t.Errorf("empty Ledgers() = %v", got)
	}
}

func TestLogSubscriber(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	handle := LogSubscriber(logger)

	handle(context.Background(), TradeExecuted(&domain.Trade{ID: 7, Symbol: "JPK", Price: 150, Volume: 10}))
	handle(context.Background(), OrderRejected("JPK", 2, domain.SideBuy, domain.OrderTypeLimit,
		domain.ErrInsufficientFunds, time.Now()))

	out := buf.String()
	for _, want := range []string{"msg=trade.executed", "trade_id=7", "level=WARN", "reason=insufficient_funds"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
