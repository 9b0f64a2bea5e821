package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/events"
)

// Engine matches orders for one instrument under price-time priority.
//
// Every mutating call holds the instrument's write lock for the whole
// sweep; queries take the read lock and therefore never observe a
// partially applied sweep. Ledgers are locked pairwise, in id order, only
// for the duration of a single trade step.
type Engine struct {
	symbol  string
	opening int64
	x       *Exchange

	mu        sync.RWMutex
	book      *OrderBook
	lastPrice int64
	lastAt    time.Time
	hasLast   bool
	version   uint64
}

func newEngine(x *Exchange, symbol string, opening int64) *Engine {
	e := &Engine{
		symbol:  symbol,
		opening: opening,
		x:       x,
		book:    NewOrderBook(symbol),
	}
	if t, ok := x.trades.Last(symbol); ok {
		e.lastPrice, e.lastAt, e.hasLast = t.Price, t.ExecutedAt, true
	}
	return e
}

// Symbol returns the instrument this engine matches.
func (e *Engine) Symbol() string { return e.symbol }

// OpeningPrice is the reference price used before the first trade.
func (e *Engine) OpeningPrice() int64 { return e.opening }

// mutate runs fn under the write lock and publishes the events it
// collected before the lock is released, so one instrument's events are
// enqueued in the order its mutations happened.
func (e *Engine) mutate(fn func(evs *[]events.Event) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var evs []events.Event
	err := fn(&evs)
	if len(evs) > 0 {
		e.x.publisher.Publish(evs...)
	}
	return err
}

// SubmitLimit admits a limit order, sweeps it against the opposite queue
// and rests any remainder.
func (e *Engine) SubmitLimit(ctx context.Context, owner *domain.Ledger, side domain.Side, price, volume int64) (domain.OrderID, error) {
	return e.submit(ctx, owner, side, domain.OrderTypeLimit, price, volume)
}

// SubmitMarket admits a market order and sweeps it at whatever prices are
// available. The order never rests; unfilled volume is dropped.
func (e *Engine) SubmitMarket(ctx context.Context, owner *domain.Ledger, side domain.Side, volume int64) (domain.OrderID, error) {
	return e.submit(ctx, owner, side, domain.OrderTypeMarket, 0, volume)
}

func (e *Engine) submit(ctx context.Context, owner *domain.Ledger, side domain.Side, typ domain.OrderType, price, volume int64) (domain.OrderID, error) {
	var id domain.OrderID
	err := e.mutate(func(evs *[]events.Event) error {
		now := e.x.now()
		o := &domain.Order{
			Symbol:      e.symbol,
			Side:        side,
			Type:        typ,
			Price:       price,
			Remaining:   volume,
			Total:       volume,
			LedgerID:    owner.ID,
			Seq:         e.x.nextSeq(),
			SubmittedAt: now,
			Status:      domain.OrderStatusOpen,
		}
		id = e.x.orders.Create(o)
		*evs = append(*evs, events.OrderAccepted(o))

		if err := e.sweep(ctx, o, owner, evs); err != nil {
			o.Terminate(domain.OrderStatusCancelled, e.x.now())
			*evs = append(*evs, events.OrderTerminated(o))
			e.version++
			return err
		}
		e.settle(o, evs)
		return nil
	})
	return id, err
}

// settle rests or terminates o after its sweep.
func (e *Engine) settle(o *domain.Order, evs *[]events.Event) {
	switch {
	case o.Terminated:
		*evs = append(*evs, events.OrderTerminated(o))
	case o.Type == domain.OrderTypeMarket:
		o.Terminate(domain.OrderStatusKilled, e.x.now())
		*evs = append(*evs, events.OrderTerminated(o))
	default:
		e.book.Insert(o)
	}
	e.version++
}

// sweep crosses o against the opposite queue until nothing more can trade.
// The caller holds the write lock.
func (e *Engine) sweep(ctx context.Context, o *domain.Order, owner *domain.Ledger, evs *[]events.Event) error {
	opposite := o.Side.Opposite()
	for !o.Terminated && o.Remaining > 0 {
		resting, ok := e.book.FirstNotOwnedBy(opposite, o.LedgerID)
		if !ok {
			return nil
		}
		if o.Type == domain.OrderTypeLimit && !crosses(o, resting) {
			return nil
		}

		buy, sell := o, resting
		if o.Side == domain.SideSell {
			buy, sell = resting, o
		}
		price, err := domain.ExecutionPrice(buy, sell)
		if err != nil {
			e.escalate(err)
		}

		restingOwner, err := e.x.ledgers.Get(resting.LedgerID)
		if err != nil {
			e.escalate(fmt.Errorf("resting order %d: %w", resting.ID, err))
		}

		traded, err := e.step(ctx, o, owner, resting, restingOwner, buy, sell, price, evs)
		if err != nil {
			return err
		}
		if !traded {
			return nil
		}
	}
	return nil
}

// step performs one sweep iteration under both ledger locks. It reports
// false when the incoming order can no longer trade.
func (e *Engine) step(ctx context.Context, o *domain.Order, owner *domain.Ledger, resting *domain.Order, restingOwner *domain.Ledger, buy, sell *domain.Order, price int64, evs *[]events.Event) (bool, error) {
	unlock := lockPair(owner, restingOwner)
	defer unlock()

	incoming := o.ExecutableVolume(owner, price)
	if incoming == 0 {
		return false, nil
	}

	available := resting.ExecutableVolume(restingOwner, price)
	if available == 0 {
		e.book.Remove(resting.ID)
		resting.Terminate(domain.OrderStatusStarved, e.x.now())
		*evs = append(*evs, events.OrderTerminated(resting))
		return true, nil
	}

	buyer, seller := owner, restingOwner
	if o.Side == domain.SideSell {
		buyer, seller = restingOwner, owner
	}

	ticket, err := domain.NewTicket(buy, sell, min(incoming, available), e.x.now())
	if err != nil {
		e.escalate(err)
	}
	id, err := e.x.sink.RecordTrade(ctx, ticket)
	if err != nil {
		return false, fmt.Errorf("%w: %v", domain.ErrTradeNotDurable, err)
	}
	trade, err := domain.Execute(domain.TradeID(id), ticket, buy, sell, buyer, seller)
	if err != nil {
		e.escalate(err)
	}

	e.x.trades.Append(trade)
	e.lastPrice, e.lastAt, e.hasLast = trade.Price, trade.ExecutedAt, true
	*evs = append(*evs, events.TradeExecuted(trade))

	if resting.Remaining == 0 {
		e.book.Remove(resting.ID)
		*evs = append(*evs, events.OrderTerminated(resting))
	}
	return true, nil
}

func crosses(incoming, resting *domain.Order) bool {
	if incoming.Side == domain.SideBuy {
		return incoming.Price >= resting.Price
	}
	return resting.Price >= incoming.Price
}

// lockPair locks two distinct ledgers in id order and returns the unlock.
func lockPair(a, b *domain.Ledger) func() {
	if a.ID > b.ID {
		a, b = b, a
	}
	a.Mu.Lock()
	b.Mu.Lock()
	return func() {
		b.Mu.Unlock()
		a.Mu.Unlock()
	}
}

// escalate reports a broken invariant. Money or shares may have been lost
// or duplicated, so the operation must not continue.
func (e *Engine) escalate(err error) {
	e.x.logger.Error("matching invariant violated",
		"symbol", e.symbol,
		"error", err,
	)
	panic(err)
}

// Cancel removes the order from its queue, if queued, and terminates it.
// Cancelling a terminated order changes nothing and is not an error.
func (e *Engine) Cancel(o *domain.Order) {
	_ = e.mutate(func(evs *[]events.Event) error {
		e.book.Remove(o.ID)
		if o.Terminated {
			return nil
		}
		o.Terminate(domain.OrderStatusCancelled, e.x.now())
		*evs = append(*evs, events.OrderTerminated(o))
		e.version++
		return nil
	})
}

// Edit replaces a resting order's price and volume and re-admits it as a
// fresh submission. It returns the applied change to total volume.
func (e *Engine) Edit(ctx context.Context, o *domain.Order, owner *domain.Ledger, newPrice, newVolume int64) (int64, error) {
	var delta int64
	err := e.mutate(func(evs *[]events.Event) error {
		if o.Terminated || !e.book.Contains(o.ID) {
			return fmt.Errorf("order %d: %w", o.ID, domain.ErrOrderNotEditable)
		}
		e.book.Remove(o.ID)

		d, err := o.Edit(newPrice, newVolume)
		if err != nil {
			return errors.Join(domain.ErrOrderNotEditable, err)
		}
		delta = d
		now := e.x.now()
		*evs = append(*evs, events.OrderEdited(o, delta, now))

		if o.Remaining == 0 {
			o.Terminate(domain.OrderStatusFilled, now)
			*evs = append(*evs, events.OrderTerminated(o))
			e.version++
			return nil
		}

		o.Seq = e.x.nextSeq()
		if err := e.sweep(ctx, o, owner, evs); err != nil {
			o.Terminate(domain.OrderStatusCancelled, e.x.now())
			*evs = append(*evs, events.OrderTerminated(o))
			e.version++
			return err
		}
		e.settle(o, evs)
		return nil
	})
	return delta, err
}

// BestBid returns the highest resting bid price.
func (e *Engine) BestBid() (int64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.best(domain.SideBuy)
}

// BestAsk returns the lowest resting ask price.
func (e *Engine) BestAsk() (int64, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.best(domain.SideSell)
}

func (e *Engine) best(s domain.Side) (int64, bool) {
	entry, ok := e.book.Best(s)
	if !ok {
		return 0, false
	}
	return entry.Price, true
}

// VolumeAtPrice sums resting volume at exactly price, feasible or not.
func (e *Engine) VolumeAtPrice(s domain.Side, price int64) int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.VolumeAtPrice(s, price)
}

// Orders returns a priority-ordered snapshot of one queue.
func (e *Engine) Orders(s domain.Side) []RestingOrder {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.book.Orders(s)
}

// LastTrade returns the price and time of the most recent trade.
func (e *Engine) LastTrade() (int64, time.Time, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.lastPrice, e.lastAt, e.hasLast
}

// CurrentPrice is the last trade price, or the opening price before the
// first trade.
func (e *Engine) CurrentPrice() int64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.hasLast {
		return e.lastPrice
	}
	return e.opening
}

// PnLSince returns the percentage change of the current price against the
// last price at or before ref, falling back to the opening price.
func (e *Engine) PnLSince(ref time.Time) (float64, error) {
	current := e.CurrentPrice()
	base, ok := e.x.history.PriceAt(e.symbol, ref)
	if !ok {
		base = e.opening
	}
	if base <= 0 {
		return 0, fmt.Errorf("%s: %w", e.symbol, domain.ErrPricingUnavailable)
	}
	return float64(current-base) / float64(base) * 100, nil
}

// Snapshot is a consistent view of one instrument's book.
type Snapshot struct {
	Symbol    string         `json:"symbol"`
	BestBid   int64          `json:"best_bid_cents"`
	BestAsk   int64          `json:"best_ask_cents"`
	HasBid    bool           `json:"has_bid"`
	HasAsk    bool           `json:"has_ask"`
	LastPrice int64          `json:"last_price_cents"`
	LastAt    time.Time      `json:"last_traded_at"`
	HasLast   bool           `json:"has_last"`
	Bids      []RestingOrder `json:"bids"`
	Asks      []RestingOrder `json:"asks"`
	Version   uint64         `json:"version"`
}

// Snapshot reads both queues and the last trade under one read lock.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Snapshot{
		Symbol:    e.symbol,
		LastPrice: e.lastPrice,
		LastAt:    e.lastAt,
		HasLast:   e.hasLast,
		Bids:      e.book.Orders(domain.SideBuy),
		Asks:      e.book.Orders(domain.SideSell),
		Version:   e.version,
	}
	s.BestBid, s.HasBid = e.best(domain.SideBuy)
	s.BestAsk, s.HasAsk = e.best(domain.SideSell)
	return s
}

// copyOrder returns a copy of o taken under the read lock.
func (e *Engine) copyOrder(o *domain.Order) domain.Order {
	e.mu.RLock()
	defer e.mu.RUnlock()
	cp := *o
	cp.TradeIDs = slices.Clone(o.TradeIDs)
	return cp
}
