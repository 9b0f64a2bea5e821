package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/events"
	"github.com/efreitasn/exchangecore/internal/store"
)

// TradeSink hands a priced trade to a persistence collaborator before it
// is committed. The returned id becomes the trade's identity; an error
// aborts the trade.
type TradeSink interface {
	RecordTrade(ctx context.Context, t domain.TradeTicket) (uint64, error)
}

// PriceHistory answers "what was the last trade price at or before t".
type PriceHistory interface {
	PriceAt(symbol string, t time.Time) (int64, bool)
}

// LedgerResolver maps client references and ledger ids to ledgers.
type LedgerResolver interface {
	Get(id domain.LedgerID) (*domain.Ledger, error)
	Resolve(ref domain.ClientRef) (*domain.Ledger, error)
}

// Publisher receives the events produced by the engines. Engines publish
// while holding the instrument lock, so Publish must not block or call
// back into the Exchange.
type Publisher interface {
	Publish(evs ...events.Event)
}

type discardPublisher struct{}

func (discardPublisher) Publish(...events.Event) {}

// Deps are the collaborators of an Exchange. Sink and History default to
// Trades; Publisher defaults to discarding events.
type Deps struct {
	Ledgers   LedgerResolver
	Orders    *store.OrderStore
	Trades    *store.TradeStore
	Sink      TradeSink
	History   PriceHistory
	Publisher Publisher
	Logger    *slog.Logger
	Clock     func() time.Time
	PnLWindow time.Duration
}

// Exchange owns one Engine per listed instrument and exposes the
// exchange operations by ticker. Engines are created up front and the
// map is never written afterwards.
type Exchange struct {
	engines     map[string]*Engine
	instruments *domain.InstrumentRegistry

	ledgers   LedgerResolver
	orders    *store.OrderStore
	trades    *store.TradeStore
	sink      TradeSink
	history   PriceHistory
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
	pnlWindow time.Duration

	seq atomic.Uint64
}

// NewExchange creates an engine for every instrument in the registry.
func NewExchange(instruments *domain.InstrumentRegistry, deps Deps) *Exchange {
	x := &Exchange{
		engines:     make(map[string]*Engine),
		instruments: instruments,
		ledgers:     deps.Ledgers,
		orders:      deps.Orders,
		trades:      deps.Trades,
		sink:        deps.Sink,
		history:     deps.History,
		publisher:   deps.Publisher,
		logger:      deps.Logger,
		now:         deps.Clock,
		pnlWindow:   deps.PnLWindow,
	}
	if x.sink == nil {
		x.sink = deps.Trades
	}
	if x.history == nil {
		x.history = deps.Trades
	}
	if x.publisher == nil {
		x.publisher = discardPublisher{}
	}
	if x.logger == nil {
		x.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if x.now == nil {
		x.now = time.Now
	}
	if x.pnlWindow <= 0 {
		x.pnlWindow = 24 * time.Hour
	}

	for _, symbol := range instruments.Symbols() {
		opening, _ := instruments.OpeningPrice(symbol)
		x.engines[symbol] = newEngine(x, symbol, opening)
	}
	return x
}

func (x *Exchange) nextSeq() uint64 {
	return x.seq.Add(1)
}

// Engine returns the engine for ticker.
func (x *Exchange) Engine(ticker string) (*Engine, error) {
	e, ok := x.engines[ticker]
	if !ok {
		return nil, fmt.Errorf("%q: %w", ticker, domain.ErrUnknownInstrument)
	}
	return e, nil
}

// Symbols lists the tickers traded on this exchange.
func (x *Exchange) Symbols() []string {
	return x.instruments.Symbols()
}

// PlaceLimitOrder submits a limit order for the referenced client.
func (x *Exchange) PlaceLimitOrder(ctx context.Context, ticker string, side domain.Side, price, volume int64, ref domain.ClientRef) (domain.OrderID, error) {
	e, owner, err := x.admit(ticker, side, domain.OrderTypeLimit, price, volume, ref)
	if err != nil {
		return 0, err
	}
	return e.SubmitLimit(ctx, owner, side, price, volume)
}

// PlaceMarketOrder submits a market order for the referenced client.
func (x *Exchange) PlaceMarketOrder(ctx context.Context, ticker string, side domain.Side, volume int64, ref domain.ClientRef) (domain.OrderID, error) {
	e, owner, err := x.admit(ticker, side, domain.OrderTypeMarket, 0, volume, ref)
	if err != nil {
		return 0, err
	}
	return e.SubmitMarket(ctx, owner, side, volume)
}

// admit resolves and validates a submission. Failures are published as
// order.rejected and leave every book untouched.
func (x *Exchange) admit(ticker string, side domain.Side, typ domain.OrderType, price, volume int64, ref domain.ClientRef) (*Engine, *domain.Ledger, error) {
	var owner domain.LedgerID
	e, l, err := func() (*Engine, *domain.Ledger, error) {
		l, err := x.ledgers.Resolve(ref)
		if err != nil {
			return nil, nil, fmt.Errorf("%s: %w", ref, err)
		}
		owner = l.ID
		e, err := x.Engine(ticker)
		if err != nil {
			return nil, nil, err
		}
		if err := validateOrder(side, typ, price, volume); err != nil {
			return nil, nil, err
		}
		return e, l, nil
	}()
	if err != nil {
		x.publisher.Publish(events.OrderRejected(ticker, owner, side, typ, err, x.now()))
		return nil, nil, err
	}
	return e, l, nil
}

func validateOrder(side domain.Side, typ domain.OrderType, price, volume int64) error {
	if !side.Valid() {
		return &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if volume <= 0 {
		return &domain.ValidationError{Message: "volume must be greater than 0"}
	}
	if typ == domain.OrderTypeLimit && price <= 0 {
		return &domain.ValidationError{Message: "price must be greater than 0"}
	}
	return nil
}

// CancelOrder cancels an order. Cancelling a terminated order is a no-op.
func (x *Exchange) CancelOrder(id domain.OrderID) error {
	o, err := x.orders.Get(id)
	if err != nil {
		return err
	}
	e, err := x.Engine(o.Symbol)
	if err != nil {
		return err
	}
	e.Cancel(o)
	return nil
}

// EditOrder replaces a resting order's price and volume and returns the
// applied volume change.
func (x *Exchange) EditOrder(ctx context.Context, id domain.OrderID, newPrice, newVolume int64) (int64, error) {
	if newPrice <= 0 {
		return 0, &domain.ValidationError{Message: "price must be greater than 0"}
	}
	if newVolume <= 0 {
		return 0, &domain.ValidationError{Message: "volume must be greater than 0"}
	}
	o, err := x.orders.Get(id)
	if err != nil {
		return 0, err
	}
	e, err := x.Engine(o.Symbol)
	if err != nil {
		return 0, err
	}
	owner, err := x.ledgers.Get(o.LedgerID)
	if err != nil {
		return 0, err
	}
	return e.Edit(ctx, o, owner, newPrice, newVolume)
}

// Order returns a consistent copy of an order.
func (x *Exchange) Order(id domain.OrderID) (domain.Order, error) {
	o, err := x.orders.Get(id)
	if err != nil {
		return domain.Order{}, err
	}
	e, err := x.Engine(o.Symbol)
	if err != nil {
		return domain.Order{}, err
	}
	return e.copyOrder(o), nil
}

// OrdersByClient returns a page of a client's orders, newest first, and
// the client's total order count.
func (x *Exchange) OrdersByClient(ref domain.ClientRef, page, limit int) ([]domain.Order, int, error) {
	l, err := x.ledgers.Resolve(ref)
	if err != nil {
		return nil, 0, err
	}
	orders, total := x.orders.ListByLedger(l.ID, page, limit)
	out := make([]domain.Order, 0, len(orders))
	for _, o := range orders {
		e, err := x.Engine(o.Symbol)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e.copyOrder(o))
	}
	return out, total, nil
}

// BestBid returns the best bid price for ticker; ok is false when no bid
// rests.
func (x *Exchange) BestBid(ticker string) (price int64, ok bool, err error) {
	e, err := x.Engine(ticker)
	if err != nil {
		return 0, false, err
	}
	price, ok = e.BestBid()
	return price, ok, nil
}

// BestAsk returns the best ask price for ticker; ok is false when no ask
// rests.
func (x *Exchange) BestAsk(ticker string) (price int64, ok bool, err error) {
	e, err := x.Engine(ticker)
	if err != nil {
		return 0, false, err
	}
	price, ok = e.BestAsk()
	return price, ok, nil
}

// Best returns both sides of the top of book read together. An empty side
// reports 0.
func (x *Exchange) Best(ticker string) (bid, ask int64, err error) {
	s, err := x.Snapshot(ticker)
	if err != nil {
		return 0, 0, err
	}
	return s.BestBid, s.BestAsk, nil
}

// VolumeAtPrice sums the resting volume on side at exactly price.
func (x *Exchange) VolumeAtPrice(ticker string, side domain.Side, price int64) (int64, error) {
	e, err := x.Engine(ticker)
	if err != nil {
		return 0, err
	}
	if !side.Valid() {
		return 0, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	return e.VolumeAtPrice(side, price), nil
}

// AllBids returns the bid queue in priority order.
func (x *Exchange) AllBids(ticker string) ([]RestingOrder, error) {
	e, err := x.Engine(ticker)
	if err != nil {
		return nil, err
	}
	return e.Orders(domain.SideBuy), nil
}

// AllAsks returns the ask queue in priority order.
func (x *Exchange) AllAsks(ticker string) ([]RestingOrder, error) {
	e, err := x.Engine(ticker)
	if err != nil {
		return nil, err
	}
	return e.Orders(domain.SideSell), nil
}

// LastPrice returns the most recent trade price; ok is false before the
// first trade.
func (x *Exchange) LastPrice(ticker string) (price int64, ok bool, err error) {
	e, err := x.Engine(ticker)
	if err != nil {
		return 0, false, err
	}
	price, _, ok = e.LastTrade()
	return price, ok, nil
}

// LastTimestamp returns when the most recent trade executed.
func (x *Exchange) LastTimestamp(ticker string) (at time.Time, ok bool, err error) {
	e, err := x.Engine(ticker)
	if err != nil {
		return time.Time{}, false, err
	}
	_, at, ok = e.LastTrade()
	return at, ok, nil
}

// PnL24h returns the percentage price change over the configured window.
func (x *Exchange) PnL24h(ticker string) (float64, error) {
	e, err := x.Engine(ticker)
	if err != nil {
		return 0, err
	}
	return e.PnLSince(x.now().Add(-x.pnlWindow))
}

// Snapshot returns a consistent view of ticker's book.
func (x *Exchange) Snapshot(ticker string) (Snapshot, error) {
	e, err := x.Engine(ticker)
	if err != nil {
		return Snapshot{}, err
	}
	return e.Snapshot(), nil
}

// PriceLookup captures the current price of every instrument. Prices are
// read before any ledger lock is taken.
func (x *Exchange) PriceLookup() domain.PriceLookup {
	prices := make(map[string]int64, len(x.engines))
	for symbol, e := range x.engines {
		prices[symbol] = e.CurrentPrice()
	}
	return func(symbol string) (int64, bool) {
		p, ok := prices[symbol]
		return p, ok
	}
}

// PortfolioValue returns the client's balance plus holdings at current
// prices.
func (x *Exchange) PortfolioValue(ref domain.ClientRef) (int64, error) {
	l, err := x.ledgers.Resolve(ref)
	if err != nil {
		return 0, err
	}
	prices := x.PriceLookup()
	l.Mu.Lock()
	defer l.Mu.Unlock()
	return l.PortfolioValue(prices)
}

// PortfolioPnL returns the client's holdings' percentage gain over cost.
func (x *Exchange) PortfolioPnL(ref domain.ClientRef) (float64, error) {
	l, err := x.ledgers.Resolve(ref)
	if err != nil {
		return 0, err
	}
	prices := x.PriceLookup()
	l.Mu.Lock()
	defer l.Mu.Unlock()
	return l.PortfolioPnL(prices)
}
