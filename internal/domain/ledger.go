package domain

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// LedgerID identifies an AccountLedger. Ids are dense and start at 1.
type LedgerID uint64

// Holding represents a ledger's position in a single instrument.
type Holding struct {
	Volume    int64
	CostBasis int64 // cents paid for the current volume
}

// NewHolding opens a position of volume units booked at price each.
func NewHolding(volume, price int64) (*Holding, error) {
	cost, ok := mulCents(price, volume)
	if !ok {
		return nil, fmt.Errorf("holding of %d @ %d: %w", volume, price, ErrLedgerOverflow)
	}
	return &Holding{Volume: volume, CostBasis: cost}, nil
}

// Ledger is one participant's cash balance and instrument holdings.
//
// Mu serializes every mutation of the ledger independently of any
// instrument lock. Methods do not lock; callers hold Mu.
type Ledger struct {
	ID        LedgerID
	Username  string
	Balance   int64               // cents, never negative
	Holdings  map[string]*Holding // symbol → holding; zero-volume entries are removed
	CreatedAt time.Time
	Mu        sync.Mutex
}

// NewLedger builds a ledger with the given opening balance. A nil holdings
// map yields an empty portfolio.
func NewLedger(username string, balance int64, holdings map[string]*Holding) *Ledger {
	if holdings == nil {
		holdings = make(map[string]*Holding)
	}
	return &Ledger{
		Username:  username,
		Balance:   balance,
		Holdings:  holdings,
		CreatedAt: time.Now(),
	}
}

// Volume returns the held volume of symbol, or 0.
func (l *Ledger) Volume(symbol string) int64 {
	h, ok := l.Holdings[symbol]
	if !ok {
		return 0
	}
	return h.Volume
}

// AverageCost returns the average price paid per held unit of symbol.
func (l *Ledger) AverageCost(symbol string) (int64, bool) {
	h, ok := l.Holdings[symbol]
	if !ok || h.Volume == 0 {
		return 0, false
	}
	return h.CostBasis / h.Volume, true
}

// DebitForBuy settles the buying side of a trade: balance decreases by
// price×volume and the symbol's volume increases.
func (l *Ledger) DebitForBuy(symbol string, price, volume int64) error {
	cost, ok := mulCents(price, volume)
	if volume <= 0 || !ok || l.Balance < cost {
		return fmt.Errorf("buy %d %s @ %d: %w", volume, symbol, price, ErrInsufficientFunds)
	}
	h, held := l.Holdings[symbol]
	if !held {
		h = &Holding{}
	}
	newVolume, okVolume := addCents(h.Volume, volume)
	newBasis, okBasis := addCents(h.CostBasis, cost)
	if !okVolume || !okBasis {
		return fmt.Errorf("buy %d %s @ %d: %w", volume, symbol, price, ErrLedgerOverflow)
	}
	l.Balance -= cost
	h.Volume, h.CostBasis = newVolume, newBasis
	if !held {
		l.Holdings[symbol] = h
	}
	return nil
}

// CreditForSell settles the selling side of a trade: balance increases by
// price×volume and the symbol's volume decreases. The cost basis shrinks
// in proportion. The holding is removed once it reaches zero.
func (l *Ledger) CreditForSell(symbol string, price, volume int64) error {
	h, ok := l.Holdings[symbol]
	if volume <= 0 || !ok || h.Volume < volume {
		return fmt.Errorf("sell %d %s @ %d: %w", volume, symbol, price, ErrInsufficientHoldings)
	}
	proceeds, ok := mulCents(price, volume)
	if ok {
		proceeds, ok = addCents(l.Balance, proceeds)
	}
	if !ok {
		return fmt.Errorf("sell %d %s @ %d: %w", volume, symbol, price, ErrLedgerOverflow)
	}
	l.Balance = proceeds
	h.CostBasis -= costShare(h, volume)
	h.Volume -= volume
	if h.Volume == 0 {
		delete(l.Holdings, symbol)
	}
	return nil
}

// costShare is the part of h's cost basis attributable to volume units,
// truncated to the cent.
func costShare(h *Holding, volume int64) int64 {
	if volume == h.Volume {
		return h.CostBasis
	}
	return decimal.NewFromInt(h.CostBasis).
		Mul(decimal.NewFromInt(volume)).
		Div(decimal.NewFromInt(h.Volume)).
		IntPart()
}

// buyCapacity is the largest volume of symbol the ledger can pay for at
// price without its holding overflowing.
func (l *Ledger) buyCapacity(symbol string, price int64) int64 {
	if price <= 0 {
		return 0
	}
	n := l.Balance / price
	if h, ok := l.Holdings[symbol]; ok {
		n = min(n, headroom(h.CostBasis, price), math.MaxInt64-h.Volume)
	}
	return max(n, 0)
}

// sellCapacity is the largest volume of symbol the ledger can deliver at
// price without its balance overflowing.
func (l *Ledger) sellCapacity(symbol string, price int64) int64 {
	return min(l.Volume(symbol), headroom(l.Balance, price))
}

// undoDebitForBuy reverses a DebitForBuy that was applied with the same
// arguments. Only used to unwind a half-settled trade.
func (l *Ledger) undoDebitForBuy(symbol string, price, volume int64) {
	l.Balance += price * volume
	h := l.Holdings[symbol]
	h.Volume -= volume
	h.CostBasis -= price * volume
	if h.Volume == 0 {
		delete(l.Holdings, symbol)
	}
}

// Deposit adds external cash to the balance.
func (l *Ledger) Deposit(amount int64) error {
	if amount <= 0 {
		return &ValidationError{Message: "deposit amount must be positive"}
	}
	balance, ok := addCents(l.Balance, amount)
	if !ok {
		return fmt.Errorf("deposit %d: %w", amount, ErrLedgerOverflow)
	}
	l.Balance = balance
	return nil
}

// Withdraw removes cash from the balance.
func (l *Ledger) Withdraw(amount int64) error {
	if amount <= 0 {
		return &ValidationError{Message: "withdrawal amount must be positive"}
	}
	if l.Balance < amount {
		return ErrInsufficientFunds
	}
	l.Balance -= amount
	return nil
}

// PriceLookup returns the current price of a symbol in cents.
type PriceLookup func(symbol string) (int64, bool)

// PortfolioValue returns balance plus the market value of all holdings.
func (l *Ledger) PortfolioValue(price PriceLookup) (int64, error) {
	value := l.Balance
	for symbol, h := range l.Holdings {
		p, ok := price(symbol)
		if !ok {
			return 0, fmt.Errorf("%s: %w", symbol, ErrPricingUnavailable)
		}
		value += h.Volume * p
	}
	return value, nil
}

// PortfolioPnL returns the percentage change of the holdings' market value
// against what was paid for them. An empty portfolio yields 0.
func (l *Ledger) PortfolioPnL(price PriceLookup) (float64, error) {
	var market, cost int64
	for symbol, h := range l.Holdings {
		p, ok := price(symbol)
		if !ok {
			return 0, fmt.Errorf("%s: %w", symbol, ErrPricingUnavailable)
		}
		market += h.Volume * p
		cost += h.CostBasis
	}
	if cost == 0 {
		return 0, nil
	}
	return float64(market-cost) / float64(cost) * 100, nil
}
