package domain

import (
	"fmt"
	"time"
)

// OrderID identifies an order. Ids are dense and start at 1.
type OrderID uint64

// OrderType distinguishes limit orders from market orders.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// Side indicates whether an order buys or sells.
type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// Valid reports whether s is a known side.
func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen            OrderStatus = "open"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusStarved         OrderStatus = "starved"
	OrderStatusKilled          OrderStatus = "killed"
)

// Order is one order's mutable state. It refers to its owner by LedgerID;
// the engine resolves the ledger at time of use.
type Order struct {
	ID           OrderID
	Symbol       string
	Side         Side
	Type         OrderType
	Price        int64 // cents, 0 for market orders
	Remaining    int64
	Total        int64
	LedgerID     LedgerID
	Seq          uint64 // submission sequence, the time-priority tie-break
	SubmittedAt  time.Time
	Terminated   bool
	TerminatedAt time.Time
	Status       OrderStatus
	TradeIDs     []TradeID

	filledValue int64 // Σ price×volume over applied fills
}

// Executed returns the volume already traded.
func (o *Order) Executed() int64 {
	return o.Total - o.Remaining
}

// IsExecutable reports whether the owner's ledger can support at least one
// more unit of this order. l must be the owning ledger, locked.
func (o *Order) IsExecutable(l *Ledger) bool {
	if o.Terminated {
		return false
	}
	if o.Type == OrderTypeMarket {
		return true
	}
	if o.Side == SideSell {
		return l.Volume(o.Symbol) > 0
	}
	return l.Balance >= o.Price
}

// ExecutableVolume is the largest volume that could trade right now at
// tradePrice given the owner's current balance or holdings. Volume whose
// settlement would overflow the owner's ledger is not executable.
func (o *Order) ExecutableVolume(l *Ledger, tradePrice int64) int64 {
	if o.Terminated {
		return 0
	}
	if o.Side == SideBuy {
		return min(o.Remaining, l.buyCapacity(o.Symbol, tradePrice))
	}
	return min(o.Remaining, l.sellCapacity(o.Symbol, tradePrice))
}

// ApplyFill settles volume at tradePrice against the owner's ledger and
// records the trade on the order. It terminates the order once nothing
// remains.
func (o *Order) ApplyFill(l *Ledger, id TradeID, tradePrice, volume int64, at time.Time) error {
	if o.Terminated {
		return fmt.Errorf("order %d: %w", o.ID, ErrOrderTerminated)
	}
	if volume <= 0 || volume > o.Remaining {
		return fmt.Errorf("order %d: fill %d exceeds remaining %d: %w", o.ID, volume, o.Remaining, ErrOverfillAttempted)
	}
	var err error
	if o.Side == SideBuy {
		err = l.DebitForBuy(o.Symbol, tradePrice, volume)
	} else {
		err = l.CreditForSell(o.Symbol, tradePrice, volume)
	}
	if err != nil {
		return err
	}
	o.Remaining -= volume
	o.filledValue += tradePrice * volume
	o.TradeIDs = append(o.TradeIDs, id)
	if o.Remaining == 0 {
		o.Terminate(OrderStatusFilled, at)
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
	return nil
}

// Edit replaces the price and total volume. Volume can shrink by at most
// what is still resting: executed volume is settled and cannot be undone.
// It returns the applied change to total.
func (o *Order) Edit(newPrice, newTotal int64) (int64, error) {
	if o.Terminated {
		return 0, fmt.Errorf("order %d: %w", o.ID, ErrOrderTerminated)
	}
	delta := max(newTotal-o.Total, -o.Remaining)
	o.Total += delta
	o.Remaining += delta
	o.Price = newPrice
	return delta, nil
}

// Terminate marks the order done with the given final status. Calling it
// again has no effect. It returns the executed and total volume.
func (o *Order) Terminate(status OrderStatus, at time.Time) (executed, total int64) {
	if !o.Terminated {
		o.Terminated = true
		o.TerminatedAt = at
		o.Status = status
	}
	return o.Executed(), o.Total
}

// AveragePrice computes the volume-weighted average execution price using
// integer arithmetic. Returns (price, true) when fills exist, or (0, false)
// when nothing has executed.
func (o *Order) AveragePrice() (int64, bool) {
	executed := o.Executed()
	if len(o.TradeIDs) == 0 || executed == 0 {
		return 0, false
	}
	return o.filledValue / executed, true
}

// Resting reports whether the order belongs in a queue.
func (o *Order) Resting() bool {
	return !o.Terminated && o.Remaining > 0 && o.Type == OrderTypeLimit
}
