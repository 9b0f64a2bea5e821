package engine

import (
	"time"

	"github.com/google/btree"

	"github.com/efreitasn/exchangecore/internal/domain"
)

// bookEntry is a single order resting in a queue. Price and Seq are copied
// from the order at insertion so the tree key never changes underneath it.
type bookEntry struct {
	Price   int64
	Seq     uint64
	OrderID domain.OrderID
	Order   *domain.Order
}

// RestingOrder is the public view of one queued order.
type RestingOrder struct {
	OrderID     domain.OrderID  `json:"order_id"`
	LedgerID    domain.LedgerID `json:"ledger_id"`
	SubmittedAt time.Time       `json:"timestamp"`
	Price       int64           `json:"price_cents"`
	Volume      int64           `json:"volume"`
}

// bidLess orders bids by price descending, then submission sequence
// ascending, then order id. Min() is the best bid.
func bidLess(a, b bookEntry) bool {
	if a.Price != b.Price {
		return a.Price > b.Price
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.OrderID < b.OrderID
}

// askLess orders asks by price ascending, then submission sequence
// ascending, then order id. Min() is the best ask.
func askLess(a, b bookEntry) bool {
	if a.Price != b.Price {
		return a.Price < b.Price
	}
	if a.Seq != b.Seq {
		return a.Seq < b.Seq
	}
	return a.OrderID < b.OrderID
}

// OrderBook holds the bid and ask queues for one instrument, backed by
// B-trees with a secondary index for O(log n) removal by order id.
// It is not safe for concurrent use; the owning Engine serializes access.
type OrderBook struct {
	symbol string
	bids   *btree.BTreeG[bookEntry]
	asks   *btree.BTreeG[bookEntry]
	index  map[domain.OrderID]bookEntry
}

// NewOrderBook creates an empty book for symbol.
func NewOrderBook(symbol string) *OrderBook {
	const degree = 32
	return &OrderBook{
		symbol: symbol,
		bids:   btree.NewG[bookEntry](degree, bidLess),
		asks:   btree.NewG[bookEntry](degree, askLess),
		index:  make(map[domain.OrderID]bookEntry),
	}
}

func (ob *OrderBook) side(s domain.Side) *btree.BTreeG[bookEntry] {
	if s == domain.SideBuy {
		return ob.bids
	}
	return ob.asks
}

// Insert queues o on its own side.
func (ob *OrderBook) Insert(o *domain.Order) {
	entry := bookEntry{Price: o.Price, Seq: o.Seq, OrderID: o.ID, Order: o}
	ob.side(o.Side).ReplaceOrInsert(entry)
	ob.index[o.ID] = entry
}

// Remove deletes an order by id. It reports whether the order was queued.
func (ob *OrderBook) Remove(id domain.OrderID) bool {
	entry, ok := ob.index[id]
	if !ok {
		return false
	}
	delete(ob.index, id)
	ob.side(entry.Order.Side).Delete(entry)
	return true
}

// Contains reports whether the order is queued.
func (ob *OrderBook) Contains(id domain.OrderID) bool {
	_, ok := ob.index[id]
	return ok
}

// Best returns the highest-priority entry on a side.
func (ob *OrderBook) Best(s domain.Side) (bookEntry, bool) {
	return ob.side(s).Min()
}

// FirstNotOwnedBy returns the highest-priority order on a side that
// belongs to a different ledger. Same-owner orders are skipped, not
// removed.
func (ob *OrderBook) FirstNotOwnedBy(s domain.Side, owner domain.LedgerID) (*domain.Order, bool) {
	var found *domain.Order
	ob.Walk(s, func(o *domain.Order) bool {
		if o.LedgerID == owner {
			return true
		}
		found = o
		return false
	})
	return found, found != nil
}

// VolumeAtPrice sums the remaining volume of every order queued on a side
// at exactly price.
func (ob *OrderBook) VolumeAtPrice(s domain.Side, price int64) int64 {
	var total int64
	ob.side(s).AscendGreaterOrEqual(bookEntry{Price: price}, func(e bookEntry) bool {
		if e.Price != price {
			return false
		}
		total += e.Order.Remaining
		return true
	})
	return total
}

// Orders returns a priority-ordered snapshot of one side.
func (ob *OrderBook) Orders(s domain.Side) []RestingOrder {
	tree := ob.side(s)
	out := make([]RestingOrder, 0, tree.Len())
	tree.Ascend(func(e bookEntry) bool {
		out = append(out, RestingOrder{
			OrderID:     e.OrderID,
			LedgerID:    e.Order.LedgerID,
			SubmittedAt: e.Order.SubmittedAt,
			Price:       e.Price,
			Volume:      e.Order.Remaining,
		})
		return true
	})
	return out
}

// Walk iterates one side in priority order until fn returns false.
func (ob *OrderBook) Walk(s domain.Side, fn func(*domain.Order) bool) {
	ob.side(s).Ascend(func(e bookEntry) bool {
		return fn(e.Order)
	})
}

// Len returns the number of orders queued on a side.
func (ob *OrderBook) Len(s domain.Side) int {
	return ob.side(s).Len()
}
