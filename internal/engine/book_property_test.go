package engine

import (
	"fmt"
	"testing"

	"pgregory.net/rapid"

	"github.com/efreitasn/exchangecore/internal/domain"
)

// Feature: exchange-core, Property 3: Queue ordering invariant

func genBookOrder(id int, side domain.Side) *rapid.Generator[*domain.Order] {
	return rapid.Custom(func(t *rapid.T) *domain.Order {
		price := rapid.Int64Range(1, 50).Draw(t, "price")
		// A narrow sequence range forces ties that the order id resolves.
		seq := rapid.Uint64Range(1, 20).Draw(t, "seq")
		return makeOrder(domain.OrderID(id), side, price, 1, seq, 1)
	})
}

func checkQueueOrder(t *rapid.T, book *OrderBook, side domain.Side) {
	var prev *domain.Order
	book.Walk(side, func(o *domain.Order) bool {
		if prev != nil {
			better := o.Price > prev.Price
			if side == domain.SideSell {
				better = o.Price < prev.Price
			}
			if better {
				t.Fatalf("%s side: price %d queued after %d", side, o.Price, prev.Price)
			}
			if o.Price == prev.Price {
				if o.Seq < prev.Seq {
					t.Fatalf("%s side: seq %d queued after %d at price %d", side, o.Seq, prev.Seq, o.Price)
				}
				if o.Seq == prev.Seq && o.ID < prev.ID {
					t.Fatalf("%s side: order %d queued after %d", side, o.ID, prev.ID)
				}
			}
		}
		prev = o
		return true
	})
}

func TestProperty_QueueOrdering(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		book := NewOrderBook("TEST")
		n := rapid.IntRange(1, 60).Draw(t, "numOrders")

		for i := 1; i <= n; i++ {
			side := rapid.SampledFrom([]domain.Side{domain.SideBuy, domain.SideSell}).Draw(t, fmt.Sprintf("side-%d", i))
			book.Insert(genBookOrder(i, side).Draw(t, fmt.Sprintf("order-%d", i)))
			if rapid.IntRange(0, 4).Draw(t, fmt.Sprintf("remove-%d", i)) == 0 {
				book.Remove(domain.OrderID(rapid.IntRange(1, i).Draw(t, fmt.Sprintf("victim-%d", i))))
			}
		}

		checkQueueOrder(t, book, domain.SideBuy)
		checkQueueOrder(t, book, domain.SideSell)
		if book.Len(domain.SideBuy)+book.Len(domain.SideSell) != len(book.index) {
			t.Fatalf("index holds %d entries, queues hold %d", len(book.index),
				book.Len(domain.SideBuy)+book.Len(domain.SideSell))
		}
	})
}
