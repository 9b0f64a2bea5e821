package store

import (
	"sync"

	"github.com/efreitasn/exchangecore/internal/domain"
)

// OrderStore is a thread-safe arena of orders with a secondary index by
// owning ledger. Orders are never removed; terminated orders remain as
// history.
type OrderStore struct {
	mu           sync.RWMutex
	orders       []*domain.Order                     // orders[id-1]
	ledgerOrders map[domain.LedgerID][]*domain.Order // append-only
}

// NewOrderStore creates an empty OrderStore.
func NewOrderStore() *OrderStore {
	return &OrderStore{
		ledgerOrders: make(map[domain.LedgerID][]*domain.Order),
	}
}

// Create assigns the next order id to o, stores it, and appends it to
// the owner's secondary index.
func (s *OrderStore) Create(o *domain.Order) domain.OrderID {
	s.mu.Lock()
	defer s.mu.Unlock()

	o.ID = domain.OrderID(len(s.orders) + 1)
	s.orders = append(s.orders, o)
	s.ledgerOrders[o.LedgerID] = append(s.ledgerOrders[o.LedgerID], o)
	return o.ID
}

// Get retrieves an order by id. It returns domain.ErrUnknownOrder if the
// id is out of range.
func (s *OrderStore) Get(id domain.OrderID) (*domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == 0 || uint64(id) > uint64(len(s.orders)) {
		return nil, domain.ErrUnknownOrder
	}
	return s.orders[id-1], nil
}

// ListByLedger returns a ledger's orders newest first. Pagination is
// 1-based. It returns the requested page and the total number of orders
// before pagination.
func (s *OrderStore) ListByLedger(id domain.LedgerID, page, limit int) ([]*domain.Order, int) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.ledgerOrders[id]
	total := len(all)

	// Bounding page before multiplying keeps start within [0, total].
	if page < 1 || limit < 1 || page-1 > total/limit {
		return []*domain.Order{}, total
	}
	start := (page - 1) * limit
	if start >= total {
		return []*domain.Order{}, total
	}
	end := min(start+limit, total)

	result := make([]*domain.Order, 0, end-start)
	for i := total - 1 - start; i >= total-end; i-- {
		result = append(result, all[i])
	}
	return result, total
}
