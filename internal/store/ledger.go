package store

import (
	"sync"

	"github.com/efreitasn/exchangecore/internal/domain"
)

// LedgerStore is a thread-safe arena of ledgers. Ids are dense and start
// at 1; a secondary index resolves usernames.
type LedgerStore struct {
	mu         sync.RWMutex
	ledgers    []*domain.Ledger // ledgers[id-1]
	byUsername map[string]domain.LedgerID
}

// NewLedgerStore creates an empty LedgerStore.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		byUsername: make(map[string]domain.LedgerID),
	}
}

// Create assigns the next id to l and stores it. It returns
// domain.ErrClientExists if the username is taken.
func (s *LedgerStore) Create(l *domain.Ledger) (domain.LedgerID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byUsername[l.Username]; exists {
		return 0, domain.ErrClientExists
	}
	l.ID = domain.LedgerID(len(s.ledgers) + 1)
	s.ledgers = append(s.ledgers, l)
	s.byUsername[l.Username] = l.ID
	return l.ID, nil
}

// Get retrieves a ledger by id. It returns domain.ErrUnknownClient if the
// id is out of range.
func (s *LedgerStore) Get(id domain.LedgerID) (*domain.Ledger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if id == 0 || uint64(id) > uint64(len(s.ledgers)) {
		return nil, domain.ErrUnknownClient
	}
	return s.ledgers[id-1], nil
}

// Resolve maps a client reference to its ledger.
func (s *LedgerStore) Resolve(ref domain.ClientRef) (*domain.Ledger, error) {
	if name, ok := ref.Username(); ok {
		s.mu.RLock()
		id, found := s.byUsername[name]
		s.mu.RUnlock()
		if !found {
			return nil, domain.ErrUnknownClient
		}
		return s.Get(id)
	}
	if id, ok := ref.ID(); ok {
		return s.Get(domain.LedgerID(id))
	}
	return nil, domain.ErrUnknownClient
}

// Len returns the number of registered ledgers.
func (s *LedgerStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ledgers)
}

// All returns every ledger in id order.
func (s *LedgerStore) All() []*domain.Ledger {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.Ledger, len(s.ledgers))
	copy(result, s.ledgers)
	return result
}
