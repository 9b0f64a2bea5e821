package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/efreitasn/exchangecore/internal/domain"
)

// TradeStore is a thread-safe in-memory store for trades, indexed by id
// and by symbol. Per-symbol lists are chronological.
//
// TradeStore is also the in-memory trade sink: RecordTrade issues ids
// and never fails.
type TradeStore struct {
	mu       sync.RWMutex
	lastID   uint64
	byID     map[domain.TradeID]*domain.Trade
	bySymbol map[string][]*domain.Trade
}

// NewTradeStore creates an empty TradeStore.
func NewTradeStore() *TradeStore {
	return &TradeStore{
		byID:     make(map[domain.TradeID]*domain.Trade),
		bySymbol: make(map[string][]*domain.Trade),
	}
}

// RecordTrade reserves the next trade id for a ticket.
func (s *TradeStore) RecordTrade(_ context.Context, _ domain.TradeTicket) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastID++
	return s.lastID, nil
}

// Append adds a committed trade. Trades of one symbol must be appended in
// execution order.
func (s *TradeStore) Append(t *domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appendLocked(t)
}

func (s *TradeStore) appendLocked(t *domain.Trade) {
	s.byID[t.ID] = t
	s.bySymbol[t.Symbol] = append(s.bySymbol[t.Symbol], t)
	if uint64(t.ID) > s.lastID {
		s.lastID = uint64(t.ID)
	}
}

// Restore loads previously journaled trades. Trades are re-sorted by
// execution time per symbol and later ids continue after the highest
// restored id.
func (s *TradeStore) Restore(trades []*domain.Trade) {
	s.mu.Lock()
	defer s.mu.Unlock()

	touched := make(map[string]struct{})
	for _, t := range trades {
		if _, dup := s.byID[t.ID]; dup {
			continue
		}
		s.appendLocked(t)
		touched[t.Symbol] = struct{}{}
	}
	for symbol := range touched {
		list := s.bySymbol[symbol]
		sort.SliceStable(list, func(i, j int) bool {
			return list[i].ExecutedAt.Before(list[j].ExecutedAt)
		})
	}
}

// Get retrieves a trade by id.
func (s *TradeStore) Get(id domain.TradeID) (*domain.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.byID[id]
	return t, ok
}

// GetBySymbol returns all trades for a symbol in chronological order.
// Returns an empty slice if no trades exist for the symbol.
func (s *TradeStore) GetBySymbol(symbol string) []*domain.Trade {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.bySymbol[symbol]
	result := make([]*domain.Trade, len(trades))
	copy(result, trades)
	return result
}

// Last returns the most recent trade for a symbol.
func (s *TradeStore) Last(symbol string) (*domain.Trade, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.bySymbol[symbol]
	if len(trades) == 0 {
		return nil, false
	}
	return trades[len(trades)-1], true
}

// PriceAt returns the price of the last trade executed at or before t.
func (s *TradeStore) PriceAt(symbol string, t time.Time) (int64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	trades := s.bySymbol[symbol]
	i := sort.Search(len(trades), func(i int) bool {
		return trades[i].ExecutedAt.After(t)
	})
	if i == 0 {
		return 0, false
	}
	return trades[i-1].Price, true
}

// Len returns the number of stored trades.
func (s *TradeStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
