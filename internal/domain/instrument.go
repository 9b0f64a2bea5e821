package domain

import (
	"sort"
	"sync"
)

// InstrumentRegistry is the static table of listed instruments and their
// opening reference prices. Instruments are listed at startup; an order for
// an unlisted ticker fails with ErrUnknownInstrument.
type InstrumentRegistry struct {
	mu       sync.RWMutex
	openings map[string]int64 // symbol → opening price in cents
}

// NewInstrumentRegistry creates an empty InstrumentRegistry.
func NewInstrumentRegistry() *InstrumentRegistry {
	return &InstrumentRegistry{
		openings: make(map[string]int64),
	}
}

// List adds an instrument with its opening price. Listing an instrument
// twice replaces its opening price. Safe for concurrent use.
func (r *InstrumentRegistry) List(symbol string, openingPrice int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.openings[symbol] = openingPrice
}

// Exists returns true if the symbol is listed. Safe for concurrent use.
func (r *InstrumentRegistry) Exists(symbol string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.openings[symbol]
	return ok
}

// OpeningPrice returns the instrument's opening reference price.
func (r *InstrumentRegistry) OpeningPrice(symbol string) (int64, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.openings[symbol]
	return p, ok
}

// Symbols returns all listed symbols in lexical order.
func (r *InstrumentRegistry) Symbols() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.openings))
	for s := range r.openings {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
