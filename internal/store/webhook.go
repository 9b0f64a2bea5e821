package store

import (
	"sync"

	"github.com/efreitasn/exchangecore/internal/domain"
)

// WebhookStore is a thread-safe in-memory store for webhooks.
// Primary index: webhook_id → webhook.
// Secondary index: ledger → event → webhook.
type WebhookStore struct {
	mu       sync.RWMutex
	webhooks map[string]*domain.Webhook
	byLedger map[domain.LedgerID]map[string]*domain.Webhook
}

// NewWebhookStore creates an empty WebhookStore.
func NewWebhookStore() *WebhookStore {
	return &WebhookStore{
		webhooks: make(map[string]*domain.Webhook),
		byLedger: make(map[domain.LedgerID]map[string]*domain.Webhook),
	}
}

// Upsert inserts or updates the subscription keyed by (ledger, event).
// An existing subscription keeps its webhook_id and takes the new URL.
// It returns the stored webhook and whether it was newly created.
func (s *WebhookStore) Upsert(w *domain.Webhook) (*domain.Webhook, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byLedger[w.LedgerID][w.Event]; ok {
		if existing.URL != w.URL {
			existing.URL = w.URL
			existing.UpdatedAt = w.UpdatedAt
		}
		return existing, false
	}

	s.webhooks[w.WebhookID] = w
	if s.byLedger[w.LedgerID] == nil {
		s.byLedger[w.LedgerID] = make(map[string]*domain.Webhook)
	}
	s.byLedger[w.LedgerID][w.Event] = w
	return w, true
}

// Get retrieves a webhook by id. It returns domain.ErrWebhookNotFound if
// the webhook does not exist.
func (s *WebhookStore) Get(id string) (*domain.Webhook, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	w, ok := s.webhooks[id]
	if !ok {
		return nil, domain.ErrWebhookNotFound
	}
	return w, nil
}

// ListByLedger returns all webhooks for a ledger.
func (s *WebhookStore) ListByLedger(id domain.LedgerID) []*domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.byLedger[id]
	result := make([]*domain.Webhook, 0, len(events))
	for _, w := range events {
		result = append(result, w)
	}
	return result
}

// Delete removes a webhook from both indexes. It returns
// domain.ErrWebhookNotFound if the webhook does not exist.
func (s *WebhookStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.webhooks[id]
	if !ok {
		return domain.ErrWebhookNotFound
	}
	delete(s.webhooks, id)

	if events, ok := s.byLedger[w.LedgerID]; ok {
		delete(events, w.Event)
		if len(events) == 0 {
			delete(s.byLedger, w.LedgerID)
		}
	}
	return nil
}

// Lookup returns the subscription for a ledger and event, or nil.
func (s *WebhookStore) Lookup(id domain.LedgerID, event string) *domain.Webhook {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byLedger[id][event]
}
