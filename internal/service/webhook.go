package service

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/events"
	"github.com/efreitasn/exchangecore/internal/store"
)

// Valid webhook event types.
var validWebhookEvents = map[string]bool{
	string(events.KindTradeExecuted):   true,
	string(events.KindOrderTerminated): true,
	string(events.KindOrderRejected):   true,
}

// UpsertWebhookRequest represents the input for webhook registration.
type UpsertWebhookRequest struct {
	Client domain.ClientRef
	URL    string
	Events []string
}

// WebhookService handles webhook CRUD and delivers matching events.
type WebhookService struct {
	store   *store.WebhookStore
	ledgers *store.LedgerStore
	client  *http.Client
	logger  *slog.Logger
}

// NewWebhookService creates a new WebhookService with the given dependencies.
func NewWebhookService(
	webhookStore *store.WebhookStore,
	ledgers *store.LedgerStore,
	webhookTimeout time.Duration,
	logger *slog.Logger,
) *WebhookService {
	return &WebhookService{
		store:   webhookStore,
		ledgers: ledgers,
		client: &http.Client{
			Timeout: webhookTimeout,
		},
		logger: logger,
	}
}

// Upsert validates the request and creates or updates webhook subscriptions.
// Returns the resulting webhooks, whether any new subscriptions were created, and any error.
func (s *WebhookService) Upsert(req UpsertWebhookRequest) ([]*domain.Webhook, bool, error) {
	l, err := s.ledgers.Resolve(req.Client)
	if err != nil {
		return nil, false, err
	}

	if req.URL == "" {
		return nil, false, &domain.ValidationError{Message: "url is required"}
	}
	if len(req.URL) > 2048 {
		return nil, false, &domain.ValidationError{Message: "url must be at most 2048 characters"}
	}
	parsed, err := url.ParseRequestURI(req.URL)
	if err != nil || !parsed.IsAbs() {
		return nil, false, &domain.ValidationError{Message: "url must be a valid absolute URL"}
	}
	if parsed.Scheme != "https" {
		return nil, false, &domain.ValidationError{Message: "url must use https scheme"}
	}

	if len(req.Events) == 0 {
		return nil, false, &domain.ValidationError{Message: "events must be a non-empty array"}
	}

	seen := make(map[string]bool, len(req.Events))
	deduped := make([]string, 0, len(req.Events))
	for _, event := range req.Events {
		if !validWebhookEvents[event] {
			return nil, false, &domain.ValidationError{
				Message: "Unknown event type: " + event + ". Must be one of: trade.executed, order.terminated, order.rejected",
			}
		}
		if !seen[event] {
			seen[event] = true
			deduped = append(deduped, event)
		}
	}

	now := time.Now().UTC().Truncate(time.Second)
	anyCreated := false
	webhooks := make([]*domain.Webhook, 0, len(deduped))
	for _, event := range deduped {
		w, created := s.store.Upsert(&domain.Webhook{
			WebhookID: uuid.New().String(),
			LedgerID:  l.ID,
			Event:     event,
			URL:       req.URL,
			CreatedAt: now,
			UpdatedAt: now,
		})
		anyCreated = anyCreated || created
		webhooks = append(webhooks, w)
	}
	return webhooks, anyCreated, nil
}

// List returns all webhook subscriptions of a client.
func (s *WebhookService) List(ref domain.ClientRef) ([]*domain.Webhook, error) {
	l, err := s.ledgers.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return s.store.ListByLedger(l.ID), nil
}

// Delete removes a webhook subscription by ID.
func (s *WebhookService) Delete(webhookID string) error {
	return s.store.Delete(webhookID)
}

// webhookPayload is the JSON body of every delivery.
type webhookPayload struct {
	Event     string       `json:"event"`
	Timestamp string       `json:"timestamp"`
	Data      events.Event `json:"data"`
}

// Handler returns an event handler that notifies every subscribed ledger
// the event concerns. Delivery is fire-and-forget.
func (s *WebhookService) Handler() events.Handler {
	return func(ctx context.Context, ev events.Event) {
		if !validWebhookEvents[string(ev.Kind)] {
			return
		}
		for _, id := range ev.Ledgers() {
			wh := s.store.Lookup(id, string(ev.Kind))
			if wh == nil {
				continue
			}
			go s.deliver(context.WithoutCancel(ctx), wh, ev)
		}
	}
}

// deliver sends the webhook payload via HTTP POST with the required headers.
func (s *WebhookService) deliver(ctx context.Context, wh *domain.Webhook, ev events.Event) {
	body, err := json.Marshal(webhookPayload{
		Event:     string(ev.Kind),
		Timestamp: ev.At.UTC().Truncate(time.Second).Format(time.RFC3339),
		Data:      ev,
	})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.URL, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Delivery-Id", uuid.New().String())
	req.Header.Set("X-Webhook-Id", wh.WebhookID)
	req.Header.Set("X-Event-Type", string(ev.Kind))

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Debug("webhook delivery failed", "webhook_id", wh.WebhookID, "event", ev.Kind, "error", err)
		return
	}
	resp.Body.Close()
}
