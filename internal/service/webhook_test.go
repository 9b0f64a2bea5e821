package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/events"
)

// --- Upsert tests ---

func TestUpsert_Success_NewSubscriptions(t *testing.T) {
	ts := newTestServices(t)
	alice := ts.register(t, "alice", 0)

	webhooks, created, err := ts.webhooks.Upsert(UpsertWebhookRequest{
		Client: alice,
		URL:    "https://example.com/hooks",
		Events: []string{"trade.executed", "order.terminated", "trade.executed"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Error("expected created=true for new subscriptions")
	}
	if len(webhooks) != 2 {
		t.Fatalf("got %d webhooks, want 2", len(webhooks))
	}
	if webhooks[0].Event != "trade.executed" || webhooks[1].Event != "order.terminated" {
		t.Errorf("events = %q, %q", webhooks[0].Event, webhooks[1].Event)
	}
	if webhooks[0].LedgerID != 1 {
		t.Errorf("LedgerID = %d, want 1", webhooks[0].LedgerID)
	}
}

func TestUpsert_UpdateKeepsID(t *testing.T) {
	ts := newTestServices(t)
	alice := ts.register(t, "alice", 0)

	first, _, err := ts.webhooks.Upsert(UpsertWebhookRequest{Client: alice, URL: "https://example.com/old", Events: []string{"order.rejected"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, created, err := ts.webhooks.Upsert(UpsertWebhookRequest{Client: alice, URL: "https://example.com/new", Events: []string{"order.rejected"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created {
		t.Error("expected created=false on update")
	}
	if second[0].WebhookID != first[0].WebhookID {
		t.Errorf("webhook id changed: %s → %s", first[0].WebhookID, second[0].WebhookID)
	}
	if second[0].URL != "https://example.com/new" {
		t.Errorf("URL = %q, want updated", second[0].URL)
	}
}

func TestUpsert_Errors(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		events []string
	}{
		{"empty url", "", []string{"trade.executed"}},
		{"relative url", "/hooks", []string{"trade.executed"}},
		{"http scheme", "http://example.com", []string{"trade.executed"}},
		{"no events", "https://example.com", nil},
		{"unknown event", "https://example.com", []string{"order.expired"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServices(t)
			alice := ts.register(t, "alice", 0)
			_, _, err := ts.webhooks.Upsert(UpsertWebhookRequest{Client: alice, URL: tt.url, Events: tt.events})
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("got %v, want ValidationError", err)
			}
		})
	}

	ts := newTestServices(t)
	_, _, err := ts.webhooks.Upsert(UpsertWebhookRequest{Client: domain.ClientByID(9), URL: "https://example.com", Events: []string{"trade.executed"}})
	if !errors.Is(err, domain.ErrUnknownClient) {
		t.Errorf("got %v, want ErrUnknownClient", err)
	}
}

func TestListAndDelete(t *testing.T) {
	ts := newTestServices(t)
	alice := ts.register(t, "alice", 0)
	hooks, _, _ := ts.webhooks.Upsert(UpsertWebhookRequest{Client: alice, URL: "https://example.com", Events: []string{"trade.executed", "order.rejected"}})

	list, err := ts.webhooks.List(alice)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("len = %d, want 2", len(list))
	}

	if err := ts.webhooks.Delete(hooks[0].WebhookID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := ts.webhooks.Delete(hooks[0].WebhookID); !errors.Is(err, domain.ErrWebhookNotFound) {
		t.Errorf("got %v, want ErrWebhookNotFound", err)
	}
	list, _ = ts.webhooks.List(alice)
	if len(list) != 1 {
		t.Errorf("len after delete = %d, want 1", len(list))
	}
}

// --- Delivery tests ---

type delivery struct {
	header http.Header
	body   webhookPayload
}

func newReceiver(t *testing.T) (*httptest.Server, chan delivery) {
	t.Helper()
	ch := make(chan delivery, 4)
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var p webhookPayload
		json.Unmarshal(raw, &p)
		ch <- delivery{header: r.Header.Clone(), body: p}
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv, ch
}

func waitDelivery(t *testing.T, ch chan delivery) delivery {
	t.Helper()
	select {
	case d := <-ch:
		return d
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for webhook delivery")
		return delivery{}
	}
}

func TestHandler_DeliversTradeToBothSides(t *testing.T) {
	ts := newTestServices(t)
	srv, ch := newReceiver(t)
	ts.webhooks.client = srv.Client()

	buyer := ts.register(t, "buyer", 0)
	seller := ts.register(t, "seller", 0)
	for _, ref := range []domain.ClientRef{buyer, seller} {
		if _, _, err := ts.webhooks.Upsert(UpsertWebhookRequest{Client: ref, URL: srv.URL, Events: []string{"trade.executed"}}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	ev := events.TradeExecuted(&domain.Trade{ID: 5, Symbol: "JPK", BuyerID: 1, SellerID: 2, Price: 10000, Volume: 1, ExecutedAt: time.Now()})
	ev.ID = "evt-5"
	ts.webhooks.Handler()(context.Background(), ev)

	for range 2 {
		d := waitDelivery(t, ch)
		if d.header.Get("X-Event-Type") != "trade.executed" {
			t.Errorf("X-Event-Type = %q", d.header.Get("X-Event-Type"))
		}
		if d.header.Get("X-Delivery-Id") == "" || d.header.Get("X-Webhook-Id") == "" {
			t.Errorf("missing delivery headers: %v", d.header)
		}
		if d.body.Event != "trade.executed" || d.body.Data.ID != "evt-5" || d.body.Data.Trade == nil {
			t.Errorf("unexpected payload: %+v", d.body)
		}
	}
}

func TestHandler_SkipsUnsubscribed(t *testing.T) {
	ts := newTestServices(t)
	srv, ch := newReceiver(t)
	ts.webhooks.client = srv.Client()

	alice := ts.register(t, "alice", 0)
	ts.webhooks.Upsert(UpsertWebhookRequest{Client: alice, URL: srv.URL, Events: []string{"order.terminated"}})

	h := ts.webhooks.Handler()
	h(context.Background(), events.Event{Kind: events.KindOrderAccepted, Symbol: "JPK", LedgerID: 1})
	h(context.Background(), events.Event{Kind: events.KindOrderRejected, Symbol: "JPK", LedgerID: 1})
	h(context.Background(), events.Event{Kind: events.KindOrderTerminated, Symbol: "JPK", LedgerID: 1, Status: domain.OrderStatusFilled})

	d := waitDelivery(t, ch)
	if d.body.Event != "order.terminated" {
		t.Errorf("delivered %q, want order.terminated only", d.body.Event)
	}
	select {
	case extra := <-ch:
		t.Errorf("unexpected extra delivery: %+v", extra.body)
	case <-time.After(100 * time.Millisecond):
	}
}
