package domain

import "time"

// Webhook represents a client's subscription to an event notification.
type Webhook struct {
	WebhookID string
	LedgerID  LedgerID
	Event     string
	URL       string
	CreatedAt time.Time
	UpdatedAt time.Time
}
