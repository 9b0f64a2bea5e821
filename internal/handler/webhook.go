package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/service"
)

// WebhookHandler handles HTTP requests for webhook endpoints.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

// NewWebhookHandler creates a new WebhookHandler.
func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

// upsertWebhookRequest is the JSON request body for POST /webhooks.
type upsertWebhookRequest struct {
	clientField
	URL    string   `json:"url"`
	Events []string `json:"events"`
}

type webhookResponse struct {
	WebhookID string `json:"webhook_id"`
	ClientID  uint64 `json:"client_id"`
	Event     string `json:"event"`
	URL       string `json:"url"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type webhookListResponse struct {
	Webhooks []webhookResponse `json:"webhooks"`
}

// Upsert handles POST /webhooks. Responds 201 when any subscription is
// new, 200 when all were updates.
func (h *WebhookHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	var req upsertWebhookRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	ref, err := req.ref()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	webhooks, anyCreated, err := h.webhookSvc.Upsert(service.UpsertWebhookRequest{
		Client: ref,
		URL:    req.URL,
		Events: req.Events,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	status := http.StatusOK
	if anyCreated {
		status = http.StatusCreated
	}
	WriteJSON(w, status, webhookListResponse{Webhooks: buildWebhookResponses(webhooks)})
}

// List handles GET /webhooks?client=.
func (h *WebhookHandler) List(w http.ResponseWriter, r *http.Request) {
	client := r.URL.Query().Get("client")
	if client == "" {
		WriteError(w, http.StatusBadRequest, "validation_error", "client query parameter is required")
		return
	}
	ref, err := parseClientRef(client)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	webhooks, err := h.webhookSvc.List(ref)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, webhookListResponse{Webhooks: buildWebhookResponses(webhooks)})
}

// Delete handles DELETE /webhooks/{webhook_id}.
func (h *WebhookHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.webhookSvc.Delete(chi.URLParam(r, "webhook_id")); err != nil {
		writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func buildWebhookResponses(webhooks []*domain.Webhook) []webhookResponse {
	out := make([]webhookResponse, len(webhooks))
	for i, wh := range webhooks {
		out[i] = webhookResponse{
			WebhookID: wh.WebhookID,
			ClientID:  uint64(wh.LedgerID),
			Event:     wh.Event,
			URL:       wh.URL,
			CreatedAt: formatTime(wh.CreatedAt),
			UpdatedAt: formatTime(wh.UpdatedAt),
		}
	}
	return out
}
