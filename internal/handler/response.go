package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/exchangecore/internal/domain"
)

const timeFormat = "2006-01-02T15:04:05Z"

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v. Unknown fields are
// rejected.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return errors.New("request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("request body must be valid JSON: %w", err)
	}
	return nil
}

// writeDomainError maps service and engine errors to HTTP responses. The
// error code is the sentinel's text.
func writeDomainError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	switch {
	case domain.IsNotFound(err):
		WriteError(w, http.StatusNotFound, errorCode(err), err.Error())
	case domain.IsRejection(err):
		WriteError(w, http.StatusConflict, errorCode(err), err.Error())
	case errors.Is(err, domain.ErrTradeNotDurable):
		WriteError(w, http.StatusServiceUnavailable, "trade_not_durable", "The trade could not be recorded; the order was cancelled")
	case errors.Is(err, domain.ErrPricingUnavailable):
		WriteError(w, http.StatusServiceUnavailable, "pricing_unavailable", err.Error())
	case domain.IsInvariantViolation(err):
		slog.Error("invariant violation reached the API", slog.String("error", err.Error()))
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	default:
		WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
	}
}

var codedErrors = []error{
	domain.ErrUnknownInstrument,
	domain.ErrUnknownOrder,
	domain.ErrUnknownClient,
	domain.ErrWebhookNotFound,
	domain.ErrInsufficientFunds,
	domain.ErrInsufficientHoldings,
	domain.ErrLedgerOverflow,
	domain.ErrOrderTerminated,
	domain.ErrOrderNotEditable,
	domain.ErrClientExists,
}

func errorCode(err error) string {
	for _, sentinel := range codedErrors {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	return "error"
}

// clientParam reads the {client} URL parameter: a numeric client id or
// @username.
func clientParam(r *http.Request) (domain.ClientRef, error) {
	return parseClientRef(chi.URLParam(r, "client"))
}

func parseClientRef(s string) (domain.ClientRef, error) {
	if name, ok := strings.CutPrefix(s, "@"); ok {
		if name == "" {
			return domain.ClientRef{}, &domain.ValidationError{Message: "username must not be empty"}
		}
		return domain.ClientByUsername(name), nil
	}
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return domain.ClientRef{}, &domain.ValidationError{Message: "client must be a numeric id or @username"}
	}
	return domain.ClientByID(id), nil
}

// clientField is the JSON form of a client reference in request bodies.
// Exactly one of ClientID and Username must be set.
type clientField struct {
	ClientID uint64 `json:"client_id,omitempty"`
	Username string `json:"username,omitempty"`
}

func (c clientField) ref() (domain.ClientRef, error) {
	switch {
	case c.ClientID != 0 && c.Username != "":
		return domain.ClientRef{}, &domain.ValidationError{Message: "only one of client_id and username may be set"}
	case c.ClientID != 0:
		return domain.ClientByID(c.ClientID), nil
	case c.Username != "":
		return domain.ClientByUsername(c.Username), nil
	}
	return domain.ClientRef{}, &domain.ValidationError{Message: "client_id or username is required"}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func dollarsPtr(c *int64) *float64 {
	if c == nil {
		return nil
	}
	d := domain.CentsToDollars(*c)
	return &d
}
