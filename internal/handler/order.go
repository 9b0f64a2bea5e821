package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	orderSvc *service.OrderService
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(orderSvc *service.OrderService) *OrderHandler {
	return &OrderHandler{orderSvc: orderSvc}
}

// placeOrderRequest is the JSON request body for POST /orders.
type placeOrderRequest struct {
	clientField
	Type   string   `json:"type"`
	Side   string   `json:"side"`
	Ticker string   `json:"ticker"`
	Price  *float64 `json:"price"`
	Volume int64    `json:"volume"`
}

// editOrderRequest is the JSON request body for PATCH /orders/{order_id}.
type editOrderRequest struct {
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}

// orderResponse is the JSON form of an order. Price is null for market
// orders.
type orderResponse struct {
	OrderID      uint64   `json:"order_id"`
	Type         string   `json:"type"`
	ClientID     uint64   `json:"client_id"`
	Side         string   `json:"side"`
	Ticker       string   `json:"ticker"`
	Price        *float64 `json:"price"`
	Volume       int64    `json:"volume"`
	Executed     int64    `json:"executed"`
	Remaining    int64    `json:"remaining"`
	Status       string   `json:"status"`
	AveragePrice *float64 `json:"average_price"`
	TradeIDs     []uint64 `json:"trade_ids"`
	SubmittedAt  string   `json:"submitted_at"`
	TerminatedAt *string  `json:"terminated_at"`
}

type editOrderResponse struct {
	VolumeDelta int64         `json:"volume_delta"`
	Order       orderResponse `json:"order"`
}

// notDurableResponse reports an order that was cancelled because its trade
// could not be recorded.
type notDurableResponse struct {
	errorResponse
	Order orderResponse `json:"order"`
}

// PlaceOrder handles POST /orders.
func (h *OrderHandler) PlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	ref, err := req.ref()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	order, err := h.orderSvc.PlaceOrder(r.Context(), service.PlaceOrderRequest{
		Type:   domain.OrderType(req.Type),
		Client: ref,
		Side:   domain.Side(req.Side),
		Ticker: req.Ticker,
		Price:  req.Price,
		Volume: req.Volume,
	})
	if err != nil {
		if order != nil && errors.Is(err, domain.ErrTradeNotDurable) {
			WriteJSON(w, http.StatusServiceUnavailable, notDurableResponse{
				errorResponse: errorResponse{
					Error:   "trade_not_durable",
					Message: "The trade could not be recorded; the order was cancelled",
				},
				Order: buildOrderResponse(order),
			})
			return
		}
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildOrderResponse(order))
}

// GetOrder handles GET /orders/{order_id}.
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orderSvc.GetOrder(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

// EditOrder handles PATCH /orders/{order_id}.
func (h *OrderHandler) EditOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}
	var req editOrderRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	resp, err := h.orderSvc.EditOrder(r.Context(), id, service.EditOrderRequest{
		Price:  req.Price,
		Volume: req.Volume,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, editOrderResponse{
		VolumeDelta: resp.VolumeDelta,
		Order:       buildOrderResponse(&resp.Order),
	})
}

// CancelOrder handles DELETE /orders/{order_id}. Cancelling a terminated
// order returns it unchanged.
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := orderIDParam(w, r)
	if !ok {
		return
	}

	order, err := h.orderSvc.CancelOrder(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildOrderResponse(order))
}

func orderIDParam(w http.ResponseWriter, r *http.Request) (domain.OrderID, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "order_id"), 10, 64)
	if err != nil || id == 0 {
		WriteError(w, http.StatusBadRequest, "validation_error", "order_id must be a positive integer")
		return 0, false
	}
	return domain.OrderID(id), true
}

func buildOrderResponse(o *domain.Order) orderResponse {
	resp := orderResponse{
		OrderID:     uint64(o.ID),
		Type:        string(o.Type),
		ClientID:    uint64(o.LedgerID),
		Side:        string(o.Side),
		Ticker:      o.Symbol,
		Volume:      o.Total,
		Executed:    o.Executed(),
		Remaining:   o.Remaining,
		Status:      string(o.Status),
		TradeIDs:    make([]uint64, len(o.TradeIDs)),
		SubmittedAt: formatTime(o.SubmittedAt),
	}
	for i, id := range o.TradeIDs {
		resp.TradeIDs[i] = uint64(id)
	}
	if o.Type == domain.OrderTypeLimit {
		p := domain.CentsToDollars(o.Price)
		resp.Price = &p
	}
	if avg, ok := o.AveragePrice(); ok {
		a := domain.CentsToDollars(avg)
		resp.AveragePrice = &a
	}
	if o.Terminated {
		s := formatTime(o.TerminatedAt)
		resp.TerminatedAt = &s
	}
	return resp
}
