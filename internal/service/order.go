package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/engine"
)

// PlaceOrderRequest represents the input for order submission.
type PlaceOrderRequest struct {
	Type   domain.OrderType
	Client domain.ClientRef
	Side   domain.Side
	Ticker string
	Price  *float64 // required for limit, must be nil for market
	Volume int64
}

// EditOrderRequest represents the input for an in-place edit.
type EditOrderRequest struct {
	Price  float64
	Volume int64
}

// EditOrderResponse reports the applied volume change and the order after
// the edit.
type EditOrderResponse struct {
	VolumeDelta int64
	Order       domain.Order
}

// OrderService handles order placement, retrieval, editing, cancellation
// and listing.
type OrderService struct {
	exchange *engine.Exchange
}

// NewOrderService creates a new OrderService.
func NewOrderService(exchange *engine.Exchange) *OrderService {
	return &OrderService{exchange: exchange}
}

// PlaceOrder validates the request and submits it to the instrument's
// engine. When a trade could not be made durable the order exists but was
// cancelled; it is returned together with the error.
func (s *OrderService) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*domain.Order, error) {
	ticker := strings.ToUpper(req.Ticker)

	var (
		id  domain.OrderID
		err error
	)
	switch req.Type {
	case domain.OrderTypeLimit:
		if req.Price == nil {
			return nil, &domain.ValidationError{Message: "price is required for limit orders"}
		}
		price, perr := domain.DollarsToCents(*req.Price)
		if perr != nil {
			return nil, &domain.ValidationError{Message: "price must be a dollar amount with at most 2 decimal places"}
		}
		id, err = s.exchange.PlaceLimitOrder(ctx, ticker, req.Side, price, req.Volume, req.Client)
	case domain.OrderTypeMarket:
		if req.Price != nil {
			return nil, &domain.ValidationError{Message: "market orders must not include price"}
		}
		id, err = s.exchange.PlaceMarketOrder(ctx, ticker, req.Side, req.Volume, req.Client)
	default:
		return nil, &domain.ValidationError{
			Message: fmt.Sprintf("Unknown order type: %s. Must be one of: limit, market", req.Type),
		}
	}
	if id == 0 {
		return nil, err
	}

	o, gerr := s.exchange.Order(id)
	if gerr != nil {
		return nil, gerr
	}
	return &o, err
}

// GetOrder retrieves an order by id.
func (s *OrderService) GetOrder(id domain.OrderID) (*domain.Order, error) {
	o, err := s.exchange.Order(id)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// CancelOrder cancels an order and returns its final state. Cancelling
// an order that already terminated returns it unchanged.
func (s *OrderService) CancelOrder(id domain.OrderID) (*domain.Order, error) {
	if err := s.exchange.CancelOrder(id); err != nil {
		return nil, err
	}
	return s.GetOrder(id)
}

// EditOrder replaces a resting order's price and total volume.
func (s *OrderService) EditOrder(ctx context.Context, id domain.OrderID, req EditOrderRequest) (*EditOrderResponse, error) {
	price, err := domain.DollarsToCents(req.Price)
	if err != nil {
		return nil, &domain.ValidationError{Message: "price must be a dollar amount with at most 2 decimal places"}
	}
	delta, err := s.exchange.EditOrder(ctx, id, price, req.Volume)
	if err != nil {
		return nil, err
	}
	o, err := s.exchange.Order(id)
	if err != nil {
		return nil, err
	}
	return &EditOrderResponse{VolumeDelta: delta, Order: o}, nil
}

// ListOrders returns a page of the client's orders, newest first.
func (s *OrderService) ListOrders(ref domain.ClientRef, page, limit int) ([]domain.Order, int, error) {
	if page < 1 {
		return nil, 0, &domain.ValidationError{
			Message: "page must be >= 1",
		}
	}
	if limit < 1 || limit > 100 {
		return nil, 0, &domain.ValidationError{
			Message: "limit must be between 1 and 100",
		}
	}
	return s.exchange.OrdersByClient(ref, page, limit)
}
