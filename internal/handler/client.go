package handler

import (
	"net/http"
	"strconv"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/service"
)

// ClientHandler handles HTTP requests for client endpoints.
type ClientHandler struct {
	accountSvc *service.AccountService
	orderSvc   *service.OrderService
}

// NewClientHandler creates a new ClientHandler.
func NewClientHandler(accountSvc *service.AccountService, orderSvc *service.OrderService) *ClientHandler {
	return &ClientHandler{accountSvc: accountSvc, orderSvc: orderSvc}
}

// registerRequest is the JSON request body for POST /clients.
type registerRequest struct {
	Username        string           `json:"username"`
	InitialBalance  float64          `json:"initial_balance"`
	InitialHoldings []holdingRequest `json:"initial_holdings"`
}

type holdingRequest struct {
	Ticker string `json:"ticker"`
	Volume int64  `json:"volume"`
}

// transferRequest is the JSON request body for deposits and withdrawals.
type transferRequest struct {
	Amount float64 `json:"amount"`
}

type holdingResponse struct {
	Ticker      string  `json:"ticker"`
	Volume      int64   `json:"volume"`
	AverageCost float64 `json:"average_cost"`
}

// balanceResponse is the JSON response for registration, balance and
// transfers.
type balanceResponse struct {
	ClientID  uint64            `json:"client_id"`
	Username  string            `json:"username"`
	Balance   float64           `json:"balance"`
	Holdings  []holdingResponse `json:"holdings"`
	CreatedAt string            `json:"created_at"`
}

type portfolioResponse struct {
	ClientID uint64  `json:"client_id"`
	Value    float64 `json:"value"`
	PnL      float64 `json:"pnl"`
}

type orderListResponse struct {
	Orders []orderResponse `json:"orders"`
	Total  int             `json:"total"`
	Page   int             `json:"page"`
	Limit  int             `json:"limit"`
}

// Register handles POST /clients.
func (h *ClientHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	holdings := make([]service.HoldingInput, len(req.InitialHoldings))
	for i, hr := range req.InitialHoldings {
		holdings[i] = service.HoldingInput{Ticker: hr.Ticker, Volume: hr.Volume}
	}

	balance, err := h.accountSvc.Register(service.RegisterClientRequest{
		Username:        req.Username,
		InitialBalance:  req.InitialBalance,
		InitialHoldings: holdings,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, buildBalanceResponse(balance))
}

// GetBalance handles GET /clients/{client}/balance.
func (h *ClientHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	ref, err := clientParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	balance, err := h.accountSvc.GetBalance(ref)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildBalanceResponse(balance))
}

// GetPortfolio handles GET /clients/{client}/portfolio.
func (h *ClientHandler) GetPortfolio(w http.ResponseWriter, r *http.Request) {
	ref, err := clientParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	p, err := h.accountSvc.GetPortfolio(ref)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, portfolioResponse{
		ClientID: uint64(p.ClientID),
		Value:    domain.CentsToDollars(p.Value),
		PnL:      p.PnL,
	})
}

// Deposit handles POST /clients/{client}/deposits.
func (h *ClientHandler) Deposit(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, h.accountSvc.Deposit)
}

// Withdraw handles POST /clients/{client}/withdrawals.
func (h *ClientHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	h.transfer(w, r, h.accountSvc.Withdraw)
}

func (h *ClientHandler) transfer(w http.ResponseWriter, r *http.Request, apply func(domain.ClientRef, float64) (*service.BalanceResponse, error)) {
	ref, err := clientParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	var req transferRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	balance, err := apply(ref, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, buildBalanceResponse(balance))
}

// ListOrders handles GET /clients/{client}/orders.
func (h *ClientHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	ref, err := clientParam(r)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	page, ok := intQuery(w, r, "page", 1)
	if !ok {
		return
	}
	limit, ok := intQuery(w, r, "limit", 20)
	if !ok {
		return
	}

	orders, total, err := h.orderSvc.ListOrders(ref, page, limit)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := orderListResponse{
		Orders: make([]orderResponse, len(orders)),
		Total:  total,
		Page:   page,
		Limit:  limit,
	}
	for i := range orders {
		resp.Orders[i] = buildOrderResponse(&orders[i])
	}
	WriteJSON(w, http.StatusOK, resp)
}

// intQuery reads an integer query parameter, writing a 400 when it is
// malformed.
func intQuery(w http.ResponseWriter, r *http.Request, name string, def int) (int, bool) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return def, true
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", name+" must be a valid integer")
		return 0, false
	}
	return v, true
}

func buildBalanceResponse(b *service.BalanceResponse) balanceResponse {
	holdings := make([]holdingResponse, len(b.Holdings))
	for i, hb := range b.Holdings {
		holdings[i] = holdingResponse{
			Ticker:      hb.Ticker,
			Volume:      hb.Volume,
			AverageCost: domain.CentsToDollars(hb.AverageCost),
		}
	}
	return balanceResponse{
		ClientID:  uint64(b.ClientID),
		Username:  b.Username,
		Balance:   domain.CentsToDollars(b.Balance),
		Holdings:  holdings,
		CreatedAt: formatTime(b.CreatedAt),
	}
}
