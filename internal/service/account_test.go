package service

import (
	"context"
	"errors"
	"testing"

	"github.com/efreitasn/exchangecore/internal/domain"
)

func TestRegister_Success(t *testing.T) {
	ts := newTestServices(t)

	resp, err := ts.accounts.Register(RegisterClientRequest{
		Username:        "alice",
		InitialBalance:  1000.50,
		InitialHoldings: []HoldingInput{{Ticker: "JPK", Volume: 10}, {Ticker: "AAPL", Volume: 2}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.ClientID != 1 {
		t.Errorf("ClientID = %d, want 1", resp.ClientID)
	}
	if resp.Balance != 100050 {
		t.Errorf("Balance = %d, want 100050", resp.Balance)
	}
	if len(resp.Holdings) != 2 || resp.Holdings[0].Ticker != "AAPL" || resp.Holdings[1].Ticker != "JPK" {
		t.Fatalf("holdings not sorted by ticker: %+v", resp.Holdings)
	}
	if resp.Holdings[1].AverageCost != 10000 {
		t.Errorf("JPK average cost = %d, want opening price 10000", resp.Holdings[1].AverageCost)
	}
}

func TestRegister_ValidationErrors(t *testing.T) {
	tests := []struct {
		name string
		req  RegisterClientRequest
	}{
		{"empty username", RegisterClientRequest{Username: ""}},
		{"bad username", RegisterClientRequest{Username: "has space"}},
		{"negative balance", RegisterClientRequest{Username: "a", InitialBalance: -1}},
		{"excess precision", RegisterClientRequest{Username: "a", InitialBalance: 1.005}},
		{"zero volume", RegisterClientRequest{Username: "a", InitialHoldings: []HoldingInput{{Ticker: "JPK"}}}},
		{"duplicate ticker", RegisterClientRequest{Username: "a", InitialHoldings: []HoldingInput{{Ticker: "JPK", Volume: 1}, {Ticker: "JPK", Volume: 2}}}},
		{"balance beyond range", RegisterClientRequest{Username: "a", InitialBalance: 1e18}},
		{"holding value beyond range", RegisterClientRequest{Username: "a", InitialHoldings: []HoldingInput{{Ticker: "JPK", Volume: 1 << 62}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServices(t)
			_, err := ts.accounts.Register(tt.req)
			var ve *domain.ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("got %v, want ValidationError", err)
			}
		})
	}
}

func TestRegister_UnknownInstrument(t *testing.T) {
	ts := newTestServices(t)
	_, err := ts.accounts.Register(RegisterClientRequest{
		Username:        "bob",
		InitialHoldings: []HoldingInput{{Ticker: "MSFT", Volume: 1}},
	})
	if !errors.Is(err, domain.ErrUnknownInstrument) {
		t.Errorf("got %v, want ErrUnknownInstrument", err)
	}
}

func TestRegister_Duplicate(t *testing.T) {
	ts := newTestServices(t)
	ts.register(t, "carol", 10)
	_, err := ts.accounts.Register(RegisterClientRequest{Username: "carol"})
	if !errors.Is(err, domain.ErrClientExists) {
		t.Errorf("got %v, want ErrClientExists", err)
	}
}

func TestGetBalance_ByUsername(t *testing.T) {
	ts := newTestServices(t)
	ts.register(t, "dave", 25)

	resp, err := ts.accounts.GetBalance(domain.ClientByUsername("dave"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Balance != 2500 || resp.Username != "dave" {
		t.Errorf("unexpected balance: %+v", resp)
	}

	if _, err := ts.accounts.GetBalance(domain.ClientByUsername("nobody")); !errors.Is(err, domain.ErrUnknownClient) {
		t.Errorf("got %v, want ErrUnknownClient", err)
	}
}

func TestDepositWithdraw(t *testing.T) {
	ts := newTestServices(t)
	ref := ts.register(t, "erin", 10)

	resp, err := ts.accounts.Deposit(ref, 5.25)
	if err != nil {
		t.Fatalf("Deposit: %v", err)
	}
	if resp.Balance != 1525 {
		t.Errorf("Balance = %d, want 1525", resp.Balance)
	}

	if _, err := ts.accounts.Withdraw(ref, 100); !errors.Is(err, domain.ErrInsufficientFunds) {
		t.Errorf("got %v, want ErrInsufficientFunds", err)
	}
	var ve *domain.ValidationError
	if _, err := ts.accounts.Deposit(ref, 0); !errors.As(err, &ve) {
		t.Errorf("got %v, want ValidationError for zero deposit", err)
	}

	resp, err = ts.accounts.Withdraw(ref, 15.25)
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if resp.Balance != 0 {
		t.Errorf("Balance = %d, want 0", resp.Balance)
	}
}

func TestGetPortfolio_ValuesAtLastTrade(t *testing.T) {
	ts := newTestServices(t)
	seller := ts.register(t, "seller", 0, HoldingInput{Ticker: "JPK", Volume: 10})
	buyer := ts.register(t, "buyer", 1000)

	ctx := context.Background()
	if _, err := ts.orders.PlaceOrder(ctx, PlaceOrderRequest{Type: domain.OrderTypeLimit, Client: seller, Side: domain.SideSell, Ticker: "JPK", Price: ptr(110.0), Volume: 5}); err != nil {
		t.Fatalf("place sell: %v", err)
	}
	if _, err := ts.orders.PlaceOrder(ctx, PlaceOrderRequest{Type: domain.OrderTypeMarket, Client: buyer, Side: domain.SideBuy, Ticker: "JPK", Volume: 5}); err != nil {
		t.Fatalf("place buy: %v", err)
	}

	resp, err := ts.accounts.GetPortfolio(seller)
	if err != nil {
		t.Fatalf("GetPortfolio: %v", err)
	}
	// 550.00 cash + 5 × 110.00
	if resp.Value != 110000 {
		t.Errorf("Value = %d, want 110000", resp.Value)
	}
	if resp.PnL != 10 {
		t.Errorf("PnL = %v, want 10", resp.PnL)
	}
}
