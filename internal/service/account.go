package service

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/engine"
	"github.com/efreitasn/exchangecore/internal/store"
)

var usernameRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,64}$`)

// RegisterClientRequest represents the input for client registration.
type RegisterClientRequest struct {
	Username        string
	InitialBalance  float64
	InitialHoldings []HoldingInput
}

// HoldingInput represents a single holding in a registration request.
type HoldingInput struct {
	Ticker string
	Volume int64
}

// BalanceResponse represents a client's cash and holdings.
type BalanceResponse struct {
	ClientID  domain.LedgerID
	Username  string
	Balance   int64
	Holdings  []HoldingBalance
	CreatedAt time.Time
}

// HoldingBalance represents a single holding in the balance response.
type HoldingBalance struct {
	Ticker      string
	Volume      int64
	AverageCost int64
}

// PortfolioResponse represents a client's valuation at current prices.
type PortfolioResponse struct {
	ClientID domain.LedgerID
	Value    int64
	PnL      float64
}

// AccountService handles client registration, balances and portfolios.
type AccountService struct {
	ledgers     *store.LedgerStore
	instruments *domain.InstrumentRegistry
	exchange    *engine.Exchange
}

// NewAccountService creates a new AccountService.
func NewAccountService(ledgers *store.LedgerStore, instruments *domain.InstrumentRegistry, exchange *engine.Exchange) *AccountService {
	return &AccountService{
		ledgers:     ledgers,
		instruments: instruments,
		exchange:    exchange,
	}
}

// Register validates the request and creates a ledger. Initial holdings
// are booked at the instrument's opening price.
func (s *AccountService) Register(req RegisterClientRequest) (*BalanceResponse, error) {
	if !usernameRegex.MatchString(req.Username) {
		return nil, &domain.ValidationError{
			Message: "username must match ^[a-zA-Z0-9_-]{1,64}$",
		}
	}
	if req.InitialBalance < 0 {
		return nil, &domain.ValidationError{
			Message: "initial_balance must be >= 0",
		}
	}
	balance, err := domain.DollarsToCents(req.InitialBalance)
	if err != nil {
		return nil, &domain.ValidationError{
			Message: "initial_balance must be a dollar amount with at most 2 decimal places",
		}
	}

	holdings := make(map[string]*domain.Holding, len(req.InitialHoldings))
	for _, h := range req.InitialHoldings {
		h.Ticker = strings.ToUpper(h.Ticker)
		if h.Volume <= 0 {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("holding volume must be > 0 for ticker %s", h.Ticker),
			}
		}
		if _, dup := holdings[h.Ticker]; dup {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("duplicate ticker in initial_holdings: %s", h.Ticker),
			}
		}
		opening, ok := s.instruments.OpeningPrice(h.Ticker)
		if !ok {
			return nil, fmt.Errorf("%s: %w", h.Ticker, domain.ErrUnknownInstrument)
		}
		holding, err := domain.NewHolding(h.Volume, opening)
		if err != nil {
			return nil, &domain.ValidationError{
				Message: fmt.Sprintf("holding volume for ticker %s is too large", h.Ticker),
			}
		}
		holdings[h.Ticker] = holding
	}

	l := domain.NewLedger(req.Username, balance, holdings)
	if _, err := s.ledgers.Create(l); err != nil {
		return nil, err
	}
	return s.balance(l), nil
}

// GetBalance returns the client's cash balance and holdings.
func (s *AccountService) GetBalance(ref domain.ClientRef) (*BalanceResponse, error) {
	l, err := s.ledgers.Resolve(ref)
	if err != nil {
		return nil, err
	}
	return s.balance(l), nil
}

func (s *AccountService) balance(l *domain.Ledger) *BalanceResponse {
	l.Mu.Lock()
	defer l.Mu.Unlock()

	holdings := make([]HoldingBalance, 0, len(l.Holdings))
	for ticker, h := range l.Holdings {
		avg, _ := l.AverageCost(ticker)
		holdings = append(holdings, HoldingBalance{
			Ticker:      ticker,
			Volume:      h.Volume,
			AverageCost: avg,
		})
	}
	sort.Slice(holdings, func(i, j int) bool { return holdings[i].Ticker < holdings[j].Ticker })

	return &BalanceResponse{
		ClientID:  l.ID,
		Username:  l.Username,
		Balance:   l.Balance,
		Holdings:  holdings,
		CreatedAt: l.CreatedAt,
	}
}

// GetPortfolio values the client's holdings at current prices.
func (s *AccountService) GetPortfolio(ref domain.ClientRef) (*PortfolioResponse, error) {
	l, err := s.ledgers.Resolve(ref)
	if err != nil {
		return nil, err
	}
	value, err := s.exchange.PortfolioValue(ref)
	if err != nil {
		return nil, err
	}
	pnl, err := s.exchange.PortfolioPnL(ref)
	if err != nil {
		return nil, err
	}
	return &PortfolioResponse{ClientID: l.ID, Value: value, PnL: pnl}, nil
}

// Deposit credits external cash to the client's balance.
func (s *AccountService) Deposit(ref domain.ClientRef, amount float64) (*BalanceResponse, error) {
	return s.transfer(ref, amount, (*domain.Ledger).Deposit)
}

// Withdraw debits cash from the client's balance.
func (s *AccountService) Withdraw(ref domain.ClientRef, amount float64) (*BalanceResponse, error) {
	return s.transfer(ref, amount, (*domain.Ledger).Withdraw)
}

func (s *AccountService) transfer(ref domain.ClientRef, amount float64, apply func(*domain.Ledger, int64) error) (*BalanceResponse, error) {
	cents, err := domain.DollarsToCents(amount)
	if err != nil {
		return nil, &domain.ValidationError{Message: "amount must be a dollar amount with at most 2 decimal places"}
	}
	l, err := s.ledgers.Resolve(ref)
	if err != nil {
		return nil, err
	}
	l.Mu.Lock()
	err = apply(l, cents)
	l.Mu.Unlock()
	if err != nil {
		return nil, err
	}
	return s.balance(l), nil
}
