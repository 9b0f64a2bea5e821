package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/engine"
	"github.com/efreitasn/exchangecore/internal/store"
)

// PriceResponse represents an instrument's last trade and recent
// performance.
type PriceResponse struct {
	Ticker         string
	OpeningPrice   int64
	LastPrice      *int64     // nil when no trades ever
	LastTradeAt    *time.Time // nil when no trades ever
	PnL            float64    // percent change over the PnL window
	VWAP           *int64     // nil when no trades in the VWAP window
	Window         string
	TradesInWindow int
}

// BestResponse is the top of book. A nil side is empty.
type BestResponse struct {
	Ticker  string
	BestBid *int64
	BestAsk *int64
	Spread  *int64
}

// BookPriceLevel represents an aggregated price level in the book response.
type BookPriceLevel struct {
	Price       int64
	TotalVolume int64
	OrderCount  int
}

// BookResponse represents the aggregated book for an instrument.
type BookResponse struct {
	Ticker     string
	Bids       []BookPriceLevel
	Asks       []BookPriceLevel
	Spread     *int64 // nil if either side empty
	Version    uint64
	SnapshotAt time.Time
}

// QuotePriceLevel represents a single price level in the quote response.
type QuotePriceLevel struct {
	Price  int64
	Volume int64
}

// QuoteResponse estimates a market order against the current book without
// placing it. Owner funds and self-trade skipping are not considered.
type QuoteResponse struct {
	Ticker            string
	Side              domain.Side
	VolumeRequested   int64
	VolumeAvailable   int64
	FullyFillable     bool
	EstimatedAvgPrice *int64 // nil when no liquidity
	EstimatedTotal    *int64 // nil when no liquidity
	PriceLevels       []QuotePriceLevel
	QuotedAt          time.Time
}

// MarketService answers price, book and quote queries.
type MarketService struct {
	exchange   *engine.Exchange
	trades     *store.TradeStore
	vwapWindow time.Duration
}

// NewMarketService creates a new MarketService.
func NewMarketService(exchange *engine.Exchange, trades *store.TradeStore, vwapWindow time.Duration) *MarketService {
	return &MarketService{
		exchange:   exchange,
		trades:     trades,
		vwapWindow: vwapWindow,
	}
}

// GetPrice returns the last trade price, the window PnL and the VWAP
// over the configured window.
func (s *MarketService) GetPrice(ticker string) (*PriceResponse, error) {
	ticker = strings.ToUpper(ticker)
	e, err := s.exchange.Engine(ticker)
	if err != nil {
		return nil, err
	}
	pnl, err := s.exchange.PnL24h(ticker)
	if err != nil {
		return nil, err
	}

	resp := &PriceResponse{
		Ticker:       ticker,
		OpeningPrice: e.OpeningPrice(),
		PnL:          pnl,
		Window:       formatDuration(s.vwapWindow),
	}
	if price, at, ok := e.LastTrade(); ok {
		resp.LastPrice = &price
		resp.LastTradeAt = &at
	}

	trades := s.trades.GetBySymbol(ticker)
	windowStart := time.Now().Add(-s.vwapWindow)
	var sumPriceVol, sumVol int64
	for i := len(trades) - 1; i >= 0; i-- {
		t := trades[i]
		if t.ExecutedAt.Before(windowStart) {
			break
		}
		sumPriceVol += t.Price * t.Volume
		sumVol += t.Volume
		resp.TradesInWindow++
	}
	if sumVol > 0 {
		vwap := sumPriceVol / sumVol
		resp.VWAP = &vwap
	}
	return resp, nil
}

// GetBest returns the best bid and ask read together.
func (s *MarketService) GetBest(ticker string) (*BestResponse, error) {
	ticker = strings.ToUpper(ticker)
	snap, err := s.exchange.Snapshot(ticker)
	if err != nil {
		return nil, err
	}
	resp := &BestResponse{Ticker: ticker}
	if snap.HasBid {
		resp.BestBid = &snap.BestBid
	}
	if snap.HasAsk {
		resp.BestAsk = &snap.BestAsk
	}
	if snap.HasBid && snap.HasAsk {
		spread := snap.BestAsk - snap.BestBid
		resp.Spread = &spread
	}
	return resp, nil
}

// GetBook returns the top depth price levels of each side.
func (s *MarketService) GetBook(ticker string, depth int) (*BookResponse, error) {
	if depth < 1 || depth > 50 {
		return nil, &domain.ValidationError{
			Message: "depth must be between 1 and 50",
		}
	}
	ticker = strings.ToUpper(ticker)
	snap, err := s.exchange.Snapshot(ticker)
	if err != nil {
		return nil, err
	}

	resp := &BookResponse{
		Ticker:     ticker,
		Bids:       aggregate(snap.Bids, depth),
		Asks:       aggregate(snap.Asks, depth),
		Version:    snap.Version,
		SnapshotAt: time.Now(),
	}
	if snap.HasBid && snap.HasAsk {
		spread := snap.BestAsk - snap.BestBid
		resp.Spread = &spread
	}
	return resp, nil
}

// aggregate folds queue-ordered orders into at most depth price levels.
func aggregate(orders []engine.RestingOrder, depth int) []BookPriceLevel {
	levels := make([]BookPriceLevel, 0, depth)
	for _, o := range orders {
		n := len(levels)
		if n > 0 && levels[n-1].Price == o.Price {
			levels[n-1].TotalVolume += o.Volume
			levels[n-1].OrderCount++
			continue
		}
		if n == depth {
			break
		}
		levels = append(levels, BookPriceLevel{Price: o.Price, TotalVolume: o.Volume, OrderCount: 1})
	}
	return levels
}

// GetVolume returns the resting volume on side at exactly price.
func (s *MarketService) GetVolume(ticker string, side domain.Side, price string) (int64, error) {
	if !side.Valid() {
		return 0, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	cents, err := domain.ParseDollars(price)
	if err != nil {
		return 0, &domain.ValidationError{Message: err.Error()}
	}
	return s.exchange.VolumeAtPrice(strings.ToUpper(ticker), side, cents)
}

// GetQuote walks the opposite queue to estimate a market order of volume.
func (s *MarketService) GetQuote(ticker string, side domain.Side, volume int64) (*QuoteResponse, error) {
	if !side.Valid() {
		return nil, &domain.ValidationError{Message: "side must be 'buy' or 'sell'"}
	}
	if volume <= 0 {
		return nil, &domain.ValidationError{Message: "volume must be a positive integer"}
	}
	ticker = strings.ToUpper(ticker)
	snap, err := s.exchange.Snapshot(ticker)
	if err != nil {
		return nil, err
	}

	queue := snap.Asks
	if side == domain.SideSell {
		queue = snap.Bids
	}

	resp := &QuoteResponse{
		Ticker:          ticker,
		Side:            side,
		VolumeRequested: volume,
		PriceLevels:     []QuotePriceLevel{},
		QuotedAt:        time.Now(),
	}
	var total int64
	for _, o := range queue {
		if resp.VolumeAvailable == volume {
			break
		}
		take := min(o.Volume, volume-resp.VolumeAvailable)
		resp.VolumeAvailable += take
		total += take * o.Price
		n := len(resp.PriceLevels)
		if n > 0 && resp.PriceLevels[n-1].Price == o.Price {
			resp.PriceLevels[n-1].Volume += take
		} else {
			resp.PriceLevels = append(resp.PriceLevels, QuotePriceLevel{Price: o.Price, Volume: take})
		}
	}
	resp.FullyFillable = resp.VolumeAvailable == volume
	if resp.VolumeAvailable > 0 {
		avg := total / resp.VolumeAvailable
		resp.EstimatedAvgPrice = &avg
		resp.EstimatedTotal = &total
	}
	return resp, nil
}

// formatDuration converts a time.Duration to a human-readable string
// like "5m" for the window field.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	minutes := int(d.Minutes())
	if d == time.Duration(minutes)*time.Minute && minutes > 0 {
		return fmt.Sprintf("%dm", minutes)
	}
	return d.String()
}
