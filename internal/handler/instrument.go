package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/service"
)

// InstrumentHandler handles HTTP requests for market data endpoints.
type InstrumentHandler struct {
	marketSvc *service.MarketService
}

// NewInstrumentHandler creates a new InstrumentHandler.
func NewInstrumentHandler(marketSvc *service.MarketService) *InstrumentHandler {
	return &InstrumentHandler{marketSvc: marketSvc}
}

// priceResponse is the JSON response for GET /instruments/{ticker}/price.
type priceResponse struct {
	Ticker         string   `json:"ticker"`
	OpeningPrice   float64  `json:"opening_price"`
	LastPrice      *float64 `json:"last_price"`
	LastTradeAt    *string  `json:"last_trade_at"`
	PnL            float64  `json:"pnl"`
	VWAP           *float64 `json:"vwap"`
	Window         string   `json:"window"`
	TradesInWindow int      `json:"trades_in_window"`
}

type lastResponse struct {
	Ticker      string   `json:"ticker"`
	LastPrice   *float64 `json:"last_price"`
	LastTradeAt *string  `json:"last_trade_at"`
}

type pnlResponse struct {
	Ticker string  `json:"ticker"`
	PnL    float64 `json:"pnl"`
}

type bestResponse struct {
	Ticker  string   `json:"ticker"`
	BestBid *float64 `json:"best_bid"`
	BestAsk *float64 `json:"best_ask"`
	Spread  *float64 `json:"spread"`
}

// bookLevelResponse is a single price level in the book response.
type bookLevelResponse struct {
	Price       float64 `json:"price"`
	TotalVolume int64   `json:"total_volume"`
	OrderCount  int     `json:"order_count"`
}

type bookResponse struct {
	Ticker     string              `json:"ticker"`
	Bids       []bookLevelResponse `json:"bids"`
	Asks       []bookLevelResponse `json:"asks"`
	Spread     *float64            `json:"spread"`
	Version    uint64              `json:"version"`
	SnapshotAt string              `json:"snapshot_at"`
}

type volumeResponse struct {
	Ticker string  `json:"ticker"`
	Side   string  `json:"side"`
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}

type quoteLevelResponse struct {
	Price  float64 `json:"price"`
	Volume int64   `json:"volume"`
}

type quoteResponse struct {
	Ticker            string               `json:"ticker"`
	Side              string               `json:"side"`
	VolumeRequested   int64                `json:"volume_requested"`
	VolumeAvailable   int64                `json:"volume_available"`
	FullyFillable     bool                 `json:"fully_fillable"`
	EstimatedAvgPrice *float64             `json:"estimated_average_price"`
	EstimatedTotal    *float64             `json:"estimated_total"`
	PriceLevels       []quoteLevelResponse `json:"price_levels"`
	QuotedAt          string               `json:"quoted_at"`
}

// GetPrice handles GET /instruments/{ticker}/price.
func (h *InstrumentHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	price, err := h.marketSvc.GetPrice(chi.URLParam(r, "ticker"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := priceResponse{
		Ticker:         price.Ticker,
		OpeningPrice:   domain.CentsToDollars(price.OpeningPrice),
		LastPrice:      dollarsPtr(price.LastPrice),
		PnL:            price.PnL,
		VWAP:           dollarsPtr(price.VWAP),
		Window:         price.Window,
		TradesInWindow: price.TradesInWindow,
	}
	if price.LastTradeAt != nil {
		s := formatTime(*price.LastTradeAt)
		resp.LastTradeAt = &s
	}

	WriteJSON(w, http.StatusOK, resp)
}

// GetLast handles GET /instruments/{ticker}/last. Both fields are null
// until the first trade.
func (h *InstrumentHandler) GetLast(w http.ResponseWriter, r *http.Request) {
	price, err := h.marketSvc.GetPrice(chi.URLParam(r, "ticker"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := lastResponse{
		Ticker:    price.Ticker,
		LastPrice: dollarsPtr(price.LastPrice),
	}
	if price.LastTradeAt != nil {
		s := formatTime(*price.LastTradeAt)
		resp.LastTradeAt = &s
	}

	WriteJSON(w, http.StatusOK, resp)
}

// GetPnL handles GET /instruments/{ticker}/pnl.
func (h *InstrumentHandler) GetPnL(w http.ResponseWriter, r *http.Request) {
	price, err := h.marketSvc.GetPrice(chi.URLParam(r, "ticker"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, pnlResponse{Ticker: price.Ticker, PnL: price.PnL})
}

// GetBest handles GET /instruments/{ticker}/best.
func (h *InstrumentHandler) GetBest(w http.ResponseWriter, r *http.Request) {
	best, err := h.marketSvc.GetBest(chi.URLParam(r, "ticker"))
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, bestResponse{
		Ticker:  best.Ticker,
		BestBid: dollarsPtr(best.BestBid),
		BestAsk: dollarsPtr(best.BestAsk),
		Spread:  dollarsPtr(best.Spread),
	})
}

// GetBook handles GET /instruments/{ticker}/book.
func (h *InstrumentHandler) GetBook(w http.ResponseWriter, r *http.Request) {
	depth, ok := intQuery(w, r, "depth", 10)
	if !ok {
		return
	}

	book, err := h.marketSvc.GetBook(chi.URLParam(r, "ticker"), depth)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, bookResponse{
		Ticker:     book.Ticker,
		Bids:       bookLevels(book.Bids),
		Asks:       bookLevels(book.Asks),
		Spread:     dollarsPtr(book.Spread),
		Version:    book.Version,
		SnapshotAt: formatTime(book.SnapshotAt),
	})
}

func bookLevels(levels []service.BookPriceLevel) []bookLevelResponse {
	out := make([]bookLevelResponse, len(levels))
	for i, l := range levels {
		out[i] = bookLevelResponse{
			Price:       domain.CentsToDollars(l.Price),
			TotalVolume: l.TotalVolume,
			OrderCount:  l.OrderCount,
		}
	}
	return out
}

// GetVolume handles GET /instruments/{ticker}/volume?side=&price=.
func (h *InstrumentHandler) GetVolume(w http.ResponseWriter, r *http.Request) {
	ticker := strings.ToUpper(chi.URLParam(r, "ticker"))
	side := domain.Side(r.URL.Query().Get("side"))
	price := r.URL.Query().Get("price")

	volume, err := h.marketSvc.GetVolume(ticker, side, price)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	// price parsed cleanly inside GetVolume.
	cents, _ := domain.ParseDollars(price)
	WriteJSON(w, http.StatusOK, volumeResponse{
		Ticker: ticker,
		Side:   string(side),
		Price:  domain.CentsToDollars(cents),
		Volume: volume,
	})
}

// GetQuote handles GET /instruments/{ticker}/quote?side=&volume=.
func (h *InstrumentHandler) GetQuote(w http.ResponseWriter, r *http.Request) {
	volume, err := strconv.ParseInt(r.URL.Query().Get("volume"), 10, 64)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "validation_error", "volume must be a positive integer")
		return
	}

	quote, err := h.marketSvc.GetQuote(chi.URLParam(r, "ticker"), domain.Side(r.URL.Query().Get("side")), volume)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	levels := make([]quoteLevelResponse, len(quote.PriceLevels))
	for i, pl := range quote.PriceLevels {
		levels[i] = quoteLevelResponse{
			Price:  domain.CentsToDollars(pl.Price),
			Volume: pl.Volume,
		}
	}

	WriteJSON(w, http.StatusOK, quoteResponse{
		Ticker:            quote.Ticker,
		Side:              string(quote.Side),
		VolumeRequested:   quote.VolumeRequested,
		VolumeAvailable:   quote.VolumeAvailable,
		FullyFillable:     quote.FullyFillable,
		EstimatedAvgPrice: dollarsPtr(quote.EstimatedAvgPrice),
		EstimatedTotal:    dollarsPtr(quote.EstimatedTotal),
		PriceLevels:       levels,
		QuotedAt:          formatTime(quote.QuotedAt),
	})
}
