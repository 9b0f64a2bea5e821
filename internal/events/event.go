package events

import (
	"time"

	"github.com/efreitasn/exchangecore/internal/domain"
)

// Kind names what happened.
type Kind string

const (
	KindOrderAccepted   Kind = "order.accepted"
	KindOrderRejected   Kind = "order.rejected"
	KindTradeExecuted   Kind = "trade.executed"
	KindOrderTerminated Kind = "order.terminated"
	KindOrderEdited     Kind = "order.edited"
)

// TradeInfo is the wire form of an executed trade.
type TradeInfo struct {
	TradeID     uint64    `json:"trade_id"`
	BuyOrderID  uint64    `json:"buy_order_id"`
	SellOrderID uint64    `json:"sell_order_id"`
	BuyerID     uint64    `json:"buyer_id"`
	SellerID    uint64    `json:"seller_id"`
	BidPrice    int64     `json:"bid_price_cents"`
	AskPrice    int64     `json:"ask_price_cents"`
	Price       int64     `json:"price_cents"`
	Volume      int64     `json:"volume"`
	ExecutedAt  time.Time `json:"executed_at"`
}

// Event is one structured notification emitted by the matching engine.
// Fields not relevant to a kind are left zero.
type Event struct {
	ID       string             `json:"event_id"`
	Kind     Kind               `json:"kind"`
	At       time.Time          `json:"at"`
	Symbol   string             `json:"symbol"`
	OrderID  uint64             `json:"order_id,omitempty"`
	LedgerID uint64             `json:"ledger_id,omitempty"`
	Side     domain.Side        `json:"side,omitempty"`
	Type     domain.OrderType   `json:"type,omitempty"`
	Price    int64              `json:"price_cents,omitempty"`
	Volume   int64              `json:"volume,omitempty"`
	Status   domain.OrderStatus `json:"status,omitempty"`
	Executed int64              `json:"executed,omitempty"`
	Delta    int64              `json:"delta,omitempty"`
	Reason   string             `json:"reason,omitempty"`
	Trade    *TradeInfo         `json:"trade,omitempty"`
}

// Ledgers returns every ledger the event concerns.
func (e Event) Ledgers() []domain.LedgerID {
	if e.Trade != nil {
		return []domain.LedgerID{domain.LedgerID(e.Trade.BuyerID), domain.LedgerID(e.Trade.SellerID)}
	}
	if e.LedgerID == 0 {
		return nil
	}
	return []domain.LedgerID{domain.LedgerID(e.LedgerID)}
}

// OrderAccepted reports an order entering the engine.
func OrderAccepted(o *domain.Order) Event {
	return Event{
		Kind:     KindOrderAccepted,
		At:       o.SubmittedAt,
		Symbol:   o.Symbol,
		OrderID:  uint64(o.ID),
		LedgerID: uint64(o.LedgerID),
		Side:     o.Side,
		Type:     o.Type,
		Price:    o.Price,
		Volume:   o.Total,
		Status:   o.Status,
	}
}

// OrderRejected reports a submission that never became an order.
func OrderRejected(symbol string, ledger domain.LedgerID, side domain.Side, typ domain.OrderType, reason error, at time.Time) Event {
	return Event{
		Kind:     KindOrderRejected,
		At:       at,
		Symbol:   symbol,
		LedgerID: uint64(ledger),
		Side:     side,
		Type:     typ,
		Reason:   reason.Error(),
	}
}

// OrderTerminated reports an order reaching a final status.
func OrderTerminated(o *domain.Order) Event {
	return Event{
		Kind:     KindOrderTerminated,
		At:       o.TerminatedAt,
		Symbol:   o.Symbol,
		OrderID:  uint64(o.ID),
		LedgerID: uint64(o.LedgerID),
		Side:     o.Side,
		Type:     o.Type,
		Price:    o.Price,
		Volume:   o.Total,
		Status:   o.Status,
		Executed: o.Executed(),
	}
}

// OrderEdited reports an in-place edit and the applied volume change.
func OrderEdited(o *domain.Order, delta int64, at time.Time) Event {
	return Event{
		Kind:     KindOrderEdited,
		At:       at,
		Symbol:   o.Symbol,
		OrderID:  uint64(o.ID),
		LedgerID: uint64(o.LedgerID),
		Side:     o.Side,
		Type:     o.Type,
		Price:    o.Price,
		Volume:   o.Total,
		Status:   o.Status,
		Executed: o.Executed(),
		Delta:    delta,
	}
}

// TradeExecuted reports a committed trade.
func TradeExecuted(t *domain.Trade) Event {
	return Event{
		Kind:   KindTradeExecuted,
		At:     t.ExecutedAt,
		Symbol: t.Symbol,
		Price:  t.Price,
		Volume: t.Volume,
		Trade: &TradeInfo{
			TradeID:     uint64(t.ID),
			BuyOrderID:  uint64(t.BuyOrderID),
			SellOrderID: uint64(t.SellOrderID),
			BuyerID:     uint64(t.BuyerID),
			SellerID:    uint64(t.SellerID),
			BidPrice:    t.BidPrice,
			AskPrice:    t.AskPrice,
			Price:       t.Price,
			Volume:      t.Volume,
			ExecutedAt:  t.ExecutedAt,
		},
	}
}

// ToTrade rebuilds the domain trade from a trade.executed event.
func (ti *TradeInfo) ToTrade(symbol string) *domain.Trade {
	return &domain.Trade{
		ID:          domain.TradeID(ti.TradeID),
		Symbol:      symbol,
		BuyOrderID:  domain.OrderID(ti.BuyOrderID),
		SellOrderID: domain.OrderID(ti.SellOrderID),
		BuyerID:     domain.LedgerID(ti.BuyerID),
		SellerID:    domain.LedgerID(ti.SellerID),
		BidPrice:    ti.BidPrice,
		AskPrice:    ti.AskPrice,
		Price:       ti.Price,
		Volume:      ti.Volume,
		ExecutedAt:  ti.ExecutedAt,
	}
}
