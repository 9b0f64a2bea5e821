package domain

import (
	"errors"
	"fmt"
	"time"
)

// TradeID identifies an executed trade. Durable sinks may issue it.
type TradeID uint64

var errMarketAgainstMarket = errors.New("two market orders cannot trade with each other")

// Trade is the immutable record of one execution between a buy and a sell
// order.
type Trade struct {
	ID          TradeID
	Symbol      string
	BuyOrderID  OrderID
	SellOrderID OrderID
	BuyerID     LedgerID
	SellerID    LedgerID
	BidPrice    int64 // buy order's limit price, 0 for market
	AskPrice    int64 // sell order's limit price, 0 for market
	Price       int64 // execution price, cents
	Volume      int64
	ExecutedAt  time.Time
}

// TradeTicket is everything a durable sink needs to record a trade before
// it is committed.
type TradeTicket struct {
	BuyerID    LedgerID
	BidPrice   int64
	SellerID   LedgerID
	AskPrice   int64
	Volume     int64
	Symbol     string
	Price      int64
	ExecutedAt time.Time
}

// ExecutionPrice applies the maker rule: the earlier-submitted order sets
// the price, unless it is a market order, in which case the other side's
// limit price is used.
func ExecutionPrice(buy, sell *Order) (int64, error) {
	if buy.Type == OrderTypeMarket && sell.Type == OrderTypeMarket {
		return 0, errMarketAgainstMarket
	}
	maker, taker := buy, sell
	if sell.Seq < buy.Seq {
		maker, taker = sell, buy
	}
	if maker.Type == OrderTypeMarket {
		return taker.Price, nil
	}
	return maker.Price, nil
}

// NewTicket validates that buy and sell may trade volume with each other
// and prices the trade.
func NewTicket(buy, sell *Order, volume int64, at time.Time) (TradeTicket, error) {
	if buy.Symbol != sell.Symbol {
		return TradeTicket{}, fmt.Errorf("orders %d (%s) and %d (%s): %w",
			buy.ID, buy.Symbol, sell.ID, sell.Symbol, ErrSameStockRequired)
	}
	if buy.LedgerID == sell.LedgerID {
		return TradeTicket{}, ErrSelfTrade
	}
	price, err := ExecutionPrice(buy, sell)
	if err != nil {
		return TradeTicket{}, err
	}
	return TradeTicket{
		BuyerID:    buy.LedgerID,
		BidPrice:   buy.Price,
		SellerID:   sell.LedgerID,
		AskPrice:   sell.Price,
		Volume:     volume,
		Symbol:     buy.Symbol,
		Price:      price,
		ExecutedAt: at,
	}, nil
}

// Execute settles a priced ticket against both orders and both ledgers and
// returns the trade record. Both ledgers must be locked by the caller.
//
// Either both sides settle or neither does. A failure after the buy side
// has been applied rolls the buy side back and reports
// ErrSettlementInconsistency.
func Execute(id TradeID, t TradeTicket, buy, sell *Order, buyer, seller *Ledger) (*Trade, error) {
	if t.Volume > buy.Remaining || t.Volume > sell.Remaining {
		return nil, fmt.Errorf("trade of %d against remaining %d/%d: %w",
			t.Volume, buy.Remaining, sell.Remaining, ErrOverfillAttempted)
	}
	if buyer.buyCapacity(t.Symbol, t.Price) < t.Volume {
		return nil, fmt.Errorf("ledger %d: %w", buyer.ID, ErrInsufficientFunds)
	}
	if seller.Volume(t.Symbol) < t.Volume {
		return nil, fmt.Errorf("ledger %d: %w", seller.ID, ErrInsufficientHoldings)
	}
	if seller.sellCapacity(t.Symbol, t.Price) < t.Volume {
		return nil, fmt.Errorf("ledger %d: %w", seller.ID, ErrLedgerOverflow)
	}

	if err := buy.ApplyFill(buyer, id, t.Price, t.Volume, t.ExecutedAt); err != nil {
		return nil, err
	}
	if err := sell.ApplyFill(seller, id, t.Price, t.Volume, t.ExecutedAt); err != nil {
		buyer.undoDebitForBuy(t.Symbol, t.Price, t.Volume)
		buy.undoFill(t.Price, t.Volume)
		return nil, fmt.Errorf("%w: sell side of trade %d: %v", ErrSettlementInconsistency, id, err)
	}

	return &Trade{
		ID:          id,
		Symbol:      t.Symbol,
		BuyOrderID:  buy.ID,
		SellOrderID: sell.ID,
		BuyerID:     t.BuyerID,
		SellerID:    t.SellerID,
		BidPrice:    t.BidPrice,
		AskPrice:    t.AskPrice,
		Price:       t.Price,
		Volume:      t.Volume,
		ExecutedAt:  t.ExecutedAt,
	}, nil
}

// undoFill reverses the most recent ApplyFill on the order.
func (o *Order) undoFill(price, volume int64) {
	o.Remaining += volume
	o.filledValue -= price * volume
	o.TradeIDs = o.TradeIDs[:len(o.TradeIDs)-1]
	o.Terminated = false
	o.TerminatedAt = time.Time{}
	if o.Remaining == o.Total {
		o.Status = OrderStatusOpen
	} else {
		o.Status = OrderStatusPartiallyFilled
	}
}
