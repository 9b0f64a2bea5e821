package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/efreitasn/exchangecore/internal/domain"
	"github.com/efreitasn/exchangecore/internal/events"
)

const (
	tradePrefix = "trade/"
	seqKey      = "meta/seq"
)

// record is the stored form of a trade.
type record struct {
	Symbol string `json:"symbol"`
	events.TradeInfo
}

func tradeKey(id uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", tradePrefix, id))
}

// PebbleJournal persists trades in a local pebble database. The trade id
// sequence is stored alongside the records so ids survive restarts.
type PebbleJournal struct {
	db *pebble.DB

	mu  sync.Mutex
	seq uint64
}

// OpenPebble opens (or creates) a journal at dir. A nil opts uses pebble's
// defaults.
func OpenPebble(dir string, opts *pebble.Options) (*PebbleJournal, error) {
	if opts == nil {
		opts = &pebble.Options{}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble journal %q: %w", dir, err)
	}

	j := &PebbleJournal{db: db}
	val, closer, err := db.Get([]byte(seqKey))
	switch {
	case errors.Is(err, pebble.ErrNotFound):
	case err != nil:
		db.Close()
		return nil, fmt.Errorf("read journal sequence: %w", err)
	default:
		if len(val) == 8 {
			j.seq = binary.BigEndian.Uint64(val)
		}
		closer.Close()
	}
	return j, nil
}

// RecordTrade durably writes the ticket under the next trade id before
// the trade is committed. Order ids are filled in later by Save.
func (j *PebbleJournal) RecordTrade(ctx context.Context, t domain.TradeTicket) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	id := j.seq + 1
	rec := record{
		Symbol: t.Symbol,
		TradeInfo: events.TradeInfo{
			TradeID:    id,
			BuyerID:    uint64(t.BuyerID),
			SellerID:   uint64(t.SellerID),
			BidPrice:   t.BidPrice,
			AskPrice:   t.AskPrice,
			Price:      t.Price,
			Volume:     t.Volume,
			ExecutedAt: t.ExecutedAt,
		},
	}
	if err := j.write(id, rec, id); err != nil {
		return 0, err
	}
	j.seq = id
	return id, nil
}

// Save writes the full trade, overwriting the record RecordTrade left for
// the same id.
func (j *PebbleJournal) Save(ctx context.Context, t *domain.Trade) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	ev := events.TradeExecuted(t)
	seq := max(j.seq, uint64(t.ID))
	if err := j.write(uint64(t.ID), record{Symbol: t.Symbol, TradeInfo: *ev.Trade}, seq); err != nil {
		return err
	}
	j.seq = seq
	return nil
}

func (j *PebbleJournal) write(id uint64, rec record, seq uint64) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode trade %d: %w", id, err)
	}
	var seqVal [8]byte
	binary.BigEndian.PutUint64(seqVal[:], seq)

	b := j.db.NewBatch()
	defer b.Close()
	if err := b.Set(tradeKey(id), val, nil); err != nil {
		return err
	}
	if err := b.Set([]byte(seqKey), seqVal[:], nil); err != nil {
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit trade %d: %w", id, err)
	}
	return nil
}

// Trades returns every recorded trade in id order.
func (j *PebbleJournal) Trades(ctx context.Context) ([]*domain.Trade, error) {
	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(tradePrefix),
		UpperBound: []byte("trade/~"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []*domain.Trade
	for iter.First(); iter.Valid(); iter.Next() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var rec record
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, fmt.Errorf("decode %s: %w", iter.Key(), err)
		}
		out = append(out, rec.ToTrade(rec.Symbol))
	}
	return out, iter.Error()
}

// Close flushes and closes the database.
func (j *PebbleJournal) Close() error {
	return j.db.Close()
}
