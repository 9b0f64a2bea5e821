package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/efreitasn/exchangecore/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
	id             BIGSERIAL PRIMARY KEY,
	symbol         TEXT        NOT NULL,
	buy_order_id   BIGINT      NOT NULL DEFAULT 0,
	sell_order_id  BIGINT      NOT NULL DEFAULT 0,
	buyer_id       BIGINT      NOT NULL,
	seller_id      BIGINT      NOT NULL,
	bid_price      BIGINT      NOT NULL,
	ask_price      BIGINT      NOT NULL,
	price          BIGINT      NOT NULL,
	volume         BIGINT      NOT NULL,
	executed_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS trades_symbol_executed_at ON trades (symbol, executed_at);
`

// PostgresJournal persists trades in a Postgres "trades" table. Trade ids
// come from the table's BIGSERIAL sequence.
type PostgresJournal struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool, logger *slog.Logger) *PostgresJournal {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostgresJournal{pool: pool, logger: logger}
}

// ConnectPostgres dials dsn, checks connectivity and makes sure the schema
// exists.
func ConnectPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*PostgresJournal, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	j := NewPostgres(pool, logger)
	if err := j.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	j.logger.Info("trade journal ready", "backend", "postgres")
	return j, nil
}

// EnsureSchema creates the trades table if it does not exist.
func (j *PostgresJournal) EnsureSchema(ctx context.Context) error {
	if _, err := j.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RecordTrade inserts the ticket in its own transaction and returns the
// id the database assigned.
func (j *PostgresJournal) RecordTrade(ctx context.Context, t domain.TradeTicket) (uint64, error) {
	tx, err := j.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO trades (symbol, buyer_id, seller_id, bid_price, ask_price, price, volume, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, t.Symbol, int64(t.BuyerID), int64(t.SellerID), t.BidPrice, t.AskPrice, t.Price, t.Volume, t.ExecutedAt).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert trade: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	committed = true
	return uint64(id), nil
}

// Save upserts a committed trade under its own id and moves the id
// sequence past it.
func (j *PostgresJournal) Save(ctx context.Context, t *domain.Trade) error {
	tx, err := j.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `
		INSERT INTO trades (id, symbol, buy_order_id, sell_order_id, buyer_id, seller_id, bid_price, ask_price, price, volume, executed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (id) DO UPDATE SET
			buy_order_id = EXCLUDED.buy_order_id,
			sell_order_id = EXCLUDED.sell_order_id
	`, int64(t.ID), t.Symbol, int64(t.BuyOrderID), int64(t.SellOrderID), int64(t.BuyerID), int64(t.SellerID),
		t.BidPrice, t.AskPrice, t.Price, t.Volume, t.ExecutedAt)
	if err != nil {
		return fmt.Errorf("save trade %d: %w", t.ID, err)
	}
	if _, err := tx.Exec(ctx, `
		SELECT setval(pg_get_serial_sequence('trades', 'id'), GREATEST($1, (SELECT COALESCE(MAX(id), 1) FROM trades)))
	`, int64(t.ID)); err != nil {
		return fmt.Errorf("advance trade sequence: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}
	committed = true
	return nil
}

// Trades returns every recorded trade in id order.
func (j *PostgresJournal) Trades(ctx context.Context) ([]*domain.Trade, error) {
	rows, err := j.pool.Query(ctx, `
		SELECT id, symbol, buy_order_id, sell_order_id, buyer_id, seller_id,
		       bid_price, ask_price, price, volume, executed_at
		FROM trades
		ORDER BY id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Trade
	for rows.Next() {
		var (
			t                       domain.Trade
			id, buyOrder, sellOrder int64
			buyer, seller           int64
		)
		if err := rows.Scan(&id, &t.Symbol, &buyOrder, &sellOrder, &buyer, &seller,
			&t.BidPrice, &t.AskPrice, &t.Price, &t.Volume, &t.ExecutedAt); err != nil {
			return nil, err
		}
		t.ID = domain.TradeID(id)
		t.BuyOrderID = domain.OrderID(buyOrder)
		t.SellOrderID = domain.OrderID(sellOrder)
		t.BuyerID = domain.LedgerID(buyer)
		t.SellerID = domain.LedgerID(seller)
		out = append(out, &t)
	}
	return out, rows.Err()
}

// Close releases the pool.
func (j *PostgresJournal) Close() error {
	j.pool.Close()
	return nil
}
