package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"hl-mm-bot/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
)

const writeTimeout = 3 * time.Second

// QuoteRow is one refresh cycle's quoting state.
type QuoteRow struct {
	Time         time.Time
	Venue        string
	Symbol       string
	MidPrice     float64
	BidPrice     float64
	AskPrice     float64
	SpreadFactor float64
	HasBuyOrder  bool
	HasSellOrder bool
	Fills        int
}

// TradeRow is one executed arbitrage pair (both legs).
type TradeRow struct {
	Time      time.Time
	Symbol    string
	BuyVenue  string
	SellVenue string
	BuyPrice  float64
	SellPrice float64
	Size      float64
	Delta     float64
}

// Writer records run history asynchronously; a full queue drops rows rather
// than stalling the refresh loop.
type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	quotes  chan QuoteRow
	trades  chan TradeRow
	started atomic.Bool
	dropped atomic.Uint64
}

func New(cfg config.HistoryConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("history dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	writer := &Writer{
		db:     db,
		log:    log,
		schema: schema,
		quotes: make(chan QuoteRow, 256),
		trades: make(chan TradeRow, 256),
	}
	if err := writer.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return writer, nil
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) EnqueueQuote(row QuoteRow) {
	if w == nil {
		return
	}
	select {
	case w.quotes <- row:
	default:
		if w.dropped.Add(1) == 1 && w.log != nil {
			w.log.Warn("history quote queue full")
		}
	}
}

func (w *Writer) EnqueueTrade(row TradeRow) {
	if w == nil {
		return
	}
	select {
	case w.trades <- row:
	default:
		if w.dropped.Add(1) == 1 && w.log != nil {
			w.log.Warn("history trade queue full")
		}
	}
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-w.quotes:
			w.writeQuote(ctx, row)
		case row := <-w.trades:
			w.writeTrade(ctx, row)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		venue TEXT NOT NULL,
		symbol TEXT NOT NULL,
		mid_price DOUBLE PRECISION NOT NULL,
		bid_price DOUBLE PRECISION NOT NULL,
		ask_price DOUBLE PRECISION NOT NULL,
		spread_factor DOUBLE PRECISION NOT NULL,
		has_buy_order BOOLEAN NOT NULL,
		has_sell_order BOOLEAN NOT NULL,
		fills INTEGER NOT NULL
	)`, w.table("quote_cycles"))); err != nil {
		return err
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		symbol TEXT NOT NULL,
		buy_venue TEXT NOT NULL,
		sell_venue TEXT NOT NULL,
		buy_price DOUBLE PRECISION NOT NULL,
		sell_price DOUBLE PRECISION NOT NULL,
		size DOUBLE PRECISION NOT NULL,
		delta DOUBLE PRECISION NOT NULL
	)`, w.table("arb_trades"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		if w.log != nil {
			w.log.Warn("timescale extension ensure failed", zap.Error(err))
		}
	}
	return nil
}

func (w *Writer) writeQuote(ctx context.Context, row QuoteRow) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(writeCtx, fmt.Sprintf(
		`INSERT INTO %s (ts, venue, symbol, mid_price, bid_price, ask_price, spread_factor, has_buy_order, has_sell_order, fills)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`, w.table("quote_cycles")),
		row.Time, row.Venue, row.Symbol, row.MidPrice, row.BidPrice, row.AskPrice, row.SpreadFactor, row.HasBuyOrder, row.HasSellOrder, row.Fills)
	if err != nil && w.log != nil {
		w.log.Warn("history quote write failed", zap.Error(err))
	}
}

func (w *Writer) writeTrade(ctx context.Context, row TradeRow) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(writeCtx, fmt.Sprintf(
		`INSERT INTO %s (ts, symbol, buy_venue, sell_venue, buy_price, sell_price, size, delta)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`, w.table("arb_trades")),
		row.Time, row.Symbol, row.BuyVenue, row.SellVenue, row.BuyPrice, row.SellPrice, row.Size, row.Delta)
	if err != nil && w.log != nil {
		w.log.Warn("history trade write failed", zap.Error(err))
	}
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}

func (w *Writer) exec(ctx context.Context, query string) error {
	_, err := w.db.ExecContext(ctx, query)
	return err
}
