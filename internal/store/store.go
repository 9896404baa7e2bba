// Package store persists candle history and backtest run records. Candles
// live in Parquet files partitioned by symbol, timeframe, and year; run
// summaries live in SQLite.
package store

import (
	"context"
	"time"

	"quantlab/internal/domain"
)

// CandleStore reads and writes OHLCV candle history.
type CandleStore interface {
	WriteCandles(ctx context.Context, symbol, timeframe string, candles domain.Series) error
	ReadCandles(ctx context.Context, symbol, timeframe string, start, end time.Time) (domain.Series, error)
	ListSymbols(ctx context.Context) ([]string, error)
}

// RunRecord summarizes one completed backtest for the run history.
type RunRecord struct {
	ID          int64
	Scenario    string
	Strategy    string
	Symbol      string
	Timeframe   string
	CreatedAt   time.Time
	ReturnPct   float64
	SharpeRatio float64
	TotalTrades int
	ReportPath  string
}

// RunStore persists backtest run summaries.
type RunStore interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
	ListRuns(ctx context.Context, scenario string, limit int) ([]RunRecord, error)
	GetRun(ctx context.Context, id int64) (*RunRecord, error)
}
