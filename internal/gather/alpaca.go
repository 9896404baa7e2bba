package gather

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantlab/internal/domain"
	"quantlab/internal/store"
	"quantlab/internal/util"
)

// Compile-time interface check.
var _ Gatherer = (*CandleGatherer)(nil)

// barClient is the slice of the Alpaca market-data client this gatherer uses.
type barClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// CandleGatherer fetches OHLCV candles for a fixed set of symbols from the
// Alpaca market-data API and writes them to the candle store.
type CandleGatherer struct {
	client      barClient
	store       store.CandleStore
	symbols     []string
	timeframe   string
	startDate   string
	maxAttempts int
	retryDelay  time.Duration
	limiter     *util.RateLimiter
	log         *slog.Logger
}

// NewCandleGatherer creates a CandleGatherer configured with the given
// Alpaca credentials, target store, and fetch parameters.
func NewCandleGatherer(apiKey, apiSecret, dataURL string, s store.CandleStore, symbols []string, timeframe, startDate string, rateLimitPerMin, maxAttempts int) *CandleGatherer {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if rateLimitPerMin <= 0 {
		rateLimitPerMin = 200
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}

	return &CandleGatherer{
		client:      marketdata.NewClient(opts),
		store:       s,
		symbols:     symbols,
		timeframe:   timeframe,
		startDate:   startDate,
		maxAttempts: maxAttempts,
		retryDelay:  2 * time.Second,
		limiter:     util.NewRateLimiter(rateLimitPerMin),
		log:         slog.Default().With("gatherer", "candles"),
	}
}

// Name returns the gatherer identifier.
func (g *CandleGatherer) Name() string { return "candles" }

// Run fetches candles for every configured symbol and writes them to the
// store. Failures on one symbol are logged and do not abort the others.
func (g *CandleGatherer) Run(ctx context.Context) error {
	start, err := time.Parse("2006-01-02", g.startDate)
	if err != nil {
		return fmt.Errorf("parsing start date %q: %w", g.startDate, err)
	}
	tf, err := ParseTimeFrame(g.timeframe)
	if err != nil {
		return err
	}
	end := time.Now().UTC()

	var failed int
	for _, symbol := range g.symbols {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		candles, err := g.fetchCandles(ctx, symbol, tf, start, end)
		if err != nil {
			g.log.Error("fetch failed", "symbol", symbol, "err", err)
			failed++
			continue
		}
		if len(candles) == 0 {
			g.log.Warn("no candles returned", "symbol", symbol)
			continue
		}
		if err := g.store.WriteCandles(ctx, symbol, g.timeframe, candles); err != nil {
			g.log.Error("write failed", "symbol", symbol, "err", err)
			failed++
			continue
		}
		g.log.Info("symbol done",
			"symbol", symbol,
			"candles", len(candles),
			"first", candles[0].Timestamp,
			"last", candles[len(candles)-1].Timestamp,
		)
	}

	if failed > 0 {
		return fmt.Errorf("gather: %d of %d symbols failed", failed, len(g.symbols))
	}
	return nil
}

// fetchCandles pulls bars for one symbol, retrying transient API errors.
func (g *CandleGatherer) fetchCandles(ctx context.Context, symbol string, tf marketdata.TimeFrame, start, end time.Time) (domain.Series, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	var bars []marketdata.Bar
	err := util.Retry(ctx, g.maxAttempts, g.retryDelay, func() error {
		var err error
		bars, err = g.client.GetBars(strings.ToUpper(symbol), marketdata.GetBarsRequest{
			TimeFrame: tf,
			Start:     start,
			End:       end,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("GetBars %s: %w", symbol, err)
	}

	candles := make(domain.Series, 0, len(bars))
	for _, b := range bars {
		candles = append(candles, domain.Candle{
			Timestamp: b.Timestamp.UTC(),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    float64(b.Volume),
		})
	}
	return candles, nil
}

// ParseTimeFrame maps a timeframe string like "1h" or "15m" to the Alpaca
// market-data representation.
func ParseTimeFrame(s string) (marketdata.TimeFrame, error) {
	switch strings.ToLower(s) {
	case "1m":
		return marketdata.OneMin, nil
	case "5m":
		return marketdata.NewTimeFrame(5, marketdata.Min), nil
	case "15m":
		return marketdata.NewTimeFrame(15, marketdata.Min), nil
	case "30m":
		return marketdata.NewTimeFrame(30, marketdata.Min), nil
	case "1h":
		return marketdata.OneHour, nil
	case "4h":
		return marketdata.NewTimeFrame(4, marketdata.Hour), nil
	case "1d":
		return marketdata.OneDay, nil
	default:
		return marketdata.TimeFrame{}, fmt.Errorf("unsupported timeframe %q", s)
	}
}
