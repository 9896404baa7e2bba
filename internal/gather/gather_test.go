package gather

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"quantlab/internal/domain"
	"quantlab/internal/util"
)

type fakeBarClient struct {
	bars     map[string][]marketdata.Bar
	err      map[string]error
	failures int // transient failures before success
	calls    int
}

func (f *fakeBarClient) GetBars(symbol string, _ marketdata.GetBarsRequest) ([]marketdata.Bar, error) {
	f.calls++
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("transient")
	}
	if err := f.err[symbol]; err != nil {
		return nil, err
	}
	return f.bars[symbol], nil
}

type memCandleStore struct {
	written map[string]domain.Series
}

func (m *memCandleStore) WriteCandles(_ context.Context, symbol, _ string, candles domain.Series) error {
	if m.written == nil {
		m.written = make(map[string]domain.Series)
	}
	m.written[symbol] = append(m.written[symbol], candles...)
	return nil
}

func (m *memCandleStore) ReadCandles(context.Context, string, string, time.Time, time.Time) (domain.Series, error) {
	return nil, nil
}

func (m *memCandleStore) ListSymbols(context.Context) ([]string, error) { return nil, nil }

func testGatherer(client barClient, s *memCandleStore, symbols []string) *CandleGatherer {
	return &CandleGatherer{
		client:      client,
		store:       s,
		symbols:     symbols,
		timeframe:   "1h",
		startDate:   "2023-01-01",
		maxAttempts: 3,
		retryDelay:  time.Millisecond,
		limiter:     util.NewRateLimiter(6000),
		log:         slog.Default(),
	}
}

func alpacaBars(start time.Time, closes ...float64) []marketdata.Bar {
	out := make([]marketdata.Bar, len(closes))
	for i, c := range closes {
		out[i] = marketdata.Bar{
			Timestamp: start.Add(time.Duration(i) * time.Hour),
			Open:      c, High: c, Low: c, Close: c,
			Volume: 10,
		}
	}
	return out
}

func TestRunWritesFetchedCandles(t *testing.T) {
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	client := &fakeBarClient{bars: map[string][]marketdata.Bar{
		"BTCUSD": alpacaBars(start, 100, 101, 102),
	}}
	s := &memCandleStore{}

	if err := testGatherer(client, s, []string{"btcusd"}).Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	got := s.written["btcusd"]
	if len(got) != 3 {
		t.Fatalf("wrote %d candles, want 3", len(got))
	}
	if got[2].Close != 102 || got[2].Volume != 10 {
		t.Errorf("candle = %+v", got[2])
	}
}

func TestRunRetriesTransientErrors(t *testing.T) {
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	client := &fakeBarClient{
		bars:     map[string][]marketdata.Bar{"AAA": alpacaBars(start, 1)},
		failures: 2,
	}
	s := &memCandleStore{}

	if err := testGatherer(client, s, []string{"AAA"}).Run(context.Background()); err != nil {
		t.Fatal(err)
	}
	if client.calls != 3 {
		t.Errorf("client calls = %d, want 3 (two retries)", client.calls)
	}
	if len(s.written["AAA"]) != 1 {
		t.Errorf("candles written = %d, want 1", len(s.written["AAA"]))
	}
}

func TestRunIsolatesPerSymbolFailures(t *testing.T) {
	start := time.Date(2023, 3, 1, 0, 0, 0, 0, time.UTC)
	client := &fakeBarClient{
		bars: map[string][]marketdata.Bar{"GOOD": alpacaBars(start, 1, 2)},
		err:  map[string]error{"BAD": errors.New("403 forbidden")},
	}
	s := &memCandleStore{}

	err := testGatherer(client, s, []string{"BAD", "GOOD"}).Run(context.Background())
	if err == nil {
		t.Fatal("Run returned nil despite a failed symbol")
	}
	if len(s.written["GOOD"]) != 2 {
		t.Errorf("healthy symbol not written: %v", s.written)
	}
}

func TestParseTimeFrame(t *testing.T) {
	if _, err := ParseTimeFrame("1h"); err != nil {
		t.Errorf("1h rejected: %v", err)
	}
	if _, err := ParseTimeFrame("15m"); err != nil {
		t.Errorf("15m rejected: %v", err)
	}
	if _, err := ParseTimeFrame("2w"); err == nil {
		t.Error("2w accepted, want error")
	}
}
