package market

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
	"github.com/wonny/ddalkkak/backend/pkg/config"
	"github.com/wonny/ddalkkak/backend/pkg/httputil"
	"github.com/wonny/ddalkkak/backend/pkg/logger"
	"github.com/wonny/ddalkkak/backend/pkg/redis"
)

// Chart ranges per stage
const (
	lightRange  = "3mo"
	detailRange = "1y"
)

// benchmarkRetryAfter is the wait before a failed benchmark chart is requested again
const benchmarkRetryAfter = 5 * time.Minute

// Client fetches daily charts for the two collection stages
// ⭐ SSOT: 시세 차트 API 호출은 이 클라이언트에서만
type Client struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	baseURL    string
	benchmark  string

	benchGroup    singleflight.Group
	benchMu       sync.Mutex
	benchSeries   *Series
	benchFailedAt time.Time
	now           func() time.Time
}

var (
	_ contracts.LightFetcher  = (*Client)(nil)
	_ contracts.DetailFetcher = (*Client)(nil)
)

// NewClient creates a chart client
func NewClient(httpClient *httputil.Client, log *logger.Logger, cfg config.MarketConfig) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     log.WithField("module", "market"),
		baseURL:    strings.TrimRight(cfg.ChartBaseURL, "/"),
		benchmark:  cfg.Benchmark,
		now:        time.Now,
	}
}

// NewHTTPClient builds the throttled HTTP client for market requests.
// With redis enabled the quota is shared across processes; otherwise it is local.
func NewHTTPClient(cfg *config.Config, log *logger.Logger, rdb *redis.Client) *httputil.Client {
	client := httputil.New(cfg, log).WithHeader("Accept", "application/json")

	rps := cfg.Market.RequestsPerSecond
	switch {
	case rps <= 0:
		return client
	case rdb != nil && rdb.Enabled():
		limiter := redis.NewRateLimiter(rdb, "screener")
		return client.WithRateLimiter(limiter.Bind(redis.MarketRateLimit(rps)))
	default:
		return client.WithRateLimiter(rate.NewLimiter(rate.Limit(rps), 1))
	}
}

// FetchLight returns the last price and 20-day average dollar volume
func (c *Client) FetchLight(ctx context.Context, ref contracts.InstrumentRef) (*contracts.LightRecord, error) {
	s, err := c.Chart(ctx, ref.Ticker, lightRange)
	if err != nil {
		return nil, err
	}

	last := s.Last()
	if last <= 0 {
		return nil, fmt.Errorf("%s: no price", ref.Ticker)
	}

	rec := &contracts.LightRecord{
		Ref:   ref,
		Price: decimal.NullDecimal{Decimal: decimal.NewFromFloat(last), Valid: true},
	}
	if dv, ok := AvgDollarVolume(s, dollarVolumeWindow); ok {
		rec.DollarVolume = decimal.NullDecimal{Decimal: decimal.NewFromFloat(dv).Round(2), Valid: true}
	}
	return rec, nil
}

// FetchDetail returns the detail record for one instrument.
// price and avgVolume come from stage 1 and fill gaps in a short history.
func (c *Client) FetchDetail(ctx context.Context, ref contracts.InstrumentRef, price float64, avgVolume float64) (contracts.SourceRecord, error) {
	s, err := c.Chart(ctx, ref.Ticker, detailRange)
	if err != nil {
		return nil, err
	}

	rec := Indicators(s, c.benchmarkSeries(ctx))
	rec["Ticker"] = ref.Ticker

	if _, ok := rec["Price"]; !ok && price > 0 {
		put(rec, "Price", price)
	}
	if _, ok := rec["DollarVol($M)"]; !ok && price > 0 && avgVolume > 0 {
		put(rec, "DollarVol($M)", price*avgVolume/1e6)
	}
	return rec, nil
}

// Chart fetches one daily chart for symbol over rng ("3mo", "1y", ...)
func (c *Client) Chart(ctx context.Context, symbol string, rng string) (*Series, error) {
	params := url.Values{}
	params.Set("range", rng)
	params.Set("interval", "1d")
	fullURL := fmt.Sprintf("%s/%s?%s", c.baseURL, url.PathEscape(symbol), params.Encode())

	var resp chartResponse
	if err := c.httpClient.GetJSON(ctx, fullURL, &resp); err != nil {
		return nil, fmt.Errorf("%s chart: %w", symbol, err)
	}

	s, err := resp.toSeries()
	if err != nil {
		return nil, fmt.Errorf("%s chart: %w", symbol, err)
	}
	if s.Symbol == "" {
		s.Symbol = symbol
	}
	return s, nil
}

// benchmarkSeries loads the benchmark once per client.
// Concurrent callers share one request; after a failure no request is made
// for benchmarkRetryAfter and beta stays absent.
func (c *Client) benchmarkSeries(ctx context.Context) *Series {
	if c.benchmark == "" {
		return nil
	}
	if s, cooling := c.benchmarkState(); s != nil || cooling {
		return s
	}

	v, err, _ := c.benchGroup.Do(c.benchmark, func() (interface{}, error) {
		// 대기 중 다른 호출이 이미 결과를 남겼을 수 있음
		if s, cooling := c.benchmarkState(); s != nil || cooling {
			return s, nil
		}

		s, err := c.Chart(ctx, c.benchmark, detailRange)

		c.benchMu.Lock()
		defer c.benchMu.Unlock()
		if err != nil {
			c.benchFailedAt = c.now()
			c.logger.WithError(err).WithField("benchmark", c.benchmark).Warn("Benchmark chart unavailable")
			return (*Series)(nil), nil
		}
		c.benchSeries = s
		c.benchFailedAt = time.Time{}
		return s, nil
	})
	if err != nil {
		return nil
	}
	return v.(*Series)
}

// benchmarkState returns the cached series, or cooling=true inside the retry window
func (c *Client) benchmarkState() (*Series, bool) {
	c.benchMu.Lock()
	defer c.benchMu.Unlock()
	if c.benchSeries != nil {
		return c.benchSeries, false
	}
	cooling := !c.benchFailedAt.IsZero() && c.now().Sub(c.benchFailedAt) < benchmarkRetryAfter
	return nil, cooling
}
