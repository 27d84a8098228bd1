package market

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/ddalkkak/backend/internal/contracts"
	"github.com/wonny/ddalkkak/backend/pkg/httputil"
	"github.com/wonny/ddalkkak/backend/pkg/logger"
)

// UniverseScraper reads the instrument universe from an HTML constituents table
type UniverseScraper struct {
	httpClient *httputil.Client
	logger     *logger.Logger
	url        string
}

var _ contracts.UniverseSource = (*UniverseScraper)(nil)

// Header keywords per column (소문자 부분 일치)
var (
	tickerHeaders   = []string{"symbol", "ticker"}
	nameHeaders     = []string{"security", "company", "name"}
	sectorHeaders   = []string{"sector"}
	industryHeaders = []string{"sub-industry", "industry"}
)

// NewUniverseScraper creates a scraper for pageURL
func NewUniverseScraper(httpClient *httputil.Client, log *logger.Logger, pageURL string) *UniverseScraper {
	return &UniverseScraper{
		httpClient: httpClient,
		logger:     log.WithField("module", "universe"),
		url:        pageURL,
	}
}

// FetchUniverse downloads the page and parses the first table with a ticker column
func (u *UniverseScraper) FetchUniverse(ctx context.Context) ([]contracts.InstrumentRef, error) {
	resp, err := u.httpClient.Get(ctx, u.url)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	refs, err := ParseUniverse(resp.Body)
	if err != nil {
		return nil, err
	}

	u.logger.WithField("count", len(refs)).Info("Universe loaded")
	return refs, nil
}

// ParseUniverse extracts instruments from HTML.
// Tickers are normalized for the chart source ("BRK.B" → "BRK-B") and deduplicated.
func ParseUniverse(r io.Reader) ([]contracts.InstrumentRef, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	var refs []contracts.InstrumentRef
	found := false

	doc.Find("table").EachWithBreak(func(_ int, table *goquery.Selection) bool {
		cols := headerIndex(table)
		if cols.ticker < 0 {
			return true
		}
		found = true

		seen := make(map[string]bool)
		table.Find("tr").Each(func(_ int, row *goquery.Selection) {
			cells := row.Find("td")
			if cells.Length() == 0 {
				return
			}
			ticker := NormalizeTicker(cellText(cells, cols.ticker))
			if ticker == "" || seen[ticker] {
				return
			}
			seen[ticker] = true
			refs = append(refs, contracts.InstrumentRef{
				Ticker:   ticker,
				Name:     cellText(cells, cols.name),
				Sector:   cellText(cells, cols.sector),
				Industry: cellText(cells, cols.industry),
			})
		})
		return false
	})

	if !found {
		return nil, fmt.Errorf("no table with a ticker column")
	}
	return refs, nil
}

// NormalizeTicker trims and upper-cases a symbol and maps class separators to '-'
func NormalizeTicker(raw string) string {
	t := strings.ToUpper(strings.TrimSpace(raw))
	return strings.ReplaceAll(t, ".", "-")
}

type columns struct {
	ticker, name, sector, industry int
}

func headerIndex(table *goquery.Selection) columns {
	cols := columns{ticker: -1, name: -1, sector: -1, industry: -1}
	table.Find("tr").First().Find("th").Each(func(i int, th *goquery.Selection) {
		h := strings.ToLower(strings.TrimSpace(th.Text()))
		switch {
		case cols.ticker < 0 && containsAny(h, tickerHeaders):
			cols.ticker = i
		case cols.industry < 0 && containsAny(h, industryHeaders):
			cols.industry = i
		case cols.sector < 0 && containsAny(h, sectorHeaders):
			cols.sector = i
		case cols.name < 0 && containsAny(h, nameHeaders):
			cols.name = i
		}
	})
	return cols
}

func containsAny(s string, keys []string) bool {
	for _, k := range keys {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}

func cellText(cells *goquery.Selection, i int) string {
	if i < 0 || i >= cells.Length() {
		return ""
	}
	return strings.TrimSpace(cells.Eq(i).Text())
}
