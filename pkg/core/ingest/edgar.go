package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

const (
	// DefaultEDGARBaseURL serves companyfacts and the ticker map.
	DefaultEDGARBaseURL = "https://data.sec.gov"
	// DefaultTickersURL is the SEC ticker to CIK mapping file.
	DefaultTickersURL = "https://www.sec.gov/files/company_tickers.json"
	// DefaultUserAgent is sent when none is configured; SEC rejects
	// requests without one.
	DefaultUserAgent = "LineItemEngine/1.0 (contact@example.com)"
)

// ErrTickerNotFound is returned when the ticker map has no entry.
var ErrTickerNotFound = eris.New("ingest: ticker not found")

// =============================================================================
// SEC EDGAR CLIENT
// =============================================================================

// EDGARClient fetches XBRL company facts from SEC EDGAR.
type EDGARClient struct {
	httpClient *http.Client
	baseURL    string
	tickersURL string
	userAgent  string
}

// EDGAROption customizes an EDGARClient.
type EDGAROption func(*EDGARClient)

// WithBaseURL points the client at another host, e.g. a test server.
func WithBaseURL(base, tickers string) EDGAROption {
	return func(c *EDGARClient) {
		c.baseURL = strings.TrimRight(base, "/")
		c.tickersURL = tickers
	}
}

// WithUserAgent sets the User-Agent SEC requires.
func WithUserAgent(ua string) EDGAROption {
	return func(c *EDGARClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// WithHTTPClient replaces the default 30s-timeout client.
func WithHTTPClient(hc *http.Client) EDGAROption {
	return func(c *EDGARClient) { c.httpClient = hc }
}

// NewEDGARClient creates a client with SEC defaults.
func NewEDGARClient(opts ...EDGAROption) *EDGARClient {
	c := &EDGARClient{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    DefaultEDGARBaseURL,
		tickersURL: DefaultTickersURL,
		userAgent:  DefaultUserAgent,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// PadCIK zero-pads a CIK to the 10 digits EDGAR URLs use.
func PadCIK(cik string) string {
	cik = strings.TrimLeft(strings.TrimSpace(cik), "0")
	if len(cik) >= 10 {
		return cik
	}
	return strings.Repeat("0", 10-len(cik)) + cik
}

// FetchCompanyFacts downloads and decodes the companyfacts document.
func (c *EDGARClient) FetchCompanyFacts(ctx context.Context, cik string) (*CompanyFacts, error) {
	url := fmt.Sprintf("%s/api/xbrl/companyfacts/CIK%s.json", c.baseURL, PadCIK(cik))
	body, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	return ParseCompanyFacts(body)
}

// LookupCIK resolves a ticker symbol to a padded CIK.
func (c *EDGARClient) LookupCIK(ctx context.Context, ticker string) (string, error) {
	body, err := c.get(ctx, c.tickersURL)
	if err != nil {
		return "", err
	}
	defer body.Close()

	// { "0": {"cik_str": 320193, "ticker": "AAPL", "title": "..."}, ... }
	var mapping map[string]struct {
		CIK    int    `json:"cik_str"`
		Ticker string `json:"ticker"`
		Title  string `json:"title"`
	}
	if err := json.NewDecoder(body).Decode(&mapping); err != nil {
		return "", eris.Wrap(err, "ingest: decode ticker map")
	}
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	for _, entry := range mapping {
		if entry.Ticker == ticker {
			return fmt.Sprintf("%010d", entry.CIK), nil
		}
	}
	return "", eris.Wrapf(ErrTickerNotFound, "ticker %s", ticker)
}

func (c *EDGARClient) get(ctx context.Context, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: build request")
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	zap.L().Debug("ingest: GET", zap.String("url", url))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: GET %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, eris.Errorf("ingest: SEC returned status %d for %s", resp.StatusCode, url)
	}
	return resp.Body, nil
}
