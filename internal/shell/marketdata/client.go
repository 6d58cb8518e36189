// Package marketdata provides the Yahoo Finance market data tool backend:
// quotes, fundamentals, analyst recommendations and company news.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/hashicorp/go-retryablehttp"
)

// =============================================================================
// Client
// =============================================================================

// DefaultBaseURL is the Yahoo Finance query API host.
const DefaultBaseURL = "https://query1.finance.yahoo.com"

// defaultUserAgent is a browser User-Agent; Yahoo rejects the default Go
// client string.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config holds configuration for the market data client. The capability
// flags control which tools the toolkit registers.
type Config struct {
	BaseURL   string
	Timeout   time.Duration
	RetryMax  int
	UserAgent string
	NewsCount int

	StockPrice             bool
	AnalystRecommendations bool
	StockFundamentals      bool
	CompanyNews            bool
}

// DefaultConfig returns default market data configuration with every
// capability enabled.
func DefaultConfig() Config {
	return Config{
		BaseURL:                DefaultBaseURL,
		Timeout:                15 * time.Second,
		RetryMax:               2,
		UserAgent:              defaultUserAgent,
		NewsCount:              5,
		StockPrice:             true,
		AnalystRecommendations: true,
		StockFundamentals:      true,
		CompanyNews:            true,
	}
}

// Client fetches market data from Yahoo Finance.
type Client struct {
	baseURL    string
	userAgent  string
	newsCount  int
	flags      Config
	httpClient *http.Client
}

// NewClient creates a market data client. Transient upstream failures are
// retried with backoff.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.NewsCount <= 0 {
		cfg.NewsCount = 5
	}

	retry := retryablehttp.NewClient()
	retry.RetryMax = cfg.RetryMax
	retry.RetryWaitMin = 500 * time.Millisecond
	retry.RetryWaitMax = 4 * time.Second
	retry.HTTPClient.Timeout = cfg.Timeout
	retry.Logger = nil

	return &Client{
		baseURL:    cfg.BaseURL,
		userAgent:  cfg.UserAgent,
		newsCount:  cfg.NewsCount,
		flags:      cfg,
		httpClient: retry.StandardClient(),
	}
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(body))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// =============================================================================
// Quote
// =============================================================================

// Quote is the current trading snapshot for a ticker.
type Quote struct {
	Symbol        string
	Name          string
	Currency      string
	Price         float64
	PreviousClose float64
	DayHigh       float64
	DayLow        float64
	Volume        int64
}

type chartEnvelope struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Currency             string  `json:"currency"`
				Symbol               string  `json:"symbol"`
				LongName             string  `json:"longName"`
				RegularMarketPrice   float64 `json:"regularMarketPrice"`
				ChartPreviousClose   float64 `json:"chartPreviousClose"`
				RegularMarketDayHigh float64 `json:"regularMarketDayHigh"`
				RegularMarketDayLow  float64 `json:"regularMarketDayLow"`
				RegularMarketVolume  int64   `json:"regularMarketVolume"`
			} `json:"meta"`
		} `json:"result"`
		Error *apiError `json:"error"`
	} `json:"chart"`
}

type apiError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Quote fetches the current trading snapshot via the chart API.
func (c *Client) Quote(ctx context.Context, ticker string) (*Quote, error) {
	endpoint := c.baseURL + "/v8/finance/chart/" + url.PathEscape(ticker) + "?interval=1d&range=1d"

	var envelope chartEnvelope
	if err := c.getJSON(ctx, endpoint, &envelope); err != nil {
		return nil, fmt.Errorf("quote %s: %w", ticker, err)
	}
	if envelope.Chart.Error != nil {
		return nil, fmt.Errorf("quote %s: %s", ticker, envelope.Chart.Error.Description)
	}
	if len(envelope.Chart.Result) == 0 {
		return nil, fmt.Errorf("quote %s: no data", ticker)
	}

	meta := envelope.Chart.Result[0].Meta
	return &Quote{
		Symbol:        meta.Symbol,
		Name:          meta.LongName,
		Currency:      meta.Currency,
		Price:         meta.RegularMarketPrice,
		PreviousClose: meta.ChartPreviousClose,
		DayHigh:       meta.RegularMarketDayHigh,
		DayLow:        meta.RegularMarketDayLow,
		Volume:        meta.RegularMarketVolume,
	}, nil
}

// =============================================================================
// Fundamentals and Recommendations
// =============================================================================

// rawValue is Yahoo's number encoding: a raw value plus a display string.
type rawValue struct {
	Raw float64 `json:"raw"`
	Fmt string  `json:"fmt"`
}

// Display returns the upstream display string, falling back to the raw
// value. Missing values display as "N/A".
func (v rawValue) Display() string {
	if v.Fmt != "" {
		return v.Fmt
	}
	if v.Raw != 0 {
		return strconv.FormatFloat(v.Raw, 'f', -1, 64)
	}
	return "N/A"
}

// Fundamentals carries display-formatted key statistics for a ticker.
type Fundamentals struct {
	Symbol            string
	MarketCap         string
	EnterpriseValue   string
	TrailingPE        string
	ForwardPE         string
	PegRatio          string
	PriceToBook       string
	EPS               string
	DividendYield     string
	FiftyTwoWeekHigh  string
	FiftyTwoWeekLow   string
	Revenue           string
	ProfitMargin      string
	ReturnOnEquity    string
	TargetMeanPrice   string
	RecommendationKey string
}

// RecommendationTrend is one period of analyst recommendation counts.
type RecommendationTrend struct {
	Period     string `json:"period"`
	StrongBuy  int    `json:"strongBuy"`
	Buy        int    `json:"buy"`
	Hold       int    `json:"hold"`
	Sell       int    `json:"sell"`
	StrongSell int    `json:"strongSell"`
}

type summaryEnvelope struct {
	QuoteSummary struct {
		Result []summaryResult `json:"result"`
		Error  *apiError       `json:"error"`
	} `json:"quoteSummary"`
}

type summaryResult struct {
	SummaryDetail struct {
		MarketCap        rawValue `json:"marketCap"`
		TrailingPE       rawValue `json:"trailingPE"`
		DividendYield    rawValue `json:"dividendYield"`
		FiftyTwoWeekHigh rawValue `json:"fiftyTwoWeekHigh"`
		FiftyTwoWeekLow  rawValue `json:"fiftyTwoWeekLow"`
	} `json:"summaryDetail"`
	DefaultKeyStatistics struct {
		EnterpriseValue rawValue `json:"enterpriseValue"`
		ForwardPE       rawValue `json:"forwardPE"`
		PegRatio        rawValue `json:"pegRatio"`
		PriceToBook     rawValue `json:"priceToBook"`
		TrailingEps     rawValue `json:"trailingEps"`
	} `json:"defaultKeyStatistics"`
	FinancialData struct {
		TotalRevenue      rawValue `json:"totalRevenue"`
		ProfitMargins     rawValue `json:"profitMargins"`
		ReturnOnEquity    rawValue `json:"returnOnEquity"`
		TargetMeanPrice   rawValue `json:"targetMeanPrice"`
		RecommendationKey string   `json:"recommendationKey"`
	} `json:"financialData"`
	RecommendationTrend struct {
		Trend []RecommendationTrend `json:"trend"`
	} `json:"recommendationTrend"`
}

func (c *Client) quoteSummary(ctx context.Context, ticker, modules string) (*summaryResult, error) {
	endpoint := c.baseURL + "/v10/finance/quoteSummary/" + url.PathEscape(ticker) + "?modules=" + url.QueryEscape(modules)

	var envelope summaryEnvelope
	if err := c.getJSON(ctx, endpoint, &envelope); err != nil {
		return nil, err
	}
	if envelope.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("%s", envelope.QuoteSummary.Error.Description)
	}
	if len(envelope.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("no data")
	}
	return &envelope.QuoteSummary.Result[0], nil
}

// Fundamentals fetches key statistics via the quoteSummary API.
func (c *Client) Fundamentals(ctx context.Context, ticker string) (*Fundamentals, error) {
	result, err := c.quoteSummary(ctx, ticker, "summaryDetail,defaultKeyStatistics,financialData")
	if err != nil {
		return nil, fmt.Errorf("fundamentals %s: %w", ticker, err)
	}

	return &Fundamentals{
		Symbol:            ticker,
		MarketCap:         result.SummaryDetail.MarketCap.Display(),
		EnterpriseValue:   result.DefaultKeyStatistics.EnterpriseValue.Display(),
		TrailingPE:        result.SummaryDetail.TrailingPE.Display(),
		ForwardPE:         result.DefaultKeyStatistics.ForwardPE.Display(),
		PegRatio:          result.DefaultKeyStatistics.PegRatio.Display(),
		PriceToBook:       result.DefaultKeyStatistics.PriceToBook.Display(),
		EPS:               result.DefaultKeyStatistics.TrailingEps.Display(),
		DividendYield:     result.SummaryDetail.DividendYield.Display(),
		FiftyTwoWeekHigh:  result.SummaryDetail.FiftyTwoWeekHigh.Display(),
		FiftyTwoWeekLow:   result.SummaryDetail.FiftyTwoWeekLow.Display(),
		Revenue:           result.FinancialData.TotalRevenue.Display(),
		ProfitMargin:      result.FinancialData.ProfitMargins.Display(),
		ReturnOnEquity:    result.FinancialData.ReturnOnEquity.Display(),
		TargetMeanPrice:   result.FinancialData.TargetMeanPrice.Display(),
		RecommendationKey: result.FinancialData.RecommendationKey,
	}, nil
}

// Recommendations fetches analyst recommendation counts per period.
func (c *Client) Recommendations(ctx context.Context, ticker string) ([]RecommendationTrend, error) {
	result, err := c.quoteSummary(ctx, ticker, "recommendationTrend")
	if err != nil {
		return nil, fmt.Errorf("recommendations %s: %w", ticker, err)
	}
	return result.RecommendationTrend.Trend, nil
}

// =============================================================================
// Company News
// =============================================================================

// NewsItem is one news article about a ticker.
type NewsItem struct {
	Title     string
	Publisher string
	Link      string
	Published time.Time
}

type searchEnvelope struct {
	News []struct {
		Title               string `json:"title"`
		Publisher           string `json:"publisher"`
		Link                string `json:"link"`
		ProviderPublishTime int64  `json:"providerPublishTime"`
	} `json:"news"`
}

// News fetches recent news articles for a ticker via the search API.
func (c *Client) News(ctx context.Context, ticker string, count int) ([]NewsItem, error) {
	if count <= 0 {
		count = c.newsCount
	}
	endpoint := c.baseURL + "/v1/finance/search?q=" + url.QueryEscape(ticker) +
		"&newsCount=" + strconv.Itoa(count) + "&quotesCount=0"

	var envelope searchEnvelope
	if err := c.getJSON(ctx, endpoint, &envelope); err != nil {
		return nil, fmt.Errorf("news %s: %w", ticker, err)
	}

	items := make([]NewsItem, 0, len(envelope.News))
	for _, n := range envelope.News {
		items = append(items, NewsItem{
			Title:     n.Title,
			Publisher: n.Publisher,
			Link:      n.Link,
			Published: time.Unix(n.ProviderPublishTime, 0).UTC(),
		})
		if len(items) == count {
			break
		}
	}
	return items, nil
}
