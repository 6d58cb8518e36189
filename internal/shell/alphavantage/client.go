// Package alphavantage provides the Alpha Vantage tool backend: ticker news
// with sentiment and company overviews. An API key is required; the
// constructor fails without one.
package alphavantage

import (
	"context"
	"encoding/json"
	"errors"
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

// DefaultBaseURL is the Alpha Vantage API host.
const DefaultBaseURL = "https://www.alphavantage.co"

// ErrMissingAPIKey is returned when no API key is configured. The message
// is surfaced to operators as-is.
var ErrMissingAPIKey = errors.New("Alpha Vantage API key not found. Please set the ALPHA_VANTAGE_API_KEY environment variable.")

// Config holds configuration for the Alpha Vantage client. The capability
// flags control which tools the toolkit registers.
type Config struct {
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	RetryMax  int
	NewsLimit int

	StockNews       bool
	CompanyOverview bool
}

// DefaultConfig returns default Alpha Vantage configuration with every
// capability enabled.
func DefaultConfig() Config {
	return Config{
		BaseURL:         DefaultBaseURL,
		Timeout:         15 * time.Second,
		RetryMax:        2,
		NewsLimit:       5,
		StockNews:       true,
		CompanyOverview: true,
	}
}

// Client fetches news and fundamentals from Alpha Vantage.
type Client struct {
	apiKey     string
	baseURL    string
	newsLimit  int
	flags      Config
	httpClient *http.Client
}

// NewClient creates an Alpha Vantage client. Fails when no API key is
// configured.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.NewsLimit <= 0 {
		cfg.NewsLimit = 5
	}

	retry := retryablehttp.NewClient()
	retry.RetryMax = cfg.RetryMax
	retry.RetryWaitMin = 500 * time.Millisecond
	retry.RetryWaitMax = 4 * time.Second
	retry.HTTPClient.Timeout = cfg.Timeout
	retry.Logger = nil

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    cfg.BaseURL,
		newsLimit:  cfg.NewsLimit,
		flags:      cfg,
		httpClient: retry.StandardClient(),
	}, nil
}

func (c *Client) get(ctx context.Context, params url.Values) (*http.Response, error) {
	params.Set("apikey", c.apiKey)
	endpoint := c.baseURL + "/query?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("upstream returned %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

// =============================================================================
// News Sentiment
// =============================================================================

// NewsArticle is one article from the news feed.
type NewsArticle struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Summary string `json:"summary"`
	Source  string `json:"source"`
}

type newsEnvelope struct {
	Feed []NewsArticle `json:"feed"`
	// Alpha Vantage reports problems in-band with status 200.
	ErrorMessage string `json:"Error Message"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
}

func (e *newsEnvelope) err() error {
	switch {
	case e.ErrorMessage != "":
		return errors.New(e.ErrorMessage)
	case e.Note != "":
		return errors.New(e.Note)
	case e.Information != "":
		return errors.New(e.Information)
	}
	return nil
}

// NewsSentiment fetches the latest news articles for a ticker.
func (c *Client) NewsSentiment(ctx context.Context, ticker string, limit int) ([]NewsArticle, error) {
	if limit <= 0 {
		limit = c.newsLimit
	}
	params := url.Values{}
	params.Set("function", "NEWS_SENTIMENT")
	params.Set("tickers", ticker)
	params.Set("limit", strconv.Itoa(limit))

	resp, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var envelope newsEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, fmt.Errorf("decode news response: %w", err)
	}
	if err := envelope.err(); err != nil {
		return nil, err
	}
	if len(envelope.Feed) > limit {
		envelope.Feed = envelope.Feed[:limit]
	}
	return envelope.Feed, nil
}

// =============================================================================
// Company Overview
// =============================================================================

// Field is one key/value pair of a company overview, in upstream order.
type Field struct {
	Key   string
	Value string
}

// CompanyOverview fetches the company overview for a ticker. Field order
// follows the upstream document.
func (c *Client) CompanyOverview(ctx context.Context, ticker string) ([]Field, error) {
	params := url.Values{}
	params.Set("function", "OVERVIEW")
	params.Set("symbol", ticker)

	resp, err := c.get(ctx, params)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	fields, err := decodeOrderedObject(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("decode overview response: %w", err)
	}
	// In-band errors arrive as a single-field object.
	if len(fields) == 1 {
		switch fields[0].Key {
		case "Error Message", "Note", "Information":
			return nil, errors.New(fields[0].Value)
		}
	}
	return fields, nil
}

// decodeOrderedObject decodes a flat JSON object keeping field order.
func decodeOrderedObject(r io.Reader) ([]Field, error) {
	dec := json.NewDecoder(r)

	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, fmt.Errorf("expected object, got %v", tok)
	}

	var fields []Field
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return nil, err
		}
		key, ok := keyTok.(string)
		if !ok {
			return nil, fmt.Errorf("expected string key, got %v", keyTok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return nil, err
		}
		fields = append(fields, Field{Key: key, Value: stringifyValue(value)})
	}
	return fields, nil
}

func stringifyValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case nil:
		return "None"
	default:
		return fmt.Sprint(v)
	}
}
