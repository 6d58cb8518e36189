// Package websearch provides the DuckDuckGo web search tool backend.
// It scrapes the HTML endpoint (no API key required) and returns results
// as a markdown source list.
package websearch

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/tickerlab/finsight/internal/core/toolkit"
)

// =============================================================================
// Client
// =============================================================================

// DefaultBaseURL is the DuckDuckGo HTML endpoint.
const DefaultBaseURL = "https://html.duckduckgo.com"

// defaultUserAgent is a browser User-Agent; the HTML endpoint rejects the
// default Go client string.
const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"

// Config holds configuration for the search client.
type Config struct {
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
	UserAgent  string
}

// DefaultConfig returns default search client configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:    DefaultBaseURL,
		MaxResults: 5,
		Timeout:    15 * time.Second,
		UserAgent:  defaultUserAgent,
	}
}

// Client searches the web via DuckDuckGo's HTML endpoint.
type Client struct {
	baseURL    string
	maxResults int
	userAgent  string
	httpClient *http.Client
}

// NewClient creates a search client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	return &Client{
		baseURL:    cfg.BaseURL,
		maxResults: cfg.MaxResults,
		userAgent:  cfg.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Result is one search hit.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Search runs a query and returns up to max hits. Ads are skipped;
// DuckDuckGo redirect links are unwrapped to the target URL.
func (c *Client) Search(ctx context.Context, query string, max int) ([]Result, error) {
	if max <= 0 {
		max = c.maxResults
	}

	endpoint := c.baseURL + "/html/?q=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create search request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse search results: %w", err)
	}

	var results []Result
	doc.Find("div.result").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if class, _ := sel.Attr("class"); strings.Contains(class, "result--ad") {
			return true
		}
		link := sel.Find("a.result__a").First()
		title := strings.TrimSpace(link.Text())
		href, _ := link.Attr("href")
		if title == "" || href == "" {
			return true
		}
		results = append(results, Result{
			Title:   title,
			URL:     unwrapRedirect(href),
			Snippet: strings.Join(strings.Fields(sel.Find(".result__snippet").Text()), " "),
		})
		return len(results) < max
	})
	return results, nil
}

// unwrapRedirect resolves DuckDuckGo's /l/?uddg=<target> redirect links to
// the target URL. Other links pass through unchanged.
func unwrapRedirect(href string) string {
	parsed, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := parsed.Query().Get("uddg"); target != "" {
		return target
	}
	if parsed.Scheme == "" && parsed.Host != "" {
		parsed.Scheme = "https"
		return parsed.String()
	}
	return href
}

// =============================================================================
// Toolkit
// =============================================================================

// Toolkit returns the web search toolkit exposed to agents.
func (c *Client) Toolkit() *toolkit.Toolkit {
	kit := toolkit.New("duckduckgo")
	kit.MustRegister(toolkit.Tool{
		Name:        "duckduckgo_search",
		Description: "Search the web with DuckDuckGo for current information. Returns result titles, snippets and source URLs.",
		Parameters: toolkit.ObjectSchema(map[string]toolkit.Property{
			"query": {
				Type:        "string",
				Description: "The search query.",
			},
			"max_results": {
				Type:        "integer",
				Description: "Maximum number of results to return.",
			},
		}, "query"),
		Invoke: c.invokeSearch,
	})
	return kit
}

func (c *Client) invokeSearch(ctx context.Context, args toolkit.Arguments) (string, error) {
	query := args.String("query")
	if query == "" {
		return "", fmt.Errorf("query is required")
	}
	results, err := c.Search(ctx, query, args.Int("max_results", c.maxResults))
	if err != nil {
		return "", err
	}
	return FormatResults(query, results), nil
}

// FormatResults renders hits as a numbered markdown source list.
func FormatResults(query string, results []Result) string {
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Search results for %q:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "%d. **%s**\n", i+1, r.Title)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "   %s\n", r.Snippet)
		}
		fmt.Fprintf(&b, "   Source: %s\n", r.URL)
	}
	return b.String()
}
