package alphavantage

import (
	"context"
	"fmt"
	"strings"

	"github.com/tickerlab/finsight/internal/core/toolkit"
)

// =============================================================================
// Toolkit
// =============================================================================

// Toolkit returns the Alpha Vantage toolkit. Tool failures are rendered
// into the result text so the model can react to them; the functions
// themselves never error once the arguments are valid.
func (c *Client) Toolkit() *toolkit.Toolkit {
	kit := toolkit.New("alpha_vantage_tools")
	if c.flags.StockNews {
		kit.MustRegister(toolkit.Tool{
			Name:        "get_stock_news",
			Description: "Get the latest news for a stock ticker from Alpha Vantage.",
			Parameters:  toolkit.TickerSchema(),
			Invoke:      c.invokeStockNews,
		})
	}
	if c.flags.CompanyOverview {
		kit.MustRegister(toolkit.Tool{
			Name:        "get_company_overview",
			Description: "Get the company overview and fundamentals for a stock ticker.",
			Parameters:  toolkit.TickerSchema(),
			Invoke:      c.invokeCompanyOverview,
		})
	}
	return kit
}

func (c *Client) invokeStockNews(ctx context.Context, args toolkit.Arguments) (string, error) {
	ticker := strings.ToUpper(strings.TrimSpace(args.String("ticker")))
	if ticker == "" {
		return "", fmt.Errorf("ticker is required")
	}

	articles, err := c.NewsSentiment(ctx, ticker, c.newsLimit)
	if err != nil {
		return fmt.Sprintf("Error getting news for %s: %v", ticker, err), nil
	}
	return FormatNews(ticker, articles), nil
}

func (c *Client) invokeCompanyOverview(ctx context.Context, args toolkit.Arguments) (string, error) {
	ticker := strings.ToUpper(strings.TrimSpace(args.String("ticker")))
	if ticker == "" {
		return "", fmt.Errorf("ticker is required")
	}

	fields, err := c.CompanyOverview(ctx, ticker)
	if err != nil {
		return fmt.Sprintf("Error getting company overview for %s: %v", ticker, err), nil
	}
	return FormatOverview(ticker, fields), nil
}

// =============================================================================
// Formatting
// =============================================================================

// FormatNews renders articles as the bulleted list the assistant expects.
func FormatNews(ticker string, articles []NewsArticle) string {
	if len(articles) == 0 {
		return fmt.Sprintf("No news found for %s.", ticker)
	}

	lines := make([]string, 0, len(articles))
	for _, article := range articles {
		lines = append(lines, fmt.Sprintf("- **%s**\n  - Source: %s\n  - Summary: %s\n  - URL: %s",
			article.Title, article.Source, article.Summary, article.URL))
	}
	return "Latest News:\n" + strings.Join(lines, "\n")
}

// FormatOverview renders overview fields as key/value lines in upstream
// order.
func FormatOverview(ticker string, fields []Field) string {
	if len(fields) == 0 {
		return fmt.Sprintf("No company overview found for %s.", ticker)
	}

	lines := make([]string, 0, len(fields))
	for _, field := range fields {
		lines = append(lines, fmt.Sprintf("**%s**: %s", field.Key, field.Value))
	}
	return fmt.Sprintf("Company Overview for %s:\n", ticker) + strings.Join(lines, "\n")
}
