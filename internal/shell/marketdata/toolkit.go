package marketdata

import (
	"context"
	"fmt"
	"strings"

	"github.com/tickerlab/finsight/internal/core/toolkit"
)

// =============================================================================
// Toolkit
// =============================================================================

// Toolkit returns the market data toolkit. Only enabled capabilities are
// registered; disabled ones never reach the model.
func (c *Client) Toolkit() *toolkit.Toolkit {
	kit := toolkit.New("yfinance")
	if c.flags.StockPrice {
		kit.MustRegister(toolkit.Tool{
			Name:        "get_current_stock_price",
			Description: "Get the current stock price and trading snapshot for a ticker.",
			Parameters:  toolkit.TickerSchema(),
			Invoke:      c.invokeQuote,
		})
	}
	if c.flags.AnalystRecommendations {
		kit.MustRegister(toolkit.Tool{
			Name:        "get_analyst_recommendations",
			Description: "Get analyst buy/hold/sell recommendation counts for a ticker.",
			Parameters:  toolkit.TickerSchema(),
			Invoke:      c.invokeRecommendations,
		})
	}
	if c.flags.StockFundamentals {
		kit.MustRegister(toolkit.Tool{
			Name:        "get_stock_fundamentals",
			Description: "Get fundamental statistics (market cap, P/E, EPS, margins) for a ticker.",
			Parameters:  toolkit.TickerSchema(),
			Invoke:      c.invokeFundamentals,
		})
	}
	if c.flags.CompanyNews {
		kit.MustRegister(toolkit.Tool{
			Name:        "get_company_news",
			Description: "Get recent news headlines about a company by ticker.",
			Parameters:  toolkit.TickerSchema(),
			Invoke:      c.invokeNews,
		})
	}
	return kit
}

func tickerArg(args toolkit.Arguments) (string, error) {
	ticker := strings.ToUpper(strings.TrimSpace(args.String("ticker")))
	if ticker == "" {
		return "", fmt.Errorf("ticker is required")
	}
	return ticker, nil
}

func (c *Client) invokeQuote(ctx context.Context, args toolkit.Arguments) (string, error) {
	ticker, err := tickerArg(args)
	if err != nil {
		return "", err
	}
	quote, err := c.Quote(ctx, ticker)
	if err != nil {
		return "", err
	}
	return FormatQuote(quote), nil
}

func (c *Client) invokeRecommendations(ctx context.Context, args toolkit.Arguments) (string, error) {
	ticker, err := tickerArg(args)
	if err != nil {
		return "", err
	}
	trend, err := c.Recommendations(ctx, ticker)
	if err != nil {
		return "", err
	}
	return FormatRecommendations(ticker, trend), nil
}

func (c *Client) invokeFundamentals(ctx context.Context, args toolkit.Arguments) (string, error) {
	ticker, err := tickerArg(args)
	if err != nil {
		return "", err
	}
	fundamentals, err := c.Fundamentals(ctx, ticker)
	if err != nil {
		return "", err
	}
	return FormatFundamentals(fundamentals), nil
}

func (c *Client) invokeNews(ctx context.Context, args toolkit.Arguments) (string, error) {
	ticker, err := tickerArg(args)
	if err != nil {
		return "", err
	}
	items, err := c.News(ctx, ticker, args.Int("count", c.newsCount))
	if err != nil {
		return "", err
	}
	return FormatNews(ticker, items), nil
}

// =============================================================================
// Formatting
// =============================================================================

// FormatQuote renders a quote as a single readable line.
func FormatQuote(q *Quote) string {
	name := q.Symbol
	if q.Name != "" {
		name = fmt.Sprintf("%s (%s)", q.Symbol, q.Name)
	}
	return fmt.Sprintf("%s: %.2f %s (previous close %.2f, day range %.2f - %.2f, volume %d)",
		name, q.Price, q.Currency, q.PreviousClose, q.DayLow, q.DayHigh, q.Volume)
}

// FormatRecommendations renders recommendation counts as a markdown table.
func FormatRecommendations(ticker string, trend []RecommendationTrend) string {
	if len(trend) == 0 {
		return fmt.Sprintf("No analyst recommendations found for %s.", ticker)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Analyst recommendations for %s:\n\n", ticker)
	b.WriteString("| Period | Strong Buy | Buy | Hold | Sell | Strong Sell |\n")
	b.WriteString("|--------|-----------:|----:|-----:|-----:|------------:|\n")
	for _, t := range trend {
		fmt.Fprintf(&b, "| %s | %d | %d | %d | %d | %d |\n",
			t.Period, t.StrongBuy, t.Buy, t.Hold, t.Sell, t.StrongSell)
	}
	return b.String()
}

// FormatFundamentals renders fundamentals as key/value lines.
func FormatFundamentals(f *Fundamentals) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Fundamentals for %s:\n", f.Symbol)
	fields := []struct {
		label string
		value string
	}{
		{"Market Cap", f.MarketCap},
		{"Enterprise Value", f.EnterpriseValue},
		{"Trailing P/E", f.TrailingPE},
		{"Forward P/E", f.ForwardPE},
		{"PEG Ratio", f.PegRatio},
		{"Price/Book", f.PriceToBook},
		{"EPS (trailing)", f.EPS},
		{"Dividend Yield", f.DividendYield},
		{"52 Week High", f.FiftyTwoWeekHigh},
		{"52 Week Low", f.FiftyTwoWeekLow},
		{"Revenue", f.Revenue},
		{"Profit Margin", f.ProfitMargin},
		{"Return on Equity", f.ReturnOnEquity},
		{"Analyst Target Price", f.TargetMeanPrice},
		{"Analyst Rating", f.RecommendationKey},
	}
	for _, field := range fields {
		if field.value == "" {
			continue
		}
		fmt.Fprintf(&b, "**%s**: %s\n", field.label, field.value)
	}
	return b.String()
}

// FormatNews renders news items as a bulleted list with sources.
func FormatNews(ticker string, items []NewsItem) string {
	if len(items) == 0 {
		return fmt.Sprintf("No news found for %s.", ticker)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Latest news for %s:\n", ticker)
	for _, item := range items {
		fmt.Fprintf(&b, "- **%s** (%s, %s)\n  %s\n",
			item.Title, item.Publisher, item.Published.Format("2006-01-02"), item.Link)
	}
	return b.String()
}
