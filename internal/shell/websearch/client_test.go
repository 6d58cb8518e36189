package websearch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<!DOCTYPE html>
<html><body>
<div class="result results_links results_links_deep web-result result--ad">
  <a class="result__a" href="https://duckduckgo.com/y.js?ad_provider=x">Sponsored Thing</a>
  <a class="result__snippet">Buy now.</a>
</div>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="//duckduckgo.com/l/?uddg=https%3A%2F%2Fwww.federalreserve.gov%2Fnewsevents.htm&amp;rut=abc123">Federal Reserve Board - News &amp; Events</a>
  <a class="result__snippet">Latest  announcements from the
  Federal Reserve.</a>
</div>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="https://www.reuters.com/markets/rates-bonds/">Rates &amp; Bonds - Reuters</a>
  <a class="result__snippet">Bond market coverage.</a>
</div>
<div class="result results_links results_links_deep web-result">
  <a class="result__a" href="https://example.com/three">Third Result</a>
</div>
</body></html>`

// =============================================================================
// Search Tests
// =============================================================================

func TestClient_Search_ParsesResults(t *testing.T) {
	var gotPath string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		assert.NotContains(t, r.Header.Get("User-Agent"), "Go-http-client")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(resultsPage))
	}))
	defer server.Close()

	client := newTestSearchClient(server.URL)
	results, err := client.Search(context.Background(), "fed rates", 5)
	require.NoError(t, err)

	assert.Contains(t, gotPath, "q=fed+rates")
	require.Len(t, results, 3) // ad skipped

	assert.Equal(t, "Federal Reserve Board - News & Events", results[0].Title)
	assert.Equal(t, "https://www.federalreserve.gov/newsevents.htm", results[0].URL)
	assert.Equal(t, "Latest announcements from the Federal Reserve.", results[0].Snippet)
	assert.Equal(t, "https://www.reuters.com/markets/rates-bonds/", results[1].URL)
}

func TestClient_Search_HonorsMax(t *testing.T) {
	server := newSearchServer(resultsPage)
	defer server.Close()

	client := newTestSearchClient(server.URL)
	results, err := client.Search(context.Background(), "fed rates", 1)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestClient_Search_UpstreamError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := newTestSearchClient(server.URL)
	_, err := client.Search(context.Background(), "fed rates", 5)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "403")
}

// =============================================================================
// Redirect Unwrap Tests
// =============================================================================

func TestUnwrapRedirect(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"uddg redirect", "//duckduckgo.com/l/?uddg=https%3A%2F%2Fexample.com%2Fpage%3Fa%3D1&rut=x", "https://example.com/page?a=1"},
		{"direct link", "https://example.com/page", "https://example.com/page"},
		{"protocol relative", "//example.com/page", "https://example.com/page"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, unwrapRedirect(tc.in))
		})
	}
}

// =============================================================================
// Toolkit Tests
// =============================================================================

func TestClient_Toolkit_Search(t *testing.T) {
	server := newSearchServer(resultsPage)
	defer server.Close()

	kit := newTestSearchClient(server.URL).Toolkit()
	require.Equal(t, 1, kit.Len())

	tool := kit.Tools()[0]
	assert.Equal(t, "duckduckgo_search", tool.Name)
	assert.Equal(t, []string{"query"}, tool.Parameters.Required)

	out, err := tool.Invoke(context.Background(), map[string]any{"query": "fed rates"})
	require.NoError(t, err)
	assert.Contains(t, out, `Search results for "fed rates":`)
	assert.Contains(t, out, "1. **Federal Reserve Board - News & Events**")
	assert.Contains(t, out, "Source: https://www.federalreserve.gov/newsevents.htm")
}

func TestClient_Toolkit_Search_MissingQuery(t *testing.T) {
	server := newSearchServer(resultsPage)
	defer server.Close()

	tool := newTestSearchClient(server.URL).Toolkit().Tools()[0]
	_, err := tool.Invoke(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestFormatResults_Empty(t *testing.T) {
	out := FormatResults("obscure query", nil)
	assert.Equal(t, `No results found for "obscure query".`, out)
}

// =============================================================================
// Test Helpers
// =============================================================================

func newSearchServer(page string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
}

func newTestSearchClient(baseURL string) *Client {
	cfg := DefaultConfig()
	cfg.BaseURL = baseURL
	return NewClient(cfg)
}
