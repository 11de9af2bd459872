package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"
)

// SearchResult is a single result from any search provider.
type SearchResult struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	URL         string `json:"url"`
}

// SearchProvider abstracts the web search backend.
type SearchProvider interface {
	Name() string
	Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error)
}

// WebSearchTool searches the web. It selects Google Custom Search when
// credentials are present in the environment and otherwise falls back to
// DuckDuckGo's instant-answer API.
type WebSearchTool struct {
	provider   SearchProvider
	maxResults int
}

// NewWebSearchTool creates a web_search tool with automatic provider
// selection (GOOGLE_SEARCH_API_KEY and GOOGLE_SEARCH_CX enable Google).
func NewWebSearchTool() *WebSearchTool {
	return NewWebSearchToolWithProvider(selectProvider())
}

// NewWebSearchToolWithProvider creates a web_search tool with an explicit
// provider, mostly for tests.
func NewWebSearchToolWithProvider(provider SearchProvider) *WebSearchTool {
	return &WebSearchTool{provider: provider, maxResults: 5}
}

func selectProvider() SearchProvider {
	apiKey := os.Getenv("GOOGLE_SEARCH_API_KEY")
	cx := os.Getenv("GOOGLE_SEARCH_CX")
	if apiKey != "" && cx != "" {
		return NewGoogleSearchProvider(apiKey, cx)
	}
	return NewDuckDuckGoProvider()
}

// Name returns the tool name.
func (t *WebSearchTool) Name() string {
	return ToolWebSearch
}

// Definition returns the model-facing definition.
func (t *WebSearchTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name:        ToolWebSearch,
		Description: "Search the web for current information. Returns result titles, descriptions and URLs; use web_fetch to read a result page.",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"query": {
					Type:        "string",
					Description: "Search query string",
				},
			},
			Required: []string{"query"},
		},
		Idempotent: true,
	}
}

// Exec implements Tool.
func (t *WebSearchTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return nil, err
	}

	results, err := t.provider.Search(ctx, query, t.maxResults)
	if err != nil {
		return nil, fmt.Errorf("search via %s: %w", t.provider.Name(), err)
	}

	fields := map[string]any{
		"query":        query,
		"provider":     t.provider.Name(),
		"result_count": len(results),
		"results":      results,
	}
	if len(results) == 0 {
		fields["note"] = "No results found. Try a different search query."
	}
	return jsonResult(fields)
}

// GoogleSearchProvider uses the Google Custom Search API.
type GoogleSearchProvider struct {
	httpClient *http.Client
	apiKey     string
	cx         string
}

// NewGoogleSearchProvider creates a Google Custom Search provider.
func NewGoogleSearchProvider(apiKey, cx string) *GoogleSearchProvider {
	return &GoogleSearchProvider{
		apiKey:     apiKey,
		cx:         cx,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Name returns the provider name.
func (p *GoogleSearchProvider) Name() string {
	return "google"
}

type googleSearchResponse struct {
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

// Search implements SearchProvider.
func (p *GoogleSearchProvider) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	searchURL := fmt.Sprintf(
		"https://www.googleapis.com/customsearch/v1?key=%s&cx=%s&q=%s&num=%d",
		url.QueryEscape(p.apiKey), url.QueryEscape(p.cx), url.QueryEscape(query), maxResults,
	)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed googleSearchResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("google api error %d: %s", parsed.Error.Code, parsed.Error.Message)
	}

	results := make([]SearchResult, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		results = append(results, SearchResult{
			Title:       item.Title,
			Description: item.Snippet,
			URL:         item.Link,
		})
	}
	return results, nil
}

// DuckDuckGoProvider uses DuckDuckGo's Instant Answer API. It only returns
// encyclopedic answers, not full web results, but needs no credentials.
type DuckDuckGoProvider struct {
	httpClient *http.Client
}

// NewDuckDuckGoProvider creates a DuckDuckGo provider.
func NewDuckDuckGoProvider() *DuckDuckGoProvider {
	return &DuckDuckGoProvider{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// Name returns the provider name.
func (p *DuckDuckGoProvider) Name() string {
	return "duckduckgo"
}

type duckDuckGoResponse struct {
	AbstractText  string `json:"AbstractText"`
	AbstractURL   string `json:"AbstractURL"`
	Heading       string `json:"Heading"`
	Answer        string `json:"Answer"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

// Search implements SearchProvider.
func (p *DuckDuckGoProvider) Search(ctx context.Context, query string, maxResults int) ([]SearchResult, error) {
	searchURL := fmt.Sprintf("https://api.duckduckgo.com/?q=%s&format=json&no_html=1&skip_disambig=1",
		url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", "Lumina/1.0 (AI Task Agent)")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed duckDuckGoResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	var results []SearchResult
	if parsed.AbstractText != "" {
		results = append(results, SearchResult{
			Title:       parsed.Heading,
			Description: parsed.AbstractText,
			URL:         parsed.AbstractURL,
		})
	}
	if parsed.Answer != "" {
		results = append(results, SearchResult{
			Title:       "Instant Answer",
			Description: parsed.Answer,
		})
	}
	for _, topic := range parsed.RelatedTopics {
		if topic.Text != "" && len(results) < maxResults {
			results = append(results, SearchResult{
				Description: topic.Text,
				URL:         topic.FirstURL,
			})
		}
	}
	return results, nil
}
