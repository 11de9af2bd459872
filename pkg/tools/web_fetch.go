package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// WebFetchTool fetches a web page and returns its readable text. Use after
// web_search to read the content behind a result URL.
type WebFetchTool struct {
	httpClient   *http.Client
	maxBodyBytes int64
}

// NewWebFetchTool creates a web_fetch tool.
func NewWebFetchTool() *WebFetchTool {
	return &WebFetchTool{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(_ *http.Request, via []*http.Request) error {
				if len(via) >= 5 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		maxBodyBytes: 100 * 1024,
	}
}

// Name returns the tool name.
func (t *WebFetchTool) Name() string {
	return ToolWebFetch
}

// Definition returns the model-facing definition.
func (t *WebFetchTool) Definition() ToolDefinition {
	return ToolDefinition{
		Name: ToolWebFetch,
		Description: `Fetch and read the content of a web page. The tool strips HTML and returns the page title and main text. Works best for documentation and articles; responses are capped at 100KB.`,
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"url": {
					Type:        "string",
					Description: "Full URL to fetch (e.g., 'https://go.dev/doc/go1.24')",
				},
			},
			Required: []string{"url"},
		},
		Idempotent: true,
	}
}

// Exec implements Tool.
func (t *WebFetchTool) Exec(ctx context.Context, args map[string]any) (*ExecResult, error) {
	urlStr, err := stringArg(args, "url")
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(urlStr, "http://") && !strings.HasPrefix(urlStr, "https://") {
		return errorResult("URL must start with http:// or https://")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, http.NoBody)
	if err != nil {
		return errorResult("failed to create request: " + err.Error())
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; Lumina/1.0; AI Task Agent)")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,text/plain;q=0.8")

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return errorResult("fetch request failed: " + err.Error())
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return errorResult(fmt.Sprintf("HTTP error: %d %s", resp.StatusCode, resp.Status))
	}
	if contentType := resp.Header.Get("Content-Type"); !isTextContent(contentType) {
		return errorResult(fmt.Sprintf("unsupported content type: %s", contentType))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, t.maxBodyBytes))
	if err != nil {
		return errorResult("failed to read response: " + err.Error())
	}

	content := string(body)
	title := extractTitle(content)
	text := extractText(content)

	const maxOutputChars = 50000
	truncated := false
	if len(text) > maxOutputChars {
		text = text[:maxOutputChars]
		truncated = true
	}

	return jsonResult(map[string]any{
		"url":       urlStr,
		"title":     title,
		"content":   text,
		"truncated": truncated,
	})
}

func isTextContent(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.Contains(ct, "text/html") ||
		strings.Contains(ct, "text/plain") ||
		strings.Contains(ct, "application/xhtml") ||
		strings.Contains(ct, "application/xml") ||
		strings.Contains(ct, "text/xml")
}

var (
	titleRegex   = regexp.MustCompile(`(?i)<title[^>]*>([^<]+)</title>`)
	scriptRegex  = regexp.MustCompile(`(?is)<script[^>]*>.*?</script>`)
	styleRegex   = regexp.MustCompile(`(?is)<style[^>]*>.*?</style>`)
	commentRegex = regexp.MustCompile(`(?s)<!--.*?-->`)
	blockRegex   = regexp.MustCompile(`(?i)</(p|div|h[1-6]|li|tr|br|hr)[^>]*>`)
	brRegex      = regexp.MustCompile(`(?i)<br[^>]*>`)
	tagRegex     = regexp.MustCompile(`<[^>]+>`)
	spaceRegex   = regexp.MustCompile(`[ \t]+`)
	newlineRegex = regexp.MustCompile(`\n{3,}`)
)

func extractTitle(html string) string {
	matches := titleRegex.FindStringSubmatch(html)
	if len(matches) > 1 {
		return strings.TrimSpace(matches[1])
	}
	return ""
}

func extractText(html string) string {
	html = scriptRegex.ReplaceAllString(html, "")
	html = styleRegex.ReplaceAllString(html, "")
	html = commentRegex.ReplaceAllString(html, "")
	html = blockRegex.ReplaceAllString(html, "\n")
	html = brRegex.ReplaceAllString(html, "\n")
	text := tagRegex.ReplaceAllString(html, "")

	replacements := [][2]string{
		{"&nbsp;", " "}, {"&amp;", "&"}, {"&lt;", "<"}, {"&gt;", ">"},
		{"&quot;", `"`}, {"&#39;", "'"}, {"&apos;", "'"},
	}
	for _, r := range replacements {
		text = strings.ReplaceAll(text, r[0], r[1])
	}

	text = spaceRegex.ReplaceAllString(text, " ")
	text = newlineRegex.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
