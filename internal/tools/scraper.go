package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-shiori/go-readability"
	"github.com/microcosm-cc/bluemonday"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// PageTool fetches a page (a shop or producer page found by a search) and
// returns its readable text.
type PageTool struct {
	UserAgent string
	MaxChars  int
	client    *http.Client
	policy    *bluemonday.Policy
}

func NewPageTool(timeout time.Duration) *PageTool {
	return &PageTool{
		UserAgent: defaultUserAgent,
		MaxChars:  20000,
		client:    &http.Client{Timeout: timeout},
		policy:    bluemonday.StrictPolicy(),
	}
}

func (s *PageTool) Name() string {
	return "fetch_page"
}

func (s *PageTool) Description() string {
	return "Fetch a webpage URL and extract the main content as clean, sanitized text."
}

func (s *PageTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url": map[string]any{
				"type":        "string",
				"description": "The full URL of the page to read",
			},
		},
		"required": []string{"url"},
	}
}

func (s *PageTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}
	parsedURL, err := url.Parse(args.URL)
	if err != nil || (parsedURL.Scheme != "http" && parsedURL.Scheme != "https") {
		return "", fmt.Errorf("invalid url %q", args.URL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsedURL.String(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %v", err)
	}
	req.Header.Set("User-Agent", s.UserAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch URL: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to fetch URL: status code %d", resp.StatusCode)
	}

	article, err := readability.FromReader(resp.Body, parsedURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse article: %v", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "TITLE: %s\n", s.policy.Sanitize(article.Title))
	if article.Excerpt != "" {
		fmt.Fprintf(&b, "EXCERPT: %s\n", s.policy.Sanitize(article.Excerpt))
	}
	b.WriteString("\n-- CONTENT --\n")

	content := s.policy.Sanitize(article.TextContent)
	if s.MaxChars > 0 && len(content) > s.MaxChars {
		content = content[:s.MaxChars] + "\n... (content truncated) ..."
	}
	b.WriteString(content)
	return b.String(), nil
}
