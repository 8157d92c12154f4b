package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"
)

// Filters narrows a wine search. Zero values are omitted from the request.
type Filters struct {
	WineColors     []string `json:"wine_colors,omitempty"`
	WineTypes      []string `json:"wine_types,omitempty"`
	PriceMin       *float64 `json:"price_min,omitempty"`
	PriceMax       *float64 `json:"price_max,omitempty"`
	VintageYearMin *int     `json:"vintage_year_min,omitempty"`
	VintageYearMax *int     `json:"vintage_year_max,omitempty"`
	UserRating     *int     `json:"user_rating,omitempty"`
	Grapes         []string `json:"grapes,omitempty"`
	Countries      []string `json:"countries,omitempty"`
	Regions        []string `json:"regions,omitempty"`
	Foods          []string `json:"foods,omitempty"`
	Flavors        []string `json:"flavors,omitempty"`
	IsNatural      *bool    `json:"is_natural,omitempty"`
}

// Result is one search hit. The reporter's table uses these fields verbatim.
type Result struct {
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	VintageYear int     `json:"vintage_year"`
	Region      string  `json:"region"`
	Country     string  `json:"country,omitempty"`
	UserRating  float64 `json:"user_rating"`
	Price       float64 `json:"price"`
}

// Searcher is the search collaborator used by the researcher.
type Searcher interface {
	Search(ctx context.Context, query string, filters Filters) ([]Result, error)
}

// WineSearchClient calls the vintages search HTTP API.
type WineSearchClient struct {
	BaseURL string
	Client  *http.Client
}

func NewWineSearchClient(baseURL string, timeout time.Duration) *WineSearchClient {
	return &WineSearchClient{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: timeout},
	}
}

type searchRequest struct {
	Query   string  `json:"query"`
	Filters Filters `json:"filters"`
	SortBy  string  `json:"sort_by"`
}

type searchItem struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	VintageYear    *int     `json:"vintage_year"`
	Region         string   `json:"region"`
	Country        string   `json:"country"`
	UserRating     *float64 `json:"user_rating"`
	Price          *float64 `json:"price"`
	ShoppingPrices []struct {
		PriceAmount *float64 `json:"price_amount"`
	} `json:"shopping_prices"`
}

func (c *WineSearchClient) Search(ctx context.Context, query string, filters Filters) ([]Result, error) {
	body, err := json.Marshal(searchRequest{Query: query, Filters: filters, SortBy: "recommended"})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/api/v2/vintages/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("wine search failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("wine search failed: status code %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var payload struct {
		Items []searchItem `json:"items"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decoding wine search response: %w", err)
	}

	results := make([]Result, 0, len(payload.Items))
	for _, it := range payload.Items {
		r := Result{
			Title:       it.Title,
			Description: it.Description,
			Region:      it.Region,
			Country:     it.Country,
		}
		if it.VintageYear != nil {
			r.VintageYear = *it.VintageYear
		}
		if it.UserRating != nil {
			r.UserRating = *it.UserRating
		}
		switch {
		case it.Price != nil:
			r.Price = *it.Price
		case len(it.ShoppingPrices) > 0 && it.ShoppingPrices[0].PriceAmount != nil:
			r.Price = *it.ShoppingPrices[0].PriceAmount
		}
		results = append(results, r)
	}
	return results, nil
}

// SortKey orders search results.
type SortKey string

const (
	SortRecommended SortKey = "recommended"
	SortPrice       SortKey = "price"
	SortPriceDesc   SortKey = "price-desc"
	SortRating      SortKey = "rating"
	SortRatingDesc  SortKey = "rating-desc"
	SortTitle       SortKey = "title"
	SortTitleDesc   SortKey = "title-desc"
)

// SortResults sorts results in place. Recommended keeps the API order.
func SortResults(results []Result, by SortKey) error {
	var less func(a, b Result) bool
	switch by {
	case SortRecommended, "":
		return nil
	case SortPrice:
		less = func(a, b Result) bool { return a.Price < b.Price }
	case SortPriceDesc:
		less = func(a, b Result) bool { return a.Price > b.Price }
	case SortRating:
		less = func(a, b Result) bool { return a.UserRating < b.UserRating }
	case SortRatingDesc:
		less = func(a, b Result) bool { return a.UserRating > b.UserRating }
	case SortTitle:
		less = func(a, b Result) bool { return strings.ToLower(a.Title) < strings.ToLower(b.Title) }
	case SortTitleDesc:
		less = func(a, b Result) bool { return strings.ToLower(a.Title) > strings.ToLower(b.Title) }
	default:
		return fmt.Errorf("unknown sort key %q", by)
	}
	sort.SliceStable(results, func(i, j int) bool { return less(results[i], results[j]) })
	return nil
}

// WineSearchTool exposes a Searcher to the researcher's reasoning loop.
type WineSearchTool struct {
	Searcher Searcher
	Top      int
}

func NewWineSearchTool(s Searcher) *WineSearchTool {
	return &WineSearchTool{Searcher: s, Top: 10}
}

func (w *WineSearchTool) Name() string {
	return "wine_search"
}

func (w *WineSearchTool) Description() string {
	return "Search the wine catalogue by free-text query and structured filters. Returns title, price, rating, vintage and region per wine."
}

func (w *WineSearchTool) Parameters() map[string]any {
	list := map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{
				"type":        "string",
				"description": "Search text, e.g. 'Full-bodied wine with steak'",
			},
			"filters": map[string]any{
				"type": "object",
				"properties": map[string]any{
					"wine_colors": list,
					"wine_types":  list,
					"price_min":   map[string]any{"type": "number"},
					"price_max":   map[string]any{"type": "number"},
					"grapes":      list,
					"countries":   list,
					"regions":     list,
					"foods":       list,
					"flavors":     list,
				},
			},
			"sort_by": map[string]any{
				"type": "string",
				"enum": []string{"recommended", "price", "price-desc", "rating", "rating-desc", "title", "title-desc"},
			},
		},
		"required": []string{"query"},
	}
}

func (w *WineSearchTool) Execute(ctx context.Context, input string) (string, error) {
	var args struct {
		Query   string  `json:"query"`
		Filters Filters `json:"filters"`
		SortBy  SortKey `json:"sort_by"`
	}
	if err := json.Unmarshal([]byte(input), &args); err != nil {
		return "", fmt.Errorf("invalid input: %v", err)
	}

	results, err := w.Searcher.Search(ctx, args.Query, args.Filters)
	if err != nil {
		return "", err
	}
	if err := SortResults(results, args.SortBy); err != nil {
		return "", err
	}
	if w.Top > 0 && len(results) > w.Top {
		results = results[:w.Top]
	}
	if len(results) == 0 {
		return "No wines matched the query.", nil
	}

	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
