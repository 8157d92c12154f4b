package tools

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_Subset(t *testing.T) {
	r := NewRegistry()
	r.Register(NewPythonTool(&stubRunner{}))
	r.Register(NewWineSearchTool(&stubSearcher{}))

	sub := r.Subset("wine_search", "missing")
	require.Len(t, sub.Tools, 1)
	assert.NotNil(t, sub.Get("wine_search"))
	assert.Nil(t, sub.Get("python_repl"))

	names := []string{}
	for _, tl := range r.List() {
		names = append(names, tl.Name())
	}
	assert.Equal(t, []string{"python_repl", "wine_search"}, names)
}

func TestWineSearchClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/vintages/search", r.URL.Path)

		var req searchRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "Napa Cabernet", req.Query)
		assert.Equal(t, []string{"Red"}, req.Filters.WineColors)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"items":[
			{"title":"Stag Cab","vintage_year":2019,"region":"Napa Valley","country":"US","user_rating":4.4,"price":89.5},
			{"title":"Cheap Cab","region":"Napa Valley","shopping_prices":[{"price_amount":19.0}]}
		]}`))
	}))
	defer srv.Close()

	c := NewWineSearchClient(srv.URL+"/", 5*time.Second)
	results, err := c.Search(context.Background(), "Napa Cabernet", Filters{WineColors: []string{"Red"}})
	require.NoError(t, err)
	require.Len(t, results, 2)

	assert.Equal(t, Result{Title: "Stag Cab", VintageYear: 2019, Region: "Napa Valley", Country: "US", UserRating: 4.4, Price: 89.5}, results[0])
	assert.Equal(t, 19.0, results[1].Price)
	assert.Equal(t, 0, results[1].VintageYear)
}

func TestWineSearchClient_Non2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewWineSearchClient(srv.URL, time.Second).Search(context.Background(), "x", Filters{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestSortResults(t *testing.T) {
	rs := []Result{{Title: "b", Price: 30, UserRating: 4}, {Title: "A", Price: 10, UserRating: 5}, {Title: "c", Price: 20, UserRating: 3}}

	require.NoError(t, SortResults(rs, SortPrice))
	assert.Equal(t, "A", rs[0].Title)

	require.NoError(t, SortResults(rs, SortRatingDesc))
	assert.Equal(t, 5.0, rs[0].UserRating)

	require.NoError(t, SortResults(rs, SortTitleDesc))
	assert.Equal(t, "c", rs[0].Title)

	assert.Error(t, SortResults(rs, "vintage"))
}

type stubSearcher struct {
	results []Result
	err     error
}

func (s *stubSearcher) Search(ctx context.Context, query string, filters Filters) ([]Result, error) {
	return s.results, s.err
}

func TestWineSearchTool_Execute(t *testing.T) {
	tool := NewWineSearchTool(&stubSearcher{results: []Result{{Title: "x", Price: 20}, {Title: "y", Price: 10}}})
	tool.Top = 1

	out, err := tool.Execute(context.Background(), `{"query":"red","sort_by":"price"}`)
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "y"`)
	assert.NotContains(t, out, `"title": "x"`)

	_, err = tool.Execute(context.Background(), `not json`)
	assert.Error(t, err)

	empty := NewWineSearchTool(&stubSearcher{})
	out, err = empty.Execute(context.Background(), `{"query":"none"}`)
	require.NoError(t, err)
	assert.Equal(t, "No wines matched the query.", out)

	failing := NewWineSearchTool(&stubSearcher{err: errors.New("boom")})
	_, err = failing.Execute(context.Background(), `{"query":"x"}`)
	assert.EqualError(t, err, "boom")
}

type stubRunner struct {
	out  Output
	code string
}

func (s *stubRunner) Execute(ctx context.Context, code string) (Output, error) {
	s.code = code
	return s.out, nil
}

func TestPythonTool_Execute(t *testing.T) {
	r := &stubRunner{out: Output{Stdout: "10"}}
	tool := NewPythonTool(r)

	out, err := tool.Execute(context.Background(), `{"code":"print(5*2)"}`)
	require.NoError(t, err)
	assert.Equal(t, "10", out)
	assert.Equal(t, "print(5*2)", r.code)

	r.out = Output{Error: "NameError: x"}
	out, err = tool.Execute(context.Background(), `{"code":"print(x)"}`)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "Execution failed with error: NameError"))

	r.out = Output{}
	out, err = tool.Execute(context.Background(), `{"code":"x = 1"}`)
	require.NoError(t, err)
	assert.Equal(t, "(no output)", out)
}

func TestPythonRunner_EmptyCode(t *testing.T) {
	out, err := NewPythonRunner("", "", time.Second).Execute(context.Background(), "  ")
	require.NoError(t, err)
	assert.Equal(t, "empty code", out.Error)
}

func TestPageTool_RejectsNonHTTP(t *testing.T) {
	_, err := NewPageTool(time.Second).Execute(context.Background(), `{"url":"file:///etc/passwd"}`)
	assert.Error(t, err)
}

func TestWorkspaceTool(t *testing.T) {
	tool := NewWorkspaceTool(t.TempDir())
	ctx := context.Background()

	out, err := tool.Execute(ctx, `{"command":"write","filename":"data/prices.csv","content":"a,1\nb,2"}`)
	require.NoError(t, err)
	assert.Equal(t, "Successfully wrote to data/prices.csv", out)

	out, err = tool.Execute(ctx, `{"command":"read","filename":"data/prices.csv"}`)
	require.NoError(t, err)
	assert.Equal(t, "a,1\nb,2", out)

	out, err = tool.Execute(ctx, `{"command":"list","filename":"."}`)
	require.NoError(t, err)
	assert.Equal(t, "[dir] data\n", out)

	// Traversal is clamped to the sandbox root.
	_, err = tool.Execute(ctx, `{"command":"read","filename":"../../etc/passwd"}`)
	assert.Error(t, err)
	p, err := tool.resolve("../x")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(tool.Root, "x"), p)

	out, err = tool.Execute(ctx, `{"command":"delete","filename":"data"}`)
	require.NoError(t, err)
	assert.Contains(t, out, "Invalid command")
}
