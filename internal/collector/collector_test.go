package collector_test

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/qepting91/wb-harvester/internal/collector"
	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/qepting91/wb-harvester/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newCollector(srv *httptest.Server) *collector.HTTPCollector {
	return collector.NewHTTPCollector(collector.Options{
		CatalogURL:  srv.URL + "/menu.json",
		ListingURL:  srv.URL,
		KeywordsURL: srv.URL + "/keywords",
		UserAgent:   "test-agent",
		Timeout:     5 * time.Second,
		Retry:       retry.Config{MaxAttempts: 2, Backoff: time.Millisecond},
	})
}

func strPtr(s string) *string { return &s }

func TestParseCatalog_ObjectRoot(t *testing.T) {
	payload := `{"name":"Root","url":"/catalog","childs":[
		{"name":"Shoes","url":"/catalog/shoes","shard":"shoes-shard","query":"q=1","childs":[
			{"name":"Boots","url":"/catalog/shoes/boots","shard":"boots","query":"q=2"}
		]},
		{"name":"Hats","url":"/catalog/hats"}
	]}`

	tree, err := collector.ParseCatalog([]byte(payload))
	require.NoError(t, err)

	require.Len(t, tree.Nodes, 4)
	assert.Equal(t, []int{0}, tree.Roots)
	assert.Equal(t, "Root", tree.Nodes[0].Name)
	assert.Equal(t, []int{1, 3}, tree.Nodes[0].Children)
	assert.Equal(t, "Shoes", tree.Nodes[1].Name)
	assert.Equal(t, "shoes-shard", tree.Nodes[1].Shard)
	assert.Equal(t, []int{2}, tree.Nodes[1].Children)
	assert.Equal(t, "/catalog/shoes/boots", tree.Nodes[2].Path)
	assert.Equal(t, "Hats", tree.Nodes[3].Name)
	assert.Empty(t, tree.Nodes[3].Shard)
}

func TestParseCatalog_ArrayRoot(t *testing.T) {
	tree, err := collector.ParseCatalog([]byte(`[{"name":"A","url":"/a"},{"name":"B","url":"/b","seo":"b seo"}]`))
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1}, tree.Roots)
	assert.Equal(t, "b seo", tree.Nodes[1].SEO)
}

func TestParseCatalog_Malformed(t *testing.T) {
	for _, payload := range []string{"", "[1,2", `{"name":`, `"text"`} {
		_, err := collector.ParseCatalog([]byte(payload))
		var formatErr *domain.FormatError
		assert.ErrorAs(t, err, &formatErr, "payload %q", payload)
	}
}

func TestBuildTree_DeepCatalog(t *testing.T) {
	root := collector.CatalogNode{Name: "level-0"}
	cur := &root
	for i := 1; i < 5000; i++ {
		cur.Childs = []collector.CatalogNode{{Name: "level"}}
		cur = &cur.Childs[0]
	}

	tree := collector.BuildTree([]collector.CatalogNode{root})
	assert.Len(t, tree.Nodes, 5000)
	assert.Equal(t, []int{4999}, tree.Nodes[4998].Children)
}

func TestListingURL(t *testing.T) {
	c := domain.CategoryDescriptor{Name: "Shoes", Shard: "shoes-shard", Query: "cat=1"}

	assert.Equal(t,
		"https://catalog.example/catalog/shoes-shard/catalog?appType=1&curr=rub&dest=-1257786&locale=ru&page=3&sort=popular&spp=0&cat=1",
		collector.ListingURL("https://catalog.example/", c, 3))

	c.Query = ""
	assert.Equal(t,
		"https://catalog.example/catalog/shoes-shard/catalog?appType=1&curr=rub&dest=-1257786&locale=ru&page=1&sort=popular&spp=0",
		collector.ListingURL("https://catalog.example", c, 1))
}

func TestExtractItemNames_SkipsMissingNames(t *testing.T) {
	names := collector.ExtractItemNames([]collector.Product{
		{Name: strPtr("A")},
		{},
		{Name: strPtr("  ")},
		{Name: strPtr("B")},
	})
	assert.Equal(t, []string{"A", "B"}, names)
}

func TestFetchPage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/catalog/shoes-shard/catalog", r.URL.Path)
		assert.Equal(t, "2", r.URL.Query().Get("page"))
		assert.Equal(t, "popular", r.URL.Query().Get("sort"))
		assert.Equal(t, "1", r.URL.Query().Get("q"))
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte(`{"data":{"products":[{"id":1,"name":"A"},{"id":2},{"id":3,"name":"B"}]}}`))
	}))
	defer srv.Close()

	page, err := newCollector(srv).FetchPage(context.Background(),
		domain.CategoryDescriptor{Name: "Shoes", Shard: "shoes-shard", Query: "q=1"}, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, page.Number)
	assert.Equal(t, []string{"A", "B"}, page.Names)
}

func TestFetchPage_StatusMapping(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		check  func(t *testing.T, err error)
	}{
		{
			name:   "429 is rate limited",
			status: http.StatusTooManyRequests,
			check: func(t *testing.T, err error) {
				assert.ErrorIs(t, err, domain.ErrRateLimited)
			},
		},
		{
			name:   "500 is a network error",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var netErr *domain.NetworkError
				require.ErrorAs(t, err, &netErr)
				assert.Equal(t, 500, netErr.Status)
			},
		},
		{
			name:   "bad json is a format error",
			status: http.StatusOK,
			body:   `{"data":`,
			check: func(t *testing.T, err error) {
				var formatErr *domain.FormatError
				assert.ErrorAs(t, err, &formatErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			_, err := newCollector(srv).FetchPage(context.Background(), domain.CategoryDescriptor{Shard: "s"}, 1)
			require.Error(t, err)
			tt.check(t, err)
			assert.Equal(t, int32(1), calls.Load(), "listing pages are never retried")
		})
	}
}

func TestFetchPage_NoShard(t *testing.T) {
	c := collector.NewHTTPCollector(collector.Options{ListingURL: "http://unused"})
	_, err := c.FetchPage(context.Background(), domain.CategoryDescriptor{Name: "Root"}, 1)
	assert.ErrorIs(t, err, collector.ErrNoShard)
}

func TestKeywordStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/keywords", r.URL.Path)

		var req struct {
			Keywords []string `json:"keywords"`
			An       *bool    `json:"an"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, []string{"A", "B"}, req.Keywords)
		if assert.NotNil(t, req.An) {
			assert.False(t, *req.An)
		}

		_, _ = w.Write([]byte(`{"data":{"keywords":{
			"A":{"cluster":{"product_count":5,"freq_syn":{"monthly":10}}},
			"B":null
		}}}`))
	}))
	defer srv.Close()

	stats, err := newCollector(srv).KeywordStats(context.Background(), []string{"A", "B"})
	require.NoError(t, err)
	require.Contains(t, stats, "B")
	assert.Nil(t, stats["B"])
	require.NotNil(t, stats["A"].Cluster)
	assert.Equal(t, 5, stats["A"].Cluster.ProductCount.Int())
	assert.Equal(t, 10, stats["A"].Cluster.FreqSyn.Monthly.Int())
}

func TestKeywordStats_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"data":{"keywords":{}}}`))
	}))
	defer srv.Close()

	stats, err := newCollector(srv).KeywordStats(context.Background(), []string{"A"})
	require.NoError(t, err)
	assert.Empty(t, stats)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/menu.json", r.URL.Path)
		_, _ = w.Write([]byte(`[{"name":"Root","url":"/r","childs":[{"name":"Leaf","url":"/r/l","shard":"x"}]}]`))
	}))
	defer srv.Close()

	tree, err := newCollector(srv).FetchCatalog(context.Background())
	require.NoError(t, err)
	assert.Len(t, tree.Nodes, 2)
}

func TestCount_Unmarshal(t *testing.T) {
	var v struct {
		A domain.Count `json:"a"`
		B domain.Count `json:"b"`
		C domain.Count `json:"c"`
		D domain.Count `json:"d"`
		E domain.Count `json:"e"`
		F domain.Count `json:"f"`
		G domain.Count `json:"g"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"a":3,"b":null,"c":4.0,"d":"7","e":-2,"f":1e300,"g":"-5"}`), &v))
	assert.Equal(t, 3, v.A.Int())
	assert.Equal(t, 0, v.B.Int())
	assert.Equal(t, 4, v.C.Int())
	assert.Equal(t, 7, v.D.Int())
	assert.Equal(t, 0, v.E.Int(), "negative counts clamp to zero")
	assert.Equal(t, math.MaxInt, v.F.Int(), "huge counts saturate")
	assert.Equal(t, 0, v.G.Int())
}

func TestNewCollector_Modes(t *testing.T) {
	c, err := collector.NewCollector("mock", collector.Options{})
	require.NoError(t, err)
	assert.IsType(t, &collector.MockCollector{}, c)

	_, err = collector.NewCollector("live", collector.Options{})
	assert.Error(t, err)

	_, err = collector.NewCollector("bogus", collector.Options{})
	assert.Error(t, err)
}
