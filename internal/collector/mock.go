package collector

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/qepting91/wb-harvester/internal/domain"
)

// MockCollector implements domain.Collector but returns fake data
type MockCollector struct {
	// Pages is how many non-empty listing pages each category has.
	Pages int
	// PerPage is the number of products on each page.
	PerPage int
	// Latency simulates network delay.
	Latency time.Duration
}

func NewMockCollector() *MockCollector {
	return &MockCollector{Pages: 3, PerPage: 20, Latency: 200 * time.Millisecond}
}

func (mc *MockCollector) wait(ctx context.Context) error {
	if mc.Latency <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(mc.Latency):
		return nil
	}
}

func (mc *MockCollector) FetchCatalog(ctx context.Context) (*domain.CategoryTree, error) {
	if err := mc.wait(ctx); err != nil {
		return nil, err
	}

	roots := []CatalogNode{{
		Name: "Дом и дача",
		URL:  "/catalog/dom-i-dacha",
		SEO:  "товары для дома",
		Childs: []CatalogNode{{
			Name: "Ванная",
			URL:  "/catalog/dom-i-dacha/vannaya",
			SEO:  "ванная комната",
			Childs: []CatalogNode{
				{Name: "Аксессуары", URL: "/catalog/dom-i-dacha/vannaya/aksessuary", Shard: "bath_accessories", Query: "cat=8135", SEO: "аксессуары для ванной"},
				{Name: "Шторки", URL: "/catalog/dom-i-dacha/vannaya/shtorki", Shard: "bath_curtains", Query: "cat=8136", SEO: "шторка для ванной"},
			},
		}},
	}}
	return BuildTree(roots), nil
}

func (mc *MockCollector) FetchPage(ctx context.Context, category domain.CategoryDescriptor, page int) (domain.ListingPage, error) {
	if err := mc.wait(ctx); err != nil {
		return domain.ListingPage{}, err
	}
	if category.Shard == "" {
		return domain.ListingPage{}, fmt.Errorf("%s: %w", category.Name, ErrNoShard)
	}

	listing := domain.ListingPage{Number: page}
	if page > mc.Pages {
		return listing, nil
	}
	for i := 0; i < mc.PerPage; i++ {
		listing.Names = append(listing.Names, fmt.Sprintf("%s товар %d-%d", category.Name, page, i))
	}
	return listing, nil
}

// KeywordStats marks roughly two thirds of the keywords usable, with stable
// numbers derived from the keyword itself.
func (mc *MockCollector) KeywordStats(ctx context.Context, keywords []string) (map[string]*domain.KeywordStats, error) {
	if err := mc.wait(ctx); err != nil {
		return nil, err
	}

	out := make(map[string]*domain.KeywordStats, len(keywords))
	for _, k := range keywords {
		h := fnv.New32a()
		_, _ = h.Write([]byte(k))
		sum := int(h.Sum32() % 10000)
		if sum%3 == 0 {
			out[k] = nil
			continue
		}
		out[k] = &domain.KeywordStats{
			ProductCount: domain.Count(sum),
			Freq365:      domain.Count(sum * 12),
			Freq:         &domain.Frequencies{Monthly: domain.Count(sum / 2), Weekly: domain.Count(sum / 8)},
			Cluster: &domain.Cluster{
				ProductCount: domain.Count(sum),
				FreqSyn:      &domain.Frequencies{Monthly: domain.Count(sum / 2)},
			},
		}
	}
	return out, nil
}
