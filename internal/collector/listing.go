package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/qepting91/wb-harvester/internal/domain"
)

// ErrNoShard is returned for categories that cannot address a listing.
var ErrNoShard = errors.New("category has no listing shard")

// Product is the wire shape of a listing entry; only the name is used.
type Product struct {
	Name *string `json:"name"`
}

type listingResponse struct {
	Data struct {
		Products []Product `json:"products"`
	} `json:"data"`
}

// ListingURL builds the listing request for a category page. Sort order and
// region parameters are fixed.
func ListingURL(base string, category domain.CategoryDescriptor, page int) string {
	u := fmt.Sprintf(
		"%s/catalog/%s/catalog?appType=1&curr=rub&dest=-1257786&locale=ru&page=%d&sort=popular&spp=0",
		strings.TrimRight(base, "/"), category.Shard, page,
	)
	if q := strings.TrimLeft(category.Query, "&?"); q != "" {
		u += "&" + q
	}
	return u
}

// FetchPage fetches one listing page. Listing requests are not retried: a
// failure ends the run and the accumulated rows are flushed.
func (hc *HTTPCollector) FetchPage(ctx context.Context, category domain.CategoryDescriptor, page int) (domain.ListingPage, error) {
	if category.Shard == "" {
		return domain.ListingPage{}, fmt.Errorf("%s: %w", category.Name, ErrNoShard)
	}
	if err := hc.listingLimiter.Wait(ctx); err != nil {
		return domain.ListingPage{}, err
	}

	var resp listingResponse
	if err := hc.getJSON(ctx, ListingURL(hc.opts.ListingURL, category, page), &resp); err != nil {
		return domain.ListingPage{}, fmt.Errorf("page %d: %w", page, err)
	}

	return domain.ListingPage{Number: page, Names: ExtractItemNames(resp.Data.Products)}, nil
}

// ExtractItemNames returns product names in listing order, skipping entries
// without a name.
func ExtractItemNames(products []Product) []string {
	names := make([]string, 0, len(products))
	for _, p := range products {
		if p.Name == nil || strings.TrimSpace(*p.Name) == "" {
			continue
		}
		names = append(names, *p.Name)
	}
	return names
}
