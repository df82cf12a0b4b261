// Package catalog resolves category URLs against a cached copy of the
// upstream catalog tree.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/qepting91/wb-harvester/internal/domain"
	"golang.org/x/sync/singleflight"
)

const fetchKey = "catalog"

// FetchObserver is notified after every upstream catalog download.
type FetchObserver interface {
	CatalogFetched(err error)
}

// Index owns the catalog cache. The tree is fetched at most once until
// Invalidate or Refresh is called; concurrent first callers share a single
// download.
type Index struct {
	source   domain.CatalogSource
	log      *slog.Logger
	observer FetchObserver
	group    singleflight.Group

	mu     sync.RWMutex
	tree   *domain.CategoryTree
	byPath map[string]int
	gen    uint64
}

// NewIndex creates an empty index. observer may be nil.
func NewIndex(source domain.CatalogSource, observer FetchObserver, log *slog.Logger) *Index {
	if log == nil {
		log = slog.Default()
	}
	return &Index{source: source, observer: observer, log: log}
}

// Tree returns the cached catalog, fetching it on first use.
func (i *Index) Tree(ctx context.Context) (*domain.CategoryTree, error) {
	i.mu.RLock()
	tree, gen := i.tree, i.gen
	i.mu.RUnlock()
	if tree != nil {
		return tree, nil
	}
	return i.load(ctx, gen)
}

// Refresh discards the cached catalog and downloads a fresh copy.
func (i *Index) Refresh(ctx context.Context) (*domain.CategoryTree, error) {
	return i.load(ctx, i.invalidate())
}

// Invalidate drops the cached catalog. The next Tree call downloads again.
func (i *Index) Invalidate() {
	i.invalidate()
}

func (i *Index) invalidate() uint64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.tree = nil
	i.byPath = nil
	i.gen++
	return i.gen
}

func (i *Index) load(ctx context.Context, gen uint64) (*domain.CategoryTree, error) {
	v, err, _ := i.group.Do(fmt.Sprintf("%s-%d", fetchKey, gen), func() (any, error) {
		i.mu.RLock()
		cached := i.tree
		i.mu.RUnlock()
		if cached != nil {
			return cached, nil
		}

		tree, err := i.source.FetchCatalog(ctx)
		if i.observer != nil {
			i.observer.CatalogFetched(err)
		}
		if err != nil {
			return nil, err
		}

		byPath := Lookup(tree)

		i.mu.Lock()
		if i.gen == gen {
			i.tree = tree
			i.byPath = byPath
		}
		i.mu.Unlock()

		i.log.Info("Catalog loaded", "nodes", len(tree.Nodes), "paths", len(byPath))
		return tree, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.CategoryTree), nil
}

// Resolve maps a category URL to its descriptor. The scheme and host are
// stripped and the remainder must equal a catalog path exactly.
func (i *Index) Resolve(ctx context.Context, rawURL string) (domain.CategoryDescriptor, error) {
	tree, err := i.Tree(ctx)
	if err != nil {
		return domain.CategoryDescriptor{}, err
	}

	i.mu.RLock()
	byPath := i.byPath
	i.mu.RUnlock()
	if byPath == nil {
		byPath = Lookup(tree)
	}

	return ResolveIn(tree, byPath, rawURL)
}

// ResolveIn resolves rawURL against an already built lookup table.
func ResolveIn(tree *domain.CategoryTree, byPath map[string]int, rawURL string) (domain.CategoryDescriptor, error) {
	path := RelativePath(rawURL)
	id, ok := byPath[path]
	if !ok {
		return domain.CategoryDescriptor{}, fmt.Errorf("%q: %w", path, domain.ErrNotFound)
	}

	node := tree.Nodes[id]
	return domain.CategoryDescriptor{
		Name:  node.Name,
		Shard: node.Shard,
		Query: node.Query,
		Path:  node.Path,
	}, nil
}

// RelativePath strips the scheme and host from rawURL. Inputs without a
// scheme are returned unchanged.
func RelativePath(rawURL string) string {
	rawURL = strings.TrimSpace(rawURL)
	idx := strings.Index(rawURL, "://")
	if idx < 0 {
		return rawURL
	}
	rest := rawURL[idx+3:]
	slash := strings.IndexAny(rest, "/?#")
	if slash < 0 {
		return ""
	}
	return rest[slash:]
}
