package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/qepting91/wb-harvester/internal/domain"
	"github.com/qepting91/wb-harvester/internal/retry"
)

// CatalogNode is the wire shape of a catalog entry.
type CatalogNode struct {
	Name   string        `json:"name"`
	URL    string        `json:"url"`
	Shard  string        `json:"shard"`
	Query  string        `json:"query"`
	SEO    string        `json:"seo"`
	Childs []CatalogNode `json:"childs"`
}

// FetchCatalog downloads the full category tree.
func (hc *HTTPCollector) FetchCatalog(ctx context.Context) (*domain.CategoryTree, error) {
	var raw json.RawMessage
	err := retry.Do(ctx, hc.opts.Retry, func(ctx context.Context) error {
		return hc.getJSON(ctx, hc.opts.CatalogURL, &raw)
	})
	if err != nil {
		return nil, fmt.Errorf("fetch catalog: %w", err)
	}
	return ParseCatalog(raw)
}

// ParseCatalog decodes a catalog payload. The root may be a single node or
// an array of nodes.
func ParseCatalog(data []byte) (*domain.CategoryTree, error) {
	var nodes []CatalogNode

	trimmed := bytes.TrimSpace(data)
	switch {
	case len(trimmed) == 0:
		return nil, &domain.FormatError{Op: "parse catalog", Err: errors.New("empty payload")}
	case trimmed[0] == '{':
		var root CatalogNode
		if err := json.Unmarshal(trimmed, &root); err != nil {
			return nil, &domain.FormatError{Op: "parse catalog", Err: err}
		}
		nodes = []CatalogNode{root}
	default:
		if err := json.Unmarshal(trimmed, &nodes); err != nil {
			return nil, &domain.FormatError{Op: "parse catalog", Err: err}
		}
	}

	return BuildTree(nodes), nil
}

// BuildTree copies wire nodes into an arena in pre-order using an explicit
// stack, so arbitrarily deep catalogs never grow the call stack.
func BuildTree(roots []CatalogNode) *domain.CategoryTree {
	type frame struct {
		node   *CatalogNode
		parent int
	}

	tree := &domain.CategoryTree{}
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{node: &roots[i], parent: -1})
	}

	for len(stack) > 0 {
		top := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		id := tree.Add(domain.CategoryNode{
			Name:  top.node.Name,
			Shard: top.node.Shard,
			Path:  top.node.URL,
			Query: top.node.Query,
			SEO:   top.node.SEO,
		})
		if top.parent < 0 {
			tree.Roots = append(tree.Roots, id)
		} else {
			parent := &tree.Nodes[top.parent]
			parent.Children = append(parent.Children, id)
		}

		children := top.node.Childs
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, frame{node: &children[i], parent: id})
		}
	}

	return tree
}
