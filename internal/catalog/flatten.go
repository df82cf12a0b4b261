package catalog

import "github.com/qepting91/wb-harvester/internal/domain"

// Walk visits every node in pre-order using an explicit stack. It stops
// early when visit returns false.
func Walk(tree *domain.CategoryTree, visit func(node *domain.CategoryNode) bool) {
	if tree == nil {
		return
	}

	stack := make([]int, 0, len(tree.Roots))
	for i := len(tree.Roots) - 1; i >= 0; i-- {
		stack = append(stack, tree.Roots[i])
	}

	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		node := &tree.Nodes[id]
		if !visit(node) {
			return
		}
		for i := len(node.Children) - 1; i >= 0; i-- {
			stack = append(stack, node.Children[i])
		}
	}
}

// Flatten returns node ids in pre-order.
func Flatten(tree *domain.CategoryTree) []int {
	var ids []int
	Walk(tree, func(node *domain.CategoryNode) bool {
		ids = append(ids, node.ID)
		return true
	})
	return ids
}

// Lookup builds the path -> node id table. The first node in pre-order wins
// when paths repeat; nodes without a path are skipped.
func Lookup(tree *domain.CategoryTree) map[string]int {
	byPath := make(map[string]int)
	Walk(tree, func(node *domain.CategoryNode) bool {
		if node.Path == "" {
			return true
		}
		if _, seen := byPath[node.Path]; !seen {
			byPath[node.Path] = node.ID
		}
		return true
	})
	return byPath
}

// SEOKeywords returns the non-empty SEO strings of every node in pre-order.
// Duplicates are kept.
func SEOKeywords(tree *domain.CategoryTree) []string {
	var out []string
	Walk(tree, func(node *domain.CategoryNode) bool {
		if node.SEO != "" {
			out = append(out, node.SEO)
		}
		return true
	})
	return out
}
