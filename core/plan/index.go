package plan

import "sort"

// Index is an in-memory view of one user's node hierarchy.
type Index struct {
	byID     map[string]Node
	children map[string][]string
}

func NewIndex(nodes []Node) *Index {
	idx := &Index{
		byID:     make(map[string]Node, len(nodes)),
		children: make(map[string][]string),
	}
	sorted := make([]Node, len(nodes))
	copy(sorted, nodes)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].Position != sorted[j].Position {
			return sorted[i].Position < sorted[j].Position
		}
		return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
	})
	for _, n := range sorted {
		idx.byID[n.ID] = n
		idx.children[n.ParentID] = append(idx.children[n.ParentID], n.ID)
	}
	return idx
}

func (idx *Index) Get(id string) (Node, bool) {
	n, ok := idx.byID[id]
	return n, ok
}

// Children returns the direct children of id, ordered by position. An empty id lists the roots.
func (idx *Index) Children(id string) []Node {
	ids := idx.children[id]
	nodes := make([]Node, 0, len(ids))
	for _, cid := range ids {
		nodes = append(nodes, idx.byID[cid])
	}
	return nodes
}

// Subtree returns id followed by the ids of all its descendants, breadth first.
func (idx *Index) Subtree(id string) []string {
	if _, ok := idx.byID[id]; !ok {
		return nil
	}
	ids := []string{id}
	for i := 0; i < len(ids); i++ {
		ids = append(ids, idx.children[ids[i]]...)
	}
	return ids
}

// IsDescendant reports whether id sits somewhere below ancestorID.
func (idx *Index) IsDescendant(id, ancestorID string) bool {
	seen := make(map[string]bool)
	for n, ok := idx.byID[id]; ok && n.ParentID != ""; n, ok = idx.byID[n.ParentID] {
		if n.ParentID == ancestorID {
			return true
		}
		if seen[n.ID] {
			return false
		}
		seen[n.ID] = true
	}
	return false
}

// Ancestors returns the chain of parents of id, root first.
func (idx *Index) Ancestors(id string) []Node {
	var chain []Node
	seen := map[string]bool{id: true}
	n, ok := idx.byID[id]
	for ok && n.ParentID != "" && !seen[n.ParentID] {
		seen[n.ParentID] = true
		n, ok = idx.byID[n.ParentID]
		if ok {
			chain = append(chain, n)
		}
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

// AncestorOfKind returns the closest node of the given kind among id and its ancestors.
func (idx *Index) AncestorOfKind(id string, kind Kind) (Node, bool) {
	n, ok := idx.byID[id]
	if !ok {
		return Node{}, false
	}
	if n.Kind == kind {
		return n, true
	}
	ancestors := idx.Ancestors(id)
	for i := len(ancestors) - 1; i >= 0; i-- {
		if ancestors[i].Kind == kind {
			return ancestors[i], true
		}
	}
	return Node{}, false
}
