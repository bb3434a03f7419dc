// Package taxonomy models hierarchical term trees used by taxonomy fields.
// Trees are stored as an arena of nodes where every node keeps the index of
// its parent. The parent index is a lookup aid for upward walks (cascade
// select/deselect, leaf counting); ownership always flows parent → children
// and serialisation only ever emits the nested Term shape.
package taxonomy

import (
	"sort"
	"strings"
	"sync"
)

// Term is a node in a taxonomy tree as delivered by the schema or by a remote
// search response.
type Term struct {
	ID       int    `json:"id" yaml:"id"`
	Slug     string `json:"slug,omitempty" yaml:"slug"`
	Label    string `json:"label" yaml:"label"`
	Children []Term `json:"children,omitempty" yaml:"children"`
}

type node struct {
	id       int
	slug     string
	label    string
	parent   int
	children []int
}

const noParent = -1

// Tree is a read-mostly term arena. Reads and merges are guarded so a remote
// search can merge pages while validators count leaves.
type Tree struct {
	mu    sync.RWMutex
	nodes []node
	index map[int]int
	roots []int
}

// NewTree builds a tree from nested terms. Duplicate ids keep the first
// occurrence.
func NewTree(terms []Term) *Tree {
	t := &Tree{index: make(map[int]int)}
	for _, term := range terms {
		t.add(term, noParent)
	}
	return t
}

func (t *Tree) add(term Term, parent int) {
	if _, exists := t.index[term.ID]; exists {
		return
	}
	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{
		id:     term.ID,
		slug:   strings.TrimSpace(term.Slug),
		label:  strings.TrimSpace(term.Label),
		parent: parent,
	})
	t.index[term.ID] = idx
	if parent == noParent {
		t.roots = append(t.roots, idx)
	} else {
		t.nodes[parent].children = append(t.nodes[parent].children, idx)
	}
	for _, child := range term.Children {
		t.add(child, idx)
	}
}

// Merge inserts terms (and their children) under parentID. A parentID of zero
// or an unknown parent inserts at the root. Known ids are skipped.
func (t *Tree) Merge(parentID int, terms []Term) {
	if t == nil || len(terms) == 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	parent := noParent
	if idx, ok := t.index[parentID]; ok && parentID != 0 {
		parent = idx
	}
	for _, term := range terms {
		t.add(term, parent)
	}
}

// Len reports the number of known terms.
func (t *Tree) Len() int {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Has reports whether the id is part of the tree.
func (t *Tree) Has(id int) bool {
	if t == nil {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.index[id]
	return ok
}

// Term returns the term for id without its children.
func (t *Tree) Term(id int) (Term, bool) {
	if t == nil {
		return Term{}, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.index[id]
	if !ok {
		return Term{}, false
	}
	return t.nodes[idx].term(), true
}

// Parent returns the parent id of the term, if any.
func (t *Tree) Parent(id int) (int, bool) {
	if t == nil {
		return 0, false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	idx, ok := t.index[id]
	if !ok || t.nodes[idx].parent == noParent {
		return 0, false
	}
	return t.nodes[t.nodes[idx].parent].id, true
}

// Ancestors returns the ids from the direct parent up to the root.
func (t *Tree) Ancestors(id int) []int {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ancestors(id)
}

func (t *Tree) ancestors(id int) []int {
	idx, ok := t.index[id]
	if !ok {
		return nil
	}
	var out []int
	for p := t.nodes[idx].parent; p != noParent; p = t.nodes[p].parent {
		out = append(out, t.nodes[p].id)
	}
	return out
}

// Descendants returns every id below the term in pre-order.
func (t *Tree) Descendants(id int) []int {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.descendants(id)
}

func (t *Tree) descendants(id int) []int {
	idx, ok := t.index[id]
	if !ok {
		return nil
	}
	var out []int
	stack := append([]int(nil), t.nodes[idx].children...)
	for len(stack) > 0 {
		cur := stack[0]
		stack = stack[1:]
		out = append(out, t.nodes[cur].id)
		stack = append(append([]int(nil), t.nodes[cur].children...), stack...)
	}
	return out
}

// Children returns the direct child ids of the term.
func (t *Tree) Children(id int) []int {
	if t == nil {
		return nil
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.children(id)
}

func (t *Tree) children(id int) []int {
	idx, ok := t.index[id]
	if !ok {
		return nil
	}
	out := make([]int, 0, len(t.nodes[idx].children))
	for _, child := range t.nodes[idx].children {
		out = append(out, t.nodes[child].id)
	}
	return out
}

// Walk visits every term in pre-order with its depth. Returning false stops
// the walk.
func (t *Tree) Walk(fn func(term Term, depth int) bool) {
	if t == nil || fn == nil {
		return
	}
	t.mu.RLock()
	defer t.mu.RUnlock()

	var visit func(idx, depth int) bool
	visit = func(idx, depth int) bool {
		if !fn(t.nodes[idx].term(), depth) {
			return false
		}
		for _, child := range t.nodes[idx].children {
			if !visit(child, depth+1) {
				return false
			}
		}
		return true
	}
	for _, root := range t.roots {
		if !visit(root, 0) {
			return
		}
	}
}

// Search returns terms whose label or slug contains query (case-insensitive)
// in pre-order. A limit <= 0 returns every match.
func (t *Tree) Search(query string, limit int) []Term {
	needle := strings.ToLower(strings.TrimSpace(query))
	var out []Term
	t.Walk(func(term Term, _ int) bool {
		if needle == "" ||
			strings.Contains(strings.ToLower(term.Label), needle) ||
			strings.Contains(strings.ToLower(term.Slug), needle) {
			out = append(out, term)
		}
		return limit <= 0 || len(out) < limit
	})
	return out
}

func (n node) term() Term {
	return Term{ID: n.id, Slug: n.slug, Label: n.label}
}

// Leaves returns the selected ids that have no selected descendant, sorted.
// Ids unknown to the tree count as leaves. The result does not depend on the
// order of selected.
func (t *Tree) Leaves(selected []int) []int {
	set := toSet(selected)
	nonLeaf := make(map[int]struct{})
	if t != nil {
		t.mu.RLock()
		for id := range set {
			for _, ancestor := range t.ancestors(id) {
				if _, ok := set[ancestor]; ok {
					nonLeaf[ancestor] = struct{}{}
				}
			}
		}
		t.mu.RUnlock()
	}

	out := make([]int, 0, len(set))
	for id := range set {
		if _, ok := nonLeaf[id]; !ok {
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

// LeafCount is len(Leaves(selected)).
func (t *Tree) LeafCount(selected []int) int {
	return len(t.Leaves(selected))
}

// Select adds id and all of its ancestors to the selection. Existing order is
// preserved; new ids are appended root-first.
func (t *Tree) Select(selected []int, id int) []int {
	out := dedupe(selected)
	set := toSet(out)

	chain := append(reverse(t.Ancestors(id)), id)
	for _, candidate := range chain {
		if _, ok := set[candidate]; ok {
			continue
		}
		set[candidate] = struct{}{}
		out = append(out, candidate)
	}
	return out
}

// Deselect removes id and every selected descendant. Ancestors are removed
// walking upward only while they are left with no selected child.
func (t *Tree) Deselect(selected []int, id int) []int {
	set := toSet(selected)
	if _, ok := set[id]; !ok {
		return dedupe(selected)
	}

	delete(set, id)
	for _, desc := range t.Descendants(id) {
		delete(set, desc)
	}

	current := id
	for {
		parent, ok := t.Parent(current)
		if !ok {
			break
		}
		if _, selectedParent := set[parent]; !selectedParent {
			break
		}
		if anySelected(t.Children(parent), set) {
			break
		}
		delete(set, parent)
		current = parent
	}

	out := make([]int, 0, len(set))
	for _, candidate := range dedupe(selected) {
		if _, ok := set[candidate]; ok {
			out = append(out, candidate)
		}
	}
	return out
}

func anySelected(ids []int, set map[int]struct{}) bool {
	for _, id := range ids {
		if _, ok := set[id]; ok {
			return true
		}
	}
	return false
}

func toSet(ids []int) map[int]struct{} {
	set := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func dedupe(ids []int) []int {
	out := make([]int, 0, len(ids))
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func reverse(ids []int) []int {
	out := make([]int, len(ids))
	for i, id := range ids {
		out[len(ids)-1-i] = id
	}
	return out
}
