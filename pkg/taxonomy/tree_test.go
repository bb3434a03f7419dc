package taxonomy_test

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/goliatone/go-formengine/pkg/taxonomy"
)

func fixtureTree() *taxonomy.Tree {
	return taxonomy.NewTree([]taxonomy.Term{
		{ID: 1, Slug: "food", Label: "Food", Children: []taxonomy.Term{
			{ID: 2, Slug: "italian", Label: "Italian", Children: []taxonomy.Term{
				{ID: 4, Slug: "pizza", Label: "Pizza"},
				{ID: 5, Slug: "pasta", Label: "Pasta"},
			}},
			{ID: 3, Slug: "thai", Label: "Thai"},
		}},
		{ID: 6, Slug: "bars", Label: "Bars"},
	})
}

func TestLeafCountParentAndChild(t *testing.T) {
	t.Parallel()

	tree := fixtureTree()
	if got := tree.LeafCount([]int{1, 2}); got != 1 {
		t.Fatalf("expected 1 leaf, got %d", got)
	}
	if diff := cmp.Diff([]int{2}, tree.Leaves([]int{1, 2})); diff != "" {
		t.Fatalf("leaves mismatch (-want +got):\n%s", diff)
	}
}

func TestLeafCountOrderIndependent(t *testing.T) {
	t.Parallel()

	tree := fixtureTree()
	orders := [][]int{
		{1, 2, 4, 3, 6},
		{6, 3, 4, 2, 1},
		{4, 6, 1, 3, 2},
	}
	for _, order := range orders {
		if got := tree.LeafCount(order); got != 3 {
			t.Fatalf("order %v: expected 3 leaves, got %d", order, got)
		}
	}
}

func TestLeafCountUnknownIDsAreLeaves(t *testing.T) {
	t.Parallel()

	tree := fixtureTree()
	if got := tree.LeafCount([]int{99, 1}); got != 2 {
		t.Fatalf("expected 2, got %d", got)
	}
}

func TestSelectAddsAncestors(t *testing.T) {
	t.Parallel()

	tree := fixtureTree()
	got := tree.Select([]int{6}, 4)
	if diff := cmp.Diff([]int{6, 1, 2, 4}, got); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}
}

func TestDeselectParentCascadesDown(t *testing.T) {
	t.Parallel()

	tree := fixtureTree()
	got := tree.Deselect([]int{1, 2, 4, 5, 3, 6}, 1)
	if diff := cmp.Diff([]int{6}, got); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}
}

func TestDeselectChildKeepsAncestorsWithSelectedSibling(t *testing.T) {
	t.Parallel()

	tree := fixtureTree()
	got := tree.Deselect([]int{1, 2, 4, 5}, 4)
	if diff := cmp.Diff([]int{1, 2, 5}, got); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}
}

func TestDeselectLastChildRemovesAncestors(t *testing.T) {
	t.Parallel()

	tree := fixtureTree()
	got := tree.Deselect([]int{1, 2, 4, 6}, 4)
	if diff := cmp.Diff([]int{6}, got); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}

	// Thai is still selected under Food, so Food survives.
	got = tree.Deselect([]int{1, 2, 4, 3}, 4)
	if diff := cmp.Diff([]int{1, 3}, got); diff != "" {
		t.Fatalf("selection mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeAndSearch(t *testing.T) {
	t.Parallel()

	tree := fixtureTree()
	tree.Merge(3, []taxonomy.Term{{ID: 7, Slug: "curry", Label: "Green Curry"}, {ID: 4, Label: "dup"}})

	if parent, ok := tree.Parent(7); !ok || parent != 3 {
		t.Fatalf("expected parent 3, got %d (%v)", parent, ok)
	}
	term, _ := tree.Term(4)
	if term.Label != "Pizza" {
		t.Fatalf("merge must not overwrite existing terms, got %q", term.Label)
	}

	got := tree.Search("CURRY", 0)
	if diff := cmp.Diff([]taxonomy.Term{{ID: 7, Slug: "curry", Label: "Green Curry"}}, got); diff != "" {
		t.Fatalf("search mismatch (-want +got):\n%s", diff)
	}
	if got := tree.Search("", 2); len(got) != 2 {
		t.Fatalf("expected limit to apply, got %d", len(got))
	}
}
