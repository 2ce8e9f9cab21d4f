package classify

import "testing"

func TestDeriveGroupsNested(t *testing.T) {
	c := testClassification()
	taxa := []string{"french", "swedish", "basque", "german", "english"}
	g := DeriveGroups(c, taxa, GroupOptions{Direction: TopDown, Grip: Loose})
	want := "(basque,(((english,german),swedish),french))"
	if got := g.Newick(); got != want {
		t.Errorf("Newick() = %q, want %q", got, want)
	}
	if !g.Meaningful() {
		t.Error("nested structure should be meaningful")
	}
}

func TestDeriveGroupsGrip(t *testing.T) {
	c := testClassification()
	taxa := []string{"english", "german", "swedish"}

	loose := DeriveGroups(c, taxa, GroupOptions{Direction: TopDown, Grip: Loose})
	if got, want := loose.Newick(), "((english,german),swedish)"; got != want {
		t.Errorf("loose Newick() = %q, want %q", got, want)
	}

	// Tight keeps the shared Indo-European and Germanic levels as explicit
	// nesting steps.
	tight := DeriveGroups(c, taxa, GroupOptions{Direction: TopDown, Grip: Tight})
	if got, want := tight.Newick(), "((((english,german),swedish)))"; got != want {
		t.Errorf("tight Newick() = %q, want %q", got, want)
	}
}

func TestDeriveGroupsEndDepth(t *testing.T) {
	c := testClassification()
	taxa := []string{"english", "german", "swedish", "french", "basque"}
	g := DeriveGroups(c, taxa, GroupOptions{Direction: TopDown, Grip: Loose, EndDepth: 1})
	if got, want := g.Newick(), "(basque,(english,french,german,swedish))"; got != want {
		t.Errorf("Newick() = %q, want %q", got, want)
	}
}

func TestDeriveGroupsBottomUp(t *testing.T) {
	c := testClassification()
	taxa := []string{"english", "german", "swedish"}
	g := DeriveGroups(c, taxa, GroupOptions{Direction: BottomUp, Grip: Loose})
	if got, want := g.Newick(), "((english,german),swedish)"; got != want {
		t.Errorf("Newick() = %q, want %q", got, want)
	}
}

func TestDeriveGroupsUnclassifiedIsolate(t *testing.T) {
	c := testClassification()
	g := DeriveGroups(c, []string{"english", "german", "klingon"}, GroupOptions{Direction: TopDown, Grip: Loose})
	if got, want := g.Newick(), "((english,german),klingon)"; got != want {
		t.Errorf("Newick() = %q, want %q", got, want)
	}
}

func TestDeriveGroupsSingleTaxon(t *testing.T) {
	c := testClassification()
	g := DeriveGroups(c, []string{"english"}, GroupOptions{Direction: TopDown, Grip: Loose})
	if !g.IsLeaf() || g.Taxon != "english" {
		t.Errorf("single taxon should yield a leaf, got %q", g.Newick())
	}
	if g.Meaningful() {
		t.Error("a leaf is never meaningful")
	}
}

func TestMeaningfulFlat(t *testing.T) {
	c := testClassification()
	// Nobody in the classification: a flat polytomy of isolates.
	g := DeriveGroups(c, []string{"klingon", "vulcan"}, GroupOptions{Direction: TopDown, Grip: Loose})
	if g.Meaningful() {
		t.Errorf("flat structure %q should not be meaningful", g.Newick())
	}
}

func TestGroupTaxa(t *testing.T) {
	g := &Group{Children: []*Group{
		{Children: []*Group{{Taxon: "c"}, {Taxon: "a"}}},
		{Taxon: "b"},
	}}
	got := g.Taxa()
	want := []string{"a", "b", "c"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Taxa() = %v, want %v", got, want)
		}
	}
}
