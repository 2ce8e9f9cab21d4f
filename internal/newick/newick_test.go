package newick

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestParseRoundTrip(t *testing.T) {
	cases := []string{
		"(a,b)",
		"((a:1.5,b:2),c:0.1)root",
		"(('big bad',b),c)",
		"(a,(b,(c,d)))",
	}
	for _, in := range cases {
		n, err := Parse(in)
		if err != nil {
			t.Errorf("Parse(%q): %v", in, err)
			continue
		}
		if got := n.String(); got != in {
			t.Errorf("round trip %q = %q", in, got)
		}
	}
}

func TestParseTrailingSemicolon(t *testing.T) {
	n, err := Parse("(a,b);")
	if err != nil {
		t.Fatal(err)
	}
	if got := n.String(); got != "(a,b)" {
		t.Errorf("String() = %q", got)
	}
}

func TestParseErrors(t *testing.T) {
	for _, in := range []string{"(a,b", "(a,b));", "('oops,b)"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}

func TestLeaves(t *testing.T) {
	n, err := Parse("((a,b)ab,(c,d))")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{"a", "b", "c", "d"}, n.Leaves()); diff != "" {
		t.Errorf("leaves mismatch (-want +got):\n%s", diff)
	}
}

func TestPruneCollapsesUnary(t *testing.T) {
	n, err := Parse("((a,b),(c,d))")
	if err != nil {
		t.Fatal(err)
	}
	got := n.Prune(map[string]bool{"a": true, "c": true, "d": true})
	if want := "(a,(c,d))"; got.String() != want {
		t.Errorf("pruned = %q, want %q", got.String(), want)
	}
}

func TestPruneEverything(t *testing.T) {
	n, err := Parse("(a,b)")
	if err != nil {
		t.Fatal(err)
	}
	if got := n.Prune(map[string]bool{}); got != nil {
		t.Errorf("pruning all leaves should yield nil, got %q", got.String())
	}
}

func TestStripInternalNamesAndLengths(t *testing.T) {
	n, err := Parse("((a:1,b:2)ab:3,c:4)root")
	if err != nil {
		t.Fatal(err)
	}
	n.StripInternalNames()
	n.StripLengths()
	if got, want := n.String(), "((a,b),c)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

func TestResolvePolytomies(t *testing.T) {
	n, err := Parse("(d,a,c,b)")
	if err != nil {
		t.Fatal(err)
	}
	n.ResolvePolytomies()
	if got, want := n.String(), "(((a,b),c),d)"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	// Deterministic regardless of input order.
	m, err := Parse("(b,c,d,a)")
	if err != nil {
		t.Fatal(err)
	}
	m.ResolvePolytomies()
	if m.String() != n.String() {
		t.Errorf("resolution not deterministic: %q vs %q", m.String(), n.String())
	}
}
