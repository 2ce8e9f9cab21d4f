package classify

import (
	"sort"
	"strings"
)

// Direction selects which end of the ancestor chain depth is counted from.
type Direction string

const (
	TopDown  Direction = "top_down"
	BottomUp Direction = "bottom_up"
)

// Grip controls how intermediate single-child classification levels are
// preserved in the derived constraint structure.
type Grip string

const (
	// Tight keeps one nesting level per classification depth, even when a
	// level does not split the taxon set.
	Tight Grip = "tight"
	// Loose collapses levels that do not split the taxon set.
	Loose Grip = "loose"
)

// GroupOptions bound and orient the depth window for monophyly derivation.
// EndDepth <= 0 means unbounded.
type GroupOptions struct {
	StartDepth int
	EndDepth   int
	Direction  Direction
	Grip       Grip
}

// Group is a node of the derived monophyly structure: either a single
// taxon (leaf) or a nested set of subgroups.
type Group struct {
	Taxon    string
	Children []*Group
}

// IsLeaf reports whether g holds a single taxon.
func (g *Group) IsLeaf() bool { return g.Taxon != "" }

// Taxa returns all taxa under g, sorted.
func (g *Group) Taxa() []string {
	var out []string
	var walk func(*Group)
	walk = func(n *Group) {
		if n.IsLeaf() {
			out = append(out, n.Taxon)
			return
		}
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(g)
	sort.Strings(out)
	return out
}

// Meaningful reports whether the structure encodes anything beyond an
// unstructured polytomy: at least one non-degenerate subgroup must exist.
func (g *Group) Meaningful() bool {
	if g == nil || g.IsLeaf() {
		return false
	}
	for _, c := range g.Children {
		if !c.IsLeaf() {
			return true
		}
	}
	return false
}

// Newick renders the group structure as a Newick string without branch
// lengths, the form the constraint node expects.
func (g *Group) Newick() string {
	if g.IsLeaf() {
		return g.Taxon
	}
	parts := make([]string, len(g.Children))
	for i, c := range g.Children {
		parts[i] = c.Newick()
	}
	return "(" + strings.Join(parts, ",") + ")"
}

// DeriveGroups partitions taxa into nested groups following their ancestor
// chains within the configured depth window. Taxa unknown to the
// classification become isolate leaves. Degenerate single-taxon groups are
// never produced.
func DeriveGroups(c *Classification, taxa []string, opt GroupOptions) *Group {
	sorted := append([]string(nil), taxa...)
	sort.Strings(sorted)
	b := groupBuilder{c: c, opt: opt}
	return b.build(sorted, opt.StartDepth)
}

type groupBuilder struct {
	c   *Classification
	opt GroupOptions
}

// ancestorAt returns the grouping key for a taxon at the given chain
// depth, or "" when the chain does not reach that depth.
func (b *groupBuilder) ancestorAt(taxon string, depth int) string {
	chain := b.c.ChainNames(taxon)
	idx := depth
	if b.opt.Direction == BottomUp {
		idx = len(chain) - 1 - depth
	}
	if idx < 0 || idx >= len(chain) {
		return ""
	}
	return chain[idx]
}

func (b *groupBuilder) build(taxa []string, depth int) *Group {
	if len(taxa) == 1 {
		return &Group{Taxon: taxa[0]}
	}
	if b.opt.EndDepth > 0 && depth >= b.opt.EndDepth {
		return flat(taxa)
	}

	keys := []string{}
	members := map[string][]string{}
	for _, t := range taxa {
		k := b.ancestorAt(t, depth)
		if _, seen := members[k]; !seen && k != "" {
			keys = append(keys, k)
		}
		members[k] = append(members[k], t)
	}
	sort.Strings(keys)

	if len(keys) == 0 {
		// Nobody classified at this depth: no refinement possible.
		return flat(taxa)
	}

	if len(keys) == 1 && len(members[""]) == 0 {
		// One shared ancestor: descend. Tight grip keeps the level as an
		// explicit nesting step, loose grip collapses it.
		inner := b.build(taxa, depth+1)
		if b.opt.Grip == Tight && !inner.IsLeaf() {
			return &Group{Children: []*Group{inner}}
		}
		return inner
	}

	group := &Group{}
	for _, k := range keys {
		group.Children = append(group.Children, b.build(members[k], depth+1))
	}
	// Unclassified taxa become isolate leaves alongside the named groups.
	for _, t := range members[""] {
		group.Children = append(group.Children, &Group{Taxon: t})
	}
	sort.Slice(group.Children, func(i, j int) bool {
		return groupSortKey(group.Children[i]) < groupSortKey(group.Children[j])
	})
	return group
}

func flat(taxa []string) *Group {
	g := &Group{}
	for _, t := range taxa {
		g.Children = append(g.Children, &Group{Taxon: t})
	}
	return g
}

func groupSortKey(g *Group) string {
	if g.IsLeaf() {
		return g.Taxon
	}
	taxa := g.Taxa()
	if len(taxa) == 0 {
		return ""
	}
	return taxa[0]
}
