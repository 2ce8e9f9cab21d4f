// Package newick parses and renders Newick tree strings, covering the
// subset needed for starting trees and monophyly overrides: quoted or bare
// labels, branch lengths, and arbitrary nesting.
package newick

import (
	"fmt"
	"sort"
	"strings"
)

// Node is one vertex of a parsed tree.
type Node struct {
	Name     string
	Length   string // raw branch-length text, "" when absent
	Children []*Node
}

// IsLeaf reports whether n has no children.
func (n *Node) IsLeaf() bool { return len(n.Children) == 0 }

// Parse reads a single Newick tree. The trailing semicolon is optional.
func Parse(s string) (*Node, error) {
	p := &parser{input: strings.TrimSpace(s)}
	node, err := p.node()
	if err != nil {
		return nil, err
	}
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == ';' {
		p.pos++
	}
	p.skipSpace()
	if p.pos != len(p.input) {
		return nil, fmt.Errorf("newick: trailing input at offset %d", p.pos)
	}
	return node, nil
}

type parser struct {
	input string
	pos   int
}

func (p *parser) skipSpace() {
	for p.pos < len(p.input) && (p.input[p.pos] == ' ' || p.input[p.pos] == '\t' || p.input[p.pos] == '\n' || p.input[p.pos] == '\r') {
		p.pos++
	}
}

func (p *parser) node() (*Node, error) {
	p.skipSpace()
	n := &Node{}
	if p.pos < len(p.input) && p.input[p.pos] == '(' {
		p.pos++
		for {
			child, err := p.node()
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
			p.skipSpace()
			if p.pos >= len(p.input) {
				return nil, fmt.Errorf("newick: unterminated group")
			}
			if p.input[p.pos] == ',' {
				p.pos++
				continue
			}
			if p.input[p.pos] == ')' {
				p.pos++
				break
			}
			return nil, fmt.Errorf("newick: unexpected %q at offset %d", p.input[p.pos], p.pos)
		}
	}
	name, err := p.label()
	if err != nil {
		return nil, err
	}
	n.Name = name
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == ':' {
		p.pos++
		n.Length = p.lengthText()
	}
	return n, nil
}

func (p *parser) label() (string, error) {
	p.skipSpace()
	if p.pos < len(p.input) && p.input[p.pos] == '\'' {
		end := p.pos + 1
		for end < len(p.input) && p.input[end] != '\'' {
			end++
		}
		if end >= len(p.input) {
			return "", fmt.Errorf("newick: unterminated quoted label")
		}
		label := p.input[p.pos+1 : end]
		p.pos = end + 1
		return label, nil
	}
	start := p.pos
	for p.pos < len(p.input) && !strings.ContainsRune("(),:;", rune(p.input[p.pos])) && p.input[p.pos] != ' ' {
		p.pos++
	}
	return p.input[start:p.pos], nil
}

func (p *parser) lengthText() string {
	start := p.pos
	for p.pos < len(p.input) && !strings.ContainsRune("(),;", rune(p.input[p.pos])) {
		p.pos++
	}
	return strings.TrimSpace(p.input[start:p.pos])
}

// String renders the tree without a trailing semicolon.
func (n *Node) String() string {
	var b strings.Builder
	n.render(&b)
	return b.String()
}

func (n *Node) render(b *strings.Builder) {
	if len(n.Children) > 0 {
		b.WriteByte('(')
		for i, c := range n.Children {
			if i > 0 {
				b.WriteByte(',')
			}
			c.render(b)
		}
		b.WriteByte(')')
	}
	if strings.ContainsAny(n.Name, " (),:;") {
		b.WriteByte('\'')
		b.WriteString(n.Name)
		b.WriteByte('\'')
	} else {
		b.WriteString(n.Name)
	}
	if n.Length != "" {
		b.WriteByte(':')
		b.WriteString(n.Length)
	}
}

// Leaves returns the names of all leaves in traversal order.
func (n *Node) Leaves() []string {
	var out []string
	var walk func(*Node)
	walk = func(x *Node) {
		if x.IsLeaf() {
			out = append(out, x.Name)
			return
		}
		for _, c := range x.Children {
			walk(c)
		}
	}
	walk(n)
	return out
}

// Prune removes all leaves not in keep, collapsing the tree as needed.
// Pruning everything returns nil.
func (n *Node) Prune(keep map[string]bool) *Node {
	if n.IsLeaf() {
		if keep[n.Name] {
			return n
		}
		return nil
	}
	var kept []*Node
	for _, c := range n.Children {
		if pruned := c.Prune(keep); pruned != nil {
			kept = append(kept, pruned)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		// Collapse the redundant unary node.
		return kept[0]
	default:
		return &Node{Name: n.Name, Length: n.Length, Children: kept}
	}
}

// StripInternalNames clears labels on non-leaf nodes.
func (n *Node) StripInternalNames() {
	if !n.IsLeaf() {
		n.Name = ""
		for _, c := range n.Children {
			c.StripInternalNames()
		}
	}
}

// StripLengths removes all branch lengths, as required for monophyly
// constraint trees.
func (n *Node) StripLengths() {
	n.Length = ""
	for _, c := range n.Children {
		c.StripLengths()
	}
}

// ResolvePolytomies rewrites every node with more than two children into a
// nested binary structure. The rewrite is deterministic: children are
// folded left to right in sorted-leaf order.
func (n *Node) ResolvePolytomies() {
	for _, c := range n.Children {
		c.ResolvePolytomies()
	}
	if len(n.Children) <= 2 {
		return
	}
	sort.Slice(n.Children, func(i, j int) bool {
		return firstLeaf(n.Children[i]) < firstLeaf(n.Children[j])
	})
	for len(n.Children) > 2 {
		merged := &Node{Children: []*Node{n.Children[0], n.Children[1]}}
		n.Children = append([]*Node{merged}, n.Children[2:]...)
	}
}

func firstLeaf(n *Node) string {
	if n.IsLeaf() {
		return n.Name
	}
	return firstLeaf(n.Children[0])
}
