// Package xmltree builds the output document as an explicit element tree.
// Attribute order is preserved, identifiers and references are tracked as
// nodes are added, and a final validation pass confirms that every reference
// resolves and no identifier is declared twice.
package xmltree

import (
	"regexp"
	"strconv"
	"strings"
)

// Attr is a single ordered attribute.
type Attr struct {
	Name  string
	Value string
}

// Node is one element, comment, or text carrier in the document tree.
// A node with Comment set renders as an XML comment; Tag and Attrs are
// ignored for comment nodes.
type Node struct {
	Tag      string
	Attrs    []Attr
	Text     string
	Comment  string
	Children []*Node
}

var idUnsafe = regexp.MustCompile(`\s+`)

// ValidID rewrites s into a form safe for use as an id or idref:
// whitespace runs and commas become underscores.
func ValidID(s string) string {
	return strings.ReplaceAll(idUnsafe.ReplaceAllString(s, "_"), ",", "_")
}

// AttrValue stringifies an attribute value the way the inference engine
// expects: booleans as "true"/"false", floats without exponent noise.
func AttrValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		panic("xmltree: unsupported attribute type")
	}
}

// NewElement returns a detached element node. Attributes are given as
// name/value pairs; values pass through AttrValue.
func NewElement(tag string, pairs ...any) *Node {
	if len(pairs)%2 != 0 {
		panic("xmltree: odd attribute pair count")
	}
	n := &Node{Tag: tag}
	for i := 0; i < len(pairs); i += 2 {
		name := pairs[i].(string)
		value := AttrValue(pairs[i+1])
		if name == "id" || name == "idref" {
			value = ValidID(value)
		}
		n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
	}
	return n
}

// Element appends a new child element to parent and returns it.
func (n *Node) Element(tag string, pairs ...any) *Node {
	child := NewElement(tag, pairs...)
	n.Children = append(n.Children, child)
	return child
}

// CommentNode appends a comment child to parent.
func (n *Node) CommentNode(text string) *Node {
	child := &Node{Comment: text}
	n.Children = append(n.Children, child)
	return child
}

// Append attaches an already-built node.
func (n *Node) Append(child *Node) *Node {
	n.Children = append(n.Children, child)
	return child
}

// Set adds or replaces a single attribute.
func (n *Node) Set(name string, value any) {
	v := AttrValue(value)
	if name == "id" || name == "idref" {
		v = ValidID(v)
	}
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = v
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: v})
}

// Get returns the value of the named attribute, or "".
func (n *Node) Get(name string) string {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value
		}
	}
	return ""
}
