package xmltree

import (
	"fmt"
	"strings"
)

// Validate walks the document and checks referential integrity: no
// identifier may be declared twice, and every reference must resolve to an
// identifier declared somewhere in the same document. References are
// carried either in an explicit idref attribute or in any attribute value
// of the form "@identifier".
func Validate(root *Node) error {
	declared := map[string]bool{}
	if err := collectIDs(root, declared); err != nil {
		return err
	}
	return checkRefs(root, declared)
}

func collectIDs(n *Node, declared map[string]bool) error {
	if id := n.Get("id"); id != "" {
		if declared[id] {
			return fmt.Errorf("xmltree: duplicate identifier %q", id)
		}
		declared[id] = true
	}
	for _, c := range n.Children {
		if err := collectIDs(c, declared); err != nil {
			return err
		}
	}
	return nil
}

func checkRefs(n *Node, declared map[string]bool) error {
	for _, a := range n.Attrs {
		var target string
		switch {
		case a.Name == "idref":
			target = a.Value
		case strings.HasPrefix(a.Value, "@"):
			target = a.Value[1:]
		default:
			continue
		}
		if !declared[target] {
			return fmt.Errorf("xmltree: dangling reference %q in <%s %s=%q>", target, n.Tag, a.Name, a.Value)
		}
	}
	for _, c := range n.Children {
		if err := checkRefs(c, declared); err != nil {
			return err
		}
	}
	return nil
}
