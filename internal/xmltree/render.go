package xmltree

import (
	"fmt"
	"io"
	"strings"
)

const indentUnit = "  "

// Write renders the tree rooted at n as an indented XML document,
// including the XML declaration.
func Write(w io.Writer, root *Node) error {
	if _, err := io.WriteString(w, "<?xml version=\"1.0\" encoding=\"UTF-8\"?>\n"); err != nil {
		return err
	}
	return writeNode(w, root, 0)
}

func writeNode(w io.Writer, n *Node, depth int) error {
	pad := strings.Repeat(indentUnit, depth)
	if n.Comment != "" {
		_, err := fmt.Fprintf(w, "%s<!--%s-->\n", pad, EscapeComment(n.Comment))
		return err
	}

	var b strings.Builder
	b.WriteString(pad)
	b.WriteByte('<')
	b.WriteString(n.Tag)
	for _, a := range n.Attrs {
		b.WriteByte(' ')
		b.WriteString(a.Name)
		b.WriteString(`="`)
		b.WriteString(escapeAttr(a.Value))
		b.WriteByte('"')
	}

	if len(n.Children) == 0 && n.Text == "" {
		b.WriteString("/>\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	b.WriteByte('>')
	if n.Text != "" {
		b.WriteString(escapeText(n.Text))
	}
	if len(n.Children) > 0 {
		b.WriteByte('\n')
	}
	if _, err := io.WriteString(w, b.String()); err != nil {
		return err
	}

	for _, child := range n.Children {
		if err := writeNode(w, child, depth+1); err != nil {
			return err
		}
	}

	closePad := ""
	if len(n.Children) > 0 {
		closePad = pad
	}
	_, err := fmt.Fprintf(w, "%s</%s>\n", closePad, n.Tag)
	return err
}

// String renders the full document to a string.
func String(root *Node) string {
	var b strings.Builder
	Write(&b, root) // strings.Builder never errors
	return b.String()
}

func escapeText(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return r.Replace(s)
}

func escapeAttr(s string) string {
	r := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;", `"`, "&quot;", "\n", "&#10;")
	return r.Replace(s)
}

// EscapeComment makes arbitrary text legal inside an XML comment, which
// may not contain "--" or end with "-". The encoding is reversible:
// "%" becomes "%25", the second dash of every "--" becomes "%2D", and a
// trailing "-" becomes "%2D". UnescapeComment restores the original text.
func EscapeComment(s string) string {
	s = strings.ReplaceAll(s, "%", "%25")
	s = strings.ReplaceAll(s, "--", "-%2D")
	if strings.HasSuffix(s, "-") {
		s = strings.TrimSuffix(s, "-") + "%2D"
	}
	return s
}

// UnescapeComment is the inverse of EscapeComment.
func UnescapeComment(s string) string {
	s = strings.ReplaceAll(s, "%2D", "-")
	return strings.ReplaceAll(s, "%25", "%")
}
