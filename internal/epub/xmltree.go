package epub

import (
	"bytes"
	"encoding/xml"
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// xnode is a minimal element tree produced by the lenient XML parsers.
// Name.Space holds the resolved namespace URI when one is known.
type xnode struct {
	Name     xml.Name
	Attr     []xml.Attr
	Text     strings.Builder
	Children []*xnode
}

// parseLenientXML builds an element tree from data. It first uses the
// non-strict encoding/xml decoder; if that stops on a syntax error the partial
// tree is compared with a tree built by the HTML parser and the one with more
// elements is returned. recoverErr is non-nil when recovery was needed.
func parseLenientXML(data []byte) (root *xnode, recoverErr error) {
	data = stripBOM(data)

	root, err := decodeXMLTree(data)
	if err == nil {
		return root, nil
	}

	fallback, herr := decodeHTMLTree(data)
	if herr == nil && countElements(fallback) > countElements(root) {
		return fallback, err
	}
	return root, err
}

// decodeXMLTree runs the non-strict encoding/xml decoder over data.
func decodeXMLTree(data []byte) (*xnode, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel

	doc := &xnode{}
	stack := []*xnode{doc}
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return doc, nil
		}
		if err != nil {
			return doc, err
		}
		top := stack[len(stack)-1]
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xnode{Name: t.Name, Attr: t.Copy().Attr}
			top.Children = append(top.Children, n)
			stack = append(stack, n)
		case xml.EndElement:
			// close the nearest open element of that name; stray end tags are ignored
			for i := len(stack) - 1; i > 0; i-- {
				if strings.EqualFold(stack[i].Name.Local, t.Name.Local) {
					stack = stack[:i]
					break
				}
			}
		case xml.CharData:
			top.Text.Write(t)
		}
	}
}

// decodeHTMLTree parses data with the HTML5 tree builder, which never gives up,
// and converts the result, resolving prefixes from xmlns declarations.
func decodeHTMLTree(data []byte) (*xnode, error) {
	doc, err := html.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	out := &xnode{}
	convertHTMLNode(doc, out, map[string]string{})
	return out, nil
}

func convertHTMLNode(n *html.Node, parent *xnode, bindings map[string]string) {
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		switch c.Type {
		case html.TextNode:
			parent.Text.WriteString(c.Data)
		case html.ElementNode:
			if isImpliedWrapper(c) {
				convertHTMLNode(c, parent, bindings)
				continue
			}
			scope := bindings
			copied := false
			x := &xnode{}
			for _, a := range c.Attr {
				key := a.Key
				if a.Namespace != "" {
					key = a.Namespace + ":" + a.Key
				}
				prefix, local := splitQName(key)
				if prefix == "xmlns" || (prefix == "" && local == "xmlns") {
					if !copied {
						copied = true
						scope = make(map[string]string, len(bindings)+1)
						for k, v := range bindings {
							scope[k] = v
						}
					}
					if prefix == "" {
						scope[""] = a.Val
					} else {
						scope[local] = a.Val
					}
				}
				x.Attr = append(x.Attr, xml.Attr{Name: xml.Name{Space: prefix, Local: local}, Value: a.Val})
			}
			prefix, local := splitQName(c.Data)
			x.Name = xml.Name{Space: scope[prefix], Local: local}
			parent.Children = append(parent.Children, x)
			convertHTMLNode(c, x, scope)
		default:
			convertHTMLNode(c, parent, bindings)
		}
	}
}

// isImpliedWrapper reports html, head and body elements the HTML parser
// inserted on its own. They carry no attributes.
func isImpliedWrapper(n *html.Node) bool {
	switch n.Data {
	case "html", "head", "body":
		return len(n.Attr) == 0
	}
	return false
}

func splitQName(s string) (prefix, local string) {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[:i], s[i+1:]
	}
	return "", s
}

// stripBOM removes a leading UTF-8 BOM, if present.
func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

func countElements(n *xnode) int {
	if n == nil {
		return 0
	}
	total := len(n.Children)
	for _, c := range n.Children {
		total += countElements(c)
	}
	return total
}

// is reports whether the element has the given local name (case-insensitive)
// and is either in namespace ns or in no namespace at all.
func (n *xnode) is(ns, local string) bool {
	if !strings.EqualFold(n.Name.Local, local) {
		return false
	}
	return ns == "" || n.Name.Space == "" || n.Name.Space == ns
}

// attr returns an attribute value by local name, ignoring prefix and case.
func (n *xnode) attr(local string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Name.Local, local) && a.Name.Space != "xmlns" {
			return a.Value
		}
	}
	return ""
}

// find returns the first descendant matching (ns, local) in document order.
func (n *xnode) find(ns, local string) *xnode {
	for _, c := range n.Children {
		if c.is(ns, local) {
			return c
		}
		if found := c.find(ns, local); found != nil {
			return found
		}
	}
	return nil
}

// findAll returns all descendants matching (ns, local) in document order.
func (n *xnode) findAll(ns, local string) []*xnode {
	var out []*xnode
	var walk func(*xnode)
	walk = func(x *xnode) {
		for _, c := range x.Children {
			if c.is(ns, local) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	walk(n)
	return out
}

// text returns the element's character data including descendants.
func (n *xnode) text() string {
	var b strings.Builder
	var walk func(*xnode)
	walk = func(x *xnode) {
		b.WriteString(x.Text.String())
		for _, c := range x.Children {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(b.String())
}

// firstElement returns the document (root) element.
func (n *xnode) firstElement() *xnode {
	if len(n.Children) == 0 {
		return nil
	}
	return n.Children[0]
}
