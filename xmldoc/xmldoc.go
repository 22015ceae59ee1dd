/*
Package xmldoc parses API response bodies into a small owned element tree and converts that tree into generic nested maps.

The conversion follows the BadgerFish convention, with one twist: attribute keys are prefixed with an underscore ([AttributePrefix]) instead of '@'. Trimmed, non-empty text content is stored under [TextKey] ('$'). Child elements are stored under their tag name: a single [Document] when the tag occurs once, or a []Document (in document order) when it occurs more than once or the caller declared the tag as "arrayed".

A child tag which collides with an attribute key (<a id="1"><_id>2</_id></a>) is kept together with it: the key holds a []any with the attribute value first, then the child documents in order.

No namespace handling or schema validation is done; only local element and attribute names are kept.
*/
package xmldoc

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	AttributePrefix = "_"
	TextKey         = "$"
)

var ErrMalformed = errors.New("malformed XML document")

// Returns the document key for an attribute name.
func AttrKey(name string) string {
	return AttributePrefix + name
}

type Attr struct {
	Name  string
	Value string
}

// Node is a parsed XML element.
type Node struct {
	Name     string
	Attrs    []Attr
	Text     string
	Children []*Node
}

// Returns the value of the named attribute, and whether it was present.
func (n *Node) Attr(name string) (string, bool) {
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Returns the first direct child with the given tag, or nil.
func (n *Node) Child(name string) *Node {
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// Parses data into an element tree and returns the root element. Errors wrap [ErrMalformed].
func Parse(data []byte) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var root *Node
	var stack []*Node
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			for _, a := range t.Attr {
				// namespace declarations are not data
				if a.Name.Space == "xmlns" || (a.Name.Space == "" && a.Name.Local == "xmlns") {
					continue
				}
				n.Attrs = append(n.Attrs, Attr{Name: a.Name.Local, Value: a.Value})
			}
			if len(stack) == 0 {
				if root != nil {
					return nil, fmt.Errorf("%w: multiple root elements", ErrMalformed)
				}
				root = n
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			stack = stack[:len(stack)-1]
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			} else if len(bytes.TrimSpace(t)) > 0 {
				return nil, fmt.Errorf("%w: text outside of root element", ErrMalformed)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformed)
	}
	return root, nil
}

// Parses data and normalizes the whole document (see [NormalizeDocument]).
func FromBytes(data []byte, arrayed map[string]bool) (Document, error) {
	root, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return NormalizeDocument(root, arrayed), nil
}

// Normalizes an element into a document holding its attributes, text and children.
func Normalize(n *Node, arrayed map[string]bool) Document {
	doc := make(Document, len(n.Attrs)+len(n.Children)+1)
	for _, a := range n.Attrs {
		doc[AttrKey(a.Name)] = a.Value
	}
	if text := strings.TrimSpace(n.Text); text != "" {
		doc[TextKey] = text
	}

	counts := make(map[string]int, len(n.Children))
	for _, c := range n.Children {
		counts[c.Name]++
	}
	for _, c := range n.Children {
		child := Normalize(c, arrayed)
		switch cur := doc[c.Name].(type) {
		case string:
			// attribute under the same key, eg id="1" next to <_id>
			doc[c.Name] = []any{cur, child}
		case []any:
			doc[c.Name] = append(cur, child)
		default:
			if counts[c.Name] > 1 || arrayed[c.Name] {
				list, _ := cur.([]Document)
				doc[c.Name] = append(list, child)
			} else {
				doc[c.Name] = child
			}
		}
	}
	return doc
}

// Normalizes the root element and keys the result by the root's tag, eg {"rsp": {...}}.
func NormalizeDocument(root *Node, arrayed map[string]bool) Document {
	if arrayed[root.Name] {
		return Document{root.Name: []Document{Normalize(root, arrayed)}}
	}
	return Document{root.Name: Normalize(root, arrayed)}
}

// Checks whether a parsed response is an API failure. Failure responses look like:
//
//	<rsp stat="fail"><err code="1" msg="Photo not found"/></rsp>
//
// The code and message may also be given as <code> and <msg> child elements of <err>. If the response is marked as failed but carries no usable error code, ok is true and code is 0.
func RemoteError(root *Node) (code int, msg string, ok bool) {
	stat, _ := root.Attr("stat")
	errNode := root.Child("err")
	if errNode == nil && root.Name == "err" {
		errNode = root
	}
	if errNode == nil {
		return 0, "", stat == "fail"
	}

	codeStr, found := errNode.Attr("code")
	if !found {
		if c := errNode.Child("code"); c != nil {
			codeStr = c.Text
		}
	}
	msg, found = errNode.Attr("msg")
	if !found {
		if m := errNode.Child("msg"); m != nil {
			msg = strings.TrimSpace(m.Text)
		}
	}
	code, err := strconv.Atoi(strings.TrimSpace(codeStr))
	if err != nil {
		code = 0
	}
	return code, msg, true
}
