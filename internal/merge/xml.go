package merge

import (
	"bytes"
	"fmt"

	"github.com/beevik/etree"
)

// XML merges XML documents. An element of the new document folds into a
// sibling with the same tag and attribute set; otherwise it is appended.
type XML struct {
	doc *etree.Document
}

// NewXML creates an empty XML merger.
func NewXML() *XML {
	return &XML{}
}

// Merge parses chunk and walks its root into the accumulated root.
func (m *XML) Merge(chunk []byte) error {
	if len(bytes.TrimSpace(chunk)) == 0 {
		return nil
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(chunk); err != nil {
		return malformed("xml", err)
	}
	root := doc.Root()
	if root == nil {
		return malformed("xml", fmt.Errorf("document has no root element"))
	}

	if m.doc == nil {
		m.doc = doc
		return nil
	}
	if dst := m.doc.Root(); dst.FullTag() != root.FullTag() {
		return malformed("xml", fmt.Errorf("root element %q does not match %q", root.FullTag(), dst.FullTag()))
	}
	mergeElements(m.doc.Root(), root)
	return nil
}

// Empty reports whether no document has been merged.
func (m *XML) Empty() bool {
	return m.doc == nil
}

// Bytes encodes the accumulated document with two-space indentation.
func (m *XML) Bytes() ([]byte, error) {
	if m.doc == nil {
		return nil, nil
	}
	out := m.doc.Copy()
	out.Indent(2)
	return out.WriteToBytes()
}

// mergeElements moves or folds every child element of src into dst.
func mergeElements(dst, src *etree.Element) {
	// ChildElements returns a fresh slice, so moving children out of src
	// while ranging is safe.
	for _, child := range src.ChildElements() {
		if match := findMatch(dst, child); match != nil {
			mergeElements(match, child)
			continue
		}
		dst.AddChild(child)
	}
}

func findMatch(parent, el *etree.Element) *etree.Element {
	for _, candidate := range parent.ChildElements() {
		if candidate.FullTag() == el.FullTag() && sameAttrs(candidate, el) {
			return candidate
		}
	}
	return nil
}

func sameAttrs(a, b *etree.Element) bool {
	if len(a.Attr) != len(b.Attr) {
		return false
	}
	values := make(map[string]string, len(a.Attr))
	for _, attr := range a.Attr {
		values[attr.FullKey()] = attr.Value
	}
	for _, attr := range b.Attr {
		v, ok := values[attr.FullKey()]
		if !ok || v != attr.Value {
			return false
		}
	}
	return true
}
