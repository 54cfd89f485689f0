package models

import "strings"

// AttrPrefix marks attribute keys when an attribute and a child element share a name.
const AttrPrefix = "@"

// NodeKind identifies which variant a Node holds.
type NodeKind uint8

const (
	// NullNode is an element with no attributes, no children and blank text.
	NullNode NodeKind = iota
	// TextNode is an element that collapsed to its text.
	TextNode
	// ElementNode carries attributes and/or child slots.
	ElementNode
	// ListNode holds repeated same-tag siblings in document order.
	ListNode
)

func (k NodeKind) String() string {
	switch k {
	case NullNode:
		return "null"
	case TextNode:
		return "text"
	case ElementNode:
		return "element"
	case ListNode:
		return "list"
	}
	return "unknown"
}

// Attr is one XML attribute, kept in source order.
type Attr struct {
	Name  string
	Value string
}

// Slot is one child tag under an element. Node is a ListNode once the tag repeats.
type Slot struct {
	Tag  string
	Node *Node
}

// Node is the schema-free document model produced by the XML parser.
//
// An element becomes Null, Text or Element when its end tag is seen. Repeated
// child tags are promoted to a List in place by InsertChild.
type Node struct {
	Kind  NodeKind
	Text  string
	Attrs []Attr
	Slots []Slot
	Items []*Node

	index map[string]int
}

// NewElement returns an empty element node.
func NewElement() *Node {
	return &Node{Kind: ElementNode}
}

// NewText returns a collapsed text node.
func NewText(s string) *Node {
	return &Node{Kind: TextNode, Text: s}
}

// NewNull returns a null marker node.
func NewNull() *Node {
	return &Node{Kind: NullNode}
}

// NewList returns a list node holding items.
func NewList(items ...*Node) *Node {
	return &Node{Kind: ListNode, Items: items}
}

// IsNull reports whether n is nil or a null marker.
func (n *Node) IsNull() bool {
	return n == nil || n.Kind == NullNode
}

// InsertChild adds child under tag. The first occurrence is stored as is; any
// later occurrence turns the slot into a list with the earlier value first.
func (n *Node) InsertChild(tag string, child *Node) {
	if n.Kind != ElementNode {
		n.Kind = ElementNode
	}
	if i, ok := n.slotIndex(tag); ok {
		cur := n.Slots[i].Node
		if cur.Kind == ListNode {
			cur.Items = append(cur.Items, child)
			return
		}
		n.Slots[i].Node = NewList(cur, child)
		return
	}
	if n.index == nil {
		n.index = make(map[string]int, 4)
	}
	n.index[tag] = len(n.Slots)
	n.Slots = append(n.Slots, Slot{Tag: tag, Node: child})
}

// SetChild replaces the slot for tag, appending it when missing.
func (n *Node) SetChild(tag string, child *Node) {
	if i, ok := n.slotIndex(tag); ok {
		n.Slots[i].Node = child
		return
	}
	n.InsertChild(tag, child)
}

func (n *Node) slotIndex(tag string) (int, bool) {
	if n.index == nil {
		if len(n.Slots) == 0 {
			return 0, false
		}
		n.index = make(map[string]int, len(n.Slots))
		for i, s := range n.Slots {
			n.index[s.Tag] = i
		}
	}
	i, ok := n.index[tag]
	return i, ok
}

// SetAttr sets an attribute, keeping the original position when it exists.
func (n *Node) SetAttr(name, value string) {
	if n.Kind != ElementNode {
		n.Kind = ElementNode
	}
	for i := range n.Attrs {
		if n.Attrs[i].Name == name {
			n.Attrs[i].Value = value
			return
		}
	}
	n.Attrs = append(n.Attrs, Attr{Name: name, Value: value})
}

// Attr returns the named attribute.
func (n *Node) Attr(name string) (string, bool) {
	if n == nil {
		return "", false
	}
	for _, a := range n.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// AttrOr returns the named attribute or def.
func (n *Node) AttrOr(name, def string) string {
	if v, ok := n.Attr(name); ok {
		return v
	}
	return def
}

// AttrMap copies the attributes into a map.
func (n *Node) AttrMap() map[string]string {
	if n == nil {
		return map[string]string{}
	}
	out := make(map[string]string, len(n.Attrs))
	for _, a := range n.Attrs {
		out[a.Name] = a.Value
	}
	return out
}

// Child returns the slot stored under tag, which may be a list. Nil when absent.
func (n *Node) Child(tag string) *Node {
	if n == nil || n.Kind != ElementNode {
		return nil
	}
	i, ok := n.slotIndex(tag)
	if !ok {
		return nil
	}
	return n.Slots[i].Node
}

// Children returns every node stored under tag as a slice, flattening lists.
func (n *Node) Children(tag string) []*Node {
	return n.Child(tag).All()
}

// All returns the items of a list, or n itself as a one-element slice.
func (n *Node) All() []*Node {
	if n == nil {
		return nil
	}
	if n.Kind == ListNode {
		return n.Items
	}
	return []*Node{n}
}

// Len is the number of items a slot holds: 0 for nil, list length, else 1.
func (n *Node) Len() int {
	if n == nil {
		return 0
	}
	if n.Kind == ListNode {
		return len(n.Items)
	}
	return 1
}

// Path walks nested single child slots. A list on the way resolves to its first item.
func (n *Node) Path(tags ...string) *Node {
	cur := n
	for _, t := range tags {
		cur = cur.Child(t)
		if cur == nil {
			return nil
		}
		if cur.Kind == ListNode {
			if len(cur.Items) == 0 {
				return nil
			}
			cur = cur.Items[0]
		}
	}
	return cur
}

// Value resolves a key: "@NAME" reads an attribute, anything else the text of a child.
func (n *Node) Value(key string) (string, bool) {
	if strings.HasPrefix(key, AttrPrefix) {
		return n.Attr(key[len(AttrPrefix):])
	}
	c := n.Child(key)
	if c == nil || c.Kind != TextNode {
		return "", false
	}
	return c.Text, true
}

// String returns the text of a text node and "" for everything else.
func (n *Node) String() string {
	if n == nil || n.Kind != TextNode {
		return ""
	}
	return n.Text
}

// Clone deep-copies n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := &Node{Kind: n.Kind, Text: n.Text}
	if len(n.Attrs) > 0 {
		c.Attrs = append([]Attr(nil), n.Attrs...)
	}
	for _, s := range n.Slots {
		c.Slots = append(c.Slots, Slot{Tag: s.Tag, Node: s.Node.Clone()})
	}
	for _, it := range n.Items {
		c.Items = append(c.Items, it.Clone())
	}
	return c
}
