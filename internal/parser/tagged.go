package parser

import (
	"encoding/xml"
	"io"

	"github.com/olx-analyzer/backend/internal/models"
)

// TaggedIterator yields one document per occurrence of a target tag,
// discarding everything outside the matching subtrees.
//
// Iteration is lazy and single pass: stopping early leaves the rest of the
// input unread, and a consumed iterator cannot be restarted.
//
//	it := parser.NewTaggedIterator(r, "CHANGEREC")
//	for it.Next() {
//		rec := it.Node()
//	}
//	if err := it.Err(); err != nil { ... }
type TaggedIterator struct {
	d      *xml.Decoder
	tr     *trackingReader
	target string
	label  string

	b      *builder
	active bool
	cur    *models.Node
	err    error
	done   bool
	count  int
}

// NewTaggedIterator reads r and yields every <target> element.
func NewTaggedIterator(r io.Reader, target string) *TaggedIterator {
	d, tr := newDecoder(r)
	return &TaggedIterator{d: d, tr: tr, target: target, label: target, b: newBuilder()}
}

// Next advances to the next matching element.
func (it *TaggedIterator) Next() bool {
	if it.done {
		return false
	}
	it.cur = nil
	for {
		tok, err := it.d.Token()
		if err == io.EOF {
			it.done = true
			return false
		}
		if err != nil {
			it.err = classify(err, it.tr, it.label)
			it.done = true
			return false
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if !it.active {
				if t.Name.Local != it.target {
					continue
				}
				it.active = true
			}
			it.b.open(t)
		case xml.EndElement:
			if !it.active {
				continue
			}
			node := it.b.close()
			if it.b.depth() == 0 {
				it.active = false
				it.cur = node
				it.count++
				return true
			}
		case xml.CharData:
			if it.active {
				it.b.text(t)
			}
		}
	}
}

// Node returns the element produced by the last successful Next.
func (it *TaggedIterator) Node() *models.Node {
	return it.cur
}

// Err returns the first error met while iterating.
func (it *TaggedIterator) Err() error {
	return it.err
}

// Count is the number of elements yielded so far.
func (it *TaggedIterator) Count() int {
	return it.count
}

// PeekTag returns the first <target> element of r, or nil when there is none.
func PeekTag(r io.Reader, target string) (*models.Node, error) {
	it := NewTaggedIterator(r, target)
	if it.Next() {
		return it.Node(), nil
	}
	return nil, it.Err()
}

// PeekFileTag opens path and returns its first <target> element.
func PeekFileTag(path, target string) (*models.Node, error) {
	src, err := OpenSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	it := NewTaggedIterator(src, target)
	it.label = path
	if it.Next() {
		return it.Node(), nil
	}
	return nil, it.Err()
}
