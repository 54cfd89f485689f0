package parser

import (
	"bufio"
	"encoding/xml"
	"io"
	"strings"

	"github.com/olx-analyzer/backend/internal/models"
)

// Writer emits indented XML in the layout the engine writes its own exports.
// The first write error sticks and is returned by Flush.
type Writer struct {
	w      *bufio.Writer
	depth  int
	indent string
	err    error
}

// NewWriter wraps w with a buffered XML writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriterSize(w, 64*1024), indent: "  "}
}

// Header writes the XML declaration.
func (x *Writer) Header() {
	x.raw(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
}

// Start opens tag on its own line.
func (x *Writer) Start(tag string, attrs ...models.Attr) {
	x.pad()
	x.open(tag, attrs)
	x.raw(">\n")
	x.depth++
}

// Empty writes a self-closing element.
func (x *Writer) Empty(tag string, attrs ...models.Attr) {
	x.pad()
	x.open(tag, attrs)
	x.raw("/>\n")
}

// TextElement writes <tag>text</tag> on one line.
func (x *Writer) TextElement(tag, text string, attrs ...models.Attr) {
	x.pad()
	x.open(tag, attrs)
	x.raw(">")
	x.escape(text)
	x.raw("</" + tag + ">\n")
}

// End closes tag.
func (x *Writer) End(tag string) {
	x.depth--
	x.pad()
	x.raw("</" + tag + ">\n")
}

// Node writes n under tag, expanding lists into repeated siblings.
func (x *Writer) Node(tag string, n *models.Node) {
	if n == nil {
		return
	}
	switch n.Kind {
	case models.NullNode:
		x.Empty(tag)
	case models.TextNode:
		x.TextElement(tag, n.Text)
	case models.ListNode:
		for _, it := range n.Items {
			x.Node(tag, it)
		}
	case models.ElementNode:
		text := strings.TrimSpace(n.Text)
		switch {
		case len(n.Slots) == 0 && text == "":
			x.Empty(tag, n.Attrs...)
		case len(n.Slots) == 0:
			x.TextElement(tag, n.Text, n.Attrs...)
		default:
			x.Start(tag, n.Attrs...)
			if text != "" {
				x.pad()
				x.escape(text)
				x.raw("\n")
			}
			for _, s := range n.Slots {
				x.Node(s.Tag, s.Node)
			}
			x.End(tag)
		}
	}
}

// Flush writes buffered output and reports the first error seen.
func (x *Writer) Flush() error {
	if x.err != nil {
		return x.err
	}
	x.err = x.w.Flush()
	return x.err
}

func (x *Writer) open(tag string, attrs []models.Attr) {
	x.raw("<" + tag)
	for _, a := range attrs {
		x.raw(" " + a.Name + `="`)
		x.escape(a.Value)
		x.raw(`"`)
	}
}

func (x *Writer) pad() {
	for i := 0; i < x.depth; i++ {
		x.raw(x.indent)
	}
}

func (x *Writer) raw(s string) {
	if x.err != nil {
		return
	}
	_, x.err = x.w.WriteString(s)
}

func (x *Writer) escape(s string) {
	if x.err != nil {
		return
	}
	x.err = xml.EscapeText(x.w, []byte(s))
}

// A builds an attribute list from name/value pairs.
func A(pairs ...string) []models.Attr {
	out := make([]models.Attr, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		out = append(out, models.Attr{Name: pairs[i], Value: pairs[i+1]})
	}
	return out
}
