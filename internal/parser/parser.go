package parser

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/golang/glog"
	"github.com/olx-analyzer/backend/internal/models"
)

// ProgressCallback is called periodically during parsing to report progress.
// Progress is purely observational and never affects the result.
type ProgressCallback func(elementsProcessed int, bytesProcessed int64, totalBytes int64)

// DefaultProgressEvery is how many closed elements pass between progress reports.
const DefaultProgressEvery = 20000

// ParseOptions controls ParseDocument.
type ParseOptions struct {
	// SizeHint is the approximate input size used for progress reporting.
	SizeHint int64
	// Label prefixes progress log lines.
	Label string
	// StopAtTag halts at the first start tag with this name and returns what
	// has been folded so far.
	StopAtTag string
	// ProgressEvery overrides DefaultProgressEvery.
	ProgressEvery int
	OnProgress    ProgressCallback
}

// frame is one open element on the builder stack.
type frame struct {
	node *models.Node
	text strings.Builder
}

// builder folds start/end/text events into the document model.
// Each element owns its frame while open; closing it pops the frame, so no
// bookkeeping outlives the element.
type builder struct {
	stack    []*frame
	names    *StringIntern
	elements int
}

func newBuilder() *builder {
	return &builder{names: NewStringIntern()}
}

// open pushes a new element. With an empty stack the element becomes a base
// frame not attached to any parent.
func (b *builder) open(se xml.StartElement) *models.Node {
	node := &models.Node{Kind: models.ElementNode}
	if len(se.Attr) > 0 {
		node.Attrs = make([]models.Attr, 0, len(se.Attr))
		for _, a := range se.Attr {
			node.Attrs = append(node.Attrs, models.Attr{
				Name:  b.names.Intern(attrName(a.Name)),
				Value: a.Value,
			})
		}
	}
	if n := len(b.stack); n > 0 {
		b.stack[n-1].node.InsertChild(b.names.Intern(se.Name.Local), node)
	}
	b.stack = append(b.stack, &frame{node: node})
	return node
}

func (b *builder) text(cd xml.CharData) {
	if n := len(b.stack); n > 0 {
		b.stack[n-1].text.Write(cd)
	}
}

// close pops the innermost element and decides its final variant.
func (b *builder) close() *models.Node {
	n := len(b.stack)
	f := b.stack[n-1]
	b.stack[n-1] = nil
	b.stack = b.stack[:n-1]
	b.elements++

	node := f.node
	text := f.text.String()
	blank := strings.TrimSpace(text) == ""
	switch {
	case len(node.Attrs) == 0 && len(node.Slots) == 0 && blank:
		node.Kind = models.NullNode
	case len(node.Attrs) == 0 && len(node.Slots) == 0:
		node.Kind = models.TextNode
		node.Text = text
	case !blank:
		node.Text = text
	}
	return node
}

func (b *builder) depth() int { return len(b.stack) }

func attrName(n xml.Name) string {
	switch {
	case n.Space == "":
		return n.Local
	case n.Space == "xmlns":
		return "xmlns:" + n.Local
	}
	return n.Local
}

// trackingReader remembers the first read error so decoder failures caused by
// I/O can be told apart from malformed XML.
type trackingReader struct {
	r   io.Reader
	err error
}

func (t *trackingReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if err != nil && err != io.EOF && t.err == nil {
		t.err = err
	}
	return n, err
}

func newDecoder(r io.Reader) (*xml.Decoder, *trackingReader) {
	tr := &trackingReader{r: r}
	d := xml.NewDecoder(tr)
	d.CharsetReader = charsetReader
	return d, tr
}

// classify turns a decoder error into an I/O error or a FormatError.
func classify(err error, tr *trackingReader, label string) error {
	if tr.err != nil && errors.Is(err, tr.err) {
		return fmt.Errorf("reading %s: %w", label, err)
	}
	return &models.FormatError{Path: label, Err: err}
}

// ParseDocument converts an XML byte stream into a nested document.
//
// The returned node is a wrapper element holding one slot named after the
// root tag. Repeated child tags become lists, text-only elements collapse to
// text and empty elements to null.
func ParseDocument(r io.Reader, opts ParseOptions) (*models.Node, error) {
	every := opts.ProgressEvery
	if every <= 0 {
		every = DefaultProgressEvery
	}
	label := opts.Label
	if label == "" {
		label = "document"
	}

	d, tr := newDecoder(r)
	b := newBuilder()
	root := models.NewElement()
	b.stack = append(b.stack, &frame{node: root})

	for {
		tok, err := d.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, classify(err, tr, label)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if opts.StopAtTag != "" && t.Name.Local == opts.StopAtTag {
				glog.V(1).Infof("[Parse] %s: stopped at <%s> after %d elements\n", label, t.Name.Local, b.elements)
				return root, nil
			}
			b.open(t)
		case xml.EndElement:
			b.close()
			if b.elements%every == 0 {
				offset := d.InputOffset()
				if opts.OnProgress != nil {
					opts.OnProgress(b.elements, offset, opts.SizeHint)
				}
				if glog.V(1) {
					glog.Infof("[Parse] %s: %d elements, %s\n", label, b.elements, progressText(offset, opts.SizeHint))
				}
			}
		case xml.CharData:
			b.text(t)
		}
	}

	if len(root.Slots) == 0 {
		return nil, &models.FormatError{Path: label, Err: errors.New("empty document")}
	}
	if opts.OnProgress != nil {
		opts.OnProgress(b.elements, d.InputOffset(), opts.SizeHint)
	}
	return root, nil
}

// ParseFile opens path (gzip aware) and parses it with ParseDocument.
func ParseFile(path string, opts ParseOptions) (*models.Node, error) {
	src, err := OpenSource(path)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	if opts.SizeHint == 0 {
		opts.SizeHint = src.Size
	}
	if opts.Label == "" {
		opts.Label = path
	}
	return ParseDocument(src, opts)
}

// RootTag returns the tag of the single root slot of a parsed document.
func RootTag(doc *models.Node) string {
	if doc == nil || len(doc.Slots) == 0 {
		return ""
	}
	return doc.Slots[0].Tag
}

func progressText(done, total int64) string {
	if total <= 0 {
		return fmt.Sprintf("%.1f MB read", float64(done)/1e6)
	}
	return fmt.Sprintf("%.1f/%.1f MB (%.0f%%)", float64(done)/1e6, float64(total)/1e6, float64(done)*100/float64(total))
}
