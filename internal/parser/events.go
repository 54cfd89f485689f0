package parser

import (
	"encoding/xml"
	"io"

	"github.com/olx-analyzer/backend/internal/models"
)

// TokenReader is an xml.Decoder with charset support whose errors are
// already classified as I/O failures or FormatErrors. io.EOF passes through.
type TokenReader struct {
	d     *xml.Decoder
	tr    *trackingReader
	label string
}

// NewTokenReader wraps r. label names the input in errors.
func NewTokenReader(r io.Reader, label string) *TokenReader {
	d, tr := newDecoder(r)
	return &TokenReader{d: d, tr: tr, label: label}
}

// Token returns the next raw token.
func (t *TokenReader) Token() (xml.Token, error) {
	tok, err := t.d.Token()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, classify(err, t.tr, t.label)
	}
	return tok, nil
}

// InputOffset is the number of bytes consumed so far.
func (t *TokenReader) InputOffset() int64 {
	return t.d.InputOffset()
}

// Folder applies the document folding rules to events supplied by a
// caller-driven loop. It holds only the currently open elements.
type Folder struct {
	b *builder
}

// NewFolder returns an idle folder.
func NewFolder() *Folder {
	return &Folder{b: newBuilder()}
}

// Start opens an element.
func (f *Folder) Start(se xml.StartElement) {
	f.b.open(se)
}

// CharData appends text to the innermost open element.
func (f *Folder) CharData(cd xml.CharData) {
	f.b.text(cd)
}

// End closes the innermost element. done is true when it was the outermost
// one, in which case node is the completed subtree.
func (f *Folder) End() (node *models.Node, done bool) {
	node = f.b.close()
	return node, f.b.depth() == 0
}

// Depth is the number of open elements.
func (f *Folder) Depth() int {
	return f.b.depth()
}

// Elements counts elements closed since the folder was created.
func (f *Folder) Elements() int {
	return f.b.elements
}
