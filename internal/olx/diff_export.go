package olx

import (
	"fmt"
	"io"

	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/parser"
)

// ExportFull writes the whole diff back in its original shape.
func (d *Diff) ExportFull(w io.Writer) error {
	xw := parser.NewWriter(w)
	xw.Header()
	xw.Node(parser.DiffRootTag, d.root)
	return xw.Flush()
}

// ExportFiltered writes the records whose mask entry is set, in document
// order, with CHANGESTAT recomputed from what was written.
func (d *Diff) ExportFiltered(mask []bool, w io.Writer) error {
	if len(mask) != len(d.records) {
		return fmt.Errorf("filter mask has %d entries for %d records: %w", len(mask), len(d.records), models.ErrInvalidArgument)
	}
	var kept []*Record
	for i, r := range d.records {
		if mask[i] {
			kept = append(kept, r)
		}
	}

	xw := parser.NewWriter(w)
	xw.Header()
	xw.Start(parser.DiffRootTag, d.root.Attrs...)
	for _, s := range d.root.Slots {
		if s.Tag != parser.DiffBodyTag {
			xw.Node(s.Tag, s.Node)
			continue
		}
		writeDiffBody(xw, d.body, kept)
	}
	xw.End(parser.DiffRootTag)
	return xw.Flush()
}

func writeDiffBody(xw *parser.Writer, body *models.Node, kept []*Record) {
	xw.Start(parser.DiffBodyTag, body.Attrs...)
	counts := CountChanges(kept)
	wroteStat := false
	for _, s := range body.Slots {
		switch s.Tag {
		case "CHANGESTAT":
			xw.Empty("CHANGESTAT", statAttrs(s.Node.Attrs, counts)...)
			wroteStat = true
		case "CHANGEREC":
			if !wroteStat {
				xw.Empty("CHANGESTAT", statAttrs(nil, counts)...)
				wroteStat = true
			}
			for _, r := range kept {
				xw.Node("CHANGEREC", r.node)
			}
		default:
			xw.Node(s.Tag, s.Node)
		}
	}
	xw.End(parser.DiffBodyTag)
}

// ExportFullFile writes ExportFull output to path.
func (d *Diff) ExportFullFile(path string) error {
	return writeFile(path, d.ExportFull)
}

// ExportFilteredFile writes ExportFiltered output to path.
func (d *Diff) ExportFilteredFile(mask []bool, path string) error {
	return writeFile(path, func(w io.Writer) error { return d.ExportFiltered(mask, w) })
}
