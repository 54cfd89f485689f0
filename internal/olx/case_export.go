package olx

import (
	"io"
	"os"
	"strconv"

	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/parser"
)

// ExportFull writes the whole case, including any in-place changes.
func (c *Case) ExportFull(w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	xw := parser.NewWriter(w)
	xw.Header()
	xw.Node(parser.CaseRootTag, c.root)
	return xw.Flush()
}

// ExportFiltered writes only the tables present in selected and, within
// each, the records whose GUID was selected, in original table order.
// RECCOUNT and matching OBJCOUNT entries are rewritten to the written counts.
func (c *Case) ExportFiltered(selected map[string][]*Record, w io.Writer) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	type plan struct {
		table *models.Node
		recs  []*models.Node
	}
	var plans []plan
	counts := make(map[string]int)
	for _, table := range c.root.Children("OLXDBTABLE") {
		name := table.AttrOr("NAME", "")
		sel, ok := selected[name]
		if !ok {
			continue
		}
		want := make(map[string]bool, len(sel))
		byNode := make(map[*models.Node]bool, len(sel))
		for _, r := range sel {
			if g := r.GUID(); g != "" {
				want[g] = true
			} else {
				byNode[r.node] = true
			}
		}
		p := plan{table: table}
		for _, n := range table.Children("OLXREC") {
			g := n.AttrOr("OBJGUID", "")
			if (g != "" && want[g]) || byNode[n] {
				p.recs = append(p.recs, n)
			}
		}
		counts[name] = len(p.recs)
		plans = append(plans, p)
	}

	xw := parser.NewWriter(w)
	xw.Header()
	xw.Start(parser.CaseRootTag, c.root.Attrs...)
	next := 0
	for _, s := range c.root.Slots {
		switch s.Tag {
		case "OLXDBTABLE":
			// Tables are written in one pass at the position of the slot.
			for ; next < len(plans); next++ {
				p := plans[next]
				xw.Start("OLXDBTABLE", withAttr(p.table.Attrs, "RECCOUNT", strconv.Itoa(len(p.recs)))...)
				for _, n := range p.recs {
					xw.Node("OLXREC", n)
				}
				for _, ts := range p.table.Slots {
					if ts.Tag != "OLXREC" {
						xw.Node(ts.Tag, ts.Node)
					}
				}
				xw.End("OLXDBTABLE")
			}
		case "OBJCOUNT":
			oc := s.Node.Clone()
			for i, a := range oc.Attrs {
				if n, ok := counts[a.Name]; ok {
					oc.Attrs[i].Value = strconv.Itoa(n)
				}
			}
			xw.Node(s.Tag, oc)
		default:
			xw.Node(s.Tag, s.Node)
		}
	}
	xw.End(parser.CaseRootTag)
	return xw.Flush()
}

// ExportFullFile writes ExportFull output to path.
func (c *Case) ExportFullFile(path string) error {
	return writeFile(path, c.ExportFull)
}

// ExportFilteredFile writes ExportFiltered output to path.
func (c *Case) ExportFilteredFile(selected map[string][]*Record, path string) error {
	return writeFile(path, func(w io.Writer) error { return c.ExportFiltered(selected, w) })
}

func writeFile(path string, fn func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// withAttr copies attrs with name set to value.
func withAttr(attrs []models.Attr, name, value string) []models.Attr {
	out := append([]models.Attr(nil), attrs...)
	for i := range out {
		if out[i].Name == name {
			out[i].Value = value
			return out
		}
	}
	return append(out, models.Attr{Name: name, Value: value})
}
