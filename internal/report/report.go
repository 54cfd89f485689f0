// Package report renders change records as human readable lines.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/olx-analyzer/backend/internal/filter"
	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/olx"
)

// Style picks how buses are named in a line.
type Style struct {
	// BusNumber prefixes each bus with its number when one is known.
	BusNumber bool
	// Anafas names buses by number alone, zero padded to five digits.
	Anafas bool
}

// StyleFor derives the bus naming from comparison options.
func StyleFor(opts *filter.Options) Style {
	if opts == nil {
		return Style{}
	}
	return Style{BusNumber: opts.UseBusNumber, Anafas: opts.AnafasFormat}
}

func (s Style) bus(t olx.Terminal) string {
	switch {
	case s.Anafas && t.Number > 0:
		return fmt.Sprintf("%05d", t.Number)
	case s.BusNumber && t.Number > 0:
		return fmt.Sprintf("%d '%s' %gkV", t.Number, t.Name, t.KV)
	}
	return fmt.Sprintf("'%s' %gkV", t.Name, t.KV)
}

// Describe names a record by type, terminals and circuit ID.
func (s Style) Describe(rec *olx.Record) string {
	var b strings.Builder
	b.WriteString(rec.ObjType())
	terms := rec.Terminals()
	for i, t := range terms {
		if i == 0 {
			b.WriteByte(' ')
		} else {
			b.WriteString(" - ")
		}
		b.WriteString(s.bus(t))
	}
	if ckt := rec.Conn(olx.FieldCktID); ckt != "" {
		fmt.Fprintf(&b, " ckt %s", ckt)
	}
	if len(terms) == 0 {
		if g := rec.GUID(); g != "" {
			b.WriteString(" " + g)
		}
	}
	return b.String()
}

// Reporter writes one line per matching record, followed by its field changes.
type Reporter struct {
	w      io.Writer
	style  Style
	fields bool
	colors map[models.Action]*color.Color
	plain  *color.Color
	n      int
}

// New creates a reporter writing to w. Colors are used only when enabled.
func New(w io.Writer, style Style, colored bool) *Reporter {
	mk := func(attrs ...color.Attribute) *color.Color {
		c := color.New(attrs...)
		if colored {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
		return c
	}
	return &Reporter{
		w:      w,
		style:  style,
		fields: true,
		colors: map[models.Action]*color.Color{
			models.ActionAdd:    mk(color.FgGreen),
			models.ActionDelete: mk(color.FgRed),
			models.ActionModify: mk(color.FgYellow),
		},
		plain: mk(color.Bold),
	}
}

// Fields toggles the indented field detail under each record line.
func (r *Reporter) Fields(on bool) *Reporter {
	r.fields = on
	return r
}

// Count is the number of records written.
func (r *Reporter) Count() int { return r.n }

// Write reports one record.
func (r *Reporter) Write(rec *olx.Record) error {
	action := rec.Action()
	tag := string(action)
	if tag == "" {
		tag = "RECORD"
	}
	c, ok := r.colors[action]
	if !ok {
		c = r.plain
	}
	if _, err := fmt.Fprintf(r.w, "%s %s\n", c.Sprintf("%-6s", tag), r.style.Describe(rec)); err != nil {
		return err
	}
	r.n++
	if !r.fields {
		return nil
	}
	for _, f := range rec.ChangeFields() {
		if _, err := fmt.Fprintf(r.w, "    %s\n", fieldLine(f)); err != nil {
			return err
		}
	}
	return nil
}

// OnRecord adapts the reporter to olx.StreamOptions.OnRecord.
func (r *Reporter) OnRecord(_ int, rec *olx.Record, matched bool) error {
	if !matched {
		return nil
	}
	return r.Write(rec)
}

// Summary writes the CHANGESTAT style counts, one key per line in key order.
func (r *Reporter) Summary(stats map[string]int) error {
	keys := make([]string, 0, len(stats))
	for k := range stats {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	total := 0
	for _, k := range keys {
		total += stats[k]
		if _, err := fmt.Fprintf(r.w, "%-16s %d\n", k, stats[k]); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintf(r.w, "%s %d\n", r.plain.Sprintf("%-16s", "TOTAL"), total)
	return err
}

func fieldLine(f olx.ChangeField) string {
	name := f.Name
	if f.Label != "" && f.Label != f.Name {
		name = fmt.Sprintf("%s (%s)", f.Label, f.Name)
	}
	switch {
	case f.HasBefore && f.HasAfter:
		return fmt.Sprintf("%s: %s -> %s", name, f.Before.String(), f.After.String())
	case f.HasBefore:
		return fmt.Sprintf("%s: %s", name, f.Before.String())
	default:
		return fmt.Sprintf("%s: %s", name, f.After.String())
	}
}
