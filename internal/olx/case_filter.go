package olx

import (
	"strconv"
	"strings"

	"github.com/olx-analyzer/backend/internal/filter"
	"github.com/olx-analyzer/backend/internal/models"
)

// FilteredData evaluates pred against every record of every non-empty table.
//
// The first map holds, per object type, the matching records when filterOut
// is set and all records otherwise; types left without records are omitted.
// The second map holds the raw per-record match results in table order.
func (c *Case) FilteredData(pred *filter.Options, filterOut bool) (map[string][]*Record, map[string][]bool) {
	if pred == nil {
		pred = filter.Default()
	}
	selected := make(map[string][]*Record)
	flags := make(map[string][]bool)

	for _, table := range c.root.Children("OLXDBTABLE") {
		recs := recordsOf(table)
		if len(recs) == 0 {
			continue
		}
		name := table.AttrOr("NAME", "")
		results := make([]bool, len(recs))
		var keep []*Record
		for i, r := range recs {
			results[i] = pred.Matches(c.Scope(r))
			if results[i] || !filterOut {
				keep = append(keep, r)
			}
		}
		flags[name] = results
		if len(keep) > 0 {
			selected[name] = keep
		}
	}
	return selected, flags
}

// Scope resolves the filter values of a case record. Terminal buses are
// looked up in the bus index so areas, zones and numbers come from the bus
// records themselves.
func (c *Case) Scope(r *Record) filter.Scope {
	s := filter.Scope{ObjType: r.ObjType(), GUID: r.GUID()}
	switch s.ObjType {
	case models.ObjBus:
		b := busFromRecord(r)
		s.Areas = []int{b.Area}
		s.Zones = []int{b.Zone}
		s.KVs = []float64{b.KV}
		s.BusNumbers = []int{b.Number}
		return s
	case models.ObjArea:
		s.Areas = atoiList(r.FieldString(FieldAreaNo))
		return s
	case models.ObjZone:
		s.Zones = atoiList(r.FieldString(FieldZoneNo))
		return s
	}

	index := c.BusIndex()
	for _, t := range r.Terminals() {
		s.KVs = append(s.KVs, t.KV)
		if b, ok := index[BusKey{Name: t.Name, KV: t.KV}]; ok {
			s.Areas = append(s.Areas, b.Area)
			s.Zones = append(s.Zones, b.Zone)
			s.BusNumbers = append(s.BusNumbers, b.Number)
			continue
		}
		if t.Number != 0 {
			s.BusNumbers = append(s.BusNumbers, t.Number)
		}
	}
	if ckt := strings.TrimSpace(r.Conn(FieldCktID)); ckt != "" {
		s.CircuitIDs = append(s.CircuitIDs, ckt)
	}
	return s
}

// diffScope reads the OBJSCOPE block of a change record.
func diffScope(r *Record) filter.Scope {
	s := filter.Scope{ObjType: r.ObjType(), Action: r.Action(), GUID: r.GUID()}
	if !r.HasScope() {
		s.Missing = true
		return s
	}
	for _, f := range r.ScopeFields() {
		v := strings.TrimSpace(f.Value)
		switch f.Name {
		case "AREA":
			s.Areas = append(s.Areas, atoiList(v)...)
		case "ZONE":
			s.Zones = append(s.Zones, atoiList(v)...)
		case "BUSNO":
			s.BusNumbers = append(s.BusNumbers, atoiList(v)...)
		case "KV":
			for _, p := range strings.Fields(strings.ReplaceAll(v, ",", " ")) {
				if kv, err := strconv.ParseFloat(p, 64); err == nil {
					s.KVs = append(s.KVs, kv)
				}
			}
		case "CKTID":
			if v != "" {
				s.CircuitIDs = append(s.CircuitIDs, v)
			}
		}
	}
	return s
}
