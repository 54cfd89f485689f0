package olx

import (
	"fmt"
	"strconv"

	"github.com/oklog/ulid/v2"
	"github.com/olx-analyzer/backend/internal/models"
)

// ModelEntry is one object in a diff model: a flat field map merged from
// the connectivity, scope and change fields of one record.
type ModelEntry struct {
	Key     string               `json:"key" msgpack:"key"`
	ObjType string               `json:"objType" msgpack:"objType"`
	GUID    string               `json:"guid" msgpack:"guid"`
	Fields  map[string]string    `json:"fields" msgpack:"fields"`
	Lists   map[string][]ConnRef `json:"lists,omitempty" msgpack:"lists,omitempty"`
	// Unresolved names the terminals that were not found in the reference
	// case; their stored GUID and bus number may be stale.
	Unresolved []string `json:"unresolved,omitempty" msgpack:"unresolved,omitempty"`
}

// DiffModel groups the entries by direction. A MODIFY record appears in
// both ForwardModify (after values) and ReverseModify (before values)
// under the same key.
type DiffModel struct {
	Add           map[string]*ModelEntry `json:"add" msgpack:"add"`
	Delete        map[string]*ModelEntry `json:"delete" msgpack:"delete"`
	ForwardModify map[string]*ModelEntry `json:"forwardModify" msgpack:"forwardModify"`
	ReverseModify map[string]*ModelEntry `json:"reverseModify" msgpack:"reverseModify"`
}

// Len is the number of entries over all groups.
func (m *DiffModel) Len() int {
	return len(m.Add) + len(m.Delete) + len(m.ForwardModify) + len(m.ReverseModify)
}

// keyless types do not keep their GUID between the two compared cases.
var keyless = map[string]bool{
	models.ObjLTC:  true,
	models.ObjLTC3: true,
}

// BuildDiffModel rebuilds flat field maps for every record and reconciles
// terminal GUIDs and bus numbers against ref's bus index. ref may be nil,
// in which case no reconciliation happens.
//
// LTC and LTC3 records get a fresh random key on every call, so their
// before and after entries cannot be correlated across calls.
func (d *Diff) BuildDiffModel(ref *Case) *DiffModel {
	m := &DiffModel{
		Add:           make(map[string]*ModelEntry),
		Delete:        make(map[string]*ModelEntry),
		ForwardModify: make(map[string]*ModelEntry),
		ReverseModify: make(map[string]*ModelEntry),
	}
	var index map[BusKey]Bus
	if ref != nil {
		index = ref.BusIndex()
	}

	for _, r := range d.records {
		key := r.GUID()
		if key == "" || keyless[r.ObjType()] {
			key = ulid.Make().String()
		}
		switch r.Action() {
		case models.ActionAdd:
			m.Add[key] = buildEntry(r, key, false, index)
		case models.ActionDelete:
			m.Delete[key] = buildEntry(r, key, true, index)
		case models.ActionModify:
			m.ForwardModify[key] = buildEntry(r, key, false, index)
			m.ReverseModify[key] = buildEntry(r, key, true, index)
		}
	}
	return m
}

func buildEntry(r *Record, key string, before bool, index map[BusKey]Bus) *ModelEntry {
	e := &ModelEntry{
		Key:     key,
		ObjType: r.ObjType(),
		GUID:    r.GUID(),
		Fields:  make(map[string]string),
	}
	for _, f := range r.Connectivity() {
		e.Fields[f.Name] = f.Value
	}
	for _, f := range r.ScopeFields() {
		if cur, ok := e.Fields[f.Name]; ok && cur != f.Value {
			e.Fields[f.Name] = cur + "," + f.Value
			continue
		}
		e.Fields[f.Name] = f.Value
	}
	for _, cf := range r.ChangeFields() {
		v, ok := cf.After, cf.HasAfter
		if before {
			v, ok = cf.Before, cf.HasBefore
		}
		if !ok {
			continue
		}
		if cf.Kind == ConnectivityListField {
			if e.Lists == nil {
				e.Lists = make(map[string][]ConnRef)
			}
			conns := make([]ConnRef, len(v.Conns))
			for i, c := range v.Conns {
				conns[i] = c.clone()
			}
			e.Lists[cf.Name] = conns
			continue
		}
		e.Fields[cf.Name] = v.String()
	}

	if index != nil {
		e.Unresolved = reconcileFields(e.Fields, index)
		for name, conns := range e.Lists {
			for i := range conns {
				miss := reconcileConn(&conns[i], index)
				for _, u := range miss {
					e.Unresolved = append(e.Unresolved, fmt.Sprintf("%s[%d].%s", name, i, u))
				}
			}
		}
	}
	return e
}

// reconcileFields overwrites BUSGUID<i> and BUSNO<i> from the bus index and
// returns the terminals that could not be matched.
func reconcileFields(fields map[string]string, index map[BusKey]Bus) []string {
	var miss []string
	for i := 1; i <= MaxTerminals; i++ {
		name, ok := fields[fmt.Sprintf("BUSNAME%d", i)]
		if !ok {
			continue
		}
		kv, _ := strconv.ParseFloat(fields[fmt.Sprintf("BUSKV%d", i)], 64)
		b, ok := index[BusKey{Name: name, KV: kv}]
		if !ok {
			miss = append(miss, fmt.Sprintf("BUSNAME%d=%s %gkV", i, name, kv))
			continue
		}
		fields[fmt.Sprintf("BUSGUID%d", i)] = b.GUID
		if b.Number != 0 {
			fields[fmt.Sprintf("BUSNO%d", i)] = strconv.Itoa(b.Number)
		}
	}
	return miss
}

func reconcileConn(c *ConnRef, index map[BusKey]Bus) []string {
	fields := make(map[string]string, len(c.Fields))
	for _, f := range c.Fields {
		fields[f.Name] = f.Value
	}
	miss := reconcileFields(fields, index)
	for i := 1; i <= MaxTerminals; i++ {
		for _, k := range []string{fmt.Sprintf("BUSGUID%d", i), fmt.Sprintf("BUSNO%d", i)} {
			if v, ok := fields[k]; ok && v != c.Get(k) {
				c.Set(k, v)
			}
		}
	}
	return miss
}
