package olx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olx-analyzer/backend/internal/models"
)

// MaxTerminals is the highest terminal index a connectivity block uses.
const MaxTerminals = 3

// Record is a view over one OLXREC or CHANGEREC element. Changes made
// through it write into the underlying document.
type Record struct {
	node *models.Node
}

// NewRecord wraps an OLXREC or CHANGEREC node.
func NewRecord(n *models.Node) *Record {
	return &Record{node: n}
}

// Node returns the underlying element.
func (r *Record) Node() *models.Node { return r.node }

func (r *Record) ObjType() string { return r.node.AttrOr("OBJTYPE", "") }
func (r *Record) NetID() string   { return r.node.AttrOr("OLNETID", "") }
func (r *Record) GUID() string    { return r.node.AttrOr("OBJGUID", "") }

// Action is the change action of a CHANGEREC, empty for case records.
func (r *Record) Action() models.Action {
	return models.Action(r.node.AttrOr("ACTION", ""))
}

// Connectivity returns the record's own OLNETFIELD rows in document order.
func (r *Record) Connectivity() []models.Attr {
	olnet := r.node.Path("OLNET")
	if olnet == nil {
		return nil
	}
	return decodeConn(olnet).Fields
}

// Conn returns one OLNETFIELD value.
func (r *Record) Conn(name string) string {
	for _, f := range r.Connectivity() {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Terminal is one bus a record connects to.
type Terminal struct {
	Index  int
	Name   string
	KV     float64
	Number int
	GUID   string
}

// Terminals lists BUSNAME<i>/BUSKV<i> pairs present in the connectivity block.
func (r *Record) Terminals() []Terminal {
	return terminalsOf(r.Connectivity())
}

func terminalsOf(fields []models.Attr) []Terminal {
	get := func(name string) (string, bool) {
		for _, f := range fields {
			if f.Name == name {
				return f.Value, true
			}
		}
		return "", false
	}
	var out []Terminal
	for i := 1; i <= MaxTerminals; i++ {
		name, ok := get(fmt.Sprintf("BUSNAME%d", i))
		if !ok {
			continue
		}
		t := Terminal{Index: i, Name: name}
		if kv, ok := get(fmt.Sprintf("BUSKV%d", i)); ok {
			t.KV, _ = strconv.ParseFloat(strings.TrimSpace(kv), 64)
		}
		if no, ok := get(fmt.Sprintf("BUSNO%d", i)); ok {
			t.Number, _ = strconv.Atoi(strings.TrimSpace(no))
		}
		t.GUID, _ = get(fmt.Sprintf("BUSGUID%d", i))
		out = append(out, t)
	}
	return out
}

// DataFields returns every DATAFIELD element.
func (r *Record) DataFields() []*models.Node {
	return r.node.Children("DATAFIELD")
}

func (r *Record) dataField(name string) *models.Node {
	for _, f := range r.DataFields() {
		if f.AttrOr("NAME", "") == name {
			return f
		}
	}
	return nil
}

// Field decodes a DATAFIELD through the field-kind schema.
func (r *Record) Field(name string) (FieldValue, bool) {
	f := r.dataField(name)
	if f == nil {
		return FieldValue{}, false
	}
	kind := KindOf(r.ObjType(), name)
	if kind == ConnectivityListField {
		return decodeConnList(f.Child("VALUE")), true
	}
	return decodeScalar(kind, f.AttrOr("VALUE", "")), true
}

// FieldString is Field rendered as text, or "" when absent.
func (r *Record) FieldString(name string) string {
	v, ok := r.Field(name)
	if !ok {
		return ""
	}
	return v.String()
}

// SetField writes a DATAFIELD, appending it when missing.
func (r *Record) SetField(name string, v FieldValue) {
	f := r.dataField(name)
	if f == nil {
		f = models.NewElement()
		r.node.InsertChild("DATAFIELD", f)
	}
	if v.Kind == ConnectivityListField {
		f.SetAttr("NAME", name)
		f.SetChild("VALUE", encodeConnList(v.Conns))
		return
	}
	f.SetAttr("VALUE", v.String())
	f.SetAttr("NAME", name)
}

// HasScope reports whether a CHANGEREC carries an OBJSCOPE block.
func (r *Record) HasScope() bool {
	return r.node.Child("OBJSCOPE") != nil
}

// ScopeFields returns SCOPEFIELD rows in document order. Names may repeat.
func (r *Record) ScopeFields() []models.Attr {
	scope := r.node.Path("OBJSCOPE")
	if scope == nil {
		return nil
	}
	var out []models.Attr
	for _, f := range scope.Children("SCOPEFIELD") {
		name, ok := f.Attr("NAME")
		if !ok {
			continue
		}
		out = append(out, models.Attr{Name: name, Value: f.AttrOr("VALUE", "")})
	}
	return out
}

// ChangeField is one CHANGEFIELD of a diff record, decoded per action:
// DELETE carries only Before, ADD only After, MODIFY both.
type ChangeField struct {
	Label     string
	Name      string
	Kind      FieldKind
	Before    FieldValue
	After     FieldValue
	HasBefore bool
	HasAfter  bool
}

// ChangeFields decodes every CHANGEFIELD of a CHANGEREC.
func (r *Record) ChangeFields() []ChangeField {
	action := r.Action()
	objType := r.ObjType()
	var out []ChangeField
	for _, f := range r.node.Children("CHANGEFIELD") {
		name := f.AttrOr("NAME", "")
		cf := ChangeField{Label: f.AttrOr("LABEL", ""), Name: name, Kind: KindOf(objType, name)}
		read := func(key string) (FieldValue, bool) {
			if cf.Kind == ConnectivityListField {
				c := f.Child(key)
				if c == nil {
					return FieldValue{}, false
				}
				return decodeConnList(c), true
			}
			raw, ok := f.Attr(key)
			if !ok {
				return FieldValue{}, false
			}
			return decodeScalar(cf.Kind, raw), true
		}
		switch action {
		case models.ActionModify:
			cf.Before, cf.HasBefore = read("VALUEA")
			cf.After, cf.HasAfter = read("VALUEB")
		case models.ActionDelete:
			cf.Before, cf.HasBefore = read("VALUE")
		default:
			cf.After, cf.HasAfter = read("VALUE")
		}
		out = append(out, cf)
	}
	return out
}

func atoiList(s string) []int {
	var out []int
	for _, p := range strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' }) {
		if v, err := strconv.Atoi(p); err == nil {
			out = append(out, v)
		}
	}
	return out
}
