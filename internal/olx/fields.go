package olx

import (
	"strings"

	"github.com/olx-analyzer/backend/internal/models"
)

// FieldKind tells how a data or change field value is encoded.
type FieldKind uint8

const (
	// ScalarField is a single VALUE attribute.
	ScalarField FieldKind = iota
	// ScalarListField is a space separated list in one VALUE attribute.
	ScalarListField
	// ConnectivityListField holds nested <VALUE><OLNET>...</OLNET></VALUE> records.
	ConnectivityListField
	// ParamPairField is a tab delimited name/value sequence.
	ParamPairField
)

func (k FieldKind) String() string {
	switch k {
	case ScalarField:
		return "scalar"
	case ScalarListField:
		return "list"
	case ConnectivityListField:
		return "connectivity"
	case ParamPairField:
		return "params"
	}
	return "unknown"
}

// Field names with a fixed meaning across object types.
const (
	FieldGraphics   = "GUIDATA"
	FieldBreakerLs1 = "BK_OBJLST1"
	FieldBreakerLs2 = "BK_OBJLST2"
	FieldDSParams   = "DSPARAMS"
	FieldAreaNo     = "AREANO"
	FieldZoneNo     = "ZONENO"
	FieldBusNo      = "BUSNO"
	FieldCktID      = "CKTID"
)

// fieldSchema lists fields whose kind is not scalar, per object type.
// Resolved once here so readers never test field names ad hoc.
var fieldSchema = map[string]map[string]FieldKind{
	models.ObjBreaker: {
		FieldBreakerLs1: ConnectivityListField,
		FieldBreakerLs2: ConnectivityListField,
	},
	models.ObjRelayDSG: {FieldDSParams: ParamPairField},
	models.ObjRelayDSP: {FieldDSParams: ParamPairField},
}

// commonSchema applies to every object type.
var commonSchema = map[string]FieldKind{
	FieldGraphics: ScalarListField,
}

// KindOf returns the kind of field name on objType.
func KindOf(objType, name string) FieldKind {
	if k, ok := fieldSchema[objType][name]; ok {
		return k
	}
	if k, ok := commonSchema[name]; ok {
		return k
	}
	return ScalarField
}

// ParamPair is one entry of a ParamPairField.
type ParamPair struct {
	Name  string
	Value string
}

// ParseParamPairs splits "a\t1\tb\t2" into pairs. A trailing name without a
// value keeps an empty value.
func ParseParamPairs(s string) []ParamPair {
	s = strings.TrimRight(s, "\t\r\n")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, "\t")
	out := make([]ParamPair, 0, (len(parts)+1)/2)
	for i := 0; i < len(parts); i += 2 {
		p := ParamPair{Name: strings.TrimSpace(parts[i])}
		if i+1 < len(parts) {
			p.Value = strings.TrimSpace(parts[i+1])
		}
		out = append(out, p)
	}
	return out
}

// FormatParamPairs is the inverse of ParseParamPairs.
func FormatParamPairs(pairs []ParamPair) string {
	parts := make([]string, 0, 2*len(pairs))
	for _, p := range pairs {
		parts = append(parts, p.Name, p.Value)
	}
	return strings.Join(parts, "\t")
}

// ConnRef is one connectivity reference: an OLNET block with its ordered
// OLNETFIELD rows.
type ConnRef struct {
	ObjType string
	Fields  []models.Attr
}

// Get returns the named OLNETFIELD value.
func (c ConnRef) Get(name string) string {
	for _, f := range c.Fields {
		if f.Name == name {
			return f.Value
		}
	}
	return ""
}

// Set overwrites or appends an OLNETFIELD.
func (c *ConnRef) Set(name, value string) {
	for i := range c.Fields {
		if c.Fields[i].Name == name {
			c.Fields[i].Value = value
			return
		}
	}
	c.Fields = append(c.Fields, models.Attr{Name: name, Value: value})
}

func (c ConnRef) clone() ConnRef {
	return ConnRef{ObjType: c.ObjType, Fields: append([]models.Attr(nil), c.Fields...)}
}

// FieldValue is a field decoded according to its kind.
type FieldValue struct {
	Kind   FieldKind
	Scalar string
	List   []string
	Conns  []ConnRef
	Params []ParamPair
}

// String renders the value the way it is stored in a VALUE attribute.
// Connectivity lists render as "name kV" terminals joined by "; ".
func (v FieldValue) String() string {
	switch v.Kind {
	case ScalarListField:
		return strings.Join(v.List, " ")
	case ParamPairField:
		return FormatParamPairs(v.Params)
	case ConnectivityListField:
		parts := make([]string, len(v.Conns))
		for i, c := range v.Conns {
			parts[i] = strings.TrimSpace(c.Get("BUSNAME1") + " " + c.Get("BUSKV1"))
		}
		return strings.Join(parts, "; ")
	}
	return v.Scalar
}

// decodeScalar interprets a raw attribute value according to kind.
func decodeScalar(kind FieldKind, raw string) FieldValue {
	switch kind {
	case ScalarListField:
		return FieldValue{Kind: kind, List: strings.Fields(raw)}
	case ParamPairField:
		return FieldValue{Kind: kind, Params: ParseParamPairs(raw)}
	}
	return FieldValue{Kind: ScalarField, Scalar: raw}
}

// decodeConnList reads the OLNET blocks under a VALUE, VALUEA or VALUEB element.
func decodeConnList(value *models.Node) FieldValue {
	fv := FieldValue{Kind: ConnectivityListField}
	for _, olnet := range value.Children("OLNET") {
		fv.Conns = append(fv.Conns, decodeConn(olnet))
	}
	return fv
}

func decodeConn(olnet *models.Node) ConnRef {
	c := ConnRef{ObjType: olnet.AttrOr("OBJTYPE", "")}
	for _, f := range olnet.Children("OLNETFIELD") {
		name, ok := f.Attr("NAME")
		if !ok {
			continue
		}
		c.Fields = append(c.Fields, models.Attr{Name: name, Value: f.AttrOr("VALUE", "")})
	}
	return c
}

// encodeConnList builds the <VALUE> subtree for a connectivity list.
func encodeConnList(conns []ConnRef) *models.Node {
	value := models.NewElement()
	for _, c := range conns {
		olnet := models.NewElement()
		if c.ObjType != "" {
			olnet.SetAttr("OBJTYPE", c.ObjType)
		}
		for _, f := range c.Fields {
			row := models.NewElement()
			row.SetAttr("NAME", f.Name)
			row.SetAttr("VALUE", f.Value)
			olnet.InsertChild("OLNETFIELD", row)
		}
		value.InsertChild("OLNET", olnet)
	}
	if len(conns) == 0 {
		value.Kind = models.NullNode
	}
	return value
}
