package olx

import (
	"errors"
	"strconv"
	"strings"
	"sync"

	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/parser"
)

const caseExpected = "OLR case XML (" + parser.CaseRootTag + ")"

// Case is a parsed network snapshot.
type Case struct {
	// mu serializes in-place annotation; readers may run concurrently only
	// when no annotation is in progress.
	mu   sync.Mutex
	path string
	root *models.Node

	busOnce  sync.Once
	busIndex map[BusKey]Bus
}

// OpenCase parses a whole case file.
func OpenCase(path string, opts parser.ParseOptions) (*Case, error) {
	opts.StopAtTag = ""
	doc, err := parser.ParseFile(path, opts)
	if err != nil {
		return nil, err
	}
	c, err := NewCase(doc)
	if err != nil {
		var fe *models.FormatError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return nil, err
	}
	c.path = path
	return c, nil
}

// NewCase wraps a parsed document whose root must be ASPENOLXDB.
func NewCase(doc *models.Node) (*Case, error) {
	if tag := parser.RootTag(doc); tag != parser.CaseRootTag {
		return nil, &models.FormatError{Expected: caseExpected, Err: errors.New("root element is <" + tag + ">")}
	}
	return &Case{root: doc.Path(parser.CaseRootTag)}, nil
}

// Path is the file the case was read from, if any.
func (c *Case) Path() string { return c.path }

// Root returns the ASPENOLXDB element.
func (c *Case) Root() *models.Node { return c.root }

func (c *Case) Version() string   { return c.root.AttrOr("OLRVERSION", "") }
func (c *Case) Timestamp() string { return c.root.AttrOr("DATETIME", "") }

// ObjectCount returns the OBJCOUNT summary.
func (c *Case) ObjectCount() map[string]int {
	return objectCount(c.root)
}

// SystemParams returns the SYSTEMPARAMS attributes.
func (c *Case) SystemParams() map[string]string {
	return c.root.Path("SYSTEMPARAMS").AttrMap()
}

// Comments returns the free text FILECOMMENTS.
func (c *Case) Comments() string {
	return textOf(c.root.Path("SYSTEMPARAMS", "FILECOMMENTS"))
}

// UDField is one user-defined field template row.
type UDField struct {
	ObjType string `json:"objType" msgpack:"objType"`
	Row     int    `json:"row" msgpack:"row"`
	Name    string `json:"name" msgpack:"name"`
	Label   string `json:"label" msgpack:"label"`
}

// UDFTemplate returns the optional user-defined field template.
func (c *Case) UDFTemplate() []UDField {
	return udfTemplate(c.root)
}

// TableNames lists the OLXDBTABLE names in document order.
func (c *Case) TableNames() []string {
	var out []string
	for _, t := range c.root.Children("OLXDBTABLE") {
		out = append(out, t.AttrOr("NAME", ""))
	}
	return out
}

// Table returns the OLXDBTABLE for objType, or nil.
func (c *Case) Table(objType string) *models.Node {
	for _, t := range c.root.Children("OLXDBTABLE") {
		if t.AttrOr("NAME", "") == objType {
			return t
		}
	}
	return nil
}

// Records returns the records of one table in document order.
func (c *Case) Records(objType string) []*Record {
	return recordsOf(c.Table(objType))
}

// FindByGUID scans every table for a record.
func (c *Case) FindByGUID(guid string) *Record {
	for _, t := range c.root.Children("OLXDBTABLE") {
		for _, n := range t.Children("OLXREC") {
			if n.AttrOr("OBJGUID", "") == guid {
				return NewRecord(n)
			}
		}
	}
	return nil
}

func recordsOf(table *models.Node) []*Record {
	nodes := table.Children("OLXREC")
	out := make([]*Record, 0, len(nodes))
	for _, n := range nodes {
		if n.Kind == models.ElementNode {
			out = append(out, NewRecord(n))
		}
	}
	return out
}

// BusKey identifies a bus by name and nominal kV.
type BusKey struct {
	Name string
	KV   float64
}

// Bus is one entry of the case's authoritative bus index.
type Bus struct {
	GUID   string
	Name   string
	KV     float64
	Number int
	Area   int
	Zone   int
}

// BusIndex maps (name, kV) to bus data. Built on first use.
func (c *Case) BusIndex() map[BusKey]Bus {
	c.busOnce.Do(func() {
		c.busIndex = make(map[BusKey]Bus)
		for _, r := range c.Records(models.ObjBus) {
			b := busFromRecord(r)
			c.busIndex[BusKey{Name: b.Name, KV: b.KV}] = b
		}
	})
	return c.busIndex
}

func busFromRecord(r *Record) Bus {
	b := Bus{GUID: r.GUID()}
	if ts := r.Terminals(); len(ts) > 0 {
		b.Name, b.KV, b.Number = ts[0].Name, ts[0].KV, ts[0].Number
	}
	if v, err := strconv.Atoi(strings.TrimSpace(r.FieldString(FieldBusNo))); err == nil {
		b.Number = v
	}
	b.Area, _ = strconv.Atoi(strings.TrimSpace(r.FieldString(FieldAreaNo)))
	b.Zone, _ = strconv.Atoi(strings.TrimSpace(r.FieldString(FieldZoneNo)))
	return b
}

// CaseHeader is the metadata in front of the record tables.
type CaseHeader struct {
	Version      string            `json:"version" msgpack:"version"`
	Timestamp    string            `json:"timestamp" msgpack:"timestamp"`
	ObjectCount  map[string]int    `json:"objectCount" msgpack:"objectCount"`
	SystemParams map[string]string `json:"systemParams" msgpack:"systemParams"`
	Comments     string            `json:"comments" msgpack:"comments"`
	UDFTemplate  []UDField         `json:"udfTemplate,omitempty" msgpack:"udfTemplate,omitempty"`
}

// Header summarizes an opened case.
func (c *Case) Header() *CaseHeader {
	return headerOf(c.root)
}

// ReadCaseHeader reads a case file only up to its first OLXDBTABLE.
func ReadCaseHeader(path string) (*CaseHeader, error) {
	doc, err := parser.ParseFile(path, parser.ParseOptions{StopAtTag: "OLXDBTABLE"})
	if err != nil {
		return nil, err
	}
	if tag := parser.RootTag(doc); tag != parser.CaseRootTag {
		return nil, &models.FormatError{Path: path, Expected: caseExpected, Err: errors.New("root element is <" + tag + ">")}
	}
	return headerOf(doc.Path(parser.CaseRootTag)), nil
}

func headerOf(root *models.Node) *CaseHeader {
	return &CaseHeader{
		Version:      root.AttrOr("OLRVERSION", ""),
		Timestamp:    root.AttrOr("DATETIME", ""),
		ObjectCount:  objectCount(root),
		SystemParams: root.Path("SYSTEMPARAMS").AttrMap(),
		Comments:     textOf(root.Path("SYSTEMPARAMS", "FILECOMMENTS")),
		UDFTemplate:  udfTemplate(root),
	}
}

func objectCount(root *models.Node) map[string]int {
	out := make(map[string]int)
	oc := root.Path("OBJCOUNT")
	if oc == nil {
		return out
	}
	for _, a := range oc.Attrs {
		n, _ := strconv.Atoi(a.Value)
		out[a.Name] = n
	}
	return out
}

func udfTemplate(root *models.Node) []UDField {
	var out []UDField
	for _, obj := range root.Path("UDFTEMPLATE").Children("OLRXOBJ") {
		objType := obj.AttrOr("OBJTYPE", "")
		for _, f := range obj.Children("UDFIELD") {
			row, _ := strconv.Atoi(f.AttrOr("ROWNO", ""))
			out = append(out, UDField{ObjType: objType, Row: row, Name: f.AttrOr("FNAME", ""), Label: f.AttrOr("LABEL", "")})
		}
	}
	return out
}

// textOf reads text whether the element collapsed or kept attributes.
func textOf(n *models.Node) string {
	if n == nil {
		return ""
	}
	return strings.TrimSpace(n.Text)
}
