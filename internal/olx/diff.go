package olx

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/olx-analyzer/backend/internal/filter"
	"github.com/olx-analyzer/backend/internal/models"
	"github.com/olx-analyzer/backend/internal/parser"
)

const diffExpected = "OLR-diff XML (" + parser.DiffRootTag + "/" + parser.DiffBodyTag + ")"

// Diff is a parsed comparison of two case snapshots.
type Diff struct {
	path    string
	root    *models.Node
	body    *models.Node
	records []*Record
}

// LoadDiff parses a whole diff file.
func LoadDiff(path string, opts parser.ParseOptions) (*Diff, error) {
	opts.StopAtTag = ""
	doc, err := parser.ParseFile(path, opts)
	if err != nil {
		return nil, err
	}
	d, err := NewDiff(doc)
	if err != nil {
		var fe *models.FormatError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return nil, err
	}
	d.path = path
	return d, nil
}

// NewDiff wraps a parsed document whose root path must be ASPENOLX/OLXDIFF.
func NewDiff(doc *models.Node) (*Diff, error) {
	body := doc.Path(parser.DiffRootTag, parser.DiffBodyTag)
	if body == nil || body.Kind != models.ElementNode && body.Kind != models.NullNode {
		return nil, &models.FormatError{Expected: diffExpected, Err: errors.New("missing <" + parser.DiffBodyTag + ">")}
	}
	if body.Kind == models.NullNode {
		body.Kind = models.ElementNode
	}
	d := &Diff{root: doc.Path(parser.DiffRootTag), body: body}
	for _, n := range body.Children("CHANGEREC") {
		d.records = append(d.records, NewRecord(n))
	}
	return d, nil
}

// Path is the file the diff was read from, if any.
func (d *Diff) Path() string { return d.path }

// Records returns the change records in document order.
func (d *Diff) Records() []*Record { return d.records }

// DiffHeader holds the source files and comparison settings of a diff.
type DiffHeader struct {
	FileA      string        `json:"fileA" msgpack:"fileA"`
	FileB      string        `json:"fileB" msgpack:"fileB"`
	Areas      string        `json:"areas,omitempty" msgpack:"areas,omitempty"`
	Zones      string        `json:"zones,omitempty" msgpack:"zones,omitempty"`
	KVRange    string        `json:"kvRange,omitempty" msgpack:"kvRange,omitempty"`
	Tags       string        `json:"tags,omitempty" msgpack:"tags,omitempty"`
	CompExtent string        `json:"compExtent,omitempty" msgpack:"compExtent,omitempty"`
	Attrs      []models.Attr `json:"-" msgpack:"-"`
}

func headerFromAttrs(attrs []models.Attr) DiffHeader {
	h := DiffHeader{Attrs: append([]models.Attr(nil), attrs...)}
	for _, a := range attrs {
		switch a.Name {
		case "FILEA":
			h.FileA = a.Value
		case "FILEB":
			h.FileB = a.Value
		case "AREAS":
			h.Areas = a.Value
		case "ZONES":
			h.Zones = a.Value
		case "KVRANGE":
			h.KVRange = a.Value
		case "TAGS":
			h.Tags = a.Value
		case "COMPEXTENT":
			h.CompExtent = a.Value
		}
	}
	return h
}

// Header returns the OLXDIFF attributes.
func (d *Diff) Header() DiffHeader {
	return headerFromAttrs(d.body.Attrs)
}

// ReadDiffHeader reads a diff file only up to its first CHANGEREC.
func ReadDiffHeader(path string) (DiffHeader, error) {
	doc, err := parser.ParseFile(path, parser.ParseOptions{StopAtTag: "CHANGEREC"})
	if err != nil {
		return DiffHeader{}, err
	}
	d, err := NewDiff(doc)
	if err != nil {
		var fe *models.FormatError
		if errors.As(err, &fe) {
			fe.Path = path
		}
		return DiffHeader{}, err
	}
	return d.Header(), nil
}

// ComparisonConfig turns the header settings into a filter configuration,
// so the same scope can be reapplied to the records.
func (h DiffHeader) ComparisonConfig() map[string]string {
	cfg := make(map[string]string)
	set := func(k, v string) {
		if v = strings.TrimSpace(v); v != "" {
			cfg[k] = v
		}
	}
	set(filter.KeyAreas, h.Areas)
	set(filter.KeyZones, h.Zones)
	set(filter.KeyKVRange, h.KVRange)
	set(filter.KeyCompExtent, h.CompExtent)
	return cfg
}

// ComparisonConfig is Header().ComparisonConfig().
func (d *Diff) ComparisonConfig() map[string]string {
	return d.Header().ComparisonConfig()
}

// StatKey is the CHANGESTAT attribute name for one type and action.
func StatKey(objType string, action models.Action) string {
	return objType + "_" + action.StatSuffix()
}

// StatResult is the answer to a ChangeStatistics query. Exactly one of the
// fields is meaningful, depending on which arguments were given.
type StatResult struct {
	Count     int                   `json:"count"`
	Breakdown map[models.Action]int `json:"breakdown,omitempty"`
	Raw       map[string]int        `json:"raw,omitempty"`
}

// ChangeStatistics reads the CHANGESTAT counters.
//
// With both action and objType it returns one Count. With only objType it
// returns the ADD/MODIFY/DELETE Breakdown. With only action, Count is the
// total over all types. With neither, Raw holds the whole counter block.
func (d *Diff) ChangeStatistics(action models.Action, objType string) (*StatResult, error) {
	return Statistics(d.rawStats(), action, objType)
}

// Statistics answers a ChangeStatistics query over any set of CHANGESTAT
// counters, such as the tallies of a streamed diff.
func Statistics(raw map[string]int, action models.Action, objType string) (*StatResult, error) {
	if action != "" && !action.Valid() {
		return nil, &models.InvalidArgumentError{Name: "action", Value: string(action), Valid: actionNames()}
	}
	if objType != "" && !models.IsObjectType(objType) {
		return nil, &models.InvalidArgumentError{Name: "object type", Value: objType, Valid: models.ObjectTypes}
	}

	switch {
	case action != "" && objType != "":
		return &StatResult{Count: raw[StatKey(objType, action)]}, nil
	case objType != "":
		b := make(map[models.Action]int, len(models.Actions))
		total := 0
		for _, a := range models.Actions {
			b[a] = raw[StatKey(objType, a)]
			total += b[a]
		}
		return &StatResult{Count: total, Breakdown: b}, nil
	case action != "":
		total := 0
		for _, t := range models.ObjectTypes {
			total += raw[StatKey(t, action)]
		}
		return &StatResult{Count: total}, nil
	}
	total := 0
	for _, v := range raw {
		total += v
	}
	return &StatResult{Count: total, Raw: raw}, nil
}

func (d *Diff) rawStats() map[string]int {
	out := make(map[string]int)
	stat := d.body.Path("CHANGESTAT")
	if stat == nil {
		return out
	}
	for _, a := range stat.Attrs {
		n, err := strconv.Atoi(strings.TrimSpace(a.Value))
		if err == nil {
			out[a.Name] = n
		}
	}
	return out
}

// CountChanges tallies records into CHANGESTAT keys.
func CountChanges(recs []*Record) map[string]int {
	out := make(map[string]int)
	for _, r := range recs {
		if a := r.Action(); a.Valid() {
			out[StatKey(r.ObjType(), a)]++
		}
	}
	return out
}

// FilterRecords evaluates pred on the scope block of every record.
// ZCORRECT results are cleared afterwards when no transformer was selected.
func (d *Diff) FilterRecords(pred *filter.Options) []bool {
	if pred == nil {
		pred = filter.Default()
	}
	out := make([]bool, len(d.records))
	xfmr := false
	for i, r := range d.records {
		out[i] = pred.Matches(diffScope(r))
		if out[i] && isTransformer(r.ObjType()) {
			xfmr = true
		}
	}
	if !xfmr && !pred.IsAllNetwork() {
		for i, r := range d.records {
			if r.ObjType() == models.ObjZCorrect {
				out[i] = false
			}
		}
	}
	return out
}

func isTransformer(objType string) bool {
	return objType == models.ObjXfmr || objType == models.ObjXfmr3
}

func actionNames() []string {
	out := make([]string, len(models.Actions))
	for i, a := range models.Actions {
		out[i] = string(a)
	}
	return out
}

// statAttrs renders counts as CHANGESTAT attributes, keeping the order of
// prev and appending new keys sorted.
func statAttrs(prev []models.Attr, counts map[string]int) []models.Attr {
	out := make([]models.Attr, 0, len(prev)+len(counts))
	seen := make(map[string]bool, len(prev))
	for _, a := range prev {
		seen[a.Name] = true
		out = append(out, models.Attr{Name: a.Name, Value: strconv.Itoa(counts[a.Name])})
	}
	var extra []string
	for k := range counts {
		if !seen[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		out = append(out, models.Attr{Name: k, Value: fmt.Sprint(counts[k])})
	}
	return out
}
