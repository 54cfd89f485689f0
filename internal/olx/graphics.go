package olx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olx-analyzer/backend/internal/models"
)

// GraphicsLayout is the order of integers in a GUIDATA field.
type GraphicsLayout uint8

const (
	// LayoutBus is size, angle, x, y, label x, label y, hide flag.
	LayoutBus GraphicsLayout = iota
	// LayoutLine is segment count, x/y per segment, then two label positions.
	LayoutLine
	// LayoutPoint is x, y, angle, label x, label y.
	LayoutPoint
)

// LayoutFor returns the GUIDATA layout of an object type.
func LayoutFor(objType string) GraphicsLayout {
	switch objType {
	case models.ObjBus:
		return LayoutBus
	case models.ObjLine, models.ObjDCLine, models.ObjSwitch, models.ObjShifter,
		models.ObjXfmr, models.ObjXfmr3, models.ObjMutual:
		return LayoutLine
	}
	return LayoutPoint
}

// Point is a one-line diagram coordinate.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Graphics is the decoded graphics block of one object. Fields not used by
// the object's layout are ignored on write and zero on read.
type Graphics struct {
	Size     int     `json:"size,omitempty"`
	Angle    int     `json:"angle,omitempty"`
	Pos      Point   `json:"pos"`
	Label    Point   `json:"label"`
	Hide     bool    `json:"hide,omitempty"`
	Segments []Point `json:"segments,omitempty"`
	// Labels holds the two branch label positions of a line layout.
	Labels [2]Point `json:"labels"`
}

// Encode flattens g in layout order.
func (g Graphics) Encode(layout GraphicsLayout) []int {
	switch layout {
	case LayoutBus:
		hide := 0
		if g.Hide {
			hide = 1
		}
		return []int{g.Size, g.Angle, g.Pos.X, g.Pos.Y, g.Label.X, g.Label.Y, hide}
	case LayoutLine:
		out := []int{len(g.Segments)}
		for _, p := range g.Segments {
			out = append(out, p.X, p.Y)
		}
		return append(out, g.Labels[0].X, g.Labels[0].Y, g.Labels[1].X, g.Labels[1].Y)
	}
	return []int{g.Pos.X, g.Pos.Y, g.Angle, g.Label.X, g.Label.Y}
}

// DecodeGraphics is the inverse of Encode.
func DecodeGraphics(layout GraphicsLayout, v []int) (Graphics, error) {
	var g Graphics
	switch layout {
	case LayoutBus:
		if len(v) != 7 {
			return g, fmt.Errorf("bus graphics: want 7 values, got %d", len(v))
		}
		g.Size, g.Angle = v[0], v[1]
		g.Pos, g.Label = Point{v[2], v[3]}, Point{v[4], v[5]}
		g.Hide = v[6] != 0
	case LayoutLine:
		if len(v) < 1 || v[0] < 0 || len(v) != 1+2*v[0]+4 {
			return g, fmt.Errorf("line graphics: bad length %d", len(v))
		}
		n := v[0]
		for i := 0; i < n; i++ {
			g.Segments = append(g.Segments, Point{v[1+2*i], v[2+2*i]})
		}
		rest := v[1+2*n:]
		g.Labels = [2]Point{{rest[0], rest[1]}, {rest[2], rest[3]}}
	default:
		if len(v) != 5 {
			return g, fmt.Errorf("graphics: want 5 values, got %d", len(v))
		}
		g.Pos, g.Angle, g.Label = Point{v[0], v[1]}, v[2], Point{v[3], v[4]}
	}
	return g, nil
}

// AnnotateGraphics overwrites the graphics block of rec in place.
// rec must belong to c; one annotation runs at a time per case.
func (c *Case) AnnotateGraphics(rec *Record, g Graphics) {
	c.mu.Lock()
	defer c.mu.Unlock()

	vals := g.Encode(LayoutFor(rec.ObjType()))
	list := make([]string, len(vals))
	for i, v := range vals {
		list[i] = strconv.Itoa(v)
	}
	rec.SetField(FieldGraphics, FieldValue{Kind: ScalarListField, List: list})
}

// ReadGraphics decodes the graphics block of rec. ok is false when the
// record has none.
func (c *Case) ReadGraphics(rec *Record) (g Graphics, ok bool, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	fv, ok := rec.Field(FieldGraphics)
	if !ok {
		return g, false, nil
	}
	vals := make([]int, 0, len(fv.List))
	for _, s := range fv.List {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return g, true, fmt.Errorf("graphics of %s: %w", rec.GUID(), err)
		}
		vals = append(vals, v)
	}
	g, err = DecodeGraphics(LayoutFor(rec.ObjType()), vals)
	return g, true, err
}
