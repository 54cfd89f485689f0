// Package engine describes the analysis engine the toolkit hands case edits
// to. The engine itself is external; only its calling surface lives here.
package engine

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/golang/glog"
	"github.com/olx-analyzer/backend/internal/olx"
)

var (
	// ErrNotFound is returned when no object carries the requested GUID.
	ErrNotFound = errors.New("object not found")
	// ErrReadOnly is returned when writing to a case opened read-only.
	ErrReadOnly = errors.New("case is open read-only")
	// ErrNoCase is returned by calls made before OpenCase.
	ErrNoCase = errors.New("no case open")
)

// Handle identifies an object inside the open case.
type Handle int

// Engine is a session against one open case.
type Engine interface {
	OpenCase(path string, readOnly bool) error
	FindObjectByGUID(guid string) (Handle, error)
	GetFieldValue(h Handle, field string) (string, error)
	SetFieldValue(h Handle, field, value string) error
	// RunCommand executes an XML command document and reports its failure.
	RunCommand(xml string) error
	Save() error
	Close() error
}

// ApplyResult counts what ApplyGraphics pushed.
type ApplyResult struct {
	Applied int
	// Missing lists GUIDs the engine could not find.
	Missing []string
}

// ApplyGraphics writes every graphics block of c into the engine's open case
// and saves it. Objects unknown to the engine are skipped and reported.
func ApplyGraphics(eng Engine, c *olx.Case) (*ApplyResult, error) {
	res := &ApplyResult{}
	for _, table := range c.TableNames() {
		for _, rec := range c.Records(table) {
			g, ok, err := c.ReadGraphics(rec)
			if err != nil {
				return res, fmt.Errorf("%s %s: %w", rec.ObjType(), rec.GUID(), err)
			}
			if !ok {
				continue
			}
			h, err := eng.FindObjectByGUID(rec.GUID())
			if errors.Is(err, ErrNotFound) {
				res.Missing = append(res.Missing, rec.GUID())
				continue
			}
			if err != nil {
				return res, err
			}
			if err := eng.SetFieldValue(h, olx.FieldGraphics, joinInts(g.Encode(olx.LayoutFor(rec.ObjType())))); err != nil {
				return res, fmt.Errorf("setting graphics of %s: %w", rec.GUID(), err)
			}
			res.Applied++
		}
	}
	if len(res.Missing) > 0 {
		glog.Warningf("[Engine] %d objects with graphics not found in engine case", len(res.Missing))
	}
	if res.Applied == 0 {
		return res, nil
	}
	return res, eng.Save()
}

func joinInts(v []int) string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, " ")
}
