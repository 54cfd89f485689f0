package filter

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/olx-analyzer/backend/internal/models"
)

// Configuration keys. Values are strings; flags use "1" and "0".
const (
	KeyUseBusNo     = "USEBUSNO"
	KeyCompTies     = "COMPTIES"
	KeyAnafasFormat = "ANAFASFORMAT"
	KeyCompExtent   = "COMPEXTENT"
	KeyKVRange      = "KVRANGE"
	KeyBoundaryID   = "BOUNDARYID"
	KeyAreas        = "AREAS"
	KeyZones        = "ZONES"
	KeyActions      = "ACTIONS"
	KeyBusNos       = "BUSNOS"
	KeyGUIDs        = "GUIDS"
)

// UnrestrictedRange is the AREAS/ZONES default that selects every number.
const UnrestrictedRange = "0-99999"

// Extent selects which of the area, zone or boundary criteria COMPEXTENT enables.
type Extent int

const (
	ExtentNetwork Extent = iota
	ExtentBoundary
	ExtentAreasInside
	ExtentAreasOutside
	ExtentZonesInside
	ExtentZonesOutside
)

// family maps one inclusion flag to the object types it covers.
type family struct {
	Key   string
	Types []string
}

// Families lists the per-family inclusion flags in configuration order.
var Families = []family{
	{"COMPBUS", []string{models.ObjBus}},
	{"COMPGEN", []string{models.ObjGen, models.ObjGenUnit}},
	{"COMPLOAD", []string{models.ObjLoad, models.ObjLoadUnit}},
	{"COMPSHUNT", []string{models.ObjShunt, models.ObjShuntUnit}},
	{"COMPSVD", []string{models.ObjSVD}},
	{"COMPLINE", []string{models.ObjLine}},
	{"COMPDCLINE", []string{models.ObjDCLine}},
	{"COMPSWITCH", []string{models.ObjSwitch}},
	{"COMPPS", []string{models.ObjShifter}},
	{"COMPCOORDPAIR", []string{models.ObjCoordPair}},
	{"COMPXFMR", []string{models.ObjXfmr, models.ObjXfmr3, models.ObjLTC, models.ObjLTC3, models.ObjZCorrect}},
	{"COMPBREAKER", []string{models.ObjBreaker}},
	{"COMPMUPAIR", []string{models.ObjMutual}},
	{"COMPAREA", []string{models.ObjArea, models.ObjZone}},
	{"COMPOCRELAY", []string{models.ObjRelayOCG, models.ObjRelayOCP}},
	{"COMPDSRELAY", []string{models.ObjRelayDSG, models.ObjRelayDSP}},
	{"COMPOTHERDEV", []string{models.ObjRelayGrp, models.ObjFuse, models.ObjRecloser, models.ObjRelayD, models.ObjRelayV}},
	{"COMPSCHEME", []string{models.ObjScheme}},
}

// DefaultConfig returns the configuration used when none is supplied.
func DefaultConfig() map[string]string {
	cfg := map[string]string{
		KeyUseBusNo:     "0",
		KeyCompTies:     "1",
		KeyAnafasFormat: "0",
		KeyCompExtent:   "0",
		KeyKVRange:      "0-9999",
		KeyBoundaryID:   "",
		KeyAreas:        UnrestrictedRange,
		KeyZones:        UnrestrictedRange,
	}
	for _, f := range Families {
		cfg[f.Key] = "1"
	}
	return cfg
}

// Options is a normalized set of selection criteria. Every empty set or nil
// range is an inactive criterion.
type Options struct {
	ObjTypes StringSet
	Actions  StringSet
	Areas    IntSet
	Zones    IntSet
	// AreasInside and ZonesInside are false for "outside" selections.
	AreasInside bool
	ZonesInside bool
	Ties        bool
	CircuitIDs  StringSet
	// KVRange is [min, max] or nil.
	KVRange    []float64
	BusNumbers IntSet
	GUIDs      StringSet

	Extent       Extent
	UseBusNumber bool
	AnafasFormat bool

	allNetwork bool
}

// Default returns options built from DefaultConfig. They match everything.
func Default() *Options {
	o, _ := FromConfig(nil)
	return o
}

// FromConfig builds options from a flat key/value configuration. Keys that
// are missing take their DefaultConfig value.
func FromConfig(cfg map[string]string) (*Options, error) {
	merged := DefaultConfig()
	for k, v := range cfg {
		merged[strings.ToUpper(strings.TrimSpace(k))] = strings.TrimSpace(v)
	}

	o := &Options{
		ObjTypes:    make(StringSet),
		Actions:     make(StringSet),
		Areas:       make(IntSet),
		Zones:       make(IntSet),
		AreasInside: true,
		ZonesInside: true,
		Ties:        merged[KeyCompTies] != "0",
		CircuitIDs:  make(StringSet),
		BusNumbers:  make(IntSet),
		GUIDs:       make(StringSet),

		UseBusNumber: merged[KeyUseBusNo] == "1",
		AnafasFormat: merged[KeyAnafasFormat] == "1",
	}

	restricted := false
	for _, f := range Families {
		if merged[f.Key] == "0" {
			restricted = true
			break
		}
	}
	if restricted {
		for _, f := range Families {
			if merged[f.Key] == "1" {
				for _, t := range f.Types {
					o.ObjTypes[t] = struct{}{}
				}
			}
		}
	}

	ext, err := strconv.Atoi(merged[KeyCompExtent])
	if err != nil {
		ext = 0
	}
	o.Extent = Extent(ext)
	switch o.Extent {
	case ExtentBoundary:
		o.CircuitIDs = ExpandCircuitIDs(splitList(merged[KeyBoundaryID]))
	case ExtentAreasInside, ExtentAreasOutside:
		if o.Areas, err = expandNumbers(merged[KeyAreas]); err != nil {
			return nil, fmt.Errorf("%s: %w", KeyAreas, err)
		}
		o.AreasInside = o.Extent == ExtentAreasInside
	case ExtentZonesInside, ExtentZonesOutside:
		if o.Zones, err = expandNumbers(merged[KeyZones]); err != nil {
			return nil, fmt.Errorf("%s: %w", KeyZones, err)
		}
		o.ZonesInside = o.Extent == ExtentZonesInside
	default:
		o.Extent = ExtentNetwork
	}

	if o.KVRange, err = parseKVRange(merged[KeyKVRange]); err != nil {
		return nil, err
	}

	for _, a := range splitList(merged[KeyActions]) {
		act := models.Action(strings.ToUpper(a))
		if !act.Valid() {
			return nil, &models.InvalidArgumentError{Name: "action", Value: a, Valid: actionNames()}
		}
		o.Actions[string(act)] = struct{}{}
	}
	if s := merged[KeyBusNos]; s != "" {
		if o.BusNumbers, err = ExpandRangeString(s); err != nil {
			return nil, fmt.Errorf("%s: %w", KeyBusNos, err)
		}
	}
	o.GUIDs = ExpandCircuitIDs(splitList(merged[KeyGUIDs]))

	o.allNetwork = len(o.ObjTypes) == 0 && len(o.Actions) == 0 &&
		len(o.Areas) == 0 && len(o.Zones) == 0 && o.KVRange == nil &&
		len(o.CircuitIDs) == 0 && len(o.BusNumbers) == 0 && len(o.GUIDs) == 0
	return o, nil
}

// IsAllNetwork reports whether every criterion is inactive.
func (o *Options) IsAllNetwork() bool {
	return o.allNetwork
}

// expandNumbers expands an AREAS/ZONES value, treating the full range as no restriction.
func expandNumbers(s string) (IntSet, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == UnrestrictedRange {
		return make(IntSet), nil
	}
	return ExpandRangeString(s)
}

func parseKVRange(s string) ([]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return nil, &models.FormatError{Expected: "KVRANGE as min-max", Err: fmt.Errorf("bad value %q", s)}
	}
	lo, err1 := strconv.ParseFloat(strings.TrimSpace(a), 64)
	hi, err2 := strconv.ParseFloat(strings.TrimSpace(b), 64)
	if err1 != nil || err2 != nil {
		return nil, &models.FormatError{Expected: "KVRANGE as min-max", Err: fmt.Errorf("bad value %q", s)}
	}
	if lo <= 0 && hi >= 1500 {
		return nil, nil
	}
	return []float64{lo, hi}, nil
}

func actionNames() []string {
	out := make([]string, len(models.Actions))
	for i, a := range models.Actions {
		out[i] = string(a)
	}
	return out
}
