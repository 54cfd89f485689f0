package filter

import (
	"fmt"
	"strings"

	"github.com/olx-analyzer/backend/internal/models"
)

// Scope holds the per-record values a predicate evaluates. Multi-valued
// fields carry one entry per terminal or scope field.
type Scope struct {
	ObjType    string
	Action     models.Action
	GUID       string
	Areas      []int
	Zones      []int
	KVs        []float64
	BusNumbers []int
	CircuitIDs []string
	// Missing marks a record that carries no scope data at all.
	Missing bool
}

// kvExempt types have no voltage level.
var kvExempt = map[string]bool{
	models.ObjArea:     true,
	models.ObjZone:     true,
	models.ObjZCorrect: true,
}

// Matches reports whether a record with scope s is selected. The result is
// the AND of every active criterion. A record without scope data only
// matches an all-network predicate.
func (o *Options) Matches(s Scope) bool {
	if o.allNetwork {
		return true
	}
	if s.Missing {
		return false
	}
	if len(o.ObjTypes) > 0 && !o.ObjTypes.Has(s.ObjType) {
		return false
	}
	// Case records have no action, so the criterion only binds diff records.
	if len(o.Actions) > 0 && s.Action != "" && !o.Actions.Has(string(s.Action)) {
		return false
	}
	if len(o.GUIDs) > 0 && !o.GUIDs.Has(s.GUID) {
		return false
	}
	if !o.matchKV(s) {
		return false
	}
	if len(o.Areas) > 0 && !o.matchTie(s.Areas, o.Areas, o.AreasInside) {
		return false
	}
	if len(o.Zones) > 0 && !o.matchTie(s.Zones, o.Zones, o.ZonesInside) {
		return false
	}
	if len(o.BusNumbers) > 0 && !anyOf(s.BusNumbers, o.BusNumbers.Has) {
		return false
	}
	if len(o.CircuitIDs) > 0 && !anyOf(s.CircuitIDs, o.CircuitIDs.Has) {
		return false
	}
	return true
}

func (o *Options) matchKV(s Scope) bool {
	if o.KVRange == nil || kvExempt[s.ObjType] {
		return true
	}
	lo, hi := o.KVRange[0], o.KVRange[1]
	in := func(v float64) bool { return v >= lo && v <= hi }
	if o.Ties {
		return anyOf(s.KVs, in)
	}
	return allOf(s.KVs, in)
}

// matchTie is OR across terminals with ties included and AND without.
func (o *Options) matchTie(values []int, set IntSet, inside bool) bool {
	member := func(v int) bool { return set.Has(v) == inside }
	if o.Ties {
		return anyOf(values, member)
	}
	return allOf(values, member)
}

func anyOf[T any](values []T, fn func(T) bool) bool {
	for _, v := range values {
		if fn(v) {
			return true
		}
	}
	return false
}

// allOf is false for an empty slice: an active criterion needs something to test.
func allOf[T any](values []T, fn func(T) bool) bool {
	if len(values) == 0 {
		return false
	}
	for _, v := range values {
		if !fn(v) {
			return false
		}
	}
	return true
}

// Summary describes the active criteria, one per line.
func (o *Options) Summary() []string {
	if o.allNetwork {
		return []string{"entire network"}
	}
	var out []string
	if len(o.ObjTypes) > 0 {
		out = append(out, "types: "+strings.Join(o.ObjTypes.Sorted(), ", "))
	}
	if len(o.Actions) > 0 {
		out = append(out, "actions: "+strings.Join(o.Actions.Sorted(), ", "))
	}
	if len(o.Areas) > 0 {
		out = append(out, fmt.Sprintf("areas %s: %s", side(o.AreasInside), compact(o.Areas.Sorted())))
	}
	if len(o.Zones) > 0 {
		out = append(out, fmt.Sprintf("zones %s: %s", side(o.ZonesInside), compact(o.Zones.Sorted())))
	}
	if o.KVRange != nil {
		out = append(out, fmt.Sprintf("kV: %g-%g", o.KVRange[0], o.KVRange[1]))
	}
	if len(o.CircuitIDs) > 0 {
		out = append(out, "circuit IDs: "+strings.Join(o.CircuitIDs.Sorted(), ", "))
	}
	if len(o.BusNumbers) > 0 {
		out = append(out, "bus numbers: "+compact(o.BusNumbers.Sorted()))
	}
	if len(o.GUIDs) > 0 {
		out = append(out, fmt.Sprintf("GUIDs: %d", len(o.GUIDs)))
	}
	if len(o.Areas) > 0 || len(o.Zones) > 0 {
		out = append(out, fmt.Sprintf("ties included: %t", o.Ties))
	}
	return out
}

func side(inside bool) string {
	if inside {
		return "inside"
	}
	return "outside"
}

// compact renders sorted numbers back into range notation.
func compact(nums []int) string {
	var parts []string
	for i := 0; i < len(nums); {
		j := i
		for j+1 < len(nums) && nums[j+1] == nums[j]+1 {
			j++
		}
		if j > i {
			parts = append(parts, fmt.Sprintf("%d-%d", nums[i], nums[j]))
		} else {
			parts = append(parts, fmt.Sprint(nums[i]))
		}
		i = j + 1
	}
	return strings.Join(parts, ",")
}
