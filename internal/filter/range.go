package filter

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/olx-analyzer/backend/internal/models"
	"golang.org/x/exp/constraints"
)

// MaxRangeSpan bounds a single "a-b" item so a typo cannot allocate millions of entries.
const MaxRangeSpan = 1000000

// IntSet is an expanded numeric range. An empty set means the criterion is inactive.
type IntSet map[int]struct{}

// Has reports membership.
func (s IntSet) Has(v int) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in ascending order.
func (s IntSet) Sorted() []int {
	out := make([]int, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// StringSet is a literal-match set. An empty set means the criterion is inactive.
type StringSet map[string]struct{}

// Has reports membership.
func (s StringSet) Has(v string) bool {
	_, ok := s[v]
	return ok
}

// Sorted returns the members in lexical order.
func (s StringSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func newStringSet(values ...string) StringSet {
	s := make(StringSet, len(values))
	for _, v := range values {
		s[v] = struct{}{}
	}
	return s
}

// expandSpan calls fn for lo..hi inclusive. A reversed span yields nothing.
func expandSpan[T constraints.Integer](lo, hi T, fn func(T)) {
	for v := lo; v <= hi; v++ {
		fn(v)
		if v == hi {
			return
		}
	}
}

// ExpandRange turns range items into an explicit set. Strings containing a
// dash expand inclusively ("3-5" gives 3,4,5); everything else is a single
// integer. Empty input yields an empty, inactive set.
func ExpandRange(values []any) (IntSet, error) {
	out := make(IntSet)
	for _, v := range values {
		switch x := v.(type) {
		case int:
			out[x] = struct{}{}
		case int64:
			out[int(x)] = struct{}{}
		case float64:
			if x != math.Trunc(x) || math.Abs(x) > math.MaxInt32 {
				return nil, rangeError(fmt.Sprint(v))
			}
			out[int(x)] = struct{}{}
		case string:
			if err := expandItem(strings.TrimSpace(x), out); err != nil {
				return nil, err
			}
		default:
			return nil, rangeError(fmt.Sprint(v))
		}
	}
	return out, nil
}

// ExpandRangeString expands a comma separated list such as "1-5,8,20-22".
func ExpandRangeString(s string) (IntSet, error) {
	items := splitList(s)
	values := make([]any, len(items))
	for i, it := range items {
		values[i] = it
	}
	return ExpandRange(values)
}

// ExpandCircuitIDs builds the string identity variant used for circuit IDs,
// which are matched literally and never expanded as ranges.
func ExpandCircuitIDs(values []string) StringSet {
	out := make(StringSet, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out[v] = struct{}{}
		}
	}
	return out
}

func expandItem(item string, out IntSet) error {
	if item == "" {
		return nil
	}
	if i := strings.Index(item[1:], "-"); i >= 0 {
		lo, err1 := strconv.Atoi(strings.TrimSpace(item[:i+1]))
		hi, err2 := strconv.Atoi(strings.TrimSpace(item[i+2:]))
		if err1 != nil || err2 != nil {
			return rangeError(item)
		}
		if hi < lo {
			return nil
		}
		if uint64(hi)-uint64(lo) >= MaxRangeSpan {
			return rangeError(item)
		}
		expandSpan(lo, hi, func(v int) { out[v] = struct{}{} })
		return nil
	}
	v, err := strconv.Atoi(item)
	if err != nil {
		return rangeError(item)
	}
	out[v] = struct{}{}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, it := range strings.Split(s, ",") {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func rangeError(item string) error {
	return &models.FormatError{Expected: "range item like 5 or 1-9", Err: fmt.Errorf("bad range %q", item)}
}
