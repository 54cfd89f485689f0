package filter

import (
	"testing"

	"github.com/olx-analyzer/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandRange(t *testing.T) {
	tests := []struct {
		name   string
		values []any
		want   []int
	}{
		{"dash and single", []any{"1-3", "7"}, []int{1, 2, 3, 7}},
		{"empty", nil, []int{}},
		{"ints", []any{4, int64(2), 2.0}, []int{2, 4}},
		{"spaces", []any{" 10 - 12 "}, []int{10, 11, 12}},
		{"single point range", []any{"5-5"}, []int{5}},
		{"reversed range is empty", []any{"9-3"}, []int{}},
		{"reversed extreme range is empty", []any{"9223372036854775807--9223372036854775808"}, []int{}},
		{"negative bounds", []any{"-2-0"}, []int{-2, -1, 0}},
		{"overlap", []any{"1-4", "3-6"}, []int{1, 2, 3, 4, 5, 6}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandRange(tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Sorted())
		})
	}
}

func TestExpandRange_Errors(t *testing.T) {
	bad := []any{
		"a-3", "x", "1-2000000000", struct{}{},
		"-9223372036854775808-9223372036854775807",
		"-5-999999",
		1.5,
	}
	for _, bad := range bad {
		_, err := ExpandRange([]any{bad})
		assert.ErrorIs(t, err, models.ErrFormat, "%v", bad)
	}
}

func TestExpandRangeString(t *testing.T) {
	got, err := ExpandRangeString("1-5,8,20-22")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 8, 20, 21, 22}, got.Sorted())

	got, err = ExpandRangeString(" , ")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestExpandCircuitIDs(t *testing.T) {
	got := ExpandCircuitIDs([]string{"1", " 2-4 ", "", "1"})
	assert.Equal(t, []string{"1", "2-4"}, got.Sorted(), "circuit IDs are literal, not ranges")
}

func TestCompact(t *testing.T) {
	assert.Equal(t, "1-3,7,9-10", compact([]int{1, 2, 3, 7, 9, 10}))
	assert.Equal(t, "", compact(nil))
}
